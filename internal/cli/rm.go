package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete long-term memories",
		Long:  "Archive long-term memories and drop them from both indexes. Rows are kept for export history.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg)
		if err != nil {
			exitErr("rm", err)
		}
		ids = append(ids, id)
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	for _, id := range ids {
		if err := a.engine.Delete(cmd.Context(), id); err != nil {
			exitErr(fmt.Sprintf("rm %d", id), err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"deleted":%d}`+"\n", len(ids))
}
