package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "distill <session>",
		Short: "Distill a session now",
		Long:  "Summarize a session's buffered turns into a long-term memory without waiting for the threshold.",
		Args:  cobra.ExactArgs(1),
		Run:   runDistill,
	}

	RootCmd.AddCommand(cmd)
}

func runDistill(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	id, err := a.manager.Distill(cmd.Context(), args[0])
	if err != nil {
		exitErr("distill", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"session_id":%q,"memory_id":%d}`+"\n", args[0], id)
}
