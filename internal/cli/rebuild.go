package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild both indexes from the store",
		Long:  "Re-derive the BM25 and vector indexes from active memories. With --reembed every memory is embedded again first.",
		Run:   runRebuild,
	}

	cmd.Flags().Bool("reembed", false, "Recompute embeddings with the configured provider")

	RootCmd.AddCommand(cmd)
}

func runRebuild(cmd *cobra.Command, args []string) {
	reembed, _ := cmd.Flags().GetBool("reembed")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	res, err := a.engine.Rebuild(cmd.Context(), reembed)
	if err != nil {
		exitErr("rebuild", err)
	}
	printJSON(res)
}
