package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export long-term memories as JSON",
		Long:  "Export active long-term memories, embeddings included. Filter by session with -s.",
		Run:   runExport,
	}

	cmd.Flags().StringP("session", "s", "", "Filter by session")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	records, err := a.store.ExportAll(cmd.Context(), session)
	if err != nil {
		exitErr("export", err)
	}
	printJSON(records)
}
