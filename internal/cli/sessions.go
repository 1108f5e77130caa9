package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List known conversations",
		Long:  "List conversations recorded by ingest, most recently active first.",
		Run:   runSessions,
	}

	cmd.Flags().IntP("limit", "l", 100, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSessions(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	rows, err := a.store.ListConversations(cmd.Context(), limit)
	if err != nil {
		exitErr("list sessions", err)
	}
	printJSON(rows)
}
