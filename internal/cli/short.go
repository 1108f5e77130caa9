package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "short <session>",
		Short: "List a session's short-term turns",
		Long:  "List the active short-term rows of a session, newest first. Distilled turns are archived and not shown.",
		Args:  cobra.ExactArgs(1),
		Run:   runShort,
	}

	cmd.Flags().IntP("limit", "l", 50, "Max results")

	RootCmd.AddCommand(cmd)
}

func runShort(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	rows, err := a.store.ListShortTerm(cmd.Context(), args[0], limit)
	if err != nil {
		exitErr("short", err)
	}
	printJSON(rows)
}
