package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "clear <session>",
		Short: "Clear a session's short-term buffer",
		Long:  "Archive a session's short-term turns without distilling them. Long-term memories are untouched.",
		Args:  cobra.ExactArgs(1),
		Run:   runClear,
	}

	RootCmd.AddCommand(cmd)
}

func runClear(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	n, err := a.manager.ClearSession(cmd.Context(), args[0])
	if err != nil {
		exitErr("clear", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"session_id":%q,"archived":%d}`+"\n", args[0], n)
}
