package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context <session> [query]",
		Short: "Assemble prompt context for a session",
		Long: "Combine the session's recent turns with relevant long-term memories, greedily packed " +
			"into a character budget. Without a query the session's newest memories are used.",
		Args: cobra.MinimumNArgs(1),
		Run:  runContext,
	}

	cmd.Flags().Bool("text", false, "Print only the rendered context text")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	textOnly, _ := cmd.Flags().GetBool("text")
	query := strings.Join(args[1:], " ")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	result, err := a.manager.Context(cmd.Context(), args[0], query)
	if err != nil {
		exitErr("context", err)
	}

	if textOnly {
		fmt.Print(result.Text)
		return
	}
	printJSON(result)
}
