package cli

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [content]",
		Short: "Record a conversation turn",
		Long: "Append a turn to a session buffer. Once the buffer reaches the summary threshold it is " +
			"distilled into a long-term memory. Content can be a positional arg or piped via stdin.",
		Run: runIngest,
	}

	cmd.Flags().StringP("session", "s", "", "Session id (required)")
	cmd.Flags().StringP("role", "r", "user", "Role: user, assistant, system")
	cmd.Flags().StringP("persona", "p", "", "Persona id")

	cmd.MarkFlagRequired("session")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	role, _ := cmd.Flags().GetString("role")
	persona, _ := cmd.Flags().GetString("persona")

	content, err := readContent(args)
	if err != nil {
		exitErr("ingest", err)
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	res, err := a.manager.Ingest(cmd.Context(), memory.TurnInput{
		SessionID: session,
		PersonaID: persona,
		Role:      role,
		Content:   content,
	})
	if err != nil {
		exitErr("ingest", err)
	}
	printJSON(res)
}

// readContent takes the positional args, or stdin when it is piped.
func readContent(args []string) (string, error) {
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				return "", err
			}
			content = string(b)
		}
	}
	return strings.TrimSpace(content), nil
}
