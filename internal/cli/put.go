package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a long-term memory directly",
		Long:  "Store a long-term memory without distillation. Content can be a positional arg or piped via stdin.",
		Run:   runPut,
	}

	cmd.Flags().StringP("session", "s", "", "Session id (required)")
	cmd.Flags().StringP("persona", "p", "", "Persona id")
	cmd.Flags().Float64P("importance", "i", -1, "Importance in [0,1] (default: scored by the summarizer, else 0.5)")
	cmd.Flags().String("canonical", "", "Canonical summary")
	cmd.Flags().String("persona-summary", "", "First-person persona summary")

	cmd.MarkFlagRequired("session")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	persona, _ := cmd.Flags().GetString("persona")
	importance, _ := cmd.Flags().GetFloat64("importance")
	canonical, _ := cmd.Flags().GetString("canonical")
	personaSummary, _ := cmd.Flags().GetString("persona-summary")

	content, err := readContent(args)
	if err != nil {
		exitErr("read stdin", err)
	}
	if content == "" {
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	nm := memory.NewMemory{
		SessionID:        session,
		PersonaID:        persona,
		Content:          content,
		CanonicalSummary: canonical,
		PersonaSummary:   personaSummary,
	}
	if cmd.Flags().Changed("importance") {
		nm.Importance = &importance
	}

	mem, err := a.engine.AddLongTerm(cmd.Context(), nm)
	if err != nil {
		exitErr("put", err)
	}
	printJSON(mem)
}
