package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a long-term memory",
		Long:  "Edit a memory's content, summaries or importance. Changing the content re-embeds and re-indexes it.",
		Args:  cobra.ExactArgs(1),
		Run:   runEdit,
	}

	cmd.Flags().String("content", "", "New content")
	cmd.Flags().String("canonical", "", "New canonical summary")
	cmd.Flags().String("persona-summary", "", "New persona summary")
	cmd.Flags().Float64P("importance", "i", 0, "New importance in [0,1]")

	RootCmd.AddCommand(cmd)
}

func runEdit(cmd *cobra.Command, args []string) {
	id, err := parseID(args[0])
	if err != nil {
		exitErr("edit", err)
	}

	var u memory.Update
	flags := cmd.Flags()
	if flags.Changed("content") {
		v, _ := flags.GetString("content")
		u.Content = &v
	}
	if flags.Changed("canonical") {
		v, _ := flags.GetString("canonical")
		u.CanonicalSummary = &v
	}
	if flags.Changed("persona-summary") {
		v, _ := flags.GetString("persona-summary")
		u.PersonaSummary = &v
	}
	if flags.Changed("importance") {
		v, _ := flags.GetFloat64("importance")
		u.Importance = &v
	}
	if u.Content == nil && u.CanonicalSummary == nil && u.PersonaSummary == nil && u.Importance == nil {
		exitErr("edit", fmt.Errorf("nothing to change"))
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	mem, err := a.engine.Update(cmd.Context(), id, u)
	if err != nil {
		exitErr("edit", err)
	}
	printJSON(mem)
}
