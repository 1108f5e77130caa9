package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List long-term memories",
		Run:   runList,
	}

	cmd.Flags().StringP("session", "s", "", "Filter by session")
	cmd.Flags().StringP("persona", "p", "", "Filter by persona")
	cmd.Flags().Bool("archived", false, "List archived memories instead")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("ids-only", false, "Only output ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	persona, _ := cmd.Flags().GetString("persona")
	archived, _ := cmd.Flags().GetBool("archived")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	p := store.ListParams{SessionID: session, PersonaID: persona, Limit: limit}
	if archived {
		p.Status = model.StatusArchived
	}
	memories, err := a.engine.List(cmd.Context(), p)
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, m := range memories {
			fmt.Println(m.ID)
		}
		return
	}
	printJSON(memories)
}
