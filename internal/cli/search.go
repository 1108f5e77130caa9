package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/memory"
	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search long-term memories",
		Long:  "Rank long-term memories by BM25 and vector similarity fused together. Falls back to BM25 alone without embeddings.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().StringP("session", "s", "", "Filter by session")
	cmd.Flags().IntP("limit", "l", 0, "Max results (default: long_term.top_k)")
	cmd.Flags().Bool("like", false, "Substring match in the database instead of the indexes")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	limit, _ := cmd.Flags().GetInt("limit")
	like, _ := cmd.Flags().GetBool("like")
	query := strings.Join(args, " ")

	if like {
		cfg, err := loadConfig()
		if err != nil {
			exitErr("config", err)
		}
		st, err := store.NewSQLiteStore(cfg.Storage.DBPath)
		if err != nil {
			exitErr("open", err)
		}
		defer st.Close()
		if limit <= 0 {
			limit = cfg.LongTerm.TopK
		}
		results, err := st.SearchLongTermLike(cmd.Context(), query, limit)
		if err != nil {
			exitErr("search", err)
		}
		printResults(results)
		return
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	results, err := a.engine.Search(cmd.Context(), query, memory.SearchOptions{K: limit, SessionID: session})
	if err != nil {
		exitErr("search", err)
	}

	printResults(results)
}

func printResults(results []model.LongTermMemory) {
	if len(results) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(results)
}
