package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Archive aged low-importance memories",
		Long: "Select long-term memories older than the forgetting age, least important first. " +
			"Runs as a dry run unless --commit is given.",
		Run: runReclaim,
	}

	cmd.Flags().Int("days", 0, "Minimum age in days (default: long_term.forgetting_days)")
	cmd.Flags().IntP("limit", "l", 0, "Max candidates (default: long_term.reclaim_batch)")
	cmd.Flags().Bool("commit", false, "Delete the candidates instead of listing them")

	RootCmd.AddCommand(cmd)
}

func runReclaim(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")
	limit, _ := cmd.Flags().GetInt("limit")
	commit, _ := cmd.Flags().GetBool("commit")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	opts := reclaimOptions(a.cfg)
	opts.DryRun = !commit
	if days > 0 {
		opts.OlderThan = time.Duration(days) * 24 * time.Hour
	}
	if limit > 0 {
		opts.Limit = limit
	}

	res, err := a.engine.Reclaim(cmd.Context(), opts)
	printJSON(res)
	if err != nil {
		// The partial result above tells the caller what to retry.
		a.Close()
		os.Exit(1)
	}
}
