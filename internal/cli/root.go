// Package cli implements the hybrid-memory CLI commands.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/config"
)

var (
	configPath string
	dbPath     string
	indexDir   string
	logLevel   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "hybrid-memory",
	Short: "Hybrid lexical and vector memory for conversational agents",
	Long: "Buffers conversation turns per session, distills them into long-term memories, " +
		"and retrieves them with BM25 and vector search fused together. SQLite-backed, single binary.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is normal; anything else is worth reporting.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
		}
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (yaml or json; default: ./hybrid-memory.yaml or ~/.hybrid-memory/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $HYBRID_MEMORY_HOME/memory.db)")
	RootCmd.PersistentFlags().StringVar(&indexDir, "index-dir", "", "Vector index directory")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// loadConfig layers flag overrides on top of defaults, config file and environment.
func loadConfig() (*config.Config, error) {
	overrides := map[string]interface{}{}
	if dbPath != "" {
		overrides["storage.db_path"] = dbPath
	}
	if indexDir != "" {
		overrides["storage.index_dir"] = indexDir
	}
	if logLevel != "" {
		overrides["log.level"] = logLevel
	}
	return config.NewLoader().Load(configPath, overrides)
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
