package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import long-term memories from JSON",
		Long:  "Import memories from stdin in the format produced by export, then rebuild the indexes.",
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var records []store.ExportRecord
	if err := json.Unmarshal(data, &records); err != nil {
		exitErr("parse json", err)
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	imported, err := a.store.Import(cmd.Context(), records)
	if err != nil {
		exitErr(fmt.Sprintf("import (%d of %d written)", len(imported), len(records)), err)
	}

	// Rows went straight to the store; bring the indexes up to date.
	if _, err := a.engine.Rebuild(cmd.Context(), false); err != nil {
		exitErr("rebuild", err)
	}
	fmt.Printf(`{"ok":true,"imported":%d}`+"\n", len(imported))
}
