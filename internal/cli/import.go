package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-council/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import facts from JSON",
		Long: "Import facts from JSON on stdin, in the format produced by export. " +
			"Every fact passes through the write-gate again.",
		Run: runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var records []model.Record
	if err := json.Unmarshal(data, &records); err != nil {
		exitErr("parse json", err)
	}

	_, _, s := mustOpen()
	defer s.Close()

	imported, err := s.Import(cmd.Context(), records)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Printf(`{"ok":true,"imported":%d,"rejected":%d}`+"\n", imported, len(records)-imported)
}
