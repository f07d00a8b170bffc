package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/agent-council/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export facts as JSON",
		Long:  "Export every non-deleted fact as a JSON array. Filter by scope with -s.",
		Run:   runExport,
	}

	cmd.Flags().StringP("scope", "s", "", "Filter by scope")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")

	_, _, s := mustOpen()
	defer s.Close()

	records, err := s.ExportAll(cmd.Context(), model.Scope(scope))
	if err != nil {
		exitErr("export", err)
	}
	if records == nil {
		records = []model.Record{}
	}
	printJSON(records)
}
