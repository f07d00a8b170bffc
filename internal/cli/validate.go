package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-council/internal/model"
	"github.com/rcliao/agent-council/internal/plan"
)

type planDocument struct {
	Plan  model.Plan  `yaml:"plan"`
	Facts model.Facts `yaml:"facts"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "validate [plan file]",
		Short: "Check a plan against the action schema",
		Long: "Walk a plan's steps against the configured action schema and print the report. " +
			"The file holds `plan` (steps) and `facts` (initial state). Exits 2 when the plan is invalid.",
		Args: cobra.ExactArgs(1),
		Run:  runValidate,
	}

	cmd.Flags().Bool("actions", false, "List the schema's actions instead")

	RootCmd.AddCommand(cmd)
}

func runValidate(cmd *cobra.Command, args []string) {
	listActions, _ := cmd.Flags().GetBool("actions")

	cfg := loadConfig()
	v, err := plan.NewValidator(cfg.Plan, plan.WithLogger(newLogger(cfg)))
	if err != nil {
		exitErr("compile plan schema", err)
	}

	if listActions {
		printJSON(v.Actions())
		return
	}

	var doc planDocument
	if err := readDocument(args[0], &doc); err != nil {
		exitErr("validate", err)
	}
	if doc.Facts == nil {
		doc.Facts = model.Facts{}
	}

	report, err := v.Validate(doc.Plan, doc.Facts)
	if err != nil {
		exitErr("validate", err)
	}
	printJSON(report)
	if !report.Valid {
		os.Exit(2)
	}
}
