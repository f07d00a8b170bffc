package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-council/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "allocate [task description]",
		Short: "Pick the top-k agents for a task",
		Long:  "Run the allocation auction for a task. An empty registry falls back to the configured default agent.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAllocate,
	}

	cmd.Flags().Int("k", 0, "Number of agents (default: orchestrator.top_k)")
	cmd.Flags().String("action-type", "", "Task action type")

	RootCmd.AddCommand(cmd)
}

func runAllocate(cmd *cobra.Command, args []string) {
	k, _ := cmd.Flags().GetInt("k")
	actionType, _ := cmd.Flags().GetString("action-type")

	e := openEngine(cmd.Context())
	defer e.Close()

	if k <= 0 {
		k = e.cfg.Orchestrator.TopK
	}
	task := model.Task{ID: "cli", Description: strings.Join(args, " "), ActionType: actionType}
	printJSON(e.registry.Allocate(task, k))
}
