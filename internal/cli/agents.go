package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/agent-council/internal/agents"
	"github.com/rcliao/agent-council/internal/model"
)

func init() {
	agentsCmd := &cobra.Command{
		Use:   "agents",
		Short: "Agent registry management",
	}

	addCmd := &cobra.Command{
		Use:   "add [file]",
		Short: "Register agent profiles from a YAML or JSON file (- for stdin)",
		Long:  "Register one agent profile or a list of profiles. Existing IDs are replaced.",
		Args:  cobra.ExactArgs(1),
		Run:   runAgentsAdd,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		Run:   runAgentsList,
	}

	scoreCmd := &cobra.Command{
		Use:   "score [task description]",
		Short: "Show every agent's bid for a task",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAgentsScore,
	}
	scoreCmd.Flags().String("action-type", "", "Task action type")

	agentsCmd.AddCommand(addCmd, listCmd, scoreCmd)
	RootCmd.AddCommand(agentsCmd)
}

// decodeAgents accepts a single profile or a list of profiles.
func decodeAgents(data []byte) ([]model.AgentProfile, error) {
	var list []model.AgentProfile
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var one model.AgentProfile
	if err := yaml.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []model.AgentProfile{one}, nil
}

func runAgentsAdd(cmd *cobra.Command, args []string) {
	data, err := readFile(args[0])
	if err != nil {
		exitErr("agents add", err)
	}
	profiles, err := decodeAgents(data)
	if err != nil {
		exitErr("parse agents", err)
	}

	e := openEngine(cmd.Context())
	defer e.Close()

	for _, p := range profiles {
		if err := e.registry.Register(cmd.Context(), p); err != nil {
			exitErr("register agent", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"registered":%d}`+"\n", len(profiles))
}

func runAgentsList(cmd *cobra.Command, args []string) {
	e := openEngine(cmd.Context())
	defer e.Close()

	printJSON(e.registry.List())
}

func runAgentsScore(cmd *cobra.Command, args []string) {
	actionType, _ := cmd.Flags().GetString("action-type")
	task := model.Task{ID: "cli", Description: strings.Join(args, " "), ActionType: actionType}

	e := openEngine(cmd.Context())
	defer e.Close()

	printJSON(agents.TopKForTask(e.registry.List(), task, 0, e.cfg.Allocation))
}
