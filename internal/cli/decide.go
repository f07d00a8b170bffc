package cli

import (
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rcliao/agent-council/internal/metrics"
	"github.com/rcliao/agent-council/internal/orchestrator"
)

func init() {
	cmd := &cobra.Command{
		Use:   "decide [request file]",
		Short: "Run a request through the decision engine",
		Long: "Read a request (id, conversation_id, user_id, account_id, tasks) from a YAML or " +
			"JSON file (- for stdin), run allocation, routing, drafting, plan validation and " +
			"debate for every task, persist the outcomes and print the response.",
		Args: cobra.ExactArgs(1),
		Run:  runDecide,
	}

	cmd.Flags().StringSliceP("evidence", "e", nil, "Evidence files to index for grounding")
	cmd.Flags().Bool("metrics", false, "Print engine metrics to stderr afterwards")

	RootCmd.AddCommand(cmd)
}

func runDecide(cmd *cobra.Command, args []string) {
	evidence, _ := cmd.Flags().GetStringSlice("evidence")
	showMetrics, _ := cmd.Flags().GetBool("metrics")

	var req orchestrator.Request
	if err := readDocument(args[0], &req); err != nil {
		exitErr("decide", err)
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	e := openEngine(cmd.Context())
	defer e.Close()

	index, err := e.buildIndex(cmd.Context(), evidence)
	if err != nil {
		exitErr("index evidence", err)
	}
	var retriever orchestrator.Retriever
	if index != nil {
		retriever = index
	}

	resp, err := e.orchestrator(retriever).Handle(cmd.Context(), req)
	if err != nil {
		if resp != nil && len(resp.Outcomes) > 0 {
			printJSON(resp)
		}
		exitErr("decide", err)
	}
	printJSON(resp)

	if showMetrics {
		if err := metrics.WriteText(os.Stderr); err != nil {
			exitErr("write metrics", err)
		}
	}
}
