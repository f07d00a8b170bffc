package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/agent-council/internal/embedding"
	"github.com/rcliao/agent-council/internal/router"
)

func init() {
	cmd := &cobra.Command{
		Use:   "route [text]",
		Short: "Choose a model tier for an input",
		Long: "Estimate the input's size, search the evidence files for it and pick " +
			"CLASSIFY, GROUNDED or SYNTH with the bound provider and model.",
		Run: runRoute,
	}

	cmd.Flags().StringSliceP("evidence", "e", nil, "Evidence files to index")
	cmd.Flags().Int("tokens", 0, "Override the estimated token count")
	cmd.Flags().Int("evidence-k", 0, "Passages to retrieve (default: orchestrator.evidence_k)")

	RootCmd.AddCommand(cmd)
}

func runRoute(cmd *cobra.Command, args []string) {
	evidence, _ := cmd.Flags().GetStringSlice("evidence")
	tokens, _ := cmd.Flags().GetInt("tokens")
	k, _ := cmd.Flags().GetInt("evidence-k")

	text, err := readInput(args)
	if err != nil {
		exitErr("read stdin", err)
	}

	e := openEngine(cmd.Context())
	defer e.Close()

	if tokens <= 0 {
		tokens = router.EstimateTokens(text)
	}
	if k <= 0 {
		k = e.cfg.Orchestrator.EvidenceK
	}

	index, err := e.buildIndex(cmd.Context(), evidence)
	if err != nil {
		exitErr("index evidence", err)
	}
	var hits []embedding.Hit
	if index != nil {
		hits, err = index.Search(cmd.Context(), text, k)
		if err != nil {
			exitErr("search evidence", err)
		}
	}

	printJSON(e.router.Route(tokens, embedding.Stats(hits, e.router.SimilarityFloor())))
}
