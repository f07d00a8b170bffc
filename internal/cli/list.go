package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-council/internal/model"
	"github.com/rcliao/agent-council/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List facts, newest first",
		Run:   runList,
	}

	cmd.Flags().StringP("scope", "s", "", "Filter by scope")
	cmd.Flags().StringP("scope-id", "i", "", "Filter by scope instance ID")
	cmd.Flags().String("ttl", "", "Filter by TTL class")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("keys-only", false, "Only output scope/scope_id/key triples")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	scopeID, _ := cmd.Flags().GetString("scope-id")
	ttl, _ := cmd.Flags().GetString("ttl")
	limit, _ := cmd.Flags().GetInt("limit")
	keysOnly, _ := cmd.Flags().GetBool("keys-only")

	_, _, s := mustOpen()
	defer s.Close()

	records, err := s.List(cmd.Context(), store.ListParams{
		Scope:    model.Scope(scope),
		ScopeID:  scopeID,
		TTLClass: model.TTLClass(ttl),
		Limit:    limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	if keysOnly {
		for _, r := range records {
			fmt.Printf("%s/%s/%s\n", r.Scope, r.ScopeID, r.Key)
		}
		return
	}
	if records == nil {
		records = []model.Record{}
	}
	printJSON(records)
}
