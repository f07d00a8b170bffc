package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-council/internal/model"
	"github.com/rcliao/agent-council/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search facts by keyword",
		Long:  "Search active fact keys and values for matching text.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().StringP("scope", "s", "", "Filter by scope")
	cmd.Flags().StringP("scope-id", "i", "", "Filter by scope instance ID")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	scopeID, _ := cmd.Flags().GetString("scope-id")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	_, _, s := mustOpen()
	defer s.Close()

	results, err := s.Search(cmd.Context(), store.SearchParams{
		Scope:   model.Scope(scope),
		ScopeID: scopeID,
		Query:   query,
		Limit:   limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	if len(results) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(results)
}
