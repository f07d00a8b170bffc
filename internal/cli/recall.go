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
		Use:   "recall",
		Short: "Retrieve facts ordered by decayed relevance",
		Long:  "Retrieve active facts of one scope ordered by relevance. Retrieved facts are marked used. With --id, fetch a single record.",
		Run:   runRecall,
	}

	cmd.Flags().StringP("scope", "s", "conversation", "Scope: conversation, user, account")
	cmd.Flags().StringP("scope-id", "i", "", "Scope instance ID")
	cmd.Flags().StringP("key", "k", "", "Only this key")
	cmd.Flags().IntP("limit", "l", 0, "Max results (default: memory.default_limit)")
	cmd.Flags().String("id", "", "Fetch one record by ID")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	scopeID, _ := cmd.Flags().GetString("scope-id")
	key, _ := cmd.Flags().GetString("key")
	limit, _ := cmd.Flags().GetInt("limit")
	id, _ := cmd.Flags().GetString("id")

	if id == "" && strings.TrimSpace(scopeID) == "" {
		exitErr("recall", fmt.Errorf("scope-id is required unless --id is given"))
	}

	_, _, s := mustOpen()
	defer s.Close()

	if id != "" {
		rec, err := s.Get(cmd.Context(), id)
		if err != nil {
			exitErr("recall", err)
		}
		printJSON(rec)
		return
	}

	records, err := s.Retrieve(cmd.Context(), store.RetrieveParams{
		Scope:   model.Scope(scope),
		ScopeID: scopeID,
		Key:     key,
		Limit:   limit,
	})
	if err != nil {
		exitErr("recall", err)
	}
	if records == nil {
		records = []model.Record{}
	}
	printJSON(records)
}
