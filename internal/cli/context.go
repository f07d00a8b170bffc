package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/agent-council/internal/model"
	"github.com/rcliao/agent-council/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Assemble relevant facts for a prompt",
		Long:  "Retrieve facts across conversation, user and account scopes, then greedily pack them into a token budget.",
		Run:   runContext,
	}

	cmd.Flags().String("conversation", "", "Conversation ID")
	cmd.Flags().String("user", "", "User ID")
	cmd.Flags().String("account", "", "Account ID")
	cmd.Flags().StringP("key", "k", "", "Only this key")
	cmd.Flags().IntP("budget", "b", 4000, "Max tokens in output")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	conversation, _ := cmd.Flags().GetString("conversation")
	user, _ := cmd.Flags().GetString("user")
	account, _ := cmd.Flags().GetString("account")
	key, _ := cmd.Flags().GetString("key")
	budget, _ := cmd.Flags().GetInt("budget")

	_, _, s := mustOpen()
	defer s.Close()

	result, err := s.Context(cmd.Context(), store.ContextParams{
		Scopes: []model.ScopeRef{
			{Scope: model.ScopeConversation, ScopeID: conversation},
			{Scope: model.ScopeUser, ScopeID: user},
			{Scope: model.ScopeAccount, ScopeID: account},
		},
		Key:    key,
		Budget: budget,
	})
	if err != nil {
		exitErr("context", err)
	}
	printJSON(result)
}
