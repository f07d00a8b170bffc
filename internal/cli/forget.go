package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-council/internal/model"
	"github.com/rcliao/agent-council/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "forget",
		Short: "Delete a fact",
		Run:   runForget,
	}

	cmd.Flags().StringP("scope", "s", "conversation", "Scope: conversation, user, account")
	cmd.Flags().StringP("scope-id", "i", "", "Scope instance ID (required)")
	cmd.Flags().StringP("key", "k", "", "Key (required)")
	cmd.Flags().Bool("hard", false, "Permanent delete (irreversible)")

	cmd.MarkFlagRequired("scope-id")
	cmd.MarkFlagRequired("key")

	RootCmd.AddCommand(cmd)
}

func runForget(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	scopeID, _ := cmd.Flags().GetString("scope-id")
	key, _ := cmd.Flags().GetString("key")
	hard, _ := cmd.Flags().GetBool("hard")

	_, _, s := mustOpen()
	defer s.Close()

	err := s.Forget(cmd.Context(), store.ForgetParams{
		Scope:   model.Scope(scope),
		ScopeID: scopeID,
		Key:     key,
		Hard:    hard,
	})
	if err != nil {
		exitErr("forget", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"scope":%q,"scope_id":%q,"key":%q}`+"\n", scope, scopeID, key)
}
