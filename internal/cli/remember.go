package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-council/internal/model"
	"github.com/rcliao/agent-council/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [value]",
		Short: "Propose a fact to the memory write-gate",
		Long: "Propose a fact. The write-gate redacts PII, drops low-confidence facts and " +
			"merges repeated keys. Value can be a positional arg or piped via stdin.",
		Run: runRemember,
	}

	cmd.Flags().StringP("scope", "s", "conversation", "Scope: conversation, user, account")
	cmd.Flags().StringP("scope-id", "i", "", "Scope instance ID (required)")
	cmd.Flags().StringP("key", "k", "", "Key (required)")
	cmd.Flags().Float64("confidence", 0.8, "Confidence in [0,1]")
	cmd.Flags().String("ttl", "seasonal", "TTL class: volatile, seasonal, durable, legal")
	cmd.Flags().String("provenance", "", "Comma-separated provenance refs")
	cmd.Flags().Bool("json", false, "Parse the value as JSON")

	cmd.MarkFlagRequired("scope-id")
	cmd.MarkFlagRequired("key")

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	scopeID, _ := cmd.Flags().GetString("scope-id")
	key, _ := cmd.Flags().GetString("key")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	ttl, _ := cmd.Flags().GetString("ttl")
	provenance, _ := cmd.Flags().GetString("provenance")
	asJSON, _ := cmd.Flags().GetBool("json")

	content, err := readInput(args)
	if err != nil {
		exitErr("read stdin", err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		exitErr("remember", fmt.Errorf("value is required (positional arg or stdin)"))
	}

	var value any = content
	if asJSON {
		if err := json.Unmarshal([]byte(content), &value); err != nil {
			exitErr("parse value", err)
		}
	}

	_, _, s := mustOpen()
	defer s.Close()

	rec, err := s.WriteGate(cmd.Context(), store.WriteParams{
		Scope:      model.Scope(scope),
		ScopeID:    scopeID,
		Key:        key,
		Value:      value,
		Confidence: confidence,
		TTLClass:   model.TTLClass(ttl),
		Provenance: provenance,
	})
	if err != nil {
		exitErr("remember", err)
	}
	if rec == nil {
		fmt.Fprintf(cmd.OutOrStdout(), `{"ok":false,"rejected":true,"key":%q}`+"\n", key)
		return
	}
	printJSON(rec)
}
