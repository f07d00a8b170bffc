package store

import (
	"context"
	"testing"

	"github.com/rcliao/agent-council/internal/model"
)

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)

	write(t, src, fact("a", "alpha", 0.9))
	write(t, src, WriteParams{
		Scope: model.ScopeUser, ScopeID: "u1", Key: "b",
		Value: map[string]any{"n": 1.0}, Confidence: 0.7, TTLClass: model.TTLLegal, Provenance: "doc-1",
	})

	exported, err := src.ExportAll(ctx, "")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(exported) != 2 {
		t.Fatalf("expected 2 exported, got %d", len(exported))
	}

	// Low-confidence rows are still filtered on the way in.
	exported = append(exported, model.Record{
		Scope: model.ScopeUser, ScopeID: "u1", Key: "weak",
		Value: "x", Confidence: 0.1, TTLClass: model.TTLDurable,
	})

	dst := newTestStore(t)
	n, err := dst.Import(ctx, exported)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 imported, got %d", n)
	}

	users, _ := dst.ExportAll(ctx, model.ScopeUser)
	if len(users) != 1 || users[0].Provenance != "doc-1" || users[0].ExpiresAt != nil {
		t.Errorf("unexpected imported user records %+v", users)
	}
}

func TestScopesAndStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	write(t, s, fact("a", "x", 0.9))
	write(t, s, fact("b", "y", 0.9))
	write(t, s, WriteParams{
		Scope: model.ScopeUser, ScopeID: "u1", Key: "c",
		Value: "z", Confidence: 0.9, TTLClass: model.TTLDurable,
	})

	scopes, err := s.Scopes(ctx)
	if err != nil {
		t.Fatalf("scopes: %v", err)
	}
	if len(scopes) != 2 {
		t.Fatalf("expected 2 scopes, got %d", len(scopes))
	}
	if scopes[0].Scope != model.ScopeConversation || scopes[0].Count != 2 {
		t.Errorf("expected conversation/c1 first with 2, got %+v", scopes[0])
	}

	st, err := s.Stats(ctx, "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalRecords != 3 || st.ActiveRecords != 3 || st.Expired != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestSaveAndLoadAgents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	agent := model.AgentProfile{
		ID:           "billing",
		Name:         "Billing",
		Capabilities: model.Capabilities{Keywords: []string{"invoice"}},
		CostHint:     2,
		Reliability:  0.5,
		Binding:      &model.Binding{Provider: "openai", Model: "gpt-4o-mini"},
	}
	if err := s.SaveAgent(ctx, agent); err != nil {
		t.Fatalf("save: %v", err)
	}

	agent.Reliability = 0.67
	agent.Samples = 2
	if err := s.SaveAgent(ctx, agent); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.LoadAgents(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(got))
	}
	if got[0].Reliability != 0.67 || got[0].Samples != 2 {
		t.Errorf("expected updated reliability, got %+v", got[0])
	}
	if got[0].Binding == nil || got[0].Binding.Model != "gpt-4o-mini" {
		t.Errorf("binding lost: %+v", got[0].Binding)
	}
}
