package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-council/internal/agents"
	"github.com/rcliao/agent-council/internal/chunker"
	"github.com/rcliao/agent-council/internal/config"
	"github.com/rcliao/agent-council/internal/debate"
	"github.com/rcliao/agent-council/internal/embedding"
	"github.com/rcliao/agent-council/internal/llm"
	"github.com/rcliao/agent-council/internal/model"
	"github.com/rcliao/agent-council/internal/plan"
	"github.com/rcliao/agent-council/internal/router"
	"github.com/rcliao/agent-council/internal/store"
)

type workerFunc func(ctx context.Context, req llm.Request) (llm.Draft, error)

func (f workerFunc) Draft(ctx context.Context, req llm.Request) (llm.Draft, error) {
	return f(ctx, req)
}

type fakeWorkers map[string]llm.Worker

func (f fakeWorkers) WorkerFor(a model.AgentProfile, _ model.Binding) (llm.Worker, error) {
	w, ok := f[a.ID]
	if !ok {
		return nil, fmt.Errorf("no worker for %s", a.ID)
	}
	return w, nil
}

func fixed(d llm.Draft) llm.Worker {
	return workerFunc(func(context.Context, llm.Request) (llm.Draft, error) { return d, nil })
}

func blocking(started *sync.WaitGroup) llm.Worker {
	return workerFunc(func(ctx context.Context, _ llm.Request) (llm.Draft, error) {
		if started != nil {
			started.Done()
		}
		<-ctx.Done()
		return llm.Draft{}, ctx.Err()
	})
}

type harness struct {
	o     *Orchestrator
	mem   *store.SQLiteStore
	reg   *agents.Registry
	index *embedding.Index
}

func newHarness(t *testing.T, profiles []model.AgentProfile, workers fakeWorkers, mutate func(*config.Config)) *harness {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()
	cfg.Orchestrator.WorkerTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	mem, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "council.db"), cfg.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	reg := agents.NewRegistry(cfg.Allocation)
	for _, p := range profiles {
		require.NoError(t, reg.Register(ctx, p))
	}

	v, err := plan.NewValidator(cfg.Plan)
	require.NoError(t, err)

	index := embedding.NewIndex(embedding.NewHashEmbedder(64), chunker.DefaultOptions())
	_, err = index.Add(ctx, "kb", "Refunds are issued within five business days of an approved return.")
	require.NoError(t, err)

	o, err := New(cfg.Orchestrator, Components{
		Memory:    mem,
		Registry:  reg,
		Router:    router.New(cfg.Router),
		Validator: v,
		Debate:    debate.New(cfg.Debate),
		Workers:   workers,
		Retriever: index,
	})
	require.NoError(t, err)
	return &harness{o: o, mem: mem, reg: reg, index: index}
}

func councilAgents() []model.AgentProfile {
	return []model.AgentProfile{
		{ID: "billing", Capabilities: model.Capabilities{Keywords: []string{"refund"}}, CostHint: 1, Reliability: 0.9},
		{ID: "general", CostHint: 1, Reliability: 0.5},
	}
}

func councilWorkers() fakeWorkers {
	return fakeWorkers{
		"billing": fixed(llm.Draft{
			Answer:     "Your refund will be issued within five business days.",
			Confidence: 0.9,
			Evidence:   []string{"kb#0"},
		}),
		"general": fixed(llm.Draft{Answer: "ok", Confidence: 0.3}),
	}
}

func refundRequest(tasks ...model.Task) Request {
	if len(tasks) == 0 {
		tasks = []model.Task{{ID: "t1", Description: "Where is my refund?"}}
	}
	return Request{ID: "r1", ConversationID: "c1", UserID: "u1", Tasks: tasks}
}

func TestHandlePicksWinnerAndPersists(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, councilAgents(), councilWorkers(), nil)

	resp, err := h.o.Handle(ctx, refundRequest())
	require.NoError(t, err)
	require.Len(t, resp.Outcomes, 1)

	out := resp.Outcomes[0]
	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, "billing", out.WinnerAgent)
	assert.Equal(t, "Your refund will be issued within five business days.", out.Answer)
	assert.True(t, out.Approved)
	assert.False(t, out.Partial)
	assert.Empty(t, out.Dropped)
	assert.NotEmpty(t, out.Votes)
	assert.Contains(t, out.Evidence, "kb#0")
	assert.LessOrEqual(t, out.Confidence, 1.0)
	require.NotEmpty(t, out.MemoryID)

	rec, err := h.mem.Get(ctx, out.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, model.ScopeConversation, rec.Scope)
	assert.Equal(t, "c1", rec.ScopeID)
	assert.Equal(t, OutcomeKey(out.Answer, []string{"kb#0"}), rec.Key)
	assert.Equal(t, model.TTLSeasonal, rec.TTLClass)
	assert.Equal(t, "kb#0", rec.Provenance)

	billing, _ := h.reg.Get("billing")
	general, _ := h.reg.Get("general")
	assert.Equal(t, 1.0, billing.Reliability)
	assert.Equal(t, 1, billing.Samples)
	assert.Equal(t, 0.0, general.Reliability)
	assert.Equal(t, 1, general.Samples)
}

func TestHandleDeduplicatesOutcomes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, councilAgents(), councilWorkers(), nil)

	first, err := h.o.Handle(ctx, refundRequest())
	require.NoError(t, err)
	second, err := h.o.Handle(ctx, refundRequest())
	require.NoError(t, err)

	require.NotEmpty(t, first.Outcomes[0].MemoryID)
	assert.Equal(t, first.Outcomes[0].MemoryID, second.Outcomes[0].MemoryID)

	recs, err := h.mem.List(ctx, store.ListParams{Scope: model.ScopeConversation, ScopeID: "c1"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestHandleLinksOutcomeToMemoryContext(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, councilAgents(), councilWorkers(), nil)

	pref, err := h.mem.WriteGate(ctx, store.WriteParams{
		Scope:      model.ScopeUser,
		ScopeID:    "u1",
		Key:        "preferred_channel",
		Value:      "email",
		Confidence: 0.9,
		TTLClass:   model.TTLDurable,
	})
	require.NoError(t, err)
	require.NotNil(t, pref)

	resp, err := h.o.Handle(ctx, refundRequest())
	require.NoError(t, err)
	id := resp.Outcomes[0].MemoryID
	require.NotEmpty(t, id)

	links, err := h.mem.Links(ctx, id)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, id, links[0].FromID)
	assert.Equal(t, pref.ID, links[0].ToID)
	assert.Equal(t, "derived_from", links[0].Rel)
}

func TestHandleDropsTimedOutWorker(t *testing.T) {
	workers := councilWorkers()
	workers["general"] = blocking(nil)
	h := newHarness(t, councilAgents(), workers, func(cfg *config.Config) {
		cfg.Orchestrator.WorkerTimeout = 50 * time.Millisecond
	})

	resp, err := h.o.Handle(context.Background(), refundRequest())
	require.NoError(t, err)

	out := resp.Outcomes[0]
	assert.Equal(t, "billing", out.WinnerAgent)
	assert.Equal(t, []string{"general"}, out.Dropped)
	assert.False(t, out.Partial)

	general, _ := h.reg.Get("general")
	assert.Equal(t, 0, general.Samples)
}

func TestHandleWorkerErrorDegrades(t *testing.T) {
	workers := councilWorkers()
	workers["billing"] = workerFunc(func(context.Context, llm.Request) (llm.Draft, error) {
		return llm.Draft{}, errors.New("provider down")
	})
	h := newHarness(t, councilAgents(), workers, nil)

	resp, err := h.o.Handle(context.Background(), refundRequest())
	require.NoError(t, err)
	assert.Equal(t, "general", resp.Outcomes[0].WinnerAgent)
	assert.Equal(t, []string{"billing"}, resp.Outcomes[0].Dropped)
}

func TestHandleCancellation(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	workers := fakeWorkers{"billing": blocking(&started), "general": blocking(&started)}
	h := newHarness(t, councilAgents(), workers, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		started.Wait()
		cancel()
	}()

	resp, err := h.o.Handle(ctx, refundRequest())
	require.NoError(t, err)
	require.Len(t, resp.Outcomes, 1)

	out := resp.Outcomes[0]
	assert.True(t, out.Partial)
	assert.Empty(t, out.Answer)
	assert.Empty(t, out.MemoryID)
	assert.ElementsMatch(t, []string{"billing", "general"}, out.Dropped)
}

func TestHandleCancellationKeepsReliability(t *testing.T) {
	var started sync.WaitGroup
	started.Add(1)
	h := newHarness(t,
		[]model.AgentProfile{{ID: "solo", Reliability: 0.9, Samples: 9}},
		fakeWorkers{"solo": blocking(&started)}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		started.Wait()
		cancel()
	}()

	resp, err := h.o.Handle(ctx, refundRequest())
	require.NoError(t, err)
	require.Len(t, resp.Outcomes, 1)
	assert.True(t, resp.Outcomes[0].Partial)

	solo, ok := h.reg.Get("solo")
	require.True(t, ok)
	assert.Equal(t, 9, solo.Samples)
	assert.Equal(t, 0.9, solo.Reliability)
}

func TestHandleCancelledBeforeStart(t *testing.T) {
	h := newHarness(t, councilAgents(), councilWorkers(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := h.o.Handle(ctx, refundRequest())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, resp.Outcomes)
}

func TestHandleUnknownActionIsFatal(t *testing.T) {
	h := newHarness(t, councilAgents(), councilWorkers(), nil)

	_, err := h.o.Handle(context.Background(), refundRequest(model.Task{
		ID:          "t1",
		Description: "Where is my refund?",
		Plan:        model.Plan{{Action: "launch_rockets"}},
	}))
	require.ErrorIs(t, err, plan.ErrUnknownAction)
}

func TestHandlePlanValidation(t *testing.T) {
	h := newHarness(t, councilAgents(), councilWorkers(), nil)

	resp, err := h.o.Handle(context.Background(), refundRequest(
		model.Task{
			ID:          "ok",
			Description: "Where is my refund?",
			Plan: model.Plan{
				{Action: "draft_reply"},
				{Action: "check_confidence"},
				{Action: "send_reply"},
			},
		},
		model.Task{
			ID:          "bad",
			Description: "Where is my refund?",
			Plan:        model.Plan{{Action: "send_reply"}},
		},
	))
	require.NoError(t, err)
	require.Len(t, resp.Outcomes, 2)

	ok := resp.Outcomes[0]
	require.NotNil(t, ok.Plan)
	assert.True(t, ok.Approved)
	assert.Equal(t, -1, ok.Plan.FailingStep)
	assert.Equal(t, true, ok.Plan.Facts["sent"])

	bad := resp.Outcomes[1]
	require.NotNil(t, bad.Plan)
	assert.False(t, bad.Approved)
	assert.Equal(t, 0, bad.Plan.FailingStep)
	assert.NotEmpty(t, bad.Plan.Hint)
}

func TestHandleFallsBackToDefaultAgent(t *testing.T) {
	cfg := config.Default()
	workers := fakeWorkers{
		cfg.Allocation.DefaultAgent.ID: llm.NewModelWorker(llm.EchoGenerator{Confidence: 0.6}, cfg.LLM),
	}
	h := newHarness(t, nil, workers, nil)

	resp, err := h.o.Handle(context.Background(), refundRequest())
	require.NoError(t, err)

	out := resp.Outcomes[0]
	assert.Equal(t, cfg.Allocation.DefaultAgent.ID, out.WinnerAgent)
	assert.Equal(t, "Where is my refund?", out.Answer)
	assert.Empty(t, h.reg.List())
}

func TestHandlePassesPriorOutcomes(t *testing.T) {
	var mu sync.Mutex
	prompts := map[string]string{}
	worker := workerFunc(func(_ context.Context, req llm.Request) (llm.Draft, error) {
		mu.Lock()
		prompts[req.TaskID] = req.Prompt
		mu.Unlock()
		return llm.Draft{Answer: "answer for " + req.TaskID, Confidence: 0.8}, nil
	})
	h := newHarness(t, []model.AgentProfile{{ID: "solo", Reliability: 0.7}}, fakeWorkers{"solo": worker}, nil)

	resp, err := h.o.Handle(context.Background(), refundRequest(
		model.Task{ID: "lookup", Description: "Find the order"},
		model.Task{ID: "reply", Description: "Write the reply", DependsOn: []string{"lookup"}},
	))
	require.NoError(t, err)
	require.Len(t, resp.Outcomes, 2)
	assert.Equal(t, "answer for reply", resp.Outcomes[1].Answer)

	assert.NotContains(t, prompts["lookup"], "Prior results:")
	assert.True(t, strings.Contains(prompts["reply"], "- lookup: answer for lookup"))

	solo, _ := h.reg.Get("solo")
	assert.Equal(t, 2, solo.Samples)
	assert.Equal(t, 1.0, solo.Reliability)
}

func TestHandleDependencyCycle(t *testing.T) {
	h := newHarness(t, councilAgents(), councilWorkers(), nil)

	_, err := h.o.Handle(context.Background(), refundRequest(
		model.Task{ID: "a", Description: "a", DependsOn: []string{"b"}},
		model.Task{ID: "b", Description: "b", DependsOn: []string{"a"}},
	))
	require.ErrorIs(t, err, ErrDependencyCycle)
}

func TestOutcomeKey(t *testing.T) {
	a := OutcomeKey("answer", []string{"b", "a", "a"})
	b := OutcomeKey("answer", []string{"a", "b"})
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "outcome:"))
	assert.Len(t, a, len("outcome:")+16)
	assert.NotEqual(t, a, OutcomeKey("answer", []string{"a"}))
	assert.NotEqual(t, a, OutcomeKey("other", []string{"a", "b"}))
}

func TestNewRequiresComponents(t *testing.T) {
	_, err := New(config.Default().Orchestrator, Components{})
	assert.Error(t, err)
}
