package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rcliao/agent-council/internal/config"
	"github.com/rcliao/agent-council/internal/model"
)

func weights() config.AllocationConfig {
	return config.Default().Allocation
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" Billing", "billing", "", "  ", "Refunds"})
	assert.Equal(t, []string{"billing", "refunds"}, got)
}

func TestCapabilityMatch(t *testing.T) {
	caps := model.Capabilities{
		Keywords:  []string{"Invoice", "refund"},
		Domains:   []string{"billing"},
		Languages: []string{"de"},
	}
	task := model.Task{Description: "Customer asks for a REFUND on invoice 42", ActionType: "billing"}

	// invoice, refund, billing match; "de" is absent from the text.
	assert.InDelta(t, 0.75, CapabilityMatch(caps, task), 1e-9)
	assert.Equal(t, 0.0, CapabilityMatch(model.Capabilities{}, task))
}

func TestCostNorm(t *testing.T) {
	assert.Equal(t, 1.0, CostNorm(0.5, 1))
	assert.Equal(t, 0.25, CostNorm(4, 1))
	assert.Equal(t, 1.0, CostNorm(0, 1))
	assert.Equal(t, 1.0, CostNorm(-3, 2))
}

func TestScoreBidDeterministic(t *testing.T) {
	a := model.AgentProfile{
		ID:           "a",
		Capabilities: model.Capabilities{Keywords: []string{"refund"}},
		CostHint:     2,
		Reliability:  0.5,
	}
	task := model.Task{Description: "refund request"}

	got := ScoreBid(a, task, weights())
	// 0.6×1 + 0.2×0.5 + 0.2×0.5
	assert.InDelta(t, 0.8, got, 1e-9)
	assert.Equal(t, got, ScoreBid(a, task, weights()))
}

func TestTopKPrefersCapabilityWhenDominant(t *testing.T) {
	expert := model.AgentProfile{
		ID:           "expert",
		Capabilities: model.Capabilities{Keywords: []string{"tax", "vat"}, Domains: []string{"accounting"}},
		CostHint:     10,
		Reliability:  0.5,
	}
	cheap := model.AgentProfile{
		ID:           "cheap",
		Capabilities: model.Capabilities{Keywords: []string{"greeting"}},
		CostHint:     0.5,
		Reliability:  0.5,
	}
	task := model.Task{Description: "Explain the VAT treatment for accounting", ActionType: "tax"}

	for _, pool := range [][]model.AgentProfile{{expert, cheap}, {cheap, expert}} {
		bids := TopKForTask(pool, task, 2, weights())
		require.Len(t, bids, 2)
		assert.Equal(t, "expert", bids[0].Agent.ID)
		assert.Equal(t, 1.0, bids[0].Match)
	}
}

func TestTopKStableAndTruncated(t *testing.T) {
	pool := []model.AgentProfile{
		{ID: "x", CostHint: 1, Reliability: 0.5},
		{ID: "y", CostHint: 1, Reliability: 0.5},
		{ID: "z", CostHint: 1, Reliability: 0.9},
	}
	task := model.Task{Description: "anything"}

	bids := TopKForTask(pool, task, 2, weights())
	require.Len(t, bids, 2)
	assert.Equal(t, "z", bids[0].Agent.ID)
	assert.Equal(t, "x", bids[1].Agent.ID, "equal utilities keep input order")

	assert.Len(t, TopKForTask(pool, task, 0, weights()), 3)
	assert.Empty(t, TopKForTask(nil, task, 3, weights()))
}

func TestAllocateFallsBackToDefault(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewRegistry(weights(), WithLogger(zap.New(core)))

	bids := r.Allocate(model.Task{ID: "t1", Description: "hello"}, 3)
	require.Len(t, bids, 1)
	assert.Equal(t, "generalist", bids[0].Agent.ID)

	entries := logs.FilterMessage("no agent bid on task, using default agent").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "t1", entries[0].ContextMap()["task"])

	require.NoError(t, r.Register(context.Background(), model.AgentProfile{ID: "a", CostHint: 1}))
	bids = r.Allocate(model.Task{ID: "t2", Description: "hello"}, 3)
	require.Len(t, bids, 1)
	assert.Equal(t, "a", bids[0].Agent.ID)
}

func TestRegisterAndList(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(weights())

	require.NoError(t, r.Register(ctx, model.AgentProfile{ID: "b", Reliability: 1.7}))
	require.NoError(t, r.Register(ctx, model.AgentProfile{ID: "a"}))
	require.NoError(t, r.Register(ctx, model.AgentProfile{ID: "b", Name: "Bee"}))
	assert.Error(t, r.Register(ctx, model.AgentProfile{ID: "  "}))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "Bee", list[0].Name)
	assert.Equal(t, "a", list[1].ID)

	got, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "a", got.ID)
	_, ok = r.Get("nope")
	assert.False(t, ok)
}

func TestUpdateReliabilityRoundTrip(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		r    float64
		n    int
		want float64
	}{
		{0.5, 0, 1.0},
		{0.5, 1, 0.75},
		{0.5, 2, 0.67},
		{0.2, 4, 0.36},
		{1.0, 10, 1.0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("r=%v,n=%d", tt.r, tt.n), func(t *testing.T) {
			reg := NewRegistry(weights())
			require.NoError(t, reg.Register(ctx, model.AgentProfile{ID: "a", Reliability: tt.r, Samples: tt.n}))

			got, err := reg.UpdateReliability(ctx, "a", 1.0)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got.Reliability, 1e-9)
			assert.Equal(t, tt.n+1, got.Samples)
		})
	}
}

func TestUpdateReliabilityLoss(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(weights())
	require.NoError(t, reg.Register(ctx, model.AgentProfile{ID: "a", Reliability: 0.8, Samples: 3}))

	got, err := reg.UpdateReliability(ctx, "a", 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got.Reliability, 1e-9)
}

func TestUpdateReliabilityUnknown(t *testing.T) {
	_, err := NewRegistry(weights()).UpdateReliability(context.Background(), "ghost", 1)
	assert.True(t, errors.Is(err, ErrUnknownAgent))
}

func TestUpdateReliabilitySerialized(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(weights())
	require.NoError(t, reg.Register(ctx, model.AgentProfile{ID: "a", Reliability: 0.5}))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.UpdateReliability(ctx, "a", float64(i%2))
		}(i)
	}
	wg.Wait()

	got, _ := reg.Get("a")
	assert.Equal(t, n, got.Samples)
	assert.GreaterOrEqual(t, got.Reliability, 0.0)
	assert.LessOrEqual(t, got.Reliability, 1.0)
}

type memPersister struct {
	mu    sync.Mutex
	saved map[string]model.AgentProfile
}

func (p *memPersister) SaveAgent(_ context.Context, a model.AgentProfile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saved == nil {
		p.saved = map[string]model.AgentProfile{}
	}
	p.saved[a.ID] = a
	return nil
}

func (p *memPersister) LoadAgents(context.Context) ([]model.AgentProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.AgentProfile
	for _, a := range p.saved {
		out = append(out, a)
	}
	return out, nil
}

func TestPersisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}

	reg := NewRegistry(weights(), WithPersister(p))
	require.NoError(t, reg.Register(ctx, model.AgentProfile{ID: "a", Reliability: 0.5}))
	_, err := reg.UpdateReliability(ctx, "a", 1)
	require.NoError(t, err)

	reloaded := NewRegistry(weights(), WithPersister(p))
	require.NoError(t, reloaded.Load(ctx))
	got, ok := reloaded.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1.0, got.Reliability)
	assert.Equal(t, 1, got.Samples)
}
