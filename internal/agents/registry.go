// Package agents keeps the agent registry and runs the allocation auction.
package agents

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rcliao/agent-council/internal/config"
	"github.com/rcliao/agent-council/internal/keylock"
	"github.com/rcliao/agent-council/internal/logging"
	"github.com/rcliao/agent-council/internal/metrics"
	"github.com/rcliao/agent-council/internal/model"
)

// ErrUnknownAgent is returned for operations on an unregistered agent ID.
var ErrUnknownAgent = errors.New("unknown agent")

// Persister stores agent profiles across restarts.
type Persister interface {
	SaveAgent(ctx context.Context, a model.AgentProfile) error
	LoadAgents(ctx context.Context) ([]model.AgentProfile, error)
}

// Registry holds agent profiles in registration order.
type Registry struct {
	cfg       config.AllocationConfig
	persister Persister
	logger    *zap.Logger
	keys      keylock.Map

	mu     sync.RWMutex
	agents map[string]model.AgentProfile
	order  []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithPersister saves profiles on register and reliability updates.
func WithPersister(p Persister) Option {
	return func(r *Registry) { r.persister = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = logging.OrNop(l).Named("agents") }
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg config.AllocationConfig, opts ...Option) *Registry {
	r := &Registry{
		cfg:    cfg,
		logger: zap.NewNop(),
		agents: make(map[string]model.AgentProfile),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load registers every profile from the persister without re-saving them.
func (r *Registry) Load(ctx context.Context) error {
	if r.persister == nil {
		return nil
	}
	profiles, err := r.persister.LoadAgents(ctx)
	if err != nil {
		return fmt.Errorf("load agents: %w", err)
	}
	for _, p := range profiles {
		if err := r.put(p); err != nil {
			return err
		}
	}
	r.logger.Debug("agents loaded", zap.Int("count", len(profiles)))
	return nil
}

// Register adds or replaces an agent profile.
func (r *Registry) Register(ctx context.Context, a model.AgentProfile) error {
	if err := r.put(a); err != nil {
		return err
	}
	if r.persister != nil {
		stored, _ := r.Get(a.ID)
		if err := r.persister.SaveAgent(ctx, stored); err != nil {
			return fmt.Errorf("persist agent %s: %w", a.ID, err)
		}
	}
	return nil
}

func (r *Registry) put(a model.AgentProfile) error {
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		return fmt.Errorf("agent id is required")
	}
	a.Reliability = clamp01(a.Reliability)
	if a.Samples < 0 {
		a.Samples = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[a.ID]; !ok {
		r.order = append(r.order, a.ID)
	}
	r.agents[a.ID] = a
	return nil
}

// Get returns a profile by ID.
func (r *Registry) Get(id string) (model.AgentProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// List returns all profiles in registration order.
func (r *Registry) List() []model.AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.AgentProfile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}

// Allocate returns the top k bids for a task. An empty registry yields the
// configured default agent.
func (r *Registry) Allocate(task model.Task, k int) []Bid {
	bids := TopKForTask(r.List(), task, k, r.cfg)
	if len(bids) > 0 {
		return bids
	}

	metrics.AllocationFallbacks.Inc()
	r.logger.Warn("no agent bid on task, using default agent",
		zap.String("task", task.ID),
		zap.String("agent", r.cfg.DefaultAgent.ID))
	return []Bid{scoreBid(r.cfg.DefaultAgent, task, r.cfg)}
}

// UpdateReliability folds one outcome into an agent's running reliability:
//
//	(r×n + won) / (n+1)
//
// clamped to [0,1] and rounded to two decimals. Updates for one agent are
// serialized.
func (r *Registry) UpdateReliability(ctx context.Context, id string, won float64) (model.AgentProfile, error) {
	unlock := r.keys.Lock(id)
	defer unlock()

	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return model.AgentProfile{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	n := float64(a.Samples)
	a.Reliability = round2(clamp01((a.Reliability*n + clamp01(won)) / (n + 1)))
	a.Samples++
	r.agents[id] = a
	r.mu.Unlock()

	r.logger.Debug("reliability updated",
		zap.String("agent", id),
		zap.Float64("reliability", a.Reliability),
		zap.Int("samples", a.Samples))

	if r.persister != nil {
		if err := r.persister.SaveAgent(ctx, a); err != nil {
			return a, fmt.Errorf("persist agent %s: %w", id, err)
		}
	}
	return a, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
