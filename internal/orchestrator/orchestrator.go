// Package orchestrator composes allocation, routing, drafting, plan
// validation, debate and memory into one decision per task.
package orchestrator

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/agent-council/internal/agents"
	"github.com/rcliao/agent-council/internal/config"
	"github.com/rcliao/agent-council/internal/debate"
	"github.com/rcliao/agent-council/internal/embedding"
	"github.com/rcliao/agent-council/internal/llm"
	"github.com/rcliao/agent-council/internal/logging"
	"github.com/rcliao/agent-council/internal/metrics"
	"github.com/rcliao/agent-council/internal/model"
	"github.com/rcliao/agent-council/internal/plan"
	"github.com/rcliao/agent-council/internal/router"
	"github.com/rcliao/agent-council/internal/store"
)

const systemPrompt = `You are one member of a council of agents drafting a reply.
Answer the task using the context and evidence given.
Respond with JSON only: {"answer": string, "confidence": number between 0 and 1, "evidence": [evidence ids you relied on]}.`

// Retriever finds evidence passages for a query.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]embedding.Hit, error)
}

// Workers resolves a draft worker for an agent at a binding.
type Workers interface {
	WorkerFor(agent model.AgentProfile, b model.Binding) (llm.Worker, error)
}

// Components are the collaborators of an Orchestrator. Retriever is optional.
type Components struct {
	Memory    store.Memory
	Registry  *agents.Registry
	Router    *router.Router
	Validator *plan.Validator
	Debate    *debate.Coordinator
	Workers   Workers
	Retriever Retriever
}

// Request is one inbound request split into tasks.
type Request struct {
	ID             string       `json:"id" yaml:"id"`
	ConversationID string       `json:"conversation_id" yaml:"conversation_id"`
	UserID         string       `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	AccountID      string       `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	Tasks          []model.Task `json:"tasks" yaml:"tasks"`
}

// Outcome is the decision for one task.
type Outcome struct {
	TaskID      string             `json:"task_id"`
	Answer      string             `json:"answer"`
	WinnerAgent string             `json:"winner_agent,omitempty"`
	Confidence  float64            `json:"confidence"`
	Role        model.Role         `json:"role"`
	Binding     model.Binding      `json:"binding"`
	Votes       []model.VoteRecord `json:"votes"`
	Reasons     []string           `json:"reasons,omitempty"`
	Plan        *plan.Report       `json:"plan,omitempty"`
	Approved    bool               `json:"approved"`
	MemoryID    string             `json:"memory_id,omitempty"`
	Partial     bool               `json:"partial,omitempty"`
	Dropped     []string           `json:"dropped,omitempty"`
	Evidence    []string           `json:"evidence,omitempty"`
}

// Response holds the outcomes of a request in task order.
type Response struct {
	RequestID string    `json:"request_id"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Orchestrator runs requests through the decision pipeline.
type Orchestrator struct {
	cfg config.OrchestratorConfig
	c   Components

	logger *zap.Logger
	now    func() time.Time

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logging.OrNop(l).Named("orchestrator") }
}

// WithClock sets the time source used for candidate IDs.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(cfg config.OrchestratorConfig, c Components, opts ...Option) (*Orchestrator, error) {
	if c.Memory == nil || c.Registry == nil || c.Router == nil || c.Validator == nil || c.Debate == nil || c.Workers == nil {
		return nil, errors.New("orchestrator: missing component")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.WorkerTimeout <= 0 {
		cfg.WorkerTimeout = 30 * time.Second
	}
	if !model.ValidTTLClasses[model.TTLClass(cfg.OutcomeTTL)] {
		cfg.OutcomeTTL = string(model.TTLSeasonal)
	}
	o := &Orchestrator{
		cfg:     cfg,
		c:       c,
		logger:  zap.NewNop(),
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Handle runs every task of the request. Only an unknown plan action or a
// dependency cycle fails the request; other problems degrade the outcome.
// On cancellation the outcomes finished so far are returned with the error.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Response, error) {
	if req.ID == "" {
		req.ID = o.newID()
	}
	o.logger.Info("handling request",
		zap.String("request", req.ID),
		zap.String("conversation", req.ConversationID),
		zap.Int("tasks", len(req.Tasks)))

	outcomes, err := RunTasks(ctx, req.Tasks, o.cfg.MaxIterations, func(ctx context.Context, t model.Task, prior map[string]Outcome) (Outcome, error) {
		return o.runTask(ctx, req, t, prior)
	})
	resp := &Response{RequestID: req.ID, Outcomes: outcomes}
	if err != nil {
		return resp, fmt.Errorf("handle request %s: %w", req.ID, err)
	}
	return resp, nil
}

func (o *Orchestrator) runTask(ctx context.Context, req Request, task model.Task, prior map[string]Outcome) (Outcome, error) {
	out := Outcome{TaskID: task.ID, Approved: true}
	log := o.logger.With(zap.String("request", req.ID), zap.String("task", task.ID))

	mem := o.memoryContext(ctx, req, log)
	hits := o.evidence(ctx, task, log)
	evidenceIDs := make([]string, len(hits))
	for i, h := range hits {
		evidenceIDs[i] = h.ID
	}
	out.Evidence = evidenceIDs

	prompt := buildPrompt(task, mem, hits, prior)
	tokens := task.EstimatedTokens
	if tokens <= 0 {
		tokens = router.EstimateTokens(prompt)
	}
	decision := o.c.Router.Route(tokens, embedding.Stats(hits, o.c.Router.SimilarityFloor()))
	out.Role = decision.Role

	bids := o.c.Registry.Allocate(task, o.cfg.TopK)
	candidates, bindings, dropped := o.draft(ctx, task, bids, decision.Binding, prompt, log)
	out.Dropped = dropped

	res := o.c.Debate.RunKRounds(ctx, candidates, evidenceIDs, 0)
	out.Votes = res.Votes
	out.Reasons = res.Reasons
	out.Partial = res.Partial || ctx.Err() != nil

	if res.Winner != nil {
		w := *res.Winner
		out.Answer = w.Draft
		out.WinnerAgent = w.AgentID
		out.Binding = bindings[w.ID]
		out.Confidence = w.Confidence
		if m, ok := res.Metrics[w.ID]; ok {
			out.Confidence = math.Min(1, o.c.Debate.Vote(m, w))
		}
	} else {
		out.Binding = decision.Binding
	}

	if len(task.Plan) > 0 {
		facts := task.Facts.Clone()
		if _, ok := facts["confidence"]; !ok {
			facts["confidence"] = out.Confidence
		}
		report, err := o.c.Validator.Validate(task.Plan, facts)
		if err != nil {
			return out, fmt.Errorf("validate plan: %w", err)
		}
		out.Plan = &report
		out.Approved = report.Valid
		if !report.Valid {
			log.Info("plan rejected",
				zap.Int("step", report.FailingStep),
				zap.String("hint", report.Hint))
		}
	}

	if out.Partial || ctx.Err() != nil {
		log.Info("skipping reliability update for interrupted task")
		return out, nil
	}

	o.updateReliability(ctx, bids, candidates, res.Winner, log)

	if res.Winner != nil {
		out.MemoryID = o.persist(ctx, req, task, out, *res.Winner, mem, log)
	}
	return out, nil
}

func (o *Orchestrator) memoryContext(ctx context.Context, req Request, log *zap.Logger) *store.ContextResult {
	res, err := o.c.Memory.Context(ctx, store.ContextParams{
		Scopes: []model.ScopeRef{
			{Scope: model.ScopeConversation, ScopeID: req.ConversationID},
			{Scope: model.ScopeUser, ScopeID: req.UserID},
			{Scope: model.ScopeAccount, ScopeID: req.AccountID},
		},
		Budget: o.cfg.ContextBudget,
	})
	if err != nil {
		log.Warn("memory context unavailable", zap.Error(err))
		return &store.ContextResult{}
	}
	return res
}

func (o *Orchestrator) evidence(ctx context.Context, task model.Task, log *zap.Logger) []embedding.Hit {
	if o.c.Retriever == nil || o.cfg.EvidenceK <= 0 {
		return nil
	}
	hits, err := o.c.Retriever.Search(ctx, task.Text(), o.cfg.EvidenceK)
	if err != nil {
		log.Warn("evidence search failed", zap.Error(err))
		return nil
	}
	return hits
}

// draft fans out to one worker per bid. Workers that fail or time out are
// dropped. Candidate IDs are assigned in bid order before fan-out.
func (o *Orchestrator) draft(ctx context.Context, task model.Task, bids []agents.Bid, tier model.Binding, prompt string, log *zap.Logger) ([]model.Candidate, map[string]model.Binding, []string) {
	ids := make([]string, len(bids))
	for i := range bids {
		ids[i] = o.newID()
	}

	type slot struct {
		cand    model.Candidate
		binding model.Binding
		ok      bool
	}
	slots := make([]slot, len(bids))

	var g errgroup.Group
	for i, bid := range bids {
		agent := bid.Agent
		binding := tier
		if agent.Binding != nil {
			binding = *agent.Binding
		}
		g.Go(func() error {
			w, err := o.c.Workers.WorkerFor(agent, binding)
			if err != nil {
				metrics.WorkerDrafts.WithLabelValues("error").Inc()
				log.Warn("no worker for agent", zap.String("agent", agent.ID), zap.Error(err))
				return nil
			}

			wctx, cancel := context.WithTimeout(ctx, o.cfg.WorkerTimeout)
			defer cancel()
			d, err := w.Draft(wctx, llm.Request{
				TaskID:  task.ID,
				System:  systemPrompt,
				Prompt:  prompt,
				Binding: binding,
			})
			if err != nil {
				result := "error"
				if errors.Is(wctx.Err(), context.DeadlineExceeded) {
					result = "timeout"
				}
				metrics.WorkerDrafts.WithLabelValues(result).Inc()
				log.Warn("worker dropped",
					zap.String("agent", agent.ID),
					zap.String("result", result),
					zap.Error(err))
				return nil
			}

			metrics.WorkerDrafts.WithLabelValues("ok").Inc()
			slots[i] = slot{
				cand: model.Candidate{
					ID:           ids[i],
					AgentID:      agent.ID,
					Draft:        d.Answer,
					Confidence:   d.Confidence,
					EvidenceRefs: d.Evidence,
					CostHint:     agent.CostHint,
					Reliability:  agent.Reliability,
				},
				binding: binding,
				ok:      true,
			}
			return nil
		})
	}
	_ = g.Wait()

	var candidates []model.Candidate
	bindings := make(map[string]model.Binding, len(bids))
	var dropped []string
	for i, s := range slots {
		if !s.ok {
			dropped = append(dropped, bids[i].Agent.ID)
			continue
		}
		candidates = append(candidates, s.cand)
		bindings[s.cand.ID] = s.binding
	}
	return candidates, bindings, dropped
}

// updateReliability scores the winner 1 and every other drafting agent 0.
// With a single bid the agent wins iff it produced a draft. Callers skip it
// for cancelled or partial tasks.
func (o *Orchestrator) updateReliability(ctx context.Context, bids []agents.Bid, candidates []model.Candidate, winner *model.Candidate, log *zap.Logger) {
	outcomes := map[string]float64{}
	if len(bids) == 1 {
		if len(candidates) == 1 {
			outcomes[bids[0].Agent.ID] = 1
		} else {
			outcomes[bids[0].Agent.ID] = 0
		}
	} else {
		for _, c := range candidates {
			if winner != nil && c.ID == winner.ID {
				outcomes[c.AgentID] = 1
			} else if _, seen := outcomes[c.AgentID]; !seen {
				outcomes[c.AgentID] = 0
			}
		}
	}

	for id, won := range outcomes {
		if _, err := o.c.Registry.UpdateReliability(ctx, id, won); err != nil {
			if errors.Is(err, agents.ErrUnknownAgent) {
				continue
			}
			log.Warn("reliability update failed", zap.String("agent", id), zap.Error(err))
		}
	}
}

func (o *Orchestrator) persist(ctx context.Context, req Request, task model.Task, out Outcome, winner model.Candidate, mem *store.ContextResult, log *zap.Logger) string {
	if req.ConversationID == "" {
		return ""
	}
	provenance := provenanceOf(winner.EvidenceRefs)
	rec, err := o.c.Memory.WriteGate(ctx, store.WriteParams{
		Scope:   model.ScopeConversation,
		ScopeID: req.ConversationID,
		Key:     OutcomeKey(out.Answer, winner.EvidenceRefs),
		Value: map[string]any{
			"task":     task.Description,
			"answer":   out.Answer,
			"agent":    winner.AgentID,
			"role":     out.Role.String(),
			"approved": out.Approved,
		},
		Confidence: out.Confidence,
		TTLClass:   model.TTLClass(o.cfg.OutcomeTTL),
		Provenance: provenance,
	})
	if err != nil {
		log.Warn("persist outcome failed", zap.Error(err))
		return ""
	}
	if rec == nil {
		return ""
	}

	for _, id := range mem.IDs() {
		if id == rec.ID {
			continue
		}
		if _, err := o.c.Memory.Link(ctx, rec.ID, id, "derived_from"); err != nil {
			log.Warn("link outcome failed", zap.String("to", id), zap.Error(err))
		}
	}
	return rec.ID
}

func (o *Orchestrator) newID() string {
	o.idMu.Lock()
	defer o.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(o.now()), o.entropy).String()
}

// OutcomeKey is the memory key of an outcome: a hash of the answer and its
// sorted, deduplicated provenance set.
func OutcomeKey(answer string, refs []string) string {
	sum := sha256.Sum256([]byte(answer + "\x00" + provenanceOf(refs)))
	return "outcome:" + hex.EncodeToString(sum[:])[:16]
}

func provenanceOf(refs []string) string {
	set := make(map[string]bool, len(refs))
	var out []string
	for _, r := range refs {
		r = strings.TrimSpace(r)
		if r == "" || set[r] {
			continue
		}
		set[r] = true
		out = append(out, r)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func buildPrompt(task model.Task, mem *store.ContextResult, hits []embedding.Hit, prior map[string]Outcome) string {
	var sb strings.Builder
	if len(mem.Entries) > 0 {
		sb.WriteString("Memory:\n")
		for _, e := range mem.Entries {
			fmt.Fprintf(&sb, "- [%s] %s\n", e.Scope, e.Content)
		}
		sb.WriteString("\n")
	}
	if len(hits) > 0 {
		sb.WriteString("Evidence:\n")
		for _, h := range hits {
			fmt.Fprintf(&sb, "- (%s) %s\n", h.ID, h.Text)
		}
		sb.WriteString("\n")
	}
	if len(prior) > 0 {
		ids := make([]string, 0, len(prior))
		for id := range prior {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		sb.WriteString("Prior results:\n")
		for _, id := range ids {
			fmt.Fprintf(&sb, "- %s: %s\n", id, prior[id].Answer)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Task: %s\n", strings.TrimSpace(task.Description))
	if task.ActionType != "" {
		fmt.Fprintf(&sb, "Action type: %s\n", task.ActionType)
	}
	return sb.String()
}
