// Package debate runs multi-round critic scoring over candidate drafts and
// picks a winner by weighted vote.
package debate

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/rcliao/agent-council/internal/config"
	"github.com/rcliao/agent-council/internal/logging"
	"github.com/rcliao/agent-council/internal/metrics"
	"github.com/rcliao/agent-council/internal/model"
)

// Critic weights for groundedness, completeness and (1 - risk).
const (
	groundednessWeight = 0.6
	completenessWeight = 0.3
	safetyWeight       = 0.1
)

// tolerance below which two scores count as tied.
const tolerance = 1e-9

// Result is the outcome of a debate.
type Result struct {
	Winner  *model.Candidate               `json:"winner,omitempty"`
	Metrics map[string]model.CriticMetrics `json:"metrics,omitempty"`
	Totals  map[string]float64             `json:"totals,omitempty"`
	Votes   []model.VoteRecord             `json:"votes"`
	Reasons []string                       `json:"reasons"`
	Rounds  int                            `json:"rounds"`
	Partial bool                           `json:"partial,omitempty"`
}

// Coordinator scores and votes on candidates. Epsilon and weights are fixed
// for the lifetime of a Coordinator.
type Coordinator struct {
	cfg    config.DebateConfig
	logger *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.OrNop(l).Named("debate") }
}

// New creates a Coordinator.
func New(cfg config.DebateConfig, opts ...Option) *Coordinator {
	c := &Coordinator{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Score computes the critic metrics of one candidate. When evidence is
// non-empty only references found in it count toward groundedness.
func (c *Coordinator) Score(cand model.Candidate, evidence map[string]bool) model.CriticMetrics {
	g := c.cfg.GroundBase
	if cites(cand.EvidenceRefs, evidence) {
		g += c.cfg.EvidenceBoost
	}
	g += c.cfg.ConfidenceBoost * clamp01(cand.Confidence)
	g = math.Min(1, g)

	completeness := 0.0
	if c.cfg.CompletenessChars > 0 {
		completeness = math.Min(1, float64(len(cand.Draft))/float64(c.cfg.CompletenessChars))
	}

	risk := 1 - clamp01(cand.Reliability)

	return model.CriticMetrics{
		Groundedness: g,
		Completeness: completeness,
		Risk:         risk,
		Critic:       groundednessWeight*g + completenessWeight*completeness + safetyWeight*(1-risk),
	}
}

func cites(refs []string, evidence map[string]bool) bool {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if len(evidence) == 0 || evidence[ref] {
			return true
		}
	}
	return false
}

// Vote combines critic score and self-confidence.
func (c *Coordinator) Vote(m model.CriticMetrics, cand model.Candidate) float64 {
	return c.cfg.CriticWeight*m.Critic + c.cfg.ConfidenceWeight*clamp01(cand.Confidence)
}

type scored struct {
	cand    model.Candidate
	metrics model.CriticMetrics
}

// RunKRounds runs the debate. Rounds are sequential; each keeps every
// candidate within epsilon of the leader, and that retained set is the next
// round's pool. Cancellation between rounds stops the debate and returns what
// was recorded so far with Partial set. rounds <= 0 uses the configured count.
func (c *Coordinator) RunKRounds(ctx context.Context, candidates []model.Candidate, evidence []string, rounds int) Result {
	res := Result{
		Metrics: map[string]model.CriticMetrics{},
		Totals:  map[string]float64{},
		Votes:   []model.VoteRecord{},
		Reasons: []string{},
	}
	if len(candidates) == 0 {
		return res
	}
	if rounds <= 0 {
		rounds = c.cfg.Rounds
	}
	if rounds <= 0 {
		rounds = 1
	}

	evidenceSet := make(map[string]bool, len(evidence))
	for _, e := range evidence {
		evidenceSet[e] = true
	}

	pool := append([]model.Candidate(nil), candidates...)
	var lastRound []scored

	for r := 1; r <= rounds; r++ {
		if ctx.Err() != nil {
			res.Partial = true
			res.Reasons = append(res.Reasons, fmt.Sprintf("cancelled before round %d", r))
			break
		}

		round := make([]scored, len(pool))
		for i, cand := range pool {
			round[i] = scored{cand: cand, metrics: c.Score(cand, evidenceSet)}
		}
		sort.SliceStable(round, func(i, j int) bool {
			if !tied(round[i].metrics.Critic, round[j].metrics.Critic) {
				return round[i].metrics.Critic > round[j].metrics.Critic
			}
			return round[i].cand.ID < round[j].cand.ID
		})

		top := round[0].metrics.Critic
		retained := round[:0:0]
		for _, s := range round {
			if s.metrics.Critic >= top-c.cfg.Epsilon-tolerance {
				retained = append(retained, s)
			}
		}
		if len(retained) == 0 {
			break
		}

		pool = pool[:0:0]
		for _, s := range retained {
			vote := c.Vote(s.metrics, s.cand)
			reason := fmt.Sprintf("groundedness=%.2f completeness=%.2f risk=%.2f critic=%.2f",
				s.metrics.Groundedness, s.metrics.Completeness, s.metrics.Risk, s.metrics.Critic)
			res.Votes = append(res.Votes, model.VoteRecord{
				Round:       r,
				CandidateID: s.cand.ID,
				Score:       vote,
				Reason:      reason,
			})
			res.Totals[s.cand.ID] += vote
			res.Metrics[s.cand.ID] = s.metrics
			pool = append(pool, s.cand)
		}
		res.Reasons = append(res.Reasons, fmt.Sprintf("round %d: retained %d of %d within %.2f of top critic %.2f",
			r, len(retained), len(round), c.cfg.Epsilon, top))

		lastRound = retained
		res.Rounds = r
		metrics.DebateRounds.Inc()
	}

	var winner model.Candidate
	if len(lastRound) == 0 {
		winner = mostConfident(candidates)
		res.Reasons = append(res.Reasons, fmt.Sprintf("no completed round, picked most confident %s", winner.ID))
	} else {
		winner = c.pick(lastRound, res.Totals)
		res.Reasons = append(res.Reasons, fmt.Sprintf("winner %s with total vote %.4f", winner.ID, res.Totals[winner.ID]))
	}
	res.Winner = &winner

	c.logger.Debug("debate finished",
		zap.String("winner", winner.ID),
		zap.Int("rounds", res.Rounds),
		zap.Bool("partial", res.Partial),
		zap.Int("votes", len(res.Votes)))
	return res
}

// pick orders survivors by total vote desc, groundedness desc, cost hint asc,
// then ID asc.
func (c *Coordinator) pick(survivors []scored, totals map[string]float64) model.Candidate {
	best := survivors[0]
	for _, s := range survivors[1:] {
		if better(s, best, totals) {
			best = s
		}
	}
	return best.cand
}

func better(a, b scored, totals map[string]float64) bool {
	ta, tb := totals[a.cand.ID], totals[b.cand.ID]
	if !tied(ta, tb) {
		return ta > tb
	}
	if !tied(a.metrics.Groundedness, b.metrics.Groundedness) {
		return a.metrics.Groundedness > b.metrics.Groundedness
	}
	if !tied(a.cand.CostHint, b.cand.CostHint) {
		return a.cand.CostHint < b.cand.CostHint
	}
	return a.cand.ID < b.cand.ID
}

func mostConfident(cands []model.Candidate) model.Candidate {
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Confidence > best.Confidence || (c.Confidence == best.Confidence && c.ID < best.ID) {
			best = c
		}
	}
	return best
}

func tied(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
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
