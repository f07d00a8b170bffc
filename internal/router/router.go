// Package router maps input size and retrieval quality to a processing tier
// and the provider/model bound to it.
package router

import (
	"fmt"
	"math"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/rcliao/agent-council/internal/config"
	"github.com/rcliao/agent-council/internal/embedding"
	"github.com/rcliao/agent-council/internal/logging"
	"github.com/rcliao/agent-council/internal/metrics"
	"github.com/rcliao/agent-council/internal/model"
)

// SafeDefault is used when neither the role nor the default binding is configured.
var SafeDefault = model.Binding{Provider: "static", Model: "echo"}

// Decision is the outcome of routing one input.
type Decision struct {
	Role    model.Role               `json:"role"`
	Binding model.Binding            `json:"binding"`
	Tokens  int                      `json:"tokens"`
	Stats   embedding.RetrievalStats `json:"stats"`
	Reason  string                   `json:"reason"`
}

// Router resolves tiers from an immutable RouterConfig.
type Router struct {
	cfg    config.RouterConfig
	roles  map[model.Role]model.Binding
	logger *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.logger = logging.OrNop(l).Named("router") }
}

// New creates a router. Role table keys are matched case-insensitively;
// unknown keys are ignored here and rejected by config validation.
func New(cfg config.RouterConfig, opts ...Option) *Router {
	r := &Router{
		cfg:    cfg,
		roles:  make(map[model.Role]model.Binding, len(cfg.Roles)),
		logger: zap.NewNop(),
	}
	for name, b := range cfg.Roles {
		if role, ok := model.ParseRole(name); ok {
			r.roles[role] = b
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ChooseRole picks a tier. Large inputs always escalate to SYNTH; otherwise
// good retrieval selects GROUNDED and poor retrieval SYNTH. topSim does not
// affect the choice.
func (r *Router) ChooseRole(tokens int, hitRate, topSim float64) model.Role {
	if tokens >= r.cfg.SynthComplexityTokens {
		return model.RoleSynth
	}
	if hitRate >= r.cfg.GroundingHitMin {
		return model.RoleGrounded
	}
	return model.RoleSynth
}

// ResolveProviderModel looks up the binding of a role, falling back to the
// configured default binding.
func (r *Router) ResolveProviderModel(role model.Role) model.Binding {
	if b, ok := r.roles[role]; ok && b.Provider != "" {
		return b
	}
	if r.cfg.Default.Provider != "" {
		return r.cfg.Default
	}
	return SafeDefault
}

// Route chooses a role and resolves its binding.
func (r *Router) Route(tokens int, stats embedding.RetrievalStats) Decision {
	role := r.ChooseRole(tokens, stats.HitRate, stats.TopSimilarity)

	var reason string
	switch {
	case tokens >= r.cfg.SynthComplexityTokens:
		reason = fmt.Sprintf("tokens %d >= %d", tokens, r.cfg.SynthComplexityTokens)
	case role == model.RoleGrounded:
		reason = fmt.Sprintf("hit rate %.2f >= %.2f (top similarity %.2f)",
			stats.HitRate, r.cfg.GroundingHitMin, stats.TopSimilarity)
	default:
		reason = fmt.Sprintf("hit rate %.2f < %.2f (top similarity %.2f)",
			stats.HitRate, r.cfg.GroundingHitMin, stats.TopSimilarity)
	}

	d := Decision{
		Role:    role,
		Binding: r.ResolveProviderModel(role),
		Tokens:  tokens,
		Stats:   stats,
		Reason:  reason,
	}

	metrics.RouterDecisions.WithLabelValues(role.String()).Inc()
	r.logger.Debug("routed",
		zap.String("role", role.String()),
		zap.String("provider", d.Binding.Provider),
		zap.String("model", d.Binding.Model),
		zap.String("reason", reason))
	return d
}

// SimilarityFloor is the similarity a hit needs to count toward the hit rate.
func (r *Router) SimilarityFloor() float64 {
	return r.cfg.SimilarityFloor
}

// EstimateTokens approximates a token count as ceil(chars/4).
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / 4))
}
