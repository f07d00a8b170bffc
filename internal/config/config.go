// Package config holds the immutable engine configuration.
//
// A Config is loaded once at process start and passed by value (or pointer to a
// never-mutated value) into every component constructor. Nothing in the engine
// reads configuration from global state mid-request.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/agent-council/internal/model"
)

// Config is the full engine configuration.
type Config struct {
	Log          LogConfig          `yaml:"log"`
	Memory       MemoryConfig       `yaml:"memory"`
	Allocation   AllocationConfig   `yaml:"allocation"`
	Router       RouterConfig       `yaml:"router"`
	Debate       DebateConfig       `yaml:"debate"`
	Plan         PlanConfig         `yaml:"plan"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	LLM          LLMConfig          `yaml:"llm"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// MemoryConfig controls the write-gate and relevance scoring.
type MemoryConfig struct {
	PersistThreshold   float64            `yaml:"persist_threshold"`
	InclusionThreshold float64            `yaml:"inclusion_threshold"`
	TTLDays            map[string]float64 `yaml:"ttl_days"`
	LegalHalfLifeDays  float64            `yaml:"legal_half_life_days"`
	ScopeBoost         map[string]float64 `yaml:"scope_boost"`
	DefaultLimit       int                `yaml:"default_limit"`
	Redaction          RedactionConfig    `yaml:"redaction"`
}

// RedactionConfig lists the PII rules applied before any write.
type RedactionConfig struct {
	Patterns []string `yaml:"patterns"`
	Literals []string `yaml:"literals"`
	Marker   string   `yaml:"marker"`
}

// AllocationConfig weights the auction bid.
type AllocationConfig struct {
	CapabilityWeight  float64            `yaml:"capability_weight"`
	CostWeight        float64            `yaml:"cost_weight"`
	ReliabilityWeight float64            `yaml:"reliability_weight"`
	ReferenceCost     float64            `yaml:"reference_cost"`
	DefaultAgent      model.AgentProfile `yaml:"default_agent"`
}

// RouterConfig holds tier thresholds and the role table.
type RouterConfig struct {
	SynthComplexityTokens int                      `yaml:"synth_complexity_tokens"`
	GroundingHitMin       float64                  `yaml:"grounding_hit_min"`
	SimilarityFloor       float64                  `yaml:"similarity_floor"`
	Roles                 map[string]model.Binding `yaml:"roles"`
	Default               model.Binding            `yaml:"default"`
}

// DebateConfig holds critic and vote weights.
type DebateConfig struct {
	Rounds            int     `yaml:"rounds"`
	Epsilon           float64 `yaml:"epsilon"`
	CriticWeight      float64 `yaml:"critic_weight"`
	ConfidenceWeight  float64 `yaml:"confidence_weight"`
	GroundBase        float64 `yaml:"ground_base"`
	EvidenceBoost     float64 `yaml:"evidence_boost"`
	ConfidenceBoost   float64 `yaml:"confidence_boost"`
	CompletenessChars int     `yaml:"completeness_chars"`
}

// ActionSpec declares preconditions and effects of one plan action.
type ActionSpec struct {
	Preconditions []string `yaml:"preconditions"`
	Effects       []string `yaml:"effects"`
}

// PlanConfig is the STRIPS-like action schema.
type PlanConfig struct {
	Actions      map[string]ActionSpec `yaml:"actions"`
	Placeholders map[string]string     `yaml:"placeholders"`
}

// OrchestratorConfig controls fan-out and task scheduling.
type OrchestratorConfig struct {
	TopK          int           `yaml:"top_k"`
	WorkerTimeout time.Duration `yaml:"worker_timeout"`
	MaxIterations int           `yaml:"max_iterations"`
	EvidenceK     int           `yaml:"evidence_k"`
	ContextBudget int           `yaml:"context_budget"`
	OutcomeTTL    string        `yaml:"outcome_ttl"`
}

// LLMConfig configures the provider adapters.
type LLMConfig struct {
	DefaultConfidence float64 `yaml:"default_confidence"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int64   `yaml:"max_tokens"`
	OpenAIBaseURL     string  `yaml:"openai_base_url"`
	OpenAIAPIKey      string  `yaml:"openai_api_key"`
	AnthropicAPIKey   string  `yaml:"anthropic_api_key"`
}

// EmbeddingConfig selects the embedder behind the evidence index.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // hash, ollama, openai
	Model    string `yaml:"model"`
	Dims     int    `yaml:"dims"`
	BaseURL  string `yaml:"base_url"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Memory: MemoryConfig{
			PersistThreshold:   0.35,
			InclusionThreshold: 0.05,
			TTLDays: map[string]float64{
				string(model.TTLVolatile): 7,
				string(model.TTLSeasonal): 90,
				string(model.TTLDurable):  365,
			},
			LegalHalfLifeDays: 3650,
			ScopeBoost: map[string]float64{
				string(model.ScopeConversation): 1.2,
				string(model.ScopeUser):         1.0,
				string(model.ScopeAccount):      0.8,
			},
			DefaultLimit: 20,
			Redaction: RedactionConfig{
				Patterns: []string{
					`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
					`\b\d(?:[ \-]?\d){12,18}\b`,
					`\+?\d{1,3}[ .\-]?\(?\d{2,4}\)?[ .\-]?\d{3,4}[ .\-]?\d{3,4}`,
				},
				Literals: []string{"password", "secret", "api_key"},
				Marker:   "[REDACTED]",
			},
		},
		Allocation: AllocationConfig{
			CapabilityWeight:  0.6,
			CostWeight:        0.2,
			ReliabilityWeight: 0.2,
			ReferenceCost:     1.0,
			DefaultAgent: model.AgentProfile{
				ID:          "generalist",
				Name:        "Generic responder",
				CostHint:    1.0,
				Reliability: 0.5,
			},
		},
		Router: RouterConfig{
			SynthComplexityTokens: 1200,
			GroundingHitMin:       0.35,
			SimilarityFloor:       0.3,
			Roles: map[string]model.Binding{
				"CLASSIFY": {Provider: "openai", Model: "gpt-4o-mini"},
				"GROUNDED": {Provider: "openai", Model: "gpt-4o-mini", ToolsEnabled: true},
				"SYNTH":    {Provider: "anthropic", Model: "claude-3-5-sonnet-20241022", ToolsEnabled: true, ReasoningEnabled: true},
			},
			Default: model.Binding{Provider: "static", Model: "echo"},
		},
		Debate: DebateConfig{
			Rounds:            2,
			Epsilon:           0.05,
			CriticWeight:      0.7,
			ConfidenceWeight:  0.3,
			GroundBase:        0.4,
			EvidenceBoost:     0.3,
			ConfidenceBoost:   0.3,
			CompletenessChars: 600,
		},
		Plan: PlanConfig{
			Actions: map[string]ActionSpec{
				"scan_attachment": {
					Preconditions: []string{"attachment_present=true"},
					Effects:       []string{"scanned=true"},
				},
				"extract_text": {
					Preconditions: []string{"scanned=true", "infected=false"},
					Effects:       []string{"text_extracted=true"},
				},
				"draft_reply": {
					Effects: []string{"draft_ready=true"},
				},
				"check_confidence": {
					Preconditions: []string{"draft_ready=true", "confidence>=LLM_MIN_CONF"},
					Effects:       []string{"approved=true"},
				},
				"send_reply": {
					Preconditions: []string{"draft_ready=true", "approved=true"},
					Effects:       []string{"sent=true", "replies+=1"},
				},
			},
			Placeholders: map[string]string{"LLM_MIN_CONF": "0.6"},
		},
		Orchestrator: OrchestratorConfig{
			TopK:          3,
			WorkerTimeout: 30 * time.Second,
			MaxIterations: 32,
			EvidenceK:     5,
			ContextBudget: 1000,
			OutcomeTTL:    string(model.TTLSeasonal),
		},
		LLM: LLMConfig{
			DefaultConfidence: 0.5,
			Temperature:       0.2,
			MaxTokens:         1024,
		},
		Embedding: EmbeddingConfig{Provider: "hash", Dims: 256},
	}
}

// TTLDaysFor returns the configured day count of a ttl class. Legal has none.
func (m MemoryConfig) TTLDaysFor(class model.TTLClass) (float64, bool) {
	if class == model.TTLLegal {
		return 0, false
	}
	d, ok := m.TTLDays[string(class)]
	return d, ok && d > 0
}

// HalfLifeDays returns the decay half-life of a ttl class.
func (m MemoryConfig) HalfLifeDays(class model.TTLClass) float64 {
	if d, ok := m.TTLDaysFor(class); ok {
		return d / 2
	}
	return m.LegalHalfLifeDays
}

// Boost returns the scope multiplier, 1.0 when unconfigured.
func (m MemoryConfig) Boost(scope model.Scope) float64 {
	if b, ok := m.ScopeBoost[string(scope)]; ok {
		return b
	}
	return 1.0
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, v))
		}
	}
	unit("memory.persist_threshold", c.Memory.PersistThreshold)
	unit("memory.inclusion_threshold", c.Memory.InclusionThreshold)
	unit("router.grounding_hit_min", c.Router.GroundingHitMin)
	unit("router.similarity_floor", c.Router.SimilarityFloor)
	unit("llm.default_confidence", c.LLM.DefaultConfidence)

	for _, class := range []model.TTLClass{model.TTLVolatile, model.TTLSeasonal, model.TTLDurable} {
		if _, ok := c.Memory.TTLDaysFor(class); !ok {
			errs = append(errs, fmt.Errorf("memory.ttl_days.%s must be > 0", class))
		}
	}
	if c.Memory.LegalHalfLifeDays <= 0 {
		errs = append(errs, errors.New("memory.legal_half_life_days must be > 0"))
	}
	for scope := range c.Memory.ScopeBoost {
		if !model.ValidScopes[model.Scope(scope)] {
			errs = append(errs, fmt.Errorf("memory.scope_boost: unknown scope %q", scope))
		}
	}

	a := c.Allocation
	if a.CapabilityWeight < 0 || a.CostWeight < 0 || a.ReliabilityWeight < 0 {
		errs = append(errs, errors.New("allocation weights must be non-negative"))
	}
	if a.CapabilityWeight+a.CostWeight+a.ReliabilityWeight <= 0 {
		errs = append(errs, errors.New("allocation weights must sum to a positive value"))
	}
	if a.ReferenceCost <= 0 {
		errs = append(errs, errors.New("allocation.reference_cost must be > 0"))
	}
	if strings.TrimSpace(a.DefaultAgent.ID) == "" {
		errs = append(errs, errors.New("allocation.default_agent.id is required"))
	}

	if c.Router.SynthComplexityTokens <= 0 {
		errs = append(errs, errors.New("router.synth_complexity_tokens must be > 0"))
	}
	for role := range c.Router.Roles {
		if _, ok := model.ParseRole(role); !ok {
			errs = append(errs, fmt.Errorf("router.roles: unknown role %q", role))
		}
	}

	d := c.Debate
	if d.Epsilon < 0 {
		errs = append(errs, errors.New("debate.epsilon must be >= 0"))
	}
	if d.CriticWeight < 0 || d.ConfidenceWeight < 0 || d.CriticWeight+d.ConfidenceWeight <= 0 {
		errs = append(errs, errors.New("debate vote weights must be non-negative with a positive sum"))
	}
	if d.CompletenessChars <= 0 {
		errs = append(errs, errors.New("debate.completeness_chars must be > 0"))
	}

	for name, spec := range c.Plan.Actions {
		for _, expr := range append(append([]string{}, spec.Preconditions...), spec.Effects...) {
			if strings.TrimSpace(expr) == "" {
				errs = append(errs, fmt.Errorf("plan.actions.%s: empty expression", name))
			}
		}
	}

	o := c.Orchestrator
	if o.MaxIterations <= 0 {
		errs = append(errs, errors.New("orchestrator.max_iterations must be > 0"))
	}
	if o.WorkerTimeout <= 0 {
		errs = append(errs, errors.New("orchestrator.worker_timeout must be > 0"))
	}
	if !model.ValidTTLClasses[model.TTLClass(o.OutcomeTTL)] {
		errs = append(errs, fmt.Errorf("orchestrator.outcome_ttl: unknown ttl class %q", o.OutcomeTTL))
	}

	switch c.Embedding.Provider {
	case "hash", "ollama", "openai":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider: unknown provider %q", c.Embedding.Provider))
	}

	return errors.Join(errs...)
}
