package model

// Facts is the world state consulted and mutated by plan validation.
// Values are bool, float64 or string.
type Facts map[string]any

// Clone returns a shallow copy. Fact values are scalars, so the copy is independent.
func (f Facts) Clone() Facts {
	out := make(Facts, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// PlanStep is one declared action in a plan.
type PlanStep struct {
	Action string `json:"action" yaml:"action"`
	Next   Facts  `json:"next,omitempty" yaml:"next,omitempty"`
}

// Plan is an ordered sequence of steps.
type Plan []PlanStep

// Task is one unit of work inside a request.
type Task struct {
	ID              string   `json:"id" yaml:"id"`
	Description     string   `json:"description" yaml:"description"`
	ActionType      string   `json:"action_type,omitempty" yaml:"action_type,omitempty"`
	DependsOn       []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Plan            Plan     `json:"plan,omitempty" yaml:"plan,omitempty"`
	Facts           Facts    `json:"facts,omitempty" yaml:"facts,omitempty"`
	EstimatedTokens int      `json:"estimated_tokens,omitempty" yaml:"estimated_tokens,omitempty"`
}

// Text returns the free text used for capability matching.
func (t Task) Text() string {
	if t.ActionType == "" {
		return t.Description
	}
	return t.Description + " " + t.ActionType
}

// Candidate is a draft answer produced by one agent.
type Candidate struct {
	ID           string   `json:"id"`
	AgentID      string   `json:"agent_id"`
	Draft        string   `json:"draft"`
	Confidence   float64  `json:"confidence"`
	EvidenceRefs []string `json:"evidence_refs,omitempty"`
	CostHint     float64  `json:"cost_hint"`
	Reliability  float64  `json:"reliability"`
}

// CriticMetrics are recomputed for every debate round.
type CriticMetrics struct {
	Groundedness float64 `json:"groundedness"`
	Completeness float64 `json:"completeness"`
	Risk         float64 `json:"risk"`
	Critic       float64 `json:"critic"`
}

// VoteRecord is one entry in a debate's append-only vote log.
type VoteRecord struct {
	Round       int     `json:"round"`
	CandidateID string  `json:"candidate_id"`
	Score       float64 `json:"score"`
	Reason      string  `json:"reason"`
}
