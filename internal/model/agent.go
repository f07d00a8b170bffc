package model

// Capabilities groups the capability tags of an agent.
type Capabilities struct {
	Keywords    []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Domains     []string `json:"domains,omitempty" yaml:"domains,omitempty"`
	Expertise   []string `json:"expertise,omitempty" yaml:"expertise,omitempty"`
	ActionTypes []string `json:"action_types,omitempty" yaml:"action_types,omitempty"`
	Languages   []string `json:"languages,omitempty" yaml:"languages,omitempty"`
}

// Tags flattens all capability groups in declaration order.
func (c Capabilities) Tags() []string {
	n := len(c.Keywords) + len(c.Domains) + len(c.Expertise) + len(c.ActionTypes) + len(c.Languages)
	tags := make([]string, 0, n)
	tags = append(tags, c.Keywords...)
	tags = append(tags, c.Domains...)
	tags = append(tags, c.Expertise...)
	tags = append(tags, c.ActionTypes...)
	tags = append(tags, c.Languages...)
	return tags
}

// AgentProfile describes a worker agent that can bid on tasks.
type AgentProfile struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name,omitempty" yaml:"name,omitempty"`
	Capabilities Capabilities `json:"capabilities" yaml:"capabilities"`
	CostHint     float64      `json:"cost_hint" yaml:"cost_hint"`
	Reliability  float64      `json:"reliability" yaml:"reliability"`
	Samples      int          `json:"samples" yaml:"samples"`

	// Binding optionally pins the agent to a provider/model regardless of tier.
	Binding *Binding `json:"binding,omitempty" yaml:"binding,omitempty"`
}

// Binding is a provider/model pair plus capability flags. The flags are
// forwarded to generators as hints and do not change request shape.
type Binding struct {
	Provider         string `json:"provider" yaml:"provider"`
	Model            string `json:"model" yaml:"model"`
	ToolsEnabled     bool   `json:"tools_enabled" yaml:"tools_enabled"`
	ReasoningEnabled bool   `json:"reasoning_enabled" yaml:"reasoning_enabled"`
}

// Role is a processing tier. Values are ordered by escalation cost.
type Role int

const (
	RoleClassify Role = iota
	RoleGrounded
	RoleSynth
)

func (r Role) String() string {
	switch r {
	case RoleClassify:
		return "CLASSIFY"
	case RoleGrounded:
		return "GROUNDED"
	case RoleSynth:
		return "SYNTH"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParseRole converts a role name into a Role.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "CLASSIFY", "classify":
		return RoleClassify, true
	case "GROUNDED", "grounded":
		return RoleGrounded, true
	case "SYNTH", "synth":
		return RoleSynth, true
	}
	return 0, false
}
