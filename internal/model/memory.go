// Package model defines the core data types shared by the decision engine.
package model

import "time"

// Scope is the visibility level of a memory record.
type Scope string

const (
	ScopeConversation Scope = "conversation"
	ScopeUser         Scope = "user"
	ScopeAccount      Scope = "account"
)

// TTLClass is a coarse expiry class mapped to a configured number of days.
type TTLClass string

const (
	TTLVolatile TTLClass = "volatile"
	TTLSeasonal TTLClass = "seasonal"
	TTLDurable  TTLClass = "durable"
	TTLLegal    TTLClass = "legal"
)

// Record represents a stored memory fact.
type Record struct {
	ID          string     `json:"id"`
	Scope       Scope      `json:"scope"`
	ScopeID     string     `json:"scope_id"`
	Key         string     `json:"key"`
	Value       any        `json:"value"`
	Confidence  float64    `json:"confidence"`
	TTLClass    TTLClass   `json:"ttl_class"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	FirstSeenAt time.Time  `json:"first_seen_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	UsageCount  int        `json:"usage_count"`
	Provenance  string     `json:"provenance,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	// Score is filled in by retrieval and never persisted.
	Score float64 `json:"score,omitempty"`
}

// Active reports whether the record is neither deleted nor expired at t.
func (r *Record) Active(t time.Time) bool {
	if r.DeletedAt != nil {
		return false
	}
	if r.TTLClass == TTLLegal || r.ExpiresAt == nil {
		return true
	}
	return t.Before(*r.ExpiresAt)
}

// ScopeRef names one scope instance, e.g. conversation "c-42".
type ScopeRef struct {
	Scope   Scope  `json:"scope"`
	ScopeID string `json:"scope_id"`
}

// ValidScopes are the allowed memory scopes.
var ValidScopes = map[Scope]bool{
	ScopeConversation: true,
	ScopeUser:         true,
	ScopeAccount:      true,
}

// ValidTTLClasses are the allowed ttl categories.
var ValidTTLClasses = map[TTLClass]bool{
	TTLVolatile: true,
	TTLSeasonal: true,
	TTLDurable:  true,
	TTLLegal:    true,
}

// ValidRels are the allowed relations between records.
var ValidRels = map[string]bool{
	"derived_from": true,
	"relates_to":   true,
	"contradicts":  true,
	"refines":      true,
}
