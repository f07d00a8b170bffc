// Package store provides the memory store interface and SQLite implementation.
package store

import (
	"context"
	"errors"

	"github.com/rcliao/agent-council/internal/model"
)

// ErrNotFound is returned when no active record matches.
var ErrNotFound = errors.New("record not found")

// WriteParams holds a proposed memory fact.
type WriteParams struct {
	Scope      model.Scope
	ScopeID    string
	Key        string
	Value      any
	Confidence float64
	TTLClass   model.TTLClass
	Provenance string
}

// RetrieveParams holds parameters for relevance retrieval.
type RetrieveParams struct {
	Scope   model.Scope
	ScopeID string
	Key     string // optional
	Limit   int
}

// ListParams holds parameters for listing records.
type ListParams struct {
	Scope    model.Scope
	ScopeID  string
	TTLClass model.TTLClass
	Limit    int
}

// ForgetParams holds parameters for deleting a record.
type ForgetParams struct {
	Scope   model.Scope
	ScopeID string
	Key     string
	Hard    bool
}

// Memory defines the memory store used by the engine.
type Memory interface {
	// WriteGate persists a fact if policy allows. A nil record with a nil
	// error means the write was rejected by policy.
	WriteGate(ctx context.Context, p WriteParams) (*model.Record, error)

	// Retrieve returns active records ordered by relevance and marks them used.
	Retrieve(ctx context.Context, p RetrieveParams) ([]model.Record, error)

	// Context packs relevant records from several scopes into a budget.
	Context(ctx context.Context, p ContextParams) (*ContextResult, error)

	// Link relates two records.
	Link(ctx context.Context, fromID, toID, rel string) (*Link, error)

	// Forget soft-deletes (or hard-deletes) a record.
	Forget(ctx context.Context, p ForgetParams) error

	// Close closes the store.
	Close() error
}
