package store

import (
	"context"
	"strings"

	"github.com/rcliao/agent-council/internal/model"
)

// ExportAll returns all non-deleted records, optionally filtered by scope.
func (s *SQLiteStore) ExportAll(ctx context.Context, scope model.Scope) ([]model.Record, error) {
	where := []string{"deleted_at IS NULL"}
	args := []interface{}{}

	if scope != "" {
		where = append(where, "scope = ?")
		args = append(args, scope)
	}

	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY scope, scope_id, key`, args...)
}

// Import re-enters exported records through the write-gate, so redaction and
// thresholds still apply. Returns the number of records accepted.
func (s *SQLiteStore) Import(ctx context.Context, records []model.Record) (int, error) {
	imported := 0
	for _, r := range records {
		rec, err := s.WriteGate(ctx, WriteParams{
			Scope:      r.Scope,
			ScopeID:    r.ScopeID,
			Key:        r.Key,
			Value:      r.Value,
			Confidence: r.Confidence,
			TTLClass:   r.TTLClass,
			Provenance: r.Provenance,
		})
		if err != nil {
			return imported, err
		}
		if rec != nil {
			imported++
		}
	}
	return imported, nil
}
