package store

import (
	"context"
	"strings"

	"github.com/rcliao/agent-council/internal/model"
)

// SearchParams holds parameters for searching records.
type SearchParams struct {
	Scope   model.Scope
	ScopeID string
	Query   string
	Limit   int
}

// Search finds active records whose key or value contains the query substring.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]model.Record, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	query := "%" + p.Query + "%"

	now := formatTime(s.now().UTC())
	where := []string{"deleted_at IS NULL", "(expires_at IS NULL OR expires_at > ?)"}
	args := []interface{}{now}

	if p.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, p.Scope)
	}
	if p.ScopeID != "" {
		where = append(where, "scope_id = ?")
		args = append(args, p.ScopeID)
	}
	args = append(args, query, query, limit)

	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE `+strings.Join(where, " AND ")+` AND (key LIKE ? OR value LIKE ?)
		 ORDER BY last_seen_at DESC, id DESC
		 LIMIT ?`, args...)
}
