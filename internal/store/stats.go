package store

import (
	"context"
	"os"

	"github.com/rcliao/agent-council/internal/model"
)

// Stats holds database statistics.
type Stats struct {
	DBPath        string       `json:"db_path"`
	DBSizeBytes   int64        `json:"db_size_bytes"`
	TotalRecords  int          `json:"total_records"`
	ActiveRecords int          `json:"active_records"`
	Expired       int          `json:"expired_records"`
	Deleted       int          `json:"deleted_records"`
	Links         int          `json:"links"`
	Agents        int          `json:"agents"`
	Scopes        []ScopeStats `json:"scopes"`
}

// ScopeStats holds per-scope-instance counts.
type ScopeStats struct {
	Scope   model.Scope `json:"scope"`
	ScopeID string      `json:"scope_id"`
	Count   int         `json:"count"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	now := formatTime(s.now().UTC())
	counts := []struct {
		dst   *int
		query string
		args  []interface{}
	}{
		{&st.TotalRecords, `SELECT COUNT(*) FROM records`, nil},
		{&st.ActiveRecords, `SELECT COUNT(*) FROM records
			WHERE deleted_at IS NULL AND (expires_at IS NULL OR expires_at > ?)`, []interface{}{now}},
		{&st.Expired, `SELECT COUNT(*) FROM records
			WHERE deleted_at IS NULL AND expires_at IS NOT NULL AND expires_at <= ?`, []interface{}{now}},
		{&st.Deleted, `SELECT COUNT(*) FROM records WHERE deleted_at IS NOT NULL`, nil},
		{&st.Links, `SELECT COUNT(*) FROM record_links`, nil},
		{&st.Agents, `SELECT COUNT(*) FROM agents`, nil},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dst); err != nil {
			return st, err
		}
	}

	scopes, err := s.Scopes(ctx)
	if err != nil {
		return st, err
	}
	st.Scopes = scopes
	return st, nil
}

// Scopes lists scope instances that hold active records, largest first.
func (s *SQLiteStore) Scopes(ctx context.Context) ([]ScopeStats, error) {
	now := formatTime(s.now().UTC())
	rows, err := s.db.QueryContext(ctx, `
		SELECT scope, scope_id, COUNT(*) AS cnt
		FROM records
		WHERE deleted_at IS NULL AND (expires_at IS NULL OR expires_at > ?)
		GROUP BY scope, scope_id
		ORDER BY cnt DESC, scope, scope_id`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScopeStats
	for rows.Next() {
		var st ScopeStats
		var scope string
		if err := rows.Scan(&scope, &st.ScopeID, &st.Count); err != nil {
			return nil, err
		}
		st.Scope = model.Scope(scope)
		out = append(out, st)
	}
	return out, rows.Err()
}
