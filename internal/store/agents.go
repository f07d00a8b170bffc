package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rcliao/agent-council/internal/model"
)

// SaveAgent upserts an agent profile.
func (s *SQLiteStore) SaveAgent(ctx context.Context, a model.AgentProfile) error {
	profile, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode agent %s: %w", a.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, profile, reliability, samples, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   profile = excluded.profile,
		   reliability = excluded.reliability,
		   samples = excluded.samples,
		   updated_at = excluded.updated_at`,
		a.ID, string(profile), a.Reliability, a.Samples, formatTime(s.now().UTC()))
	if err != nil {
		return fmt.Errorf("save agent %s: %w", a.ID, err)
	}
	return nil
}

// LoadAgents returns all stored agent profiles in ID order.
func (s *SQLiteStore) LoadAgents(ctx context.Context) ([]model.AgentProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT profile, reliability, samples FROM agents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AgentProfile
	for rows.Next() {
		var raw string
		var a model.AgentProfile
		var rel float64
		var samples int
		if err := rows.Scan(&raw, &rel, &samples); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode agent: %w", err)
		}
		a.Reliability = rel
		a.Samples = samples
		out = append(out, a)
	}
	return out, rows.Err()
}
