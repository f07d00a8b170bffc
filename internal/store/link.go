package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rcliao/agent-council/internal/model"
)

// Link represents a relation between two records.
type Link struct {
	FromID    string `json:"from_id"`
	ToID      string `json:"to_id"`
	Rel       string `json:"rel"`
	CreatedAt string `json:"created_at"`
}

func validRelList() string {
	rels := make([]string, 0, len(model.ValidRels))
	for r := range model.ValidRels {
		rels = append(rels, r)
	}
	sort.Strings(rels)
	return strings.Join(rels, ", ")
}

// Link relates fromID to toID. Linking the same pair twice is a no-op.
func (s *SQLiteStore) Link(ctx context.Context, fromID, toID, rel string) (*Link, error) {
	if !model.ValidRels[rel] {
		return nil, fmt.Errorf("invalid relation %q (valid: %s)", rel, validRelList())
	}
	for _, id := range []string{fromID, toID} {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", id, err)
		}
	}

	now := formatTime(s.now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO record_links (from_id, to_id, rel, created_at) VALUES (?, ?, ?, ?)`,
		fromID, toID, rel, now)
	if err != nil {
		return nil, fmt.Errorf("insert link: %w", err)
	}

	return &Link{FromID: fromID, ToID: toID, Rel: rel, CreatedAt: now}, nil
}

// Unlink removes a relation.
func (s *SQLiteStore) Unlink(ctx context.Context, fromID, toID, rel string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM record_links WHERE from_id = ? AND to_id = ? AND rel = ?`,
		fromID, toID, rel)
	return err
}

// Links returns all links touching a record.
func (s *SQLiteStore) Links(ctx context.Context, id string) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id, rel, created_at FROM record_links
		 WHERE from_id = ? OR to_id = ? ORDER BY created_at, from_id, to_id`, id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.FromID, &l.ToID, &l.Rel, &l.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
