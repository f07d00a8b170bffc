package store

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/rcliao/agent-council/internal/model"
)

// ContextParams holds parameters for context assembly.
type ContextParams struct {
	Scopes []model.ScopeRef
	Key    string // optional
	Budget int    // max tokens in output (rough proxy: 1 token ≈ 4 chars)
}

// ContextEntry is a scored record rendered for a prompt.
type ContextEntry struct {
	ID      string      `json:"id"`
	Scope   model.Scope `json:"scope"`
	Key     string      `json:"key"`
	Content string      `json:"content"`
	Score   float64     `json:"score"`
	Excerpt bool        `json:"excerpt,omitempty"`
}

// ContextResult is the assembled context response.
type ContextResult struct {
	Budget  int            `json:"budget"`
	Used    int            `json:"used"`
	Entries []ContextEntry `json:"entries"`
}

// IDs returns the record IDs included in the context.
func (c *ContextResult) IDs() []string {
	ids := make([]string, 0, len(c.Entries))
	for _, e := range c.Entries {
		ids = append(ids, e.ID)
	}
	return ids
}

// Context retrieves across the given scopes and packs the best records into
// the token budget. The last record that only partly fits becomes an excerpt.
func (s *SQLiteStore) Context(ctx context.Context, p ContextParams) (*ContextResult, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = 4000
	}
	charBudget := budget * 4

	var candidates []model.Record
	for _, ref := range p.Scopes {
		if ref.ScopeID == "" {
			continue
		}
		recs, err := s.Retrieve(ctx, RetrieveParams{
			Scope:   ref.Scope,
			ScopeID: ref.ScopeID,
			Key:     p.Key,
			Limit:   50,
		})
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, recs...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	result := &ContextResult{Budget: budget, Entries: []ContextEntry{}}
	used := 0

	for _, c := range candidates {
		content := renderValue(c.Key, c.Value)
		entry := ContextEntry{
			ID:    c.ID,
			Scope: c.Scope,
			Key:   c.Key,
			Score: math.Round(c.Score*100) / 100,
		}
		if used+len(content) <= charBudget {
			entry.Content = content
			result.Entries = append(result.Entries, entry)
			used += len(content)
			continue
		}
		if remaining := charBudget - used; remaining >= 100 {
			cut := remaining
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			entry.Content = content[:cut] + "..."
			entry.Excerpt = true
			result.Entries = append(result.Entries, entry)
			used += cut
		}
		break
	}

	result.Used = used / 4
	return result, nil
}

func renderValue(key string, v any) string {
	if s, ok := v.(string); ok {
		return key + ": " + s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return key
	}
	return key + ": " + string(b)
}
