package embedding

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rcliao/agent-council/internal/chunker"
)

// Hit is one evidence passage returned by a search.
type Hit struct {
	Source     string  `json:"source"`
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// RetrievalStats summarizes a result set for routing.
type RetrievalStats struct {
	HitRate       float64 `json:"hit_rate"`
	TopSimilarity float64 `json:"top_similarity"`
}

// Stats computes the fraction of hits at or above floor and the best similarity.
// An empty result set yields zero for both.
func Stats(hits []Hit, floor float64) RetrievalStats {
	if len(hits) == 0 {
		return RetrievalStats{}
	}
	var st RetrievalStats
	above := 0
	for i, h := range hits {
		if h.Similarity >= floor {
			above++
		}
		if i == 0 || h.Similarity > st.TopSimilarity {
			st.TopSimilarity = h.Similarity
		}
	}
	st.HitRate = float64(above) / float64(len(hits))
	return st
}

type indexEntry struct {
	passage chunker.Passage
	vec     Vector
}

// Index is an in-memory vector index over chunked evidence documents.
type Index struct {
	embedder Embedder
	opts     chunker.Options

	mu      sync.RWMutex
	entries []indexEntry
}

// NewIndex creates an empty index.
func NewIndex(e Embedder, opts chunker.Options) *Index {
	return &Index{embedder: e, opts: opts}
}

// Add chunks and embeds a document, replacing any passages previously
// indexed for the same source. Returns the number of passages added.
func (ix *Index) Add(ctx context.Context, source, text string) (int, error) {
	passages := chunker.Split(source, text, ix.opts)
	entries := make([]indexEntry, 0, len(passages))
	for _, p := range passages {
		v, err := ix.embedder.Embed(ctx, p.Text)
		if err != nil {
			return 0, fmt.Errorf("embed %s: %w", p.ID, err)
		}
		entries = append(entries, indexEntry{passage: p, vec: v})
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	kept := ix.entries[:0]
	for _, e := range ix.entries {
		if e.passage.Source != source {
			kept = append(kept, e)
		}
	}
	ix.entries = append(kept, entries...)
	return len(entries), nil
}

// Len returns the number of indexed passages.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Search returns the k passages most similar to query, best first.
// Ties are ordered by passage ID.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	q, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	ix.mu.RLock()
	hits := make([]Hit, 0, len(ix.entries))
	for _, e := range ix.entries {
		hits = append(hits, Hit{
			Source:     e.passage.Source,
			ID:         e.passage.ID,
			Text:       e.passage.Text,
			Similarity: CosineSimilarity(q, e.vec),
		})
	}
	ix.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
