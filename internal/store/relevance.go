package store

import (
	"math"
	"time"

	"github.com/rcliao/agent-council/internal/config"
	"github.com/rcliao/agent-council/internal/model"
)

// Relevance scores a record at time now:
//
//	confidence × exp(-ageDays/halfLife) × (1 + min(ln(1+usage), 1)) × scopeBoost
//
// Age is measured from LastSeenAt. The half-life is half the ttl class's day
// count, or the configured legal half-life.
func Relevance(r model.Record, cfg config.MemoryConfig, now time.Time) float64 {
	ageDays := now.Sub(r.LastSeenAt).Hours() / 24.0
	if ageDays < 0 {
		ageDays = 0
	}

	decay := 1.0
	if halfLife := cfg.HalfLifeDays(r.TTLClass); halfLife > 0 {
		decay = math.Exp(-ageDays / halfLife)
	}

	usage := math.Min(math.Log1p(float64(r.UsageCount)), 1)

	return r.Confidence * decay * (1 + usage) * cfg.Boost(r.Scope)
}
