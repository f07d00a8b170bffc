package agents

import (
	"math"
	"sort"
	"strings"

	"github.com/rcliao/agent-council/internal/config"
	"github.com/rcliao/agent-council/internal/model"
)

// Bid is an agent's scored offer for a task.
type Bid struct {
	Agent   model.AgentProfile `json:"agent"`
	Utility float64            `json:"utility"`
	Match   float64            `json:"match"`
}

// NormalizeTags lowercases and trims tags, dropping empties and duplicates.
// Order of first appearance is kept.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// CapabilityMatch is the fraction of the agent's normalized tags that occur
// as substrings of the normalized task text.
func CapabilityMatch(caps model.Capabilities, task model.Task) float64 {
	tags := NormalizeTags(caps.Tags())
	if len(tags) == 0 {
		return 0
	}
	text := strings.ToLower(task.Text())
	hits := 0
	for _, tag := range tags {
		if strings.Contains(text, tag) {
			hits++
		}
	}
	return math.Min(1, float64(hits)/float64(len(tags)))
}

// CostNorm maps a cost hint to [0,1], where cheaper agents score higher.
// A non-positive hint counts as the reference cost.
func CostNorm(costHint, reference float64) float64 {
	if reference <= 0 {
		reference = 1
	}
	if costHint <= 0 {
		costHint = reference
	}
	return math.Min(1, reference/costHint)
}

// ScoreBid computes an agent's utility for a task:
//
//	wCap×match + wCost×costNorm + wRel×reliability
func ScoreBid(a model.AgentProfile, task model.Task, w config.AllocationConfig) float64 {
	return scoreBid(a, task, w).Utility
}

func scoreBid(a model.AgentProfile, task model.Task, w config.AllocationConfig) Bid {
	match := CapabilityMatch(a.Capabilities, task)
	utility := w.CapabilityWeight*match +
		w.CostWeight*CostNorm(a.CostHint, w.ReferenceCost) +
		w.ReliabilityWeight*a.Reliability
	return Bid{Agent: a, Utility: utility, Match: match}
}

// TopKForTask scores every agent in pool and returns the best k, highest
// utility first. Equal utilities keep pool order. k <= 0 returns all.
func TopKForTask(pool []model.AgentProfile, task model.Task, k int, w config.AllocationConfig) []Bid {
	bids := make([]Bid, len(pool))
	for i, a := range pool {
		bids[i] = scoreBid(a, task, w)
	}
	sort.SliceStable(bids, func(i, j int) bool {
		return bids[i].Utility > bids[j].Utility
	})
	if k > 0 && len(bids) > k {
		bids = bids[:k]
	}
	return bids
}
