package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/agent-council/internal/metrics"
	"github.com/rcliao/agent-council/internal/model"
)

// ErrDependencyCycle is returned when task prerequisites can never all complete.
var ErrDependencyCycle = errors.New("dependency cycle")

// TaskFunc runs one task. prior holds the outcomes of the task's declared
// prerequisites.
type TaskFunc func(ctx context.Context, task model.Task, prior map[string]Outcome) (Outcome, error)

// RunTasks executes tasks in dependency order. Each wave runs every task whose
// prerequisites are done, concurrently. A cycle, an unknown prerequisite or
// more than maxIterations waves yields ErrDependencyCycle. Outcomes are
// returned in input order and include only finished tasks.
func RunTasks(ctx context.Context, tasks []model.Task, maxIterations int, fn TaskFunc) ([]Outcome, error) {
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("task %d: missing id", i)
		}
		if _, dup := index[t.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %q", t.ID)
		}
		index[t.ID] = i
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := index[dep]; !ok {
				metrics.DependencyCycles.Inc()
				return nil, fmt.Errorf("%w: task %q depends on unknown task %q", ErrDependencyCycle, t.ID, dep)
			}
		}
	}
	if maxIterations <= 0 {
		maxIterations = len(tasks)
	}

	done := make(map[string]Outcome, len(tasks))
	collect := func() []Outcome {
		out := make([]Outcome, 0, len(done))
		for _, t := range tasks {
			if o, ok := done[t.ID]; ok {
				out = append(out, o)
			}
		}
		return out
	}

	for wave := 0; len(done) < len(tasks); wave++ {
		if wave >= maxIterations {
			metrics.DependencyCycles.Inc()
			return collect(), fmt.Errorf("%w: %d of %d tasks unfinished after %d waves",
				ErrDependencyCycle, len(tasks)-len(done), len(tasks), maxIterations)
		}
		if err := ctx.Err(); err != nil {
			return collect(), err
		}

		var ready []model.Task
		for _, t := range tasks {
			if _, ok := done[t.ID]; ok {
				continue
			}
			if prerequisitesDone(t, done) {
				ready = append(ready, t)
			}
		}
		if len(ready) == 0 {
			metrics.DependencyCycles.Inc()
			return collect(), fmt.Errorf("%w among tasks %s", ErrDependencyCycle, pending(tasks, done))
		}

		out := make([]Outcome, len(ready))
		g, gctx := errgroup.WithContext(ctx)
		for i, t := range ready {
			prior := make(map[string]Outcome, len(t.DependsOn))
			for _, dep := range t.DependsOn {
				prior[dep] = done[dep]
			}
			g.Go(func() error {
				o, err := fn(gctx, t, prior)
				if err != nil {
					return fmt.Errorf("task %s: %w", t.ID, err)
				}
				out[i] = o
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return collect(), err
		}
		for i, t := range ready {
			done[t.ID] = out[i]
		}
	}
	return collect(), nil
}

func prerequisitesDone(t model.Task, done map[string]Outcome) bool {
	for _, dep := range t.DependsOn {
		if _, ok := done[dep]; !ok {
			return false
		}
	}
	return true
}

func pending(tasks []model.Task, done map[string]Outcome) string {
	var ids []string
	for _, t := range tasks {
		if _, ok := done[t.ID]; !ok {
			ids = append(ids, t.ID)
		}
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}
