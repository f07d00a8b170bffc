// Package plan checks declared action sequences against a fact set.
package plan

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"github.com/rcliao/agent-council/internal/config"
	"github.com/rcliao/agent-council/internal/logging"
	"github.com/rcliao/agent-council/internal/metrics"
	"github.com/rcliao/agent-council/internal/model"
)

// ErrUnknownAction is returned when a plan names an action missing from the schema.
var ErrUnknownAction = errors.New("unknown action")

// Action is a compiled schema entry.
type Action struct {
	Name          string
	Preconditions []Condition
	Effects       []Effect
}

// Report is the result of validating one plan.
type Report struct {
	Valid       bool        `json:"valid"`
	FailingStep int         `json:"failing_step"`
	Action      string      `json:"action,omitempty"`
	Condition   string      `json:"condition,omitempty"`
	Error       string      `json:"error,omitempty"`
	Hint        string      `json:"hint,omitempty"`
	Facts       model.Facts `json:"facts"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// Validator walks plans against a compiled action schema. It holds no
// per-call state and is safe for concurrent use.
type Validator struct {
	actions map[string]Action
	logger  *zap.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) { v.logger = logging.OrNop(l).Named("plan") }
}

// NewValidator compiles the action schema.
func NewValidator(cfg config.PlanConfig, opts ...Option) (*Validator, error) {
	v := &Validator{
		actions: make(map[string]Action, len(cfg.Actions)),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}

	var errs []error
	for name, spec := range cfg.Actions {
		a := Action{Name: name}
		for _, expr := range spec.Preconditions {
			c, err := ParseCondition(expr, cfg.Placeholders)
			if err != nil {
				errs = append(errs, fmt.Errorf("action %s: %w", name, err))
				continue
			}
			a.Preconditions = append(a.Preconditions, c)
		}
		for _, expr := range spec.Effects {
			e, err := ParseEffect(expr, cfg.Placeholders)
			if err != nil {
				errs = append(errs, fmt.Errorf("action %s: %w", name, err))
				continue
			}
			a.Effects = append(a.Effects, e)
		}
		v.actions[name] = a
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}
	return v, nil
}

// Actions returns the schema's action names in sorted order.
func (v *Validator) Actions() []string {
	names := make([]string, 0, len(v.actions))
	for name := range v.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Action returns a compiled action by name.
func (v *Validator) Action(name string) (Action, bool) {
	a, ok := v.actions[name]
	return a, ok
}

// Validate walks plan from initial facts. An unmet precondition yields a
// report with a repair hint and a nil error; an unknown action yields a
// report and an error wrapping ErrUnknownAction. initial is not modified.
func (v *Validator) Validate(p model.Plan, initial model.Facts) (Report, error) {
	facts := make(model.Facts, len(initial))
	for k, val := range initial {
		facts[k] = normalize(val)
	}

	var warnings []string
	fail := func(i int, action string) Report {
		return Report{FailingStep: i, Action: action, Facts: facts.Clone(), Warnings: warnings}
	}

	for i, step := range p {
		action, ok := v.actions[step.Action]
		if !ok {
			r := fail(i, step.Action)
			r.Error = fmt.Sprintf("unknown action %q", step.Action)
			metrics.PlanValidations.WithLabelValues("unknown_action").Inc()
			return r, fmt.Errorf("step %d: %w %q", i, ErrUnknownAction, step.Action)
		}

		for _, c := range action.Preconditions {
			if c.Holds(facts) {
				continue
			}
			r := fail(i, step.Action)
			r.Condition = c.Raw
			r.Error = fmt.Sprintf("precondition %s not met", c.Raw)
			r.Hint = fmt.Sprintf("insert a step before `%s` to satisfy `%s`, or choose an action that does not require it",
				step.Action, c.Raw)
			metrics.PlanValidations.WithLabelValues("unmet").Inc()
			v.logger.Debug("plan step failed",
				zap.Int("step", i),
				zap.String("action", step.Action),
				zap.String("condition", c.Raw))
			return r, nil
		}

		set := make(map[string]bool, len(action.Effects))
		for _, e := range action.Effects {
			if !e.Increment {
				facts[e.Key] = e.Value
				set[e.Key] = true
				continue
			}
			cur := 0.0
			if existing, ok := facts[e.Key]; ok {
				f, ok := toFloat(existing)
				if !ok {
					r := fail(i, step.Action)
					r.Condition = e.Raw
					r.Error = fmt.Sprintf("cannot apply %s: %s is %T, not a number", e.Raw, e.Key, existing)
					r.Hint = fmt.Sprintf("make `%s` numeric before `%s`", e.Key, step.Action)
					metrics.PlanValidations.WithLabelValues("effect_error").Inc()
					return r, nil
				}
				cur = f
			}
			facts[e.Key] = cur + e.Value.(float64)
			set[e.Key] = true
		}

		keys := make([]string, 0, len(step.Next))
		for k := range step.Next {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			declared := normalize(step.Next[k])
			if !set[k] {
				facts[k] = declared
				continue
			}
			if !reflect.DeepEqual(facts[k], declared) {
				warnings = append(warnings, fmt.Sprintf(
					"step %d (%s): declared %s=%v conflicts with computed %v", i, step.Action, k, declared, facts[k]))
			}
		}
	}

	metrics.PlanValidations.WithLabelValues("valid").Inc()
	return Report{Valid: true, FailingStep: -1, Facts: facts, Warnings: warnings}, nil
}
