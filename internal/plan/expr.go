package plan

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Comparison operators, two-character forms first so "<=" is not read as "<".
var operators = []string{"<=", ">=", "=", "<", ">"}

// Condition is a compiled precondition "key OP literal".
type Condition struct {
	Key   string
	Op    string
	Value any
	Raw   string
}

func (c Condition) String() string { return c.Raw }

// Effect is a compiled effect "key=value" or "key+=delta".
type Effect struct {
	Key       string
	Increment bool
	Value     any
	Raw       string
}

func (e Effect) String() string { return e.Raw }

// ParseLiteral coerces a literal: boolean (case-insensitive) first, then a
// finite number, then a string with surrounding quotes removed.
func ParseLiteral(s string) any {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func substitute(lit string, placeholders map[string]string) string {
	lit = strings.TrimSpace(lit)
	if v, ok := placeholders[lit]; ok {
		return v
	}
	return lit
}

// ParseCondition compiles a precondition expression.
func ParseCondition(expr string, placeholders map[string]string) (Condition, error) {
	raw := strings.TrimSpace(expr)
	for i := 0; i < len(raw); i++ {
		for _, op := range operators {
			if !strings.HasPrefix(raw[i:], op) {
				continue
			}
			key := strings.TrimSpace(raw[:i])
			lit := strings.TrimSpace(raw[i+len(op):])
			if key == "" || lit == "" {
				return Condition{}, fmt.Errorf("malformed condition %q", expr)
			}
			if strings.HasSuffix(key, "!") {
				return Condition{}, fmt.Errorf("unsupported operator %q in %q", "!"+op, expr)
			}
			if strings.HasPrefix(lit, "=") {
				return Condition{}, fmt.Errorf("unsupported operator %q in %q", op+"=", expr)
			}
			return Condition{
				Key:   key,
				Op:    op,
				Value: ParseLiteral(substitute(lit, placeholders)),
				Raw:   raw,
			}, nil
		}
	}
	return Condition{}, fmt.Errorf("condition %q has no operator (want one of = < > <= >=)", expr)
}

// ParseEffect compiles an effect expression.
func ParseEffect(expr string, placeholders map[string]string) (Effect, error) {
	raw := strings.TrimSpace(expr)

	if i := strings.Index(raw, "+="); i >= 0 {
		key := strings.TrimSpace(raw[:i])
		lit := substitute(raw[i+2:], placeholders)
		delta, ok := ParseLiteral(lit).(float64)
		if key == "" || !ok {
			return Effect{}, fmt.Errorf("malformed increment %q (want key+=number)", expr)
		}
		return Effect{Key: key, Increment: true, Value: delta, Raw: raw}, nil
	}

	i := strings.Index(raw, "=")
	if i < 0 {
		return Effect{}, fmt.Errorf("effect %q has no assignment", expr)
	}
	key := strings.TrimSpace(raw[:i])
	lit := strings.TrimSpace(raw[i+1:])
	if key == "" || lit == "" {
		return Effect{}, fmt.Errorf("malformed effect %q", expr)
	}
	return Effect{Key: key, Value: ParseLiteral(substitute(lit, placeholders)), Raw: raw}, nil
}

// Holds reports whether the condition is met by facts. A missing fact or a
// type mismatch is unmet.
func (c Condition) Holds(facts map[string]any) bool {
	fv, ok := facts[c.Key]
	if !ok {
		return false
	}

	switch want := c.Value.(type) {
	case bool:
		got, ok := fv.(bool)
		return ok && c.Op == "=" && got == want
	case float64:
		got, ok := toFloat(fv)
		if !ok {
			return false
		}
		return compare(c.Op, cmpFloat(got, want))
	case string:
		got, ok := fv.(string)
		if !ok {
			return false
		}
		return compare(c.Op, strings.Compare(got, want))
	}
	return false
}

func compare(op string, cmp int) bool {
	switch op {
	case "=":
		return cmp == 0
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// toFloat accepts the numeric types JSON and YAML decoders produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// normalize converts numeric fact values to float64.
func normalize(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}
