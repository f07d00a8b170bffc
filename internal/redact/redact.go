// Package redact strips PII from structured values before they are persisted.
package redact

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rcliao/agent-council/internal/config"
)

// DefaultMarker replaces every redacted span.
const DefaultMarker = "[REDACTED]"

// Redactor applies regex and literal rules recursively through a value.
type Redactor struct {
	patterns []*regexp.Regexp
	literals []*regexp.Regexp
	keys     []string
	marker   string
}

// New compiles the configured rules. Fails fast on an invalid pattern.
func New(cfg config.RedactionConfig) (*Redactor, error) {
	r := &Redactor{marker: cfg.Marker}
	if r.marker == "" {
		r.marker = DefaultMarker
	}

	for _, p := range cfg.Patterns {
		if len(p) > 200 {
			return nil, fmt.Errorf("redaction pattern too long (max 200 chars): %q", p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}

	for _, lit := range cfg.Literals {
		lit = strings.TrimSpace(lit)
		if lit == "" {
			continue
		}
		// The literal and an immediately assigned value ("password: x", "secret=x").
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(lit) + `(?:\s*[:=]\s*\S+)?`)
		r.literals = append(r.literals, re)
		r.keys = append(r.keys, strings.ToLower(lit))
	}
	return r, nil
}

// Marker returns the replacement text.
func (r *Redactor) Marker() string { return r.marker }

// String redacts a single string.
func (r *Redactor) String(s string) string {
	for _, re := range r.patterns {
		s = re.ReplaceAllString(s, r.marker)
	}
	for _, re := range r.literals {
		s = re.ReplaceAllString(s, r.marker)
	}
	return s
}

// Value redacts strings inside v, descending into maps and slices.
// Map entries whose key contains a literal token are replaced wholesale.
// Numeric leaves whose decimal form matches a pattern become the marker.
// The input is not modified.
func (r *Redactor) Value(v any) any {
	switch t := v.(type) {
	case string:
		return r.String(t)
	case float64:
		return r.number(v, strconv.FormatFloat(t, 'f', -1, 64))
	case float32:
		return r.number(v, strconv.FormatFloat(float64(t), 'f', -1, 32))
	case int:
		return r.number(v, strconv.FormatInt(int64(t), 10))
	case int64:
		return r.number(v, strconv.FormatInt(t, 10))
	case json.Number:
		return r.number(v, t.String())
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if r.sensitiveKey(k) {
				out[k] = r.marker
				continue
			}
			out[k] = r.Value(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = r.Value(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = r.String(val)
		}
		return out
	default:
		return v
	}
}

// Empty reports whether nothing but markers and whitespace is left in v.
func (r *Redactor) Empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(strings.ReplaceAll(t, r.marker, "")) == ""
	case map[string]any:
		for _, val := range t {
			if !r.Empty(val) {
				return false
			}
		}
		return true
	case []any:
		for _, val := range t {
			if !r.Empty(val) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (r *Redactor) number(v any, text string) any {
	for _, re := range r.patterns {
		if re.MatchString(text) {
			return r.marker
		}
	}
	return v
}

func (r *Redactor) sensitiveKey(k string) bool {
	lower := strings.ToLower(k)
	for _, lit := range r.keys {
		if strings.Contains(lower, lit) {
			return true
		}
	}
	return false
}
