// Package chunker splits evidence documents into passages for the retrieval index.
package chunker

import (
	"fmt"
	"strings"
)

const (
	DefaultTargetSize = 400
	DefaultMaxSize    = 600
)

// Options configures chunking behavior.
type Options struct {
	TargetSize int
	MaxSize    int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Passage is one indexed piece of an evidence document.
type Passage struct {
	ID        string // "<source>#<index>"
	Source    string
	Index     int
	Text      string
	StartLine int
	EndLine   int
}

// Split breaks a document into passages. Documents no longer than MaxSize
// become a single passage.
func Split(source, text string, opts Options) []Passage {
	if opts.TargetSize <= 0 || opts.MaxSize <= 0 {
		opts = DefaultOptions()
	}
	if opts.TargetSize > opts.MaxSize {
		opts.TargetSize = opts.MaxSize
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var spans []span
	if len(text) <= opts.MaxSize {
		spans = []span{{text: text, start: 1, end: strings.Count(text, "\n") + 1}}
	} else {
		spans = pack(paragraphs(text), opts)
	}

	out := make([]Passage, len(spans))
	for i, s := range spans {
		out[i] = Passage{
			ID:        fmt.Sprintf("%s#%d", source, i),
			Source:    source,
			Index:     i,
			Text:      s.text,
			StartLine: s.start,
			EndLine:   s.end,
		}
	}
	return out
}

type span struct {
	text  string
	start int
	end   int
}

// paragraphs splits on blank lines and heading lines.
func paragraphs(text string) []span {
	lines := strings.Split(text, "\n")
	var out []span
	var cur []string
	start := 1

	flush := func(end int) {
		t := strings.TrimSpace(strings.Join(cur, "\n"))
		if t != "" {
			out = append(out, span{text: t, start: start, end: end})
		}
		cur = nil
	}

	for i, line := range lines {
		n := i + 1
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush(n - 1)
			start = n + 1
		case strings.HasPrefix(trimmed, "#") && len(cur) > 0:
			flush(n - 1)
			start = n
			cur = append(cur, line)
		default:
			if len(cur) == 0 {
				start = n
			}
			cur = append(cur, line)
		}
	}
	flush(len(lines))
	return out
}

// pack merges neighbouring paragraphs up to TargetSize and splits any
// paragraph larger than MaxSize.
func pack(paras []span, opts Options) []span {
	var out []span
	var acc span

	flush := func() {
		if acc.text == "" {
			return
		}
		if len(acc.text) > opts.MaxSize {
			out = append(out, splitLong(acc, opts)...)
		} else {
			out = append(out, acc)
		}
		acc = span{}
	}

	for _, p := range paras {
		if acc.text == "" {
			acc = p
			continue
		}
		if len(acc.text)+2+len(p.text) <= opts.TargetSize {
			acc.text += "\n\n" + p.text
			acc.end = p.end
			continue
		}
		flush()
		acc = p
	}
	flush()
	return out
}

// splitLong cuts an oversized paragraph on sentence ends, falling back to
// word boundaries for sentences that are still too long.
func splitLong(s span, opts Options) []span {
	var out []span
	var cur strings.Builder

	emit := func() {
		t := strings.TrimSpace(cur.String())
		if t != "" {
			out = append(out, span{text: t, start: s.start, end: s.end})
		}
		cur.Reset()
	}

	for _, piece := range sentences(s.text) {
		for len(piece) > opts.MaxSize {
			cut := strings.LastIndexByte(piece[:opts.MaxSize], ' ')
			if cut <= 0 {
				cut = opts.MaxSize
			}
			emit()
			cur.WriteString(piece[:cut])
			emit()
			piece = strings.TrimSpace(piece[cut:])
		}
		if cur.Len() > 0 && cur.Len()+1+len(piece) > opts.TargetSize {
			emit()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(piece)
	}
	emit()
	return out
}

func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
				if t := strings.TrimSpace(text[start : i+1]); t != "" {
					out = append(out, t)
				}
				start = i + 1
			}
		}
	}
	if t := strings.TrimSpace(text[start:]); t != "" {
		out = append(out, t)
	}
	return out
}
