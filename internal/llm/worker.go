// Package llm turns provider completions into scored drafts.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rcliao/agent-council/internal/config"
	"github.com/rcliao/agent-council/internal/model"
)

// ErrEmptyCompletion is returned when a provider returns no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Request is one draft request for a worker.
type Request struct {
	TaskID  string
	System  string
	Prompt  string
	Binding model.Binding
}

// Draft is a worker's answer with its self-reported confidence.
type Draft struct {
	Answer     string   `json:"answer"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence,omitempty"`
}

// Worker produces a draft answer.
type Worker interface {
	Draft(ctx context.Context, req Request) (Draft, error)
}

// GenerateRequest is a provider-neutral completion request.
type GenerateRequest struct {
	System      string
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int64
	// Tools and Reasoning carry the binding's capability flags. They are
	// advisory: the bundled adapters accept them but send plain completions.
	Tools     bool
	Reasoning bool
}

// Generator returns raw completion text from a provider.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

// ModelWorker asks a Generator for a JSON answer and parses it. Completions
// that are not the expected JSON are taken as plain answers at the default
// confidence.
type ModelWorker struct {
	gen               Generator
	defaultConfidence float64
	temperature       float64
	maxTokens         int64
}

// NewModelWorker creates a worker over gen.
func NewModelWorker(gen Generator, cfg config.LLMConfig) *ModelWorker {
	return &ModelWorker{
		gen:               gen,
		defaultConfidence: cfg.DefaultConfidence,
		temperature:       cfg.Temperature,
		maxTokens:         cfg.MaxTokens,
	}
}

// Draft implements Worker.
func (w *ModelWorker) Draft(ctx context.Context, req Request) (Draft, error) {
	text, err := w.gen.Generate(ctx, GenerateRequest{
		System:      req.System,
		Prompt:      req.Prompt,
		Model:       req.Binding.Model,
		Temperature: w.temperature,
		MaxTokens:   w.maxTokens,
		Tools:       req.Binding.ToolsEnabled,
		Reasoning:   req.Binding.ReasoningEnabled,
	})
	if err != nil {
		return Draft{}, fmt.Errorf("generate with %s/%s: %w", req.Binding.Provider, req.Binding.Model, err)
	}
	return ParseDraft(text, w.defaultConfidence)
}

type draftJSON struct {
	Answer     string   `json:"answer"`
	Confidence *float64 `json:"confidence"`
	Evidence   []string `json:"evidence"`
}

// ParseDraft reads {"answer","confidence","evidence"} from text, tolerating
// code fences and surrounding prose.
func ParseDraft(text string, defaultConfidence float64) (Draft, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Draft{}, ErrEmptyCompletion
	}

	if obj, ok := extractObject(text); ok {
		var dj draftJSON
		if err := json.Unmarshal([]byte(obj), &dj); err == nil && strings.TrimSpace(dj.Answer) != "" {
			d := Draft{Answer: strings.TrimSpace(dj.Answer), Confidence: defaultConfidence, Evidence: dj.Evidence}
			if dj.Confidence != nil {
				d.Confidence = clamp01(*dj.Confidence)
			}
			return d, nil
		}
	}
	return Draft{Answer: text, Confidence: defaultConfidence}, nil
}

func extractObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func clamp01(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// EchoGenerator answers with the first "Task:" line of the prompt. It backs
// the static provider so the engine runs without credentials.
type EchoGenerator struct {
	Confidence float64
}

func (g EchoGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	answer := ""
	for _, line := range strings.Split(req.Prompt, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "Task:"); ok {
			answer = strings.TrimSpace(rest)
			break
		}
	}
	if answer == "" {
		answer = strings.TrimSpace(req.Prompt)
	}
	b, err := json.Marshal(draftJSON{Answer: answer, Confidence: &g.Confidence})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Providers resolves workers by provider name.
type Providers struct {
	cfg config.LLMConfig

	mu   sync.RWMutex
	gens map[string]Generator
}

// NewProviders creates an empty provider table.
func NewProviders(cfg config.LLMConfig) *Providers {
	return &Providers{cfg: cfg, gens: map[string]Generator{}}
}

// Register binds a provider name to a generator.
func (p *Providers) Register(name string, g Generator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gens[name] = g
}

// Names returns the registered provider names.
func (p *Providers) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.gens))
	for name := range p.gens {
		out = append(out, name)
	}
	return out
}

// WorkerFor returns a worker for the binding's provider.
func (p *Providers) WorkerFor(_ model.AgentProfile, b model.Binding) (Worker, error) {
	p.mu.RLock()
	g, ok := p.gens[b.Provider]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no generator for provider %q", b.Provider)
	}
	return NewModelWorker(g, p.cfg), nil
}
