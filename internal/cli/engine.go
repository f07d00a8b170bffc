package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/rcliao/agent-council/internal/agents"
	"github.com/rcliao/agent-council/internal/chunker"
	"github.com/rcliao/agent-council/internal/config"
	"github.com/rcliao/agent-council/internal/debate"
	"github.com/rcliao/agent-council/internal/embedding"
	"github.com/rcliao/agent-council/internal/llm"
	anthropicllm "github.com/rcliao/agent-council/internal/llm/anthropic"
	openaillm "github.com/rcliao/agent-council/internal/llm/openai"
	"github.com/rcliao/agent-council/internal/orchestrator"
	"github.com/rcliao/agent-council/internal/plan"
	"github.com/rcliao/agent-council/internal/router"
	"github.com/rcliao/agent-council/internal/store"
)

// engine bundles the components built from one Config.
type engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *store.SQLiteStore
	registry  *agents.Registry
	router    *router.Router
	validator *plan.Validator
	debate    *debate.Coordinator
	providers *llm.Providers
}

func openEngine(ctx context.Context) *engine {
	cfg, logger, s := mustOpen()

	registry := agents.NewRegistry(cfg.Allocation, agents.WithPersister(s), agents.WithLogger(logger))
	if err := registry.Load(ctx); err != nil {
		s.Close()
		exitErr("load agents", err)
	}

	validator, err := plan.NewValidator(cfg.Plan, plan.WithLogger(logger))
	if err != nil {
		s.Close()
		exitErr("compile plan schema", err)
	}

	return &engine{
		cfg:       cfg,
		logger:    logger,
		store:     s,
		registry:  registry,
		router:    router.New(cfg.Router, router.WithLogger(logger)),
		validator: validator,
		debate:    debate.New(cfg.Debate, debate.WithLogger(logger)),
		providers: newProviders(cfg.LLM),
	}
}

func (e *engine) Close() {
	e.store.Close()
	e.logger.Sync()
}

func newProviders(cfg config.LLMConfig) *llm.Providers {
	p := llm.NewProviders(cfg)
	p.Register(router.SafeDefault.Provider, llm.EchoGenerator{Confidence: cfg.DefaultConfidence})
	p.Register("openai", openaillm.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, func(o *openaillm.Options) {
		o.Temperature = cfg.Temperature
		o.MaxCompletionTokens = cfg.MaxTokens
	}))
	p.Register("anthropic", anthropicllm.New(cfg.AnthropicAPIKey, func(o *anthropicllm.Options) {
		o.Temperature = cfg.Temperature
		o.MaxTokens = cfg.MaxTokens
	}))
	return p
}

// buildIndex indexes evidence files with the configured embedder. It returns
// nil when no files are given.
func (e *engine) buildIndex(ctx context.Context, paths []string) (*embedding.Index, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	embedder, err := embedding.NewFromConfig(e.cfg.Embedding, e.cfg.LLM.OpenAIAPIKey)
	if err != nil {
		return nil, err
	}
	index := embedding.NewIndex(embedder, chunker.DefaultOptions())
	for _, path := range paths {
		data, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if _, err := index.Add(ctx, filepath.Base(path), string(data)); err != nil {
			return nil, fmt.Errorf("index %s: %w", path, err)
		}
	}
	e.logger.Debug("evidence indexed", zap.Int("files", len(paths)), zap.Int("passages", index.Len()))
	return index, nil
}

func (e *engine) orchestrator(retriever orchestrator.Retriever) *orchestrator.Orchestrator {
	o, err := orchestrator.New(e.cfg.Orchestrator, orchestrator.Components{
		Memory:    e.store,
		Registry:  e.registry,
		Router:    e.router,
		Validator: e.validator,
		Debate:    e.debate,
		Workers:   e.providers,
		Retriever: retriever,
	}, orchestrator.WithLogger(e.logger))
	if err != nil {
		e.Close()
		exitErr("create orchestrator", err)
	}
	return o
}
