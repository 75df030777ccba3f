package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/llm-chat-relay/config"
	"github.com/upb/llm-chat-relay/internal/observability"
	"github.com/upb/llm-chat-relay/services/chat"
	"github.com/upb/llm-chat-relay/services/providers"
	"github.com/upb/llm-chat-relay/services/providers/gemini"
	"github.com/upb/llm-chat-relay/services/providers/huggingface"
	"github.com/upb/llm-chat-relay/services/providers/mistral"
	"github.com/upb/llm-chat-relay/services/providers/openai"
	"github.com/upb/llm-chat-relay/services/secrets"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Tracing *observability.Tracing

	// Redactor masks every configured credential in provider failures
	Redactor *secrets.Redactor

	// Provider Registry, immutable after construction
	Registry *providers.Registry

	// Dispatcher
	ChatService *chat.Service
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Redactor: secrets.NewRedactor(cfg.Providers.Secrets()...),
	}

	if err := deps.initTracing(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.ChatService = chat.NewService(deps.Registry, chat.Options{
		ProviderTimeout: cfg.Chat.ProviderTimeout,
		MaxHistory:      cfg.Chat.MaxHistoryMessages,
	}, logger,
		chat.WithTracer(deps.Tracing.Tracer()),
		chat.WithRedactor(deps.Redactor))

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

func (d *Dependencies) initTracing(ctx context.Context, cfg *config.Config) error {
	tracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.TracingEnabled,
		Endpoint:    cfg.Observability.TracingEndpoint,
		Insecure:    cfg.Observability.TracingInsecure,
		ServiceName: cfg.Observability.ServiceName,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.Tracing = tracing
	return nil
}

// initProviders builds one adapter per known provider. A missing credential
// yields an unavailable adapter and never blocks the others.
func (d *Dependencies) initProviders(cfg *config.Config) error {
	adapters := make([]providers.Provider, 0, len(providers.KnownProviders))
	for _, id := range providers.KnownProviders {
		adapter, err := NewAdapter(id, cfg.Providers.Get(id), cfg.Chat.Generation())
		if err != nil {
			return err
		}
		adapters = append(adapters, adapter)
	}

	registry, err := providers.NewRegistry(cfg.Chat.FallbackOrder, adapters, d.Logger)
	if err != nil {
		return err
	}

	if registry.Count() == 0 {
		d.Logger.Warn("no LLM providers configured")
	}

	order := make([]string, 0, len(providers.KnownProviders))
	for _, id := range registry.Priority() {
		order = append(order, string(id))
	}
	d.Logger.Info("provider credentials", cfg.Providers.LogFields()...)
	d.Logger.Info("fallback order resolved",
		zap.Strings("fallback_order", order),
		zap.Int("available", registry.Count()))
	d.Registry = registry
	return nil
}

// NewAdapter constructs the adapter for a single provider
func NewAdapter(id providers.ProviderID, pc config.ProviderConfig, gen providers.GenerationConfig) (providers.Provider, error) {
	switch id {
	case providers.Gemini:
		return gemini.NewAdapter(gemini.Config{
			APIKey:     pc.APIKey,
			BaseURL:    pc.BaseURL,
			Model:      pc.Model,
			Generation: gen,
			HTTPClient: &http.Client{},
		}), nil
	case providers.HuggingFace:
		return huggingface.NewAdapter(huggingface.Config{
			APIKey:     pc.APIKey,
			BaseURL:    pc.BaseURL,
			Model:      pc.Model,
			Generation: gen,
			HTTPClient: &http.Client{},
		}), nil
	case providers.OpenAI:
		return openai.NewAdapter(openai.Config{
			APIKey:     pc.APIKey,
			BaseURL:    pc.BaseURL,
			Model:      pc.Model,
			Generation: gen,
		})
	case providers.Mistral:
		return mistral.NewAdapter(mistral.Config{
			APIKey:     pc.APIKey,
			BaseURL:    pc.BaseURL,
			Model:      pc.Model,
			Generation: gen,
		})
	default:
		return nil, fmt.Errorf("%w: %s", providers.ErrUnknownProvider, id)
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if err := d.Tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down tracing: %w", err))
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
