package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/upb/llm-chat-relay/services"
	"github.com/upb/llm-chat-relay/services/providers"
	"github.com/upb/llm-chat-relay/services/secrets"
)

const tracerName = "github.com/upb/llm-chat-relay/services/chat"

// Service dispatches chat turns to providers with a single fallback attempt
type Service struct {
	registry *providers.Registry
	options  Options
	tracer   trace.Tracer
	redactor *secrets.Redactor
	logger   *zap.Logger
}

// Option customizes a Service
type Option func(*Service)

// WithTracer sets the tracer used for dispatch spans
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithRedactor sets the redactor applied to provider errors before they are
// logged, traced or returned. It should know every configured credential.
func WithRedactor(redactor *secrets.Redactor) Option {
	return func(s *Service) {
		s.redactor = redactor
	}
}

// NewService creates a new chat dispatcher
func NewService(registry *providers.Registry, options Options, logger *zap.Logger, opts ...Option) *Service {
	defaults := DefaultOptions()
	if options.ProviderTimeout <= 0 {
		options.ProviderTimeout = defaults.ProviderTimeout
	}
	if options.MaxHistory <= 0 {
		options.MaxHistory = defaults.MaxHistory
	}

	s := &Service{
		registry: registry,
		options:  options,
		tracer:   otel.Tracer(tracerName),
		redactor: secrets.NewRedactor(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the provider registry the service dispatches to
func (s *Service) Registry() *providers.Registry {
	return s.registry
}

// Chat validates the request, invokes the requested provider and, if it fails,
// retries once against the first other available provider by priority
func (s *Service) Chat(ctx context.Context, req *Request) (*Outcome, error) {
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "chat.dispatch")
	defer span.End()

	// Step 1: validate
	if req == nil || strings.TrimSpace(req.Message) == "" {
		err := services.NewValidationError("Message is required")
		span.SetStatus(codes.Error, err.Message)
		return nil, err
	}
	if strings.TrimSpace(req.Provider) == "" {
		err := services.NewValidationError("Model is required")
		span.SetStatus(codes.Error, err.Message)
		return nil, err
	}

	// Step 2: resolve
	id, err := providers.ParseProviderID(req.Provider)
	if err != nil {
		domainErr := services.NewUnknownProviderError(req.Provider, err)
		span.SetStatus(codes.Error, domainErr.Message)
		return nil, domainErr
	}
	span.SetAttributes(attribute.String("chat.provider.requested", string(id)))

	primary, err := s.registry.Get(id)
	if err != nil {
		domainErr := services.NewUnknownProviderError(req.Provider, err)
		span.SetStatus(codes.Error, domainErr.Message)
		return nil, domainErr
	}

	providerReq := &providers.ChatRequest{
		Message: req.Message,
		History: providers.TrailingWindow(req.History, s.options.MaxHistory),
	}

	s.logger.Debug("dispatching chat request",
		zap.String("provider", string(id)),
		zap.Int("history", len(providerReq.History)),
		zap.Int("history_dropped", len(req.History)-len(providerReq.History)))

	// Step 3: primary attempt
	resp, primaryErr := s.invoke(ctx, primary, providerReq)
	if primaryErr == nil {
		outcome := s.buildOutcome(id, resp, start)
		s.finish(span, outcome)
		return outcome, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		// the caller went away; a fallback would answer nobody
		s.logger.Info("chat request cancelled",
			zap.String("provider", string(id)),
			zap.Error(ctxErr))
		span.SetStatus(codes.Error, ctxErr.Error())
		return nil, ctxErr
	}

	// Step 4: pick the fallback
	fallback, ok := s.registry.Fallback(id)
	if !ok {
		s.logger.Error("chat request failed with no fallback available",
			zap.String("provider", string(id)),
			zap.String("error", primaryErr.Error()))
		domainErr := services.NewAllProvidersFailedError(string(id), primaryErr, "", nil)
		span.SetStatus(codes.Error, domainErr.Message)
		return nil, domainErr
	}

	s.logger.Warn("provider failed, attempting fallback",
		zap.String("provider", string(id)),
		zap.String("fallback", string(fallback.ID())),
		zap.String("error", primaryErr.Error()))

	// Step 5: single fallback attempt
	resp, fallbackErr := s.invoke(ctx, fallback, providerReq)
	if fallbackErr != nil {
		s.logger.Error("fallback provider failed",
			zap.String("provider", string(id)),
			zap.String("fallback", string(fallback.ID())),
			zap.String("error", fallbackErr.Error()))
		domainErr := services.NewAllProvidersFailedError(string(id), primaryErr, string(fallback.ID()), fallbackErr)
		span.SetStatus(codes.Error, domainErr.Message)
		return nil, domainErr
	}

	outcome := s.buildOutcome(fallback.ID(), resp, start)
	outcome.Fallback = true
	outcome.OriginalError = primaryErr.Error()
	s.finish(span, outcome)
	return outcome, nil
}

// invoke calls one provider under its own timeout
func (s *Service) invoke(ctx context.Context, p providers.Provider, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.options.ProviderTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "provider.invoke",
		trace.WithAttributes(attribute.String("chat.provider", string(p.ID()))))
	defer span.End()

	resp, err := p.Invoke(ctx, req)
	if err == nil && resp == nil {
		err = providers.NewRequestFailedError(p.ID(), "empty response", 0, nil)
	}
	if err != nil {
		// adapters only mask their own key; another vendor may echo any of them
		err = s.redactor.RedactError(err)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			s.logger.Warn("provider call timed out",
				zap.String("provider", string(p.ID())),
				zap.Duration("timeout", s.options.ProviderTimeout))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("chat.model", resp.Model),
		attribute.Int("chat.tokens_used", resp.TokensUsed))
	return resp, nil
}

func (s *Service) buildOutcome(id providers.ProviderID, resp *providers.ChatResponse, start time.Time) *Outcome {
	return &Outcome{
		Success:    true,
		Response:   resp.Text,
		Model:      resp.Model,
		Provider:   id,
		TokensUsed: resp.TokensUsed,
		Latency:    time.Since(start),
	}
}

func (s *Service) finish(span trace.Span, outcome *Outcome) {
	span.SetAttributes(
		attribute.String("chat.provider.resolved", string(outcome.Provider)),
		attribute.String("chat.model", outcome.Model),
		attribute.Bool("chat.fallback", outcome.Fallback))

	s.logger.Info("chat request completed",
		zap.String("provider", string(outcome.Provider)),
		zap.String("model", outcome.Model),
		zap.Int("tokens", outcome.TokensUsed),
		zap.Bool("fallback", outcome.Fallback),
		zap.Duration("latency", outcome.Latency))
}
