package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/upb/llm-chat-relay/services/providers"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Providers     ProvidersConfig
	Chat          ChatConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// FrontendURL is the single origin allowed by CORS
	FrontendURL string
}

// ProviderConfig holds one provider's credential and endpoint. Empty Model or
// BaseURL select the adapter's defaults.
type ProviderConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProvidersConfig holds LLM provider configurations
type ProvidersConfig struct {
	Gemini      ProviderConfig
	HuggingFace ProviderConfig
	OpenAI      ProviderConfig
	Mistral     ProviderConfig
}

// ChatConfig holds dispatcher settings
type ChatConfig struct {
	FallbackOrder      []providers.ProviderID
	ProviderTimeout    time.Duration
	MaxOutputTokens    int
	Temperature        float64
	MaxHistoryMessages int
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel        string
	LogFormat       string // json or console
	TracingEnabled  bool
	TracingEndpoint string
	TracingInsecure bool
	ServiceName     string
}

// defaults applied before the environment and optional config file
var defaults = map[string]interface{}{
	"ENVIRONMENT":             "development",
	"SERVER_HOST":             "0.0.0.0",
	"PORT":                    3001,
	"SERVER_READ_TIMEOUT":     "30s",
	"SERVER_WRITE_TIMEOUT":    "90s",
	"SERVER_SHUTDOWN_TIMEOUT": "10s",
	"FRONTEND_URL":            "http://localhost:3000",
	"FALLBACK_ORDER":          "gemini,huggingface,openai,mistral",
	"PROVIDER_TIMEOUT":        "30s",
	"MAX_OUTPUT_TOKENS":       1000,
	"TEMPERATURE":             0.7,
	"MAX_HISTORY_MESSAGES":    10,
	"LOG_LEVEL":               "info",
	"TRACING_ENABLED":         false,
	"TRACING_ENDPOINT":        "",
	"TRACING_INSECURE":        false,
	"SERVICE_NAME":            "llm-chat-relay",
}

// providerKeys are read from the environment with no default
var providerKeys = []string{
	"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL",
	"HUGGINGFACE_API_KEY", "HUGGINGFACE_MODEL", "HUGGINGFACE_BASE_URL",
	"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
	"MISTRAL_API_KEY", "MISTRAL_MODEL", "MISTRAL_BASE_URL",
}

// New creates a new Config from .env, the environment and an optional
// config.yaml, in increasing order of precedence: file, then environment
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range providerKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	if err := v.BindEnv("PORT", "PORT", "SERVER_PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind PORT: %w", err)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// env-only configuration is the normal case
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	order, err := ParseFallbackOrder(v.GetString("FALLBACK_ORDER"))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			FrontendURL:     v.GetString("FRONTEND_URL"),
		},
		Providers: ProvidersConfig{
			Gemini:      providerConfig(v, "GEMINI"),
			HuggingFace: providerConfig(v, "HUGGINGFACE"),
			OpenAI:      providerConfig(v, "OPENAI"),
			Mistral:     providerConfig(v, "MISTRAL"),
		},
		Chat: ChatConfig{
			FallbackOrder:      order,
			ProviderTimeout:    v.GetDuration("PROVIDER_TIMEOUT"),
			MaxOutputTokens:    v.GetInt("MAX_OUTPUT_TOKENS"),
			Temperature:        v.GetFloat64("TEMPERATURE"),
			MaxHistoryMessages: v.GetInt("MAX_HISTORY_MESSAGES"),
		},
		Observability: ObservabilityConfig{
			LogLevel:        v.GetString("LOG_LEVEL"),
			LogFormat:       v.GetString("LOG_FORMAT"),
			TracingEnabled:  v.GetBool("TRACING_ENABLED"),
			TracingEndpoint: v.GetString("TRACING_ENDPOINT"),
			TracingInsecure: v.GetBool("TRACING_INSECURE"),
			ServiceName:     v.GetString("SERVICE_NAME"),
		},
	}

	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = cfg.defaultLogFormat()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func providerConfig(v *viper.Viper, prefix string) ProviderConfig {
	return ProviderConfig{
		APIKey:  strings.TrimSpace(v.GetString(prefix + "_API_KEY")),
		Model:   v.GetString(prefix + "_MODEL"),
		BaseURL: v.GetString(prefix + "_BASE_URL"),
	}
}

// ParseFallbackOrder parses a comma-separated provider list. Blank entries are
// ignored; unknown or repeated providers are rejected.
func ParseFallbackOrder(raw string) ([]providers.ProviderID, error) {
	var order []providers.ProviderID
	seen := make(map[providers.ProviderID]bool)

	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := providers.ParseProviderID(part)
		if err != nil {
			return nil, fmt.Errorf("invalid FALLBACK_ORDER: %w", err)
		}
		if seen[id] {
			return nil, fmt.Errorf("invalid FALLBACK_ORDER: duplicate provider %s", id)
		}
		seen[id] = true
		order = append(order, id)
	}

	return order, nil
}

// Validate checks if all configuration fields are usable
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Server.FrontendURL == "" {
		return fmt.Errorf("frontend URL is required")
	}

	if c.Chat.ProviderTimeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}
	if c.Chat.MaxOutputTokens <= 0 {
		return fmt.Errorf("max output tokens must be positive")
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", c.Chat.Temperature)
	}
	if c.Chat.MaxHistoryMessages <= 0 {
		return fmt.Errorf("max history messages must be positive")
	}

	if _, err := zapcore.ParseLevel(c.Observability.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.Observability.LogLevel)
	}
	if c.Observability.LogFormat != "json" && c.Observability.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console, got %q", c.Observability.LogFormat)
	}
	if c.Observability.TracingEnabled && c.Observability.TracingEndpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// defaultLogFormat picks console output for local development and json
// everywhere else
func (c *Config) defaultLogFormat() string {
	switch {
	case c.IsProduction():
		return "json"
	case c.IsDevelopment():
		return "console"
	default:
		return "json"
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Get returns the configuration for one provider
func (p *ProvidersConfig) Get(id providers.ProviderID) ProviderConfig {
	switch id {
	case providers.Gemini:
		return p.Gemini
	case providers.HuggingFace:
		return p.HuggingFace
	case providers.OpenAI:
		return p.OpenAI
	case providers.Mistral:
		return p.Mistral
	default:
		return ProviderConfig{}
	}
}

// Secrets returns every configured credential, for redaction
func (p *ProvidersConfig) Secrets() []string {
	var out []string
	for _, id := range providers.KnownProviders {
		if key := p.Get(id).APIKey; key != "" {
			out = append(out, key)
		}
	}
	return out
}

// LogFields reports which credentials are present without their values
func (p *ProvidersConfig) LogFields() []zap.Field {
	fields := make([]zap.Field, 0, len(providers.KnownProviders))
	for _, id := range providers.KnownProviders {
		fields = append(fields, zap.Bool(string(id)+"_configured", p.Get(id).APIKey != ""))
	}
	return fields
}

// Generation returns the fixed generation budget for provider calls
func (c *ChatConfig) Generation() providers.GenerationConfig {
	return providers.GenerationConfig{
		MaxTokens:   c.MaxOutputTokens,
		Temperature: c.Temperature,
	}
}
