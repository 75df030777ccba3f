package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/upb/llm-chat-relay/services/providers"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name:    "default configuration",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 3001, cfg.Server.Port)
				assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
				assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
				assert.Equal(t, "http://localhost:3000", cfg.Server.FrontendURL)
				assert.Equal(t, []providers.ProviderID{
					providers.Gemini, providers.HuggingFace, providers.OpenAI, providers.Mistral,
				}, cfg.Chat.FallbackOrder)
				assert.Equal(t, 30*time.Second, cfg.Chat.ProviderTimeout)
				assert.Equal(t, 1000, cfg.Chat.MaxOutputTokens)
				assert.Equal(t, 0.7, cfg.Chat.Temperature)
				assert.Equal(t, 10, cfg.Chat.MaxHistoryMessages)
				assert.Equal(t, "info", cfg.Observability.LogLevel)
				assert.Equal(t, "console", cfg.Observability.LogFormat)
				assert.False(t, cfg.Observability.TracingEnabled)
				assert.Empty(t, cfg.Providers.Secrets())
			},
		},
		{
			name: "provider credentials and overrides",
			envVars: map[string]string{
				"ENVIRONMENT":      "production",
				"GEMINI_API_KEY":   "  gemini-key-123  ",
				"OPENAI_API_KEY":   "sk-xxxxx",
				"OPENAI_MODEL":     "gpt-4o-mini",
				"MISTRAL_BASE_URL": "http://localhost:9999/v1",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.False(t, cfg.IsDevelopment())
				assert.Equal(t, "json", cfg.Observability.LogFormat)
				assert.Equal(t, "gemini-key-123", cfg.Providers.Gemini.APIKey)
				assert.Equal(t, "sk-xxxxx", cfg.Providers.OpenAI.APIKey)
				assert.Equal(t, "gpt-4o-mini", cfg.Providers.OpenAI.Model)
				assert.Equal(t, "http://localhost:9999/v1", cfg.Providers.Mistral.BaseURL)
				assert.Empty(t, cfg.Providers.HuggingFace.APIKey)
				assert.ElementsMatch(t, []string{"gemini-key-123", "sk-xxxxx"}, cfg.Providers.Secrets())
			},
		},
		{
			name: "custom timeouts and generation",
			envVars: map[string]string{
				"SERVER_READ_TIMEOUT":  "60s",
				"PROVIDER_TIMEOUT":     "5s",
				"MAX_OUTPUT_TOKENS":    "256",
				"TEMPERATURE":          "0.2",
				"MAX_HISTORY_MESSAGES": "4",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 5*time.Second, cfg.Chat.ProviderTimeout)
				assert.Equal(t, 4, cfg.Chat.MaxHistoryMessages)
				assert.Equal(t, providers.GenerationConfig{MaxTokens: 256, Temperature: 0.2}, cfg.Chat.Generation())
			},
		},
		{
			name: "fallback order override",
			envVars: map[string]string{
				"FALLBACK_ORDER": "Mistral, openai",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []providers.ProviderID{providers.Mistral, providers.OpenAI}, cfg.Chat.FallbackOrder)
			},
		},
		{
			name: "observability configuration",
			envVars: map[string]string{
				"LOG_LEVEL":        "debug",
				"LOG_FORMAT":       "console",
				"TRACING_ENABLED":  "true",
				"TRACING_ENDPOINT": "localhost:4318",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Observability.LogLevel)
				assert.Equal(t, "console", cfg.Observability.LogFormat)
				assert.True(t, cfg.Observability.TracingEnabled)
				assert.Equal(t, "localhost:4318", cfg.Observability.TracingEndpoint)
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "SERVER_PORT env var when PORT not set",
			envVars: map[string]string{
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9000, cfg.Server.Port)
			},
		},
		{
			name: "staging defaults to json logs",
			envVars: map[string]string{
				"ENVIRONMENT": "staging",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.IsDevelopment())
				assert.Equal(t, "json", cfg.Observability.LogFormat)
			},
		},
		{
			name: "explicit log format wins in development",
			envVars: map[string]string{
				"ENVIRONMENT": "dev",
				"LOG_FORMAT":  "json",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsDevelopment())
				assert.Equal(t, "json", cfg.Observability.LogFormat)
			},
		},
		{
			name:    "unknown provider in fallback order",
			envVars: map[string]string{"FALLBACK_ORDER": "gemini,claude"},
			wantErr: true,
		},
		{
			name:    "invalid port",
			envVars: map[string]string{"PORT": "not-a-port"},
			wantErr: true,
		},
		{
			name:    "tracing without endpoint",
			envVars: map[string]string{"TRACING_ENABLED": "true"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3001,
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: time.Second,
			FrontendURL:     "http://localhost:3000",
		},
		Chat: ChatConfig{
			ProviderTimeout:    time.Second,
			MaxOutputTokens:    1000,
			Temperature:        0.7,
			MaxHistoryMessages: 10,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
			errMsg:  "port must be between",
		},
		{
			name:    "zero provider timeout",
			mutate:  func(c *Config) { c.Chat.ProviderTimeout = 0 },
			wantErr: true,
			errMsg:  "provider timeout",
		},
		{
			name:    "temperature too high",
			mutate:  func(c *Config) { c.Chat.Temperature = 2.5 },
			wantErr: true,
			errMsg:  "temperature",
		},
		{
			name:    "empty history window",
			mutate:  func(c *Config) { c.Chat.MaxHistoryMessages = 0 },
			wantErr: true,
			errMsg:  "max history messages",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Observability.LogLevel = "loud" },
			wantErr: true,
			errMsg:  "invalid log level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Observability.LogFormat = "text" },
			wantErr: true,
			errMsg:  "log format",
		},
		{
			name:    "missing frontend url",
			mutate:  func(c *Config) { c.Server.FrontendURL = "" },
			wantErr: true,
			errMsg:  "frontend URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		want        bool
	}{
		{"production", "production", true},
		{"prod", "prod", true},
		{"development", "development", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsProduction())
		})
	}
}

func TestConfig_DefaultLogFormat(t *testing.T) {
	tests := []struct {
		environment string
		want        string
	}{
		{"development", "console"},
		{"dev", "console"},
		{"production", "json"},
		{"prod", "json"},
		{"staging", "json"},
	}

	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.defaultLogFormat())
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{
		Host: "0.0.0.0",
		Port: 3001,
	}

	assert.Equal(t, "0.0.0.0:3001", cfg.Address())
}

func TestParseFallbackOrder(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []providers.ProviderID
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"blank entries skipped", "openai,, ,gemini", []providers.ProviderID{providers.OpenAI, providers.Gemini}, false},
		{"duplicate", "openai,OPENAI", nil, true},
		{"unknown", "bard", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFallbackOrder(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProvidersConfig_LogFields(t *testing.T) {
	cfg := ProvidersConfig{
		Gemini: ProviderConfig{APIKey: "AIzaSyA-super-secret-value-1234567"},
	}

	fields := cfg.LogFields()
	require.Len(t, fields, len(providers.KnownProviders))

	for _, f := range fields {
		assert.Equal(t, zapcore.BoolType, f.Type)
		assert.NotContains(t, f.String, "secret")
	}
	assert.Equal(t, "gemini_configured", fields[0].Key)
	assert.Equal(t, int64(1), fields[0].Integer)
	assert.Equal(t, int64(0), fields[1].Integer)
}
