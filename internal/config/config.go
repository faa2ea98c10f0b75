// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Upload   UploadConfig
	Session  SessionConfig
	Mapping  MappingConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 90s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"90s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// UploadConfig holds file decoding and processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// SampleRows is how many rows mapping strategies see (default: 10)
	SampleRows int `env:"UPLOAD_SAMPLE_ROWS" default:"10"`

	// PreviewRows is how many rows a session summary carries (default: 10)
	PreviewRows int `env:"UPLOAD_PREVIEW_ROWS" default:"10"`

	// MaxConcurrent is the maximum number of parallel decodes and provider calls (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a processing slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
}

// SessionConfig holds in-memory session settings.
type SessionConfig struct {
	// TTL is how long an idle session is kept (default: 2h)
	TTL time.Duration `env:"SESSION_TTL" default:"2h"`

	// JanitorInterval is how often idle sessions are swept (default: 5m)
	JanitorInterval time.Duration `env:"SESSION_JANITOR_INTERVAL" default:"5m"`
}

// MappingConfig holds column mapping defaults.
type MappingConfig struct {
	// Strategy is the default strategy: heuristic, provider, hybrid (default: heuristic)
	Strategy string `env:"MAPPING_STRATEGY" default:"heuristic"`

	// BusinessContext is passed to the provider when an upload names none (default: general)
	BusinessContext string `env:"MAPPING_BUSINESS_CONTEXT" default:"general"`

	// Schema is the target schema for uploads that name none (default: contacts)
	Schema string `env:"MAPPING_SCHEMA" default:"contacts"`
}

// LLMConfig holds the chat-completions provider settings.
type LLMConfig struct {
	// APIKey enables provider-backed mapping when set.
	// Supports both LLM_API_KEY and OPENROUTER_API_KEY env vars.
	APIKey string `env:"LLM_API_KEY" envAlt:"OPENROUTER_API_KEY"`

	// BaseURL is the OpenAI-compatible API root (default: OpenRouter)
	BaseURL string `env:"LLM_BASE_URL" default:"https://openrouter.ai/api/v1"`

	// Model is the chat model used for suggestions (default: openai/gpt-4o-mini)
	Model string `env:"LLM_MODEL" default:"openai/gpt-4o-mini"`

	// Timeout bounds a single HTTP attempt (default: 60s)
	Timeout time.Duration `env:"LLM_TIMEOUT" default:"60s"`

	// MaxRetries is the attempt budget for 429 and 5xx responses (default: 3)
	MaxRetries int `env:"LLM_MAX_RETRIES" default:"3"`
}

// PipelineConfig points at optional files that extend the built-in pipeline.
type PipelineConfig struct {
	// SchemaFile is a YAML file of extra target schemas
	SchemaFile string `env:"SCHEMA_FILE"`

	// RulesFile is a YAML file of custom validation rules and cleaning actions
	RulesFile string `env:"RULES_FILE"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for session creation and suggestion (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
