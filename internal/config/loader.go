package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from the process environment, applies defaults
// and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load over an arbitrary variable lookup. An empty value counts
// as unset. Every unparseable or missing variable is reported, not just the
// first.
func LoadFrom(lookup func(string) string) (*Config, error) {
	cfg := &Config{}

	var p problems
	fill(reflect.ValueOf(cfg).Elem(), lookup, &p)
	if err := p.err("config load"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// fill walks nested structs and sets every field carrying an env tag.
func fill(v reflect.Value, lookup func(string) string, p *problems) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if f.Type.Kind() == reflect.Struct {
			fill(fv, lookup, p)
			continue
		}

		name := f.Tag.Get("env")
		if name == "" {
			continue
		}
		raw := lookup(name)
		if raw == "" {
			if alt := f.Tag.Get("envAlt"); alt != "" {
				raw = lookup(alt)
			}
		}
		if raw == "" {
			if f.Tag.Get("required") == "true" {
				p.add("required environment variable %s is not set", name)
				continue
			}
			raw = f.Tag.Get("default")
		}
		if raw == "" {
			continue
		}
		if err := parseInto(fv, raw); err != nil {
			p.add("invalid value for %s=%q: %v", name, raw, err)
		}
	}
}

func parseInto(fv reflect.Value, raw string) error {
	switch {
	case fv.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))

	case fv.Kind() == reflect.String:
		fv.SetString(raw)

	case fv.Kind() == reflect.Int || fv.Kind() == reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return errors.New("not an integer")
		}
		fv.SetInt(n)

	case fv.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return errors.New("not a boolean")
		}
		fv.SetBool(b)

	case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.String:
		var list []string
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				list = append(list, s)
			}
		}
		fv.Set(reflect.ValueOf(list))

	default:
		return fmt.Errorf("unsupported field type %s", fv.Type())
	}
	return nil
}

// problems collects messages so one run reports everything wrong.
type problems []string

func (p *problems) add(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		p.add(format, args...)
	}
}

func (p problems) err(prefix string) error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("%s:\n  - %s", prefix, strings.Join(p, "\n  - "))
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate checks cross-field constraints and ranges and reports every
// failure in one error.
func (c *Config) Validate() error {
	var p problems

	// Server
	p.check(c.Server.Port > 0 && c.Server.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	p.check(c.Server.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	p.check(c.Server.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")

	// Upload
	p.check(c.Upload.MaxFileSize > 0, "UPLOAD_MAX_FILE_SIZE must be positive")
	p.check(c.Upload.SampleRows > 0, "UPLOAD_SAMPLE_ROWS must be positive")
	p.check(c.Upload.PreviewRows >= 0, "UPLOAD_PREVIEW_ROWS must be non-negative")
	p.check(c.Upload.MaxConcurrent > 0, "UPLOAD_MAX_CONCURRENT must be positive")
	p.check(c.Upload.MaxWaitTime > 0, "UPLOAD_MAX_WAIT_TIME must be positive")

	// Session
	p.check(c.Session.TTL > 0, "SESSION_TTL must be positive")
	p.check(c.Session.JanitorInterval > 0, "SESSION_JANITOR_INTERVAL must be positive")

	// Mapping
	switch strategy := strings.ToLower(c.Mapping.Strategy); {
	case !oneOf(strategy, "heuristic", "provider", "hybrid"):
		p.add("MAPPING_STRATEGY (%q) must be one of: heuristic, provider, hybrid", c.Mapping.Strategy)
	case strategy != "heuristic" && c.LLM.APIKey == "":
		p.add("MAPPING_STRATEGY is %q but LLM_API_KEY is empty; configure a key or use heuristic", strategy)
	}

	// LLM
	if c.LLM.APIKey != "" {
		p.check(c.LLM.BaseURL != "", "LLM_BASE_URL is required when LLM_API_KEY is set")
		p.check(c.LLM.Model != "", "LLM_MODEL is required when LLM_API_KEY is set")
	}
	p.check(c.LLM.Timeout > 0, "LLM_TIMEOUT must be positive")
	p.check(c.LLM.MaxRetries > 0, "LLM_MAX_RETRIES must be positive")

	// Rate limiting
	if c.Rate.Enabled {
		p.check(c.Rate.RequestsPerMinute > 0, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
		p.check(c.Rate.UploadLimit > 0, "RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")
	}

	// Logging
	p.check(oneOf(c.Logging.Level, "debug", "info", "warn", "error"),
		"LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	p.check(oneOf(c.Logging.Format, "text", "json"),
		"LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)

	return p.err("validation failed")
}

// String renders the config for logs with the LLM key masked.
func (c *Config) String() string {
	llmKey := "[unset]"
	if c.LLM.APIKey != "" {
		llmKey = "[MASKED]"
	}
	return fmt.Sprintf("Config{Server: {Host: %q, Port: %d}, "+
		"Upload: {MaxFileSize: %d, SampleRows: %d, MaxConcurrent: %d}, "+
		"Session: {TTL: %s}, Mapping: {Strategy: %q, Schema: %q}, "+
		"LLM: {APIKey: %s, Model: %q}, Rate: {Enabled: %v, RequestsPerMinute: %d}, "+
		"Logging: {Level: %q, Format: %q}}",
		c.Server.Host, c.Server.Port,
		c.Upload.MaxFileSize, c.Upload.SampleRows, c.Upload.MaxConcurrent,
		c.Session.TTL, c.Mapping.Strategy, c.Mapping.Schema,
		llmKey, c.LLM.Model, c.Rate.Enabled, c.Rate.RequestsPerMinute,
		c.Logging.Level, c.Logging.Format)
}
