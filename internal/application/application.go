// Package application wires configuration into a ready-to-use pipeline
// service and runs the HTTP server around it. Both cmd/server and the CLI
// build on it.
package application

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/sheetsmith/internal/config"
	"github.com/JonMunkholm/sheetsmith/internal/core"
	"github.com/JonMunkholm/sheetsmith/internal/llm"
	"github.com/JonMunkholm/sheetsmith/internal/mapping"
	"github.com/JonMunkholm/sheetsmith/internal/schema"
)

// App is a configured pipeline service.
type App struct {
	Config  *config.Config
	Service *core.Service
	Limiter *core.Limiter
}

// New builds the service described by cfg. Extra schemas and the rules
// file are loaded first; a provider is attached only when an LLM API key
// is configured.
func New(cfg *config.Config) (*App, error) {
	if cfg.Pipeline.SchemaFile != "" {
		loaded, err := schema.LoadFile(cfg.Pipeline.SchemaFile)
		if err != nil {
			return nil, err
		}
		slog.Info("schemas loaded", "file", cfg.Pipeline.SchemaFile, "count", len(loaded))
	}

	rules, err := core.LoadRuleSet(cfg.Pipeline.RulesFile)
	if err != nil {
		return nil, err
	}
	if cfg.Pipeline.RulesFile != "" {
		slog.Info("rules loaded", "file", cfg.Pipeline.RulesFile,
			"rules", len(rules.Rules), "actions", len(rules.Actions))
	}

	strategy, err := mapping.ParseStrategy(cfg.Mapping.Strategy)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	limiter := core.NewLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	svc, err := core.NewService(core.Options{
		MaxFileBytes:    cfg.Upload.MaxFileSize,
		SampleRows:      cfg.Upload.SampleRows,
		PreviewRows:     cfg.Upload.PreviewRows,
		DefaultSchema:   cfg.Mapping.Schema,
		DefaultStrategy: strategy,
		BusinessContext: cfg.Mapping.BusinessContext,
		SessionTTL:      cfg.Session.TTL,
		Rules:           rules.Rules,
		Actions:         rules.Actions,
	}, mapping.NewEngine(provider(cfg.LLM)), limiter)
	if err != nil {
		return nil, err
	}
	if _, err := svc.Schema(cfg.Mapping.Schema); err != nil {
		return nil, fmt.Errorf("config: MAPPING_SCHEMA: %w (have %s)", err, strings.Join(schema.Names(), ", "))
	}

	return &App{Config: cfg, Service: svc, Limiter: limiter}, nil
}

// provider returns the LLM-backed suggester, or nil without an API key.
func provider(c config.LLMConfig) mapping.Suggester {
	if c.APIKey == "" {
		slog.Debug("no LLM API key, AI mapping disabled")
		return nil
	}
	client := llm.NewClient(llm.Options{
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Timeout:    c.Timeout,
		MaxRetries: c.MaxRetries,
	})
	slog.Info("AI mapping enabled", "model", c.Model, "base_url", c.BaseURL)
	return llm.NewSuggester(client, c.Model)
}
