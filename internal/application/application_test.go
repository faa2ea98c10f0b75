package application

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/sheetsmith/internal/config"
	"github.com/JonMunkholm/sheetsmith/internal/core"
	"github.com/JonMunkholm/sheetsmith/internal/schema"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	for _, k := range []string{"LLM_API_KEY", "OPENROUTER_API_KEY", "MAPPING_STRATEGY", "MAPPING_SCHEMA", "SCHEMA_FILE", "RULES_FILE"} {
		t.Setenv(k, "")
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNew_Defaults(t *testing.T) {
	app, err := New(loadConfig(t, nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if app.Service.HasProvider() {
		t.Error("provider attached without an API key")
	}
	if got := app.Limiter.Capacity(); got != app.Config.Upload.MaxConcurrent {
		t.Errorf("limiter capacity = %d, want %d", got, app.Config.Upload.MaxConcurrent)
	}
}

func TestNew_WithKey(t *testing.T) {
	app, err := New(loadConfig(t, map[string]string{
		"LLM_API_KEY":      "sk-test",
		"MAPPING_STRATEGY": "hybrid",
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !app.Service.HasProvider() {
		t.Error("expected provider with an API key")
	}
}

func TestNew_SchemaAndRulesFiles(t *testing.T) {
	schemaPath := writeFile(t, "schemas.yaml", `
schemas:
  - name: app_test_leads
    fields:
      - name: email
        type: email
        required: true
      - name: company
`)
	rulesPath := writeFile(t, "rules.yaml", `
rules:
  - column: company
    type: length
    min: 5
`)
	t.Cleanup(func() { schema.Remove("app_test_leads") })

	app, err := New(loadConfig(t, map[string]string{
		"SCHEMA_FILE":    schemaPath,
		"RULES_FILE":     rulesPath,
		"MAPPING_SCHEMA": "app_test_leads",
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	sum, err := app.Service.CreateSession(ctx, core.Upload{
		FileName: "leads.csv",
		Data:     []byte("Email,Company\na@b.com,IBM\nc@d.com,Acme Corp\n"),
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sum.Schema != "app_test_leads" {
		t.Errorf("Schema = %q, want app_test_leads", sum.Schema)
	}
	if _, err := app.Service.SaveMappings(ctx, sum.ID); err != nil {
		t.Fatalf("SaveMappings: %v", err)
	}
	view, err := app.Service.Validate(ctx, sum.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if view.Summary.ErrorCount != 1 || view.Errors[0].Column != "company" {
		t.Errorf("errors = %+v, want one company length error", view.Errors)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing schema file", map[string]string{"SCHEMA_FILE": filepath.Join(t.TempDir(), "none.yaml")}, "schema file"},
		{"bad rules file", map[string]string{"RULES_FILE": writeFile(t, "r.yaml", "rules:\n  - column: a\n    type: fuzzy\n")}, "rule"},
		{"unknown default schema", map[string]string{"MAPPING_SCHEMA": "nope"}, "MAPPING_SCHEMA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(loadConfig(t, tt.env))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"SERVER_HOST":              "127.0.0.1",
		"SESSION_JANITOR_INTERVAL": "10ms",
	})
	cfg.Server.Port = 0 // any free port
	app, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
