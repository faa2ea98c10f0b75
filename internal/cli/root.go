// Package cli is the sheetsmith command tree. Each pipeline command opens
// an in-memory session over a local file and runs the same service the
// HTTP server uses.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetsmith/internal/application"
	"github.com/JonMunkholm/sheetsmith/internal/config"
	"github.com/JonMunkholm/sheetsmith/internal/logging"
)

// options holds the persistent flags shared by every command.
type options struct {
	envFile  string
	schema   string
	strategy string
	bizCtx   string
	sheet    string
	logLevel string
	asJSON   bool

	// loaded by PersistentPreRunE
	app *application.App
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "sheetsmith",
		Short:         "Map, validate and clean CSV and Excel files",
		Long:          `sheetsmith maps spreadsheet columns onto a target schema, validates the mapped data, fixes common formatting problems and exports the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load if present")
	f.StringVar(&opts.schema, "schema", "", "target schema (default from MAPPING_SCHEMA)")
	f.StringVar(&opts.strategy, "strategy", "", "mapping strategy: heuristic, provider or hybrid")
	f.StringVar(&opts.bizCtx, "context", "", "business context passed to the AI provider")
	f.StringVar(&opts.sheet, "sheet", "", "worksheet to read from .xlsx files (default first)")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.BoolVar(&opts.asJSON, "json", false, "print JSON instead of text")

	root.AddCommand(
		newMapCommand(opts),
		newValidateCommand(opts),
		newCleanCommand(opts),
		newSchemasCommand(opts),
		newServeCommand(opts),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// load reads .env and the environment, then builds the app. Flags
// override the loaded config.
func (o *options) load(cmd *cobra.Command) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.strategy != "" {
		cfg.Mapping.Strategy = o.strategy
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	app, err := application.New(cfg)
	if err != nil {
		return err
	}
	o.app = app
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := jsonEncoder(w)
	return enc.Encode(v)
}
