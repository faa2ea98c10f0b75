package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetsmith/internal/cleaning"
	"github.com/JonMunkholm/sheetsmith/internal/export"
	"github.com/JonMunkholm/sheetsmith/internal/logging"
	"github.com/JonMunkholm/sheetsmith/internal/mapping"
	"github.com/JonMunkholm/sheetsmith/internal/schema"
	"github.com/JonMunkholm/sheetsmith/internal/table"
	"github.com/JonMunkholm/sheetsmith/internal/validation"
)

var (
	// ErrNoFile is returned when an upload carries no bytes.
	ErrNoFile = errors.New("no file provided")

	// ErrMappingsNotSaved is returned by steps that need a saved mapping set.
	ErrMappingsNotSaved = errors.New("mappings not saved")

	// ErrNotValidated is returned when resolving issues before validating.
	ErrNotValidated = errors.New("data not validated yet")

	// ErrNotCleaned is returned by diff and export before cleaning.
	ErrNotCleaned = errors.New("data not cleaned yet")

	// ErrCellNotFound is returned for a row index or column that does not
	// exist, or an issue key that matches no issue.
	ErrCellNotFound = errors.New("cell not found")
)

const (
	// DefaultSampleRows is how many rows mapping strategies see.
	DefaultSampleRows = 10

	// DefaultPreviewRows is how many rows a Summary carries.
	DefaultPreviewRows = 10
)

// Options configures a Service. Zero values pick defaults.
type Options struct {
	MaxFileBytes    int64
	SampleRows      int
	PreviewRows     int
	DefaultSchema   string
	DefaultStrategy mapping.Strategy
	BusinessContext string
	SessionTTL      time.Duration
	Rules           []validation.Rule
	Actions         []cleaning.Action
}

// Service runs the upload, mapping, validation, cleaning and export steps
// against in-memory sessions.
type Service struct {
	opts      Options
	store     *SessionStore
	engine    *mapping.Engine
	validator *validation.Validator
	cleaner   *cleaning.Cleaner
	limiter   *Limiter
}

// NewService builds a Service. engine may be nil for heuristic-only
// mapping; limiter may be nil to run without a concurrency bound.
func NewService(opts Options, engine *mapping.Engine, limiter *Limiter) (*Service, error) {
	if opts.SampleRows <= 0 {
		opts.SampleRows = DefaultSampleRows
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = DefaultPreviewRows
	}
	if opts.DefaultSchema == "" {
		opts.DefaultSchema = schema.DefaultSchema
	}
	if opts.DefaultStrategy == "" {
		opts.DefaultStrategy = mapping.StrategyHeuristic
	}
	if engine == nil {
		engine = mapping.NewEngine(nil)
	}

	validator, err := validation.NewValidator(opts.Rules...)
	if err != nil {
		return nil, err
	}
	cleaner, err := cleaning.NewCleaner(opts.Actions...)
	if err != nil {
		return nil, err
	}

	return &Service{
		opts:      opts,
		store:     NewSessionStore(opts.SessionTTL),
		engine:    engine,
		validator: validator,
		cleaner:   cleaner,
		limiter:   limiter,
	}, nil
}

// Store exposes the session store for the janitor and health reporting.
func (s *Service) Store() *SessionStore { return s.store }

// Limiter returns the processing limiter, or nil.
func (s *Service) Limiter() *Limiter { return s.limiter }

// HasProvider reports whether provider-backed strategies are available.
func (s *Service) HasProvider() bool { return s.engine.HasProvider() }

// Schemas lists the registered target schemas.
func (s *Service) Schemas() []schema.Schema { return schema.All() }

// Schema returns one registered schema.
func (s *Service) Schema(name string) (schema.Schema, error) {
	return schema.Lookup(name)
}

// Upload is the input to CreateSession.
type Upload struct {
	FileName        string
	Data            []byte
	Sheet           string
	Schema          string
	BusinessContext string
}

// CreateSession decodes an uploaded file and opens a session for it. The
// session starts with heuristic mapping suggestions applied.
func (s *Service) CreateSession(ctx context.Context, up Upload) (Summary, error) {
	if len(up.Data) == 0 {
		return Summary{}, ErrNoFile
	}
	name := up.Schema
	if name == "" {
		name = s.opts.DefaultSchema
	}
	target, err := schema.Lookup(name)
	if err != nil {
		return Summary{}, err
	}

	var tbl *table.Table
	err = s.guard(ctx, func() error {
		var derr error
		tbl, derr = table.Decode(up.FileName, bytes.NewReader(up.Data), table.Options{
			Sheet:    up.Sheet,
			MaxBytes: s.opts.MaxFileBytes,
		})
		return derr
	})
	if err != nil {
		return Summary{}, fmt.Errorf("decode %s: %w", up.FileName, err)
	}

	bc := up.BusinessContext
	if bc == "" {
		bc = s.opts.BusinessContext
	}
	now := s.store.now()
	sess := &Session{
		id:              uuid.New().String(),
		fileName:        up.FileName,
		clientIP:        ClientIPFromContext(ctx),
		schema:          target,
		businessContext: bc,
		table:           tbl,
		rows:            tbl.CloneRows(),
		mappings:        mapping.NewSet(tbl.Headers, target.Fields),
		resolved:        make(map[validation.IssueKey]bool),
		createdAt:       now,
		updatedAt:       now,
	}
	initial := mapping.SuggestMappings(tbl.Headers, tbl.Sample(s.opts.SampleRows), target.Fields)
	if err := sess.mappings.Apply(initial); err != nil {
		return Summary{}, err
	}
	s.store.put(sess)

	logging.ForSession(ctx, sess.id).Info("session created",
		"file", up.FileName,
		"schema", target.Name,
		"rows", len(sess.rows),
		"dropped_rows", tbl.Dropped,
		"columns", len(tbl.Headers),
		"mapped", len(initial),
		"client_ip", sess.clientIP,
	)
	return sess.summary(s.opts.PreviewRows), nil
}

// Session returns the current view of a session.
func (s *Service) Session(ctx context.Context, id string) (Summary, error) {
	var out Summary
	err := s.with(id, func(sess *Session) error {
		out = sess.summary(s.opts.PreviewRows)
		return nil
	})
	return out, err
}

// DeleteSession drops a session.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if !s.store.Delete(id) {
		return ErrSessionNotFound
	}
	logging.ForSession(ctx, id).Info("session deleted")
	return nil
}

// SuggestMappings runs a mapping strategy and replaces the session's
// mappings with the result. An empty strategy uses the configured default.
func (s *Service) SuggestMappings(ctx context.Context, id string, strategy mapping.Strategy) (mapping.Suggestion, error) {
	if strategy == "" {
		strategy = s.opts.DefaultStrategy
	}
	sess, err := s.store.get(id)
	if err != nil {
		return mapping.Suggestion{}, err
	}

	sess.mu.Lock()
	if sess.mappings.Saved() {
		sess.mu.Unlock()
		return mapping.Suggestion{}, mapping.ErrSetSaved
	}
	req := mapping.Request{
		Headers:         append([]string(nil), sess.table.Headers...),
		SampleRows:      cloneRows(sess.table.Sample(s.opts.SampleRows)),
		Fields:          sess.schema.Fields,
		BusinessContext: sess.businessContext,
	}
	sess.mu.Unlock()

	// The provider call can be slow; the session stays unlocked meanwhile.
	var sug mapping.Suggestion
	err = s.guard(ctx, func() error {
		var serr error
		sug, serr = s.engine.Suggest(ctx, strategy, req)
		return serr
	})
	log := logging.ForSession(ctx, id)
	if sug.Usage != (mapping.Usage{}) {
		_ = s.with(id, func(sess *Session) error {
			sess.usage.Add(sug.Usage)
			return nil
		})
	}
	if err != nil {
		log.Warn("mapping suggestion failed", "strategy", strategy, "error", err)
		return mapping.Suggestion{}, err
	}
	if len(sug.Discarded) > 0 {
		log.Debug("provider entries discarded", "count", len(sug.Discarded), "entries", sug.Discarded)
	}

	err = s.with(id, func(sess *Session) error {
		if err := sess.mappings.Apply(sug.Mappings); err != nil {
			return err
		}
		sess.discarded = sug.Discarded
		sess.invalidate()
		return nil
	})
	if err != nil {
		return mapping.Suggestion{}, err
	}
	log.Info("mappings suggested",
		"strategy", strategy,
		"mapped", len(sug.Mappings),
		"discarded", len(sug.Discarded),
		"provider_calls", sug.Usage.Calls,
		"tokens", sug.Usage.TotalTokens,
	)
	return sug, nil
}

// SetMapping maps source to target by hand.
func (s *Service) SetMapping(ctx context.Context, id, source, target string) (mapping.ColumnMapping, error) {
	var out mapping.ColumnMapping
	err := s.with(id, func(sess *Session) error {
		m, err := sess.mappings.SetMapping(source, target)
		if err != nil {
			return err
		}
		out = m
		sess.invalidate()
		return nil
	})
	if err == nil {
		logging.ForSession(ctx, id).Debug("mapping set", "source", source, "target", target)
	}
	return out, err
}

// RemoveMapping unmaps a source column.
func (s *Service) RemoveMapping(ctx context.Context, id, source string) error {
	return s.with(id, func(sess *Session) error {
		if err := sess.mappings.Remove(source); err != nil {
			return err
		}
		sess.invalidate()
		return nil
	})
}

// SaveMappings freezes the mapping set so it can be validated and cleaned.
func (s *Service) SaveMappings(ctx context.Context, id string) ([]mapping.ColumnMapping, error) {
	var out []mapping.ColumnMapping
	err := s.with(id, func(sess *Session) error {
		out = sess.mappings.Save().Mappings()
		return nil
	})
	if err == nil {
		logging.ForSession(ctx, id).Info("mappings saved", "count", len(out))
	}
	return out, err
}

// ReopenMappings unfreezes the mapping set and drops derived results.
func (s *Service) ReopenMappings(ctx context.Context, id string) error {
	return s.with(id, func(sess *Session) error {
		sess.mappings.Reopen()
		sess.invalidate()
		return nil
	})
}

// Validate checks the mapped rows. Issues are keyed by target field.
// Resolved marks are cleared.
func (s *Service) Validate(ctx context.Context, id string) (ValidationView, error) {
	var out ValidationView
	err := s.with(id, func(sess *Session) error {
		if !sess.mappings.Saved() {
			return ErrMappingsNotSaved
		}
		s.runValidation(sess)
		sess.resolved = make(map[validation.IssueKey]bool)
		out = sess.validationView()
		return nil
	})
	if err == nil {
		logging.ForSession(ctx, id).Info("validation complete",
			"errors", out.Summary.ErrorCount,
			"warnings", out.Summary.WarningCount,
		)
	}
	return out, err
}

func (s *Service) runValidation(sess *Session) {
	rep := s.validator.Validate(project(sess.rows, sess.mappings.Mappings()))
	sess.report = &rep
}

// ResolveIssue marks the issues on one cell as dealt with.
func (s *Service) ResolveIssue(ctx context.Context, id string, key validation.IssueKey) (ValidationView, error) {
	var out ValidationView
	err := s.with(id, func(sess *Session) error {
		if sess.report == nil {
			return ErrNotValidated
		}
		if !hasIssue(sess.report, key) {
			return fmt.Errorf("%w: no issue at row %d column %q", ErrCellNotFound, key.RowIndex, key.Column)
		}
		sess.resolved[key] = true
		out = sess.validationView()
		return nil
	})
	return out, err
}

func hasIssue(rep *validation.Report, key validation.IssueKey) bool {
	for _, list := range [][]validation.Issue{rep.Errors, rep.Warnings} {
		for _, is := range list {
			if is.Key() == key {
				return true
			}
		}
	}
	return false
}

// EditCell replaces one source value. column may name a source column or
// a mapped target field. Cleaning results are dropped, and an existing
// validation report is refreshed. Resolved marks survive only on cells that
// still have an issue.
func (s *Service) EditCell(ctx context.Context, id string, rowIndex int, column, value string) (Summary, error) {
	var out Summary
	err := s.with(id, func(sess *Session) error {
		if rowIndex < 0 || rowIndex >= len(sess.rows) {
			return fmt.Errorf("%w: row %d", ErrCellNotFound, rowIndex)
		}
		source, ok := resolveColumn(sess, column)
		if !ok {
			return fmt.Errorf("%w: column %q", ErrCellNotFound, column)
		}
		sess.rows[rowIndex].Set(source, value)
		sess.cleaned = nil
		if sess.report != nil {
			s.runValidation(sess)
			sess.pruneResolved()
		}
		out = sess.summary(s.opts.PreviewRows)
		return nil
	})
	if err == nil {
		logging.ForSession(ctx, id).Debug("cell edited", "row", rowIndex, "column", column)
	}
	return out, err
}

func resolveColumn(sess *Session, column string) (string, bool) {
	for _, h := range sess.table.Headers {
		if h == column {
			return h, true
		}
	}
	ms := sess.mappings.Mappings()
	for i := len(ms) - 1; i >= 0; i-- {
		if ms[i].TargetField == column {
			return ms[i].SourceColumn, true
		}
	}
	return "", false
}

// Clean runs the cleaning engine over the working rows using the saved
// mappings.
func (s *Service) Clean(ctx context.Context, id string) (cleaning.Result, error) {
	var out cleaning.Result
	err := s.with(id, func(sess *Session) error {
		if !sess.mappings.Saved() {
			return ErrMappingsNotSaved
		}
		res := s.cleaner.Clean(sess.rows, sess.mappings.Mappings())
		sess.cleaned = &res
		out = res
		return nil
	})
	if err == nil {
		logging.ForSession(ctx, id).Info("cleaning complete",
			"rows", len(out.CleanedRows),
			"changes", out.TotalChanges,
			"cells_changed", len(out.Changes),
		)
	}
	return out, err
}

// CleaningDiff is a cleaning result without the cleaned rows. Counts are
// the cleaner's own, so a cell touched by a built-in transform and a custom
// action counts once in each category.
type CleaningDiff struct {
	Changes      []cleaning.CellChange     `json:"changes"`
	ChangeCounts map[cleaning.Category]int `json:"changeCounts"`
	TotalChanges int                       `json:"totalChanges"`
}

// Diff returns the cells cleaning changed.
func (s *Service) Diff(ctx context.Context, id string) (CleaningDiff, error) {
	var out CleaningDiff
	err := s.with(id, func(sess *Session) error {
		if sess.cleaned == nil {
			return ErrNotCleaned
		}
		counts := make(map[cleaning.Category]int, len(sess.cleaned.ChangeCounts))
		for c, n := range sess.cleaned.ChangeCounts {
			counts[c] = n
		}
		out = CleaningDiff{
			Changes:      append([]cleaning.CellChange{}, sess.cleaned.Changes...),
			ChangeCounts: counts,
			TotalChanges: sess.cleaned.TotalChanges,
		}
		return nil
	})
	return out, err
}

// Export encodes the cleaned rows. Columns follow the saved mappings.
func (s *Service) Export(ctx context.Context, id string, format export.Format) ([]byte, error) {
	var rows []table.Row
	var headers []string
	err := s.with(id, func(sess *Session) error {
		if sess.cleaned == nil {
			return ErrNotCleaned
		}
		rows = cloneRows(sess.cleaned.CleanedRows)
		headers = uniqueTargets(sess.mappings.Mappings())
		return nil
	})
	if err != nil {
		return nil, err
	}

	out, err := export.Encode(rows, format, export.WithHeaders(headers...))
	if err != nil {
		return nil, err
	}
	logging.ForSession(ctx, id).Info("export complete", "format", format, "bytes", len(out))
	return out, nil
}

func uniqueTargets(ms []mapping.ColumnMapping) []string {
	seen := make(map[string]bool, len(ms))
	out := make([]string, 0, len(ms))
	for _, t := range mapping.Targets(ms) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// with runs fn with the session locked and bumps its last-used time.
func (s *Service) with(id string, fn func(*Session) error) error {
	sess, err := s.store.get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := fn(sess); err != nil {
		return err
	}
	sess.touch(s.store.now())
	return nil
}

// guard runs fn under the limiter when one is configured.
func (s *Service) guard(ctx context.Context, fn func() error) error {
	if s.limiter == nil {
		return fn()
	}
	return s.limiter.Do(ctx, fn)
}
