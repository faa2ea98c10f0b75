package core

import (
	"sync"
	"time"

	"github.com/JonMunkholm/sheetsmith/internal/cleaning"
	"github.com/JonMunkholm/sheetsmith/internal/mapping"
	"github.com/JonMunkholm/sheetsmith/internal/schema"
	"github.com/JonMunkholm/sheetsmith/internal/table"
	"github.com/JonMunkholm/sheetsmith/internal/validation"
)

// Stage is how far a session has progressed through the pipeline.
type Stage string

const (
	StageUploaded  Stage = "uploaded"
	StageMapped    Stage = "mapped"
	StageValidated Stage = "validated"
	StageCleaned   Stage = "cleaned"
)

// Session is one uploaded file and everything derived from it. All fields
// are guarded by mu; the Service is the only writer.
type Session struct {
	mu sync.Mutex

	id              string
	fileName        string
	clientIP        string
	schema          schema.Schema
	businessContext string

	table     *table.Table
	rows      []table.Row // working copy, user edits land here
	mappings  *mapping.Set
	discarded []mapping.ColumnMapping
	usage     mapping.Usage // provider usage across every suggestion

	report   *validation.Report
	resolved map[validation.IssueKey]bool
	cleaned  *cleaning.Result

	createdAt time.Time
	updatedAt time.Time
}

func (s *Session) stage() Stage {
	switch {
	case s.cleaned != nil:
		return StageCleaned
	case s.report != nil:
		return StageValidated
	case s.mappings.Saved():
		return StageMapped
	}
	return StageUploaded
}

// invalidate drops results derived from rows or mappings.
func (s *Session) invalidate() {
	s.report = nil
	s.resolved = make(map[validation.IssueKey]bool)
	s.cleaned = nil
}

// pruneResolved forgets marks on cells the current report has no issue for,
// so a cell that is fixed and later broken again shows its new issue.
func (s *Session) pruneResolved() {
	live := make(map[validation.IssueKey]bool, len(s.resolved))
	for _, list := range [][]validation.Issue{s.report.Errors, s.report.Warnings} {
		for _, is := range list {
			live[is.Key()] = true
		}
	}
	for key := range s.resolved {
		if !live[key] {
			delete(s.resolved, key)
		}
	}
}

func (s *Session) touch(now time.Time) {
	s.updatedAt = now
}

func (s *Session) lastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Summary is the client view of a session.
type Summary struct {
	ID              string                  `json:"id"`
	FileName        string                  `json:"fileName"`
	Sheet           string                  `json:"sheet,omitempty"`
	Sheets          []string                `json:"sheets,omitempty"`
	Schema          string                  `json:"schema"`
	BusinessContext string                  `json:"businessContext"`
	Stage           Stage                   `json:"stage"`
	Headers         []string                `json:"headers"`
	RowCount        int                     `json:"rowCount"`
	DroppedRows     int                     `json:"droppedRows"`
	Preview         []table.Row             `json:"preview"`
	Mappings        []mapping.ColumnMapping `json:"mappings"`
	MappingsSaved   bool                    `json:"mappingsSaved"`
	Unmapped        []string                `json:"unmapped"`
	MissingRequired []string                `json:"missingRequired"`
	ProviderUsage   mapping.Usage           `json:"providerUsage"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

// ValidationView is a report plus the issues the user has not resolved.
type ValidationView struct {
	validation.Report
	OpenErrors    []validation.Issue `json:"openErrors"`
	OpenWarnings  []validation.Issue `json:"openWarnings"`
	ResolvedCount int                `json:"resolvedCount"`
}

func (s *Session) summary(previewRows int) Summary {
	ms := s.mappings.Mappings()
	mapped := make(map[string]bool, len(ms))
	claimed := make(map[string]bool, len(ms))
	for _, m := range ms {
		mapped[m.SourceColumn] = true
		claimed[m.TargetField] = true
	}

	unmapped := []string{}
	for _, h := range s.table.Headers {
		if !mapped[h] {
			unmapped = append(unmapped, h)
		}
	}
	missing := []string{}
	for _, name := range s.schema.Required() {
		if !claimed[name] {
			missing = append(missing, name)
		}
	}

	preview := s.rows
	if previewRows >= 0 && len(preview) > previewRows {
		preview = preview[:previewRows]
	}

	return Summary{
		ID:              s.id,
		FileName:        s.fileName,
		Sheet:           s.table.Sheet,
		Sheets:          append([]string(nil), s.table.Sheets...),
		Schema:          s.schema.Name,
		BusinessContext: s.businessContext,
		Stage:           s.stage(),
		Headers:         append([]string(nil), s.table.Headers...),
		RowCount:        len(s.rows),
		DroppedRows:     s.table.Dropped,
		Preview:         cloneRows(preview),
		Mappings:        ms,
		MappingsSaved:   s.mappings.Saved(),
		Unmapped:        unmapped,
		MissingRequired: missing,
		ProviderUsage:   s.usage,
		CreatedAt:       s.createdAt,
		UpdatedAt:       s.updatedAt,
	}
}

func (s *Session) validationView() ValidationView {
	return ValidationView{
		Report:        *s.report,
		OpenErrors:    validation.Open(s.report.Errors, s.resolved),
		OpenWarnings:  validation.Open(s.report.Warnings, s.resolved),
		ResolvedCount: len(s.resolved),
	}
}

func cloneRows(rows []table.Row) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

// project re-keys rows by target field in mapping order without changing
// values. Later mappings win on a shared target; absent sources are skipped.
func project(rows []table.Row, ms []mapping.ColumnMapping) []table.Row {
	out := make([]table.Row, len(rows))
	for i, row := range rows {
		var r table.Row
		for _, m := range ms {
			if v, ok := row.Get(m.SourceColumn); ok {
				r.Set(m.TargetField, v)
			}
		}
		out[i] = r
	}
	return out
}
