package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetsmith/internal/cleaning"
	"github.com/JonMunkholm/sheetsmith/internal/export"
	"github.com/JonMunkholm/sheetsmith/internal/mapping"
	"github.com/JonMunkholm/sheetsmith/internal/schema"
	"github.com/JonMunkholm/sheetsmith/internal/validation"
)

const contactsCSV = "First Name,Last Name,Email Address,Phone,Zip\n" +
	"john,doe,john.doe@gmial.com,555.456.7890,1234\n" +
	"Ann,Lee,invalid-email,123,02134\n" +
	"short,row\n"

func newTestService(t *testing.T, opts Options, provider mapping.Suggester) *Service {
	t.Helper()
	svc, err := NewService(opts, mapping.NewEngine(provider), NewLimiter(2, time.Second))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func upload(t *testing.T, svc *Service) Summary {
	t.Helper()
	sum, err := svc.CreateSession(context.Background(), Upload{FileName: "contacts.csv", Data: []byte(contactsCSV)})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sum
}

func TestCreateSession(t *testing.T) {
	svc := newTestService(t, Options{}, nil)
	ctx := ContextWithClientIP(context.Background(), "10.0.0.7")

	sum, err := svc.CreateSession(ctx, Upload{FileName: "contacts.csv", Data: []byte(contactsCSV)})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if sum.ID == "" {
		t.Error("expected a session id")
	}
	if sum.Schema != schema.DefaultSchema {
		t.Errorf("Schema = %q, want %q", sum.Schema, schema.DefaultSchema)
	}
	if sum.RowCount != 2 || sum.DroppedRows != 1 {
		t.Errorf("RowCount = %d, DroppedRows = %d, want 2 and 1", sum.RowCount, sum.DroppedRows)
	}
	if sum.Stage != StageUploaded {
		t.Errorf("Stage = %q, want %q", sum.Stage, StageUploaded)
	}

	got := strings.Join(mapping.Targets(sum.Mappings), ",")
	if want := "first_name,last_name,email,phone,zip_code"; got != want {
		t.Errorf("initial targets = %q, want %q", got, want)
	}
	if len(sum.Unmapped) != 0 {
		t.Errorf("Unmapped = %v, want none", sum.Unmapped)
	}
	if len(sum.MissingRequired) != 0 {
		t.Errorf("MissingRequired = %v, want none", sum.MissingRequired)
	}

	sess, _ := svc.store.get(sum.ID)
	if sess.clientIP != "10.0.0.7" {
		t.Errorf("clientIP = %q", sess.clientIP)
	}
}

func TestCreateSession_XLSXListsSheets(t *testing.T) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", "Leads"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewSheet("Archive"); err != nil {
		t.Fatal(err)
	}
	for sheet, rows := range map[string][][]any{
		"Leads":   {{"Email"}, {"a@b.com"}},
		"Archive": {{"Phone"}, {"5554567890"}, {"5551234567"}},
	} {
		for i, row := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				t.Fatal(err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	svc := newTestService(t, Options{}, nil)
	sum, err := svc.CreateSession(context.Background(), Upload{FileName: "book.xlsx", Data: buf.Bytes(), Sheet: "Archive"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sum.Sheet != "Archive" || sum.RowCount != 2 {
		t.Errorf("Sheet = %q, RowCount = %d, want Archive and 2", sum.Sheet, sum.RowCount)
	}
	if got := strings.Join(sum.Sheets, ","); got != "Leads,Archive" {
		t.Errorf("Sheets = %q, want Leads,Archive", got)
	}
}

func TestCreateSession_Errors(t *testing.T) {
	svc := newTestService(t, Options{MaxFileBytes: 16}, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		up   Upload
		want error
	}{
		{"no data", Upload{FileName: "a.csv"}, ErrNoFile},
		{"unknown schema", Upload{FileName: "a.csv", Data: []byte("a\n1"), Schema: "leads"}, schema.ErrNotFound},
		{"too large", Upload{FileName: "a.csv", Data: []byte(contactsCSV)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSession(ctx, tt.up)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if svc.Store().Len() != 0 {
		t.Errorf("failed uploads left %d sessions", svc.Store().Len())
	}
}

func TestPipeline(t *testing.T) {
	svc := newTestService(t, Options{}, nil)
	ctx := context.Background()
	id := upload(t, svc).ID

	if _, err := svc.Validate(ctx, id); !errors.Is(err, ErrMappingsNotSaved) {
		t.Fatalf("Validate before save: err = %v", err)
	}
	if _, err := svc.Clean(ctx, id); !errors.Is(err, ErrMappingsNotSaved) {
		t.Fatalf("Clean before save: err = %v", err)
	}

	saved, err := svc.SaveMappings(ctx, id)
	if err != nil || len(saved) != 5 {
		t.Fatalf("SaveMappings = %d mappings, %v", len(saved), err)
	}
	if _, err := svc.SetMapping(ctx, id, "Zip", "city"); !errors.Is(err, mapping.ErrSetSaved) {
		t.Errorf("SetMapping on saved set: err = %v", err)
	}

	view, err := svc.Validate(ctx, id)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if view.Summary.ErrorCount != 2 || view.Summary.WarningCount != 2 {
		t.Errorf("errors = %d, warnings = %d, want 2 and 2", view.Summary.ErrorCount, view.Summary.WarningCount)
	}

	res, err := svc.Clean(ctx, id)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if res.TotalChanges != 4 {
		t.Errorf("TotalChanges = %d, want 4", res.TotalChanges)
	}
	if got := res.CleanedRows[0].Value("email"); got != "john.doe@gmail.com" {
		t.Errorf("email = %q", got)
	}
	if got := res.CleanedRows[0].Value("phone"); got != "+1-555-456-7890" {
		t.Errorf("phone = %q", got)
	}

	diff, err := svc.Diff(ctx, id)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(diff.Changes) != 4 || diff.TotalChanges != res.TotalChanges {
		t.Errorf("diff has %d changes totalling %d, want 4 and %d", len(diff.Changes), diff.TotalChanges, res.TotalChanges)
	}

	out, err := svc.Export(ctx, id, export.FormatCSV)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	wantCSV := "first_name,last_name,email,phone,zip_code\n" +
		"John,Doe,john.doe@gmail.com,+1-555-456-7890,1234\n" +
		"Ann,Lee,invalid-email,123,02134"
	if string(out) != wantCSV {
		t.Errorf("Export =\n%s\nwant\n%s", out, wantCSV)
	}

	sum, _ := svc.Session(ctx, id)
	if sum.Stage != StageCleaned {
		t.Errorf("Stage = %q, want %q", sum.Stage, StageCleaned)
	}
}

func TestResolveAndEdit(t *testing.T) {
	svc := newTestService(t, Options{}, nil)
	ctx := context.Background()
	id := upload(t, svc).ID
	if _, err := svc.ResolveIssue(ctx, id, validation.IssueKey{}); !errors.Is(err, ErrNotValidated) {
		t.Fatalf("ResolveIssue before validate: err = %v", err)
	}
	if _, err := svc.SaveMappings(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Validate(ctx, id); err != nil {
		t.Fatal(err)
	}

	view, err := svc.ResolveIssue(ctx, id, validation.IssueKey{RowIndex: 1, Column: "email"})
	if err != nil {
		t.Fatalf("ResolveIssue: %v", err)
	}
	if len(view.OpenErrors) != 1 || view.ResolvedCount != 1 {
		t.Errorf("open errors = %d, resolved = %d, want 1 and 1", len(view.OpenErrors), view.ResolvedCount)
	}
	if _, err := svc.ResolveIssue(ctx, id, validation.IssueKey{RowIndex: 0, Column: "first_name"}); !errors.Is(err, ErrCellNotFound) {
		t.Errorf("resolving a clean cell: err = %v", err)
	}

	// Fix the phone through its target name; the report refreshes.
	if _, err := svc.EditCell(ctx, id, 0, "phone", "555-456-7890"); err != nil {
		t.Fatalf("EditCell: %v", err)
	}
	sess, _ := svc.store.get(id)
	if got := sess.rows[0].Value("Phone"); got != "555-456-7890" {
		t.Errorf("source Phone = %q", got)
	}
	if sess.report.Summary.ErrorCount != 1 {
		t.Errorf("errors after edit = %d, want 1", sess.report.Summary.ErrorCount)
	}
	if !sess.resolved[validation.IssueKey{RowIndex: 1, Column: "email"}] {
		t.Error("edit dropped resolved marks")
	}

	if _, err := svc.EditCell(ctx, id, 5, "Phone", "x"); !errors.Is(err, ErrCellNotFound) {
		t.Errorf("out of range row: err = %v", err)
	}
	if _, err := svc.EditCell(ctx, id, 0, "Fax", "x"); !errors.Is(err, ErrCellNotFound) {
		t.Errorf("unknown column: err = %v", err)
	}
}

func TestEditCell_RebrokenCellReopensIssue(t *testing.T) {
	svc := newTestService(t, Options{}, nil)
	ctx := context.Background()
	id := upload(t, svc).ID
	if _, err := svc.SaveMappings(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Validate(ctx, id); err != nil {
		t.Fatal(err)
	}

	key := validation.IssueKey{RowIndex: 1, Column: "phone"}
	view, err := svc.ResolveIssue(ctx, id, key)
	if err != nil {
		t.Fatalf("ResolveIssue: %v", err)
	}
	openBefore := len(view.OpenWarnings)

	if _, err := svc.EditCell(ctx, id, 1, "phone", "555-456-7890"); err != nil {
		t.Fatalf("EditCell fix: %v", err)
	}
	sess, _ := svc.store.get(id)
	if sess.resolved[key] {
		t.Error("resolved mark kept on a cell with no issue")
	}

	if _, err := svc.EditCell(ctx, id, 1, "phone", "12"); err != nil {
		t.Fatalf("EditCell rebreak: %v", err)
	}
	sess.mu.Lock()
	view = sess.validationView()
	sess.mu.Unlock()

	var found bool
	for _, is := range view.OpenWarnings {
		if is.Key() == key && is.Message == validation.MsgIncompletePhone {
			found = true
		}
	}
	if !found {
		t.Errorf("re-broken phone not among open warnings: %+v", view.OpenWarnings)
	}
	if len(view.OpenWarnings) != openBefore+1 {
		t.Errorf("open warnings = %d, want %d", len(view.OpenWarnings), openBefore+1)
	}
	if view.ResolvedCount != 0 {
		t.Errorf("ResolvedCount = %d, want 0", view.ResolvedCount)
	}
}

func TestMappingEditsInvalidate(t *testing.T) {
	svc := newTestService(t, Options{}, nil)
	ctx := context.Background()
	id := upload(t, svc).ID

	if _, err := svc.SaveMappings(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Clean(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := svc.ReopenMappings(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Diff(ctx, id); !errors.Is(err, ErrNotCleaned) {
		t.Errorf("Diff after reopen: err = %v", err)
	}

	if _, err := svc.SetMapping(ctx, id, "Zip", "city"); err != nil {
		t.Fatalf("SetMapping: %v", err)
	}
	if err := svc.RemoveMapping(ctx, id, "Phone"); err != nil {
		t.Fatalf("RemoveMapping: %v", err)
	}
	sum, _ := svc.Session(ctx, id)
	if got := strings.Join(mapping.Targets(sum.Mappings), ","); got != "first_name,last_name,email,city" {
		t.Errorf("targets = %q", got)
	}
	if strings.Join(sum.Unmapped, ",") != "Phone" {
		t.Errorf("Unmapped = %v", sum.Unmapped)
	}
}

func TestSuggestMappings_Provider(t *testing.T) {
	provider := mapping.SuggesterFunc(func(ctx context.Context, req mapping.Request) ([]mapping.ColumnMapping, error) {
		mapping.RecordUsage(ctx, mapping.Usage{Calls: 1, PromptTokens: 80, CompletionTokens: 20, TotalTokens: 100})
		return []mapping.ColumnMapping{
			{SourceColumn: "Zip", TargetField: "zip_code", Confidence: 0.7, Reasoning: "postal"},
			{SourceColumn: "Zip", TargetField: "city", Confidence: 0.2},
		}, nil
	})
	svc := newTestService(t, Options{}, provider)
	ctx := context.Background()
	id := upload(t, svc).ID

	sug, err := svc.SuggestMappings(ctx, id, mapping.StrategyProvider)
	if err != nil {
		t.Fatalf("SuggestMappings: %v", err)
	}
	if len(sug.Mappings) != 1 || len(sug.Discarded) != 1 {
		t.Errorf("kept %d, discarded %d, want 1 and 1", len(sug.Mappings), len(sug.Discarded))
	}
	sum, _ := svc.Session(ctx, id)
	if len(sum.Mappings) != 1 || sum.Mappings[0].TargetField != "zip_code" {
		t.Errorf("session mappings = %+v", sum.Mappings)
	}
	if sug.Usage.Calls != 1 || sug.Usage.TotalTokens != 100 {
		t.Errorf("suggestion usage = %+v", sug.Usage)
	}

	if _, err := svc.SuggestMappings(ctx, id, mapping.StrategyProvider); err != nil {
		t.Fatalf("second SuggestMappings: %v", err)
	}
	sum, _ = svc.Session(ctx, id)
	if sum.ProviderUsage.Calls != 2 || sum.ProviderUsage.TotalTokens != 200 {
		t.Errorf("session usage = %+v, want 2 calls and 200 tokens", sum.ProviderUsage)
	}

	noProvider := newTestService(t, Options{}, nil)
	id = upload(t, noProvider).ID
	if _, err := noProvider.SuggestMappings(ctx, id, mapping.StrategyHybrid); !errors.Is(err, mapping.ErrNoSuggester) {
		t.Errorf("hybrid without provider: err = %v", err)
	}
}

func TestCustomRulesAndActions(t *testing.T) {
	svc := newTestService(t, Options{
		Rules:   []validation.Rule{{Column: "zip_code", Type: validation.RuleLength, Min: floatPtr(5)}},
		Actions: []cleaning.Action{{Field: "last_name", Type: cleaning.ActionUppercase}},
	}, nil)
	ctx := context.Background()
	id := upload(t, svc).ID
	if _, err := svc.SaveMappings(ctx, id); err != nil {
		t.Fatal(err)
	}

	view, err := svc.Validate(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if view.Summary.ErrorCount != 3 {
		t.Errorf("errors = %d, want 3", view.Summary.ErrorCount)
	}
	res, err := svc.Clean(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.CleanedRows[1].Value("last_name"); got != "LEE" {
		t.Errorf("last_name = %q, want LEE", got)
	}

	// "doe" is title-cased then upper-cased; both passes are counted.
	diff, err := svc.Diff(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if diff.TotalChanges != res.TotalChanges {
		t.Errorf("diff total = %d, clean total = %d", diff.TotalChanges, res.TotalChanges)
	}
	for cat, n := range res.ChangeCounts {
		if diff.ChangeCounts[cat] != n {
			t.Errorf("diff %s = %d, clean %s = %d", cat, diff.ChangeCounts[cat], cat, n)
		}
	}
	if diff.ChangeCounts[cleaning.CategoryNames] == 0 || diff.ChangeCounts[cleaning.CategoryCustom] == 0 {
		t.Errorf("counts = %v, want names and custom", diff.ChangeCounts)
	}

	if _, err := NewService(Options{Actions: []cleaning.Action{{Field: "x", Type: "spin"}}}, nil, nil); !errors.Is(err, cleaning.ErrInvalidAction) {
		t.Errorf("bad action: err = %v", err)
	}
}

func TestDeleteSession(t *testing.T) {
	svc := newTestService(t, Options{}, nil)
	ctx := context.Background()
	id := upload(t, svc).ID

	if err := svc.DeleteSession(ctx, id); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := svc.Session(ctx, id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Session after delete: err = %v", err)
	}
	if err := svc.DeleteSession(ctx, id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second delete: err = %v", err)
	}
}

func floatPtr(f float64) *float64 { return &f }
