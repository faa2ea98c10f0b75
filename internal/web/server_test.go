package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetsmith/internal/config"
	"github.com/JonMunkholm/sheetsmith/internal/core"
	"github.com/JonMunkholm/sheetsmith/internal/validation"
)

const contactsCSV = "First Name,Last Name,Email Address,Phone,Zip\n" +
	"john,doe,john.doe@gmial.com,555.456.7890,1234\n" +
	"Ann,Lee,invalid-email,123,02134\n"

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{RequestTimeout: 10 * time.Second},
		Upload:   config.UploadConfig{MaxFileSize: 1 << 20},
		Rate:     config.RateLimitConfig{Enabled: false},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	svc, err := core.NewService(core.Options{MaxFileBytes: cfg.Upload.MaxFileSize}, nil, core.NewLimiter(2, time.Second))
	require.NoError(t, err)
	srv := NewServer(svc, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, srv *Server, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return do(t, srv, method, path, body, "application/json")
}

func uploadFile(t *testing.T, srv *Server, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("context", "sales"))
	require.NoError(t, mw.Close())
	return do(t, srv, http.MethodPost, "/api/sessions", &buf, mw.FormDataContentType())
}

func createSession(t *testing.T, srv *Server) core.Summary {
	t.Helper()
	rec := uploadFile(t, srv, "contacts.csv", contactsCSV)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sum core.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	return sum
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er), rec.Body.String())
	return er
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, testConfig())
	rec := do(t, srv, http.MethodGet, "/health", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var h HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	assert.False(t, h.AIAvailable)
	require.NotNil(t, h.Limiter)
	assert.Equal(t, 2, h.Limiter.Capacity)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestSchemas(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := do(t, srv, http.MethodGet, "/api/schemas", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"contacts"`)

	rec = do(t, srv, http.MethodGet, "/api/schemas/contacts", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"zip_code"`)

	rec = do(t, srv, http.MethodGet, "/api/schemas/leads", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SES002", decodeError(t, rec).Code)
}

func TestSessionFlow(t *testing.T) {
	srv := newTestServer(t, testConfig())
	sum := createSession(t, srv)
	base := "/api/sessions/" + sum.ID

	assert.Equal(t, "sales", sum.BusinessContext)
	assert.Equal(t, 2, sum.RowCount)
	assert.Len(t, sum.Mappings, 5)

	// Cleaning needs saved mappings.
	rec := doJSON(t, srv, http.MethodPost, base+"/clean", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "MAP004", decodeError(t, rec).Code)

	rec = doJSON(t, srv, http.MethodPut, base+"/mappings", SetMappingRequest{Source: "Zip", Target: "fax"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, base+"/mappings/save", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var saved MappingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Len(t, saved.Mappings, 5)

	rec = doJSON(t, srv, http.MethodPost, base+"/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view core.ValidationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 2, view.Summary.ErrorCount)
	assert.Equal(t, 2, view.Summary.WarningCount)

	rec = doJSON(t, srv, http.MethodPost, base+"/issues/resolve", validation.IssueKey{RowIndex: 1, Column: "email"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Len(t, view.OpenErrors, 1)

	rec = doJSON(t, srv, http.MethodPut, base+"/cells", map[string]any{"rowIndex": 1, "column": "Phone", "value": "617-555-0100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodPost, base+"/clean", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, base+"/diff", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var diff DiffResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diff))
	assert.Equal(t, 1, diff.ChangeCounts["email"])
	assert.Equal(t, 2, diff.ChangeCounts["phone"])

	rec = do(t, srv, http.MethodGet, base+"/export?format=csv", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `contacts_cleaned.csv`)
	lines := strings.Split(rec.Body.String(), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "first_name,last_name,email,phone,zip_code", lines[0])
	assert.Equal(t, "John,Doe,john.doe@gmail.com,+1-555-456-7890,1234", lines[1])
	assert.Equal(t, "Ann,Lee,invalid-email,+1-617-555-0100,02134", lines[2])

	rec = do(t, srv, http.MethodGet, base+"/export?format=pdf", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "EXP001", decodeError(t, rec).Code)

	rec = do(t, srv, http.MethodDelete, base, nil, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv, http.MethodGet, base, nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SES001", decodeError(t, rec).Code)
}

func TestSuggestMappings_NoProvider(t *testing.T) {
	srv := newTestServer(t, testConfig())
	sum := createSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/"+sum.ID+"/mappings/suggest?strategy=provider", nil)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "MAP001", decodeError(t, rec).Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/sessions/"+sum.ID+"/mappings/suggest?strategy=magic", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MAP002", decodeError(t, rec).Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/sessions/"+sum.ID+"/mappings/suggest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"strategy":"heuristic"`)
}

func TestCreateSession_Errors(t *testing.T) {
	srv := newTestServer(t, testConfig())

	tests := []struct {
		name     string
		file     string
		content  string
		wantCode int
		wantErr  string
	}{
		{"unsupported type", "notes.txt", "hello", http.StatusUnsupportedMediaType, "FILE003"},
		{"empty csv", "empty.csv", "\n\n", http.StatusBadRequest, "FILE005"},
		{"too large", "big.csv", "a\n" + strings.Repeat("x", 2<<20), http.StatusRequestEntityTooLarge, "FILE001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := uploadFile(t, srv, tt.file, tt.content)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decodeError(t, rec).Code)
		})
	}

	rec := do(t, srv, http.MethodPost, "/api/sessions", strings.NewReader(""), "multipart/form-data; boundary=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEditCell_BadRequest(t *testing.T) {
	srv := newTestServer(t, testConfig())
	sum := createSession(t, srv)
	path := "/api/sessions/" + sum.ID + "/cells"

	rec := doJSON(t, srv, http.MethodPut, path, map[string]any{"column": "Phone"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "REQ001", decodeError(t, rec).Code)

	rec = do(t, srv, http.MethodPut, path, strings.NewReader(`{"rowIndex":0,"column":"Phone","extra":1}`), "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPut, path, map[string]any{"rowIndex": 9, "column": "Phone", "value": "x"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SES003", decodeError(t, rec).Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, UploadLimit: 1}
	srv := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := do(t, srv, http.MethodGet, "/health", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, srv, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)
}

func TestExportFileName(t *testing.T) {
	tests := []struct {
		in, ext, want string
	}{
		{"contacts.csv", "xlsx", "contacts_cleaned.xlsx"},
		{"dir/leads.xlsx", "csv", "leads_cleaned.csv"},
		{"", "json", "export_cleaned.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exportFileName(tt.in, tt.ext))
	}
}
