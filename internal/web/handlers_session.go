package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetsmith/internal/core"
	"github.com/JonMunkholm/sheetsmith/internal/table"
)

// HealthResponse reports liveness plus load figures.
type HealthResponse struct {
	Status      string              `json:"status"`
	Sessions    int                 `json:"sessions"`
	Limiter     *core.LimiterStatus `json:"limiter,omitempty"`
	AIAvailable bool                `json:"aiAvailable"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "ok",
		Sessions:    s.service.Store().Len(),
		AIAvailable: s.service.HasProvider(),
	}
	if l := s.service.Limiter(); l != nil {
		st := l.Status()
		resp.Limiter = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Schemas())
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	sc, err := s.service.Schema(chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// handleCreateSession accepts a multipart upload with a "file" part and
// optional "schema", "sheet" and "context" fields.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	// Leave room for the multipart framing and form fields.
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+maxBodyBytes)

	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			s.respondError(w, r, fmt.Errorf("upload: %w", table.ErrFileTooLarge))
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: invalid form: %v", errBadRequest, err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, core.ErrNoFile)
		return
	}
	defer file.Close()

	if !table.IsSupported(header.Filename) {
		s.respondError(w, r, fmt.Errorf("%s: %w", header.Filename, table.ErrUnsupportedFormat))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	sum, err := s.service.CreateSession(r.Context(), core.Upload{
		FileName:        header.Filename,
		Data:            data,
		Sheet:           r.FormValue("sheet"),
		Schema:          r.FormValue("schema"),
		BusinessContext: r.FormValue("context"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sum, err := s.service.Session(r.Context(), sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteSession(r.Context(), sessionID(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
