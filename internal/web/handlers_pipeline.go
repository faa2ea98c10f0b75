package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/sheetsmith/internal/core"
	"github.com/JonMunkholm/sheetsmith/internal/export"
	"github.com/JonMunkholm/sheetsmith/internal/validation"
)

// EditCellRequest replaces one source value.
type EditCellRequest struct {
	RowIndex *int   `json:"rowIndex"`
	Column   string `json:"column"`
	Value    string `json:"value"`
}

// DiffResponse lists the cells cleaning changed with the cleaner's counts.
type DiffResponse core.CleaningDiff

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Validate(r.Context(), sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleResolveIssue(w http.ResponseWriter, r *http.Request) {
	var key validation.IssueKey
	if err := decodeJSON(w, r, &key); err != nil {
		s.respondError(w, r, err)
		return
	}

	view, err := s.service.ResolveIssue(r.Context(), sessionID(r), key)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEditCell(w http.ResponseWriter, r *http.Request) {
	var req EditCellRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.RowIndex == nil || req.Column == "" {
		s.respondError(w, r, fmt.Errorf("%w: rowIndex and column are required", errBadRequest))
		return
	}

	sum, err := s.service.EditCell(r.Context(), sessionID(r), *req.RowIndex, req.Column, req.Value)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Clean(r.Context(), sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	diff, err := s.service.Diff(r.Context(), sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DiffResponse(diff))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := export.FormatCSV
	if q := r.URL.Query().Get("format"); q != "" {
		f, err := export.ParseFormat(q)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		format = f
	}

	id := sessionID(r)
	sum, err := s.service.Session(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	data, err := s.service.Export(r.Context(), id, format)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", exportFileName(sum.FileName, string(format))))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
