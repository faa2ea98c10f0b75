package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetsmith/internal/mapping"
)

// SetMappingRequest maps one source column to a target field.
type SetMappingRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// MappingsResponse wraps a mapping list.
type MappingsResponse struct {
	Mappings []mapping.ColumnMapping `json:"mappings"`
}

func (s *Server) handleSuggestMappings(w http.ResponseWriter, r *http.Request) {
	var strategy mapping.Strategy
	if q := r.URL.Query().Get("strategy"); q != "" {
		parsed, err := mapping.ParseStrategy(q)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		strategy = parsed
	}

	sug, err := s.service.SuggestMappings(r.Context(), sessionID(r), strategy)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sug)
}

func (s *Server) handleSetMapping(w http.ResponseWriter, r *http.Request) {
	var req SetMappingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	m, err := s.service.SetMapping(r.Context(), sessionID(r), req.Source, req.Target)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleRemoveMapping(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RemoveMapping(r.Context(), sessionID(r), chi.URLParam(r, "source")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSaveMappings(w http.ResponseWriter, r *http.Request) {
	ms, err := s.service.SaveMappings(r.Context(), sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MappingsResponse{Mappings: ms})
}

func (s *Server) handleReopenMappings(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ReopenMappings(r.Context(), sessionID(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
