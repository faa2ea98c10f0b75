package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err), which picks the status from the error
//  3. Error is mapped via core.MapError to get user-friendly message
//  4. Technical error + context is logged with request ID for correlation
//  5. User message is written as JSON

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/sheetsmith/internal/cleaning"
	"github.com/JonMunkholm/sheetsmith/internal/core"
	"github.com/JonMunkholm/sheetsmith/internal/export"
	"github.com/JonMunkholm/sheetsmith/internal/llm"
	"github.com/JonMunkholm/sheetsmith/internal/logging"
	"github.com/JonMunkholm/sheetsmith/internal/mapping"
	"github.com/JonMunkholm/sheetsmith/internal/schema"
	"github.com/JonMunkholm/sheetsmith/internal/table"
	"github.com/JonMunkholm/sheetsmith/internal/validation"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// respondError logs the technical error server-side and writes the mapped
// user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if errors.Is(err, errBadRequest) {
		userMsg = core.UserMessage{
			Message: "The request could not be read",
			Action:  "Check the request body and parameters",
			Code:    "REQ001",
		}
	}
	respondErrorJSON(w, userMsg, statusCode)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	var unsupported *export.UnsupportedFormatError
	var rateErr *llm.RateLimitError
	var authErr *llm.AuthError
	var serverErr *llm.ServerError

	switch {
	case errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, schema.ErrNotFound),
		errors.Is(err, core.ErrCellNotFound):
		return http.StatusNotFound

	case errors.Is(err, table.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, table.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType

	case errors.Is(err, mapping.ErrSetSaved),
		errors.Is(err, core.ErrMappingsNotSaved),
		errors.Is(err, core.ErrNotValidated),
		errors.Is(err, core.ErrNotCleaned):
		return http.StatusConflict

	case errors.Is(err, core.ErrBusy), errors.As(err, &rateErr):
		return http.StatusServiceUnavailable

	case errors.Is(err, mapping.ErrNoSuggester):
		return http.StatusNotImplemented

	case errors.As(err, &authErr), errors.As(err, &serverErr),
		errors.Is(err, mapping.ErrInvalidConfidence),
		errors.Is(err, llm.ErrBadResponse):
		return http.StatusBadGateway

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrNoFile),
		errors.Is(err, table.ErrEmptyFile),
		errors.Is(err, table.ErrSheetNotFound),
		errors.Is(err, mapping.ErrUnknownStrategy),
		errors.Is(err, mapping.ErrUnknownTarget),
		errors.Is(err, mapping.ErrUnknownSource),
		errors.Is(err, validation.ErrInvalidRule),
		errors.Is(err, cleaning.ErrInvalidAction),
		errors.As(err, &unsupported):
		return http.StatusBadRequest
	}

	if core.IsUserFacing(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
