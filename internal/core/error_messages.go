// # Error Codes
//
// Every error that reaches a client is reduced to a UserMessage carrying a
// stable code that can be quoted back in a bug report. The technical error
// is logged, never shown.
//
//	FILE001  upload exceeds the size limit
//	FILE002  not a readable CSV or xlsx workbook
//	FILE003  extension or worksheet not supported
//	FILE004  no file in the request
//	FILE005  no header row
//
//	MAP001   provider strategy requested without a provider
//	MAP002   unknown strategy name
//	MAP003   provider returned unusable suggestions
//	MAP004   mapping edit rejected (unknown column or field, set saved or not saved)
//
//	VAL001   invalid custom validation rule
//	CLN001   invalid custom cleaning action
//
//	EXP001   unknown export format
//	EXP002   nothing to export yet
//
//	SES001   session expired or deleted
//	SES002   schema not registered
//	SES003   row, column or issue does not exist
//	SES004   issue resolved before validation ran
//
//	UPL002   limiter full
//	UPL004   request cancelled
//	UPL005   request timed out
//
//	ERR000   anything else
//
// Errors are matched by identity first (errors.Is, errors.As) and then, for
// errors that only exist as text such as decoder failures, by substring.

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/sheetsmith/internal/cleaning"
	"github.com/JonMunkholm/sheetsmith/internal/export"
	"github.com/JonMunkholm/sheetsmith/internal/llm"
	"github.com/JonMunkholm/sheetsmith/internal/mapping"
	"github.com/JonMunkholm/sheetsmith/internal/schema"
	"github.com/JonMunkholm/sheetsmith/internal/table"
	"github.com/JonMunkholm/sheetsmith/internal/validation"
)

// UserMessage is the client-facing form of an error.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

var (
	msgFileTooLarge = UserMessage{"File exceeds the upload size limit", "Split the file into smaller chunks", "FILE001"}
	msgUnreadable   = UserMessage{"File is not a valid CSV or Excel workbook", "Re-export the file as CSV (comma-separated) or .xlsx", "FILE002"}
	msgUnsupported  = UserMessage{"Only .csv and .xlsx files are accepted", "Convert the file to CSV or .xlsx", "FILE003"}
	msgNoFile       = UserMessage{"No file was selected", "Please select a file to upload", "FILE004"}
	msgEmptyFile    = UserMessage{"The uploaded file has no header row", "Please upload a file with a header row", "FILE005"}

	msgNoProvider    = UserMessage{"AI suggestions are not configured", "Use the heuristic strategy or configure an LLM API key", "MAP001"}
	msgBadStrategy   = UserMessage{"Unknown mapping strategy", "Use heuristic, provider or hybrid", "MAP002"}
	msgBadSuggestion = UserMessage{"The suggestion provider returned unusable data", "Try again or map the columns manually", "MAP003"}
	msgBadMapping    = UserMessage{"That mapping cannot be applied", "Pick a column from the file and a field from the schema, and reopen saved mappings before editing", "MAP004"}
	msgNotSaved      = UserMessage{"Mappings have not been saved", "Review and save the column mappings first", "MAP004"}

	msgBadRule   = UserMessage{"A validation rule is invalid", "Check the rule's column, type and pattern", "VAL001"}
	msgBadAction = UserMessage{"A cleaning action is invalid", "Check the action's field and type", "CLN001"}

	msgBadFormat       = UserMessage{"Unsupported export format", "Use csv, json or xlsx", "EXP001"}
	msgNothingToExport = UserMessage{"There is nothing to export yet", "Save mappings and clean the data before exporting", "EXP002"}

	msgNoSession    = UserMessage{"Session not found", "The session may have expired. Please upload the file again", "SES001"}
	msgNoSchema     = UserMessage{"Unknown target schema", "Pick one of the listed schemas", "SES002"}
	msgNoCell       = UserMessage{"That row or column does not exist", "Refresh the session and pick a cell from the current data", "SES003"}
	msgNotValidated = UserMessage{"The data has not been validated", "Run validation first", "SES004"}

	msgBusy      = UserMessage{"System is busy processing other uploads", "Please wait a moment and try again", "UPL002"}
	msgCancelled = UserMessage{"Request was cancelled", "Please try again", "UPL004"}
	msgTimeout   = UserMessage{"Request timed out", "Try a smaller file or check your connection", "UPL005"}

	defaultMessage = UserMessage{"An unexpected error occurred", "Please try again or contact support", "ERR000"}
)

// sentinels is checked in order with errors.Is.
var sentinels = []struct {
	target error
	msg    UserMessage
}{
	{table.ErrFileTooLarge, msgFileTooLarge},
	{table.ErrUnsupportedFormat, msgUnsupported},
	{table.ErrSheetNotFound, msgUnsupported},
	{table.ErrEmptyFile, msgEmptyFile},
	{ErrNoFile, msgNoFile},

	{mapping.ErrNoSuggester, msgNoProvider},
	{llm.ErrMissingAPIKey, msgNoProvider},
	{mapping.ErrUnknownStrategy, msgBadStrategy},
	{mapping.ErrInvalidConfidence, msgBadSuggestion},
	{llm.ErrBadResponse, msgBadSuggestion},
	{mapping.ErrUnknownTarget, msgBadMapping},
	{mapping.ErrUnknownSource, msgBadMapping},
	{mapping.ErrSetSaved, msgBadMapping},
	{ErrMappingsNotSaved, msgNotSaved},

	{validation.ErrInvalidRule, msgBadRule},
	{cleaning.ErrInvalidAction, msgBadAction},

	{export.ErrNoHeaders, msgNothingToExport},
	{ErrNotCleaned, msgNothingToExport},

	{ErrSessionNotFound, msgNoSession},
	{schema.ErrNotFound, msgNoSchema},
	{ErrCellNotFound, msgNoCell},
	{ErrNotValidated, msgNotValidated},

	{ErrBusy, msgBusy},
	{context.Canceled, msgCancelled},
	{context.DeadlineExceeded, msgTimeout},
}

// textPatterns catches errors that arrive without a sentinel in their
// chain. Matching is case-insensitive; first hit wins.
var textPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{"invalid csv", msgUnreadable},
	{"invalid xlsx", msgUnreadable},
	{"file too large", msgFileTooLarge},
	{"request body too large", msgFileTooLarge},
	{"no file provided", msgNoFile},
	{"context deadline exceeded", msgTimeout},
	{"timeout", msgTimeout},
}

// MapError converts a technical error to its client-facing message.
//
//	msg := core.MapError(err)
//	writeJSON(w, status, ErrorResponse{Error: msg.Message, Action: msg.Action, Code: msg.Code})
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var formatErr *export.UnsupportedFormatError
	if errors.As(err, &formatErr) {
		return msgBadFormat
	}
	for _, s := range sentinels {
		if errors.Is(err, s.target) {
			return s.msg
		}
	}

	text := strings.ToLower(err.Error())
	for _, p := range textPatterns {
		if strings.Contains(text, p.pattern) {
			return p.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logging, with its
// user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
