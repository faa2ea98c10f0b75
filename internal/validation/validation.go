// Package validation checks row values and reports problems without
// changing them.
//
// The built-in checks are chosen by column name: a column whose name
// contains "email" is checked as an email address, "phone" or "mobile" as a
// phone number, "zip" or "postal" as a US ZIP code, and "name" or "email"
// must not be blank. Custom rules can be layered on top with NewValidator.
//
// Reports are plain data. Tracking which issues a user has dealt with is
// left to the caller via Issue.Key.
package validation

import (
	"regexp"
	"strings"

	"github.com/JonMunkholm/sheetsmith/internal/table"
)

// Severity grades an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// RuleType names the kind of check that raised an issue.
type RuleType string

const (
	RuleFormat       RuleType = "format"
	RuleRequired     RuleType = "required"
	RuleCompleteness RuleType = "completeness"
	RulePattern      RuleType = "pattern"
	RuleLength       RuleType = "length"
	RuleRange        RuleType = "range"
)

// Messages for the built-in checks.
const (
	MsgInvalidEmail    = "Invalid email format"
	MsgInvalidPhone    = "Invalid phone number format"
	MsgIncompletePhone = "Phone number seems incomplete"
	MsgRequiredEmpty   = "Required field is empty"
	MsgInvalidZIP      = "Invalid ZIP code format"
)

// minPhoneDigits is the digit count below which a phone number is flagged.
const minPhoneDigits = 10

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[\d\s\-+()]+$`)
	zipPattern   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
)

// Issue is one problem found in one cell.
type Issue struct {
	RowIndex int      `json:"rowIndex"`
	Column   string   `json:"column"`
	Value    string   `json:"value"`
	Severity Severity `json:"severity"`
	RuleType RuleType `json:"ruleType"`
	Message  string   `json:"message"`
}

// IssueKey identifies the cell an issue belongs to.
type IssueKey struct {
	RowIndex int    `json:"rowIndex"`
	Column   string `json:"column"`
}

// Key returns the cell identity of the issue.
func (i Issue) Key() IssueKey {
	return IssueKey{RowIndex: i.RowIndex, Column: i.Column}
}

// Summary aggregates a report.
type Summary struct {
	TotalRows      int      `json:"totalRows"`
	TotalColumns   int      `json:"totalColumns"`
	ErrorCount     int      `json:"errorCount"`
	WarningCount   int      `json:"warningCount"`
	ErrorColumns   []string `json:"errorColumns"`
	WarningColumns []string `json:"warningColumns"`
}

// Report is the result of validating a set of rows.
type Report struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Summary  Summary `json:"summary"`
}

// Valid reports whether no errors were found. Warnings do not count.
func (r Report) Valid() bool {
	return len(r.Errors) == 0
}

// Validate runs the built-in checks over rows.
func Validate(rows []table.Row) Report {
	return (&Validator{}).Validate(rows)
}

// builtin applies the column-name checks to a single cell.
func builtin(rowIdx int, column, value string, emit func(Issue)) {
	name := strings.ToLower(column)
	blank := strings.TrimSpace(value) == ""

	issue := func(sev Severity, rt RuleType, msg string) {
		emit(Issue{RowIndex: rowIdx, Column: column, Value: value, Severity: sev, RuleType: rt, Message: msg})
	}

	if strings.Contains(name, "email") && !blank && !emailPattern.MatchString(value) {
		issue(SeverityError, RuleFormat, MsgInvalidEmail)
	}

	if (strings.Contains(name, "phone") || strings.Contains(name, "mobile")) && !blank {
		if !phonePattern.MatchString(value) {
			issue(SeverityError, RuleFormat, MsgInvalidPhone)
		} else if countDigits(value) < minPhoneDigits {
			issue(SeverityWarning, RuleCompleteness, MsgIncompletePhone)
		}
	}

	if (strings.Contains(name, "name") || strings.Contains(name, "email")) && blank {
		issue(SeverityWarning, RuleRequired, MsgRequiredEmpty)
	}

	if (strings.Contains(name, "zip") || strings.Contains(name, "postal")) && !blank && !zipPattern.MatchString(value) {
		issue(SeverityWarning, RuleFormat, MsgInvalidZIP)
	}
}

func countDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			n++
		}
	}
	return n
}
