package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/sheetsmith/internal/table"
)

// ErrInvalidRule is returned by NewValidator for malformed rules.
var ErrInvalidRule = errors.New("invalid validation rule")

// Rule is a user-defined check on one column. Pattern, length and range
// rules skip blank values; pair them with a required rule to reject blanks.
type Rule struct {
	Column   string   `json:"column" yaml:"column"`
	Type     RuleType `json:"type" yaml:"type"`
	Pattern  string   `json:"pattern,omitempty" yaml:"pattern"`
	Min      *float64 `json:"min,omitempty" yaml:"min"`
	Max      *float64 `json:"max,omitempty" yaml:"max"`
	Severity Severity `json:"severity,omitempty" yaml:"severity"`
	Message  string   `json:"message,omitempty" yaml:"message"`
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Validator runs the built-in checks followed by any custom rules.
// The zero value runs only the built-in checks.
type Validator struct {
	rules []compiledRule
}

// NewValidator compiles rules. Every problem is reported in one error.
func NewValidator(rules ...Rule) (*Validator, error) {
	v := &Validator{}
	var errs []string

	for i, r := range rules {
		label := fmt.Sprintf("rule %d (%s on %q)", i+1, r.Type, r.Column)
		if r.Severity == "" {
			r.Severity = SeverityError
		}
		if r.Severity != SeverityError && r.Severity != SeverityWarning {
			errs = append(errs, fmt.Sprintf("%s: unknown severity %q", label, r.Severity))
		}
		if strings.TrimSpace(r.Column) == "" {
			errs = append(errs, label+": column is required")
		}

		cr := compiledRule{Rule: r}
		switch r.Type {
		case RuleRequired:
		case RulePattern:
			re, err := regexp.Compile(r.Pattern)
			if err != nil || r.Pattern == "" {
				errs = append(errs, fmt.Sprintf("%s: bad pattern %q", label, r.Pattern))
			}
			cr.re = re
		case RuleLength, RuleRange:
			if r.Min == nil && r.Max == nil {
				errs = append(errs, label+": min or max is required")
			}
			if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
				errs = append(errs, label+": min is greater than max")
			}
		default:
			errs = append(errs, fmt.Sprintf("%s: unknown type", label))
		}
		v.rules = append(v.rules, cr)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w:\n  - %s", ErrInvalidRule, strings.Join(errs, "\n  - "))
	}
	return v, nil
}

// Rules returns the custom rules in the order they run.
func (v *Validator) Rules() []Rule {
	out := make([]Rule, len(v.rules))
	for i, r := range v.rules {
		out[i] = r.Rule
	}
	return out
}

// Validate checks every cell of every row. Issues are reported in row order,
// then column order, then check order.
func (v *Validator) Validate(rows []table.Row) Report {
	rep := Report{
		Errors:   []Issue{},
		Warnings: []Issue{},
		Summary: Summary{
			TotalRows:      len(rows),
			ErrorColumns:   []string{},
			WarningColumns: []string{},
		},
	}
	if len(rows) > 0 {
		rep.Summary.TotalColumns = rows[0].Len()
	}

	errCols := map[string]bool{}
	warnCols := map[string]bool{}
	emit := func(is Issue) {
		if is.Severity == SeverityError {
			rep.Errors = append(rep.Errors, is)
			if !errCols[is.Column] {
				errCols[is.Column] = true
				rep.Summary.ErrorColumns = append(rep.Summary.ErrorColumns, is.Column)
			}
			return
		}
		rep.Warnings = append(rep.Warnings, is)
		if !warnCols[is.Column] {
			warnCols[is.Column] = true
			rep.Summary.WarningColumns = append(rep.Summary.WarningColumns, is.Column)
		}
	}

	for i, row := range rows {
		for _, col := range row.Keys() {
			val := row.Value(col)
			builtin(i, col, val, emit)
			for _, r := range v.rules {
				if r.Column == col {
					r.apply(i, val, emit)
				}
			}
		}
	}

	rep.Summary.ErrorCount = len(rep.Errors)
	rep.Summary.WarningCount = len(rep.Warnings)
	return rep
}

func (r compiledRule) apply(rowIdx int, value string, emit func(Issue)) {
	fail := func(def string) {
		msg := r.Message
		if msg == "" {
			msg = def
		}
		emit(Issue{
			RowIndex: rowIdx,
			Column:   r.Column,
			Value:    value,
			Severity: r.Severity,
			RuleType: r.Type,
			Message:  msg,
		})
	}

	trimmed := strings.TrimSpace(value)
	if r.Type == RuleRequired {
		if trimmed == "" {
			fail(r.Column + " is required")
		}
		return
	}
	if trimmed == "" {
		return
	}

	switch r.Type {
	case RulePattern:
		if !r.re.MatchString(value) {
			fail(r.Column + " does not match expected pattern")
		}
	case RuleLength:
		n := float64(utf8.RuneCountInString(value))
		if r.Min != nil && n < *r.Min {
			fail(fmt.Sprintf("%s is shorter than %g characters", r.Column, *r.Min))
		} else if r.Max != nil && n > *r.Max {
			fail(fmt.Sprintf("%s is longer than %g characters", r.Column, *r.Max))
		}
	case RuleRange:
		f, err := strconv.ParseFloat(trimmed, 64)
		switch {
		case err != nil:
			fail(r.Column + " must be numeric for range validation")
		case r.Min != nil && f < *r.Min:
			fail(fmt.Sprintf("%s is below minimum value %g", r.Column, *r.Min))
		case r.Max != nil && f > *r.Max:
			fail(fmt.Sprintf("%s exceeds maximum value %g", r.Column, *r.Max))
		}
	}
}

// Open filters issues whose cell has been marked resolved.
func Open(issues []Issue, resolved map[IssueKey]bool) []Issue {
	out := make([]Issue, 0, len(issues))
	for _, is := range issues {
		if !resolved[is.Key()] {
			out = append(out, is)
		}
	}
	return out
}
