package cleaning

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidAction is returned by NewCleaner for malformed actions.
var ErrInvalidAction = errors.New("invalid cleaning action")

// ActionType names a custom transform.
type ActionType string

const (
	ActionTrim           ActionType = "trim"
	ActionUppercase      ActionType = "uppercase"
	ActionLowercase      ActionType = "lowercase"
	ActionTitleCase      ActionType = "title_case"
	ActionRemoveSpecial  ActionType = "remove_special"
	ActionCollapseSpaces ActionType = "collapse_spaces"
)

// defaultSpecial matches what remove_special strips when no pattern is set.
const defaultSpecial = `[^\w\s-]`

var spaceRun = regexp.MustCompile(`\s+`)

// Action is a custom transform applied to one target field after the
// built-in transform. Pattern is only used by remove_special.
type Action struct {
	Field   string     `json:"field" yaml:"field"`
	Type    ActionType `json:"type" yaml:"type"`
	Pattern string     `json:"pattern,omitempty" yaml:"pattern"`

	re *regexp.Regexp
}

// NewCleaner validates actions. Every problem is reported in one error.
func NewCleaner(actions ...Action) (*Cleaner, error) {
	c := &Cleaner{}
	var errs []string

	for i, a := range actions {
		label := fmt.Sprintf("action %d (%s on %q)", i+1, a.Type, a.Field)
		if strings.TrimSpace(a.Field) == "" {
			errs = append(errs, label+": field is required")
		}

		switch a.Type {
		case ActionTrim, ActionUppercase, ActionLowercase, ActionTitleCase, ActionCollapseSpaces:
		case ActionRemoveSpecial:
			pattern := a.Pattern
			if pattern == "" {
				pattern = defaultSpecial
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: bad pattern %q", label, a.Pattern))
			}
			a.re = re
		default:
			errs = append(errs, label+": unknown type")
		}
		c.actions = append(c.actions, a)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w:\n  - %s", ErrInvalidAction, strings.Join(errs, "\n  - "))
	}
	return c, nil
}

// Actions returns the custom actions in the order they run.
func (c *Cleaner) Actions() []Action {
	out := make([]Action, len(c.actions))
	copy(out, c.actions)
	return out
}

// apply runs every action for field over value in order.
func (c *Cleaner) apply(field, value string) (string, bool) {
	out := value
	for _, a := range c.actions {
		if a.Field == field {
			out = a.run(out)
		}
	}
	return out, out != value
}

func (a Action) run(v string) string {
	switch a.Type {
	case ActionTrim:
		return strings.TrimSpace(v)
	case ActionUppercase:
		return strings.ToUpper(v)
	case ActionLowercase:
		return strings.ToLower(v)
	case ActionTitleCase:
		return TitleCase(v)
	case ActionRemoveSpecial:
		return a.re.ReplaceAllString(v, "")
	case ActionCollapseSpaces:
		return strings.TrimSpace(spaceRun.ReplaceAllString(v, " "))
	}
	return v
}
