// Package mapping matches source columns to target schema fields.
//
// SuggestMappings is the deterministic heuristic matcher. Engine chooses
// between it and an injected Suggester (for example an LLM) per call, and
// checks whatever the provider returns before handing it back. Set holds the
// user's working mapping between suggestion and cleaning.
package mapping

import (
	"errors"
	"fmt"
	"strings"
)

// Reasoning strings attached to heuristic and manual mappings.
const (
	ReasonExact     = "Exact match found"
	ReasonKeyword   = "High confidence match based on field name"
	ReasonSubstring = "Partial match with good confidence"
	ReasonManual    = "Manual mapping"
)

// Confidence scores for each heuristic rule.
const (
	ScoreExact     = 1.0
	ScoreKeyword   = 0.9
	ScoreSubstring = 0.8
)

// ColumnMapping maps one source column to one target field.
type ColumnMapping struct {
	SourceColumn string  `json:"sourceColumn"`
	TargetField  string  `json:"targetField"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

// Strategy selects where suggestions come from.
type Strategy string

const (
	// StrategyHeuristic uses only SuggestMappings.
	StrategyHeuristic Strategy = "heuristic"

	// StrategyProvider uses only the injected Suggester.
	StrategyProvider Strategy = "provider"

	// StrategyHybrid keeps heuristic matches at or above HybridThreshold and
	// asks the Suggester about the remaining columns.
	StrategyHybrid Strategy = "hybrid"
)

// HybridThreshold is the lowest heuristic confidence kept by StrategyHybrid.
const HybridThreshold = 0.9

var (
	// ErrNoSuggester is returned when a provider-backed strategy is used
	// without a configured Suggester.
	ErrNoSuggester = errors.New("no suggestion provider configured")

	// ErrUnknownStrategy is returned by ParseStrategy.
	ErrUnknownStrategy = errors.New("unknown mapping strategy")

	// ErrInvalidConfidence is returned when a provider reports a confidence
	// outside [0, 1].
	ErrInvalidConfidence = errors.New("mapping confidence out of range")
)

// ParseStrategy converts a user-supplied name to a Strategy.
// The empty string selects StrategyHeuristic.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyHeuristic:
		return StrategyHeuristic, nil
	case StrategyProvider:
		return StrategyProvider, nil
	case StrategyHybrid:
		return StrategyHybrid, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Targets returns the target fields claimed by ms, in order.
func Targets(ms []ColumnMapping) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.TargetField
	}
	return out
}
