package mapping

import (
	"context"
	"fmt"
	"math"

	"github.com/JonMunkholm/sheetsmith/internal/schema"
	"github.com/JonMunkholm/sheetsmith/internal/table"
)

// Request is the input to a suggestion call.
type Request struct {
	Headers         []string
	SampleRows      []table.Row
	Fields          []schema.TargetField
	BusinessContext string
}

// Suggester is an external source of mapping suggestions, such as an LLM.
// Implementations return the same shape as SuggestMappings; Engine checks
// the result, so implementations need not.
type Suggester interface {
	Suggest(ctx context.Context, req Request) ([]ColumnMapping, error)
}

// SuggesterFunc adapts a function to Suggester.
type SuggesterFunc func(ctx context.Context, req Request) ([]ColumnMapping, error)

// Suggest calls f.
func (f SuggesterFunc) Suggest(ctx context.Context, req Request) ([]ColumnMapping, error) {
	return f(ctx, req)
}

// Suggestion is the outcome of Engine.Suggest.
type Suggestion struct {
	Strategy Strategy        `json:"strategy"`
	Mappings []ColumnMapping `json:"mappings"`

	// Discarded holds provider entries that named an unknown column or
	// field, or a field already taken.
	Discarded []ColumnMapping `json:"discarded,omitempty"`

	// Usage is what the provider reported for this call. It is zero for
	// the heuristic strategy.
	Usage Usage `json:"usage"`
}

// Engine runs mapping strategies. The zero value supports only
// StrategyHeuristic.
type Engine struct {
	provider Suggester
}

// NewEngine returns an Engine backed by provider, which may be nil.
func NewEngine(provider Suggester) *Engine {
	return &Engine{provider: provider}
}

// HasProvider reports whether provider-backed strategies are available.
func (e *Engine) HasProvider() bool {
	return e != nil && e.provider != nil
}

// Suggest runs the chosen strategy. Provider errors are returned unchanged;
// there is no retry and no fallback to the heuristic path.
func (e *Engine) Suggest(ctx context.Context, strategy Strategy, req Request) (Suggestion, error) {
	out := Suggestion{Strategy: strategy, Mappings: []ColumnMapping{}}
	if len(req.Headers) == 0 || len(req.Fields) == 0 {
		return out, nil
	}

	switch strategy {
	case StrategyHeuristic:
		out.Mappings = SuggestMappings(req.Headers, req.SampleRows, req.Fields)
		return out, nil

	case StrategyProvider:
		if !e.HasProvider() {
			return out, ErrNoSuggester
		}
		ctx, meter := TrackUsage(ctx)
		raw, err := e.provider.Suggest(ctx, req)
		out.Usage = meter.Total()
		if err != nil {
			return out, err
		}
		kept, discarded, err := Sanitize(raw, req.Headers, req.Fields, nil)
		if err != nil {
			return out, err
		}
		out.Mappings, out.Discarded = kept, discarded
		return out, nil

	case StrategyHybrid:
		if !e.HasProvider() {
			return out, ErrNoSuggester
		}
		ctx, meter := TrackUsage(ctx)
		sug, err := e.hybrid(ctx, req)
		sug.Usage = meter.Total()
		return sug, err
	}
	return out, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
}

func (e *Engine) hybrid(ctx context.Context, req Request) (Suggestion, error) {
	out := Suggestion{Strategy: StrategyHybrid, Mappings: []ColumnMapping{}}

	bySource := make(map[string]ColumnMapping)
	claimed := make(map[string]bool)
	for _, m := range SuggestMappings(req.Headers, req.SampleRows, req.Fields) {
		if m.Confidence >= HybridThreshold {
			bySource[m.SourceColumn] = m
			claimed[m.TargetField] = true
		}
	}

	var rest []string
	for _, h := range req.Headers {
		if _, ok := bySource[h]; !ok {
			rest = append(rest, h)
		}
	}
	var openFields []schema.TargetField
	for _, f := range req.Fields {
		if !claimed[f.Name] {
			openFields = append(openFields, f)
		}
	}

	if len(rest) > 0 && len(openFields) > 0 {
		sub := Request{
			Headers:         rest,
			SampleRows:      project(req.SampleRows, rest),
			Fields:          openFields,
			BusinessContext: req.BusinessContext,
		}
		raw, err := e.provider.Suggest(ctx, sub)
		if err != nil {
			return out, err
		}
		kept, discarded, err := Sanitize(raw, rest, req.Fields, claimed)
		if err != nil {
			return out, err
		}
		for _, m := range kept {
			bySource[m.SourceColumn] = m
		}
		out.Discarded = discarded
	}

	for _, h := range req.Headers {
		if m, ok := bySource[h]; ok {
			out.Mappings = append(out.Mappings, m)
		}
	}
	return out, nil
}

// Sanitize checks provider output against the request. Any confidence
// outside [0, 1] fails the whole result. Entries for unknown columns or
// fields, entries with no target, repeat entries for one column, and entries
// whose target is in claimed or was taken by an earlier column are returned
// as discarded. Kept mappings follow header order.
func Sanitize(raw []ColumnMapping, headers []string, fields []schema.TargetField, claimed map[string]bool) (kept, discarded []ColumnMapping, err error) {
	for _, m := range raw {
		if math.IsNaN(m.Confidence) || m.Confidence < 0 || m.Confidence > 1 {
			return nil, nil, fmt.Errorf("%w: %q -> %q has %v", ErrInvalidConfidence, m.SourceColumn, m.TargetField, m.Confidence)
		}
	}

	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Name] = true
	}
	isHeader := make(map[string]bool, len(headers))
	for _, h := range headers {
		isHeader[h] = true
	}

	bySource := make(map[string]ColumnMapping, len(raw))
	for _, m := range raw {
		_, dup := bySource[m.SourceColumn]
		switch {
		case !isHeader[m.SourceColumn], dup:
			discarded = append(discarded, m)
		case m.TargetField == "":
			// provider declined to map this column
		case !known[m.TargetField]:
			discarded = append(discarded, m)
		default:
			bySource[m.SourceColumn] = m
		}
	}

	taken := make(map[string]bool, len(claimed)+len(bySource))
	for k, v := range claimed {
		taken[k] = v
	}
	kept = []ColumnMapping{}
	for _, h := range headers {
		m, ok := bySource[h]
		if !ok {
			continue
		}
		if taken[m.TargetField] {
			discarded = append(discarded, m)
			continue
		}
		taken[m.TargetField] = true
		kept = append(kept, m)
	}
	return kept, discarded, nil
}

func project(rows []table.Row, cols []string) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		var p table.Row
		for _, c := range cols {
			if v, ok := r.Get(c); ok {
				p.Set(c, v)
			}
		}
		out[i] = p
	}
	return out
}
