package mapping

import (
	"strings"
	"unicode"

	"github.com/JonMunkholm/sheetsmith/internal/schema"
	"github.com/JonMunkholm/sheetsmith/internal/table"
)

// fieldKeywords are matched as substrings of the normalized header.
var fieldKeywords = map[string][]string{
	"email":      {"mail"},
	"phone":      {"phone", "mobile"},
	"first_name": {"first"},
	"last_name":  {"last"},
	"address":    {"street", "addr"},
	"zip_code":   {"zip", "postal"},
	"city":       {"city", "town"},
	"state":      {"province", "region"},
	"company":    {"company", "organization", "employer", "business"},
	"country":    {"country", "nation"},
}

// SuggestMappings proposes a mapping for each header against fields.
//
// Headers are visited in order. Each takes its highest scoring field, ties
// going to the field declared first; a header whose best field was already
// taken by an earlier header stays unmapped. sampleRows are accepted for
// signature parity with Suggester and are not read.
func SuggestMappings(headers []string, sampleRows []table.Row, fields []schema.TargetField) []ColumnMapping {
	out := []ColumnMapping{}
	if len(headers) == 0 || len(fields) == 0 {
		return out
	}

	normFields := make([]string, len(fields))
	for i, f := range fields {
		normFields[i] = normalizeField(f.Name)
	}

	claimed := make(map[string]bool, len(fields))
	for _, h := range headers {
		nh := normalizeHeader(h)
		if nh == "" {
			continue
		}

		best, bestScore, bestReason := -1, 0.0, ""
		for i, f := range fields {
			score, reason := scoreField(nh, normFields[i], f.Name)
			if score > bestScore {
				best, bestScore, bestReason = i, score, reason
			}
		}
		if best < 0 {
			continue
		}

		target := fields[best].Name
		if claimed[target] {
			continue
		}
		claimed[target] = true
		out = append(out, ColumnMapping{
			SourceColumn: h,
			TargetField:  target,
			Confidence:   bestScore,
			Reasoning:    bestReason,
		})
	}
	return out
}

func scoreField(header, field, fieldName string) (float64, string) {
	if field == "" {
		return 0, ""
	}
	if header == field {
		return ScoreExact, ReasonExact
	}
	for _, kw := range fieldKeywords[fieldName] {
		if strings.Contains(header, kw) {
			return ScoreKeyword, ReasonKeyword
		}
	}
	if strings.Contains(header, field) || strings.Contains(field, header) {
		return ScoreSubstring, ReasonSubstring
	}
	return 0, ""
}

// normalizeHeader lowercases s and drops every character that is not a
// letter or digit.
func normalizeHeader(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeField lowercases s and drops underscores.
func normalizeField(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "")
}
