// Package cleaning re-projects mapped rows onto their target fields and
// normalizes the values by target: emails are lowercased and common domain
// typos fixed, US phone numbers are formatted, and names, locations and
// companies are title-cased.
//
// Cleaning is deterministic and idempotent. Input rows are never modified.
package cleaning

import (
	"github.com/JonMunkholm/sheetsmith/internal/mapping"
	"github.com/JonMunkholm/sheetsmith/internal/table"
)

// Category groups cleaning changes for counting.
type Category string

const (
	CategoryEmail     Category = "email"
	CategoryPhone     Category = "phone"
	CategoryNames     Category = "names"
	CategoryLocations Category = "locations"
	CategoryCompanies Category = "companies"
	CategoryCustom    Category = "custom"
)

// CellChange records one cell whose cleaned value differs from its raw
// input. Category is empty when the only change was trimming.
type CellChange struct {
	RowIndex     int      `json:"rowIndex"`
	SourceColumn string   `json:"sourceColumn"`
	TargetField  string   `json:"targetField"`
	Category     Category `json:"category"`
	Before       string   `json:"before"`
	After        string   `json:"after"`
}

// Result is the output of a cleaning pass.
type Result struct {
	CleanedRows  []table.Row      `json:"cleanedRows"`
	ChangeCounts map[Category]int `json:"changeCounts"`
	TotalChanges int              `json:"totalChanges"`
	Changes      []CellChange     `json:"changes"`
}

// Cleaner applies the built-in field transforms followed by custom actions.
// The zero value applies only the built-in transforms.
type Cleaner struct {
	actions []Action
}

// Clean runs the built-in transforms over rows.
func Clean(rows []table.Row, mappings []mapping.ColumnMapping) Result {
	return (&Cleaner{}).Clean(rows, mappings)
}

// Clean produces one output row per input row, keyed by target field in
// mapping order. When two mappings share a target the later one wins.
// Source columns absent from a row are skipped for that row.
func (c *Cleaner) Clean(rows []table.Row, mappings []mapping.ColumnMapping) Result {
	res := Result{
		CleanedRows: make([]table.Row, 0, len(rows)),
		ChangeCounts: map[Category]int{
			CategoryEmail:     0,
			CategoryPhone:     0,
			CategoryNames:     0,
			CategoryLocations: 0,
			CategoryCompanies: 0,
		},
		Changes: []CellChange{},
	}
	if len(c.actions) > 0 {
		res.ChangeCounts[CategoryCustom] = 0
	}

	count := func(cat Category) {
		res.ChangeCounts[cat]++
		res.TotalChanges++
	}

	for i, row := range rows {
		var out table.Row
		for _, m := range mappings {
			raw, ok := row.Get(m.SourceColumn)
			if !ok {
				continue
			}

			value, cat, changed := cleanField(m.TargetField, raw)
			var label Category
			if changed {
				count(cat)
				label = cat
			}

			if custom, changed := c.apply(m.TargetField, value); changed {
				count(CategoryCustom)
				label = CategoryCustom
				value = custom
			}

			out.Set(m.TargetField, value)
			if value != raw {
				res.Changes = append(res.Changes, CellChange{
					RowIndex:     i,
					SourceColumn: m.SourceColumn,
					TargetField:  m.TargetField,
					Category:     label,
					Before:       raw,
					After:        value,
				})
			}
		}
		res.CleanedRows = append(res.CleanedRows, out)
	}

	return res
}
