// Package table holds the in-memory tabular model shared by every stage of
// the pipeline and decodes uploaded CSV and XLSX files into it.
//
// A Table is a header list plus rows; every row carries exactly the header
// set as keys. Decoding is the only place rows can be dropped: a record whose
// field count disagrees with the header is skipped and counted in Dropped.
package table

// Table is a decoded sheet.
type Table struct {
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`

	// Dropped counts records skipped because their field count did not
	// match the header.
	Dropped int `json:"dropped"`

	// Sheet is the worksheet name for spreadsheet sources; Sheets lists
	// every worksheet in workbook order.
	Sheet  string   `json:"sheet,omitempty"`
	Sheets []string `json:"sheets,omitempty"`
}

// New builds a table from a header list and raw records. Records whose
// length differs from len(headers) are dropped and counted.
func New(headers []string, records [][]string) *Table {
	t := &Table{Headers: append([]string(nil), headers...)}
	for _, rec := range records {
		if len(rec) != len(headers) {
			t.Dropped++
			continue
		}
		t.Rows = append(t.Rows, rowFromRecord(headers, rec))
	}
	return t
}

// Sample returns up to n rows from the top of the table.
// A non-positive n returns every row.
func (t *Table) Sample(n int) []Row {
	if n <= 0 || n >= len(t.Rows) {
		return t.Rows
	}
	return t.Rows[:n]
}

// CloneRows returns deep copies of the table's rows.
func (t *Table) CloneRows() []Row {
	out := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Clone()
	}
	return out
}

func rowFromRecord(headers, rec []string) Row {
	r := Row{
		keys:   make([]string, 0, len(headers)),
		values: make(map[string]string, len(headers)),
	}
	for i, h := range headers {
		r.Set(h, rec[i])
	}
	return r
}
