// Package export encodes cleaned rows as CSV, JSON or XLSX.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetsmith/internal/table"
)

// Format is an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// sheetName is the worksheet XLSX output is written to.
const sheetName = "Sheet1"

// ErrNoHeaders is returned when there are no rows to take a header from
// and none were supplied.
var ErrNoHeaders = errors.New("no headers to export")

// UnsupportedFormatError reports an unknown output format.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported export format %q", e.Format)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

// ParseFormat accepts a format name in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	}
	return "", &UnsupportedFormatError{Format: s}
}

type options struct {
	headers []string
}

// Option configures Encode.
type Option func(*options)

// WithHeaders fixes the column order instead of taking it from the first
// row. Rows missing a header are written with an empty value.
func WithHeaders(headers ...string) Option {
	return func(o *options) {
		o.headers = append([]string(nil), headers...)
	}
}

// Encode serializes rows in the given format.
func Encode(rows []table.Row, format Format, opts ...Option) ([]byte, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	switch format {
	case FormatCSV:
		headers, err := resolveHeaders(rows, o)
		if err != nil {
			return nil, err
		}
		return encodeCSV(rows, headers), nil
	case FormatJSON:
		return encodeJSON(rows)
	case FormatXLSX:
		headers, err := resolveHeaders(rows, o)
		if err != nil {
			return nil, err
		}
		return encodeXLSX(rows, headers)
	}
	return nil, &UnsupportedFormatError{Format: string(format)}
}

func resolveHeaders(rows []table.Row, o options) ([]string, error) {
	if o.headers != nil {
		return o.headers, nil
	}
	if len(rows) == 0 {
		return nil, ErrNoHeaders
	}
	return rows[0].Keys(), nil
}

func encodeCSV(rows []table.Row, headers []string) []byte {
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, csvLine(headers))

	vals := make([]string, len(headers))
	for _, r := range rows {
		for i, h := range headers {
			vals[i] = r.Value(h)
		}
		lines = append(lines, csvLine(vals))
	}
	return []byte(strings.Join(lines, "\n"))
}

func csvLine(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = csvField(f)
	}
	return strings.Join(quoted, ",")
}

func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func encodeJSON(rows []table.Row) ([]byte, error) {
	if rows == nil {
		rows = []table.Row{}
	}
	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return out, nil
}

func encodeXLSX(rows []table.Row, headers []string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	write := func(rowNum int, vals []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		cells := make([]interface{}, len(vals))
		for i, v := range vals {
			cells[i] = v
		}
		return f.SetSheetRow(sheetName, cell, &cells)
	}

	if err := write(1, headers); err != nil {
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}
	vals := make([]string, len(headers))
	for i, r := range rows {
		for j, h := range headers {
			vals[j] = r.Value(h)
		}
		if err := write(i+2, vals); err != nil {
			return nil, fmt.Errorf("write xlsx row %d: %w", i, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
