package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned for file extensions the decoder does not handle.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrFileTooLarge is returned when the input exceeds Options.MaxBytes.
	ErrFileTooLarge = errors.New("file too large")

	// ErrEmptyFile is returned when the input has no non-blank records.
	ErrEmptyFile = errors.New("empty file")

	// ErrSheetNotFound is returned when Options.Sheet names a missing worksheet.
	ErrSheetNotFound = errors.New("sheet not found")
)

// DefaultMaxBytes caps decoded input at 50MB.
const DefaultMaxBytes int64 = 50 << 20

// Options controls decoding.
type Options struct {
	// Sheet selects a worksheet by name for spreadsheet input.
	// Empty selects the first sheet.
	Sheet string

	// MaxBytes caps input size. Zero uses DefaultMaxBytes; negative disables the cap.
	MaxBytes int64
}

// SupportedExtensions lists the file extensions Decode accepts.
var SupportedExtensions = []string{".csv", ".xlsx"}

// IsSupported reports whether name has a decodable extension.
func IsSupported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Decode reads a CSV or XLSX file into a Table, choosing the decoder by the
// extension of name.
//
// The first non-blank record is the header. Header cells are trimmed; blank
// ones become column_N and repeats get a numeric suffix. Blank records are
// skipped. CSV records whose field count differs from the header are dropped
// and counted in Table.Dropped. Spreadsheet rows shorter than the header are
// padded first, because the xlsx format omits trailing empty cells.
func Decode(name string, r io.Reader, opts Options) (*Table, error) {
	limit := opts.MaxBytes
	if limit == 0 {
		limit = DefaultMaxBytes
	}
	limited := newSizeLimitReader(r, limit)

	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".csv":
		return decodeCSV(limited)
	case ".xlsx":
		return decodeXLSX(limited, opts.Sheet)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// DecodeBytes is Decode over an in-memory payload.
func DecodeBytes(name string, data []byte, opts Options) (*Table, error) {
	return Decode(name, bytes.NewReader(data), opts)
}

func decodeCSV(r *sizeLimitReader) (*Table, error) {
	cr := csv.NewReader(wrapCSV(r))
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	return build(records, false)
}

func decodeXLSX(r *sizeLimitReader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrEmptyFile)
	}
	if sheet == "" {
		sheet = sheets[0]
	} else if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	t, err := build(rows, true)
	if err != nil {
		return nil, err
	}
	t.Sheet = sheet
	t.Sheets = sheets
	return t, nil
}

func build(records [][]string, padShort bool) (*Table, error) {
	var header []string
	var data [][]string
	for _, rec := range records {
		if isBlank(rec) {
			continue
		}
		if header == nil {
			header = rec
			continue
		}
		data = append(data, rec)
	}
	if header == nil {
		return nil, ErrEmptyFile
	}

	headers := normalizeHeaders(header)
	if padShort {
		for i, rec := range data {
			if len(rec) < len(headers) {
				data[i] = padRecord(rec, len(headers))
			}
		}
	}
	return New(headers, data), nil
}

// normalizeHeaders trims names, names blank headers column_N and suffixes
// repeats with _2, _3 and so on. Generated names never collide with a
// literal header anywhere in the row.
func normalizeHeaders(raw []string) []string {
	used := make(map[string]bool, len(raw))
	for _, h := range raw {
		if h = strings.TrimSpace(h); h != "" {
			used[h] = true
		}
	}

	out := make([]string, len(raw))
	claimed := make(map[string]bool, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		switch {
		case h == "":
			h = unusedName("column_"+strconv.Itoa(i+1), used)
		case claimed[h]:
			h = unusedName(h, used)
		}
		used[h] = true
		claimed[h] = true
		out[i] = h
	}
	return out
}

func unusedName(base string, used map[string]bool) string {
	if !used[base] {
		return base
	}
	for n := 2; ; n++ {
		if name := base + "_" + strconv.Itoa(n); !used[name] {
			return name
		}
	}
}

func padRecord(rec []string, n int) []string {
	out := make([]string, n)
	copy(out, rec)
	return out
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
