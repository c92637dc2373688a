// Package ingestion reads uploaded CDR exports (CSV, XLSX, JSON) into a
// uniform header + rows table for format detection and normalization.
package ingestion

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// Table is a raw tabular export: one header row and the data rows below it.
// Rows are padded or truncated to the header width.
type Table struct {
	Headers []string
	Rows    [][]string

	// SubjectHint is the target number announced in a banner above the
	// header ("Mobile No '9812345678'"), when the export has one.
	SubjectHint string

	// BannerRows is the number of rows skipped before the header.
	BannerRows int
}

// Sample returns up to n leading data rows.
func (t *Table) Sample(n int) [][]string {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// HeaderFunc reports whether a row is the header row.
type HeaderFunc func(row []string) bool

// Options control header discovery.
type Options struct {
	// IsHeader picks the header out of leading banner rows. When nil, or
	// when nothing matches within MaxBannerRows, the first non-empty row is
	// the header.
	IsHeader HeaderFunc

	// MaxBannerRows bounds the header search. Default 50.
	MaxBannerRows int

	// MaxRows caps the number of data rows read; 0 means no cap.
	MaxRows int
}

// DefaultOptions returns the reader defaults.
func DefaultOptions() Options {
	return Options{MaxBannerRows: 50}
}

func (o Options) maxBanner() int {
	if o.MaxBannerRows <= 0 {
		return 50
	}
	return o.MaxBannerRows
}

// Format is a supported input format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// FormatOf maps a file name to its format by extension.
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".tsv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", cdr.ErrUnsupportedFile, filepath.Ext(name))
	}
}

// Read decodes r according to the extension of name.
func Read(name string, r io.Reader, opts Options) (*Table, error) {
	format, err := FormatOf(name)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatCSV:
		comma := ','
		if strings.EqualFold(filepath.Ext(name), ".tsv") {
			comma = '\t'
		}
		return ReadCSV(r, comma, opts)
	case FormatXLSX:
		return ReadXLSX(r, opts)
	default:
		return ReadJSON(r, opts)
	}
}

var subjectBannerRE = regexp.MustCompile(`(?i)(?:mobile|msisdn|target)\s*(?:no\.?|number)?\s*[:\-]?\s*'?(\+?\d{8,15})'?`)

// buildTable locates the header among leading rows and squares the data rows.
func buildTable(rows [][]string, opts Options) (*Table, error) {
	headerAt := -1
	firstNonEmpty := -1
	limit := min(opts.maxBanner(), len(rows))
	for i := 0; i < limit; i++ {
		if isBlank(rows[i]) {
			continue
		}
		if firstNonEmpty < 0 {
			firstNonEmpty = i
		}
		if opts.IsHeader == nil || opts.IsHeader(rows[i]) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		headerAt = firstNonEmpty
	}
	if headerAt < 0 {
		return nil, fmt.Errorf("no header row found")
	}

	t := &Table{BannerRows: headerAt}
	for i := 0; i < headerAt; i++ {
		if m := subjectBannerRE.FindStringSubmatch(strings.Join(rows[i], " ")); len(m) > 1 {
			t.SubjectHint = m[1]
			break
		}
	}

	header := trimTrailingBlank(rows[headerAt])
	t.Headers = make([]string, len(header))
	for i, h := range header {
		t.Headers[i] = strings.TrimSpace(h)
	}
	if len(t.Headers) > 0 {
		t.Headers[0] = strings.TrimPrefix(t.Headers[0], "\ufeff")
	}

	for _, row := range rows[headerAt+1:] {
		if isBlank(row) {
			continue
		}
		if opts.MaxRows > 0 && len(t.Rows) >= opts.MaxRows {
			break
		}
		t.Rows = append(t.Rows, square(row, len(t.Headers)))
	}
	return t, nil
}

func square(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimTrailingBlank(row []string) []string {
	n := len(row)
	for n > 0 && strings.TrimSpace(row[n-1]) == "" {
		n--
	}
	return row[:n]
}
