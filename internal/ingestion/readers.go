package ingestion

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// ReadCSV reads a delimited export. Rows may have ragged widths; quotes are
// parsed leniently since vendor exports are rarely RFC 4180 clean.
func ReadCSV(r io.Reader, comma rune, opts Options) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return buildTable(rows, opts)
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(r io.Reader, opts Options) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return buildTable(rows, opts)
}

// ReadJSON reads an array of flat objects, or an object holding one under
// "records". Headers are the union of keys in sorted order.
func ReadJSON(r io.Reader, opts Options) (*Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}

	var objects []map[string]any
	if err := unmarshalNumbers(raw, &objects); err != nil {
		var wrapped struct {
			Records []map[string]any `json:"records"`
		}
		if err2 := unmarshalNumbers(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("failed to decode json records: %w", err)
		}
		objects = wrapped.Records
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("no records in json input")
	}

	seen := make(map[string]bool)
	var headers []string
	for _, obj := range objects {
		for k := range obj {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	sort.Strings(headers)

	rows := make([][]string, 0, len(objects)+1)
	rows = append(rows, headers)
	for _, obj := range objects {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = jsonCell(obj[h])
		}
		rows = append(rows, row)
	}
	opts.IsHeader = nil
	return buildTable(rows, opts)
}

func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func jsonCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

// Open reads a file from disk, choosing the reader by extension.
func Open(path string, opts Options) (*Table, error) {
	if _, err := FormatOf(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Read(path, f, opts)
}
