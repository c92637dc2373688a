// Package export writes session reports and analysis results to XLSX
// workbooks, one sheet per analysis.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lvonguyen/cdrforge/internal/analytics"
	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// SessionSheet is the name of the sheet holding the session and its
// normalization report.
const SessionSheet = "session"

// sheetOrder fixes where built-in analyses appear; anything else follows
// in name order.
var sheetOrder = []string{
	analytics.AnalysisSummary,
	analytics.AnalysisAnomalies,
	analytics.AnalysisContacts,
	analytics.AnalysisDevices,
	analytics.AnalysisDailyDevices,
	analytics.AnalysisCommonDevices,
	analytics.AnalysisTowers,
	analytics.AnalysisColocation,
	analytics.AnalysisInternational,
	analytics.AnalysisGraph,
	analytics.AnalysisActivity,
	analytics.AnalysisSMSServices,
}

// Sheet is one worksheet before it is written.
type Sheet struct {
	Name    string
	Rows    [][]any
	Headers []int // indexes of header rows
}

func (s *Sheet) header(cols ...any) {
	s.Headers = append(s.Headers, len(s.Rows))
	s.Rows = append(s.Rows, cols)
}

func (s *Sheet) row(vals ...any) {
	s.Rows = append(s.Rows, vals)
}

func (s *Sheet) gap() {
	if len(s.Rows) > 0 {
		s.Rows = append(s.Rows, nil)
	}
}

// Sheets renders results into sheets. Built-in analyses come first in a
// fixed order, others follow sorted by name.
func Sheets(results analytics.Results) []*Sheet {
	var names []string
	seen := make(map[string]bool)
	for _, name := range sheetOrder {
		if _, ok := results[name]; ok {
			names = append(names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range results {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	names = append(names, rest...)

	out := make([]*Sheet, 0, len(names))
	for _, name := range names {
		out = append(out, render(name, results[name]))
	}
	return out
}

// Workbook builds a workbook. session and report may be nil, in which case
// the session sheet is omitted.
func Workbook(session *cdr.Session, report *cdr.NormalizationReport, results analytics.Results) (*excelize.File, error) {
	var sheets []*Sheet
	if session != nil || report != nil {
		sheets = append(sheets, sessionSheet(session, report))
	}
	sheets = append(sheets, Sheets(results)...)
	if len(sheets) == 0 {
		return nil, fmt.Errorf("nothing to export")
	}

	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, sh := range sheets {
		idx, err := f.NewSheet(sh.Name)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", sh.Name, err)
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		if err := writeSheet(f, sh, bold); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("remove default sheet: %w", err)
	}
	return f, nil
}

// Write builds the workbook and writes it to w.
func Write(w io.Writer, session *cdr.Session, report *cdr.NormalizationReport, results analytics.Results) error {
	f, err := Workbook(session, report, results)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sh *Sheet, headerStyle int) error {
	width := 0
	for r, row := range sh.Rows {
		if len(row) == 0 {
			continue
		}
		if len(row) > width {
			width = len(row)
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+1)
		if err := f.SetSheetRow(sh.Name, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sh.Name, r+1, err)
		}
	}
	for _, r := range sh.Headers {
		from, _ := excelize.CoordinatesToCellName(1, r+1)
		to, _ := excelize.CoordinatesToCellName(len(sh.Rows[r]), r+1)
		if err := f.SetCellStyle(sh.Name, from, to, headerStyle); err != nil {
			return fmt.Errorf("style %s header: %w", sh.Name, err)
		}
	}
	if width > 0 {
		last, _ := excelize.ColumnNumberToName(width)
		if err := f.SetColWidth(sh.Name, "A", last, 18); err != nil {
			return fmt.Errorf("size %s columns: %w", sh.Name, err)
		}
	}
	return nil
}

func sessionSheet(s *cdr.Session, rep *cdr.NormalizationReport) *Sheet {
	sh := &Sheet{Name: SessionSheet}
	sh.header("field", "value")
	if s != nil {
		sh.row("session_id", s.ID)
		sh.row("subject", s.SubjectNumber)
		sh.row("label", s.Label)
		sh.row("vendor", s.Vendor)
		sh.row("confidence", s.Confidence)
		sh.row("source_file", s.SourceFile)
		sh.row("created_at", stamp(s.CreatedAt))
	}
	if rep == nil {
		return sh
	}
	if s == nil {
		sh.row("session_id", rep.SessionID)
		sh.row("vendor", rep.Vendor)
	}
	sh.row("score", rep.Score)
	sh.row("rows_total", rep.RowsTotal)
	sh.row("rows_accepted", rep.RowsAccepted)
	sh.row("rows_rejected", rep.RowsRejected())

	if len(rep.Rejected) > 0 {
		sh.gap()
		sh.header("row_index", "reason", "field", "detail")
		for _, r := range rep.Rejected {
			sh.row(r.RowIndex, r.Reason, r.Field, r.Detail)
		}
	}
	return sh
}

// stamp renders times as RFC 3339 text; zero times stay blank.
func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func sheetName(name string) string {
	const maxLen = 31
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, name)
	if len(name) > maxLen {
		name = name[:maxLen]
	}
	return name
}

func render(name string, v any) *Sheet {
	sh := &Sheet{Name: sheetName(name)}
	switch res := v.(type) {
	case []*analytics.Summary:
		summarySheet(sh, res)
	case []*analytics.ContactSummary:
		contactsSheet(sh, res)
	case []*analytics.DeviceTimeline:
		devicesSheet(sh, res)
	case []analytics.SharedDevice:
		commonDevicesSheet(sh, res)
	case []*analytics.TowerUsage:
		towersSheet(sh, res)
	case *analytics.CoLocationResult:
		colocationSheet(sh, res)
	case []*analytics.CountryBreakdown:
		internationalSheet(sh, res)
	case *analytics.NetworkGraph:
		graphSheet(sh, res)
	case *analytics.AnomalyReport:
		anomaliesSheet(sh, res)
	case []*analytics.DailyDeviceTracking:
		dailyDevicesSheet(sh, res)
	case []*analytics.ActivityHeatmap:
		activitySheet(sh, res)
	case []*analytics.ServiceReport:
		smsServicesSheet(sh, res)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			raw = []byte(err.Error())
		}
		sh.header("result")
		sh.row(string(raw))
	}
	return sh
}
