package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleFail    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleSummary = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

const maxListedRejections = 3

// renderIngestReport prints one block per file followed by a totals box.
func renderIngestReport(w io.Writer, outcomes []ingestOutcome) {
	var ok, failed, accepted, rejected int
	for _, o := range outcomes {
		fmt.Fprintln(w, styleTitle.Render(o.Path))
		switch {
		case o.Error != "":
			failed++
			fmt.Fprintf(w, "  %s %s\n", styleFail.Render("FAIL"), o.Error)
		case o.Result != nil:
			ok++
			s := o.Result.Session
			accepted += s.RowsAccepted
			rejected += s.RowsRejected
			fmt.Fprintf(w, "  %s session %s\n", styleOK.Render("OK  "), s.ID)
			fmt.Fprintf(w, "  %s %s (confidence %.2f)  subject %s\n",
				styleDim.Render("vendor"), s.Vendor, s.Confidence, s.SubjectNumber)
			rows := fmt.Sprintf("%d accepted / %d total", s.RowsAccepted, s.RowsTotal)
			if s.RowsRejected > 0 {
				rows += styleWarn.Render(fmt.Sprintf("  %d rejected", s.RowsRejected))
			}
			fmt.Fprintf(w, "  %s %s\n", styleDim.Render("rows  "), rows)
			for i, r := range o.Result.Report.Rejected {
				if i == maxListedRejections {
					fmt.Fprintf(w, "    %s\n", styleDim.Render(fmt.Sprintf("... %d more", len(o.Result.Report.Rejected)-i)))
					break
				}
				fmt.Fprintf(w, "    %s row %d: %s %s\n", styleWarn.Render("!"), r.RowIndex, r.Reason, r.Field)
			}
		case o.Detection != nil:
			ok++
			d := o.Detection
			fmt.Fprintf(w, "  %s %s (score %.2f, confidence %.2f)\n", styleOK.Render("OK  "), d.Vendor, d.Score, d.Confidence)
			if len(d.Unmatched) > 0 {
				fmt.Fprintf(w, "  %s %v\n", styleDim.Render("unmatched"), d.Unmatched)
			}
		}
	}

	summary := fmt.Sprintf("%d file(s): %s, %s", len(outcomes),
		styleOK.Render(fmt.Sprintf("%d ok", ok)),
		styleFail.Render(fmt.Sprintf("%d failed", failed)))
	if accepted+rejected > 0 {
		summary += fmt.Sprintf("\nrows: %d accepted, %d rejected", accepted, rejected)
	}
	fmt.Fprintln(w, styleSummary.Render(summary))
}
