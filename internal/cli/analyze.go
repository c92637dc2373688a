package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lvonguyen/cdrforge/internal/analytics"
	"github.com/lvonguyen/cdrforge/internal/export"
)

var boundLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// parseBound reads a --from/--to value as UTC.
func parseBound(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range boundLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", v)
}

// defaultAnalyses returns every registered analysis that can run over the
// given number of sessions.
func defaultAnalyses(reg *analytics.Registry, sessions int) []string {
	var names []string
	for _, n := range reg.Names() {
		a, _ := reg.Get(n)
		if a.MultiSubject && sessions < 2 {
			continue
		}
		names = append(names, n)
	}
	return names
}

func newAnalyzeCommand(info BuildInfo) *cobra.Command {
	var (
		sessionIDs []string
		names      []string
		from, to   string
		window     time.Duration
		activity   string
		xlsxPath   string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run analyses over stored sessions",
		Long: `Run one or more analyses over stored sessions and print the results as
JSON, or write them to an XLSX workbook.

Examples:
  cdrforge analyze --session 3f2a... --analysis contacts,devices
  cdrforge analyze --session A --session B --analysis colocation --window 30m
  cdrforge analyze --session 3f2a... --analysis activity --activity sms
  cdrforge analyze --session 3f2a... --xlsx case42.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(sessionIDs) == 0 {
				return fmt.Errorf("at least one --session is required")
			}
			fromT, err := parseBound(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			toT, err := parseBound(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			if !fromT.IsZero() && !toT.IsZero() && !toT.After(fromT) {
				return fmt.Errorf("--to must be after --from")
			}
			filter, err := analytics.ParseActivityFilter(activity)
			if err != nil {
				return fmt.Errorf("--activity: %w", err)
			}

			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, info)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if len(names) == 0 {
				names = defaultAnalyses(a.engine.Registry(), len(sessionIDs))
			}
			subjects, err := a.pipeline.Subjects(ctx, sessionIDs...)
			if err != nil {
				return err
			}
			results, err := a.engine.Run(ctx, analytics.Request{
				Subjects: subjects,
				From:     fromT,
				To:       toT,
				Window:   window,
				Activity: filter,
			}, names...)
			if err != nil {
				return err
			}

			if xlsxPath == "" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			// The session sheet describes the first session.
			sess, err := a.store.Session(ctx, sessionIDs[0])
			if err != nil {
				return err
			}
			report, err := a.store.Report(ctx, sessionIDs[0])
			if err != nil {
				return err
			}
			f, err := os.Create(xlsxPath)
			if err != nil {
				return err
			}
			if err := export.Write(f, sess, report, results); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.logger.Info("Workbook written",
				zap.String("path", xlsxPath),
				zap.Strings("analyses", names),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", styleOK.Render("wrote"), xlsxPath, strings.Join(names, ", "))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&sessionIDs, "session", nil, "session ID (repeat for multi-subject analyses)")
	cmd.Flags().StringSliceVarP(&names, "analysis", "a", nil, "analyses to run (default: all that apply)")
	cmd.Flags().StringVar(&from, "from", "", "inclusive lower time bound (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "exclusive upper time bound")
	cmd.Flags().DurationVar(&window, "window", 0, "co-location window (default from config)")
	cmd.Flags().StringVar(&activity, "activity", "all", "activity heatmap filter: all, incoming, outgoing or sms")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "write an XLSX workbook instead of JSON")
	return cmd
}
