package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/lvonguyen/cdrforge/internal/normalization"
	"github.com/lvonguyen/cdrforge/internal/pipeline"
	"github.com/lvonguyen/cdrforge/internal/schema"
)

type ingestFlags struct {
	subject     string
	label       string
	mapping     string
	baseProfile string
	detectOnly  bool
	output      string
}

// ingestOutcome is the result of one file.
type ingestOutcome struct {
	Path      string                   `json:"path"`
	Detection *normalization.Detection `json:"detection,omitempty"`
	Result    *pipeline.Result         `json:"result,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

func newIngestCommand(info BuildInfo) *cobra.Command {
	var f ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest [files or globs...]",
		Short: "Normalize CDR exports and store each file as a session",
		Long: `Read one or more CDR exports (CSV, XLSX or JSON), detect the operator
format, normalize the rows and store each file as a new session.

Examples:
  cdrforge ingest target.csv
  cdrforge ingest "exports/**/*.xlsx" --label "case 42"
  cdrforge ingest raw.csv --mapping '{"calling_number":"A Party","called_number":"B Party","start_time":"Date"}'
  cdrforge ingest "exports/*.csv" --detect-only`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandPatterns(args)
			if err != nil {
				return err
			}
			var mapping map[schema.Field]string
			if f.mapping != "" {
				if mapping, err = schema.ParseMapping(f.mapping); err != nil {
					return err
				}
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

			outcomes := make([]ingestOutcome, 0, len(paths))
			failed := 0
			for _, path := range paths {
				o := ingestFile(cmd.Context(), a.pipeline, path, f, mapping)
				if o.Error != "" {
					failed++
				}
				outcomes = append(outcomes, o)
			}

			out := cmd.OutOrStdout()
			if f.output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(outcomes); err != nil {
					return err
				}
			} else {
				renderIngestReport(out, outcomes)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) failed", failed, len(paths))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.subject, "subject", "s", "", "subject MSISDN (default: banner hint or most frequent number)")
	cmd.Flags().StringVar(&f.label, "label", "", "session label")
	cmd.Flags().StringVar(&f.mapping, "mapping", "", `manual field mapping as JSON {"field": "header"}`)
	cmd.Flags().StringVar(&f.baseProfile, "base-profile", "", "profile whose date formats and time zone a manual mapping inherits")
	cmd.Flags().BoolVar(&f.detectOnly, "detect-only", false, "report the detected format without storing anything")
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", "output format: text, json")
	return cmd
}

func ingestFile(ctx context.Context, p *pipeline.Pipeline, path string, f ingestFlags, mapping map[schema.Field]string) ingestOutcome {
	o := ingestOutcome{Path: path}
	file, err := os.Open(path)
	if err != nil {
		o.Error = err.Error()
		return o
	}
	defer file.Close()

	name := filepath.Base(path)
	if f.detectOnly {
		det, _, err := p.Detect(name, file)
		if err != nil {
			o.Error = err.Error()
			return o
		}
		o.Detection = det
		return o
	}

	res, err := p.Ingest(ctx, pipeline.Upload{
		Name:          name,
		Body:          file,
		SubjectNumber: f.subject,
		Label:         f.label,
		Mapping:       mapping,
		BaseProfile:   f.baseProfile,
	})
	if err != nil {
		o.Error = err.Error()
		return o
	}
	o.Result = res
	o.Detection = res.Detection
	return o
}

// expandPatterns resolves file arguments; "**" matches across directories.
// A literal path that does not exist is an error, a glob matching nothing
// is not.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 && !hasMeta(pattern) {
			return nil, fmt.Errorf("no such file: %s", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files matched %v", patterns)
	}
	sort.Strings(paths)
	return paths, nil
}

func hasMeta(pattern string) bool {
	for _, r := range pattern {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
