// Package cli implements the cdrforge command line: the HTTP server, batch
// ingestion, offline analysis and cell table import.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/lvonguyen/cdrforge/internal/config"
)

// BuildInfo is stamped into the binary at link time.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildTime string
}

const defaultConfigPath = "configs/config.yaml"

var (
	cfgFile   string
	logFormat string
	logLevel  string
)

// NewRootCommand builds the command tree.
func NewRootCommand(info BuildInfo) *cobra.Command {
	root := &cobra.Command{
		Use:   "cdrforge",
		Short: "CDRForge: CDR normalization and intelligence analytics",
		Long: `CDRForge ingests call detail record exports from any operator, maps them
onto one canonical schema and runs investigative analytics over them:
contact ranking, device timelines, tower usage, co-location and anomalies.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: "+defaultConfigPath+" when present)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "override log format: json, console")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level: debug, info, warn, error")

	root.AddCommand(
		newServeCommand(info),
		newIngestCommand(info),
		newAnalyzeCommand(info),
		newCellsCommand(info),
		newVersionCommand(info),
	)
	return root
}

// Execute runs the root command.
func Execute(info BuildInfo) {
	if err := NewRootCommand(info).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config, or the default path when it exists, or falls
// back to the built-in defaults. Flag overrides are applied last.
func loadConfig() (*config.Config, string, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}
	}

	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		cfg = loaded
	}
	applyOverrides(cfg)
	return cfg, path, nil
}

func applyOverrides(cfg *config.Config) {
	if logFormat != "" {
		cfg.Telemetry.LogFormat = logFormat
	}
	if logLevel != "" {
		cfg.Telemetry.LogLevel = logLevel
	}
}
