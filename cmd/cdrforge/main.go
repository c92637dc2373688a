// Package main is the entry point for the CDRForge service and CLI.
package main

import "github.com/lvonguyen/cdrforge/internal/cli"

// Version information (injected at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	cli.Execute(cli.BuildInfo{Version: Version, GitCommit: GitCommit, BuildTime: BuildTime})
}
