// Package main provides the entry point for the legion CLI.
package main

import (
	"context"
	"os"

	"github.com/mrz1836/legion/internal/cli"
)

// Build metadata, set via -ldflags at release time.
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx := context.Background()
	os.Exit(cli.Execute(ctx, cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}))
}
