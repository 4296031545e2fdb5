package main

import (
	"os"

	"github.com/johnwmail/pasties/internal/cli"
)

// Version/build info (set via -ldflags at build time)
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "none"
)

func main() {
	os.Exit(cli.Execute(cli.BuildInfo{
		Version:    Version,
		BuildTime:  BuildTime,
		CommitHash: CommitHash,
	}, os.Args[1:]))
}
