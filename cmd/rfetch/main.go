package main

import (
	"os"

	"github.com/jaa/resource-fetcher/internal/cli"
	"github.com/jaa/resource-fetcher/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	logging.Init(logging.ResolveLevel("", false), os.Stderr, false)

	code := cli.Execute(cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}, cli.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})
	os.Exit(code)
}
