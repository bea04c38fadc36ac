package cli

import "io"

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

type GlobalOptions struct {
	ConfigPath string
	JSON       bool
	Quiet      bool
	Verbose    bool
	NoColor    bool
	NoInput    bool
	DryRun     bool
	LogLevel   string
	// EventLog, when set, receives a copy of every notification as NDJSON.
	EventLog string
}

type AppContext struct {
	Build BuildInfo
	IO    IOStreams
	Opts  GlobalOptions

	// DotEnvKeys lists the variables loaded from .env files at startup.
	DotEnvKeys []string
}
