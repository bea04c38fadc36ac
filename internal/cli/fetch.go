package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jaa/resource-fetcher/internal/config"
	"github.com/jaa/resource-fetcher/internal/engine"
	"github.com/jaa/resource-fetcher/internal/exitcode"
	"github.com/jaa/resource-fetcher/internal/output"
	"github.com/jaa/resource-fetcher/internal/worker"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// fetchFlags are the request options shared by album and song. Unset flags
// fall back to the config defaults.
type fetchFlags struct {
	output         string
	timeout        int
	retries        int
	delay          float64
	renumber       bool
	sessionTimeout time.Duration

	// album only
	limit     int
	overwrite bool
}

func (f *fetchFlags) register(cmd *cobra.Command, album bool) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output directory (default from config)")
	cmd.Flags().IntVar(&f.timeout, "timeout", 0, "Per-request timeout in seconds")
	cmd.Flags().IntVar(&f.retries, "retries", 0, "Retry attempts per URL")
	cmd.Flags().Float64Var(&f.delay, "delay", 0, "Delay between downloads in seconds")
	cmd.Flags().BoolVar(&f.renumber, "renumber", false, "Renumber downloaded files")
	cmd.Flags().DurationVar(&f.sessionTimeout, "session-timeout", 0, "Kill the worker after this long (e.g. 30m; 0 disables)")
	if album {
		cmd.Flags().IntVar(&f.limit, "limit", 0, "Download at most this many songs")
		cmd.Flags().BoolVar(&f.overwrite, "overwrite", false, "Overwrite files that already exist")
	}
}

type resolvedFetch struct {
	outputDir      string
	timeout        int
	retries        int
	delay          float64
	renumber       bool
	overwrite      bool
	sessionTimeout time.Duration
}

func (f *fetchFlags) resolve(cmd *cobra.Command, defaults config.Defaults) (resolvedFetch, error) {
	changed := cmd.Flags().Changed
	r := resolvedFetch{
		outputDir:      defaults.OutputDir,
		timeout:        defaults.TimeoutSeconds,
		retries:        defaults.Retries,
		delay:          defaults.DelaySeconds,
		renumber:       defaults.Renumber,
		overwrite:      defaults.Overwrite,
		sessionTimeout: time.Duration(defaults.SessionTimeoutSeconds) * time.Second,
	}
	if changed("output") {
		r.outputDir = f.output
	}
	if changed("timeout") {
		r.timeout = f.timeout
	}
	if changed("retries") {
		r.retries = f.retries
	}
	if changed("delay") {
		r.delay = f.delay
	}
	if changed("renumber") {
		r.renumber = f.renumber
	}
	if changed("overwrite") {
		r.overwrite = f.overwrite
	}
	if changed("session-timeout") {
		r.sessionTimeout = f.sessionTimeout
	}

	switch {
	case r.timeout <= 0:
		return resolvedFetch{}, fmt.Errorf("--timeout must be > 0")
	case r.retries < 0:
		return resolvedFetch{}, fmt.Errorf("--retries must be >= 0")
	case r.delay < 0:
		return resolvedFetch{}, fmt.Errorf("--delay must be >= 0")
	case f.limit < 0:
		return resolvedFetch{}, fmt.Errorf("--limit must be >= 0")
	case r.sessionTimeout < 0:
		return resolvedFetch{}, fmt.Errorf("--session-timeout must be >= 0")
	}

	outputDir, err := config.ExpandPath(r.outputDir)
	if err != nil {
		return resolvedFetch{}, err
	}
	r.outputDir = outputDir
	return r, nil
}

func newAlbumCommand(app *AppContext) *cobra.Command {
	flags := &fetchFlags{}
	cmd := &cobra.Command{
		Use:   "album <url>",
		Short: "Download every song of an album page",
		Args:  exactURLArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, app, "album", args[0], func(env worker.Environment, defaults config.Defaults) (engine.ExecSpec, error) {
				r, err := flags.resolve(cmd, defaults)
				if err != nil {
					return engine.ExecSpec{}, withExitCode(exitcode.InvalidUsage, err)
				}
				return worker.BuildAlbumSpec(env, worker.AlbumRequest{
					URL:       args[0],
					OutputDir: r.outputDir,
					Limit:     flags.limit,
					Timeout:   r.timeout,
					Retries:   r.retries,
					Delay:     r.delay,
					Overwrite: r.overwrite,
					Renumber:  r.renumber,
					Verbose:   app.Opts.Verbose,
				}, r.sessionTimeout)
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newSongCommand(app *AppContext) *cobra.Command {
	flags := &fetchFlags{}
	cmd := &cobra.Command{
		Use:   "song <url>",
		Short: "Download a single song",
		Args:  exactURLArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, app, "song", args[0], func(env worker.Environment, defaults config.Defaults) (engine.ExecSpec, error) {
				r, err := flags.resolve(cmd, defaults)
				if err != nil {
					return engine.ExecSpec{}, withExitCode(exitcode.InvalidUsage, err)
				}
				return worker.BuildSongSpec(env, worker.SongRequest{
					URL:       args[0],
					OutputDir: r.outputDir,
					Timeout:   r.timeout,
					Retries:   r.retries,
					Delay:     r.delay,
					Renumber:  r.renumber,
					Verbose:   app.Opts.Verbose,
				}, r.sessionTimeout)
			})
		},
	}
	flags.register(cmd, false)
	return cmd
}

func exactURLArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return withExitCode(exitcode.InvalidUsage, fmt.Errorf("expected exactly one URL argument, got %d", len(args)))
	}
	parsed, err := url.ParseRequestURI(strings.TrimSpace(args[0]))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return withExitCode(exitcode.InvalidUsage, fmt.Errorf("invalid URL %q: must be an http(s) URL", args[0]))
	}
	return nil
}

// newSessionRunner builds the runner for one fetch session.
var newSessionRunner = func(emitter output.EventEmitter, stdout, stderr io.Writer, sessionID string) engine.SessionRunner {
	supervisor := engine.NewSupervisor(emitter, stdout, stderr)
	supervisor.NewID = func() string { return sessionID }
	return supervisor
}

type specBuilder func(env worker.Environment, defaults config.Defaults) (engine.ExecSpec, error)

func runFetch(cmd *cobra.Command, app *AppContext, kind string, target string, build specBuilder) error {
	cfg, err := loadConfig(app)
	if err != nil {
		return withExitCode(exitcode.InvalidConfig, err)
	}
	if err := config.Validate(cfg); err != nil {
		return withExitCode(exitcode.InvalidConfig, err)
	}
	env, err := worker.EnvironmentFromConfig(cfg.Worker)
	if err != nil {
		return withExitCode(exitcode.InvalidConfig, err)
	}

	spec, err := build(env, cfg.Defaults)
	if err != nil {
		var coded *ExitError
		if errors.As(err, &coded) {
			return err
		}
		return withExitCode(exitcode.InvalidConfig, err)
	}

	emitter, closeEmitter, err := newEmitter(app)
	if err != nil {
		return withExitCode(exitcode.RuntimeFailure, err)
	}
	defer closeEmitter()
	sessionID := uuid.NewString()

	if app.Opts.DryRun {
		if !app.Opts.JSON {
			_, err := fmt.Fprintln(app.IO.Out, "[dry-run]", spec.DisplayCommand)
			return err
		}
		return emitter.Emit(output.Event{
			Timestamp: time.Now(),
			Level:     output.LevelInfo,
			Event:     output.EventSessionStarted,
			SessionID: sessionID,
			Message:   "[dry-run] " + spec.DisplayCommand,
			Details:   map[string]any{"kind": kind, "command": spec.DisplayCommand, "dry_run": true},
		})
	}

	var mirrorOut, mirrorErr io.Writer
	if app.Opts.Verbose && !app.Opts.JSON {
		mirrorOut, mirrorErr = app.IO.ErrOut, app.IO.ErrOut
	}
	runner := newSessionRunner(emitter, mirrorOut, mirrorErr, sessionID)

	ctx, stop := signal.NotifyContext(commandContext(cmd), interruptSignals()...)
	defer stop()

	started := time.Now()
	_ = emitter.Emit(output.Event{
		Timestamp: started,
		Level:     output.LevelInfo,
		Event:     output.EventSessionStarted,
		SessionID: sessionID,
		Message:   fmt.Sprintf("fetching %s %s", kind, spec.DisplayCommand),
		Details:   map[string]any{"kind": kind, "command": spec.DisplayCommand},
	})
	log.Debug().Str("session_id", sessionID).Str("kind", kind).Str("command", spec.DisplayCommand).Msg("starting worker")

	result, runErr := runner.Run(ctx, spec)
	if runErr != nil {
		_ = emitter.Emit(finishedEvent(sessionID, kind, result, runErr))
		return withExitCode(exitcode.MissingDependency, runErr)
	}

	_ = emitter.Emit(finishedEvent(sessionID, kind, result, nil))
	if failure := result.Err(); failure != nil {
		code := exitcode.WorkerFailed
		if result.Interrupted {
			code = exitcode.Interrupted
		}
		if detail := lastLine(result.Diagnostic); detail != "" && !result.Interrupted {
			return withExitCode(code, fmt.Errorf("%w: %s", failure, detail))
		}
		return withExitCode(code, failure)
	}
	return nil
}

func newEmitter(app *AppContext) (output.EventEmitter, func(), error) {
	var primary output.EventEmitter
	if app.Opts.JSON {
		primary = output.NewJSONEmitter(app.IO.Out)
	} else {
		primary = output.NewHumanEmitterWithOptions(app.IO.Out, app.IO.ErrOut, output.HumanOptions{
			Quiet:   app.Opts.Quiet,
			Verbose: app.Opts.Verbose,
			Color:   !app.Opts.NoColor && writerIsTTY(app.IO.Out),
		})
	}
	if strings.TrimSpace(app.Opts.EventLog) == "" {
		return primary, func() {}, nil
	}

	path, err := config.ExpandPath(app.Opts.EventLog)
	if err != nil {
		return nil, nil, fmt.Errorf("event log path: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open event log: %w", err)
	}
	closeFn := func() {
		if err := file.Close(); err != nil {
			log.Debug().Err(err).Str("path", path).Msg("close event log")
		}
	}
	return output.NewMultiEmitter(primary, output.NewJSONEmitter(file)), closeFn, nil
}

func finishedEvent(sessionID, kind string, result engine.SessionResult, spawnErr error) output.Event {
	event := output.Event{
		Timestamp: time.Now(),
		Level:     output.LevelInfo,
		Event:     output.EventSessionFinished,
		SessionID: sessionID,
		Details: map[string]any{
			"kind":        kind,
			"outcome":     string(result.Outcome),
			"events":      result.Events,
			"duration_ms": result.Duration.Milliseconds(),
		},
	}
	if result.HasExitCode {
		event.Details["exit_code"] = result.ExitCode
	}
	if result.Signal != "" {
		event.Details["signal"] = result.Signal
	}

	switch {
	case spawnErr != nil:
		event.Level = output.LevelError
		event.Message = spawnErr.Error()
		event.Details["outcome"] = string(engine.OutcomeFailed)
	case result.Completed():
		event.Message = fmt.Sprintf("%s download finished in %s", kind, result.Duration.Round(time.Millisecond))
	default:
		event.Level = output.LevelError
		event.Message = fmt.Sprintf("%s download failed: %v", kind, result.Err())
		if detail := lastLine(result.Diagnostic); detail != "" {
			event.Details["diagnostic"] = result.Diagnostic
		}
	}
	return event
}

func lastLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.LastIndex(text, "\n"); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return text
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
