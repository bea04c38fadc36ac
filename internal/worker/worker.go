// Package worker turns fetch requests into invocations of the
// resource-fetcher worker.
package worker

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jaa/resource-fetcher/internal/config"
	"github.com/jaa/resource-fetcher/internal/engine"
)

// Environment locates the worker. It is resolved from config once and handed
// to the builders as is.
type Environment struct {
	Mode                   config.WorkerMode
	InterpreterPath        string
	WorkerExecutablePath   string
	RuntimeEnvironmentPath string
	Module                 string
	ExtraArgs              []string
}

func EnvironmentFromConfig(cfg config.Worker) (Environment, error) {
	executable, err := config.ExpandPath(cfg.Executable)
	if err != nil {
		return Environment{}, err
	}
	runtimeEnv, err := config.ExpandPath(cfg.RuntimeEnv)
	if err != nil {
		return Environment{}, err
	}
	interpreter := strings.TrimSpace(cfg.Interpreter)
	if strings.ContainsRune(interpreter, filepath.Separator) || strings.HasPrefix(interpreter, "~") {
		interpreter, err = config.ExpandPath(interpreter)
		if err != nil {
			return Environment{}, err
		}
	}
	return Environment{
		Mode:                   cfg.Mode,
		InterpreterPath:        interpreter,
		WorkerExecutablePath:   executable,
		RuntimeEnvironmentPath: runtimeEnv,
		Module:                 strings.TrimSpace(cfg.Module),
		ExtraArgs:              append([]string{}, cfg.ExtraArgs...),
	}, nil
}

// Binary returns the program to execute and the arguments that precede the
// request flags.
func (e Environment) Binary() (string, []string, error) {
	switch e.Mode {
	case config.WorkerModeExecutable:
		if strings.TrimSpace(e.WorkerExecutablePath) == "" {
			return "", nil, fmt.Errorf("worker executable path is not configured")
		}
		return e.WorkerExecutablePath, nil, nil
	case config.WorkerModeModule, "":
		if strings.TrimSpace(e.InterpreterPath) == "" {
			return "", nil, fmt.Errorf("worker interpreter path is not configured")
		}
		module := e.Module
		if strings.TrimSpace(module) == "" {
			module = config.DefaultModule
		}
		return e.InterpreterPath, []string{"-m", module}, nil
	default:
		return "", nil, fmt.Errorf("unsupported worker mode %q", e.Mode)
	}
}

// ChildEnv returns the variables added to the worker's inherited environment.
func (e Environment) ChildEnv() []string {
	env := []string{
		"PYTHONUNBUFFERED=1",
		"PYTHONIOENCODING=utf-8",
	}
	if runtimeEnv := strings.TrimSpace(e.RuntimeEnvironmentPath); runtimeEnv != "" {
		path := config.RuntimeEnvBinDir(runtimeEnv)
		if current := os.Getenv("PATH"); current != "" {
			path += string(os.PathListSeparator) + current
		}
		env = append(env, "VIRTUAL_ENV="+runtimeEnv, "PATH="+path)
	}
	return env
}

type AlbumRequest struct {
	URL       string
	OutputDir string
	// Limit caps the number of songs; zero downloads the whole album.
	Limit     int
	Timeout   int
	Retries   int
	Delay     float64
	Overwrite bool
	Renumber  bool
	Verbose   bool
}

type SongRequest struct {
	URL       string
	OutputDir string
	Timeout   int
	Retries   int
	Delay     float64
	Renumber  bool
	Verbose   bool
}

// BuildAlbumSpec builds the invocation for a whole-album download.
func BuildAlbumSpec(env Environment, req AlbumRequest, sessionTimeout time.Duration) (engine.ExecSpec, error) {
	args := commonArgs(req.URL, req.OutputDir, req.Timeout, req.Retries, req.Delay)
	if req.Limit > 0 {
		args = append(args, "--limit", strconv.Itoa(req.Limit))
	}
	if req.Overwrite {
		args = append(args, "--overwrite")
	}
	if req.Renumber {
		args = append(args, "--renumber")
	}
	if req.Verbose {
		args = append(args, "--verbose")
	}
	return buildSpec(env, req.URL, req.OutputDir, args, sessionTimeout)
}

// BuildSongSpec builds the invocation for a single-song download.
func BuildSongSpec(env Environment, req SongRequest, sessionTimeout time.Duration) (engine.ExecSpec, error) {
	args := commonArgs(req.URL, req.OutputDir, req.Timeout, req.Retries, req.Delay)
	if req.Renumber {
		args = append(args, "--renumber")
	}
	if req.Verbose {
		args = append(args, "--verbose")
	}
	return buildSpec(env, req.URL, req.OutputDir, args, sessionTimeout)
}

func commonArgs(rawURL, outputDir string, timeout, retries int, delay float64) []string {
	return []string{
		"--url", rawURL,
		"--output", outputDir,
		"--timeout", strconv.Itoa(timeout),
		"--retries", strconv.Itoa(retries),
		"--delay", strconv.FormatFloat(delay, 'f', -1, 64),
	}
}

func buildSpec(env Environment, rawURL, outputDir string, args []string, sessionTimeout time.Duration) (engine.ExecSpec, error) {
	if strings.TrimSpace(rawURL) == "" {
		return engine.ExecSpec{}, fmt.Errorf("url must be set")
	}
	if strings.TrimSpace(outputDir) == "" {
		return engine.ExecSpec{}, fmt.Errorf("output directory must be set")
	}
	bin, prefix, err := env.Binary()
	if err != nil {
		return engine.ExecSpec{}, err
	}

	full := make([]string, 0, len(prefix)+len(args)+len(env.ExtraArgs))
	full = append(full, prefix...)
	full = append(full, args...)
	full = append(full, env.ExtraArgs...)

	display := make([]string, len(full))
	copy(display, full)
	for i := range display {
		if i > 0 && display[i-1] == "--url" {
			display[i] = sanitizeURL(display[i])
		}
	}

	return engine.ExecSpec{
		Bin:            bin,
		Args:           full,
		Env:            env.ChildEnv(),
		Timeout:        sessionTimeout,
		DisplayCommand: formatCommand(bin, display),
	}, nil
}

func formatCommand(bin string, args []string) string {
	parts := []string{bin}
	parts = append(parts, args...)
	return strings.Join(parts, " ")
}

func sanitizeURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}
