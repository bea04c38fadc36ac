package cli

import (
	"errors"
	"strings"

	"github.com/jaa/resource-fetcher/internal/config"
	"github.com/jaa/resource-fetcher/internal/engine"
	"github.com/jaa/resource-fetcher/internal/exitcode"
)

type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

func mapExitCode(err error) int {
	if err == nil {
		return exitcode.Success
	}
	var coded *ExitError
	if errors.As(err, &coded) {
		return coded.Code
	}

	var validationErr *config.ValidationError
	var spawnErr *engine.SpawnError
	var workerErr *engine.ExitFailure
	switch {
	case errors.As(err, &validationErr):
		return exitcode.InvalidConfig
	case errors.As(err, &spawnErr):
		return exitcode.MissingDependency
	case errors.As(err, &workerErr):
		if workerErr.Interrupted {
			return exitcode.Interrupted
		}
		return exitcode.WorkerFailed
	}

	message := err.Error()
	if strings.Contains(message, "unknown command") || strings.Contains(message, "unknown flag") {
		return exitcode.InvalidUsage
	}
	return exitcode.RuntimeFailure
}
