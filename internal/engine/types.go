package engine

import (
	"fmt"
	"time"
)

type ExecSpec struct {
	Bin  string
	Args []string
	Dir  string
	// Env entries are appended to the parent environment.
	Env            []string
	Timeout        time.Duration
	DisplayCommand string
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// SessionResult is the terminal outcome of one supervised worker run. It is
// produced once, after the worker exited and both output streams were read
// to the end.
type SessionResult struct {
	SessionID   string
	Outcome     Outcome
	Output      string
	Diagnostic  string
	ExitCode    int
	HasExitCode bool
	Signal      string
	Interrupted bool
	TimedOut    bool
	Duration    time.Duration
	Events      int
}

func (r SessionResult) Completed() bool {
	return r.Outcome == OutcomeCompleted
}

// Err returns an *ExitFailure for failed sessions and nil otherwise.
func (r SessionResult) Err() error {
	if r.Completed() {
		return nil
	}
	return &ExitFailure{
		ExitCode:    r.ExitCode,
		HasExitCode: r.HasExitCode,
		Signal:      r.Signal,
		Interrupted: r.Interrupted,
		TimedOut:    r.TimedOut,
		Diagnostic:  r.Diagnostic,
	}
}

// SpawnError means the worker process could not be created.
type SpawnError struct {
	Bin string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn worker %s: %v", e.Bin, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

type ExitFailure struct {
	ExitCode    int
	HasExitCode bool
	Signal      string
	Interrupted bool
	TimedOut    bool
	Diagnostic  string
}

func (e *ExitFailure) Error() string {
	switch {
	case e.TimedOut:
		return "worker timed out"
	case e.Interrupted:
		return "worker interrupted"
	case e.HasExitCode:
		return fmt.Sprintf("worker exited with code %d", e.ExitCode)
	case e.Signal != "":
		return fmt.Sprintf("worker terminated by signal %s", e.Signal)
	default:
		return "worker exited abnormally"
	}
}
