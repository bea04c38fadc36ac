package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jaa/resource-fetcher/internal/output"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SessionRunner runs one worker invocation to completion.
type SessionRunner interface {
	Run(ctx context.Context, spec ExecSpec) (SessionResult, error)
}

var _ SessionRunner = (*Supervisor)(nil)

// Supervisor launches worker processes and streams their progress events.
// A Supervisor may run any number of sessions concurrently; sessions share
// nothing but the emitter and the mirror writers.
type Supervisor struct {
	Emitter output.EventEmitter
	// Stdout and Stderr receive the worker's non-protocol output when set.
	Stdout io.Writer
	Stderr io.Writer

	Logger    *zerolog.Logger
	NewID     func() string
	Now       func() time.Time
	TailBytes int
	// KillGrace bounds how long streams may stay open after the worker's
	// process group was killed before they are closed from this side.
	KillGrace time.Duration

	mirrorMu sync.Mutex
}

const defaultKillGrace = 2 * time.Second

func NewSupervisor(emitter output.EventEmitter, stdout, stderr io.Writer) *Supervisor {
	if emitter == nil {
		emitter = noOpEmitter{}
	}
	return &Supervisor{
		Emitter: emitter,
		Stdout:  stdout,
		Stderr:  stderr,
		NewID:   func() string { return uuid.NewString() },
		Now:     time.Now,
	}
}

type noOpEmitter struct{}

func (noOpEmitter) Emit(event output.Event) error {
	return nil
}

// Session is one running worker. Events must be consumed through Next (or a
// Publisher) and the outcome collected with Wait.
type Session struct {
	ID      string
	Spec    ExecSpec
	started time.Time
	now     func() time.Time
	logger  zerolog.Logger

	cmd       *exec.Cmd
	events    *Aggregator
	cancel    context.CancelFunc
	runCtx    context.Context
	killed    atomic.Bool
	killGrace time.Duration

	exited  chan struct{}
	waitErr error

	pipes      []*os.File
	drained    sync.WaitGroup
	drainDone  chan struct{}
	stats      [2]drainStats
	stdoutTail *tailBuffer
	stderrTail *tailBuffer
	mirrors    []io.Writer

	finish sync.Once
	result SessionResult
}

// Run spawns the worker, publishes its progress events to the emitter and
// returns once the worker exited, both streams were drained and every event
// was handed to the emitter. The error is non-nil only when the worker could
// not be spawned; worker failures are reported in the result.
func (s *Supervisor) Run(ctx context.Context, spec ExecSpec) (SessionResult, error) {
	session, err := s.Start(ctx, spec)
	if err != nil {
		return SessionResult{Outcome: OutcomeFailed, Diagnostic: err.Error()}, err
	}

	publisher := &Publisher{
		SessionID: session.ID,
		Emitter:   s.emitter(),
		Now:       session.now,
		Logger:    session.logger,
	}
	published := make(chan int, 1)
	go func() {
		published <- publisher.Run(context.Background(), session)
	}()

	result := session.Wait()
	count := <-published
	session.logger.Debug().Int("published", count).Str("outcome", string(result.Outcome)).Msg("session finished")
	return result, nil
}

// Start spawns the worker with piped stdout and stderr and starts one drainer
// per stream. Cancelling ctx, or exceeding spec.Timeout, kills the worker.
func (s *Supervisor) Start(ctx context.Context, spec ExecSpec) (*Session, error) {
	if strings.TrimSpace(spec.Bin) == "" {
		return nil, &SpawnError{Bin: spec.Bin, Err: errors.New("missing binary")}
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Bin: spec.Bin, Err: err}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, &SpawnError{Bin: spec.Bin, Err: err}
	}

	cmd := exec.Command(spec.Bin, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	configureCommandForTermination(cmd)

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, &SpawnError{Bin: spec.Bin, Err: err}
	}
	// The child holds its own copies; ours must go so the readers see EOF
	// when the worker exits.
	closeAll(stdoutW, stderrW)

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	id := s.newID()
	logger := s.logger().With().Str("session_id", id).Logger()
	session := &Session{
		ID:         id,
		Spec:       spec,
		started:    s.now()(),
		now:        s.now(),
		logger:     logger,
		cmd:        cmd,
		events:     NewAggregator(),
		cancel:     cancel,
		runCtx:     runCtx,
		exited:     make(chan struct{}),
		drainDone:  make(chan struct{}),
		killGrace:  s.killGrace(),
		pipes:      []*os.File{stdoutR, stderrR},
		stdoutTail: newTailBuffer(s.TailBytes),
		stderrTail: newTailBuffer(s.TailBytes),
	}
	logger.Debug().Str("command", displayCommand(spec)).Int("pid", cmd.Process.Pid).Msg("worker started")

	drainers := []*drainer{
		{
			stream:   StreamStdout,
			reader:   stdoutR,
			producer: session.events.Register(StreamStdout),
			tail:     session.stdoutTail,
			mirror:   s.mirror(s.Stdout),
			logger:   logger.With().Str("stream", string(StreamStdout)).Logger(),
		},
		{
			stream:   StreamStderr,
			reader:   stderrR,
			producer: session.events.Register(StreamStderr),
			tail:     session.stderrTail,
			mirror:   s.mirror(s.Stderr),
			logger:   logger.With().Str("stream", string(StreamStderr)).Logger(),
		},
	}
	session.mirrors = []io.Writer{s.Stdout, s.Stderr}

	session.drained.Add(len(drainers))
	for i, d := range drainers {
		go func(i int, d *drainer, r *os.File) {
			defer session.drained.Done()
			defer r.Close()
			session.stats[i] = d.run()
		}(i, d, d.reader.(*os.File))
	}

	go func() {
		session.drained.Wait()
		close(session.drainDone)
	}()
	go func() {
		session.waitErr = cmd.Wait()
		close(session.exited)
	}()
	go session.watch()

	return session, nil
}

// Next returns the session's next decoded event; see Aggregator.Next.
func (s *Session) Next(ctx context.Context) (Envelope, bool) {
	return s.events.Next(ctx)
}

// Cancel kills the worker. The streams then close and Wait returns.
func (s *Session) Cancel() {
	s.cancel()
}

// Wait blocks until the worker exited and both streams reached end of
// stream, then returns the session outcome. It is safe to call repeatedly.
func (s *Session) Wait() SessionResult {
	s.finish.Do(func() {
		<-s.exited
		<-s.drainDone
		for _, w := range s.mirrors {
			flushWriterIfSupported(w)
		}
		s.result = s.buildResult()
		s.cancel()
	})
	return s.result
}

// watch kills the worker's process group once the run context ends. Helpers
// started by the worker may outlive it and keep the pipes open, so watching
// lasts until both streams are drained, not just until the worker exits.
func (s *Session) watch() {
	select {
	case <-s.drainDone:
		return
	case <-s.runCtx.Done():
	}
	select {
	case <-s.drainDone:
		return
	default:
	}

	s.killed.Store(true)
	s.logger.Debug().Err(s.runCtx.Err()).Msg("terminating worker")
	terminateCommand(s.cmd)

	select {
	case <-s.drainDone:
	case <-time.After(s.killGrace):
		s.logger.Debug().Msg("streams still open after kill, closing them")
		closeAll(s.pipes...)
	}
}

func (s *Supervisor) killGrace() time.Duration {
	if s.KillGrace > 0 {
		return s.KillGrace
	}
	return defaultKillGrace
}

func (s *Session) buildResult() SessionResult {
	result := SessionResult{
		SessionID:  s.ID,
		Output:     s.stdoutTail.String(),
		Diagnostic: s.stderrTail.String(),
		Duration:   s.now().Sub(s.started),
		Events:     s.stats[0].Events + s.stats[1].Events,
	}
	killed := s.killed.Load()
	if s.waitErr == nil && !killed {
		result.Outcome = OutcomeCompleted
		result.HasExitCode = true
		return result
	}

	result.Outcome = OutcomeFailed
	if killed {
		if errors.Is(s.runCtx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
		} else {
			result.Interrupted = true
		}
	}
	if s.waitErr == nil {
		// The worker itself exited cleanly but its helpers held the streams
		// until they were killed.
		result.HasExitCode = true
		if strings.TrimSpace(result.Diagnostic) == "" {
			result.Diagnostic = result.Output
		}
		return result
	}

	var exitErr *exec.ExitError
	if errors.As(s.waitErr, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			result.ExitCode = code
			result.HasExitCode = true
		} else {
			result.Signal = exitSignal(exitErr.ProcessState)
		}
	}
	if strings.TrimSpace(result.Diagnostic) == "" {
		result.Diagnostic = result.Output
	}
	if strings.TrimSpace(result.Diagnostic) == "" {
		result.Diagnostic = s.waitErr.Error()
	}
	return result
}

type flushWriter interface {
	Flush() error
}

func flushWriterIfSupported(w io.Writer) {
	if f, ok := w.(flushWriter); ok {
		_ = f.Flush()
	}
}

// lockedWriter serializes writes from both drainers into a shared writer.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (s *Supervisor) mirror(w io.Writer) io.Writer {
	if w == nil {
		return nil
	}
	return &lockedWriter{mu: &s.mirrorMu, w: w}
}

func (s *Supervisor) emitter() output.EventEmitter {
	if s.Emitter == nil {
		return noOpEmitter{}
	}
	return s.Emitter
}

func (s *Supervisor) logger() *zerolog.Logger {
	if s.Logger == nil {
		return &log.Logger
	}
	return s.Logger
}

func (s *Supervisor) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

func (s *Supervisor) now() func() time.Time {
	if s.Now == nil {
		return time.Now
	}
	return s.Now
}

func displayCommand(spec ExecSpec) string {
	if strings.TrimSpace(spec.DisplayCommand) != "" {
		return spec.DisplayCommand
	}
	return strings.Join(append([]string{spec.Bin}, spec.Args...), " ")
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
