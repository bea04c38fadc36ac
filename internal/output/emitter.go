package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/jaa/resource-fetcher/internal/output/compact"
	"github.com/jaa/resource-fetcher/internal/progress"
)

type EventEmitter interface {
	Emit(event Event) error
}

type JSONEmitter struct {
	enc *json.Encoder
	mu  sync.Mutex
}

func NewJSONEmitter(w io.Writer) *JSONEmitter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONEmitter{enc: enc}
}

func (e *JSONEmitter) Emit(event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(event)
}

type HumanOptions struct {
	Quiet         bool
	Verbose       bool
	Color         bool
	ProgressWidth int
}

// HumanEmitter renders notifications as terminal lines and keeps an album
// progress model so it can print an overall bar as songs finish.
type HumanEmitter struct {
	stdout io.Writer
	stderr io.Writer
	opts   HumanOptions

	mu      sync.Mutex
	tracker *compact.StateMachine
	palette palette
}

type palette struct {
	enabled bool
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	muted   lipgloss.Style
}

func (p palette) paint(style lipgloss.Style, text string) string {
	if !p.enabled {
		return text
	}
	return style.Render(text)
}

func NewHumanEmitterWithOptions(stdout, stderr io.Writer, opts HumanOptions) *HumanEmitter {
	if opts.ProgressWidth <= 0 {
		opts.ProgressWidth = 20
	}
	p := palette{enabled: opts.Color}
	if opts.Color {
		renderer := lipgloss.NewRenderer(stdout)
		p.ok = renderer.NewStyle().Foreground(lipgloss.Color("2"))
		p.warn = renderer.NewStyle().Foreground(lipgloss.Color("3"))
		p.fail = renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
		p.muted = renderer.NewStyle().Faint(true)
	}
	return &HumanEmitter{
		stdout:  stdout,
		stderr:  stderr,
		opts:    opts,
		tracker: compact.NewStateMachine(),
		palette: p,
	}
}

func (e *HumanEmitter) Emit(event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.track(event.Progress)

	line := event.Message
	if line == "" {
		line = string(event.Event)
	}

	switch event.Level {
	case LevelError:
		_, err := fmt.Fprintln(e.stderr, e.palette.paint(e.palette.fail, "ERROR:"), line)
		return err
	case LevelWarn:
		if e.opts.Quiet {
			return nil
		}
		_, err := fmt.Fprintln(e.stderr, e.palette.paint(e.palette.warn, "WARN:"), line)
		if err != nil {
			return err
		}
		return e.printOverall(event.Progress)
	}

	if e.opts.Quiet && event.Event != EventSessionFinished && event.Event != EventDownloadComplete {
		return nil
	}
	if !e.opts.Verbose {
		if event.Event == EventSessionStarted {
			return nil
		}
		if _, isSongStart := event.Progress.(progress.SongStart); isSongStart {
			return nil
		}
	}

	switch ev := event.Progress.(type) {
	case progress.SongStart:
		line = e.palette.paint(e.palette.muted, compact.RenderSongLine(ev.Index, ev.Total, ev.Title, "downloading"))
	case progress.SongComplete:
		line = e.palette.paint(e.palette.ok, line)
	case progress.AlbumComplete:
		line = compact.RenderSummaryLine(e.tracker.Snapshot().Album)
	}
	if _, err := fmt.Fprintln(e.stdout, line); err != nil {
		return err
	}
	return e.printOverall(event.Progress)
}

func (e *HumanEmitter) track(event progress.Event) {
	switch ev := event.(type) {
	case progress.AlbumStart:
		e.tracker.BeginAlbum(ev.Title, ev.Source, ev.Total)
	case progress.SongStart:
		e.tracker.BeginSong(ev.Index, ev.Total, ev.Title)
	case progress.SongComplete:
		e.tracker.CompleteSong(ev.Index, ev.Title, ev.Status)
	case progress.AlbumComplete:
		e.tracker.FinishAlbum(ev.Success, ev.Failed, ev.Skipped, ev.Total)
	}
}

func (e *HumanEmitter) printOverall(event progress.Event) error {
	if _, ok := event.(progress.SongComplete); !ok || e.opts.Quiet {
		return nil
	}
	total := e.tracker.EffectiveTotal()
	if total <= 0 {
		return nil
	}
	line := compact.RenderGlobalLine(e.tracker.GlobalProgressPercent(), e.opts.ProgressWidth, e.tracker.Completed(), total)
	_, err := fmt.Fprintln(e.stdout, e.palette.paint(e.palette.muted, line))
	return err
}

type MultiEmitter struct {
	emitters []EventEmitter
}

func NewMultiEmitter(emitters ...EventEmitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit delivers to every emitter and returns the first failure.
func (e *MultiEmitter) Emit(event Event) error {
	var firstErr error
	for _, emitter := range e.emitters {
		if err := emitter.Emit(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
