package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jaa/resource-fetcher/internal/progress"
)

func emitAll(t *testing.T, emitter EventEmitter, events ...progress.Event) {
	t.Helper()
	for _, event := range events {
		if err := emitter.Emit(FromProgress("s", time.Now(), event)); err != nil {
			t.Fatalf("emit %s: %v", event.Kind(), err)
		}
	}
}

func TestHumanEmitterRendersAlbumRun(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	emitter := NewHumanEmitterWithOptions(stdout, stderr, HumanOptions{ProgressWidth: 4})

	emitAll(t, emitter,
		progress.AlbumStart{Title: "Album", Source: "izanmei", Total: 2},
		progress.SongStart{Index: 1, Total: 2, Title: "One"},
		progress.SongComplete{Index: 1, Title: "One", Status: "success", Size: 2048},
		progress.SongStart{Index: 2, Total: 2, Title: "Two"},
		progress.SongComplete{Index: 2, Title: "Two", Status: "failed", Message: "HTTP 404"},
		progress.AlbumComplete{Success: 1, Failed: 1, Total: 2},
	)

	out := stdout.String()
	if !strings.Contains(out, `album "Album" started (2 song(s) from izanmei)`) {
		t.Fatalf("expected album start line, got: %s", out)
	}
	if !strings.Contains(out, "[done] One (2.0 KiB)") {
		t.Fatalf("expected done line, got: %s", out)
	}
	if strings.Contains(out, "[song 1/2]") {
		t.Fatalf("song_start lines are verbose-only, got: %s", out)
	}
	if !strings.Contains(out, "[overall] [##--]  50.0% (1/2)") || !strings.Contains(out, "[overall] [####] 100.0% (2/2)") {
		t.Fatalf("expected overall progress lines, got: %s", out)
	}
	if !strings.Contains(out, "[summary] Album: 1 ok, 1 failed, 0 skipped of 2") {
		t.Fatalf("expected summary line, got: %s", out)
	}
	if !strings.Contains(stderr.String(), "WARN: [fail] Two: HTTP 404") {
		t.Fatalf("expected failed song on stderr, got: %s", stderr.String())
	}
}

func TestHumanEmitterVerboseShowsSongStart(t *testing.T) {
	stdout := &bytes.Buffer{}
	emitter := NewHumanEmitterWithOptions(stdout, &bytes.Buffer{}, HumanOptions{Verbose: true})
	emitAll(t, emitter, progress.SongStart{Index: 3, Total: 9, Title: "Three"})
	if !strings.Contains(stdout.String(), "[song 3/9] Three (downloading)") {
		t.Fatalf("expected song start line, got: %s", stdout.String())
	}
}

func TestHumanEmitterQuietKeepsErrorsAndSummary(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	emitter := NewHumanEmitterWithOptions(stdout, stderr, HumanOptions{Quiet: true})

	emitAll(t, emitter,
		progress.AlbumStart{Title: "Album", Total: 1},
		progress.SongComplete{Index: 1, Title: "One", Status: "success"},
		progress.Error{Message: "disk full"},
		progress.AlbumComplete{Success: 1, Total: 1},
	)

	if strings.Contains(stdout.String(), "[done]") || strings.Contains(stdout.String(), "started") {
		t.Fatalf("expected quiet stdout, got: %s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "[summary]") {
		t.Fatalf("expected summary in quiet mode, got: %s", stdout.String())
	}
	if !strings.Contains(stderr.String(), "ERROR: disk full") {
		t.Fatalf("expected error line, got: %s", stderr.String())
	}
}

type failingEmitter struct{ calls int }

func (f *failingEmitter) Emit(Event) error {
	f.calls++
	return errors.New("sink closed")
}

type countingEmitter struct{ calls int }

func (c *countingEmitter) Emit(Event) error {
	c.calls++
	return nil
}

func TestMultiEmitterDeliversPastFailures(t *testing.T) {
	failing := &failingEmitter{}
	counting := &countingEmitter{}
	emitter := NewMultiEmitter(failing, counting)

	err := emitter.Emit(Event{Event: EventSessionStarted})
	if err == nil {
		t.Fatalf("expected first failure to be reported")
	}
	if failing.calls != 1 || counting.calls != 1 {
		t.Fatalf("expected every emitter to be called once, got failing=%d counting=%d", failing.calls, counting.calls)
	}
}
