package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jaa/resource-fetcher/internal/engine"
	"github.com/jaa/resource-fetcher/internal/exitcode"
	"github.com/jaa/resource-fetcher/internal/output"
	"github.com/jaa/resource-fetcher/internal/progress"
)

func writeFakeWorker(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "resource-fetcher")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write fake worker: %v", err)
	}
	return path
}

func writeExecutableConfig(t *testing.T, dir string, executable string) string {
	t.Helper()
	outputDir := filepath.Join(dir, "downloads")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatalf("mkdir output dir: %v", err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	payload := `version: 1
worker:
  mode: "executable"
  executable: "` + executable + `"
defaults:
  output_dir: "` + outputDir + `"
  timeout_seconds: 45
  retries: 2
  delay_seconds: 0.25
`
	if err := os.WriteFile(configPath, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func newTestApp() (*AppContext, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	app := &AppContext{
		Build: BuildInfo{Version: "test"},
		IO:    IOStreams{In: strings.NewReader(""), Out: stdout, ErrOut: stderr},
	}
	return app, stdout, stderr
}

func decodeEvents(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var events []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("expected JSON line, got %q: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

func TestAlbumDryRunHumanOutput(t *testing.T) {
	tmp := t.TempDir()
	configPath := writeExecutableConfig(t, tmp, "/opt/rf/resource-fetcher")

	app, stdout, _ := newTestApp()
	root := newRootCommand(app)
	root.SetArgs([]string{"album", "https://example.com/album/1?session=abc", "--config", configPath, "--dry-run", "--retries", "7", "--limit", "3"})

	if err := root.Execute(); err != nil {
		t.Fatalf("album --dry-run failed: %v", err)
	}
	out := stdout.String()
	if !strings.HasPrefix(out, "[dry-run] /opt/rf/resource-fetcher --url https://example.com/album/1 ") {
		t.Fatalf("unexpected dry-run output: %s", out)
	}
	for _, want := range []string{"--timeout 45", "--retries 7", "--delay 0.25", "--limit 3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in dry-run output: %s", want, out)
		}
	}
	if strings.Contains(out, "session=abc") {
		t.Fatalf("expected query string to be hidden: %s", out)
	}
}

func TestSongDryRunJSONOutput(t *testing.T) {
	tmp := t.TempDir()
	configPath := writeExecutableConfig(t, tmp, "/opt/rf/resource-fetcher")

	app, stdout, _ := newTestApp()
	root := newRootCommand(app)
	root.SetArgs([]string{"song", "https://example.com/song/9", "--config", configPath, "--dry-run", "--json"})

	if err := root.Execute(); err != nil {
		t.Fatalf("song --dry-run --json failed: %v", err)
	}
	events := decodeEvents(t, stdout.String())
	if len(events) != 1 || events[0]["event"] != "session_started" {
		t.Fatalf("expected a single session_started event, got %v", events)
	}
	details := events[0]["details"].(map[string]any)
	if details["dry_run"] != true || details["kind"] != "song" {
		t.Fatalf("unexpected dry-run details %v", details)
	}
	if strings.Contains(details["command"].(string), "--limit") {
		t.Fatalf("song command must not carry --limit: %v", details["command"])
	}
}

func TestAlbumRunStreamsWorkerProgressAsJSON(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell test is POSIX-specific")
	}
	tmp := t.TempDir()
	script := writeFakeWorker(t, tmp, `
echo '>>>PROGRESS:{"type":"album_start","title":"Blue","source":"bandcamp","total":1}'
echo '>>>PROGRESS:{"type":"song_start","index":1,"total":1,"title":"One"}' 1>&2
echo 'saving One.mp3'
echo '>>>PROGRESS:{"type":"song_complete","index":1,"title":"One","status":"success","size":1024,"message":""}'
echo '>>>PROGRESS:{"type":"album_complete","success":1,"failed":0,"skipped":0,"total":1}' 1>&2
`)
	configPath := writeExecutableConfig(t, tmp, script)

	app, stdout, _ := newTestApp()
	root := newRootCommand(app)
	root.SetArgs([]string{"album", "https://example.com/album/1", "--config", configPath, "--json"})

	if err := root.Execute(); err != nil {
		t.Fatalf("album run failed: %v", err)
	}

	events := decodeEvents(t, stdout.String())
	if len(events) != 6 {
		t.Fatalf("expected 6 events (start, 4 notifications, finish), got %d: %s", len(events), stdout.String())
	}
	if events[0]["event"] != "session_started" || events[5]["event"] != "session_finished" {
		t.Fatalf("expected session framing events, got first=%v last=%v", events[0]["event"], events[5]["event"])
	}
	sessionID := events[0]["session_id"]
	channels := map[string]int{}
	for _, event := range events {
		if event["session_id"] != sessionID {
			t.Fatalf("expected every event to share session id %v, got %v", sessionID, event["session_id"])
		}
		channels[event["event"].(string)]++
	}
	if channels["download-progress"] != 3 || channels["download-complete"] != 1 {
		t.Fatalf("unexpected channel counts %v", channels)
	}
	finished := events[5]["details"].(map[string]any)
	if finished["outcome"] != "completed" || finished["exit_code"] != float64(0) {
		t.Fatalf("unexpected session_finished details %v", finished)
	}
}

func TestAlbumRunHumanOutputShowsSummary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell test is POSIX-specific")
	}
	tmp := t.TempDir()
	script := writeFakeWorker(t, tmp, `
echo '>>>PROGRESS:{"type":"album_start","title":"Blue","source":"bandcamp","total":2}'
echo '>>>PROGRESS:{"type":"song_complete","index":1,"title":"One","status":"success","size":2048,"message":""}'
echo '>>>PROGRESS:{"type":"song_complete","index":2,"title":"Two","status":"skipped","size":0,"message":"exists"}'
echo '>>>PROGRESS:{"type":"album_complete","success":1,"failed":0,"skipped":1,"total":2}'
`)
	configPath := writeExecutableConfig(t, tmp, script)

	app, stdout, _ := newTestApp()
	root := newRootCommand(app)
	root.SetArgs([]string{"album", "https://example.com/album/1", "--config", configPath, "--no-color"})

	if err := root.Execute(); err != nil {
		t.Fatalf("album run failed: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"[done] One (2.0 KiB)", "[skip] Two: exists", "[summary] Blue: 1 ok, 0 failed, 1 skipped of 2", "album download finished"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestSongRunMapsWorkerFailureToExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell test is POSIX-specific")
	}
	tmp := t.TempDir()
	script := writeFakeWorker(t, tmp, `
echo '>>>PROGRESS:{"type":"error","message":"song not found"}'
echo 'HTTP 404 for song page' 1>&2
exit 3
`)
	configPath := writeExecutableConfig(t, tmp, script)

	app, _, stderr := newTestApp()
	root := newRootCommand(app)
	root.SetArgs([]string{"song", "https://example.com/song/404", "--config", configPath})

	err := root.Execute()
	if err == nil {
		t.Fatalf("expected worker failure")
	}
	if got := mapExitCode(err); got != exitcode.WorkerFailed {
		t.Fatalf("expected exit code %d, got %d (%v)", exitcode.WorkerFailed, got, err)
	}
	if !strings.Contains(err.Error(), "worker exited with code 3: HTTP 404 for song page") {
		t.Fatalf("unexpected error text %q", err.Error())
	}
	if !strings.Contains(stderr.String(), "ERROR: song not found") {
		t.Fatalf("expected download-error notification on stderr, got %q", stderr.String())
	}
}

func TestAlbumRunReportsMissingWorker(t *testing.T) {
	tmp := t.TempDir()
	configPath := writeExecutableConfig(t, tmp, filepath.Join(tmp, "missing-worker"))

	app, _, _ := newTestApp()
	root := newRootCommand(app)
	root.SetArgs([]string{"album", "https://example.com/album/1", "--config", configPath, "--json"})

	err := root.Execute()
	if got := mapExitCode(err); got != exitcode.MissingDependency {
		t.Fatalf("expected missing dependency exit code, got %d (%v)", got, err)
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %T", err)
	}
}

func TestAlbumRejectsInvalidURL(t *testing.T) {
	app, _, _ := newTestApp()
	root := newRootCommand(app)
	root.SetArgs([]string{"album", "not-a-url"})

	err := root.Execute()
	if got := mapExitCode(err); got != exitcode.InvalidUsage {
		t.Fatalf("expected invalid usage exit code, got %d (%v)", got, err)
	}
}

func TestAlbumRejectsNegativeRetries(t *testing.T) {
	tmp := t.TempDir()
	configPath := writeExecutableConfig(t, tmp, "/opt/rf/resource-fetcher")

	app, _, _ := newTestApp()
	root := newRootCommand(app)
	root.SetArgs([]string{"album", "https://example.com/album/1", "--config", configPath, "--dry-run", "--retries", "-1"})

	err := root.Execute()
	if got := mapExitCode(err); got != exitcode.InvalidUsage {
		t.Fatalf("expected invalid usage exit code, got %d (%v)", got, err)
	}
}

type stubRunner struct {
	emitter   output.EventEmitter
	sessionID string
	spec      engine.ExecSpec
	result    engine.SessionResult
}

func (r *stubRunner) Run(ctx context.Context, spec engine.ExecSpec) (engine.SessionResult, error) {
	r.spec = spec
	_ = r.emitter.Emit(output.FromProgress(r.sessionID, time.Now(), progress.AlbumStart{Title: "Stub", Total: 1}))
	result := r.result
	result.SessionID = r.sessionID
	return result, nil
}

func useStubRunner(t *testing.T, result engine.SessionResult) *stubRunner {
	t.Helper()
	stub := &stubRunner{result: result}
	previous := newSessionRunner
	newSessionRunner = func(emitter output.EventEmitter, stdout, stderr io.Writer, sessionID string) engine.SessionRunner {
		stub.emitter = emitter
		stub.sessionID = sessionID
		return stub
	}
	t.Cleanup(func() { newSessionRunner = previous })
	return stub
}

func TestAlbumRunMapsInterruptedSession(t *testing.T) {
	tmp := t.TempDir()
	configPath := writeExecutableConfig(t, tmp, "/opt/rf/resource-fetcher")
	stub := useStubRunner(t, engine.SessionResult{Outcome: engine.OutcomeFailed, Interrupted: true, Signal: "killed"})

	app, _, _ := newTestApp()
	root := newRootCommand(app)
	root.SetArgs([]string{"album", "https://example.com/album/1", "--config", configPath, "--json"})

	err := root.Execute()
	if got := mapExitCode(err); got != exitcode.Interrupted {
		t.Fatalf("expected interrupted exit code, got %d (%v)", got, err)
	}
	if stub.spec.Bin != "/opt/rf/resource-fetcher" || stub.sessionID == "" {
		t.Fatalf("unexpected runner input: spec=%+v session=%q", stub.spec, stub.sessionID)
	}
}

func TestEventLogReceivesCopyOfNotifications(t *testing.T) {
	tmp := t.TempDir()
	configPath := writeExecutableConfig(t, tmp, "/opt/rf/resource-fetcher")
	useStubRunner(t, engine.SessionResult{Outcome: engine.OutcomeCompleted, HasExitCode: true})
	logPath := filepath.Join(tmp, "events.ndjson")

	app, stdout, _ := newTestApp()
	root := newRootCommand(app)
	root.SetArgs([]string{"album", "https://example.com/album/1", "--config", configPath, "--event-log", logPath, "--verbose"})

	if err := root.Execute(); err != nil {
		t.Fatalf("album run failed: %v", err)
	}
	if strings.Contains(stdout.String(), `"event"`) {
		t.Fatalf("expected human output on stdout, got %q", stdout.String())
	}

	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read event log: %v", err)
	}
	events := decodeEvents(t, string(raw))
	if len(events) != 3 {
		t.Fatalf("expected start, progress and finish in the event log, got %d: %s", len(events), raw)
	}
	if events[0]["event"] != "session_started" || events[1]["event"] != "download-progress" || events[2]["event"] != "session_finished" {
		t.Fatalf("unexpected event log sequence: %s", raw)
	}
}
