package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jaa/resource-fetcher/internal/progress"
)

// FromProgress converts a decoded worker event into its notification. The
// details carry "type" plus exactly the variant's fields.
func FromProgress(sessionID string, at time.Time, event progress.Event) Event {
	details := map[string]any{"type": string(event.Kind())}
	for _, field := range event.Fields() {
		details[field.Name] = field.Value
	}

	notification := Event{
		Timestamp: at,
		Level:     LevelInfo,
		SessionID: sessionID,
		Details:   details,
		Progress:  event,
	}

	switch ev := event.(type) {
	case progress.AlbumStart:
		notification.Event = EventDownloadProgress
		notification.Message = fmt.Sprintf("album %q started (%d song(s) from %s)", ev.Title, ev.Total, sourceLabel(ev.Source))
	case progress.SongStart:
		notification.Event = EventDownloadProgress
		notification.Message = fmt.Sprintf("[%d/%d] %s", ev.Index, ev.Total, ev.Title)
	case progress.SongComplete:
		notification.Event = EventDownloadProgress
		notification.Message = songCompleteMessage(ev)
		if isFailedStatus(ev.Status) {
			notification.Level = LevelWarn
		}
	case progress.AlbumComplete:
		notification.Event = EventDownloadComplete
		notification.Message = fmt.Sprintf("album finished: %d succeeded, %d failed, %d skipped (%d total)", ev.Success, ev.Failed, ev.Skipped, ev.Total)
	case progress.Error:
		notification.Event = EventDownloadError
		notification.Level = LevelError
		notification.Message = ev.Message
		if strings.TrimSpace(notification.Message) == "" {
			notification.Message = "worker reported an error"
		}
	default:
		notification.Event = EventDownloadProgress
		notification.Message = string(event.Kind())
	}
	return notification
}

func songCompleteMessage(ev progress.SongComplete) string {
	line := fmt.Sprintf("%s %s", statusTag(ev.Status), ev.Title)
	if ev.Size > 0 {
		line += fmt.Sprintf(" (%s)", FormatBytes(ev.Size))
	}
	if msg := strings.TrimSpace(ev.Message); msg != "" {
		line += ": " + msg
	}
	return line
}

func statusTag(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "ok", "done":
		return "[done]"
	case "skipped", "skip":
		return "[skip]"
	case "failed", "failure", "error":
		return "[fail]"
	case "":
		return "[song]"
	default:
		return "[" + strings.ToLower(strings.TrimSpace(status)) + "]"
	}
}

func isFailedStatus(status string) bool {
	return statusTag(status) == "[fail]"
}

func sourceLabel(source string) string {
	if strings.TrimSpace(source) == "" {
		return "unknown source"
	}
	return source
}

// FormatBytes renders a byte count with binary units.
func FormatBytes(size uint64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	value := float64(size)
	suffixes := []string{"KiB", "MiB", "GiB", "TiB"}
	i := -1
	for value >= unit && i < len(suffixes)-1 {
		value /= unit
		i++
	}
	return fmt.Sprintf("%.1f %s", value, suffixes[i])
}
