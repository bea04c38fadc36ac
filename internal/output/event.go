package output

import (
	"time"

	"github.com/jaa/resource-fetcher/internal/progress"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type EventName string

// The three download-* names are the notification channels a consumer
// subscribes to; session_* events frame one supervised worker run.
const (
	EventSessionStarted   EventName = "session_started"
	EventDownloadProgress EventName = "download-progress"
	EventDownloadComplete EventName = "download-complete"
	EventDownloadError    EventName = "download-error"
	EventSessionFinished  EventName = "session_finished"
)

type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Event     EventName      `json:"event"`
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`

	// Progress is the decoded worker event behind a download-* notification.
	Progress progress.Event `json:"-"`
}
