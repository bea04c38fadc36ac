package compact

import (
	"strings"
	"sync"
)

type StateMachine struct {
	mu    sync.Mutex
	state ProgressModel
}

func NewStateMachine() *StateMachine {
	m := &StateMachine{}
	m.Reset()
	return m
}

func (m *StateMachine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = ProgressModel{
		Album: AlbumProgress{Lifecycle: AlbumLifecycleIdle},
		Song:  SongProgress{Lifecycle: SongLifecycleIdle},
	}
}

func (m *StateMachine) BeginAlbum(title string, source string, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Album = AlbumProgress{
		Title:     title,
		Source:    source,
		Lifecycle: AlbumLifecycleRunning,
		Total:     clampCount(total),
	}
	m.state.Song = SongProgress{Lifecycle: SongLifecycleIdle}
	m.syncGlobalLocked()
}

func (m *StateMachine) BeginSong(index int, total int, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Album.Lifecycle == AlbumLifecycleIdle {
		m.state.Album.Lifecycle = AlbumLifecycleRunning
	}
	if total > m.state.Album.Total {
		m.state.Album.Total = total
	}
	m.state.Song = SongProgress{
		Index:     clampCount(index),
		Title:     title,
		Lifecycle: SongLifecycleDownloading,
	}
	m.syncGlobalLocked()
}

// CompleteSong records a finished item and returns the lifecycle the
// status mapped to.
func (m *StateMachine) CompleteSong(index int, title string, status string) SongLifecycle {
	m.mu.Lock()
	defer m.mu.Unlock()

	lifecycle := lifecycleForStatus(status)
	switch lifecycle {
	case SongLifecycleFailed:
		m.state.Album.Failed++
	case SongLifecycleSkipped:
		m.state.Album.Skipped++
	default:
		m.state.Album.Succeeded++
	}
	if m.state.Album.Total <= 0 || m.state.Album.Completed < m.state.Album.Total {
		m.state.Album.Completed++
	}
	m.state.Song = SongProgress{
		Index:     clampCount(index),
		Title:     title,
		Lifecycle: lifecycle,
	}
	m.syncGlobalLocked()
	return lifecycle
}

// FinishAlbum adopts the worker's own summary counts.
func (m *StateMachine) FinishAlbum(success int, failed int, skipped int, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Album.Lifecycle = AlbumLifecycleFinished
	m.state.Album.Succeeded = clampCount(success)
	m.state.Album.Failed = clampCount(failed)
	m.state.Album.Skipped = clampCount(skipped)
	if total > 0 {
		m.state.Album.Total = total
	}
	m.state.Album.Completed = m.state.Album.Succeeded + m.state.Album.Failed + m.state.Album.Skipped
	m.state.Song = SongProgress{Lifecycle: SongLifecycleIdle}
	m.syncGlobalLocked()
}

func (m *StateMachine) EffectiveTotal() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Album.Total
}

func (m *StateMachine) Completed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Album.Completed
}

func (m *StateMachine) GlobalProgressPercent() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.state.Album.Total
	if total <= 0 {
		return 0
	}
	done := m.state.Album.Completed
	if done > total {
		done = total
	}
	return ClampPercent((float64(done) / float64(total)) * 100.0)
}

func (m *StateMachine) Snapshot() ProgressModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *StateMachine) syncGlobalLocked() {
	m.state.Global = GlobalProgress{
		Total:     m.state.Album.Total,
		Completed: m.state.Album.Completed,
	}
}

func lifecycleForStatus(status string) SongLifecycle {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "failed", "failure", "error":
		return SongLifecycleFailed
	case "skipped", "skip":
		return SongLifecycleSkipped
	default:
		return SongLifecycleDone
	}
}

func clampCount(value int) int {
	if value < 0 {
		return 0
	}
	return value
}
