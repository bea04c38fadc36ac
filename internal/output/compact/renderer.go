package compact

import (
	"fmt"
	"strings"
)

func RenderSongLine(index int, total int, title string, stage string) string {
	line := fmt.Sprintf("[song] %s", title)
	if total > 0 {
		line = fmt.Sprintf("[song %d/%d] %s", index, total, title)
	}
	if strings.TrimSpace(stage) != "" {
		line += " (" + stage + ")"
	}
	return line
}

func RenderGlobalLine(percent float64, width int, done int, total int) string {
	if total <= 0 {
		return fmt.Sprintf("[overall] %s", RenderProgress(percent, width))
	}
	return fmt.Sprintf("[overall] %s (%d/%d)", RenderProgress(percent, width), done, total)
}

func RenderSummaryLine(album AlbumProgress) string {
	title := strings.TrimSpace(album.Title)
	if title == "" {
		title = "download"
	}
	return fmt.Sprintf("[summary] %s: %d ok, %d failed, %d skipped of %d", title, album.Succeeded, album.Failed, album.Skipped, album.Total)
}

func RenderProgress(percent float64, width int) string {
	clamped := ClampPercent(percent)
	if width <= 0 {
		width = 16
	}
	filled := int((clamped / 100) * float64(width))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	return fmt.Sprintf("[%s] %5.1f%%", bar, clamped)
}

func ClampPercent(percent float64) float64 {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
