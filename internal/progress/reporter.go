package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	barWidth = 15
	filled   = "█"
	empty    = "░"

	// DefaultInterval is the fallback tick between status edits.
	DefaultInterval = time.Second
)

// RenderBar draws percent as barWidth cells.
func RenderBar(percent int) string {
	percent = max(0, min(100, percent))
	n := percent * barWidth / 100
	return strings.Repeat(filled, n) + strings.Repeat(empty, barWidth-n)
}

// StatusText is the status message content for percent.
func StatusText(percent int) string {
	return fmt.Sprintf("Uploading image\n%s %d%%", RenderBar(percent), percent)
}

// Reporter edits the status message while an upload runs.
type Reporter struct {
	Progress *UploadProgress
	// Edit replaces the status message content.
	Edit func(ctx context.Context, content string) error
	// Interval between fallback ticks; DefaultInterval when zero.
	Interval time.Duration
	// Tick overrides the internal ticker when set.
	Tick   <-chan time.Time
	Logger *slog.Logger
}

// Run waits for a wake or a tick, edits the status with the current percentage and
// repeats until it has shown 100%, done is closed or ctx ends. Every iteration issues
// exactly one edit. Run returns the number of edits issued.
func (r *Reporter) Run(ctx context.Context, done <-chan struct{}) int {
	tick := r.Tick
	if tick == nil {
		interval := r.Interval
		if interval <= 0 {
			interval = DefaultInterval
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	edits := 0
	for {
		select {
		case <-ctx.Done():
			return edits
		case <-done:
			return edits
		case <-r.Progress.Wake():
		case <-tick:
		}

		percent := r.Progress.Percent()
		if err := r.Edit(ctx, StatusText(percent)); err != nil {
			logger.Warn("failed to edit status message", "percent", percent, "error", err)
		}
		edits++
		if percent >= 100 {
			return edits
		}
	}
}
