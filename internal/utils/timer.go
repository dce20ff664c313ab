// Package utils holds small helpers shared by the command-line hosts.
package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// Timer measures one operation and logs its duration on Stop
type Timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
	slow  time.Duration
	now   func() time.Time
}

// NewTimer starts a timer. Operations longer than slow are logged at Warn;
// a zero slow threshold never warns.
func NewTimer(name string, slow time.Duration, log zerolog.Logger) *Timer {
	return newTimerWithClock(name, slow, log, time.Now)
}

func newTimerWithClock(name string, slow time.Duration, log zerolog.Logger, now func() time.Time) *Timer {
	return &Timer{
		start: now(),
		name:  name,
		log:   log,
		slow:  slow,
		now:   now,
	}
}

// Stop logs the elapsed time with any extra fields and returns it
func (t *Timer) Stop(fields map[string]any) time.Duration {
	duration := t.now().Sub(t.start)

	event := t.log.Debug()
	if t.slow > 0 && duration > t.slow {
		event = t.log.Warn().Dur("threshold", t.slow)
	}
	event.
		Str("operation", t.name).
		Dur("duration", duration).
		Fields(fields).
		Msg("Operation timed")

	return duration
}

// FrameStats aggregates the cost of time-sliced work, one sample per frame
type FrameStats struct {
	Name   string
	Budget time.Duration

	Frames  int
	Total   time.Duration
	Min     time.Duration
	Max     time.Duration
	Overrun int // frames that took longer than Budget
}

// Record adds one frame's duration
func (fs *FrameStats) Record(d time.Duration) {
	if fs.Frames == 0 || d < fs.Min {
		fs.Min = d
	}
	if d > fs.Max {
		fs.Max = d
	}
	fs.Frames++
	fs.Total += d
	if fs.Budget > 0 && d > fs.Budget {
		fs.Overrun++
	}
}

// Mean returns the average frame duration
func (fs *FrameStats) Mean() time.Duration {
	if fs.Frames == 0 {
		return 0
	}
	return fs.Total / time.Duration(fs.Frames)
}

// LogMetrics logs the aggregated frame metrics
func (fs *FrameStats) LogMetrics(log zerolog.Logger) {
	if fs.Frames == 0 {
		return
	}

	log.Info().
		Str("operation", fs.Name).
		Int("frames", fs.Frames).
		Dur("budget", fs.Budget).
		Dur("total_duration", fs.Total).
		Dur("avg_duration", fs.Mean()).
		Dur("min_duration", fs.Min).
		Dur("max_duration", fs.Max).
		Int("overruns", fs.Overrun).
		Msg("Frame metrics summary")
}
