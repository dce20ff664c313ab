package work

import (
	"sync"
	"time"
)

// ProgressReporter provides progress reporting for a lookahead computation.
// It emits events that a host can consume to show real-time progress.
type ProgressReporter struct {
	eventEmitter EventEmitter
	workID       string
	workType     string
	subject      string

	// Throttling to avoid spam
	lastReport time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// EventEmitter defines the interface for emitting events
type EventEmitter interface {
	Emit(event string, data any)
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(event string, data any)

// Emit calls f(event, data).
func (f EmitterFunc) Emit(event string, data any) { f(event, data) }

// ProgressEvent is emitted while a computation advances
type ProgressEvent struct {
	WorkID   string         `json:"work_id"`
	WorkType string         `json:"work_type"`
	Subject  string         `json:"subject,omitempty"`
	Current  int            `json:"current"`
	Total    int            `json:"total"`
	Fraction float64        `json:"fraction"`
	Message  string         `json:"message,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// StartedEvent is emitted when a computation begins
type StartedEvent struct {
	WorkID     string `json:"work_id"`
	WorkType   string `json:"work_type"`
	Subject    string `json:"subject,omitempty"`
	Subsystems int    `json:"subsystems"`
	Steps      int    `json:"steps"`
}

// CompletedEvent is emitted when a computation finishes
type CompletedEvent struct {
	WorkID   string        `json:"work_id"`
	WorkType string        `json:"work_type"`
	Subject  string        `json:"subject,omitempty"`
	Units    int           `json:"units"`
	Duration time.Duration `json:"duration_ms"`
}

// CancelledEvent is emitted when a computation is abandoned
type CancelledEvent struct {
	WorkID   string        `json:"work_id"`
	WorkType string        `json:"work_type"`
	Subject  string        `json:"subject,omitempty"`
	Current  int           `json:"current"`
	Total    int           `json:"total"`
	Duration time.Duration `json:"duration_ms"`
}

// Event names for the lookahead lifecycle
const (
	EventLookaheadStarted   = "LookaheadStarted"
	EventLookaheadProgress  = "LookaheadProgress"
	EventLookaheadCompleted = "LookaheadCompleted"
	EventLookaheadCancelled = "LookaheadCancelled"
)

// Throttle interval for progress events (avoid spam)
const progressThrottleInterval = 100 * time.Millisecond

// NewProgressReporter creates a new progress reporter for one computation
func NewProgressReporter(emitter EventEmitter, workID, workType, subject string) *ProgressReporter {
	return &ProgressReporter{
		eventEmitter: emitter,
		workID:       workID,
		workType:     workType,
		subject:      subject,
		now:          time.Now,
	}
}

// SetClock replaces the time source used for throttling.
func (r *ProgressReporter) SetClock(now func() time.Time) {
	if r == nil || now == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// WorkID returns the id the reporter stamps on every event.
func (r *ProgressReporter) WorkID() string {
	if r == nil {
		return ""
	}
	return r.workID
}

// Report reports numeric progress (current/total) with a message.
// Progress events are throttled, except the final one (current == total).
func (r *ProgressReporter) Report(current, total int, message string) {
	r.ReportWithDetails(current, total, message, nil)
}

// ReportWithDetails reports progress with additional custom details.
func (r *ProgressReporter) ReportWithDetails(current, total int, message string, details map[string]any) {
	if r == nil || r.eventEmitter == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	final := total > 0 && current >= total
	if !final && now.Sub(r.lastReport) < progressThrottleInterval {
		return
	}
	r.lastReport = now

	fraction := 1.0
	if total > 0 {
		fraction = float64(current) / float64(total)
	}

	r.eventEmitter.Emit(EventLookaheadProgress, ProgressEvent{
		WorkID:   r.workID,
		WorkType: r.workType,
		Subject:  r.subject,
		Current:  current,
		Total:    total,
		Fraction: fraction,
		Message:  message,
		Details:  details,
	})
}

// EmitStarted emits a LookaheadStarted event
func (r *ProgressReporter) EmitStarted(subsystems, steps int) {
	if r == nil || r.eventEmitter == nil {
		return
	}

	r.eventEmitter.Emit(EventLookaheadStarted, StartedEvent{
		WorkID:     r.workID,
		WorkType:   r.workType,
		Subject:    r.subject,
		Subsystems: subsystems,
		Steps:      steps,
	})
}

// EmitCompleted emits a LookaheadCompleted event
func (r *ProgressReporter) EmitCompleted(units int, duration time.Duration) {
	if r == nil || r.eventEmitter == nil {
		return
	}

	r.eventEmitter.Emit(EventLookaheadCompleted, CompletedEvent{
		WorkID:   r.workID,
		WorkType: r.workType,
		Subject:  r.subject,
		Units:    units,
		Duration: duration,
	})
}

// EmitCancelled emits a LookaheadCancelled event
func (r *ProgressReporter) EmitCancelled(current, total int, duration time.Duration) {
	if r == nil || r.eventEmitter == nil {
		return
	}

	r.eventEmitter.Emit(EventLookaheadCancelled, CancelledEvent{
		WorkID:   r.workID,
		WorkType: r.workType,
		Subject:  r.subject,
		Current:  current,
		Total:    total,
		Duration: duration,
	})
}
