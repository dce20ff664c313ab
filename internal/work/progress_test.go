package work

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmitter captures emitted events for testing
type mockEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
}

type emittedEvent struct {
	event string
	data  any
}

func (m *mockEmitter) Emit(event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, emittedEvent{event: event, data: data})
}

func (m *mockEmitter) getEvents() []emittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]emittedEvent, len(m.events))
	copy(result, m.events)
	return result
}

// fakeClock is advanced manually by tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestNewProgressReporter(t *testing.T) {
	emitter := &mockEmitter{}
	reporter := NewProgressReporter(emitter, "abc", "lookahead:sliced", "3 subsystems")

	assert.NotNil(t, reporter)
	assert.Equal(t, "abc", reporter.WorkID())
	assert.Equal(t, "lookahead:sliced", reporter.workType)
	assert.Equal(t, "3 subsystems", reporter.subject)
}

func TestProgressReporter_Report(t *testing.T) {
	emitter := &mockEmitter{}
	reporter := NewProgressReporter(emitter, "abc", "lookahead:sliced", "")

	reporter.Report(1, 10, "step 1")

	events := emitter.getEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventLookaheadProgress, events[0].event)

	progressEvent, ok := events[0].data.(ProgressEvent)
	require.True(t, ok)
	assert.Equal(t, "abc", progressEvent.WorkID)
	assert.Equal(t, "lookahead:sliced", progressEvent.WorkType)
	assert.Equal(t, 1, progressEvent.Current)
	assert.Equal(t, 10, progressEvent.Total)
	assert.InDelta(t, 0.1, progressEvent.Fraction, 1e-12)
	assert.Equal(t, "step 1", progressEvent.Message)
}

func TestProgressReporter_ReportWithDetails(t *testing.T) {
	emitter := &mockEmitter{}
	reporter := NewProgressReporter(emitter, "abc", "lookahead:eager", "")

	reporter.ReportWithDetails(2, 4, "subsystem done", map[string]any{"subsystem": 1})

	events := emitter.getEvents()
	require.Len(t, events, 1)
	progressEvent, ok := events[0].data.(ProgressEvent)
	require.True(t, ok)
	assert.Equal(t, 1, progressEvent.Details["subsystem"])
	assert.InDelta(t, 0.5, progressEvent.Fraction, 1e-12)
}

func TestProgressReporter_Throttling(t *testing.T) {
	emitter := &mockEmitter{}
	reporter := NewProgressReporter(emitter, "abc", "lookahead:sliced", "")
	clock := &fakeClock{t: time.Unix(1000, 0)}
	reporter.SetClock(clock.now)

	for i := 0; i < 99; i++ {
		reporter.Report(i, 100, "progress")
	}
	assert.Len(t, emitter.getEvents(), 1, "rapid reports collapse into one")

	clock.advance(progressThrottleInterval)
	reporter.Report(50, 100, "later")
	assert.Len(t, emitter.getEvents(), 2)
}

func TestProgressReporter_FinalReportNeverThrottled(t *testing.T) {
	emitter := &mockEmitter{}
	reporter := NewProgressReporter(emitter, "abc", "lookahead:sliced", "")
	clock := &fakeClock{t: time.Unix(1000, 0)}
	reporter.SetClock(clock.now)

	reporter.Report(1, 4, "first")
	reporter.Report(2, 4, "throttled")
	reporter.Report(4, 4, "done")

	events := emitter.getEvents()
	require.Len(t, events, 2)
	last, ok := events[1].data.(ProgressEvent)
	require.True(t, ok)
	assert.Equal(t, 4, last.Current)
	assert.InDelta(t, 1.0, last.Fraction, 1e-12)
}

func TestProgressReporter_NilEmitter(t *testing.T) {
	reporter := NewProgressReporter(nil, "abc", "lookahead:sliced", "")

	assert.NotPanics(t, func() {
		reporter.Report(1, 10, "Test")
		reporter.ReportWithDetails(1, 10, "Test", nil)
		reporter.EmitStarted(1, 1)
		reporter.EmitCompleted(1, time.Second)
		reporter.EmitCancelled(0, 1, time.Second)
	})
}

func TestProgressReporter_NilReporter(t *testing.T) {
	var reporter *ProgressReporter

	assert.NotPanics(t, func() {
		reporter.Report(1, 10, "Test")
		reporter.ReportWithDetails(1, 10, "Test", nil)
		reporter.EmitStarted(1, 1)
		reporter.EmitCompleted(1, time.Second)
		reporter.EmitCancelled(0, 1, time.Second)
		reporter.SetClock(time.Now)
	})
	assert.Equal(t, "", reporter.WorkID())
}

func TestProgressReporter_Lifecycle(t *testing.T) {
	emitter := &mockEmitter{}
	reporter := NewProgressReporter(emitter, "abc", "lookahead:sliced", "")

	reporter.EmitStarted(3, 5)
	reporter.EmitCompleted(15, 2*time.Millisecond)
	reporter.EmitCancelled(7, 15, time.Millisecond)

	events := emitter.getEvents()
	require.Len(t, events, 3)

	started, ok := events[0].data.(StartedEvent)
	require.True(t, ok)
	assert.Equal(t, EventLookaheadStarted, events[0].event)
	assert.Equal(t, 3, started.Subsystems)
	assert.Equal(t, 5, started.Steps)

	completed, ok := events[1].data.(CompletedEvent)
	require.True(t, ok)
	assert.Equal(t, EventLookaheadCompleted, events[1].event)
	assert.Equal(t, 15, completed.Units)
	assert.Equal(t, 2*time.Millisecond, completed.Duration)

	cancelled, ok := events[2].data.(CancelledEvent)
	require.True(t, ok)
	assert.Equal(t, EventLookaheadCancelled, events[2].event)
	assert.Equal(t, 7, cancelled.Current)
	assert.Equal(t, 15, cancelled.Total)
}

func TestEmitterFunc(t *testing.T) {
	var got string
	EmitterFunc(func(event string, _ any) { got = event }).Emit("x", nil)
	assert.Equal(t, "x", got)
}

func TestEventConstants(t *testing.T) {
	assert.Equal(t, "LookaheadStarted", EventLookaheadStarted)
	assert.Equal(t, "LookaheadProgress", EventLookaheadProgress)
	assert.Equal(t, "LookaheadCompleted", EventLookaheadCompleted)
	assert.Equal(t, "LookaheadCancelled", EventLookaheadCancelled)
}
