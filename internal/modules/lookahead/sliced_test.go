package lookahead

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudecon/SpaceWheat/internal/work"
)

// tickingClock advances by step on every read, so slice budgets are hit
// deterministically.
type tickingClock struct {
	t    time.Time
	step time.Duration
}

func (c *tickingClock) Now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func runSliced(t *testing.T, s *Scheduler, states [][]float64, steps int, budget time.Duration) (*Result, int) {
	t.Helper()
	_, err := s.Start(states, steps, testDt, testMaxSubstep)
	require.NoError(t, err)

	calls := 0
	for {
		calls++
		require.Less(t, calls, 10000, "sliced computation never finished")
		done, err := s.Continue(budget)
		require.NoError(t, err)
		if done {
			break
		}
	}
	result, err := s.Result()
	require.NoError(t, err)
	return result, calls
}

func TestSlicedMatchesEager(t *testing.T) {
	states := initialStates()
	eager, err := newTestScheduler(t).EvolveAllLookahead(states, 5, testDt, testMaxSubstep)
	require.NoError(t, err)

	for _, budget := range []time.Duration{time.Millisecond, 5 * time.Millisecond, 0} {
		t.Run(budget.String(), func(t *testing.T) {
			s := newTestScheduler(t)
			sliced, _ := runSliced(t, s, states, 5, budget)

			require.Len(t, sliced.Trajectories, len(eager.Trajectories))
			for id := range eager.Trajectories {
				assertTrajectoriesEqual(t, eager.Trajectories[id], sliced.Trajectories[id], 1e-12)
			}
			assert.Equal(t, eager.StepCount, sliced.StepCount)

			positions, _, err := s.Layout(2)
			require.NoError(t, err)
			assert.Equal(t, sliced.Trajectories[2].Steps[4].Positions, positions)
		})
	}
}

func TestSliced_OneUnitPerSliceWithTinyBudget(t *testing.T) {
	clock := &tickingClock{t: time.Unix(0, 0), step: time.Millisecond}
	s := newTestScheduler(t, WithClock(clock.Now))

	result, calls := runSliced(t, s, initialStates(), 4, time.Nanosecond)
	assert.Equal(t, 3*4, calls)
	assert.Len(t, result.Trajectories, 3)
}

func TestSliced_UnboundedBudgetFinishesInOneCall(t *testing.T) {
	s := newTestScheduler(t)
	_, calls := runSliced(t, s, initialStates(), 4, 0)
	assert.Equal(t, 1, calls)
}

func TestSliced_StateMachine(t *testing.T) {
	s := newTestScheduler(t)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, "idle", s.State().String())
	assert.Zero(t, s.Progress())
	assert.Empty(t, s.ComputationID())

	_, err := s.Continue(time.Millisecond)
	assert.ErrorIs(t, err, ErrNoComputation)
	_, err = s.Result()
	assert.ErrorIs(t, err, ErrNotComplete)

	id, err := s.Start(initialStates(), 2, testDt, testMaxSubstep)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, s.ComputationID())
	assert.Equal(t, StateInProgress, s.State())
	assert.False(t, s.IsComplete())

	_, err = s.Start(initialStates(), 2, testDt, testMaxSubstep)
	assert.ErrorIs(t, err, ErrComputationInFlight)
	_, err = s.Result()
	assert.ErrorIs(t, err, ErrNotComplete)

	done, err := s.Continue(0)
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, s.IsComplete())
	assert.Equal(t, 1.0, s.Progress())

	// Continuing a finished computation is a no-op.
	done, err = s.Continue(0)
	require.NoError(t, err)
	assert.True(t, done)

	result, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, id, result.ID)
	assert.Equal(t, StateIdle, s.State())

	_, err = s.Result()
	assert.ErrorIs(t, err, ErrNotComplete, "a result is consumed once")
}

func TestSliced_StartDiscardsUnconsumedResult(t *testing.T) {
	s := newTestScheduler(t)
	first, err := s.Start(initialStates(), 1, testDt, testMaxSubstep)
	require.NoError(t, err)
	_, err = s.Continue(0)
	require.NoError(t, err)
	require.True(t, s.IsComplete())

	second, err := s.Start(initialStates(), 1, testDt, testMaxSubstep)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, StateInProgress, s.State())
}

func TestSliced_Progress(t *testing.T) {
	clock := &tickingClock{t: time.Unix(0, 0), step: time.Millisecond}
	s := newTestScheduler(t, WithClock(clock.Now))
	_, err := s.Start(initialStates(), 2, testDt, testMaxSubstep)
	require.NoError(t, err)

	prev := 0.0
	for {
		done, err := s.Continue(time.Nanosecond)
		require.NoError(t, err)
		progress := s.Progress()
		assert.Greater(t, progress, prev)
		assert.LessOrEqual(t, progress, 1.0)
		prev = progress
		if done {
			break
		}
	}
	assert.Equal(t, 1.0, prev)

	_, err = s.Result()
	require.NoError(t, err)
	assert.Zero(t, s.Progress())
}

func TestSliced_ZeroWorkCompletesImmediately(t *testing.T) {
	s := newTestScheduler(t)

	_, err := s.Start(initialStates(), 0, testDt, testMaxSubstep)
	require.NoError(t, err)
	assert.True(t, s.IsComplete())
	result, err := s.Result()
	require.NoError(t, err)
	require.Len(t, result.Trajectories, 3)
	for _, traj := range result.Trajectories {
		assert.Empty(t, traj.Steps)
	}

	_, err = s.Start(nil, 5, testDt, testMaxSubstep)
	require.NoError(t, err)
	assert.True(t, s.IsComplete())
	result, err = s.Result()
	require.NoError(t, err)
	assert.Empty(t, result.Trajectories)
}

func TestSliced_StartRejectsBadInput(t *testing.T) {
	s := newTestScheduler(t)
	states := initialStates()

	_, err := s.Start(append(states, states[0]), 1, testDt, testMaxSubstep)
	assert.ErrorIs(t, err, ErrInvalidSubsystem)
	assert.Equal(t, StateIdle, s.State())

	_, err = s.Start(states, 1, testDt, -1)
	assert.Error(t, err)
	assert.Equal(t, StateIdle, s.State())
}

func TestSliced_CancelLeavesLayoutUntouched(t *testing.T) {
	clock := &tickingClock{t: time.Unix(0, 0), step: time.Millisecond}
	s := newTestScheduler(t, WithClock(clock.Now))
	before := make([][]float64, 0)
	for id := 0; id < s.SubsystemCount(); id++ {
		pos, _, err := s.Layout(id)
		require.NoError(t, err)
		for _, p := range pos {
			before = append(before, []float64{p.X, p.Y})
		}
	}

	_, err := s.Start(initialStates(), 4, testDt, testMaxSubstep)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		done, err := s.Continue(time.Nanosecond)
		require.NoError(t, err)
		require.False(t, done)
	}
	assert.Greater(t, s.Progress(), 0.0)

	s.Cancel()
	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, s.Progress())
	_, err = s.Result()
	assert.ErrorIs(t, err, ErrNotComplete)

	after := make([][]float64, 0)
	for id := 0; id < s.SubsystemCount(); id++ {
		pos, _, err := s.Layout(id)
		require.NoError(t, err)
		for _, p := range pos {
			after = append(after, []float64{p.X, p.Y})
		}
	}
	assert.Equal(t, before, after)

	// Cancelling when idle is harmless.
	s.Cancel()
	assert.Equal(t, StateIdle, s.State())
}

func TestSliced_CancelThenRestartMatchesEager(t *testing.T) {
	states := initialStates()
	eager, err := newTestScheduler(t).EvolveAllLookahead(states, 3, testDt, testMaxSubstep)
	require.NoError(t, err)

	clock := &tickingClock{t: time.Unix(0, 0), step: time.Millisecond}
	s := newTestScheduler(t, WithClock(clock.Now))
	_, err = s.Start(states, 3, testDt, testMaxSubstep)
	require.NoError(t, err)
	_, err = s.Continue(time.Nanosecond)
	require.NoError(t, err)
	s.Cancel()

	sliced, _ := runSliced(t, s, states, 3, time.Nanosecond)
	for id := range eager.Trajectories {
		assertTrajectoriesEqual(t, eager.Trajectories[id], sliced.Trajectories[id], 1e-12)
	}
}

func TestSliced_Events(t *testing.T) {
	emitter := &recordingEmitter{}
	clock := &tickingClock{t: time.Unix(0, 0), step: 200 * time.Millisecond}
	s := newTestScheduler(t, WithEmitter(emitter), WithClock(clock.Now))

	id, err := s.Start(initialStates(), 2, testDt, testMaxSubstep)
	require.NoError(t, err)
	for {
		done, err := s.Continue(time.Nanosecond)
		require.NoError(t, err)
		if done {
			break
		}
	}

	require.NotEmpty(t, emitter.events)
	assert.Equal(t, work.EventLookaheadStarted, emitter.events[0])
	assert.Equal(t, work.EventLookaheadCompleted, emitter.events[len(emitter.events)-1])

	started, ok := emitter.data[0].(work.StartedEvent)
	require.True(t, ok)
	assert.Equal(t, id, started.WorkID)
	assert.Equal(t, 3, started.Subsystems)
	assert.Equal(t, 2, started.Steps)

	var last work.ProgressEvent
	progressCount := 0
	for i, event := range emitter.events {
		if event == work.EventLookaheadProgress {
			progressCount++
			last = emitter.data[i].(work.ProgressEvent)
		}
	}
	assert.Equal(t, 6, progressCount, "a 200ms tick never throttles")
	assert.Equal(t, 6, last.Current)
	assert.Equal(t, 6, last.Total)

	completed := emitter.data[len(emitter.data)-1].(work.CompletedEvent)
	assert.Equal(t, 6, completed.Units)
	assert.Positive(t, completed.Duration)
}

func TestSliced_CancelEmitsEvent(t *testing.T) {
	emitter := &recordingEmitter{}
	clock := &tickingClock{t: time.Unix(0, 0), step: time.Millisecond}
	s := newTestScheduler(t, WithEmitter(emitter), WithClock(clock.Now))

	_, err := s.Start(initialStates(), 2, testDt, testMaxSubstep)
	require.NoError(t, err)
	_, err = s.Continue(time.Nanosecond)
	require.NoError(t, err)
	s.Cancel()

	require.NotEmpty(t, emitter.events)
	assert.Equal(t, work.EventLookaheadCancelled, emitter.events[len(emitter.events)-1])
	cancelled := emitter.data[len(emitter.data)-1].(work.CancelledEvent)
	assert.Equal(t, 1, cancelled.Current)
	assert.Equal(t, 6, cancelled.Total)
}
