package lookahead

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dudecon/SpaceWheat/internal/work"
)

const slicedWorkType = "lookahead:sliced"

// slicedRun is the resumable form of EvolveAllLookahead. Work is counted in
// units of one subsystem-step; cursor indexes the run currently advancing.
type slicedRun struct {
	id         string
	runs       []*run
	cursor     int
	steps      int
	dt         float64
	maxSubstep float64
	completed  int
	total      int
	started    time.Time
	reporter   *work.ProgressReporter
}

// Start snapshots states and parameters and begins a sliced computation.
// It returns the computation id used in progress events. Starting while a
// computation is in progress fails with ErrComputationInFlight; an
// unconsumed completed result is discarded. Zero states or zero steps
// complete immediately.
func (s *Scheduler) Start(states [][]float64, steps int, dt, maxSubstep float64) (string, error) {
	if s.state == StateInProgress {
		err := fmt.Errorf("%w: %s at %d/%d", ErrComputationInFlight, s.sliced.id, s.sliced.completed, s.sliced.total)
		s.log.Warn().Err(err).Msg("Rejected lookahead start")
		return "", err
	}
	if s.state == StateComplete {
		s.log.Debug().Str("computation_id", s.result.ID).Msg("Discarding unconsumed lookahead result")
	}
	s.reset()

	runs, err := s.prepare(states, steps, maxSubstep)
	if err != nil {
		s.log.Warn().Err(err).Msg("Rejected lookahead start")
		return "", err
	}

	id := uuid.New().String()
	steps = max(steps, 0)
	sr := &slicedRun{
		id:         id,
		runs:       runs,
		steps:      steps,
		dt:         dt,
		maxSubstep: maxSubstep,
		total:      len(runs) * steps,
		started:    s.now(),
		reporter:   work.NewProgressReporter(s.emitter, id, slicedWorkType, fmt.Sprintf("%d subsystems", len(runs))),
	}
	sr.reporter.SetClock(s.now)
	s.sliced = sr
	s.state = StateInProgress

	s.log.Debug().
		Str("computation_id", id).
		Int("subsystems", len(runs)).
		Int("steps", steps).
		Float64("dt", dt).
		Msg("Sliced lookahead started")
	sr.reporter.EmitStarted(len(runs), steps)

	if sr.total == 0 {
		s.finish()
	}
	return id, nil
}

// Continue advances the computation until budget has elapsed or all work is
// done, and reports whether it is complete. Every call performs at least
// one unit of work; a budget of zero or less means no limit. Results are
// identical whatever budgets are used.
func (s *Scheduler) Continue(budget time.Duration) (bool, error) {
	switch s.state {
	case StateIdle:
		return false, ErrNoComputation
	case StateComplete:
		return true, nil
	}

	sr := s.sliced
	start := s.now()
	for sr.cursor < len(sr.runs) {
		r := sr.runs[sr.cursor]
		if err := s.advance(r, sr.dt, sr.maxSubstep); err != nil {
			s.log.Error().Err(err).Str("computation_id", sr.id).Msg("Sliced lookahead failed")
			s.abandon()
			return false, err
		}
		sr.completed++
		if r.done() {
			sr.cursor++
		}
		sr.reporter.Report(sr.completed, sr.total, "")

		if sr.cursor < len(sr.runs) && budget > 0 && s.now().Sub(start) >= budget {
			return false, nil
		}
	}

	s.finish()
	return true, nil
}

// finish commits every run and publishes the result.
func (s *Scheduler) finish() {
	sr := s.sliced
	result := &Result{
		ID:           sr.id,
		StepCount:    sr.steps,
		Dt:           sr.dt,
		MaxSubstep:   sr.maxSubstep,
		Trajectories: make([]Trajectory, 0, len(sr.runs)),
	}
	for _, r := range sr.runs {
		result.Trajectories = append(result.Trajectories, r.commit())
	}

	elapsed := s.now().Sub(sr.started)
	s.result = result
	s.state = StateComplete

	s.log.Debug().
		Str("computation_id", sr.id).
		Int("units", sr.total).
		Dur("elapsed", elapsed).
		Msg("Sliced lookahead complete")
	sr.reporter.EmitCompleted(sr.total, elapsed)
}

// IsComplete reports whether a finished result is waiting to be consumed.
func (s *Scheduler) IsComplete() bool { return s.state == StateComplete }

// State returns the phase of the sliced computation.
func (s *Scheduler) State() State { return s.state }

// Result hands over the completed result and returns the scheduler to idle.
// A result can be consumed only once.
func (s *Scheduler) Result() (*Result, error) {
	if s.state != StateComplete {
		return nil, fmt.Errorf("%w: state is %s", ErrNotComplete, s.state)
	}
	result := s.result
	s.reset()
	return result, nil
}

// Cancel abandons any sliced computation, discarding partial work and any
// unconsumed result. Subsystem layouts and modulators are left as they were
// before Start.
func (s *Scheduler) Cancel() {
	if s.state == StateInProgress {
		sr := s.sliced
		s.log.Debug().
			Str("computation_id", sr.id).
			Int("completed", sr.completed).
			Int("total", sr.total).
			Msg("Sliced lookahead cancelled")
	}
	s.abandon()
}

func (s *Scheduler) abandon() {
	if s.state == StateInProgress {
		sr := s.sliced
		sr.reporter.EmitCancelled(sr.completed, sr.total, s.now().Sub(sr.started))
	}
	s.reset()
}

func (s *Scheduler) reset() {
	s.sliced = nil
	s.result = nil
	s.state = StateIdle
}

// Progress returns completed work units over total work units: 0 when idle
// and 1 once complete.
func (s *Scheduler) Progress() float64 {
	switch s.state {
	case StateComplete:
		return 1
	case StateInProgress:
		if s.sliced.total == 0 {
			return 1
		}
		return float64(s.sliced.completed) / float64(s.sliced.total)
	default:
		return 0
	}
}

// ComputationID returns the id of the current sliced computation, or "" when
// idle.
func (s *Scheduler) ComputationID() string {
	switch {
	case s.sliced != nil:
		return s.sliced.id
	case s.result != nil:
		return s.result.ID
	default:
		return ""
	}
}
