package lookahead

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/dudecon/SpaceWheat/internal/modules/density"
	"github.com/dudecon/SpaceWheat/internal/modules/evolution"
	"github.com/dudecon/SpaceWheat/internal/modules/reservoir"
)

// run is the in-flight lookahead of one subsystem. It works on copies of
// the subsystem's layout and modulator and only writes them back on commit,
// so an abandoned run leaves the subsystem untouched.
type run struct {
	sub       *subsystem
	engine    *evolution.Engine
	modulator *reservoir.Modulator

	current    *density.Matrix
	positions  []r2.Vec
	velocities []r2.Vec
	frozen     []bool

	total int
	steps []Step
}

// newRun validates packed against sub and snapshots everything the run
// will advance.
func (s *Scheduler) newRun(sub *subsystem, packed []float64, steps int) (*run, error) {
	rho, err := density.FromPacked(packed, sub.dim)
	if err != nil {
		return nil, fmt.Errorf("subsystem %d: %w", sub.id, err)
	}
	if steps < 0 {
		steps = 0
	}

	r := &run{
		sub:        sub,
		engine:     sub.engine.Fork(),
		current:    rho,
		positions:  append([]r2.Vec(nil), sub.positions...),
		velocities: append([]r2.Vec(nil), sub.velocities...),
		frozen:     append([]bool(nil), sub.frozen...),
		total:      steps,
		steps:      make([]Step, 0, steps),
	}
	if sub.modulator != nil {
		r.modulator = sub.modulator.Clone()
	}
	return r, nil
}

func (r *run) done() bool { return len(r.steps) >= r.total }

// advance performs one lookahead step: evolve, modulate, extract
// observables, then move the layout.
func (s *Scheduler) advance(r *run, dt, maxSubstep float64) error {
	index := len(r.steps)
	numQubits := r.sub.numQubits

	rho, err := r.engine.Evolve(r.current, dt, maxSubstep)
	if err != nil {
		return fmt.Errorf("subsystem %d step %d: %w", r.sub.id, index, err)
	}
	if r.modulator != nil {
		if err := r.modulator.Apply(rho); err != nil {
			return fmt.Errorf("subsystem %d step %d: modulate: %w", r.sub.id, index, err)
		}
	}

	purity := evolution.Purity(rho)
	bloch, err := evolution.BlochSummary(rho, numQubits)
	if err != nil {
		return fmt.Errorf("subsystem %d step %d: %w", r.sub.id, index, err)
	}
	// The first step of every lookahead re-screens all pairs.
	mi, err := r.engine.MutualInformationAdaptive(rho, numQubits, purity, index == 0, s.miOpts)
	if err != nil {
		return fmt.Errorf("subsystem %d step %d: %w", r.sub.id, index, err)
	}

	r.positions, r.velocities = s.solver.Update(r.positions, r.velocities, bloch, mi, r.sub.center, dt, r.frozen)

	r.steps = append(r.steps, Step{
		State:      rho.Packed(),
		Purity:     purity,
		Bloch:      bloch,
		MutualInfo: mi,
		Positions:  append([]r2.Vec(nil), r.positions...),
		Velocities: append([]r2.Vec(nil), r.velocities...),
	})
	r.current = rho
	return nil
}

// commit writes the run's layout and modulator state back to its subsystem
// and returns the finished trajectory.
func (r *run) commit() Trajectory {
	sub := r.sub
	if len(r.steps) > 0 {
		copy(sub.positions, r.positions)
		copy(sub.velocities, r.velocities)
		if sub.modulator != nil && r.modulator != nil {
			sub.modulator = r.modulator
		}
	}

	return Trajectory{
		SubsystemID: sub.id,
		NumQubits:   sub.numQubits,
		Steps:       r.steps,
		Metadata:    sub.metadata,
		Couplings:   sub.engine.CouplingPayload(),
		Populations: buildPopulationMap(sub.metadata, sub.numQubits, r.steps),
	}
}

// prepare validates every state before any work starts. More states than
// registered subsystems is an error; fewer evolves only the leading ones.
func (s *Scheduler) prepare(states [][]float64, steps int, maxSubstep float64) ([]*run, error) {
	if err := checkSubstep(steps, maxSubstep); err != nil {
		return nil, err
	}
	if len(states) > len(s.subsystems) {
		return nil, fmt.Errorf("%w: %d states for %d registered subsystems",
			ErrInvalidSubsystem, len(states), len(s.subsystems))
	}
	runs := make([]*run, len(states))
	for id, packed := range states {
		r, err := s.newRun(s.subsystems[id], packed, steps)
		if err != nil {
			return nil, err
		}
		runs[id] = r
	}
	return runs, nil
}

// EvolveAllLookahead computes steps lookahead steps for the first
// len(states) subsystems in one call. states[k] is subsystem k's current
// state and is never modified. With steps == 0 every trajectory is empty and
// no subsystem state changes.
func (s *Scheduler) EvolveAllLookahead(states [][]float64, steps int, dt, maxSubstep float64) (*Result, error) {
	runs, err := s.prepare(states, steps, maxSubstep)
	if err != nil {
		s.log.Warn().Err(err).Msg("Rejected lookahead")
		return nil, err
	}

	result := &Result{
		ID:           uuid.New().String(),
		StepCount:    max(steps, 0),
		Dt:           dt,
		MaxSubstep:   maxSubstep,
		Trajectories: make([]Trajectory, 0, len(runs)),
	}
	for _, r := range runs {
		if err := s.runToCompletion(r, dt, maxSubstep); err != nil {
			return nil, err
		}
		result.Trajectories = append(result.Trajectories, r.commit())
	}
	return result, nil
}

// EvolveOneSubsystem refills the lookahead of a single subsystem, leaving
// every other subsystem untouched.
func (s *Scheduler) EvolveOneSubsystem(id int, state []float64, steps int, dt, maxSubstep float64) (*Trajectory, error) {
	sub, err := s.lookup(id)
	if err != nil {
		s.log.Warn().Err(err).Msg("Rejected single-subsystem lookahead")
		return nil, err
	}
	if err := checkSubstep(steps, maxSubstep); err != nil {
		return nil, err
	}
	r, err := s.newRun(sub, state, steps)
	if err != nil {
		s.log.Warn().Err(err).Msg("Rejected single-subsystem lookahead")
		return nil, err
	}
	if err := s.runToCompletion(r, dt, maxSubstep); err != nil {
		return nil, err
	}
	traj := r.commit()
	return &traj, nil
}

func (s *Scheduler) runToCompletion(r *run, dt, maxSubstep float64) error {
	for !r.done() {
		if err := s.advance(r, dt, maxSubstep); err != nil {
			return err
		}
		s.pacer.Wait()
	}
	return nil
}

func checkSubstep(steps int, maxSubstep float64) error {
	if steps > 0 && maxSubstep <= 0 {
		return fmt.Errorf("%w: got %g", evolution.ErrInvalidSubstep, maxSubstep)
	}
	return nil
}
