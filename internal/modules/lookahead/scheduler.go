package lookahead

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/dudecon/SpaceWheat/internal/modules/density"
	"github.com/dudecon/SpaceWheat/internal/modules/evolution"
	"github.com/dudecon/SpaceWheat/internal/modules/layout"
	"github.com/dudecon/SpaceWheat/internal/modules/reservoir"
	"github.com/dudecon/SpaceWheat/internal/work"
)

// DefaultLayoutParams returns the force constants used for lookahead
// layouts: stiffer repulsion and damping, tighter spacing.
func DefaultLayoutParams() layout.Params {
	p := layout.DefaultParams()
	p.Repulsion = 2500
	p.Damping = 0.92
	p.BaseDistance = 100
	p.MinDistance = 20
	return p
}

// subsystem is one registered quantum subsystem and its persistent layout.
type subsystem struct {
	id        int
	dim       int
	numQubits int
	engine    *evolution.Engine
	modulator *reservoir.Modulator
	metadata  any
	center    r2.Vec

	positions  []r2.Vec
	velocities []r2.Vec
	frozen     []bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = log.With().Str("component", "lookahead").Logger() }
}

// WithPacing sets the eager inter-step delay and the CPU guard threshold in
// percent (zero disables the guard).
func WithPacing(delay time.Duration, cpuThreshold float64) Option {
	return func(s *Scheduler) {
		s.pacingDelay = delay
		s.cpuThreshold = cpuThreshold
	}
}

// WithLayoutParams replaces the lookahead force constants.
func WithLayoutParams(p layout.Params) Option {
	return func(s *Scheduler) { s.solver.SetParams(p) }
}

// WithMIOptions sets the adaptive mutual-information thresholds.
func WithMIOptions(opts evolution.MIOptions) Option {
	return func(s *Scheduler) { s.miOpts = opts }
}

// WithModulationScale sets the phase scale used by modulators enabled later.
func WithModulationScale(scale float64) Option {
	return func(s *Scheduler) { s.modulationScale = scale }
}

// WithEmitter sets where lifecycle and progress events go.
func WithEmitter(emitter work.EventEmitter) Option {
	return func(s *Scheduler) { s.emitter = emitter }
}

// WithClock replaces the time source used for slice budgets and events.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler owns a set of subsystems and computes lookaheads for them. It
// is driven by a single caller and is not safe for concurrent use.
type Scheduler struct {
	log             zerolog.Logger
	subsystems      []*subsystem
	solver          *layout.Solver
	miOpts          evolution.MIOptions
	modulationScale float64
	pacingDelay     time.Duration
	cpuThreshold    float64
	pacer           *Pacer
	emitter         work.EventEmitter
	now             func() time.Time

	state  State
	sliced *slicedRun
	result *Result
}

// NewScheduler returns an empty scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		log:             zerolog.Nop(),
		solver:          layout.NewSolver(DefaultLayoutParams()),
		miOpts:          evolution.DefaultMIOptions(),
		modulationScale: reservoir.DefaultScale,
		pacingDelay:     DefaultPacingDelay,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pacer = NewPacer(s.pacingDelay, s.cpuThreshold, s.log)
	return s
}

// Pacer exposes the eager pacing controls.
func (s *Scheduler) Pacer() *Pacer { return s.pacer }

// LayoutParams returns the force constants in use.
func (s *Scheduler) LayoutParams() layout.Params { return s.solver.Params() }

// RegisterSubsystem builds and finalizes an engine for reg and returns the
// new subsystem's id. Ids are assigned densely from zero.
func (s *Scheduler) RegisterSubsystem(reg Registration) (int, error) {
	sub, err := s.build(len(s.subsystems), reg)
	if err != nil {
		s.log.Warn().Err(err).Int("dim", reg.Dim).Msg("Rejected subsystem registration")
		return -1, err
	}
	s.subsystems = append(s.subsystems, sub)

	s.log.Info().
		Int("id", sub.id).
		Int("dim", sub.dim).
		Int("qubits", sub.numQubits).
		Int("dissipators", sub.engine.DissipatorCount()).
		Msg("Registered subsystem")
	return sub.id, nil
}

// ReplaceSubsystem re-registers id with new operators. Layout state is
// reset and any modulator is dropped.
func (s *Scheduler) ReplaceSubsystem(id int, reg Registration) error {
	if _, err := s.lookup(id); err != nil {
		return err
	}
	sub, err := s.build(id, reg)
	if err != nil {
		return err
	}
	s.subsystems[id] = sub
	s.log.Info().Int("id", id).Int("dim", sub.dim).Msg("Replaced subsystem")
	return nil
}

func (s *Scheduler) build(id int, reg Registration) (*subsystem, error) {
	if !density.IsPowerOfTwo(reg.Dim) || reg.Dim < 2 {
		return nil, fmt.Errorf("%w: %d is not a power of two >= 2", ErrInvalidDimension, reg.Dim)
	}
	numQubits, err := density.QubitCount(reg.Dim)
	if err != nil {
		return nil, err
	}

	var h *density.Matrix
	if reg.Hamiltonian != nil {
		h, err = density.FromPacked(reg.Hamiltonian, reg.Dim)
		if err != nil {
			return nil, fmt.Errorf("hamiltonian: %w", err)
		}
	}

	engine := evolution.NewEngine()
	if err := engine.Configure(reg.Dim, h); err != nil {
		return nil, err
	}
	for k, packed := range reg.Dissipators {
		op, err := density.FromPacked(packed, reg.Dim)
		if err != nil {
			return nil, fmt.Errorf("dissipator %d: %w", k, err)
		}
		if err := engine.AddDissipator(op); err != nil {
			return nil, err
		}
	}
	for _, triplets := range reg.DissipatorTriplets {
		if len(triplets) == 0 {
			continue
		}
		if err := engine.AddDissipatorTriplets(triplets); err != nil {
			return nil, err
		}
	}
	if err := engine.Finalize(); err != nil {
		return nil, err
	}

	center := DefaultCenter
	if reg.Center != nil {
		center = *reg.Center
	}

	return &subsystem{
		id:         id,
		dim:        reg.Dim,
		numQubits:  numQubits,
		engine:     engine,
		metadata:   reg.Metadata,
		center:     center,
		positions:  layout.RingPositions(numQubits, initialRingRadius, center),
		velocities: make([]r2.Vec, numQubits),
		frozen:     make([]bool, numQubits),
	}, nil
}

// SubsystemCount returns the number of registered subsystems.
func (s *Scheduler) SubsystemCount() int { return len(s.subsystems) }

// Clear drops every subsystem and abandons any sliced computation.
func (s *Scheduler) Clear() {
	s.Cancel()
	s.subsystems = nil
	s.log.Debug().Msg("Cleared subsystems")
}

func (s *Scheduler) lookup(id int) (*subsystem, error) {
	if id < 0 || id >= len(s.subsystems) {
		return nil, fmt.Errorf("%w: id %d (have %d)", ErrInvalidSubsystem, id, len(s.subsystems))
	}
	return s.subsystems[id], nil
}

// Dimension returns the Hilbert-space dimension of subsystem id.
func (s *Scheduler) Dimension(id int) (int, error) {
	sub, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return sub.dim, nil
}

// SetMetadata replaces the opaque payload returned with id's trajectories.
func (s *Scheduler) SetMetadata(id int, metadata any) error {
	sub, err := s.lookup(id)
	if err != nil {
		return err
	}
	sub.metadata = metadata
	return nil
}

// Metadata returns id's payload.
func (s *Scheduler) Metadata(id int) (any, error) {
	sub, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return sub.metadata, nil
}

// SetCenter moves the point id's layout is organised around.
func (s *Scheduler) SetCenter(id int, center r2.Vec) error {
	sub, err := s.lookup(id)
	if err != nil {
		return err
	}
	sub.center = center
	return nil
}

// SetFrozen pins qubit nodes of id. A short mask leaves the remaining nodes
// free.
func (s *Scheduler) SetFrozen(id int, mask []bool) error {
	sub, err := s.lookup(id)
	if err != nil {
		return err
	}
	for i := range sub.frozen {
		sub.frozen[i] = i < len(mask) && mask[i]
	}
	return nil
}

// Layout returns copies of id's current node positions and velocities.
func (s *Scheduler) Layout(id int) ([]r2.Vec, []r2.Vec, error) {
	sub, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	return append([]r2.Vec(nil), sub.positions...), append([]r2.Vec(nil), sub.velocities...), nil
}

// SetLayout overwrites id's node positions and velocities.
func (s *Scheduler) SetLayout(id int, positions, velocities []r2.Vec) error {
	sub, err := s.lookup(id)
	if err != nil {
		return err
	}
	if len(positions) != sub.numQubits || (velocities != nil && len(velocities) != sub.numQubits) {
		return fmt.Errorf("%w: subsystem %d has %d nodes", ErrDimensionMismatch, id, sub.numQubits)
	}
	copy(sub.positions, positions)
	if velocities == nil {
		clear(sub.velocities)
	} else {
		copy(sub.velocities, velocities)
	}
	return nil
}

// EnableModulator attaches a phase modulator with the given hidden size to
// id, replacing any existing one.
func (s *Scheduler) EnableModulator(id, hiddenSize int, seed uint64) error {
	sub, err := s.lookup(id)
	if err != nil {
		return err
	}
	mod, err := reservoir.NewModulator(sub.dim, hiddenSize, seed, s.modulationScale)
	if err != nil {
		return err
	}
	sub.modulator = mod
	s.log.Debug().Int("id", id).Int("dim", sub.dim).Int("hidden", hiddenSize).Msg("Phase modulator enabled")
	return nil
}

// DisableModulator detaches id's phase modulator, if any.
func (s *Scheduler) DisableModulator(id int) error {
	sub, err := s.lookup(id)
	if err != nil {
		return err
	}
	sub.modulator = nil
	return nil
}

// ModulatorEnabled reports whether id has a phase modulator.
func (s *Scheduler) ModulatorEnabled(id int) bool {
	sub, err := s.lookup(id)
	return err == nil && sub.modulator != nil
}

// Modulator returns id's modulator, or nil when disabled.
func (s *Scheduler) Modulator(id int) (*reservoir.Modulator, error) {
	sub, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return sub.modulator, nil
}

// Couplings returns the operator summary for id.
func (s *Scheduler) Couplings(id int) (evolution.CouplingPayload, error) {
	sub, err := s.lookup(id)
	if err != nil {
		return evolution.CouplingPayload{}, err
	}
	return sub.engine.CouplingPayload(), nil
}
