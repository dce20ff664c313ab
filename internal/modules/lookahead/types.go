// Package lookahead drives many independent subsystems through multi-step
// evolution, either in one call or as a resumable computation that works in
// bounded time slices.
package lookahead

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/dudecon/SpaceWheat/internal/modules/density"
	"github.com/dudecon/SpaceWheat/internal/modules/evolution"
)

var (
	// ErrInvalidSubsystem is returned for ids that were never registered.
	ErrInvalidSubsystem = errors.New("invalid subsystem")
	// ErrInvalidDimension is returned when a registration's dimension is not
	// a power of two of at least 2.
	ErrInvalidDimension = errors.New("invalid dimension")
	// ErrDimensionMismatch is returned when a supplied state or operator
	// does not match its subsystem's dimension.
	ErrDimensionMismatch = density.ErrDimensionMismatch
	// ErrComputationInFlight is returned by Start while a sliced computation
	// is still in progress.
	ErrComputationInFlight = errors.New("lookahead computation already in progress")
	// ErrNotComplete is returned by Result before the computation finishes.
	ErrNotComplete = errors.New("lookahead computation not complete")
	// ErrNoComputation is returned by Continue when nothing was started.
	ErrNoComputation = errors.New("no lookahead computation started")
)

// DefaultCenter is the layout center used when a registration gives none.
var DefaultCenter = r2.Vec{X: 960, Y: 540}

// initialRingRadius is the radius nodes are spread on at registration.
const initialRingRadius = 100

// Registration describes one subsystem. Operators are flattened row-major
// with interleaved real and imaginary parts (2·dim² values).
type Registration struct {
	Dim         int
	Hamiltonian []float64 // nil means H = 0
	Dissipators [][]float64
	// DissipatorTriplets holds sparse operators as [row, col, re, im, ...].
	DissipatorTriplets [][]float64
	Metadata           any
	Center             *r2.Vec
}

// Step is one lookahead step for one subsystem.
type Step struct {
	State      []float64 `msgpack:"rho" json:"rho"`
	Purity     float64   `msgpack:"purity" json:"purity"`
	Bloch      []float64 `msgpack:"bloch" json:"bloch"`
	MutualInfo []float64 `msgpack:"mi" json:"mi"`
	Positions  []r2.Vec  `msgpack:"positions" json:"positions"`
	Velocities []r2.Vec  `msgpack:"velocities" json:"velocities"`
}

// Trajectory is the step-indexed lookahead for one subsystem.
type Trajectory struct {
	SubsystemID int                       `msgpack:"id" json:"id"`
	NumQubits   int                       `msgpack:"num_qubits" json:"num_qubits"`
	Steps       []Step                    `msgpack:"steps" json:"steps"`
	Metadata    any                       `msgpack:"metadata" json:"metadata,omitempty"`
	Couplings   evolution.CouplingPayload `msgpack:"couplings" json:"couplings"`
	Populations *PopulationMap            `msgpack:"populations,omitempty" json:"populations,omitempty"`
}

// LastMutualInfo returns the mutual information of the final step, or nil
// for an empty trajectory.
func (t *Trajectory) LastMutualInfo() []float64 {
	if len(t.Steps) == 0 {
		return nil
	}
	return t.Steps[len(t.Steps)-1].MutualInfo
}

// Result is the output of a lookahead over several subsystems.
type Result struct {
	ID           string       `msgpack:"id" json:"id"`
	StepCount    int          `msgpack:"steps" json:"steps"`
	Dt           float64      `msgpack:"dt" json:"dt"`
	MaxSubstep   float64      `msgpack:"max_substep" json:"max_substep"`
	Trajectories []Trajectory `msgpack:"trajectories" json:"trajectories"`
}

// State is the phase of the sliced computation.
type State int

const (
	StateIdle State = iota
	StateInProgress
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInProgress:
		return "in_progress"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}
