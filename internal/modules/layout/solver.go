// Package layout turns per-qubit observables into 2D node positions with a
// damped spring model.
package layout

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/dudecon/SpaceWheat/internal/modules/evolution"
)

const (
	minSeparation = 1e-6
	// minCorrelation is the mutual information below which a pair exerts
	// no spring force.
	minCorrelation = 1e-6
)

// Params holds the spring constants and geometry of the force model.
type Params struct {
	RadialSpring       float64 `yaml:"radial_spring" json:"radial_spring"`
	AngularSpring      float64 `yaml:"angular_spring" json:"angular_spring"`
	CorrelationSpring  float64 `yaml:"correlation_spring" json:"correlation_spring"`
	Repulsion          float64 `yaml:"repulsion" json:"repulsion"`
	Damping            float64 `yaml:"damping" json:"damping"`
	BaseDistance       float64 `yaml:"base_distance" json:"base_distance"`
	MinDistance        float64 `yaml:"min_distance" json:"min_distance"`
	CorrelationScaling float64 `yaml:"correlation_scaling" json:"correlation_scaling"`
	MaxRadius          float64 `yaml:"max_radius" json:"max_radius"`
}

// DefaultParams returns the stock force constants.
func DefaultParams() Params {
	return Params{
		RadialSpring:       0.08,
		AngularSpring:      0.04,
		CorrelationSpring:  0.18,
		Repulsion:          1500,
		Damping:            0.89,
		BaseDistance:       120,
		MinDistance:        15,
		CorrelationScaling: 3,
		MaxRadius:          250,
	}
}

// TargetDistance returns the rest length of the correlation spring for a
// pair with mutual information mi.
func (p Params) TargetDistance(mi float64) float64 {
	return math.Max(p.BaseDistance/(1+p.CorrelationScaling*mi), p.MinDistance)
}

// Solver integrates the force model. It holds no per-node state, so one
// Solver can serve any number of subsystems.
type Solver struct {
	params Params
}

// NewSolver returns a solver using params.
func NewSolver(params Params) *Solver {
	return &Solver{params: params}
}

// Params returns the solver's constants.
func (s *Solver) Params() Params { return s.params }

// SetParams replaces the solver's constants.
func (s *Solver) SetParams(p Params) { s.params = p }

// Update advances every unfrozen node by one explicit Euler step:
//
//	v ← damping·(v + F·dt)
//	p ← p + v·dt
//
// Forces are evaluated against the incoming positions, so node order does
// not matter. bloch is the BlochSummary packet (stride 8) and mi the
// upper-triangular pair array; either may be short or empty, in which case
// the forces that need them are skipped. The input slices are not modified.
func (s *Solver) Update(positions, velocities []r2.Vec, bloch, mi []float64, center r2.Vec, dt float64, frozen []bool) ([]r2.Vec, []r2.Vec) {
	n := len(positions)
	newPos := make([]r2.Vec, n)
	newVel := make([]r2.Vec, n)
	copy(newPos, positions)
	copy(newVel, velocities)

	for i := 0; i < n; i++ {
		if isFrozen(frozen, i) {
			continue
		}

		var force r2.Vec
		if len(bloch) >= (i+1)*evolution.BlochStride {
			rec := bloch[i*evolution.BlochStride : (i+1)*evolution.BlochStride]
			force = r2.Add(force, s.radialForce(positions[i], rec, center))
			force = r2.Add(force, s.angularForce(positions[i], rec, center))
		}
		if len(mi) > 0 {
			force = r2.Add(force, s.correlationForce(i, positions, mi, frozen))
		}
		force = r2.Add(force, s.repulsionForce(i, positions, frozen))

		v := r2.Scale(s.params.Damping, r2.Add(newVel[i], r2.Scale(dt, force)))
		newVel[i] = v
		newPos[i] = r2.Add(positions[i], r2.Scale(dt, v))
	}
	return newPos, newVel
}

// radialForce pulls a node toward radius MaxRadius·(1 - r), where r is the
// qubit's Bloch radius: pure qubits sit at the center, mixed ones at the rim.
func (s *Solver) radialForce(pos r2.Vec, rec []float64, center r2.Vec) r2.Vec {
	coherence := math.Min(math.Max(rec[evolution.BlochRadius], 0), 1)
	target := s.params.MaxRadius * (1 - coherence)

	delta := r2.Sub(pos, center)
	dist := r2.Norm(delta)
	if dist < minSeparation {
		if target > 1 {
			return r2.Vec{X: s.params.RadialSpring * target}
		}
		return r2.Vec{}
	}
	return r2.Scale(s.params.RadialSpring*(target-dist)/dist, delta)
}

// angularForce rotates a node around center toward the qubit's polar angle.
func (s *Solver) angularForce(pos r2.Vec, rec []float64, center r2.Vec) r2.Vec {
	delta := r2.Sub(pos, center)
	dist := r2.Norm(delta)
	if dist < minSeparation {
		return r2.Vec{}
	}

	current := math.Atan2(delta.Y, delta.X)
	diff := wrapAngle(rec[evolution.BlochTheta] - current)
	tangent := r2.Vec{X: -delta.Y / dist, Y: delta.X / dist}
	return r2.Scale(s.params.AngularSpring*diff*dist, tangent)
}

// correlationForce springs node i toward every unfrozen node it shares
// mutual information with.
func (s *Solver) correlationForce(i int, positions []r2.Vec, mi []float64, frozen []bool) r2.Vec {
	var total r2.Vec
	n := len(positions)
	for j := 0; j < n; j++ {
		if j == i || isFrozen(frozen, j) {
			continue
		}
		idx := evolution.PairIndex(i, j, n)
		if idx < 0 || idx >= len(mi) || mi[idx] < minCorrelation {
			continue
		}

		delta := r2.Sub(positions[j], positions[i])
		dist := r2.Norm(delta)
		if dist < minSeparation {
			continue
		}
		stretch := dist - s.params.TargetDistance(mi[idx])
		total = r2.Add(total, r2.Scale(s.params.CorrelationSpring*stretch/dist, delta))
	}
	return total
}

// repulsionForce is an inverse-square push away from every other unfrozen
// node. Coincident nodes get a fixed impulse whose direction depends only
// on the node index.
func (s *Solver) repulsionForce(i int, positions []r2.Vec, frozen []bool) r2.Vec {
	var total r2.Vec
	for j := range positions {
		if j == i || isFrozen(frozen, j) {
			continue
		}

		delta := r2.Sub(positions[i], positions[j])
		dist := r2.Norm(delta)
		if dist < minSeparation {
			total = r2.Add(total, r2.Scale(s.params.Repulsion, tieBreak(i)))
			continue
		}
		total = r2.Add(total, r2.Scale(s.params.Repulsion/(dist*dist*dist), delta))
	}
	return total
}

func tieBreak(i int) r2.Vec {
	dir := r2.Vec{X: 1, Y: 1}
	if i%2 != 0 {
		dir.X = -1
	}
	if (i/2)%2 != 0 {
		dir.Y = -1
	}
	return r2.Unit(dir)
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func isFrozen(frozen []bool, i int) bool {
	return i < len(frozen) && frozen[i]
}

// RingPositions spreads n nodes evenly on a circle around center, starting
// on the positive x axis.
func RingPositions(n int, radius float64, center r2.Vec) []r2.Vec {
	out := make([]r2.Vec, n)
	for i := range out {
		angle := 2 * math.Pi * float64(i) / float64(n)
		out[i] = r2.Add(center, r2.Vec{X: radius * math.Cos(angle), Y: radius * math.Sin(angle)})
	}
	return out
}
