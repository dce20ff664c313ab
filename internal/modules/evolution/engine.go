// Package evolution integrates the Lindblad master equation for a single
// subsystem and extracts observables from the evolved density matrix.
package evolution

import (
	"errors"
	"fmt"
	"math"

	"github.com/dudecon/SpaceWheat/internal/modules/density"
)

var (
	// ErrNotConfigured is returned when operators are added before Configure.
	ErrNotConfigured = errors.New("engine not configured")
	// ErrNotFinalized is returned when Evolve is called before Finalize.
	ErrNotFinalized = errors.New("engine not finalized")
	// ErrInvalidSubstep is returned for non-positive substep limits.
	ErrInvalidSubstep = errors.New("max substep must be positive")
)

// dissipator holds a jump operator with its cached adjoint and L†L.
type dissipator struct {
	op     *density.Sparse
	dagger *density.Sparse
	dagOp  *density.Sparse
}

// Engine owns one subsystem's Hamiltonian and dissipators.
//
// An Engine is not safe for concurrent use, but engines share no state with
// each other so a host may drive different engines from different goroutines.
type Engine struct {
	dim         int
	hamiltonian *density.Matrix
	dissipators []dissipator
	finalized   bool

	// effective is H - (i/2)·Σ L†L, so the deterministic part of the
	// right-hand side is -i(Heff ρ - ρ Heff†).
	effective       *density.Matrix
	effectiveDagger *density.Matrix

	screen screen
}

// NewEngine returns an unconfigured engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Configure sets the Hilbert-space dimension and Hamiltonian. A nil
// Hamiltonian means H = 0. Any previously added dissipators are dropped.
func (e *Engine) Configure(dim int, hamiltonian *density.Matrix) error {
	if !density.IsPowerOfTwo(dim) || dim < 2 {
		return fmt.Errorf("%w: dimension %d must be a power of two >= 2", density.ErrDimensionMismatch, dim)
	}
	if hamiltonian != nil && hamiltonian.Dim() != dim {
		return fmt.Errorf("%w: hamiltonian is %dx%d, engine dimension is %d",
			density.ErrDimensionMismatch, hamiltonian.Dim(), hamiltonian.Dim(), dim)
	}

	e.dim = dim
	if hamiltonian != nil {
		e.hamiltonian = hamiltonian.Clone()
	} else {
		e.hamiltonian = density.New(dim)
	}
	e.dissipators = nil
	e.finalized = false
	e.screen = screen{}
	return nil
}

// AddDissipator registers a jump operator given as a dense matrix.
func (e *Engine) AddDissipator(op *density.Matrix) error {
	if e.dim == 0 {
		return ErrNotConfigured
	}
	if op.Dim() != e.dim {
		return fmt.Errorf("%w: dissipator is %dx%d, engine dimension is %d",
			density.ErrDimensionMismatch, op.Dim(), op.Dim(), e.dim)
	}
	e.dissipators = append(e.dissipators, dissipator{op: density.SparseFromDense(op, 0)})
	e.finalized = false
	return nil
}

// AddDissipatorTriplets registers a jump operator given as sparse
// [row, col, re, im, ...] triplets.
func (e *Engine) AddDissipatorTriplets(triplets []float64) error {
	if e.dim == 0 {
		return ErrNotConfigured
	}
	op, err := density.SparseFromTriplets(triplets, e.dim)
	if err != nil {
		return fmt.Errorf("dissipator %d: %w", len(e.dissipators), err)
	}
	e.dissipators = append(e.dissipators, dissipator{op: op})
	e.finalized = false
	return nil
}

// ClearOperators drops the Hamiltonian and all dissipators, keeping the
// dimension.
func (e *Engine) ClearOperators() {
	if e.dim > 0 {
		e.hamiltonian = density.New(e.dim)
	}
	e.dissipators = nil
	e.effective = nil
	e.effectiveDagger = nil
	e.finalized = false
}

// Finalize precomputes L†, L†L and the effective Hamiltonian once so every
// later step reuses them.
func (e *Engine) Finalize() error {
	if e.dim == 0 {
		return ErrNotConfigured
	}

	decay := density.New(e.dim)
	for k := range e.dissipators {
		d := &e.dissipators[k]
		d.dagger = d.op.Dagger()
		d.dagOp = d.dagger.Product(d.op)
		decay = density.Add(decay, d.dagOp.Dense())
	}

	e.effective = e.hamiltonian.Clone()
	e.effective.AddScaled(complex(0, -0.5), decay)
	e.effectiveDagger = e.effective.Dagger()
	e.finalized = true
	return nil
}

// Fork returns an engine that shares this engine's finalized operators but
// keeps its own mutual-information screening. Operators are never mutated
// after Finalize, so forks may run alongside the parent. Changing the
// parent's operators afterwards does not affect existing forks.
func (e *Engine) Fork() *Engine {
	fork := *e
	fork.dissipators = append([]dissipator(nil), e.dissipators...)
	fork.screen = screen{}
	return &fork
}

// IsFinalized reports whether Finalize has run since the last change.
func (e *Engine) IsFinalized() bool { return e.finalized }

// Dimension returns the configured Hilbert-space dimension.
func (e *Engine) Dimension() int { return e.dim }

// DissipatorCount returns the number of registered jump operators.
func (e *Engine) DissipatorCount() int { return len(e.dissipators) }

// Derivative evaluates the master-equation right-hand side
//
//	f(ρ) = -i[H, ρ] + Σ_k (L_k ρ L_k† - ½{L_k†L_k, ρ})
func (e *Engine) Derivative(rho *density.Matrix) *density.Matrix {
	// -i(Heff ρ - ρ Heff†) covers the commutator and the anticommutator.
	out := density.Sub(density.Mul(e.effective, rho), density.Mul(rho, e.effectiveDagger))
	out = density.Scale(-1i, out)

	for _, d := range e.dissipators {
		jump := d.dagger.DenseMul(d.op.MulDense(rho))
		out.AddScaled(1, jump)
	}
	return out
}

// Step advances ρ by h using one classical fourth-order Runge-Kutta step.
func (e *Engine) Step(rho *density.Matrix, h float64) *density.Matrix {
	half := complex(h/2, 0)

	k1 := e.Derivative(rho)

	tmp := rho.Clone()
	tmp.AddScaled(half, k1)
	k2 := e.Derivative(tmp)

	tmp.CopyFrom(rho)
	tmp.AddScaled(half, k2)
	k3 := e.Derivative(tmp)

	tmp.CopyFrom(rho)
	tmp.AddScaled(complex(h, 0), k3)
	k4 := e.Derivative(tmp)

	out := rho.Clone()
	sixth := complex(h/6, 0)
	out.AddScaled(sixth, k1)
	out.AddScaled(2*sixth, k2)
	out.AddScaled(2*sixth, k3)
	out.AddScaled(sixth, k4)
	return out
}

// Evolve integrates ρ forward by dt. When dt exceeds maxSubstep the interval
// is split into ceil(dt/maxSubstep) equal substeps. The result is
// re-hermitized and re-normalized to trace 1. The input is not modified.
func (e *Engine) Evolve(rho *density.Matrix, dt, maxSubstep float64) (*density.Matrix, error) {
	if !e.finalized {
		return nil, ErrNotFinalized
	}
	if rho.Dim() != e.dim {
		return nil, fmt.Errorf("%w: state is %dx%d, engine dimension is %d",
			density.ErrDimensionMismatch, rho.Dim(), rho.Dim(), e.dim)
	}
	if maxSubstep <= 0 {
		return nil, ErrInvalidSubstep
	}

	out := rho.Clone()
	if dt > 0 {
		substeps := SubstepCount(dt, maxSubstep)
		h := dt / float64(substeps)
		for i := 0; i < substeps; i++ {
			out = e.Step(out, h)
		}
	}

	out.Hermitize()
	out.NormalizeTrace()
	return out, nil
}

// EvolvePacked is Evolve over interleaved real/imag buffers. The caller's
// buffer is never written to.
func (e *Engine) EvolvePacked(packed []float64, dt, maxSubstep float64) ([]float64, error) {
	rho, err := density.FromPacked(packed, e.dim)
	if err != nil {
		return nil, err
	}
	out, err := e.Evolve(rho, dt, maxSubstep)
	if err != nil {
		return nil, err
	}
	return out.Packed(), nil
}

// SubstepCount returns how many equal substeps Evolve uses for dt.
func SubstepCount(dt, maxSubstep float64) int {
	if dt <= maxSubstep {
		return 1
	}
	// The tolerance keeps 1.0/0.01 from rounding up to 101 substeps.
	return int(math.Ceil(dt/maxSubstep - 1e-9))
}
