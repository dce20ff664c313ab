// Package density provides dense and sparse complex matrix algebra for
// density matrices and the operators that act on them.
//
// Matrices are square, row-major, and exchanged with callers as flat real
// buffers of 2·dim² entries (interleaved real/imag).
package density

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

// ErrDimensionMismatch is returned when a buffer or operand does not match
// the expected matrix dimension.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Matrix is a dense dim×dim complex matrix stored row-major.
type Matrix struct {
	dim  int
	data []complex128
}

// New returns a zero dim×dim matrix.
func New(dim int) *Matrix {
	return &Matrix{dim: dim, data: make([]complex128, dim*dim)}
}

// Identity returns the dim×dim identity matrix.
func Identity(dim int) *Matrix {
	m := New(dim)
	for i := 0; i < dim; i++ {
		m.data[i*dim+i] = 1
	}
	return m
}

// Diagonal returns a real diagonal matrix with the given entries.
func Diagonal(values ...float64) *Matrix {
	m := New(len(values))
	for i, v := range values {
		m.data[i*m.dim+i] = complex(v, 0)
	}
	return m
}

// FromPacked unpacks an interleaved real/imag buffer into a dim×dim matrix.
// The buffer is copied; the caller's slice is never retained.
func FromPacked(packed []float64, dim int) (*Matrix, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension %d must be positive", ErrDimensionMismatch, dim)
	}
	if len(packed) != 2*dim*dim {
		return nil, fmt.Errorf("%w: got %d values, want %d for dim %d",
			ErrDimensionMismatch, len(packed), 2*dim*dim, dim)
	}

	m := New(dim)
	for i := range m.data {
		m.data[i] = complex(packed[2*i], packed[2*i+1])
	}
	return m, nil
}

// FromRows builds a matrix from complex rows. It panics on ragged input,
// which is only used by tests and literal operator construction.
func FromRows(rows [][]complex128) *Matrix {
	m := New(len(rows))
	for i, row := range rows {
		if len(row) != m.dim {
			panic(fmt.Sprintf("density: row %d has %d entries, want %d", i, len(row), m.dim))
		}
		copy(m.data[i*m.dim:], row)
	}
	return m
}

// Packed returns a fresh interleaved real/imag buffer for the matrix.
func (m *Matrix) Packed() []float64 {
	out := make([]float64, 2*len(m.data))
	for i, v := range m.data {
		out[2*i] = real(v)
		out[2*i+1] = imag(v)
	}
	return out
}

// Dim returns the matrix dimension.
func (m *Matrix) Dim() int { return m.dim }

// At returns the element at row i, column j.
func (m *Matrix) At(i, j int) complex128 { return m.data[i*m.dim+j] }

// Set sets the element at row i, column j.
func (m *Matrix) Set(i, j int, v complex128) { m.data[i*m.dim+j] = v }

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	c := New(m.dim)
	copy(c.data, m.data)
	return c
}

// CopyFrom overwrites m with the contents of other.
func (m *Matrix) CopyFrom(other *Matrix) {
	copy(m.data, other.data)
}

// Zero resets every element to zero in place.
func (m *Matrix) Zero() {
	for i := range m.data {
		m.data[i] = 0
	}
}

// Mul returns a·b.
func Mul(a, b *Matrix) *Matrix {
	n := a.dim
	out := New(n)
	for i := 0; i < n; i++ {
		row := out.data[i*n : (i+1)*n]
		for k := 0; k < n; k++ {
			aik := a.data[i*n+k]
			if aik == 0 {
				continue
			}
			bk := b.data[k*n : (k+1)*n]
			for j, v := range bk {
				row[j] += aik * v
			}
		}
	}
	return out
}

// Add returns a+b.
func Add(a, b *Matrix) *Matrix {
	out := a.Clone()
	for i, v := range b.data {
		out.data[i] += v
	}
	return out
}

// Sub returns a-b.
func Sub(a, b *Matrix) *Matrix {
	out := a.Clone()
	for i, v := range b.data {
		out.data[i] -= v
	}
	return out
}

// Scale returns s·a.
func Scale(s complex128, a *Matrix) *Matrix {
	out := New(a.dim)
	for i, v := range a.data {
		out.data[i] = s * v
	}
	return out
}

// AddScaled performs m += s·other in place.
func (m *Matrix) AddScaled(s complex128, other *Matrix) {
	for i, v := range other.data {
		m.data[i] += s * v
	}
}

// Dagger returns the conjugate transpose.
func (m *Matrix) Dagger() *Matrix {
	n := m.dim
	out := New(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.data[j*n+i] = cmplx.Conj(m.data[i*n+j])
		}
	}
	return out
}

// Commutator returns [a, b] = ab - ba.
func Commutator(a, b *Matrix) *Matrix {
	return Sub(Mul(a, b), Mul(b, a))
}

// Anticommutator returns {a, b} = ab + ba.
func Anticommutator(a, b *Matrix) *Matrix {
	return Add(Mul(a, b), Mul(b, a))
}

// Trace returns the sum of the diagonal.
func (m *Matrix) Trace() complex128 {
	var t complex128
	for i := 0; i < m.dim; i++ {
		t += m.data[i*m.dim+i]
	}
	return t
}

// FrobeniusNorm returns sqrt(Σ|mij|²).
func (m *Matrix) FrobeniusNorm() float64 {
	var s float64
	for _, v := range m.data {
		s += real(v)*real(v) + imag(v)*imag(v)
	}
	return math.Sqrt(s)
}

// IsHermitian reports whether m equals its conjugate transpose to within tol
// elementwise.
func (m *Matrix) IsHermitian(tol float64) bool {
	n := m.dim
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if cmplx.Abs(m.data[i*n+j]-cmplx.Conj(m.data[j*n+i])) > tol {
				return false
			}
		}
	}
	return true
}

// Hermitize replaces m with (m + m†)/2 in place.
func (m *Matrix) Hermitize() {
	n := m.dim
	for i := 0; i < n; i++ {
		d := m.data[i*n+i]
		m.data[i*n+i] = complex(real(d), 0)
		for j := i + 1; j < n; j++ {
			avg := (m.data[i*n+j] + cmplx.Conj(m.data[j*n+i])) / 2
			m.data[i*n+j] = avg
			m.data[j*n+i] = cmplx.Conj(avg)
		}
	}
}

// NormalizeTrace rescales m so that its trace is 1. A matrix with a
// vanishing trace is left unchanged.
func (m *Matrix) NormalizeTrace() {
	tr := real(m.Trace())
	if math.Abs(tr) < 1e-300 {
		return
	}
	inv := complex(1/tr, 0)
	for i := range m.data {
		m.data[i] *= inv
	}
}

// Purity returns Tr(ρρ†), which equals Tr(ρ²) for Hermitian ρ and is
// unaffected by phase rotations of individual entries.
func Purity(rho *Matrix) float64 {
	var s float64
	for _, v := range rho.data {
		s += real(v)*real(v) + imag(v)*imag(v)
	}
	return s
}

// Populations returns the real parts of the diagonal.
func (m *Matrix) Populations() []float64 {
	out := make([]float64, m.dim)
	for i := range out {
		out[i] = real(m.data[i*m.dim+i])
	}
	return out
}
