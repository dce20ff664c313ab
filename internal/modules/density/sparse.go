package density

import (
	"fmt"
	"math/cmplx"
)

// tripletEpsilon drops explicit zeros when building sparse operators.
const tripletEpsilon = 1e-15

type sparseEntry struct {
	col int
	v   complex128
}

// Sparse is a row-compressed complex operator. Dissipators are usually a
// handful of non-zeros, so products against a dense state cost O(nnz·dim)
// rather than O(dim³).
type Sparse struct {
	dim  int
	rows [][]sparseEntry
	nnz  int
}

// NewSparse returns an empty dim×dim sparse operator.
func NewSparse(dim int) *Sparse {
	return &Sparse{dim: dim, rows: make([][]sparseEntry, dim)}
}

// SparseFromTriplets builds an operator from [row, col, re, im, ...].
// Duplicate coordinates are summed.
func SparseFromTriplets(triplets []float64, dim int) (*Sparse, error) {
	if len(triplets)%4 != 0 {
		return nil, fmt.Errorf("%w: triplet buffer length %d is not a multiple of 4",
			ErrDimensionMismatch, len(triplets))
	}

	s := NewSparse(dim)
	for k := 0; k < len(triplets); k += 4 {
		row, col := int(triplets[k]), int(triplets[k+1])
		if row < 0 || row >= dim || col < 0 || col >= dim {
			return nil, fmt.Errorf("%w: triplet (%d,%d) outside %dx%d operator",
				ErrDimensionMismatch, row, col, dim, dim)
		}
		s.add(row, col, complex(triplets[k+2], triplets[k+3]))
	}
	s.prune()
	return s, nil
}

// SparseFromDense keeps entries whose magnitude exceeds threshold.
func SparseFromDense(m *Matrix, threshold float64) *Sparse {
	s := NewSparse(m.dim)
	for i := 0; i < m.dim; i++ {
		for j := 0; j < m.dim; j++ {
			v := m.data[i*m.dim+j]
			if cmplx.Abs(v) > threshold {
				s.rows[i] = append(s.rows[i], sparseEntry{col: j, v: v})
				s.nnz++
			}
		}
	}
	return s
}

func (s *Sparse) add(row, col int, v complex128) {
	for k := range s.rows[row] {
		if s.rows[row][k].col == col {
			s.rows[row][k].v += v
			return
		}
	}
	s.rows[row] = append(s.rows[row], sparseEntry{col: col, v: v})
}

func (s *Sparse) prune() {
	s.nnz = 0
	for i, row := range s.rows {
		kept := row[:0]
		for _, e := range row {
			if cmplx.Abs(e.v) > tripletEpsilon {
				kept = append(kept, e)
			}
		}
		s.rows[i] = kept
		s.nnz += len(kept)
	}
}

// Dim returns the operator dimension.
func (s *Sparse) Dim() int { return s.dim }

// NNZ returns the number of stored non-zeros.
func (s *Sparse) NNZ() int { return s.nnz }

// Dense expands the operator.
func (s *Sparse) Dense() *Matrix {
	m := New(s.dim)
	for i, row := range s.rows {
		for _, e := range row {
			m.data[i*s.dim+e.col] = e.v
		}
	}
	return m
}

// Dagger returns the conjugate transpose.
func (s *Sparse) Dagger() *Sparse {
	out := NewSparse(s.dim)
	for i, row := range s.rows {
		for _, e := range row {
			out.rows[e.col] = append(out.rows[e.col], sparseEntry{col: i, v: cmplx.Conj(e.v)})
		}
	}
	out.nnz = s.nnz
	return out
}

// Product returns s·t as a sparse operator.
func (s *Sparse) Product(t *Sparse) *Sparse {
	out := NewSparse(s.dim)
	for i, row := range s.rows {
		for _, e := range row {
			for _, f := range t.rows[e.col] {
				out.add(i, f.col, e.v*f.v)
			}
		}
	}
	out.prune()
	return out
}

// MulDense returns s·a.
func (s *Sparse) MulDense(a *Matrix) *Matrix {
	out := New(s.dim)
	s.MulDenseInto(out, a)
	return out
}

// MulDenseInto writes s·a into dst, overwriting it.
func (s *Sparse) MulDenseInto(dst, a *Matrix) {
	n := s.dim
	dst.Zero()
	for i, row := range s.rows {
		drow := dst.data[i*n : (i+1)*n]
		for _, e := range row {
			arow := a.data[e.col*n : (e.col+1)*n]
			for j, v := range arow {
				drow[j] += e.v * v
			}
		}
	}
}

// DenseMul returns a·s.
func (s *Sparse) DenseMul(a *Matrix) *Matrix {
	n := s.dim
	out := New(n)
	for i := 0; i < n; i++ {
		arow := a.data[i*n : (i+1)*n]
		orow := out.data[i*n : (i+1)*n]
		for k, aik := range arow {
			if aik == 0 {
				continue
			}
			for _, e := range s.rows[k] {
				orow[e.col] += aik * e.v
			}
		}
	}
	return out
}
