package density

import (
	"fmt"
	"math"
	"math/bits"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// eigenFloor is the smallest eigenvalue that contributes to entropy.
const eigenFloor = 1e-15

// IsPowerOfTwo reports whether dim is a positive power of two.
func IsPowerOfTwo(dim int) bool {
	return dim > 0 && dim&(dim-1) == 0
}

// QubitCount returns log2(dim) for a power-of-two dimension.
func QubitCount(dim int) (int, error) {
	if !IsPowerOfTwo(dim) {
		return 0, fmt.Errorf("%w: dimension %d is not a power of two", ErrDimensionMismatch, dim)
	}
	return bits.TrailingZeros(uint(dim)), nil
}

// PartialTraceSingle traces out every qubit except qubit, returning the 2×2
// reduced density matrix. Qubit q corresponds to bit q of the basis index.
func PartialTraceSingle(rho *Matrix, qubit, numQubits int) *Matrix {
	reduced := New(2)
	n := rho.dim
	mask := 1 << qubit
	for r := 0; r < n; r++ {
		a := (r >> qubit) & 1
		base := r &^ mask
		for b := 0; b < 2; b++ {
			c := base | b<<qubit
			reduced.data[a*2+b] += rho.data[r*n+c]
		}
	}
	return reduced
}

// PartialTracePair traces out every qubit except qa and qb, returning the
// 4×4 reduced density matrix in the basis |qa qb⟩ (qa is the high bit).
func PartialTracePair(rho *Matrix, qa, qb, numQubits int) *Matrix {
	reduced := New(4)
	n := rho.dim
	mask := 1<<qa | 1<<qb
	for r := 0; r < n; r++ {
		row := ((r>>qa)&1)<<1 | (r>>qb)&1
		base := r &^ mask
		for col := 0; col < 4; col++ {
			c := base | ((col>>1)&1)<<qa | (col&1)<<qb
			reduced.data[row*4+col] += rho.data[r*n+c]
		}
	}
	return reduced
}

// Eigenvalues returns the eigenvalues of a Hermitian matrix in ascending
// order. The matrix is embedded as the real symmetric 2n×2n block matrix
// [[Re, -Im], [Im, Re]], whose spectrum is that of m with every eigenvalue
// doubled.
func Eigenvalues(m *Matrix) ([]float64, error) {
	n := m.dim
	size := 2 * n
	sym := mat.NewSymDense(size, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			// Average with the mirrored element so slightly non-Hermitian
			// input still yields a symmetric embedding.
			v := (m.data[i*n+j] + complexConj(m.data[j*n+i])) / 2
			re, im := real(v), imag(v)
			sym.SetSym(i, j, re)
			sym.SetSym(n+i, n+j, re)
			sym.SetSym(i, n+j, -im)
			sym.SetSym(j, n+i, im)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, false); !ok {
		return nil, fmt.Errorf("eigen decomposition of %dx%d matrix did not converge", n, n)
	}
	doubled := eig.Values(nil)
	sort.Float64s(doubled)

	values := make([]float64, n)
	for k := 0; k < n; k++ {
		values[k] = (doubled[2*k] + doubled[2*k+1]) / 2
	}
	return values, nil
}

// VonNeumannEntropy returns S(ρ) = -Σ λ log2 λ in bits, clamped to be
// non-negative.
func VonNeumannEntropy(rho *Matrix) (float64, error) {
	values, err := Eigenvalues(rho)
	if err != nil {
		return 0, err
	}

	entropy := 0.0
	for _, lambda := range values {
		if lambda > eigenFloor {
			entropy -= lambda * math.Log2(lambda)
		}
	}
	return math.Max(entropy, 0), nil
}

// LinearEntropy returns 1 - Tr(ρ²), a cheap eigen-free mixedness measure.
func LinearEntropy(rho *Matrix) float64 {
	return math.Max(1-Purity(rho), 0)
}

func complexConj(v complex128) complex128 {
	return complex(real(v), -imag(v))
}
