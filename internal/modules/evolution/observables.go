package evolution

import (
	"fmt"
	"math"

	"github.com/dudecon/SpaceWheat/internal/modules/density"
)

// BlochStride is the number of values emitted per qubit by BlochSummary:
// p0, p1, x, y, z, r, theta, phi.
const BlochStride = 8

// Offsets into a qubit's BlochSummary record.
const (
	BlochP0 = iota
	BlochP1
	BlochX
	BlochY
	BlochZ
	BlochRadius
	BlochTheta
	BlochPhi
)

const (
	// DefaultPurityThreshold is the purity above which mutual information
	// falls back to linear entropy. Hand-tuned, not a derived error bound.
	DefaultPurityThreshold = 0.9
	// DefaultScreenThreshold is the mutual information below which a pair
	// is treated as negligible until the next full scan.
	DefaultScreenThreshold = 1e-4
)

// Purity returns Tr(ρ²) clamped to [1/dim, 1].
func Purity(rho *density.Matrix) float64 {
	p := density.Purity(rho)
	lo := 1 / float64(rho.Dim())
	return math.Min(math.Max(p, lo), 1)
}

// BlochSummary reduces every qubit to its 2×2 density matrix and emits
// BlochStride values per qubit.
func BlochSummary(rho *density.Matrix, numQubits int) ([]float64, error) {
	if err := checkQubits(rho, numQubits); err != nil {
		return nil, err
	}

	out := make([]float64, numQubits*BlochStride)
	for q := 0; q < numQubits; q++ {
		reduced := density.PartialTraceSingle(rho, q, numQubits)
		p0 := real(reduced.At(0, 0))
		p1 := real(reduced.At(1, 1))
		coherence := reduced.At(0, 1)

		// ρ = (I + xX + yY + zZ)/2, so ρ01 = (x - iy)/2.
		x := 2 * real(coherence)
		y := -2 * imag(coherence)
		z := p0 - p1
		r := math.Sqrt(x*x + y*y + z*z)

		theta := 0.0
		if r > 1e-12 {
			theta = math.Acos(math.Max(-1, math.Min(1, z/r)))
		}
		phi := math.Atan2(y, x)

		rec := out[q*BlochStride : (q+1)*BlochStride]
		rec[BlochP0] = p0
		rec[BlochP1] = p1
		rec[BlochX] = x
		rec[BlochY] = y
		rec[BlochZ] = z
		rec[BlochRadius] = r
		rec[BlochTheta] = theta
		rec[BlochPhi] = phi
	}
	return out, nil
}

// PairCount returns the number of unordered qubit pairs.
func PairCount(numQubits int) int {
	if numQubits < 2 {
		return 0
	}
	return numQubits * (numQubits - 1) / 2
}

// PairIndex returns the upper-triangular index of the unordered pair (i, j),
// or -1 when i == j.
func PairIndex(i, j, numQubits int) int {
	if i == j {
		return -1
	}
	if i > j {
		i, j = j, i
	}
	return i*numQubits - i*(i+1)/2 + (j - i - 1)
}

// PairMutualInformation returns I(a:b) = S(a) + S(b) - S(ab) in bits using
// von Neumann entropies, clamped to be non-negative.
func PairMutualInformation(rho *density.Matrix, a, b, numQubits int) (float64, error) {
	sa, err := density.VonNeumannEntropy(density.PartialTraceSingle(rho, a, numQubits))
	if err != nil {
		return 0, err
	}
	sb, err := density.VonNeumannEntropy(density.PartialTraceSingle(rho, b, numQubits))
	if err != nil {
		return 0, err
	}
	sab, err := density.VonNeumannEntropy(density.PartialTracePair(rho, a, b, numQubits))
	if err != nil {
		return 0, err
	}
	return math.Max(sa+sb-sab, 0), nil
}

// linearMutualInformation substitutes linear entropy for von Neumann entropy.
func linearMutualInformation(rho *density.Matrix, a, b, numQubits int) float64 {
	sa := density.LinearEntropy(density.PartialTraceSingle(rho, a, numQubits))
	sb := density.LinearEntropy(density.PartialTraceSingle(rho, b, numQubits))
	sab := density.LinearEntropy(density.PartialTracePair(rho, a, b, numQubits))
	return math.Max(sa+sb-sab, 0)
}

// MutualInformation computes exact pairwise mutual information for every
// unordered pair, in PairIndex order.
func MutualInformation(rho *density.Matrix, numQubits int) ([]float64, error) {
	if err := checkQubits(rho, numQubits); err != nil {
		return nil, err
	}

	out := make([]float64, PairCount(numQubits))
	for i := 0; i < numQubits; i++ {
		for j := i + 1; j < numQubits; j++ {
			mi, err := PairMutualInformation(rho, i, j, numQubits)
			if err != nil {
				return nil, fmt.Errorf("pair (%d,%d): %w", i, j, err)
			}
			out[PairIndex(i, j, numQubits)] = mi
		}
	}
	return out, nil
}

// screen remembers which pairs mattered at the last full scan.
type screen struct {
	numQubits int
	active    []bool
}

func (s *screen) valid(numQubits int) bool {
	return s.active != nil && s.numQubits == numQubits
}

// MIOptions tunes the adaptive mutual-information path.
type MIOptions struct {
	PurityThreshold float64
	ScreenThreshold float64
}

// DefaultMIOptions returns the stock thresholds.
func DefaultMIOptions() MIOptions {
	return MIOptions{
		PurityThreshold: DefaultPurityThreshold,
		ScreenThreshold: DefaultScreenThreshold,
	}
}

// MutualInformationAdaptive is the cost-controlled variant of
// MutualInformation. With forceFullScan every pair is computed exactly and
// the engine re-screens which pairs are significant. Otherwise screened-out
// pairs report zero, and when purity exceeds the threshold the remaining
// pairs use linear entropy instead of an eigen-decomposition.
func (e *Engine) MutualInformationAdaptive(rho *density.Matrix, numQubits int, purity float64, forceFullScan bool, opts MIOptions) ([]float64, error) {
	if err := checkQubits(rho, numQubits); err != nil {
		return nil, err
	}

	if forceFullScan || !e.screen.valid(numQubits) {
		values, err := MutualInformation(rho, numQubits)
		if err != nil {
			return nil, err
		}
		active := make([]bool, len(values))
		for k, v := range values {
			active[k] = v > opts.ScreenThreshold
		}
		e.screen = screen{numQubits: numQubits, active: active}
		return values, nil
	}

	approximate := purity > opts.PurityThreshold
	out := make([]float64, PairCount(numQubits))
	for i := 0; i < numQubits; i++ {
		for j := i + 1; j < numQubits; j++ {
			idx := PairIndex(i, j, numQubits)
			if !e.screen.active[idx] {
				continue
			}
			if approximate {
				out[idx] = linearMutualInformation(rho, i, j, numQubits)
				continue
			}
			mi, err := PairMutualInformation(rho, i, j, numQubits)
			if err != nil {
				return nil, fmt.Errorf("pair (%d,%d): %w", i, j, err)
			}
			out[idx] = mi
		}
	}
	return out, nil
}

// ResetScreen forgets the pair screening so the next adaptive call does a
// full scan.
func (e *Engine) ResetScreen() {
	e.screen = screen{}
}

func checkQubits(rho *density.Matrix, numQubits int) error {
	if numQubits < 0 || 1<<numQubits != rho.Dim() {
		return fmt.Errorf("%w: %d qubits do not span a %dx%d state",
			density.ErrDimensionMismatch, numQubits, rho.Dim(), rho.Dim())
	}
	return nil
}
