package reservoir

import (
	"math/cmplx"

	"github.com/dudecon/SpaceWheat/internal/modules/density"
)

// DefaultScale is the radians of phase rotation per unit of network output.
const DefaultScale = 0.01

// Modulator feeds a state's diagonal phases through a Network and rotates
// each diagonal entry by the scaled output. Only phases change, so every
// |ρii| and the purity Σ|ρij|² are untouched.
type Modulator struct {
	net   *Network
	scale float64
}

// NewModulator builds a modulator for dim-dimensional states.
func NewModulator(dim, hiddenSize int, seed uint64, scale float64) (*Modulator, error) {
	net, err := New(dim, hiddenSize, dim, seed)
	if err != nil {
		return nil, err
	}
	return &Modulator{net: net, scale: scale}, nil
}

// Network exposes the underlying reservoir for tuning and training.
func (m *Modulator) Network() *Network { return m.net }

// Scale returns the phase scale in radians.
func (m *Modulator) Scale() float64 { return m.scale }

// Apply rotates rho's diagonal in place: ρii ← ρii·exp(i·scale·yi), where y
// is the network output for the current diagonal phases.
func (m *Modulator) Apply(rho *density.Matrix) error {
	dim := rho.Dim()
	phases := make([]float64, dim)
	for i := 0; i < dim; i++ {
		phases[i] = cmplx.Phase(rho.At(i, i))
	}

	deltas, err := m.net.Forward(phases)
	if err != nil {
		return err
	}
	for i := 0; i < dim; i++ {
		rho.Set(i, i, rho.At(i, i)*cmplx.Rect(1, m.scale*deltas[i]))
	}
	return nil
}

// Clone returns an independent modulator with the same network state.
func (m *Modulator) Clone() *Modulator {
	return &Modulator{net: m.net.Clone(), scale: m.scale}
}
