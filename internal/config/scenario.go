package config

import (
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r2"
	"gopkg.in/yaml.v3"

	"github.com/dudecon/SpaceWheat/internal/modules/density"
	"github.com/dudecon/SpaceWheat/internal/modules/lookahead"
)

// Scenario is a set of subsystems and lookahead parameters loaded from YAML.
// Zero-valued Steps, Dt and MaxSubstep fall back to the environment config.
type Scenario struct {
	Name       string          `yaml:"name"`
	Steps      int             `yaml:"steps,omitempty"`
	Dt         float64         `yaml:"dt,omitempty"`
	MaxSubstep float64         `yaml:"max_substep,omitempty"`
	Subsystems []SubsystemSpec `yaml:"subsystems"`
}

// Entry is one non-zero matrix element.
type Entry struct {
	Row int     `yaml:"row"`
	Col int     `yaml:"col"`
	Re  float64 `yaml:"re"`
	Im  float64 `yaml:"im,omitempty"`
}

// Amplitude is one complex amplitude of a pure state.
type Amplitude struct {
	Re float64 `yaml:"re"`
	Im float64 `yaml:"im,omitempty"`
}

// OperatorSpec is a sparse jump operator. Entries are scaled by √Rate; a
// zero rate means 1.
type OperatorSpec struct {
	Rate    float64 `yaml:"rate,omitempty"`
	Entries []Entry `yaml:"entries"`
}

// InitialState gives either diagonal populations or pure-state amplitudes.
// Both are normalized. With neither, the subsystem starts in |0…0⟩.
type InitialState struct {
	Populations []float64   `yaml:"populations,omitempty"`
	Amplitudes  []Amplitude `yaml:"amplitudes,omitempty"`
}

// ReservoirSpec enables a phase modulator on the subsystem.
type ReservoirSpec struct {
	Hidden int    `yaml:"hidden"`
	Seed   uint64 `yaml:"seed"`
}

// SubsystemSpec describes one subsystem. Off-diagonal Hamiltonian entries
// are mirrored so H is always Hermitian.
type SubsystemSpec struct {
	Name        string           `yaml:"name"`
	Dim         int              `yaml:"dim"`
	Hamiltonian []Entry          `yaml:"hamiltonian,omitempty"`
	Dissipators []OperatorSpec   `yaml:"dissipators,omitempty"`
	Initial     InitialState     `yaml:"initial,omitempty"`
	Reservoir   *ReservoirSpec   `yaml:"reservoir,omitempty"`
	Center      []float64        `yaml:"center,omitempty"`
	Frozen      []bool           `yaml:"frozen,omitempty"`
	Poles       []lookahead.Pole `yaml:"poles,omitempty"`
}

// Metadata is attached to scenario subsystems so trajectories carry a
// population map for the labelled poles.
type Metadata struct {
	Name   string           `msgpack:"name" json:"name"`
	Labels []lookahead.Pole `msgpack:"poles" json:"poles"`
}

// Poles implements lookahead.PoleLabeler.
func (m Metadata) Poles() []lookahead.Pole { return m.Labels }

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates YAML scenario data.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks every subsystem's sizes and indices.
func (s *Scenario) Validate() error {
	if s.Steps < 0 {
		return fmt.Errorf("steps must be >= 0, got %d", s.Steps)
	}
	if s.Dt < 0 || s.MaxSubstep < 0 {
		return fmt.Errorf("dt and max_substep must be >= 0")
	}
	if len(s.Subsystems) == 0 {
		return fmt.Errorf("scenario %q has no subsystems", s.Name)
	}
	for i := range s.Subsystems {
		if err := s.Subsystems[i].Validate(); err != nil {
			return fmt.Errorf("subsystem %d (%s): %w", i, s.Subsystems[i].Name, err)
		}
	}
	return nil
}

// Apply fills zero-valued lookahead parameters from cfg.
func (s *Scenario) Apply(cfg *Config) {
	if s.Steps == 0 {
		s.Steps = cfg.Steps
	}
	if s.Dt == 0 {
		s.Dt = cfg.Dt
	}
	if s.MaxSubstep == 0 {
		s.MaxSubstep = cfg.MaxSubstep
	}
}

// Validate checks the subsystem's dimension and element indices.
func (sub *SubsystemSpec) Validate() error {
	if !density.IsPowerOfTwo(sub.Dim) || sub.Dim < 2 {
		return fmt.Errorf("dim %d is not a power of two >= 2", sub.Dim)
	}
	for _, e := range sub.Hamiltonian {
		if err := sub.checkEntry(e); err != nil {
			return fmt.Errorf("hamiltonian: %w", err)
		}
		if e.Row == e.Col && e.Im != 0 {
			return fmt.Errorf("hamiltonian: diagonal (%d,%d) must be real", e.Row, e.Col)
		}
	}
	for k, op := range sub.Dissipators {
		if op.Rate < 0 {
			return fmt.Errorf("dissipator %d: negative rate %g", k, op.Rate)
		}
		for _, e := range op.Entries {
			if err := sub.checkEntry(e); err != nil {
				return fmt.Errorf("dissipator %d: %w", k, err)
			}
		}
	}

	start := sub.Initial
	switch {
	case len(start.Populations) > 0 && len(start.Amplitudes) > 0:
		return fmt.Errorf("initial state gives both populations and amplitudes")
	case len(start.Populations) > 0:
		if len(start.Populations) != sub.Dim {
			return fmt.Errorf("initial populations: got %d, want %d", len(start.Populations), sub.Dim)
		}
		total := 0.0
		for _, p := range start.Populations {
			if p < 0 {
				return fmt.Errorf("initial populations must be non-negative")
			}
			total += p
		}
		if total == 0 {
			return fmt.Errorf("initial populations sum to zero")
		}
	case len(start.Amplitudes) > 0:
		if len(start.Amplitudes) != sub.Dim {
			return fmt.Errorf("initial amplitudes: got %d, want %d", len(start.Amplitudes), sub.Dim)
		}
		if amplitudeNorm(start.Amplitudes) == 0 {
			return fmt.Errorf("initial amplitudes have zero norm")
		}
	}

	if sub.Center != nil && len(sub.Center) != 2 {
		return fmt.Errorf("center must be [x, y]")
	}
	if sub.Reservoir != nil && sub.Reservoir.Hidden <= 0 {
		return fmt.Errorf("reservoir hidden size must be positive")
	}
	return nil
}

func (sub *SubsystemSpec) checkEntry(e Entry) error {
	if e.Row < 0 || e.Row >= sub.Dim || e.Col < 0 || e.Col >= sub.Dim {
		return fmt.Errorf("entry (%d,%d) outside %dx%d", e.Row, e.Col, sub.Dim, sub.Dim)
	}
	return nil
}

// Registration converts the spec into a scheduler registration.
func (sub *SubsystemSpec) Registration() lookahead.Registration {
	reg := lookahead.Registration{
		Dim:      sub.Dim,
		Metadata: Metadata{Name: sub.Name, Labels: sub.Poles},
	}

	if len(sub.Hamiltonian) > 0 {
		h := density.New(sub.Dim)
		for _, e := range sub.Hamiltonian {
			v := complex(e.Re, e.Im)
			h.Set(e.Row, e.Col, v)
			if e.Row != e.Col {
				h.Set(e.Col, e.Row, complex(e.Re, -e.Im))
			}
		}
		reg.Hamiltonian = h.Packed()
	}

	for _, op := range sub.Dissipators {
		scale := 1.0
		if op.Rate > 0 {
			scale = math.Sqrt(op.Rate)
		}
		triplets := make([]float64, 0, 4*len(op.Entries))
		for _, e := range op.Entries {
			triplets = append(triplets, float64(e.Row), float64(e.Col), scale*e.Re, scale*e.Im)
		}
		reg.DissipatorTriplets = append(reg.DissipatorTriplets, triplets)
	}

	if len(sub.Center) == 2 {
		reg.Center = &r2.Vec{X: sub.Center[0], Y: sub.Center[1]}
	}
	return reg
}

// InitialPacked returns the normalized initial density matrix, packed.
func (sub *SubsystemSpec) InitialPacked() []float64 {
	rho := density.New(sub.Dim)
	start := sub.Initial

	switch {
	case len(start.Populations) == sub.Dim:
		total := 0.0
		for _, p := range start.Populations {
			total += p
		}
		for i, p := range start.Populations {
			rho.Set(i, i, complex(p/total, 0))
		}
	case len(start.Amplitudes) == sub.Dim:
		norm := amplitudeNorm(start.Amplitudes)
		for i, a := range start.Amplitudes {
			ai := complex(a.Re, a.Im)
			for j, b := range start.Amplitudes {
				bj := complex(b.Re, -b.Im)
				rho.Set(i, j, ai*bj/complex(norm, 0))
			}
		}
	default:
		rho.Set(0, 0, 1)
	}
	return rho.Packed()
}

func amplitudeNorm(amps []Amplitude) float64 {
	norm := 0.0
	for _, a := range amps {
		norm += a.Re*a.Re + a.Im*a.Im
	}
	return norm
}
