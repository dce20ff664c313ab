package lookahead

import (
	"sort"

	"github.com/dudecon/SpaceWheat/internal/modules/evolution"
)

// Pole names one basis pole of one qubit.
type Pole struct {
	Label string `yaml:"label" json:"label" msgpack:"label"`
	Qubit int    `yaml:"qubit" json:"qubit" msgpack:"qubit"`
	// Pole is 0 for the |0⟩ population and 1 for |1⟩.
	Pole int `yaml:"pole" json:"pole" msgpack:"pole"`
}

// PoleLabeler is implemented by subsystem metadata that attaches labels to
// qubit poles. Trajectories for such subsystems carry a PopulationMap.
type PoleLabeler interface {
	Poles() []Pole
}

// PopulationMap ranks labels by their population summed over all steps.
type PopulationMap struct {
	Labels    []string           `msgpack:"labels" json:"labels"`
	Weights   []float64          `msgpack:"weights" json:"weights"`
	ByLabel   map[string]float64 `msgpack:"by_label" json:"by_label"`
	Steps     int                `msgpack:"steps" json:"steps"`
	Total     float64            `msgpack:"total" json:"total"`
	NumQubits int                `msgpack:"num_qubits" json:"num_qubits"`
}

// buildPopulationMap returns nil when the metadata carries no poles or the
// trajectory is empty. Poles naming a qubit or pole out of range are ignored.
func buildPopulationMap(metadata any, numQubits int, steps []Step) *PopulationMap {
	labeler, ok := metadata.(PoleLabeler)
	if !ok || len(steps) == 0 {
		return nil
	}

	var poles []Pole
	for _, p := range labeler.Poles() {
		if p.Qubit >= 0 && p.Qubit < numQubits && (p.Pole == 0 || p.Pole == 1) {
			poles = append(poles, p)
		}
	}
	if len(poles) == 0 {
		return nil
	}

	totals := make([]float64, len(poles))
	expected := numQubits * evolution.BlochStride
	for _, step := range steps {
		if len(step.Bloch) < expected {
			continue
		}
		for i, p := range poles {
			offset := p.Qubit*evolution.BlochStride + evolution.BlochP0 + p.Pole
			totals[i] += step.Bloch[offset]
		}
	}

	order := make([]int, len(poles))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return totals[order[a]] > totals[order[b]] })

	out := &PopulationMap{
		Labels:    make([]string, len(order)),
		Weights:   make([]float64, len(order)),
		ByLabel:   make(map[string]float64, len(order)),
		Steps:     len(steps),
		NumQubits: numQubits,
	}
	for k, idx := range order {
		out.Labels[k] = poles[idx].Label
		out.Weights[k] = totals[idx]
		out.ByLabel[poles[idx].Label] = totals[idx]
		out.Total += totals[idx]
	}
	return out
}
