package evolution

import "github.com/dudecon/SpaceWheat/internal/modules/density"

// DissipatorSummary describes one registered jump operator.
type DissipatorSummary struct {
	NonZeros int     `json:"nnz" msgpack:"nnz"`
	Strength float64 `json:"strength" msgpack:"strength"` // Frobenius norm of L
	Flux     float64 `json:"flux" msgpack:"flux"`         // Tr(L†L)/dim
}

// CouplingPayload summarises the operator structure of an engine so hosts
// can display coupling strengths without re-deriving them.
type CouplingPayload struct {
	Dimension       int                 `json:"dim" msgpack:"dim"`
	HamiltonianNorm float64             `json:"hamiltonian_norm" msgpack:"hamiltonian_norm"`
	Dissipators     []DissipatorSummary `json:"dissipators" msgpack:"dissipators"`
	SinkFlux        float64             `json:"sink_flux" msgpack:"sink_flux"`
}

// CouplingPayload returns the operator summary. It is only meaningful once
// the engine has been finalized.
func (e *Engine) CouplingPayload() CouplingPayload {
	payload := CouplingPayload{Dimension: e.dim}
	if e.hamiltonian != nil {
		payload.HamiltonianNorm = e.hamiltonian.FrobeniusNorm()
	}

	for _, d := range e.dissipators {
		summary := DissipatorSummary{
			NonZeros: d.op.NNZ(),
			Strength: d.op.Dense().FrobeniusNorm(),
		}
		if d.dagOp != nil && e.dim > 0 {
			summary.Flux = real(d.dagOp.Dense().Trace()) / float64(e.dim)
		}
		payload.SinkFlux += summary.Flux
		payload.Dissipators = append(payload.Dissipators, summary)
	}
	return payload
}

// Operators returns copies of the Hamiltonian and dense jump operators.
func (e *Engine) Operators() (*density.Matrix, []*density.Matrix) {
	var h *density.Matrix
	if e.hamiltonian != nil {
		h = e.hamiltonian.Clone()
	}
	ops := make([]*density.Matrix, len(e.dissipators))
	for k, d := range e.dissipators {
		ops[k] = d.op.Dense()
	}
	return h, ops
}
