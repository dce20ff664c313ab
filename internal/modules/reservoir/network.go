// Package reservoir implements the small leaky-integrator recurrent network
// used to add phase micro-variation to evolved states.
package reservoir

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidSize is returned for non-positive layer sizes or mismatched
// input/target vectors.
var ErrInvalidSize = errors.New("invalid reservoir size")

const (
	defaultLeak         = 0.3
	defaultLearningRate = 0.001
	defaultL2           = 0.0001
	recurrentScale      = 0.1
	hiddenResetRange    = 0.1
)

// Network is a leaky-integrator reservoir:
//
//	h ← (1-leak)·h + leak·tanh(Win·x + Wrec·h + b)
//	y = Wout·h + bout
//
// Weights are stored as (rows = destination layer) so every product is a
// plain MulVec.
type Network struct {
	inputSize  int
	hiddenSize int
	outputSize int

	win  *mat.Dense // hidden × input
	wrec *mat.Dense // hidden × hidden
	wout *mat.Dense // output × hidden
	bh   *mat.VecDense
	bout *mat.VecDense

	hidden *mat.VecDense

	leak         float64
	learningRate float64
	l2           float64

	src *rand.PCG
	rng *rand.Rand
}

// New builds a network with Xavier-style uniform weights drawn from a PCG
// source seeded with seed. The same seed always yields the same network.
func New(inputSize, hiddenSize, outputSize int, seed uint64) (*Network, error) {
	if inputSize <= 0 || hiddenSize <= 0 || outputSize <= 0 {
		return nil, fmt.Errorf("%w: layers %d/%d/%d must be positive",
			ErrInvalidSize, inputSize, hiddenSize, outputSize)
	}

	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	n := &Network{
		inputSize:    inputSize,
		hiddenSize:   hiddenSize,
		outputSize:   outputSize,
		win:          mat.NewDense(hiddenSize, inputSize, nil),
		wrec:         mat.NewDense(hiddenSize, hiddenSize, nil),
		wout:         mat.NewDense(outputSize, hiddenSize, nil),
		bh:           mat.NewVecDense(hiddenSize, nil),
		bout:         mat.NewVecDense(outputSize, nil),
		hidden:       mat.NewVecDense(hiddenSize, nil),
		leak:         defaultLeak,
		learningRate: defaultLearningRate,
		l2:           defaultL2,
		src:          src,
		rng:          rand.New(src),
	}

	n.fillUniform(n.win, math.Sqrt(1/float64(inputSize)))
	n.fillUniform(n.wrec, math.Sqrt(1/float64(hiddenSize))*recurrentScale)
	n.fillUniform(n.wout, math.Sqrt(1/float64(hiddenSize)))
	n.Reset()
	return n, nil
}

func (n *Network) fillUniform(m *mat.Dense, scale float64) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, scale*(2*n.rng.Float64()-1))
		}
	}
}

// Reset re-seeds the hidden state with small uniform noise.
func (n *Network) Reset() {
	for i := 0; i < n.hiddenSize; i++ {
		n.hidden.SetVec(i, hiddenResetRange*(2*n.rng.Float64()-1))
	}
}

// InputSize returns the expected input length.
func (n *Network) InputSize() int { return n.inputSize }

// OutputSize returns the output length.
func (n *Network) OutputSize() int { return n.outputSize }

// HiddenState returns a copy of the current hidden activations.
func (n *Network) HiddenState() []float64 {
	out := make([]float64, n.hiddenSize)
	copy(out, n.hidden.RawVector().Data)
	return out
}

// Leak returns the current leak rate.
func (n *Network) Leak() float64 { return n.leak }

// SetLeak sets the leak rate, clamped to [0, 1].
func (n *Network) SetLeak(leak float64) {
	n.leak = math.Max(0, math.Min(1, leak))
}

// LearningRate returns the current learning rate.
func (n *Network) LearningRate() float64 { return n.learningRate }

// SetLearningRate sets the learning rate, clamped to [1e-4, 0.1].
func (n *Network) SetLearningRate(lr float64) {
	n.learningRate = math.Max(1e-4, math.Min(0.1, lr))
}

// Forward advances the hidden state by one input and returns the output.
func (n *Network) Forward(input []float64) ([]float64, error) {
	if len(input) != n.inputSize {
		return nil, fmt.Errorf("%w: input has %d values, network expects %d",
			ErrInvalidSize, len(input), n.inputSize)
	}

	x := mat.NewVecDense(n.inputSize, append([]float64(nil), input...))
	var drive mat.VecDense
	drive.MulVec(n.win, x)
	drive.AddVec(&drive, n.bh)
	n.integrate(&drive)

	return n.output().RawVector().Data, nil
}

// integrate applies the leaky update given the external drive Win·x + b.
func (n *Network) integrate(drive *mat.VecDense) {
	var act mat.VecDense
	act.MulVec(n.wrec, n.hidden)
	act.AddVec(&act, drive)

	h := n.hidden.RawVector().Data
	a := act.RawVector().Data
	for i := range h {
		h[i] = (1-n.leak)*h[i] + n.leak*math.Tanh(a[i])
	}
}

func (n *Network) output() *mat.VecDense {
	y := mat.NewVecDense(n.outputSize, nil)
	y.MulVec(n.wout, n.hidden)
	y.AddVec(y, n.bout)
	return y
}

// TrainBatch fits the readout to a target trajectory. The hidden state is
// reset, then run freely (no input) across the trajectory while the squared
// output error is accumulated; one gradient step with L2 decay is applied
// to the readout. Returns the summed squared error.
func (n *Network) TrainBatch(targets [][]float64) (float64, error) {
	if len(targets) == 0 {
		return 0, nil
	}
	for k, target := range targets {
		if len(target) != n.outputSize {
			return 0, fmt.Errorf("%w: target %d has %d values, network outputs %d",
				ErrInvalidSize, k, len(target), n.outputSize)
		}
	}

	gradOut := mat.NewDense(n.outputSize, n.hiddenSize, nil)
	gradBias := make([]float64, n.outputSize)
	zero := mat.NewVecDense(n.hiddenSize, nil)
	loss := 0.0

	n.Reset()
	for _, target := range targets {
		y := n.output().RawVector().Data
		residual := make([]float64, n.outputSize)
		floats.SubTo(residual, y, target)
		loss += floats.Dot(residual, residual)

		gradOut.RankOne(gradOut, 1, mat.NewVecDense(n.outputSize, residual), n.hidden)
		floats.Add(gradBias, residual)

		n.integrate(zero)
	}

	// W ← W - lr·(grad + l2·W)
	decay := 1 - n.learningRate*n.l2
	n.win.Scale(decay, n.win)
	n.wout.Scale(decay, n.wout)
	n.wout.Sub(n.wout, scaled(n.learningRate, gradOut))
	floats.AddScaled(n.bout.RawVector().Data, -n.learningRate, gradBias)
	return loss, nil
}

func scaled(s float64, m *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Scale(s, m)
	return &out
}

// Clone returns an independent copy, including the random source position,
// so the copy produces exactly what the original would have.
func (n *Network) Clone() *Network {
	src := *n.src
	return &Network{
		inputSize:    n.inputSize,
		hiddenSize:   n.hiddenSize,
		outputSize:   n.outputSize,
		win:          mat.DenseCopyOf(n.win),
		wrec:         mat.DenseCopyOf(n.wrec),
		wout:         mat.DenseCopyOf(n.wout),
		bh:           mat.VecDenseCopyOf(n.bh),
		bout:         mat.VecDenseCopyOf(n.bout),
		hidden:       mat.VecDenseCopyOf(n.hidden),
		leak:         n.leak,
		learningRate: n.learningRate,
		l2:           n.l2,
		src:          &src,
		rng:          rand.New(&src),
	}
}
