package reservoir

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudecon/SpaceWheat/internal/modules/density"
)

func TestNew_RejectsNonPositiveSizes(t *testing.T) {
	_, err := New(0, 4, 2, 1)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = New(2, -1, 2, 1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestNew_DeterministicGivenSeed(t *testing.T) {
	a, err := New(4, 8, 4, 42)
	require.NoError(t, err)
	b, err := New(4, 8, 4, 42)
	require.NoError(t, err)
	c, err := New(4, 8, 4, 43)
	require.NoError(t, err)

	assert.Equal(t, a.HiddenState(), b.HiddenState())
	assert.NotEqual(t, a.HiddenState(), c.HiddenState())

	input := []float64{0.1, -0.2, 0.3, 0}
	ya, err := a.Forward(input)
	require.NoError(t, err)
	yb, err := b.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, ya, yb)
}

func TestNew_InitialHiddenStateInRange(t *testing.T) {
	n, err := New(2, 32, 2, 7)
	require.NoError(t, err)
	for _, h := range n.HiddenState() {
		assert.LessOrEqual(t, math.Abs(h), hiddenResetRange)
	}
}

func TestForward(t *testing.T) {
	n, err := New(3, 6, 2, 5)
	require.NoError(t, err)

	_, err = n.Forward([]float64{1, 2})
	assert.ErrorIs(t, err, ErrInvalidSize)

	before := n.HiddenState()
	y, err := n.Forward([]float64{0.5, -0.5, 1})
	require.NoError(t, err)
	assert.Len(t, y, 2)
	assert.NotEqual(t, before, n.HiddenState())

	// tanh is bounded, so with leak in [0, 1] the hidden state stays in [-1, 1].
	for i := 0; i < 50; i++ {
		_, err = n.Forward([]float64{100, -100, 100})
		require.NoError(t, err)
	}
	for _, h := range n.HiddenState() {
		assert.LessOrEqual(t, math.Abs(h), 1.0)
	}
}

func TestForward_ZeroLeakFreezesHiddenState(t *testing.T) {
	n, err := New(2, 4, 2, 9)
	require.NoError(t, err)
	n.SetLeak(0)

	before := n.HiddenState()
	_, err = n.Forward([]float64{3, -3})
	require.NoError(t, err)
	assert.Equal(t, before, n.HiddenState())
}

func TestSetters_Clamp(t *testing.T) {
	n, err := New(1, 1, 1, 1)
	require.NoError(t, err)

	n.SetLeak(2)
	assert.Equal(t, 1.0, n.Leak())
	n.SetLeak(-1)
	assert.Equal(t, 0.0, n.Leak())

	n.SetLearningRate(5)
	assert.Equal(t, 0.1, n.LearningRate())
	n.SetLearningRate(0)
	assert.Equal(t, 1e-4, n.LearningRate())
}

func TestTrainBatch_ReducesLoss(t *testing.T) {
	n, err := New(2, 8, 2, 11)
	require.NoError(t, err)
	n.SetLearningRate(0.05)

	targets := make([][]float64, 10)
	for i := range targets {
		targets[i] = []float64{0.5, -0.5}
	}

	first, err := n.TrainBatch(targets)
	require.NoError(t, err)
	var last float64
	for i := 0; i < 200; i++ {
		last, err = n.TrainBatch(targets)
		require.NoError(t, err)
	}
	assert.Less(t, last, first)

	loss, err := n.TrainBatch(nil)
	require.NoError(t, err)
	assert.Zero(t, loss)

	_, err = n.TrainBatch([][]float64{{1}})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestClone_IsIndependentAndEquivalent(t *testing.T) {
	n, err := New(2, 5, 2, 3)
	require.NoError(t, err)
	c := n.Clone()

	input := []float64{0.2, 0.4}
	yn, err := n.Forward(input)
	require.NoError(t, err)
	yc, err := c.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, yn, yc)

	// The random source is copied too: resets match.
	n.Reset()
	c.Reset()
	assert.Equal(t, n.HiddenState(), c.HiddenState())

	c.SetLeak(0.9)
	assert.Equal(t, defaultLeak, n.Leak())
}

func TestModulator_PreservesMagnitudes(t *testing.T) {
	m, err := NewModulator(4, 8, 21, DefaultScale)
	require.NoError(t, err)

	rho := density.Diagonal(0.4, 0.3, 0.2, 0.1)
	rho.Set(0, 3, 0.05+0.02i)
	rho.Set(3, 0, 0.05-0.02i)
	purity := density.Purity(rho)
	before := rho.Clone()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Apply(rho))
	}

	assert.InDelta(t, purity, density.Purity(rho), 1e-12)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, cmplx.Abs(before.At(i, i)), cmplx.Abs(rho.At(i, i)), 1e-12)
		// Each call rotates by at most scale·|y|, which is small.
		assert.Less(t, math.Abs(cmplx.Phase(rho.At(i, i))), 0.5)
	}
	assert.Equal(t, before.At(0, 3), rho.At(0, 3))
}

func TestModulator_RejectsWrongDimension(t *testing.T) {
	m, err := NewModulator(2, 4, 1, DefaultScale)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Apply(density.Diagonal(1, 0, 0, 0)), ErrInvalidSize)
}

func TestModulator_CloneMatches(t *testing.T) {
	m, err := NewModulator(2, 4, 8, DefaultScale)
	require.NoError(t, err)
	c := m.Clone()

	a := density.Diagonal(0.7, 0.3)
	b := a.Clone()
	require.NoError(t, m.Apply(a))
	require.NoError(t, c.Apply(b))
	assert.Equal(t, a.Packed(), b.Packed())
	assert.Equal(t, DefaultScale, c.Scale())
}
