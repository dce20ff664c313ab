package layout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/dudecon/SpaceWheat/internal/modules/evolution"
)

// blochRecord builds a single-qubit summary with radius r and polar angle theta.
func blochRecord(r, theta float64) []float64 {
	rec := make([]float64, evolution.BlochStride)
	rec[evolution.BlochRadius] = r
	rec[evolution.BlochTheta] = theta
	return rec
}

func correlationOnly() Params {
	p := DefaultParams()
	p.RadialSpring = 0
	p.AngularSpring = 0
	p.Repulsion = 0
	return p
}

func TestTargetDistance(t *testing.T) {
	p := DefaultParams()
	assert.InDelta(t, 120.0, p.TargetDistance(0), 1e-12)
	assert.InDelta(t, 30.0, p.TargetDistance(1), 1e-12)
	// Large MI clamps to the minimum distance.
	assert.InDelta(t, 15.0, p.TargetDistance(100), 1e-12)
}

func TestUpdate_CorrelationConvergesToTarget(t *testing.T) {
	tests := []struct {
		name string
		mi   float64
	}{
		{"mi 1", 1},
		{"mi 0.5", 0.5},
		{"mi 2", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := correlationOnly()
			p.BaseDistance = 100
			p.MinDistance = 1
			s := NewSolver(p)

			pos := []r2.Vec{{X: 0, Y: 0}, {X: 100, Y: 0}}
			vel := make([]r2.Vec, 2)
			for i := 0; i < 2000; i++ {
				pos, vel = s.Update(pos, vel, nil, []float64{tt.mi}, r2.Vec{}, 0.1, nil)
			}

			want := 100 / (1 + 3*tt.mi)
			assert.InDelta(t, want, r2.Norm(r2.Sub(pos[1], pos[0])), 0.01)
		})
	}
}

func TestUpdate_NoCorrelationBelowThreshold(t *testing.T) {
	s := NewSolver(correlationOnly())
	pos := []r2.Vec{{X: 0, Y: 0}, {X: 100, Y: 0}}
	vel := make([]r2.Vec, 2)

	newPos, newVel := s.Update(pos, vel, nil, []float64{1e-9}, r2.Vec{}, 0.1, nil)
	assert.Equal(t, pos, newPos)
	assert.Equal(t, vel, newVel)
}

func TestUpdate_FrozenNodesUntouched(t *testing.T) {
	s := NewSolver(DefaultParams())
	pos := []r2.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}}
	vel := []r2.Vec{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	frozen := []bool{false, true, false}
	bloch := append(append(blochRecord(0.2, 1), blochRecord(0.5, 2)...), blochRecord(1, 0)...)

	newPos, newVel := s.Update(pos, vel, bloch, []float64{1, 1, 1}, r2.Vec{}, 0.1, frozen)
	assert.Equal(t, pos[1], newPos[1])
	assert.Equal(t, vel[1], newVel[1])
	assert.NotEqual(t, pos[0], newPos[0])
	assert.NotEqual(t, pos[2], newPos[2])
}

func TestUpdate_DoesNotMutateInputs(t *testing.T) {
	s := NewSolver(DefaultParams())
	pos := []r2.Vec{{X: 0, Y: 0}, {X: 30, Y: 0}}
	vel := []r2.Vec{{X: 1, Y: 0}, {X: 0, Y: 1}}
	posCopy := append([]r2.Vec(nil), pos...)
	velCopy := append([]r2.Vec(nil), vel...)

	s.Update(pos, vel, nil, []float64{0.5}, r2.Vec{X: 5, Y: 5}, 0.1, nil)
	assert.Equal(t, posCopy, pos)
	assert.Equal(t, velCopy, vel)
}

func TestUpdate_ShortVelocitiesArePadded(t *testing.T) {
	s := NewSolver(DefaultParams())
	pos := []r2.Vec{{X: 0, Y: 0}, {X: 30, Y: 0}}

	newPos, newVel := s.Update(pos, nil, nil, nil, r2.Vec{}, 0.1, nil)
	require.Len(t, newPos, 2)
	require.Len(t, newVel, 2)
}

func TestUpdate_CoincidentNodesSeparate(t *testing.T) {
	s := NewSolver(DefaultParams())
	pos := []r2.Vec{{X: 5, Y: 5}, {X: 5, Y: 5}}
	vel := make([]r2.Vec, 2)

	newPos, _ := s.Update(pos, vel, nil, nil, r2.Vec{}, 0.1, nil)
	for _, p := range newPos {
		assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y))
	}
	assert.Greater(t, r2.Norm(r2.Sub(newPos[0], newPos[1])), 1.0)
	// Node 0 is pushed toward +x, node 1 toward -x.
	assert.Greater(t, newPos[0].X, newPos[1].X)

	// Same inputs give the same answer.
	again, _ := s.Update(pos, vel, nil, nil, r2.Vec{}, 0.1, nil)
	assert.Equal(t, newPos, again)
}

func TestUpdate_RepulsionPushesApart(t *testing.T) {
	p := DefaultParams()
	s := NewSolver(p)
	pos := []r2.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}}

	newPos, _ := s.Update(pos, make([]r2.Vec, 2), nil, nil, r2.Vec{}, 0.1, nil)
	assert.Less(t, newPos[0].X, 0.0)
	assert.Greater(t, newPos[1].X, 10.0)
	assert.InDelta(t, 0, newPos[0].Y, 1e-12)
}

func TestUpdate_RadialSpring(t *testing.T) {
	p := DefaultParams()
	p.AngularSpring = 0
	s := NewSolver(p)

	tests := []struct {
		name   string
		radius float64
		want   float64
	}{
		{"mixed qubit sits at the rim", 0, p.MaxRadius},
		{"half coherent", 0.5, p.MaxRadius / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			center := r2.Vec{X: 50, Y: -20}
			pos := []r2.Vec{{X: 60, Y: -20}}
			vel := make([]r2.Vec, 1)
			for i := 0; i < 4000; i++ {
				pos, vel = s.Update(pos, vel, blochRecord(tt.radius, 0), nil, center, 0.1, nil)
			}
			assert.InDelta(t, tt.want, r2.Norm(r2.Sub(pos[0], center)), 0.5)
		})
	}
}

func TestUpdate_RadialPushFromCenter(t *testing.T) {
	s := NewSolver(DefaultParams())
	pos := []r2.Vec{{}}
	newPos, _ := s.Update(pos, make([]r2.Vec, 1), blochRecord(0, 0), nil, r2.Vec{}, 0.1, nil)
	assert.Greater(t, newPos[0].X, 0.0)
}

func TestUpdate_AngularSpring(t *testing.T) {
	p := DefaultParams()
	p.RadialSpring = 0
	s := NewSolver(p)

	pos := []r2.Vec{{X: 100, Y: 0}}
	vel := make([]r2.Vec, 1)
	for i := 0; i < 3000; i++ {
		pos, vel = s.Update(pos, vel, blochRecord(1, math.Pi/2), nil, r2.Vec{}, 0.1, nil)
	}
	assert.InDelta(t, math.Pi/2, math.Atan2(pos[0].Y, pos[0].X), 0.05)
}

func TestWrapAngle(t *testing.T) {
	assert.InDelta(t, -math.Pi/2, wrapAngle(3*math.Pi/2), 1e-12)
	assert.InDelta(t, math.Pi/2, wrapAngle(-3*math.Pi/2), 1e-12)
	assert.InDelta(t, 0.3, wrapAngle(0.3), 1e-12)
}

func TestRingPositions(t *testing.T) {
	center := r2.Vec{X: 10, Y: 10}
	ring := RingPositions(4, 50, center)
	require.Len(t, ring, 4)
	assert.InDelta(t, 60, ring[0].X, 1e-9)
	assert.InDelta(t, 10, ring[0].Y, 1e-9)
	assert.InDelta(t, 60, ring[1].Y, 1e-9)
	for _, p := range ring {
		assert.InDelta(t, 50, r2.Norm(r2.Sub(p, center)), 1e-9)
	}
	assert.Empty(t, RingPositions(0, 50, center))
}
