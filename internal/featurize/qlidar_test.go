package featurize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbandriving/engine/internal/object"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
)

func newScene(t *testing.T) *state.State {
	t.Helper()
	s, err := state.NewIntersection(state.IntersectionConfig{ControlledCars: 1, TrafficLights: true})
	require.NoError(t, err)
	return s
}

func TestQLidar_Layout(t *testing.T) {
	s := newScene(t)
	q := New()

	v, err := q.Featurize(s, 0)
	require.NoError(t, err)
	require.Len(t, v, q.Len())
	for i, x := range v {
		assert.True(t, x >= -1 && x <= 1, "feature %d out of range: %v", i, x)
	}
}

func TestQLidar_Beams(t *testing.T) {
	s := newScene(t)
	q := New(Beams(16), Range(200), History(0))

	v, err := q.Featurize(s, 0)
	require.NoError(t, err)

	// The car sits in the middle of its lane: sidewalk on the right, oncoming lane
	// on the left, open road ahead.
	assert.InDelta(t, 1.0, v[0], 1e-9)
	assert.InDelta(t, 0.25, v[4], 1e-9)
	assert.InDelta(t, 0.25, v[12], 1e-9)
}

func TestQLidar_GoalAndLight(t *testing.T) {
	s := newScene(t)
	q := New(Beams(4), History(0))

	v, err := q.Featurize(s, 0)
	require.NoError(t, err)
	speed, gx, gy, dist, light := v[4], v[5], v[6], v[7], v[8]
	assert.Zero(t, speed)
	assert.InDelta(t, 1, gx, 1e-9)
	assert.InDelta(t, 0, gy, 1e-9)
	assert.InDelta(t, 760/math.Hypot(1000, 1000), dist, 1e-9)
	assert.Zero(t, light, "green light ahead")

	s.Objects[state.TrafficLights][0].Light = core.LightRed
	v, err = q.Featurize(s, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v[8])
}

func TestQLidar_History(t *testing.T) {
	s := newScene(t)
	q := New(Beams(1), History(2))
	car := s.At(state.Ref{Group: state.ControlledCars})

	v, err := q.Featurize(s, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, v[6:])

	car.Shape.X += 10
	s.Time++
	v, err = q.Featurize(s, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v[6])
	assert.InDelta(t, -10.0/defaultRange, v[8], 1e-9)
	assert.InDelta(t, 0, v[9], 1e-9)

	again, err := q.Featurize(s, 0)
	require.NoError(t, err)
	assert.Equal(t, v, again, "same tick records once")

	q.Reset()
	v, err = q.Featurize(s, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, v[6:])
}

func TestQLidar_Errors(t *testing.T) {
	s := newScene(t)
	q := New()

	_, err := q.Featurize(s, 3)
	assert.ErrorIs(t, err, state.ErrUnknownRef)

	s.Objects[state.ControlledCars][0] = object.NewPedestrian(220, 550, 0)
	_, err = q.Featurize(s, 0)
	assert.ErrorIs(t, err, ErrNotCar)
}
