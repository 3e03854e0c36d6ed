package state

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbandriving/engine/internal/object"
	"github.com/urbandriving/engine/internal/trajectory"
	"github.com/urbandriving/engine/pkg/core"
)

func openWorld() *State {
	return New(1000, 1000, nil)
}

func TestCollisions_OverlappingCars(t *testing.T) {
	s := openWorld()
	s.Add(ControlledCars, object.NewControlledCar(100, 100, 0))
	s.Add(BackgroundCars, object.NewCar(150, 110, 0.2))
	s.Add(BackgroundCars, object.NewCar(800, 800, 0))

	c := s.Collisions()
	require.Len(t, c.Dynamic, 1)
	assert.Equal(t, DynamicCollision{A: Ref{BackgroundCars, 0}, B: Ref{ControlledCars, 0}}, c.Dynamic[0])
	assert.Empty(t, c.Static)
	require.Contains(t, c.Controlled, 0)
	assert.Len(t, c.Controlled[0].Dynamic, 1)
	assert.True(t, c.Any())
}

func TestCollisions_TouchingCountsAndSeparatedDoesNot(t *testing.T) {
	s := openWorld()
	s.Add(BackgroundCars, object.NewCar(100, 100, 0))
	s.Add(BackgroundCars, object.NewCar(100+2*object.CarXDim, 100, 0))
	s.Add(BackgroundCars, object.NewCar(400, 100, 0))
	s.Add(BackgroundCars, object.NewCar(400+2*object.CarXDim+0.5, 100, 0))

	c := s.Collisions()
	assert.Equal(t, []DynamicCollision{{A: Ref{BackgroundCars, 0}, B: Ref{BackgroundCars, 1}}}, c.Dynamic)
}

func TestCollisions_KindRules(t *testing.T) {
	s := openWorld()
	s.Add(BackgroundCars, object.NewCar(100, 100, 0))
	s.Add(TrafficLights, object.NewTrafficLight(100, 100, 0, core.LightRed))
	s.Add(Pedestrians, object.NewPedestrian(500, 500, 0))
	s.Add(Pedestrians, object.NewPedestrian(505, 500, 0))

	assert.False(t, s.Collisions().Any(), "lights and pedestrian pairs never collide")
}

func TestCollisions_Statics(t *testing.T) {
	statics := []object.Static{
		object.NewStatic(object.Lane, 200, 550, 200, 50, 0),
		object.NewStatic(object.Lane, 200, 450, 200, 50, math.Pi),
		object.NewStatic(object.Sidewalk, 200, 625, 200, 25, 0),
		object.NewStatic(object.Terrain, 200, 800, 200, 150, 0),
	}
	s := New(1000, 1000, statics)
	s.Add(ControlledCars, object.NewControlledCar(100, 550, 0))
	s.Add(BackgroundCars, object.NewCar(250, 450, 0))
	s.Add(Pedestrians, object.NewPedestrian(100, 625, 0))
	s.Add(Pedestrians, object.NewPedestrian(300, 660, 0))

	c := s.Collisions()
	assert.Empty(t, c.Dynamic)
	assert.Equal(t, []StaticCollision{
		{Ref: Ref{BackgroundCars, 0}, Static: 1},
		{Ref: Ref{Pedestrians, 1}, Static: 3},
	}, c.Static)
	assert.NotContains(t, c.Controlled, 0)

	s.At(Ref{ControlledCars, 0}).Shape.Y = 590
	c = s.Collisions()
	require.Contains(t, c.Controlled, 0)
	assert.Equal(t, []StaticCollision{{Ref: Ref{ControlledCars, 0}, Static: 2}}, c.Controlled[0].Static)
}

func TestCollisions_DeterministicMembership(t *testing.T) {
	s := openWorld()
	rng := rand.New(rand.NewPCG(7, 7))
	for range 40 {
		s.Add(BackgroundCars, object.NewCar(rng.Float64()*400, rng.Float64()*400, rng.Float64()*2*math.Pi))
	}
	first := s.Collisions()
	require.NotEmpty(t, first.Dynamic)
	assert.Equal(t, first, s.Collisions())

	// Brute force agrees with the sweep.
	var want []DynamicCollision
	for i := range s.Objects[BackgroundCars] {
		for j := i + 1; j < len(s.Objects[BackgroundCars]); j++ {
			if s.Objects[BackgroundCars][i].Shape.Intersects(s.Objects[BackgroundCars][j].Shape) {
				want = append(want, DynamicCollision{A: Ref{BackgroundCars, i}, B: Ref{BackgroundCars, j}})
			}
		}
	}
	assert.Equal(t, want, first.Dynamic)
}

func TestClone_IsDeep(t *testing.T) {
	s, err := NewIntersection(IntersectionConfig{BackgroundCars: 2, ControlledCars: 1, Pedestrians: 1, TrafficLights: true})
	require.NoError(t, err)
	c := s.Clone()
	assert.Equal(t, s, c)

	c.Time = 9
	c.At(Ref{BackgroundCars, 0}).Shape.X = -1
	require.NoError(t, c.At(Ref{BackgroundCars, 0}).Trajectory.AddPoint(1, 2, 3))
	require.NoError(t, c.CarSpawns[0].Routes[0].AddPoint(1, 2, 3))

	assert.Equal(t, 0, s.Time)
	assert.NotEqual(t, -1.0, s.Objects[BackgroundCars][0].Shape.X)
	assert.NotEqual(t, c.Objects[BackgroundCars][0].Trajectory.NPoints(), s.Objects[BackgroundCars][0].Trajectory.NPoints())
	assert.NotEqual(t, c.CarSpawns[0].Routes[0].NPoints(), s.CarSpawns[0].Routes[0].NPoints())
}

func TestIntersection_StartsCollisionFree(t *testing.T) {
	s, err := NewIntersection(IntersectionConfig{BackgroundCars: 7, ControlledCars: 1, Pedestrians: 4, TrafficLights: true})
	require.NoError(t, err)
	assert.Equal(t, 7, s.Count(BackgroundCars))
	assert.Equal(t, 1, s.Count(ControlledCars))
	assert.Equal(t, 8, s.Count(TrafficLights))
	assert.Equal(t, 4, s.Count(Pedestrians))

	c := s.Collisions()
	assert.Empty(t, c.Dynamic)
	assert.Empty(t, c.Static)

	_, err = NewIntersection(IntersectionConfig{BackgroundCars: 9})
	assert.ErrorIs(t, err, ErrNotEnoughSpawns)
}

func TestIntersection_RoutesStayOnDrivableGround(t *testing.T) {
	s, err := NewIntersection(IntersectionConfig{})
	require.NoError(t, err)
	for _, sp := range s.CarSpawns {
		for _, route := range sp.Routes {
			for _, p := range route.All() {
				world := New(s.Width, s.Height, s.Statics)
				car := object.NewCar(p[0], p[1], 0)
				car.Shape.XDim, car.Shape.YDim = 1, 1
				world.Add(BackgroundCars, car)
				for _, hit := range world.Collisions().Static {
					assert.NotEqual(t, object.Sidewalk, s.Statics[hit.Static].Kind, "route point %v", p)
					assert.NotEqual(t, object.Terrain, s.Statics[hit.Static].Kind, "route point %v", p)
				}
			}
		}
	}
}

func TestRandomize(t *testing.T) {
	s, err := NewIntersection(IntersectionConfig{BackgroundCars: 5, ControlledCars: 1, Pedestrians: 2})
	require.NoError(t, err)

	a, b := s.Clone(), s.Clone()
	require.NoError(t, a.Randomize(rand.New(rand.NewPCG(1, 2))))
	require.NoError(t, b.Randomize(rand.New(rand.NewPCG(1, 2))))
	assert.Equal(t, a, b, "same seed, same placement")

	seen := map[[2]float64]bool{}
	for _, g := range []Group{BackgroundCars, ControlledCars} {
		for _, o := range a.Objects[g] {
			key := [2]float64{o.Shape.X, o.Shape.Y}
			assert.False(t, seen[key], "spawn reused")
			seen[key] = true
			assert.NotNil(t, o.Destination)
			assert.Zero(t, o.Vel)
		}
	}
	assert.False(t, a.Collisions().Any())
}

func TestRandomize_Failures(t *testing.T) {
	s := openWorld()
	s.Add(BackgroundCars, object.NewCar(0, 0, 0))
	s.Add(BackgroundCars, object.NewCar(0, 0, 0))
	s.CarSpawns = []Spawn{{X: 100, Y: 100}}
	assert.ErrorIs(t, s.Randomize(rand.New(rand.NewPCG(1, 1))), ErrNotEnoughSpawns)

	route := trajectory.MustNew("xyv")
	require.NoError(t, route.AddPoint(900, 100, 5))
	s.CarSpawns = []Spawn{{X: 100, Y: 100, Routes: []*trajectory.Trajectory{route}}, {X: 110, Y: 100}}
	before := s.Clone()
	assert.ErrorIs(t, s.Randomize(rand.New(rand.NewPCG(1, 1))), ErrSpawnOverlap)
	assert.Equal(t, before, s)
}

func TestRefs_CanonicalOrder(t *testing.T) {
	s := openWorld()
	s.Add(Pedestrians, object.NewPedestrian(0, 0, 0))
	s.Add(BackgroundCars, object.NewCar(0, 0, 0))
	s.Add(BackgroundCars, object.NewCar(0, 0, 0))
	assert.Equal(t, []Ref{{BackgroundCars, 0}, {BackgroundCars, 1}, {Pedestrians, 0}}, s.Refs())

	_, ok := s.Get(Ref{ControlledCars, 0})
	assert.False(t, ok)
	g, err := ParseGroup("pedestrians")
	require.NoError(t, err)
	assert.Equal(t, Pedestrians, g)
}
