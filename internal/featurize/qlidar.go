// Package featurize turns a controlled car's surroundings into a fixed-length
// feature vector: lidar-style range beams, ego speed, goal direction, the light
// ahead and a short trail of past poses.
package featurize

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/urbandriving/engine/internal/object"
	"github.com/urbandriving/engine/internal/queue"
	"github.com/urbandriving/engine/internal/shape"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
)

// ErrNotCar is returned when the featurized object is not a car.
var ErrNotCar = errors.New("featurized object is not a car")

const (
	defaultBeams   = 16
	defaultRange   = 200.0
	defaultHistory = 5

	// lightCorridor is the lateral half-width in which a light counts as ahead.
	lightCorridor = 60.0
	facingCutoff  = math.Pi / 4

	egoFeatures = 5
)

// Option configures a QLidar.
type Option func(*QLidar)

// Beams sets the number of evenly spaced range beams.
func Beams(n int) Option {
	return func(q *QLidar) {
		if n > 0 {
			q.beams = n
		}
	}
}

// Range sets the beam length. Distances are reported as a fraction of it.
func Range(r float64) Option {
	return func(q *QLidar) {
		if r > 0 {
			q.rng = r
		}
	}
}

// History sets how many past poses are appended to each vector.
func History(n int) Option {
	return func(q *QLidar) {
		if n >= 0 {
			q.history = n
		}
	}
}

// QLidar is the default featurizer. Pose history is kept here, per controlled
// index, rather than on the objects.
type QLidar struct {
	beams   int
	rng     float64
	history int

	trails map[int]*trail
}

type trail struct {
	poses *queue.Ring[shape.Frame]
	time  int
}

// New creates a featurizer.
func New(opts ...Option) *QLidar {
	q := &QLidar{beams: defaultBeams, rng: defaultRange, history: defaultHistory}
	for _, opt := range opts {
		opt(q)
	}
	q.trails = make(map[int]*trail)
	return q
}

// Len is the length of every vector Featurize returns.
func (q *QLidar) Len() int {
	return q.beams + egoFeatures + 2*q.history
}

// Reset forgets all pose history.
func (q *QLidar) Reset() {
	clear(q.trails)
}

// Featurize returns the vector for controlled car i. All values lie in [-1, 1].
// Calling it more than once in the same tick records the pose once.
func (q *QLidar) Featurize(s *state.State, i int) ([]float64, error) {
	ref := state.Ref{Group: state.ControlledCars, Index: i}
	car, ok := s.Get(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrUnknownRef, ref)
	}
	if car.Kind != object.Car {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotCar, ref, car.Kind)
	}

	out := make([]float64, 0, q.Len())
	out = append(out, q.scan(s, ref, car)...)
	out = append(out, car.Vel/object.CarMaxVel)
	out = append(out, goal(car, math.Hypot(s.Width, s.Height))...)
	out = append(out, q.lightAhead(s, car))
	out = append(out, q.trail(i, s.Time, car)...)
	return out, nil
}

// scan casts the beams from the car's centre, starting straight ahead and going
// counter-clockwise. A beam reports the nearest object the car could collide with.
func (q *QLidar) scan(s *state.State, self state.Ref, car object.Object) []float64 {
	out := make([]float64, q.beams)
	for b := range q.beams {
		heading := car.Shape.Angle + 2*math.Pi*float64(b)/float64(q.beams)
		nearest := q.rng
		for ref, other := range s.All() {
			if ref == self || !car.CanCollide(*other) {
				continue
			}
			if d, hit := other.Shape.Raycast(car.Shape.X, car.Shape.Y, heading, nearest); hit {
				nearest = d
			}
		}
		for _, st := range s.Statics {
			if !car.CanCollideStatic(st) {
				continue
			}
			if d, hit := st.Shape.Raycast(car.Shape.X, car.Shape.Y, heading, nearest); hit {
				nearest = d
			}
		}
		out[b] = nearest / q.rng
	}
	return out
}

// goal is the direction to the destination in the car's frame and the remaining
// distance over the world diagonal.
func goal(car object.Object, diag float64) []float64 {
	if car.Destination == nil {
		return []float64{0, 0, 0}
	}
	local := shape.Point(car.Destination.X, car.Destination.Y).Relative(car.Shape.Frame())
	v := mgl64.Vec2{local.X, -local.Y}
	dist := v.Len()
	if dist == 0 {
		return []float64{1, 0, 0}
	}
	v = v.Normalize()
	return []float64{v[0], v[1], math.Min(dist/diag, 1)}
}

// lightAhead encodes the nearest traffic light facing the car within range:
// 1 for red, 0.5 for yellow, 0 for green or none.
func (q *QLidar) lightAhead(s *state.State, car object.Object) float64 {
	best, value := q.rng, 0.0
	for _, o := range s.Objects[state.TrafficLights] {
		if o.Kind != object.TrafficLight {
			continue
		}
		if math.Abs(shape.Normalize(o.Shape.Angle-car.Shape.Angle)) >= facingCutoff {
			continue
		}
		local := o.Shape.Relative(car.Shape.Frame())
		if local.X <= 0 || local.X > best || math.Abs(local.Y) > lightCorridor {
			continue
		}
		best = local.X
		value = lightValue(o.Light)
	}
	return value
}

func lightValue(c core.LightColor) float64 {
	switch c {
	case core.LightRed:
		return 1
	case core.LightYellow:
		return 0.5
	default:
		return 0
	}
}

// trail records the current pose and returns the previous ones relative to it,
// oldest first and zero-padded at the front.
func (q *QLidar) trail(i, t int, car object.Object) []float64 {
	out := make([]float64, 2*q.history)
	if q.history == 0 {
		return out
	}
	tr, ok := q.trails[i]
	if !ok {
		tr = &trail{poses: queue.NewRing[shape.Frame](q.history + 1), time: -1}
		q.trails[i] = tr
	}
	frame := car.Shape.Frame()
	if tr.time != t {
		tr.poses.Push(frame)
		tr.time = t
	}

	poses := tr.poses.Items()
	past := poses[:len(poses)-1]
	offset := 2 * (q.history - len(past))
	for j, p := range past {
		local := shape.Point(p.X, p.Y).Relative(frame)
		out[offset+2*j] = clamp(local.X / q.rng)
		out[offset+2*j+1] = clamp(local.Y / q.rng)
	}
	return out
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
