// Package object models the things that live in a world: dynamic objects that move
// under actions, and static road geometry.
package object

import (
	"fmt"
	"math"

	"github.com/urbandriving/engine/internal/shape"
	"github.com/urbandriving/engine/internal/trajectory"
	"github.com/urbandriving/engine/pkg/core"
)

// Kind is the type of a dynamic object.
type Kind uint8

const (
	Car Kind = iota
	Pedestrian
	TrafficLight
	CrosswalkLight
)

var kindNames = [...]string{"car", "pedestrian", "traffic_light", "crosswalk_light"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsLight reports whether the kind is a signal.
func (k Kind) IsLight() bool {
	return k == TrafficLight || k == CrosswalkLight
}

// Per-kind constants. Velocities are in world units per tick.
const (
	CarXDim      = 40.0
	CarYDim      = 20.0
	CarMaxVel    = 5.0
	CarMaxAccel  = 1.0
	CarMaxSteer  = math.Pi / 3
	CarWheelbase = 80.0

	PedestrianXDim   = 8.0
	PedestrianYDim   = 8.0
	PedestrianMaxVel = 2.0

	LightDim = 6.0
)

var (
	carColor        = shape.RGB(60, 110, 200)
	controlledColor = shape.RGB(220, 60, 60)
	pedestrianColor = shape.RGB(240, 200, 40)
)

// Object is a dynamic object. It is a plain value: copying it copies everything but
// the trajectory, see Clone.
type Object struct {
	Kind        Kind                   `json:"kind"`
	Shape       shape.Shape            `json:"shape"`
	Vel         float64                `json:"vel"`
	Destination *core.Position2D       `json:"destination,omitempty"`
	Trajectory  *trajectory.Trajectory `json:"trajectory,omitempty"`
	Light       core.LightColor        `json:"light"`
	LastAction  core.Action            `json:"lastAction"`
}

// NewCar places a car at rest.
func NewCar(x, y, angle float64) Object {
	return Object{Kind: Car, Shape: shape.New(x, y, CarXDim, CarYDim, angle).WithColor(carColor)}
}

// NewControlledCar is NewCar drawn in the controlled colour.
func NewControlledCar(x, y, angle float64) Object {
	o := NewCar(x, y, angle)
	o.Shape.Color = controlledColor
	return o
}

// NewPedestrian places a standing pedestrian.
func NewPedestrian(x, y, angle float64) Object {
	return Object{Kind: Pedestrian, Shape: shape.New(x, y, PedestrianXDim, PedestrianYDim, angle).WithColor(pedestrianColor)}
}

// NewTrafficLight places a traffic light controlling traffic that travels along angle.
func NewTrafficLight(x, y, angle float64, c core.LightColor) Object {
	return Object{Kind: TrafficLight, Shape: shape.New(x, y, LightDim, LightDim, angle), Light: c}
}

// NewCrosswalkLight places a walk signal for pedestrians crossing along angle.
func NewCrosswalkLight(x, y, angle float64, c core.LightColor) Object {
	return Object{Kind: CrosswalkLight, Shape: shape.New(x, y, LightDim, LightDim, angle), Light: c}
}

// Clone returns an independent copy, trajectory included.
func (o Object) Clone() Object {
	o.Trajectory = o.Trajectory.Clone()
	if o.Destination != nil {
		d := *o.Destination
		o.Destination = &d
	}
	return o
}

// Follow assigns a route and sets the destination to its last point.
func (o *Object) Follow(t *trajectory.Trajectory) {
	o.Trajectory = t
	o.Destination = nil
	if n := t.NPoints(); n > 0 && t.Has('x') && t.Has('y') {
		x, _ := t.Field(n-1, 'x')
		y, _ := t.Field(n-1, 'y')
		o.Destination = &core.Position2D{X: x, Y: y}
	}
}

// Step advances the object by one tick under the given action. Numeric inputs are
// clamped. An action the kind cannot execute leaves the object untouched and returns
// core.ErrActionShape.
func (o *Object) Step(a core.Action) error {
	if a.Kind == core.ActionLastValid {
		a = o.LastAction
	}
	var err error
	switch o.Kind {
	case Car:
		err = o.stepCar(a)
	case Pedestrian:
		err = o.stepPedestrian(a)
	case TrafficLight, CrosswalkLight:
		err = o.stepLight(a)
	default:
		err = fmt.Errorf("unknown object kind %d", o.Kind)
	}
	if err != nil {
		return err
	}
	o.LastAction = a
	return nil
}

func (o *Object) stepCar(a core.Action) error {
	switch a.Kind {
	case core.ActionNull:
		o.integrate(0, 0)
	case core.ActionSteeringAcc:
		o.integrate(clamp(a.Steer, -1, 1), clamp(a.Acc, -1, 1)*CarMaxAccel)
	case core.ActionSteering:
		o.integrate(clamp(a.Steer, -1, 1), 0)
	case core.ActionSteeringVel:
		o.integrate(clamp(a.Steer, -1, 1), o.towards(a.Vel))
	case core.ActionVelocity:
		o.integrate(0, o.towards(a.Vel))
	case core.ActionWaypoint:
		dv := o.towards(a.Vel)
		o.integrate(o.steerTowards(a.X, a.Y, o.Vel+dv), dv)
	case core.ActionKeyboard:
		var steer, acc float64
		if a.Keys.Has(core.KeyUp) {
			acc++
		}
		if a.Keys.Has(core.KeyDown) {
			acc--
		}
		if a.Keys.Has(core.KeyLeft) {
			steer++
		}
		if a.Keys.Has(core.KeyRight) {
			steer--
		}
		o.integrate(steer, acc*CarMaxAccel)
	default:
		return fmt.Errorf("%w: car cannot execute %s", core.ErrActionShape, a.Kind)
	}
	return nil
}

// towards returns the velocity change that moves the car to the target speed
// without exceeding the acceleration bound.
func (o *Object) towards(target float64) float64 {
	return clamp(clamp(target, 0, CarMaxVel)-o.Vel, -CarMaxAccel, CarMaxAccel)
}

// steerTowards returns the normalized steering that turns the heading onto the
// point in one tick at the given speed, saturating at the steering bound.
func (o *Object) steerTowards(x, y, vel float64) float64 {
	vel = clamp(vel, 0, CarMaxVel)
	if vel == 0 || shape.Distance(o.Shape.X, o.Shape.Y, x, y) == 0 {
		return 0
	}
	diff := shape.Normalize(shape.Heading(o.Shape.X, o.Shape.Y, x, y) - o.Shape.Angle)
	return clamp(math.Atan(diff*CarWheelbase/vel)/CarMaxSteer, -1, 1)
}

// integrate applies the bicycle model: speed first, then heading, then position.
func (o *Object) integrate(steer, dv float64) {
	o.Vel = clamp(o.Vel+dv, 0, CarMaxVel)
	o.Shape.Angle = shape.Normalize(o.Shape.Angle + o.Vel/CarWheelbase*math.Tan(steer*CarMaxSteer))
	o.advance(o.Vel)
}

func (o *Object) advance(d float64) {
	sin, cos := math.Sincos(o.Shape.Angle)
	o.Shape.X += d * cos
	o.Shape.Y -= d * sin
}

func (o *Object) stepPedestrian(a core.Action) error {
	switch a.Kind {
	case core.ActionNull:
		o.Vel = 0
	case core.ActionVelocity:
		o.Vel = clamp(a.Vel, 0, PedestrianMaxVel)
		o.advance(o.Vel)
	case core.ActionWaypoint:
		vel := clamp(a.Vel, 0, PedestrianMaxVel)
		dist := shape.Distance(o.Shape.X, o.Shape.Y, a.X, a.Y)
		if dist > 0 {
			o.Shape.Angle = shape.Heading(o.Shape.X, o.Shape.Y, a.X, a.Y)
		}
		if dist <= vel {
			o.Shape.X, o.Shape.Y = a.X, a.Y
			o.Vel = dist
			return nil
		}
		o.Vel = vel
		o.advance(vel)
	default:
		return fmt.Errorf("%w: pedestrian cannot execute %s", core.ErrActionShape, a.Kind)
	}
	return nil
}

func (o *Object) stepLight(a core.Action) error {
	switch a.Kind {
	case core.ActionNull:
		return nil
	case core.ActionLight:
		if !o.Kind.Accepts(a.Light) {
			return fmt.Errorf("%w: %s cannot show %s", core.ErrActionShape, o.Kind, a.Light)
		}
		o.Light = a.Light
		return nil
	default:
		return fmt.Errorf("%w: %s cannot execute %s", core.ErrActionShape, o.Kind, a.Kind)
	}
}

// Accepts reports whether a light of this kind can show the colour.
func (k Kind) Accepts(c core.LightColor) bool {
	switch k {
	case TrafficLight:
		return c == core.LightRed || c == core.LightYellow || c == core.LightGreen
	case CrosswalkLight:
		return c == core.LightRed || c == core.LightWhite
	default:
		return false
	}
}

// CanCollide reports whether the two dynamic objects take part in collision
// detection against each other. It depends on the kinds only.
func (o Object) CanCollide(other Object) bool {
	switch o.Kind {
	case Car:
		return other.Kind == Car || other.Kind == Pedestrian
	case Pedestrian:
		return other.Kind == Car
	default:
		return false
	}
}

// CanCollideStatic reports whether touching s counts as a collision. A car may drive
// on streets, crosswalks and lanes heading within a right angle of the lane direction.
func (o Object) CanCollideStatic(s Static) bool {
	switch o.Kind {
	case Car:
		switch s.Kind {
		case Terrain, Sidewalk:
			return true
		case Lane:
			return math.Abs(shape.Normalize(o.Shape.Angle-s.Shape.Angle)) > math.Pi/2
		default:
			return false
		}
	case Pedestrian:
		return s.Kind == Terrain
	default:
		return false
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
