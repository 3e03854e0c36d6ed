// pkg/core/action.go
package core

import (
	"errors"
	"fmt"
)

// ErrActionShape is returned when an action does not fit its target: a numeric
// array of the wrong length, or a variant the object type cannot execute.
var ErrActionShape = errors.New("action shape mismatch")

// ActionKind tags the Action variant.
type ActionKind uint8

const (
	ActionNull ActionKind = iota
	ActionSteeringAcc
	ActionSteering
	ActionSteeringVel
	ActionVelocity
	ActionWaypoint
	ActionLastValid
	ActionKeyboard
	ActionLight
)

var actionKindNames = [...]string{
	ActionNull:        "null",
	ActionSteeringAcc: "steering_acc",
	ActionSteering:    "steering",
	ActionSteeringVel: "steering_vel",
	ActionVelocity:    "velocity",
	ActionWaypoint:    "waypoint",
	ActionLastValid:   "last_valid",
	ActionKeyboard:    "keyboard",
	ActionLight:       "light",
}

// arity is the length of each kind's numeric form.
var arity = [...]int{
	ActionNull:        0,
	ActionSteeringAcc: 2,
	ActionSteering:    1,
	ActionSteeringVel: 2,
	ActionVelocity:    1,
	ActionWaypoint:    3,
	ActionLastValid:   0,
	ActionKeyboard:    1,
	ActionLight:       1,
}

func (k ActionKind) String() string {
	if int(k) < len(actionKindNames) {
		return actionKindNames[k]
	}
	return fmt.Sprintf("ActionKind(%d)", uint8(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k ActionKind) MarshalText() ([]byte, error) {
	if int(k) >= len(actionKindNames) {
		return nil, fmt.Errorf("unknown action kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ActionKind) UnmarshalText(b []byte) error {
	for i, name := range actionKindNames {
		if name == string(b) {
			*k = ActionKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown action kind %q", b)
}

// Keys is a raw keyboard intent.
type Keys uint8

const (
	KeyUp Keys = 1 << iota
	KeyDown
	KeyLeft
	KeyRight
)

// Has reports whether every key in k2 is held.
func (k Keys) Has(k2 Keys) bool {
	return k&k2 == k2
}

// Action is a tagged control value. Only the fields of its Kind are meaningful:
//
//	steering_acc  Steer in [-1, 1], Acc in [-1, 1]
//	steering      Steer
//	steering_vel  Steer, Vel (absolute target speed)
//	velocity      Vel
//	waypoint      X, Y (absolute target point), Vel
//	keyboard      Keys
//	light         Light
//
// Out-of-range values are clamped by the object executing the action.
type Action struct {
	Kind  ActionKind `json:"kind"`
	Steer float64    `json:"steer,omitempty"`
	Acc   float64    `json:"acc,omitempty"`
	Vel   float64    `json:"vel,omitempty"`
	X     float64    `json:"x,omitempty"`
	Y     float64    `json:"y,omitempty"`
	Keys  Keys       `json:"keys,omitempty"`
	Light LightColor `json:"light,omitempty"`
}

func Null() Action { return Action{Kind: ActionNull} }
func SteeringAcc(steer, acc float64) Action { return Action{Kind: ActionSteeringAcc, Steer: steer, Acc: acc} }
func Steering(steer float64) Action { return Action{Kind: ActionSteering, Steer: steer} }
func SteeringVel(steer, vel float64) Action { return Action{Kind: ActionSteeringVel, Steer: steer, Vel: vel} }
func Velocity(vel float64) Action { return Action{Kind: ActionVelocity, Vel: vel} }
func Waypoint(x, y, vel float64) Action { return Action{Kind: ActionWaypoint, X: x, Y: y, Vel: vel} }
func LastValid() Action { return Action{Kind: ActionLastValid} }
func Keyboard(keys Keys) Action { return Action{Kind: ActionKeyboard, Keys: keys} }
func Light(c LightColor) Action { return Action{Kind: ActionLight, Light: c} }

// Array returns the numeric form of the action.
func (a Action) Array() []float64 {
	switch a.Kind {
	case ActionSteeringAcc:
		return []float64{a.Steer, a.Acc}
	case ActionSteering:
		return []float64{a.Steer}
	case ActionSteeringVel:
		return []float64{a.Steer, a.Vel}
	case ActionVelocity:
		return []float64{a.Vel}
	case ActionWaypoint:
		return []float64{a.X, a.Y, a.Vel}
	case ActionKeyboard:
		return []float64{float64(a.Keys)}
	case ActionLight:
		return []float64{float64(a.Light)}
	default:
		return []float64{}
	}
}

// FromArray is the inverse of Array.
func FromArray(kind ActionKind, v []float64) (Action, error) {
	if int(kind) >= len(arity) {
		return Action{}, fmt.Errorf("%w: unknown kind %d", ErrActionShape, uint8(kind))
	}
	if len(v) != arity[kind] {
		return Action{}, fmt.Errorf("%w: %s wants %d values, got %d", ErrActionShape, kind, arity[kind], len(v))
	}
	switch kind {
	case ActionSteeringAcc:
		return SteeringAcc(v[0], v[1]), nil
	case ActionSteering:
		return Steering(v[0]), nil
	case ActionSteeringVel:
		return SteeringVel(v[0], v[1]), nil
	case ActionVelocity:
		return Velocity(v[0]), nil
	case ActionWaypoint:
		return Waypoint(v[0], v[1], v[2]), nil
	case ActionLastValid:
		return LastValid(), nil
	case ActionKeyboard:
		return Keyboard(Keys(v[0])), nil
	case ActionLight:
		return Light(LightColor(v[0])), nil
	default:
		return Null(), nil
	}
}
