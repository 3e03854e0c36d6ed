// pkg/core/types.go
package core

import "fmt"

// LightColor is the display state of a traffic or crosswalk light.
type LightColor uint8

const (
	LightRed LightColor = iota
	LightYellow
	LightGreen
	// LightWhite is the crosswalk "walk" signal.
	LightWhite
)

var lightNames = [...]string{"red", "yellow", "green", "white"}

func (c LightColor) String() string {
	if int(c) < len(lightNames) {
		return lightNames[c]
	}
	return fmt.Sprintf("LightColor(%d)", uint8(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c LightColor) MarshalText() ([]byte, error) {
	if int(c) >= len(lightNames) {
		return nil, fmt.Errorf("unknown light color %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *LightColor) UnmarshalText(b []byte) error {
	for i, name := range lightNames {
		if name == string(b) {
			*c = LightColor(i)
			return nil
		}
	}
	return fmt.Errorf("unknown light color %q", b)
}

// Position2D is a position in world units.
type Position2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
