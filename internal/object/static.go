package object

import (
	"fmt"

	"github.com/urbandriving/engine/internal/shape"
)

// StaticKind is the category of a piece of road geometry.
type StaticKind uint8

const (
	Terrain StaticKind = iota
	Sidewalk
	Lane
	Street
	Crosswalk
)

var staticNames = [...]string{"terrain", "sidewalk", "lane", "street", "crosswalk"}

func (k StaticKind) String() string {
	if int(k) < len(staticNames) {
		return staticNames[k]
	}
	return fmt.Sprintf("StaticKind(%d)", uint8(k))
}

var staticColors = [...]shape.Color{
	Terrain:   shape.RGB(70, 140, 70),
	Sidewalk:  shape.RGB(180, 180, 180),
	Lane:      shape.RGB(60, 60, 60),
	Street:    shape.RGB(60, 60, 60),
	Crosswalk: shape.RGB(235, 235, 235),
}

// Static is fixed geometry. For a lane the shape's angle is the travel direction.
type Static struct {
	Kind  StaticKind  `json:"kind"`
	Shape shape.Shape `json:"shape"`
}

// NewStatic builds a piece of geometry in the default colour of its kind.
func NewStatic(k StaticKind, x, y, xdim, ydim, angle float64) Static {
	s := shape.New(x, y, xdim, ydim, angle)
	if int(k) < len(staticColors) {
		s.Color = staticColors[k]
	}
	return Static{Kind: k, Shape: s}
}
