// Package render draws world states. Raster paints an RGBA image; Terminal paints
// a tcell screen. Both keep their static layer until asked to redraw it.
package render

import (
	"image/color"

	"github.com/urbandriving/engine/internal/object"
	"github.com/urbandriving/engine/internal/shape"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/internal/trajectory"
	"github.com/urbandriving/engine/pkg/core"
)

// Window is the world region drawn, in world units. The zero Window draws the
// whole world.
type Window struct {
	X, Y          float64
	Width, Height float64
}

// Resolve returns w, or the full extent of s when w is empty.
func (w Window) Resolve(s *state.State) Window {
	if w.Width <= 0 || w.Height <= 0 {
		return Window{Width: s.Width, Height: s.Height}
	}
	return w
}

// Around centres a window of the given size on an object.
func Around(o object.Object, width, height float64) Window {
	return Window{X: o.Shape.X - width/2, Y: o.Shape.Y - height/2, Width: width, Height: height}
}

// Overlay is extra geometry drawn over the objects: route waypoints or a driven
// path.
type Overlay struct {
	Points  []core.Position2D
	Color   shape.Color
	Connect bool
}

var (
	waypointColor   = shape.RGB(255, 140, 0)
	trajectoryColor = shape.RGB(200, 0, 200)
	background      = shape.RGB(0, 0, 0)
)

// Waypoints marks every xy point of t.
func Waypoints(t *trajectory.Trajectory) Overlay {
	return Overlay{Points: positions(t), Color: waypointColor}
}

// Path draws t as a polyline.
func Path(t *trajectory.Trajectory) Overlay {
	return Overlay{Points: positions(t), Color: trajectoryColor, Connect: true}
}

func positions(t *trajectory.Trajectory) []core.Position2D {
	if t == nil || !t.Has('x') || !t.Has('y') {
		return nil
	}
	out := make([]core.Position2D, 0, t.NPoints())
	for i := range t.NPoints() {
		x, _ := t.Field(i, 'x')
		y, _ := t.Field(i, 'y')
		out = append(out, core.Position2D{X: x, Y: y})
	}
	return out
}

var lightColors = map[core.LightColor]shape.Color{
	core.LightRed:    shape.RGB(230, 30, 30),
	core.LightYellow: shape.RGB(240, 220, 0),
	core.LightGreen:  shape.RGB(30, 200, 60),
	core.LightWhite:  shape.RGB(255, 255, 255),
}

// objectColor is the drawn colour of a dynamic object. Lights show their signal.
func objectColor(o object.Object) shape.Color {
	if o.Kind.IsLight() {
		return lightColors[o.Light]
	}
	if o.Shape.Color.Set() {
		return o.Shape.Color
	}
	return shape.RGB(255, 255, 255)
}

func rgba(c shape.Color) color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}
