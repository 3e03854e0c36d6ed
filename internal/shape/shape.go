// Package shape implements the oriented rectangles every world object is built on.
//
// The world is screen-space: x grows to the right, y grows downward, and headings
// are measured counter-clockwise as drawn. Moving forward along heading a therefore
// means x += cos(a), y -= sin(a).
package shape

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Color is an optional render colour. The zero value means "unset".
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// RGB builds an opaque colour.
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b, A: 255}
}

// Set reports whether the colour was assigned.
func (c Color) Set() bool {
	return c.A != 0
}

// Frame is a pose used as a reference frame for relative coordinates.
type Frame struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}

// Shape is an oriented rectangle. XDim and YDim are half-extents along the heading
// and across it. A shape with zero extents is a point.
type Shape struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	XDim  float64 `json:"xdim"`
	YDim  float64 `json:"ydim"`
	Angle float64 `json:"angle"`
	Color Color   `json:"color,omitzero"`
}

// New returns a shape with its angle normalized.
func New(x, y, xdim, ydim, angle float64) Shape {
	return Shape{X: x, Y: y, XDim: math.Abs(xdim), YDim: math.Abs(ydim), Angle: Normalize(angle)}
}

// Point returns a zero-extent shape.
func Point(x, y float64) Shape {
	return Shape{X: x, Y: y}
}

// WithColor returns a copy with the given colour.
func (s Shape) WithColor(c Color) Shape {
	s.Color = c
	return s
}

// Normalize maps an angle to (-π, π].
func Normalize(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// Heading returns the screen-space heading from one point towards another.
func Heading(fromX, fromY, toX, toY float64) float64 {
	return math.Atan2(-(toY - fromY), toX - fromX)
}

// Distance is the euclidean distance between two points.
func Distance(x0, y0, x1, y1 float64) float64 {
	return math.Hypot(x1-x0, y1-y0)
}

// RotateAbout rotates (x, y) counter-clockwise (as drawn) by angle around (cx, cy).
func RotateAbout(x, y, cx, cy, angle float64) (float64, float64) {
	r := mgl64.Rotate2D(angle).Mul2x1(mgl64.Vec2{x - cx, -(y - cy)})
	return cx + r[0], cy - r[1]
}

// Frame returns the shape's pose.
func (s Shape) Frame() Frame {
	return Frame{X: s.X, Y: s.Y, Angle: s.Angle}
}

// axes returns the unit forward and lateral axes in screen coordinates.
func (s Shape) axes() (mgl64.Vec2, mgl64.Vec2) {
	sin, cos := math.Sincos(s.Angle)
	return mgl64.Vec2{cos, -sin}, mgl64.Vec2{sin, cos}
}

// Corners returns the four corners, front-left first, clockwise as drawn.
func (s Shape) Corners() [4]mgl64.Vec2 {
	u, w := s.axes()
	c := mgl64.Vec2{s.X, s.Y}
	fu := u.Mul(s.XDim)
	fw := w.Mul(s.YDim)
	return [4]mgl64.Vec2{
		c.Add(fu).Sub(fw),
		c.Add(fu).Add(fw),
		c.Sub(fu).Add(fw),
		c.Sub(fu).Sub(fw),
	}
}

// Bounds returns the axis-aligned box enclosing the shape.
func (s Shape) Bounds() (minX, minY, maxX, maxY float64) {
	sin, cos := math.Sincos(s.Angle)
	ex := s.XDim*math.Abs(cos) + s.YDim*math.Abs(sin)
	ey := s.XDim*math.Abs(sin) + s.YDim*math.Abs(cos)
	return s.X - ex, s.Y - ey, s.X + ex, s.Y + ey
}

// radius is the projection half-length of s onto axis n.
func (s Shape) radius(n mgl64.Vec2) float64 {
	u, w := s.axes()
	return s.XDim*math.Abs(u.Dot(n)) + s.YDim*math.Abs(w.Dot(n))
}

// Intersects runs the separating-axis test over both shapes' axes.
// Touching edges count as intersecting.
func (s Shape) Intersects(o Shape) bool {
	d := mgl64.Vec2{o.X - s.X, o.Y - s.Y}
	su, sw := s.axes()
	ou, ow := o.axes()
	for _, n := range [4]mgl64.Vec2{su, sw, ou, ow} {
		if math.Abs(d.Dot(n)) > s.radius(n)+o.radius(n) {
			return false
		}
	}
	return true
}

// Contains reports whether the point lies inside or on the edge of the shape.
func (s Shape) Contains(x, y float64) bool {
	u, w := s.axes()
	d := mgl64.Vec2{x - s.X, y - s.Y}
	return math.Abs(d.Dot(u)) <= s.XDim && math.Abs(d.Dot(w)) <= s.YDim
}

// Relative expresses the shape in frame f: translated to the frame origin and
// rotated so the frame heading points along +x.
func (s Shape) Relative(f Frame) Shape {
	r := mgl64.Rotate2D(-f.Angle).Mul2x1(mgl64.Vec2{s.X - f.X, -(s.Y - f.Y)})
	s.X, s.Y = r[0], -r[1]
	s.Angle = Normalize(s.Angle - f.Angle)
	return s
}

// Absolute is the inverse of Relative.
func (s Shape) Absolute(f Frame) Shape {
	r := mgl64.Rotate2D(f.Angle).Mul2x1(mgl64.Vec2{s.X, -s.Y})
	s.X, s.Y = f.X+r[0], f.Y-r[1]
	s.Angle = Normalize(s.Angle + f.Angle)
	return s
}

// Raycast returns the distance along a ray from (ox, oy) with the given heading to
// the first point of the shape, up to maxRange. A ray starting inside hits at 0.
func (s Shape) Raycast(ox, oy, heading, maxRange float64) (float64, bool) {
	local := Point(ox, oy).Relative(s.Frame())
	sin, cos := math.Sincos(heading - s.Angle)
	origin := [2]float64{local.X, local.Y}
	dir := [2]float64{cos, -sin}
	half := [2]float64{s.XDim, s.YDim}

	tmin, tmax := math.Inf(-1), math.Inf(1)
	for i := range 2 {
		if math.Abs(dir[i]) < 1e-12 {
			if origin[i] < -half[i] || origin[i] > half[i] {
				return 0, false
			}
			continue
		}
		t1 := (-half[i] - origin[i]) / dir[i]
		t2 := (half[i] - origin[i]) / dir[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
	}
	if tmax < math.Max(tmin, 0) {
		return 0, false
	}
	t := math.Max(tmin, 0)
	if t > maxRange {
		return 0, false
	}
	return t, true
}
