package geo

import (
	"errors"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/urbandriving/engine/internal/shape"
	"github.com/urbandriving/engine/pkg/core"
)

// World coordinates are stored unprojected (screen space, y down). Geometry is
// written as WKB so SQLite can round-trip it through the Scan/Value methods.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Point converts a world position to a 2D point.
func Point(x, y float64) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Type: geom.DimXY,
	})
}

// PointFromString parses "x,y" into a point.
func PointFromString(coords string) (geom.Point, error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	return Point(x, y), nil
}

// Position returns the XY of a point. Empty points yield the origin.
func Position(p geom.Point) core.Position2D {
	c, ok := p.Coordinates()
	if !ok {
		return core.Position2D{}
	}
	return core.Position2D{X: c.X, Y: c.Y}
}

// Footprint is the closed outline of an oriented rectangle.
func Footprint(s shape.Shape) geom.Polygon {
	corners := s.Corners()
	flat := make([]float64, 0, 10)
	for _, c := range corners {
		flat = append(flat, c.X(), c.Y())
	}
	flat = append(flat, corners[0].X(), corners[0].Y())
	ring := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	return geom.NewPolygon([]geom.LineString{ring})
}

// Geometry is the footprint of s, or its centre point when s has no extent.
func Geometry(s shape.Shape) geom.Geometry {
	if s.XDim == 0 || s.YDim == 0 {
		return Point(s.X, s.Y).AsGeometry()
	}
	return Footprint(s).AsGeometry()
}

// Bounds is the world rectangle [0,w]x[0,h].
func Bounds(width, height float64) geom.Polygon {
	return Footprint(shape.New(width/2, height/2, width/2, height/2, 0))
}

// Overlaps reports whether two shapes share any point.
func Overlaps(a, b shape.Shape) bool {
	return geom.Intersects(Geometry(a), Geometry(b))
}

// Path joins positions into a line string. Fewer than two points give an empty line.
func Path(points []core.Position2D) geom.LineString {
	if len(points) < 2 {
		return geom.LineString{}
	}
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
}
