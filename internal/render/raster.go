package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/urbandriving/engine/internal/shape"
	"github.com/urbandriving/engine/internal/state"
)

// Raster renders into an in-memory RGBA image of a fixed pixel size.
type Raster struct {
	width, height int

	frame   *image.RGBA
	statics *image.RGBA
	window  Window
}

// NewRaster creates a raster visualizer producing width×height images.
func NewRaster(width, height int) *Raster {
	return &Raster{width: width, height: height}
}

// Render draws s as seen through w. The static layer is reused unless
// rerenderStatics is set or the window changed.
func (r *Raster) Render(s *state.State, w Window, rerenderStatics bool, overlays ...Overlay) error {
	w = w.Resolve(s)
	if r.statics == nil || rerenderStatics || w != r.window {
		r.statics = image.NewRGBA(image.Rect(0, 0, r.width, r.height))
		draw.Draw(r.statics, r.statics.Bounds(), image.NewUniform(rgba(background)), image.Point{}, draw.Src)
		v := r.view(w)
		for _, st := range s.Statics {
			v.fill(r.statics, st.Shape, rgba(st.Shape.Color))
		}
		r.window = w
	}

	if r.frame == nil {
		r.frame = image.NewRGBA(r.statics.Bounds())
	}
	draw.Draw(r.frame, r.frame.Bounds(), r.statics, image.Point{}, draw.Src)

	v := r.view(w)
	for _, o := range s.All() {
		v.fill(r.frame, o.Shape, rgba(objectColor(*o)))
	}
	for _, ov := range overlays {
		v.overlay(r.frame, ov)
	}
	return nil
}

// Bitmap returns the last rendered frame, or nil before the first Render.
func (r *Raster) Bitmap() image.Image {
	if r.frame == nil {
		return nil
	}
	return r.frame
}

// view maps world coordinates inside a window onto pixels.
type view struct {
	w      Window
	sx, sy float64
	bounds image.Rectangle
}

func (r *Raster) view(w Window) view {
	return view{
		w:      w,
		sx:     float64(r.width) / w.Width,
		sy:     float64(r.height) / w.Height,
		bounds: image.Rect(0, 0, r.width, r.height),
	}
}

func (v view) pixel(x, y float64) (int, int) {
	return int(math.Floor((x - v.w.X) * v.sx)), int(math.Floor((y - v.w.Y) * v.sy))
}

func (v view) world(px, py int) (float64, float64) {
	return v.w.X + (float64(px)+0.5)/v.sx, v.w.Y + (float64(py)+0.5)/v.sy
}

// fill paints every pixel whose centre lies inside sh. Shapes smaller than a pixel
// still mark the pixel under their centre.
func (v view) fill(img *image.RGBA, sh shape.Shape, c color.RGBA) {
	minX, minY, maxX, maxY := sh.Bounds()
	x0, y0 := v.pixel(minX, minY)
	x1, y1 := v.pixel(maxX, maxY)
	rect := image.Rect(x0, y0, x1+1, y1+1).Intersect(v.bounds)

	painted := false
	for py := rect.Min.Y; py < rect.Max.Y; py++ {
		for px := rect.Min.X; px < rect.Max.X; px++ {
			if wx, wy := v.world(px, py); sh.Contains(wx, wy) {
				img.SetRGBA(px, py, c)
				painted = true
			}
		}
	}
	if !painted {
		if px, py := v.pixel(sh.X, sh.Y); image.Pt(px, py).In(v.bounds) {
			img.SetRGBA(px, py, c)
		}
	}
}

func (v view) overlay(img *image.RGBA, ov Overlay) {
	c := rgba(ov.Color)
	for i, p := range ov.Points {
		px, py := v.pixel(p.X, p.Y)
		dot := image.Rect(px-1, py-1, px+2, py+2).Intersect(v.bounds)
		draw.Draw(img, dot, image.NewUniform(c), image.Point{}, draw.Src)
		if ov.Connect && i > 0 {
			qx, qy := v.pixel(ov.Points[i-1].X, ov.Points[i-1].Y)
			v.line(img, qx, qy, px, py, c)
		}
	}
}

func (v view) line(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	steps := max(abs(x1-x0), abs(y1-y0))
	for i := 0; i <= steps; i++ {
		t := 0.0
		if steps > 0 {
			t = float64(i) / float64(steps)
		}
		x := x0 + int(math.Round(t*float64(x1-x0)))
		y := y0 + int(math.Round(t*float64(y1-y0)))
		if image.Pt(x, y).In(v.bounds) {
			img.SetRGBA(x, y, c)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
