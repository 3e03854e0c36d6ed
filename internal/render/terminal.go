package render

import (
	"image"

	"github.com/gdamore/tcell/v2"

	"github.com/urbandriving/engine/internal/object"
	"github.com/urbandriving/engine/internal/shape"
	"github.com/urbandriving/engine/internal/state"
)

// Terminal renders onto a tcell screen, one cell per block of world units. The
// screen's current size is used on every Render.
type Terminal struct {
	screen tcell.Screen

	statics [][]tcell.Style
	window  Window
	w, h    int
}

// NewTerminal wraps an initialised screen.
func NewTerminal(screen tcell.Screen) *Terminal {
	return &Terminal{screen: screen}
}

var glyphs = map[object.Kind]rune{
	object.Car:            'C',
	object.Pedestrian:     'p',
	object.TrafficLight:   'o',
	object.CrosswalkLight: '+',
}

const (
	controlledGlyph = '@'
	overlayGlyph    = '.'
)

func tcellColor(c shape.Color) tcell.Color {
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}

// Render draws s through w and shows the screen.
func (t *Terminal) Render(s *state.State, w Window, rerenderStatics bool, overlays ...Overlay) error {
	w = w.Resolve(s)
	cols, rows := t.screen.Size()
	if cols == 0 || rows == 0 {
		return nil
	}
	v := view{w: w, sx: float64(cols) / w.Width, sy: float64(rows) / w.Height, bounds: image.Rect(0, 0, cols, rows)}

	if t.statics == nil || rerenderStatics || w != t.window || cols != t.w || rows != t.h {
		t.statics = make([][]tcell.Style, rows)
		for y := range rows {
			t.statics[y] = make([]tcell.Style, cols)
			for x := range cols {
				t.statics[y][x] = tcell.StyleDefault.Background(tcellColor(background))
				wx, wy := v.world(x, y)
				for _, st := range s.Statics {
					if st.Shape.Contains(wx, wy) {
						t.statics[y][x] = tcell.StyleDefault.Background(tcellColor(st.Shape.Color))
					}
				}
			}
		}
		t.window, t.w, t.h = w, cols, rows
	}

	for y := range rows {
		for x := range cols {
			t.screen.SetContent(x, y, ' ', nil, t.statics[y][x])
		}
	}
	for ref, o := range s.All() {
		g := glyphs[o.Kind]
		if ref.Group == state.ControlledCars {
			g = controlledGlyph
		}
		t.put(v, o.Shape.X, o.Shape.Y, g, objectColor(*o))
	}
	for _, ov := range overlays {
		for _, p := range ov.Points {
			t.put(v, p.X, p.Y, overlayGlyph, ov.Color)
		}
	}
	t.screen.Show()
	return nil
}

func (t *Terminal) put(v view, x, y float64, g rune, c shape.Color) {
	cx, cy := v.pixel(x, y)
	if !image.Pt(cx, cy).In(v.bounds) {
		return
	}
	t.screen.SetContent(cx, cy, g, nil, t.statics[cy][cx].Foreground(tcellColor(c)))
}

// Bitmap returns the screen as an image with one pixel per cell: the glyph colour
// where a glyph is drawn, the background otherwise.
func (t *Terminal) Bitmap() image.Image {
	cols, rows := t.screen.Size()
	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for y := range rows {
		for x := range cols {
			mainc, _, style, _ := t.screen.GetContent(x, y)
			fg, bg, _ := style.Decompose()
			c := bg
			if mainc != ' ' && mainc != 0 {
				c = fg
			}
			r, g, b := c.RGB()
			if r < 0 {
				continue
			}
			img.SetRGBA(x, y, rgba(shape.RGB(uint8(r), uint8(g), uint8(b))))
		}
	}
	return img
}
