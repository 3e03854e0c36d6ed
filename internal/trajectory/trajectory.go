// Package trajectory holds ordered, restartable waypoint sequences.
//
// A trajectory's mode names the fields of every point, one letter per field:
//
//	x, y  position
//	v     velocity
//	a     heading
//	t     tick
//	s     steering
//	c     acceleration (control)
//
// "xyv" is a route with target speeds, "sv" a recorded steering/velocity action stream.
package trajectory

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
)

const fieldLetters = "xyvatsc"

var (
	// ErrMode is returned for an empty mode or one with unknown or repeated letters.
	ErrMode = errors.New("invalid trajectory mode")
	// ErrArity is returned when a point does not have one value per mode field.
	ErrArity = errors.New("point arity does not match trajectory mode")
)

// Trajectory is a sequence of points sharing one mode, with a read cursor.
type Trajectory struct {
	mode   string
	points [][]float64
	cursor int
}

// New creates an empty trajectory for the given mode.
func New(mode string) (*Trajectory, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}
	return &Trajectory{mode: mode}, nil
}

// MustNew is New for modes known at compile time.
func MustNew(mode string) *Trajectory {
	t, err := New(mode)
	if err != nil {
		panic(err)
	}
	return t
}

func validateMode(mode string) error {
	if mode == "" {
		return fmt.Errorf("%w: empty", ErrMode)
	}
	for i, r := range mode {
		if !strings.ContainsRune(fieldLetters, r) {
			return fmt.Errorf("%w: unknown field %q", ErrMode, r)
		}
		if strings.ContainsRune(mode[:i], r) {
			return fmt.Errorf("%w: repeated field %q", ErrMode, r)
		}
	}
	return nil
}

// Mode returns the field letters.
func (t *Trajectory) Mode() string {
	return t.mode
}

// Has reports whether the mode carries the given field.
func (t *Trajectory) Has(field byte) bool {
	return strings.IndexByte(t.mode, field) >= 0
}

// AddPoint appends a point. The values are copied.
func (t *Trajectory) AddPoint(values ...float64) error {
	if len(values) != len(t.mode) {
		return fmt.Errorf("%w: mode %q wants %d values, got %d", ErrArity, t.mode, len(t.mode), len(values))
	}
	t.points = append(t.points, append([]float64(nil), values...))
	return nil
}

// NPoints returns the number of points.
func (t *Trajectory) NPoints() int {
	if t == nil {
		return 0
	}
	return len(t.points)
}

// Empty reports whether the trajectory has no points. A nil trajectory is empty.
func (t *Trajectory) Empty() bool {
	return t.NPoints() == 0
}

// Restart moves the cursor back to the first point.
func (t *Trajectory) Restart() {
	t.cursor = 0
}

// Current returns the point under the cursor without advancing.
func (t *Trajectory) Current() ([]float64, bool) {
	if t.cursor >= len(t.points) {
		return nil, false
	}
	return t.points[t.cursor], true
}

// Next returns the point under the cursor and advances it.
func (t *Trajectory) Next() ([]float64, bool) {
	p, ok := t.Current()
	if ok {
		t.cursor++
	}
	return p, ok
}

// Point returns the i-th point.
func (t *Trajectory) Point(i int) []float64 {
	return t.points[i]
}

// Field returns one field of the i-th point.
func (t *Trajectory) Field(i int, field byte) (float64, bool) {
	j := strings.IndexByte(t.mode, field)
	if j < 0 || i < 0 || i >= len(t.points) {
		return 0, false
	}
	return t.points[i][j], true
}

// Points materializes all points as an independent copy.
func (t *Trajectory) Points() [][]float64 {
	out := make([][]float64, len(t.points))
	for i, p := range t.points {
		out[i] = append([]float64(nil), p...)
	}
	return out
}

// All iterates the points lazily, independent of the cursor.
func (t *Trajectory) All() iter.Seq2[int, []float64] {
	return func(yield func(int, []float64) bool) {
		for i, p := range t.points {
			if !yield(i, p) {
				return
			}
		}
	}
}

// Clone returns a deep copy, cursor included.
func (t *Trajectory) Clone() *Trajectory {
	if t == nil {
		return nil
	}
	return &Trajectory{mode: t.mode, points: t.Points(), cursor: t.cursor}
}

type wire struct {
	Mode   string      `json:"mode"`
	Points [][]float64 `json:"points"`
}

// MarshalJSON encodes mode and points. The cursor is not persisted.
func (t *Trajectory) MarshalJSON() ([]byte, error) {
	return json.Marshal(wire{Mode: t.mode, Points: t.points})
}

// UnmarshalJSON decodes and validates mode and arity.
func (t *Trajectory) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if err := validateMode(w.Mode); err != nil {
		return err
	}
	out := Trajectory{mode: w.Mode}
	for _, p := range w.Points {
		if err := out.AddPoint(p...); err != nil {
			return err
		}
	}
	*t = out
	return nil
}
