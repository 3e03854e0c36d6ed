package state

import (
	"math"
	"slices"
	"sync"

	"github.com/urbandriving/engine/internal/object"
)

// DynamicCollision is a colliding pair of dynamic objects, A ordered before B.
type DynamicCollision struct {
	A Ref `json:"a"`
	B Ref `json:"b"`
}

// StaticCollision is a dynamic object touching static geometry it may not touch.
type StaticCollision struct {
	Ref    Ref `json:"ref"`
	Static int `json:"static"`
}

// ControlledCollisions are the collisions attributable to one controlled car.
type ControlledCollisions struct {
	Dynamic []DynamicCollision `json:"dynamic,omitempty"`
	Static  []StaticCollision  `json:"static,omitempty"`
}

// Collisions is the result of one collision query. Both lists are sorted, so equal
// states always produce equal results.
type Collisions struct {
	Dynamic    []DynamicCollision           `json:"dynamic"`
	Static     []StaticCollision            `json:"static"`
	Controlled map[int]ControlledCollisions `json:"controlled"`
}

// Any reports whether anything collided.
func (c Collisions) Any() bool {
	return len(c.Dynamic) > 0 || len(c.Static) > 0
}

// Count is the total number of collisions.
func (c Collisions) Count() int {
	return len(c.Dynamic) + len(c.Static)
}

type box struct {
	ref                    Ref
	minX, minY, maxX, maxY float64
}

// Collisions checks every dynamic pair and every dynamic object against the
// statics. Pairs are found with a sort-and-sweep along x, statics through a
// uniform grid; both are confirmed with the exact separating-axis test.
func (s *State) Collisions() Collisions {
	var boxes []box
	for r, o := range s.All() {
		if o.Kind.IsLight() {
			continue
		}
		b := box{ref: r}
		b.minX, b.minY, b.maxX, b.maxY = o.Shape.Bounds()
		boxes = append(boxes, b)
	}

	out := Collisions{Controlled: map[int]ControlledCollisions{}}
	out.Dynamic = s.sweep(boxes)
	idx := s.staticIndex()
	idx.build(s.Statics)
	for _, b := range boxes {
		o := s.At(b.ref)
		for _, si := range idx.query(b.minX, b.minY, b.maxX, b.maxY) {
			st := s.Statics[si]
			if o.CanCollideStatic(st) && o.Shape.Intersects(st.Shape) {
				out.Static = append(out.Static, StaticCollision{Ref: b.ref, Static: si})
			}
		}
	}
	slices.SortFunc(out.Static, func(a, b StaticCollision) int {
		if a.Ref != b.Ref {
			return compareRefs(a.Ref, b.Ref)
		}
		return a.Static - b.Static
	})

	for _, c := range out.Dynamic {
		for _, r := range [2]Ref{c.A, c.B} {
			if r.Group == ControlledCars {
				cc := out.Controlled[r.Index]
				cc.Dynamic = append(cc.Dynamic, c)
				out.Controlled[r.Index] = cc
			}
		}
	}
	for _, c := range out.Static {
		if c.Ref.Group == ControlledCars {
			cc := out.Controlled[c.Ref.Index]
			cc.Static = append(cc.Static, c)
			out.Controlled[c.Ref.Index] = cc
		}
	}
	return out
}

func (s *State) sweep(boxes []box) []DynamicCollision {
	slices.SortFunc(boxes, func(a, b box) int {
		if a.minX != b.minX {
			if a.minX < b.minX {
				return -1
			}
			return 1
		}
		return compareRefs(a.ref, b.ref)
	})

	var pairs []DynamicCollision
	var active []box
	for _, b := range boxes {
		kept := active[:0]
		for _, a := range active {
			if a.maxX >= b.minX {
				kept = append(kept, a)
			}
		}
		active = kept
		for _, a := range active {
			if a.maxY < b.minY || b.maxY < a.minY {
				continue
			}
			oa, ob := s.At(a.ref), s.At(b.ref)
			if !oa.CanCollide(*ob) || !ob.CanCollide(*oa) || !oa.Shape.Intersects(ob.Shape) {
				continue
			}
			p := DynamicCollision{A: a.ref, B: b.ref}
			if p.B.Less(p.A) {
				p.A, p.B = p.B, p.A
			}
			pairs = append(pairs, p)
		}
		active = append(active, b)
	}
	slices.SortFunc(pairs, func(x, y DynamicCollision) int {
		if x.A != y.A {
			return compareRefs(x.A, y.A)
		}
		return compareRefs(x.B, y.B)
	})
	return pairs
}

func compareRefs(a, b Ref) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

const cellSize = 100.0

// staticIndex buckets static geometry into square cells. It is built once and then
// read concurrently by every clone.
type staticIndex struct {
	once  sync.Once
	cells map[[2]int][]int
}

func (ix *staticIndex) build(statics []object.Static) {
	ix.once.Do(func() {
		ix.cells = make(map[[2]int][]int)
		for i, st := range statics {
			minX, minY, maxX, maxY := st.Shape.Bounds()
			forCells(minX, minY, maxX, maxY, func(c [2]int) {
				ix.cells[c] = append(ix.cells[c], i)
			})
		}
	})
}

// query returns the sorted, distinct statics whose cells overlap the box.
func (ix *staticIndex) query(minX, minY, maxX, maxY float64) []int {
	var out []int
	forCells(minX, minY, maxX, maxY, func(c [2]int) {
		out = append(out, ix.cells[c]...)
	})
	slices.Sort(out)
	return slices.Compact(out)
}

func forCells(minX, minY, maxX, maxY float64, fn func([2]int)) {
	x0, x1 := int(math.Floor(minX/cellSize)), int(math.Floor(maxX/cellSize))
	y0, y1 := int(math.Floor(minY/cellSize)), int(math.Floor(maxY/cellSize))
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			fn([2]int{x, y})
		}
	}
}
