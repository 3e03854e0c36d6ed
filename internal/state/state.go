// Package state holds the authoritative world: static geometry, grouped dynamic
// objects, world dimensions and the tick counter.
package state

import (
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"

	"github.com/urbandriving/engine/internal/object"
	"github.com/urbandriving/engine/internal/trajectory"
	"github.com/urbandriving/engine/pkg/core"
)

var (
	ErrNotEnoughSpawns = errors.New("not enough spawn points")
	ErrSpawnOverlap    = errors.New("spawned objects overlap")
	ErrUnknownRef      = errors.New("unknown object reference")
)

// Group partitions the dynamic objects. Membership never changes during an episode.
type Group uint8

const (
	BackgroundCars Group = iota
	ControlledCars
	TrafficLights
	Pedestrians

	NumGroups
)

var groupNames = [...]string{"background_cars", "controlled_cars", "traffic_lights", "pedestrians"}

func (g Group) String() string {
	if int(g) < len(groupNames) {
		return groupNames[g]
	}
	return fmt.Sprintf("Group(%d)", uint8(g))
}

// ParseGroup is the inverse of Group.String.
func ParseGroup(s string) (Group, error) {
	for i, name := range groupNames {
		if name == s {
			return Group(i), nil
		}
	}
	return 0, fmt.Errorf("unknown group %q", s)
}

// Ref addresses a dynamic object by position. Refs stay valid across Clone.
type Ref struct {
	Group Group `json:"group"`
	Index int   `json:"index"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s[%d]", r.Group, r.Index)
}

// Less orders refs by group, then index.
func (r Ref) Less(o Ref) bool {
	if r.Group != o.Group {
		return r.Group < o.Group
	}
	return r.Index < o.Index
}

// Spawn is a start pose with the routes an object may take from it.
type Spawn struct {
	X      float64                  `json:"x"`
	Y      float64                  `json:"y"`
	Angle  float64                  `json:"angle"`
	Routes []*trajectory.Trajectory `json:"routes"`
}

func (s Spawn) clone() Spawn {
	routes := make([]*trajectory.Trajectory, len(s.Routes))
	for i, r := range s.Routes {
		routes[i] = r.Clone()
	}
	s.Routes = routes
	return s
}

// State is one world snapshot. Statics must not be modified after the first
// collision query: the broad-phase index built from them is shared by clones.
type State struct {
	Width     float64                    `json:"width"`
	Height    float64                    `json:"height"`
	Time      int                        `json:"time"`
	Statics   []object.Static            `json:"statics"`
	Objects   [NumGroups][]object.Object `json:"objects"`
	CarSpawns []Spawn                    `json:"carSpawns,omitempty"`
	PedSpawns []Spawn                    `json:"pedSpawns,omitempty"`

	index *staticIndex
}

// New creates an empty world.
func New(width, height float64, statics []object.Static) *State {
	return &State{Width: width, Height: height, Statics: statics, index: &staticIndex{}}
}

// Add appends an object to a group and returns its ref.
func (s *State) Add(g Group, o object.Object) Ref {
	s.Objects[g] = append(s.Objects[g], o)
	return Ref{Group: g, Index: len(s.Objects[g]) - 1}
}

// Get returns a copy of the referenced object.
func (s *State) Get(r Ref) (object.Object, bool) {
	p := s.At(r)
	if p == nil {
		return object.Object{}, false
	}
	return *p, true
}

// At returns the referenced object for in-place mutation, or nil.
func (s *State) At(r Ref) *object.Object {
	if r.Group >= NumGroups || r.Index < 0 || r.Index >= len(s.Objects[r.Group]) {
		return nil
	}
	return &s.Objects[r.Group][r.Index]
}

// Count returns the number of objects in a group.
func (s *State) Count(g Group) int {
	return len(s.Objects[g])
}

// Refs lists every dynamic object in canonical order: by group, then index.
func (s *State) Refs() []Ref {
	var refs []Ref
	for g := range NumGroups {
		for i := range s.Objects[g] {
			refs = append(refs, Ref{Group: g, Index: i})
		}
	}
	return refs
}

// All iterates the dynamic objects in canonical order.
func (s *State) All() iter.Seq2[Ref, *object.Object] {
	return func(yield func(Ref, *object.Object) bool) {
		for g := range NumGroups {
			for i := range s.Objects[g] {
				if !yield(Ref{Group: g, Index: i}, &s.Objects[g][i]) {
					return
				}
			}
		}
	}
}

// StaticsOf returns the indices of the statics of one kind.
func (s *State) StaticsOf(k object.StaticKind) []int {
	var out []int
	for i, st := range s.Statics {
		if st.Kind == k {
			out = append(out, i)
		}
	}
	return out
}

// Clone returns a deep copy that shares only the static broad-phase index.
func (s *State) Clone() *State {
	c := &State{
		Width:   s.Width,
		Height:  s.Height,
		Time:    s.Time,
		Statics: append([]object.Static(nil), s.Statics...),
		index:   s.staticIndex(),
	}
	for g := range NumGroups {
		if s.Objects[g] == nil {
			continue
		}
		c.Objects[g] = make([]object.Object, len(s.Objects[g]))
		for i, o := range s.Objects[g] {
			c.Objects[g][i] = o.Clone()
		}
	}
	c.CarSpawns = cloneSpawns(s.CarSpawns)
	c.PedSpawns = cloneSpawns(s.PedSpawns)
	return c
}

func cloneSpawns(in []Spawn) []Spawn {
	if in == nil {
		return nil
	}
	out := make([]Spawn, len(in))
	for i, sp := range in {
		out[i] = sp.clone()
	}
	return out
}

func (s *State) staticIndex() *staticIndex {
	if s.index == nil {
		s.index = &staticIndex{}
	}
	return s.index
}

// Randomize moves every car and pedestrian to a distinct random spawn with a random
// route from that spawn, at rest. Lights keep their places. It fails, leaving the
// state untouched, when there are fewer spawns than objects or the chosen poses
// overlap.
func (s *State) Randomize(rng *rand.Rand) error {
	cars := append(append([]Ref(nil), s.refsOf(BackgroundCars)...), s.refsOf(ControlledCars)...)
	if len(cars) > len(s.CarSpawns) {
		return fmt.Errorf("%w: %d cars, %d car spawns", ErrNotEnoughSpawns, len(cars), len(s.CarSpawns))
	}
	peds := s.refsOf(Pedestrians)
	if len(peds) > len(s.PedSpawns) {
		return fmt.Errorf("%w: %d pedestrians, %d pedestrian spawns", ErrNotEnoughSpawns, len(peds), len(s.PedSpawns))
	}

	placed := make(map[Ref]object.Object, len(cars)+len(peds))
	assign := func(refs []Ref, spawns []Spawn) {
		perm := rng.Perm(len(spawns))
		for i, r := range refs {
			sp := spawns[perm[i]]
			o := s.Objects[r.Group][r.Index].Clone()
			o.Shape.X, o.Shape.Y, o.Shape.Angle = sp.X, sp.Y, sp.Angle
			o.Vel = 0
			o.LastAction = core.Null()
			o.Trajectory, o.Destination = nil, nil
			if len(sp.Routes) > 0 {
				o.Follow(sp.Routes[rng.IntN(len(sp.Routes))].Clone())
			}
			placed[r] = o
		}
	}
	assign(cars, s.CarSpawns)
	assign(peds, s.PedSpawns)

	all := append(cars, peds...)
	for i, a := range all {
		for _, b := range all[i+1:] {
			if placed[a].Shape.Intersects(placed[b].Shape) {
				return fmt.Errorf("%w: %s and %s", ErrSpawnOverlap, a, b)
			}
		}
	}
	for r, o := range placed {
		s.Objects[r.Group][r.Index] = o
	}
	return nil
}

func (s *State) refsOf(g Group) []Ref {
	refs := make([]Ref, len(s.Objects[g]))
	for i := range refs {
		refs[i] = Ref{Group: g, Index: i}
	}
	return refs
}
