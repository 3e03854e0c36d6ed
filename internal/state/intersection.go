package state

import (
	"fmt"
	"math"

	"github.com/urbandriving/engine/internal/object"
	"github.com/urbandriving/engine/internal/shape"
	"github.com/urbandriving/engine/internal/trajectory"
	"github.com/urbandriving/engine/pkg/core"
)

// IntersectionConfig sizes the standard four-way intersection scenario.
type IntersectionConfig struct {
	BackgroundCars int
	ControlledCars int
	Pedestrians    int
	TrafficLights  bool
}

// Layout of the four-way intersection. Everything is described for the west arm,
// whose inbound lane carries eastbound traffic, and rotated about the centre for the
// other three arms.
const (
	WorldSize = 1000.0

	center    = WorldSize / 2
	laneHalf  = 50.0
	roadEdge  = center - 2*laneHalf // 400
	walkWidth = 50.0

	routeSpeed = 5.0
	turnSpeed  = 3.0
	walkSpeed  = object.PedestrianMaxVel
	arcPoints  = 6
)

// Spawn offsets along the inbound lane, nearest the junction first.
var spawnX = [...]float64{220, 80}

// NewIntersection builds the four-way intersection. Controlled cars take the first
// spawns, background cars the next ones; every car starts at rest on its straight
// route. Traffic lights start green east-west and red north-south.
func NewIntersection(cfg IntersectionConfig) (*State, error) {
	s := New(WorldSize, WorldSize, intersectionStatics())
	s.CarSpawns = intersectionCarSpawns()
	s.PedSpawns = intersectionPedSpawns()

	if cars := cfg.ControlledCars + cfg.BackgroundCars; cars > len(s.CarSpawns) {
		return nil, fmt.Errorf("%w: %d cars, %d car spawns", ErrNotEnoughSpawns, cars, len(s.CarSpawns))
	}
	if cfg.Pedestrians > len(s.PedSpawns) {
		return nil, fmt.Errorf("%w: %d pedestrians, %d pedestrian spawns", ErrNotEnoughSpawns, cfg.Pedestrians, len(s.PedSpawns))
	}

	next := 0
	place := func(g Group, n int, build func(x, y, a float64) object.Object) {
		for range n {
			sp := s.CarSpawns[next]
			next++
			o := build(sp.X, sp.Y, sp.Angle)
			o.Follow(sp.Routes[0].Clone())
			s.Add(g, o)
		}
	}
	place(ControlledCars, cfg.ControlledCars, object.NewControlledCar)
	place(BackgroundCars, cfg.BackgroundCars, object.NewCar)

	for i := range cfg.Pedestrians {
		sp := s.PedSpawns[i]
		p := object.NewPedestrian(sp.X, sp.Y, sp.Angle)
		p.Follow(sp.Routes[0].Clone())
		s.Add(Pedestrians, p)
	}

	if cfg.TrafficLights {
		for arm := range 4 {
			c := core.LightGreen
			if arm%2 == 1 {
				c = core.LightRed
			}
			x, y, a := armPose(arm, roadEdge-60, center+laneHalf, 0)
			s.Add(TrafficLights, object.NewTrafficLight(x, y, a, c))
		}
		for arm := range 4 {
			// The west crosswalk runs north-south, parallel to the red arms.
			c := core.LightRed
			if arm%2 == 1 {
				c = core.LightWhite
			}
			x, y, a := armPose(arm, roadEdge-walkWidth/2, roadEdge-10, math.Pi/2)
			s.Add(TrafficLights, object.NewCrosswalkLight(x, y, a, c))
		}
	}
	return s, nil
}

// armPose rotates a west-arm pose onto the given arm, counter-clockwise as drawn:
// west, south, east, north.
func armPose(arm int, x, y, angle float64) (float64, float64, float64) {
	rot := float64(arm) * math.Pi / 2
	rx, ry := shape.RotateAbout(x, y, center, center, rot)
	return rx, ry, shape.Normalize(angle + rot)
}

func armStatic(arm int, k object.StaticKind, x, y, xdim, ydim, angle float64) object.Static {
	rx, ry, ra := armPose(arm, x, y, angle)
	return object.NewStatic(k, rx, ry, xdim, ydim, ra)
}

func intersectionStatics() []object.Static {
	armLen := roadEdge / 2
	terrain := (roadEdge - walkWidth) / 2
	statics := []object.Static{
		object.NewStatic(object.Street, center, center, 2*laneHalf, 2*laneHalf, 0),
	}
	for arm := range 4 {
		statics = append(statics,
			armStatic(arm, object.Lane, armLen, center+laneHalf, armLen, laneHalf, 0),
			armStatic(arm, object.Lane, armLen, center-laneHalf, armLen, laneHalf, math.Pi),
			armStatic(arm, object.Sidewalk, armLen, roadEdge-walkWidth/2, armLen, walkWidth/2, 0),
			armStatic(arm, object.Sidewalk, armLen, WorldSize-roadEdge+walkWidth/2, armLen, walkWidth/2, 0),
			armStatic(arm, object.Terrain, terrain, terrain, terrain, terrain, 0),
			armStatic(arm, object.Crosswalk, roadEdge-walkWidth/2, center, 2*laneHalf, walkWidth/2, math.Pi/2),
		)
	}
	return statics
}

// intersectionCarSpawns interleaves the arms so that small car counts spread over
// the junction: all near spawns first, then all far ones.
func intersectionCarSpawns() []Spawn {
	var spawns []Spawn
	for _, x := range spawnX {
		for arm := range 4 {
			sx, sy, sa := armPose(arm, x, center+laneHalf, 0)
			spawns = append(spawns, Spawn{
				X: sx, Y: sy, Angle: sa,
				Routes: []*trajectory.Trajectory{
					armRoute(arm, straightRoute()),
					armRoute(arm, leftRoute()),
					armRoute(arm, rightRoute()),
				},
			})
		}
	}
	return spawns
}

func intersectionPedSpawns() []Spawn {
	var spawns []Spawn
	x := roadEdge - walkWidth/2
	for arm := range 4 {
		sx, sy, sa := armPose(arm, x, roadEdge-walkWidth/2-10, -math.Pi/2)
		ex, ey, _ := armPose(arm, x, WorldSize-roadEdge+walkWidth/2+10, 0)
		route := trajectory.MustNew("xyv")
		_ = route.AddPoint(ex, ey, walkSpeed)
		spawns = append(spawns, Spawn{X: sx, Y: sy, Angle: sa, Routes: []*trajectory.Trajectory{route}})
	}
	return spawns
}

// Routes for an eastbound car on the west arm, as (x, y, v) points.

func straightRoute() [][3]float64 {
	y := center + laneHalf
	return [][3]float64{{roadEdge, y, routeSpeed}, {WorldSize - roadEdge, y, routeSpeed}, {WorldSize - 20, y, routeSpeed}}
}

// rightRoute turns south around the south-west corner of the junction.
func rightRoute() [][3]float64 {
	r := laneHalf
	pts := arc(roadEdge, center+2*laneHalf, func(phi float64) (float64, float64) {
		return r * math.Sin(phi), -r * math.Cos(phi)
	})
	return append(pts, [3]float64{center - laneHalf, WorldSize - 20, routeSpeed})
}

// leftRoute crosses the junction and leaves north on the outbound (northbound)
// lane of the north arm.
func leftRoute() [][3]float64 {
	r := 3 * laneHalf
	pts := arc(roadEdge, roadEdge, func(phi float64) (float64, float64) {
		return r * math.Sin(phi), r * math.Cos(phi)
	})
	return append(pts, [3]float64{center + laneHalf, 20, routeSpeed})
}

// arc samples a quarter circle about (cx, cy); offset maps the sweep angle to the
// point's offset from the centre.
func arc(cx, cy float64, offset func(phi float64) (float64, float64)) [][3]float64 {
	pts := make([][3]float64, 0, arcPoints+1)
	for i := range arcPoints + 1 {
		dx, dy := offset(float64(i) / arcPoints * math.Pi / 2)
		v := turnSpeed
		if i == 0 {
			v = routeSpeed
		}
		pts = append(pts, [3]float64{cx + dx, cy + dy, v})
	}
	return pts
}

func armRoute(arm int, pts [][3]float64) *trajectory.Trajectory {
	t := trajectory.MustNew("xyv")
	for _, p := range pts {
		x, y, _ := armPose(arm, p[0], p[1], 0)
		_ = t.AddPoint(x, y, p[2])
	}
	return t
}
