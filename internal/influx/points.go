package influx

import (
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/urbandriving/engine/pkg/core"
)

// Measurement names.
const (
	MeasurementTick        = "tick"
	MeasurementObjectState = "object_state"
	MeasurementCollision   = "collision"
	MeasurementEpisode     = "episode"
)

const lightGroup = "traffic_lights"

// TickPoints converts one tick into a tick point, one point per object and one
// per collision. All points share ts.
func TickPoints(episode string, t *core.TickRecord, ts time.Time) []*influxdb2_write.Point {
	points := make([]*influxdb2_write.Point, 0, 1+len(t.States)+len(t.Collisions))
	points = append(points, influxdb2.NewPoint(MeasurementTick,
		map[string]string{"episode": episode},
		map[string]any{
			"frame":      t.Time,
			"reward":     t.Reward,
			"done":       t.Done,
			"objects":    len(t.States),
			"collisions": len(t.Collisions),
		},
		ts))

	for i, s := range t.States {
		fields := map[string]any{
			"frame": t.Time,
			"x":     s.X,
			"y":     s.Y,
			"angle": s.Angle,
			"vel":   s.Vel,
		}
		if i < len(t.Actions) {
			fields["action"] = t.Actions[i].Kind.String()
		}
		if s.Group == lightGroup {
			fields["light"] = s.Light.String()
		}
		points = append(points, influxdb2.NewPoint(MeasurementObjectState,
			map[string]string{
				"episode": episode,
				"group":   s.Group,
				"index":   strconv.Itoa(s.Index),
			},
			fields, ts))
	}

	for _, c := range t.Collisions {
		tags := map[string]string{
			"episode": episode,
			"group_a": c.GroupA,
		}
		if c.Static < 0 {
			tags["group_b"] = c.GroupB
		}
		points = append(points, influxdb2.NewPoint(MeasurementCollision, tags,
			map[string]any{
				"frame":   t.Time,
				"index_a": c.IndexA,
				"index_b": c.IndexB,
				"static":  c.Static,
			},
			ts))
	}
	return points
}

// SummaryPoint records how an episode ended.
func SummaryPoint(episode string, s *core.EpisodeSummary) *influxdb2_write.Point {
	ts := s.EndTime
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2.NewPoint(MeasurementEpisode,
		map[string]string{
			"episode": episode,
			"reason":  string(s.Reason),
		},
		map[string]any{
			"ticks":        s.Ticks,
			"total_reward": s.TotalReward,
			"collisions":   s.Collisions,
		},
		ts)
}
