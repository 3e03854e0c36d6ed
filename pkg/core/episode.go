// pkg/core/episode.go
package core

import "time"

// Episode describes one recorded run from reset to termination.
type Episode struct {
	ID        uint              `json:"id"`
	Name      string            `json:"name"`
	StartTime time.Time         `json:"startTime"`
	Seed      int64             `json:"seed"`
	MaxTime   int               `json:"maxTime"`
	Width     float64           `json:"width"`
	Height    float64           `json:"height"`
	Statics   []StaticRecord    `json:"statics"`
	Objects   []ObjectRecord    `json:"objects"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// StaticRecord is a piece of fixed road geometry.
type StaticRecord struct {
	Index int     `json:"index"`
	Kind  string  `json:"kind"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	XDim  float64 `json:"xdim"`
	YDim  float64 `json:"ydim"`
	Angle float64 `json:"angle"`
}

// ObjectRecord registers a dynamic object by its group and index.
type ObjectRecord struct {
	Group string  `json:"group"`
	Index int     `json:"index"`
	Kind  string  `json:"kind"`
	XDim  float64 `json:"xdim"`
	YDim  float64 `json:"ydim"`
}

// ObjectState is one dynamic object's pose after a tick.
type ObjectState struct {
	Group string     `json:"group"`
	Index int        `json:"index"`
	X     float64    `json:"x"`
	Y     float64    `json:"y"`
	Angle float64    `json:"angle"`
	Vel   float64    `json:"vel"`
	Light LightColor `json:"light,omitempty"`
}

// CollisionRecord is one collision observed on a tick. Static is -1 for a pair of
// dynamic objects, otherwise the index of the static geometry hit.
type CollisionRecord struct {
	GroupA string `json:"groupA"`
	IndexA int    `json:"indexA"`
	GroupB string `json:"groupB,omitempty"`
	IndexB int    `json:"indexB,omitempty"`
	Static int    `json:"static"`
}

// TickRecord is everything observed on one tick.
type TickRecord struct {
	EpisodeID  uint              `json:"episodeId"`
	Time       int               `json:"time"`
	Reward     float64           `json:"reward"`
	Done       bool              `json:"done"`
	Actions    []Action          `json:"actions"`
	States     []ObjectState     `json:"states"`
	Collisions []CollisionRecord `json:"collisions,omitempty"`
}

// Termination names why an episode ended.
type Termination string

const (
	TerminationTimeout   Termination = "timeout"
	TerminationCollision Termination = "collision"
	TerminationAborted   Termination = "aborted"
)

// EpisodeSummary closes an episode.
type EpisodeSummary struct {
	EpisodeID   uint        `json:"episodeId"`
	EndTime     time.Time   `json:"endTime"`
	Ticks       int         `json:"ticks"`
	TotalReward float64     `json:"totalReward"`
	Collisions  int         `json:"collisions"`
	Reason      Termination `json:"reason"`
}
