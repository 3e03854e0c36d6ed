package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Episode{},
	&StaticGeometry{},
	&EpisodeObject{},
	&Tick{},
	&ObjectState{},
	&Collision{},
}

////////////////////////
// EPISODES
////////////////////////

// Episode is one run from reset to termination
type Episode struct {
	gorm.Model
	Name      string         `json:"name" gorm:"size:200"`
	StartTime time.Time      `json:"startTime" gorm:"type:timestamptz;index:idx_episode_start"`
	EndTime   *time.Time     `json:"endTime" gorm:"type:timestamptz"`
	Seed      int64          `json:"seed"`
	MaxTime   int            `json:"maxTime"`
	Width     float64        `json:"width"`
	Height    float64        `json:"height"`
	Bounds    geom.Geometry  `json:"-"` // world rectangle
	Tags      datatypes.JSON `json:"tags"`

	// Filled in when the episode ends
	Ticks       int     `json:"ticks"`
	TotalReward float64 `json:"totalReward"`
	Collisions  int     `json:"collisions"`
	Reason      string  `json:"reason" gorm:"size:32"`

	Statics []StaticGeometry
	Objects []EpisodeObject
}

func (*Episode) TableName() string {
	return "episodes"
}

// StaticGeometry is a piece of fixed road geometry of an episode
type StaticGeometry struct {
	ID        uint          `json:"id" gorm:"primarykey;autoIncrement;"`
	EpisodeID uint          `json:"episodeId" gorm:"index:idx_static_episode_id"`
	Index     int           `json:"index" gorm:"column:static_index"`
	Kind      string        `json:"kind" gorm:"size:32"`
	X         float64       `json:"x"`
	Y         float64       `json:"y"`
	XDim      float64       `json:"xdim"`
	YDim      float64       `json:"ydim"`
	Angle     float64       `json:"angle"`
	Footprint geom.Geometry `json:"-"` // polygon outline
}

func (*StaticGeometry) TableName() string {
	return "static_geometries"
}

// EpisodeObject registers a dynamic object of an episode
type EpisodeObject struct {
	ID        uint    `json:"id" gorm:"primarykey;autoIncrement;"`
	EpisodeID uint    `json:"episodeId" gorm:"index:idx_object_episode_id"`
	Group     string  `json:"group" gorm:"column:object_group;size:32"`
	Index     int     `json:"index" gorm:"column:object_index"`
	Kind      string  `json:"kind" gorm:"size:32"`
	XDim      float64 `json:"xdim"`
	YDim      float64 `json:"ydim"`
}

func (*EpisodeObject) TableName() string {
	return "episode_objects"
}

////////////////////////
// TIME SERIES
////////////////////////

// Tick is the reward and termination of one tick
type Tick struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"type:timestamptz;"` // wall time when recorded
	EpisodeID uint      `json:"episodeId" gorm:"index:idx_tick_episode_id"`
	Episode   Episode   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:EpisodeID;"`
	Frame     int       `json:"frame" gorm:"index:idx_tick_frame"`
	Reward    float64   `json:"reward"`
	Done      bool      `json:"done" gorm:"default:false"`
}

func (*Tick) TableName() string {
	return "ticks"
}

// ObjectState is one dynamic object's pose after a tick
type ObjectState struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	EpisodeID uint           `json:"episodeId" gorm:"index:idx_objectstate_episode_id"`
	Episode   Episode        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:EpisodeID;"`
	Frame     int            `json:"frame" gorm:"index:idx_objectstate_frame"`
	Group     string         `json:"group" gorm:"column:object_group;size:32"`
	Index     int            `json:"index" gorm:"column:object_index"`
	Position  geom.Point     `json:"position"`
	Angle     float64        `json:"angle"`
	Vel       float64        `json:"vel"`
	Light     string         `json:"light" gorm:"size:16"`
	Action    datatypes.JSON `json:"action"`
}

func (*ObjectState) TableName() string {
	return "object_states"
}

// Collision is one collision observed on a tick. Static is -1 for a pair of
// dynamic objects.
type Collision struct {
	ID        uint    `json:"id" gorm:"primarykey;autoIncrement;"`
	EpisodeID uint    `json:"episodeId" gorm:"index:idx_collision_episode_id"`
	Episode   Episode `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:EpisodeID;"`
	Frame     int     `json:"frame"`
	GroupA    string  `json:"groupA" gorm:"size:32"`
	IndexA    int     `json:"indexA"`
	GroupB    string  `json:"groupB" gorm:"size:32"`
	IndexB    int     `json:"indexB"`
	Static    int     `json:"static"`
}

func (*Collision) TableName() string {
	return "collisions"
}
