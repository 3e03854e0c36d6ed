// Package v1 contains the v1 export format for recorded episodes.
package v1

// FormatVersion is written into every export.
const FormatVersion = 1

// Export is the root JSON structure for v1 format
type Export struct {
	FormatVersion int       `json:"formatVersion"`
	EpisodeID     uint      `json:"episodeId"`
	EpisodeName   string    `json:"episodeName"`
	Seed          int64     `json:"seed"`
	StartTime     string    `json:"startTime"`
	EndTime       string    `json:"endTime,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	EndFrame      int       `json:"endFrame"`
	MaxTime       int       `json:"maxTime"`
	Width         float64   `json:"width"`
	Height        float64   `json:"height"`
	TotalReward   float64   `json:"totalReward"`
	Tags          string    `json:"tags"`
	Statics       [][]any   `json:"statics"`
	Entities      []Entity  `json:"entities"`
	Events        [][]any   `json:"events"`
	Rewards       []float64 `json:"rewards"`
}

// Entity is one dynamic object. Entities are indexed by ID.
type Entity struct {
	ID    int     `json:"id"`
	Group string  `json:"group"`
	Index int     `json:"index"`
	Kind  string  `json:"kind"`
	XDim  float64 `json:"xdim"`
	YDim  float64 `json:"ydim"`
	// Positions has one entry per frame: [[x, y], angle, vel, light, action]
	Positions [][]any `json:"positions"`
}
