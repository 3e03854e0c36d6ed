package streaming

import (
	"encoding/json"

	"github.com/urbandriving/engine/pkg/core"
)

// Message type constants for episode recording.
const (
	TypeStartEpisode = "start_episode"
	TypeTick         = "tick"
	TypeEndEpisode   = "end_episode"
)

// Message type constants for remote policy evaluation.
const (
	TypeState    = "state"
	TypeEvaluate = "evaluate"
	TypeResult   = "result"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartEpisodePayload registers an episode and its static geometry.
type StartEpisodePayload struct {
	Episode *core.Episode `json:"episode"`
}

// EndEpisodePayload closes an episode.
type EndEpisodePayload struct {
	Summary *core.EpisodeSummary `json:"summary"`
}

// StatePayload replaces the world snapshot that following evaluations run
// against. A new Session discards the remote agents of the previous one.
type StatePayload struct {
	Session uint64          `json:"session"`
	State   json.RawMessage `json:"state"`
}

// EvaluatePayload asks for one policy evaluation against the current snapshot.
type EvaluatePayload struct {
	ID         uint64       `json:"id"`
	Group      string       `json:"group"`
	Index      int          `json:"index"`
	Simplified bool         `json:"simplified,omitempty"`
	Input      *core.Action `json:"input,omitempty"`
}

// ResultPayload answers an EvaluatePayload with the same ID.
type ResultPayload struct {
	ID     uint64      `json:"id"`
	Action core.Action `json:"action"`
	Error  string      `json:"error,omitempty"`
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
