package domain

import (
	"encoding/json"
	"time"
)

// Event is an immutable fact emitted by the forum application (post created,
// comment created, ...). Events are transient inputs to the dispatcher and
// are never persisted here; the payload shape is owned by the emitter.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
