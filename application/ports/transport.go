package ports

import (
	"context"
)

// CursorPosition is a participant's live pointer location on the canvas
type CursorPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PresenceRecord is a participant's broadcast status in a shared session
type PresenceRecord struct {
	ParticipantID string          `json:"participant_id"`
	Name          string          `json:"name"`
	Color         string          `json:"color"`
	Cursor        *CursorPosition `json:"cursor"`
}

// EventHandler receives a broadcast or direct event from a peer
type EventHandler func(senderID string, payload []byte)

// Transport is the publish/subscribe primitive the reconciler runs over,
// plus a presence registry. Delivery is at-most-once with no ordering
// guarantee across peers: Send is fire-and-forget by contract, which is
// why it returns nothing and never fails. The transport is always an
// explicitly injected handle, never a process-global.
type Transport interface {
	// Join subscribes this participant to a channel
	Join(ctx context.Context, channelID string) error

	// Leave departs the current channel
	Leave(ctx context.Context) error

	// Track publishes this participant's presence record
	Track(ctx context.Context, record PresenceRecord) error

	// Presences lists who is currently present on the channel
	Presences() []PresenceRecord

	// Send broadcasts an event to every other participant on the channel
	Send(event string, payload []byte)

	// SendTo delivers an event to a single participant
	SendTo(participantID string, event string, payload []byte)

	// Subscribe registers a handler for an event name
	Subscribe(event string, handler EventHandler)

	// SelfID returns this participant's transport identity
	SelfID() string
}
