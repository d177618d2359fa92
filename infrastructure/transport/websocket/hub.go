package websocket

import (
	"encoding/json"
	"sync"

	"loom-backend/application/ports"

	"go.uber.org/zap"
)

// Envelope is the wire format for every collaboration frame. A non-empty
// TargetID makes the frame a direct delivery instead of a broadcast.
type Envelope struct {
	Event    string          `json:"event"`
	SenderID string          `json:"sender_id"`
	TargetID string          `json:"target_id,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// Event names the hub itself understands. Everything else is relayed
// opaquely to the channel's other participants.
const (
	eventPresenceTrack = "presence_track"
	eventPresenceState = "presence_state"
)

// Hub relays collaboration frames between the participants of each
// channel and keeps the per-channel presence registry. The hub never
// interprets canvas operations; convergence is the participants' job.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame
	stop       chan struct{}

	mu       sync.RWMutex
	channels map[string]*channel

	logger *zap.Logger
}

type inboundFrame struct {
	client *Client
	data   []byte
}

type channel struct {
	clients   map[string]*Client // keyed by participant ID
	presences map[string]ports.PresenceRecord
}

// NewHub creates a new hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame, 256),
		stop:       make(chan struct{}),
		channels:   make(map[string]*channel),
		logger:     logger,
	}
}

// Run processes registration and frame relay until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case frame := <-h.inbound:
			h.route(frame)
		case <-h.stop:
			h.closeAll()
			return
		}
	}
}

// Stop shuts the hub down and closes every connection
func (h *Hub) Stop() {
	close(h.stop)
}

// Presences returns the current presence records of a channel
func (h *Hub) Presences(channelID string) []ports.PresenceRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ch, ok := h.channels[channelID]
	if !ok {
		return nil
	}
	out := make([]ports.PresenceRecord, 0, len(ch.presences))
	for _, record := range ch.presences {
		out = append(out, record)
	}
	return out
}

// ParticipantCount returns how many participants a channel has
func (h *Hub) ParticipantCount(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ch, ok := h.channels[channelID]
	if !ok {
		return 0
	}
	return len(ch.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	ch, ok := h.channels[client.channelID]
	if !ok {
		ch = &channel{
			clients:   make(map[string]*Client),
			presences: make(map[string]ports.PresenceRecord),
		}
		h.channels[client.channelID] = ch
	}
	if existing, ok := ch.clients[client.participantID]; ok {
		// A reconnect replaces the stale connection.
		close(existing.send)
	}
	ch.clients[client.participantID] = client
	h.mu.Unlock()

	h.logger.Info("Participant joined channel",
		zap.String("channelID", client.channelID),
		zap.String("participantID", client.participantID),
	)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	ch, ok := h.channels[client.channelID]
	if ok {
		if current, present := ch.clients[client.participantID]; present && current == client {
			delete(ch.clients, client.participantID)
			delete(ch.presences, client.participantID)
			close(client.send)
		}
		if len(ch.clients) == 0 {
			delete(h.channels, client.channelID)
		}
	}
	h.mu.Unlock()

	if ok {
		h.broadcastPresence(client.channelID)
		h.logger.Info("Participant left channel",
			zap.String("channelID", client.channelID),
			zap.String("participantID", client.participantID),
		)
	}
}

// route relays one frame. Presence frames update the registry and fan the
// full presence state back out; everything else passes through untouched.
func (h *Hub) route(frame inboundFrame) {
	var env Envelope
	if err := json.Unmarshal(frame.data, &env); err != nil {
		h.logger.Warn("Dropping malformed frame",
			zap.String("participantID", frame.client.participantID),
			zap.Error(err),
		)
		return
	}
	// The sender identity comes from the authenticated connection, not
	// from the frame.
	env.SenderID = frame.client.participantID

	if env.Event == eventPresenceTrack {
		h.trackPresence(frame.client, env.Payload)
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if env.TargetID != "" {
		h.sendTo(frame.client.channelID, env.TargetID, data)
		return
	}
	h.broadcast(frame.client.channelID, env.SenderID, data)
}

func (h *Hub) trackPresence(client *Client, payload json.RawMessage) {
	var record ports.PresenceRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		h.logger.Warn("Dropping malformed presence record", zap.Error(err))
		return
	}
	record.ParticipantID = client.participantID

	h.mu.Lock()
	if ch, ok := h.channels[client.channelID]; ok {
		ch.presences[client.participantID] = record
	}
	h.mu.Unlock()

	h.broadcastPresence(client.channelID)
}

// broadcastPresence pushes the full presence state to everyone on the
// channel, sender included, so every participant renders the same roster.
func (h *Hub) broadcastPresence(channelID string) {
	records := h.Presences(channelID)
	payload, err := json.Marshal(records)
	if err != nil {
		return
	}
	data, err := json.Marshal(Envelope{
		Event:   eventPresenceState,
		Payload: payload,
	})
	if err != nil {
		return
	}
	h.broadcast(channelID, "", data)
}

// Broadcast pushes a server-originated event to every participant on a
// channel. Streamed reply fragments fan out through here.
func (h *Hub) Broadcast(channelID, event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast payload",
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}
	data, err := json.Marshal(Envelope{
		Event:   event,
		Payload: raw,
	})
	if err != nil {
		return
	}
	h.broadcast(channelID, "", data)
}

// broadcast delivers to every participant except excludeID. A participant
// whose send buffer is full is dropped rather than allowed to stall the
// channel.
func (h *Hub) broadcast(channelID, excludeID string, data []byte) {
	h.mu.RLock()
	ch, ok := h.channels[channelID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	var stalled []*Client
	for participantID, client := range ch.clients {
		if participantID == excludeID {
			continue
		}
		select {
		case client.send <- data:
		default:
			stalled = append(stalled, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range stalled {
		h.logger.Warn("Dropping stalled participant",
			zap.String("channelID", channelID),
			zap.String("participantID", client.participantID),
		)
		h.removeClient(client)
	}
}

func (h *Hub) sendTo(channelID, participantID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ch, ok := h.channels[channelID]
	if !ok {
		return
	}
	client, ok := ch.clients[participantID]
	if !ok {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for channelID, ch := range h.channels {
		for _, client := range ch.clients {
			close(client.send)
		}
		delete(h.channels, channelID)
	}
}
