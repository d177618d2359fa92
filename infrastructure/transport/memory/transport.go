package memory

import (
	"context"
	"sync"

	"loom-backend/application/ports"
	pkgerrors "loom-backend/pkg/errors"
)

// Bus is an in-process collaboration transport: every participant lives
// in the same process and frames deliver synchronously. It backs local
// development and the reconciler's tests; semantics match the WebSocket
// hub (at-most-once, no cross-peer ordering guarantee).
type Bus struct {
	mu       sync.RWMutex
	channels map[string]map[string]*Participant // channelID -> participantID
}

// NewBus creates an empty in-memory bus
func NewBus() *Bus {
	return &Bus{channels: make(map[string]map[string]*Participant)}
}

// NewParticipant creates a transport handle for one participant
func (b *Bus) NewParticipant(id string) *Participant {
	return &Participant{
		bus:      b,
		selfID:   id,
		handlers: make(map[string][]ports.EventHandler),
	}
}

// Participant implements ports.Transport for one in-process participant
type Participant struct {
	bus    *Bus
	selfID string

	mu        sync.RWMutex
	channelID string
	handlers  map[string][]ports.EventHandler
	presence  *ports.PresenceRecord
}

// Join subscribes this participant to a channel
func (p *Participant) Join(ctx context.Context, channelID string) error {
	p.mu.Lock()
	p.channelID = channelID
	p.mu.Unlock()

	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()
	members, ok := p.bus.channels[channelID]
	if !ok {
		members = make(map[string]*Participant)
		p.bus.channels[channelID] = members
	}
	if _, exists := members[p.selfID]; exists {
		return pkgerrors.NewConflictError("participant already joined")
	}
	members[p.selfID] = p
	return nil
}

// Leave departs the current channel
func (p *Participant) Leave(ctx context.Context) error {
	p.mu.Lock()
	channelID := p.channelID
	p.channelID = ""
	p.presence = nil
	p.mu.Unlock()

	if channelID == "" {
		return nil
	}
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()
	if members, ok := p.bus.channels[channelID]; ok {
		delete(members, p.selfID)
		if len(members) == 0 {
			delete(p.bus.channels, channelID)
		}
	}
	return nil
}

// Track publishes this participant's presence record
func (p *Participant) Track(ctx context.Context, record ports.PresenceRecord) error {
	record.ParticipantID = p.selfID
	p.mu.Lock()
	p.presence = &record
	p.mu.Unlock()
	return nil
}

// Presences lists who is currently present on the channel
func (p *Participant) Presences() []ports.PresenceRecord {
	p.mu.RLock()
	channelID := p.channelID
	p.mu.RUnlock()

	p.bus.mu.RLock()
	defer p.bus.mu.RUnlock()

	var out []ports.PresenceRecord
	for _, member := range p.bus.channels[channelID] {
		member.mu.RLock()
		if member.presence != nil {
			out = append(out, *member.presence)
		}
		member.mu.RUnlock()
	}
	return out
}

// Send broadcasts an event to every other participant on the channel.
// Fire-and-forget: a participant with no handler simply misses the frame.
func (p *Participant) Send(event string, payload []byte) {
	for _, member := range p.peers() {
		member.deliver(event, p.selfID, payload)
	}
}

// SendTo delivers an event to a single participant
func (p *Participant) SendTo(participantID string, event string, payload []byte) {
	for _, member := range p.peers() {
		if member.selfID == participantID {
			member.deliver(event, p.selfID, payload)
			return
		}
	}
}

// Subscribe registers a handler for an event name
func (p *Participant) Subscribe(event string, handler ports.EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[event] = append(p.handlers[event], handler)
}

// SelfID returns this participant's transport identity
func (p *Participant) SelfID() string {
	return p.selfID
}

func (p *Participant) peers() []*Participant {
	p.mu.RLock()
	channelID := p.channelID
	p.mu.RUnlock()

	p.bus.mu.RLock()
	defer p.bus.mu.RUnlock()

	var out []*Participant
	for id, member := range p.bus.channels[channelID] {
		if id != p.selfID {
			out = append(out, member)
		}
	}
	return out
}

func (p *Participant) deliver(event, senderID string, payload []byte) {
	p.mu.RLock()
	handlers := append([]ports.EventHandler(nil), p.handlers[event]...)
	p.mu.RUnlock()

	for _, handler := range handlers {
		handler(senderID, payload)
	}
}

var _ ports.Transport = (*Participant)(nil)
