package entities

import (
	"time"

	"loom-backend/domain/core/valueobjects"
	"loom-backend/domain/events"
	pkgerrors "loom-backend/pkg/errors"
)

// Role identifies who authored a message node
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid reports whether the role is one of the known values
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one node in the conversation forest. A message with a zero
// parent ID is the root of its own tree. Identity and parentage are
// immutable once created; only content (while streaming or while the node
// is still an editable leaf) and the collapsed flag change afterwards.
type Message struct {
	id        valueobjects.NodeID
	parentID  valueobjects.NodeID // zero value means root
	role      Role
	content   valueobjects.MessageContent
	createdAt time.Time
	updatedAt time.Time
	collapsed bool
	streaming bool

	events []events.DomainEvent
}

// NewUserMessage creates a user-authored message under the given parent.
// A zero parentID starts a new tree.
func NewUserMessage(parentID valueobjects.NodeID, content valueobjects.MessageContent) (*Message, error) {
	if content.IsBlank() {
		return nil, pkgerrors.NewValidationError("message content cannot be blank")
	}
	return newMessage(parentID, RoleUser, content, false), nil
}

// NewProvisionalReply creates the empty assistant node the responder
// streams into. It is the only way a message starts with empty content.
func NewProvisionalReply(parentID valueobjects.NodeID) *Message {
	return newMessage(parentID, RoleAssistant, valueobjects.EmptyContent(), true)
}

func newMessage(parentID valueobjects.NodeID, role Role, content valueobjects.MessageContent, streaming bool) *Message {
	now := time.Now()
	m := &Message{
		id:        valueobjects.NewNodeID(),
		parentID:  parentID,
		role:      role,
		content:   content,
		createdAt: now,
		updatedAt: now,
		streaming: streaming,
		events:    []events.DomainEvent{},
	}
	m.addEvent(events.NewMessageAdded(m.id, parentID, string(role), now))
	return m
}

// ReconstructMessage rebuilds a message from stored data with preserved
// timestamps. No creation event is raised.
func ReconstructMessage(
	id valueobjects.NodeID,
	parentID valueobjects.NodeID,
	role Role,
	content valueobjects.MessageContent,
	createdAt, updatedAt time.Time,
	collapsed bool,
) (*Message, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("message ID cannot be empty")
	}
	if !role.IsValid() {
		return nil, pkgerrors.NewValidationError("unknown message role")
	}
	return &Message{
		id:        id,
		parentID:  parentID,
		role:      role,
		content:   content,
		createdAt: createdAt,
		updatedAt: updatedAt,
		collapsed: collapsed,
		events:    []events.DomainEvent{},
	}, nil
}

// ID returns the message's unique identifier
func (m *Message) ID() valueobjects.NodeID {
	return m.id
}

// ParentID returns the parent node's ID; zero for a root
func (m *Message) ParentID() valueobjects.NodeID {
	return m.parentID
}

// IsRoot reports whether the message starts its own tree
func (m *Message) IsRoot() bool {
	return m.parentID.IsZero()
}

// Role returns who authored the message
func (m *Message) Role() Role {
	return m.role
}

// Content returns the message's content
func (m *Message) Content() valueobjects.MessageContent {
	return m.content
}

// CreatedAt returns when the message was created
func (m *Message) CreatedAt() time.Time {
	return m.createdAt
}

// UpdatedAt returns when the message was last changed
func (m *Message) UpdatedAt() time.Time {
	return m.updatedAt
}

// IsCollapsed reports whether the subtree under this message is folded in the UI
func (m *Message) IsCollapsed() bool {
	return m.collapsed
}

// IsStreaming reports whether the responder is still writing into this node
func (m *Message) IsStreaming() bool {
	return m.streaming
}

// AppendContent extends the content with a streamed delta. Only legal while
// the node is the streaming target.
func (m *Message) AppendContent(delta string) error {
	if !m.streaming {
		return pkgerrors.NewConflictError("message is not accepting streamed content")
	}
	next, err := m.content.Append(delta)
	if err != nil {
		return err
	}
	m.content = next
	m.updatedAt = time.Now()
	return nil
}

// FinishStreaming seals the node after the stream's end marker
func (m *Message) FinishStreaming() {
	if !m.streaming {
		return
	}
	m.streaming = false
	m.updatedAt = time.Now()
	m.addEvent(events.NewMessageContentUpdated(m.id, m.content.Text(), m.updatedAt))
}

// FailStreaming replaces the provisional content with the failure text and
// seals the node. External-call failures are surfaced, not swallowed.
func (m *Message) FailStreaming(reason string) {
	m.content, _ = valueobjects.NewMessageContent(reason)
	m.streaming = false
	m.updatedAt = time.Now()
	m.addEvent(events.NewMessageContentUpdated(m.id, m.content.Text(), m.updatedAt))
}

// EditContent rewrites a user message. The caller is responsible for the
// leaf-of-an-unbranched-chain check; the entity only guards role and shape.
func (m *Message) EditContent(content valueobjects.MessageContent) error {
	if m.role != RoleUser {
		return pkgerrors.NewForbiddenError("only user messages can be edited")
	}
	if m.streaming {
		return pkgerrors.NewConflictError("cannot edit a streaming message")
	}
	if content.IsBlank() {
		return pkgerrors.NewValidationError("message content cannot be blank")
	}
	if content.Equals(m.content) {
		return nil
	}
	m.content = content
	m.updatedAt = time.Now()
	m.addEvent(events.NewMessageContentUpdated(m.id, content.Text(), m.updatedAt))
	return nil
}

// SetCollapsed folds or unfolds the subtree under this message
func (m *Message) SetCollapsed(collapsed bool) {
	if m.collapsed == collapsed {
		return
	}
	m.collapsed = collapsed
	m.updatedAt = time.Now()
}

// GetUncommittedEvents returns all uncommitted domain events
func (m *Message) GetUncommittedEvents() []events.DomainEvent {
	return m.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (m *Message) MarkEventsAsCommitted() {
	m.events = []events.DomainEvent{}
}

func (m *Message) addEvent(event events.DomainEvent) {
	m.events = append(m.events, event)
}
