package events

import (
	"time"

	"loom-backend/domain/core/valueobjects"
)

// MessageAdded is raised when a new message node joins the forest
type MessageAdded struct {
	BaseEvent
	NodeID   valueobjects.NodeID `json:"node_id"`
	ParentID valueobjects.NodeID `json:"parent_id"`
	Role     string              `json:"role"`
}

// NewMessageAdded creates a MessageAdded event
func NewMessageAdded(nodeID, parentID valueobjects.NodeID, role string, timestamp time.Time) MessageAdded {
	return MessageAdded{
		BaseEvent: BaseEvent{
			AggregateID: nodeID.String(),
			EventType:   "message.added",
			Timestamp:   timestamp,
			Version:     1,
		},
		NodeID:   nodeID,
		ParentID: parentID,
		Role:     role,
	}
}

// MessageContentUpdated is raised when a message's text settles (stream end
// or user edit)
type MessageContentUpdated struct {
	BaseEvent
	NodeID  valueobjects.NodeID `json:"node_id"`
	Content string              `json:"content"`
}

// NewMessageContentUpdated creates a MessageContentUpdated event
func NewMessageContentUpdated(nodeID valueobjects.NodeID, content string, timestamp time.Time) MessageContentUpdated {
	return MessageContentUpdated{
		BaseEvent: BaseEvent{
			AggregateID: nodeID.String(),
			EventType:   "message.content_updated",
			Timestamp:   timestamp,
			Version:     1,
		},
		NodeID:  nodeID,
		Content: content,
	}
}

// SubtreeDeleted is raised when a node and all its descendants are removed
type SubtreeDeleted struct {
	BaseEvent
	ConversationID valueobjects.ConversationID `json:"conversation_id"`
	RootNodeID     valueobjects.NodeID         `json:"root_node_id"`
	RemovedIDs     []valueobjects.NodeID       `json:"removed_ids"`
}

// NewSubtreeDeleted creates a SubtreeDeleted event
func NewSubtreeDeleted(conversationID valueobjects.ConversationID, rootNodeID valueobjects.NodeID, removed []valueobjects.NodeID, timestamp time.Time) SubtreeDeleted {
	return SubtreeDeleted{
		BaseEvent: BaseEvent{
			AggregateID: conversationID.String(),
			EventType:   "forest.subtree_deleted",
			Timestamp:   timestamp,
			Version:     1,
		},
		ConversationID: conversationID,
		RootNodeID:     rootNodeID,
		RemovedIDs:     removed,
	}
}

// ReferenceAdded is raised when a cross-tree reference edge is recorded
type ReferenceAdded struct {
	BaseEvent
	ConversationID valueobjects.ConversationID `json:"conversation_id"`
	SourceID       valueobjects.NodeID         `json:"source_id"`
	TargetID       valueobjects.NodeID         `json:"target_id"`
	CycleWarning   bool                        `json:"cycle_warning"`
}

// NewReferenceAdded creates a ReferenceAdded event
func NewReferenceAdded(conversationID valueobjects.ConversationID, sourceID, targetID valueobjects.NodeID, cycleWarning bool, timestamp time.Time) ReferenceAdded {
	return ReferenceAdded{
		BaseEvent: BaseEvent{
			AggregateID: conversationID.String(),
			EventType:   "forest.reference_added",
			Timestamp:   timestamp,
			Version:     1,
		},
		ConversationID: conversationID,
		SourceID:       sourceID,
		TargetID:       targetID,
		CycleWarning:   cycleWarning,
	}
}

// PositionsSaved is raised when user-arranged positions are persisted
type PositionsSaved struct {
	BaseEvent
	ConversationID valueobjects.ConversationID `json:"conversation_id"`
	NodeCount      int                         `json:"node_count"`
}

// NewPositionsSaved creates a PositionsSaved event
func NewPositionsSaved(conversationID valueobjects.ConversationID, nodeCount int, timestamp time.Time) PositionsSaved {
	return PositionsSaved{
		BaseEvent: BaseEvent{
			AggregateID: conversationID.String(),
			EventType:   "forest.positions_saved",
			Timestamp:   timestamp,
			Version:     1,
		},
		ConversationID: conversationID,
		NodeCount:      nodeCount,
	}
}
