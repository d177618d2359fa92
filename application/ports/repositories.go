package ports

import (
	"context"

	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"
)

// ForestRepository is the persistence port for conversation forests.
// The persistence shape (attribute naming, key design) is entirely the
// implementation's concern; the core only ever sees canonical types.
type ForestRepository interface {
	// LoadForest retrieves the full forest for a conversation: messages,
	// reference edges, and the saved position map.
	LoadForest(ctx context.Context, id valueobjects.ConversationID) (*aggregates.Forest, error)

	// AppendMessage persists a newly inserted message
	AppendMessage(ctx context.Context, id valueobjects.ConversationID, msg *entities.Message) error

	// UpdateMessageContent persists the settled text of a message
	UpdateMessageContent(ctx context.Context, id valueobjects.ConversationID, nodeID valueobjects.NodeID, content string) error

	// SetCollapsed persists the collapsed flag of a message
	SetCollapsed(ctx context.Context, id valueobjects.ConversationID, nodeID valueobjects.NodeID, collapsed bool) error

	// DeleteMessages removes a batch of messages, cascading to reference
	// edges and position records touching them
	DeleteMessages(ctx context.Context, id valueobjects.ConversationID, nodeIDs []valueobjects.NodeID) error

	// SaveReference persists a cross-tree reference edge
	SaveReference(ctx context.Context, id valueobjects.ConversationID, ref aggregates.ReferenceEdge) error

	// DeleteReference removes a cross-tree reference edge
	DeleteReference(ctx context.Context, id valueobjects.ConversationID, ref aggregates.ReferenceEdge) error

	// SavePositions persists user-arranged positions as one batch; the
	// caller debounces
	SavePositions(ctx context.Context, id valueobjects.ConversationID, positions map[valueobjects.NodeID]valueobjects.Position) error
}

// CanvasRepository is the persistence port for planning canvases
type CanvasRepository interface {
	// LoadCanvas retrieves the block/edge sets for a canvas
	LoadCanvas(ctx context.Context, id valueobjects.CanvasID) (*aggregates.Canvas, error)

	// SaveCanvas persists the full canvas state
	SaveCanvas(ctx context.Context, canvas *aggregates.Canvas) error
}
