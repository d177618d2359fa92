package events

import (
	"time"

	"loom-backend/domain/core/valueobjects"
)

// CanvasBlockChanged is raised for block add/update/delete on the planning canvas
type CanvasBlockChanged struct {
	BaseEvent
	CanvasID valueobjects.CanvasID `json:"canvas_id"`
	BlockID  string                `json:"block_id"`
	Change   string                `json:"change"` // add, update, delete
}

// NewCanvasBlockChanged creates a CanvasBlockChanged event
func NewCanvasBlockChanged(canvasID valueobjects.CanvasID, blockID, change string, timestamp time.Time) CanvasBlockChanged {
	return CanvasBlockChanged{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   "canvas.block_" + change,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID: canvasID,
		BlockID:  blockID,
		Change:   change,
	}
}

// CanvasEdgeChanged is raised for edge add/delete on the planning canvas
type CanvasEdgeChanged struct {
	BaseEvent
	CanvasID valueobjects.CanvasID `json:"canvas_id"`
	EdgeID   string                `json:"edge_id"`
	Change   string                `json:"change"`
}

// NewCanvasEdgeChanged creates a CanvasEdgeChanged event
func NewCanvasEdgeChanged(canvasID valueobjects.CanvasID, edgeID, change string, timestamp time.Time) CanvasEdgeChanged {
	return CanvasEdgeChanged{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   "canvas.edge_" + change,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID: canvasID,
		EdgeID:   edgeID,
		Change:   change,
	}
}
