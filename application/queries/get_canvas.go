package queries

import (
	"context"
	"errors"
	"time"

	"loom-backend/application/ports"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"

	"go.uber.org/zap"
)

// GetCanvasQuery fetches the persisted snapshot of a shared planning
// canvas. Joining participants seed their local reconciler state from it
// before live sync takes over.
type GetCanvasQuery struct {
	CanvasID string `json:"canvas_id" validate:"required"`
}

// Validate validates the query
func (q GetCanvasQuery) Validate() error {
	if q.CanvasID == "" {
		return errors.New("canvas ID is required")
	}
	return nil
}

// CanvasView is the persisted state of one canvas
type CanvasView struct {
	CanvasID  string                   `json:"canvas_id"`
	Blocks    []*aggregates.Block      `json:"blocks"`
	Edges     []*aggregates.CanvasEdge `json:"edges"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// GetCanvasHandler handles the GetCanvasQuery
type GetCanvasHandler struct {
	canvasRepo ports.CanvasRepository
	logger     *zap.Logger
}

// NewGetCanvasHandler creates a new handler instance
func NewGetCanvasHandler(canvasRepo ports.CanvasRepository, logger *zap.Logger) *GetCanvasHandler {
	return &GetCanvasHandler{canvasRepo: canvasRepo, logger: logger}
}

// Handle executes the get canvas query
func (h *GetCanvasHandler) Handle(ctx context.Context, q GetCanvasQuery) (*CanvasView, error) {
	canvas, err := h.canvasRepo.LoadCanvas(ctx, valueobjects.CanvasID(q.CanvasID))
	if err != nil {
		return nil, err
	}

	blocks := canvas.Blocks()
	if blocks == nil {
		blocks = []*aggregates.Block{}
	}
	edges := canvas.Edges()
	if edges == nil {
		edges = []*aggregates.CanvasEdge{}
	}

	return &CanvasView{
		CanvasID:  canvas.ID().String(),
		Blocks:    blocks,
		Edges:     edges,
		UpdatedAt: canvas.UpdatedAt(),
	}, nil
}
