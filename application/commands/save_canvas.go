package commands

import (
	"context"
	"errors"

	"loom-backend/application/ports"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"

	"go.uber.org/zap"
)

// SaveCanvasCommand persists the full state of a shared planning canvas.
// The reconciler converges state in memory; persistence is a periodic
// whole-canvas snapshot, not per-operation.
type SaveCanvasCommand struct {
	CanvasID string                   `json:"canvas_id" validate:"required"`
	Blocks   []*aggregates.Block      `json:"blocks"`
	Edges    []*aggregates.CanvasEdge `json:"edges"`
}

// Validate validates the command
func (cmd SaveCanvasCommand) Validate() error {
	if cmd.CanvasID == "" {
		return errors.New("canvas ID is required")
	}
	return nil
}

// SaveCanvasHandler handles the SaveCanvasCommand
type SaveCanvasHandler struct {
	canvasRepo ports.CanvasRepository
	logger     *zap.Logger
}

// NewSaveCanvasHandler creates a new handler instance
func NewSaveCanvasHandler(canvasRepo ports.CanvasRepository, logger *zap.Logger) *SaveCanvasHandler {
	return &SaveCanvasHandler{canvasRepo: canvasRepo, logger: logger}
}

// Handle executes the save canvas command
func (h *SaveCanvasHandler) Handle(ctx context.Context, cmd SaveCanvasCommand) error {
	canvas, err := aggregates.ReconstructCanvas(valueobjects.CanvasID(cmd.CanvasID), cmd.Blocks, cmd.Edges)
	if err != nil {
		return err
	}
	if err := h.canvasRepo.SaveCanvas(ctx, canvas); err != nil {
		return err
	}
	h.logger.Debug("Canvas saved",
		zap.String("canvasID", cmd.CanvasID),
		zap.Int("blocks", len(cmd.Blocks)),
		zap.Int("edges", len(cmd.Edges)),
	)
	return nil
}
