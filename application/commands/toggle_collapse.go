package commands

import (
	"context"
	"errors"

	"loom-backend/application/ports"
	"loom-backend/domain/core/valueobjects"

	"go.uber.org/zap"
)

// ToggleCollapseCommand folds or unfolds the subtree under a message
type ToggleCollapseCommand struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	NodeID         string `json:"node_id" validate:"required"`
	Collapsed      bool   `json:"collapsed"`
}

// Validate validates the command
func (cmd ToggleCollapseCommand) Validate() error {
	if cmd.ConversationID == "" {
		return errors.New("conversation ID is required")
	}
	if cmd.NodeID == "" {
		return errors.New("node ID is required")
	}
	return nil
}

// ToggleCollapseHandler handles the ToggleCollapseCommand
type ToggleCollapseHandler struct {
	forestRepo ports.ForestRepository
	logger     *zap.Logger
}

// NewToggleCollapseHandler creates a new handler instance
func NewToggleCollapseHandler(forestRepo ports.ForestRepository, logger *zap.Logger) *ToggleCollapseHandler {
	return &ToggleCollapseHandler{forestRepo: forestRepo, logger: logger}
}

// Handle executes the toggle collapse command
func (h *ToggleCollapseHandler) Handle(ctx context.Context, cmd ToggleCollapseCommand) error {
	nodeID, err := valueobjects.NewNodeIDFromString(cmd.NodeID)
	if err != nil {
		return err
	}

	forest, err := h.forestRepo.LoadForest(ctx, valueobjects.ConversationID(cmd.ConversationID))
	if err != nil {
		return err
	}
	msg, err := forest.Get(nodeID)
	if err != nil {
		return err
	}
	msg.SetCollapsed(cmd.Collapsed)

	return h.forestRepo.SetCollapsed(ctx, forest.ID(), nodeID, cmd.Collapsed)
}
