package commands

import (
	"context"
	"errors"

	"loom-backend/application/ports"
	"loom-backend/domain/core/valueobjects"

	"go.uber.org/zap"
)

// DeleteSubtreeCommand removes a message and every descendant under it.
// Reference edges and saved positions touching the removed set go with it.
type DeleteSubtreeCommand struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	NodeID         string `json:"node_id" validate:"required"`
}

// Validate validates the command
func (cmd DeleteSubtreeCommand) Validate() error {
	if cmd.ConversationID == "" {
		return errors.New("conversation ID is required")
	}
	if cmd.NodeID == "" {
		return errors.New("node ID is required")
	}
	return nil
}

// DeleteSubtreeResult reports what the deletion actually removed
type DeleteSubtreeResult struct {
	RemovedIDs []string `json:"removed_ids"`
}

// DeleteSubtreeHandler handles the DeleteSubtreeCommand
type DeleteSubtreeHandler struct {
	forestRepo ports.ForestRepository
	eventBus   ports.EventBus
	logger     *zap.Logger
}

// NewDeleteSubtreeHandler creates a new handler instance
func NewDeleteSubtreeHandler(forestRepo ports.ForestRepository, eventBus ports.EventBus, logger *zap.Logger) *DeleteSubtreeHandler {
	return &DeleteSubtreeHandler{
		forestRepo: forestRepo,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Handle executes the delete subtree command
func (h *DeleteSubtreeHandler) Handle(ctx context.Context, cmd DeleteSubtreeCommand) (*DeleteSubtreeResult, error) {
	nodeID, err := valueobjects.NewNodeIDFromString(cmd.NodeID)
	if err != nil {
		return nil, err
	}

	forest, err := h.forestRepo.LoadForest(ctx, valueobjects.ConversationID(cmd.ConversationID))
	if err != nil {
		return nil, err
	}

	removed, err := forest.DeleteSubtree(nodeID)
	if err != nil {
		return nil, err
	}

	if err := h.forestRepo.DeleteMessages(ctx, forest.ID(), removed); err != nil {
		return nil, err
	}

	if err := h.eventBus.PublishBatch(ctx, forest.GetUncommittedEvents()); err != nil {
		h.logger.Error("Failed to publish domain events", zap.Error(err))
	} else {
		forest.MarkEventsAsCommitted()
	}

	result := &DeleteSubtreeResult{RemovedIDs: make([]string, 0, len(removed))}
	for _, id := range removed {
		result.RemovedIDs = append(result.RemovedIDs, id.String())
	}
	h.logger.Info("Subtree deleted",
		zap.String("conversationID", cmd.ConversationID),
		zap.String("rootID", cmd.NodeID),
		zap.Int("removedCount", len(removed)),
	)
	return result, nil
}
