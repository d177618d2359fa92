package commands

import (
	"context"
	"errors"

	"loom-backend/application/ports"
	"loom-backend/domain/core/valueobjects"
	pkgerrors "loom-backend/pkg/errors"

	"go.uber.org/zap"
)

// EditMessageCommand rewrites a user message in place. Only a leaf may be
// edited; anything with descendants is immutable history, and the UI
// offers branching instead.
type EditMessageCommand struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	NodeID         string `json:"node_id" validate:"required"`
	Content        string `json:"content" validate:"required"`
}

// Validate validates the command
func (cmd EditMessageCommand) Validate() error {
	if cmd.ConversationID == "" {
		return errors.New("conversation ID is required")
	}
	if cmd.NodeID == "" {
		return errors.New("node ID is required")
	}
	if cmd.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

// EditMessageHandler handles the EditMessageCommand
type EditMessageHandler struct {
	forestRepo ports.ForestRepository
	eventBus   ports.EventBus
	logger     *zap.Logger
}

// NewEditMessageHandler creates a new handler instance
func NewEditMessageHandler(forestRepo ports.ForestRepository, eventBus ports.EventBus, logger *zap.Logger) *EditMessageHandler {
	return &EditMessageHandler{
		forestRepo: forestRepo,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Handle executes the edit message command
func (h *EditMessageHandler) Handle(ctx context.Context, cmd EditMessageCommand) error {
	nodeID, err := valueobjects.NewNodeIDFromString(cmd.NodeID)
	if err != nil {
		return err
	}
	content, err := valueobjects.NewMessageContent(cmd.Content)
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
	if !forest.IsLeaf(nodeID) {
		return pkgerrors.NewConflictError("only a message without replies can be edited")
	}
	if err := msg.EditContent(content); err != nil {
		return err
	}

	if err := h.forestRepo.UpdateMessageContent(ctx, forest.ID(), nodeID, content.Text()); err != nil {
		return err
	}

	if err := h.eventBus.PublishBatch(ctx, forest.GetUncommittedEvents()); err != nil {
		h.logger.Error("Failed to publish domain events", zap.Error(err))
	} else {
		forest.MarkEventsAsCommitted()
	}
	return nil
}
