package commands

import (
	"context"
	"errors"

	"loom-backend/application/ports"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"

	"go.uber.org/zap"
)

// PostMessageCommand adds a user message to a conversation. An empty
// ParentID starts a new tree on the canvas.
type PostMessageCommand struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	ParentID       string `json:"parent_id"`
	Content        string `json:"content" validate:"required"`
}

// Validate validates the command
func (cmd PostMessageCommand) Validate() error {
	if cmd.ConversationID == "" {
		return errors.New("conversation ID is required")
	}
	if cmd.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

// PostMessageHandler handles the PostMessageCommand
type PostMessageHandler struct {
	forestRepo ports.ForestRepository
	eventBus   ports.EventBus
	logger     *zap.Logger
}

// NewPostMessageHandler creates a new handler instance
func NewPostMessageHandler(forestRepo ports.ForestRepository, eventBus ports.EventBus, logger *zap.Logger) *PostMessageHandler {
	return &PostMessageHandler{
		forestRepo: forestRepo,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Handle executes the post message command
func (h *PostMessageHandler) Handle(ctx context.Context, cmd PostMessageCommand) (*entities.Message, error) {
	content, err := valueobjects.NewMessageContent(cmd.Content)
	if err != nil {
		return nil, err
	}

	var parentID valueobjects.NodeID
	if cmd.ParentID != "" {
		parentID, err = valueobjects.NewNodeIDFromString(cmd.ParentID)
		if err != nil {
			return nil, err
		}
	}

	forest, err := h.forestRepo.LoadForest(ctx, valueobjects.ConversationID(cmd.ConversationID))
	if err != nil {
		return nil, err
	}

	msg, err := entities.NewUserMessage(parentID, content)
	if err != nil {
		return nil, err
	}
	if err := forest.Insert(msg); err != nil {
		return nil, err
	}

	if err := h.forestRepo.AppendMessage(ctx, forest.ID(), msg); err != nil {
		return nil, err
	}

	if err := h.eventBus.PublishBatch(ctx, forest.GetUncommittedEvents()); err != nil {
		// Events can be retried; the write itself succeeded.
		h.logger.Error("Failed to publish domain events", zap.Error(err))
	} else {
		forest.MarkEventsAsCommitted()
	}

	h.logger.Info("Message posted",
		zap.String("conversationID", cmd.ConversationID),
		zap.String("nodeID", msg.ID().String()),
		zap.Bool("isRoot", msg.IsRoot()),
	)
	return msg, nil
}
