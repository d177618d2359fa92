package commands

import (
	"context"
	"errors"

	"loom-backend/application/ports"
	"loom-backend/domain/core/valueobjects"

	"go.uber.org/zap"
)

// MovedNode is one node's new canvas position inside a move batch
type MovedNode struct {
	NodeID string  `json:"node_id" validate:"required"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// MoveMessagesCommand saves user-arranged positions. The client debounces
// drags and submits a batch; every position saved here is permanent and
// the automatic layout will never override it.
type MoveMessagesCommand struct {
	ConversationID string      `json:"conversation_id" validate:"required"`
	Moves          []MovedNode `json:"moves" validate:"required,min=1,dive"`
}

// Validate validates the command
func (cmd MoveMessagesCommand) Validate() error {
	if cmd.ConversationID == "" {
		return errors.New("conversation ID is required")
	}
	if len(cmd.Moves) == 0 {
		return errors.New("at least one move is required")
	}
	for _, move := range cmd.Moves {
		if move.NodeID == "" {
			return errors.New("node ID is required for every move")
		}
	}
	return nil
}

// MoveMessagesHandler handles the MoveMessagesCommand
type MoveMessagesHandler struct {
	forestRepo ports.ForestRepository
	logger     *zap.Logger
}

// NewMoveMessagesHandler creates a new handler instance
func NewMoveMessagesHandler(forestRepo ports.ForestRepository, logger *zap.Logger) *MoveMessagesHandler {
	return &MoveMessagesHandler{forestRepo: forestRepo, logger: logger}
}

// Handle executes the move messages command
func (h *MoveMessagesHandler) Handle(ctx context.Context, cmd MoveMessagesCommand) error {
	forest, err := h.forestRepo.LoadForest(ctx, valueobjects.ConversationID(cmd.ConversationID))
	if err != nil {
		return err
	}

	batch := make(map[valueobjects.NodeID]valueobjects.Position, len(cmd.Moves))
	for _, move := range cmd.Moves {
		nodeID, err := valueobjects.NewNodeIDFromString(move.NodeID)
		if err != nil {
			return err
		}
		pos, err := valueobjects.NewPosition(move.X, move.Y)
		if err != nil {
			return err
		}
		if err := forest.SetPosition(nodeID, pos); err != nil {
			return err
		}
		batch[nodeID] = pos
	}

	if err := h.forestRepo.SavePositions(ctx, forest.ID(), batch); err != nil {
		return err
	}

	h.logger.Debug("Positions saved",
		zap.String("conversationID", cmd.ConversationID),
		zap.Int("count", len(batch)),
	)
	return nil
}
