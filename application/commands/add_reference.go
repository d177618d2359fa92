package commands

import (
	"context"
	"errors"

	"loom-backend/application/ports"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"
	domainservices "loom-backend/domain/services"

	"go.uber.org/zap"
)

// AddReferenceCommand draws a cross-tree reference edge from one message
// to another. A reference that closes a loop through the source's own
// ancestry is still created; the result carries a warning for the UI.
type AddReferenceCommand struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	SourceID       string `json:"source_id" validate:"required"`
	TargetID       string `json:"target_id" validate:"required"`
}

// Validate validates the command
func (cmd AddReferenceCommand) Validate() error {
	if cmd.ConversationID == "" {
		return errors.New("conversation ID is required")
	}
	if cmd.SourceID == "" {
		return errors.New("source ID is required")
	}
	if cmd.TargetID == "" {
		return errors.New("target ID is required")
	}
	return nil
}

// AddReferenceResult reports whether the new edge trips the cycle guard
type AddReferenceResult struct {
	CycleWarning bool `json:"cycle_warning"`
}

// AddReferenceHandler handles the AddReferenceCommand
type AddReferenceHandler struct {
	forestRepo ports.ForestRepository
	cycleGuard *domainservices.CycleGuard
	eventBus   ports.EventBus
	logger     *zap.Logger
}

// NewAddReferenceHandler creates a new handler instance
func NewAddReferenceHandler(
	forestRepo ports.ForestRepository,
	cycleGuard *domainservices.CycleGuard,
	eventBus ports.EventBus,
	logger *zap.Logger,
) *AddReferenceHandler {
	return &AddReferenceHandler{
		forestRepo: forestRepo,
		cycleGuard: cycleGuard,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Handle executes the add reference command
func (h *AddReferenceHandler) Handle(ctx context.Context, cmd AddReferenceCommand) (*AddReferenceResult, error) {
	sourceID, err := valueobjects.NewNodeIDFromString(cmd.SourceID)
	if err != nil {
		return nil, err
	}
	targetID, err := valueobjects.NewNodeIDFromString(cmd.TargetID)
	if err != nil {
		return nil, err
	}

	forest, err := h.forestRepo.LoadForest(ctx, valueobjects.ConversationID(cmd.ConversationID))
	if err != nil {
		return nil, err
	}

	warning := h.cycleGuard.WouldCreateCycle(forest, sourceID, targetID)
	if warning {
		h.logger.Warn("Reference closes a loop through the source's ancestry",
			zap.String("sourceID", cmd.SourceID),
			zap.String("targetID", cmd.TargetID),
		)
	}

	if err := forest.AddReference(sourceID, targetID); err != nil {
		return nil, err
	}

	ref := aggregates.ReferenceEdge{SourceID: sourceID, TargetID: targetID}
	if err := h.forestRepo.SaveReference(ctx, forest.ID(), ref); err != nil {
		return nil, err
	}
	return &AddReferenceResult{CycleWarning: warning}, nil
}

// RemoveReferenceCommand deletes a cross-tree reference edge
type RemoveReferenceCommand struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	SourceID       string `json:"source_id" validate:"required"`
	TargetID       string `json:"target_id" validate:"required"`
}

// Validate validates the command
func (cmd RemoveReferenceCommand) Validate() error {
	if cmd.ConversationID == "" {
		return errors.New("conversation ID is required")
	}
	if cmd.SourceID == "" {
		return errors.New("source ID is required")
	}
	if cmd.TargetID == "" {
		return errors.New("target ID is required")
	}
	return nil
}

// RemoveReferenceHandler handles the RemoveReferenceCommand
type RemoveReferenceHandler struct {
	forestRepo ports.ForestRepository
	logger     *zap.Logger
}

// NewRemoveReferenceHandler creates a new handler instance
func NewRemoveReferenceHandler(forestRepo ports.ForestRepository, logger *zap.Logger) *RemoveReferenceHandler {
	return &RemoveReferenceHandler{forestRepo: forestRepo, logger: logger}
}

// Handle executes the remove reference command
func (h *RemoveReferenceHandler) Handle(ctx context.Context, cmd RemoveReferenceCommand) error {
	sourceID, err := valueobjects.NewNodeIDFromString(cmd.SourceID)
	if err != nil {
		return err
	}
	targetID, err := valueobjects.NewNodeIDFromString(cmd.TargetID)
	if err != nil {
		return err
	}

	forest, err := h.forestRepo.LoadForest(ctx, valueobjects.ConversationID(cmd.ConversationID))
	if err != nil {
		return err
	}
	forest.RemoveReference(sourceID, targetID)

	ref := aggregates.ReferenceEdge{SourceID: sourceID, TargetID: targetID}
	return h.forestRepo.DeleteReference(ctx, forest.ID(), ref)
}
