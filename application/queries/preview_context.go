package queries

import (
	"context"
	"errors"

	"loom-backend/application/ports"
	"loom-backend/application/services"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"

	"go.uber.org/zap"
)

// PreviewContextQuery returns the exact transcript that a reply request
// for the target would submit to the responder. This backs the "show
// context" inspector: what the user previews is what the responder gets.
type PreviewContextQuery struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	TargetID       string `json:"target_id" validate:"required"`
}

// Validate validates the query
func (q PreviewContextQuery) Validate() error {
	if q.ConversationID == "" {
		return errors.New("conversation ID is required")
	}
	if q.TargetID == "" {
		return errors.New("target ID is required")
	}
	return nil
}

// ContextPreview is the inspector's view of an assembled context
type ContextPreview struct {
	TargetID string                 `json:"target_id"`
	Messages []ports.ContextMessage `json:"messages"`
}

// PreviewContextHandler handles the PreviewContextQuery
type PreviewContextHandler struct {
	forestRepo     ports.ForestRepository
	contextBuilder *services.ContextBuilder
	logger         *zap.Logger
}

// NewPreviewContextHandler creates a new handler instance
func NewPreviewContextHandler(forestRepo ports.ForestRepository, contextBuilder *services.ContextBuilder, logger *zap.Logger) *PreviewContextHandler {
	return &PreviewContextHandler{
		forestRepo:     forestRepo,
		contextBuilder: contextBuilder,
		logger:         logger,
	}
}

// Handle executes the query. The exclusion rule must match the reply
// path exactly, or the preview would lie.
func (h *PreviewContextHandler) Handle(ctx context.Context, q PreviewContextQuery) (*ContextPreview, error) {
	targetID, err := valueobjects.NewNodeIDFromString(q.TargetID)
	if err != nil {
		return nil, err
	}

	forest, err := h.forestRepo.LoadForest(ctx, valueobjects.ConversationID(q.ConversationID))
	if err != nil {
		return nil, err
	}

	var referencedIDs []valueobjects.NodeID
	for _, ancestor := range forest.AncestorChain(targetID) {
		referencedIDs = append(referencedIDs, forest.ReferencesFrom(ancestor.ID())...)
	}

	messages, err := h.contextBuilder.Build(forest, targetID, referencedIDs, func(m *entities.Message) bool {
		return m.IsStreaming()
	})
	if err != nil {
		return nil, err
	}

	return &ContextPreview{TargetID: q.TargetID, Messages: messages}, nil
}
