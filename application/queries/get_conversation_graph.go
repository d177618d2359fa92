package queries

import (
	"context"
	"errors"
	"time"

	"loom-backend/application/ports"
	"loom-backend/domain/core/valueobjects"
	domainservices "loom-backend/domain/services"

	"go.uber.org/zap"
)

// GetConversationGraphQuery fetches the full render model for one
// conversation: every message with its derived label, resolved position,
// and the reference edges with their cycle flags.
type GetConversationGraphQuery struct {
	ConversationID string `json:"conversation_id" validate:"required"`

	// MeasuredSizes carries client-measured node sizes keyed by node ID;
	// nodes without a measurement lay out with role defaults.
	MeasuredSizes map[string]SizeInput `json:"measured_sizes,omitempty"`
}

// SizeInput is a client-measured node size
type SizeInput struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Validate validates the query
func (q GetConversationGraphQuery) Validate() error {
	if q.ConversationID == "" {
		return errors.New("conversation ID is required")
	}
	return nil
}

// MessageView is one message as the canvas renders it
type MessageView struct {
	ID         string    `json:"id"`
	ParentID   string    `json:"parent_id,omitempty"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Label      string    `json:"label"`
	TreeLetter string    `json:"tree_letter"`
	TreeIndex  int       `json:"tree_index"`
	Collapsed  bool      `json:"collapsed"`
	Streaming  bool      `json:"streaming"`
	CreatedAt  time.Time `json:"created_at"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Pinned     bool      `json:"pinned"`
}

// ReferenceView is one cross-tree reference edge as rendered
type ReferenceView struct {
	SourceID     string `json:"source_id"`
	TargetID     string `json:"target_id"`
	CycleWarning bool   `json:"cycle_warning"`
}

// ConversationGraphView is the complete render model for a conversation
type ConversationGraphView struct {
	ConversationID string          `json:"conversation_id"`
	Messages       []MessageView   `json:"messages"`
	References     []ReferenceView `json:"references"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// GetConversationGraphHandler handles the GetConversationGraphQuery
type GetConversationGraphHandler struct {
	forestRepo ports.ForestRepository
	labeler    *domainservices.Labeler
	layout     *domainservices.LayoutEngine
	cycleGuard *domainservices.CycleGuard
	logger     *zap.Logger
}

// NewGetConversationGraphHandler creates a new handler instance
func NewGetConversationGraphHandler(
	forestRepo ports.ForestRepository,
	labeler *domainservices.Labeler,
	layout *domainservices.LayoutEngine,
	cycleGuard *domainservices.CycleGuard,
	logger *zap.Logger,
) *GetConversationGraphHandler {
	return &GetConversationGraphHandler{
		forestRepo: forestRepo,
		labeler:    labeler,
		layout:     layout,
		cycleGuard: cycleGuard,
		logger:     logger,
	}
}

// Handle executes the query
func (h *GetConversationGraphHandler) Handle(ctx context.Context, q GetConversationGraphQuery) (*ConversationGraphView, error) {
	forest, err := h.forestRepo.LoadForest(ctx, valueobjects.ConversationID(q.ConversationID))
	if err != nil {
		return nil, err
	}

	measured := make(map[valueobjects.NodeID]valueobjects.Size, len(q.MeasuredSizes))
	for rawID, input := range q.MeasuredSizes {
		nodeID, err := valueobjects.NewNodeIDFromString(rawID)
		if err != nil {
			continue
		}
		size, err := valueobjects.NewSize(input.Width, input.Height)
		if err != nil {
			continue
		}
		measured[nodeID] = size
	}

	labels := h.labeler.Generate(forest)
	positions := h.layout.Layout(forest, measured)
	pinned := forest.Positions()

	view := &ConversationGraphView{
		ConversationID: q.ConversationID,
		Messages:       make([]MessageView, 0, forest.Len()),
		References:     make([]ReferenceView, 0, len(forest.References())),
		UpdatedAt:      forest.UpdatedAt(),
	}

	for _, msg := range forest.Messages() {
		mv := MessageView{
			ID:         msg.ID().String(),
			Role:       string(msg.Role()),
			Content:    msg.Content().Text(),
			Label:      labels.Short[msg.ID()],
			TreeLetter: labels.TreeLetter[msg.ID()],
			TreeIndex:  labels.TreeIndex[msg.ID()],
			Collapsed:  msg.IsCollapsed(),
			Streaming:  msg.IsStreaming(),
			CreatedAt:  msg.CreatedAt(),
		}
		if parentID, ok := forest.Parent(msg.ID()); ok {
			mv.ParentID = parentID.String()
		}
		if pos, ok := positions[msg.ID()]; ok {
			mv.X = pos.X()
			mv.Y = pos.Y()
		}
		if _, ok := pinned[msg.ID()]; ok {
			mv.Pinned = true
		}
		view.Messages = append(view.Messages, mv)
	}

	for _, ref := range forest.References() {
		view.References = append(view.References, ReferenceView{
			SourceID:     ref.SourceID.String(),
			TargetID:     ref.TargetID.String(),
			CycleWarning: h.cycleGuard.WouldCreateCycle(forest, ref.SourceID, ref.TargetID),
		})
	}

	return view, nil
}
