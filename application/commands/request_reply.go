package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"loom-backend/application/ports"
	"loom-backend/application/services"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"

	"go.uber.org/zap"
)

// RequestReplyCommand asks the responder for a reply to the target message.
// The reply lands as a new assistant node under the target.
type RequestReplyCommand struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	TargetID       string `json:"target_id" validate:"required"`
	Model          string `json:"model"`
	Provider       string `json:"provider"`
}

// Validate validates the command
func (cmd RequestReplyCommand) Validate() error {
	if cmd.ConversationID == "" {
		return errors.New("conversation ID is required")
	}
	if cmd.TargetID == "" {
		return errors.New("target ID is required")
	}
	return nil
}

// DeltaSink receives streamed reply fragments as they arrive, for live
// fan-out to connected clients. Nil is fine; persistence does not depend
// on it.
type DeltaSink func(conversationID string, nodeID string, delta string)

// RequestReplyHandler orchestrates one reply round trip: build the exact
// context, create the provisional assistant node, stream the responder's
// output into it, and seal it. A responder failure is surfaced as the
// node's content, never silently dropped.
type RequestReplyHandler struct {
	forestRepo     ports.ForestRepository
	responder      ports.Responder
	contextBuilder *services.ContextBuilder
	eventBus       ports.EventBus
	deltaSink      DeltaSink
	logger         *zap.Logger
}

// NewRequestReplyHandler creates a new handler instance
func NewRequestReplyHandler(
	forestRepo ports.ForestRepository,
	responder ports.Responder,
	contextBuilder *services.ContextBuilder,
	eventBus ports.EventBus,
	deltaSink DeltaSink,
	logger *zap.Logger,
) *RequestReplyHandler {
	return &RequestReplyHandler{
		forestRepo:     forestRepo,
		responder:      responder,
		contextBuilder: contextBuilder,
		eventBus:       eventBus,
		deltaSink:      deltaSink,
		logger:         logger,
	}
}

// Handle executes the request reply command
func (h *RequestReplyHandler) Handle(ctx context.Context, cmd RequestReplyCommand) (*entities.Message, error) {
	targetID, err := valueobjects.NewNodeIDFromString(cmd.TargetID)
	if err != nil {
		return nil, err
	}

	forest, err := h.forestRepo.LoadForest(ctx, valueobjects.ConversationID(cmd.ConversationID))
	if err != nil {
		return nil, err
	}

	// References anywhere on the target's ancestry pull their trees into
	// the context.
	var referencedIDs []valueobjects.NodeID
	for _, ancestor := range forest.AncestorChain(targetID) {
		referencedIDs = append(referencedIDs, forest.ReferencesFrom(ancestor.ID())...)
	}

	// Nodes still being streamed into never reach the responder.
	transcript, err := h.contextBuilder.Build(forest, targetID, referencedIDs, func(m *entities.Message) bool {
		return m.IsStreaming()
	})
	if err != nil {
		return nil, err
	}

	reply := entities.NewProvisionalReply(targetID)
	if err := forest.Insert(reply); err != nil {
		return nil, err
	}
	if err := h.forestRepo.AppendMessage(ctx, forest.ID(), reply); err != nil {
		return nil, err
	}

	h.streamInto(ctx, forest.ID(), reply, transcript, ports.ReplyOptions{
		Model:    cmd.Model,
		Provider: cmd.Provider,
	})

	if err := h.forestRepo.UpdateMessageContent(ctx, forest.ID(), reply.ID(), reply.Content().Text()); err != nil {
		return nil, err
	}

	if err := h.eventBus.PublishBatch(ctx, forest.GetUncommittedEvents()); err != nil {
		h.logger.Error("Failed to publish domain events", zap.Error(err))
	} else {
		forest.MarkEventsAsCommitted()
	}

	return reply, nil
}

// streamInto drains the responder stream into the provisional node. All
// failure paths end in a sealed node holding the failure text.
func (h *RequestReplyHandler) streamInto(
	ctx context.Context,
	conversationID valueobjects.ConversationID,
	reply *entities.Message,
	transcript []ports.ContextMessage,
	opts ports.ReplyOptions,
) {
	stream, err := h.responder.Stream(ctx, transcript, opts)
	if err != nil {
		h.logger.Error("Responder stream failed to open",
			zap.String("conversationID", conversationID.String()),
			zap.Error(err),
		)
		reply.FailStreaming(fmt.Sprintf("Reply failed: %v", err))
		return
	}
	defer stream.Close()

	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			reply.FinishStreaming()
			return
		}
		if err != nil {
			h.logger.Error("Responder stream broke mid-reply",
				zap.String("nodeID", reply.ID().String()),
				zap.Error(err),
			)
			reply.FailStreaming(fmt.Sprintf("Reply failed: %v", err))
			return
		}
		if delta == "" {
			continue
		}
		if err := reply.AppendContent(delta); err != nil {
			reply.FailStreaming(fmt.Sprintf("Reply failed: %v", err))
			return
		}
		if h.deltaSink != nil {
			h.deltaSink(conversationID.String(), reply.ID().String(), delta)
		}
	}
}
