package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"loom-backend/application/commands"
	"loom-backend/application/commands/bus"
	"loom-backend/application/queries"
	querybus "loom-backend/application/queries/bus"
	"loom-backend/domain/core/entities"
	pkgerrors "loom-backend/pkg/errors"
	"loom-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ConversationHandler handles conversation-related HTTP requests.
// Commands that produce a result (a created message, a cycle warning,
// the removed subtree) go through their typed handlers; the rest
// dispatch on the command bus.
type ConversationHandler struct {
	commandBus    *bus.CommandBus
	queryBus      *querybus.QueryBus
	postMessage   *commands.PostMessageHandler
	requestReply  *commands.RequestReplyHandler
	addReference  *commands.AddReferenceHandler
	deleteSubtree *commands.DeleteSubtreeHandler
	logger        *zap.Logger
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	postMessage *commands.PostMessageHandler,
	requestReply *commands.RequestReplyHandler,
	addReference *commands.AddReferenceHandler,
	deleteSubtree *commands.DeleteSubtreeHandler,
	logger *zap.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		commandBus:    commandBus,
		queryBus:      queryBus,
		postMessage:   postMessage,
		requestReply:  requestReply,
		addReference:  addReference,
		deleteSubtree: deleteSubtree,
		logger:        logger,
	}
}

// PostMessageRequest is the request body for posting a message
type PostMessageRequest struct {
	ParentID string `json:"parent_id,omitempty" validate:"omitempty,uuid4"`
	Content  string `json:"content" validate:"required"`
}

// MessageResponse describes a newly created message
type MessageResponse struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Streaming bool   `json:"streaming"`
	CreatedAt string `json:"created_at"`
}

// PostMessage handles POST /conversations/{conversationID}/messages
func (h *ConversationHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		h.respondError(w, http.StatusBadRequest, "Conversation ID is required")
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	msg, err := h.postMessage.Handle(r.Context(), commands.PostMessageCommand{
		ConversationID: conversationID,
		ParentID:       req.ParentID,
		Content:        req.Content,
	})
	if err != nil {
		h.respondAppError(w, err, "Failed to post message")
		return
	}

	h.respondJSON(w, http.StatusCreated, messageResponse(msg))
}

// RequestReplyRequest is the request body for requesting a reply
type RequestReplyRequest struct {
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// RequestReply handles POST /conversations/{conversationID}/messages/{nodeID}/reply
func (h *ConversationHandler) RequestReply(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	nodeID := chi.URLParam(r, "nodeID")
	if conversationID == "" || nodeID == "" {
		h.respondError(w, http.StatusBadRequest, "Conversation ID and node ID are required")
		return
	}

	// The body is optional; defaults come from configuration.
	var req RequestReplyRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	reply, err := h.requestReply.Handle(r.Context(), commands.RequestReplyCommand{
		ConversationID: conversationID,
		TargetID:       nodeID,
		Model:          req.Model,
		Provider:       req.Provider,
	})
	if err != nil {
		h.respondAppError(w, err, "Failed to generate reply")
		return
	}

	h.respondJSON(w, http.StatusCreated, messageResponse(reply))
}

// EditMessageRequest is the request body for editing a message
type EditMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// EditMessage handles PUT /conversations/{conversationID}/messages/{nodeID}
func (h *ConversationHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	nodeID := chi.URLParam(r, "nodeID")
	if conversationID == "" || nodeID == "" {
		h.respondError(w, http.StatusBadRequest, "Conversation ID and node ID are required")
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	cmd := commands.EditMessageCommand{
		ConversationID: conversationID,
		NodeID:         nodeID,
		Content:        req.Content,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.respondAppError(w, err, "Failed to edit message")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":      nodeID,
		"message": "Message updated",
	})
}

// DeleteSubtree handles DELETE /conversations/{conversationID}/messages/{nodeID}
func (h *ConversationHandler) DeleteSubtree(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	nodeID := chi.URLParam(r, "nodeID")
	if conversationID == "" || nodeID == "" {
		h.respondError(w, http.StatusBadRequest, "Conversation ID and node ID are required")
		return
	}

	result, err := h.deleteSubtree.Handle(r.Context(), commands.DeleteSubtreeCommand{
		ConversationID: conversationID,
		NodeID:         nodeID,
	})
	if err != nil {
		h.respondAppError(w, err, "Failed to delete subtree")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"removed_ids": result.RemovedIDs,
	})
}

// ToggleCollapseRequest is the request body for folding a subtree
type ToggleCollapseRequest struct {
	Collapsed bool `json:"collapsed"`
}

// ToggleCollapse handles POST /conversations/{conversationID}/messages/{nodeID}/collapse
func (h *ConversationHandler) ToggleCollapse(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	nodeID := chi.URLParam(r, "nodeID")
	if conversationID == "" || nodeID == "" {
		h.respondError(w, http.StatusBadRequest, "Conversation ID and node ID are required")
		return
	}

	var req ToggleCollapseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	cmd := commands.ToggleCollapseCommand{
		ConversationID: conversationID,
		NodeID:         nodeID,
		Collapsed:      req.Collapsed,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.respondAppError(w, err, "Failed to toggle collapse")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":        nodeID,
		"collapsed": req.Collapsed,
	})
}

// MoveMessagesRequest is the request body for pinning node positions
type MoveMessagesRequest struct {
	Moves []commands.MovedNode `json:"moves" validate:"required,min=1,dive"`
}

// MoveMessages handles PUT /conversations/{conversationID}/positions
func (h *ConversationHandler) MoveMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		h.respondError(w, http.StatusBadRequest, "Conversation ID is required")
		return
	}

	var req MoveMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	cmd := commands.MoveMessagesCommand{
		ConversationID: conversationID,
		Moves:          req.Moves,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.respondAppError(w, err, "Failed to move messages")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"moved": len(req.Moves),
	})
}

// AddReferenceRequest is the request body for drawing a reference edge
type AddReferenceRequest struct {
	SourceID string `json:"source_id" validate:"required,uuid4"`
	TargetID string `json:"target_id" validate:"required,uuid4"`
}

// AddReference handles POST /conversations/{conversationID}/references
func (h *ConversationHandler) AddReference(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		h.respondError(w, http.StatusBadRequest, "Conversation ID is required")
		return
	}

	var req AddReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	result, err := h.addReference.Handle(r.Context(), commands.AddReferenceCommand{
		ConversationID: conversationID,
		SourceID:       req.SourceID,
		TargetID:       req.TargetID,
	})
	if err != nil {
		h.respondAppError(w, err, "Failed to add reference")
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"source_id":     req.SourceID,
		"target_id":     req.TargetID,
		"cycle_warning": result.CycleWarning,
	})
}

// RemoveReference handles DELETE /conversations/{conversationID}/references/{sourceID}/{targetID}
func (h *ConversationHandler) RemoveReference(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	sourceID := chi.URLParam(r, "sourceID")
	targetID := chi.URLParam(r, "targetID")
	if conversationID == "" || sourceID == "" || targetID == "" {
		h.respondError(w, http.StatusBadRequest, "Conversation, source and target IDs are required")
		return
	}

	cmd := commands.RemoveReferenceCommand{
		ConversationID: conversationID,
		SourceID:       sourceID,
		TargetID:       targetID,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.respondAppError(w, err, "Failed to remove reference")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetGraph handles GET /conversations/{conversationID}/graph
func (h *ConversationHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		h.respondError(w, http.StatusBadRequest, "Conversation ID is required")
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetConversationGraphQuery{
		ConversationID: conversationID,
	})
	if err != nil {
		h.respondAppError(w, err, "Failed to load conversation")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// ComputeLayoutRequest carries client-measured node sizes
type ComputeLayoutRequest struct {
	MeasuredSizes map[string]queries.SizeInput `json:"measured_sizes"`
}

// ComputeLayout handles POST /conversations/{conversationID}/layout.
// Same render model as GetGraph, laid out with the client's measured
// node sizes instead of role defaults.
func (h *ConversationHandler) ComputeLayout(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		h.respondError(w, http.StatusBadRequest, "Conversation ID is required")
		return
	}

	var req ComputeLayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetConversationGraphQuery{
		ConversationID: conversationID,
		MeasuredSizes:  req.MeasuredSizes,
	})
	if err != nil {
		h.respondAppError(w, err, "Failed to compute layout")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// PreviewContext handles GET /conversations/{conversationID}/messages/{nodeID}/context
func (h *ConversationHandler) PreviewContext(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	nodeID := chi.URLParam(r, "nodeID")
	if conversationID == "" || nodeID == "" {
		h.respondError(w, http.StatusBadRequest, "Conversation ID and node ID are required")
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.PreviewContextQuery{
		ConversationID: conversationID,
		TargetID:       nodeID,
	})
	if err != nil {
		h.respondAppError(w, err, "Failed to preview context")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

func messageResponse(msg *entities.Message) MessageResponse {
	resp := MessageResponse{
		ID:        msg.ID().String(),
		Role:      string(msg.Role()),
		Content:   msg.Content().Text(),
		Streaming: msg.IsStreaming(),
		CreatedAt: msg.CreatedAt().Format(time.RFC3339Nano),
	}
	if !msg.ParentID().IsZero() {
		resp.ParentID = msg.ParentID().String()
	}
	return resp
}

func (h *ConversationHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *ConversationHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error": message,
	})
}

// respondAppError maps application errors onto HTTP statuses. Typed
// errors carry their own status; anything else is a 500 with a generic
// message so internals never leak.
func (h *ConversationHandler) respondAppError(w http.ResponseWriter, err error, fallback string) {
	status := pkgerrors.HTTPStatusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(fallback, zap.Error(err))
		h.respondError(w, status, fallback)
		return
	}
	h.respondError(w, status, err.Error())
}
