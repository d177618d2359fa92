package handlers

import (
	"encoding/json"
	"net/http"

	"loom-backend/application/commands"
	"loom-backend/application/commands/bus"
	"loom-backend/application/queries"
	querybus "loom-backend/application/queries/bus"
	"loom-backend/domain/core/aggregates"
	pkgerrors "loom-backend/pkg/errors"
	"loom-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CanvasHandler handles planning canvas HTTP requests. Live edits flow
// over the collaboration channel; this surface is for snapshot load on
// join and periodic persistence.
type CanvasHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	logger     *zap.Logger
}

// NewCanvasHandler creates a new canvas handler
func NewCanvasHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, logger *zap.Logger) *CanvasHandler {
	return &CanvasHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		logger:     logger,
	}
}

// GetCanvas handles GET /canvases/{canvasID}
func (h *CanvasHandler) GetCanvas(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")
	if canvasID == "" {
		h.respondError(w, http.StatusBadRequest, "Canvas ID is required")
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetCanvasQuery{CanvasID: canvasID})
	if err != nil {
		status := pkgerrors.HTTPStatusOf(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Failed to load canvas", zap.Error(err))
			h.respondError(w, status, "Failed to load canvas")
			return
		}
		h.respondError(w, status, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// SaveCanvasRequest is the request body for snapshotting a canvas
type SaveCanvasRequest struct {
	Blocks []*aggregates.Block      `json:"blocks" validate:"required"`
	Edges  []*aggregates.CanvasEdge `json:"edges"`
}

// SaveCanvas handles PUT /canvases/{canvasID}
func (h *CanvasHandler) SaveCanvas(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")
	if canvasID == "" {
		h.respondError(w, http.StatusBadRequest, "Canvas ID is required")
		return
	}

	var req SaveCanvasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	cmd := commands.SaveCanvasCommand{
		CanvasID: canvasID,
		Blocks:   req.Blocks,
		Edges:    req.Edges,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		status := pkgerrors.HTTPStatusOf(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Failed to save canvas", zap.Error(err))
			h.respondError(w, status, "Failed to save canvas")
			return
		}
		h.respondError(w, status, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"canvas_id": canvasID,
		"blocks":    len(req.Blocks),
		"edges":     len(req.Edges),
	})
}

func (h *CanvasHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *CanvasHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error": message,
	})
}
