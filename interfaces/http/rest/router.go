package rest

import (
	"encoding/json"
	"net/http"

	"loom-backend/interfaces/http/rest/handlers"
	"loom-backend/infrastructure/transport/websocket"
	"loom-backend/interfaces/http/rest/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router creates and configures the HTTP router
type Router struct {
	conversationHandler *handlers.ConversationHandler
	canvasHandler       *handlers.CanvasHandler
	wsServer            *websocket.Server
	logger              *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	conversationHandler *handlers.ConversationHandler,
	canvasHandler *handlers.CanvasHandler,
	wsServer *websocket.Server,
	logger *zap.Logger,
) *Router {
	return &Router{
		conversationHandler: conversationHandler,
		canvasHandler:       canvasHandler,
		wsServer:            wsServer,
		logger:              logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "https://*.loom.app"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	// Collaboration channel upgrade. Authentication happens inside the
	// handler; browsers cannot set headers on WebSocket upgrades.
	if rt.wsServer != nil {
		router.Get("/ws", rt.wsServer.HandleWebSocket)
	}

	// API v1 routes
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate())

		r.Route("/conversations/{conversationID}", func(r chi.Router) {
			r.Get("/graph", rt.conversationHandler.GetGraph)
			r.Post("/layout", rt.conversationHandler.ComputeLayout)
			r.Put("/positions", rt.conversationHandler.MoveMessages)

			r.Route("/messages", func(r chi.Router) {
				r.Post("/", rt.conversationHandler.PostMessage)
				r.Put("/{nodeID}", rt.conversationHandler.EditMessage)
				r.Delete("/{nodeID}", rt.conversationHandler.DeleteSubtree)
				r.Post("/{nodeID}/collapse", rt.conversationHandler.ToggleCollapse)
				r.Post("/{nodeID}/reply", rt.conversationHandler.RequestReply)
				r.Get("/{nodeID}/context", rt.conversationHandler.PreviewContext)
			})

			r.Route("/references", func(r chi.Router) {
				r.Post("/", rt.conversationHandler.AddReference)
				r.Delete("/{sourceID}/{targetID}", rt.conversationHandler.RemoveReference)
			})
		})

		r.Route("/canvases/{canvasID}", func(r chi.Router) {
			r.Get("/", rt.canvasHandler.GetCanvas)
			r.Put("/", rt.canvasHandler.SaveCanvas)
		})
	})

	return router
}

// healthCheck handles GET /health
func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
		"status":  "healthy",
		"service": "loom-backend",
	})
}

// readinessCheck handles GET /ready
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
		"status": "ready",
	})
}
