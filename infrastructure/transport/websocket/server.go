package websocket

import (
	"errors"
	"net/http"

	"loom-backend/pkg/auth"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// maxConnectionsPerChannel bounds one collaboration session
const maxConnectionsPerChannel = 64

// Server upgrades HTTP requests into collaboration channel connections
type Server struct {
	hub        *Hub
	upgrader   websocket.Upgrader
	jwtService *auth.JWTService
	logger     *zap.Logger
}

// NewServer creates a new WebSocket server
func NewServer(hub *Hub, jwtService *auth.JWTService, logger *zap.Logger) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin policy is enforced by the CORS layer upstream.
				return true
			},
		},
		jwtService: jwtService,
		logger:     logger,
	}
}

// HandleWebSocket handles a channel join request:
// GET /ws?channel=<channelID>&token=<jwt>
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	participantID, err := s.authenticateRequest(r)
	if err != nil {
		s.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	channelID := r.URL.Query().Get("channel")
	if channelID == "" {
		http.Error(w, "channel is required", http.StatusBadRequest)
		return
	}
	if s.hub.ParticipantCount(channelID) >= maxConnectionsPerChannel {
		http.Error(w, "channel is full", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := NewClient(participantID, channelID, s.hub, conn, s.logger)
	client.Start()
}

// authenticateRequest validates the JWT from the query string or headers.
// Browsers cannot set headers on WebSocket upgrades, so the query
// parameter is the primary channel.
func (s *Server) authenticateRequest(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	if token == "" {
		if cookie, err := r.Cookie("auth_token"); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		return "", errors.New("no authentication token provided")
	}

	claims, err := s.jwtService.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
