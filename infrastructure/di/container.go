package di

import (
	"loom-backend/application/commands/bus"
	"loom-backend/application/ports"
	querybus "loom-backend/application/queries/bus"
	"loom-backend/infrastructure/config"
	"loom-backend/infrastructure/persistence/dynamodb"
	"loom-backend/infrastructure/transport/websocket"
	"loom-backend/interfaces/http/rest/handlers"
	"loom-backend/pkg/auth"
	"loom-backend/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config              *config.Config
	Logger              *zap.Logger
	ForestRepo          ports.ForestRepository
	CanvasRepo          ports.CanvasRepository
	ConnectionStore     *dynamodb.ConnectionStore
	EventBus            ports.EventBus
	Responder           ports.Responder
	JWTService          *auth.JWTService
	Metrics             *observability.Metrics
	Tracer              *observability.Tracer
	Hub                 *websocket.Hub
	WSServer            *websocket.Server
	CommandBus          *bus.CommandBus
	QueryBus            *querybus.QueryBus
	ConversationHandler *handlers.ConversationHandler
	CanvasHandler       *handlers.CanvasHandler
}
