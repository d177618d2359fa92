//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"loom-backend/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideForestRepository,
	ProvideCanvasRepository,
	ProvideConnectionStore,
	ProvideEventBus,
	ProvideMetrics,
	ProvideTracer,
	ProvideJWTService,
	ProvideResponder,
	ProvideLabeler,
	ProvideCycleGuard,
	ProvideLayoutEngine,
	ProvideContextBuilder,
	ProvideHub,
	ProvideWebSocketServer,
	ProvideDeltaSink,
	ProvidePostMessageHandler,
	ProvideRequestReplyHandler,
	ProvideAddReferenceHandler,
	ProvideDeleteSubtreeHandler,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideConversationHandler,
	ProvideCanvasHandler,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
