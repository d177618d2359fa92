package di

import (
	"context"
	"fmt"
	"time"

	"loom-backend/application/commands"
	"loom-backend/application/commands/bus"
	"loom-backend/application/ports"
	"loom-backend/application/queries"
	querybus "loom-backend/application/queries/bus"
	appservices "loom-backend/application/services"
	domainservices "loom-backend/domain/services"
	"loom-backend/infrastructure/config"
	"loom-backend/infrastructure/llm"
	"loom-backend/infrastructure/messaging/eventbridge"
	"loom-backend/infrastructure/persistence/dynamodb"
	"loom-backend/infrastructure/transport/websocket"
	"loom-backend/interfaces/http/rest/handlers"
	"loom-backend/pkg/auth"
	"loom-backend/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideForestRepository creates the conversation forest repository
func ProvideForestRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.ForestRepository {
	return dynamodb.NewForestRepository(client, cfg.DynamoDBTable, logger)
}

// ProvideCanvasRepository creates the planning canvas repository
func ProvideCanvasRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.CanvasRepository {
	return dynamodb.NewCanvasRepository(client, cfg.DynamoDBTable, logger)
}

// ProvideConnectionStore creates the WebSocket connection registry used
// by the fan-out Lambda
func ProvideConnectionStore(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) *dynamodb.ConnectionStore {
	return dynamodb.NewConnectionStore(client, cfg.ConnectionsTable, logger)
}

// ProvideEventBus creates an event bus
func ProvideEventBus(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventBus {
	return eventbridge.NewEventBridgePublisher(client, cfg.EventBusName, logger)
}

// ProvideMetrics creates a metrics instance. When metrics are disabled
// the instance is inert; callers never check the flag.
func ProvideMetrics(client *awscloudwatch.Client, cfg *config.Config) *observability.Metrics {
	namespace := fmt.Sprintf("Loom/%s", cfg.Environment)
	if !cfg.EnableMetrics {
		return observability.NewMetrics(namespace, nil)
	}
	return observability.NewMetrics(namespace, client)
}

// ProvideTracer creates a tracer instance
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer("loom-backend")
}

// ProvideJWTService creates the token service
func ProvideJWTService(cfg *config.Config) *auth.JWTService {
	secret := cfg.JWTSecret
	if secret == "" {
		secret = "development-secret-change-in-production"
	}
	return auth.NewJWTService(secret, cfg.JWTIssuer, 24*time.Hour)
}

// ProvideResponder creates the automated responder
func ProvideResponder(cfg *config.Config, logger *zap.Logger) (ports.Responder, error) {
	return llm.NewOpenAIResponder(cfg.ResponderAPIKey, cfg.ResponderBaseURL, cfg.ResponderModel, logger)
}

// ProvideLabeler creates the label derivation service
func ProvideLabeler() *domainservices.Labeler {
	return domainservices.NewLabeler()
}

// ProvideCycleGuard creates the reference cycle detector
func ProvideCycleGuard() *domainservices.CycleGuard {
	return domainservices.NewCycleGuard()
}

// ProvideLayoutEngine creates the layout engine
func ProvideLayoutEngine() *domainservices.LayoutEngine {
	return domainservices.NewLayoutEngine()
}

// ProvideContextBuilder creates the context assembly service
func ProvideContextBuilder(logger *zap.Logger) *appservices.ContextBuilder {
	return appservices.NewContextBuilder(logger)
}

// ProvideHub creates the collaboration hub
func ProvideHub(logger *zap.Logger) *websocket.Hub {
	return websocket.NewHub(logger)
}

// ProvideWebSocketServer creates the channel upgrade server
func ProvideWebSocketServer(hub *websocket.Hub, jwtService *auth.JWTService, logger *zap.Logger) *websocket.Server {
	return websocket.NewServer(hub, jwtService, logger)
}

// ProvideDeltaSink fans streamed reply fragments out to everyone watching
// the conversation
func ProvideDeltaSink(hub *websocket.Hub) commands.DeltaSink {
	return func(conversationID, nodeID, delta string) {
		hub.Broadcast(conversationID, "reply_delta", map[string]string{
			"node_id": nodeID,
			"delta":   delta,
		})
	}
}

// ProvidePostMessageHandler creates the post message handler
func ProvidePostMessageHandler(forestRepo ports.ForestRepository, eventBus ports.EventBus, logger *zap.Logger) *commands.PostMessageHandler {
	return commands.NewPostMessageHandler(forestRepo, eventBus, logger)
}

// ProvideRequestReplyHandler creates the reply orchestration handler
func ProvideRequestReplyHandler(
	forestRepo ports.ForestRepository,
	responder ports.Responder,
	contextBuilder *appservices.ContextBuilder,
	eventBus ports.EventBus,
	deltaSink commands.DeltaSink,
	logger *zap.Logger,
) *commands.RequestReplyHandler {
	return commands.NewRequestReplyHandler(forestRepo, responder, contextBuilder, eventBus, deltaSink, logger)
}

// ProvideAddReferenceHandler creates the add reference handler
func ProvideAddReferenceHandler(
	forestRepo ports.ForestRepository,
	cycleGuard *domainservices.CycleGuard,
	eventBus ports.EventBus,
	logger *zap.Logger,
) *commands.AddReferenceHandler {
	return commands.NewAddReferenceHandler(forestRepo, cycleGuard, eventBus, logger)
}

// ProvideDeleteSubtreeHandler creates the delete subtree handler
func ProvideDeleteSubtreeHandler(forestRepo ports.ForestRepository, eventBus ports.EventBus, logger *zap.Logger) *commands.DeleteSubtreeHandler {
	return commands.NewDeleteSubtreeHandler(forestRepo, eventBus, logger)
}

// CommandHandlerAdapter adapts specific command handlers to the generic interface
type CommandHandlerAdapter struct {
	handler func(context.Context, bus.Command) error
}

func (a *CommandHandlerAdapter) Handle(ctx context.Context, cmd bus.Command) error {
	return a.handler(ctx, cmd)
}

// zapLoggerAdapter adapts zap to the command bus logging surface
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Sugar().Infow(msg, keysAndValues...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Sugar().Errorw(msg, keysAndValues...)
}

// metricsMiddleware records execution counts and latency per command type
func metricsMiddleware(metrics *observability.Metrics) bus.Middleware {
	return func(next bus.CommandHandler) bus.CommandHandler {
		return bus.CommandHandlerFunc(func(ctx context.Context, cmd bus.Command) error {
			start := time.Now()
			err := next.Handle(ctx, cmd)

			dimensions := map[string]string{
				"CommandType": fmt.Sprintf("%T", cmd),
			}
			metrics.RecordDuration(ctx, "CommandDuration", time.Since(start), dimensions)
			if err != nil {
				metrics.IncrementCounter(ctx, "CommandErrors", dimensions)
			}
			return err
		})
	}
}

// tracingMiddleware opens a subsegment per command
func tracingMiddleware(tracer *observability.Tracer, enabled bool) bus.Middleware {
	return func(next bus.CommandHandler) bus.CommandHandler {
		return bus.CommandHandlerFunc(func(ctx context.Context, cmd bus.Command) error {
			if !enabled {
				return next.Handle(ctx, cmd)
			}
			return tracer.TraceFunction(ctx, fmt.Sprintf("%T", cmd), func(ctx context.Context) error {
				return next.Handle(ctx, cmd)
			})
		})
	}
}

// ProvideCommandBus creates a command bus with registered handlers. Every
// handler runs behind the same logging, metrics and tracing pipeline.
func ProvideCommandBus(
	cfg *config.Config,
	forestRepo ports.ForestRepository,
	canvasRepo ports.CanvasRepository,
	eventBus ports.EventBus,
	postMessage *commands.PostMessageHandler,
	requestReply *commands.RequestReplyHandler,
	addReference *commands.AddReferenceHandler,
	deleteSubtree *commands.DeleteSubtreeHandler,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
	logger *zap.Logger,
) *bus.CommandBus {
	commandBus := bus.NewCommandBus()

	pipeline := bus.NewPipeline(
		tracingMiddleware(tracer, cfg.EnableTracing),
		bus.LoggingMiddleware(&zapLoggerAdapter{logger}),
		metricsMiddleware(metrics),
	)
	register := func(cmd bus.Command, handler bus.CommandHandler) {
		commandBus.Register(cmd, pipeline.Execute(handler))
	}

	register(commands.PostMessageCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			postCmd, ok := cmd.(commands.PostMessageCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			_, err := postMessage.Handle(ctx, postCmd)
			return err
		},
	})

	register(commands.RequestReplyCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			replyCmd, ok := cmd.(commands.RequestReplyCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			_, err := requestReply.Handle(ctx, replyCmd)
			return err
		},
	})

	editHandler := commands.NewEditMessageHandler(forestRepo, eventBus, logger)
	register(commands.EditMessageCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			editCmd, ok := cmd.(commands.EditMessageCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			return editHandler.Handle(ctx, editCmd)
		},
	})

	collapseHandler := commands.NewToggleCollapseHandler(forestRepo, logger)
	register(commands.ToggleCollapseCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			collapseCmd, ok := cmd.(commands.ToggleCollapseCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			return collapseHandler.Handle(ctx, collapseCmd)
		},
	})

	moveHandler := commands.NewMoveMessagesHandler(forestRepo, logger)
	register(commands.MoveMessagesCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			moveCmd, ok := cmd.(commands.MoveMessagesCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			return moveHandler.Handle(ctx, moveCmd)
		},
	})

	register(commands.AddReferenceCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			refCmd, ok := cmd.(commands.AddReferenceCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			_, err := addReference.Handle(ctx, refCmd)
			return err
		},
	})

	removeRefHandler := commands.NewRemoveReferenceHandler(forestRepo, logger)
	register(commands.RemoveReferenceCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			removeCmd, ok := cmd.(commands.RemoveReferenceCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			return removeRefHandler.Handle(ctx, removeCmd)
		},
	})

	register(commands.DeleteSubtreeCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			deleteCmd, ok := cmd.(commands.DeleteSubtreeCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			_, err := deleteSubtree.Handle(ctx, deleteCmd)
			return err
		},
	})

	saveCanvasHandler := commands.NewSaveCanvasHandler(canvasRepo, logger)
	register(commands.SaveCanvasCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			saveCmd, ok := cmd.(commands.SaveCanvasCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			return saveCanvasHandler.Handle(ctx, saveCmd)
		},
	})

	return commandBus
}

// QueryHandlerAdapter adapts specific query handlers to the generic interface
type QueryHandlerAdapter struct {
	handler func(context.Context, querybus.Query) (interface{}, error)
}

func (a *QueryHandlerAdapter) Handle(ctx context.Context, query querybus.Query) (interface{}, error) {
	return a.handler(ctx, query)
}

// ProvideQueryBus creates a query bus with registered handlers
func ProvideQueryBus(
	forestRepo ports.ForestRepository,
	canvasRepo ports.CanvasRepository,
	labeler *domainservices.Labeler,
	cycleGuard *domainservices.CycleGuard,
	layoutEngine *domainservices.LayoutEngine,
	contextBuilder *appservices.ContextBuilder,
	logger *zap.Logger,
) *querybus.QueryBus {
	queryBus := querybus.NewQueryBus()

	graphHandler := queries.NewGetConversationGraphHandler(forestRepo, labeler, layoutEngine, cycleGuard, logger)
	queryBus.Register(queries.GetConversationGraphQuery{}, &QueryHandlerAdapter{
		handler: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			graphQuery, ok := query.(queries.GetConversationGraphQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type")
			}
			return graphHandler.Handle(ctx, graphQuery)
		},
	})

	previewHandler := queries.NewPreviewContextHandler(forestRepo, contextBuilder, logger)
	queryBus.Register(queries.PreviewContextQuery{}, &QueryHandlerAdapter{
		handler: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			previewQuery, ok := query.(queries.PreviewContextQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type")
			}
			return previewHandler.Handle(ctx, previewQuery)
		},
	})

	canvasHandler := queries.NewGetCanvasHandler(canvasRepo, logger)
	queryBus.Register(queries.GetCanvasQuery{}, &QueryHandlerAdapter{
		handler: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			canvasQuery, ok := query.(queries.GetCanvasQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type")
			}
			return canvasHandler.Handle(ctx, canvasQuery)
		},
	})

	return queryBus
}

// ProvideConversationHandler creates the conversation HTTP handler
func ProvideConversationHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	postMessage *commands.PostMessageHandler,
	requestReply *commands.RequestReplyHandler,
	addReference *commands.AddReferenceHandler,
	deleteSubtree *commands.DeleteSubtreeHandler,
	logger *zap.Logger,
) *handlers.ConversationHandler {
	return handlers.NewConversationHandler(commandBus, queryBus, postMessage, requestReply, addReference, deleteSubtree, logger)
}

// ProvideCanvasHandler creates the canvas HTTP handler
func ProvideCanvasHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, logger *zap.Logger) *handlers.CanvasHandler {
	return handlers.NewCanvasHandler(commandBus, queryBus, logger)
}
