// Package main implements the WebSocket fan-out Lambda. Domain events
// published to EventBridge are forwarded to every API Gateway WebSocket
// connection watching the event's conversation.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	dynamostore "loom-backend/infrastructure/persistence/dynamodb"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

var (
	connections *dynamostore.ConnectionStore
	apiGwClient *apigatewaymanagementapi.Client
	logger      *zap.Logger
)

// eventDetail is the slice of a domain event this Lambda needs: every
// forest event carries its conversation as the aggregate ID.
type eventDetail struct {
	AggregateID string `json:"aggregate_id"`
}

// clientFrame is the envelope pushed to connected clients
type clientFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func init() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Fatal("Failed to load AWS config", zap.Error(err))
	}

	tableName := os.Getenv("CONNECTIONS_TABLE")
	if tableName == "" {
		tableName = "loom-connections"
	}
	connections = dynamostore.NewConnectionStore(dynamodb.NewFromConfig(cfg), tableName, logger)

	endpoint := os.Getenv("WEBSOCKET_ENDPOINT")
	if endpoint == "" {
		logger.Fatal("WEBSOCKET_ENDPOINT is required")
	}
	apiGwClient = apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s", endpoint))
	})
}

// Handler forwards one EventBridge event to every connection on the
// conversation. A gone connection is pruned, not retried.
func Handler(ctx context.Context, event events.CloudWatchEvent) error {
	var detail eventDetail
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		logger.Error("Failed to decode event detail",
			zap.String("detailType", event.DetailType),
			zap.Error(err),
		)
		return nil // malformed events are dropped, not redelivered
	}
	if detail.AggregateID == "" {
		return nil
	}

	conns, err := connections.ListByConversation(ctx, detail.AggregateID)
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}
	if len(conns) == 0 {
		return nil
	}

	frame, err := json.Marshal(clientFrame{
		Event:   event.DetailType,
		Payload: event.Detail,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	for _, conn := range conns {
		_, err := apiGwClient.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
			ConnectionId: aws.String(conn.ConnectionID),
			Data:         frame,
		})
		if err != nil {
			var gone *apigwtypes.GoneException
			if errors.As(err, &gone) {
				if delErr := connections.Delete(ctx, conn.ConversationID, conn.ConnectionID); delErr != nil {
					logger.Warn("Failed to prune stale connection",
						zap.String("connectionID", conn.ConnectionID),
						zap.Error(delErr),
					)
				}
				continue
			}
			logger.Error("Failed to post to connection",
				zap.String("connectionID", conn.ConnectionID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func main() {
	lambda.Start(Handler)
}
