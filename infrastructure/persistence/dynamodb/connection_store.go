package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// Connection is one live API Gateway WebSocket connection subscribed to a
// conversation's updates.
type Connection struct {
	ConnectionID   string `dynamodbav:"ConnectionID"`
	ConversationID string `dynamodbav:"ConversationID"`
	ParticipantID  string `dynamodbav:"ParticipantID"`
	ConnectedAt    string `dynamodbav:"ConnectedAt"`
	TTL            int64  `dynamodbav:"TTL"`
}

// connectionTTL bounds how long a dead connection record can linger before
// DynamoDB's TTL sweep removes it.
const connectionTTL = 2 * time.Hour

// ConnectionStore tracks WebSocket connections per conversation so the
// ws-send Lambda can fan streamed reply deltas out to watchers.
type ConnectionStore struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewConnectionStore creates a new ConnectionStore
func NewConnectionStore(client *dynamodb.Client, tableName string, logger *zap.Logger) *ConnectionStore {
	return &ConnectionStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

type connectionItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	Connection
}

// Save registers a connection
func (s *ConnectionStore) Save(ctx context.Context, conn Connection) error {
	if conn.ConnectedAt == "" {
		conn.ConnectedAt = time.Now().Format(time.RFC3339)
	}
	conn.TTL = time.Now().Add(connectionTTL).Unix()

	item := connectionItem{
		PK:         conversationPKPrefix + conn.ConversationID,
		SK:         "WSCONN#" + conn.ConnectionID,
		Connection: conn,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

// Delete removes a connection record on disconnect
func (s *ConnectionStore) Delete(ctx context.Context, conversationID, connectionID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: conversationPKPrefix + conversationID},
			"SK": &types.AttributeValueMemberS{Value: "WSCONN#" + connectionID},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

// ListByConversation returns every live connection watching a conversation
func (s *ConnectionStore) ListByConversation(ctx context.Context, conversationID string) ([]Connection, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(conversationPKPrefix + conversationID)).
		And(expression.Key("SK").BeginsWith("WSCONN#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection query: %w", err)
	}

	var conns []Connection
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query connections: %w", err)
		}
		for _, raw := range page.Items {
			var item connectionItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				s.logger.Warn("Skipping unreadable connection item", zap.Error(err))
				continue
			}
			conns = append(conns, item.Connection)
		}
	}
	return conns, nil
}
