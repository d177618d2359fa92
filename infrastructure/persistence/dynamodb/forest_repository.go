package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"loom-backend/application/ports"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// Single-table key design: one partition per conversation, item kind in
// the sort key prefix.
//
//	PK CONV#<conversationID>  SK MSG#<nodeID>
//	PK CONV#<conversationID>  SK REF#<sourceID>#<targetID>
//	PK CONV#<conversationID>  SK POS#<nodeID>
const (
	conversationPKPrefix = "CONV#"
	messageSKPrefix      = "MSG#"
	referenceSKPrefix    = "REF#"
	positionSKPrefix     = "POS#"
)

// batchWriteLimit is DynamoDB's hard cap per BatchWriteItem call
const batchWriteLimit = 25

// ForestRepository implements ports.ForestRepository using DynamoDB
type ForestRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewForestRepository creates a new ForestRepository
func NewForestRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) ports.ForestRepository {
	return &ForestRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// messageItem is the DynamoDB item for one message node
type messageItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	NodeID     string `dynamodbav:"NodeID"`
	ParentID   string `dynamodbav:"ParentID,omitempty"`
	Role       string `dynamodbav:"Role"`
	Content    string `dynamodbav:"Content"`
	Collapsed  bool   `dynamodbav:"Collapsed"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

// referenceItem is the DynamoDB item for one cross-tree reference edge
type referenceItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	SourceID   string `dynamodbav:"SourceID"`
	TargetID   string `dynamodbav:"TargetID"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
}

// positionItem is the DynamoDB item for one saved node position
type positionItem struct {
	PK         string  `dynamodbav:"PK"`
	SK         string  `dynamodbav:"SK"`
	EntityType string  `dynamodbav:"EntityType"`
	NodeID     string  `dynamodbav:"NodeID"`
	X          float64 `dynamodbav:"X"`
	Y          float64 `dynamodbav:"Y"`
	UpdatedAt  string  `dynamodbav:"UpdatedAt"`
}

// LoadForest reads the whole conversation partition and reconstructs the
// aggregate. Messages feed in creation order so labels and root discovery
// come out deterministic regardless of storage order.
func (r *ForestRepository) LoadForest(ctx context.Context, id valueobjects.ConversationID) (*aggregates.Forest, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(conversationPK(id)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query expression: %w", err)
	}

	var messages []*entities.Message
	var references []aggregates.ReferenceEdge
	positions := make(map[valueobjects.NodeID]valueobjects.Position)

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query conversation: %w", err)
		}
		for _, raw := range page.Items {
			sk := stringAttr(raw, "SK")
			switch {
			case strings.HasPrefix(sk, messageSKPrefix):
				msg, err := r.unmarshalMessage(raw)
				if err != nil {
					r.logger.Warn("Skipping unreadable message item",
						zap.String("SK", sk), zap.Error(err))
					continue
				}
				messages = append(messages, msg)
			case strings.HasPrefix(sk, referenceSKPrefix):
				var item referenceItem
				if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
					continue
				}
				sourceID, err := valueobjects.NewNodeIDFromString(item.SourceID)
				if err != nil {
					continue
				}
				targetID, err := valueobjects.NewNodeIDFromString(item.TargetID)
				if err != nil {
					continue
				}
				references = append(references, aggregates.ReferenceEdge{
					SourceID: sourceID,
					TargetID: targetID,
				})
			case strings.HasPrefix(sk, positionSKPrefix):
				var item positionItem
				if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
					continue
				}
				nodeID, err := valueobjects.NewNodeIDFromString(item.NodeID)
				if err != nil {
					continue
				}
				pos, err := valueobjects.NewPosition(item.X, item.Y)
				if err != nil {
					continue
				}
				positions[nodeID] = pos
			}
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt().Before(messages[j].CreatedAt())
	})

	return aggregates.ReconstructForest(id, messages, references, positions)
}

// AppendMessage persists a newly inserted message
func (r *ForestRepository) AppendMessage(ctx context.Context, id valueobjects.ConversationID, msg *entities.Message) error {
	item := messageItem{
		PK:         conversationPK(id),
		SK:         messageSKPrefix + msg.ID().String(),
		EntityType: "MESSAGE",
		NodeID:     msg.ID().String(),
		Role:       string(msg.Role()),
		Content:    msg.Content().Text(),
		Collapsed:  msg.IsCollapsed(),
		CreatedAt:  msg.CreatedAt().Format(time.RFC3339Nano),
		UpdatedAt:  msg.UpdatedAt().Format(time.RFC3339Nano),
	}
	if !msg.ParentID().IsZero() {
		item.ParentID = msg.ParentID().String()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		r.logger.Error("Failed to save message",
			zap.Error(err),
			zap.String("nodeID", msg.ID().String()),
		)
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// UpdateMessageContent persists the settled text of a message
func (r *ForestRepository) UpdateMessageContent(ctx context.Context, id valueobjects.ConversationID, nodeID valueobjects.NodeID, content string) error {
	update := expression.
		Set(expression.Name("Content"), expression.Value(content)).
		Set(expression.Name("UpdatedAt"), expression.Value(time.Now().Format(time.RFC3339Nano)))
	cond := expression.AttributeExists(expression.Name("PK"))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build update expression: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       messageKey(id, nodeID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to update message content: %w", err)
	}
	return nil
}

// SetCollapsed persists the collapsed flag of a message
func (r *ForestRepository) SetCollapsed(ctx context.Context, id valueobjects.ConversationID, nodeID valueobjects.NodeID, collapsed bool) error {
	update := expression.
		Set(expression.Name("Collapsed"), expression.Value(collapsed)).
		Set(expression.Name("UpdatedAt"), expression.Value(time.Now().Format(time.RFC3339Nano)))
	cond := expression.AttributeExists(expression.Name("PK"))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build update expression: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       messageKey(id, nodeID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to update collapsed flag: %w", err)
	}
	return nil
}

// DeleteMessages removes a batch of messages plus the reference edges and
// position records touching them. The aggregate already computed the
// cascade set; storage mirrors it.
func (r *ForestRepository) DeleteMessages(ctx context.Context, id valueobjects.ConversationID, nodeIDs []valueobjects.NodeID) error {
	if len(nodeIDs) == 0 {
		return nil
	}

	removed := make(map[string]bool, len(nodeIDs))
	var deletes []types.WriteRequest
	for _, nodeID := range nodeIDs {
		removed[nodeID.String()] = true
		deletes = append(deletes,
			deleteRequest(conversationPK(id), messageSKPrefix+nodeID.String()),
			deleteRequest(conversationPK(id), positionSKPrefix+nodeID.String()),
		)
	}

	refKeys, err := r.referenceKeysTouching(ctx, id, removed)
	if err != nil {
		return err
	}
	deletes = append(deletes, refKeys...)

	for start := 0; start < len(deletes); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(deletes) {
			end = len(deletes)
		}
		_, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				r.tableName: deletes[start:end],
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
	}

	r.logger.Info("Deleted message batch",
		zap.String("conversationID", id.String()),
		zap.Int("messages", len(nodeIDs)),
		zap.Int("totalItems", len(deletes)),
	)
	return nil
}

// SaveReference persists a cross-tree reference edge
func (r *ForestRepository) SaveReference(ctx context.Context, id valueobjects.ConversationID, ref aggregates.ReferenceEdge) error {
	item := referenceItem{
		PK:         conversationPK(id),
		SK:         referenceSK(ref),
		EntityType: "REFERENCE",
		SourceID:   ref.SourceID.String(),
		TargetID:   ref.TargetID.String(),
		CreatedAt:  time.Now().Format(time.RFC3339Nano),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal reference: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("failed to save reference: %w", err)
	}
	return nil
}

// DeleteReference removes a cross-tree reference edge
func (r *ForestRepository) DeleteReference(ctx context.Context, id valueobjects.ConversationID, ref aggregates.ReferenceEdge) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: conversationPK(id)},
			"SK": &types.AttributeValueMemberS{Value: referenceSK(ref)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete reference: %w", err)
	}
	return nil
}

// SavePositions persists a batch of user-arranged positions
func (r *ForestRepository) SavePositions(ctx context.Context, id valueobjects.ConversationID, positions map[valueobjects.NodeID]valueobjects.Position) error {
	if len(positions) == 0 {
		return nil
	}

	var writes []types.WriteRequest
	now := time.Now().Format(time.RFC3339Nano)
	for nodeID, pos := range positions {
		item := positionItem{
			PK:         conversationPK(id),
			SK:         positionSKPrefix + nodeID.String(),
			EntityType: "POSITION",
			NodeID:     nodeID.String(),
			X:          pos.X(),
			Y:          pos.Y(),
			UpdatedAt:  now,
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return fmt.Errorf("failed to marshal position: %w", err)
		}
		writes = append(writes, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: av},
		})
	}

	for start := 0; start < len(writes); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(writes) {
			end = len(writes)
		}
		_, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				r.tableName: writes[start:end],
			},
		})
		if err != nil {
			return fmt.Errorf("failed to save positions: %w", err)
		}
	}
	return nil
}

// referenceKeysTouching queries the reference items of the conversation
// and returns delete requests for edges with an endpoint in the removed set
func (r *ForestRepository) referenceKeysTouching(ctx context.Context, id valueobjects.ConversationID, removed map[string]bool) ([]types.WriteRequest, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(conversationPK(id))).
		And(expression.Key("SK").BeginsWith(referenceSKPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build reference query: %w", err)
	}

	var deletes []types.WriteRequest
	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query references: %w", err)
		}
		for _, raw := range page.Items {
			var item referenceItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				continue
			}
			if removed[item.SourceID] || removed[item.TargetID] {
				deletes = append(deletes, deleteRequest(item.PK, item.SK))
			}
		}
	}
	return deletes, nil
}

func (r *ForestRepository) unmarshalMessage(raw map[string]types.AttributeValue) (*entities.Message, error) {
	var item messageItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, err
	}
	nodeID, err := valueobjects.NewNodeIDFromString(item.NodeID)
	if err != nil {
		return nil, err
	}
	var parentID valueobjects.NodeID
	if item.ParentID != "" {
		parentID, err = valueobjects.NewNodeIDFromString(item.ParentID)
		if err != nil {
			return nil, err
		}
	}
	content, err := valueobjects.NewMessageContent(item.Content)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		updatedAt = createdAt
	}
	return entities.ReconstructMessage(nodeID, parentID, entities.Role(item.Role), content, createdAt, updatedAt, item.Collapsed)
}

func conversationPK(id valueobjects.ConversationID) string {
	return conversationPKPrefix + id.String()
}

func referenceSK(ref aggregates.ReferenceEdge) string {
	return fmt.Sprintf("%s%s#%s", referenceSKPrefix, ref.SourceID.String(), ref.TargetID.String())
}

func messageKey(id valueobjects.ConversationID, nodeID valueobjects.NodeID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: conversationPK(id)},
		"SK": &types.AttributeValueMemberS{Value: messageSKPrefix + nodeID.String()},
	}
}

func deleteRequest(pk, sk string) types.WriteRequest {
	return types.WriteRequest{
		DeleteRequest: &types.DeleteRequest{
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: pk},
				"SK": &types.AttributeValueMemberS{Value: sk},
			},
		},
	}
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
