package dynamodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"loom-backend/application/ports"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// Canvas partition layout:
//
//	PK CANVAS#<canvasID>  SK BLOCK#<blockID>
//	PK CANVAS#<canvasID>  SK EDGE#<edgeID>
const (
	canvasPKPrefix = "CANVAS#"
	blockSKPrefix  = "BLOCK#"
	edgeSKPrefix   = "EDGE#"
)

// CanvasRepository implements ports.CanvasRepository using DynamoDB
type CanvasRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewCanvasRepository creates a new CanvasRepository
func NewCanvasRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) ports.CanvasRepository {
	return &CanvasRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// blockItem is the DynamoDB item for one canvas block
type blockItem struct {
	PK          string  `dynamodbav:"PK"`
	SK          string  `dynamodbav:"SK"`
	EntityType  string  `dynamodbav:"EntityType"`
	BlockID     string  `dynamodbav:"BlockID"`
	BlockType   string  `dynamodbav:"BlockType"`
	Title       string  `dynamodbav:"Title"`
	Description string  `dynamodbav:"Description"`
	Status      string  `dynamodbav:"Status"`
	X           float64 `dynamodbav:"X"`
	Y           float64 `dynamodbav:"Y"`
	UpdatedAt   string  `dynamodbav:"UpdatedAt"`
}

// edgeItem is the DynamoDB item for one canvas edge
type edgeItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	EdgeID     string `dynamodbav:"EdgeID"`
	SourceID   string `dynamodbav:"SourceID"`
	TargetID   string `dynamodbav:"TargetID"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

// LoadCanvas reads the whole canvas partition and reconstructs the aggregate
func (r *CanvasRepository) LoadCanvas(ctx context.Context, id valueobjects.CanvasID) (*aggregates.Canvas, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(canvasPKPrefix + id.String()))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query expression: %w", err)
	}

	var blocks []*aggregates.Block
	var edges []*aggregates.CanvasEdge

	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query canvas: %w", err)
		}
		for _, raw := range page.Items {
			sk := stringAttr(raw, "SK")
			switch {
			case strings.HasPrefix(sk, blockSKPrefix):
				var item blockItem
				if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
					r.logger.Warn("Skipping unreadable block item", zap.String("SK", sk), zap.Error(err))
					continue
				}
				pos, err := valueobjects.NewPosition(item.X, item.Y)
				if err != nil {
					continue
				}
				blocks = append(blocks, &aggregates.Block{
					ID:          item.BlockID,
					Type:        item.BlockType,
					Title:       item.Title,
					Description: item.Description,
					Status:      item.Status,
					Position:    pos,
				})
			case strings.HasPrefix(sk, edgeSKPrefix):
				var item edgeItem
				if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
					continue
				}
				edges = append(edges, &aggregates.CanvasEdge{
					ID:       item.EdgeID,
					SourceID: item.SourceID,
					TargetID: item.TargetID,
				})
			}
		}
	}

	return aggregates.ReconstructCanvas(id, blocks, edges)
}

// SaveCanvas persists the full canvas state: put every live item, then
// delete stored items that no longer exist.
func (r *CanvasRepository) SaveCanvas(ctx context.Context, canvas *aggregates.Canvas) error {
	pk := canvasPKPrefix + canvas.ID().String()
	now := time.Now().Format(time.RFC3339Nano)

	live := make(map[string]bool)
	var writes []types.WriteRequest

	for _, block := range canvas.Blocks() {
		sk := blockSKPrefix + block.ID
		live[sk] = true
		item := blockItem{
			PK:          pk,
			SK:          sk,
			EntityType:  "BLOCK",
			BlockID:     block.ID,
			BlockType:   block.Type,
			Title:       block.Title,
			Description: block.Description,
			Status:      block.Status,
			X:           block.Position.X(),
			Y:           block.Position.Y(),
			UpdatedAt:   now,
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return fmt.Errorf("failed to marshal block: %w", err)
		}
		writes = append(writes, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}

	for _, edge := range canvas.Edges() {
		sk := edgeSKPrefix + edge.ID
		live[sk] = true
		item := edgeItem{
			PK:         pk,
			SK:         sk,
			EntityType: "EDGE",
			EdgeID:     edge.ID,
			SourceID:   edge.SourceID,
			TargetID:   edge.TargetID,
			UpdatedAt:  now,
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return fmt.Errorf("failed to marshal edge: %w", err)
		}
		writes = append(writes, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}

	stale, err := r.staleKeys(ctx, pk, live)
	if err != nil {
		return err
	}
	writes = append(writes, stale...)

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
			return fmt.Errorf("failed to save canvas: %w", err)
		}
	}

	r.logger.Debug("Canvas persisted",
		zap.String("canvasID", canvas.ID().String()),
		zap.Int("items", len(writes)),
		zap.Int("staleRemoved", len(stale)),
	)
	return nil
}

// staleKeys returns delete requests for stored items absent from the live set
func (r *CanvasRepository) staleKeys(ctx context.Context, pk string, live map[string]bool) ([]types.WriteRequest, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(pk))
	proj := expression.NamesList(expression.Name("PK"), expression.Name("SK"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithProjection(proj).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build stale-key query: %w", err)
	}

	var deletes []types.WriteRequest
	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query canvas keys: %w", err)
		}
		for _, raw := range page.Items {
			sk := stringAttr(raw, "SK")
			if !live[sk] {
				deletes = append(deletes, deleteRequest(pk, sk))
			}
		}
	}
	return deletes, nil
}
