package queries

import (
	"context"
	"testing"

	"loom-backend/application/commands"
	"loom-backend/application/ports"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"
	"loom-backend/domain/events"
	domainservices "loom-backend/domain/services"
	"loom-backend/infrastructure/persistence/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopEventBus struct{}

func (nopEventBus) Publish(ctx context.Context, event events.DomainEvent) error { return nil }
func (nopEventBus) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	return nil
}

func seedMessage(t *testing.T, repo ports.ForestRepository, conversationID, parentID, content string) *entities.Message {
	t.Helper()
	handler := commands.NewPostMessageHandler(repo, nopEventBus{}, zap.NewNop())
	msg, err := handler.Handle(context.Background(), commands.PostMessageCommand{
		ConversationID: conversationID,
		ParentID:       parentID,
		Content:        content,
	})
	require.NoError(t, err)
	return msg
}

func newGraphHandler(repo ports.ForestRepository) *GetConversationGraphHandler {
	return NewGetConversationGraphHandler(
		repo,
		domainservices.NewLabeler(),
		domainservices.NewLayoutEngine(),
		domainservices.NewCycleGuard(),
		zap.NewNop(),
	)
}

func TestGetConversationGraphHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("labels, parentage, and positions", func(t *testing.T) {
		repo := memory.NewForestRepository()
		root := seedMessage(t, repo, "conv-1", "", "root")
		child := seedMessage(t, repo, "conv-1", root.ID().String(), "child")
		otherRoot := seedMessage(t, repo, "conv-1", "", "second tree")

		view, err := newGraphHandler(repo).Handle(ctx, GetConversationGraphQuery{ConversationID: "conv-1"})
		require.NoError(t, err)

		require.Len(t, view.Messages, 3)
		byID := make(map[string]MessageView, len(view.Messages))
		for _, mv := range view.Messages {
			byID[mv.ID] = mv
		}

		assert.Equal(t, "A1", byID[root.ID().String()].Label)
		assert.Equal(t, "A2", byID[child.ID().String()].Label)
		assert.Equal(t, "B1", byID[otherRoot.ID().String()].Label)
		assert.Equal(t, root.ID().String(), byID[child.ID().String()].ParentID)
		assert.Empty(t, byID[root.ID().String()].ParentID)

		// Automatic layout puts the child a rank below and the second tree
		// off to the right; nothing is pinned.
		assert.Greater(t, byID[child.ID().String()].Y, byID[root.ID().String()].Y)
		assert.Greater(t, byID[otherRoot.ID().String()].X, byID[root.ID().String()].X)
		for _, mv := range view.Messages {
			assert.False(t, mv.Pinned)
		}
	})

	t.Run("pinned flag reflects saved positions", func(t *testing.T) {
		repo := memory.NewForestRepository()
		root := seedMessage(t, repo, "conv-1", "", "root")

		moveHandler := commands.NewMoveMessagesHandler(repo, zap.NewNop())
		require.NoError(t, moveHandler.Handle(ctx, commands.MoveMessagesCommand{
			ConversationID: "conv-1",
			Moves:          []commands.MovedNode{{NodeID: root.ID().String(), X: 777, Y: 888}},
		}))

		view, err := newGraphHandler(repo).Handle(ctx, GetConversationGraphQuery{ConversationID: "conv-1"})
		require.NoError(t, err)

		require.Len(t, view.Messages, 1)
		assert.True(t, view.Messages[0].Pinned)
		assert.Equal(t, 777.0, view.Messages[0].X)
		assert.Equal(t, 888.0, view.Messages[0].Y)
	})

	t.Run("references carry cycle flags", func(t *testing.T) {
		repo := memory.NewForestRepository()
		root := seedMessage(t, repo, "conv-1", "", "root")
		leaf := seedMessage(t, repo, "conv-1", root.ID().String(), "leaf")
		other := seedMessage(t, repo, "conv-1", "", "other tree")

		refHandler := commands.NewAddReferenceHandler(repo, domainservices.NewCycleGuard(), nopEventBus{}, zap.NewNop())
		_, err := refHandler.Handle(ctx, commands.AddReferenceCommand{
			ConversationID: "conv-1", SourceID: leaf.ID().String(), TargetID: root.ID().String(),
		})
		require.NoError(t, err)
		_, err = refHandler.Handle(ctx, commands.AddReferenceCommand{
			ConversationID: "conv-1", SourceID: leaf.ID().String(), TargetID: other.ID().String(),
		})
		require.NoError(t, err)

		view, err := newGraphHandler(repo).Handle(ctx, GetConversationGraphQuery{ConversationID: "conv-1"})
		require.NoError(t, err)

		require.Len(t, view.References, 2)
		flags := make(map[string]bool, 2)
		for _, ref := range view.References {
			flags[ref.TargetID] = ref.CycleWarning
		}
		assert.True(t, flags[root.ID().String()])
		assert.False(t, flags[other.ID().String()])
	})

	t.Run("measured sizes feed the layout", func(t *testing.T) {
		repo := memory.NewForestRepository()
		root := seedMessage(t, repo, "conv-1", "", "root")
		left := seedMessage(t, repo, "conv-1", root.ID().String(), "left")
		right := seedMessage(t, repo, "conv-1", root.ID().String(), "right")

		view, err := newGraphHandler(repo).Handle(ctx, GetConversationGraphQuery{
			ConversationID: "conv-1",
			MeasuredSizes:  map[string]SizeInput{left.ID().String(): {Width: 900, Height: 100}},
		})
		require.NoError(t, err)

		byID := make(map[string]MessageView, len(view.Messages))
		for _, mv := range view.Messages {
			byID[mv.ID] = mv
		}
		// The oversized sibling pushes the next one at least its width away.
		assert.GreaterOrEqual(t, byID[right.ID().String()].X-byID[left.ID().String()].X, 900.0)
	})

	t.Run("unknown conversation loads empty", func(t *testing.T) {
		repo := memory.NewForestRepository()
		view, err := newGraphHandler(repo).Handle(ctx, GetConversationGraphQuery{ConversationID: valueobjects.NewConversationID().String()})
		require.NoError(t, err)
		assert.Empty(t, view.Messages)
		assert.Empty(t, view.References)
	})
}
