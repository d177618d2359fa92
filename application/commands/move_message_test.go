package commands

import (
	"context"
	"testing"

	"loom-backend/domain/core/valueobjects"
	"loom-backend/infrastructure/persistence/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMoveMessagesHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("batch of positions persists", func(t *testing.T) {
		repo := memory.NewForestRepository()
		a := postMessage(t, repo, "conv-1", "", "a")
		b := postMessage(t, repo, "conv-1", "", "b")
		handler := NewMoveMessagesHandler(repo, zap.NewNop())

		err := handler.Handle(ctx, MoveMessagesCommand{
			ConversationID: "conv-1",
			Moves: []MovedNode{
				{NodeID: a.ID().String(), X: 10, Y: 20},
				{NodeID: b.ID().String(), X: 300, Y: 400},
			},
		})
		require.NoError(t, err)

		forest, err := repo.LoadForest(ctx, valueobjects.ConversationID("conv-1"))
		require.NoError(t, err)
		posA, ok := forest.Position(a.ID())
		require.True(t, ok)
		assert.Equal(t, 10.0, posA.X())
		assert.Equal(t, 20.0, posA.Y())
		posB, ok := forest.Position(b.ID())
		require.True(t, ok)
		assert.Equal(t, 300.0, posB.X())
	})

	t.Run("unknown node fails the batch", func(t *testing.T) {
		repo := memory.NewForestRepository()
		postMessage(t, repo, "conv-1", "", "a")
		handler := NewMoveMessagesHandler(repo, zap.NewNop())

		err := handler.Handle(ctx, MoveMessagesCommand{
			ConversationID: "conv-1",
			Moves:          []MovedNode{{NodeID: valueobjects.NewNodeID().String(), X: 1, Y: 1}},
		})
		assert.Error(t, err)
	})
}

func TestToggleCollapseHandler_Handle(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewForestRepository()
	root := postMessage(t, repo, "conv-1", "", "fold me")
	handler := NewToggleCollapseHandler(repo, zap.NewNop())

	err := handler.Handle(ctx, ToggleCollapseCommand{
		ConversationID: "conv-1",
		NodeID:         root.ID().String(),
		Collapsed:      true,
	})
	require.NoError(t, err)

	forest, err := repo.LoadForest(ctx, valueobjects.ConversationID("conv-1"))
	require.NoError(t, err)
	msg, err := forest.Get(root.ID())
	require.NoError(t, err)
	assert.True(t, msg.IsCollapsed())

	require.NoError(t, handler.Handle(ctx, ToggleCollapseCommand{
		ConversationID: "conv-1",
		NodeID:         root.ID().String(),
		Collapsed:      false,
	}))

	forest, err = repo.LoadForest(ctx, valueobjects.ConversationID("conv-1"))
	require.NoError(t, err)
	msg, err = forest.Get(root.ID())
	require.NoError(t, err)
	assert.False(t, msg.IsCollapsed())
}
