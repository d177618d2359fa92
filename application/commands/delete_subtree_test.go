package commands

import (
	"context"
	"testing"

	"loom-backend/domain/core/valueobjects"
	"loom-backend/infrastructure/persistence/memory"
	pkgerrors "loom-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDeleteSubtreeHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the subtree and reports what went", func(t *testing.T) {
		repo := memory.NewForestRepository()
		keep := postMessage(t, repo, "conv-1", "", "keep me")
		drop := postMessage(t, repo, "conv-1", "", "drop me")
		dropChild := postMessage(t, repo, "conv-1", drop.ID().String(), "goes too")
		handler := NewDeleteSubtreeHandler(repo, nopEventBus{}, zap.NewNop())

		result, err := handler.Handle(ctx, DeleteSubtreeCommand{
			ConversationID: "conv-1",
			NodeID:         drop.ID().String(),
		})
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{drop.ID().String(), dropChild.ID().String()}, result.RemovedIDs)

		forest, err := repo.LoadForest(ctx, valueobjects.ConversationID("conv-1"))
		require.NoError(t, err)
		assert.Equal(t, 1, forest.Len())
		assert.True(t, forest.Has(keep.ID()))
	})

	t.Run("references into the removed subtree cascade", func(t *testing.T) {
		repo := memory.NewForestRepository()
		keep := postMessage(t, repo, "conv-1", "", "keep me")
		drop := postMessage(t, repo, "conv-1", "", "drop me")
		require.NoError(t, repo.SaveReference(ctx, "conv-1", referenceEdge(keep.ID(), drop.ID())))

		handler := NewDeleteSubtreeHandler(repo, nopEventBus{}, zap.NewNop())
		_, err := handler.Handle(ctx, DeleteSubtreeCommand{
			ConversationID: "conv-1",
			NodeID:         drop.ID().String(),
		})
		require.NoError(t, err)

		forest, err := repo.LoadForest(ctx, valueobjects.ConversationID("conv-1"))
		require.NoError(t, err)
		assert.Empty(t, forest.References())
	})

	t.Run("unknown node", func(t *testing.T) {
		repo := memory.NewForestRepository()
		postMessage(t, repo, "conv-1", "", "root")
		handler := NewDeleteSubtreeHandler(repo, nopEventBus{}, zap.NewNop())

		_, err := handler.Handle(ctx, DeleteSubtreeCommand{
			ConversationID: "conv-1",
			NodeID:         valueobjects.NewNodeID().String(),
		})
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeNotFound))
	})
}
