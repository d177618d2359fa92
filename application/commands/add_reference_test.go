package commands

import (
	"context"
	"testing"

	"loom-backend/domain/core/valueobjects"
	domainservices "loom-backend/domain/services"
	"loom-backend/infrastructure/persistence/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAddReferenceHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("cross-tree reference carries no warning", func(t *testing.T) {
		repo := memory.NewForestRepository()
		source := postMessage(t, repo, "conv-1", "", "tree one")
		target := postMessage(t, repo, "conv-1", "", "tree two")
		handler := NewAddReferenceHandler(repo, domainservices.NewCycleGuard(), nopEventBus{}, zap.NewNop())

		result, err := handler.Handle(ctx, AddReferenceCommand{
			ConversationID: "conv-1",
			SourceID:       source.ID().String(),
			TargetID:       target.ID().String(),
		})
		require.NoError(t, err)
		assert.False(t, result.CycleWarning)

		forest, err := repo.LoadForest(ctx, valueobjects.ConversationID("conv-1"))
		require.NoError(t, err)
		require.Len(t, forest.References(), 1)
	})

	t.Run("ancestor reference is created with a warning", func(t *testing.T) {
		repo := memory.NewForestRepository()
		root := postMessage(t, repo, "conv-1", "", "root")
		leaf := postMessage(t, repo, "conv-1", root.ID().String(), "leaf")
		handler := NewAddReferenceHandler(repo, domainservices.NewCycleGuard(), nopEventBus{}, zap.NewNop())

		result, err := handler.Handle(ctx, AddReferenceCommand{
			ConversationID: "conv-1",
			SourceID:       leaf.ID().String(),
			TargetID:       root.ID().String(),
		})
		require.NoError(t, err)

		// The edge exists anyway; the warning is advisory.
		assert.True(t, result.CycleWarning)
		forest, err := repo.LoadForest(ctx, valueobjects.ConversationID("conv-1"))
		require.NoError(t, err)
		assert.Len(t, forest.References(), 1)
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		repo := memory.NewForestRepository()
		source := postMessage(t, repo, "conv-1", "", "source")
		handler := NewAddReferenceHandler(repo, domainservices.NewCycleGuard(), nopEventBus{}, zap.NewNop())

		_, err := handler.Handle(ctx, AddReferenceCommand{
			ConversationID: "conv-1",
			SourceID:       source.ID().String(),
			TargetID:       valueobjects.NewNodeID().String(),
		})
		assert.Error(t, err)
	})
}

func TestRemoveReferenceHandler_Handle(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewForestRepository()
	source := postMessage(t, repo, "conv-1", "", "tree one")
	target := postMessage(t, repo, "conv-1", "", "tree two")
	require.NoError(t, repo.SaveReference(ctx, "conv-1", referenceEdge(source.ID(), target.ID())))

	handler := NewRemoveReferenceHandler(repo, zap.NewNop())
	err := handler.Handle(ctx, RemoveReferenceCommand{
		ConversationID: "conv-1",
		SourceID:       source.ID().String(),
		TargetID:       target.ID().String(),
	})
	require.NoError(t, err)

	forest, err := repo.LoadForest(ctx, valueobjects.ConversationID("conv-1"))
	require.NoError(t, err)
	assert.Empty(t, forest.References())
}
