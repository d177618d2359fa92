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

func TestEditMessageHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("leaf edit persists", func(t *testing.T) {
		repo := memory.NewForestRepository()
		root := postMessage(t, repo, "conv-1", "", "first draft")
		handler := NewEditMessageHandler(repo, nopEventBus{}, zap.NewNop())

		err := handler.Handle(ctx, EditMessageCommand{
			ConversationID: "conv-1",
			NodeID:         root.ID().String(),
			Content:        "second draft",
		})
		require.NoError(t, err)

		forest, err := repo.LoadForest(ctx, valueobjects.ConversationID("conv-1"))
		require.NoError(t, err)
		msg, err := forest.Get(root.ID())
		require.NoError(t, err)
		assert.Equal(t, "second draft", msg.Content().Text())
	})

	t.Run("message with replies is immutable", func(t *testing.T) {
		repo := memory.NewForestRepository()
		root := postMessage(t, repo, "conv-1", "", "root")
		postMessage(t, repo, "conv-1", root.ID().String(), "reply")
		handler := NewEditMessageHandler(repo, nopEventBus{}, zap.NewNop())

		err := handler.Handle(ctx, EditMessageCommand{
			ConversationID: "conv-1",
			NodeID:         root.ID().String(),
			Content:        "rewritten history",
		})
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeConflict))
	})

	t.Run("unknown node", func(t *testing.T) {
		repo := memory.NewForestRepository()
		postMessage(t, repo, "conv-1", "", "root")
		handler := NewEditMessageHandler(repo, nopEventBus{}, zap.NewNop())

		err := handler.Handle(ctx, EditMessageCommand{
			ConversationID: "conv-1",
			NodeID:         valueobjects.NewNodeID().String(),
			Content:        "whatever",
		})
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeNotFound))
	})
}
