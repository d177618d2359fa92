package queries

import (
	"context"
	"testing"

	"loom-backend/application/commands"
	"loom-backend/application/services"
	"loom-backend/domain/core/valueobjects"
	domainservices "loom-backend/domain/services"
	"loom-backend/infrastructure/persistence/memory"
	pkgerrors "loom-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPreviewContextHandler_Handle(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	t.Run("preview matches the reply path", func(t *testing.T) {
		repo := memory.NewForestRepository()
		root := seedMessage(t, repo, "conv-1", "", "main question")
		refRoot := seedMessage(t, repo, "conv-1", "", "side context")
		leaf := seedMessage(t, repo, "conv-1", root.ID().String(), "follow-up")

		refHandler := commands.NewAddReferenceHandler(repo, domainservices.NewCycleGuard(), nopEventBus{}, logger)
		_, err := refHandler.Handle(ctx, commands.AddReferenceCommand{
			ConversationID: "conv-1", SourceID: leaf.ID().String(), TargetID: refRoot.ID().String(),
		})
		require.NoError(t, err)

		handler := NewPreviewContextHandler(repo, services.NewContextBuilder(logger), logger)
		preview, err := handler.Handle(ctx, PreviewContextQuery{
			ConversationID: "conv-1",
			TargetID:       leaf.ID().String(),
		})
		require.NoError(t, err)

		assert.Equal(t, leaf.ID().String(), preview.TargetID)
		var texts []string
		for _, m := range preview.Messages {
			texts = append(texts, m.Content)
		}
		assert.Equal(t, []string{"main question", "side context", "follow-up"}, texts)
	})

	t.Run("unknown target", func(t *testing.T) {
		repo := memory.NewForestRepository()
		seedMessage(t, repo, "conv-1", "", "root")

		handler := NewPreviewContextHandler(repo, services.NewContextBuilder(logger), logger)
		_, err := handler.Handle(ctx, PreviewContextQuery{
			ConversationID: "conv-1",
			TargetID:       valueobjects.NewNodeID().String(),
		})
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeNotFound))
	})
}
