package commands

import (
	"context"
	"testing"

	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"
	"loom-backend/infrastructure/persistence/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSaveCanvasHandler_Handle(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCanvasRepository()
	handler := NewSaveCanvasHandler(repo, zap.NewNop())

	pos, err := valueobjects.NewPosition(50, 80)
	require.NoError(t, err)

	err = handler.Handle(ctx, SaveCanvasCommand{
		CanvasID: "canvas-1",
		Blocks: []*aggregates.Block{
			{ID: "b1", Type: "task", Title: "ship it", Status: "open", Position: pos},
			{ID: "b2", Type: "note", Title: "remember", Position: pos},
		},
		Edges: []*aggregates.CanvasEdge{
			{ID: "e1", SourceID: "b1", TargetID: "b2"},
		},
	})
	require.NoError(t, err)

	canvas, err := repo.LoadCanvas(ctx, valueobjects.CanvasID("canvas-1"))
	require.NoError(t, err)
	assert.Len(t, canvas.Blocks(), 2)
	assert.Len(t, canvas.Edges(), 1)

	got, ok := canvas.GetBlock("b1")
	require.True(t, ok)
	assert.Equal(t, "ship it", got.Title)
	assert.Equal(t, 50.0, got.Position.X())

	// A later snapshot replaces the stored state wholesale.
	err = handler.Handle(ctx, SaveCanvasCommand{
		CanvasID: "canvas-1",
		Blocks:   []*aggregates.Block{{ID: "b1", Type: "task", Title: "shipped", Status: "done", Position: pos}},
	})
	require.NoError(t, err)

	canvas, err = repo.LoadCanvas(ctx, valueobjects.CanvasID("canvas-1"))
	require.NoError(t, err)
	assert.Len(t, canvas.Blocks(), 1)
	assert.Empty(t, canvas.Edges())
}
