package aggregates

import (
	"testing"

	"loom-backend/domain/core/valueobjects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCanvas(t *testing.T) *Canvas {
	t.Helper()
	canvas, err := NewCanvas(valueobjects.NewCanvasID())
	require.NoError(t, err)
	return canvas
}

func testBlock(id, title string) Block {
	pos, _ := valueobjects.NewPosition(0, 0)
	return Block{
		ID:       id,
		Type:     "task",
		Title:    title,
		Status:   "open",
		Position: pos,
	}
}

func TestCanvas_AddBlock(t *testing.T) {
	canvas := newTestCanvas(t)

	assert.True(t, canvas.AddBlock(testBlock("b1", "first")))

	// Concurrent adds of the same block must converge without duplicates.
	assert.False(t, canvas.AddBlock(testBlock("b1", "duplicate")))
	require.Len(t, canvas.Blocks(), 1)

	got, ok := canvas.GetBlock("b1")
	require.True(t, ok)
	assert.Equal(t, "first", got.Title)
}

func TestCanvas_UpdateBlock(t *testing.T) {
	t.Run("last write wins", func(t *testing.T) {
		canvas := newTestCanvas(t)
		canvas.AddBlock(testBlock("b1", "original"))

		canvas.UpdateBlock(testBlock("b1", "from peer A"))
		canvas.UpdateBlock(testBlock("b1", "from peer B"))

		got, ok := canvas.GetBlock("b1")
		require.True(t, ok)
		assert.Equal(t, "from peer B", got.Title)
	})

	t.Run("update racing ahead of add inserts", func(t *testing.T) {
		canvas := newTestCanvas(t)

		canvas.UpdateBlock(testBlock("b1", "early update"))

		got, ok := canvas.GetBlock("b1")
		require.True(t, ok)
		assert.Equal(t, "early update", got.Title)
	})
}

func TestCanvas_RemoveBlock(t *testing.T) {
	canvas := newTestCanvas(t)
	canvas.AddBlock(testBlock("b1", "one"))
	canvas.AddBlock(testBlock("b2", "two"))
	canvas.AddEdge(CanvasEdge{ID: "e1", SourceID: "b1", TargetID: "b2"})

	assert.True(t, canvas.RemoveBlock("b1"))

	// Edges touching the removed block go with it.
	assert.Empty(t, canvas.Edges())
	assert.Len(t, canvas.Blocks(), 1)

	// Removing again is a no-op.
	assert.False(t, canvas.RemoveBlock("b1"))
}

func TestCanvas_Edges(t *testing.T) {
	canvas := newTestCanvas(t)
	canvas.AddBlock(testBlock("b1", "one"))
	canvas.AddBlock(testBlock("b2", "two"))

	assert.True(t, canvas.AddEdge(CanvasEdge{ID: "e1", SourceID: "b1", TargetID: "b2"}))
	assert.False(t, canvas.AddEdge(CanvasEdge{ID: "e1", SourceID: "b1", TargetID: "b2"}))
	assert.Len(t, canvas.Edges(), 1)

	assert.True(t, canvas.RemoveEdge("e1"))
	assert.False(t, canvas.RemoveEdge("e1"))
}

func TestCanvas_MergeSnapshot(t *testing.T) {
	canvas := newTestCanvas(t)
	local := testBlock("b1", "local edit")
	canvas.AddBlock(local)

	remote1 := testBlock("b1", "stale remote")
	remote2 := testBlock("b2", "new remote")
	added := canvas.MergeSnapshot(
		[]*Block{&remote1, &remote2},
		[]*CanvasEdge{{ID: "e1", SourceID: "b1", TargetID: "b2"}},
	)

	// Additive: the new block and edge land, the local edit survives.
	assert.Equal(t, 2, added)
	got, ok := canvas.GetBlock("b1")
	require.True(t, ok)
	assert.Equal(t, "local edit", got.Title)
	assert.Len(t, canvas.Blocks(), 2)
	assert.Len(t, canvas.Edges(), 1)
}
