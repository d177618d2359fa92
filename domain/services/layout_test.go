package services

import (
	"testing"
	"time"

	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// boxesFor pairs the computed positions with each node's resolved size so
// tests can check the no-overlap guarantee directly.
func boxesFor(t *testing.T, forest *aggregates.Forest, positions map[valueobjects.NodeID]valueobjects.Position, measured map[valueobjects.NodeID]valueobjects.Size) []valueobjects.Box {
	t.Helper()
	engine := NewLayoutEngine()
	var boxes []valueobjects.Box
	for _, msg := range forest.Messages() {
		pos, ok := positions[msg.ID()]
		require.True(t, ok, "every node must be positioned")
		boxes = append(boxes, valueobjects.Box{Position: pos, Size: engine.sizeOf(msg, measured)})
	}
	return boxes
}

func assertNoOverlap(t *testing.T, boxes []valueobjects.Box) {
	t.Helper()
	for i := 0; i < len(boxes); i++ {
		for j := i + 1; j < len(boxes); j++ {
			assert.False(t, boxes[i].Intersects(boxes[j]), "boxes %d and %d overlap", i, j)
		}
	}
}

func TestLayoutEngine_Layout(t *testing.T) {
	t.Run("multi-tree forest has no overlapping boxes", func(t *testing.T) {
		base := time.Now()
		rootA := reconstructedMessage(t, valueobjects.NodeID{}, base)
		a1 := reconstructedMessage(t, rootA.ID(), base.Add(1*time.Second))
		a2 := reconstructedMessage(t, rootA.ID(), base.Add(2*time.Second))
		a11 := reconstructedMessage(t, a1.ID(), base.Add(3*time.Second))
		a12 := reconstructedMessage(t, a1.ID(), base.Add(4*time.Second))
		rootB := reconstructedMessage(t, valueobjects.NodeID{}, base.Add(5*time.Second))
		b1 := reconstructedMessage(t, rootB.ID(), base.Add(6*time.Second))

		forest, err := aggregates.ReconstructForest(
			valueobjects.NewConversationID(),
			[]*entities.Message{rootA, a1, a2, a11, a12, rootB, b1},
			nil, nil,
		)
		require.NoError(t, err)

		positions := NewLayoutEngine().Layout(forest, nil)

		require.Len(t, positions, 7)
		assertNoOverlap(t, boxesFor(t, forest, positions, nil))

		// Children sit a full rank below their parent.
		assert.Greater(t, positions[a1.ID()].Y(), positions[rootA.ID()].Y())
		assert.Greater(t, positions[a11.ID()].Y(), positions[a1.ID()].Y())

		// The second tree is packed to the right of the first.
		assert.Greater(t, positions[rootB.ID()].X(), positions[rootA.ID()].X())
	})

	t.Run("saved positions win outright", func(t *testing.T) {
		base := time.Now()
		root := reconstructedMessage(t, valueobjects.NodeID{}, base)
		child := reconstructedMessage(t, root.ID(), base.Add(time.Second))

		pinnedRoot, _ := valueobjects.NewPosition(1000, 2000)
		pinnedChild, _ := valueobjects.NewPosition(1500, 2500)
		forest, err := aggregates.ReconstructForest(
			valueobjects.NewConversationID(),
			[]*entities.Message{root, child},
			nil,
			map[valueobjects.NodeID]valueobjects.Position{
				root.ID():  pinnedRoot,
				child.ID(): pinnedChild,
			},
		)
		require.NoError(t, err)

		positions := NewLayoutEngine().Layout(forest, nil)

		assert.True(t, positions[root.ID()].Equals(pinnedRoot))
		assert.True(t, positions[child.ID()].Equals(pinnedChild))
	})

	t.Run("new node joins a pinned tree next to its parent", func(t *testing.T) {
		base := time.Now()
		root := reconstructedMessage(t, valueobjects.NodeID{}, base)
		placed := reconstructedMessage(t, root.ID(), base.Add(1*time.Second))
		fresh := reconstructedMessage(t, root.ID(), base.Add(2*time.Second))

		pinnedRoot, _ := valueobjects.NewPosition(500, 100)
		pinnedChild, _ := valueobjects.NewPosition(300, 400)
		forest, err := aggregates.ReconstructForest(
			valueobjects.NewConversationID(),
			[]*entities.Message{root, placed, fresh},
			nil,
			map[valueobjects.NodeID]valueobjects.Position{
				root.ID():   pinnedRoot,
				placed.ID(): pinnedChild,
			},
		)
		require.NoError(t, err)

		engine := NewLayoutEngine()
		positions := engine.Layout(forest, nil)

		// Pinned nodes stay put.
		assert.True(t, positions[root.ID()].Equals(pinnedRoot))
		assert.True(t, positions[placed.ID()].Equals(pinnedChild))

		// The fresh node fans out from its parent by sibling ordinal.
		rootMsg, err := forest.Get(root.ID())
		require.NoError(t, err)
		want := engine.PlaceChild(pinnedRoot, engine.sizeOf(rootMsg, nil), engine.sizeOf(fresh, nil), 1)
		assert.True(t, positions[fresh.ID()].Equals(want))
	})

	t.Run("measured sizes override role defaults", func(t *testing.T) {
		base := time.Now()
		root := reconstructedMessage(t, valueobjects.NodeID{}, base)
		left := reconstructedMessage(t, root.ID(), base.Add(1*time.Second))
		right := reconstructedMessage(t, root.ID(), base.Add(2*time.Second))

		forest, err := aggregates.ReconstructForest(
			valueobjects.NewConversationID(),
			[]*entities.Message{root, left, right},
			nil, nil,
		)
		require.NoError(t, err)

		wide, _ := valueobjects.NewSize(900, 300)
		measured := map[valueobjects.NodeID]valueobjects.Size{left.ID(): wide}

		positions := NewLayoutEngine().Layout(forest, measured)

		assertNoOverlap(t, boxesFor(t, forest, positions, measured))
		// The oversized sibling pushes the next one at least its width away.
		assert.GreaterOrEqual(t, positions[right.ID()].X()-positions[left.ID()].X(), wide.Width())
	})

	t.Run("empty forest", func(t *testing.T) {
		forest, err := aggregates.NewForest(valueobjects.NewConversationID())
		require.NoError(t, err)
		assert.Empty(t, NewLayoutEngine().Layout(forest, nil))
	})
}

func TestLayoutEngine_PlaceChild(t *testing.T) {
	engine := NewLayoutEngine()
	parentPos, _ := valueobjects.NewPosition(100, 50)
	parentSize, _ := valueobjects.NewSize(220, 90)
	childSize, _ := valueobjects.NewSize(340, 170)

	first := engine.PlaceChild(parentPos, parentSize, childSize, 0)
	second := engine.PlaceChild(parentPos, parentSize, childSize, 1)

	assert.Equal(t, 100.0, first.X())
	assert.Equal(t, 50.0+90.0+rankGap, first.Y())
	assert.Equal(t, 100.0+340.0+siblingGap, second.X())
	assert.Equal(t, first.Y(), second.Y())
}
