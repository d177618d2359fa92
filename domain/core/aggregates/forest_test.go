package aggregates

import (
	"testing"
	"time"

	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"
	pkgerrors "loom-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestForest(t *testing.T) *Forest {
	t.Helper()
	forest, err := NewForest(valueobjects.NewConversationID())
	require.NoError(t, err)
	return forest
}

func mustContent(t *testing.T, text string) valueobjects.MessageContent {
	t.Helper()
	content, err := valueobjects.NewMessageContent(text)
	require.NoError(t, err)
	return content
}

func addUserMessage(t *testing.T, forest *Forest, parentID valueobjects.NodeID, text string) *entities.Message {
	t.Helper()
	msg, err := entities.NewUserMessage(parentID, mustContent(t, text))
	require.NoError(t, err)
	require.NoError(t, forest.Insert(msg))
	return msg
}

func TestForest_Insert(t *testing.T) {
	t.Run("root and children", func(t *testing.T) {
		forest := newTestForest(t)

		root := addUserMessage(t, forest, valueobjects.NodeID{}, "root")
		child := addUserMessage(t, forest, root.ID(), "child")

		assert.Equal(t, 2, forest.Len())
		assert.True(t, forest.Has(root.ID()))
		assert.True(t, forest.Has(child.ID()))
	})

	t.Run("rejects unknown parent", func(t *testing.T) {
		forest := newTestForest(t)

		msg, err := entities.NewUserMessage(valueobjects.NewNodeID(), mustContent(t, "orphan"))
		require.NoError(t, err)

		err = forest.Insert(msg)
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeNotFound))
	})

	t.Run("rejects duplicate ID", func(t *testing.T) {
		forest := newTestForest(t)
		root := addUserMessage(t, forest, valueobjects.NodeID{}, "root")

		err := forest.Insert(root)
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeConflict))
	})
}

func TestForest_Roots(t *testing.T) {
	t.Run("insertion order", func(t *testing.T) {
		forest := newTestForest(t)

		first := addUserMessage(t, forest, valueobjects.NodeID{}, "first tree")
		addUserMessage(t, forest, first.ID(), "reply")
		second := addUserMessage(t, forest, valueobjects.NodeID{}, "second tree")

		roots := forest.Roots()
		require.Len(t, roots, 2)
		assert.Equal(t, first.ID(), roots[0].ID())
		assert.Equal(t, second.ID(), roots[1].ID())
	})

	t.Run("missing parent degrades node to root", func(t *testing.T) {
		// A stored parent that no longer exists must not fail the load;
		// the node becomes a root of its own tree.
		ghostParent := valueobjects.NewNodeID()
		orphan, err := entities.ReconstructMessage(
			valueobjects.NewNodeID(), ghostParent, entities.RoleUser,
			valueobjects.MessageContent{}, time.Now(), time.Now(), false,
		)
		require.NoError(t, err)

		forest, err := ReconstructForest(
			valueobjects.NewConversationID(),
			[]*entities.Message{orphan},
			nil, nil,
		)
		require.NoError(t, err)

		roots := forest.Roots()
		require.Len(t, roots, 1)
		assert.Equal(t, orphan.ID(), roots[0].ID())

		_, hasParent := forest.Parent(orphan.ID())
		assert.False(t, hasParent)
	})
}

func TestForest_AncestorChain(t *testing.T) {
	forest := newTestForest(t)
	root := addUserMessage(t, forest, valueobjects.NodeID{}, "root")
	mid := addUserMessage(t, forest, root.ID(), "mid")
	leaf := addUserMessage(t, forest, mid.ID(), "leaf")

	chain := forest.AncestorChain(leaf.ID())
	require.Len(t, chain, 3)
	assert.Equal(t, leaf.ID(), chain[0].ID())
	assert.Equal(t, mid.ID(), chain[1].ID())
	assert.Equal(t, root.ID(), chain[2].ID())

	rootOf, err := forest.RootOf(leaf.ID())
	require.NoError(t, err)
	assert.Equal(t, root.ID(), rootOf.ID())
}

func TestForest_Subtree(t *testing.T) {
	forest := newTestForest(t)
	root := addUserMessage(t, forest, valueobjects.NodeID{}, "root")
	a := addUserMessage(t, forest, root.ID(), "a")
	b := addUserMessage(t, forest, root.ID(), "b")
	aa := addUserMessage(t, forest, a.ID(), "aa")

	subtree := forest.Subtree(root.ID())
	require.Len(t, subtree, 4)
	// Breadth-first: root, then both children, then the grandchild.
	assert.Equal(t, root.ID(), subtree[0].ID())
	assert.Equal(t, a.ID(), subtree[1].ID())
	assert.Equal(t, b.ID(), subtree[2].ID())
	assert.Equal(t, aa.ID(), subtree[3].ID())
}

func TestForest_DeleteSubtree(t *testing.T) {
	t.Run("cascades references and positions", func(t *testing.T) {
		forest := newTestForest(t)
		keepRoot := addUserMessage(t, forest, valueobjects.NodeID{}, "keep")
		dropRoot := addUserMessage(t, forest, valueobjects.NodeID{}, "drop")
		dropChild := addUserMessage(t, forest, dropRoot.ID(), "drop child")

		require.NoError(t, forest.AddReference(keepRoot.ID(), dropChild.ID()))
		pos, _ := valueobjects.NewPosition(10, 20)
		require.NoError(t, forest.SetPosition(dropChild.ID(), pos))

		removed, err := forest.DeleteSubtree(dropRoot.ID())
		require.NoError(t, err)
		assert.Len(t, removed, 2)

		assert.False(t, forest.Has(dropRoot.ID()))
		assert.False(t, forest.Has(dropChild.ID()))
		assert.True(t, forest.Has(keepRoot.ID()))
		assert.Empty(t, forest.References())
		_, hasPos := forest.Position(dropChild.ID())
		assert.False(t, hasPos)
	})

	t.Run("unknown node", func(t *testing.T) {
		forest := newTestForest(t)
		_, err := forest.DeleteSubtree(valueobjects.NewNodeID())
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeNotFound))
	})
}

func TestForest_References(t *testing.T) {
	t.Run("duplicate edges are idempotent", func(t *testing.T) {
		forest := newTestForest(t)
		a := addUserMessage(t, forest, valueobjects.NodeID{}, "a")
		b := addUserMessage(t, forest, valueobjects.NodeID{}, "b")

		require.NoError(t, forest.AddReference(a.ID(), b.ID()))
		require.NoError(t, forest.AddReference(a.ID(), b.ID()))

		assert.Len(t, forest.References(), 1)
		assert.Equal(t, []valueobjects.NodeID{b.ID()}, forest.ReferencesFrom(a.ID()))
	})

	t.Run("cyclic pair is accepted", func(t *testing.T) {
		// Reference edges never participate in the tree invariant, so a
		// mutual pair must be storable.
		forest := newTestForest(t)
		a := addUserMessage(t, forest, valueobjects.NodeID{}, "a")
		b := addUserMessage(t, forest, valueobjects.NodeID{}, "b")

		require.NoError(t, forest.AddReference(a.ID(), b.ID()))
		require.NoError(t, forest.AddReference(b.ID(), a.ID()))
		assert.Len(t, forest.References(), 2)
	})

	t.Run("remove", func(t *testing.T) {
		forest := newTestForest(t)
		a := addUserMessage(t, forest, valueobjects.NodeID{}, "a")
		b := addUserMessage(t, forest, valueobjects.NodeID{}, "b")
		require.NoError(t, forest.AddReference(a.ID(), b.ID()))

		forest.RemoveReference(a.ID(), b.ID())
		assert.Empty(t, forest.References())
	})
}

func TestForest_IsLeaf(t *testing.T) {
	forest := newTestForest(t)
	root := addUserMessage(t, forest, valueobjects.NodeID{}, "root")
	child := addUserMessage(t, forest, root.ID(), "child")

	assert.False(t, forest.IsLeaf(root.ID()))
	assert.True(t, forest.IsLeaf(child.ID()))
}

func TestReconstructForest_DropsDanglingReferences(t *testing.T) {
	msg, err := entities.ReconstructMessage(
		valueobjects.NewNodeID(), valueobjects.NodeID{}, entities.RoleUser,
		valueobjects.MessageContent{}, time.Now(), time.Now(), false,
	)
	require.NoError(t, err)

	forest, err := ReconstructForest(
		valueobjects.NewConversationID(),
		[]*entities.Message{msg},
		[]ReferenceEdge{{SourceID: msg.ID(), TargetID: valueobjects.NewNodeID()}},
		nil,
	)
	require.NoError(t, err)
	assert.Empty(t, forest.References())
}
