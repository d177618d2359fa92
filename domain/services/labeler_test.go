package services

import (
	"fmt"
	"testing"
	"time"

	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reconstructedMessage builds a message with a controlled timestamp so
// sibling ordering is deterministic under test.
func reconstructedMessage(t *testing.T, parentID valueobjects.NodeID, createdAt time.Time) *entities.Message {
	t.Helper()
	content, err := valueobjects.NewMessageContent("m")
	require.NoError(t, err)
	msg, err := entities.ReconstructMessage(
		valueobjects.NewNodeID(), parentID, entities.RoleUser,
		content, createdAt, createdAt, false,
	)
	require.NoError(t, err)
	return msg
}

func TestLabeler_Generate(t *testing.T) {
	t.Run("trees letter in discovery order", func(t *testing.T) {
		base := time.Now()
		rootA := reconstructedMessage(t, valueobjects.NodeID{}, base)
		rootB := reconstructedMessage(t, valueobjects.NodeID{}, base.Add(time.Second))

		forest, err := aggregates.ReconstructForest(
			valueobjects.NewConversationID(),
			[]*entities.Message{rootA, rootB},
			nil, nil,
		)
		require.NoError(t, err)

		set := NewLabeler().Generate(forest)
		assert.Equal(t, "A1", set.Short[rootA.ID()])
		assert.Equal(t, "B1", set.Short[rootB.ID()])
		assert.Equal(t, 0, set.TreeIndex[rootA.ID()])
		assert.Equal(t, 1, set.TreeIndex[rootB.ID()])
	})

	t.Run("breadth-first ordinals by creation time", func(t *testing.T) {
		base := time.Now()
		root := reconstructedMessage(t, valueobjects.NodeID{}, base)
		older := reconstructedMessage(t, root.ID(), base.Add(1*time.Second))
		newer := reconstructedMessage(t, root.ID(), base.Add(2*time.Second))
		grandchild := reconstructedMessage(t, older.ID(), base.Add(3*time.Second))

		// Insert out of creation order; ordinals must not care.
		forest, err := aggregates.ReconstructForest(
			valueobjects.NewConversationID(),
			[]*entities.Message{root, newer, grandchild, older},
			nil, nil,
		)
		require.NoError(t, err)

		set := NewLabeler().Generate(forest)
		assert.Equal(t, "A1", set.Short[root.ID()])
		assert.Equal(t, "A2", set.Short[older.ID()])
		assert.Equal(t, "A3", set.Short[newer.ID()])
		assert.Equal(t, "A4", set.Short[grandchild.ID()])
	})

	t.Run("letters wrap after 26 trees but indexes do not", func(t *testing.T) {
		base := time.Now()
		var roots []*entities.Message
		for i := 0; i < 28; i++ {
			roots = append(roots, reconstructedMessage(t, valueobjects.NodeID{}, base.Add(time.Duration(i)*time.Second)))
		}
		forest, err := aggregates.ReconstructForest(valueobjects.NewConversationID(), roots, nil, nil)
		require.NoError(t, err)

		set := NewLabeler().Generate(forest)
		assert.Equal(t, "A1", set.Short[roots[26].ID()])
		assert.Equal(t, "B1", set.Short[roots[27].ID()])
		assert.Equal(t, 26, set.TreeIndex[roots[26].ID()])
		assert.Equal(t, 27, set.TreeIndex[roots[27].ID()])
	})

	t.Run("every node is labeled", func(t *testing.T) {
		base := time.Now()
		root := reconstructedMessage(t, valueobjects.NodeID{}, base)
		var all []*entities.Message
		all = append(all, root)
		for i := 0; i < 5; i++ {
			all = append(all, reconstructedMessage(t, root.ID(), base.Add(time.Duration(i+1)*time.Second)))
		}
		forest, err := aggregates.ReconstructForest(valueobjects.NewConversationID(), all, nil, nil)
		require.NoError(t, err)

		set := NewLabeler().Generate(forest)
		for i, msg := range all {
			assert.Equal(t, fmt.Sprintf("A%d", i+1), set.Short[msg.ID()])
		}
	})
}
