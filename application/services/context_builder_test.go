package services

import (
	"fmt"
	"testing"
	"time"

	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"
	pkgerrors "loom-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func timedMessage(t *testing.T, parentID valueobjects.NodeID, role entities.Role, text string, createdAt time.Time) *entities.Message {
	t.Helper()
	content, err := valueobjects.NewMessageContent(text)
	require.NoError(t, err)
	msg, err := entities.ReconstructMessage(
		valueobjects.NewNodeID(), parentID, role,
		content, createdAt, createdAt, false,
	)
	require.NoError(t, err)
	return msg
}

func TestContextBuilder_Build(t *testing.T) {
	builder := NewContextBuilder(zap.NewNop())

	t.Run("ancestry root-first", func(t *testing.T) {
		base := time.Now()
		root := timedMessage(t, valueobjects.NodeID{}, entities.RoleUser, "root", base)
		mid := timedMessage(t, root.ID(), entities.RoleAssistant, "mid", base.Add(time.Second))
		leaf := timedMessage(t, mid.ID(), entities.RoleUser, "leaf", base.Add(2*time.Second))
		// A sibling branch that must not appear.
		sibling := timedMessage(t, root.ID(), entities.RoleUser, "other branch", base.Add(3*time.Second))

		forest, err := aggregates.ReconstructForest(
			valueobjects.NewConversationID(),
			[]*entities.Message{root, mid, leaf, sibling},
			nil, nil,
		)
		require.NoError(t, err)

		got, err := builder.Build(forest, leaf.ID(), nil, nil)
		require.NoError(t, err)

		require.Len(t, got, 3)
		assert.Equal(t, "root", got[0].Content)
		assert.Equal(t, "mid", got[1].Content)
		assert.Equal(t, "leaf", got[2].Content)
		assert.Equal(t, "user", got[0].Role)
		assert.Equal(t, "assistant", got[1].Role)
	})

	t.Run("referenced tree is pulled whole from its root", func(t *testing.T) {
		base := time.Now()
		root := timedMessage(t, valueobjects.NodeID{}, entities.RoleUser, "main root", base)
		leaf := timedMessage(t, root.ID(), entities.RoleUser, "main leaf", base.Add(4*time.Second))

		refRoot := timedMessage(t, valueobjects.NodeID{}, entities.RoleUser, "ref root", base.Add(time.Second))
		refChild := timedMessage(t, refRoot.ID(), entities.RoleAssistant, "ref child", base.Add(2*time.Second))
		refGrand := timedMessage(t, refChild.ID(), entities.RoleUser, "ref grandchild", base.Add(3*time.Second))

		forest, err := aggregates.ReconstructForest(
			valueobjects.NewConversationID(),
			[]*entities.Message{root, leaf, refRoot, refChild, refGrand},
			nil, nil,
		)
		require.NoError(t, err)

		// Reference points mid-tree; the whole tree must come along.
		got, err := builder.Build(forest, leaf.ID(), []valueobjects.NodeID{refChild.ID()}, nil)
		require.NoError(t, err)

		require.Len(t, got, 5)
		// Chronological merge interleaves the referenced tree before the leaf.
		assert.Equal(t, "main root", got[0].Content)
		assert.Equal(t, "ref root", got[1].Content)
		assert.Equal(t, "ref child", got[2].Content)
		assert.Equal(t, "ref grandchild", got[3].Content)
		assert.Equal(t, "main leaf", got[4].Content)
	})

	t.Run("first occurrence wins on overlap", func(t *testing.T) {
		base := time.Now()
		root := timedMessage(t, valueobjects.NodeID{}, entities.RoleUser, "shared root", base)
		leaf := timedMessage(t, root.ID(), entities.RoleUser, "leaf", base.Add(time.Second))

		forest, err := aggregates.ReconstructForest(
			valueobjects.NewConversationID(),
			[]*entities.Message{root, leaf},
			nil, nil,
		)
		require.NoError(t, err)

		// The reference resolves into the target's own tree; nothing doubles.
		got, err := builder.Build(forest, leaf.ID(), []valueobjects.NodeID{root.ID()}, nil)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("unresolvable references are skipped", func(t *testing.T) {
		base := time.Now()
		root := timedMessage(t, valueobjects.NodeID{}, entities.RoleUser, "root", base)

		forest, err := aggregates.ReconstructForest(
			valueobjects.NewConversationID(),
			[]*entities.Message{root},
			nil, nil,
		)
		require.NoError(t, err)

		got, err := builder.Build(forest, root.ID(), []valueobjects.NodeID{valueobjects.NewNodeID()}, nil)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("exclusion runs after the merge", func(t *testing.T) {
		base := time.Now()
		root := timedMessage(t, valueobjects.NodeID{}, entities.RoleUser, "root", base)
		streamingReply, err := entities.ReconstructMessage(
			valueobjects.NewNodeID(), root.ID(), entities.RoleAssistant,
			valueobjects.MessageContent{}, base.Add(time.Second), base.Add(time.Second), false,
		)
		require.NoError(t, err)
		leaf := timedMessage(t, streamingReply.ID(), entities.RoleUser, "leaf", base.Add(2*time.Second))

		forest, err := aggregates.ReconstructForest(
			valueobjects.NewConversationID(),
			[]*entities.Message{root, streamingReply, leaf},
			nil, nil,
		)
		require.NoError(t, err)

		excludeEmpty := func(m *entities.Message) bool { return m.Content().IsBlank() }
		got, err := builder.Build(forest, leaf.ID(), nil, excludeEmpty)
		require.NoError(t, err)

		require.Len(t, got, 2)
		assert.Equal(t, "root", got[0].Content)
		assert.Equal(t, "leaf", got[1].Content)
	})

	t.Run("unknown target", func(t *testing.T) {
		forest, err := aggregates.NewForest(valueobjects.NewConversationID())
		require.NoError(t, err)

		_, err = builder.Build(forest, valueobjects.NewNodeID(), nil, nil)
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeNotFound))
	})

	t.Run("stable order for equal timestamps", func(t *testing.T) {
		base := time.Now()
		root := timedMessage(t, valueobjects.NodeID{}, entities.RoleUser, "root", base)
		var chain []*entities.Message
		parent := root.ID()
		for i := 0; i < 3; i++ {
			msg := timedMessage(t, parent, entities.RoleUser, fmt.Sprintf("step %d", i), base)
			chain = append(chain, msg)
			parent = msg.ID()
		}

		forest, err := aggregates.ReconstructForest(
			valueobjects.NewConversationID(),
			append([]*entities.Message{root}, chain...),
			nil, nil,
		)
		require.NoError(t, err)

		got, err := builder.Build(forest, chain[2].ID(), nil, nil)
		require.NoError(t, err)

		// Equal timestamps keep ancestry order thanks to the stable sort.
		require.Len(t, got, 4)
		assert.Equal(t, "root", got[0].Content)
		assert.Equal(t, "step 0", got[1].Content)
		assert.Equal(t, "step 1", got[2].Content)
		assert.Equal(t, "step 2", got[3].Content)
	})
}
