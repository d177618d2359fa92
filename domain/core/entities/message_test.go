package entities

import (
	"testing"
	"time"

	"loom-backend/domain/core/valueobjects"
	pkgerrors "loom-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func userContent(t *testing.T, text string) valueobjects.MessageContent {
	t.Helper()
	content, err := valueobjects.NewMessageContent(text)
	require.NoError(t, err)
	return content
}

func TestNewUserMessage(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		msg, err := NewUserMessage(valueobjects.NodeID{}, userContent(t, "hello"))
		require.NoError(t, err)

		assert.True(t, msg.IsRoot())
		assert.Equal(t, RoleUser, msg.Role())
		assert.False(t, msg.IsStreaming())
		assert.Len(t, msg.GetUncommittedEvents(), 1)
	})

	t.Run("blank content rejected", func(t *testing.T) {
		_, err := NewUserMessage(valueobjects.NodeID{}, valueobjects.EmptyContent())
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeValidation))
	})
}

func TestMessage_Streaming(t *testing.T) {
	t.Run("deltas accumulate then seal", func(t *testing.T) {
		reply := NewProvisionalReply(valueobjects.NewNodeID())
		require.True(t, reply.IsStreaming())
		assert.Equal(t, RoleAssistant, reply.Role())

		require.NoError(t, reply.AppendContent("Hello"))
		require.NoError(t, reply.AppendContent(", world"))
		reply.FinishStreaming()

		assert.False(t, reply.IsStreaming())
		assert.Equal(t, "Hello, world", reply.Content().Text())
	})

	t.Run("append after seal is a conflict", func(t *testing.T) {
		reply := NewProvisionalReply(valueobjects.NewNodeID())
		reply.FinishStreaming()

		err := reply.AppendContent("late delta")
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeConflict))
	})

	t.Run("user messages never accept deltas", func(t *testing.T) {
		msg, err := NewUserMessage(valueobjects.NodeID{}, userContent(t, "hello"))
		require.NoError(t, err)

		err = msg.AppendContent("delta")
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeConflict))
	})

	t.Run("failure replaces content and seals", func(t *testing.T) {
		reply := NewProvisionalReply(valueobjects.NewNodeID())
		require.NoError(t, reply.AppendContent("partial"))

		reply.FailStreaming("Reply failed: upstream timeout")

		assert.False(t, reply.IsStreaming())
		assert.Equal(t, "Reply failed: upstream timeout", reply.Content().Text())
	})

	t.Run("finish is idempotent", func(t *testing.T) {
		reply := NewProvisionalReply(valueobjects.NewNodeID())
		reply.FinishStreaming()
		events := len(reply.GetUncommittedEvents())

		reply.FinishStreaming()
		assert.Len(t, reply.GetUncommittedEvents(), events)
	})
}

func TestMessage_EditContent(t *testing.T) {
	t.Run("user message edits", func(t *testing.T) {
		msg, err := NewUserMessage(valueobjects.NodeID{}, userContent(t, "before"))
		require.NoError(t, err)

		require.NoError(t, msg.EditContent(userContent(t, "after")))
		assert.Equal(t, "after", msg.Content().Text())
	})

	t.Run("assistant message is read-only", func(t *testing.T) {
		reply := NewProvisionalReply(valueobjects.NewNodeID())
		reply.FinishStreaming()

		err := reply.EditContent(userContent(t, "rewrite"))
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeForbidden))
	})

	t.Run("blank edit rejected", func(t *testing.T) {
		msg, err := NewUserMessage(valueobjects.NodeID{}, userContent(t, "before"))
		require.NoError(t, err)

		err = msg.EditContent(valueobjects.EmptyContent())
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeValidation))
	})

	t.Run("equal content is a no-op", func(t *testing.T) {
		msg, err := NewUserMessage(valueobjects.NodeID{}, userContent(t, "same"))
		require.NoError(t, err)
		msg.MarkEventsAsCommitted()

		require.NoError(t, msg.EditContent(userContent(t, "same")))
		assert.Empty(t, msg.GetUncommittedEvents())
	})
}

func TestMessage_SetCollapsed(t *testing.T) {
	msg, err := NewUserMessage(valueobjects.NodeID{}, userContent(t, "fold me"))
	require.NoError(t, err)

	before := msg.UpdatedAt()
	msg.SetCollapsed(true)
	assert.True(t, msg.IsCollapsed())
	assert.False(t, msg.UpdatedAt().Before(before))

	msg.SetCollapsed(false)
	assert.False(t, msg.IsCollapsed())
}

func TestReconstructMessage(t *testing.T) {
	t.Run("requires an ID", func(t *testing.T) {
		_, err := ReconstructMessage(
			valueobjects.NodeID{}, valueobjects.NodeID{}, RoleUser,
			valueobjects.MessageContent{}, msgTime(), msgTime(), false,
		)
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeValidation))
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		_, err := ReconstructMessage(
			valueobjects.NewNodeID(), valueobjects.NodeID{}, Role("system"),
			valueobjects.MessageContent{}, msgTime(), msgTime(), false,
		)
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeValidation))
	})

	t.Run("raises no events", func(t *testing.T) {
		msg, err := ReconstructMessage(
			valueobjects.NewNodeID(), valueobjects.NodeID{}, RoleAssistant,
			valueobjects.MessageContent{}, msgTime(), msgTime(), true,
		)
		require.NoError(t, err)
		assert.Empty(t, msg.GetUncommittedEvents())
		assert.True(t, msg.IsCollapsed())
	})
}
