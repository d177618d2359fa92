package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCommand struct {
	Fail bool
}

func (c testCommand) Validate() error {
	if c.Fail {
		return errors.New("invalid")
	}
	return nil
}

type otherCommand struct{}

func (otherCommand) Validate() error { return nil }

func TestCommandBus_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches to the registered handler", func(t *testing.T) {
		cb := NewCommandBus()
		var handled Command
		require.NoError(t, cb.Register(testCommand{}, CommandHandlerFunc(func(ctx context.Context, cmd Command) error {
			handled = cmd
			return nil
		})))

		require.NoError(t, cb.Send(ctx, testCommand{}))
		assert.Equal(t, testCommand{}, handled)
	})

	t.Run("validation runs before dispatch", func(t *testing.T) {
		cb := NewCommandBus()
		called := false
		require.NoError(t, cb.Register(testCommand{}, CommandHandlerFunc(func(ctx context.Context, cmd Command) error {
			called = true
			return nil
		})))

		err := cb.Send(ctx, testCommand{Fail: true})
		assert.ErrorContains(t, err, "command validation failed")
		assert.False(t, called)
	})

	t.Run("unregistered command type", func(t *testing.T) {
		cb := NewCommandBus()
		err := cb.Send(ctx, otherCommand{})
		assert.ErrorContains(t, err, "no handler registered")
	})

	t.Run("handler errors are wrapped", func(t *testing.T) {
		cb := NewCommandBus()
		boom := errors.New("boom")
		require.NoError(t, cb.Register(testCommand{}, CommandHandlerFunc(func(ctx context.Context, cmd Command) error {
			return boom
		})))

		err := cb.Send(ctx, testCommand{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("double registration rejected", func(t *testing.T) {
		cb := NewCommandBus()
		noop := CommandHandlerFunc(func(ctx context.Context, cmd Command) error { return nil })
		require.NoError(t, cb.Register(testCommand{}, noop))
		assert.Error(t, cb.Register(testCommand{}, noop))
	})
}

func TestPipeline_Execute(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next CommandHandler) CommandHandler {
			return CommandHandlerFunc(func(ctx context.Context, cmd Command) error {
				order = append(order, name)
				return next.Handle(ctx, cmd)
			})
		}
	}

	handler := NewPipeline(mw("outer"), mw("inner")).Execute(
		CommandHandlerFunc(func(ctx context.Context, cmd Command) error {
			order = append(order, "handler")
			return nil
		}),
	)

	require.NoError(t, handler.Handle(context.Background(), testCommand{}))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
