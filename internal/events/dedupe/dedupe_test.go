package dedupe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendcore/internal/events"
	"vendcore/pkg/domain"
)

type failingStore struct{}

func (failingStore) FirstSeen(context.Context, domain.EventID) (bool, error) {
	return false, errors.New("store down")
}

func (failingStore) Forget(context.Context, domain.EventID) error {
	return errors.New("store down")
}

func TestMiddleware(t *testing.T) {
	ctx := context.Background()
	event := domain.NewEvent("PaymentSucceeded", "pay-1", "payment", time.Now(), nil)

	t.Run("replaying the same event id applies once", func(t *testing.T) {
		applied := 0
		handler := Middleware(NewMemoryStore(), nil, nil)(events.HandlerFunc(
			func(context.Context, domain.Event) error {
				applied++
				return nil
			}))

		require.NoError(t, handler.Handle(ctx, event))
		require.NoError(t, handler.Handle(ctx, event))
		assert.Equal(t, 1, applied)
	})

	t.Run("distinct ids both apply", func(t *testing.T) {
		applied := 0
		handler := Middleware(NewMemoryStore(), nil, nil)(events.HandlerFunc(
			func(context.Context, domain.Event) error {
				applied++
				return nil
			}))

		other := domain.NewEvent("PaymentSucceeded", "pay-1", "payment", time.Now(), nil)
		require.NoError(t, handler.Handle(ctx, event))
		require.NoError(t, handler.Handle(ctx, other))
		assert.Equal(t, 2, applied)
	})

	t.Run("redelivery after a handler failure is retried", func(t *testing.T) {
		applied := 0
		handler := Middleware(NewMemoryStore(), nil, nil)(events.HandlerFunc(
			func(context.Context, domain.Event) error {
				applied++
				if applied == 1 {
					return errors.New("stock reservation unavailable")
				}
				return nil
			}))

		require.Error(t, handler.Handle(ctx, event))
		require.NoError(t, handler.Handle(ctx, event))
		require.NoError(t, handler.Handle(ctx, event))
		assert.Equal(t, 2, applied)
	})

	t.Run("store failure fails the delivery instead of double-applying", func(t *testing.T) {
		handler := Middleware(failingStore{}, nil, nil)(events.HandlerFunc(
			func(context.Context, domain.Event) error { return nil }))

		assert.Error(t, handler.Handle(ctx, event))
	})
}
