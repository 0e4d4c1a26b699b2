package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendcore/pkg/domain"
)

func testEvent(eventType domain.EventType) domain.Event {
	return domain.NewEvent(eventType, "agg-1", "controller", time.Now(), map[string]any{"k": "v"})
}

func TestBusDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to every handler of the type", func(t *testing.T) {
		bus := NewBus()
		var first, second int
		bus.Subscribe("ControllerStatusChanged", HandlerFunc(func(context.Context, domain.Event) error {
			first++
			return nil
		}))
		bus.Subscribe("ControllerStatusChanged", HandlerFunc(func(context.Context, domain.Event) error {
			second++
			return nil
		}))

		require.NoError(t, bus.Publish(ctx, testEvent("ControllerStatusChanged")))
		assert.Equal(t, 1, first)
		assert.Equal(t, 1, second)
	})

	t.Run("unsubscribed types are a no-op", func(t *testing.T) {
		bus := NewBus()
		require.NoError(t, bus.Publish(ctx, testEvent("OrderPlaced")))
	})

	t.Run("one failing handler does not stop the others", func(t *testing.T) {
		bus := NewBus()
		boom := errors.New("boom")
		var survived bool
		bus.Subscribe("OrderPlaced", HandlerFunc(func(context.Context, domain.Event) error {
			return boom
		}))
		bus.Subscribe("OrderPlaced", HandlerFunc(func(context.Context, domain.Event) error {
			survived = true
			return nil
		}))

		err := bus.Publish(ctx, testEvent("OrderPlaced"))
		assert.ErrorIs(t, err, boom)
		assert.True(t, survived)
	})

	t.Run("panicking handler is isolated", func(t *testing.T) {
		bus := NewBus()
		var survived bool
		bus.Subscribe("OrderPlaced", HandlerFunc(func(context.Context, domain.Event) error {
			panic("handler bug")
		}))
		bus.Subscribe("OrderPlaced", HandlerFunc(func(context.Context, domain.Event) error {
			survived = true
			return nil
		}))

		err := bus.Publish(ctx, testEvent("OrderPlaced"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "handler panicked")
		assert.True(t, survived)
	})

	t.Run("batch publishes in order and keeps going on failure", func(t *testing.T) {
		bus := NewBus()
		var seen []string
		bus.Subscribe("DeviceEnrolled", HandlerFunc(func(_ context.Context, e domain.Event) error {
			seen = append(seen, e.AggregateID)
			if e.AggregateID == "bad" {
				return errors.New("bad aggregate")
			}
			return nil
		}))

		a := testEvent("DeviceEnrolled")
		a.AggregateID = "a"
		bad := testEvent("DeviceEnrolled")
		bad.AggregateID = "bad"
		b := testEvent("DeviceEnrolled")
		b.AggregateID = "b"

		err := bus.PublishBatch(ctx, []domain.Event{a, bad, b})
		assert.Error(t, err)
		assert.Equal(t, []string{"a", "bad", "b"}, seen)
	})
}
