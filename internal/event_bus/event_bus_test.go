package event_bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_RunsHandlersInRegistrationOrder(t *testing.T) {
	// Setup
	bus := NewEventBus()
	var order []int
	for i := 1; i <= 3; i++ {
		bus.Subscribe("test.ordered", func(e Event) error {
			order = append(order, i)
			return nil
		})
	}

	// When
	err := bus.Publish(NewEvent(context.Background(), "test.ordered", nil))

	// Then
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPublish_CollectsHandlerErrors(t *testing.T) {
	// Setup
	bus := NewEventBus()
	boom := errors.New("boom")
	var secondRan bool
	bus.Subscribe("test.errors", func(e Event) error { return boom })
	bus.Subscribe("test.errors", func(e Event) error {
		secondRan = true
		return nil
	})

	// When
	err := bus.Publish(NewEvent(context.Background(), "test.errors", nil))

	// Then
	require.Error(t, err)
	assert.True(t, secondRan)
}

func TestPublish_CancelledContextSkipsHandlers(t *testing.T) {
	// Setup
	bus := NewEventBus()
	var ran bool
	bus.Subscribe("test.cancelled", func(e Event) error {
		ran = true
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When
	err := bus.Publish(NewEvent(ctx, "test.cancelled", nil))

	// Then
	require.Error(t, err)
	assert.False(t, ran)
}

func TestSubscribeTyped_SkipsMismatchedPayloads(t *testing.T) {
	// Setup
	bus := NewEventBus()
	var received []string
	SubscribeTyped(bus, "test.typed", func(e EventT[string]) error {
		received = append(received, e.Data)
		return nil
	})

	// When
	require.NoError(t, bus.Publish(NewEvent(context.Background(), "test.typed", "hello")))
	require.NoError(t, bus.Publish(NewEvent(context.Background(), "test.typed", 42)))

	// Then
	assert.Equal(t, []string{"hello"}, received)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	// Setup
	bus := NewEventBus()
	var count int
	unsubscribe := bus.Subscribe("test.unsub", func(e Event) error {
		count++
		return nil
	})

	// When
	require.NoError(t, bus.Publish(NewEvent(context.Background(), "test.unsub", nil)))
	unsubscribe()
	require.NoError(t, bus.Publish(NewEvent(context.Background(), "test.unsub", nil)))

	// Then
	assert.Equal(t, 1, count)
}
