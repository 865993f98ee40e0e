package events

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_EmitReachesSubscribers(t *testing.T) {
	bus := NewBus()

	var a, b atomic.Int32
	unsubA := bus.Subscribe(BalancesChanged, func() { a.Add(1) })
	defer unsubA()
	unsubB := bus.Subscribe(BalancesChanged, func() { b.Add(1) })
	defer unsubB()

	bus.Emit(BalancesChanged)
	bus.Emit(BalancesChanged)
	bus.Wait()

	require.Equal(t, int32(2), a.Load())
	require.Equal(t, int32(2), b.Load())
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	var calls atomic.Int32
	unsubscribe := bus.Subscribe(BalancesChanged, func() { calls.Add(1) })
	require.Equal(t, 1, bus.Observers(BalancesChanged))

	unsubscribe()
	unsubscribe()
	require.Zero(t, bus.Observers(BalancesChanged))

	bus.Emit(BalancesChanged)
	bus.Wait()
	require.Zero(t, calls.Load())
}

func TestBus_EmitWithoutObservers(t *testing.T) {
	bus := NewBus()
	require.NotPanics(t, func() {
		bus.Emit("unknown")
		bus.Wait()
	})
}
