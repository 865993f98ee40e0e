// Package events is a small in-process notification bus with explicit
// observer registration.
package events

import (
	"sync"
)

// Event names a notification; events carry no payload
type Event string

// BalancesChanged is emitted after a transaction that moves funds confirms
const BalancesChanged Event = "balances changed"

// Bus delivers events to registered observers
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	observers map[Event]map[int]func()
	wg        sync.WaitGroup
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{observers: make(map[Event]map[int]func())}
}

// Subscribe registers fn for ev and returns the func that removes it.
// Calling the returned func more than once is a no-op.
func (b *Bus) Subscribe(ev Event, fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.observers[ev] == nil {
		b.observers[ev] = make(map[int]func())
	}
	b.observers[ev][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.observers[ev], id)
			if len(b.observers[ev]) == 0 {
				delete(b.observers, ev)
			}
		})
	}
}

// Emit notifies every observer of ev on its own goroutine and returns
// without waiting
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, fn := range b.observers[ev] {
		b.wg.Add(1)
		go func(fn func()) {
			defer b.wg.Done()
			fn()
		}(fn)
	}
}

// Observers returns the number of observers registered for ev
func (b *Bus) Observers(ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers[ev])
}

// Wait blocks until every delivery started so far has returned
func (b *Bus) Wait() {
	b.wg.Wait()
}
