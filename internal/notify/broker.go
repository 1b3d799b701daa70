// Package notify provides the observer registry used for progress and
// lifecycle events. Registration returns a disposer; publishing never fails
// and never blocks on a missing subscriber.
package notify

import (
	"log/slog"
	"sync"
)

// Dispose removes a subscription. Calling it more than once is safe.
type Dispose func()

// Broker fans values of type T out to registered observers.
type Broker[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(T)
	logger *slog.Logger
}

// NewBroker returns an empty broker. logger may be nil.
func NewBroker[T any](logger *slog.Logger) *Broker[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker[T]{
		subs:   make(map[uint64]func(T)),
		logger: logger,
	}
}

// Subscribe registers fn and returns its disposer.
func (b *Broker[T]) Subscribe(fn func(T)) Dispose {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers v to every current observer, outside the lock. A
// panicking observer is logged and skipped.
func (b *Broker[T]) Publish(v T) {
	b.mu.RLock()
	fns := make([]func(T), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		b.deliver(fn, v)
	}
}

func (b *Broker[T]) deliver(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("Observer panicked, event dropped", slog.Any("panic", r))
		}
	}()
	fn(v)
}

// Len returns the number of live subscriptions.
func (b *Broker[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
