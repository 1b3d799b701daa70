package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribePublishDispose(t *testing.T) {
	b := NewBroker[int](nil)

	var got []int
	dispose := b.Subscribe(func(v int) { got = append(got, v) })
	assert.Equal(t, 1, b.Len())

	b.Publish(1)
	b.Publish(2)
	dispose()
	b.Publish(3)

	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, 0, b.Len())

	// second dispose is a no-op
	assert.NotPanics(t, func() { dispose() })
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := NewBroker[string](nil)
	assert.NotPanics(t, func() { b.Publish("nobody listening") })
}

func TestPanickingObserverDoesNotStopOthers(t *testing.T) {
	b := NewBroker[int](nil)

	b.Subscribe(func(int) { panic("torn down") })
	received := 0
	b.Subscribe(func(v int) { received += v })

	assert.NotPanics(t, func() { b.Publish(5) })
	assert.Equal(t, 5, received)
}

func TestObserverMayDisposeDuringPublish(t *testing.T) {
	b := NewBroker[int](nil)

	var dispose Dispose
	calls := 0
	dispose = b.Subscribe(func(int) {
		calls++
		dispose()
	})

	b.Publish(1)
	b.Publish(2)
	assert.Equal(t, 1, calls)
}

func TestConcurrentPublish(t *testing.T) {
	b := NewBroker[int](nil)

	var mu sync.Mutex
	total := 0
	b.Subscribe(func(v int) {
		mu.Lock()
		total += v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, total)
}
