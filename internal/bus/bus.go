// ABOUTME: Typed in-process publish/subscribe topics
// ABOUTME: Non-blocking publish; slow subscribers drop events, never stall the engine

package bus

import "sync"

// Topic is a named in-process event channel with typed payloads. It replaces
// ambient global event broadcasts: each concern owns its topic and hands it
// to interested parties explicitly.
type Topic[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	next   int
	buf    int
	closed bool
}

// NewTopic creates a topic whose subscriber channels buffer up to buf
// events. A buf below 1 is raised to 1 so Publish never blocks.
func NewTopic[T any](buf int) *Topic[T] {
	if buf < 1 {
		buf = 1
	}
	return &Topic[T]{subs: make(map[int]chan T), buf: buf}
}

// Subscribe registers a new subscriber. The returned cancel func removes the
// subscription and closes its channel; it is safe to call more than once.
func (t *Topic[T]) Subscribe() (<-chan T, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan T, t.buf)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.next
	t.next++
	t.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if sub, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers v to every subscriber whose buffer has room. Full
// buffers are skipped; the engine's state snapshots are always re-readable,
// so a dropped notification costs nothing but latency.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Close closes every subscriber channel and rejects further publishes.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
}
