// ABOUTME: Tests for typed pub/sub topics
// ABOUTME: Covers delivery, cancellation, overflow dropping, and close

package bus

import "testing"

func TestPublishSubscribe(t *testing.T) {
	topic := NewTopic[int](4)
	ch, cancel := topic.Subscribe()
	defer cancel()

	topic.Publish(1)
	topic.Publish(2)

	if got := <-ch; got != 1 {
		t.Errorf("first event: got %d, want 1", got)
	}
	if got := <-ch; got != 2 {
		t.Errorf("second event: got %d, want 2", got)
	}
}

func TestMultipleSubscribers(t *testing.T) {
	topic := NewTopic[string](1)
	ch1, cancel1 := topic.Subscribe()
	ch2, cancel2 := topic.Subscribe()
	defer cancel1()
	defer cancel2()

	topic.Publish("hello")

	if got := <-ch1; got != "hello" {
		t.Errorf("sub1: got %q", got)
	}
	if got := <-ch2; got != "hello" {
		t.Errorf("sub2: got %q", got)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	topic := NewTopic[int](1)
	ch, cancel := topic.Subscribe()

	cancel()
	cancel() // safe to call twice

	topic.Publish(9)
	if _, ok := <-ch; ok {
		t.Error("received event on cancelled subscription")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	topic := NewTopic[int](1)
	ch, cancel := topic.Subscribe()
	defer cancel()

	// Second publish must not block even though nobody is reading
	topic.Publish(1)
	topic.Publish(2)

	if got := <-ch; got != 1 {
		t.Errorf("got %d, want the first event", got)
	}
	select {
	case v := <-ch:
		t.Errorf("unexpected buffered event %d", v)
	default:
	}
}

func TestClose(t *testing.T) {
	topic := NewTopic[int](1)
	ch, _ := topic.Subscribe()

	topic.Close()
	topic.Publish(1) // no-op after close

	if _, ok := <-ch; ok {
		t.Error("channel not closed")
	}

	// Subscribing after close yields a closed channel
	ch2, cancel := topic.Subscribe()
	cancel()
	if _, ok := <-ch2; ok {
		t.Error("post-close subscription not closed")
	}
}
