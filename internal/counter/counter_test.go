// ABOUTME: Tests for the realtime counter
// ABOUTME: Covers clamping, backoff escalation, polling fallback, authority

package counter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harper/feedsync/internal/models"
	"github.com/harper/feedsync/internal/netgate"
	"github.com/harper/feedsync/internal/remote"
	"github.com/harper/feedsync/internal/store"
)

// fakeStream is a controllable SubscribeFunc.
type fakeStream struct {
	mu    sync.Mutex
	fail  bool
	ch    chan remote.ChangeEvent[models.Item]
	calls int
}

func (f *fakeStream) subscribe(ctx context.Context) (<-chan remote.ChangeEvent[models.Item], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errors.New("channel error")
	}
	f.ch = make(chan remote.ChangeEvent[models.Item], 8)
	return f.ch, nil
}

func (f *fakeStream) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeStream) send(ev remote.ChangeEvent[models.Item]) {
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	ch <- ev
}

func unreadItem(id string) models.Item {
	return models.Item{ID: id, Unread: true, SubmittedAt: time.Now().UTC()}
}

func readItem(id string) models.Item {
	return models.Item{ID: id, Unread: false, SubmittedAt: time.Now().UTC()}
}

func isUnread(it models.Item) bool { return it.Unread }

func staticFetch(n int) FetchFunc {
	return func(ctx context.Context) (int, error) { return n, nil }
}

func newTestCounter(fetch FetchFunc, sub SubscribeFunc[models.Item], cache store.Store) *Counter[models.Item] {
	if cache == nil {
		cache = store.NewMemStore()
	}
	return New[models.Item](fetch, sub, netgate.Static(true), cache, Options[models.Item]{
		Subject:      "user-1",
		Unread:       isUnread,
		BackoffBase:  time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBackoffDelay(t *testing.T) {
	base := 100 * time.Millisecond
	delays := []time.Duration{
		BackoffDelay(base, 1),
		BackoffDelay(base, 2),
		BackoffDelay(base, 3),
	}
	want := []time.Duration{base, 2 * base, 4 * base}
	for i, d := range delays {
		if d != want[i] {
			t.Errorf("attempt %d: got %v, want %v", i+1, d, want[i])
		}
		if i > 0 && delays[i] <= delays[i-1] {
			t.Errorf("delay %d not strictly greater than previous", i+1)
		}
	}
}

func TestCounterClampsAtZero(t *testing.T) {
	c := newTestCounter(staticFetch(0), (&fakeStream{}).subscribe, nil)

	// Deleting an unread record at count zero must not go negative
	c.applyEvent(remote.ChangeEvent[models.Item]{Kind: remote.EventDelete, Record: unreadItem("a")})
	if got := c.Value().Value; got != 0 {
		t.Errorf("count after clamped delete: got %d, want 0", got)
	}
}

func TestEventMutations(t *testing.T) {
	c := newTestCounter(staticFetch(0), (&fakeStream{}).subscribe, nil)

	read := readItem("a")
	unread := unreadItem("a")

	steps := []struct {
		name string
		ev   remote.ChangeEvent[models.Item]
		want int
	}{
		{"insert unread", remote.ChangeEvent[models.Item]{Kind: remote.EventInsert, Record: unreadItem("a")}, 1},
		{"insert read ignored", remote.ChangeEvent[models.Item]{Kind: remote.EventInsert, Record: readItem("b")}, 1},
		{"unread to read", remote.ChangeEvent[models.Item]{Kind: remote.EventUpdate, Record: read, Was: &unread}, 0},
		{"read to unread", remote.ChangeEvent[models.Item]{Kind: remote.EventUpdate, Record: unread, Was: &read}, 1},
		{"update without prior state ignored", remote.ChangeEvent[models.Item]{Kind: remote.EventUpdate, Record: read}, 1},
		{"delete unread", remote.ChangeEvent[models.Item]{Kind: remote.EventDelete, Record: unreadItem("a")}, 0},
	}

	for _, step := range steps {
		c.applyEvent(step.ev)
		if got := c.Value().Value; got != step.want {
			t.Errorf("%s: got %d, want %d", step.name, got, step.want)
		}
	}
}

func TestMutationsPersist(t *testing.T) {
	cache := store.NewMemStore()
	c := newTestCounter(staticFetch(0), (&fakeStream{}).subscribe, cache)

	c.applyEvent(remote.ChangeEvent[models.Item]{Kind: remote.EventInsert, Record: unreadItem("a")})

	saved, err := cache.LoadCounter("user-1")
	if err != nil {
		t.Fatalf("LoadCounter: %v", err)
	}
	if saved.Value != 1 {
		t.Errorf("persisted count: got %d, want 1", saved.Value)
	}
}

func TestCachedCountPaintsBeforeFetch(t *testing.T) {
	cache := store.NewMemStore()
	if err := cache.SaveCounter("user-1", models.Counter{Value: 4, LastUpdated: time.Now()}); err != nil {
		t.Fatalf("seed counter: %v", err)
	}

	release := make(chan struct{})
	slowFetch := func(ctx context.Context) (int, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return 9, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestCounter(slowFetch, (&fakeStream{}).subscribe, cache)
	c.Start(ctx)

	// Cached value is visible while the authoritative fetch is still out
	if got := c.Value().Value; got != 4 {
		t.Errorf("cached paint: got %d, want 4", got)
	}

	close(release)
	waitFor(t, "authoritative value", func() bool { return c.Value().Value == 9 })
}

func TestAuthoritativeFetchWins(t *testing.T) {
	stream := &fakeStream{}
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return 5, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestCounter(fetch, stream.subscribe, nil)
	c.Start(ctx)
	waitFor(t, "active subscription", func() bool { return c.Health().State == StateActive })

	// Optimistic deltas land first...
	stream.send(remote.ChangeEvent[models.Item]{Kind: remote.EventInsert, Record: unreadItem("a")})
	stream.send(remote.ChangeEvent[models.Item]{Kind: remote.EventInsert, Record: unreadItem("b")})
	waitFor(t, "optimistic count", func() bool { return c.Value().Value == 2 })

	// ...then the authoritative fetch lands and wins outright
	close(release)
	waitFor(t, "authoritative count", func() bool { return c.Value().Value == 5 })
}

func TestBackoffEscalationToPolling(t *testing.T) {
	stream := &fakeStream{fail: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestCounter(staticFetch(3), stream.subscribe, nil)
	healthCh, cancelSub := c.HealthChanges().Subscribe()
	defer cancelSub()

	c.Start(ctx)

	want := []Health{
		{State: StateConnecting},
		{State: StateBackoff, Attempt: 1},
		{State: StateBackoff, Attempt: 2},
		{State: StateBackoff, Attempt: 3},
		{State: StatePolling},
	}
	for i, w := range want {
		select {
		case got := <-healthCh:
			if got != w {
				t.Fatalf("transition %d: got %+v, want %+v", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for transition %d (%+v)", i, w)
		}
	}

	// Polling keeps the authoritative count fresh
	waitFor(t, "polled count", func() bool { return c.Value().Value == 3 })
}

func TestResubscribeLeavesPolling(t *testing.T) {
	stream := &fakeStream{fail: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestCounter(staticFetch(0), stream.subscribe, nil)
	c.Start(ctx)
	waitFor(t, "polling fallback", func() bool { return c.Health().State == StatePolling })

	// While polling, a failed external attempt changes nothing
	if err := c.Resubscribe(ctx); err == nil {
		t.Fatal("expected Resubscribe to fail while the stream is down")
	}
	if c.Health().State != StatePolling {
		t.Fatalf("health after failed resubscribe: %v", c.Health().State)
	}

	// A successful one returns to Active and stops the poll timer
	stream.setFail(false)
	if err := c.Resubscribe(ctx); err != nil {
		t.Fatalf("Resubscribe: %v", err)
	}
	waitFor(t, "active after resubscribe", func() bool { return c.Health().State == StateActive })

	// Let any poll tick already in flight drain before counting events
	time.Sleep(30 * time.Millisecond)
	stream.send(remote.ChangeEvent[models.Item]{Kind: remote.EventInsert, Record: unreadItem("a")})
	waitFor(t, "event applied after resubscribe", func() bool { return c.Value().Value == 1 })
}
