// ABOUTME: RealtimeCounter keeps a scalar live count via a managed subscription
// ABOUTME: Exponential-backoff retry, polling fallback, authoritative fetch wins

package counter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/harper/feedsync/internal/bus"
	"github.com/harper/feedsync/internal/models"
	"github.com/harper/feedsync/internal/netgate"
	"github.com/harper/feedsync/internal/remote"
	"github.com/harper/feedsync/internal/store"
)

// HealthState names the subscription's condition.
type HealthState string

const (
	StateConnecting HealthState = "connecting"
	StateActive     HealthState = "active"
	StateBackoff    HealthState = "backoff"
	StatePolling    HealthState = "polling"
)

// Health is the subscription state plus the retry attempt while backing off.
type Health struct {
	State   HealthState
	Attempt int
}

// FetchFunc returns the authoritative count from the remote source.
type FetchFunc func(ctx context.Context) (int, error)

// SubscribeFunc opens the live change-event stream.
type SubscribeFunc[R models.Record] func(ctx context.Context) (<-chan remote.ChangeEvent[R], error)

// Options configures one counter instance.
type Options[R models.Record] struct {
	// Subject keys the persisted counter slot (for example, a user ID).
	Subject string

	// Unread classifies a record as counting toward the total.
	Unread func(R) bool

	// BackoffBase is the first retry delay; each retry doubles it.
	// Defaults to 2s.
	BackoffBase time.Duration

	// MaxAttempts is how many failed subscriptions are retried before the
	// counter falls back to polling for good. Defaults to 3.
	MaxAttempts int

	// PollInterval is the authoritative re-fetch cadence while polling.
	// Defaults to 30s.
	PollInterval time.Duration

	Logger *slog.Logger
}

// Counter maintains a live scalar count: optimistic event-driven mutations
// while the subscription is healthy, authoritative re-fetches otherwise.
// The last authoritative fetch always wins over prior optimistic deltas.
type Counter[R models.Record] struct {
	fetch     FetchFunc
	subscribe SubscribeFunc[R]
	gate      netgate.Gate
	cache     store.Store
	opts      Options[R]
	logger    *slog.Logger

	health  *bus.Topic[Health]
	changes *bus.Topic[int]

	mu       sync.Mutex
	value    models.Counter
	state    Health
	pollStop chan struct{}
}

// New creates a counter. Nothing runs until Start.
func New[R models.Record](fetch FetchFunc, subscribe SubscribeFunc[R], gate netgate.Gate, cache store.Store, opts Options[R]) *Counter[R] {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Counter[R]{
		fetch:     fetch,
		subscribe: subscribe,
		gate:      gate,
		cache:     cache,
		opts:      opts,
		logger:    logger,
		health:    bus.NewTopic[Health](16),
		changes:   bus.NewTopic[int](16),
		state:     Health{State: StateConnecting},
	}
}

// Value returns the current count.
func (c *Counter[R]) Value() models.Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Health returns the current subscription health.
func (c *Counter[R]) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HealthChanges returns the topic publishing health transitions.
func (c *Counter[R]) HealthChanges() *bus.Topic[Health] { return c.health }

// Changes returns the topic publishing count updates.
func (c *Counter[R]) Changes() *bus.Topic[int] { return c.changes }

// Start brings the counter up: cached count first for instant paint, the
// authoritative fetch in the background, then the subscription. None of the
// three blocks another. Runs until ctx is cancelled.
func (c *Counter[R]) Start(ctx context.Context) {
	if cached, err := c.cache.LoadCounter(c.opts.Subject); err == nil {
		c.mu.Lock()
		c.value = *cached
		c.mu.Unlock()
		c.changes.Publish(cached.Value)
	} else {
		c.logger.Warn("counter cache read failed", "subject", c.opts.Subject, "error", err)
	}

	go c.refreshAuthoritative(ctx)
	go c.run(ctx)
}

// BackoffDelay computes the wait before retry n (1-based): base * 2^(n-1).
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// run is the managed-subscription loop: Connecting, then Active on success,
// Backoff(n) on failure, and a permanent polling fallback after the retry
// budget is spent.
func (c *Counter[R]) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if attempt == 0 {
			c.setHealth(Health{State: StateConnecting})
		}

		ch, err := c.openStream(ctx)
		if err == nil {
			attempt = 0
			c.setHealth(Health{State: StateActive})
			c.consume(ctx, ch)
			if ctx.Err() != nil {
				return
			}
			c.logger.Info("counter stream dropped, reconnecting", "subject", c.opts.Subject)
			continue
		}

		attempt++
		if attempt > c.opts.MaxAttempts {
			c.logger.Warn("subscription retries exhausted, falling back to polling",
				"subject", c.opts.Subject, "attempts", c.opts.MaxAttempts)
			c.poll(ctx)
			return
		}

		c.setHealth(Health{State: StateBackoff, Attempt: attempt})
		select {
		case <-ctx.Done():
			return
		case <-time.After(BackoffDelay(c.opts.BackoffBase, attempt)):
		}
	}
}

func (c *Counter[R]) openStream(ctx context.Context) (<-chan remote.ChangeEvent[R], error) {
	if !c.gate.Online() {
		return nil, remote.ErrOffline
	}
	return c.subscribe(ctx)
}

// consume applies events until the stream closes or ctx ends.
func (c *Counter[R]) consume(ctx context.Context, ch <-chan remote.ChangeEvent[R]) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.applyEvent(ev)
		}
	}
}

// applyEvent performs the optimistic counter mutation for one change event.
func (c *Counter[R]) applyEvent(ev remote.ChangeEvent[R]) {
	unread := c.opts.Unread
	switch ev.Kind {
	case remote.EventInsert:
		if unread(ev.Record) {
			c.adjust(1)
		}
	case remote.EventDelete:
		if unread(ev.Record) {
			c.adjust(-1)
		}
	case remote.EventUpdate:
		if ev.Was == nil {
			return
		}
		was, now := unread(*ev.Was), unread(ev.Record)
		switch {
		case was && !now:
			c.adjust(-1)
		case !was && now:
			c.adjust(1)
		}
	}
}

// adjust applies an optimistic delta, clamped at zero, and persists it for
// instant paint on the next load.
func (c *Counter[R]) adjust(delta int) {
	c.mu.Lock()
	c.value.Add(delta)
	v := c.value
	c.mu.Unlock()

	c.changes.Publish(v.Value)
	if err := c.cache.SaveCounter(c.opts.Subject, v); err != nil {
		c.logger.Warn("counter cache write failed", "subject", c.opts.Subject, "error", err)
	}
}

// refreshAuthoritative replaces the count with the source of truth. Always
// wins over any optimistic delta applied before it.
func (c *Counter[R]) refreshAuthoritative(ctx context.Context) {
	if !c.gate.Online() {
		return
	}
	v, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn("authoritative count fetch failed", "subject", c.opts.Subject, "error", err)
		return
	}

	c.mu.Lock()
	c.value.Set(v)
	cur := c.value
	c.mu.Unlock()

	c.changes.Publish(cur.Value)
	if err := c.cache.SaveCounter(c.opts.Subject, cur); err != nil {
		c.logger.Warn("counter cache write failed", "subject", c.opts.Subject, "error", err)
	}
}

// poll re-fetches the authoritative count on a fixed interval until ctx
// ends or a successful Resubscribe stops it.
func (c *Counter[R]) poll(ctx context.Context) {
	stop := make(chan struct{})
	c.mu.Lock()
	c.pollStop = stop
	c.mu.Unlock()
	c.setHealth(Health{State: StatePolling})

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			c.refreshAuthoritative(ctx)
		}
	}
}

// Resubscribe makes one externally triggered subscription attempt. On
// success while polling, the poll timer stops and the counter returns to
// Active event-driven mode; the stream dropping later resumes polling.
func (c *Counter[R]) Resubscribe(ctx context.Context) error {
	ch, err := c.openStream(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.pollStop != nil {
		close(c.pollStop)
		c.pollStop = nil
	}
	c.mu.Unlock()

	c.setHealth(Health{State: StateActive})
	go func() {
		c.consume(ctx, ch)
		if ctx.Err() == nil {
			c.poll(ctx)
		}
	}()
	return nil
}

func (c *Counter[R]) setHealth(h Health) {
	c.mu.Lock()
	c.state = h
	c.mu.Unlock()
	c.health.Publish(h)
}
