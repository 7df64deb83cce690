// ABOUTME: FeedController orchestrates the fetch lifecycle for one feed
// ABOUTME: Cache-first reads, gated network calls, merge/sort/persist on settle

package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/harper/feedsync/internal/bus"
	"github.com/harper/feedsync/internal/models"
	"github.com/harper/feedsync/internal/netgate"
	"github.com/harper/feedsync/internal/remote"
	"github.com/harper/feedsync/internal/store"
)

// Phase is the controller's lifecycle state. Transitions are strictly
// linear per controller because of the single-flight guard.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseLoadingInitial Phase = "loading_initial"
	PhaseReady          Phase = "ready"
	PhaseOffline        Phase = "offline"
	PhaseLoadingMore    Phase = "loading_more"
	PhaseRefreshing     Phase = "refreshing"
	PhaseFetchingNew    Phase = "fetching_new"
)

// ErrBusy reports that another operation was in flight. Callers treat it as
// a dropped no-op; operations are never queued.
var ErrBusy = errors.New("operation already in flight")

// Options configures one controller instance.
type Options[R models.Record] struct {
	// Slot is the storage key pair this feed owns.
	Slot store.Slot

	// PageSize is the fetch window size. Defaults to 20.
	PageSize int

	// Order is the feed's sort direction.
	Order models.Order

	// Filter, when set, is applied to every fetched batch before merging.
	// It must be pure.
	Filter func([]R) []R

	// OnOffline fires once per operation that hits the connectivity gate.
	OnOffline func()

	// OnError observes swallowed remote errors (for toasts, not control flow).
	OnError func(error)

	Logger *slog.Logger
}

// Change is published on the controller's topic after every settled
// transition. Full state stays readable through State().
type Change struct {
	Phase   Phase
	Count   int
	HasMore bool
}

// State is a point-in-time copy of the controller's reactive state.
type State[R models.Record] struct {
	Records []R
	HasMore bool
	Phase   Phase
	Loading bool
}

// Controller runs the incremental cache-sync lifecycle for one feed. All
// operations are single-flight: at most one network call per controller at
// a time, extra invocations dropped.
type Controller[R models.Record] struct {
	src    remote.Source[R]
	gate   netgate.Gate
	cache  store.Store
	opts   Options[R]
	logger *slog.Logger

	changes *bus.Topic[Change]

	mu         sync.Mutex
	busy       bool
	closed     bool
	phase      Phase
	records    []R
	loaded     map[string]struct{}
	hasMore    bool
	reconciled bool
}

// New creates a controller. Nothing is read or fetched until InitialLoad.
func New[R models.Record](src remote.Source[R], gate netgate.Gate, cache store.Store, opts Options[R]) *Controller[R] {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller[R]{
		src:     src,
		gate:    gate,
		cache:   cache,
		opts:    opts,
		logger:  logger,
		changes: bus.NewTopic[Change](8),
		phase:   PhaseIdle,
		loaded:  make(map[string]struct{}),
	}
}

// State returns a copy of the current reactive state.
func (c *Controller[R]) State() State[R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	records := make([]R, len(c.records))
	copy(records, c.records)
	return State[R]{
		Records: records,
		HasMore: c.hasMore,
		Phase:   c.phase,
		Loading: c.busy,
	}
}

// Changes returns the topic carrying state-change notifications.
func (c *Controller[R]) Changes() *bus.Topic[Change] { return c.changes }

// Close tears the controller down. In-flight results arriving later are
// discarded on arrival; the transport call itself is not aborted.
func (c *Controller[R]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.changes.Close()
}

// InitialLoad publishes the cached snapshot immediately, then reconciles
// with the remote source when the gate allows: non-empty caches get a
// refresh-by-ids (once per controller), empty caches get a first page.
func (c *Controller[R]) InitialLoad(ctx context.Context) error {
	if !c.begin(PhaseLoadingInitial) {
		return ErrBusy
	}

	// Instant paint from the local snapshot, before any network
	cached := c.loadCached()
	c.apply(func() {
		c.setRecords(cached)
	})

	if !c.gate.Online() {
		c.settle(PhaseOffline, func() {
			c.hasMore = false
		})
		c.notifyOffline()
		return nil
	}

	ids, reconciled := c.loadedSnapshot()
	if len(ids) > 0 && !reconciled {
		c.reconcileCached(ctx, ids)
		return nil
	}
	if len(ids) > 0 {
		// Already reconciled this controller's lifetime; cached state stands
		c.settle(PhaseReady, func() {
			c.hasMore = len(c.records) > 0
		})
		return nil
	}

	c.fetchFirstPage(ctx)
	return nil
}

// LoadMore fetches the next page, excluding everything already loaded.
// Valid only while hasMore; otherwise a no-op.
func (c *Controller[R]) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	hasMore := c.hasMore
	c.mu.Unlock()
	if !hasMore {
		return nil
	}

	if !c.begin(PhaseLoadingMore) {
		return ErrBusy
	}

	if !c.gate.Online() {
		// hasMore survives so the next pull can retry
		c.settle(PhaseOffline, nil)
		c.notifyOffline()
		return nil
	}

	ids, _ := c.loadedSnapshot()
	page, err := c.src.FetchPage(ctx, remote.NewWindow(ids, c.opts.PageSize))
	if err != nil {
		c.settleError("fetch page", err)
		return nil
	}

	fetched := len(page)
	page = c.filter(page)
	c.settle(PhaseReady, func() {
		c.mergeLocked(page)
		c.hasMore = fetched == c.opts.PageSize
	})
	c.persist()
	return nil
}

// FetchNewest pulls records newer than anything loaded and merges them in
// front. Used for "new items arrived" pulls; hasMore is left alone.
func (c *Controller[R]) FetchNewest(ctx context.Context) error {
	if !c.begin(PhaseFetchingNew) {
		return ErrBusy
	}

	if !c.gate.Online() {
		c.settle(PhaseOffline, nil)
		c.notifyOffline()
		return nil
	}

	ids, _ := c.loadedSnapshot()
	page, err := c.src.FetchPage(ctx, remote.NewWindow(ids, c.opts.PageSize))
	if err != nil {
		c.settleError("fetch newest", err)
		return nil
	}

	page = c.filter(page)
	c.settle(PhaseReady, func() {
		c.mergeLocked(page)
	})
	c.persist()
	return nil
}

// Refresh re-fetches the current server-side state of every loaded record
// and fully replaces local state. Zero records for a non-empty loaded set
// means everything was deleted server-side: cache and hasMore are cleared.
func (c *Controller[R]) Refresh(ctx context.Context) error {
	if !c.begin(PhaseRefreshing) {
		return ErrBusy
	}

	if !c.gate.Online() {
		c.settle(PhaseOffline, nil)
		c.notifyOffline()
		return nil
	}

	ids, _ := c.loadedSnapshot()
	res, err := c.src.RefreshByIDs(ctx, ids)
	if err != nil {
		c.settleError("refresh", err)
		return nil
	}

	if len(res) == 0 && len(ids) > 0 {
		c.settle(PhaseReady, func() {
			c.setRecords(nil)
			c.hasMore = false
		})
		c.clearPersisted()
		return nil
	}

	res = c.filter(res)
	c.settle(PhaseReady, func() {
		c.setRecords(res)
	})
	c.persist()
	return nil
}

// reconcileCached replaces a cached feed with the server's current view of
// the same ids. This is the one point where stale, edited, or deleted
// records get corrected.
func (c *Controller[R]) reconcileCached(ctx context.Context, ids []string) {
	res, err := c.src.RefreshByIDs(ctx, ids)
	if err != nil {
		c.settleError("reconcile", err)
		return
	}

	if len(res) == 0 {
		// Server no longer has anything we cached
		c.settle(PhaseReady, func() {
			c.setRecords(nil)
			c.hasMore = false
			c.reconciled = true
		})
		c.clearPersisted()
		return
	}

	res = c.filter(res)
	c.settle(PhaseReady, func() {
		c.setRecords(res)
		c.hasMore = len(c.records) > 0
		c.reconciled = true
	})
	c.persist()
}

// fetchFirstPage fills an empty cache with the first window.
func (c *Controller[R]) fetchFirstPage(ctx context.Context) {
	page, err := c.src.FetchPage(ctx, remote.NewWindow(nil, c.opts.PageSize))
	if err != nil {
		c.settleError("first page", err)
		return
	}

	fetched := len(page)
	page = c.filter(page)
	c.settle(PhaseReady, func() {
		c.setRecords(page)
		c.hasMore = fetched == c.opts.PageSize
	})
	c.persist()
}

// begin takes the single-flight guard and enters phase p. Returns false if
// another operation holds the guard or the controller is closed.
func (c *Controller[R]) begin(p Phase) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy || c.closed {
		return false
	}
	c.busy = true
	c.phase = p
	return true
}

// apply runs fn under the lock without releasing the guard, then publishes.
func (c *Controller[R]) apply(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	fn()
	c.publishLocked()
}

// settle runs fn (if any) under the lock, releases the guard, enters phase
// p, and publishes. Late results after Close are discarded here.
func (c *Controller[R]) settle(p Phase, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if c.closed {
		return
	}
	if fn != nil {
		fn()
	}
	c.phase = p
	c.publishLocked()
}

// settleError resolves a failed remote call: offline errors take the
// offline path, everything else is logged and swallowed with state left
// untouched.
func (c *Controller[R]) settleError(op string, err error) {
	if remote.IsOffline(err) {
		c.settle(PhaseOffline, nil)
		c.notifyOffline()
		return
	}

	werr := remote.Remote(op, err)
	c.logger.Error("remote call failed, keeping cached state", "op", op, "error", err)
	if c.opts.OnError != nil {
		c.opts.OnError(werr)
	}
	c.settle(PhaseReady, nil)
}

func (c *Controller[R]) publishLocked() {
	c.changes.Publish(Change{Phase: c.phase, Count: len(c.records), HasMore: c.hasMore})
}

func (c *Controller[R]) notifyOffline() {
	if c.opts.OnOffline != nil {
		c.opts.OnOffline()
	}
}

// setRecords replaces records and rebuilds the loaded-ID set; the two never
// diverge at a settled state. Caller holds the lock.
func (c *Controller[R]) setRecords(records []R) {
	deduped := make([]R, 0, len(records))
	loaded := make(map[string]struct{}, len(records))
	for _, r := range records {
		id := r.RecordID()
		if _, ok := loaded[id]; ok {
			continue
		}
		loaded[id] = struct{}{}
		deduped = append(deduped, r)
	}
	models.SortRecords(deduped, c.opts.Order)
	c.records = deduped
	c.loaded = loaded
}

// mergeLocked folds a fetched batch into the current records, skipping
// duplicates, and re-sorts. Caller holds the lock.
func (c *Controller[R]) mergeLocked(batch []R) {
	for _, r := range batch {
		id := r.RecordID()
		if _, ok := c.loaded[id]; ok {
			continue
		}
		c.loaded[id] = struct{}{}
		c.records = append(c.records, r)
	}
	models.SortRecords(c.records, c.opts.Order)
}

func (c *Controller[R]) filter(batch []R) []R {
	if c.opts.Filter == nil {
		return batch
	}
	return c.opts.Filter(batch)
}

// loadCached reads the persisted snapshot, swallowing cache errors.
func (c *Controller[R]) loadCached() []R {
	snap, err := c.cache.LoadSnapshot(c.opts.Slot)
	if err != nil {
		c.logger.Warn("cache read failed, starting empty", "error", &remote.CacheError{Op: "load", Err: err})
		return nil
	}
	records := models.UnmarshalRecords[R](snap.Records)
	models.SortRecords(records, c.opts.Order)
	return records
}

// loadedSnapshot copies the loaded-ID list and the reconciled flag.
func (c *Controller[R]) loadedSnapshot() ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.loaded))
	for _, r := range c.records {
		ids = append(ids, r.RecordID())
	}
	return ids, c.reconciled
}

// persist mirrors the settled in-memory state to the store. Best effort:
// the in-memory state stays authoritative for this session either way.
func (c *Controller[R]) persist() {
	c.mu.Lock()
	raws := models.MarshalRecords(c.records)
	ids := make([]string, 0, len(c.records))
	for _, r := range c.records {
		ids = append(ids, r.RecordID())
	}
	c.mu.Unlock()

	if err := c.cache.SaveSnapshot(c.opts.Slot, raws, ids); err != nil {
		c.logger.Warn("cache write failed", "error", &remote.CacheError{Op: "save", Err: err})
	}
}

func (c *Controller[R]) clearPersisted() {
	if err := c.cache.ClearSnapshot(c.opts.Slot); err != nil {
		c.logger.Warn("cache clear failed", "error", &remote.CacheError{Op: "clear", Err: err})
	}
}
