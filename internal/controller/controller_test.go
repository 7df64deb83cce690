// ABOUTME: Tests for the feed controller lifecycle
// ABOUTME: Fake source and static gates drive every settle path

package controller

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harper/feedsync/internal/models"
	"github.com/harper/feedsync/internal/netgate"
	"github.com/harper/feedsync/internal/remote"
	"github.com/harper/feedsync/internal/store"
)

// fakeSource serves pages from a mutable in-memory universe, newest first.
type fakeSource struct {
	mu         sync.Mutex
	universe   []models.Item
	err        error
	block      chan struct{} // when set, FetchPage waits on it
	fetchCalls int32
}

func (f *fakeSource) setUniverse(items ...models.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.universe = items
}

func (f *fakeSource) addItems(items ...models.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.universe = append(f.universe, items...)
}

func (f *fakeSource) FetchPage(ctx context.Context, w remote.Window) ([]models.Item, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	sorted := make([]models.Item, len(f.universe))
	copy(sorted, f.universe)
	models.SortRecords(sorted, models.Descending)

	var page []models.Item
	for _, item := range sorted {
		if w.Excludes(item.ID) {
			continue
		}
		page = append(page, item)
		if len(page) == w.Limit {
			break
		}
	}
	return page, nil
}

func (f *fakeSource) RefreshByIDs(ctx context.Context, ids []string) ([]models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var res []models.Item
	for _, item := range f.universe {
		if _, ok := want[item.ID]; ok {
			res = append(res, item)
		}
	}
	return res, nil
}

func (f *fakeSource) Subscribe(ctx context.Context) (<-chan remote.ChangeEvent[models.Item], error) {
	return nil, remote.ErrNoSubscribe
}

func (f *fakeSource) calls() int {
	return int(atomic.LoadInt32(&f.fetchCalls))
}

// flipGate is a connectivity gate the test can toggle.
type flipGate struct {
	mu sync.Mutex
	on bool
}

func (g *flipGate) set(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.on = on
}

func (g *flipGate) Online() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.on
}

func item(id string, minute int) models.Item {
	return models.Item{
		ID:          id,
		Title:       "item " + id,
		Unread:      true,
		SubmittedAt: time.Date(2026, 3, 1, 12, minute, 0, 0, time.UTC),
	}
}

func newController(t *testing.T, src *fakeSource, gate netgate.Gate, opts Options[models.Item]) (*Controller[models.Item], *store.MemStore) {
	t.Helper()
	cache := store.NewMemStore()
	if opts.Slot.CacheKey == "" {
		opts.Slot = store.FeedSlot("test")
	}
	c := New[models.Item](src, gate, cache, opts)
	t.Cleanup(c.Close)
	return c, cache
}

func seedCache(t *testing.T, cache *store.MemStore, slot store.Slot, items ...models.Item) {
	t.Helper()
	raws := models.MarshalRecords(items)
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if err := cache.SaveSnapshot(slot, raws, ids); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
}

func recordIDs(items []models.Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func TestInitialLoadEmptyCache(t *testing.T) {
	src := &fakeSource{}
	src.setUniverse(item("1", 1), item("2", 2), item("3", 3))

	c, _ := newController(t, src, netgate.Static(true), Options[models.Item]{PageSize: 5})
	if err := c.InitialLoad(context.Background()); err != nil {
		t.Fatalf("InitialLoad failed: %v", err)
	}

	st := c.State()
	if len(st.Records) != 3 {
		t.Fatalf("records: got %d, want 3", len(st.Records))
	}
	if st.HasMore {
		t.Error("hasMore true after a short page")
	}
	// Newest first
	if got := recordIDs(st.Records); !reflect.DeepEqual(got, []string{"3", "2", "1"}) {
		t.Errorf("order: got %v", got)
	}
	if st.Phase != PhaseReady {
		t.Errorf("phase: got %s, want ready", st.Phase)
	}
}

func TestInitialLoadIdempotent(t *testing.T) {
	src := &fakeSource{}
	src.setUniverse(item("1", 1), item("2", 2), item("3", 3))

	c, _ := newController(t, src, netgate.Static(true), Options[models.Item]{PageSize: 5})

	if err := c.InitialLoad(context.Background()); err != nil {
		t.Fatalf("first InitialLoad: %v", err)
	}
	first := c.State()

	// Second call reconciles the now-cached records against the source and
	// must land on the identical records/loadedIDs pair.
	if err := c.InitialLoad(context.Background()); err != nil {
		t.Fatalf("second InitialLoad: %v", err)
	}
	second := c.State()

	if !reflect.DeepEqual(recordIDs(first.Records), recordIDs(second.Records)) {
		t.Errorf("records diverged: %v vs %v", recordIDs(first.Records), recordIDs(second.Records))
	}
}

func TestInitialLoadReconcilesCachedRecords(t *testing.T) {
	src := &fakeSource{}
	// Server has edited item 2 and deleted item 1 since the cache was written
	edited := item("2", 2)
	edited.Title = "edited"
	src.setUniverse(edited, item("3", 3))

	c, cache := newController(t, src, netgate.Static(true), Options[models.Item]{PageSize: 5})
	seedCache(t, cache, store.FeedSlot("test"), item("1", 1), item("2", 2), item("3", 3))

	if err := c.InitialLoad(context.Background()); err != nil {
		t.Fatalf("InitialLoad failed: %v", err)
	}

	st := c.State()
	if got := recordIDs(st.Records); !reflect.DeepEqual(got, []string{"3", "2"}) {
		t.Fatalf("reconciled ids: got %v, want [3 2]", got)
	}
	if st.Records[1].Title != "edited" {
		t.Errorf("edit not applied: %q", st.Records[1].Title)
	}

	// The persisted snapshot mirrors the reconciled state
	snap, _ := cache.LoadSnapshot(store.FeedSlot("test"))
	if len(snap.Records) != 2 || len(snap.LoadedIDs) != 2 {
		t.Errorf("persisted snapshot: %d records, %d ids", len(snap.Records), len(snap.LoadedIDs))
	}
}

func TestInitialLoadReconcilesOnlyOnce(t *testing.T) {
	src := &fakeSource{}
	src.setUniverse(item("1", 1))

	c, cache := newController(t, src, netgate.Static(true), Options[models.Item]{PageSize: 5})
	seedCache(t, cache, store.FeedSlot("test"), item("1", 1))

	if err := c.InitialLoad(context.Background()); err != nil {
		t.Fatalf("InitialLoad failed: %v", err)
	}

	// Mutate the server; a second InitialLoad on this controller must not
	// re-reconcile (once per controller lifetime).
	src.setUniverse()
	if err := c.InitialLoad(context.Background()); err != nil {
		t.Fatalf("second InitialLoad failed: %v", err)
	}

	if got := len(c.State().Records); got != 1 {
		t.Errorf("records after second load: got %d, want 1 (no re-reconcile)", got)
	}
}

func TestSingleFlight(t *testing.T) {
	src := &fakeSource{block: make(chan struct{})}
	src.setUniverse(item("1", 1), item("2", 2))

	c, cache := newController(t, src, netgate.Static(true), Options[models.Item]{PageSize: 1})
	seedCache(t, cache, store.FeedSlot("test"), item("1", 1))

	// Prime state without hitting the blocking FetchPage
	c.mu.Lock()
	c.records = []models.Item{item("1", 1)}
	c.loaded = map[string]struct{}{"1": {}}
	c.hasMore = true
	c.reconciled = true
	c.mu.Unlock()

	var wg sync.WaitGroup
	var busyCount int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.LoadMore(context.Background()); errors.Is(err, ErrBusy) {
				atomic.AddInt32(&busyCount, 1)
			}
		}()
	}

	// Let both goroutines reach the guard, then release the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(src.block)
	wg.Wait()

	if src.calls() != 1 {
		t.Errorf("FetchPage calls: got %d, want exactly 1", src.calls())
	}
	if busyCount != 1 {
		t.Errorf("dropped operations: got %d, want 1", busyCount)
	}
}

func TestPaginationExhaustion(t *testing.T) {
	src := &fakeSource{}
	src.setUniverse(item("1", 1), item("2", 2), item("3", 3))

	c, _ := newController(t, src, netgate.Static(true), Options[models.Item]{PageSize: 2})
	ctx := context.Background()

	if err := c.InitialLoad(ctx); err != nil {
		t.Fatalf("InitialLoad: %v", err)
	}
	if st := c.State(); !st.HasMore || len(st.Records) != 2 {
		t.Fatalf("after first page: %d records, hasMore=%v", len(st.Records), st.HasMore)
	}

	if err := c.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	st := c.State()
	if len(st.Records) != 3 {
		t.Errorf("records: got %d, want 3", len(st.Records))
	}
	if st.HasMore {
		t.Error("hasMore still true after a short page")
	}

	// Further LoadMore calls are no-ops until the next InitialLoad
	calls := src.calls()
	if err := c.LoadMore(ctx); err != nil {
		t.Fatalf("exhausted LoadMore: %v", err)
	}
	if src.calls() != calls {
		t.Error("LoadMore fetched despite hasMore=false")
	}
}

func TestFetchNewestPrepends(t *testing.T) {
	src := &fakeSource{}
	src.setUniverse(item("1", 1), item("2", 2), item("3", 3))

	c, cache := newController(t, src, netgate.Static(true), Options[models.Item]{PageSize: 5})
	seedCache(t, cache, store.FeedSlot("test"), item("1", 1), item("2", 2), item("3", 3))

	if err := c.InitialLoad(context.Background()); err != nil {
		t.Fatalf("InitialLoad: %v", err)
	}

	src.addItems(item("4", 4), item("5", 5))
	if err := c.FetchNewest(context.Background()); err != nil {
		t.Fatalf("FetchNewest: %v", err)
	}

	st := c.State()
	if got := recordIDs(st.Records); !reflect.DeepEqual(got, []string{"5", "4", "3", "2", "1"}) {
		t.Errorf("merged feed: got %v, want [5 4 3 2 1]", got)
	}
}

func TestOfflineFallback(t *testing.T) {
	src := &fakeSource{}
	var offlineCalls int32

	c, cache := newController(t, src, netgate.Static(false), Options[models.Item]{
		PageSize:  5,
		OnOffline: func() { atomic.AddInt32(&offlineCalls, 1) },
	})
	seedCache(t, cache, store.FeedSlot("test"), item("1", 1), item("2", 2))

	if err := c.InitialLoad(context.Background()); err != nil {
		t.Fatalf("InitialLoad: %v", err)
	}

	st := c.State()
	if len(st.Records) != 2 {
		t.Errorf("cached records: got %d, want 2", len(st.Records))
	}
	if st.HasMore {
		t.Error("hasMore true while offline")
	}
	if st.Phase != PhaseOffline {
		t.Errorf("phase: got %s, want offline", st.Phase)
	}
	if offlineCalls != 1 {
		t.Errorf("onOffline calls: got %d, want exactly 1", offlineCalls)
	}
	if src.calls() != 0 {
		t.Error("network touched while gated off")
	}
}

func TestDeletionReconciliation(t *testing.T) {
	src := &fakeSource{}
	src.setUniverse(item("1", 1), item("2", 2))

	c, cache := newController(t, src, netgate.Static(true), Options[models.Item]{PageSize: 5})
	if err := c.InitialLoad(context.Background()); err != nil {
		t.Fatalf("InitialLoad: %v", err)
	}

	// Everything previously loaded disappears server-side
	src.setUniverse()
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	st := c.State()
	if len(st.Records) != 0 {
		t.Errorf("records after deletion: got %d, want 0", len(st.Records))
	}
	if st.HasMore {
		t.Error("hasMore true after full deletion")
	}

	snap, err := cache.LoadSnapshot(store.FeedSlot("test"))
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if !snap.Empty() {
		t.Error("persisted snapshot not cleared")
	}
}

func TestRemoteErrorSwallowed(t *testing.T) {
	src := &fakeSource{}
	src.setUniverse(item("1", 1))
	var seen error

	c, _ := newController(t, src, netgate.Static(true), Options[models.Item]{
		PageSize: 5,
		OnError:  func(err error) { seen = err },
	})
	if err := c.InitialLoad(context.Background()); err != nil {
		t.Fatalf("InitialLoad: %v", err)
	}

	src.mu.Lock()
	src.err = fmt.Errorf("boom")
	src.mu.Unlock()

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error to caller: %v", err)
	}

	if got := len(c.State().Records); got != 1 {
		t.Errorf("state disturbed by remote error: %d records", got)
	}
	if !remote.IsRemote(seen) {
		t.Errorf("OnError payload: got %v, want a RemoteError", seen)
	}
}

func TestFilterAppliedBeforeMerge(t *testing.T) {
	src := &fakeSource{}
	flagged := item("2", 2)
	flagged.Status = "rejected"
	src.setUniverse(item("1", 1), flagged, item("3", 3))

	c, _ := newController(t, src, netgate.Static(true), Options[models.Item]{
		PageSize: 5,
		Filter: func(items []models.Item) []models.Item {
			kept := items[:0]
			for _, it := range items {
				if it.Status != "rejected" {
					kept = append(kept, it)
				}
			}
			return kept
		},
	})

	if err := c.InitialLoad(context.Background()); err != nil {
		t.Fatalf("InitialLoad: %v", err)
	}
	if got := recordIDs(c.State().Records); !reflect.DeepEqual(got, []string{"3", "1"}) {
		t.Errorf("filtered feed: got %v, want [3 1]", got)
	}
}

func TestOfflineThenOnlineLoadMore(t *testing.T) {
	src := &fakeSource{}
	cached := []models.Item{item("1", 1), item("2", 2), item("3", 3), item("4", 4), item("5", 5)}
	src.setUniverse(cached...)

	gate := &flipGate{on: true}
	var offlineCalls int32
	c, cache := newController(t, src, gate, Options[models.Item]{
		PageSize:  5,
		OnOffline: func() { atomic.AddInt32(&offlineCalls, 1) },
	})
	seedCache(t, cache, store.FeedSlot("test"), cached...)

	if err := c.InitialLoad(context.Background()); err != nil {
		t.Fatalf("InitialLoad: %v", err)
	}
	if st := c.State(); !st.HasMore {
		t.Fatal("expected hasMore after reconciling a populated cache")
	}

	// Offline LoadMore: state untouched, hasMore survives, one callback
	gate.set(false)
	if err := c.LoadMore(context.Background()); err != nil {
		t.Fatalf("offline LoadMore: %v", err)
	}
	st := c.State()
	if len(st.Records) != 5 || !st.HasMore {
		t.Errorf("offline state: %d records, hasMore=%v", len(st.Records), st.HasMore)
	}
	if offlineCalls != 1 {
		t.Errorf("onOffline calls: got %d, want 1", offlineCalls)
	}

	// Back online: three new records arrive, short page ends pagination
	gate.set(true)
	src.addItems(item("6", 6), item("7", 7), item("8", 8))
	if err := c.LoadMore(context.Background()); err != nil {
		t.Fatalf("online LoadMore: %v", err)
	}
	st = c.State()
	if len(st.Records) != 8 {
		t.Errorf("records: got %d, want 8", len(st.Records))
	}
	if st.HasMore {
		t.Error("hasMore true after a short page")
	}
	if got := recordIDs(st.Records)[0]; got != "8" {
		t.Errorf("not sorted newest first: head=%s", got)
	}
}

func TestCloseDiscardsLateResults(t *testing.T) {
	src := &fakeSource{block: make(chan struct{})}
	src.setUniverse(item("1", 1))

	c, _ := newController(t, src, netgate.Static(true), Options[models.Item]{PageSize: 5})

	done := make(chan struct{})
	go func() {
		c.InitialLoad(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	c.Close()
	close(src.block)
	<-done

	if got := len(c.State().Records); got != 0 {
		t.Errorf("late result applied after Close: %d records", got)
	}
}
