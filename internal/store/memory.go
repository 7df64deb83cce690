// ABOUTME: In-memory store backend for tests and throwaway sessions
// ABOUTME: Same contract as the durable backends, nothing survives a restart

package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harper/feedsync/internal/models"
)

// MemStore implements Store on plain maps. Safe for concurrent use.
type MemStore struct {
	mu    sync.Mutex
	slots map[string][]byte
	feeds map[string]*models.FeedSub
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		slots: make(map[string][]byte),
		feeds: make(map[string]*models.FeedSub),
	}
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }

// LoadSnapshot reads both halves of a feed slot.
func (s *MemStore) LoadSnapshot(slot Slot) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cacheData, ok1 := s.slots[slot.CacheKey]
	loadedData, ok2 := s.slots[slot.LoadedKey]
	if !ok1 || !ok2 {
		return &models.Snapshot{}, nil
	}

	var value snapshotValue
	if err := json.Unmarshal(cacheData, &value); err != nil {
		return nil, fmt.Errorf("decode cache slot: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(loadedData, &ids); err != nil {
		return nil, fmt.Errorf("decode loaded slot: %w", err)
	}
	return &models.Snapshot{Records: value.Records, LoadedIDs: ids, SavedAt: value.SavedAt}, nil
}

// SaveSnapshot replaces both halves of the slot under one lock hold.
func (s *MemStore) SaveSnapshot(slot Slot, records []json.RawMessage, loadedIDs []string) error {
	if loadedIDs == nil {
		loadedIDs = []string{}
	}
	cacheData, err := json.Marshal(snapshotValue{Records: records, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode cache slot: %w", err)
	}
	loadedData, err := json.Marshal(loadedIDs)
	if err != nil {
		return fmt.Errorf("encode loaded slot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.CacheKey] = cacheData
	s.slots[slot.LoadedKey] = loadedData
	return nil
}

// ClearSnapshot removes both halves of the slot.
func (s *MemStore) ClearSnapshot(slot Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, slot.CacheKey)
	delete(s.slots, slot.LoadedKey)
	return nil
}

// LoadCounter reads the persisted count for a subject.
func (s *MemStore) LoadCounter(subject string) (*models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.slots[counterKey(subject)]
	if !ok {
		return &models.Counter{}, nil
	}
	var c models.Counter
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode counter slot: %w", err)
	}
	return &c, nil
}

// SaveCounter persists the count for a subject.
func (s *MemStore) SaveCounter(subject string, c models.Counter) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode counter: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[counterKey(subject)] = data
	return nil
}

// SaveFeed inserts or replaces a subscription by name.
func (s *MemStore) SaveFeed(sub *models.FeedSub) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sub
	s.feeds[sub.Name] = &copied
	return nil
}

// GetFeed looks up a subscription by name.
func (s *MemStore) GetFeed(name string) (*models.FeedSub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.feeds[name]
	if !ok {
		return nil, fmt.Errorf("feed %q: %w", name, ErrNotFound)
	}
	copied := *sub
	return &copied, nil
}

// ListFeeds returns all subscriptions, newest first.
func (s *MemStore) ListFeeds() ([]*models.FeedSub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := make([]*models.FeedSub, 0, len(s.feeds))
	for _, sub := range s.feeds {
		copied := *sub
		subs = append(subs, &copied)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
	return subs, nil
}

// DeleteFeed removes a subscription and clears its cache slots.
func (s *MemStore) DeleteFeed(name string) error {
	s.mu.Lock()
	delete(s.feeds, name)
	s.mu.Unlock()
	return s.ClearSnapshot(FeedSlot(name))
}
