// ABOUTME: Charm KV store backend holding one open handle per store
// ABOUTME: Slot pairs are written in a single badger transaction

package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/charmbracelet/charm/kv"
	"github.com/harper/feedsync/internal/models"
)

const (
	feedPrefix = "feed:"

	// DefaultCharmHost is used when CHARM_HOST is unset.
	DefaultCharmHost = "charm.2389.dev"

	// kvDBName is the charm kv database name for feedsync.
	kvDBName = "feedsync"
)

// KVStore implements Store on charm kv. The handle stays open for the
// store's lifetime; a slot pair is written inside one transaction so the
// on-disk snapshot is never half from one save and half from another.
type KVStore struct {
	db       *kv.KV
	autoSync bool
}

// NewKVStore opens a charm-kv-backed store.
func NewKVStore() (*KVStore, error) {
	if os.Getenv("CHARM_HOST") == "" {
		os.Setenv("CHARM_HOST", DefaultCharmHost)
	}
	db, err := kv.OpenWithDefaults(kvDBName)
	if err != nil {
		return nil, fmt.Errorf("open charm kv: %w", err)
	}
	return &KVStore{db: db, autoSync: true}, nil
}

// SetAutoSync enables or disables sync with the charm server after writes.
func (s *KVStore) SetAutoSync(enabled bool) { s.autoSync = enabled }

// Close closes the underlying database.
func (s *KVStore) Close() error { return s.db.Close() }

// update runs fn inside one write transaction, commits it, and syncs with
// the charm server when autoSync is on.
func (s *KVStore) update(fn func(txn *badger.Txn) error) error {
	txn, err := s.db.NewTransaction(true)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	if err := s.db.Commit(txn, nil); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if s.autoSync {
		return s.db.Sync()
	}
	return nil
}

// txnGet reads a key inside a view; missing keys come back as nil data
// with no error.
func txnGet(txn *badger.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// LoadSnapshot reads both halves of a feed slot in one consistent view.
func (s *KVStore) LoadSnapshot(slot Slot) (*models.Snapshot, error) {
	var snap models.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		cacheData, err := txnGet(txn, slot.CacheKey)
		if err != nil {
			return fmt.Errorf("read cache slot: %w", err)
		}
		loadedData, err := txnGet(txn, slot.LoadedKey)
		if err != nil {
			return fmt.Errorf("read loaded slot: %w", err)
		}
		if cacheData == nil || loadedData == nil {
			return nil
		}

		var value snapshotValue
		if err := json.Unmarshal(cacheData, &value); err != nil {
			return fmt.Errorf("decode cache slot: %w", err)
		}
		var ids []string
		if err := json.Unmarshal(loadedData, &ids); err != nil {
			return fmt.Errorf("decode loaded slot: %w", err)
		}
		snap = models.Snapshot{Records: value.Records, LoadedIDs: ids, SavedAt: value.SavedAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveSnapshot writes both halves of the slot in one transaction.
func (s *KVStore) SaveSnapshot(slot Slot, records []json.RawMessage, loadedIDs []string) error {
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

	return s.update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(slot.CacheKey), cacheData); err != nil {
			return fmt.Errorf("write cache slot: %w", err)
		}
		if err := txn.Set([]byte(slot.LoadedKey), loadedData); err != nil {
			return fmt.Errorf("write loaded slot: %w", err)
		}
		return nil
	})
}

// ClearSnapshot removes both halves of the slot in one transaction.
func (s *KVStore) ClearSnapshot(slot Slot) error {
	return s.update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(slot.CacheKey)); err != nil {
			return fmt.Errorf("clear cache slot: %w", err)
		}
		if err := txn.Delete([]byte(slot.LoadedKey)); err != nil {
			return fmt.Errorf("clear loaded slot: %w", err)
		}
		return nil
	})
}

// LoadCounter reads the persisted count for a subject.
func (s *KVStore) LoadCounter(subject string) (*models.Counter, error) {
	var c models.Counter
	err := s.db.View(func(txn *badger.Txn) error {
		data, err := txnGet(txn, counterKey(subject))
		if err != nil {
			return fmt.Errorf("read counter slot: %w", err)
		}
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCounter persists the count for a subject.
func (s *KVStore) SaveCounter(subject string, c models.Counter) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode counter: %w", err)
	}
	return s.update(func(txn *badger.Txn) error {
		return txn.Set([]byte(counterKey(subject)), data)
	})
}

// SaveFeed inserts or replaces a subscription by name.
func (s *KVStore) SaveFeed(sub *models.FeedSub) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal feed: %w", err)
	}
	return s.update(func(txn *badger.Txn) error {
		return txn.Set([]byte(feedPrefix+sub.Name), data)
	})
}

// GetFeed looks up a subscription by name.
func (s *KVStore) GetFeed(name string) (*models.FeedSub, error) {
	var sub models.FeedSub
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		data, err := txnGet(txn, feedPrefix+name)
		if err != nil {
			return fmt.Errorf("get feed: %w", err)
		}
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &sub)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("feed %q: %w", name, ErrNotFound)
	}
	return &sub, nil
}

// ListFeeds returns all subscriptions, newest first.
func (s *KVStore) ListFeeds() ([]*models.FeedSub, error) {
	keys, err := s.db.Keys()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	var subs []*models.FeedSub
	for _, key := range keys {
		if !strings.HasPrefix(string(key), feedPrefix) {
			continue
		}
		data, err := s.db.Get(key)
		if err != nil {
			continue
		}
		var sub models.FeedSub
		if err := json.Unmarshal(data, &sub); err != nil {
			continue
		}
		subs = append(subs, &sub)
	}

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
	return subs, nil
}

// DeleteFeed removes a subscription and clears its cache slots.
func (s *KVStore) DeleteFeed(name string) error {
	slot := FeedSlot(name)
	return s.update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(feedPrefix + name)); err != nil {
			return fmt.Errorf("delete feed: %w", err)
		}
		if err := txn.Delete([]byte(slot.CacheKey)); err != nil {
			return fmt.Errorf("clear cache slot: %w", err)
		}
		return txn.Delete([]byte(slot.LoadedKey))
	})
}
