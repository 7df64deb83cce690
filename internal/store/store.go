// ABOUTME: Store interface and slot addressing for persisted feed caches
// ABOUTME: Defines the contract snapshot, counter, and registry backends implement

package store

import (
	"encoding/json"
	"errors"

	"github.com/harper/feedsync/internal/models"
)

// Slot is the caller-supplied pair of storage keys one feed instance owns:
// one slot for the records list, one for the loaded-ID set. Independent
// feeds use disjoint slots and never collide.
type Slot struct {
	CacheKey  string
	LoadedKey string
}

// FeedSlot derives the conventional slot pair for a named feed.
func FeedSlot(name string) Slot {
	return Slot{
		CacheKey:  "cache:" + name,
		LoadedKey: "loaded:" + name,
	}
}

// ErrNotFound is returned by registry lookups for unknown feeds.
var ErrNotFound = errors.New("not found")

// Store persists feed snapshots, counters, and the feed registry. All
// snapshot writes are full overwrites; merging is the controller's job.
// Methods return errors; deciding to swallow them is the caller's concern.
type Store interface {
	// Close releases backend resources.
	Close() error

	// LoadSnapshot reads a feed slot. A slot never written returns an
	// empty snapshot, not an error.
	LoadSnapshot(slot Slot) (*models.Snapshot, error)

	// SaveSnapshot replaces both halves of a feed slot together. A
	// snapshot on disk is never half from one save and half from another.
	SaveSnapshot(slot Slot, records []json.RawMessage, loadedIDs []string) error

	// ClearSnapshot removes both halves of a feed slot.
	ClearSnapshot(slot Slot) error

	// LoadCounter reads the persisted count for a subject. A subject never
	// written returns a zero counter.
	LoadCounter(subject string) (*models.Counter, error)

	// SaveCounter persists the count for a subject.
	SaveCounter(subject string, c models.Counter) error

	// Feed registry

	// SaveFeed inserts or replaces a subscription by name.
	SaveFeed(sub *models.FeedSub) error

	// GetFeed looks up a subscription by name.
	GetFeed(name string) (*models.FeedSub, error)

	// ListFeeds returns all subscriptions, newest first.
	ListFeeds() ([]*models.FeedSub, error)

	// DeleteFeed removes a subscription and clears its cache slots.
	DeleteFeed(name string) error
}

const counterPrefix = "counter:"

func counterKey(subject string) string {
	return counterPrefix + subject
}
