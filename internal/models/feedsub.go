// ABOUTME: FeedSub models a named feed subscription in the local registry
// ABOUTME: Each subscription owns a disjoint pair of cache slots in the store

package models

import (
	"time"

	"github.com/google/uuid"
)

// FeedSub is one registered feed: a name the CLI addresses it by, the
// source URL it pulls from, and an optional websocket endpoint for live
// change events.
type FeedSub struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	EventsURL string    `json:"events_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewFeedSub creates a subscription with a generated ID and timestamp.
func NewFeedSub(name, url string) *FeedSub {
	return &FeedSub{
		ID:        uuid.New().String(),
		Name:      name,
		URL:       url,
		CreatedAt: time.Now().UTC(),
	}
}
