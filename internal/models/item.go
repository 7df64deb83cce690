// ABOUTME: Item is the stock record type the bundled sources and CLI work with
// ABOUTME: Represents one listing or notification with read/unread state

package models

import (
	"time"

	"github.com/google/uuid"
)

// Item is a single feed entry: a listing post, a report, a notification.
// It satisfies Record with its GUID and submission time.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body,omitempty"`
	Link        string    `json:"link,omitempty"`
	Author      string    `json:"author,omitempty"`
	Status      string    `json:"status,omitempty"`
	Unread      bool      `json:"unread"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewItem creates an Item with a generated ID and the current time.
func NewItem(title string) *Item {
	return &Item{
		ID:          uuid.New().String(),
		Title:       title,
		Unread:      true,
		SubmittedAt: time.Now().UTC(),
	}
}

// orderKeyLayout is RFC3339 with fixed-width nanoseconds. RFC3339Nano drops
// trailing zeros, which breaks lexicographic ordering across precisions.
const orderKeyLayout = "2006-01-02T15:04:05.000000000Z"

// RecordID returns the item's stable unique identifier.
func (i Item) RecordID() string { return i.ID }

// OrderKey returns the item's sortable ordering key; the fixed-width UTC
// layout sorts lexicographically in timestamp order.
func (i Item) OrderKey() string { return i.SubmittedAt.UTC().Format(orderKeyLayout) }
