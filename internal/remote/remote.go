// ABOUTME: RemoteDataSource contract supplied per feed by the application
// ABOUTME: Defines paginated fetch, refresh-by-ids, and live event subscription

package remote

import (
	"context"

	"github.com/harper/feedsync/internal/models"
)

// Window parameterizes one incremental page request: skip everything the
// feed has already materialized, return at most Limit records.
type Window struct {
	ExcludeIDs map[string]struct{}
	Limit      int
}

// Excludes reports whether the window filters out the given record ID.
func (w Window) Excludes(id string) bool {
	_, ok := w.ExcludeIDs[id]
	return ok
}

// EventKind classifies a live change event.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// ChangeEvent is one live mutation from a subscription. Was carries the
// previous state on updates so consumers can detect read/unread flips.
type ChangeEvent[R models.Record] struct {
	Kind   EventKind `json:"kind"`
	Record R         `json:"record"`
	Was    *R        `json:"was,omitempty"`
}

// Source supplies the three remote operations a feed needs. Implementations
// live in the surrounding application (or internal/source for the bundled
// adapters); the engine never constructs one itself.
type Source[R models.Record] interface {
	// FetchPage returns up to Limit records not in ExcludeIDs, ordered by
	// the feed's ordering key and direction.
	FetchPage(ctx context.Context, w Window) ([]R, error)

	// RefreshByIDs returns the current server-side state of exactly the
	// given identifiers. IDs absent from the result are deletions.
	RefreshByIDs(ctx context.Context, ids []string) ([]R, error)

	// Subscribe opens a live change-event stream. The channel closes when
	// the stream fails or ctx is cancelled; retry is the caller's concern.
	// Sources without an event channel return ErrNoSubscribe.
	Subscribe(ctx context.Context) (<-chan ChangeEvent[R], error)
}

// NewWindow builds a fetch window from a loaded-ID list.
func NewWindow(ids []string, limit int) Window {
	exclude := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		exclude[id] = struct{}{}
	}
	return Window{ExcludeIDs: exclude, Limit: limit}
}
