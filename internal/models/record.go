// ABOUTME: Record contract and ordering helpers shared by the sync engine
// ABOUTME: Any cached item needs a stable ID and a sortable ordering key

package models

import "sort"

// Record is the contract every cached item satisfies: a stable unique
// identifier plus a sortable ordering key (typically an RFC3339 timestamp).
// The engine is generic over everything else the item carries.
type Record interface {
	RecordID() string
	OrderKey() string
}

// Order is the sort direction for a feed's ordering key.
type Order int

const (
	// Descending puts the largest ordering key first (newest-first feeds).
	Descending Order = iota
	// Ascending puts the smallest ordering key first.
	Ascending
)

// SortRecords sorts records in place by ordering key in the given direction.
// Ties break on record ID so the result is deterministic.
func SortRecords[R Record](records []R, order Order) {
	sort.SliceStable(records, func(i, j int) bool {
		ki, kj := records[i].OrderKey(), records[j].OrderKey()
		if ki == kj {
			return records[i].RecordID() < records[j].RecordID()
		}
		if order == Ascending {
			return ki < kj
		}
		return ki > kj
	})
}
