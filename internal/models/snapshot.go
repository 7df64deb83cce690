// ABOUTME: Persisted cache snapshot for one feed slot
// ABOUTME: Records are stored as raw JSON so the store stays generic

package models

import (
	"encoding/json"
	"time"
)

// Snapshot is the persisted form of one feed's settled state: the
// materialized records plus the loaded-ID bookkeeping set. The two are
// written together; a snapshot is never half-updated on disk.
type Snapshot struct {
	Records   []json.RawMessage `json:"records"`
	LoadedIDs []string          `json:"loaded_ids"`
	SavedAt   time.Time         `json:"saved_at"`
}

// Empty reports whether the snapshot holds no records.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Records) == 0
}

// MarshalRecords encodes typed records into the raw form a snapshot stores.
// Records that fail to encode are dropped rather than poisoning the write.
func MarshalRecords[R Record](records []R) []json.RawMessage {
	raws := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			continue
		}
		raws = append(raws, data)
	}
	return raws
}

// UnmarshalRecords decodes a snapshot's raw records back into typed records.
// Corrupt entries are skipped; a stale-but-usable cache beats no cache.
func UnmarshalRecords[R Record](raws []json.RawMessage) []R {
	records := make([]R, 0, len(raws))
	for _, raw := range raws {
		var r R
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	return records
}
