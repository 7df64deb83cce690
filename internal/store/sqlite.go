// ABOUTME: SQLite store implementation using modernc.org/sqlite (pure Go)
// ABOUTME: Snapshot slot pairs are replaced inside a single transaction

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harper/feedsync/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	// WAL mode so a reader never blocks the single writer
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS slots (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS feeds (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		url        TEXT NOT NULL,
		events_url TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// snapshotValue is what the cache slot holds; the loaded slot holds the
// bare ID list so the two-slot layout stays inspectable.
type snapshotValue struct {
	Records []json.RawMessage `json:"records"`
	SavedAt time.Time         `json:"saved_at"`
}

func (s *SQLiteStore) getSlot(key string) ([]byte, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM slots WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func upsertSlot(tx *sql.Tx, key string, value []byte) error {
	_, err := tx.Exec(`
		INSERT INTO slots (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// LoadSnapshot reads both halves of a feed slot. Never-written slots come
// back as an empty snapshot.
func (s *SQLiteStore) LoadSnapshot(slot Slot) (*models.Snapshot, error) {
	cacheData, err := s.getSlot(slot.CacheKey)
	if err != nil {
		return nil, fmt.Errorf("read cache slot: %w", err)
	}
	loadedData, err := s.getSlot(slot.LoadedKey)
	if err != nil {
		return nil, fmt.Errorf("read loaded slot: %w", err)
	}
	if cacheData == nil || loadedData == nil {
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

// SaveSnapshot replaces both halves of the slot in one transaction.
func (s *SQLiteStore) SaveSnapshot(slot Slot, records []json.RawMessage, loadedIDs []string) error {
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

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := upsertSlot(tx, slot.CacheKey, cacheData); err != nil {
		return fmt.Errorf("write cache slot: %w", err)
	}
	if err := upsertSlot(tx, slot.LoadedKey, loadedData); err != nil {
		return fmt.Errorf("write loaded slot: %w", err)
	}
	return tx.Commit()
}

// ClearSnapshot removes both halves of the slot in one transaction.
func (s *SQLiteStore) ClearSnapshot(slot Slot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM slots WHERE key IN (?, ?)`, slot.CacheKey, slot.LoadedKey); err != nil {
		return fmt.Errorf("clear slot: %w", err)
	}
	return tx.Commit()
}

// LoadCounter reads the persisted count for a subject.
func (s *SQLiteStore) LoadCounter(subject string) (*models.Counter, error) {
	data, err := s.getSlot(counterKey(subject))
	if err != nil {
		return nil, fmt.Errorf("read counter slot: %w", err)
	}
	if data == nil {
		return &models.Counter{}, nil
	}
	var c models.Counter
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode counter slot: %w", err)
	}
	return &c, nil
}

// SaveCounter persists the count for a subject.
func (s *SQLiteStore) SaveCounter(subject string, c models.Counter) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode counter: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if err := upsertSlot(tx, counterKey(subject), data); err != nil {
		return fmt.Errorf("write counter slot: %w", err)
	}
	return tx.Commit()
}

// SaveFeed inserts or replaces a subscription by name.
func (s *SQLiteStore) SaveFeed(sub *models.FeedSub) error {
	_, err := s.db.Exec(`
		INSERT INTO feeds (id, name, url, events_url, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET url = excluded.url, events_url = excluded.events_url`,
		sub.ID, sub.Name, sub.URL, sub.EventsURL, sub.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// GetFeed looks up a subscription by name.
func (s *SQLiteStore) GetFeed(name string) (*models.FeedSub, error) {
	row := s.db.QueryRow(`SELECT id, name, url, events_url, created_at FROM feeds WHERE name = ?`, name)
	sub, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("feed %q: %w", name, ErrNotFound)
	}
	return sub, err
}

// ListFeeds returns all subscriptions, newest first.
func (s *SQLiteStore) ListFeeds() ([]*models.FeedSub, error) {
	rows, err := s.db.Query(`SELECT id, name, url, events_url, created_at FROM feeds ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.FeedSub
	for rows.Next() {
		sub, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteFeed removes a subscription and clears its cache slots.
func (s *SQLiteStore) DeleteFeed(name string) error {
	if _, err := s.db.Exec(`DELETE FROM feeds WHERE name = ?`, name); err != nil {
		return err
	}
	return s.ClearSnapshot(FeedSlot(name))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*models.FeedSub, error) {
	var sub models.FeedSub
	var createdAt string
	if err := row.Scan(&sub.ID, &sub.Name, &sub.URL, &sub.EventsURL, &createdAt); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		sub.CreatedAt = t
	}
	return &sub, nil
}
