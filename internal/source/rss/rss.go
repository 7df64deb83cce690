// ABOUTME: Poll-only data source backed by an RSS/Atom feed URL
// ABOUTME: Conditional fetch with gofeed parsing and a short-lived document cache

package rss

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/harper/feedsync/internal/fetch"
	"github.com/harper/feedsync/internal/models"
	"github.com/harper/feedsync/internal/remote"
	"github.com/harper/feedsync/internal/ttlcache"
)

// docTTL bounds how long a parsed feed document is reused before the
// source goes back to the network.
const docTTL = 2 * time.Minute

// Source adapts an RSS/Atom feed URL to the engine's data-source contract.
// RSS has no event stream, so Subscribe always refuses and consumers fall
// back to polling.
type Source struct {
	url     string
	fetcher *fetch.Fetcher
	docs    *ttlcache.Cache[string, []models.Item]

	mu           sync.Mutex
	etag         string
	lastModified string
	lastItems    []models.Item
}

// New creates a Source polling the given feed URL.
func New(feedURL string) *Source {
	return &Source{
		url:     feedURL,
		fetcher: fetch.New(),
		docs:    ttlcache.New[string, []models.Item](docTTL, 16),
	}
}

// FetchPage returns up to w.Limit entries not already excluded, newest first.
func (s *Source) FetchPage(ctx context.Context, w remote.Window) ([]models.Item, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	page := make([]models.Item, 0, w.Limit)
	for _, it := range items {
		if w.Excludes(it.ID) {
			continue
		}
		page = append(page, it)
		if w.Limit > 0 && len(page) >= w.Limit {
			break
		}
	}
	return page, nil
}

// RefreshByIDs returns the current state of the given entries. Entries that
// have dropped out of the feed document are omitted, which the engine
// treats as deletions.
func (s *Source) RefreshByIDs(ctx context.Context, ids []string) ([]models.Item, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	var fresh []models.Item
	for _, it := range items {
		if _, ok := want[it.ID]; ok {
			fresh = append(fresh, it)
		}
	}
	return fresh, nil
}

// Subscribe reports that RSS has no live event channel.
func (s *Source) Subscribe(context.Context) (<-chan remote.ChangeEvent[models.Item], error) {
	return nil, remote.ErrNoSubscribe
}

// load returns the feed's entries, newest first, consulting the document
// cache and conditional-request validators before hitting the network.
func (s *Source) load(ctx context.Context) ([]models.Item, error) {
	if items, ok := s.docs.Get(s.url); ok {
		return items, nil
	}

	s.mu.Lock()
	etag, lastModified := s.etag, s.lastModified
	s.mu.Unlock()

	res, err := s.fetcher.Fetch(ctx, s.url, etag, lastModified)
	if err != nil {
		return nil, err
	}

	if res.NotModified {
		s.mu.Lock()
		items := s.lastItems
		s.mu.Unlock()
		s.docs.Set(s.url, items)
		return items, nil
	}

	items, err := parseItems(res.Body)
	if err != nil {
		return nil, err
	}
	models.SortRecords(items, models.Descending)

	s.mu.Lock()
	s.etag = res.ETag
	s.lastModified = res.LastModified
	s.lastItems = items
	s.mu.Unlock()
	s.docs.Set(s.url, items)
	return items, nil
}

// parseItems converts a raw RSS/Atom document into Items.
func parseItems(data []byte) ([]models.Item, error) {
	feed, err := gofeed.NewParser().ParseString(string(data))
	if err != nil {
		return nil, err
	}

	items := make([]models.Item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		id := fi.GUID
		if id == "" {
			id = fi.Link
		}
		if id == "" {
			continue
		}

		it := models.Item{
			ID:     id,
			Title:  fi.Title,
			Link:   fi.Link,
			Unread: true,
		}
		if fi.Author != nil {
			it.Author = fi.Author.Name
		}
		if fi.Content != "" {
			it.Body = strings.TrimSpace(fi.Content)
		} else {
			it.Body = strings.TrimSpace(fi.Description)
		}
		switch {
		case fi.PublishedParsed != nil:
			it.SubmittedAt = fi.PublishedParsed.UTC()
		case fi.UpdatedParsed != nil:
			it.SubmittedAt = fi.UpdatedParsed.UTC()
		default:
			it.SubmittedAt = time.Now().UTC()
		}
		items = append(items, it)
	}
	return items, nil
}
