// ABOUTME: HTTP+websocket data source for JSON item APIs
// ABOUTME: Paginated fetch over POST endpoints, live events over a websocket

package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harper/feedsync/internal/models"
	"github.com/harper/feedsync/internal/remote"
)

// Source talks to a JSON item API: POST /page and /refresh for fetches,
// plus a websocket endpoint streaming change events. A consumer owns
// reconnect policy; Subscribe closes its channel on the first read error.
type Source struct {
	baseURL   string
	eventsURL string
	client    *http.Client
	logger    *slog.Logger
}

// New creates a Source for the given API base URL and websocket events URL.
// An empty eventsURL makes Subscribe refuse, degrading consumers to polling.
func New(baseURL, eventsURL string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		baseURL:   baseURL,
		eventsURL: eventsURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

type pageRequest struct {
	ExcludeIDs []string `json:"exclude_ids,omitempty"`
	Limit      int      `json:"limit"`
}

type refreshRequest struct {
	IDs []string `json:"ids"`
}

// FetchPage requests one page of items outside the window's exclusion set.
func (s *Source) FetchPage(ctx context.Context, w remote.Window) ([]models.Item, error) {
	exclude := make([]string, 0, len(w.ExcludeIDs))
	for id := range w.ExcludeIDs {
		exclude = append(exclude, id)
	}
	return s.post(ctx, "/page", pageRequest{ExcludeIDs: exclude, Limit: w.Limit})
}

// RefreshByIDs requests the current state of exactly the given items. The
// server omits deleted ones from its response.
func (s *Source) RefreshByIDs(ctx context.Context, ids []string) ([]models.Item, error) {
	return s.post(ctx, "/refresh", refreshRequest{IDs: ids})
}

func (s *Source) post(ctx context.Context, path string, payload any) ([]models.Item, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s: unexpected status code %d", path, resp.StatusCode)
	}

	var items []models.Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return items, nil
}

// Subscribe dials the events websocket and streams decoded change events.
// The returned channel closes when the connection drops or ctx is cancelled;
// malformed frames are logged and skipped.
func (s *Source) Subscribe(ctx context.Context) (<-chan remote.ChangeEvent[models.Item], error) {
	if s.eventsURL == "" {
		return nil, remote.ErrNoSubscribe
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.eventsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial events: %w", err)
	}

	events := make(chan remote.ChangeEvent[models.Item], 16)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		defer close(done)
		defer conn.Close()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("event stream closed", "error", err)
				}
				return
			}

			var ev remote.ChangeEvent[models.Item]
			if err := json.Unmarshal(message, &ev); err != nil {
				s.logger.Error("skipping malformed event", "error", err)
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
