// ABOUTME: Root Cobra command and global flags
// ABOUTME: Loads config, opens the storage backend, and wires feed controllers

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/harper/feedsync/internal/config"
	"github.com/harper/feedsync/internal/controller"
	"github.com/harper/feedsync/internal/models"
	"github.com/harper/feedsync/internal/netgate"
	"github.com/harper/feedsync/internal/remote"
	"github.com/harper/feedsync/internal/source/rss"
	"github.com/harper/feedsync/internal/source/ws"
	"github.com/harper/feedsync/internal/store"
)

var (
	backendFlag string
	dataDirFlag string
	verboseFlag bool

	cfg       *config.Config
	appStore  store.Store
	appLogger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "feedsync",
	Short: "Offline-first incremental feed synchronizer",
	Long: `feedsync keeps paginated remote feeds mirrored in a local cache.

Cached items paint instantly, reconcile against the server when the
network allows, and page in incrementally. Live unread counters ride a
websocket when one is available and fall back to polling when it is not.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verboseFlag {
			level = slog.LevelDebug
		}
		appLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if backendFlag != "" {
			cfg.Backend = backendFlag
		}
		if dataDirFlag != "" {
			cfg.DataDir = dataDirFlag
		}

		appStore, err = cfg.OpenStore()
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if appStore != nil {
			if err := appStore.Close(); err != nil {
				return fmt.Errorf("failed to close storage: %w", err)
			}
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "storage backend: sqlite, kv, or memory (default from config)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default: ~/.local/share/feedsync)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
}

// lookupFeed resolves a registered subscription by name.
func lookupFeed(name string) (*models.FeedSub, error) {
	sub, err := appStore.GetFeed(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("feed not found: %s (add one with 'feedsync feed add')", name)
		}
		return nil, fmt.Errorf("failed to look up feed: %w", err)
	}
	return sub, nil
}

// openSource builds the data source for a subscription. Subscriptions with
// an events URL talk to a JSON item API; the rest poll RSS.
func openSource(sub *models.FeedSub) remote.Source[models.Item] {
	if sub.EventsURL != "" {
		return ws.New(sub.URL, sub.EventsURL, appLogger)
	}
	return rss.New(sub.URL)
}

// openController assembles the sync controller for a subscription. A nil
// filter admits every fetched record.
func openController(sub *models.FeedSub, filter func([]models.Item) []models.Item) *controller.Controller[models.Item] {
	gate := netgate.NewDialGate(cfg.GetProbeAddr())
	return controller.New(openSource(sub), gate, appStore, controller.Options[models.Item]{
		Slot:     store.FeedSlot(sub.Name),
		PageSize: cfg.GetPageSize(),
		Order:    cfg.GetOrder(),
		Filter:   filter,
		OnOffline: func() {
			warnColor().Fprintln(os.Stderr, "offline: showing cached items")
		},
		OnError: func(err error) {
			errColor().Fprintf(os.Stderr, "sync degraded: %v\n", err)
		},
		Logger: appLogger,
	})
}
