// ABOUTME: Unread command reporting and watching a feed's unread count
// ABOUTME: One-shot authoritative count, or a live counter with --watch

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/feedsync/internal/counter"
	"github.com/harper/feedsync/internal/models"
	"github.com/harper/feedsync/internal/netgate"
	"github.com/harper/feedsync/internal/remote"
)

// countWindow bounds the authoritative unread scan.
const countWindow = 200

var unreadCmd = &cobra.Command{
	Use:   "unread <feed>",
	Short: "Show the unread count for a feed",
	Long: `Unread prints the authoritative unread count for a feed. With --watch it
keeps a live counter running: change events mutate the count optimistically
while the event stream is healthy, with polling as the fallback.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := lookupFeed(args[0])
		if err != nil {
			return err
		}
		watch, _ := cmd.Flags().GetBool("watch")

		src := openSource(sub)
		gate := netgate.NewDialGate(cfg.GetProbeAddr())
		fetchCount := func(ctx context.Context) (int, error) {
			items, err := src.FetchPage(ctx, remote.NewWindow(nil, countWindow))
			if err != nil {
				return 0, err
			}
			n := 0
			for _, it := range items {
				if it.Unread {
					n++
				}
			}
			return n, nil
		}

		if !watch {
			return printUnreadOnce(cmd.Context(), sub.Name, gate, fetchCount)
		}
		return watchUnread(cmd.Context(), sub.Name, src, gate, fetchCount)
	},
}

func printUnreadOnce(ctx context.Context, name string, gate netgate.Gate, fetch counter.FetchFunc) error {
	if !gate.Online() {
		cached, err := appStore.LoadCounter(counterSubject(name))
		if err != nil {
			return fmt.Errorf("failed to read cached count: %w", err)
		}
		warnColor().Fprintln(rootCmd.ErrOrStderr(), "offline: showing cached count")
		fmt.Printf("%d unread\n", cached.Value)
		return nil
	}

	n, err := fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to count unread items: %w", err)
	}
	var mc models.Counter
	mc.Set(n)
	if err := appStore.SaveCounter(counterSubject(name), mc); err != nil {
		appLogger.Warn("could not persist count", "error", err)
	}
	fmt.Printf("%d unread\n", n)
	return nil
}

func watchUnread(parent context.Context, name string, src remote.Source[models.Item], gate netgate.Gate, fetch counter.FetchFunc) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cnt := counter.New(fetch, src.Subscribe, gate, appStore, counter.Options[models.Item]{
		Subject:      counterSubject(name),
		Unread:       func(it models.Item) bool { return it.Unread },
		BackoffBase:  cfg.GetBackoffBase(),
		PollInterval: cfg.GetPollInterval(),
		Logger:       appLogger,
	})

	changes, cancelChanges := cnt.Changes().Subscribe()
	defer cancelChanges()
	health, cancelHealth := cnt.HealthChanges().Subscribe()
	defer cancelHealth()

	cnt.Start(ctx)

	faint := color.New(color.Faint).SprintFunc()
	fmt.Printf("%d unread %s\n", cnt.Value().Value, faint("(watching, Ctrl-C to stop)"))

	for {
		select {
		case n, ok := <-changes:
			if !ok {
				return nil
			}
			fmt.Printf("%d unread\n", n)
		case h, ok := <-health:
			if !ok {
				return nil
			}
			switch h.State {
			case counter.StatePolling:
				warnColor().Fprintln(rootCmd.ErrOrStderr(), "event stream lost, polling")
			case counter.StateBackoff:
				appLogger.Debug("reconnecting event stream", "attempt", h.Attempt)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func counterSubject(feedName string) string {
	return "unread:" + feedName
}

func init() {
	unreadCmd.Flags().Bool("watch", false, "keep watching the live count until interrupted")
	rootCmd.AddCommand(unreadCmd)
}
