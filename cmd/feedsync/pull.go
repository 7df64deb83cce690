// ABOUTME: Pull command running the initial cached-then-reconcile load
// ABOUTME: Paints the cache, reconciles against the server, and prints items

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/feedsync/internal/models"
	"github.com/harper/feedsync/internal/timeutil"
)

var pullCmd = &cobra.Command{
	Use:   "pull <feed>",
	Short: "Load a feed (cache first, then reconcile)",
	Long: `Pull paints the cached snapshot immediately, then reconciles it against
the server: edits land, deletions drop out, and an empty cache fetches
the first page. Offline, the cached items stand as-is.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := lookupFeed(args[0])
		if err != nil {
			return err
		}

		var filter func([]models.Item) []models.Item
		if since, _ := cmd.Flags().GetString("since"); since != "" {
			cutoff, ok := timeutil.ParsePeriod(since)
			if !ok {
				return fmt.Errorf("unknown period %q (use today, yesterday, week, or month)", since)
			}
			filter = func(batch []models.Item) []models.Item {
				kept := batch[:0]
				for _, it := range batch {
					if !it.SubmittedAt.Before(cutoff) {
						kept = append(kept, it)
					}
				}
				return kept
			}
		}

		ctrl := openController(sub, filter)
		defer ctrl.Close()

		if err := ctrl.InitialLoad(cmd.Context()); err != nil {
			return fmt.Errorf("load failed: %w", err)
		}
		printItems(ctrl.State())
		return nil
	},
}

func init() {
	pullCmd.Flags().String("since", "", "only keep fetched items from this period: today, yesterday, week, month")
	rootCmd.AddCommand(pullCmd)
}
