// ABOUTME: Refresh command replacing the cached feed with a fresh first page
// ABOUTME: Loads the cached set first so reconciliation sees what is on disk

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <feed>",
	Short: "Replace the cache with a fresh first page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRefresh(cmd.Context(), args[0])
	},
}

// runRefresh re-fetches a feed's loaded set. The initial load hydrates the
// controller from the persisted snapshot; without it the loaded-ID set is
// empty and the refresh would overwrite the cache with nothing.
func runRefresh(ctx context.Context, feedName string) error {
	sub, err := lookupFeed(feedName)
	if err != nil {
		return err
	}

	ctrl := openController(sub, nil)
	defer ctrl.Close()

	if err := ctrl.InitialLoad(ctx); err != nil {
		return fmt.Errorf("load failed: %w", err)
	}
	if err := ctrl.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	printItems(ctrl.State())
	return nil
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
