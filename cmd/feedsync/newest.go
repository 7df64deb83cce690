// ABOUTME: Newest command pulling fresh items in front of the cached feed
// ABOUTME: Fetches records the cache has not seen without touching pagination

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var newestCmd = &cobra.Command{
	Use:   "newest <feed>",
	Short: "Fetch items newer than the cached ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := lookupFeed(args[0])
		if err != nil {
			return err
		}

		ctrl := openController(sub, nil)
		defer ctrl.Close()

		ctx := cmd.Context()
		if err := ctrl.InitialLoad(ctx); err != nil {
			return fmt.Errorf("load failed: %w", err)
		}
		before := len(ctrl.State().Records)
		if err := ctrl.FetchNewest(ctx); err != nil {
			return fmt.Errorf("fetch newest failed: %w", err)
		}
		state := ctrl.State()
		if fresh := len(state.Records) - before; fresh > 0 {
			fmt.Printf("%d new item(s).\n", fresh)
		}
		printItems(state)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newestCmd)
}
