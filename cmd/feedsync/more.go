// ABOUTME: More command paging older items into the cached feed
// ABOUTME: Runs an initial load, then requests one further page

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var moreCmd = &cobra.Command{
	Use:   "more <feed>",
	Short: "Fetch the next page of older items",
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
		if !ctrl.State().HasMore {
			fmt.Println("Nothing more to fetch.")
			printItems(ctrl.State())
			return nil
		}
		if err := ctrl.LoadMore(ctx); err != nil {
			return fmt.Errorf("load more failed: %w", err)
		}
		printItems(ctrl.State())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(moreCmd)
}
