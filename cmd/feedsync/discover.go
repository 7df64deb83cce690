// ABOUTME: Discover command resolving a site URL to its feed URL
// ABOUTME: Prints the discovered feed without registering it

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/feedsync/internal/source/rss"
)

var discoverCmd = &cobra.Command{
	Use:   "discover <url>",
	Short: "Find the RSS/Atom feed for a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		found, err := rss.Discover(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		if found.Title != "" {
			fmt.Printf("%s\n", found.Title)
		}
		fmt.Printf("%s\n", found.URL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
