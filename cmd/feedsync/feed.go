// ABOUTME: Feed management commands for adding, listing, and removing subscriptions
// ABOUTME: Registry CRUD with optional feed autodiscovery on add

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/feedsync/internal/models"
	"github.com/harper/feedsync/internal/source/rss"
	"github.com/harper/feedsync/internal/store"
)

var feedCmd = &cobra.Command{
	Use:     "feed",
	Aliases: []string{"f"},
	Short:   "Manage feed subscriptions",
	Long:    "Add, list, and remove feed subscriptions from the local registry",
}

var feedAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Register a new feed",
	Long:  "Register a feed under a name. RSS URLs are autodiscovered unless --no-discover is set.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, url := args[0], args[1]
		eventsURL, _ := cmd.Flags().GetString("events")
		noDiscover, _ := cmd.Flags().GetBool("no-discover")

		if _, err := appStore.GetFeed(name); err == nil {
			return fmt.Errorf("feed already exists: %s", name)
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to check for existing feed: %w", err)
		}

		if eventsURL == "" && !noDiscover {
			found, err := rss.Discover(cmd.Context(), url)
			if err != nil {
				return fmt.Errorf("feed discovery failed for %s: %w", url, err)
			}
			if found.URL != url {
				fmt.Printf("Discovered feed: %s\n", found.URL)
			}
			url = found.URL
		}

		sub := models.NewFeedSub(name, url)
		sub.EventsURL = eventsURL
		if err := appStore.SaveFeed(sub); err != nil {
			return fmt.Errorf("failed to save feed: %w", err)
		}

		fmt.Printf("Added feed: %s\n", name)
		fmt.Printf("  URL: %s\n", url)
		if eventsURL != "" {
			fmt.Printf("  Events: %s\n", eventsURL)
		}
		return nil
	},
}

var feedListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		subs, err := appStore.ListFeeds()
		if err != nil {
			return fmt.Errorf("failed to list feeds: %w", err)
		}
		if len(subs) == 0 {
			fmt.Println("No feeds found. Add one with 'feedsync feed add <name> <url>'")
			return nil
		}

		fmt.Printf("Found %d feed(s):\n\n", len(subs))
		for _, sub := range subs {
			fmt.Printf("%s\n", sub.Name)
			fmt.Printf("  URL: %s\n", sub.URL)
			if sub.EventsURL != "" {
				fmt.Printf("  Events: %s\n", sub.EventsURL)
			}
			fmt.Println()
		}
		return nil
	},
}

var feedRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a feed",
	Long:  "Remove a feed from the registry and drop its cached snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if _, err := lookupFeed(name); err != nil {
			return err
		}
		if err := appStore.DeleteFeed(name); err != nil {
			return fmt.Errorf("failed to remove feed: %w", err)
		}
		fmt.Printf("Removed feed: %s\n", name)
		return nil
	},
}

func init() {
	feedAddCmd.Flags().String("events", "", "websocket URL for live change events (switches to the JSON API source)")
	feedAddCmd.Flags().Bool("no-discover", false, "skip feed autodiscovery, use the URL as-is")

	feedCmd.AddCommand(feedAddCmd)
	feedCmd.AddCommand(feedListCmd)
	feedCmd.AddCommand(feedRemoveCmd)
	rootCmd.AddCommand(feedCmd)
}
