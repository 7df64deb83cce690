// ABOUTME: Export and import commands for the subscription registry
// ABOUTME: Moves feed lists in and out as OPML

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harper/feedsync/internal/models"
	"github.com/harper/feedsync/internal/opml"
	"github.com/harper/feedsync/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export registered feeds as OPML to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		subs, err := appStore.ListFeeds()
		if err != nil {
			return fmt.Errorf("failed to list feeds: %w", err)
		}

		doc := opml.NewDocument("feedsync subscriptions")
		for _, sub := range subs {
			doc.Add(sub.Name, sub.URL)
		}
		return doc.Write(cmd.OutOrStdout())
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.opml>",
	Short: "Import feeds from an OPML file",
	Long:  "Import registers every feed in the OPML file. Feeds already registered by name are skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open OPML file: %w", err)
		}
		defer f.Close()

		doc, err := opml.Parse(f)
		if err != nil {
			return fmt.Errorf("failed to parse OPML: %w", err)
		}

		added, skipped := 0, 0
		for _, feed := range doc.Feeds {
			name := feed.Title
			if name == "" {
				name = feed.URL
			}
			if _, err := appStore.GetFeed(name); err == nil {
				skipped++
				continue
			} else if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("failed to check feed %q: %w", name, err)
			}
			if err := appStore.SaveFeed(models.NewFeedSub(name, feed.URL)); err != nil {
				return fmt.Errorf("failed to save feed %q: %w", name, err)
			}
			added++
		}

		fmt.Printf("Imported %d feed(s), skipped %d existing.\n", added, skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
