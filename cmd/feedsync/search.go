// ABOUTME: Search command over the cached feed snapshot
// ABOUTME: Case-insensitive substring match against title, body, and author

package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/feedsync/internal/models"
	"github.com/harper/feedsync/internal/store"
)

var searchCmd = &cobra.Command{
	Use:   "search <feed> <term>",
	Short: "Search the cached items of a feed",
	Long:  "Search works entirely against the local snapshot; run 'pull' first to sync.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := lookupFeed(args[0])
		if err != nil {
			return err
		}
		term := strings.ToLower(args[1])

		snap, err := appStore.LoadSnapshot(store.FeedSlot(sub.Name))
		if err != nil {
			return fmt.Errorf("failed to load cached snapshot: %w", err)
		}

		items := models.UnmarshalRecords[models.Item](snap.Records)

		var hits []models.Item
		for _, it := range items {
			if strings.Contains(strings.ToLower(it.Title), term) ||
				strings.Contains(strings.ToLower(it.Body), term) ||
				strings.Contains(strings.ToLower(it.Author), term) {
				hits = append(hits, it)
			}
		}

		if len(hits) == 0 {
			fmt.Printf("No cached items match %q.\n", args[1])
			return nil
		}

		faint := color.New(color.Faint).SprintFunc()
		fmt.Printf("%d match(es):\n\n", len(hits))
		for _, it := range hits {
			fmt.Printf("%s %s\n", it.Title, faint(it.SubmittedAt.Local().Format("2006-01-02")))
			if it.Link != "" {
				fmt.Printf("  %s\n", faint(it.Link))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
