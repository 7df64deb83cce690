// ABOUTME: Stats command summarizing a feed's cached state
// ABOUTME: Record count, unread count, pagination flag, and snapshot age

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/feedsync/internal/models"
	"github.com/harper/feedsync/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats <feed>",
	Short: "Show cached snapshot statistics for a feed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := lookupFeed(args[0])
		if err != nil {
			return err
		}

		snap, err := appStore.LoadSnapshot(store.FeedSlot(sub.Name))
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		cnt, err := appStore.LoadCounter(counterSubject(sub.Name))
		if err != nil {
			return fmt.Errorf("failed to load counter: %w", err)
		}

		items := models.UnmarshalRecords[models.Item](snap.Records)
		unread := 0
		for _, it := range items {
			if it.Unread {
				unread++
			}
		}

		faint := color.New(color.Faint).SprintFunc()
		fmt.Printf("%s\n", sub.Name)
		fmt.Printf("  cached records:  %d\n", len(items))
		fmt.Printf("  unread (cached): %d\n", unread)
		fmt.Printf("  counter slot:    %d\n", cnt.Value)
		if snap.Empty() {
			fmt.Printf("  snapshot:        %s\n", faint("never saved"))
		} else {
			fmt.Printf("  snapshot saved:  %s\n", faint(snap.SavedAt.Local().Format("2006-01-02 15:04:05")))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
