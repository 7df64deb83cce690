// ABOUTME: Shared terminal output helpers for item listings
// ABOUTME: Color formatting for unread markers, timestamps, and warnings

package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/harper/feedsync/internal/controller"
	"github.com/harper/feedsync/internal/models"
)

func warnColor() *color.Color { return color.New(color.FgYellow) }
func errColor() *color.Color  { return color.New(color.FgRed) }

// printItems renders the controller's current records, one per line.
func printItems(state controller.State[models.Item]) {
	if len(state.Records) == 0 {
		fmt.Println("No items.")
		return
	}

	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	for _, it := range state.Records {
		marker := " "
		title := it.Title
		if it.Unread {
			marker = green("●")
			title = bold(title)
		}
		fmt.Printf("%s %s %s\n", marker, title, faint(it.SubmittedAt.Local().Format("2006-01-02 15:04")))
		if it.Link != "" {
			fmt.Printf("  %s\n", faint(it.Link))
		}
	}

	if state.HasMore {
		fmt.Println(faint("… more available (feedsync more)"))
	}
}
