package handlers

import (
	"context"
	"fmt"
	"time"

	"later/internal/core"
	"later/internal/extract"
	"later/internal/priority"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewAddCmd creates the add command.
func NewAddCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "add [url]...",
		Short: "Save articles and process them",
		Long:  `Save one or more URLs, then extract, summarise, and embed each before returning.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(args, concurrency)
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 4, "Parallel ingestions for multiple URLs")
	return cmd
}

func runAdd(rawURLs []string, concurrency int) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var items []*core.Item
	for _, rawURL := range rawURLs {
		prepared, err := extract.PrepareURL(rawURL)
		if err != nil {
			return err
		}
		item := &core.Item{
			ID:     uuid.NewString(),
			UserID: a.cfg.App.UserID,
			URL:    prepared,
		}
		if err := a.store.CreateItem(ctx, item); err != nil {
			return err
		}
		fmt.Printf("Saved %s\n", prepared)
		items = append(items, item)
	}

	fmt.Println("Processing...")
	if err := a.runner.ResumeAll(ctx, items, concurrency); err != nil {
		return err
	}

	for _, item := range items {
		processed, err := a.store.GetItem(ctx, item.UserID, item.ID)
		if err != nil {
			return err
		}
		if processed.ClientStatus == core.ClientError {
			fmt.Printf("\n%s\n  processing failed\n", processed.URL)
			continue
		}
		fmt.Printf("\n%s\n%s\n\nSummary: %s\n", processed.Title, processed.URL, processed.Summary)
	}
	return nil
}

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	var byPriority bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved items",
		Long:  `List the reading queue, optionally ordered by reading priority.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(byPriority)
		},
	}

	cmd.Flags().BoolVarP(&byPriority, "priority", "P", false, "Order by reading priority")
	return cmd
}

func runList(byPriority bool) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.store.ListItems(ctx, a.cfg.App.UserID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No saved items.")
		return nil
	}

	if byPriority {
		for _, rk := range priority.Rank(items, time.Now().UTC()) {
			fmt.Printf("%5.2f  [%s]  %s\n       %s\n", rk.Priority, rk.Item.ClientStatus, itemTitle(rk.Item), rk.Item.URL)
		}
		return nil
	}
	for _, item := range items {
		fmt.Printf("[%s]  %s\n      %s\n", item.ClientStatus, itemTitle(item), item.URL)
	}
	return nil
}

func itemTitle(item *core.Item) string {
	if item.Title != "" {
		return item.Title
	}
	return "(untitled)"
}
