package handlers

import (
	"context"
	"fmt"
	"strings"

	"later/internal/search"

	"github.com/spf13/cobra"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	var (
		mode   string
		scope  string
		limit  int
		rerank bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search saved items",
		Long: `Search the reading queue.

Modes:
  semantic - rank by embedding similarity, refined by a cross-encoder
  lexical  - full-text match on titles, summaries, and content

Examples:
  later search "vector databases"
  later search --mode lexical --scope chunks "WAL checkpoint"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(strings.Join(args, " "), mode, scope, limit, rerank)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "semantic", "Search mode (semantic or lexical)")
	cmd.Flags().StringVarP(&scope, "scope", "s", "items", "Search scope (items or chunks)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&rerank, "rerank", true, "Refine semantic results with the cross-encoder")
	return cmd
}

func runSearch(query, mode, scope string, limit int, rerank bool) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.searcher.Search(ctx, search.Request{
		UserID: a.cfg.App.UserID,
		Query:  query,
		Mode:   search.Mode(mode),
		Scope:  search.Scope(scope),
		Limit:  limit,
		Rerank: rerank,
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%2d. %.3f  %s\n    %s\n", i+1, r.Score, r.Title, r.URL)
		if r.Preview != "" {
			fmt.Printf("    %s\n", truncate(r.Preview, 160))
		}
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
