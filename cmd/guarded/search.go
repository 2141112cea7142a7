package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/poiesic/guarded/core"
	"github.com/poiesic/guarded/search"
	"github.com/urfave/cli/v2"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the index as a subject; only authorized chunks are shown",
		ArgsUsage: "<query>",
		Action:    searchAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "Subject the search runs as",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of results (overrides config)",
			},
		},
	}
}

func searchAction(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	limit := cfg.Search.Limit
	if c.IsSet("limit") {
		limit = c.Int("limit")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher(append(cfg.SearchOptions(), search.WithLogger(slog.Default()))...)
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}
	defer searcher.Release()

	result, err := searcher.Search(c.Context, query, c.String("user"), limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	printResults(c.App.Writer, result)
	return nil
}

func printResults(w io.Writer, result *core.RetrievalResult) {
	if result.Len() == 0 {
		fmt.Fprintln(w, "No results")
		return
	}
	for i, hit := range result.Hits {
		fmt.Fprintf(w, "%d. [%.4f] %s #%d\n", i+1, hit.Score, hit.Chunk.SourceID, hit.Chunk.Ordinal)
		fmt.Fprintf(w, "   %s\n", snippet(hit.Chunk.Text, 200))
	}
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
