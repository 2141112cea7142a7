package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/guarded/ingestion"
	"github.com/poiesic/guarded/partition"
	"github.com/poiesic/guarded/storage"
	"github.com/urfave/cli/v2"
)

// deniedSuffix derives the demo's unauthorized subject from the granted one.
const deniedSuffix = "-denyme"

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:   "demo",
		Usage:  "Ingest a file for one user, then search as that user and as an unauthorized one",
		Action: demoAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "File to ingest; unknown formats are read as plain text",
				Value:   "demo.pdf",
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Subject that owns the file",
				Value:   "demo_user",
			},
			&cli.StringFlag{
				Name:  "query",
				Usage: "Query to run as both subjects",
				Value: "test",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results",
				Value: 5,
			},
			&cli.DurationFlag{
				Name:  "wait",
				Usage: "How long to wait for the index to become consistent",
				Value: 30 * time.Second,
			},
		},
	}
}

func demoAction(c *cli.Context) error {
	path := c.String("file")
	user := c.String("user")
	if user == "" {
		return fmt.Errorf("user is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewIngestionPipeline()
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	partitioner, err := demoPartitioner(path, partition.WithMaxChars(cfg.Ingest.MaxChars))
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	sourceID := filepath.Base(path)
	result, err := pipeline.Ingest(c.Context, file, sourceID, []string{user}, &ingestion.IngestOptions{Partitioner: partitioner})
	file.Close()
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Ingested %s: %d chunks (%d skipped), granted to %s\n",
		sourceID, result.ChunkCount, len(result.Skipped), user)

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("wait"))
	err = storage.AwaitGeneration(ctx, db.VectorIndex(), result.Generation, 50*time.Millisecond)
	cancel()
	if err != nil {
		return fmt.Errorf("index not ready: %w", err)
	}

	searcher, err := db.NewSearcher(cfg.SearchOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}
	defer searcher.Release()

	for _, subject := range []string{user, user + deniedSuffix} {
		res, err := searcher.Search(c.Context, c.String("query"), subject, c.Int("limit"))
		if err != nil {
			return fmt.Errorf("search as %s failed: %w", subject, err)
		}
		fmt.Fprintf(w, "\nResults for %s (%d):\n", subject, res.Len())
		printResults(w, res)
	}
	return nil
}

// demoPartitioner reads formats without a dedicated partitioner, such as PDF,
// as plain text.
func demoPartitioner(path string, opts ...partition.Option) (partition.Partitioner, error) {
	partitioner, err := partition.ForFile(path, opts...)
	switch {
	case errors.Is(err, partition.ErrUnsupportedFormat):
		slog.Debug("no partitioner for format, reading as text", "path", path)
		return partition.NewText(opts...), nil
	case err != nil:
		return nil, fmt.Errorf("failed to select partitioner: %w", err)
	}
	return partitioner, nil
}
