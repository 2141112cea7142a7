package main

import (
	"fmt"
	"time"

	"github.com/poiesic/guarded/ai"
	"github.com/poiesic/guarded/reembed"
	"github.com/urfave/cli/v2"
)

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:   "reembed",
		Usage:  "Reembed all chunks with a new embedding model",
		Action: reembedAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL (overrides config)",
			},
			&cli.StringFlag{
				Name:     "embedding-model",
				Usage:    "Embedding model name",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "dimension",
				Usage: "Expected vector length of the new model (0 accepts any)",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of chunks to process in each batch",
				Value: reembed.DefaultBatchSize,
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum retry attempts for failed operations",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: 1 * time.Second,
			},
		},
	}
}

func reembedAction(c *cli.Context) error {
	if c.Int("batch-size") <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if c.Int("max-retries") <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if host := c.String("embedding-host"); host != "" {
		cfg.Embedding.Host = host
	}
	cfg.Embedding.Model = c.String("embedding-model")
	cfg.Embedding.Dimension = c.Int("dimension")
	cfg.Embedding.MaxAttempts = c.Int("max-retries")
	cfg.Embedding.RetryDelay = c.Duration("retry-delay")

	aiConfig := cfg.AIConfig()
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// The provider already retries each call
	reembedder, err := db.NewReembedder(&reembed.Config{
		BatchSize: c.Int("batch-size"),
		Backoff:   ai.Backoff{MaxAttempts: 1},
		Dimension: cfg.Embedding.Dimension,
	}, newReporter(c.App.ErrWriter, "Reembedding", 1000))
	if err != nil {
		return err
	}

	w := c.App.ErrWriter
	fmt.Fprintf(w, "Database: %s\n", cfg.Database.Path)
	fmt.Fprintf(w, "Embedding host: %s\n", aiConfig.EmbeddingHost)
	fmt.Fprintf(w, "Embedding model: %s\n", aiConfig.EmbeddingModel)
	fmt.Fprintln(w)

	stats, err := reembedder.Run(c.Context)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Reembedded %d of %d chunks in %s\n",
		stats.Updated, stats.Total, stats.Duration.Round(time.Millisecond))
	return nil
}
