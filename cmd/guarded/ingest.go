package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/poiesic/guarded/ingestion"
	"github.com/poiesic/guarded/partition"
	"github.com/urfave/cli/v2"
)

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Index files or directories and grant their owners access",
		ArgsUsage: "<path>...",
		Action:    ingestAction,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "owner",
				Aliases:  []string{"o"},
				Usage:    "Subject granted viewer access to every ingested source (repeatable)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "source-id",
				Usage: "Source ID for a single file; defaults to the path relative to its root",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Glob of files to index when walking directories (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Glob of files to skip when walking directories (overrides config)",
			},
			&cli.StringFlag{
				Name:  "replace",
				Usage: "How existing chunks are replaced (deferred, upfront)",
				Value: "deferred",
			},
		},
	}
}

// sourceFile is a file to ingest and the source ID it is indexed under.
type sourceFile struct {
	path     string
	sourceID string
}

func ingestAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one path is required")
	}
	mode, err := parseReplaceMode(c.String("replace"))
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	includes, excludes := cfg.Ingest.Includes, cfg.Ingest.Excludes
	if c.IsSet("include") {
		includes = c.StringSlice("include")
	}
	if c.IsSet("exclude") {
		excludes = c.StringSlice("exclude")
	}

	files, err := collectFiles(c.Args().Slice(), includes, excludes)
	if err != nil {
		return err
	}
	if id := c.String("source-id"); id != "" {
		if len(files) != 1 {
			return fmt.Errorf("--source-id requires exactly one file, found %d", len(files))
		}
		files[0].sourceID = id
	}
	if len(files) == 0 {
		fmt.Fprintln(c.App.Writer, "No matching files")
		return nil
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var opts []ingestion.Option
	if cfg.Ingest.PoolSize > 0 {
		opts = append(opts, ingestion.WithPoolSize(cfg.Ingest.PoolSize))
	}
	pipeline, err := db.NewIngestionPipeline(opts...)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	owners := c.StringSlice("owner")
	progress := newReporter(c.App.ErrWriter, "Ingesting", 10)
	progress.Start(len(files))

	var indexed, chunks, skipped, failed int
	for _, f := range files {
		partitioner, err := partition.ForFile(f.path, partition.WithMaxChars(cfg.Ingest.MaxChars))
		if err != nil {
			slog.Warn("skipping file", "path", f.path, "err", err)
			failed++
			progress.Add(1)
			continue
		}

		result, err := ingestFile(c, pipeline, f, owners, &ingestion.IngestOptions{
			Partitioner: partitioner,
			Replace:     mode,
		})
		progress.Add(1)
		if err != nil {
			slog.Error("ingestion failed", "source_id", f.sourceID, "err", err)
			failed++
			continue
		}
		if err := result.Err(); err != nil {
			slog.Warn("some chunks were skipped", "source_id", f.sourceID, "err", err)
		}
		indexed++
		chunks += result.ChunkCount
		skipped += len(result.Skipped)
	}
	progress.Finish()

	fmt.Fprintf(c.App.Writer, "Indexed %d of %d files: %d chunks, %d skipped\n", indexed, len(files), chunks, skipped)
	if failed > 0 {
		return fmt.Errorf("%d files failed to ingest", failed)
	}
	return nil
}

func ingestFile(c *cli.Context, pipeline *ingestion.Pipeline, f sourceFile, owners []string, opts *ingestion.IngestOptions) (*ingestion.Result, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return pipeline.Ingest(c.Context, file, f.sourceID, owners, opts)
}

func parseReplaceMode(s string) (ingestion.ReplaceMode, error) {
	switch strings.ToLower(s) {
	case "", "deferred":
		return ingestion.ReplaceDeferred, nil
	case "upfront":
		return ingestion.ReplaceUpfront, nil
	default:
		return 0, fmt.Errorf("invalid replace mode %q: must be one of deferred, upfront", s)
	}
}

// collectFiles expands the arguments into files. Files named directly are
// always included and keyed by their base name; directories are walked and
// filtered by the include and exclude globs, keyed by the slash-separated
// path relative to the directory.
func collectFiles(args, includes, excludes []string) ([]sourceFile, error) {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}

	var files []sourceFile
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, sourceFile{path: arg, sourceID: filepath.Base(arg)})
			continue
		}

		root := arg
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if rel != "." && matchAny(excludes, rel+"/") {
					return filepath.SkipDir
				}
				return nil
			}
			if matchAny(includes, rel) && !matchAny(excludes, rel) {
				files = append(files, sourceFile{path: path, sourceID: rel})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}
