package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func grantCommand() *cli.Command {
	return &cli.Command{
		Name:      "grant",
		Usage:     "Give subjects viewer access to a source",
		ArgsUsage: "<source-id>",
		Action:    grantAction,
		Flags:     []cli.Flag{userSliceFlag()},
	}
}

func revokeCommand() *cli.Command {
	return &cli.Command{
		Name:      "revoke",
		Usage:     "Remove viewer access to a source",
		ArgsUsage: "<source-id>",
		Action:    revokeAction,
		Flags:     []cli.Flag{userSliceFlag()},
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Delete a source's chunks, manifest and owner grants",
		ArgsUsage: "<source-id>",
		Action:    removeAction,
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:   "health",
		Usage:  "Check the index and list ingested sources",
		Action: healthAction,
	}
}

func userSliceFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:     "user",
		Aliases:  []string{"u"},
		Usage:    "Subject to grant or revoke (repeatable)",
		Required: true,
	}
}

func sourceArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("exactly one source ID is required")
	}
	return c.Args().First(), nil
}

func grantAction(c *cli.Context) error {
	return modifyAccess(c, true)
}

func revokeAction(c *cli.Context) error {
	return modifyAccess(c, false)
}

func modifyAccess(c *cli.Context, grant bool) error {
	sourceID, err := sourceArg(c)
	if err != nil {
		return err
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

	users := c.StringSlice("user")
	if grant {
		if err := pipeline.Grant(c.Context, sourceID, users...); err != nil {
			return fmt.Errorf("grant failed: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "Granted %d subjects access to %s\n", len(users), sourceID)
		return nil
	}
	if err := pipeline.Revoke(c.Context, sourceID, users...); err != nil {
		return fmt.Errorf("revoke failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Revoked access to %s for %d subjects\n", sourceID, len(users))
	return nil
}

func removeAction(c *cli.Context) error {
	sourceID, err := sourceArg(c)
	if err != nil {
		return err
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

	deleted, err := pipeline.Remove(c.Context, sourceID)
	if err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Removed %s (%d chunks)\n", sourceID, deleted)
	return nil
}

func healthAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := c.Context
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("index unhealthy: %w", err)
	}
	count, err := db.VectorIndex().Count(ctx)
	if err != nil {
		return err
	}
	gen, err := db.VectorIndex().Generation(ctx)
	if err != nil {
		return err
	}
	manifests, err := db.Manifests().ListManifests(ctx)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Status: ok\n")
	fmt.Fprintf(w, "Database: %s\n", cfg.Database.Path)
	fmt.Fprintf(w, "Chunks: %d\n", count)
	fmt.Fprintf(w, "Generation: %d\n", gen)
	fmt.Fprintf(w, "Sources: %d\n", len(manifests))
	for _, m := range manifests {
		fmt.Fprintf(w, "  %s: %d chunks, owners %v, ingested %s\n",
			m.SourceID, m.ChunkCount, m.Owners, m.IngestedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
