package ingestion

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/poiesic/guarded/core"
	"github.com/poiesic/guarded/storage"
)

// Grant gives subjects the viewer relation on sourceID. Subjects granted on an
// ingested source are recorded in its manifest so Remove revokes them too.
func (p *Pipeline) Grant(ctx context.Context, sourceID string, subjects ...string) error {
	tuples, err := viewerTuples(sourceID, subjects)
	if err != nil {
		return err
	}

	unlock := p.locks.lock(sourceID)
	defer unlock()

	if err := p.tuples.WriteTuples(ctx, tuples...); err != nil {
		return core.NewSourceError("grant", sourceID, err)
	}
	if err := p.recordSubjects(ctx, sourceID, func(owners []string) []string {
		return mergeSubjects(owners, subjects)
	}); err != nil {
		return core.NewSourceError("grant", sourceID, err)
	}
	p.logger.Info("granted access", "source", sourceID, "subjects", len(subjects))
	return nil
}

// Revoke removes the viewer relation of subjects on sourceID.
func (p *Pipeline) Revoke(ctx context.Context, sourceID string, subjects ...string) error {
	tuples, err := viewerTuples(sourceID, subjects)
	if err != nil {
		return err
	}

	unlock := p.locks.lock(sourceID)
	defer unlock()

	if err := p.tuples.DeleteTuples(ctx, tuples...); err != nil {
		return core.NewSourceError("revoke", sourceID, err)
	}
	if err := p.recordSubjects(ctx, sourceID, func(owners []string) []string {
		return dropSubjects(owners, subjects)
	}); err != nil {
		return core.NewSourceError("revoke", sourceID, err)
	}
	p.logger.Info("revoked access", "source", sourceID, "subjects", len(subjects))
	return nil
}

// Remove deletes every chunk of sourceID, the viewer tuples recorded in its
// manifest and the manifest itself. It returns the number of chunks removed.
// Tuples granted before the source was first ingested are left in place.
func (p *Pipeline) Remove(ctx context.Context, sourceID string) (int, error) {
	if err := core.ValidateSourceID(sourceID); err != nil {
		return 0, err
	}

	unlock := p.locks.lock(sourceID)
	defer unlock()

	manifest, err := p.manifests.LoadManifest(ctx, sourceID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, core.NewSourceError("remove", sourceID, err)
	}

	deleted, err := p.index.DeleteAllForSource(ctx, sourceID)
	if err != nil {
		return deleted, core.NewSourceError("remove", sourceID, err)
	}

	if manifest != nil && len(manifest.Owners) > 0 {
		tuples, err := viewerTuples(sourceID, manifest.Owners)
		if err != nil {
			return deleted, core.NewSourceError("remove", sourceID, err)
		}
		if err := p.tuples.DeleteTuples(ctx, tuples...); err != nil {
			return deleted, core.NewSourceError("remove", sourceID, err)
		}
	}

	if err := p.manifests.DeleteManifest(ctx, sourceID); err != nil {
		return deleted, core.NewSourceError("remove", sourceID, err)
	}

	p.logger.Info("removed source", "source", sourceID, "chunks", deleted)
	return deleted, nil
}

func viewerTuples(sourceID string, subjects []string) ([]core.VisibilityTuple, error) {
	if err := core.ValidateSourceID(sourceID); err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, ErrSubjectsRequired
	}
	tuples := make([]core.VisibilityTuple, len(subjects))
	for i, subject := range subjects {
		tuples[i] = core.ViewerTuple(subject, sourceID)
		if err := core.ValidateTuple(tuples[i]); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSubjectsRequired, err)
		}
	}
	return tuples, nil
}

// recordSubjects rewrites the subjects recorded in the manifest of sourceID.
// Sources without a manifest are left alone. Callers hold the source lock.
func (p *Pipeline) recordSubjects(ctx context.Context, sourceID string, update func([]string) []string) error {
	manifest, err := p.manifests.LoadManifest(ctx, sourceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	manifest.Owners = update(manifest.Owners)
	return p.manifests.SaveManifest(ctx, manifest)
}

// mergeSubjects returns a followed by the members of b not already in a.
func mergeSubjects(a, b []string) []string {
	out := slices.Clone(a)
	for _, s := range b {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func dropSubjects(a, drop []string) []string {
	return slices.DeleteFunc(slices.Clone(a), func(s string) bool {
		return slices.Contains(drop, s)
	})
}
