package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/guarded/authz"
	"github.com/poiesic/guarded/core"
)

// TupleRepository is an embedded authorization store answering checks by
// exact tuple match. It implements authz.Client so it can stand in for a
// remote service.
type TupleRepository struct {
	backend *Backend
	logger  *slog.Logger
}

var _ authz.Client = (*TupleRepository)(nil)

// NewTupleRepository creates a new TupleRepository.
func NewTupleRepository(backend *Backend) (*TupleRepository, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &TupleRepository{
		backend: backend,
		logger:  slog.Default().With("component", "tuple-store"),
	}, nil
}

// Check reports whether the exact tuple is stored.
func (r *TupleRepository) Check(ctx context.Context, subject string, relation core.Relation, object string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	found := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeTupleKey(core.VisibilityTuple{Subject: subject, Relation: relation, Object: object})
		_, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	}, false)
	if err != nil {
		return false, fmt.Errorf("%w: %w", core.ErrAuthzUnavailable, err)
	}
	return found, nil
}

// WriteTuples stores tuples. Existing tuples are overwritten.
func (r *TupleRepository) WriteTuples(ctx context.Context, tuples ...core.VisibilityTuple) error {
	return r.modify(ctx, tuples, func(tx *badger.Txn, key []byte) error {
		return tx.Set(key, nil)
	})
}

// DeleteTuples removes tuples. Missing tuples are ignored.
func (r *TupleRepository) DeleteTuples(ctx context.Context, tuples ...core.VisibilityTuple) error {
	return r.modify(ctx, tuples, func(tx *badger.Txn, key []byte) error {
		return tx.Delete(key)
	})
}

func (r *TupleRepository) modify(ctx context.Context, tuples []core.VisibilityTuple, op func(*badger.Txn, []byte) error) error {
	if len(tuples) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, t := range tuples {
		if err := core.ValidateTuple(t); err != nil {
			return fmt.Errorf("%w: %w", core.ErrAuthzWrite, err)
		}
	}

	_, err := r.backend.Update(func(tx *badger.Txn) error {
		for _, t := range tuples {
			if err := op(tx, makeTupleKey(t)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrAuthzWrite, err)
	}
	r.logger.Debug("tuples modified", "count", len(tuples))
	return nil
}

// TuplesForObject lists every tuple on object.
func (r *TupleRepository) TuplesForObject(ctx context.Context, object string) ([]core.VisibilityTuple, error) {
	prefix := makeObjectTuplePrefix(object)
	var tuples []core.VisibilityTuple
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			if !bytes.HasPrefix(key, prefix) {
				continue
			}
			if t, ok := parseTupleKey(key); ok {
				tuples = append(tuples, t)
			}
		}
		return ctx.Err()
	}, false)
	return tuples, err
}

// Close is a no-op; the backend is owned by the caller.
func (r *TupleRepository) Close() error {
	return nil
}
