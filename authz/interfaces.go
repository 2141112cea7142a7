package authz

import (
	"context"

	"github.com/poiesic/guarded/core"
)

// Checker answers single authorization questions.
// Implementations must be safe for concurrent use.
type Checker interface {
	// Check reports whether subject holds relation on object.
	// A failure to obtain a decision returns an error wrapping
	// core.ErrAuthzUnavailable; callers must treat it as a denial.
	Check(ctx context.Context, subject string, relation core.Relation, object string) (bool, error)
}

// TupleWriter adds and removes visibility tuples.
type TupleWriter interface {
	// WriteTuples registers tuples. Writing an existing tuple succeeds.
	// Failures wrap core.ErrAuthzWrite.
	WriteTuples(ctx context.Context, tuples ...core.VisibilityTuple) error

	// DeleteTuples revokes tuples. Deleting a missing tuple succeeds.
	// Failures wrap core.ErrAuthzWrite.
	DeleteTuples(ctx context.Context, tuples ...core.VisibilityTuple) error
}

// Client is the full authorization service contract.
type Client interface {
	Checker
	TupleWriter

	// Close releases resources held by the client.
	Close() error
}
