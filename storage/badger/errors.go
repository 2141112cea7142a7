package badger

import "errors"

var (
	// ErrBackendRequired is returned when a repository is created without a backend.
	ErrBackendRequired = errors.New("badger backend is required")

	// ErrInvalidDimension is returned for a negative vector dimension.
	ErrInvalidDimension = errors.New("vector dimension cannot be negative")
)
