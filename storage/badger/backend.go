package badger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/guarded/storage"
)

// maxConflictRetries bounds how often an update is replayed after a write conflict.
const maxConflictRetries = 16

// Backend wraps a BadgerDB instance and provides low-level operations.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := ensureDir(filePath); err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(filePath)
	}

	logger := slog.Default().With("component", "badger")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:     db,
		logger: logger,
	}, nil
}

func ensureDir(filePath string) error {
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(filePath, 0755); err != nil {
			return err
		}
		info, err = os.Stat(filePath)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", filePath)
	}
	return nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	if b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// Update runs fn in a write transaction, bumps the generation counter and
// commits. Conflicting commits are replayed. Returns the new generation.
func (b *Backend) Update(fn func(tx *badger.Txn) error) (uint64, error) {
	for attempt := 0; ; attempt++ {
		var gen uint64
		err := b.WithTx(func(tx *badger.Txn) error {
			if err := fn(tx); err != nil {
				return err
			}
			var err error
			if gen, err = bumpGeneration(tx); err != nil {
				return err
			}
			return tx.Commit()
		}, true)

		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			b.logger.Debug("write conflict, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return 0, err
		}
		return gen, nil
	}
}

// Generation returns the current write generation.
func (b *Backend) Generation() (uint64, error) {
	var gen uint64
	err := b.WithTx(func(tx *badger.Txn) error {
		var err error
		gen, err = readGeneration(tx)
		return err
	}, false)
	return gen, err
}

func readGeneration(tx *badger.Txn) (uint64, error) {
	item, err := tx.Get([]byte(generationKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var gen uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return storage.ErrTruncatedData
		}
		gen = binary.BigEndian.Uint64(val)
		return nil
	})
	return gen, err
}

func bumpGeneration(tx *badger.Txn) (uint64, error) {
	gen, err := readGeneration(tx)
	if err != nil {
		return 0, err
	}
	gen++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, gen)
	return gen, tx.Set([]byte(generationKey), buf)
}
