package badger

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/guarded/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_PathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := OpenBackend(file, false)
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())
	assert.NoError(t, backend.Close(), "second close is a no-op")

	err = backend.WithTx(func(*badger.Txn) error { return nil }, false)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestBackend_GenerationAdvances(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	gen, err := backend.Generation()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gen)

	g1, err := backend.Update(func(tx *badger.Txn) error { return tx.Set([]byte("k1"), []byte("v")) })
	require.NoError(t, err)
	g2, err := backend.Update(func(tx *badger.Txn) error { return tx.Set([]byte("k2"), []byte("v")) })
	require.NoError(t, err)

	assert.Equal(t, uint64(1), g1)
	assert.Equal(t, uint64(2), g2)

	gen, err = backend.Generation()
	require.NoError(t, err)
	assert.Equal(t, g2, gen)
}

func TestBackend_ConcurrentUpdates(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := backend.Update(func(tx *badger.Txn) error {
				return tx.Set([]byte{byte(i)}, []byte("v"))
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	gen, err := backend.Generation()
	require.NoError(t, err)
	assert.Equal(t, uint64(writers), gen, "every committed write advances the generation once")
}

func TestTupleKeyRoundTrip(t *testing.T) {
	key := makeTupleKey(tuple("alice", "reports/q3.pdf"))
	parsed, ok := parseTupleKey(key)
	require.True(t, ok)
	assert.Equal(t, tuple("alice", "reports/q3.pdf"), parsed)

	_, ok = parseTupleKey([]byte(tuplePrefix + "no-separators"))
	assert.False(t, ok)
}

func TestChunkIDFromKey(t *testing.T) {
	key := makeChunkKey("demo.pdf", "abc123")
	assert.Equal(t, "abc123", chunkIDFromKey(key))
	assert.Equal(t, "", chunkIDFromKey([]byte("chunk:short")))
}
