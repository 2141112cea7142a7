package badger

import (
	"fmt"

	"github.com/poiesic/guarded/core"
)

// Key prefixes for different data types
const (
	chunkPrefix    = "chunk:"
	manifestPrefix = "manifest:"
	tuplePrefix    = "tuple:"
	generationKey  = "meta:generation"
	dimensionKey   = "meta:dimension"
)

// makeSourcePrefix returns the prefix shared by every chunk of a source.
// Format: chunk:<16 hex digits of SourceKey>:
func makeSourcePrefix(sourceID string) []byte {
	return []byte(fmt.Sprintf("%s%016x:", chunkPrefix, core.SourceKey(sourceID)))
}

// makeChunkKey generates a key for a chunk.
// Format: chunk:<source key>:<chunk id>
func makeChunkKey(sourceID, chunkID string) []byte {
	return append(makeSourcePrefix(sourceID), chunkID...)
}

// makeManifestKey generates a key for a source manifest.
func makeManifestKey(sourceID string) []byte {
	return []byte(manifestPrefix + sourceID)
}

// makeObjectTuplePrefix returns the prefix shared by every tuple on an object.
// Format: tuple:<object>\x00
func makeObjectTuplePrefix(object string) []byte {
	buf := make([]byte, 0, len(tuplePrefix)+len(object)+1)
	buf = append(buf, tuplePrefix...)
	buf = append(buf, object...)
	return append(buf, 0)
}

// makeTupleKey generates a key for a visibility tuple.
// Format: tuple:<object>\x00<relation>\x00<subject>
func makeTupleKey(t core.VisibilityTuple) []byte {
	buf := makeObjectTuplePrefix(t.Object)
	buf = append(buf, t.Relation...)
	buf = append(buf, 0)
	return append(buf, t.Subject...)
}

// parseTupleKey reverses makeTupleKey.
func parseTupleKey(key []byte) (core.VisibilityTuple, bool) {
	rest := key[len(tuplePrefix):]
	var parts [3][]byte
	n := 0
	start := 0
	for i, c := range rest {
		if c == 0 && n < 2 {
			parts[n] = rest[start:i]
			n++
			start = i + 1
		}
	}
	if n != 2 {
		return core.VisibilityTuple{}, false
	}
	parts[2] = rest[start:]
	return core.VisibilityTuple{
		Object:   string(parts[0]),
		Relation: core.Relation(parts[1]),
		Subject:  string(parts[2]),
	}, true
}
