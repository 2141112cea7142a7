package core

import (
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Relation names the kind of access a subject holds on an object.
type Relation string

const (
	// RelationViewer grants read access to every chunk of a source document.
	RelationViewer Relation = "viewer"
	// RelationOwner marks the subject that administers a source document.
	RelationOwner Relation = "owner"
)

// ChunkID derives a deterministic chunk identifier using BLAKE2b.
// Identical (source, ordinal, text) triples always produce the same ID, which keeps
// re-ingestion of unchanged content idempotent.
func ChunkID(sourceID string, ordinal int, text string) string {
	h, _ := blake2b.New(16, nil) // 128 bits
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(ordinal)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns a short BLAKE2b digest of raw document content.
func ContentHash(content []byte) string {
	h := NewContentHasher()
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// NewContentHasher returns the streaming form of ContentHash.
func NewContentHasher() hash.Hash {
	h, _ := blake2b.New(8, nil)
	return h
}

// SourceKey returns a fixed-width key for a source ID, suitable for prefix scans.
func SourceKey(sourceID string) uint64 {
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(sourceID))
	return binary.BigEndian.Uint64(h.Sum(nil))
}

// DocumentChunk is one addressable, embedded segment of a source document.
// Chunks are immutable once written and owned by the vector index.
type DocumentChunk struct {
	ID         string         `json:"id"`
	SourceID   string         `json:"source_id"`
	Ordinal    int            `json:"ordinal"`  // Position of the segment within its source
	Text       string         `json:"text"`
	Vector     []float32      `json:"vector"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Epoch      int64          `json:"epoch"` // Ingestion run that wrote the chunk
	InsertedAt time.Time      `json:"inserted_at"`
}

// ScoredChunk is a raw nearest-neighbour hit returned by the vector index.
type ScoredChunk struct {
	Chunk *DocumentChunk
	Score float32
}

// VisibilityTuple grants Subject the Relation on the source document named by Object.
type VisibilityTuple struct {
	Subject  string   `json:"subject"`
	Relation Relation `json:"relation"`
	Object   string   `json:"object"`
}

// String renders the tuple as "subject#relation@object".
func (t VisibilityTuple) String() string {
	return t.Subject + "#" + string(t.Relation) + "@" + t.Object
}

// ViewerTuple builds the tuple granting subject read access to sourceID.
func ViewerTuple(subject, sourceID string) VisibilityTuple {
	return VisibilityTuple{Subject: subject, Relation: RelationViewer, Object: sourceID}
}

// Decision is the authorization state of a search candidate.
type Decision int

const (
	// DecisionUnknown means no check has completed yet.
	DecisionUnknown Decision = iota
	// DecisionAllow means the subject may see the candidate.
	DecisionAllow
	// DecisionDeny means the check denied access or could not be completed.
	DecisionDeny
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// SearchCandidate is a chunk considered for a single query.
type SearchCandidate struct {
	Chunk    *DocumentChunk
	Score    float32
	Rank     int // Zero-based position in the similarity ranking
	Decision Decision
}

// RetrievalResult holds the authorized hits of one query in similarity order.
// It never carries information about candidates that were filtered out.
type RetrievalResult struct {
	Hits []*SearchCandidate
}

// Len returns the number of hits.
func (r *RetrievalResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Hits)
}

// SourceManifest records the outcome of the last successful ingestion of a source.
type SourceManifest struct {
	SourceID    string    `json:"source_id"`
	ChunkCount  int       `json:"chunk_count"`
	ContentHash string    `json:"content_hash"`
	Owners      []string  `json:"owners"`
	Epoch       int64     `json:"epoch"`
	IngestedAt  time.Time `json:"ingested_at"`
}
