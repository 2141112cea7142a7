// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/guarded/core"
)

var (
	vectorMUS = ord.NewSliceSer[float32](raw.Float32)
	ownersMUS = ord.NewSliceSer[string](ord.String)
)

// Metadata value tags. A stored value decodes to the same Go type it was
// written with.
const (
	metaString byte = iota + 1
	metaInt
	metaInt64
	metaFloat64
	metaBool
)

// MarshalChunk serializes a chunk. The vector is written first so that
// UnmarshalChunkVector can stop after it.
func MarshalChunk(chunk *core.DocumentChunk) ([]byte, error) {
	metaSize, err := metadataSize(chunk.Metadata)
	if err != nil {
		return nil, err
	}
	insertedAt := nanosFromTime(chunk.InsertedAt)
	size := vectorMUS.Size(chunk.Vector) +
		ord.String.Size(chunk.ID) +
		ord.String.Size(chunk.SourceID) +
		varint.Int.Size(chunk.Ordinal) +
		ord.String.Size(chunk.Text) +
		metaSize +
		varint.Int64.Size(chunk.Epoch) +
		varint.Int64.Size(insertedAt)

	bs := make([]byte, size)
	n := vectorMUS.Marshal(chunk.Vector, bs)
	n += ord.String.Marshal(chunk.ID, bs[n:])
	n += ord.String.Marshal(chunk.SourceID, bs[n:])
	n += varint.Int.Marshal(chunk.Ordinal, bs[n:])
	n += ord.String.Marshal(chunk.Text, bs[n:])
	n += marshalMetadata(chunk.Metadata, bs[n:])
	n += varint.Int64.Marshal(chunk.Epoch, bs[n:])
	varint.Int64.Marshal(insertedAt, bs[n:])
	return bs, nil
}

// UnmarshalChunk deserializes a chunk written by MarshalChunk.
func UnmarshalChunk(data []byte) (*core.DocumentChunk, error) {
	var (
		chunk      core.DocumentChunk
		insertedAt int64
		n, m       int
		err        error
	)
	if chunk.Vector, n, err = vectorMUS.Unmarshal(data); err != nil {
		return nil, decodeError("vector", err)
	}
	if chunk.ID, m, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, decodeError("id", err)
	}
	n += m
	if chunk.SourceID, m, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, decodeError("source id", err)
	}
	n += m
	if chunk.Ordinal, m, err = varint.Int.Unmarshal(data[n:]); err != nil {
		return nil, decodeError("ordinal", err)
	}
	n += m
	if chunk.Text, m, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, decodeError("text", err)
	}
	n += m
	if chunk.Metadata, m, err = unmarshalMetadata(data[n:]); err != nil {
		return nil, decodeError("metadata", err)
	}
	n += m
	if chunk.Epoch, m, err = varint.Int64.Unmarshal(data[n:]); err != nil {
		return nil, decodeError("epoch", err)
	}
	n += m
	if insertedAt, m, err = varint.Int64.Unmarshal(data[n:]); err != nil {
		return nil, decodeError("inserted at", err)
	}
	if n+m != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n-m)
	}
	chunk.InsertedAt = timeFromNanos(insertedAt)
	return &chunk, nil
}

// UnmarshalChunkVector decodes only the vector of a stored chunk. Used on the
// query hot path.
func UnmarshalChunkVector(data []byte) ([]float32, error) {
	vec, _, err := vectorMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeError("vector", err)
	}
	return vec, nil
}

// MarshalManifest serializes a SourceManifest to bytes.
func MarshalManifest(manifest *core.SourceManifest) []byte {
	ingestedAt := nanosFromTime(manifest.IngestedAt)
	size := ord.String.Size(manifest.SourceID) +
		varint.Int.Size(manifest.ChunkCount) +
		ord.String.Size(manifest.ContentHash) +
		ownersMUS.Size(manifest.Owners) +
		varint.Int64.Size(manifest.Epoch) +
		varint.Int64.Size(ingestedAt)

	bs := make([]byte, size)
	n := ord.String.Marshal(manifest.SourceID, bs)
	n += varint.Int.Marshal(manifest.ChunkCount, bs[n:])
	n += ord.String.Marshal(manifest.ContentHash, bs[n:])
	n += ownersMUS.Marshal(manifest.Owners, bs[n:])
	n += varint.Int64.Marshal(manifest.Epoch, bs[n:])
	varint.Int64.Marshal(ingestedAt, bs[n:])
	return bs
}

// UnmarshalManifest deserializes a SourceManifest from bytes.
func UnmarshalManifest(data []byte) (*core.SourceManifest, error) {
	var (
		manifest   core.SourceManifest
		ingestedAt int64
		n, m       int
		err        error
	)
	if manifest.SourceID, n, err = ord.String.Unmarshal(data); err != nil {
		return nil, decodeError("source id", err)
	}
	if manifest.ChunkCount, m, err = varint.Int.Unmarshal(data[n:]); err != nil {
		return nil, decodeError("chunk count", err)
	}
	n += m
	if manifest.ContentHash, m, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, decodeError("content hash", err)
	}
	n += m
	if manifest.Owners, m, err = ownersMUS.Unmarshal(data[n:]); err != nil {
		return nil, decodeError("owners", err)
	}
	n += m
	if manifest.Epoch, m, err = varint.Int64.Unmarshal(data[n:]); err != nil {
		return nil, decodeError("epoch", err)
	}
	n += m
	if ingestedAt, m, err = varint.Int64.Unmarshal(data[n:]); err != nil {
		return nil, decodeError("ingested at", err)
	}
	if n+m != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n-m)
	}
	manifest.IngestedAt = timeFromNanos(ingestedAt)
	return &manifest, nil
}

// metadataSize validates value types and returns the encoded size:
// a count followed by (key, tag, value) entries.
func metadataSize(meta map[string]any) (int, error) {
	size := varint.Int.Size(len(meta))
	for k, v := range meta {
		size += ord.String.Size(k) + 1
		switch v := v.(type) {
		case string:
			size += ord.String.Size(v)
		case int:
			size += varint.Int.Size(v)
		case int64:
			size += varint.Int64.Size(v)
		case float64:
			size += raw.Float64.Size(v)
		case bool:
			size += ord.Bool.Size(v)
		default:
			return 0, fmt.Errorf("%w: metadata %q has unsupported type %T", ErrSerializationFailed, k, v)
		}
	}
	return size, nil
}

func marshalMetadata(meta map[string]any, bs []byte) int {
	n := varint.Int.Marshal(len(meta), bs)
	for k, v := range meta {
		n += ord.String.Marshal(k, bs[n:])
		switch v := v.(type) {
		case string:
			bs[n] = metaString
			n += 1 + ord.String.Marshal(v, bs[n+1:])
		case int:
			bs[n] = metaInt
			n += 1 + varint.Int.Marshal(v, bs[n+1:])
		case int64:
			bs[n] = metaInt64
			n += 1 + varint.Int64.Marshal(v, bs[n+1:])
		case float64:
			bs[n] = metaFloat64
			n += 1 + raw.Float64.Marshal(v, bs[n+1:])
		case bool:
			bs[n] = metaBool
			n += 1 + ord.Bool.Marshal(v, bs[n+1:])
		}
	}
	return n
}

func unmarshalMetadata(bs []byte) (map[string]any, int, error) {
	count, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if count < 0 || count > len(bs)-n {
		return nil, n, fmt.Errorf("invalid entry count %d", count)
	}
	if count == 0 {
		return nil, n, nil
	}

	meta := make(map[string]any, count)
	for range count {
		key, m, err := ord.String.Unmarshal(bs[n:])
		if err != nil {
			return nil, n, err
		}
		n += m
		if n >= len(bs) {
			return nil, n, ErrTruncatedData
		}
		tag := bs[n]
		n++

		var v any
		switch tag {
		case metaString:
			v, m, err = ord.String.Unmarshal(bs[n:])
		case metaInt:
			v, m, err = varint.Int.Unmarshal(bs[n:])
		case metaInt64:
			v, m, err = varint.Int64.Unmarshal(bs[n:])
		case metaFloat64:
			v, m, err = raw.Float64.Unmarshal(bs[n:])
		case metaBool:
			v, m, err = ord.Bool.Unmarshal(bs[n:])
		default:
			return nil, n, fmt.Errorf("unknown value tag %d for %q", tag, key)
		}
		if err != nil {
			return nil, n, err
		}
		n += m
		meta[key] = v
	}
	return meta, n, nil
}

func decodeError(field string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, field, err)
}

func nanosFromTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timeFromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
