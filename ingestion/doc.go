// Package ingestion turns raw documents into searchable, access-controlled chunks.
//
// A Pipeline partitions a document, embeds each segment concurrently on a
// worker pool, upserts the embedded chunks into the vector index and then
// registers viewer tuples for the document's owners. Per-segment failures are
// skipped and reported in the Result; failures that would leave the document
// in an inconsistent state are returned as *core.SourceError.
//
// Re-ingesting a source replaces its chunks. By default the old chunks stay
// visible until the new ones are written (ReplaceDeferred); ReplaceUpfront
// clears the source first.
package ingestion
