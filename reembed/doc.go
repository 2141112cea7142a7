// Package reembed re-embeds every stored chunk with a new or updated
// embedding model.
//
// Chunks are scanned from the index in pages, embedded in batches with retry
// and exponential backoff, normalized for cosine similarity and written back
// in place. Chunk IDs, text and visibility are unchanged, so re-embedding
// never affects who can see a document.
//
// Re-embedding to a different dimension is a maintenance operation: queries
// issued while it runs may see a mix of old and new vectors.
package reembed
