// Package authz defines the contract with the fine-grained authorization
// service that decides which subjects may view which sources.
//
// Decisions are keyed on the source ID of a chunk, never on the chunk
// itself, so one tuple governs every chunk of a document. Check failures are
// reported as errors wrapping core.ErrAuthzUnavailable and must be treated as
// denials by callers.
//
// Implementations:
//
//   - authz/openfga: OpenFGA SDK client for an OpenFGA-compatible service
//   - storage/badger.TupleRepository: embedded exact-match tuple store
//   - authz/mock: scripted test double
package authz
