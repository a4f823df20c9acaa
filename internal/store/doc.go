// Package store provides persistence for conversations and their
// interactions.
//
// # Document Model
//
// A conversation is persisted as a single aggregate document: the
// conversation row embeds every interaction and every text alteration as
// JSON. There are no partial-field updates; each save replaces the whole
// document. This preserves the ownership invariant that interactions belong
// to exactly one conversation and are never independently addressable.
//
// # Store Interface
//
// The Store interface defines what the lifecycle layer needs:
//
//   - SaveConversation: insert-or-replace the whole document
//   - GetConversation: load one document by id
//   - LatestOpenConversation: recovery query at process start
//   - ListConversations: recent-first summaries for the API
//
// # SQLite Implementation
//
// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no cgo).
// The schema is created automatically on first open. opened_at and closed_at
// are mirrored as indexed columns so the recovery and listing queries avoid
// unmarshaling documents.
package store
