// Package state provides the normalized, thread-safe application state.
//
// # Overview
//
// The Store holds every column and post fetched this session, keyed by
// identifier, together with the session token, the current user and the two
// cross-cutting request signals: Loading and Error. It is the single point
// where server responses become state.
//
// # Architecture
//
//	Action (goroutine):            Reader (CLI / UI):
//	┌──────────────────┐           ┌──────────────────┐
//	│ guard: Snapshot  │           │                  │
//	│ api.Client.Call  │           │                  │
//	│      ↓           │           │                  │
//	│ store.Commit(m)  │──────────→│ store.Snapshot() │
//	│                  │  (mutex)  │ store.Columns()  │
//	└──────────────────┘           └──────────────────┘
//
// # Mutations
//
// Every change goes through Commit with one of the typed variants declared in
// mutation.go. The set is closed, so a mutation's payload is always the exact
// type it needs (FetchPosts carries its ColumnID next to the page instead of
// an untyped side channel). Commit applies a mutation to a copy of the caches
// it writes and swaps it in only on success: a page containing an entity
// without identifier is rejected with ErrMalformedEntity and nothing changes.
//
// Merge rules:
//
//	FetchColumns   union with existing columns, Total and CurrentPage from the page
//	FetchColumn    insert/overwrite one column
//	FetchPosts     union with existing posts, append ColumnID to LoadedColumns
//	FetchPost      insert/overwrite one post
//	CreatePost     insert/overwrite one post
//	UpdatePost     overwrite one post with the returned object
//	DeletePost     remove the key, no tombstone
//	Login          set Token, then set the bearer credential and persist it
//	Logout         clear Token and IsLogin, then clear credential and persisted token
//
// LoadedColumns is appended to unconditionally and may hold duplicates; only
// membership is ever read. Logout keeps cached columns and posts.
//
// # Request lifecycle
//
// Store implements api.Observer. A call start sets Loading and clears Error,
// a failure records Error{Status: true, Message} and clears Loading, a
// success clears Loading after LoadingClearDelay. Loading is one boolean, not
// a counter: when calls overlap, the first one to finish lowers it while the
// others are still in flight.
//
// # Concurrency Model
//
// Commit holds the write lock while applying, so mutations never interleave.
// Readers take the read lock and receive copies. Side effects of Login and
// Logout (token persistence) run after the lock is released.
//
// # Testing Considerations
//
// Stores are independent values built with New; tests create one each. Use
// LoadingClearDelay zero to make Loading changes synchronous.
package state
