// Package session persists the authentication token across process restarts.
// The token is the only piece of state that outlives a session; it is stored
// under the fixed key "token".
package session

import "context"

// Key is the well-known name the token is stored under.
const Key = "token"

// Store loads, saves and removes the persisted token. Load returns an empty
// string and no error when nothing is stored.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Remove(ctx context.Context) error
}
