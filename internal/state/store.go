package state

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/five82/zheye/internal/api"
)

// ErrorState reflects the most recent failed remote call.
type ErrorState struct {
	Status  bool
	Message string
}

// ColumnsState holds every column fetched so far and the pagination cursor.
type ColumnsState struct {
	Data        map[string]api.Column
	CurrentPage int
	Total       int
}

// PostsState holds every post fetched so far and the columns whose post
// list has been loaded. LoadedColumns may contain duplicates.
type PostsState struct {
	Data          map[string]api.Post
	LoadedColumns []string
}

// User is the current user profile plus the login flag.
type User struct {
	IsLogin bool
	api.User
}

// State is the whole application state.
type State struct {
	Token   string
	Error   ErrorState
	Loading bool
	Columns ColumnsState
	Posts   PostsState
	User    User
}

// Credentials receives the bearer token on login and logout.
type Credentials interface {
	SetToken(token string)
	ClearToken()
}

// TokenStore persists the token across process restarts.
type TokenStore interface {
	Save(ctx context.Context, token string) error
	Remove(ctx context.Context) error
}

// Options configure a Store.
type Options struct {
	// Token is the token restored from the session store at startup.
	Token       string
	Credentials Credentials
	Tokens      TokenStore
	Logger      *slog.Logger
	// LoadingClearDelay postpones clearing Loading after a successful call.
	// Zero clears immediately.
	LoadingClearDelay time.Duration
}

// Store owns the state and applies mutations one at a time.
type Store struct {
	mu    sync.RWMutex
	state State

	creds      Credentials
	tokens     TokenStore
	logger     *slog.Logger
	clearDelay time.Duration
}

// New builds a Store with empty caches.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		state: State{
			Token:   opts.Token,
			Columns: ColumnsState{Data: map[string]api.Column{}},
			Posts:   PostsState{Data: map[string]api.Post{}},
		},
		creds:      opts.Credentials,
		tokens:     opts.Tokens,
		logger:     logger,
		clearDelay: opts.LoadingClearDelay,
	}
}

// Commit applies m to a copy of the caches it writes and swaps the copy in.
// A failing mutation leaves the state untouched. Side effects of Login and
// Logout run after the change is visible.
func (s *Store) Commit(ctx context.Context, m Mutation) error {
	if m == nil {
		return fmt.Errorf("commit: nil mutation")
	}

	s.mu.Lock()
	next := s.state
	sc := m.scope()
	if sc&touchColumns != 0 {
		next.Columns.Data = maps.Clone(s.state.Columns.Data)
	}
	if sc&touchPosts != 0 {
		next.Posts.Data = maps.Clone(s.state.Posts.Data)
		next.Posts.LoadedColumns = slices.Clone(s.state.Posts.LoadedColumns)
	}
	if err := m.apply(&next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("commit %s: %w", m.Name(), err)
	}
	s.state = next
	s.mu.Unlock()

	if e, ok := m.(effectful); ok {
		if err := e.effect(ctx, s); err != nil {
			s.logger.Error("mutation side effect failed",
				slog.String("mutation", m.Name()),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("commit %s: %w", m.Name(), err)
		}
	}
	return nil
}

// SetCredentials replaces the receiver of the bearer token. Call it before
// the first Login or Logout commit.
func (s *Store) SetCredentials(c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = c
}

func (s *Store) credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.state
	snap.Columns.Data = maps.Clone(s.state.Columns.Data)
	snap.Posts.Data = maps.Clone(s.state.Posts.Data)
	snap.Posts.LoadedColumns = slices.Clone(s.state.Posts.LoadedColumns)
	return snap
}

// Columns returns every cached column in unspecified order.
func (s *Store) Columns() []api.Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ToOrderedList(s.state.Columns.Data)
}

// ColumnByID returns the cached column with the given id.
func (s *Store) ColumnByID(id string) (api.Column, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.Columns.Data[id]
	return c, ok
}

// ColumnsPage returns the last page of columns fetched.
func (s *Store) ColumnsPage() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Columns.CurrentPage
}

// PostsByColumn returns the cached posts belonging to column cid.
func (s *Store) PostsByColumn(cid string) []api.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []api.Post
	for _, p := range s.state.Posts.Data {
		if p.Column == cid {
			out = append(out, p)
		}
	}
	return out
}

// Post returns the cached post with the given id.
func (s *Store) Post(id string) (api.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.Posts.Data[id]
	return p, ok
}

// HasLoadedPosts reports whether the post list of cid was fetched this session.
func (s *Store) HasLoadedPosts(cid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.state.Posts.LoadedColumns, cid)
}

// Token returns the current token.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token
}

// User returns the current user.
func (s *Store) User() User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User
}

// Loading reports whether a remote call is believed to be in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loading
}

// Error returns the global error.
func (s *Store) Error() ErrorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Error
}
