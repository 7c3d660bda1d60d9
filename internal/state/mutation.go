package state

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/five82/zheye/internal/api"
)

// ErrEmptyToken is returned when a login response carries no token.
var ErrEmptyToken = errors.New("login response carries no token")

// Mutation is a synchronous state transformation. The set of mutations is
// closed: every variant is declared in this file.
type Mutation interface {
	Name() string
	scope() scope
	apply(s *State) error
}

// scope names the entity caches a mutation writes. Commit copies only those.
type scope uint8

const (
	touchColumns scope = 1 << iota
	touchPosts
)

// effectful mutations run side effects after the state change is visible.
type effectful interface {
	effect(ctx context.Context, s *Store) error
}

// CreatePost inserts or overwrites the created post.
type CreatePost struct {
	Post api.Post
}

func (CreatePost) Name() string { return "createPost" }
func (CreatePost) scope() scope { return touchPosts }

func (m CreatePost) apply(s *State) error {
	return putPost(s, m.Post)
}

// FetchColumns merges a page of columns and records its position.
type FetchColumns struct {
	Page api.ListPage[api.Column]
}

func (FetchColumns) Name() string { return "fetchColumns" }
func (FetchColumns) scope() scope { return touchColumns }

func (m FetchColumns) apply(s *State) error {
	incoming, err := ToMapping(m.Page.List)
	if err != nil {
		return err
	}
	merged := s.Columns.Data
	if merged == nil {
		merged = make(map[string]api.Column, len(incoming))
	}
	maps.Copy(merged, incoming)
	s.Columns = ColumnsState{
		Data:        merged,
		Total:       m.Page.Count,
		CurrentPage: int(m.Page.CurrentPage),
	}
	return nil
}

// FetchColumn inserts or overwrites a single column.
type FetchColumn struct {
	Column api.Column
}

func (FetchColumn) Name() string { return "fetchColumn" }
func (FetchColumn) scope() scope { return touchColumns }

func (m FetchColumn) apply(s *State) error {
	if m.Column.ID == "" {
		return fmt.Errorf("column: %w", ErrMalformedEntity)
	}
	if s.Columns.Data == nil {
		s.Columns.Data = make(map[string]api.Column)
	}
	s.Columns.Data[m.Column.ID] = m.Column
	return nil
}

// FetchPosts merges the post list of a column and marks the column loaded.
// ColumnID is appended even when already present.
type FetchPosts struct {
	Page     api.ListPage[api.Post]
	ColumnID string
}

func (FetchPosts) Name() string { return "fetchPosts" }
func (FetchPosts) scope() scope { return touchPosts }

func (m FetchPosts) apply(s *State) error {
	incoming, err := ToMapping(m.Page.List)
	if err != nil {
		return err
	}
	if s.Posts.Data == nil {
		s.Posts.Data = make(map[string]api.Post, len(incoming))
	}
	maps.Copy(s.Posts.Data, incoming)
	s.Posts.LoadedColumns = append(s.Posts.LoadedColumns, m.ColumnID)
	return nil
}

// FetchPost inserts or overwrites a single post.
type FetchPost struct {
	Post api.Post
}

func (FetchPost) Name() string { return "fetchPost" }
func (FetchPost) scope() scope { return touchPosts }

func (m FetchPost) apply(s *State) error {
	return putPost(s, m.Post)
}

// DeletePost removes the returned post entirely.
type DeletePost struct {
	Post api.Post
}

func (DeletePost) Name() string { return "deletePost" }
func (DeletePost) scope() scope { return touchPosts }

func (m DeletePost) apply(s *State) error {
	if m.Post.ID == "" {
		return fmt.Errorf("post: %w", ErrMalformedEntity)
	}
	delete(s.Posts.Data, m.Post.ID)
	return nil
}

// UpdatePost overwrites the stored post with the full returned object.
type UpdatePost struct {
	Post api.Post
}

func (UpdatePost) Name() string { return "updatePost" }
func (UpdatePost) scope() scope { return touchPosts }

func (m UpdatePost) apply(s *State) error {
	return putPost(s, m.Post)
}

// SetLoading overwrites the loading flag.
type SetLoading struct {
	Loading bool
}

func (SetLoading) Name() string { return "setLoading" }
func (SetLoading) scope() scope { return 0 }

func (m SetLoading) apply(s *State) error {
	s.Loading = m.Loading
	return nil
}

// SetError overwrites the global error.
type SetError struct {
	Error ErrorState
}

func (SetError) Name() string { return "setError" }
func (SetError) scope() scope { return 0 }

func (m SetError) apply(s *State) error {
	s.Error = m.Error
	return nil
}

// FetchCurrentUser replaces the user with the fetched profile and marks it logged in.
type FetchCurrentUser struct {
	User api.User
}

func (FetchCurrentUser) Name() string { return "fetchCurrentUser" }
func (FetchCurrentUser) scope() scope { return 0 }

func (m FetchCurrentUser) apply(s *State) error {
	s.User = User{IsLogin: true, User: m.User}
	return nil
}

// Login stores the token, persists it and makes it the default credential.
type Login struct {
	Token string
}

func (Login) Name() string { return "login" }
func (Login) scope() scope { return 0 }

func (m Login) apply(s *State) error {
	if m.Token == "" {
		return ErrEmptyToken
	}
	s.Token = m.Token
	return nil
}

func (m Login) effect(ctx context.Context, st *Store) error {
	if creds := st.credentials(); creds != nil {
		creds.SetToken(m.Token)
	}
	if st.tokens != nil {
		if err := st.tokens.Save(ctx, m.Token); err != nil {
			return fmt.Errorf("persist token: %w", err)
		}
	}
	return nil
}

// Logout clears the token everywhere and marks the user logged out. Cached
// columns and posts are kept.
type Logout struct{}

func (Logout) Name() string { return "logout" }
func (Logout) scope() scope { return 0 }

func (Logout) apply(s *State) error {
	s.Token = ""
	s.User.IsLogin = false
	return nil
}

func (Logout) effect(ctx context.Context, st *Store) error {
	if creds := st.credentials(); creds != nil {
		creds.ClearToken()
	}
	if st.tokens != nil {
		if err := st.tokens.Remove(ctx); err != nil {
			return fmt.Errorf("remove token: %w", err)
		}
	}
	return nil
}

func putPost(s *State, p api.Post) error {
	if p.ID == "" {
		return fmt.Errorf("post: %w", ErrMalformedEntity)
	}
	if s.Posts.Data == nil {
		s.Posts.Data = make(map[string]api.Post)
	}
	s.Posts.Data[p.ID] = p
	return nil
}
