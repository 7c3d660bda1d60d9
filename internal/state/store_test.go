package state

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/five82/zheye/internal/api"
)

type fakeCredentials struct {
	token string
	sets  int
	clear int
}

func (f *fakeCredentials) SetToken(token string) { f.token = token; f.sets++ }
func (f *fakeCredentials) ClearToken()           { f.token = ""; f.clear++ }

type fakeTokens struct {
	saved   string
	removed int
	err     error
}

func (f *fakeTokens) Save(_ context.Context, token string) error {
	if f.err != nil {
		return f.err
	}
	f.saved = token
	return nil
}

func (f *fakeTokens) Remove(_ context.Context) error {
	f.saved = ""
	f.removed++
	return f.err
}

func postPage(posts ...api.Post) api.ListPage[api.Post] {
	return api.ListPage[api.Post]{List: posts, Count: len(posts), CurrentPage: 1}
}

func TestStore_DefaultState(t *testing.T) {
	s := New(Options{Token: "restored"})
	snap := s.Snapshot()
	if snap.Token != "restored" {
		t.Fatalf("Token = %q, want restored", snap.Token)
	}
	if snap.User.IsLogin {
		t.Fatalf("IsLogin = true, want false before fetchCurrentUser")
	}
	if snap.Loading || snap.Error.Status {
		t.Fatalf("Loading/Error = %v/%v, want both clear", snap.Loading, snap.Error)
	}
	if snap.Columns.CurrentPage != 0 || len(snap.Columns.Data) != 0 || len(snap.Posts.LoadedColumns) != 0 {
		t.Fatalf("caches not empty: %#v", snap)
	}
}

func TestStore_FetchPostsMergesInsteadOfReplacing(t *testing.T) {
	ctx := context.Background()
	s := New(Options{})

	postA := api.Post{ID: "A", Title: "a", Column: "c1"}
	postB := api.Post{ID: "B", Title: "b", Column: "c2"}
	if err := s.Commit(ctx, FetchPost{Post: postA}); err != nil {
		t.Fatalf("Commit(FetchPost) returned error: %v", err)
	}
	if err := s.Commit(ctx, FetchPosts{Page: postPage(postB), ColumnID: "c2"}); err != nil {
		t.Fatalf("Commit(FetchPosts) returned error: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Posts.Data) != 2 || snap.Posts.Data["A"].Title != "a" || snap.Posts.Data["B"].Title != "b" {
		t.Fatalf("posts = %#v, want A and B", snap.Posts.Data)
	}
	if !s.HasLoadedPosts("c2") || s.HasLoadedPosts("c1") {
		t.Fatalf("LoadedColumns = %v, want only c2", snap.Posts.LoadedColumns)
	}
}

func TestStore_FetchPostsAppendsColumnEvenWhenPresent(t *testing.T) {
	ctx := context.Background()
	s := New(Options{})
	for i := 0; i < 2; i++ {
		if err := s.Commit(ctx, FetchPosts{Page: postPage(), ColumnID: "c1"}); err != nil {
			t.Fatalf("Commit returned error: %v", err)
		}
	}
	got := s.Snapshot().Posts.LoadedColumns
	if len(got) != 2 || got[0] != "c1" || got[1] != "c1" {
		t.Fatalf("LoadedColumns = %v, want duplicate c1 entries", got)
	}
	if !s.HasLoadedPosts("c1") {
		t.Fatalf("HasLoadedPosts(c1) = false, want true")
	}
}

func TestStore_FetchColumnsUnionsPagesAndTracksCursor(t *testing.T) {
	ctx := context.Background()
	s := New(Options{})

	page1 := api.ListPage[api.Column]{List: []api.Column{{ID: "c1"}, {ID: "c2"}}, Count: 4, CurrentPage: 1}
	page2 := api.ListPage[api.Column]{List: []api.Column{{ID: "c3"}, {ID: "c2", Title: "renamed"}}, Count: 4, CurrentPage: 2}
	if err := s.Commit(ctx, FetchColumns{Page: page1}); err != nil {
		t.Fatalf("Commit page1 returned error: %v", err)
	}
	if err := s.Commit(ctx, FetchColumns{Page: page2}); err != nil {
		t.Fatalf("Commit page2 returned error: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Columns.Data) != 3 {
		t.Fatalf("columns = %#v, want union of 3", snap.Columns.Data)
	}
	if snap.Columns.Data["c2"].Title != "renamed" {
		t.Fatalf("c2 = %#v, want overwritten by newer page", snap.Columns.Data["c2"])
	}
	if snap.Columns.CurrentPage != 2 || snap.Columns.Total != 4 {
		t.Fatalf("page/total = %d/%d, want 2/4", snap.Columns.CurrentPage, snap.Columns.Total)
	}
	if len(s.Columns()) != 3 {
		t.Fatalf("Columns() returned %d, want 3", len(s.Columns()))
	}
}

func TestStore_MalformedEntityLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	s := New(Options{})
	if err := s.Commit(ctx, FetchPost{Post: api.Post{ID: "A"}}); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}

	err := s.Commit(ctx, FetchPosts{Page: postPage(api.Post{ID: "B"}, api.Post{Title: "no id"}), ColumnID: "c1"})
	if !errors.Is(err, ErrMalformedEntity) {
		t.Fatalf("Commit error = %v, want ErrMalformedEntity", err)
	}
	snap := s.Snapshot()
	if len(snap.Posts.Data) != 1 || len(snap.Posts.LoadedColumns) != 0 {
		t.Fatalf("state changed by failed mutation: %#v", snap.Posts)
	}

	if err := s.Commit(ctx, CreatePost{Post: api.Post{Title: "x"}}); !errors.Is(err, ErrMalformedEntity) {
		t.Fatalf("CreatePost without id error = %v, want ErrMalformedEntity", err)
	}
}

func TestStore_DeleteAndUpdatePost(t *testing.T) {
	ctx := context.Background()
	s := New(Options{})
	_ = s.Commit(ctx, FetchPosts{Page: postPage(
		api.Post{ID: "X", Column: "c1", Title: "x"},
		api.Post{ID: "Y", Column: "c1", Title: "y"},
	), ColumnID: "c1"})

	if err := s.Commit(ctx, UpdatePost{Post: api.Post{ID: "Y", Column: "c1", Title: "y2", Content: "body"}}); err != nil {
		t.Fatalf("UpdatePost returned error: %v", err)
	}
	if p, _ := s.Post("Y"); p.Title != "y2" || p.Content != "body" {
		t.Fatalf("post Y = %#v, want overwritten", p)
	}

	if err := s.Commit(ctx, DeletePost{Post: api.Post{ID: "X"}}); err != nil {
		t.Fatalf("DeletePost returned error: %v", err)
	}
	if _, ok := s.Snapshot().Posts.Data["X"]; ok {
		t.Fatalf("post X still present after delete")
	}
	for _, p := range s.PostsByColumn("c1") {
		if p.ID == "X" {
			t.Fatalf("PostsByColumn still includes deleted post")
		}
	}
	if got := s.PostsByColumn("c1"); len(got) != 1 {
		t.Fatalf("PostsByColumn = %v, want only Y", got)
	}
}

func TestStore_LoginAndLogoutSideEffects(t *testing.T) {
	ctx := context.Background()
	creds := &fakeCredentials{}
	tokens := &fakeTokens{}
	s := New(Options{Credentials: creds, Tokens: tokens})

	_ = s.Commit(ctx, FetchColumn{Column: api.Column{ID: "c1"}})
	_ = s.Commit(ctx, FetchPost{Post: api.Post{ID: "p1", Column: "c1"}})

	if err := s.Commit(ctx, Login{Token: "t1"}); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if s.Token() != "t1" || creds.token != "t1" || tokens.saved != "t1" {
		t.Fatalf("token state/creds/persisted = %q/%q/%q, want t1", s.Token(), creds.token, tokens.saved)
	}
	if s.User().IsLogin {
		t.Fatalf("IsLogin = true right after login, want false until the user is fetched")
	}

	if err := s.Commit(ctx, FetchCurrentUser{User: api.User{ID: "u1", NickName: "n"}}); err != nil {
		t.Fatalf("FetchCurrentUser returned error: %v", err)
	}
	if u := s.User(); !u.IsLogin || u.ID != "u1" || u.NickName != "n" {
		t.Fatalf("user = %#v, want logged in u1", u)
	}

	if err := s.Commit(ctx, Logout{}); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	snap := s.Snapshot()
	if snap.Token != "" || snap.User.IsLogin || creds.token != "" || tokens.removed != 1 {
		t.Fatalf("logout left token=%q login=%v creds=%q removed=%d", snap.Token, snap.User.IsLogin, creds.token, tokens.removed)
	}
	if snap.User.ID != "u1" {
		t.Fatalf("logout cleared profile fields, want only IsLogin reset")
	}
	// Logout keeps cached content.
	if len(snap.Columns.Data) != 1 || len(snap.Posts.Data) != 1 {
		t.Fatalf("logout cleared caches: %#v", snap)
	}
}

func TestStore_LoginRejectsEmptyTokenAndReportsPersistFailure(t *testing.T) {
	ctx := context.Background()
	tokens := &fakeTokens{err: errors.New("disk full")}
	s := New(Options{Tokens: tokens})

	if err := s.Commit(ctx, Login{}); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("Login{} error = %v, want ErrEmptyToken", err)
	}
	err := s.Commit(ctx, Login{Token: "t1"})
	if err == nil || s.Token() != "t1" {
		t.Fatalf("Login error = %v token = %q, want persist error with token kept in memory", err, s.Token())
	}
}

func TestStore_SnapshotIsIndependent(t *testing.T) {
	ctx := context.Background()
	s := New(Options{})
	_ = s.Commit(ctx, FetchPosts{Page: postPage(api.Post{ID: "A", Title: "a"}), ColumnID: "c1"})

	snap := s.Snapshot()
	snap.Posts.Data["A"] = api.Post{ID: "A", Title: "mutated"}
	snap.Posts.LoadedColumns[0] = "other"

	if p, _ := s.Post("A"); p.Title != "a" {
		t.Fatalf("Snapshot shares post map with the store")
	}
	if !s.HasLoadedPosts("c1") {
		t.Fatalf("Snapshot shares LoadedColumns with the store")
	}
}

func TestStore_LifecycleLoadingAndError(t *testing.T) {
	s := New(Options{})

	s.RequestStarted()
	if !s.Loading() {
		t.Fatalf("Loading = false after RequestStarted")
	}
	s.RequestFailed("boom")
	if s.Loading() {
		t.Fatalf("Loading = true after RequestFailed")
	}
	if e := s.Error(); !e.Status || e.Message != "boom" {
		t.Fatalf("Error = %#v, want boom", e)
	}

	s.RequestStarted()
	if e := s.Error(); e.Status || e.Message != "" {
		t.Fatalf("Error = %#v, want cleared at call start", e)
	}
	s.RequestSucceeded()
	if s.Loading() {
		t.Fatalf("Loading = true after RequestSucceeded with no delay")
	}
}

func TestStore_LoadingIsASingleFlag(t *testing.T) {
	s := New(Options{LoadingClearDelay: 20 * time.Millisecond})

	s.RequestStarted() // call 1
	s.RequestStarted() // call 2 overlaps
	s.RequestSucceeded()
	if !s.Loading() {
		t.Fatalf("Loading cleared before the delay elapsed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Loading() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Call 2 is still outstanding, yet the flag is down.
	if s.Loading() {
		t.Fatalf("Loading still set after call 1 finished")
	}
}

func mapID(m any) uintptr { return reflect.ValueOf(m).Pointer() }

func TestStore_CommitCopiesOnlyTouchedCaches(t *testing.T) {
	ctx := context.Background()
	s := New(Options{})
	_ = s.Commit(ctx, FetchColumn{Column: api.Column{ID: "c1"}})
	_ = s.Commit(ctx, FetchPost{Post: api.Post{ID: "p1", Column: "c1"}})

	columns, posts := mapID(s.state.Columns.Data), mapID(s.state.Posts.Data)

	for _, m := range []Mutation{
		SetLoading{Loading: true},
		SetError{Error: ErrorState{Status: true, Message: "x"}},
		FetchCurrentUser{User: api.User{ID: "u1"}},
	} {
		if err := s.Commit(ctx, m); err != nil {
			t.Fatalf("Commit(%s) returned error: %v", m.Name(), err)
		}
		if mapID(s.state.Columns.Data) != columns || mapID(s.state.Posts.Data) != posts {
			t.Fatalf("Commit(%s) copied the entity caches", m.Name())
		}
	}

	if err := s.Commit(ctx, FetchPost{Post: api.Post{ID: "p2", Column: "c1"}}); err != nil {
		t.Fatalf("Commit(FetchPost) returned error: %v", err)
	}
	if mapID(s.state.Columns.Data) != columns {
		t.Fatalf("FetchPost copied the column cache")
	}
	if mapID(s.state.Posts.Data) == posts {
		t.Fatalf("FetchPost wrote the post cache in place")
	}

	before := s.Snapshot()
	if err := s.Commit(ctx, FetchColumns{Page: api.ListPage[api.Column]{List: []api.Column{{ID: "c2"}, {}}}}); !errors.Is(err, ErrMalformedEntity) {
		t.Fatalf("Commit error = %v, want ErrMalformedEntity", err)
	}
	if len(s.Columns()) != len(before.Columns.Data) {
		t.Fatalf("failed FetchColumns leaked into the cache")
	}
}
