package actions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/zheye/internal/api"
	"github.com/five82/zheye/internal/metrics"
	"github.com/five82/zheye/internal/state"
)

// DefaultPageSize is the column page size used when a query leaves it unset.
const DefaultPageSize = 6

// Caller performs remote calls. *api.Client implements it.
type Caller interface {
	Call(ctx context.Context, req api.Request, dest any) error
	Upload(ctx context.Context, filename string, r io.Reader) (*api.Envelope[api.Image], error)
	SetToken(token string)
}

// ColumnsQuery selects a page of columns. Zero fields take defaults.
type ColumnsQuery struct {
	CurrentPage int
	PageSize    int
}

// ColumnView is a column together with its cached posts.
type ColumnView struct {
	Column api.Column
	Posts  []api.Post
}

// Orchestrator decides whether a remote call is needed, performs it and
// commits the response.
type Orchestrator struct {
	caller   Caller
	store    *state.Store
	recorder metrics.Recorder
	logger   *slog.Logger
	pageSize int
	dedup    bool
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]any
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDedup collapses concurrent guarded fetches for the same key into one
// remote call. Without it both callers pass the cache guard and both commit.
func WithDedup() Option {
	return func(o *Orchestrator) {
		o.dedup = true
	}
}

// WithMetrics records cache guard outcomes.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPageSize sets the default column page size.
func WithPageSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithClock overrides the time source used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds an Orchestrator over caller and store.
func New(caller Caller, store *state.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		caller:   caller,
		store:    store,
		recorder: metrics.Nop{},
		logger:   slog.Default(),
		pageSize: DefaultPageSize,
		now:      time.Now,
		pending:  make(map[string]any),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store returns the state container the orchestrator commits to.
func (o *Orchestrator) Store() *state.Store {
	return o.store
}

// launch runs fn on its own goroutine, detached from ctx cancellation. With
// dedup enabled, a call for a key already in flight returns the pending
// future instead of starting another.
func launch[T any](ctx context.Context, o *Orchestrator, key string, fn func(context.Context) (T, error)) *Future[T] {
	if o.dedup && key != "" {
		o.mu.Lock()
		if p, ok := o.pending[key]; ok {
			o.mu.Unlock()
			o.logger.Debug("joined in-flight call", slog.String("key", key))
			return p.(*Future[T])
		}
		f := newFuture[T]()
		o.pending[key] = f
		o.mu.Unlock()

		go func() {
			f.resolve(fn(context.WithoutCancel(ctx)))
			o.mu.Lock()
			delete(o.pending, key)
			o.mu.Unlock()
		}()
		return f
	}

	f := newFuture[T]()
	go func() {
		f.resolve(fn(context.WithoutCancel(ctx)))
	}()
	return f
}

func (o *Orchestrator) lookup(action string, hit bool) {
	o.recorder.RecordCacheLookup(action, hit)
	if hit {
		o.logger.Debug("cache hit", slog.String("action", action))
	}
}

// FetchColumns loads a page of columns unless a page at or beyond it was
// already fetched. A cache hit resolves to a nil envelope.
func (o *Orchestrator) FetchColumns(ctx context.Context, q ColumnsQuery) *Future[*api.Envelope[api.ListPage[api.Column]]] {
	if q.CurrentPage <= 0 {
		q.CurrentPage = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = o.pageSize
	}
	if o.store.ColumnsPage() >= q.CurrentPage {
		o.lookup("fetchColumns", true)
		return Resolved[*api.Envelope[api.ListPage[api.Column]]](nil)
	}
	o.lookup("fetchColumns", false)

	query := url.Values{}
	query.Set("currentPage", strconv.Itoa(q.CurrentPage))
	query.Set("pageSize", strconv.Itoa(q.PageSize))
	return launch(ctx, o, "fetchColumns:"+strconv.Itoa(q.CurrentPage), func(ctx context.Context) (*api.Envelope[api.ListPage[api.Column]], error) {
		return getAndCommit(ctx, o, "/columns", "/columns", query, func(env *api.Envelope[api.ListPage[api.Column]]) state.Mutation {
			return state.FetchColumns{Page: env.Data}
		})
	})
}

// NextColumns fetches the page after the last one loaded.
func (o *Orchestrator) NextColumns(ctx context.Context) *Future[*api.Envelope[api.ListPage[api.Column]]] {
	return o.FetchColumns(ctx, ColumnsQuery{CurrentPage: o.store.ColumnsPage() + 1})
}

// FetchColumn loads one column unless it is cached.
func (o *Orchestrator) FetchColumn(ctx context.Context, id string) *Future[*api.Envelope[api.Column]] {
	if _, ok := o.store.ColumnByID(id); ok {
		o.lookup("fetchColumn", true)
		return Resolved[*api.Envelope[api.Column]](nil)
	}
	o.lookup("fetchColumn", false)

	return launch(ctx, o, "fetchColumn:"+id, func(ctx context.Context) (*api.Envelope[api.Column], error) {
		return getAndCommit(ctx, o, "/columns/"+id, "/columns/:id", nil, func(env *api.Envelope[api.Column]) state.Mutation {
			return state.FetchColumn{Column: env.Data}
		})
	})
}

// FetchPosts loads the post list of a column unless it was loaded before.
func (o *Orchestrator) FetchPosts(ctx context.Context, columnID string) *Future[*api.Envelope[api.ListPage[api.Post]]] {
	if o.store.HasLoadedPosts(columnID) {
		o.lookup("fetchPosts", true)
		return Resolved[*api.Envelope[api.ListPage[api.Post]]](nil)
	}
	o.lookup("fetchPosts", false)

	req := api.Request{
		Method: http.MethodGet,
		Path:   "/columns/" + columnID + "/posts",
		Route:  "/columns/:id/posts",
	}
	return launch(ctx, o, "fetchPosts:"+columnID, func(ctx context.Context) (*api.Envelope[api.ListPage[api.Post]], error) {
		return asyncAndCommit(ctx, o, req, func(env *api.Envelope[api.ListPage[api.Post]]) state.Mutation {
			return state.FetchPosts{Page: env.Data, ColumnID: columnID}
		})
	})
}

// FetchPost loads a post unless a copy with content is cached. A cache hit
// resolves to an envelope wrapping the cached post.
func (o *Orchestrator) FetchPost(ctx context.Context, id string) *Future[*api.Envelope[api.Post]] {
	if cached, ok := o.store.Post(id); ok && strings.TrimSpace(cached.Content) != "" {
		o.lookup("fetchPost", true)
		return Resolved(&api.Envelope[api.Post]{Data: cached})
	}
	o.lookup("fetchPost", false)

	return launch(ctx, o, "fetchPost:"+id, func(ctx context.Context) (*api.Envelope[api.Post], error) {
		return getAndCommit(ctx, o, "/posts/"+id, "/posts/:id", nil, func(env *api.Envelope[api.Post]) state.Mutation {
			return state.FetchPost{Post: env.Data}
		})
	})
}

// UpdatePost patches a post and stores the returned object.
func (o *Orchestrator) UpdatePost(ctx context.Context, id string, payload api.PostPayload) *Future[*api.Envelope[api.Post]] {
	req := api.Request{
		Method: http.MethodPatch,
		Path:   "/posts/" + id,
		Route:  "/posts/:id",
		Body:   payload,
	}
	return launch(ctx, o, "", func(ctx context.Context) (*api.Envelope[api.Post], error) {
		return asyncAndCommit(ctx, o, req, func(env *api.Envelope[api.Post]) state.Mutation {
			return state.UpdatePost{Post: env.Data}
		})
	})
}

// CreatePost creates a post and stores the returned object.
func (o *Orchestrator) CreatePost(ctx context.Context, payload api.PostPayload) *Future[*api.Envelope[api.Post]] {
	return launch(ctx, o, "", func(ctx context.Context) (*api.Envelope[api.Post], error) {
		return postAndCommit(ctx, o, "/posts", payload, func(env *api.Envelope[api.Post]) state.Mutation {
			return state.CreatePost{Post: env.Data}
		})
	})
}

// DeletePost deletes a post and drops it from the cache.
func (o *Orchestrator) DeletePost(ctx context.Context, id string) *Future[*api.Envelope[api.Post]] {
	req := api.Request{
		Method: http.MethodDelete,
		Path:   "/posts/" + id,
		Route:  "/posts/:id",
	}
	return launch(ctx, o, "", func(ctx context.Context) (*api.Envelope[api.Post], error) {
		return asyncAndCommit(ctx, o, req, func(env *api.Envelope[api.Post]) state.Mutation {
			return state.DeletePost{Post: env.Data}
		})
	})
}

// FetchCurrentUser loads the profile behind the current token.
func (o *Orchestrator) FetchCurrentUser(ctx context.Context) *Future[*api.Envelope[api.User]] {
	return launch(ctx, o, "fetchCurrentUser", func(ctx context.Context) (*api.Envelope[api.User], error) {
		return getAndCommit(ctx, o, "/user/current", "/user/current", nil, func(env *api.Envelope[api.User]) state.Mutation {
			return state.FetchCurrentUser{User: env.Data}
		})
	})
}

// Login exchanges credentials for a token.
func (o *Orchestrator) Login(ctx context.Context, creds api.Credentials) *Future[*api.Envelope[api.LoginResponse]] {
	return launch(ctx, o, "", func(ctx context.Context) (*api.Envelope[api.LoginResponse], error) {
		return o.login(ctx, creds)
	})
}

func (o *Orchestrator) login(ctx context.Context, creds api.Credentials) (*api.Envelope[api.LoginResponse], error) {
	return postAndCommit(ctx, o, "/user/login", creds, func(env *api.Envelope[api.LoginResponse]) state.Mutation {
		return state.Login{Token: env.Data.Token}
	})
}

// LoginAndFetch logs in and then fetches the current user. The second call
// is skipped when login fails.
func (o *Orchestrator) LoginAndFetch(ctx context.Context, creds api.Credentials) *Future[*api.Envelope[api.User]] {
	return launch(ctx, o, "", func(ctx context.Context) (*api.Envelope[api.User], error) {
		if _, err := o.login(ctx, creds); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		return getAndCommit(ctx, o, "/user/current", "/user/current", nil, func(env *api.Envelope[api.User]) state.Mutation {
			return state.FetchCurrentUser{User: env.Data}
		})
	})
}

// Logout forgets the token locally. No remote call is made.
func (o *Orchestrator) Logout(ctx context.Context) error {
	return o.store.Commit(ctx, state.Logout{})
}

// OpenColumn fetches a column and its posts concurrently, then returns both
// from the cache.
func (o *Orchestrator) OpenColumn(ctx context.Context, id string) *Future[ColumnView] {
	return launch(ctx, o, "", func(ctx context.Context) (ColumnView, error) {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			_, err := o.FetchColumn(gctx, id).Await(gctx)
			return err
		})
		g.Go(func() error {
			_, err := o.FetchPosts(gctx, id).Await(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return ColumnView{}, fmt.Errorf("open column %s: %w", id, err)
		}
		column, _ := o.store.ColumnByID(id)
		return ColumnView{Column: column, Posts: o.store.PostsByColumn(id)}, nil
	})
}

// UploadImage uploads an image. Nothing is committed; the caller uses the
// returned image id in a post payload.
func (o *Orchestrator) UploadImage(ctx context.Context, filename string, r io.Reader) *Future[*api.Envelope[api.Image]] {
	return launch(ctx, o, "", func(ctx context.Context) (*api.Envelope[api.Image], error) {
		return o.caller.Upload(ctx, filename, r)
	})
}
