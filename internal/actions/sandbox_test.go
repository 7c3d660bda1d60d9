package actions

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/zheye/internal/api"
	"github.com/five82/zheye/internal/sandbox"
	"github.com/five82/zheye/internal/session"
	"github.com/five82/zheye/internal/state"
)

func startSandbox(t *testing.T) string {
	t.Helper()
	srv := sandbox.New(sandbox.Options{PartnerCode: "SANDBOX", Secret: "s"})
	require.NoError(t, srv.Apply(sandbox.Generate(1, 3, 4)))
	app := srv.App()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String() + "/api/"
}

func TestSandbox_EndToEnd(t *testing.T) {
	ctx := context.Background()
	base := startSandbox(t)

	tokens := &session.MemoryStore{}
	store := state.New(state.Options{Tokens: tokens})
	client, err := api.NewClient(base, api.WithObserver(store), api.WithPartnerCode("SANDBOX"))
	require.NoError(t, err)
	store.SetCredentials(client)
	orch := New(client, store, WithPageSize(2))

	_, err = orch.FetchColumns(ctx, ColumnsQuery{}).Await(ctx)
	require.NoError(t, err)
	_, err = orch.NextColumns(ctx).Await(ctx)
	require.NoError(t, err)
	assert.Len(t, store.Columns(), 3)
	assert.Equal(t, 2, store.ColumnsPage())

	columnID := store.Columns()[0].ID
	view, err := orch.OpenColumn(ctx, columnID).Await(ctx)
	require.NoError(t, err)
	require.Len(t, view.Posts, 4)

	// List entries carry no content, so the detail fetch goes remote.
	env, err := orch.FetchPost(ctx, view.Posts[0].ID).Await(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, env.Data.Content)
	assert.Equal(t, view.Posts[0].ID, env.Data.ID)

	_, err = orch.CreatePost(ctx, api.PostPayload{Title: "x", Content: "y"}).Await(ctx)
	remote, ok := api.AsRemoteError(err)
	require.True(t, ok, "got %v", err)
	assert.True(t, remote.IsUnauthorized())
	assert.Equal(t, state.ErrorState{Status: true, Message: "login required"}, store.Error())

	user, err := orch.LoginAndFetch(ctx, api.Credentials{Email: "user1@example.com", Password: sandbox.GeneratedPassword}).Await(ctx)
	require.NoError(t, err)
	assert.True(t, store.User().IsLogin)
	persisted, _ := tokens.Load(ctx)
	assert.Equal(t, store.Token(), persisted)

	img, err := orch.UploadImage(ctx, "cover.png", strings.NewReader("\x89PNG\r\n\x1a\n0000")).Await(ctx)
	require.NoError(t, err)

	created, err := orch.CreatePost(ctx, api.PostPayload{
		Title:   "From the client",
		Content: "<p>hello</p>",
		Image:   img.Data.ID,
		Column:  user.Data.Column,
	}).Await(ctx)
	require.NoError(t, err)
	cached, ok := store.Post(created.Data.ID)
	require.True(t, ok)
	assert.Equal(t, img.Data.URL, cached.Image.URL())
	assert.Equal(t, user.Data.NickName, cached.Author.Name())

	_, err = orch.DeletePost(ctx, created.Data.ID).Await(ctx)
	require.NoError(t, err)
	_, ok = store.Post(created.Data.ID)
	assert.False(t, ok)

	// A fresh process restores the session from the persisted token.
	restored := state.New(state.Options{Token: persisted, Tokens: tokens})
	client2, err := api.NewClient(base, api.WithObserver(restored), api.WithPartnerCode("SANDBOX"))
	require.NoError(t, err)
	restored.SetCredentials(client2)
	require.NoError(t, New(client2, restored).Bootstrap(ctx))
	assert.Equal(t, user.Data.ID, restored.User().ID)

	// A token the server no longer accepts is discarded.
	stale := state.New(state.Options{Token: "garbage", Tokens: tokens})
	client3, err := api.NewClient(base, api.WithObserver(stale), api.WithPartnerCode("SANDBOX"))
	require.NoError(t, err)
	stale.SetCredentials(client3)
	err = New(client3, stale).Bootstrap(ctx)
	assert.True(t, errors.Is(err, ErrStaleCredential), "got %v", err)
	assert.Empty(t, stale.Token())
}
