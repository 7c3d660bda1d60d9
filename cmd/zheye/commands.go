package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/five82/zheye/internal/actions"
	"github.com/five82/zheye/internal/api"
	"github.com/five82/zheye/internal/app"
	"github.com/five82/zheye/internal/ui"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app.App, args []string, w io.Writer) error
}

var commandOrder = []string{
	"columns", "column", "posts", "post",
	"login", "logout", "whoami",
	"create", "update", "delete", "upload",
}

var commands = map[string]command{
	"columns": {"list a page of columns", runColumns},
	"column":  {"show one column", runColumn},
	"posts":   {"list the posts of a column", runPosts},
	"post":    {"show one post", runPost},
	"login":   {"log in and persist the token", runLogin},
	"logout":  {"forget the persisted token", runLogout},
	"whoami":  {"show the current user", runWhoami},
	"create":  {"create a post in your column", runCreate},
	"update":  {"update one of your posts", runUpdate},
	"delete":  {"delete one of your posts", runDelete},
	"upload":  {"upload an image for a post", runUpload},
}

var errUsage = errors.New("invalid arguments")

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// oneArg parses fs and requires exactly one positional argument.
func oneArg(fs *flag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		return "", fmt.Errorf("%w: expected %s", errUsage, what)
	}
	return fs.Arg(0), nil
}

func requireLogin(ctx context.Context, a *app.App) error {
	verdict, err := a.Orchestrator.Authorize(ctx, actions.Access{RequiresLogin: true})
	if verdict == actions.RedirectLogin {
		return fmt.Errorf("%w: run zheye login first", actions.ErrLoginRequired)
	}
	return err
}

func runColumns(ctx context.Context, a *app.App, args []string, w io.Writer) error {
	fs := newFlags("columns")
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	env, err := a.Orchestrator.FetchColumns(ctx, actions.ColumnsQuery{CurrentPage: *page}).Await(ctx)
	if err != nil {
		return err
	}
	columns := a.Store.Columns()
	total := a.Store.Snapshot().Columns.Total
	if env != nil {
		columns = env.Data.List
		total = env.Data.Count
	}
	for _, c := range columns {
		fmt.Fprintf(w, "%s\t%s\n", c.ID, c.Title)
	}
	fmt.Fprintf(w, "page %d, %d columns in total\n", *page, total)
	return nil
}

func runColumn(ctx context.Context, a *app.App, args []string, w io.Writer) error {
	id, err := oneArg(newFlags("column"), args, "a column id")
	if err != nil {
		return err
	}
	if _, err := a.Orchestrator.FetchColumn(ctx, id).Await(ctx); err != nil {
		return err
	}
	c, _ := a.Store.ColumnByID(id)
	fmt.Fprintf(w, "%s\n%s\n", c.Title, c.Description)
	return nil
}

func runPosts(ctx context.Context, a *app.App, args []string, w io.Writer) error {
	id, err := oneArg(newFlags("posts"), args, "a column id")
	if err != nil {
		return err
	}
	view, err := a.Orchestrator.OpenColumn(ctx, id).Await(ctx)
	if err != nil {
		return err
	}
	slices.SortFunc(view.Posts, func(x, y api.Post) int {
		return y.ParsedCreatedAt().Compare(x.ParsedCreatedAt())
	})
	fmt.Fprintf(w, "%s (%d posts)\n", view.Column.Title, len(view.Posts))
	for _, p := range view.Posts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.CreatedAt, p.Title)
	}
	return nil
}

func runPost(ctx context.Context, a *app.App, args []string, w io.Writer) error {
	id, err := oneArg(newFlags("post"), args, "a post id")
	if err != nil {
		return err
	}
	if _, err := a.Orchestrator.FetchPost(ctx, id).Await(ctx); err != nil {
		return err
	}
	p, _ := a.Store.Post(id)
	fmt.Fprintf(w, "%s\n", p.Title)
	if name := p.Author.Name(); name != "" {
		fmt.Fprintf(w, "by %s, %s\n", name, p.CreatedAt)
	}
	if url := p.Image.URL(); url != "" {
		fmt.Fprintf(w, "image: %s\n", url)
	}
	fmt.Fprintf(w, "\n%s\n", ui.PlainText(p.Content))
	return nil
}

func runLogin(ctx context.Context, a *app.App, args []string, w io.Writer) error {
	fs := newFlags("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("ZHEYE_PASSWORD"), "account password (default $ZHEYE_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("%w: -email and -password are required", errUsage)
	}

	verdict, err := a.Orchestrator.Authorize(ctx, actions.Access{RedirectIfLoggedIn: true})
	if err != nil {
		return err
	}
	if verdict == actions.RedirectHome {
		fmt.Fprintf(w, "already logged in as %s\n", a.Store.User().NickName)
		return nil
	}

	env, err := a.Orchestrator.LoginAndFetch(ctx, api.Credentials{Email: *email, Password: *password}).Await(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "logged in as %s\n", env.Data.NickName)
	return nil
}

func runLogout(ctx context.Context, a *app.App, _ []string, w io.Writer) error {
	if err := a.Orchestrator.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(w, "logged out")
	return nil
}

func runWhoami(_ context.Context, a *app.App, _ []string, w io.Writer) error {
	u := a.Store.User()
	if !u.IsLogin {
		fmt.Fprintln(w, "not logged in")
		return nil
	}
	fmt.Fprintf(w, "%s <%s>\ncolumn: %s\n", u.NickName, u.Email, u.Column)
	return nil
}

func runCreate(ctx context.Context, a *app.App, args []string, w io.Writer) error {
	fs := newFlags("create")
	title := fs.String("title", "", "post title")
	content := fs.String("content", "", "post content (HTML)")
	image := fs.String("image", "", "image id returned by upload")
	column := fs.String("column", "", "column id (default your own column)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if err := requireLogin(ctx, a); err != nil {
		return err
	}
	u := a.Store.User()
	if *column == "" {
		*column = u.Column
	}
	env, err := a.Orchestrator.CreatePost(ctx, api.PostPayload{
		Title:   *title,
		Content: *content,
		Image:   *image,
		Column:  *column,
		Author:  u.ID,
	}).Await(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "created %s\n", env.Data.ID)
	return nil
}

func runUpdate(ctx context.Context, a *app.App, args []string, w io.Writer) error {
	fs := newFlags("update")
	title := fs.String("title", "", "new title")
	content := fs.String("content", "", "new content (HTML)")
	image := fs.String("image", "", "new image id")
	id, err := oneArg(fs, args, "a post id")
	if err != nil {
		return err
	}
	if err := requireLogin(ctx, a); err != nil {
		return err
	}
	env, err := a.Orchestrator.UpdatePost(ctx, id, api.PostPayload{
		Title:   *title,
		Content: *content,
		Image:   *image,
	}).Await(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "updated %s\n", env.Data.ID)
	return nil
}

func runDelete(ctx context.Context, a *app.App, args []string, w io.Writer) error {
	id, err := oneArg(newFlags("delete"), args, "a post id")
	if err != nil {
		return err
	}
	if err := requireLogin(ctx, a); err != nil {
		return err
	}
	env, err := a.Orchestrator.DeletePost(ctx, id).Await(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "deleted %s\n", env.Data.ID)
	return nil
}

func runUpload(ctx context.Context, a *app.App, args []string, w io.Writer) error {
	path, err := oneArg(newFlags("upload"), args, "an image file")
	if err != nil {
		return err
	}
	if err := requireLogin(ctx, a); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	env, err := a.Orchestrator.UploadImage(ctx, filepath.Base(path), f).Await(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\t%s\n", env.Data.ID, env.Data.URL)
	return nil
}
