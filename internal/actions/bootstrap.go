package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/five82/zheye/internal/session"
	"github.com/five82/zheye/internal/state"
)

var (
	// ErrStaleCredential means a persisted token no longer identifies a user.
	// The token has been discarded by the time this is returned.
	ErrStaleCredential = errors.New("stored credential is no longer valid")
	// ErrLoginRequired is returned for screens that need a logged in user.
	ErrLoginRequired = errors.New("login required")
)

// Access describes what a screen or command expects of the session.
type Access struct {
	// RequiresLogin sends anonymous users to the login screen.
	RequiresLogin bool
	// RedirectIfLoggedIn sends logged in users home (login, signup).
	RedirectIfLoggedIn bool
}

// Verdict is the outcome of Authorize.
type Verdict int

const (
	Proceed Verdict = iota
	RedirectHome
	RedirectLogin
)

func (v Verdict) String() string {
	switch v {
	case RedirectHome:
		return "home"
	case RedirectLogin:
		return "login"
	default:
		return "proceed"
	}
}

// Authorize runs before entering a screen. When a token is present but the
// user is not loaded, the token is installed as the bearer credential and
// the current user is fetched; if that fails the session is logged out and
// the error wraps ErrStaleCredential.
func (o *Orchestrator) Authorize(ctx context.Context, access Access) (Verdict, error) {
	if o.store.User().IsLogin {
		if access.RedirectIfLoggedIn {
			return RedirectHome, nil
		}
		return Proceed, nil
	}

	token := o.store.Token()
	if token == "" {
		if access.RequiresLogin {
			return RedirectLogin, ErrLoginRequired
		}
		return Proceed, nil
	}

	if err := o.restore(ctx, token); err != nil {
		return RedirectLogin, err
	}
	if access.RedirectIfLoggedIn {
		return RedirectHome, nil
	}
	return Proceed, nil
}

// Bootstrap restores the session from a persisted token, if any.
func (o *Orchestrator) Bootstrap(ctx context.Context) error {
	_, err := o.Authorize(ctx, Access{})
	return err
}

func (o *Orchestrator) restore(ctx context.Context, token string) error {
	if session.Expired(token, o.now()) {
		o.logger.Info("stored token expired", slog.String("reason", "exp claim in the past"))
		return o.discard(ctx, errors.New("token expired"))
	}

	o.caller.SetToken(token)
	if _, err := o.FetchCurrentUser(ctx).Await(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		o.logger.Warn("stored token rejected", slog.String("error", err.Error()))
		return o.discard(ctx, err)
	}
	return nil
}

func (o *Orchestrator) discard(ctx context.Context, cause error) error {
	if err := o.store.Commit(ctx, state.Logout{}); err != nil {
		o.logger.Error("logout after stale credential failed", slog.String("error", err.Error()))
	}
	return fmt.Errorf("%w: %w", ErrStaleCredential, cause)
}
