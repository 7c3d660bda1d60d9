package actions

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/five82/zheye/internal/api"
	"github.com/five82/zheye/internal/state"
)

// toMutation builds the mutation to commit from a decoded envelope. Data the
// response does not carry, such as the column id of a post list, is captured
// by the closure.
type toMutation[T any] func(env *api.Envelope[T]) state.Mutation

// getAndCommit issues a GET, commits the mutation built from the response
// and returns the envelope.
func getAndCommit[T any](ctx context.Context, o *Orchestrator, path, route string, query url.Values, build toMutation[T]) (*api.Envelope[T], error) {
	return asyncAndCommit(ctx, o, api.Request{Method: http.MethodGet, Path: path, Route: route, Query: query}, build)
}

// postAndCommit issues a POST with payload as the JSON body.
func postAndCommit[T any](ctx context.Context, o *Orchestrator, path string, payload any, build toMutation[T]) (*api.Envelope[T], error) {
	return asyncAndCommit(ctx, o, api.Request{Method: http.MethodPost, Path: path, Route: path, Body: payload}, build)
}

// asyncAndCommit issues req with any method. Exactly one remote call is made;
// there is no retry.
func asyncAndCommit[T any](ctx context.Context, o *Orchestrator, req api.Request, build toMutation[T]) (*api.Envelope[T], error) {
	var env api.Envelope[T]
	if err := o.caller.Call(ctx, req, &env); err != nil {
		return nil, err
	}
	m := build(&env)
	if err := o.store.Commit(ctx, m); err != nil {
		o.logger.Error("commit failed",
			slog.String("mutation", m.Name()),
			slog.String("route", req.Route),
			slog.String("error", err.Error()),
		)
		_ = o.store.Commit(ctx, state.SetError{Error: state.ErrorState{Status: true, Message: err.Error()}})
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Route, err)
	}
	return &env, nil
}
