package state

import (
	"context"
	"time"

	"github.com/five82/zheye/internal/api"
)

var _ api.Observer = (*Store)(nil)

// RequestStarted raises Loading and clears the global error.
func (s *Store) RequestStarted() {
	ctx := context.Background()
	_ = s.Commit(ctx, SetLoading{Loading: true})
	_ = s.Commit(ctx, SetError{Error: ErrorState{}})
}

// RequestSucceeded clears Loading after the configured delay. Loading is a
// single flag: a call finishing while another is still in flight clears it.
func (s *Store) RequestSucceeded() {
	if s.clearDelay <= 0 {
		_ = s.Commit(context.Background(), SetLoading{Loading: false})
		return
	}
	time.AfterFunc(s.clearDelay, func() {
		_ = s.Commit(context.Background(), SetLoading{Loading: false})
	})
}

// RequestFailed records message as the global error and clears Loading.
func (s *Store) RequestFailed(message string) {
	ctx := context.Background()
	_ = s.Commit(ctx, SetError{Error: ErrorState{Status: true, Message: message}})
	_ = s.Commit(ctx, SetLoading{Loading: false})
}
