package actions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/five82/zheye/internal/api"
	"github.com/five82/zheye/internal/session"
	"github.com/five82/zheye/internal/state"
)

// fakeAPI is a scripted stand-in for the remote API. Handlers are
// registered per route pattern; every request is counted.
type fakeAPI struct {
	t   *testing.T
	mux *http.ServeMux

	mu    sync.Mutex
	calls map[string]int
	auth  []string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{t: t, mux: http.NewServeMux(), calls: map[string]int{}}
}

func (f *fakeAPI) handle(pattern string, h http.HandlerFunc) {
	f.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[pattern]++
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		h(w, r)
	})
}

func (f *fakeAPI) count(pattern string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[pattern]
}

func (f *fakeAPI) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.auth) == 0 {
		return ""
	}
	return f.auth[len(f.auth)-1]
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "msg": "ok", "data": data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}

type harness struct {
	orch   *Orchestrator
	store  *state.Store
	client *api.Client
	tokens *session.MemoryStore
}

func newHarness(t *testing.T, fake *fakeAPI, token string, opts ...Option) harness {
	t.Helper()
	return newHarnessWithClient(t, fake, token, nil, opts...)
}

// newHarnessWithClient appends clientOpts to the default client options.
func newHarnessWithClient(t *testing.T, fake *fakeAPI, token string, clientOpts []api.Option, opts ...Option) harness {
	t.Helper()
	srv := httptest.NewServer(fake.mux)
	t.Cleanup(srv.Close)

	tokens := &session.MemoryStore{}
	store := state.New(state.Options{Token: token, Tokens: tokens})
	clientOpts = append([]api.Option{api.WithObserver(store), api.WithPartnerCode("TESTCODE")}, clientOpts...)
	client, err := api.NewClient(srv.URL+"/api/", clientOpts...)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	store.SetCredentials(client)
	return harness{
		orch:   New(client, store, opts...),
		store:  store,
		client: client,
		tokens: tokens,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type lookupRecorder struct {
	mu   sync.Mutex
	hits map[string]int
	miss map[string]int
}

func newLookupRecorder() *lookupRecorder {
	return &lookupRecorder{hits: map[string]int{}, miss: map[string]int{}}
}

func (r *lookupRecorder) RecordRequest(string, string, int, time.Duration) {}

func (r *lookupRecorder) RecordCacheLookup(action string, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits[action]++
	} else {
		r.miss[action]++
	}
}
