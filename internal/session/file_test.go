package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStore_MissingFileHasNoToken(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	store, err := NewFileStore("")
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	token, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if token != "" {
		t.Fatalf("token = %q, want empty", token)
	}
}

func TestFileStore_SaveLoadRemove(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.toml")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	if err := store.Save(ctx, "t1"); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), Key) {
		t.Fatalf("session file = %q, want it keyed by %q", data, Key)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}

	// A fresh store reads what the previous process wrote.
	reopened, _ := NewFileStore(path)
	token, err := reopened.Load(ctx)
	if err != nil || token != "t1" {
		t.Fatalf("Load = %q, %v; want t1", token, err)
	}

	if err := reopened.Remove(ctx); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if err := reopened.Remove(ctx); err != nil {
		t.Fatalf("second Remove returned error: %v", err)
	}
	token, _ = reopened.Load(ctx)
	if token != "" {
		t.Fatalf("token = %q after Remove, want empty", token)
	}
}

func TestFileStore_ExpandsTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	store, err := NewFileStore("~/x/session.toml")
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	if store.Path() != filepath.Join(home, "x/session.toml") {
		t.Fatalf("Path = %q, want it under HOME", store.Path())
	}
}

func TestFileStore_InvalidTOMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	if err := os.WriteFile(path, []byte("token = [\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	store, _ := NewFileStore(path)
	_, err := store.Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "parse session") {
		t.Fatalf("Load error = %v, want parse session error", err)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	var m MemoryStore
	_ = m.Save(ctx, "abc")
	if got, _ := m.Load(ctx); got != "abc" {
		t.Fatalf("Load = %q, want abc", got)
	}
	_ = m.Remove(ctx)
	if got, _ := m.Load(ctx); got != "" {
		t.Fatalf("Load = %q after Remove, want empty", got)
	}
}
