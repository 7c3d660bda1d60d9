package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
)

const defaultFilePath = "~/.config/zheye/session.toml"

// DefaultPath returns the default session file path.
func DefaultPath() string {
	return defaultFilePath
}

type fileContents struct {
	Token string `toml:"token"`
}

// FileStore keeps the token in a small TOML file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a FileStore for path; empty uses DefaultPath.
func NewFileStore(path string) (*FileStore, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: resolved}, nil
}

// Path returns the resolved file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the token. A missing or unreadable file yields no token.
func (f *FileStore) Load(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read session: %w", err)
	}
	var contents fileContents
	if err := toml.Unmarshal(data, &contents); err != nil {
		return "", fmt.Errorf("parse session: %w", err)
	}
	return strings.TrimSpace(contents.Token), nil
}

// Save writes the token, creating directories as needed.
func (f *FileStore) Save(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := toml.Marshal(fileContents{Token: token})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Remove deletes the session file. A missing file is not an error.
func (f *FileStore) Remove(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultFilePath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
