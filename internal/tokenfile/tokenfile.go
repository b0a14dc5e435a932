// Package tokenfile persists the chamactl access token on disk.
package tokenfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDir is the directory under the user's home that holds the token.
const DefaultDir = ".mychama"

// Store keeps one token in a file readable only by its owner. It satisfies
// chamaWeb.TokenStore.
type Store struct {
	path string
}

// New returns a Store at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Default returns a Store at ~/.mychama/token.
func Default() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("tokenfile: %w", err)
	}
	return New(filepath.Join(home, DefaultDir, "token")), nil
}

// Path is the token file location.
func (s *Store) Path() string {
	return s.path
}

// Token returns the stored token, or "" when none is stored.
func (s *Store) Token(context.Context) (string, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("tokenfile: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// SetToken atomically replaces the stored token with mode 0600.
func (s *Store) SetToken(_ context.Context, token string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("tokenfile: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("tokenfile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: %w", err)
	}
	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("tokenfile: %w", err)
	}
	return nil
}

// ClearToken removes the token file. A missing file is not an error.
func (s *Store) ClearToken(context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: %w", err)
	}
	return nil
}
