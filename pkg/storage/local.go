package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore writes resume files under a local directory. Used for
// development and tests; the returned URL is served by the API itself.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates a directory-backed store rooted at dir. baseURL is
// the public prefix files are served from, e.g. http://localhost:8080/files.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: baseURL}, nil
}

func (s *LocalStore) Save(_ context.Context, userID, filename string, r io.Reader) (string, error) {
	key := objectKey(userID, filename)
	dest := filepath.Join(s.dir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return s.baseURL + "/" + key, nil
}

// Dir returns the root directory so the API can mount it as a static route.
func (s *LocalStore) Dir() string {
	return s.dir
}
