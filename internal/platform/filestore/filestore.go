// Package filestore is a local-disk blob store for uploaded documents.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store writes blobs under a root directory and returns opaque locators.
type Store struct {
	root    string
	baseURL string
}

// New creates the root directory if needed.
func New(root, baseURL string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put stores content and returns its locator. The original name contributes
// only its extension; the locator never contains caller-controlled paths.
func (s *Store) Put(ctx context.Context, name string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	locator := uuid.NewString() + sanitizeExt(name)

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.root, locator)); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return locator, nil
}

// Get reads a stored blob.
func (s *Store) Get(_ context.Context, locator string) ([]byte, error) {
	if locator != filepath.Base(locator) {
		return nil, fmt.Errorf("invalid locator %q", locator)
	}
	return os.ReadFile(filepath.Join(s.root, locator))
}

// Delete removes a stored blob. A missing blob is not an error.
func (s *Store) Delete(_ context.Context, locator string) error {
	if locator != filepath.Base(locator) {
		return fmt.Errorf("invalid locator %q", locator)
	}
	if err := os.Remove(filepath.Join(s.root, locator)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// URLFor returns the public URL for a locator.
func (s *Store) URLFor(locator string) string {
	if locator == "" {
		return ""
	}
	return s.baseURL + "/" + path.Base(locator)
}

func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) > 10 {
		return ""
	}
	for _, r := range ext[min(1, len(ext)):] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
