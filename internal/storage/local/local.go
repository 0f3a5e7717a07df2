// Package local stores sealed blobs on the local filesystem, one directory
// per owner.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/filex"
	"github.com/dmitrijs2005/filevault/internal/storage"
)

// Backend implements storage.Backend under a root directory.
type Backend struct {
	root string
}

// New creates the root directory if needed.
func New(root string) (*Backend, error) {
	if root == "" {
		return nil, errors.New("local storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if _, err := filex.EnsureDir(abs); err != nil {
		return nil, err
	}
	return &Backend{root: abs}, nil
}

func (b *Backend) Type() string { return "local" }

// Root returns the absolute root directory.
func (b *Backend) Root() string { return b.root }

func (b *Backend) fullPath(key string) (string, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", err
	}
	p := filepath.Join(b.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(b.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", storage.ErrInvalidKey
	}
	return p, nil
}

func (b *Backend) PutObject(_ context.Context, key string, data []byte) error {
	p, err := b.fullPath(key)
	if err != nil {
		return err
	}
	if _, err := filex.EnsureDir(filepath.Dir(p)); err != nil {
		return err
	}
	return filex.WriteFileAtomic(p, data, 0o600)
}

func (b *Backend) GetObject(_ context.Context, key string) ([]byte, error) {
	p, err := b.fullPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, common.ErrorNotFound)
		}
		return nil, err
	}
	return data, nil
}

// DeleteObject removes the blob and prunes its now-empty parent directory.
// The owner directory itself is kept.
func (b *Backend) DeleteObject(_ context.Context, key string) error {
	p, err := b.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if parent := filepath.Dir(p); filepath.Dir(parent) != b.root {
		filex.RemoveEmptyDir(parent)
	}
	return nil
}
