package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Dir archives blobs to a local directory. Mostly for development and
// single-host deployments without Postgres.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Put(ctx context.Context, key string, blob []byte) (string, error) {
	path := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return abs, nil
}
