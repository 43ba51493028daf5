// Package docstore resolves document IDs to raw bytes. The pipeline itself
// never touches storage; the enclosing service decides where documents live.
package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	pkgerrors "github.com/atlasnotes/conceptmap-backend/internal/pkg/errors"
)

// Store loads document bytes by ID.
type Store interface {
	Load(ctx context.Context, id string) ([]byte, error)
}

// Filesystem treats document IDs as paths, optionally under a root directory.
type Filesystem struct {
	root string
}

func NewFilesystem(root string) *Filesystem {
	return &Filesystem{root: root}
}

func (f *Filesystem) Load(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("document id required: %w", pkgerrors.ErrInvalidArgument)
	}
	path := id
	if f.root != "" {
		path = filepath.Join(f.root, id)
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("document %s: %w", id, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", id, err)
	}
	return data, nil
}
