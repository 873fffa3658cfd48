package extraction

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/JaimeStill/taxdraft/pkg/storage"
)

// Source opens document content by key.
type Source interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// StorageSource reads documents from blob storage.
type StorageSource struct {
	Storage storage.System
}

func (s StorageSource) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.Storage.Download(ctx, key)
}

// FileSource reads documents from the local filesystem. Keys are paths,
// resolved against Root when it is set.
type FileSource struct {
	Root string
}

func (s FileSource) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := key
	if s.Root != "" {
		path = filepath.Join(s.Root, key)
	}
	return os.Open(path)
}
