// Package fsstore implements content.Store on the local filesystem, one
// file per content ID under a base directory.
package fsstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nfsd3/nfsd3/internal/content"
)

type Store struct {
	basePath string
}

func New(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("fsstore: create base directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

func (s *Store) path(id content.ID) string {
	return filepath.Join(s.basePath, string(id))
}

func (s *Store) ReadAt(ctx context.Context, id content.ID, offset int64, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := os.Open(s.path(id))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.ReadAt(buf, offset)
}

func (s *Store) WriteAt(ctx context.Context, id content.ID, offset int64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path(id), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(data, offset)
	return err
}

func (s *Store) Truncate(ctx context.Context, id content.ID, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path(id), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

func (s *Store) Size(ctx context.Context, id content.ID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fi, err := os.Stat(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return fi.Size(), nil
}

func (s *Store) Delete(ctx context.Context, id content.ID) error {
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
