// Package content defines the byte-storage interface backends for file
// data use, kept separate from the fsal.Backend metadata/handle contract so
// a content store (filesystem, memory, S3) can be swapped independently of
// which FSAL (memory, badger) is minting handles. Only the badger and S3
// backends use this package; the in-memory FSAL reference backend keeps
// file bytes inline for simplicity.
package content

import "context"

// ID identifies one stored blob, opaque to callers.
type ID string

// Store is the read/write capability a persistent FSAL backend needs from
// its content plane.
type Store interface {
	ReadAt(ctx context.Context, id ID, offset int64, buf []byte) (int, error)
	WriteAt(ctx context.Context, id ID, offset int64, data []byte) error
	Truncate(ctx context.Context, id ID, size int64) error
	Size(ctx context.Context, id ID) (int64, error)
	Delete(ctx context.Context, id ID) error
}
