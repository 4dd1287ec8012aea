// Package s3store implements content.Store against an S3-compatible object
// store, one object per content ID; an optional content backend for the
// badger FSAL.
//
// S3 has no in-place partial-write primitive, so WriteAt/Truncate here take
// a read-modify-write approach: small NFS writes against an S3-backed export
// are expected to be infrequent relative to reads.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/nfsd3/nfsd3/internal/content"
)

// API is the subset of *s3.Client this package depends on, so tests can
// supply a fake without standing up real S3 infrastructure.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type Store struct {
	client API
	bucket string
}

func New(client API, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// isNotFound reports whether err is S3's way of saying the key doesn't
// exist, as opposed to a transient failure (throttling, auth, network) that
// must not be mistaken for "empty" by a read-modify-write caller.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}

func (s *Store) get(ctx context.Context, id content.ID) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil // treated as empty/not-yet-created by callers
		}
		return nil, fmt.Errorf("s3store: get %s: %w", id, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *Store) put(ctx context.Context, id content.ID, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(id)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3store: put %s: %w", id, err)
	}
	return nil
}

func (s *Store) ReadAt(ctx context.Context, id content.ID, offset int64, buf []byte) (int, error) {
	data, err := s.get(ctx, id)
	if err != nil {
		return 0, err
	}
	if offset >= int64(len(data)) {
		return 0, io.EOF
	}
	return copy(buf, data[offset:]), nil
}

func (s *Store) WriteAt(ctx context.Context, id content.ID, offset int64, data []byte) error {
	cur, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	end := offset + int64(len(data))
	if end > int64(len(cur)) {
		grown := make([]byte, end)
		copy(grown, cur)
		cur = grown
	}
	copy(cur[offset:end], data)
	return s.put(ctx, id, cur)
}

func (s *Store) Truncate(ctx context.Context, id content.ID, size int64) error {
	cur, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if int64(len(cur)) >= size {
		return s.put(ctx, id, cur[:size])
	}
	grown := make([]byte, size)
	copy(grown, cur)
	return s.put(ctx, id, grown)
}

func (s *Store) Size(ctx context.Context, id content.ID) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("s3store: head %s: %w", id, err)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

func (s *Store) Delete(ctx context.Context, id content.ID) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(id)),
	})
	return err
}
