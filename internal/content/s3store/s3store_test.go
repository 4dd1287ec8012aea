package s3store

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/nfsd3/nfsd3/internal/content"
)

// fakeAPI is a minimal, in-memory stand-in for *s3.Client driven entirely by
// the handful of behaviors these tests need: a normal object, a missing key,
// and an injected transient failure.
type fakeAPI struct {
	objects map[string][]byte
	getErr  error
	headErr error
}

func (f *fakeAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(newByteReader(data))}, nil
}

func (f *fakeAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeAPI) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NotFound{}
	}
	n := int64(len(data))
	return &s3.HeadObjectOutput{ContentLength: &n}, nil
}

type byteReader struct{ data []byte }

func newByteReader(data []byte) io.Reader { return &byteReader{data: data} }

func (r *byteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

type throttledError struct{}

func (throttledError) Error() string   { return "slow down" }
func (throttledError) ErrorCode() string { return "SlowDown" }
func (throttledError) ErrorMessage() string { return "slow down" }
func (throttledError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestWriteAtOnMissingObjectCreatesIt(t *testing.T) {
	api := &fakeAPI{}
	store := New(api, "bucket")

	err := store.WriteAt(context.Background(), "id1", 0, []byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	n, err := store.ReadAt(context.Background(), "id1", 0, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestWriteAtOnTransientGetFailurePropagatesError(t *testing.T) {
	api := &fakeAPI{objects: map[string][]byte{"id1": []byte("existing")}, getErr: throttledError{}}
	store := New(api, "bucket")

	err := store.WriteAt(context.Background(), "id1", 0, []byte("clobber"))
	require.Error(t, err)
	require.NotEqual(t, "existing", string(api.objects["id1"]))
}

func TestSizeOnMissingObjectReturnsZero(t *testing.T) {
	api := &fakeAPI{}
	store := New(api, "bucket")

	size, err := store.Size(context.Background(), "missing")
	require.NoError(t, err)
	require.Equal(t, int64(0), size)
}

func TestSizeOnTransientHeadFailurePropagatesError(t *testing.T) {
	api := &fakeAPI{headErr: throttledError{}}
	store := New(api, "bucket")

	_, err := store.Size(context.Background(), "id1")
	require.Error(t, err)
}

var _ content.Store = (*Store)(nil)
