package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nfsd3/nfsd3/internal/fsal"
)

func newTestBackend(t *testing.T) (*Backend, fsal.Handle) {
	t.Helper()
	b := New([]fsal.Export{{Path: "/export"}})
	root, err := b.RootHandle("/export")
	require.NoError(t, err)
	return b, root
}

func TestRootIsDirectory(t *testing.T) {
	b, root := newTestBackend(t)
	attr, err := b.GetAttr(root)
	require.NoError(t, err)
	require.Equal(t, fsal.TypeDirectory, attr.Type)
	require.NotZero(t, attr.Fileid)
}

func TestBadHandleVsStale(t *testing.T) {
	b, _ := newTestBackend(t)

	_, err := b.GetAttr(fsal.Handle{0xFF})
	require.Equal(t, fsal.ErrBadHandle, fsal.CodeOf(err))

	// A handle of correct shape but forged checksum is still BADHANDLE.
	forged := make(fsal.Handle, 16)
	_, err = b.GetAttr(forged)
	require.Equal(t, fsal.ErrBadHandle, fsal.CodeOf(err))
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	b, root := newTestBackend(t)

	fh, _, err := b.Create(root, "f", fsal.Unchecked, fsal.SetAttr{SetMode: true, Mode: 0644}, [8]byte{})
	require.NoError(t, err)

	n, committed, _, err := b.Write(fh, 0, []byte("hello"), fsal.FileSync)
	require.NoError(t, err)
	require.Equal(t, uint32(5), n)
	require.Equal(t, fsal.FileSync, committed)

	data, eof, _, err := b.Read(fh, 0, 1024)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	require.True(t, eof)
}

func TestLookupFileidMatchesGetAttr(t *testing.T) {
	b, root := newTestBackend(t)
	fh, createAttr, err := b.Create(root, "f", fsal.Unchecked, fsal.SetAttr{}, [8]byte{})
	require.NoError(t, err)

	lookedUp, lookupAttr, err := b.Lookup(root, "f")
	require.NoError(t, err)
	require.Equal(t, []byte(fh), []byte(lookedUp))
	require.Equal(t, createAttr.Fileid, lookupAttr.Fileid)

	got, err := b.GetAttr(lookedUp)
	require.NoError(t, err)
	require.Equal(t, createAttr.Fileid, got.Fileid)
}

func TestExclusiveCreateIdempotent(t *testing.T) {
	b, root := newTestBackend(t)
	verf := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}

	h1, attr1, err := b.Create(root, "x", fsal.Exclusive, fsal.SetAttr{}, verf)
	require.NoError(t, err)
	require.Equal(t, uint64(0), attr1.Used)
	h2, attr2, err := b.Create(root, "x", fsal.Exclusive, fsal.SetAttr{}, verf)
	require.NoError(t, err)
	require.Equal(t, []byte(h1), []byte(h2))
	require.Equal(t, uint64(0), attr2.Used)

	got, err := b.GetAttr(h1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), got.Used, "verifier must not leak into the wire-visible used field")
}

func TestExclusiveCreateVerifierMismatchFails(t *testing.T) {
	b, root := newTestBackend(t)
	verf := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}

	_, _, err := b.Create(root, "x", fsal.Exclusive, fsal.SetAttr{}, verf)
	require.NoError(t, err)

	other := [8]byte{8, 7, 6, 5, 4, 3, 2, 1}
	_, _, err = b.Create(root, "x", fsal.Exclusive, fsal.SetAttr{}, other)
	require.Equal(t, fsal.ErrExists, fsal.CodeOf(err))
}

func TestGuardedCreateCollisionFails(t *testing.T) {
	b, root := newTestBackend(t)
	_, _, err := b.Create(root, "x", fsal.Unchecked, fsal.SetAttr{}, [8]byte{})
	require.NoError(t, err)
	_, _, err = b.Create(root, "x", fsal.Guarded, fsal.SetAttr{}, [8]byte{})
	require.Equal(t, fsal.ErrExists, fsal.CodeOf(err))
}

func TestReadDirBudgetSmallerThanFirstEntryReturnsEmpty(t *testing.T) {
	b, root := newTestBackend(t)
	_, _, err := b.Create(root, "a", fsal.Unchecked, fsal.SetAttr{}, [8]byte{})
	require.NoError(t, err)

	entries, _, eof, err := b.ReadDir(root, 0, [8]byte{}, 1)
	require.NoError(t, err)
	require.False(t, eof)
	require.Empty(t, entries, "a budget smaller than the first entry must yield no entries so the caller can signal TOOSMALL")
}

func TestReadDirCookieContinuation(t *testing.T) {
	b, root := newTestBackend(t)
	for _, name := range []string{"a", "b", "c"} {
		_, _, err := b.Create(root, name, fsal.Unchecked, fsal.SetAttr{}, [8]byte{})
		require.NoError(t, err)
	}

	entries, verf, eof, err := b.ReadDir(root, 0, [8]byte{}, 100)
	require.NoError(t, err)
	require.False(t, eof)
	require.NotEmpty(t, entries)

	last := entries[len(entries)-1]
	rest, _, eof2, err := b.ReadDir(root, last.Cookie, verf, 0)
	require.NoError(t, err)
	require.True(t, eof2)
	require.NotEmpty(t, rest)

	_, _, _, err = b.ReadDir(root, 0, [8]byte{9, 9, 9, 9, 9, 9, 9, 9}, 100)
	require.Error(t, err)
}

func TestReadPastEOFReturnsEmptyWithEOFTrue(t *testing.T) {
	b, root := newTestBackend(t)
	fh, _, err := b.Create(root, "f", fsal.Unchecked, fsal.SetAttr{}, [8]byte{})
	require.NoError(t, err)
	_, _, _, err = b.Write(fh, 0, []byte("ab"), fsal.FileSync)
	require.NoError(t, err)

	data, eof, _, err := b.Read(fh, 10, 5)
	require.NoError(t, err)
	require.Empty(t, data)
	require.True(t, eof)
}
