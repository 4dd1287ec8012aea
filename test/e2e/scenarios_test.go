package e2e

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nfsd3/nfsd3/internal/mount"
	"github.com/nfsd3/nfsd3/internal/nfs"
	"github.com/nfsd3/nfsd3/internal/rpc"
	"github.com/nfsd3/nfsd3/internal/xdr"
)

func TestNullPing(t *testing.T) {
	addr, _ := testServer(t)
	c := dial(t, addr)
	as, denied, _, _ := c.call(rpc.ProgramNFS, 3, 0, nil)
	require.False(t, denied)
	require.Equal(t, uint32(rpc.Success), as)
}

func TestUnknownProgramIsRejected(t *testing.T) {
	addr, _ := testServer(t)
	c := dial(t, addr)
	as, denied, _, _ := c.call(424242, 1, 0, nil)
	require.False(t, denied)
	require.Equal(t, uint32(rpc.ProgUnavail), as)
}

func TestVersionMismatchIsRejected(t *testing.T) {
	addr, _ := testServer(t)
	c := dial(t, addr)
	as, denied, _, _ := c.call(rpc.ProgramNFS, 99, 0, nil)
	require.False(t, denied)
	require.Equal(t, uint32(rpc.ProgMismatch), as)
}

func mntExport(t *testing.T, c *client, path string) []byte {
	t.Helper()
	args := xdr.NewEncoder(32)
	args.String(path)
	as, denied, _, result := c.call(rpc.ProgramMount, 3, mount.ProcMnt, args.Bytes())
	require.False(t, denied)
	require.Equal(t, uint32(rpc.Success), as)

	status, err := result.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(mount.OK), status)
	handle, err := result.VarOpaque(64)
	require.NoError(t, err)
	return handle
}

func TestMountExportedPath(t *testing.T) {
	addr, _ := testServer(t)
	c := dial(t, addr)
	handle := mntExport(t, c, "/export")
	require.NotEmpty(t, handle)
}

func TestMountUnknownPathReturnsNoEnt(t *testing.T) {
	addr, _ := testServer(t)
	c := dial(t, addr)

	args := xdr.NewEncoder(32)
	args.String("/nope")
	as, denied, _, result := c.call(rpc.ProgramMount, 3, mount.ProcMnt, args.Bytes())
	require.False(t, denied)
	require.Equal(t, uint32(rpc.Success), as)
	status, err := result.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(mount.ErrNoEnt), status)
}

func skipFattr3(t *testing.T, d *xdr.Decoder) {
	t.Helper()
	for i := 0; i < 10; i++ {
		_, err := d.Uint32()
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := d.Uint64()
		require.NoError(t, err)
	}
	for i := 0; i < 6; i++ {
		_, err := d.Uint32()
		require.NoError(t, err)
	}
}

func TestGetAttrOnRootIsDirectory(t *testing.T) {
	addr, _ := testServer(t)
	c := dial(t, addr)
	root := mntExport(t, c, "/export")

	args := xdr.NewEncoder(64)
	args.VarOpaque(root)
	as, denied, _, result := c.call(rpc.ProgramNFS, 3, nfs.ProcGetAttr, args.Bytes())
	require.False(t, denied)
	require.Equal(t, uint32(rpc.Success), as)

	status, err := result.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(nfs.OK), status)
	ftype, err := result.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(nfs.TypeDir), ftype)
}

func TestBadHandleReturnsBadHandle(t *testing.T) {
	addr, _ := testServer(t)
	c := dial(t, addr)

	args := xdr.NewEncoder(16)
	args.VarOpaque([]byte("not-a-real-handle"))
	as, denied, _, result := c.call(rpc.ProgramNFS, 3, nfs.ProcGetAttr, args.Bytes())
	require.False(t, denied)
	require.Equal(t, uint32(rpc.Success), as)

	status, err := result.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(nfs.ErrBadHandle), status)
}

func encodeGuardedCreate(dir []byte, name string) []byte {
	e := xdr.NewEncoder(96)
	e.VarOpaque(dir)
	e.String(name)
	e.Uint32(nfs.Unchecked)
	e.Bool(false) // set mode
	e.Bool(false) // set uid
	e.Bool(false) // set gid
	e.Bool(false) // set size
	e.Uint32(0)   // atime DONT_CHANGE
	e.Uint32(0)   // mtime DONT_CHANGE
	return e.Bytes()
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	addr, _ := testServer(t)
	c := dial(t, addr)
	root := mntExport(t, c, "/export")

	as, denied, _, result := c.call(rpc.ProgramNFS, 3, nfs.ProcCreate, encodeGuardedCreate(root, "greeting.txt"))
	require.False(t, denied)
	require.Equal(t, uint32(rpc.Success), as)

	status, err := result.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(nfs.OK), status)
	handlePresent, err := result.Bool()
	require.NoError(t, err)
	require.True(t, handlePresent)
	fileHandle, err := result.VarOpaque(64)
	require.NoError(t, err)

	payload := []byte("hello over the wire")
	writeArgs := xdr.NewEncoder(64 + len(payload))
	writeArgs.VarOpaque(fileHandle)
	writeArgs.Uint64(0)
	writeArgs.Uint32(uint32(len(payload)))
	writeArgs.Uint32(nfs.FileSync)
	writeArgs.VarOpaque(payload)

	as, denied, _, wResult := c.call(rpc.ProgramNFS, 3, nfs.ProcWrite, writeArgs.Bytes())
	require.False(t, denied)
	require.Equal(t, uint32(rpc.Success), as)
	wStatus, err := wResult.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(nfs.OK), wStatus)

	readArgs := xdr.NewEncoder(32)
	readArgs.VarOpaque(fileHandle)
	readArgs.Uint64(0)
	readArgs.Uint32(uint32(len(payload)))

	as, denied, _, rResult := c.call(rpc.ProgramNFS, 3, nfs.ProcRead, readArgs.Bytes())
	require.False(t, denied)
	require.Equal(t, uint32(rpc.Success), as)
	rStatus, err := rResult.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(nfs.OK), rStatus)

	attrPresent, err := rResult.Bool()
	require.NoError(t, err)
	require.True(t, attrPresent)
	skipFattr3(t, rResult)

	count, err := rResult.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(len(payload)), count)
	_, err = rResult.Bool() // eof
	require.NoError(t, err)
	data, err := rResult.VarOpaque(uint32(len(payload)))
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

func TestReadDirCookieContinuation(t *testing.T) {
	addr, _ := testServer(t)
	c := dial(t, addr)
	root := mntExport(t, c, "/export")

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		as, denied, _, _ := c.call(rpc.ProgramNFS, 3, nfs.ProcCreate, encodeGuardedCreate(root, name))
		require.False(t, denied)
		require.Equal(t, uint32(rpc.Success), as)
	}

	seen := map[string]bool{}
	var cookie uint64
	var cookieverf [8]byte
	for {
		args := xdr.NewEncoder(64)
		args.VarOpaque(root)
		args.Uint64(cookie)
		args.FixedOpaque(cookieverf[:])
		args.Uint32(4096)

		as, denied, _, result := c.call(rpc.ProgramNFS, 3, nfs.ProcReadDir, args.Bytes())
		require.False(t, denied)
		require.Equal(t, uint32(rpc.Success), as)
		status, err := result.Uint32()
		require.NoError(t, err)
		require.Equal(t, uint32(nfs.OK), status)

		attrPresent, err := result.Bool()
		require.NoError(t, err)
		if attrPresent {
			skipFattr3(t, result)
		}

		verfBytes, err := result.FixedOpaque(8)
		require.NoError(t, err)
		copy(cookieverf[:], verfBytes)

		var eof bool
		for {
			more, err := result.Bool()
			require.NoError(t, err)
			if !more {
				break
			}
			_, err = result.Uint64() // fileid
			require.NoError(t, err)
			name, err := result.String(nfs.MaxNameLen)
			require.NoError(t, err)
			seen[name] = true
			nextCookie, err := result.Uint64()
			require.NoError(t, err)
			cookie = nextCookie
		}
		eof, err = result.Bool()
		require.NoError(t, err)
		if eof {
			break
		}
	}

	require.True(t, seen["a.txt"])
	require.True(t, seen["b.txt"])
	require.True(t, seen["c.txt"])
}
