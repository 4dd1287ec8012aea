// Package e2e drives a real listening server through a plain RPC client,
// exercising the full dispatch → program handler → FSAL stack the way an
// NFS client would over the wire, without depending on an OS-level mount.
package e2e

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nfsd3/nfsd3/internal/dispatch"
	"github.com/nfsd3/nfsd3/internal/fsal"
	"github.com/nfsd3/nfsd3/internal/fsal/memory"
	"github.com/nfsd3/nfsd3/internal/mount"
	"github.com/nfsd3/nfsd3/internal/nfs"
	"github.com/nfsd3/nfsd3/internal/portmap"
	"github.com/nfsd3/nfsd3/internal/record"
	"github.com/nfsd3/nfsd3/internal/rpc"
	"github.com/nfsd3/nfsd3/internal/server"
	"github.com/nfsd3/nfsd3/internal/xdr"
)

// client is a minimal synchronous RPC client: one call in flight at a time,
// XIDs assigned sequentially, replies matched by the fact that this server
// never reorders a single connection's one-at-a-time caller.
type client struct {
	t      *testing.T
	conn   net.Conn
	framer *record.Framer
	nextID uint32
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, framer: record.NewFramer(conn, conn, 0), nextID: 1}
}

// call sends one RPC call with the given program/version/procedure and
// pre-encoded argument body, returning the decoded reply's accept/reject
// status and the argument decoder positioned at the start of the result
// body (only valid when the status is a success).
func (c *client) call(prog, vers, proc uint32, argBody []byte) (acceptStat uint32, denied bool, rejectStat uint32, result *xdr.Decoder) {
	c.t.Helper()
	xid := c.nextID
	c.nextID++

	e := xdr.NewEncoder(64 + len(argBody))
	e.Uint32(xid)
	e.Uint32(rpc.MsgCall)
	e.Uint32(rpc.RPCVersion)
	e.Uint32(prog)
	e.Uint32(vers)
	e.Uint32(proc)
	e.Uint32(rpc.AuthNone)
	e.VarOpaque(nil)
	e.Uint32(rpc.AuthNone)
	e.VarOpaque(nil)
	e.Append(argBody)

	require.NoError(c.t, c.framer.WriteRecord(e.Bytes()))
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := c.framer.ReadRecord()
	require.NoError(c.t, err)

	d := xdr.NewDecoder(reply)
	gotXID, err := d.Uint32()
	require.NoError(c.t, err)
	require.Equal(c.t, xid, gotXID)
	mtype, err := d.Uint32()
	require.NoError(c.t, err)
	require.Equal(c.t, uint32(rpc.MsgReply), mtype)

	replyState, err := d.Uint32()
	require.NoError(c.t, err)
	if replyState == rpc.MsgDenied {
		rs, err := d.Uint32()
		require.NoError(c.t, err)
		return 0, true, rs, nil
	}

	_, err = d.Uint32() // verifier flavor
	require.NoError(c.t, err)
	_, err = d.VarOpaque(400)
	require.NoError(c.t, err)
	as, err := d.Uint32()
	require.NoError(c.t, err)
	return as, false, 0, d
}

// testServer wires a memory FSAL backend with one "/export" share behind a
// full Router and starts it listening on loopback.
func testServer(t *testing.T) (addr string, backend fsal.Backend) {
	t.Helper()
	backend = memory.New([]fsal.Export{{Path: "/export"}})
	router := dispatch.NewRouter(
		portmap.NewHandler(nil),
		mount.NewHandler(backend, mount.NewTable()),
		nfs.NewHandler(backend),
	)
	srv := server.New("127.0.0.1:0", router, server.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	})

	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, time.Millisecond)
	return srv.Addr(), backend
}
