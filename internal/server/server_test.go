package server

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
	"github.com/nfsd3/nfsd3/internal/xdr"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	backend := memory.New([]fsal.Export{{Path: "/export"}})
	router := dispatch.NewRouter(
		portmap.NewHandler(nil),
		mount.NewHandler(backend, mount.NewTable()),
		nfs.NewHandler(backend),
	)
	return New("127.0.0.1:0", router, Config{})
}

func encodeNullCall(xid, prog uint32) []byte {
	e := xdr.NewEncoder(40)
	e.Uint32(xid)
	e.Uint32(rpc.MsgCall)
	e.Uint32(rpc.RPCVersion)
	e.Uint32(prog)
	e.Uint32(3)
	e.Uint32(0)
	e.Uint32(rpc.AuthNone)
	e.VarOpaque(nil)
	e.Uint32(rpc.AuthNone)
	e.VarOpaque(nil)
	return e.Bytes()
}

func TestServeHandlesNullPingEndToEnd(t *testing.T) {
	s := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != "" }, time.Second, time.Millisecond)

	conn, err := net.DialTimeout("tcp", s.Addr(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	framer := record.NewFramer(conn, conn, 0)
	require.NoError(t, framer.WriteRecord(encodeNullCall(42, rpc.ProgramNFS)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := framer.ReadRecord()
	require.NoError(t, err)

	d := xdr.NewDecoder(reply)
	xid, _ := d.Uint32()
	require.Equal(t, uint32(42), xid)
	mtype, _ := d.Uint32()
	require.Equal(t, uint32(rpc.MsgReply), mtype)
	replyState, _ := d.Uint32()
	require.Equal(t, uint32(rpc.MsgAccepted), replyState)
	_, _ = d.Uint32()
	_, _ = d.VarOpaque(400)
	acceptStat, _ := d.Uint32()
	require.Equal(t, uint32(rpc.Success), acceptStat)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	require.NoError(t, s.Shutdown(shutdownCtx))
}
