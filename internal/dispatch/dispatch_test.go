package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nfsd3/nfsd3/internal/fsal"
	"github.com/nfsd3/nfsd3/internal/fsal/memory"
	"github.com/nfsd3/nfsd3/internal/mount"
	"github.com/nfsd3/nfsd3/internal/nfs"
	"github.com/nfsd3/nfsd3/internal/portmap"
	"github.com/nfsd3/nfsd3/internal/rpc"
	"github.com/nfsd3/nfsd3/internal/xdr"
)

func testRouter() *Router {
	backend := memory.New([]fsal.Export{{Path: "/export"}})
	pm := portmap.NewHandler([]portmap.Mapping{
		{Program: rpc.ProgramNFS, Version: 3, Proto: portmap.ProtoTCP, Port: 2049},
	})
	mt := mount.NewHandler(backend, mount.NewTable())
	nf := nfs.NewHandler(backend)
	return NewRouter(pm, mt, nf)
}

func encodeEnvelope(xid, prog, vers, proc uint32, authFlavor uint32, credBody []byte) []byte {
	e := xdr.NewEncoder(64)
	e.Uint32(xid)
	e.Uint32(rpc.MsgCall)
	e.Uint32(rpc.RPCVersion)
	e.Uint32(prog)
	e.Uint32(vers)
	e.Uint32(proc)
	e.Uint32(authFlavor)
	e.VarOpaque(credBody)
	e.Uint32(rpc.AuthNone)
	e.VarOpaque(nil)
	return e.Bytes()
}

func decodeAccepted(t *testing.T, reply []byte) (replyState, acceptStat uint32) {
	t.Helper()
	d := xdr.NewDecoder(reply)
	_, err := d.Uint32() // xid
	require.NoError(t, err)
	mtype, err := d.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(rpc.MsgReply), mtype)
	rs, err := d.Uint32()
	require.NoError(t, err)
	if rs == rpc.MsgDenied {
		rejectStat, _ := d.Uint32()
		return rs, rejectStat
	}
	_, _ = d.Uint32() // verf flavor
	_, err = d.VarOpaque(400)
	require.NoError(t, err)
	as, err := d.Uint32()
	require.NoError(t, err)
	return rs, as
}

func TestNullPingSucceeds(t *testing.T) {
	r := testRouter()
	call, err := rpc.DecodeCall(encodeEnvelope(1, rpc.ProgramNFS, 3, 0, rpc.AuthNone, nil))
	require.NoError(t, err)
	reply := r.Dispatch(call, "client1")
	rs, as := decodeAccepted(t, reply)
	require.Equal(t, uint32(rpc.MsgAccepted), rs)
	require.Equal(t, uint32(rpc.Success), as)
}

func TestUnknownProgramReturnsProgUnavail(t *testing.T) {
	r := testRouter()
	call, err := rpc.DecodeCall(encodeEnvelope(2, 999999, 1, 0, rpc.AuthNone, nil))
	require.NoError(t, err)
	reply := r.Dispatch(call, "client1")
	rs, as := decodeAccepted(t, reply)
	require.Equal(t, uint32(rpc.MsgAccepted), rs)
	require.Equal(t, uint32(rpc.ProgUnavail), as)
}

func TestVersionMismatchReturnsProgMismatch(t *testing.T) {
	r := testRouter()
	call, err := rpc.DecodeCall(encodeEnvelope(3, rpc.ProgramNFS, 99, 0, rpc.AuthNone, nil))
	require.NoError(t, err)
	reply := r.Dispatch(call, "client1")
	rs, as := decodeAccepted(t, reply)
	require.Equal(t, uint32(rpc.MsgAccepted), rs)
	require.Equal(t, uint32(rpc.ProgMismatch), as)
}

func TestUnknownProcedureReturnsProcUnavail(t *testing.T) {
	r := testRouter()
	call, err := rpc.DecodeCall(encodeEnvelope(4, rpc.ProgramNFS, 3, 9999, rpc.AuthNone, nil))
	require.NoError(t, err)
	reply := r.Dispatch(call, "client1")
	rs, as := decodeAccepted(t, reply)
	require.Equal(t, uint32(rpc.MsgAccepted), rs)
	require.Equal(t, uint32(rpc.ProcUnavail), as)
}

func TestUnsupportedAuthFlavorReturnsAuthError(t *testing.T) {
	r := testRouter()
	call, err := rpc.DecodeCall(encodeEnvelope(5, rpc.ProgramNFS, 3, 0, rpc.AuthDH, nil))
	require.NoError(t, err)
	reply := r.Dispatch(call, "client1")
	rs, rejectStat := decodeAccepted(t, reply)
	require.Equal(t, uint32(rpc.MsgDenied), rs)
	require.Equal(t, uint32(rpc.AuthError), rejectStat)
}

func TestGetPortRoutesToPortmap(t *testing.T) {
	r := testRouter()
	args := xdr.NewEncoder(16)
	args.Uint32(rpc.ProgramNFS)
	args.Uint32(3)
	args.Uint32(portmap.ProtoTCP)
	args.Uint32(0)

	e := xdr.NewEncoder(64)
	e.Uint32(6)
	e.Uint32(rpc.MsgCall)
	e.Uint32(rpc.RPCVersion)
	e.Uint32(rpc.ProgramPortmap)
	e.Uint32(2)
	e.Uint32(portmap.ProcGetPort)
	e.Uint32(rpc.AuthNone)
	e.VarOpaque(nil)
	e.Uint32(rpc.AuthNone)
	e.VarOpaque(nil)
	e.Append(args.Bytes())

	call, err := rpc.DecodeCall(e.Bytes())
	require.NoError(t, err)
	reply := r.Dispatch(call, "client1")
	rs, as := decodeAccepted(t, reply)
	require.Equal(t, uint32(rpc.MsgAccepted), rs)
	require.Equal(t, uint32(rpc.Success), as)
}
