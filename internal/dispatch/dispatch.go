// Package dispatch routes a decoded RPC call to its program handler,
// enforcing the RPC-layer acceptance rules (program known, version
// supported, procedure known, auth flavor acceptable) before anything
// procedure-specific runs.
package dispatch

import (
	"github.com/nfsd3/nfsd3/internal/fsal"
	"github.com/nfsd3/nfsd3/internal/logger"
	"github.com/nfsd3/nfsd3/internal/mount"
	"github.com/nfsd3/nfsd3/internal/nfs"
	"github.com/nfsd3/nfsd3/internal/portmap"
	"github.com/nfsd3/nfsd3/internal/rpc"
)

// programVersions lists the single version this server answers for each
// program it implements.
var programVersions = map[uint32]uint32{
	rpc.ProgramPortmap: 2,
	rpc.ProgramNFS:     3,
	rpc.ProgramMount:   3,
}

// Router dispatches RPC calls across the three programs this server
// implements: PORTMAP, MOUNT, and NFS.
type Router struct {
	portmap *portmap.Handler
	mount   *mount.Handler
	nfs     *nfs.Handler
}

func NewRouter(portmapHandler *portmap.Handler, mountHandler *mount.Handler, nfsHandler *nfs.Handler) *Router {
	return &Router{portmap: portmapHandler, mount: mountHandler, nfs: nfsHandler}
}

// Dispatch validates the call envelope and routes to the right program
// handler, returning a complete reply frame ready to write to the wire.
func (r *Router) Dispatch(call *rpc.CallMessage, clientAddr string) []byte {
	if call.RPCVersion != rpc.RPCVersion {
		return rpc.EncodeRPCMismatch(call.XID, rpc.RPCVersion, rpc.RPCVersion)
	}

	caller, authStat, ok := r.authorize(call)
	if !ok {
		return rpc.EncodeAuthError(call.XID, authStat)
	}

	supportedVers, known := programVersions[call.Program]
	if !known {
		return rpc.EncodeAcceptError(call.XID, rpc.ProgUnavail)
	}
	if call.Version != supportedVers {
		return rpc.EncodeProgMismatch(call.XID, supportedVers, supportedVers)
	}

	var body []byte
	var handled bool
	var err error

	switch call.Program {
	case rpc.ProgramPortmap:
		body, handled, err = r.portmap.Dispatch(call.Procedure, call.ArgsTail)
	case rpc.ProgramMount:
		body, handled, err = r.mount.Dispatch(call.Procedure, clientAddr, call.ArgsTail)
	case rpc.ProgramNFS:
		body, handled, err = r.nfs.Dispatch(call.Procedure, caller, call.ArgsTail)
	}

	if !handled {
		return rpc.EncodeAcceptError(call.XID, rpc.ProcUnavail)
	}
	if err != nil {
		logger.Debug("dispatch: xid=%d prog=%d proc=%d garbage args: %v", call.XID, call.Program, call.Procedure, err)
		return rpc.EncodeAcceptError(call.XID, rpc.GarbageArgs)
	}
	return rpc.EncodeSuccess(call.XID, body)
}

// authorize accepts AUTH_NONE unconditionally and AUTH_SYS when its
// credential body parses; anything else is rejected with AUTH_TOOWEAK, the
// conventional response to an auth flavor a server declines to support.
func (r *Router) authorize(call *rpc.CallMessage) (fsal.CallerIdentity, uint32, bool) {
	switch call.AuthFlavor() {
	case rpc.AuthNone:
		return fsal.CallerIdentity{Anonymous: true}, 0, true
	case rpc.AuthSys:
		cred, err := rpc.ParseUnixAuth(call.Cred.Body)
		if err != nil {
			return fsal.CallerIdentity{}, rpc.AuthBadCred, false
		}
		return fsal.CallerIdentity{UID: cred.UID, GID: cred.GID, GIDs: cred.GIDs}, 0, true
	default:
		return fsal.CallerIdentity{}, rpc.AuthTooWeak, false
	}
}
