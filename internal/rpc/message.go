package rpc

// CallMessage is the decoded RPC call envelope (RFC 5531 section 9):
//
//	xid, mtype=CALL, rpcvers=2, prog, vers, proc, cred, verf, <args>
//
// ArgsTail holds the bytes remaining after the envelope; procedure handlers
// decode their arguments from it.
type CallMessage struct {
	XID        uint32
	MsgType    uint32
	RPCVersion uint32
	Program    uint32
	Version    uint32
	Procedure  uint32
	Cred       OpaqueAuth
	Verf       OpaqueAuth

	ArgsTail []byte
}

// AuthFlavor returns the credential flavor the client presented.
func (c *CallMessage) AuthFlavor() uint32 {
	return c.Cred.Flavor
}

// ReplyMessage is the decoded/encoded RPC reply envelope. It is constructed
// by the codec helpers below rather than assembled by callers field by
// field, since its shape depends on ReplyState/AcceptStat.
type ReplyMessage struct {
	XID         uint32
	ReplyState  uint32
	Verf        OpaqueAuth
	AcceptStat  uint32
	RejectStat  uint32
	MismatchLow uint32
	MismatchHi  uint32
	AuthStat    uint32
}
