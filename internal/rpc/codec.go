package rpc

import (
	"bytes"
	"fmt"

	xdr2 "github.com/rasky/go-xdr/xdr2"

	"github.com/nfsd3/nfsd3/internal/xdr"
)

// opaqueAuthWire mirrors OpaqueAuth for go-xdr reflection: the envelope's
// fixed-shape fields (xid/mtype/rpcvers/prog/vers/proc/cred/verf) are
// encoded/decoded through go-xdr, while every procedure-specific or
// discriminator-driven body downstream is handled by the hand-written
// internal/xdr codec — go-xdr's struct-tag reflection cannot express a
// tag-dependent serialized length.
type opaqueAuthWire struct {
	Flavor uint32
	Body   []byte `xdr:"opaque"`
}

type callEnvelopeWire struct {
	XID        uint32
	MsgType    uint32
	RPCVersion uint32
	Program    uint32
	Version    uint32
	Procedure  uint32
	Cred       opaqueAuthWire
	Verf       opaqueAuthWire
}

// DecodeCall parses the fixed RPC call envelope and returns a CallMessage
// whose ArgsTail holds the remaining, procedure-specific bytes.
func DecodeCall(data []byte) (*CallMessage, error) {
	var wire callEnvelopeWire
	n, err := xdr2.Unmarshal(bytes.NewReader(data), &wire)
	if err != nil {
		return nil, fmt.Errorf("rpc: decode call envelope: %w", err)
	}
	if wire.MsgType != MsgCall {
		return nil, fmt.Errorf("rpc: expected CALL message, got mtype=%d", wire.MsgType)
	}
	if n > len(data) {
		return nil, fmt.Errorf("rpc: decoder consumed more than available")
	}
	return &CallMessage{
		XID:        wire.XID,
		MsgType:    wire.MsgType,
		RPCVersion: wire.RPCVersion,
		Program:    wire.Program,
		Version:    wire.Version,
		Procedure:  wire.Procedure,
		Cred:       OpaqueAuth{Flavor: wire.Cred.Flavor, Body: wire.Cred.Body},
		Verf:       OpaqueAuth{Flavor: wire.Verf.Flavor, Body: wire.Verf.Body},
		ArgsTail:   data[n:],
	}, nil
}

// EncodeSuccess builds a full MSG_ACCEPTED/SUCCESS reply frame: the fixed
// envelope followed by the procedure's already-encoded result body.
func EncodeSuccess(xid uint32, body []byte) []byte {
	e := xdr.NewEncoder(20 + len(body))
	e.Uint32(xid)
	e.Uint32(MsgReply)
	e.Uint32(MsgAccepted)
	encodeOpaqueAuth(e, NoneVerifier)
	e.Uint32(Success)
	e.Append(body)
	return e.Bytes()
}

// EncodeAcceptError builds an accepted-but-erroring reply: PROG_UNAVAIL,
// PROC_UNAVAIL, GARBAGE_ARGS, or SYSTEM_ERR, all with an empty body.
func EncodeAcceptError(xid uint32, acceptStat uint32) []byte {
	e := xdr.NewEncoder(20)
	e.Uint32(xid)
	e.Uint32(MsgReply)
	e.Uint32(MsgAccepted)
	encodeOpaqueAuth(e, NoneVerifier)
	e.Uint32(acceptStat)
	return e.Bytes()
}

// EncodeProgMismatch builds a PROG_MISMATCH reply: { low:u32, high:u32 }.
func EncodeProgMismatch(xid, low, high uint32) []byte {
	e := xdr.NewEncoder(28)
	e.Uint32(xid)
	e.Uint32(MsgReply)
	e.Uint32(MsgAccepted)
	encodeOpaqueAuth(e, NoneVerifier)
	e.Uint32(ProgMismatch)
	e.Uint32(low)
	e.Uint32(high)
	return e.Bytes()
}

// EncodeRPCMismatch builds a denied reply for an unsupported RPC version:
// { reject_stat=RPC_MISMATCH, low, high }.
func EncodeRPCMismatch(xid, low, high uint32) []byte {
	e := xdr.NewEncoder(20)
	e.Uint32(xid)
	e.Uint32(MsgReply)
	e.Uint32(MsgDenied)
	e.Uint32(RPCMismatch)
	e.Uint32(low)
	e.Uint32(high)
	return e.Bytes()
}

// EncodeAuthError builds a denied reply for an authentication failure:
// { reject_stat=AUTH_ERROR, auth_stat }.
func EncodeAuthError(xid, authStat uint32) []byte {
	e := xdr.NewEncoder(16)
	e.Uint32(xid)
	e.Uint32(MsgReply)
	e.Uint32(MsgDenied)
	e.Uint32(AuthError)
	e.Uint32(authStat)
	return e.Bytes()
}
