package rpc

import "github.com/nfsd3/nfsd3/internal/xdr"

// Authentication flavors (RFC 5531 section 8.2).
const (
	AuthNone  = 0
	AuthSys   = 1 // AUTH_UNIX
	AuthShort = 2
	AuthDH    = 3
)

// MaxAuthBodyLen bounds opaque_auth.body per RFC 5531: "The body ... shall
// not be larger than 400 bytes."
const MaxAuthBodyLen = 400

// OpaqueAuth is the wire shape shared by a call's credential/verifier and a
// reply's verifier: { flavor:u32, body:opaque<400> }.
type OpaqueAuth struct {
	Flavor uint32
	Body   []byte
}

func encodeOpaqueAuth(e *xdr.Encoder, a OpaqueAuth) {
	e.Uint32(a.Flavor)
	e.VarOpaque(a.Body)
}

// NoneVerifier is the verifier this server always replies with: AUTH_NONE,
// zero-length body, regardless of the credential flavor the client used.
var NoneVerifier = OpaqueAuth{Flavor: AuthNone, Body: nil}

// UnixAuth is the decoded AUTH_SYS (AUTH_UNIX) credential body (RFC 5531
// section 9.2): a timestamp, the client's claimed hostname, and the caller
// identity used by the FSAL for access decisions.
type UnixAuth struct {
	Stamp      uint32
	MachineName string
	UID        uint32
	GID        uint32
	GIDs       []uint32
}

// MaxMachineNameLen bounds the machinename field per RFC 5531.
const MaxMachineNameLen = 255

// MaxGIDs bounds the auxiliary gids list per RFC 5531 (NGROUPS).
const MaxGIDs = 16

// ParseUnixAuth decodes an AUTH_SYS credential body.
func ParseUnixAuth(body []byte) (*UnixAuth, error) {
	d := xdr.NewDecoder(body)

	stamp, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	machine, err := d.String(MaxMachineNameLen)
	if err != nil {
		return nil, err
	}
	uid, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	gid, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if n > MaxGIDs {
		return nil, xdr.ErrLengthLimitExceeded
	}
	gids := make([]uint32, n)
	for i := range gids {
		v, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		gids[i] = v
	}
	return &UnixAuth{
		Stamp:       stamp,
		MachineName: machine,
		UID:         uid,
		GID:         gid,
		GIDs:        gids,
	}, nil
}
