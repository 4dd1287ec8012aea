// Package portmap implements a local-only PORTMAP (RFC 1833) responder: the
// server answers GETPORT/DUMP for its own advertised services directly
// rather than registering with the system rpcbind.
package portmap

import "github.com/nfsd3/nfsd3/internal/xdr"

const (
	ProcNull    = 0
	ProcSet     = 1
	ProcUnset   = 2
	ProcGetPort = 3
	ProcDump    = 4
)

// ProtoTCP is the only transport this server advertises.
const ProtoTCP = 6

// Mapping is one (program, version, proto, port) quadruple this server
// answers for.
type Mapping struct {
	Program uint32
	Version uint32
	Proto   uint32
	Port    uint32
}

// Handler answers PORTMAP queries against a fixed, startup-configured set
// of mappings (this server's own NFS/MOUNT/Portmap services).
type Handler struct {
	mappings []Mapping
}

func NewHandler(mappings []Mapping) *Handler {
	return &Handler{mappings: mappings}
}

// Dispatch decodes args for the named procedure and returns the encoded
// result. ok is false for an unimplemented procedure (SET/UNSET are
// meaningless for a server that never registers with rpcbind).
func (h *Handler) Dispatch(proc uint32, args []byte) (body []byte, ok bool, err error) {
	switch proc {
	case ProcNull:
		return nil, true, nil
	case ProcGetPort:
		b, err := h.getPort(args)
		return b, true, err
	case ProcDump:
		return h.dump(), true, nil
	default:
		return nil, false, nil
	}
}

func (h *Handler) getPort(args []byte) ([]byte, error) {
	d := xdr.NewDecoder(args)
	prog, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	vers, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	proto, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if _, err := d.Uint32(); err != nil { // port, ignored in a request
		return nil, err
	}

	var port uint32
	for _, m := range h.mappings {
		if m.Program == prog && m.Version == vers && m.Proto == proto {
			port = m.Port
			break
		}
	}
	e := xdr.NewEncoder(4)
	e.Uint32(port)
	return e.Bytes(), nil
}

func (h *Handler) dump() []byte {
	e := xdr.NewEncoder(64)
	for _, m := range h.mappings {
		e.Bool(true)
		e.Uint32(m.Program)
		e.Uint32(m.Version)
		e.Uint32(m.Proto)
		e.Uint32(m.Port)
	}
	e.Bool(false)
	return e.Bytes()
}
