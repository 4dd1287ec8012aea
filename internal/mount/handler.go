package mount

import (
	"unicode/utf8"

	"github.com/nfsd3/nfsd3/internal/fsal"
	"github.com/nfsd3/nfsd3/internal/logger"
	"github.com/nfsd3/nfsd3/internal/xdr"
)

// Handler dispatches the six MOUNT procedures against a backend and mount
// table.
type Handler struct {
	backend fsal.Backend
	table   *Table
}

func NewHandler(backend fsal.Backend, table *Table) *Handler {
	return &Handler{backend: backend, table: table}
}

// Dispatch decodes args, runs the named procedure, and returns the encoded
// result body. ok is false for an unknown procedure (caller replies
// PROC_UNAVAIL); decode failures surface as an error (caller replies
// GARBAGE_ARGS).
func (h *Handler) Dispatch(proc uint32, clientAddr string, args []byte) (body []byte, ok bool, err error) {
	switch proc {
	case ProcNull:
		return nil, true, nil
	case ProcMnt:
		b, err := h.mnt(clientAddr, args)
		return b, true, err
	case ProcDump:
		return h.dump(), true, nil
	case ProcUmnt:
		b, err := h.umnt(clientAddr, args)
		return b, true, err
	case ProcUmntAll:
		h.table.RemoveAll(clientAddr)
		return nil, true, nil
	case ProcExport:
		return h.export(), true, nil
	default:
		return nil, false, nil
	}
}

func (h *Handler) mnt(clientAddr string, args []byte) ([]byte, error) {
	d := xdr.NewDecoder(args)
	path, err := d.String(0)
	if err != nil {
		return nil, err
	}
	if len(path) > MaxDirPathLen {
		return encodeMntResult(ErrNameTooLong, nil, nil), nil
	}
	if !utf8.ValidString(path) {
		logger.Warn("mount: MNT invalid UTF-8 path from %s", clientAddr)
		return encodeMntResult(ErrInval, nil, nil), nil
	}

	var exported bool
	for _, e := range h.backend.Exports() {
		if e.Path == path {
			exported = true
			break
		}
	}
	if !exported {
		logger.Info("mount: MNT %q from %s: no such export", path, clientAddr)
		return encodeMntResult(ErrNoEnt, nil, nil), nil
	}

	root, err := h.backend.RootHandle(path)
	if err != nil {
		logger.Error("mount: MNT %q from %s: root handle: %v", path, clientAddr, err)
		return encodeMntResult(ErrServerFault, nil, nil), nil
	}
	if attr, err := h.backend.GetAttr(root); err == nil && attr.Type != fsal.TypeDirectory {
		logger.Warn("mount: MNT %q from %s: export root is not a directory", path, clientAddr)
		return encodeMntResult(ErrNotDir, nil, nil), nil
	}

	h.table.Add(clientAddr, path)
	logger.Debug("mount: MNT %q from %s succeeded", path, clientAddr)
	return encodeMntResult(OK, root, AuthFlavors), nil
}

func encodeMntResult(status uint32, handle fsal.Handle, authFlavors []int32) []byte {
	e := xdr.NewEncoder(32)
	e.Uint32(status)
	if status != OK {
		return e.Bytes()
	}
	e.VarOpaque(handle)
	e.Uint32(uint32(len(authFlavors)))
	for _, f := range authFlavors {
		e.Int32(f)
	}
	return e.Bytes()
}

func (h *Handler) dump() []byte {
	e := xdr.NewEncoder(64)
	for _, row := range h.table.Dump() {
		e.Bool(true)
		e.String(row[0])
		e.String(row[1])
	}
	e.Bool(false)
	return e.Bytes()
}

func (h *Handler) umnt(clientAddr string, args []byte) ([]byte, error) {
	d := xdr.NewDecoder(args)
	path, err := d.String(MaxDirPathLen)
	if err != nil {
		return nil, err
	}
	h.table.Remove(clientAddr, path)
	return nil, nil
}

func (h *Handler) export() []byte {
	e := xdr.NewEncoder(64)
	for _, ex := range h.backend.Exports() {
		e.Bool(true)
		e.String(ex.Path)
		e.Bool(false) // groups<> always empty: this server does not enforce per-client groups
	}
	e.Bool(false)
	return e.Bytes()
}
