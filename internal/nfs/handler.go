package nfs

import (
	"github.com/nfsd3/nfsd3/internal/fsal"
	"github.com/nfsd3/nfsd3/internal/xdr"
)

// Handler dispatches NFSv3 procedures against a backend.
type Handler struct {
	backend fsal.Backend
}

func NewHandler(backend fsal.Backend) *Handler {
	return &Handler{backend: backend}
}

// Dispatch decodes args for the given procedure, invokes the backend, and
// returns the encoded result body. ok is false only for a procedure number
// this program doesn't know about at all (never happens for 0..21 since
// every one of the 22 is handled, the unimplemented ones via NFS3ERR_NOTSUPP
// bodies rather than PROC_UNAVAIL).
func (h *Handler) Dispatch(proc uint32, caller fsal.CallerIdentity, args []byte) (body []byte, ok bool, err error) {
	d := xdr.NewDecoder(args)
	switch proc {
	case ProcNull:
		return nil, true, nil
	case ProcGetAttr:
		b, err := h.getAttr(d)
		return b, true, err
	case ProcSetAttr:
		b, err := h.setAttr(d)
		return b, true, err
	case ProcLookup:
		b, err := h.lookup(d)
		return b, true, err
	case ProcAccess:
		b, err := h.access(d, caller)
		return b, true, err
	case ProcRead:
		b, err := h.read(d)
		return b, true, err
	case ProcWrite:
		b, err := h.write(d)
		return b, true, err
	case ProcCreate:
		b, err := h.create(d)
		return b, true, err
	case ProcReadDir:
		b, err := h.readDir(d)
		return b, true, err
	case ProcFSStat:
		b, err := h.fsStat(d)
		return b, true, err
	case ProcFSInfo:
		b, err := h.fsInfo(d)
		return b, true, err
	case ProcPathConf:
		b, err := h.pathConf(d)
		return b, true, err
	case ProcReadLink, ProcMkdir, ProcSymlink, ProcMknod, ProcRemove,
		ProcRmdir, ProcRename, ProcLink, ProcReadDirPlus, ProcCommit:
		return notSupported(), true, nil
	default:
		return nil, false, nil
	}
}

func notSupported() []byte {
	e := xdr.NewEncoder(4)
	e.Uint32(ErrNotSupp)
	return e.Bytes()
}

func (h *Handler) getAttr(d *xdr.Decoder) ([]byte, error) {
	fh, err := decodeHandle(d)
	if err != nil {
		return nil, err
	}
	attr, err := h.backend.GetAttr(fh)
	e := xdr.NewEncoder(96)
	status := mapStatus(err)
	e.Uint32(status)
	if status == OK {
		encodeFattr3(e, attr)
	}
	return e.Bytes(), nil
}

func (h *Handler) setAttr(d *xdr.Decoder) ([]byte, error) {
	fh, err := decodeHandle(d)
	if err != nil {
		return nil, err
	}
	newAttrs, err := decodeSetAttr3(d)
	if err != nil {
		return nil, err
	}
	guard, err := decodeTimeGuard(d)
	if err != nil {
		return nil, err
	}

	before, _ := h.backend.GetAttr(fh)
	after, err := h.backend.SetAttr(fh, newAttrs, guard)

	e := xdr.NewEncoder(96)
	status := mapStatus(err)
	if err != nil && status == ErrInval && guard != nil {
		status = ErrNotSync
	}
	e.Uint32(status)
	if status == OK {
		encodeWccData(e, &before, &after)
	} else {
		encodeWccData(e, &before, nil)
	}
	return e.Bytes(), nil
}

func (h *Handler) lookup(d *xdr.Decoder) ([]byte, error) {
	dirFh, err := decodeHandle(d)
	if err != nil {
		return nil, err
	}
	name, err := decodeFilename(d)
	if err != nil {
		return nil, err
	}

	dirAttr, dirErr := h.backend.GetAttr(dirFh)
	e := xdr.NewEncoder(160)
	if dirErr != nil {
		status := mapStatus(dirErr)
		e.Uint32(status)
		encodePostOpAttr(e, nil)
		return e.Bytes(), nil
	}
	if dirAttr.Type != fsal.TypeDirectory {
		e.Uint32(ErrNotDir)
		encodePostOpAttr(e, &dirAttr)
		return e.Bytes(), nil
	}
	if err := validateName(name); err != nil {
		e.Uint32(mapStatus(err))
		encodePostOpAttr(e, &dirAttr)
		return e.Bytes(), nil
	}

	fh, attr, err := h.backend.Lookup(dirFh, name)
	status := mapStatus(err)
	e.Uint32(status)
	if status == OK {
		encodeHandle(e, fh)
		encodePostOpAttr(e, &attr)
		encodePostOpAttr(e, &dirAttr)
	} else {
		// Failures may still carry dir post_op_attr.
		encodePostOpAttr(e, &dirAttr)
	}
	return e.Bytes(), nil
}

func (h *Handler) access(d *xdr.Decoder, caller fsal.CallerIdentity) ([]byte, error) {
	fh, err := decodeHandle(d)
	if err != nil {
		return nil, err
	}
	mask, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	granted, attr, err := h.backend.Access(fh, mask, caller)
	e := xdr.NewEncoder(96)
	status := mapStatus(err)
	e.Uint32(status)
	if status == OK {
		encodePostOpAttr(e, &attr)
		e.Uint32(granted)
	} else {
		encodePostOpAttr(e, nil)
	}
	return e.Bytes(), nil
}

func (h *Handler) read(d *xdr.Decoder) ([]byte, error) {
	fh, err := decodeHandle(d)
	if err != nil {
		return nil, err
	}
	offset, err := d.Uint64()
	if err != nil {
		return nil, err
	}
	count, err := d.Uint32()
	if err != nil {
		return nil, err
	}

	data, eof, attr, err := h.backend.Read(fh, offset, count)
	e := xdr.NewEncoder(128 + len(data))
	status := mapStatus(err)
	e.Uint32(status)
	if status == OK {
		encodePostOpAttr(e, &attr)
		e.Uint32(uint32(len(data)))
		e.Bool(eof)
		e.VarOpaque(data)
	} else {
		encodePostOpAttr(e, nil)
	}
	return e.Bytes(), nil
}

func (h *Handler) write(d *xdr.Decoder) ([]byte, error) {
	fh, err := decodeHandle(d)
	if err != nil {
		return nil, err
	}
	offset, err := d.Uint64()
	if err != nil {
		return nil, err
	}
	if _, err := d.Uint32(); err != nil { // count (redundant with data length)
		return nil, err
	}
	stableArg, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	data, err := d.VarOpaque(0)
	if err != nil {
		return nil, err
	}

	before, _ := h.backend.GetAttr(fh)
	n, committed, after, err := h.backend.Write(fh, offset, data, fsal.Stable(stableArg))

	e := xdr.NewEncoder(96)
	status := mapStatus(err)
	e.Uint32(status)
	if status == OK {
		encodeWccData(e, &before, &after)
		e.Uint32(n)
		e.Uint32(uint32(committed))
		verf := h.backend.WriteVerifier()
		e.FixedOpaque(verf[:])
	} else {
		encodeWccData(e, &before, nil)
	}
	return e.Bytes(), nil
}

func (h *Handler) create(d *xdr.Decoder) ([]byte, error) {
	dirFh, err := decodeHandle(d)
	if err != nil {
		return nil, err
	}
	name, err := decodeFilename(d)
	if err != nil {
		return nil, err
	}
	mode, err := d.Uint32()
	if err != nil {
		return nil, err
	}

	var attrs fsal.SetAttr
	var verf [8]byte
	if mode == Exclusive {
		v, err := d.FixedOpaque(8)
		if err != nil {
			return nil, err
		}
		copy(verf[:], v)
	} else {
		attrs, err = decodeSetAttr3(d)
		if err != nil {
			return nil, err
		}
	}

	before, _ := h.backend.GetAttr(dirFh)

	e := xdr.NewEncoder(160)
	if verr := validateName(name); verr != nil {
		e.Uint32(mapStatus(verr))
		encodeWccData(e, &before, nil)
		return e.Bytes(), nil
	}

	fh, attr, cerr := h.backend.Create(dirFh, name, fsal.CreateMode(mode), attrs, verf)
	after, _ := h.backend.GetAttr(dirFh)

	status := mapStatus(cerr)
	e.Uint32(status)
	if status == OK {
		e.Bool(true)
		encodeHandle(e, fh)
		encodePostOpAttr(e, &attr)
		encodeWccData(e, &before, &after)
	} else {
		encodeWccData(e, &before, &after)
	}
	return e.Bytes(), nil
}

func (h *Handler) readDir(d *xdr.Decoder) ([]byte, error) {
	dirFh, err := decodeHandle(d)
	if err != nil {
		return nil, err
	}
	cookie, err := d.Uint64()
	if err != nil {
		return nil, err
	}
	cookieverfBytes, err := d.FixedOpaque(8)
	if err != nil {
		return nil, err
	}
	var cookieverf [8]byte
	copy(cookieverf[:], cookieverfBytes)
	count, err := d.Uint32()
	if err != nil {
		return nil, err
	}

	dirAttr, dirErr := h.backend.GetAttr(dirFh)
	if dirErr != nil {
		e := xdr.NewEncoder(16)
		e.Uint32(mapStatus(dirErr))
		encodePostOpAttr(e, nil)
		return e.Bytes(), nil
	}

	entries, newVerf, eof, err := h.backend.ReadDir(dirFh, cookie, cookieverf, count)
	status := mapStatus(err)
	if status == ErrInval && err != nil {
		status = ErrBadCookie
	}
	if status == OK && count > 0 && len(entries) == 0 && !eof {
		status = ErrTooSmall
	}

	e := xdr.NewEncoder(512)
	e.Uint32(status)
	encodePostOpAttr(e, &dirAttr)
	if status != OK {
		return e.Bytes(), nil
	}

	e.FixedOpaque(newVerf[:])
	for _, ent := range entries {
		e.Bool(true)
		e.Uint64(ent.Fileid)
		e.String(ent.Name)
		e.Uint64(ent.Cookie)
	}
	e.Bool(false)
	e.Bool(eof)
	return e.Bytes(), nil
}

func (h *Handler) fsStat(d *xdr.Decoder) ([]byte, error) {
	fh, err := decodeHandle(d)
	if err != nil {
		return nil, err
	}
	attr, attrErr := h.backend.GetAttr(fh)
	stat, err := h.backend.FSStat(fh)
	e := xdr.NewEncoder(128)
	status := mapStatus(err)
	e.Uint32(status)
	if attrErr == nil {
		encodePostOpAttr(e, &attr)
	} else {
		encodePostOpAttr(e, nil)
	}
	if status == OK {
		e.Uint64(stat.TotalBytes)
		e.Uint64(stat.FreeBytes)
		e.Uint64(stat.AvailBytes)
		e.Uint64(stat.TotalFiles)
		e.Uint64(stat.FreeFiles)
		e.Uint64(stat.AvailFiles)
		e.Uint32(stat.InvarSec)
	}
	return e.Bytes(), nil
}

func (h *Handler) fsInfo(d *xdr.Decoder) ([]byte, error) {
	fh, err := decodeHandle(d)
	if err != nil {
		return nil, err
	}
	attr, attrErr := h.backend.GetAttr(fh)
	info, err := h.backend.FSInfo(fh)
	e := xdr.NewEncoder(96)
	status := mapStatus(err)
	e.Uint32(status)
	if attrErr == nil {
		encodePostOpAttr(e, &attr)
	} else {
		encodePostOpAttr(e, nil)
	}
	if status == OK {
		e.Uint32(info.RtMax)
		e.Uint32(info.RtPref)
		e.Uint32(info.RtMult)
		e.Uint32(info.WtMax)
		e.Uint32(info.WtPref)
		e.Uint32(info.WtMult)
		e.Uint32(info.DtPref)
		e.Uint64(info.MaxFileSize)
		e.Uint32(info.TimeDeltaSec)
		e.Uint32(info.TimeDeltaNsec)
		e.Uint32(info.Properties)
	}
	return e.Bytes(), nil
}

func (h *Handler) pathConf(d *xdr.Decoder) ([]byte, error) {
	fh, err := decodeHandle(d)
	if err != nil {
		return nil, err
	}
	attr, attrErr := h.backend.GetAttr(fh)
	conf, err := h.backend.PathConf(fh)
	e := xdr.NewEncoder(64)
	status := mapStatus(err)
	e.Uint32(status)
	if attrErr == nil {
		encodePostOpAttr(e, &attr)
	} else {
		encodePostOpAttr(e, nil)
	}
	if status == OK {
		e.Uint32(conf.LinkMax)
		e.Uint32(conf.NameMax)
		e.Bool(conf.NoTrunc)
		e.Bool(conf.ChownRestricted)
		e.Bool(conf.CaseInsensitive)
		e.Bool(conf.CasePreserving)
	}
	return e.Bytes(), nil
}
