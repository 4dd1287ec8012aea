package nfs

import (
	"github.com/nfsd3/nfsd3/internal/fsal"
	"github.com/nfsd3/nfsd3/internal/xdr"
)

// encodeFattr3 writes the fixed 84-byte fattr3 record.
func encodeFattr3(e *xdr.Encoder, a fsal.Attr) {
	e.Uint32(uint32(a.Type))
	e.Uint32(a.Mode)
	e.Uint32(a.Nlink)
	e.Uint32(a.UID)
	e.Uint32(a.GID)
	e.Uint64(a.Size)
	e.Uint64(a.Used)
	e.Uint32(a.Rdev.Major)
	e.Uint32(a.Rdev.Minor)
	e.Uint64(a.Fsid)
	e.Uint64(a.Fileid)
	encodeTime(e, a.Atime)
	encodeTime(e, a.Mtime)
	encodeTime(e, a.Ctime)
}

func encodeTime(e *xdr.Encoder, t fsal.Time) {
	e.Uint32(t.Seconds)
	e.Uint32(t.Nseconds)
}

func decodeTime(d *xdr.Decoder) (fsal.Time, error) {
	sec, err := d.Uint32()
	if err != nil {
		return fsal.Time{}, err
	}
	nsec, err := d.Uint32()
	if err != nil {
		return fsal.Time{}, err
	}
	return fsal.Time{Seconds: sec, Nseconds: nsec}, nil
}

// encodePostOpAttr writes post_op_attr: FALSE (4 bytes) when attr is nil,
// else TRUE followed by the 84-byte body.
func encodePostOpAttr(e *xdr.Encoder, attr *fsal.Attr) {
	if attr == nil {
		e.Bool(false)
		return
	}
	e.Bool(true)
	encodeFattr3(e, *attr)
}

// encodePreOpAttr writes pre_op_attr: { size, mtime, ctime } only.
func encodePreOpAttr(e *xdr.Encoder, attr *fsal.Attr) {
	if attr == nil {
		e.Bool(false)
		return
	}
	e.Bool(true)
	e.Uint64(attr.Size)
	encodeTime(e, attr.Mtime)
	encodeTime(e, attr.Ctime)
}

// encodeWccData writes the { before: pre_op_attr, after: post_op_attr } pair
// that accompanies every mutating reply.
func encodeWccData(e *xdr.Encoder, before, after *fsal.Attr) {
	encodePreOpAttr(e, before)
	encodePostOpAttr(e, after)
}

// decodeSetAttr3 decodes sattr3's six discriminator-tagged fields: a
// variable-length union whose serialized length depends on which fields are
// present, so a fixed-layout decode/encode here would be a wire-format bug,
// not a convenience.
func decodeSetAttr3(d *xdr.Decoder) (fsal.SetAttr, error) {
	var s fsal.SetAttr

	setMode, err := d.Bool()
	if err != nil {
		return s, err
	}
	if setMode {
		mode, err := d.Uint32()
		if err != nil {
			return s, err
		}
		s.SetMode, s.Mode = true, mode
	}

	setUID, err := d.Bool()
	if err != nil {
		return s, err
	}
	if setUID {
		uid, err := d.Uint32()
		if err != nil {
			return s, err
		}
		s.SetUID, s.UID = true, uid
	}

	setGID, err := d.Bool()
	if err != nil {
		return s, err
	}
	if setGID {
		gid, err := d.Uint32()
		if err != nil {
			return s, err
		}
		s.SetGID, s.GID = true, gid
	}

	setSize, err := d.Bool()
	if err != nil {
		return s, err
	}
	if setSize {
		size, err := d.Uint64()
		if err != nil {
			return s, err
		}
		s.SetSize, s.Size = true, size
	}

	// atime: time_how3 { DONT_CHANGE=0, SET_TO_SERVER_TIME=1, SET_TO_CLIENT_TIME=2 }
	atimeHow, err := d.Uint32()
	if err != nil {
		return s, err
	}
	switch atimeHow {
	case 0: // DONT_CHANGE
	case 1: // SET_TO_SERVER_TIME
		s.SetAtime, s.AtimeToServer = true, true
	case 2: // SET_TO_CLIENT_TIME
		t, err := decodeTime(d)
		if err != nil {
			return s, err
		}
		s.SetAtime, s.Atime = true, t
	default:
		return s, xdr.ErrBadDiscriminator
	}

	mtimeHow, err := d.Uint32()
	if err != nil {
		return s, err
	}
	switch mtimeHow {
	case 0:
	case 1:
		s.SetMtime, s.MtimeToServer = true, true
	case 2:
		t, err := decodeTime(d)
		if err != nil {
			return s, err
		}
		s.SetMtime, s.Mtime = true, t
	default:
		return s, xdr.ErrBadDiscriminator
	}

	return s, nil
}

// decodeTimeGuard decodes SETATTR's optional pre-op ctime guard:
// sattrguard3 = union switch (bool check) { case TRUE: nfstime3; default: void }.
func decodeTimeGuard(d *xdr.Decoder) (*fsal.Time, error) {
	check, err := d.Bool()
	if err != nil {
		return nil, err
	}
	if !check {
		return nil, nil
	}
	t, err := decodeTime(d)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// decodeHandle decodes an fhandle3 (opaque<=64>).
func decodeHandle(d *xdr.Decoder) (fsal.Handle, error) {
	b, err := d.VarOpaque(MaxHandleLen)
	if err != nil {
		return nil, err
	}
	return fsal.Handle(b), nil
}

func encodeHandle(e *xdr.Encoder, h fsal.Handle) {
	e.VarOpaque(h)
}

// decodeFilename decodes a filename3. The length bound is left to
// validateName rather than enforced here: an over-length name is an
// application-layer NFS3ERR_NAMETOOLONG in a normal reply, not a decode
// failure that would bounce the whole call as GARBAGE_ARGS.
func decodeFilename(d *xdr.Decoder) (string, error) {
	name, err := d.String(0)
	if err != nil {
		return "", err
	}
	return name, nil
}

func validateName(name string) error {
	if name == "" {
		return fsal.New(fsal.ErrInvalid, "empty filename")
	}
	if len(name) > MaxNameLen {
		return fsal.New(fsal.ErrNameTooLong, "filename too long")
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return fsal.New(fsal.ErrInvalid, "filename contains '/'")
		}
	}
	return nil
}
