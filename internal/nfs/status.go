package nfs

import "github.com/nfsd3/nfsd3/internal/fsal"

// mapStatus translates a backend error into an nfsstat3 value: all FSAL
// errors are mapped into NFS3ERR codes at the handler boundary.
func mapStatus(err error) uint32 {
	if err == nil {
		return OK
	}
	switch fsal.CodeOf(err) {
	case fsal.ErrNotFound:
		return ErrNoEnt
	case fsal.ErrNotDir:
		return ErrNotDir
	case fsal.ErrIsDir:
		return ErrIsDir
	case fsal.ErrExists:
		return ErrExist
	case fsal.ErrNoSpace:
		return ErrNoSpc
	case fsal.ErrAccess:
		return ErrAccess
	case fsal.ErrPerm:
		return ErrPerm
	case fsal.ErrInvalid:
		return ErrInval
	case fsal.ErrTooBig:
		return ErrFBig
	case fsal.ErrReadOnly:
		return ErrRofs
	case fsal.ErrStale:
		return ErrStale
	case fsal.ErrBadHandle:
		return ErrBadHandle
	case fsal.ErrNotSupported:
		return ErrNotSupp
	case fsal.ErrNameTooLong:
		return ErrNameTooLong
	case fsal.ErrNotEmpty:
		return ErrNotEmpty
	default:
		return ErrIO
	}
}
