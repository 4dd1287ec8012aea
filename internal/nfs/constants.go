// Package nfs implements the NFS version 3 protocol handler (RFC 1813): 12
// procedures fully implemented, plus NFS3ERR_NOTSUPP stubs for the
// remaining 10.
package nfs

// Procedure numbers (RFC 1813 section 3.3).
const (
	ProcNull        = 0
	ProcGetAttr     = 1
	ProcSetAttr     = 2
	ProcLookup      = 3
	ProcAccess      = 4
	ProcReadLink    = 5
	ProcRead        = 6
	ProcWrite       = 7
	ProcCreate      = 8
	ProcMkdir       = 9
	ProcSymlink     = 10
	ProcMknod       = 11
	ProcRemove      = 12
	ProcRmdir       = 13
	ProcRename      = 14
	ProcLink        = 15
	ProcReadDir     = 16
	ProcReadDirPlus = 17
	ProcFSStat      = 18
	ProcFSInfo      = 19
	ProcPathConf    = 20
	ProcCommit      = 21
)

// Status codes (nfsstat3, RFC 1813 section 2.6).
const (
	OK             = 0
	ErrPerm        = 1
	ErrNoEnt       = 2
	ErrIO          = 5
	ErrNxIO        = 6
	ErrAccess      = 13
	ErrExist       = 17
	ErrXDev        = 18
	ErrNoDev       = 19
	ErrNotDir      = 20
	ErrIsDir       = 21
	ErrInval       = 22
	ErrFBig        = 27
	ErrNoSpc       = 28
	ErrRofs        = 30
	ErrMLink       = 31
	ErrNameTooLong = 63
	ErrNotEmpty    = 66
	ErrDQuot       = 69
	ErrStale       = 70
	ErrRemote      = 71
	ErrBadHandle   = 10001
	ErrNotSync     = 10002
	ErrBadCookie   = 10003
	ErrNotSupp     = 10004
	ErrTooSmall    = 10005
	ErrServerFault = 10006
	ErrBadType     = 10007
	ErrJukebox     = 10008
)

// File types (ftype3, RFC 1813 section 2.5.1).
const (
	TypeRegular = 1
	TypeDir     = 2
	TypeBlock   = 3
	TypeChar    = 4
	TypeSymlink = 5
	TypeSocket  = 6
	TypeFifo    = 7
)

// FSINFO properties bitmask (RFC 1813 section 3.3.19).
const (
	FSFLink        = 0x0001
	FSFSymlink     = 0x0002
	FSFHomogeneous = 0x0008
	FSFCanSetTime  = 0x0010
)

// ACCESS request/granted bits (RFC 1813 section 3.3.4).
const (
	AccessRead    = 0x0001
	AccessLookup  = 0x0002
	AccessModify  = 0x0004
	AccessExtend  = 0x0008
	AccessDelete  = 0x0010
	AccessExecute = 0x0020
)

// WRITE stability (stable_how, RFC 1813 section 3.3.7).
const (
	Unstable = 0
	DataSync = 1
	FileSync = 2
)

// CREATE modes (createmode3, RFC 1813 section 3.3.8).
const (
	Unchecked = 0
	Guarded   = 1
	Exclusive = 2
)

// MaxNameLen bounds filename3 (RFC 1813: NFS3_MAXNAMLEN typically 255).
const MaxNameLen = 255

// MaxHandleLen bounds fhandle3 (RFC 1813 section 2.3.3: NFS3_FHSIZE = 64).
const MaxHandleLen = 64
