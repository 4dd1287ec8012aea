// Package fsal defines the Filesystem Abstraction Layer contract NFS and
// MOUNT handlers consume. A concrete backend (see fsal/memory, fsal/badger)
// supplies the actual storage; the handlers never reach past this
// interface.
package fsal

import "errors"

// FileType enumerates the NFS file types (fattr3.type, RFC 1813 2.5.1).
type FileType uint32

const (
	TypeRegular FileType = iota + 1
	TypeDirectory
	TypeBlock
	TypeChar
	TypeSymlink
	TypeSocket
	TypeFifo
)

// Handle is an opaque, server-minted file handle. The core treats it as a
// byte string; a backend is free to encode whatever identity it needs
// inside, provided it is self-validating (BADHANDLE vs STALE, see Backend
// below) and never exceeds MaxHandleLen.
type Handle []byte

// MaxHandleLen is the wire maximum for fhandle3 (RFC 1813 2.3.3).
const MaxHandleLen = 64

// SpecData carries device major/minor numbers for special files.
type SpecData struct {
	Major, Minor uint32
}

// Time is a seconds+nanoseconds timestamp (nfstime3).
type Time struct {
	Seconds  uint32
	Nseconds uint32
}

// Attr is the full fattr3 record a backend reports for an object.
type Attr struct {
	Type   FileType
	Mode   uint32
	Nlink  uint32
	UID    uint32
	GID    uint32
	Size   uint64
	Used   uint64
	Rdev   SpecData
	Fsid   uint64
	Fileid uint64
	Atime  Time
	Mtime  Time
	Ctime  Time
}

// SetAttr carries the settable fields of sattr3; a false Set* flag means
// "do not change".
type SetAttr struct {
	SetMode bool
	Mode    uint32
	SetUID  bool
	UID     uint32
	SetGID  bool
	GID     uint32
	SetSize bool
	Size    uint64

	// Atime/Mtime follow sattr3's three-way time_how discriminator.
	SetAtime       bool
	AtimeToServer  bool // true: SET_TO_SERVER_TIME; false with SetAtime: SET_TO_CLIENT_TIME
	Atime          Time
	SetMtime       bool
	MtimeToServer  bool
	Mtime          Time
}

// CallerIdentity is the AUTH_SYS-derived (or anonymous) caller used for
// access decisions; the mount table itself is advisory and never consulted
// for authorization.
type CallerIdentity struct {
	Anonymous bool
	UID       uint32
	GID       uint32
	GIDs      []uint32
}

// Stable mirrors the WRITE stability argument (RFC 1813 3.3.7).
type Stable uint32

const (
	Unstable Stable = iota
	DataSync
	FileSync
)

// CreateMode mirrors createmode3 (RFC 1813 3.3.8).
type CreateMode uint32

const (
	Unchecked CreateMode = iota
	Guarded
	Exclusive
)

// FSStat is the dynamic filesystem usage snapshot (FSSTAT).
type FSStat struct {
	TotalBytes, FreeBytes, AvailBytes uint64
	TotalFiles, FreeFiles, AvailFiles uint64
	InvarSec                         uint32
}

// FSInfo is the static filesystem capability snapshot (FSINFO).
type FSInfo struct {
	RtMax, RtPref, RtMult uint32
	WtMax, WtPref, WtMult uint32
	DtPref                uint32
	MaxFileSize           uint64
	TimeDeltaSec          uint32
	TimeDeltaNsec         uint32
	Properties            uint32
}

// PathConf mirrors the PATHCONF result.
type PathConf struct {
	LinkMax          uint32
	NameMax          uint32
	NoTrunc          bool
	ChownRestricted  bool
	CaseInsensitive  bool
	CasePreserving   bool
}

// DirEntry is one READDIR result row.
type DirEntry struct {
	Fileid uint64
	Name   string
	Cookie uint64
}

// Export describes one exported path.
type Export struct {
	Path     string
	ReadOnly bool
}

// Error is the backend error vocabulary the NFS/MOUNT handlers map to
// protocol status codes at the handler boundary.
type Error struct {
	Code ErrorCode
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

type ErrorCode int

const (
	ErrUnknown ErrorCode = iota
	ErrNotFound
	ErrNotDir
	ErrIsDir
	ErrExists
	ErrNoSpace
	ErrAccess
	ErrPerm
	ErrInvalid
	ErrTooBig
	ErrReadOnly
	ErrStale
	ErrBadHandle
	ErrIO
	ErrNotSupported
	ErrNameTooLong
	ErrNotEmpty
)

func New(code ErrorCode, msg string) *Error { return &Error{Code: code, Msg: msg} }

// As helps callers pattern-match backend errors without importing errors
// package boilerplate at every call site.
func CodeOf(err error) ErrorCode {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ErrUnknown
}

// Backend is the minimal capability set an NFS/MOUNT core requires.
// Implementations: fsal/memory (the reference backend the test suite runs
// against) and fsal/badger (a persistent, restart-stable backend).
type Backend interface {
	// Exports returns the static, startup-configured export set.
	Exports() []Export

	// RootHandle returns the handle of the root directory of the named
	// export, or ErrNotFound if no such export exists.
	RootHandle(exportPath string) (Handle, error)

	GetAttr(h Handle) (Attr, error)
	SetAttr(h Handle, s SetAttr, guardCtime *Time) (Attr, error)
	Lookup(dir Handle, name string) (Handle, Attr, error)
	Access(h Handle, mask uint32, caller CallerIdentity) (granted uint32, attr Attr, err error)
	Read(h Handle, offset uint64, count uint32) (data []byte, eof bool, attr Attr, err error)
	Write(h Handle, offset uint64, data []byte, stable Stable) (count uint32, committed Stable, attr Attr, err error)
	Create(dir Handle, name string, mode CreateMode, attr SetAttr, verf [8]byte) (Handle, Attr, error)
	ReadDir(dir Handle, cookie uint64, cookieverf [8]byte, byteBudget uint32) (entries []DirEntry, newVerf [8]byte, eof bool, err error)
	FSStat(h Handle) (FSStat, error)
	FSInfo(h Handle) (FSInfo, error)
	PathConf(h Handle) (PathConf, error)

	// WriteVerifier returns the boot-instance verifier clients use to
	// detect server restart across WRITE calls.
	WriteVerifier() [8]byte
}
