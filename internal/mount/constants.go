// Package mount implements the MOUNT v3 protocol (RFC 1813 appendix I):
// NULL, MNT, DUMP, UMNT, UMNTALL, EXPORT. The mount table it maintains is
// advisory only — NFS operations never consult it.
package mount

// Procedure numbers.
const (
	ProcNull    = 0
	ProcMnt     = 1
	ProcDump    = 2
	ProcUmnt    = 3
	ProcUmntAll = 4
	ProcExport  = 5
)

// Status codes (mountstat3).
const (
	OK           = 0
	ErrPerm      = 1
	ErrNoEnt     = 2
	ErrIO        = 5
	ErrAccess    = 13
	ErrNotDir    = 20
	ErrInval     = 22
	ErrNameTooLong = 63
	ErrNotSupp   = 10004
	ErrServerFault = 10006
)

// MaxDirPathLen bounds dirpath per RFC 1813 (MNTPATHLEN).
const MaxDirPathLen = 1024

// AuthFlavors advertised on a successful MNT: AUTH_NONE and AUTH_SYS.
var AuthFlavors = []int32{0, 1}
