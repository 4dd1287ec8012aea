// Package memory implements an in-memory reference FSAL backend. It is
// intentionally the simplest backend: no persistence, no POSIX permission
// enforcement beyond Access's owner/group/other check. The test suite and
// the end-to-end scenarios run against this backend.
package memory

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nfsd3/nfsd3/internal/fsal"
)

// handleLen is fileid(8) + check(8): well under fsal.MaxHandleLen.
const handleLen = 16

type inode struct {
	fileid uint64
	attr   fsal.Attr
	data   []byte // regular file content
	symlinkTarget string

	// children maps name -> child fileid, meaningful for directories only.
	children map[string]uint64
	parent   uint64
}

// Backend is the in-memory fsal.Backend implementation.
type Backend struct {
	mu     sync.RWMutex
	secret [32]byte
	nodes  map[uint64]*inode
	root   uint64
	nextID uint64

	exports     []fsal.Export
	writeVerf   [8]byte
	cookieverf  map[uint64][8]byte // per-directory current cookieverf

	// pendingVerifiers holds the EXCLUSIVE-create verifier for a fileid
	// until its first real WRITE, letting a retried CREATE recognize its own
	// verifier without aliasing any wire-visible attribute.
	pendingVerifiers map[uint64][8]byte
}

// New creates a Backend with a root directory and the given static exports.
// All exports share the same root directory in this minimal reference
// implementation — a real backend would mount each export at its own
// subtree.
func New(exports []fsal.Export) *Backend {
	b := &Backend{
		nodes:            make(map[uint64]*inode),
		exports:          exports,
		cookieverf:       make(map[uint64][8]byte),
		pendingVerifiers: make(map[uint64][8]byte),
	}
	var seed [32]byte
	rootUUID := uuid.New()
	copy(seed[:16], rootUUID[:])
	b.secret = sha256.Sum256(seed[:])

	now := time.Now()
	rootID := b.allocateID()
	b.root = rootID
	b.nodes[rootID] = &inode{
		fileid:   rootID,
		children: make(map[string]uint64),
		attr: fsal.Attr{
			Type:   fsal.TypeDirectory,
			Mode:   0755,
			Nlink:  2,
			Fileid: rootID,
			Fsid:   1,
			Atime:  toFSALTime(now),
			Mtime:  toFSALTime(now),
			Ctime:  toFSALTime(now),
		},
	}

	var verf [8]byte
	binary.BigEndian.PutUint64(verf[:], uint64(now.UnixNano()))
	b.writeVerf = verf
	return b
}

func toFSALTime(t time.Time) fsal.Time {
	return fsal.Time{Seconds: uint32(t.Unix()), Nseconds: uint32(t.Nanosecond())}
}

func (b *Backend) allocateID() uint64 {
	b.nextID++
	// Mix in a random component so ids aren't trivially guessable/sequential
	// across restarts, even though this backend doesn't persist across
	// restarts anyway.
	u := uuid.New()
	mix := binary.BigEndian.Uint64(u[:8])
	return b.nextID ^ (mix & 0x0000ffffffffffff)
}

func (b *Backend) encodeHandle(fileid uint64) fsal.Handle {
	h := make([]byte, handleLen)
	binary.BigEndian.PutUint64(h[:8], fileid)
	copy(h[8:], b.checksum(fileid))
	return h
}

func (b *Backend) checksum(fileid uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], fileid)
	sum := sha256.New()
	sum.Write(b.secret[:])
	sum.Write(buf[:])
	return sum.Sum(nil)[:8]
}

// decodeHandle validates self-consistency (BADHANDLE on mismatch) and
// resolves to a live inode (ErrStale if the fileid was never minted or has
// since been removed).
func (b *Backend) decodeHandle(h fsal.Handle) (*inode, error) {
	if len(h) != handleLen {
		return nil, fsal.New(fsal.ErrBadHandle, "handle has wrong length")
	}
	fileid := binary.BigEndian.Uint64(h[:8])
	want := b.checksum(fileid)
	got := h[8:]
	if !constantTimeEqual(want, got) {
		return nil, fsal.New(fsal.ErrBadHandle, "handle failed integrity check")
	}
	b.mu.RLock()
	n, ok := b.nodes[fileid]
	b.mu.RUnlock()
	if !ok {
		return nil, fsal.New(fsal.ErrStale, "handle no longer resolves to a live object")
	}
	return n, nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

func (b *Backend) Exports() []fsal.Export { return b.exports }

func (b *Backend) RootHandle(exportPath string) (fsal.Handle, error) {
	for _, e := range b.exports {
		if e.Path == exportPath {
			b.mu.RLock()
			defer b.mu.RUnlock()
			return b.encodeHandle(b.root), nil
		}
	}
	return nil, fsal.New(fsal.ErrNotFound, "no such export")
}

func (b *Backend) WriteVerifier() [8]byte { return b.writeVerf }

func (b *Backend) GetAttr(h fsal.Handle) (fsal.Attr, error) {
	n, err := b.decodeHandle(h)
	if err != nil {
		return fsal.Attr{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return n.attr, nil
}

func (b *Backend) SetAttr(h fsal.Handle, s fsal.SetAttr, guardCtime *fsal.Time) (fsal.Attr, error) {
	n, err := b.decodeHandle(h)
	if err != nil {
		return fsal.Attr{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if guardCtime != nil {
		if n.attr.Ctime != *guardCtime {
			return fsal.Attr{}, fsal.New(fsal.ErrInvalid, "setattr guard mismatch")
		}
	}
	if s.SetMode {
		n.attr.Mode = s.Mode
	}
	if s.SetUID {
		n.attr.UID = s.UID
	}
	if s.SetGID {
		n.attr.GID = s.GID
	}
	if s.SetSize {
		n.attr.Size = s.Size
		if uint64(len(n.data)) > s.Size {
			n.data = n.data[:s.Size]
		} else if uint64(len(n.data)) < s.Size {
			grown := make([]byte, s.Size)
			copy(grown, n.data)
			n.data = grown
		}
	}
	now := time.Now()
	if s.SetAtime {
		if s.AtimeToServer {
			n.attr.Atime = toFSALTime(now)
		} else {
			n.attr.Atime = s.Atime
		}
	}
	if s.SetMtime {
		if s.MtimeToServer {
			n.attr.Mtime = toFSALTime(now)
		} else {
			n.attr.Mtime = s.Mtime
		}
	}
	n.attr.Ctime = toFSALTime(now)
	return n.attr, nil
}

func (b *Backend) Lookup(dir fsal.Handle, name string) (fsal.Handle, fsal.Attr, error) {
	dn, err := b.decodeHandle(dir)
	if err != nil {
		return nil, fsal.Attr{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if dn.attr.Type != fsal.TypeDirectory {
		return nil, fsal.Attr{}, fsal.New(fsal.ErrNotDir, "lookup on non-directory")
	}
	childID, ok := dn.children[name]
	if !ok {
		return nil, fsal.Attr{}, fsal.New(fsal.ErrNotFound, "no such entry")
	}
	child := b.nodes[childID]
	return b.encodeHandle(childID), child.attr, nil
}

func (b *Backend) Access(h fsal.Handle, mask uint32, caller fsal.CallerIdentity) (uint32, fsal.Attr, error) {
	n, err := b.decodeHandle(h)
	if err != nil {
		return 0, fsal.Attr{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return grantedMask(n.attr, mask, caller), n.attr, nil
}

// grantedMask is a minimal owner/group/other POSIX-mode check, more
// structured than "grant everything" but still far short of full
// POSIX ACL enforcement.
func grantedMask(a fsal.Attr, requested uint32, caller fsal.CallerIdentity) uint32 {
	if caller.Anonymous {
		return requested & otherBits(a)
	}
	var bits uint32
	switch {
	case caller.UID == a.UID:
		bits = (a.Mode >> 6) & 0o7
	case inGroup(caller, a.GID):
		bits = (a.Mode >> 3) & 0o7
	default:
		bits = a.Mode & 0o7
	}
	var granted uint32
	const (
		nfsRead    = 0x0001
		nfsLookup  = 0x0002
		nfsModify  = 0x0004
		nfsExtend  = 0x0008
		nfsDelete  = 0x0010
		nfsExecute = 0x0020
	)
	if bits&0o4 != 0 {
		granted |= nfsRead | nfsLookup
	}
	if bits&0o2 != 0 {
		granted |= nfsModify | nfsExtend | nfsDelete
	}
	if bits&0o1 != 0 {
		granted |= nfsExecute
	}
	return requested & granted
}

func otherBits(a fsal.Attr) uint32 {
	const all = 0x003f
	if a.Mode&0o7 == 0o7 {
		return all
	}
	return 0
}

func inGroup(caller fsal.CallerIdentity, gid uint32) bool {
	if caller.GID == gid {
		return true
	}
	for _, g := range caller.GIDs {
		if g == gid {
			return true
		}
	}
	return false
}

func (b *Backend) Read(h fsal.Handle, offset uint64, count uint32) ([]byte, bool, fsal.Attr, error) {
	n, err := b.decodeHandle(h)
	if err != nil {
		return nil, false, fsal.Attr{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n.attr.Type == fsal.TypeDirectory {
		return nil, false, fsal.Attr{}, fsal.New(fsal.ErrIsDir, "read on directory")
	}
	size := uint64(len(n.data))
	if offset >= size {
		return nil, true, n.attr, nil
	}
	end := offset + uint64(count)
	if end > size {
		end = size
	}
	data := make([]byte, end-offset)
	copy(data, n.data[offset:end])
	return data, end >= size, n.attr, nil
}

func (b *Backend) Write(h fsal.Handle, offset uint64, data []byte, stable fsal.Stable) (uint32, fsal.Stable, fsal.Attr, error) {
	n, err := b.decodeHandle(h)
	if err != nil {
		return 0, 0, fsal.Attr{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if n.attr.Type != fsal.TypeRegular {
		return 0, 0, fsal.Attr{}, fsal.New(fsal.ErrInvalid, "write to non-regular file")
	}
	end := offset + uint64(len(data))
	if end > uint64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[offset:end], data)
	n.attr.Size = uint64(len(n.data))
	n.attr.Used = n.attr.Size
	n.attr.Mtime = toFSALTime(time.Now())
	n.attr.Ctime = n.attr.Mtime
	delete(b.pendingVerifiers, n.fileid)
	return uint32(len(data)), fsal.FileSync, n.attr, nil
}

func (b *Backend) Create(dir fsal.Handle, name string, mode fsal.CreateMode, attr fsal.SetAttr, verf [8]byte) (fsal.Handle, fsal.Attr, error) {
	dn, err := b.decodeHandle(dir)
	if err != nil {
		return nil, fsal.Attr{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if dn.attr.Type != fsal.TypeDirectory {
		return nil, fsal.Attr{}, fsal.New(fsal.ErrNotDir, "create in non-directory")
	}

	if existingID, ok := dn.children[name]; ok {
		existing := b.nodes[existingID]
		switch mode {
		case fsal.Guarded:
			return nil, fsal.Attr{}, fsal.New(fsal.ErrExists, "guarded create collision")
		case fsal.Exclusive:
			if pending, ok := b.pendingVerifiers[existingID]; ok && pending == verf {
				return b.encodeHandle(existingID), existing.attr, nil
			}
			return nil, fsal.Attr{}, fsal.New(fsal.ErrExists, "exclusive create verifier mismatch")
		default: // Unchecked: truncate and reuse
			existing.data = nil
			existing.attr.Size = 0
			existing.attr.Used = 0
			applySetAttr(&existing.attr, attr)
			return b.encodeHandle(existingID), existing.attr, nil
		}
	}

	now := time.Now()
	id := b.allocateID()
	n := &inode{
		fileid: id,
		attr: fsal.Attr{
			Type:   fsal.TypeRegular,
			Mode:   0644,
			Nlink:  1,
			Fileid: id,
			Fsid:   1,
			Atime:  toFSALTime(now),
			Mtime:  toFSALTime(now),
			Ctime:  toFSALTime(now),
		},
		parent: dn.fileid,
	}
	if mode == fsal.Exclusive {
		b.pendingVerifiers[id] = verf
	}
	applySetAttr(&n.attr, attr)
	b.nodes[id] = n
	dn.children[name] = id
	dn.attr.Mtime = toFSALTime(now)
	dn.attr.Ctime = dn.attr.Mtime
	return b.encodeHandle(id), n.attr, nil
}

func applySetAttr(a *fsal.Attr, s fsal.SetAttr) {
	if s.SetMode {
		a.Mode = s.Mode
	}
	if s.SetUID {
		a.UID = s.UID
	}
	if s.SetGID {
		a.GID = s.GID
	}
}

func (b *Backend) ReadDir(dir fsal.Handle, cookie uint64, cookieverf [8]byte, byteBudget uint32) ([]fsal.DirEntry, [8]byte, bool, error) {
	dn, err := b.decodeHandle(dir)
	if err != nil {
		return nil, [8]byte{}, false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if dn.attr.Type != fsal.TypeDirectory {
		return nil, [8]byte{}, false, fsal.New(fsal.ErrNotDir, "readdir on non-directory")
	}

	currentVerf := b.dirVerf(dn)
	if cookie != 0 && cookieverf != currentVerf {
		return nil, [8]byte{}, false, fsal.New(fsal.ErrInvalid, "bad_cookie")
	}

	names := make([]string, 0, len(dn.children)+2)
	names = append(names, ".", "..")
	for name := range dn.children {
		names = append(names, name)
	}
	sortStrings(names)

	var entries []fsal.DirEntry
	var used uint32
	const perEntryOverhead = 32
	i := 0
	for ; i < len(names); i++ {
		entryCookie := uint64(i + 1)
		if entryCookie <= cookie {
			continue
		}
		name := names[i]
		var fileid uint64
		switch name {
		case ".":
			fileid = dn.fileid
		case "..":
			fileid = dn.parent
		default:
			fileid = dn.children[name]
		}
		if byteBudget > 0 && used+perEntryOverhead+uint32(len(name)) > byteBudget {
			return entries, currentVerf, false, nil
		}
		used += perEntryOverhead + uint32(len(name))
		entries = append(entries, fsal.DirEntry{Fileid: fileid, Name: name, Cookie: entryCookie})
	}
	return entries, currentVerf, true, nil
}

func (b *Backend) dirVerf(dn *inode) [8]byte {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], dn.fileid^uint64(dn.attr.Mtime.Seconds))
	return v
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func (b *Backend) FSStat(h fsal.Handle) (fsal.FSStat, error) {
	if _, err := b.decodeHandle(h); err != nil {
		return fsal.FSStat{}, err
	}
	return fsal.FSStat{
		TotalBytes: 1 << 40,
		FreeBytes:  1 << 39,
		AvailBytes: 1 << 39,
		TotalFiles: 1 << 20,
		FreeFiles:  1 << 19,
		AvailFiles: 1 << 19,
		InvarSec:   0,
	}, nil
}

func (b *Backend) FSInfo(h fsal.Handle) (fsal.FSInfo, error) {
	if _, err := b.decodeHandle(h); err != nil {
		return fsal.FSInfo{}, err
	}
	const (
		fsfLink        = 0x0001
		fsfSymlink     = 0x0002
		fsfHomogeneous = 0x0008
		fsfCanSetTime  = 0x0010
	)
	return fsal.FSInfo{
		RtMax: 1 << 20, RtPref: 1 << 16, RtMult: 4096,
		WtMax: 1 << 20, WtPref: 1 << 16, WtMult: 4096,
		DtPref:      1 << 13,
		MaxFileSize: 1 << 40,
		Properties:  fsfLink | fsfSymlink | fsfHomogeneous | fsfCanSetTime,
	}, nil
}

func (b *Backend) PathConf(h fsal.Handle) (fsal.PathConf, error) {
	if _, err := b.decodeHandle(h); err != nil {
		return fsal.PathConf{}, err
	}
	return fsal.PathConf{
		LinkMax:         1,
		NameMax:         255,
		NoTrunc:         true,
		ChownRestricted: true,
		CaseInsensitive: false,
		CasePreserving:  true,
	}, nil
}
