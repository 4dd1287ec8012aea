// Package record implements RFC 5531 section 11 record marking: the framing
// ONC RPC uses atop a byte stream like TCP, where a stream of XDR messages
// is broken into one or more length-prefixed fragments.
package record

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// DefaultMaxRecordSize is the default cap on the total reassembled size of
// a single RPC message.
const DefaultMaxRecordSize = 32 * 1024 * 1024

// lastFragmentFlag is the high bit of a fragment header; when set, this
// fragment completes the record.
const lastFragmentFlag = uint32(1) << 31

var (
	// ErrConnectionClosed is returned by ReadRecord on a clean EOF between
	// records — this is the normal way a client goes away.
	ErrConnectionClosed = errors.New("record: connection closed")

	// ErrTruncated is returned on EOF in the middle of a record.
	ErrTruncated = errors.New("record: truncated mid-record")

	// ErrOversized is returned when the accumulated record exceeds the
	// configured maximum.
	ErrOversized = errors.New("record: oversized record")

	// ErrInvalidHeader is returned when a non-last fragment declares zero
	// length.
	ErrInvalidHeader = errors.New("record: invalid fragment header")
)

// Framer reads and writes record-marked RPC messages on a single
// connection. It is not safe for concurrent reads, and not safe for
// concurrent writes — callers serialize writes with their own lock.
type Framer struct {
	r          *bufio.Reader
	w          io.Writer
	maxRecord  uint32
	buf        []byte // reusable reassembly buffer
}

// NewFramer wraps r/w with a maximum record size of maxRecord bytes (0
// selects DefaultMaxRecordSize).
func NewFramer(r io.Reader, w io.Writer, maxRecord uint32) *Framer {
	if maxRecord == 0 {
		maxRecord = DefaultMaxRecordSize
	}
	return &Framer{
		r:         bufio.NewReaderSize(r, 64*1024),
		w:         w,
		maxRecord: maxRecord,
		buf:       make([]byte, 0, 4096),
	}
}

// ReadRecord reads one complete RPC message: the concatenation of fragment
// payloads up to and including the fragment whose header has the
// last-fragment bit set.
func (f *Framer) ReadRecord() ([]byte, error) {
	f.buf = f.buf[:0]
	first := true

	for {
		var hdr [4]byte
		_, err := io.ReadFull(f.r, hdr[:])
		if err != nil {
			if err == io.EOF && first {
				return nil, ErrConnectionClosed
			}
			return nil, ErrTruncated
		}
		first = false

		word := binary.BigEndian.Uint32(hdr[:])
		last := word&lastFragmentFlag != 0
		length := word &^ lastFragmentFlag

		if length == 0 && !last {
			return nil, ErrInvalidHeader
		}

		if uint64(len(f.buf))+uint64(length) > uint64(f.maxRecord) {
			return nil, ErrOversized
		}

		start := len(f.buf)
		f.buf = append(f.buf, make([]byte, length)...)
		if _, err := io.ReadFull(f.r, f.buf[start:]); err != nil {
			return nil, ErrTruncated
		}

		if last {
			out := make([]byte, len(f.buf))
			copy(out, f.buf)
			return out, nil
		}
	}
}

// WriteRecord emits payload as a single last-flagged fragment. The server
// never splits replies across fragments: NFS read/write size limits already
// bound reply size well under any reasonable maximum.
func (f *Framer) WriteRecord(payload []byte) error {
	if uint64(len(payload)) >= uint64(lastFragmentFlag) {
		return ErrOversized
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], lastFragmentFlag|uint32(len(payload)))
	if _, err := f.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := f.w.Write(payload)
	return err
}
