package xdr

import "encoding/binary"

// Encoder appends XDR-encoded primitives to a growable byte buffer. Like
// Decoder, it is scoped to a single reply and carries no locking.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with a pre-sized backing array to reduce
// reallocation for the common case of small NFS replies.
func NewEncoder(sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated buffer.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

func (e *Encoder) Uint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) Int32(v int32) {
	e.Uint32(uint32(v))
}

func (e *Encoder) Uint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) Int64(v int64) {
	e.Uint64(uint64(v))
}

func (e *Encoder) Bool(v bool) {
	if v {
		e.Uint32(1)
	} else {
		e.Uint32(0)
	}
}

func (e *Encoder) zeroPad(n uint32) {
	for i := uint32(0); i < n; i++ {
		e.buf = append(e.buf, 0)
	}
}

// FixedOpaque writes exactly len(b) bytes followed by zero padding to the
// next 4-byte boundary. The caller is responsible for b being the declared
// fixed length.
func (e *Encoder) FixedOpaque(b []byte) {
	e.buf = append(e.buf, b...)
	e.zeroPad(padLen(uint32(len(b))))
}

// VarOpaque writes a length prefix, the bytes, and zero padding.
func (e *Encoder) VarOpaque(b []byte) {
	e.Uint32(uint32(len(b)))
	e.FixedOpaque(b)
}

// String writes a variable-length XDR string (same wire shape as VarOpaque).
func (e *Encoder) String(s string) {
	e.VarOpaque([]byte(s))
}

// Append concatenates raw already-encoded bytes, used when a body has been
// built by a nested encoder (e.g. an optional struct's inner fields).
func (e *Encoder) Append(b []byte) {
	e.buf = append(e.buf, b...)
}
