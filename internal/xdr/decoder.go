package xdr

import "encoding/binary"

// Decoder reads XDR primitives from an in-memory byte slice. It is not
// reentrant and carries no locking: one Decoder per call, scoped to the
// single record being processed, consistent with the RPC layer holding no
// locks across suspension points.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for sequential decoding starting at offset 0.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of undecoded bytes left in the buffer.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// Pos returns the current read offset.
func (d *Decoder) Pos() int {
	return d.pos
}

// Rest returns the undecoded tail of the buffer without advancing the
// cursor. Handlers use this to hand procedure-specific argument bytes to a
// nested decoder after the RPC layer has consumed the call envelope.
func (d *Decoder) Rest() []byte {
	return d.buf[d.pos:]
}

func (d *Decoder) need(n int) error {
	if n < 0 || d.Remaining() < n {
		return ErrTruncated
	}
	return nil
}

// Uint32 decodes a big-endian 32-bit unsigned integer.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

// Int32 decodes a big-endian 32-bit signed integer.
func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

// Uint64 decodes a big-endian 64-bit unsigned integer (two XDR words).
func (d *Decoder) Uint64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

// Int64 decodes a big-endian 64-bit signed integer.
func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

// Bool decodes an XDR boolean: exactly 0 or 1 are permitted.
func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint32()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrBadBool
	}
}

// padLen returns the number of zero-padding bytes following n bytes of
// payload so the total is 4-byte aligned.
func padLen(n uint32) uint32 {
	return (4 - (n % 4)) % 4
}

// skipPadding advances past n padding bytes without validating their
// content; non-zero padding is tolerated on decode.
func (d *Decoder) skipPadding(n uint32) error {
	if n == 0 {
		return nil
	}
	if err := d.need(int(n)); err != nil {
		return err
	}
	d.pos += int(n)
	return nil
}

// FixedOpaque decodes a fixed-length opaque field of exactly n bytes,
// including its padding to the next 4-byte boundary.
func (d *Decoder) FixedOpaque(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, d.buf[d.pos:d.pos+n])
	d.pos += n
	if err := d.skipPadding(padLen(uint32(n))); err != nil {
		return nil, err
	}
	return v, nil
}

// VarOpaque decodes a variable-length opaque field (length-prefixed,
// padded). maxLen enforces an XDR maximum bound (e.g. 64 for a file handle);
// a value of 0 means "no limit beyond what the buffer can hold".
func (d *Decoder) VarOpaque(maxLen uint32) ([]byte, error) {
	length, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if maxLen > 0 && length > maxLen {
		return nil, ErrLengthLimitExceeded
	}
	if uint64(length) > uint64(d.Remaining()) {
		return nil, ErrOverflow
	}
	v := make([]byte, length)
	copy(v, d.buf[d.pos:d.pos+int(length)])
	d.pos += int(length)
	if err := d.skipPadding(padLen(length)); err != nil {
		return nil, err
	}
	return v, nil
}

// String decodes a variable-length XDR string (same wire shape as VarOpaque).
func (d *Decoder) String(maxLen uint32) (string, error) {
	b, err := d.VarOpaque(maxLen)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
