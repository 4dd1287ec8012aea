package xdr

import "errors"

// Decode errors. These are the only failure modes a well-formed decoder can
// surface; a caller that receives one of these for RPC header fields should
// treat the record as malformed and close the connection, since transport
// errors are never mapped into an RPC reply, while a caller decoding
// procedure arguments should map it to GARBAGE_ARGS.
var (
	// ErrTruncated is returned when fewer bytes remain than a fixed-width
	// field requires.
	ErrTruncated = errors.New("xdr: truncated")

	// ErrOverflow is returned when a declared variable-length field's length
	// exceeds the bytes remaining in the buffer.
	ErrOverflow = errors.New("xdr: declared length exceeds remaining data")

	// ErrBadDiscriminator is returned when a union discriminator holds a
	// value outside the set this decoder understands.
	ErrBadDiscriminator = errors.New("xdr: unrecognized union discriminator")

	// ErrBadBool is returned when a boolean field holds a value other than
	// 0 or 1.
	ErrBadBool = errors.New("xdr: boolean must be 0 or 1")

	// ErrLengthLimitExceeded is returned when a variable field's declared
	// length exceeds a protocol-defined maximum (e.g. opaque<64> for a file
	// handle, or a configured record-size cap).
	ErrLengthLimitExceeded = errors.New("xdr: length exceeds maximum")
)

// Note: non-zero padding bytes are never rejected on decode — the decoder
// simply skips them. Encode always emits zero padding; there is no
// ErrBadPadding because producing non-zero padding is a programming bug in
// this codebase, not a wire condition to report.
