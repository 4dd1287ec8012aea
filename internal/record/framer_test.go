package record

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteRecordSetsLastFlagAndLength(t *testing.T) {
	var out bytes.Buffer
	f := NewFramer(nil, &out, 0)
	require.NoError(t, f.WriteRecord([]byte("hello")))

	got := out.Bytes()
	require.Len(t, got, 4+5)
	hdr := uint32(got[0])<<24 | uint32(got[1])<<16 | uint32(got[2])<<8 | uint32(got[3])
	require.Equal(t, uint32(0x80000005), hdr)
	require.Equal(t, "hello", string(got[4:]))
}

func TestReadRecordSingleFragment(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramer(nil, &buf, 0)
	require.NoError(t, f.WriteRecord([]byte("ping")))

	rf := NewFramer(bytes.NewReader(buf.Bytes()), nil, 0)
	got, err := rf.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, "ping", string(got))
}

func TestReadRecordMultiFragment(t *testing.T) {
	var raw bytes.Buffer
	writeFrag := func(payload []byte, last bool) {
		hdr := uint32(len(payload))
		if last {
			hdr |= 1 << 31
		}
		raw.WriteByte(byte(hdr >> 24))
		raw.WriteByte(byte(hdr >> 16))
		raw.WriteByte(byte(hdr >> 8))
		raw.WriteByte(byte(hdr))
		raw.Write(payload)
	}
	writeFrag([]byte("abc"), false)
	writeFrag([]byte("def"), true)

	f := NewFramer(bytes.NewReader(raw.Bytes()), nil, 0)
	got, err := f.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, "abcdef", string(got))
}

func TestReadRecordCleanEOFBetweenRecords(t *testing.T) {
	f := NewFramer(bytes.NewReader(nil), nil, 0)
	_, err := f.ReadRecord()
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestReadRecordTruncatedMidRecord(t *testing.T) {
	hdr := []byte{0x80, 0x00, 0x00, 0x05} // declares 5 bytes, last fragment
	f := NewFramer(bytes.NewReader(hdr), nil, 0)
	_, err := f.ReadRecord()
	require.ErrorIs(t, err, ErrTruncated)
}

func TestReadRecordOversized(t *testing.T) {
	hdr := []byte{0x80, 0x00, 0x00, 0x10} // declares 16 bytes
	data := append(append([]byte{}, hdr...), make([]byte, 16)...)
	f := NewFramer(bytes.NewReader(data), nil, 8)
	_, err := f.ReadRecord()
	require.ErrorIs(t, err, ErrOversized)
}

func TestReadRecordInvalidHeaderZeroNonLast(t *testing.T) {
	hdr := []byte{0x00, 0x00, 0x00, 0x00} // length 0, not last
	f := NewFramer(bytes.NewReader(hdr), nil, 0)
	_, err := f.ReadRecord()
	require.ErrorIs(t, err, ErrInvalidHeader)
}
