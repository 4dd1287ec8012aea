package portmap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nfsd3/nfsd3/internal/xdr"
)

func testMappings() []Mapping {
	return []Mapping{
		{Program: 100003, Version: 3, Proto: ProtoTCP, Port: 2049},
		{Program: 100005, Version: 3, Proto: ProtoTCP, Port: 2049},
	}
}

func encodeGetPortArgs(prog, vers, proto, port uint32) []byte {
	e := xdr.NewEncoder(16)
	e.Uint32(prog)
	e.Uint32(vers)
	e.Uint32(proto)
	e.Uint32(port)
	return e.Bytes()
}

func TestGetPortKnownService(t *testing.T) {
	h := NewHandler(testMappings())
	body, ok, err := h.Dispatch(ProcGetPort, encodeGetPortArgs(100003, 3, ProtoTCP, 0))
	require.True(t, ok)
	require.NoError(t, err)
	d := xdr.NewDecoder(body)
	port, err := d.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(2049), port)
}

func TestGetPortUnknownServiceReturnsZero(t *testing.T) {
	h := NewHandler(testMappings())
	body, ok, err := h.Dispatch(ProcGetPort, encodeGetPortArgs(999999, 1, ProtoTCP, 0))
	require.True(t, ok)
	require.NoError(t, err)
	d := xdr.NewDecoder(body)
	port, _ := d.Uint32()
	require.Zero(t, port)
}

func TestDumpListsAllMappingsTerminated(t *testing.T) {
	h := NewHandler(testMappings())
	body := h.dump()
	d := xdr.NewDecoder(body)
	count := 0
	for {
		has, err := d.Bool()
		require.NoError(t, err)
		if !has {
			break
		}
		_, _ = d.Uint32()
		_, _ = d.Uint32()
		_, _ = d.Uint32()
		_, _ = d.Uint32()
		count++
	}
	require.Equal(t, len(testMappings()), count)
	require.Equal(t, 0, d.Remaining())
}
