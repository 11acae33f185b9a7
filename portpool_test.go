package relay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPortPoolNextRelease(t *testing.T) {
	p, err := NewPortPool(10000, 4)
	require.NoError(t, err)
	require.Equal(t, 2, p.Capacity())

	port1, err := p.Next()
	require.NoError(t, err)
	require.Equal(t, 10000, port1)

	port2, err := p.Next()
	require.NoError(t, err)
	require.Equal(t, 10002, port2)

	_, err = p.Next()
	require.Error(t, err)

	p.Release(port1)
	require.Equal(t, 1, p.Size())

	port3, err := p.Next()
	require.NoError(t, err)
	require.Equal(t, port1, port3)
}

func TestPortPoolInvalidStart(t *testing.T) {
	_, err := NewPortPool(10001, 4)
	require.Error(t, err)
}

func TestPortPoolConservation(t *testing.T) {
	p, err := NewPortPool(20000, 10)
	require.NoError(t, err)

	var taken []int
	for i := 0; i < 5; i++ {
		port, err := p.Next()
		require.NoError(t, err)
		taken = append(taken, port)
	}

	for _, port := range taken {
		p.Release(port)
	}

	require.Equal(t, p.Capacity(), p.Size())
}

func TestPortPoolReleaseUnknownIsNoop(t *testing.T) {
	p, err := NewPortPool(30000, 2)
	require.NoError(t, err)
	p.Release(99999)
	require.Equal(t, 1, p.Size())
}
