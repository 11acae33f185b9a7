package relay

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryCoherence(t *testing.T) {
	pool, err := NewPortPool(40000, 20)
	require.NoError(t, err)

	r := NewRegistry(pool, nil)

	m, err := r.AddMount("/live/a", []byte("v=0\r\n"), MountHooks{})
	require.NoError(t, err)

	got, ok := r.GetMount("/live/a")
	require.True(t, ok)
	require.Equal(t, m, got)

	r.DeleteMount("/live/a")

	_, ok = r.GetMount("/live/a")
	require.False(t, ok)
}

func TestRegistryDuplicateMount(t *testing.T) {
	pool, err := NewPortPool(41000, 20)
	require.NoError(t, err)

	r := NewRegistry(pool, nil)

	_, err = r.AddMount("/live/a", nil, MountHooks{})
	require.NoError(t, err)

	_, err = r.AddMount("/live/a", nil, MountHooks{})
	require.Error(t, err)
}

func TestMountCloseReleasesPorts(t *testing.T) {
	pool, err := NewPortPool(42000, 8)
	require.NoError(t, err)

	r := NewRegistry(pool, nil)

	m, err := r.AddMount("/live/a", nil, MountHooks{})
	require.NoError(t, err)

	stream, err := m.CreateStream(0)
	require.NoError(t, err)

	err = stream.BindUDP(pool)
	require.NoError(t, err)

	require.Less(t, pool.Size(), pool.Capacity())

	released := m.Close(pool)
	require.Len(t, released, 1)

	for _, port := range released {
		r.ReturnRTPPort(port)
	}

	require.Equal(t, pool.Capacity(), pool.Size())
}

func TestRegistryEnableMulticastAssignsSequentialAddresses(t *testing.T) {
	pool, err := NewPortPool(44000, 4)
	require.NoError(t, err)

	r := NewRegistry(pool, nil)
	r.EnableMulticast(net.ParseIP("239.0.1.0"), 9000, nil)

	a, err := r.AddMount("/live/a", nil, MountHooks{})
	require.NoError(t, err)
	require.NotNil(t, a.Multicast)
	require.Equal(t, "239.0.1.0:9000", a.Multicast.RTPAddress)

	b, err := r.AddMount("/live/b", nil, MountHooks{})
	require.NoError(t, err)
	require.NotNil(t, b.Multicast)
	require.Equal(t, "239.0.1.1:9000", b.Multicast.RTPAddress)
}

func TestRegistryMulticastDisabledByDefault(t *testing.T) {
	pool, err := NewPortPool(44100, 4)
	require.NoError(t, err)

	r := NewRegistry(pool, nil)

	m, err := r.AddMount("/live/a", nil, MountHooks{})
	require.NoError(t, err)
	require.Nil(t, m.Multicast)
}

func TestRegistrySnapshotIncludesStreamStats(t *testing.T) {
	pool, err := NewPortPool(44200, 4)
	require.NoError(t, err)

	r := NewRegistry(pool, nil)

	m, err := r.AddMount("/live/a", nil, MountHooks{})
	require.NoError(t, err)

	stream, err := m.CreateStream(0)
	require.NoError(t, err)
	stream.Ingress(StreamRoleRTP, []byte("not-a-real-rtp-packet-but-has-bytes"))

	snaps := r.Snapshot()
	require.Len(t, snaps, 1)
	require.Equal(t, "/live/a", snaps[0].Path)
	require.Len(t, snaps[0].Streams, 1)
	require.Equal(t, 0, snaps[0].Streams[0].ID)
	require.EqualValues(t, len("not-a-real-rtp-packet-but-has-bytes"), snaps[0].Streams[0].Bytes)
}

func TestMountDuplicateStream(t *testing.T) {
	pool, err := NewPortPool(43000, 4)
	require.NoError(t, err)

	r := NewRegistry(pool, nil)

	m, err := r.AddMount("/live/a", nil, MountHooks{})
	require.NoError(t, err)

	_, err = m.CreateStream(0)
	require.NoError(t, err)

	_, err = m.CreateStream(0)
	require.Error(t, err)
}
