package relay

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtsprelay/pkg/headers"
)

func TestUDPSubscriberSessionBindAndClose(t *testing.T) {
	pool, err := NewPortPool(57000, 4)
	require.NoError(t, err)

	mount := &Mount{streams: map[int]*Stream{}}
	stream := NewStream(0)
	mount.streams[0] = stream

	sess, err := NewUDPSubscriberSession(mount, 0, stream, pool, net.ParseIP("127.0.0.1"), 6000, 6001, nil)
	require.NoError(t, err)

	rtp, rtcp := sess.ServerPorts()
	require.NotZero(t, rtp)
	require.Equal(t, rtp+1, rtcp)
	require.Less(t, pool.Size(), pool.Capacity())

	th := sess.TransportHeader(headers.Transport{Protocol: headers.TransportProtocolUDP})
	require.NotNil(t, th.ServerPorts)
	require.Equal(t, [2]int{rtp, rtcp}, *th.ServerPorts)

	sess.Close(pool)
	require.Equal(t, pool.Capacity(), pool.Size())

	// idempotent.
	require.NotPanics(t, func() {
		sess.Close(pool)
	})
}

func TestTCPSubscriberSessionTransportHeaderUnchanged(t *testing.T) {
	mount := &Mount{streams: map[int]*Stream{}}
	stream := NewStream(0)

	sess := NewTCPSubscriberSession(mount, 0, stream, nil)

	requested := headers.Transport{Protocol: headers.TransportProtocolTCP}
	th := sess.TransportHeader(requested)
	require.Nil(t, th.ServerPorts)
	require.Equal(t, headers.TransportProtocolTCP, th.Protocol)
}

func TestSubscriberSessionSendAfterCloseIsNoop(t *testing.T) {
	pool, err := NewPortPool(58000, 4)
	require.NoError(t, err)

	mount := &Mount{streams: map[int]*Stream{}}
	stream := NewStream(0)
	mount.streams[0] = stream

	sess, err := NewUDPSubscriberSession(mount, 0, stream, pool, net.ParseIP("127.0.0.1"), 6100, 6101, nil)
	require.NoError(t, err)

	sess.Close(pool)

	require.NotPanics(t, func() {
		sess.send(StreamRoleRTP, []byte{0x01})
	})
}
