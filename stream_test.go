package relay

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtsprelay/pkg/base"
	"github.com/bluenviron/rtsprelay/pkg/conn"
)

func TestStreamTCPFanOut(t *testing.T) {
	pool, err := NewPortPool(50000, 4)
	require.NoError(t, err)

	r := NewRegistry(pool, nil)
	m, err := r.AddMount("/live/a", nil, MountHooks{})
	require.NoError(t, err)

	stream, err := m.CreateStream(0)
	require.NoError(t, err)

	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	interleaver := NewTCPInterleaver(conn.NewConn(serverSide), 0, 1, nil)
	interleaver.Start()
	defer interleaver.Close()

	sess := NewTCPSubscriberSession(m, 0, stream, interleaver)
	stream.AddTCPClient(sess)

	clientConn := conn.NewConn(clientSide)

	stream.Ingress(StreamRoleRTP, []byte{0x01, 0x02, 0x03})

	readCh := make(chan *base.InterleavedFrame, 1)
	errCh := make(chan error, 1)
	go func() {
		fr, err := clientConn.ReadInterleavedFrame()
		if err != nil {
			errCh <- err
			return
		}
		readCh <- fr
	}()

	select {
	case fr := <-readCh:
		require.Equal(t, 0, fr.Channel)
		require.Equal(t, []byte{0x01, 0x02, 0x03}, fr.Payload)
	case err := <-errCh:
		t.Fatalf("unexpected read error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fanned-out frame")
	}
}

func TestStreamRemoveClientReportsEmpty(t *testing.T) {
	stream := NewStream(0)

	mount := &Mount{streams: map[int]*Stream{0: stream}}
	sess := NewTCPSubscriberSession(mount, 0, stream, nil)
	other := NewTCPSubscriberSession(mount, 0, stream, nil)

	stream.AddTCPClient(sess)
	stream.AddTCPClient(other)
	require.False(t, stream.RemoveClient(sess))

	empty := stream.RemoveClient(other)
	require.True(t, empty)
}

func TestStreamCloseClosesSubscribers(t *testing.T) {
	pool, err := NewPortPool(51000, 4)
	require.NoError(t, err)

	r := NewRegistry(pool, nil)
	m, err := r.AddMount("/live/b", nil, MountHooks{})
	require.NoError(t, err)

	stream, err := m.CreateStream(0)
	require.NoError(t, err)

	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	interleaver := NewTCPInterleaver(conn.NewConn(serverSide), 0, 1, nil)
	interleaver.Start()

	sess := NewTCPSubscriberSession(m, 0, stream, interleaver)
	stream.AddTCPClient(sess)

	port := stream.Close(pool)
	require.Equal(t, 0, port)

	sess.mutex.Lock()
	open := sess.open
	sess.mutex.Unlock()
	require.False(t, open)

	// closing again must not panic or double-release anything.
	require.NotPanics(t, func() {
		stream.Close(pool)
	})
}
