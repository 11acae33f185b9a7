package relay

import (
	"context"

	"github.com/bluenviron/rtsprelay/internal/writequeue"
	"github.com/bluenviron/rtsprelay/pkg/base"
	"github.com/bluenviron/rtsprelay/pkg/conn"
)

const tcpInterleaverQueueSize = 256

// TCPInterleaver multiplexes RTP and RTCP frames onto a shared RTSP
// control connection using the `$`-prefixed interleaved framing. It
// owns an asynchronous write queue so that a slow peer's socket never
// blocks the stream's fan-out goroutine.
type TCPInterleaver struct {
	conn        *conn.Conn
	rtpChannel  int
	rtcpChannel int
	queue       *writequeue.Queue

	onError func(error)
	closed  bool
}

// NewTCPInterleaver wires a write queue onto c, addressed with the
// given channel pair (conventionally rtpChannel even, rtcpChannel
// rtpChannel+1). onError is invoked at most once, from the queue's
// consumer goroutine, on the first write failure.
func NewTCPInterleaver(c *conn.Conn, rtpChannel int, rtcpChannel int, onError func(error)) *TCPInterleaver {
	t := &TCPInterleaver{
		conn:        c,
		rtpChannel:  rtpChannel,
		rtcpChannel: rtcpChannel,
		onError:     onError,
		queue: &writequeue.Queue{
			BufferSize: tcpInterleaverQueueSize,
		},
	}
	t.queue.OnError = func(_ context.Context, err error) {
		if t.onError != nil {
			t.onError(err)
		}
	}
	return t
}

// channelFor returns the interleaved channel byte used for a role.
func (t *TCPInterleaver) channelFor(role StreamRole) int {
	if role == StreamRoleRTP {
		return t.rtpChannel
	}
	return t.rtcpChannel
}

// roleFor is the inverse of channelFor, used when deframing.
func (t *TCPInterleaver) roleFor(channel int) (StreamRole, bool) {
	switch channel {
	case t.rtpChannel:
		return StreamRoleRTP, true
	case t.rtcpChannel:
		return StreamRoleRTCP, true
	default:
		return 0, false
	}
}

// Start launches the write-queue consumer. Must be called once before
// Send.
func (t *TCPInterleaver) Start() {
	t.queue.Initialize()
	t.queue.Start()
}

// Send enqueues a payload for asynchronous delivery on the channel
// matching role. Returns immediately; a full queue silently drops the
// packet (backpressure), matching fan-out's best-effort contract.
func (t *TCPInterleaver) Send(role StreamRole, payload []byte) {
	if t.closed {
		return
	}

	channel := t.channelFor(role)

	t.queue.Push(func() error {
		return t.conn.WriteInterleavedFrame(&base.InterleavedFrame{
			Channel: channel,
			Payload: payload,
		})
	})
}

// Close stops the write queue. Idempotent.
func (t *TCPInterleaver) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.queue.Close()
}
