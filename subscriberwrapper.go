package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/rtsprelay/pkg/liberrors"
)

const defaultKeepaliveInterval = 60 * time.Second

// SubscriberWrapper aggregates the SubscriberSessions created by every
// SETUP issued on one RTSP control connection, and owns the keepalive
// timer that tears all of them down together when the peer goes quiet.
type SubscriberWrapper struct {
	ID                  string
	Mount               *Mount
	AuthorizationHeader string

	pool              *PortPool
	keepaliveInterval time.Duration
	onExpire          func(*SubscriberWrapper)

	mutex    sync.Mutex
	sessions map[int]*SubscriberSession // by stream id
	timer    *time.Timer
	closed   bool
}

// NewSubscriberWrapper constructs a wrapper bound to mount. authHeader
// is the raw Authorization header value of the binding SETUP, used to
// reject later requests bearing a different one (session hijack
// protection).
func NewSubscriberWrapper(
	mount *Mount,
	authHeader string,
	pool *PortPool,
	keepaliveInterval time.Duration,
	onExpire func(*SubscriberWrapper),
) *SubscriberWrapper {
	if keepaliveInterval <= 0 {
		keepaliveInterval = defaultKeepaliveInterval
	}

	w := &SubscriberWrapper{
		ID:                  uuid.NewString(),
		Mount:               mount,
		AuthorizationHeader: authHeader,
		pool:                pool,
		keepaliveInterval:   keepaliveInterval,
		onExpire:            onExpire,
		sessions:            make(map[int]*SubscriberSession),
	}

	w.armTimer()

	return w
}

func (w *SubscriberWrapper) armTimer() {
	w.timer = time.AfterFunc(w.keepaliveInterval, w.onTimerExpire)
}

func (w *SubscriberWrapper) onTimerExpire() {
	w.Close()
	if w.onExpire != nil {
		w.onExpire(w)
	}
}

// Refresh resets the keepalive deadline. Safe to call from any
// goroutine, including the UDP listener callback and the TCP read
// loop.
func (w *SubscriberWrapper) Refresh() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return
	}
	w.timer.Reset(w.keepaliveInterval)
}

// AddUDPClient allocates a UDP SubscriberSession for streamID.
func (w *SubscriberWrapper) AddUDPClient(streamID int, stream *Stream, remoteIP []byte, clientRTPPort, clientRTCPPort int) (*SubscriberSession, error) {
	sess, err := NewUDPSubscriberSession(w.Mount, streamID, stream, w.pool, remoteIP, clientRTPPort, clientRTCPPort, w.Refresh)
	if err != nil {
		return nil, err
	}

	w.mutex.Lock()
	w.sessions[streamID] = sess
	w.mutex.Unlock()

	return sess, nil
}

// AddTCPClient attaches a TCP SubscriberSession for streamID, sharing
// the RTSP control connection's interleaver.
func (w *SubscriberWrapper) AddTCPClient(streamID int, stream *Stream, interleaver *TCPInterleaver) *SubscriberSession {
	sess := NewTCPSubscriberSession(w.Mount, streamID, stream, interleaver)

	w.mutex.Lock()
	w.sessions[streamID] = sess
	w.mutex.Unlock()

	return sess
}

// Play begins fan-out to every session under this wrapper.
func (w *SubscriberWrapper) Play() {
	w.mutex.Lock()
	sessions := make([]*SubscriberSession, 0, len(w.sessions))
	for _, s := range w.sessions {
		sessions = append(sessions, s)
	}
	w.mutex.Unlock()

	for _, s := range sessions {
		if s.transport == SubscriberTransportTCP {
			s.stream.AddTCPClient(s)
		} else {
			s.stream.AddUDPClient(s)
		}
	}
}

// Session returns the session bound to streamID, if any.
func (w *SubscriberWrapper) Session(streamID int) (*SubscriberSession, bool) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	s, ok := w.sessions[streamID]
	return s, ok
}

// CheckAuthorization rejects a request whose Authorization header
// doesn't match the one this wrapper was created with.
func (w *SubscriberWrapper) CheckAuthorization(header string) error {
	if header != w.AuthorizationHeader {
		return liberrors.ErrUnauthorized{Realm: "rtsp"}
	}
	return nil
}

// Close idempotently closes every session under this wrapper and
// cancels the keepalive timer.
func (w *SubscriberWrapper) Close() {
	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return
	}
	w.closed = true
	sessions := w.sessions
	w.sessions = nil
	timer := w.timer
	w.mutex.Unlock()

	if timer != nil {
		timer.Stop()
	}

	for _, s := range sessions {
		s.Close(w.pool)
	}
}
