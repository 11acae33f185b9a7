package relay

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/sdp/v3"

	"github.com/bluenviron/rtsprelay/pkg/liberrors"
)

// MountHooks are the admission/lifecycle callbacks a host process
// supplies per mount.
type MountHooks struct {
	// MountNowEmpty fires when every stream of the mount has zero
	// subscribers. Advisory only; it does not close the mount.
	MountNowEmpty func(m *Mount)
}

// Mount is a published resource at a URI path: a set of Streams plus
// the opaque SDP body supplied by the publisher's ANNOUNCE.
type Mount struct {
	ID   string
	Path string
	SDP  []byte

	// RangeHeader is the raw Range header value captured at RECORD, if
	// any, echoed verbatim to subscribers on PLAY.
	RangeHeader string

	Multicast *MulticastConfig

	hooks MountHooks
	log   *slog.Logger

	mutex   sync.Mutex
	streams map[int]*Stream
}

// NewMount constructs a Mount in response to a publisher's ANNOUNCE.
// sdp is stored verbatim and never re-encoded.
func NewMount(path string, sdpBody []byte, hooks MountHooks, log *slog.Logger) *Mount {
	if log == nil {
		log = slog.Default()
	}

	m := &Mount{
		ID:      uuid.NewString(),
		Path:    path,
		SDP:     sdpBody,
		hooks:   hooks,
		log:     log,
		streams: make(map[int]*Stream),
	}

	logSDPSummary(log, path, sdpBody)

	return m
}

// logSDPSummary best-effort parses the opaque SDP body purely for a
// one-line operator log; the stored body is never touched.
func logSDPSummary(log *slog.Logger, path string, body []byte) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		log.Debug("announce received with unparsed SDP", "path", path, "bytes", len(body))
		return
	}

	log.Info("announce received",
		"path", path,
		"session_name", string(desc.SessionName),
		"media_count", len(desc.MediaDescriptions))
}

// CreateStream creates a new Stream under streamID. Duplicate ids
// fail.
func (m *Mount) CreateStream(streamID int) (*Stream, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.streams[streamID]; ok {
		return nil, fmt.Errorf("stream %d already exists on mount %s", streamID, m.Path)
	}

	s := NewStream(streamID)
	m.streams[streamID] = s

	if m.Multicast != nil {
		mc, err := newMulticastStream(*m.Multicast)
		if err == nil {
			s.SetMulticast(mc)
		} else {
			m.log.Warn("multicast setup failed", "path", m.Path, "error", err)
		}
	}

	return s, nil
}

// Stream looks up an existing stream by id.
func (m *Mount) Stream(streamID int) (*Stream, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	s, ok := m.streams[streamID]
	return s, ok
}

// Setup brings up UDP listeners for every stream that needs them,
// cycling through fresh port pairs from pool on bind failure.
func (m *Mount) Setup(pool *PortPool) error {
	m.mutex.Lock()
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mutex.Unlock()

	for _, s := range streams {
		if _, _, bound := streamBound(s); bound {
			continue
		}
		if err := s.BindUDP(pool); err != nil {
			if _, ok := err.(liberrors.ErrPoolExhausted); ok {
				return err
			}
			return liberrors.ErrInternal{Err: err}
		}
	}

	return nil
}

func streamBound(s *Stream) (int, int, bool) {
	rtp, rtcp := s.Ports()
	return rtp, rtcp, rtp != 0
}

// ClientLeave removes a subscriber from its stream's fan-out set and
// invokes the MountNowEmpty hook if no stream has subscribers left.
func (m *Mount) ClientLeave(streamID int, c *SubscriberSession) {
	s, ok := m.Stream(streamID)
	if !ok {
		return
	}

	s.RemoveClient(c)

	if m.allStreamsEmpty() && m.hooks.MountNowEmpty != nil {
		m.hooks.MountNowEmpty(m)
	}
}

func (m *Mount) allStreamsEmpty() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, s := range m.streams {
		s.mutex.Lock()
		n := len(s.udpClients) + len(s.tcpClients)
		s.mutex.Unlock()
		if n > 0 {
			return false
		}
	}
	return true
}

// StreamIDs returns the set of stream ids currently present.
func (m *Mount) StreamIDs() []int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	ids := make([]int, 0, len(m.streams))
	for id := range m.streams {
		ids = append(ids, id)
	}
	return ids
}

// StreamSnapshots returns a diagnostic snapshot of every stream, for
// the admin status surface.
func (m *Mount) StreamSnapshots() []StreamSnapshot {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	out := make([]StreamSnapshot, 0, len(m.streams))
	for id, s := range m.streams {
		snap := s.Stats()
		out = append(out, StreamSnapshot{
			ID:       id,
			Packets:  snap.Packets,
			Bytes:    snap.Bytes,
			RTCP:     snap.RTCP,
			Lost:     snap.Lost,
			LossRate: snap.LossRate(),
		})
	}
	return out
}

// Close tears down every stream (releasing listeners and multicast
// sockets, and every subscriber session, via pool) and returns the
// list of ingress RTP ports that were bound, for the caller to return
// to the Port Pool.
func (m *Mount) Close(pool *PortPool) []int {
	m.mutex.Lock()
	streams := m.streams
	m.streams = make(map[int]*Stream)
	m.mutex.Unlock()

	var released []int
	for _, s := range streams {
		if port := s.Close(pool); port != 0 {
			released = append(released, port)
		}
	}
	return released
}
