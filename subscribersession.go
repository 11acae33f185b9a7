package relay

import (
	"net"
	"sync"

	"github.com/bluenviron/rtsprelay/pkg/headers"
	"github.com/bluenviron/rtsprelay/pkg/liberrors"
)

// SubscriberTransport is the delivery mode a subscriber chose at SETUP.
type SubscriberTransport int

const (
	// SubscriberTransportUDP delivers via dedicated server-side UDP
	// sockets addressed to the client's announced ports.
	SubscriberTransportUDP SubscriberTransport = iota
	// SubscriberTransportTCP delivers interleaved over the RTSP control
	// connection.
	SubscriberTransportTCP
)

// SubscriberSession is one subscriber's attachment to a single Stream:
// one SETUP response, one transport, one send path. A subscriber with
// multiple streams (e.g. audio+video) has one SubscriberSession per
// stream, all owned by the same SubscriberWrapper.
type SubscriberSession struct {
	mount    *Mount
	streamID int
	stream   *Stream

	transport SubscriberTransport

	// UDP fields
	remoteAddr     *net.UDPAddr
	remoteRTCPPort int
	rtpSock        *UDPListener
	rtcpSock       *UDPListener

	// TCP fields
	interleaver *TCPInterleaver

	onKeepalive func()

	mutex sync.Mutex
	open  bool
}

// NewTCPSubscriberSession attaches a subscriber over the RTSP control
// connection's interleaved channels.
func NewTCPSubscriberSession(mount *Mount, streamID int, stream *Stream, interleaver *TCPInterleaver) *SubscriberSession {
	return &SubscriberSession{
		mount:       mount,
		streamID:    streamID,
		stream:      stream,
		transport:   SubscriberTransportTCP,
		interleaver: interleaver,
		open:        true,
	}
}

// NewUDPSubscriberSession binds a fresh server-side RTP/RTCP port pair
// and targets it at the subscriber's announced client ports, cycling
// through the pool on EADDRINUSE exactly like Stream.BindUDP.
func NewUDPSubscriberSession(
	mount *Mount,
	streamID int,
	stream *Stream,
	pool *PortPool,
	remoteIP net.IP,
	clientRTPPort int,
	clientRTCPPort int,
	onKeepalive func(),
) (*SubscriberSession, error) {
	s := &SubscriberSession{
		mount:       mount,
		streamID:    streamID,
		stream:      stream,
		transport:   SubscriberTransportUDP,
		onKeepalive: onKeepalive,
		remoteAddr:  &net.UDPAddr{IP: remoteIP},
		open:        true,
	}

	for {
		port, err := pool.Next()
		if err != nil {
			return nil, err
		}

		rtp, err := NewUDPListener(port, StreamRoleRTP, nil)
		if err != nil {
			pool.Release(port)
			if isAddrInUse(err) {
				continue
			}
			return nil, liberrors.ErrInternal{Err: err}
		}

		rtcp, err := NewUDPListener(port+1, StreamRoleRTCP, s.onRTCPKeepalive)
		if err != nil {
			rtp.Close()
			pool.Release(port)
			if isAddrInUse(err) {
				continue
			}
			return nil, liberrors.ErrInternal{Err: err}
		}

		s.rtpSock = rtp
		s.rtcpSock = rtcp
		break
	}

	s.remoteAddr.Port = clientRTPPort
	s.remoteRTCPPort = clientRTCPPort

	return s, nil
}

// ServerPorts returns the bound server-side RTP/RTCP ports for a UDP
// subscriber session; zero values if this session is TCP.
func (s *SubscriberSession) ServerPorts() (int, int) {
	if s.transport != SubscriberTransportUDP {
		return 0, 0
	}
	return s.rtpSock.Port(), s.rtcpSock.Port()
}

// TransportHeader builds the response Transport header value for this
// session's chosen transport, echoing what the request asked for and
// filling in the server-chosen side.
func (s *SubscriberSession) TransportHeader(requested headers.Transport) headers.Transport {
	h := requested

	if s.transport == SubscriberTransportTCP {
		return h
	}

	rtpPort, rtcpPort := s.ServerPorts()
	h.ServerPorts = &[2]int{rtpPort, rtcpPort}
	return h
}

// send forwards one fanned-out packet to this subscriber. No-op once
// closed; failures are swallowed so one slow/broken subscriber never
// affects the others.
func (s *SubscriberSession) send(role StreamRole, payload []byte) {
	s.mutex.Lock()
	open := s.open
	s.mutex.Unlock()
	if !open {
		return
	}

	if s.transport == SubscriberTransportTCP {
		s.interleaver.Send(role, payload)
		return
	}

	addr := *s.remoteAddr
	if role == StreamRoleRTCP {
		addr.Port = s.remoteRTCPPort
	}

	if role == StreamRoleRTP {
		s.rtpSock.WriteTo(payload, &addr) //nolint:errcheck
	} else {
		s.rtcpSock.WriteTo(payload, &addr) //nolint:errcheck
	}
}

// onRTCPKeepalive is wired as the UDP listener callback on the
// server-side RTCP socket. Per the relay's documented behavior, any
// inbound datagram counts as a keepalive refresh, not only a
// well-formed RTCP packet.
func (s *SubscriberSession) onRTCPKeepalive(_ StreamRole, _ []byte, _ *net.UDPAddr) {
	if s.onKeepalive != nil {
		s.onKeepalive()
	}
}

// Close idempotently detaches this session from its stream and
// releases any owned transport resources and pool ports.
func (s *SubscriberSession) Close(pool *PortPool) {
	s.mutex.Lock()
	if !s.open {
		s.mutex.Unlock()
		return
	}
	s.open = false
	s.mutex.Unlock()

	s.mount.ClientLeave(s.streamID, s)

	if s.transport == SubscriberTransportTCP {
		return
	}

	port := s.rtpSock.Port()
	s.rtpSock.Close()
	s.rtcpSock.Close()
	pool.Release(port)
}
