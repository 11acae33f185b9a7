package relay

import (
	"net"
	"sync"

	"github.com/bluenviron/rtsprelay/internal/diagnostics"
)

// Stream is one media substream of a Mount: it owns the UDP listeners
// bound for ingress (when the publisher uses UDP) and fans every
// admitted packet out to every currently attached subscriber, UDP or
// TCP, best-effort.
type Stream struct {
	id int

	rtpPort  int
	rtcpPort int

	rtpListener  *UDPListener
	rtcpListener *UDPListener

	multicast *multicastStream

	mutex      sync.Mutex
	udpClients map[*SubscriberSession]struct{}
	tcpClients map[*SubscriberSession]struct{}

	stats *diagnostics.StreamStats
}

// NewStream constructs a Stream with no listeners bound yet; call
// BindUDP to bring up ingress sockets for UDP-published streams.
func NewStream(id int) *Stream {
	return &Stream{
		id:         id,
		udpClients: make(map[*SubscriberSession]struct{}),
		tcpClients: make(map[*SubscriberSession]struct{}),
		stats:      diagnostics.NewStreamStats(),
	}
}

// BindUDP allocates a port pair from pool and binds RTP/RTCP listeners
// on it, retrying on EADDRINUSE until a free pair is found or the pool
// is exhausted. This is the port-cycling loop described for Mount.Setup.
func (s *Stream) BindUDP(pool *PortPool) error {
	for {
		port, err := pool.Next()
		if err != nil {
			return err
		}

		rtp, err := NewUDPListener(port, StreamRoleRTP, s.onUDPPacket)
		if err != nil {
			pool.Release(port)
			if isAddrInUse(err) {
				continue
			}
			return err
		}

		rtcp, err := NewUDPListener(port+1, StreamRoleRTCP, s.onUDPPacket)
		if err != nil {
			rtp.Close()
			pool.Release(port)
			if isAddrInUse(err) {
				continue
			}
			return err
		}

		s.mutex.Lock()
		s.rtpPort = port
		s.rtcpPort = port + 1
		s.rtpListener = rtp
		s.rtcpListener = rtcp
		s.mutex.Unlock()

		return nil
	}
}

// Ports returns the bound RTP/RTCP port pair, valid after a successful
// BindUDP.
func (s *Stream) Ports() (int, int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.rtpPort, s.rtcpPort
}

func (s *Stream) onUDPPacket(role StreamRole, payload []byte, _ *net.UDPAddr) {
	s.forward(role, payload)
}

// Ingress accepts a packet arriving over a TCP-interleaved publisher
// connection and fans it out exactly like a UDP-received one.
func (s *Stream) Ingress(role StreamRole, payload []byte) {
	s.forward(role, payload)
}

func (s *Stream) forward(role StreamRole, payload []byte) {
	s.stats.Observe(role, payload)

	s.mutex.Lock()
	udpTargets := make([]*SubscriberSession, 0, len(s.udpClients))
	for c := range s.udpClients {
		udpTargets = append(udpTargets, c)
	}
	tcpTargets := make([]*SubscriberSession, 0, len(s.tcpClients))
	for c := range s.tcpClients {
		tcpTargets = append(tcpTargets, c)
	}
	mc := s.multicast
	s.mutex.Unlock()

	for _, c := range udpTargets {
		c.send(role, payload)
	}
	for _, c := range tcpTargets {
		c.send(role, payload)
	}

	if mc != nil {
		mc.write(role, payload)
	}
}

// Stats returns the current diagnostic counters for this stream's
// ingress traffic.
func (s *Stream) Stats() diagnostics.Snapshot {
	return s.stats.Snapshot()
}

// AddUDPClient registers a subscriber to receive UDP fan-out.
func (s *Stream) AddUDPClient(c *SubscriberSession) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.udpClients[c] = struct{}{}
}

// AddTCPClient registers a subscriber to receive TCP-interleaved
// fan-out.
func (s *Stream) AddTCPClient(c *SubscriberSession) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.tcpClients[c] = struct{}{}
}

// RemoveClient drops c from both fan-out sets and reports whether the
// stream has no clients left afterward.
func (s *Stream) RemoveClient(c *SubscriberSession) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.udpClients, c)
	delete(s.tcpClients, c)
	return len(s.udpClients) == 0 && len(s.tcpClients) == 0
}

// SetMulticast attaches a multicast replication target for this
// stream's ingress. Supplemented feature, see Mount.multicast.
func (s *Stream) SetMulticast(mc *multicastStream) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.multicast = mc
}

// Close releases the stream's listeners, multicast socket, and every
// attached subscriber session (releasing their pool ports too via
// pool), and returns the ingress RTP port that should be returned to
// the pool (0 if none was bound).
func (s *Stream) Close(pool *PortPool) int {
	s.mutex.Lock()
	rtp, rtcp := s.rtpListener, s.rtcpListener
	mc := s.multicast
	port := s.rtpPort
	s.rtpListener, s.rtcpListener, s.multicast = nil, nil, nil

	clients := make([]*SubscriberSession, 0, len(s.udpClients)+len(s.tcpClients))
	for c := range s.udpClients {
		clients = append(clients, c)
	}
	for c := range s.tcpClients {
		clients = append(clients, c)
	}
	s.udpClients = make(map[*SubscriberSession]struct{})
	s.tcpClients = make(map[*SubscriberSession]struct{})
	s.mutex.Unlock()

	if rtp != nil {
		rtp.Close()
	}
	if rtcp != nil {
		rtcp.Close()
	}
	if mc != nil {
		mc.close()
	}
	for _, c := range clients {
		c.Close(pool)
	}

	return port
}
