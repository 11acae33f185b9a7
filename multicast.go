package relay

import (
	"net"

	"github.com/bluenviron/rtsprelay/pkg/multicast"
)

// MulticastConfig configures a Mount's supplemental multicast
// replication: an additional fan-out destination beyond the per-client
// UDP and TCP subscribers, used for deployments with many co-located
// subscribers.
type MulticastConfig struct {
	// RTPAddress is a UDP multicast address ("239.0.0.1:9000") for
	// the RTP channel. RTCP is replicated to the same host, port+1.
	RTPAddress string
	// SourceIP selects the multicast-capable interface to join.
	SourceIP net.IP
}

// multicastStream owns the multicast sockets for one Stream.
type multicastStream struct {
	rtpConn  multicast.Conn
	rtcpConn multicast.Conn
	rtpAddr  *net.UDPAddr
	rtcpAddr *net.UDPAddr
}

func newMulticastStream(cfg MulticastConfig) (*multicastStream, error) {
	intf, err := multicast.InterfaceForSource(cfg.SourceIP)
	if err != nil {
		return nil, err
	}

	rtpAddr, err := net.ResolveUDPAddr("udp4", cfg.RTPAddress)
	if err != nil {
		return nil, err
	}
	rtcpAddr := &net.UDPAddr{IP: rtpAddr.IP, Port: rtpAddr.Port + 1}

	rtpConn, err := multicast.NewSingleConn(intf, cfg.RTPAddress, net.ListenPacket)
	if err != nil {
		return nil, err
	}

	rtcpConn, err := multicast.NewSingleConn(intf, rtcpAddr.String(), net.ListenPacket)
	if err != nil {
		rtpConn.Close() //nolint:errcheck
		return nil, err
	}

	return &multicastStream{
		rtpConn:  rtpConn,
		rtcpConn: rtcpConn,
		rtpAddr:  rtpAddr,
		rtcpAddr: rtcpAddr,
	}, nil
}

func (m *multicastStream) write(role StreamRole, payload []byte) {
	if role == StreamRoleRTP {
		m.rtpConn.WriteTo(payload, m.rtpAddr) //nolint:errcheck
		return
	}
	m.rtcpConn.WriteTo(payload, m.rtcpAddr) //nolint:errcheck
}

func (m *multicastStream) close() {
	m.rtpConn.Close()  //nolint:errcheck
	m.rtcpConn.Close() //nolint:errcheck
}
