package headers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtsprelay/pkg/base"
)

func TestTransportReadUDPClientPorts(t *testing.T) {
	var h Transport
	err := h.Read(base.HeaderValue{"RTP/AVP;unicast;client_port=6000-6001"})
	require.NoError(t, err)
	require.Equal(t, TransportProtocolUDP, h.Protocol)
	require.NotNil(t, h.Delivery)
	require.Equal(t, TransportDeliveryUnicast, *h.Delivery)
	require.Equal(t, &[2]int{6000, 6001}, h.ClientPorts)
}

func TestTransportReadTCPInterleaved(t *testing.T) {
	var h Transport
	err := h.Read(base.HeaderValue{"RTP/AVP/TCP;interleaved=2-3"})
	require.NoError(t, err)
	require.Equal(t, TransportProtocolTCP, h.Protocol)
	require.Equal(t, &[2]int{2, 3}, h.InterleavedIDs)
}

func TestTransportReadMissingProtocol(t *testing.T) {
	var h Transport
	err := h.Read(base.HeaderValue{"unicast"})
	require.Error(t, err)
}

func TestTransportWriteRoundTrip(t *testing.T) {
	serverPorts := [2]int{7000, 7001}
	h := Transport{
		Protocol:    TransportProtocolUDP,
		ServerPorts: &serverPorts,
	}

	encoded := h.Write()

	var decoded Transport
	require.NoError(t, decoded.Read(encoded))
	require.Equal(t, TransportProtocolUDP, decoded.Protocol)
	require.Equal(t, &serverPorts, decoded.ServerPorts)
}
