// Package diagnostics tracks best-effort RTP/RTCP statistics for
// forwarded streams. It never gates or alters forwarding: a packet that
// fails to parse is simply not counted.
package diagnostics

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// StreamStats accumulates packet/byte/loss counters for one Stream by
// peeking at RTP sequence numbers and RTCP packet types. It is safe for
// concurrent use from the fan-out path.
type StreamStats struct {
	packets atomic.Uint64
	bytes   atomic.Uint64
	rtcp    atomic.Uint64

	mutex   sync.Mutex
	seq     *seqTracker
	lastSSRC uint32
}

// NewStreamStats allocates an empty tracker.
func NewStreamStats() *StreamStats {
	return &StreamStats{seq: &seqTracker{}}
}

// Observe inspects one forwarded packet. role distinguishes RTP from
// RTCP framing so the right parser is used; payload is never mutated.
func (s *StreamStats) Observe(role interface{ String() string }, payload []byte) {
	s.bytes.Add(uint64(len(payload)))

	if role.String() == "RTCP" {
		s.observeRTCP(payload)
		return
	}
	s.observeRTP(payload)
}

func (s *StreamStats) observeRTP(payload []byte) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(payload); err != nil {
		return
	}

	s.packets.Add(1)

	s.mutex.Lock()
	s.lastSSRC = pkt.SSRC
	s.seq.push(pkt.SequenceNumber)
	s.mutex.Unlock()
}

func (s *StreamStats) observeRTCP(payload []byte) {
	pkts, err := rtcp.Unmarshal(payload)
	if err != nil {
		return
	}
	s.rtcp.Add(uint64(len(pkts)))
}

// Snapshot is a point-in-time read of the accumulated counters.
type Snapshot struct {
	Packets uint64
	Bytes   uint64
	RTCP    uint64
	Lost    uint64
	SSRC    uint32
}

// Snapshot returns the current counters.
func (s *StreamStats) Snapshot() Snapshot {
	s.mutex.Lock()
	lost := s.seq.lost
	ssrc := s.lastSSRC
	s.mutex.Unlock()

	return Snapshot{
		Packets: s.packets.Load(),
		Bytes:   s.bytes.Load(),
		RTCP:    s.rtcp.Load(),
		Lost:    lost,
		SSRC:    ssrc,
	}
}

// LossRate returns the estimated fraction (0..1) of RTP packets lost,
// based on sequence-number gaps.
func (snap Snapshot) LossRate() float64 {
	total := snap.Packets + snap.Lost
	if total == 0 {
		return 0
	}
	return float64(snap.Lost) / float64(total)
}

// seqTracker detects gaps in a 16-bit RTP sequence number space,
// tolerating wraparound and duplicate/out-of-order packets the same
// way RFC 3550 appendix A.1 does.
type seqTracker struct {
	initialized bool
	lastSeq     uint16
	lost        uint64
}

func (t *seqTracker) push(seq uint16) {
	if !t.initialized {
		t.lastSeq = seq
		t.initialized = true
		return
	}

	delta := seq - t.lastSeq
	switch {
	case delta == 0:
		// duplicate, ignore
	case delta < 0x8000:
		if delta > 1 {
			t.lost += uint64(delta - 1)
		}
		t.lastSeq = seq
	default:
		// out-of-order or reordered packet behind the window; don't
		// count as loss, but don't move the window backwards either
	}
}
