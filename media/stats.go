package media

import (
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type StatsSnapshot struct {
	Codec   string
	Packets uint64
	Bytes   uint64
	Frames  uint64
	Lost    uint64
	Elapsed time.Duration
}

// Stats counts packets, frames and sequence gaps of a received track.
type Stats struct {
	mu      sync.Mutex
	snap    StatsSnapshot
	started time.Time
	lastSeq uint16
	seen    bool
	now     func() time.Time
}

func NewStats() *Stats {
	return &Stats{now: time.Now}
}

// Factory attaches s to each newly rendered track, resetting its counters.
func (s *Stats) Factory() HandlerFactory {
	return func(codec webrtc.RTPCodecParameters) (PacketHandler, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.snap = StatsSnapshot{Codec: codec.MimeType}
		s.seen = false
		s.started = s.now()
		return s, nil
	}
}

func (s *Stats) HandlePacket(pkt *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen {
		// uint16 arithmetic handles wraparound.
		if gap := pkt.SequenceNumber - s.lastSeq; gap > 1 && gap < 1<<15 {
			s.snap.Lost += uint64(gap - 1)
		}
	}
	s.lastSeq = pkt.SequenceNumber
	s.seen = true

	s.snap.Packets++
	s.snap.Bytes += uint64(len(pkt.Payload))
	if pkt.Marker {
		s.snap.Frames++
	}
	return nil
}

func (s *Stats) Close() error { return nil }

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	if !s.started.IsZero() {
		snap.Elapsed = s.now().Sub(s.started)
	}
	return snap
}
