package negotiation

import (
	"screenshare/core"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// session is one sharing or viewing attempt bound to a single peer
// connection. It is never reused once a description has been applied.
type session struct {
	id      string
	pc      PeerConnection
	capture MediaStream

	// Candidates received before the remote description, in arrival order.
	pending   []core.ICECandidate
	remoteSet bool
	used      bool

	// Local candidates gathered before our description was handed to the
	// signaler. The peer may emit them from any goroutine, including from
	// inside SetLocalDescription.
	emitMu   sync.Mutex
	emit     func(core.ICECandidate)
	signaled bool
	held     []core.ICECandidate

	closed atomic.Bool
}

func newSession(pc PeerConnection, emit func(core.ICECandidate)) *session {
	return &session{
		id:   ulid.Make().String(),
		pc:   pc,
		emit: emit,
	}
}

// localCandidate forwards c once the local description has been sent.
func (s *session) localCandidate(c core.ICECandidate) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if s.closed.Load() {
		return
	}
	if !s.signaled {
		s.held = append(s.held, c)
		return
	}
	s.emit(c)
}

// descriptionSent releases held local candidates in gathering order.
func (s *session) descriptionSent() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.signaled = true
	held := s.held
	s.held = nil
	for _, c := range held {
		s.emit(c)
	}
}

func (s *session) setRemote(desc core.SessionDescription) error {
	s.used = true
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return asNegotiationError("set remote description", err)
	}
	s.remoteSet = true
	return s.flush()
}

func (s *session) setLocal(desc core.SessionDescription) error {
	s.used = true
	if err := s.pc.SetLocalDescription(desc); err != nil {
		return asNegotiationError("set local description", err)
	}
	return nil
}

func (s *session) addCandidate(c core.ICECandidate) error {
	if !s.remoteSet {
		s.pending = append(s.pending, c)
		return nil
	}
	if err := s.pc.AddICECandidate(c); err != nil {
		return asNegotiationError("add ice candidate", err)
	}
	return nil
}

func (s *session) flush() error {
	pending := s.pending
	s.pending = nil
	for i, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			s.pending = pending[i+1:]
			return asNegotiationError("add queued ice candidate", err)
		}
	}
	return nil
}

func (s *session) releaseCapture() {
	if s.capture != nil {
		s.capture.Stop()
		s.capture = nil
	}
}

// close stops the local capture before tearing down the peer connection.
func (s *session) close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.releaseCapture()
	if err := s.pc.Close(); err != nil {
		logrus.WithField("session_id", s.id).WithError(err).Debug("Peer connection close failed")
	}
}

func asNegotiationError(op string, err error) error {
	if _, ok := err.(*core.NegotiationError); ok {
		return err
	}
	return core.NewNegotiationError(op, err)
}
