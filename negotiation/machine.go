// Package negotiation drives one participant's peer connection through the
// screen-share lifecycle. Every inbound event is handled under a single
// lock, so a session is never touched by two events at once.
package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"screenshare/core"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrInvalidState = errors.New("operation not valid in current state")

type Config struct {
	Signaler    Signaler
	NewPeer     PeerFactory
	Capture     CaptureSource
	Renderer    Renderer
	Constraints *Constraints

	// Callbacks run outside the machine lock and may call back into it.
	OnStateChange func(from, to State)
	OnError       func(err error)
	OnMembers     func(members []string)
}

type Machine struct {
	mu    sync.Mutex
	cfg   Config
	state State
	room  string
	sess  *session

	// acquiring is set while StartSharing waits for the capture source.
	acquiring bool

	notify []func()
}

func New(cfg Config) *Machine {
	if cfg.Constraints == nil {
		c := DefaultConstraints
		cfg.Constraints = &c
	}
	return &Machine{cfg: cfg, state: StateIdle}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Room() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

func (m *Machine) lock() {
	m.mu.Lock()
}

// unlock releases the machine and then runs queued callbacks.
func (m *Machine) unlock() {
	notify := m.notify
	m.notify = nil
	m.mu.Unlock()
	for _, fn := range notify {
		fn()
	}
}

func (m *Machine) log() *logrus.Entry {
	fields := logrus.Fields{"room_id": m.room, "state": m.state.String()}
	if m.sess != nil {
		fields["session_id"] = m.sess.id
	}
	return logrus.WithFields(fields)
}

func (m *Machine) setState(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.log().WithField("from", from.String()).Debug("State changed")
	if fn := m.cfg.OnStateChange; fn != nil {
		m.notify = append(m.notify, func() { fn(from, to) })
	}
}

// surface reports err to the observer and returns it.
func (m *Machine) surface(err error) error {
	if fn := m.cfg.OnError; fn != nil {
		m.notify = append(m.notify, func() { fn(err) })
	}
	return err
}

// Join enters roomID, leaving any current room and session first.
func (m *Machine) Join(roomID string) error {
	m.lock()
	defer m.unlock()

	if err := core.ValidateRoomID(roomID); err != nil {
		return m.surface(err)
	}
	if m.state != StateIdle && m.room == roomID {
		return nil
	}

	m.teardown()
	if err := m.cfg.Signaler.Send(core.Message{Type: core.TypeJoin, Room: roomID}); err != nil {
		return m.surface(fmt.Errorf("send join: %w", err))
	}
	m.room = roomID
	if err := m.replaceSession(); err != nil {
		m.setState(StateStopped)
		return m.surface(err)
	}
	m.setState(StateJoined)
	m.log().Info("Joined room")
	return nil
}

// StartSharing acquires a display stream and offers it to the room.
// Capture runs without the machine lock; if the machine left the ready
// state in the meantime the stream is released and ErrInvalidState
// returned.
func (m *Machine) StartSharing(ctx context.Context) error {
	m.lock()
	if !m.state.Ready() || m.acquiring {
		err := m.surface(fmt.Errorf("%w: start sharing in %s", ErrInvalidState, m.state))
		m.unlock()
		return err
	}
	m.acquiring = true
	room := m.room
	m.unlock()

	stream, err := m.cfg.Capture.Acquire(ctx, *m.cfg.Constraints)

	m.lock()
	defer m.unlock()
	m.acquiring = false

	if err != nil {
		m.log().WithError(err).Warn("Capture failed")
		return m.surface(err)
	}
	if !m.state.Ready() || m.room != room {
		stream.Stop()
		m.log().Info("Capture resolved after the session moved on")
		return m.surface(fmt.Errorf("%w: state changed to %s during capture", ErrInvalidState, m.state))
	}

	if m.sess == nil || m.sess.used {
		if err := m.replaceSession(); err != nil {
			stream.Stop()
			return m.surface(err)
		}
	}
	sess := m.sess
	sess.capture = stream
	// Remote candidates queued while ready were meant for another offer.
	sess.pending = nil
	m.setState(StateSharingOffering)

	if n, ok := stream.(EndNotifier); ok {
		n.OnEnded(func() { go m.captureEnded(sess) })
	}
	if m.cfg.Renderer != nil {
		m.cfg.Renderer.Attach(stream)
	}

	if err := sess.pc.AddStream(stream); err != nil {
		return m.failSession(asNegotiationError("add stream", err), false)
	}
	offer, err := sess.pc.CreateOffer()
	if err != nil {
		return m.failSession(asNegotiationError("create offer", err), false)
	}
	if err := sess.setLocal(offer); err != nil {
		return m.failSession(err, false)
	}

	msg, err := core.NewMessage(core.TypeOffer, m.room, offer)
	if err != nil {
		return m.failSession(err, false)
	}
	if err := m.cfg.Signaler.Send(msg); err != nil {
		return m.failSession(fmt.Errorf("send offer: %w", err), false)
	}
	sess.descriptionSent()
	m.log().Info("Offer sent")
	return nil
}

// StopSharing ends the current session. A sharer releases its capture
// before notifying the room; a viewer only clears its rendered stream.
// Stopping when nothing is active is a no-op.
func (m *Machine) StopSharing() error {
	m.lock()
	defer m.unlock()
	return m.stopLocked()
}

func (m *Machine) stopLocked() error {
	switch {
	case m.state.Sharing():
		m.sess.releaseCapture()
		err := m.cfg.Signaler.Send(core.Message{Type: core.TypeStopSharing, Room: m.room})
		m.detach()
		m.resetSession()
		m.setState(StateStopped)
		m.log().Info("Stopped sharing")
		if err != nil {
			return m.surface(fmt.Errorf("send stop-sharing: %w", err))
		}
		return nil
	case m.state.Viewing():
		m.detach()
		m.resetSession()
		m.setState(StateStopped)
		m.log().Info("Stopped viewing")
	}
	return nil
}

// Close abandons the room without signaling; the relay treats the
// transport disconnect as an implicit stop.
func (m *Machine) Close() {
	m.lock()
	defer m.unlock()

	m.teardown()
	m.room = ""
	m.setState(StateIdle)
}

func (m *Machine) teardown() {
	if m.state.Sharing() || m.state.Viewing() {
		m.detach()
	}
	m.discardSession()
}

// HandleMessage applies one message received from the relay. Every
// (state, message) pair is defined; pairs with no transition are logged
// and ignored.
func (m *Machine) HandleMessage(msg core.Message) error {
	m.lock()
	defer m.unlock()

	if msg.Room != "" && m.room != "" && msg.Room != m.room {
		m.log().WithField("message_room", msg.Room).Debug("Ignoring message for another room")
		return nil
	}

	switch msg.Type {
	case core.TypeOffer:
		return m.onOffer(msg)
	case core.TypeAnswer:
		return m.onAnswer(msg)
	case core.TypeICECandidate:
		return m.onCandidate(msg)
	case core.TypeStopSharing:
		return m.onRemoteStop()
	case core.TypeSharerConflict:
		return m.onSharerConflict()
	case core.TypeRoomMembers:
		if fn := m.cfg.OnMembers; fn != nil {
			members := append([]string(nil), msg.Members...)
			m.notify = append(m.notify, func() { fn(members) })
		}
		return nil
	case core.TypeError:
		return m.surface(fmt.Errorf("relay: %s", msg.Error))
	}

	m.log().WithField("message_type", msg.Type).Warn("Ignoring unknown message")
	return fmt.Errorf("%w: %q", core.ErrUnknownMessage, msg.Type)
}

func (m *Machine) onOffer(msg core.Message) error {
	if !m.state.Ready() && !m.state.Viewing() {
		m.log().Warn("Ignoring offer")
		return nil
	}

	var desc core.SessionDescription
	if err := json.Unmarshal(msg.Payload, &desc); err != nil {
		return m.failSession(core.NewNegotiationError("decode offer", err), false)
	}

	// A new offer supersedes whatever session came before it.
	if m.state.Viewing() {
		m.detach()
		m.discardSession()
	}
	if m.sess == nil || m.sess.used {
		if err := m.replaceSession(); err != nil {
			m.setState(StateStopped)
			return m.surface(err)
		}
	}
	sess := m.sess
	m.setState(StateViewingAwaitingOffer)

	if err := sess.setRemote(desc); err != nil {
		return m.failSession(err, false)
	}
	answer, err := sess.pc.CreateAnswer()
	if err != nil {
		return m.failSession(asNegotiationError("create answer", err), false)
	}
	out, err := core.NewMessage(core.TypeAnswer, m.room, answer)
	if err != nil {
		return m.failSession(err, false)
	}
	if err := m.cfg.Signaler.Send(out); err != nil {
		return m.failSession(fmt.Errorf("send answer: %w", err), false)
	}
	sess.descriptionSent()
	if err := sess.setLocal(answer); err != nil {
		return m.failSession(err, false)
	}

	m.setState(StateViewingConnected)
	m.log().Info("Answered offer")
	return nil
}

func (m *Machine) onAnswer(msg core.Message) error {
	if m.state != StateSharingOffering {
		m.log().Warn("Ignoring answer")
		return nil
	}

	var desc core.SessionDescription
	if err := json.Unmarshal(msg.Payload, &desc); err != nil {
		return m.failSession(core.NewNegotiationError("decode answer", err), true)
	}
	if err := m.sess.setRemote(desc); err != nil {
		return m.failSession(err, true)
	}

	m.setState(StateSharingConnected)
	m.log().Info("Answer applied")
	return nil
}

func (m *Machine) onCandidate(msg core.Message) error {
	if m.sess == nil || m.state == StateIdle {
		m.log().Debug("Ignoring ice candidate without session")
		return nil
	}

	var c core.ICECandidate
	if err := json.Unmarshal(msg.Payload, &c); err != nil {
		return m.failSession(core.NewNegotiationError("decode ice candidate", err), m.state.Sharing())
	}
	if err := m.sess.addCandidate(c); err != nil {
		return m.failSession(err, m.state.Sharing())
	}
	return nil
}

func (m *Machine) onRemoteStop() error {
	if !m.state.Viewing() {
		m.log().Debug("Ignoring stop-sharing")
		return nil
	}
	m.detach()
	m.resetSession()
	m.setState(StateStopped)
	m.log().Info("Sharer stopped")
	return nil
}

func (m *Machine) onSharerConflict() error {
	if m.state != StateSharingOffering {
		m.log().Debug("Ignoring sharer-conflict")
		return nil
	}

	m.detach()
	m.discardSession()
	if err := m.replaceSession(); err != nil {
		m.setState(StateStopped)
		return m.surface(err)
	}
	m.setState(StateJoined)
	m.log().Info("Room already has a sharer")
	return m.surface(core.ErrSharerConflict)
}

// failSession discards the session after a negotiation failure. A sharer
// whose offer already reached the relay also releases its sharer slot.
func (m *Machine) failSession(err error, releaseSlot bool) error {
	m.log().WithError(err).Warn("Negotiation failed")
	sharing := m.state.Sharing()
	if sharing && m.sess != nil {
		m.sess.releaseCapture()
	}
	if sharing && (releaseSlot || m.state == StateSharingConnected) {
		if sendErr := m.cfg.Signaler.Send(core.Message{Type: core.TypeStopSharing, Room: m.room}); sendErr != nil {
			m.log().WithError(sendErr).Debug("Failed to release sharer slot")
		}
	}
	m.detach()
	m.resetSession()
	m.setState(StateStopped)
	return m.surface(err)
}

func (m *Machine) replaceSession() error {
	m.discardSession()
	pc, err := m.cfg.NewPeer()
	if err != nil {
		return core.NewNegotiationError("create peer connection", err)
	}

	room := m.room
	var sess *session
	sess = newSession(pc, func(c core.ICECandidate) {
		msg, err := core.NewMessage(core.TypeICECandidate, room, c)
		if err == nil {
			err = m.cfg.Signaler.Send(msg)
		}
		if err != nil {
			logrus.WithField("session_id", sess.id).WithError(err).Debug("Failed to send ice candidate")
		}
	})
	pc.OnICECandidate(sess.localCandidate)
	// Tracks may be announced while the machine lock is held, so they are
	// applied from a separate goroutine.
	pc.OnTrack(func(stream MediaStream) {
		go m.remoteTrack(sess, stream)
	})

	m.sess = sess
	return nil
}

// resetSession leaves an unused session behind a stop, so candidates that
// arrive ahead of the next offer have somewhere to queue.
func (m *Machine) resetSession() {
	if m.room == "" {
		m.discardSession()
		return
	}
	if err := m.replaceSession(); err != nil {
		m.log().WithError(err).Warn("Failed to prepare the next session")
	}
}

func (m *Machine) discardSession() {
	if m.sess == nil {
		return
	}
	m.sess.close()
	m.sess = nil
}

func (m *Machine) detach() {
	if m.cfg.Renderer != nil {
		m.cfg.Renderer.Detach()
	}
}

func (m *Machine) remoteTrack(sess *session, stream MediaStream) {
	m.lock()
	defer m.unlock()

	// The sharer keeps previewing its own capture.
	if sess != m.sess || !m.state.Viewing() {
		return
	}
	if m.cfg.Renderer != nil {
		m.cfg.Renderer.Attach(stream)
	}
	m.log().WithField("stream_id", stream.ID()).Info("Rendering remote stream")
}

func (m *Machine) captureEnded(sess *session) {
	m.lock()
	defer m.unlock()

	if sess != m.sess || !m.state.Sharing() {
		return
	}
	m.log().Info("Capture ended")
	_ = m.stopLocked()
}
