// Package relay routes signaling messages between the participants of a
// room. It owns the room registry for its lifetime; transports feed it
// through Connect, Handle and Disconnect.
package relay

import (
	"context"
	"errors"
	"fmt"
	"screenshare/core"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("relay closed")

type participant struct {
	ch   core.Channel
	room string
}

type Relay struct {
	// mu serialises every registry mutation together with the enqueue of
	// the messages it causes, so per-sender order survives forwarding.
	mu           sync.Mutex
	registry     core.RoomRegistry
	participants map[string]*participant
	closed       bool
}

func New(registry core.RoomRegistry) *Relay {
	return &Relay{
		registry:     registry,
		participants: make(map[string]*participant),
	}
}

// Connect registers a newly connected client. The participant starts
// unassigned until it sends join.
func (r *Relay) Connect(ch core.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, exists := r.participants[ch.ID()]; exists {
		return fmt.Errorf("participant %s already connected", ch.ID())
	}
	r.participants[ch.ID()] = &participant{ch: ch}
	logrus.WithField("participant_id", ch.ID()).Debug("Participant connected")
	return nil
}

// Disconnect removes the participant from its room. If it was sharing, the
// remaining members receive stop-sharing.
func (r *Relay) Disconnect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return
	}
	r.leave(p)
	delete(r.participants, id)
	logrus.WithField("participant_id", id).Debug("Participant disconnected")
}

// Handle processes one inbound message from senderID. The returned error
// is for the transport's log only; it is never sent to other clients.
func (r *Relay) Handle(senderID string, msg core.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[senderID]
	if !ok {
		return unknownParticipant(senderID)
	}

	log := logrus.WithFields(logrus.Fields{
		"participant_id": senderID,
		"message_type":   msg.Type,
		"room_id":        msg.Room,
	})

	var err error
	switch msg.Type {
	case core.TypeJoin:
		err = r.handleJoin(p, msg)
	case core.TypeOffer:
		err = r.handleOffer(p, msg)
	case core.TypeAnswer:
		err = r.handleAnswer(p, msg)
	case core.TypeICECandidate:
		err = r.handleICECandidate(p, msg)
	case core.TypeStopSharing:
		err = r.handleStopSharing(p, msg)
	default:
		err = fmt.Errorf("%w: %q", core.ErrUnknownMessage, msg.Type)
	}

	if err != nil {
		log.WithError(err).Debug("Message not relayed")
	}
	return err
}

func (r *Relay) handleJoin(p *participant, msg core.Message) error {
	if err := core.ValidateRoomID(msg.Room); err != nil {
		p.ch.Send(core.Message{Type: core.TypeError, Room: msg.Room, Error: err.Error()})
		return err
	}
	if p.room == msg.Room {
		return nil
	}
	if p.room != "" {
		r.leave(p)
	}

	r.registry.EnsureRoom(msg.Room)
	r.registry.AddMember(msg.Room, p.ch.ID())
	p.room = msg.Room

	logrus.WithFields(logrus.Fields{
		"participant_id": p.ch.ID(),
		"room_id":        msg.Room,
	}).Info("Participant joined room")

	r.broadcastMembers(msg.Room)
	return nil
}

func (r *Relay) handleOffer(p *participant, msg core.Message) error {
	room, err := r.memberRoom(p, msg.Room)
	if err != nil {
		return err
	}

	id := p.ch.ID()
	if !r.registry.SetActiveSharer(room.ID, id) {
		p.ch.Send(core.Message{
			Type:  core.TypeSharerConflict,
			Room:  room.ID,
			Error: core.ErrSharerConflict.Error(),
		})
		logrus.WithFields(logrus.Fields{
			"participant_id": id,
			"room_id":        room.ID,
			"active_sharer":  room.ActiveSharer,
		}).Info("Rejected offer from second sharer")
		return core.ErrSharerConflict
	}

	r.forwardToOthers(room, id, msg)
	return nil
}

func (r *Relay) handleAnswer(p *participant, msg core.Message) error {
	room, err := r.memberRoom(p, msg.Room)
	if err != nil {
		return err
	}
	if room.ActiveSharer == "" {
		logrus.WithField("room_id", room.ID).Warn("Dropping answer: room has no active sharer")
		return core.ErrNoActiveSharer
	}
	if room.ActiveSharer == p.ch.ID() {
		return fmt.Errorf("%w: sharer answered its own offer", core.ErrNegotiation)
	}

	target, ok := r.participants[room.ActiveSharer]
	if !ok {
		return unknownParticipant(room.ActiveSharer)
	}
	target.ch.Send(relayed(p.ch.ID(), room.ID, msg))
	return nil
}

func (r *Relay) handleICECandidate(p *participant, msg core.Message) error {
	room, err := r.memberRoom(p, msg.Room)
	if err != nil {
		return err
	}
	r.forwardToOthers(room, p.ch.ID(), msg)
	return nil
}

func (r *Relay) handleStopSharing(p *participant, msg core.Message) error {
	room, err := r.memberRoom(p, msg.Room)
	if err != nil {
		return err
	}
	if !r.registry.ClearActiveSharer(room.ID, p.ch.ID()) {
		// Repeated or stray stop-sharing is a no-op.
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"participant_id": p.ch.ID(),
		"room_id":        room.ID,
	}).Info("Sharing stopped")
	r.forwardToOthers(room, p.ch.ID(), msg)
	return nil
}

// memberRoom resolves the room a message refers to and checks that the
// sender belongs to it. An empty room id means the sender's current room.
func (r *Relay) memberRoom(p *participant, roomID string) (core.Room, error) {
	if roomID == "" {
		roomID = p.room
	}
	if roomID == "" {
		return core.Room{}, core.ErrNotAMember
	}

	room, ok := r.registry.Room(roomID)
	if !ok {
		return core.Room{}, fmt.Errorf("%w: %s", core.ErrUnknownRoom, roomID)
	}
	if p.room != roomID || !room.HasMember(p.ch.ID()) {
		return core.Room{}, fmt.Errorf("%w: %s", core.ErrNotAMember, roomID)
	}
	return room, nil
}

func (r *Relay) leave(p *participant) {
	if p.room == "" {
		return
	}
	roomID := p.room
	id := p.ch.ID()
	p.room = ""

	wasSharer, deleted := r.registry.RemoveMember(roomID, id)
	log := logrus.WithFields(logrus.Fields{
		"participant_id": id,
		"room_id":        roomID,
	})
	if deleted {
		log.Info("Last participant left, room removed")
		return
	}

	room, ok := r.registry.Room(roomID)
	if !ok {
		return
	}
	if wasSharer {
		log.Info("Active sharer left room")
		r.forwardToOthers(room, id, core.Message{Type: core.TypeStopSharing, Room: roomID})
	}
	r.broadcastMembers(roomID)
}

func (r *Relay) forwardToOthers(room core.Room, senderID string, msg core.Message) {
	out := relayed(senderID, room.ID, msg)
	for _, member := range room.Members {
		if member == senderID {
			continue
		}
		if target, ok := r.participants[member]; ok {
			target.ch.Send(out)
		}
	}
}

func (r *Relay) broadcastMembers(roomID string) {
	room, ok := r.registry.Room(roomID)
	if !ok {
		return
	}
	msg := core.Message{Type: core.TypeRoomMembers, Room: roomID, Members: room.Members}
	for _, member := range room.Members {
		if target, ok := r.participants[member]; ok {
			target.ch.Send(msg)
		}
	}
}

func relayed(senderID, roomID string, msg core.Message) core.Message {
	return core.Message{
		Type:    msg.Type,
		Room:    roomID,
		From:    senderID,
		Payload: msg.Payload,
	}
}

// Role reports the participant's role in its current room.
func (r *Relay) Role(id string) core.Role {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok || p.room == "" {
		return core.RoleUnassigned
	}
	if room, ok := r.registry.Room(p.room); ok && room.ActiveSharer == id {
		return core.RoleSharer
	}
	return core.RoleViewer
}

// CurrentRoom returns the room the participant has joined, if any.
func (r *Relay) CurrentRoom(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok || p.room == "" {
		return "", false
	}
	return p.room, true
}

func (r *Relay) Rooms(ctx context.Context) ([]core.Room, error) {
	return r.registry.ListRooms(ctx)
}

func (r *Relay) Room(roomID string) (core.Room, bool) {
	return r.registry.Room(roomID)
}

// Close removes every participant from its room and refuses new
// connections. Transports remain responsible for their own sockets.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for id, p := range r.participants {
		r.leave(p)
		delete(r.participants, id)
	}
	logrus.Info("Relay closed")
}

func unknownParticipant(id string) error {
	return fmt.Errorf("%w: %s", core.ErrUnknownSender, id)
}
