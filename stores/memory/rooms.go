package memory

import (
	"context"
	"screenshare/core"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// emptyRoomTTL bounds how long a room created by EnsureRoom may stay
// without members before it is reclaimed.
const emptyRoomTTL = time.Minute

type room struct {
	id         string
	members    map[string]struct{}
	order      []string
	sharer     string
	createdAt  int64
	lastActive int64
}

type roomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*room
	now   func() time.Time
}

func NewRoomRegistry() core.RoomRegistry {
	return &roomRegistry{
		rooms: make(map[string]*room),
		now:   time.Now,
	}
}

func (s *roomRegistry) EnsureRoom(roomID string) core.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ensure(roomID).snapshot()
}

func (s *roomRegistry) ensure(roomID string) *room {
	r, ok := s.rooms[roomID]
	if ok {
		return r
	}

	s.reclaimEmpty()
	ts := s.now().UnixMilli()
	r = &room{
		id:         roomID,
		members:    make(map[string]struct{}),
		createdAt:  ts,
		lastActive: ts,
	}
	s.rooms[roomID] = r
	logrus.WithField("room_id", roomID).Debug("Room created")
	return r
}

// reclaimEmpty deletes rooms that nobody joined within emptyRoomTTL.
func (s *roomRegistry) reclaimEmpty() {
	cutoff := s.now().Add(-emptyRoomTTL).UnixMilli()
	for id, r := range s.rooms {
		if len(r.members) == 0 && r.lastActive <= cutoff {
			delete(s.rooms, id)
			logrus.WithField("room_id", id).Debug("Empty room reclaimed")
		}
	}
}

func (s *roomRegistry) AddMember(roomID, participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.ensure(roomID)
	if _, ok := r.members[participantID]; ok {
		return
	}
	r.members[participantID] = struct{}{}
	r.order = append(r.order, participantID)
	r.lastActive = s.now().UnixMilli()

	logrus.WithFields(logrus.Fields{
		"room_id":        roomID,
		"participant_id": participantID,
		"members":        len(r.members),
	}).Debug("Member added")
}

func (s *roomRegistry) RemoveMember(roomID, participantID string) (wasSharer, deleted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return false, false
	}
	if _, ok := r.members[participantID]; !ok {
		return false, false
	}

	delete(r.members, participantID)
	for i, id := range r.order {
		if id == participantID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.sharer == participantID {
		r.sharer = ""
		wasSharer = true
	}
	r.lastActive = s.now().UnixMilli()

	log := logrus.WithFields(logrus.Fields{
		"room_id":        roomID,
		"participant_id": participantID,
	})
	if len(r.members) == 0 {
		delete(s.rooms, roomID)
		log.Debug("Room deleted")
		return wasSharer, true
	}
	log.Debug("Member removed")
	return wasSharer, false
}

func (s *roomRegistry) SetActiveSharer(roomID, participantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := r.members[participantID]; !ok {
		return false
	}
	if r.sharer != "" && r.sharer != participantID {
		return false
	}
	r.sharer = participantID
	r.lastActive = s.now().UnixMilli()
	return true
}

func (s *roomRegistry) ClearActiveSharer(roomID, participantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok || r.sharer == "" || r.sharer != participantID {
		return false
	}
	r.sharer = ""
	r.lastActive = s.now().UnixMilli()
	return true
}

func (s *roomRegistry) Room(roomID string) (core.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return core.Room{}, false
	}
	return r.snapshot(), true
}

func (s *roomRegistry) ListRooms(ctx context.Context) ([]core.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]core.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if len(r.members) == 0 {
			continue
		}
		rooms = append(rooms, r.snapshot())
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActive == rooms[j].LastActive {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].LastActive > rooms[j].LastActive
	})

	return rooms, nil
}

func (r *room) snapshot() core.Room {
	members := make([]string, len(r.order))
	copy(members, r.order)
	return core.Room{
		ID:           r.id,
		Members:      members,
		ActiveSharer: r.sharer,
		CreatedAt:    r.createdAt,
		LastActive:   r.lastActive,
	}
}
