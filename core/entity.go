package core

import (
	"context"
)

type (
	// Room is a point-in-time view of a room held by a RoomRegistry.
	Room struct {
		ID           string   `json:"id"`
		Members      []string `json:"members"`
		ActiveSharer string   `json:"activeSharer,omitempty"`
		CreatedAt    int64    `json:"createdAt"`
		LastActive   int64    `json:"lastActive"`
	}

	// RoomRegistry maps room ids to their member sets. It knows nothing
	// about the signaling protocol; notifying members is the relay's job.
	RoomRegistry interface {
		EnsureRoom(roomID string) Room
		AddMember(roomID, participantID string)
		// RemoveMember reports whether the participant was the active sharer
		// and whether the room was deleted because it became empty.
		RemoveMember(roomID, participantID string) (wasSharer, deleted bool)
		SetActiveSharer(roomID, participantID string) bool
		ClearActiveSharer(roomID, participantID string) bool
		Room(roomID string) (Room, bool)
		ListRooms(ctx context.Context) ([]Room, error)
	}

	// Channel is the relay's handle on one connected client. Send must not
	// block; transports queue or drop.
	Channel interface {
		ID() string
		Send(msg Message)
	}
)

// HasMember reports whether id is in the room's member set.
func (r Room) HasMember(id string) bool {
	for _, m := range r.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Role of a participant relative to its current room.
type Role string

const (
	RoleUnassigned Role = "unassigned"
	RoleViewer     Role = "viewer"
	RoleSharer     Role = "sharer"
)
