package rooms

import (
	"context"
	"net/http"
	"screenshare/core"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	// RoomSource is the read side of the relay.
	RoomSource interface {
		Rooms(ctx context.Context) ([]core.Room, error)
		Room(roomID string) (core.Room, bool)
	}

	RoomSummary struct {
		ID         string `json:"id"`
		Users      int    `json:"users"`
		Sharing    bool   `json:"sharing"`
		LastActive int64  `json:"lastActive,omitempty"`
	}

	RoomCreateResponse struct {
		ID string `json:"id"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

// Routes mounts the room API under the caller's prefix.
func Routes(source RoomSource) chi.Router {
	r := chi.NewRouter()
	r.Get("/", HandleList(source))
	r.Post("/", HandleCreate())
	r.Get("/{roomId}", HandleGet(source))
	return r
}

// HandleList lists active rooms, busiest first.
func HandleList(source RoomSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := source.Rooms(r.Context())
		if err != nil {
			logrus.WithField("error", err).Error("Failed to list rooms")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, errorResponse{Error: "failed to list rooms"})
			return
		}

		list := make([]RoomSummary, 0, len(rooms))
		for _, room := range rooms {
			list = append(list, RoomSummary{
				ID:         room.ID,
				Users:      len(room.Members),
				Sharing:    room.ActiveSharer != "",
				LastActive: room.LastActive,
			})
		}

		sort.Slice(list, func(i, j int) bool {
			if list[i].Users != list[j].Users {
				return list[i].Users > list[j].Users
			}
			if list[i].LastActive != list[j].LastActive {
				return list[i].LastActive > list[j].LastActive
			}
			return list[i].ID < list[j].ID
		})

		render.JSON(w, r, list)
	}
}

// HandleGet returns a single room with its members and active sharer.
func HandleGet(source RoomSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		room, ok := source.Room(roomID)
		if !ok {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, errorResponse{Error: core.ErrUnknownRoom.Error()})
			return
		}
		if room.Members == nil {
			room.Members = []string{}
		}
		render.JSON(w, r, room)
	}
}

// HandleCreate hands out a fresh room id. The room itself comes into
// existence when the first participant joins it.
func HandleCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := core.GenerateRoomID()
		logrus.WithField("room_id", id).Debug("Generated room id")

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, RoomCreateResponse{ID: id})
	}
}
