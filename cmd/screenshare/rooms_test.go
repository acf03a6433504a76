package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"screenshare/config"
	"screenshare/core"
	"screenshare/handlers/api/rooms"
	"screenshare/negotiation"
	"screenshare/relay"
	"screenshare/stores/memory"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestRelay(t *testing.T) *httptest.Server {
	t.Helper()
	rl := relay.New(memory.NewRoomRegistry())
	r := chi.NewRouter()
	r.Mount("/api/rooms", rooms.Routes(rl))

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		rl.Close()
	})
	return srv
}

func TestFetchRoomsEmpty(t *testing.T) {
	srv := newTestRelay(t)

	list, err := fetchRooms(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetchRooms: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("Expected no rooms, got %v", list)
	}
}

func TestFetchRoomsUnreachable(t *testing.T) {
	srv := newTestRelay(t)
	url := srv.URL
	srv.Close()

	if _, err := fetchRooms(context.Background(), url); err == nil {
		t.Error("Expected an error from a closed relay")
	}
}

func TestResolveRoom(t *testing.T) {
	srv := newTestRelay(t)
	cfg = &config.Config{ServerURL: srv.URL}
	t.Cleanup(func() { cfg = nil })

	id, err := resolveRoom(context.Background(), "")
	if err != nil {
		t.Fatalf("resolveRoom: %v", err)
	}
	if err := core.ValidateRoomID(id); err != nil {
		t.Errorf("Relay generated an invalid id %q: %v", id, err)
	}

	if got, err := resolveRoom(context.Background(), "room_given1"); err != nil || got != "room_given1" {
		t.Errorf("Expected the given room back, got %q, %v", got, err)
	}

	if _, err := resolveRoom(context.Background(), " padded "); !errors.Is(err, core.ErrInvalidRoomID) {
		t.Errorf("Expected ErrInvalidRoomID, got %v", err)
	}
}

func TestResolveRoomFallsBackOffline(t *testing.T) {
	srv := newTestRelay(t)
	cfg = &config.Config{ServerURL: srv.URL}
	t.Cleanup(func() { cfg = nil })
	srv.Close()

	id, err := resolveRoom(context.Background(), "")
	if err != nil {
		t.Fatalf("resolveRoom: %v", err)
	}
	if err := core.ValidateRoomID(id); err != nil {
		t.Errorf("Fallback id %q is invalid: %v", id, err)
	}
}

func TestViewOnlyHasNoSource(t *testing.T) {
	if _, err := (viewOnly{}).Acquire(context.Background(), negotiation.DefaultConstraints); !errors.Is(err, core.ErrNoSourceAvailable) {
		t.Errorf("Expected ErrNoSourceAvailable, got %v", err)
	}
}
