package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"screenshare/core"
	"screenshare/handlers/api/rooms"
	"screenshare/internal/ui"
	"screenshare/negotiation"
	"screenshare/peer"
	"screenshare/signaling"
	"time"

	"github.com/sirupsen/logrus"
)

// session bundles the relay connection and the negotiation machine of one
// CLI run.
type session struct {
	client  *signaling.Client
	machine *negotiation.Machine
	states  chan negotiation.State
	members chan []string
}

func newSession(ctx context.Context, capture negotiation.CaptureSource, renderer negotiation.Renderer) (*session, error) {
	api, err := peer.NewAPI(peer.Config{
		STUNServers:   cfg.GetSTUNServers(),
		LoggerFactory: peer.NewLoggerFactory(logrus.StandardLogger()),
	})
	if err != nil {
		return nil, err
	}

	client, err := signaling.Dial(ctx, cfg.WebSocketURL(), flagSubprotocol)
	if err != nil {
		return nil, err
	}

	s := &session{
		client:  client,
		states:  make(chan negotiation.State, 16),
		members: make(chan []string, 16),
	}
	s.machine = negotiation.New(negotiation.Config{
		Signaler: client,
		NewPeer:  api.Factory(),
		Capture:  capture,
		Renderer: renderer,
		OnStateChange: func(from, to negotiation.State) {
			logrus.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Debug("State changed")
			select {
			case s.states <- to:
			default:
			}
		},
		OnError: func(err error) {
			ui.PrintWarning(err.Error())
		},
		OnMembers: func(members []string) {
			select {
			case s.members <- members:
			default:
			}
		},
	})

	go client.Run(ctx, s.machine.HandleMessage)
	return s, nil
}

func (s *session) Close() {
	s.machine.Close()
	s.client.Close()
}

// resolveRoom returns roomID, or asks the relay for a fresh one.
func resolveRoom(ctx context.Context, roomID string) (string, error) {
	if roomID != "" {
		return roomID, core.ValidateRoomID(roomID)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.ServerURL+"/api/rooms", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logrus.WithError(err).Debug("Relay did not generate a room id")
		return core.GenerateRoomID(), nil
	}
	defer resp.Body.Close()

	var created rooms.RoomCreateResponse
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create room: relay returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	return created.ID, nil
}
