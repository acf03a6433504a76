// Package peer adapts pion/webrtc to the negotiation package's
// PeerConnection capability.
package peer

import (
	"errors"
	"fmt"
	"screenshare/core"
	"screenshare/negotiation"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

var ErrNoTracks = errors.New("stream has no local tracks")

// TrackSource is implemented by local streams that can be sent over a
// peer connection.
type TrackSource interface {
	Tracks() []webrtc.TrackLocal
}

type Config struct {
	STUNServers   []string
	LoggerFactory logging.LoggerFactory
}

// API builds peer connections sharing one media engine and setting engine.
type API struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
}

func NewAPI(cfg Config) (*API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	se := webrtc.SettingEngine{}
	if cfg.LoggerFactory != nil {
		se.LoggerFactory = cfg.LoggerFactory
	}

	var iceServers []webrtc.ICEServer
	if len(cfg.STUNServers) > 0 {
		iceServers = []webrtc.ICEServer{{URLs: cfg.STUNServers}}
	}

	return &API{
		api:        webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)),
		iceServers: iceServers,
	}, nil
}

// Factory returns a negotiation.PeerFactory backed by this API.
func (a *API) Factory() negotiation.PeerFactory {
	return func() (negotiation.PeerConnection, error) {
		return a.NewConnection()
	}
}

func (a *API) NewConnection() (*Connection, error) {
	pc, err := a.api.NewPeerConnection(webrtc.Configuration{ICEServers: a.iceServers})
	if err != nil {
		return nil, core.NewNegotiationError("create peer connection", err)
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logrus.WithField("state", state.String()).Debug("Peer connection state changed")
	})
	return &Connection{pc: pc}, nil
}

// Connection wraps a pion PeerConnection.
type Connection struct {
	pc *webrtc.PeerConnection
}

func (c *Connection) CreateOffer() (core.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return core.SessionDescription{}, core.NewNegotiationError("create offer", err)
	}
	return fromPion(offer), nil
}

func (c *Connection) CreateAnswer() (core.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return core.SessionDescription{}, core.NewNegotiationError("create answer", err)
	}
	return fromPion(answer), nil
}

func (c *Connection) SetLocalDescription(desc core.SessionDescription) error {
	pd, err := toPion(desc)
	if err == nil {
		err = c.pc.SetLocalDescription(pd)
	}
	if err != nil {
		return core.NewNegotiationError("set local description", err)
	}
	return nil
}

func (c *Connection) SetRemoteDescription(desc core.SessionDescription) error {
	pd, err := toPion(desc)
	if err == nil {
		err = c.pc.SetRemoteDescription(pd)
	}
	if err != nil {
		return core.NewNegotiationError("set remote description", err)
	}
	return nil
}

func (c *Connection) AddICECandidate(candidate core.ICECandidate) error {
	if err := c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	}); err != nil {
		return core.NewNegotiationError("add ice candidate", err)
	}
	return nil
}

// AddStream adds every track of a local stream. The stream must implement
// TrackSource.
func (c *Connection) AddStream(stream negotiation.MediaStream) error {
	src, ok := stream.(TrackSource)
	if !ok || len(src.Tracks()) == 0 {
		return core.NewNegotiationError("add stream", ErrNoTracks)
	}

	for _, track := range src.Tracks() {
		sender, err := c.pc.AddTrack(track)
		if err != nil {
			return core.NewNegotiationError("add track", err)
		}
		// Read incoming RTCP so interceptors keep running.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

func (c *Connection) OnICECandidate(fn func(core.ICECandidate)) {
	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		ci := candidate.ToJSON()
		fn(core.ICECandidate{
			Candidate:        ci.Candidate,
			SDPMid:           ci.SDPMid,
			SDPMLineIndex:    ci.SDPMLineIndex,
			UsernameFragment: ci.UsernameFragment,
		})
	})
}

func (c *Connection) OnTrack(fn func(negotiation.MediaStream)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		logrus.WithFields(logrus.Fields{
			"stream_id": track.StreamID(),
			"codec":     track.Codec().MimeType,
		}).Debug("Remote track received")
		fn(&RemoteStream{track: track, receiver: receiver})
	})
}

func (c *Connection) Close() error {
	return c.pc.Close()
}

// RemoteStream is a track received from the sharer.
type RemoteStream struct {
	track    *webrtc.TrackRemote
	receiver *webrtc.RTPReceiver
}

func (s *RemoteStream) ID() string { return s.track.StreamID() }

// Stop is a no-op; the viewer never owns the capture.
func (s *RemoteStream) Stop() {}

func (s *RemoteStream) Track() *webrtc.TrackRemote { return s.track }

func fromPion(desc webrtc.SessionDescription) core.SessionDescription {
	return core.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}
}

func toPion(desc core.SessionDescription) (webrtc.SessionDescription, error) {
	t := webrtc.NewSDPType(desc.Type)
	if t == webrtc.SDPTypeUnknown {
		return webrtc.SessionDescription{}, fmt.Errorf("unknown description type %q", desc.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: desc.SDP}, nil
}
