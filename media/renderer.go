package media

import (
	"errors"
	"io"
	"screenshare/negotiation"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// RemoteTrack is implemented by streams received over a peer connection.
type RemoteTrack interface {
	Track() *webrtc.TrackRemote
}

// PacketHandler consumes the RTP packets of one attached track.
type PacketHandler interface {
	HandlePacket(pkt *rtp.Packet) error
	Close() error
}

// HandlerFactory creates a handler once the track's codec is known.
type HandlerFactory func(codec webrtc.RTPCodecParameters) (PacketHandler, error)

// TrackRenderer implements negotiation.Renderer for headless viewers: it
// reads RTP from the attached remote track and hands every packet to its
// handlers. Local streams (the sharer's own preview) are ignored.
type TrackRenderer struct {
	factories []HandlerFactory

	mu      sync.Mutex
	current *attachment
}

type attachment struct {
	handlers []PacketHandler
	mu       sync.Mutex
	stopped  bool
}

func NewTrackRenderer(factories ...HandlerFactory) *TrackRenderer {
	return &TrackRenderer{factories: factories}
}

var _ negotiation.Renderer = (*TrackRenderer)(nil)

func (r *TrackRenderer) Attach(stream negotiation.MediaStream) {
	remote, ok := stream.(RemoteTrack)
	if !ok {
		logrus.WithField("stream_id", stream.ID()).Debug("Previewing local stream")
		return
	}

	r.Detach()

	track := remote.Track()
	a := &attachment{}
	for _, factory := range r.factories {
		h, err := factory(track.Codec())
		if err != nil {
			logrus.WithError(err).Warn("Skipping render handler")
			continue
		}
		a.handlers = append(a.handlers, h)
	}

	r.mu.Lock()
	r.current = a
	r.mu.Unlock()

	go a.read(track)
}

func (r *TrackRenderer) Detach() {
	r.mu.Lock()
	a := r.current
	r.current = nil
	r.mu.Unlock()

	if a != nil {
		a.stop()
	}
}

func (a *attachment) read(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logrus.WithError(err).Debug("Remote track read ended")
			}
			a.stop()
			return
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			logrus.WithError(err).Debug("Dropping malformed RTP packet")
			continue
		}

		a.mu.Lock()
		if a.stopped {
			a.mu.Unlock()
			return
		}
		for _, h := range a.handlers {
			if err := h.HandlePacket(pkt); err != nil {
				logrus.WithError(err).Debug("Render handler failed")
			}
		}
		a.mu.Unlock()
	}
}

func (a *attachment) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.stopped = true
	for _, h := range a.handlers {
		if err := h.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close render handler")
		}
	}
}
