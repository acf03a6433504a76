package negotiation

import (
	"context"
	"screenshare/core"
)

// MediaStream is a captured or received stream. Stop releases the capture
// device; it is a no-op for received streams.
type MediaStream interface {
	ID() string
	Stop()
}

// EndNotifier is implemented by streams that can end on their own, such as
// a display capture the user closes from the OS picker.
type EndNotifier interface {
	OnEnded(func())
}

type Constraints struct {
	Video  bool
	Audio  bool
	Cursor string
}

// DefaultConstraints match what a browser display capture is asked for.
var DefaultConstraints = Constraints{Video: true, Audio: false, Cursor: "always"}

// CaptureSource acquires a display stream. Failures should wrap
// core.ErrPermissionDenied or core.ErrNoSourceAvailable.
type CaptureSource interface {
	Acquire(ctx context.Context, constraints Constraints) (MediaStream, error)
}

type Renderer interface {
	Attach(stream MediaStream)
	Detach()
}

// PeerConnection is the media transport. Implementations return
// *core.NegotiationError on failure and may invoke the registered callbacks
// from any goroutine.
type PeerConnection interface {
	CreateOffer() (core.SessionDescription, error)
	CreateAnswer() (core.SessionDescription, error)
	SetLocalDescription(desc core.SessionDescription) error
	SetRemoteDescription(desc core.SessionDescription) error
	AddICECandidate(candidate core.ICECandidate) error
	AddStream(stream MediaStream) error
	OnICECandidate(fn func(core.ICECandidate))
	OnTrack(fn func(MediaStream))
	Close() error
}

type PeerFactory func() (PeerConnection, error)

// Signaler sends a message to the relay without blocking on the network.
type Signaler interface {
	Send(msg core.Message) error
}
