package negotiation

type State int

const (
	StateIdle State = iota
	StateJoined
	StateSharingOffering
	StateSharingConnected
	StateViewingAwaitingOffer
	StateViewingConnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoined:
		return "joined"
	case StateSharingOffering:
		return "sharing-offering"
	case StateSharingConnected:
		return "sharing-connected"
	case StateViewingAwaitingOffer:
		return "viewing-awaiting-offer"
	case StateViewingConnected:
		return "viewing-connected"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

func (s State) Sharing() bool {
	return s == StateSharingOffering || s == StateSharingConnected
}

func (s State) Viewing() bool {
	return s == StateViewingAwaitingOffer || s == StateViewingConnected
}

// Ready reports whether a new sharing or viewing session may begin.
func (s State) Ready() bool {
	return s == StateJoined || s == StateStopped
}
