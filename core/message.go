package core

import "encoding/json"

// MessageType names a signaling message. The values double as socket.io
// event names.
type MessageType string

const (
	// Client to relay, relayed to peers.
	TypeJoin         MessageType = "join"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice-candidate"
	TypeStopSharing  MessageType = "stop-sharing"

	// Relay to client only.
	TypeSharerConflict MessageType = "sharer-conflict"
	TypeRoomMembers    MessageType = "room-members"
	TypeError          MessageType = "error"
)

// Message is the unit exchanged over every relay binding. Payload carries
// a session description or ICE candidate and is forwarded verbatim.
type Message struct {
	Type    MessageType     `json:"type" msgpack:"type"`
	Room    string          `json:"room,omitempty" msgpack:"room,omitempty"`
	From    string          `json:"from,omitempty" msgpack:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Members []string        `json:"members,omitempty" msgpack:"members,omitempty"`
	Error   string          `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Relayable reports whether clients may send this type to the relay.
func (t MessageType) Relayable() bool {
	switch t {
	case TypeJoin, TypeOffer, TypeAnswer, TypeICECandidate, TypeStopSharing:
		return true
	}
	return false
}

// SessionDescription mirrors the browser RTCSessionDescriptionInit shape.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors the browser RTCIceCandidateInit shape.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// NewMessage builds a message whose payload is v encoded as JSON.
func NewMessage(t MessageType, room string, v any) (Message, error) {
	msg := Message{Type: t, Room: room}
	if v == nil {
		return msg, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = raw
	return msg, nil
}
