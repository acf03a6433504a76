package core

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateRoomID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRoomID()
		if !strings.HasPrefix(id, "room_") {
			t.Fatalf("GenerateRoomID() = %q, want room_ prefix", id)
		}
		if len(id) != len("room_")+9 {
			t.Fatalf("GenerateRoomID() length = %d, want %d", len(id), len("room_")+9)
		}
		for _, c := range id[len("room_"):] {
			if !strings.ContainsRune(roomIDAlphabet, c) {
				t.Fatalf("GenerateRoomID() = %q contains %q", id, c)
			}
		}
		if err := ValidateRoomID(id); err != nil {
			t.Fatalf("generated id %q failed validation: %v", id, err)
		}
		seen[id] = true
	}
	if len(seen) < 99 {
		t.Errorf("expected unique ids, got %d distinct of 100", len(seen))
	}
}

func TestValidateRoomID(t *testing.T) {
	testCases := []struct {
		name string
		id   string
		ok   bool
	}{
		{"generated style", "room_abc123", true},
		{"user supplied", "team standup", true},
		{"empty", "", false},
		{"padded", " room ", false},
		{"too long", strings.Repeat("x", 129), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRoomID(tc.id)
			if tc.ok && err != nil {
				t.Errorf("ValidateRoomID(%q) = %v, want nil", tc.id, err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidRoomID) {
				t.Errorf("ValidateRoomID(%q) = %v, want ErrInvalidRoomID", tc.id, err)
			}
		})
	}
}

func TestNegotiationErrorMatchesBoth(t *testing.T) {
	cause := errors.New("malformed sdp")
	err := error(NewNegotiationError("set remote description", cause))

	if !errors.Is(err, ErrNegotiation) {
		t.Error("expected errors.Is(err, ErrNegotiation)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is(err, cause)")
	}
	if got := err.Error(); got != "set remote description: malformed sdp" {
		t.Errorf("Error() = %q", got)
	}
}

func TestNewMessageEncodesPayload(t *testing.T) {
	msg, err := NewMessage(TypeOffer, "room_abc123", SessionDescription{Type: "offer", SDP: "v=0"})
	if err != nil {
		t.Fatalf("NewMessage() failed: %v", err)
	}
	if string(msg.Payload) != `{"type":"offer","sdp":"v=0"}` {
		t.Errorf("payload = %s", msg.Payload)
	}

	msg, err = NewMessage(TypeStopSharing, "room_abc123", nil)
	if err != nil {
		t.Fatalf("NewMessage() failed: %v", err)
	}
	if msg.Payload != nil {
		t.Errorf("expected nil payload, got %s", msg.Payload)
	}
}
