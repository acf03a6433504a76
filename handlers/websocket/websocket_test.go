package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"screenshare/core"
	"screenshare/relay"
	"screenshare/stores/memory"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type testPeer struct {
	t     *testing.T
	conn  *websocket.Conn
	codec core.Codec
}

func dial(t *testing.T, srv *httptest.Server, subprotocol string) *testPeer {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: []string{subprotocol}}
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if conn.Subprotocol() != subprotocol {
		t.Fatalf("Expected subprotocol %s, got %q", subprotocol, conn.Subprotocol())
	}
	codec, err := core.CodecFor(subprotocol)
	if err != nil {
		t.Fatalf("CodecFor failed: %v", err)
	}
	return &testPeer{t: t, conn: conn, codec: codec}
}

func (p *testPeer) send(msg core.Message) {
	p.t.Helper()
	data, err := p.codec.Encode(msg)
	if err != nil {
		p.t.Fatalf("Encode failed: %v", err)
	}
	frame := websocket.TextMessage
	if p.codec.Binary() {
		frame = websocket.BinaryMessage
	}
	if err := p.conn.WriteMessage(frame, data); err != nil {
		p.t.Fatalf("WriteMessage failed: %v", err)
	}
}

// expect reads until a message of type t arrives, skipping others.
func (p *testPeer) expect(t core.MessageType) core.Message {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.t.Fatalf("Waiting for %s: %v", t, err)
		}
		msg, err := p.codec.Decode(data)
		if err != nil {
			p.t.Fatalf("Decode failed: %v", err)
		}
		if msg.Type == t {
			return msg
		}
	}
}

// expectMembers waits for a room-members notice listing n participants.
func (p *testPeer) expectMembers(n int) core.Message {
	p.t.Helper()
	for {
		msg := p.expect(core.TypeRoomMembers)
		if len(msg.Members) == n {
			return msg
		}
	}
}

func newTestServer(t *testing.T) (*relay.Relay, *httptest.Server) {
	t.Helper()
	rl := relay.New(memory.NewRoomRegistry())
	srv := httptest.NewServer(Handler(rl, Options{}))
	t.Cleanup(func() {
		srv.Close()
		rl.Close()
	})
	return rl, srv
}

func TestShareAndAnswer(t *testing.T) {
	for _, subprotocol := range core.Subprotocols {
		t.Run(subprotocol, func(t *testing.T) {
			_, srv := newTestServer(t)
			sharer := dial(t, srv, subprotocol)
			viewer := dial(t, srv, subprotocol)

			const room = "room_abc123"
			sharer.send(core.Message{Type: core.TypeJoin, Room: room})
			sharer.expectMembers(1)
			viewer.send(core.Message{Type: core.TypeJoin, Room: room})
			sharer.expectMembers(2)

			offer, _ := core.NewMessage(core.TypeOffer, room, core.SessionDescription{Type: "offer", SDP: "v=0 o"})
			sharer.send(offer)

			got := viewer.expect(core.TypeOffer)
			var desc core.SessionDescription
			if err := json.Unmarshal(got.Payload, &desc); err != nil {
				t.Fatalf("Unmarshal offer failed: %v", err)
			}
			if desc.SDP != "v=0 o" || got.Room != room || got.From == "" {
				t.Errorf("Unexpected offer %+v", got)
			}

			answer, _ := core.NewMessage(core.TypeAnswer, room, core.SessionDescription{Type: "answer", SDP: "v=0 a"})
			viewer.send(answer)
			if got := sharer.expect(core.TypeAnswer); got.From == "" {
				t.Errorf("Expected sender id on relayed answer, got %+v", got)
			}

			// Closing the sharer's connection stops the share for the viewer.
			sharer.conn.Close()
			viewer.expect(core.TypeStopSharing)
		})
	}
}

func TestSecondSharerConflict(t *testing.T) {
	_, srv := newTestServer(t)
	p1 := dial(t, srv, core.SubprotocolJSON)
	p3 := dial(t, srv, core.SubprotocolJSON)

	const room = "room_conflict"
	p1.send(core.Message{Type: core.TypeJoin, Room: room})
	p1.expectMembers(1)
	p3.send(core.Message{Type: core.TypeJoin, Room: room})
	p1.expectMembers(2)

	offer, _ := core.NewMessage(core.TypeOffer, room, core.SessionDescription{Type: "offer", SDP: "x"})
	p1.send(offer)
	p3.expect(core.TypeOffer)

	p3.send(offer)
	if got := p3.expect(core.TypeSharerConflict); got.Room != room {
		t.Errorf("Expected conflict for %s, got %q", room, got.Room)
	}
}

func TestJoinInvalidRoom(t *testing.T) {
	_, srv := newTestServer(t)
	p := dial(t, srv, core.SubprotocolJSON)

	p.send(core.Message{Type: core.TypeJoin})
	if got := p.expect(core.TypeError); got.Error == "" {
		t.Error("Expected an error reason")
	}
}

func TestServerOnlyTypesDropped(t *testing.T) {
	rl, srv := newTestServer(t)
	p := dial(t, srv, core.SubprotocolJSON)

	const room = "room_abc123"
	p.send(core.Message{Type: core.TypeJoin, Room: room})
	p.expectMembers(1)

	p.send(core.Message{Type: core.TypeRoomMembers, Room: room, Members: []string{"forged"}})
	p.send(core.Message{Type: core.TypeStopSharing, Room: room})

	// The connection survives and the forged notice was not relayed.
	r, ok := rl.Room(room)
	if !ok || len(r.Members) != 1 || r.HasMember("forged") {
		t.Errorf("Unexpected room state %+v", r)
	}
}

func TestCodecs(t *testing.T) {
	if _, err := core.CodecFor("xml"); err == nil {
		t.Error("Expected error for unknown subprotocol")
	}

	for _, name := range append([]string{""}, core.Subprotocols...) {
		codec, err := core.CodecFor(name)
		if err != nil {
			t.Fatalf("CodecFor(%q) failed: %v", name, err)
		}
		msg := core.Message{
			Type:    core.TypeICECandidate,
			Room:    "r",
			Payload: json.RawMessage(`{"candidate":"c1"}`),
		}
		data, err := codec.Encode(msg)
		if err != nil {
			t.Fatalf("%s encode failed: %v", codec.Name(), err)
		}
		got, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("%s decode failed: %v", codec.Name(), err)
		}
		if got.Type != msg.Type || string(got.Payload) != string(msg.Payload) {
			t.Errorf("%s: expected %+v, got %+v", codec.Name(), msg, got)
		}
	}
}

func TestSendQueueOverflowClosesClient(t *testing.T) {
	c := &client{
		id:   "p1",
		send: make(chan core.Message, 1),
		done: make(chan struct{}),
		log:  logrus.WithField("participant_id", "p1"),
	}

	c.Send(core.Message{Type: core.TypeOffer})
	select {
	case <-c.done:
		t.Fatal("Expected client to stay open while the queue has room")
	default:
	}

	c.Send(core.Message{Type: core.TypeStopSharing})
	select {
	case <-c.done:
	default:
		t.Fatal("Expected a full queue to close the client")
	}

	// Later sends are discarded without blocking.
	c.Send(core.Message{Type: core.TypeAnswer})
	if len(c.send) != 1 {
		t.Errorf("Expected the queue to keep only the first message, got %d", len(c.send))
	}
}
