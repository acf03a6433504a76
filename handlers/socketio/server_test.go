package socketio

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"screenshare/core"
	"screenshare/relay"
	"screenshare/stores/memory"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const testRoom = "room_abc123"

// sioPeer speaks just enough of the engine.io v4 / socket.io v5 wire
// protocol over a raw WebSocket to drive the server.
type sioPeer struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialSocketIO(t *testing.T, srv *httptest.Server) *sioPeer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket.io/?EIO=4&transport=websocket"
	header := http.Header{"Origin": []string{"http://localhost:3000"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	p := &sioPeer{t: t, conn: conn}
	p.next("0")
	p.write("40")
	p.next("40")
	return p
}

func (p *sioPeer) write(packet string) {
	p.t.Helper()
	if err := p.conn.WriteMessage(websocket.TextMessage, []byte(packet)); err != nil {
		p.t.Fatalf("WriteMessage failed: %v", err)
	}
}

// next returns the body of the first packet starting with prefix,
// answering pings on the way.
func (p *sioPeer) next(prefix string) string {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.t.Fatalf("Waiting for packet %q: %v", prefix, err)
		}
		packet := string(data)
		if packet == "2" {
			p.write("3")
			continue
		}
		if strings.HasPrefix(packet, prefix) {
			return packet[len(prefix):]
		}
	}
}

func (p *sioPeer) emit(args ...any) {
	p.t.Helper()
	data, err := json.Marshal(args)
	if err != nil {
		p.t.Fatalf("Marshal failed: %v", err)
	}
	p.write("42" + string(data))
}

// expect waits for event and returns its arguments.
func (p *sioPeer) expect(event string) []json.RawMessage {
	p.t.Helper()
	for {
		var frame []json.RawMessage
		if err := json.Unmarshal([]byte(p.next("42")), &frame); err != nil || len(frame) == 0 {
			p.t.Fatalf("Malformed event frame: %v", err)
		}
		var name string
		if err := json.Unmarshal(frame[0], &name); err != nil {
			p.t.Fatalf("Malformed event name: %v", err)
		}
		if name == event {
			return frame[1:]
		}
	}
}

func (p *sioPeer) expectMembers(n int) []string {
	p.t.Helper()
	for {
		args := p.expect(string(core.TypeRoomMembers))
		var members []string
		if err := json.Unmarshal(args[0], &members); err != nil {
			p.t.Fatalf("Malformed members: %v", err)
		}
		if len(members) == n {
			return members
		}
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	rl := relay.New(memory.NewRoomRegistry())
	srv := Setup(rl, Options{})
	ts := httptest.NewServer(srv.ServeHandler(nil))
	t.Cleanup(func() {
		srv.Close(nil)
		ts.Close()
		rl.Close()
	})
	return ts
}

func TestSocketIOShareAndDisconnect(t *testing.T) {
	ts := newTestServer(t)
	sharer := dialSocketIO(t, ts)
	viewer := dialSocketIO(t, ts)

	sharer.emit("join", testRoom)
	sharer.expectMembers(1)

	// join with an acknowledgement callback
	viewer.write(`421["join","` + testRoom + `"]`)
	var acks []map[string]any
	if err := json.Unmarshal([]byte(viewer.next("431")), &acks); err != nil || len(acks) != 1 {
		t.Fatalf("Malformed ack: %v", err)
	}
	if acks[0]["status"] != "ok" || acks[0]["room"] != testRoom {
		t.Errorf("Unexpected ack payload: %v", acks[0])
	}
	sharer.expectMembers(2)

	sharer.emit("offer", map[string]any{"type": "offer", "sdp": "v=0 offer"}, testRoom)
	var desc core.SessionDescription
	if err := json.Unmarshal(viewer.expect("offer")[0], &desc); err != nil {
		t.Fatalf("Malformed offer: %v", err)
	}
	if desc.Type != "offer" || desc.SDP != "v=0 offer" {
		t.Errorf("Offer not forwarded verbatim: %+v", desc)
	}

	viewer.emit("answer", map[string]any{"type": "answer", "sdp": "v=0 answer"}, testRoom)
	sharer.expect("answer")

	viewer.emit("ice-candidate", map[string]any{"candidate": "candidate:1 1 udp 1 127.0.0.1 9 typ host"}, testRoom)
	var c core.ICECandidate
	if err := json.Unmarshal(sharer.expect("ice-candidate")[0], &c); err != nil || c.Candidate == "" {
		t.Errorf("Candidate not forwarded: %+v (%v)", c, err)
	}

	// The sharer vanishing is an implicit stop.
	sharer.conn.Close()
	viewer.expect("stop-sharing")
	viewer.expectMembers(1)
}

func TestSocketIOSecondSharerConflict(t *testing.T) {
	ts := newTestServer(t)
	first := dialSocketIO(t, ts)
	second := dialSocketIO(t, ts)

	first.emit("join", testRoom)
	first.expectMembers(1)
	second.emit("join", testRoom)
	second.expectMembers(2)

	first.emit("offer", map[string]any{"type": "offer", "sdp": "first"}, testRoom)
	second.expect("offer")

	second.emit("offer", map[string]any{"type": "offer", "sdp": "second"}, testRoom)
	var room string
	if err := json.Unmarshal(second.expect("sharer-conflict")[0], &room); err != nil || room != testRoom {
		t.Errorf("Expected sharer-conflict for %s, got %q (%v)", testRoom, room, err)
	}
}

func TestSendQueueOverflowClosesChannel(t *testing.T) {
	ch := &socketChannel{
		id:    "p1",
		queue: make(chan core.Message, 1),
		done:  make(chan struct{}),
	}

	ch.Send(core.Message{Type: core.TypeOffer})
	ch.Send(core.Message{Type: core.TypeStopSharing})
	select {
	case <-ch.done:
	default:
		t.Fatal("Expected a full queue to close the channel")
	}

	ch.Send(core.Message{Type: core.TypeAnswer})
	if len(ch.queue) != 1 {
		t.Errorf("Expected the queue to keep only the first message, got %d", len(ch.queue))
	}
}
