// Package websocket binds the relay to plain WebSocket clients. Each frame
// carries one core.Message encoded with the negotiated subprotocol.
package websocket

import (
	"net/http"
	"screenshare/core"
	"screenshare/relay"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	defaultMaxMessageSize = 64 * 1024
	defaultQueueSize      = 256
)

type Options struct {
	MaxMessageSize int64
	QueueSize      int
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(r *http.Request) bool
}

// client is one WebSocket connection registered with the relay.
type client struct {
	id    string
	conn  *websocket.Conn
	codec core.Codec
	send  chan core.Message
	done  chan struct{}
	once  sync.Once
	log   *logrus.Entry
}

func Handler(rl *relay.Relay, o Options) http.HandlerFunc {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	checkOrigin := o.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		Subprotocols:    core.Subprotocols,
		CheckOrigin:     checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithError(err).Warn("Failed to upgrade connection")
			return
		}

		codec, err := core.CodecFor(conn.Subprotocol())
		if err != nil {
			logrus.WithError(err).Warn("Closing connection")
			conn.Close()
			return
		}

		id := ulid.Make().String()
		c := &client{
			id:    id,
			conn:  conn,
			codec: codec,
			send:  make(chan core.Message, o.QueueSize),
			done:  make(chan struct{}),
			log: logrus.WithFields(logrus.Fields{
				"participant_id": id,
				"subprotocol":    codec.Name(),
			}),
		}
		if err := rl.Connect(c); err != nil {
			c.log.WithError(err).Warn("Rejecting connection")
			conn.Close()
			return
		}
		c.log.Debug("WebSocket client connected")

		go c.writePump()
		go c.readPump(rl, o.MaxMessageSize)
	}
}

func (c *client) ID() string { return c.id }

func (c *client) Send(msg core.Message) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- msg:
	default:
		// A client that cannot keep up would miss offers or stops; drop it
		// and let the disconnect path tell its room.
		c.log.WithField("message_type", msg.Type).Warn("Send queue full, closing connection")
		c.once.Do(func() { close(c.done) })
	}
}

func (c *client) readPump(rl *relay.Relay, limit int64) {
	defer func() {
		rl.Disconnect(c.id)
		c.once.Do(func() { close(c.done) })
		c.conn.Close()
		c.log.Debug("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(limit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Info("Connection closed unexpectedly")
			}
			return
		}

		msg, err := c.codec.Decode(data)
		if err != nil {
			c.log.WithError(err).Warn("Dropping malformed frame")
			continue
		}
		if !msg.Type.Relayable() {
			c.log.WithField("message_type", msg.Type).Warn("Dropping message clients may not send")
			continue
		}
		msg.From = ""
		if err := rl.Handle(c.id, msg); err != nil {
			c.log.WithField("message_type", msg.Type).WithError(err).Debug("Message dropped")
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	frameType := websocket.TextMessage
	if c.codec.Binary() {
		frameType = websocket.BinaryMessage
	}

	for {
		select {
		case msg := <-c.send:
			data, err := c.codec.Encode(msg)
			if err != nil {
				c.log.WithError(err).Warn("Failed to encode message")
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(frameType, data); err != nil {
				c.log.WithError(err).Debug("Write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
