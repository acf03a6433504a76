// Package socketio binds the relay to socket.io clients such as the
// browser page. Event names match core.MessageType values.
package socketio

import (
	"encoding/json"
	"fmt"
	"regexp"
	"screenshare/core"
	"screenshare/relay"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	sio "github.com/zishang520/socket.io/v2/socket"
)

type Options struct {
	// AllowedOrigins are accepted in addition to any localhost origin.
	AllowedOrigins []string
	MaxMessageSize int64
	QueueSize      int
}

var localhostOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)

var inboundEvents = []core.MessageType{
	core.TypeJoin,
	core.TypeOffer,
	core.TypeAnswer,
	core.TypeICECandidate,
	core.TypeStopSharing,
}

func Setup(rl *relay.Relay, o Options) *sio.Server {
	opts := sio.DefaultServerOptions()
	if o.MaxMessageSize > 0 {
		opts.SetMaxHttpBufferSize(o.MaxMessageSize)
	}
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)

	origins := []any{localhostOrigin}
	for _, origin := range o.AllowedOrigins {
		origins = append(origins, origin)
	}
	opts.SetCors(&types.Cors{
		Origin:      origins,
		Credentials: true,
	})
	srv := sio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*sio.Socket)
		if !ok {
			return
		}

		ch := newSocketChannel(socket, o.QueueSize)
		log := logrus.WithField("participant_id", ch.ID())
		if err := rl.Connect(ch); err != nil {
			log.WithError(err).Warn("Rejecting socket.io connection")
			socket.Disconnect(true)
			return
		}
		go ch.writeLoop()
		log.Debug("socket.io client connected")

		for _, event := range inboundEvents {
			event := event
			//nolint:errcheck // Socket.IO event handlers do not return useful errors
			socket.On(string(event), func(datas ...any) {
				handleEvent(rl, ch, event, datas)
			})
		}

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("disconnect", func(...any) {
			ch.close()
			rl.Disconnect(ch.ID())
			socket.RemoveAllListeners("")
			log.Debug("socket.io client disconnected")
		})
	})

	return srv
}

func handleEvent(rl *relay.Relay, ch *socketChannel, event core.MessageType, datas []any) {
	ack, args := extractAck(datas)
	msg, err := parseEvent(event, args)
	if err == nil {
		err = rl.Handle(ch.ID(), msg)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"participant_id": ch.ID(),
			"message_type":   event,
		}).WithError(err).Debug("socket.io event dropped")
	}

	if ack == nil {
		return
	}
	payload := map[string]any{"status": "ok", "room": msg.Room}
	if err != nil {
		payload["status"] = "error"
		payload["error"] = err.Error()
	}
	ack(err, payload)
}

// parseEvent converts socket.io event arguments into a relay message.
// Descriptions and candidates arrive as decoded JSON and are re-encoded
// so the relay can forward them verbatim.
func parseEvent(event core.MessageType, args []any) (core.Message, error) {
	msg := core.Message{Type: event}

	switch event {
	case core.TypeJoin, core.TypeStopSharing:
		if len(args) > 0 {
			room, ok := args[0].(string)
			if !ok {
				return msg, fmt.Errorf("%w: %v", core.ErrInvalidRoomID, args[0])
			}
			msg.Room = room
		}
		if event == core.TypeJoin && msg.Room == "" {
			return msg, fmt.Errorf("%w: room id is required", core.ErrInvalidRoomID)
		}
		return msg, nil

	case core.TypeOffer, core.TypeAnswer, core.TypeICECandidate:
		if len(args) == 0 || args[0] == nil {
			return msg, fmt.Errorf("%s: missing payload", event)
		}
		raw, err := json.Marshal(args[0])
		if err != nil {
			return msg, fmt.Errorf("%s: encode payload: %w", event, err)
		}
		msg.Payload = raw
		if len(args) > 1 {
			msg.Room, _ = args[1].(string)
		}
		return msg, nil
	}

	return msg, fmt.Errorf("%w: %q", core.ErrUnknownMessage, event)
}

// eventArgs converts an outbound relay message into a socket.io event.
// Payloads are decoded first; raw bytes would be sent as a binary
// attachment instead of JSON.
func eventArgs(msg core.Message) (string, []any, error) {
	switch msg.Type {
	case core.TypeOffer, core.TypeAnswer, core.TypeICECandidate:
		var payload any
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				return "", nil, fmt.Errorf("decode %s payload: %w", msg.Type, err)
			}
		}
		return string(msg.Type), []any{payload}, nil
	case core.TypeStopSharing:
		return string(msg.Type), nil, nil
	case core.TypeSharerConflict:
		return string(msg.Type), []any{msg.Room}, nil
	case core.TypeRoomMembers:
		members := msg.Members
		if members == nil {
			members = []string{}
		}
		return string(msg.Type), []any{members}, nil
	case core.TypeError:
		return string(msg.Type), []any{msg.Error}, nil
	}
	return "", nil, fmt.Errorf("%w: %q", core.ErrUnknownMessage, msg.Type)
}

const defaultQueueSize = 256

// socketChannel queues outbound messages for one socket and emits them in
// order from its own goroutine.
type socketChannel struct {
	id     string
	socket *sio.Socket
	queue  chan core.Message
	done   chan struct{}
	once   sync.Once
}

func newSocketChannel(socket *sio.Socket, size int) *socketChannel {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &socketChannel{
		id:     string(socket.Id()),
		socket: socket,
		queue:  make(chan core.Message, size),
		done:   make(chan struct{}),
	}
}

func (c *socketChannel) ID() string { return c.id }

func (c *socketChannel) Send(msg core.Message) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.queue <- msg:
	default:
		logrus.WithFields(logrus.Fields{
			"participant_id": c.id,
			"message_type":   msg.Type,
		}).Warn("Send queue full, closing connection")
		c.close()
		// Send runs under the relay lock and disconnect re-enters the relay.
		if c.socket != nil {
			go c.socket.Disconnect(true)
		}
	}
}

func (c *socketChannel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.queue:
			event, args, err := eventArgs(msg)
			if err != nil {
				logrus.WithField("participant_id", c.id).WithError(err).Warn("Dropping outbound message")
				continue
			}
			if err := c.socket.Emit(event, args...); err != nil {
				logrus.WithField("participant_id", c.id).WithError(err).Debug("Emit failed")
			}
		}
	}
}

func (c *socketChannel) close() {
	c.once.Do(func() { close(c.done) })
}
