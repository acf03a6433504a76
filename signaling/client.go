// Package signaling is the Go client side of the relay's WebSocket
// binding.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"screenshare/core"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	queueSize      = 64
)

var (
	ErrClosed    = errors.New("signaling client closed")
	ErrQueueFull = errors.New("signaling send queue full")
)

// Client manages the WebSocket connection to the relay.
type Client struct {
	conn     *websocket.Conn
	codec    core.Codec
	incoming chan core.Message
	outgoing chan core.Message
	done     chan struct{}
	once     sync.Once
}

// Dial connects to the relay's /ws endpoint using the given subprotocol
// (core.SubprotocolJSON or core.SubprotocolMsgpack).
func Dial(ctx context.Context, url, subprotocol string) (*Client, error) {
	codec, err := core.CodecFor(subprotocol)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{codec.Name()},
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if conn.Subprotocol() != codec.Name() {
		conn.Close()
		return nil, fmt.Errorf("relay did not accept subprotocol %q", codec.Name())
	}

	c := &Client{
		conn:     conn,
		codec:    codec,
		incoming: make(chan core.Message, queueSize),
		outgoing: make(chan core.Message, queueSize),
		done:     make(chan struct{}),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()
	return c, nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
		c.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		// The relay pings; any frame also proves liveness.
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := c.codec.Decode(data)
		if err != nil {
			logrus.WithError(err).Warn("Dropping malformed frame from relay")
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
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
		case msg := <-c.outgoing:
			data, err := c.codec.Encode(msg)
			if err != nil {
				logrus.WithError(err).Warn("Failed to encode message")
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(frameType, data); err != nil {
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

// Send queues a message for the relay without blocking.
func (c *Client) Send(msg core.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Incoming returns the channel of messages from the relay. It is closed
// when the connection ends.
func (c *Client) Incoming() <-chan core.Message {
	return c.incoming
}

// Done is closed once the client is closed or the connection drops.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Run feeds every incoming message to handle until the connection ends or
// ctx is cancelled. Handler errors are logged, not fatal.
func (c *Client) Run(ctx context.Context, handle func(core.Message) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.incoming:
			if !ok {
				return ErrClosed
			}
			if err := handle(msg); err != nil {
				logrus.WithFields(logrus.Fields{
					"message_type": msg.Type,
					"room_id":      msg.Room,
				}).WithError(err).Debug("Message not applied")
			}
		}
	}
}
