package core

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// WebSocket subprotocols understood by the relay.
const (
	SubprotocolJSON    = "json"
	SubprotocolMsgpack = "msgpack"
)

var Subprotocols = []string{SubprotocolJSON, SubprotocolMsgpack}

// Codec frames messages for a WebSocket connection.
type Codec interface {
	Name() string
	// Binary reports whether frames are sent as binary messages.
	Binary() bool
	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// CodecFor returns the codec for a negotiated subprotocol. An empty
// subprotocol selects JSON.
func CodecFor(subprotocol string) (Codec, error) {
	switch subprotocol {
	case "", SubprotocolJSON:
		return jsonCodec{}, nil
	case SubprotocolMsgpack:
		return msgpackCodec{}, nil
	}
	return nil, fmt.Errorf("unsupported subprotocol %q", subprotocol)
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return SubprotocolJSON }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Decode(data []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	return msg, err
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return SubprotocolMsgpack }
func (msgpackCodec) Binary() bool { return true }

func (msgpackCodec) Encode(msg Message) ([]byte, error) {
	return msgpack.Marshal(&msg)
}

func (msgpackCodec) Decode(data []byte) (Message, error) {
	var msg Message
	err := msgpack.Unmarshal(data, &msg)
	return msg, err
}
