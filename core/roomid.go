package core

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	roomIDPrefix   = "room_"
	roomIDLength   = 9
	roomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	maxRoomIDLen   = 128
)

// GenerateRoomID returns a random room name such as "room_k3j9x0a2b".
func GenerateRoomID() string {
	var sb strings.Builder
	sb.WriteString(roomIDPrefix)
	max := big.NewInt(int64(len(roomIDAlphabet)))
	for i := 0; i < roomIDLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		sb.WriteByte(roomIDAlphabet[n.Int64()])
	}
	return sb.String()
}

// ValidateRoomID rejects empty, oversized or whitespace-padded ids.
func ValidateRoomID(id string) error {
	if id == "" || len(id) > maxRoomIDLen || strings.TrimSpace(id) != id {
		return ErrInvalidRoomID
	}
	return nil
}
