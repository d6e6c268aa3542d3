package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed indicates a frame that does not match the expected
	// message shape for the connection's current state.
	ErrMalformed = errors.New("malformed message")
)

// ConnectMessage is the first frame a game server must send.
// Shape: {"name": string, "port": uint16, "tls": bool (optional)}
type ConnectMessage struct {
	Name string
	TLS  bool
	Port uint16
}

// StatusMessage is every frame after registration.
// Shape: {"players": uint32}
type StatusMessage struct {
	Players uint32
}

// connectWire uses pointer fields so required-field presence can be
// distinguished from zero values. The "ip" field is accepted for
// compatibility with older game builds but carries no trust weight:
// the entry's address always comes from the transport layer.
type connectWire struct {
	Name *string `json:"name"`
	TLS  *bool   `json:"tls"`
	Port *uint16 `json:"port"`
	IP   *string `json:"ip"`
}

type statusWire struct {
	Players *uint32 `json:"players"`
}

// ParseConnect validates a frame against the connect shape. Any missing
// required field, mistyped value, unknown field, or trailing content is
// an ErrMalformed.
func ParseConnect(data []byte) (ConnectMessage, error) {
	var wire connectWire
	if err := decodeStrict(data, &wire); err != nil {
		return ConnectMessage{}, err
	}
	if wire.Name == nil {
		return ConnectMessage{}, fmt.Errorf("%w: missing required field %q", ErrMalformed, "name")
	}
	if wire.Port == nil {
		return ConnectMessage{}, fmt.Errorf("%w: missing required field %q", ErrMalformed, "port")
	}

	msg := ConnectMessage{
		Name: *wire.Name,
		Port: *wire.Port,
	}
	if wire.TLS != nil {
		msg.TLS = *wire.TLS
	}
	return msg, nil
}

// ParseStatus validates a frame against the status shape.
func ParseStatus(data []byte) (StatusMessage, error) {
	var wire statusWire
	if err := decodeStrict(data, &wire); err != nil {
		return StatusMessage{}, err
	}
	if wire.Players == nil {
		return StatusMessage{}, fmt.Errorf("%w: missing required field %q", ErrMalformed, "players")
	}
	return StatusMessage{Players: *wire.Players}, nil
}

// decodeStrict decodes exactly one JSON object into dst, rejecting
// unknown fields and anything after the object.
func decodeStrict(data []byte, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing content after message", ErrMalformed)
	}
	return nil
}
