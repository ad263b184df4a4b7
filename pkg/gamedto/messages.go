package gamedto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Frame types on the wire.
const (
	TypeJoinRoom  = "join-room"
	TypeMove      = "move"
	TypeLeaveRoom = "leave-room"

	TypeJoined   = "joined"
	TypeState    = "state"
	TypeGameOver = "game-over"
	TypeError    = "error"
)

// ErrMalformed is returned for frames that do not decode into a known client message.
var ErrMalformed = errors.New("malformed message")

// Envelope is the JSON frame shared by both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is one of JoinRoom, Move, LeaveRoom.
type ClientMessage interface {
	MessageType() string
}

type JoinRoom struct{}

type Move struct {
	Column int `json:"column"`
}

type LeaveRoom struct{}

func (JoinRoom) MessageType() string  { return TypeJoinRoom }
func (Move) MessageType() string      { return TypeMove }
func (LeaveRoom) MessageType() string { return TypeLeaveRoom }

// DecodeClient parses one inbound frame.
func DecodeClient(raw []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch strings.TrimSpace(env.Type) {
	case TypeJoinRoom:
		return JoinRoom{}, nil
	case TypeLeaveRoom:
		return LeaveRoom{}, nil
	case TypeMove:
		var body struct {
			Column *int `json:"column"`
		}
		if len(bytes.TrimSpace(env.Data)) == 0 {
			return nil, fmt.Errorf("%w: move without data", ErrMalformed)
		}
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if body.Column == nil {
			return nil, fmt.Errorf("%w: move without column", ErrMalformed)
		}
		return Move{Column: *body.Column}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
}

// EncodeClient builds an inbound frame; used by clients and tests.
func EncodeClient(m ClientMessage) ([]byte, error) {
	return encode(m.MessageType(), m)
}
