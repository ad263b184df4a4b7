package gamedto

import "encoding/json"

// ServerMessage is one of Joined, StateUpdate, GameOver, Error.
type ServerMessage interface {
	MessageType() string
}

type Joined struct {
	RoomID string `json:"roomId"`
	Slot   int    `json:"slot"`
}

type StateUpdate struct {
	RoomID string  `json:"roomId"`
	Board  [][]int `json:"board"`
	Turn   int     `json:"turn"`
	Status string  `json:"status"`
}

type GameOver struct {
	RoomID     string  `json:"roomId"`
	Outcome    string  `json:"outcome"`
	WinnerSlot int     `json:"winnerSlot"`
	LoserSlot  int     `json:"loserSlot"`
	Board      [][]int `json:"board"`
}

type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (Joined) MessageType() string      { return TypeJoined }
func (StateUpdate) MessageType() string { return TypeState }
func (GameOver) MessageType() string    { return TypeGameOver }
func (Error) MessageType() string       { return TypeError }

// Encode renders a server message as an Envelope frame.
func Encode(m ServerMessage) ([]byte, error) {
	return encode(m.MessageType(), m)
}

// DecodeServer parses an outbound frame back into its concrete type.
func DecodeServer(raw []byte) (ServerMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var out ServerMessage
	switch env.Type {
	case TypeJoined:
		var v Joined
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		out = v
	case TypeState:
		var v StateUpdate
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		out = v
	case TypeGameOver:
		var v GameOver
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		out = v
	case TypeError:
		var v Error
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		out = v
	default:
		return nil, ErrMalformed
	}
	return out, nil
}

func encode(typ string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "{}" {
		data = nil
	}
	return json.Marshal(Envelope{Type: typ, Data: data})
}
