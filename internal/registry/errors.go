package registry

import (
	"errors"

	"github.com/park285/dropfour-server/internal/room"
	"github.com/park285/dropfour-server/pkg/gamedto"
)

// Wire error kinds.
const (
	KindInvalidMove      = "invalid_move"
	KindNotYourTurn      = "not_your_turn"
	KindRoomNotPlaying   = "room_not_playing"
	KindRoomFull         = "room_full"
	KindNotInRoom        = "not_in_room"
	KindMalformedMessage = "malformed_message"
	KindInternal         = "internal"
)

// ErrorKind maps a routing error to its wire kind.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, room.ErrInvalidMove):
		return KindInvalidMove
	case errors.Is(err, room.ErrNotYourTurn):
		return KindNotYourTurn
	case errors.Is(err, room.ErrRoomNotPlaying), errors.Is(err, room.ErrRoomGone):
		return KindRoomNotPlaying
	case errors.Is(err, room.ErrRoomFull):
		return KindRoomFull
	case errors.Is(err, room.ErrNotInRoom):
		return KindNotInRoom
	case errors.Is(err, gamedto.ErrMalformed):
		return KindMalformedMessage
	default:
		return KindInternal
	}
}
