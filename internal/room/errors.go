package room

import (
	"errors"

	"github.com/park285/dropfour-server/internal/board"
)

var (
	ErrRoomFull       = errors.New("room is full")
	ErrRoomNotPlaying = errors.New("room is not playing")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrNotInRoom      = errors.New("player is not seated in this room")
	ErrRoomGone       = errors.New("room no longer exists")
	ErrInvalidPlayer  = errors.New("invalid player identity")

	// ErrInvalidMove is the board engine's error, re-exported for callers of Room.Move.
	ErrInvalidMove = board.ErrInvalidMove
)
