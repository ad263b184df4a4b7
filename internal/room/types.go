package room

import (
	"time"

	"github.com/park285/dropfour-server/internal/board"
	"github.com/park285/dropfour-server/internal/domain"
	"github.com/park285/dropfour-server/pkg/gamedto"
)

// Capacity is the fixed number of player slots per room.
const Capacity = 2

// State represents a room lifecycle state.
type State string

const (
	StateWaiting  State = "waiting"
	StateFull     State = "full"
	StatePlaying  State = "playing"
	StateFinished State = "finished"
)

// Info is the lobby view of a room.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Count     int       `json:"count"`
	Max       int       `json:"max"`
	Joinable  bool      `json:"joinable"`
	Status    State     `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventKind distinguishes the results of an accepted move.
type EventKind string

const (
	EventStateUpdate EventKind = "state"
	EventGameOver    EventKind = "game-over"
)

// Event describes the room after a successful move.
type Event struct {
	Kind    EventKind
	Board   board.Board
	Turn    int
	Outcome *domain.Outcome
}

// Notifier delivers server messages to seated players.
// Implementations must not block; the room lock is held during Notify.
type Notifier interface {
	Notify(roomID string, to []domain.PlayerIdentity, msg gamedto.ServerMessage)
}

// Recorder accepts the single MatchResult of a room. Record must not block.
type Recorder interface {
	Record(result domain.MatchResult)
}

// Mirror receives lobby snapshots for out-of-process readers. Must not block.
type Mirror interface {
	Publish(info Info)
	Remove(roomID string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, []domain.PlayerIdentity, gamedto.ServerMessage) {}

type nopRecorder struct{}

func (nopRecorder) Record(domain.MatchResult) {}

type nopMirror struct{}

func (nopMirror) Publish(Info)  {}
func (nopMirror) Remove(string) {}
