package domain

import (
	"time"

	"github.com/park285/dropfour-server/internal/board"
)

// OutcomeKind classifies how a match ended.
type OutcomeKind string

const (
	OutcomeWin     OutcomeKind = "win"
	OutcomeDraw    OutcomeKind = "draw"
	OutcomeForfeit OutcomeKind = "forfeit"
)

// Outcome is Win(winner slot), Draw, or Forfeit(loser slot).
type Outcome struct {
	Kind OutcomeKind `json:"kind"`
	Slot int         `json:"slot"`
}

func WinBy(slot int) Outcome     { return Outcome{Kind: OutcomeWin, Slot: slot} }
func DrawOutcome() Outcome       { return Outcome{Kind: OutcomeDraw, Slot: -1} }
func ForfeitBy(slot int) Outcome { return Outcome{Kind: OutcomeForfeit, Slot: slot} }

// WinnerSlot returns the winning slot, or -1 for a draw.
func (o Outcome) WinnerSlot() int {
	switch o.Kind {
	case OutcomeWin:
		return o.Slot
	case OutcomeForfeit:
		return 1 - o.Slot
	default:
		return -1
	}
}

// LoserSlot returns the losing slot, or -1 for a draw.
func (o Outcome) LoserSlot() int {
	if w := o.WinnerSlot(); w >= 0 {
		return 1 - w
	}
	return -1
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeWin:
		if o.Slot == 1 {
			return "win(slot1)"
		}
		return "win(slot0)"
	case OutcomeForfeit:
		if o.Slot == 1 {
			return "forfeit(slot1)"
		}
		return "forfeit(slot0)"
	default:
		return "draw"
	}
}

// MatchResult is produced once per room at the Playing→Finished transition.
type MatchResult struct {
	MatchID    string
	RoomID     string
	Player1    PlayerIdentity
	Player2    PlayerIdentity
	Outcome    Outcome
	FinalBoard board.Board
	Moves      []int
	StartedAt  time.Time
	Timestamp  time.Time
}

// Player1ID and Player2ID mirror the persisted column names.
func (m MatchResult) Player1ID() int64 { return m.Player1.ID }
func (m MatchResult) Player2ID() int64 { return m.Player2.ID }

// WinnerID returns the winning player's id, or 0 for a draw.
func (m MatchResult) WinnerID() int64 {
	switch m.Outcome.WinnerSlot() {
	case 0:
		return m.Player1.ID
	case 1:
		return m.Player2.ID
	default:
		return 0
	}
}

// MatchRecord is a persisted match as read back from history.
type MatchRecord struct {
	MatchID    string      `json:"matchId"`
	RoomID     string      `json:"roomId"`
	Player1ID  int64       `json:"player1Id"`
	Player2ID  int64       `json:"player2Id"`
	Outcome    OutcomeKind `json:"outcome"`
	WinnerID   int64       `json:"winnerId,omitempty"`
	Board      string      `json:"board"`
	Moves      []int       `json:"moves"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`
}

// Score is one row of the aggregate score table.
type Score struct {
	PlayerID    int64  `json:"playerId"`
	UUID        string `json:"uuid"`
	DisplayName string `json:"displayName"`
	Wins        int    `json:"wins"`
	Losses      int    `json:"losses"`
	Draws       int    `json:"draws"`
	Games       int    `json:"games"`
}
