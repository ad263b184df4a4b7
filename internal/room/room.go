package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/dropfour-server/internal/board"
	"github.com/park285/dropfour-server/internal/clock"
	"github.com/park285/dropfour-server/internal/domain"
	"github.com/park285/dropfour-server/internal/obslog"
	"github.com/park285/dropfour-server/pkg/gamedto"
)

// hooks are the collaborators a room reports to. They are set once by the Manager.
type hooks struct {
	notifier Notifier
	recorder Recorder
	mirror   Mirror
	clock    clock.Clock
	teardown func(roomID string)
}

// Room owns one game's board, seats and turn. All mutations hold mu, and
// events are emitted before mu is released so their order matches the order
// in which mutations were applied.
type Room struct {
	id        string
	name      string
	createdAt time.Time

	mu        sync.Mutex
	seats     [Capacity]*domain.PlayerIdentity
	board     board.Board
	turn      int
	state     State
	moves     []int
	startedAt time.Time
	idleSince time.Time
	destroyed bool

	hooks hooks
}

func newRoom(id, name string, b board.Board, h hooks) *Room {
	now := h.clock.Now()
	return &Room{
		id:        id,
		name:      name,
		createdAt: now,
		board:     b,
		state:     StateWaiting,
		idleSince: now,
		hooks:     h,
	}
}

func (r *Room) ID() string   { return r.id }
func (r *Room) Name() string { return r.name }

// Join seats identity in the first free slot and returns it. Joining a room the
// identity already sits in returns the existing slot.
func (r *Room) Join(p domain.PlayerIdentity) (int, error) {
	if !p.Valid() {
		return -1, ErrInvalidPlayer
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return -1, ErrRoomGone
	}
	if slot := r.slotOfLocked(p); slot >= 0 && r.state != StateFinished {
		return slot, nil
	}
	if r.state != StateWaiting {
		return -1, ErrRoomFull
	}
	slot := -1
	for i := range r.seats {
		if r.seats[i] == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return -1, ErrRoomFull
	}

	seat := p
	r.seats[slot] = &seat
	r.idleSince = time.Time{}
	obslog.L().Info("room_join",
		zap.String("room_id", r.id),
		zap.String("player_uuid", p.UUID),
		zap.Int("slot", slot),
	)
	r.hooks.notifier.Notify(r.id, []domain.PlayerIdentity{p}, gamedto.Joined{RoomID: r.id, Slot: slot})

	if r.countLocked() == Capacity {
		r.state = StateFull
		r.startLocked()
	}
	r.hooks.mirror.Publish(r.infoLocked())
	return slot, nil
}

// startLocked collapses Full into Playing; slot 0 moves first.
func (r *Room) startLocked() {
	r.state = StatePlaying
	r.turn = 0
	r.startedAt = r.hooks.clock.Now()
	obslog.L().Info("room_start",
		zap.String("room_id", r.id),
		zap.String("slot0", r.seats[0].UUID),
		zap.String("slot1", r.seats[1].UUID),
	)
	r.broadcastLocked(r.stateUpdateLocked())
}

// Move drops a token for p in column. The returned Event reflects the room
// after the move; on a terminal board the match result is handed to the
// Recorder and the room is torn down.
func (r *Room) Move(p domain.PlayerIdentity, column int) (Event, error) {
	ev, finished, err := r.move(p, column)
	if finished {
		r.teardown()
	}
	return ev, err
}

func (r *Room) move(p domain.PlayerIdentity, column int) (Event, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePlaying {
		return Event{}, false, ErrRoomNotPlaying
	}
	slot := r.slotOfLocked(p)
	if slot < 0 {
		return Event{}, false, ErrNotInRoom
	}
	if slot != r.turn {
		return Event{}, false, ErrNotYourTurn
	}

	next, pos, err := board.ApplyDrop(r.board, column, slot)
	if err != nil {
		return Event{}, false, err
	}
	r.board = next
	r.moves = append(r.moves, column)
	res := board.Evaluate(r.board, pos)

	obslog.L().Debug("room_move",
		zap.String("room_id", r.id),
		zap.Int("slot", slot),
		zap.Int("column", column),
		zap.Int("row", pos.Row),
		zap.String("result", res.Status.String()),
	)

	switch res.Status {
	case board.Win:
		out := domain.WinBy(res.Slot)
		r.finishLocked(out)
		return Event{Kind: EventGameOver, Board: r.board, Turn: r.turn, Outcome: &out}, true, nil
	case board.Draw:
		out := domain.DrawOutcome()
		r.finishLocked(out)
		return Event{Kind: EventGameOver, Board: r.board, Turn: r.turn, Outcome: &out}, true, nil
	default:
		r.turn = 1 - r.turn
		r.broadcastLocked(r.stateUpdateLocked())
		return Event{Kind: EventStateUpdate, Board: r.board, Turn: r.turn}, false, nil
	}
}

// Leave removes p from the room. Leaving mid-game forfeits; leaving while
// waiting frees the slot. Leaving a finished room is a no-op.
func (r *Room) Leave(p domain.PlayerIdentity) error {
	finished, err := r.leave(p)
	if finished {
		r.teardown()
	}
	return err
}

func (r *Room) leave(p domain.PlayerIdentity) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := r.slotOfLocked(p)
	if slot < 0 {
		return false, ErrNotInRoom
	}
	switch r.state {
	case StatePlaying:
		obslog.L().Info("room_forfeit", zap.String("room_id", r.id), zap.Int("slot", slot))
		return r.finishLocked(domain.ForfeitBy(slot)), nil
	case StateWaiting, StateFull:
		r.seats[slot] = nil
		r.state = StateWaiting
		if r.countLocked() == 0 {
			r.idleSince = r.hooks.clock.Now()
		}
		obslog.L().Info("room_leave", zap.String("room_id", r.id), zap.Int("slot", slot))
		r.hooks.mirror.Publish(r.infoLocked())
		return false, nil
	default:
		return false, nil
	}
}

// finishLocked performs the only Playing→Finished transition. It reports
// false when the room had already finished, so a result is recorded once.
func (r *Room) finishLocked(out domain.Outcome) bool {
	if r.state != StatePlaying {
		return false
	}
	r.state = StateFinished
	now := r.hooks.clock.Now()
	result := domain.MatchResult{
		MatchID:    uuid.NewString(),
		RoomID:     r.id,
		Player1:    *r.seats[0],
		Player2:    *r.seats[1],
		Outcome:    out,
		FinalBoard: r.board,
		Moves:      append([]int(nil), r.moves...),
		StartedAt:  r.startedAt,
		Timestamp:  now,
	}
	r.hooks.recorder.Record(result)
	obslog.L().Info("room_finish",
		zap.String("room_id", r.id),
		zap.String("match_id", result.MatchID),
		zap.String("outcome", out.String()),
		zap.Int("moves", len(r.moves)),
	)
	r.broadcastLocked(gamedto.GameOver{
		RoomID:     r.id,
		Outcome:    string(out.Kind),
		WinnerSlot: out.WinnerSlot(),
		LoserSlot:  out.LoserSlot(),
		Board:      r.board.Rows(),
	})
	r.hooks.mirror.Publish(r.infoLocked())
	return true
}

func (r *Room) teardown() {
	if r.hooks.teardown != nil {
		r.hooks.teardown(r.id)
	}
}

// Info returns a point-in-time lobby view.
func (r *Room) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infoLocked()
}

// State returns the current lifecycle state.
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Board returns the current board value.
func (r *Room) Board() board.Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board
}

// Turn returns the slot expected to move next.
func (r *Room) Turn() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turn
}

// Seats returns the seated identities in slot order; empty slots are skipped.
func (r *Room) Seats() []domain.PlayerIdentity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seatedLocked()
}

// SlotOf returns p's slot or -1.
func (r *Room) SlotOf(p domain.PlayerIdentity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slotOfLocked(p)
}

// Snapshot returns the current state frame for a resumed connection.
func (r *Room) Snapshot() gamedto.StateUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateUpdateLocked()
}

// joinable reports whether a new player could take a seat.
func (r *Room) joinable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.destroyed && r.state == StateWaiting && r.countLocked() < Capacity
}

// reapIfIdle marks the room destroyed when it has had no seated players for
// at least grace, or has already finished.
func (r *Room) reapIfIdle(now time.Time, grace time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return false
	}
	if r.state == StateFinished {
		r.destroyed = true
		return true
	}
	if r.countLocked() > 0 || r.idleSince.IsZero() || now.Sub(r.idleSince) < grace {
		return false
	}
	r.destroyed = true
	return true
}

func (r *Room) markDestroyed() {
	r.mu.Lock()
	r.destroyed = true
	r.mu.Unlock()
}

func (r *Room) infoLocked() Info {
	n := r.countLocked()
	return Info{
		ID:        r.id,
		Name:      r.name,
		Count:     n,
		Max:       Capacity,
		Joinable:  n < Capacity && r.state == StateWaiting,
		Status:    r.state,
		CreatedAt: r.createdAt,
	}
}

func (r *Room) stateUpdateLocked() gamedto.StateUpdate {
	return gamedto.StateUpdate{
		RoomID: r.id,
		Board:  r.board.Rows(),
		Turn:   r.turn,
		Status: string(r.state),
	}
}

func (r *Room) broadcastLocked(msg gamedto.ServerMessage) {
	to := r.seatedLocked()
	if len(to) == 0 {
		return
	}
	r.hooks.notifier.Notify(r.id, to, msg)
}

func (r *Room) seatedLocked() []domain.PlayerIdentity {
	out := make([]domain.PlayerIdentity, 0, Capacity)
	for _, s := range r.seats {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

func (r *Room) countLocked() int {
	n := 0
	for _, s := range r.seats {
		if s != nil {
			n++
		}
	}
	return n
}

func (r *Room) slotOfLocked(p domain.PlayerIdentity) int {
	for i, s := range r.seats {
		if s != nil && s.Same(p) {
			return i
		}
	}
	return -1
}
