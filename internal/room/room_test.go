package room

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/park285/dropfour-server/internal/board"
	"github.com/park285/dropfour-server/internal/clock"
	"github.com/park285/dropfour-server/internal/domain"
	"github.com/park285/dropfour-server/pkg/gamedto"
)

type sent struct {
	roomID string
	to     []string
	msg    gamedto.ServerMessage
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeNotifier) Notify(roomID string, to []domain.PlayerIdentity, msg gamedto.ServerMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(to))
	for _, p := range to {
		ids = append(ids, p.UUID)
	}
	f.sent = append(f.sent, sent{roomID: roomID, to: ids, msg: msg})
}

func (f *fakeNotifier) ofType(typ string) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, s := range f.sent {
		if s.msg.MessageType() == typ {
			out = append(out, s)
		}
	}
	return out
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []domain.MatchResult
}

func (f *fakeRecorder) Record(r domain.MatchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
}

func (f *fakeRecorder) all() []domain.MatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.MatchResult(nil), f.results...)
}

func player(n int) domain.PlayerIdentity {
	return domain.PlayerIdentity{ID: int64(n), UUID: fmt.Sprintf("uuid-%d", n), DisplayName: fmt.Sprintf("P%d", n)}
}

type RoomSuite struct {
	suite.Suite
	clock    *clock.MockClock
	notifier *fakeNotifier
	recorder *fakeRecorder
	manager  *Manager
	alice    domain.PlayerIdentity
	bob      domain.PlayerIdentity
}

func TestRoomSuite(t *testing.T) {
	suite.Run(t, new(RoomSuite))
}

func (s *RoomSuite) SetupTest() {
	s.clock = clock.NewMock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s.notifier = &fakeNotifier{}
	s.recorder = &fakeRecorder{}
	s.manager = NewManager(Options{
		Clock:       s.clock,
		Notifier:    s.notifier,
		Recorder:    s.recorder,
		GracePeriod: 30 * time.Second,
	})
	s.alice = player(1)
	s.bob = player(2)
}

func (s *RoomSuite) playingRoom() *Room {
	r := s.manager.FindJoinableRoom()
	_, err := r.Join(s.alice)
	s.Require().NoError(err)
	_, err = r.Join(s.bob)
	s.Require().NoError(err)
	s.Require().Equal(StatePlaying, r.State())
	return r
}

func (s *RoomSuite) TestJoinFillsSlotsInOrderAndStarts() {
	r := s.manager.FindJoinableRoom()
	s.Equal(StateWaiting, r.State())

	slot, err := r.Join(s.alice)
	s.Require().NoError(err)
	s.Equal(0, slot)
	s.Equal(StateWaiting, r.State())

	slot, err = r.Join(s.bob)
	s.Require().NoError(err)
	s.Equal(1, slot)
	s.Equal(StatePlaying, r.State())
	s.Equal(0, r.Turn())

	_, err = r.Join(player(3))
	s.ErrorIs(err, ErrRoomFull)
	s.Len(r.Seats(), 2)

	joined := s.notifier.ofType(gamedto.TypeJoined)
	s.Require().Len(joined, 2)
	s.Equal([]string{s.alice.UUID}, joined[0].to)
	s.Equal(gamedto.Joined{RoomID: r.ID(), Slot: 1}, joined[1].msg)

	states := s.notifier.ofType(gamedto.TypeState)
	s.Require().Len(states, 1)
	s.ElementsMatch([]string{s.alice.UUID, s.bob.UUID}, states[0].to)
}

func (s *RoomSuite) TestJoinIsIdempotentForSeatedPlayer() {
	r := s.manager.FindJoinableRoom()
	_, _ = r.Join(s.alice)
	slot, err := r.Join(s.alice)
	s.Require().NoError(err)
	s.Equal(0, slot)
	s.Equal(1, r.Info().Count)
}

func (s *RoomSuite) TestJoinRejectsInvalidIdentity() {
	r := s.manager.FindJoinableRoom()
	_, err := r.Join(domain.PlayerIdentity{UUID: "x"})
	s.ErrorIs(err, ErrInvalidPlayer)
}

func (s *RoomSuite) TestMoveOutOfTurnLeavesStateUnchanged() {
	r := s.playingRoom()
	before := r.Board().String()

	_, err := r.Move(s.bob, 3)
	s.ErrorIs(err, ErrNotYourTurn)
	s.Equal(before, r.Board().String())
	s.Equal(0, r.Turn())
}

func (s *RoomSuite) TestMoveBeforePlayingFails() {
	r := s.manager.FindJoinableRoom()
	_, _ = r.Join(s.alice)
	_, err := r.Move(s.alice, 0)
	s.ErrorIs(err, ErrRoomNotPlaying)
}

func (s *RoomSuite) TestMoveByStrangerFails() {
	r := s.playingRoom()
	_, err := r.Move(player(9), 0)
	s.ErrorIs(err, ErrNotInRoom)
}

func (s *RoomSuite) TestInvalidMoveKeepsTurn() {
	r := s.playingRoom()
	_, err := r.Move(s.alice, 7)
	s.ErrorIs(err, ErrInvalidMove)
	s.Equal(0, r.Turn())
	s.Equal(0, r.Board().Filled())
}

func (s *RoomSuite) TestMoveAlternatesTurns() {
	r := s.playingRoom()
	ev, err := r.Move(s.alice, 3)
	s.Require().NoError(err)
	s.Equal(EventStateUpdate, ev.Kind)
	s.Equal(1, ev.Turn)
	s.Equal(board.Slot0, ev.Board.At(0, 3))

	ev, err = r.Move(s.bob, 3)
	s.Require().NoError(err)
	s.Equal(0, ev.Turn)
	s.Equal(board.Slot1, ev.Board.At(1, 3))
}

func (s *RoomSuite) TestWinRecordsOnceAndTearsDown() {
	r := s.playingRoom()
	// alice stacks column 0, bob stacks column 1
	for i := 0; i < 3; i++ {
		_, err := r.Move(s.alice, 0)
		s.Require().NoError(err)
		_, err = r.Move(s.bob, 1)
		s.Require().NoError(err)
	}
	ev, err := r.Move(s.alice, 0)
	s.Require().NoError(err)
	s.Equal(EventGameOver, ev.Kind)
	s.Require().NotNil(ev.Outcome)
	s.Equal(domain.WinBy(0), *ev.Outcome)
	s.Equal(StateFinished, r.State())

	results := s.recorder.all()
	s.Require().Len(results, 1)
	s.Equal(s.alice.ID, results[0].Player1ID())
	s.Equal(s.bob.ID, results[0].Player2ID())
	s.Equal(s.alice.ID, results[0].WinnerID())
	s.Equal([]int{0, 1, 0, 1, 0, 1, 0}, results[0].Moves)
	s.Equal(r.ID(), results[0].RoomID)

	_, ok := s.manager.Get(r.ID())
	s.False(ok, "finished room should be destroyed")

	_, err = r.Move(s.bob, 1)
	s.ErrorIs(err, ErrRoomNotPlaying)
	s.NoError(r.Leave(s.bob))
	s.Len(s.recorder.all(), 1)

	over := s.notifier.ofType(gamedto.TypeGameOver)
	s.Require().Len(over, 1)
	s.Equal(0, over[0].msg.(gamedto.GameOver).WinnerSlot)
}

func (s *RoomSuite) TestDrawRecordsOnce() {
	s.manager = NewManager(Options{
		BoardWidth:  2,
		BoardHeight: 2,
		Clock:       s.clock,
		Notifier:    s.notifier,
		Recorder:    s.recorder,
	})
	r := s.playingRoom()
	for _, step := range []struct {
		p   domain.PlayerIdentity
		col int
	}{{s.alice, 0}, {s.bob, 1}, {s.alice, 1}, {s.bob, 0}} {
		_, err := r.Move(step.p, step.col)
		s.Require().NoError(err)
	}
	s.Equal(StateFinished, r.State())
	results := s.recorder.all()
	s.Require().Len(results, 1)
	s.Equal(domain.OutcomeDraw, results[0].Outcome.Kind)
	s.Equal(int64(0), results[0].WinnerID())
}

func (s *RoomSuite) TestLeaveDuringPlayForfeits() {
	r := s.playingRoom()
	_, _ = r.Move(s.alice, 3)

	s.Require().NoError(r.Leave(s.bob))
	s.Equal(StateFinished, r.State())

	results := s.recorder.all()
	s.Require().Len(results, 1)
	s.Equal(domain.ForfeitBy(1), results[0].Outcome)
	s.Equal(s.alice.ID, results[0].WinnerID())

	s.NoError(r.Leave(s.alice))
	s.Len(s.recorder.all(), 1)
}

func (s *RoomSuite) TestLeaveWhileWaitingFreesSlot() {
	r := s.manager.FindJoinableRoom()
	_, _ = r.Join(s.alice)
	s.Require().NoError(r.Leave(s.alice))
	s.Equal(StateWaiting, r.State())
	s.Equal(0, r.Info().Count)

	slot, err := r.Join(s.bob)
	s.Require().NoError(err)
	s.Equal(0, slot)
	s.Empty(s.recorder.all())
}

func (s *RoomSuite) TestLeaveByStrangerFails() {
	r := s.manager.FindJoinableRoom()
	s.ErrorIs(r.Leave(s.alice), ErrNotInRoom)
}

func (s *RoomSuite) TestConcurrentTerminationRecordsExactlyOnce() {
	for round := 0; round < 20; round++ {
		s.recorder = &fakeRecorder{}
		s.manager = NewManager(Options{Clock: s.clock, Notifier: s.notifier, Recorder: s.recorder})
		r := s.playingRoom()
		for i := 0; i < 3; i++ {
			_, _ = r.Move(s.alice, 0)
			_, _ = r.Move(s.bob, 1)
		}

		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); _, _ = r.Move(s.alice, 0) }()
		go func() { defer wg.Done(); _ = r.Leave(s.bob) }()
		go func() { defer wg.Done(); _ = r.Leave(s.alice) }()
		wg.Wait()

		s.Equal(StateFinished, r.State())
		s.Len(s.recorder.all(), 1, "round %d", round)
	}
}

func (s *RoomSuite) TestSnapshotReflectsBoard() {
	r := s.playingRoom()
	_, _ = r.Move(s.alice, 2)
	snap := r.Snapshot()
	s.Equal(r.ID(), snap.RoomID)
	s.Equal(1, snap.Turn)
	s.Equal(string(StatePlaying), snap.Status)
	s.Equal(0, snap.Board[len(snap.Board)-1][2])
}
