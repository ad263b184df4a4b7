package record

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/park285/dropfour-server/internal/board"
	"github.com/park285/dropfour-server/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func ident(n int64) domain.PlayerIdentity {
	return domain.PlayerIdentity{ID: n, UUID: fmt.Sprintf("uuid-%d", n), DisplayName: fmt.Sprintf("P%d", n)}
}

func result(id string, p1, p2 int64, outcome domain.Outcome, at time.Time) domain.MatchResult {
	return domain.MatchResult{
		MatchID:    id,
		RoomID:     "room-" + id,
		Player1:    ident(p1),
		Player2:    ident(p2),
		Outcome:    outcome,
		FinalBoard: board.NewDefault(),
		Moves:      []int{3, 3},
		StartedAt:  at.Add(-time.Minute),
		Timestamp:  at,
	}
}

// StoreSuite runs against any Store; newStore must return an empty store
// whose history limit is capped at 5.
type StoreSuite struct {
	suite.Suite
	newStore func() Store
	ctx      context.Context
	store    Store
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func() Store { return NewMemoryStore(5) }})
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func (s *StoreSuite) save(results ...domain.MatchResult) {
	for _, r := range results {
		s.Require().NoError(s.store.SaveMatch(s.ctx, r))
	}
}

func (s *StoreSuite) scoreOf(id int64) (domain.Score, bool) {
	scores, err := s.store.PlayerScores(s.ctx)
	s.Require().NoError(err)
	for _, sc := range scores {
		if sc.PlayerID == id {
			return sc, true
		}
	}
	return domain.Score{}, false
}

func (s *StoreSuite) TestSaveMatchRejectsDuplicate() {
	r := result("m1", 1, 2, domain.WinBy(0), t0)
	s.save(r)
	s.ErrorIs(s.store.SaveMatch(s.ctx, r), ErrDuplicateMatch)
}

func (s *StoreSuite) TestScoresCountOutcomes() {
	s.save(
		result("m1", 1, 2, domain.WinBy(0), t0),
		result("m2", 1, 2, domain.DrawOutcome(), t0.Add(time.Minute)),
		result("m3", 2, 1, domain.ForfeitBy(1), t0.Add(2*time.Minute)),
	)

	a, ok := s.scoreOf(1)
	s.Require().True(ok)
	s.Equal(domain.Score{PlayerID: 1, UUID: "uuid-1", DisplayName: "P1", Wins: 1, Losses: 1, Draws: 1, Games: 3}, a)

	b, ok := s.scoreOf(2)
	s.Require().True(ok)
	s.Equal(1, b.Wins)
	s.Equal(1, b.Losses)
	s.Equal(1, b.Draws)
}

func (s *StoreSuite) TestScoresOrdering() {
	s.save(
		result("m1", 3, 4, domain.WinBy(0), t0),
		result("m2", 3, 4, domain.WinBy(0), t0.Add(time.Second)),
		result("m3", 5, 6, domain.WinBy(0), t0.Add(2*time.Second)),
	)
	scores, err := s.store.PlayerScores(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(scores, 4)
	s.Equal(int64(3), scores[0].PlayerID)
	s.Equal(int64(5), scores[1].PlayerID)
	s.Equal(int64(6), scores[2].PlayerID, "fewer games ranks first among zero-win players")
	s.Equal(int64(4), scores[3].PlayerID)
}

func (s *StoreSuite) TestHistoryPaging() {
	for i := 0; i < 7; i++ {
		s.save(result(fmt.Sprintf("m%d", i), 1, 2, domain.WinBy(i%2), t0.Add(time.Duration(i)*time.Minute)))
	}

	page, err := s.store.History(s.ctx, HistoryQuery{Limit: 3})
	s.Require().NoError(err)
	s.Require().Len(page.Matches, 3)
	s.Equal("m6", page.Matches[0].MatchID, "newest first")
	s.Equal(3, page.NextStartFrom)

	page, err = s.store.History(s.ctx, HistoryQuery{Limit: 3, StartFrom: 6})
	s.Require().NoError(err)
	s.Require().Len(page.Matches, 1)
	s.Equal("m0", page.Matches[0].MatchID)
	s.Equal(-1, page.NextStartFrom)

	page, err = s.store.History(s.ctx, HistoryQuery{Limit: 50})
	s.Require().NoError(err)
	s.Equal(5, page.Limit, "limit is capped")
	s.Len(page.Matches, 5)

	page, err = s.store.History(s.ctx, HistoryQuery{StartFrom: 100})
	s.Require().NoError(err)
	s.Empty(page.Matches)
	s.NotNil(page.Matches)
	s.Equal(-1, page.NextStartFrom)
}

func (s *StoreSuite) TestHistoryRecordShape() {
	s.save(result("m1", 1, 2, domain.ForfeitBy(0), t0))
	page, err := s.store.History(s.ctx, HistoryQuery{})
	s.Require().NoError(err)
	s.Require().Len(page.Matches, 1)
	rec := page.Matches[0]
	s.Equal(domain.OutcomeForfeit, rec.Outcome)
	s.Equal(int64(2), rec.WinnerID)
	s.Equal([]int{3, 3}, rec.Moves)
	s.Equal(board.NewDefault().String(), rec.Board)
	s.True(rec.FinishedAt.Equal(t0))
}

func (s *StoreSuite) TestMergeReattributesHistory() {
	s.save(
		result("m1", 1, 3, domain.WinBy(0), t0),
		result("m2", 2, 3, domain.WinBy(0), t0.Add(time.Minute)),
		result("m3", 3, 2, domain.DrawOutcome(), t0.Add(2*time.Minute)),
	)
	before, _ := s.scoreOf(1)
	absorbed, _ := s.scoreOf(2)

	s.Require().NoError(s.store.MergeIdentity(s.ctx, 1, 2))

	page, err := s.store.History(s.ctx, HistoryQuery{})
	s.Require().NoError(err)
	for _, rec := range page.Matches {
		s.NotEqual(int64(2), rec.Player1ID)
		s.NotEqual(int64(2), rec.Player2ID)
		s.NotEqual(int64(2), rec.WinnerID)
	}

	after, ok := s.scoreOf(1)
	s.Require().True(ok)
	s.Equal(before.Wins+absorbed.Wins, after.Wins)
	s.Equal(before.Draws+absorbed.Draws, after.Draws)
	s.Equal(before.Games+absorbed.Games, after.Games)

	_, ok = s.scoreOf(2)
	s.False(ok, "absorbed identity no longer appears")
}

func (s *StoreSuite) TestMergeTwiceFailsCleanly() {
	s.save(result("m1", 1, 2, domain.WinBy(1), t0))
	s.Require().NoError(s.store.MergeIdentity(s.ctx, 1, 2))

	scores, err := s.store.PlayerScores(s.ctx)
	s.Require().NoError(err)

	s.ErrorIs(s.store.MergeIdentity(s.ctx, 1, 2), ErrAlreadyMerged)
	again, err := s.store.PlayerScores(s.ctx)
	s.Require().NoError(err)
	s.Equal(scores, again)
}

func (s *StoreSuite) TestMergeRejectsBadIDs() {
	s.save(result("m1", 1, 2, domain.WinBy(0), t0))
	s.ErrorIs(s.store.MergeIdentity(s.ctx, 1, 1), ErrSelfMerge)
	s.ErrorIs(s.store.MergeIdentity(s.ctx, 1, 99), ErrUnknownPlayer)
	s.ErrorIs(s.store.MergeIdentity(s.ctx, 99, 1), ErrUnknownPlayer)
}

func (s *StoreSuite) TestMatchesAfterMergeGoToSurvivor() {
	s.save(result("m1", 1, 2, domain.WinBy(0), t0))
	s.Require().NoError(s.store.MergeIdentity(s.ctx, 1, 2))
	s.save(result("m2", 2, 3, domain.WinBy(0), t0.Add(time.Minute)))

	sc, ok := s.scoreOf(1)
	s.Require().True(ok)
	s.Equal(2, sc.Wins)
}

func (s *StoreSuite) TestMergedOpponentsCountMatchOnce() {
	s.save(
		result("m1", 1, 2, domain.WinBy(0), t0),
		result("m2", 2, 1, domain.DrawOutcome(), t0.Add(time.Minute)),
		result("m3", 2, 3, domain.WinBy(1), t0.Add(2*time.Minute)),
	)
	s.Require().NoError(s.store.MergeIdentity(s.ctx, 1, 2))

	sc, ok := s.scoreOf(1)
	s.Require().True(ok)
	s.Equal(1, sc.Wins, "m1 won by the survivor against itself")
	s.Equal(1, sc.Draws, "m2 drawn against itself")
	s.Equal(1, sc.Losses, "m3 lost to player 3")
	s.Equal(3, sc.Games)

	page, err := s.store.History(s.ctx, HistoryQuery{})
	s.Require().NoError(err)
	s.Len(page.Matches, 3, "self-matches stay in history")
}
