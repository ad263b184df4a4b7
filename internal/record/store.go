package record

import (
	"context"
	"errors"

	"github.com/park285/dropfour-server/internal/domain"
)

var (
	ErrUnknownPlayer  = errors.New("unknown player id")
	ErrAlreadyMerged  = errors.New("player id already merged")
	ErrSelfMerge      = errors.New("cannot merge a player into itself")
	ErrDuplicateMatch = errors.New("match already recorded")
)

const (
	DefaultHistoryLimit = 20
	DefaultMaxLimit     = 100
)

// Store persists finished matches and serves the read-side queries.
type Store interface {
	SaveMatch(ctx context.Context, result domain.MatchResult) error
	PlayerScores(ctx context.Context) ([]domain.Score, error)
	History(ctx context.Context, q HistoryQuery) (HistoryPage, error)
	// MergeIdentity reassigns every match of absorbedID to survivingID and
	// retires absorbedID. It is applied fully or not at all.
	MergeIdentity(ctx context.Context, survivingID, absorbedID int64) error
	Close() error
}

// HistoryQuery pages through past matches, newest first.
// Limit caps the page size; StartFrom is the offset of the first row.
type HistoryQuery struct {
	Limit     int
	StartFrom int
}

// Normalize clamps the query to [1, maxLimit] rows from a non-negative offset.
func (q HistoryQuery) Normalize(maxLimit int) HistoryQuery {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.StartFrom < 0 {
		q.StartFrom = 0
	}
	return q
}

// HistoryPage is one page of history. NextStartFrom is -1 on the last page.
type HistoryPage struct {
	Matches       []domain.MatchRecord `json:"matches"`
	StartFrom     int                  `json:"startFrom"`
	Limit         int                  `json:"limit"`
	NextStartFrom int                  `json:"nextStartFrom"`
}

func newPage(rows []domain.MatchRecord, q HistoryQuery, more bool) HistoryPage {
	if rows == nil {
		rows = []domain.MatchRecord{}
	}
	next := -1
	if more {
		next = q.StartFrom + len(rows)
	}
	return HistoryPage{Matches: rows, StartFrom: q.StartFrom, Limit: q.Limit, NextStartFrom: next}
}

// toRecord flattens a MatchResult into its persisted shape.
func toRecord(m domain.MatchResult) domain.MatchRecord {
	return domain.MatchRecord{
		MatchID:    m.MatchID,
		RoomID:     m.RoomID,
		Player1ID:  m.Player1ID(),
		Player2ID:  m.Player2ID(),
		Outcome:    m.Outcome.Kind,
		WinnerID:   m.WinnerID(),
		Board:      m.FinalBoard.String(),
		Moves:      append([]int(nil), m.Moves...),
		StartedAt:  m.StartedAt,
		FinishedAt: m.Timestamp,
	}
}
