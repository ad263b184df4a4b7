package record

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/dropfour-server/internal/domain"
)

type memPlayer struct {
	identity   domain.PlayerIdentity
	mergedInto int64
}

// MemoryStore is an in-process Store used when no database is configured and in tests.
type MemoryStore struct {
	mu sync.RWMutex

	maxLimit int
	players  map[int64]*memPlayer
	matches  []*domain.MatchRecord // insertion order
	byMatch  map[string]*domain.MatchRecord
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(maxLimit int) *MemoryStore {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	return &MemoryStore{
		maxLimit: maxLimit,
		players:  make(map[int64]*memPlayer),
		byMatch:  make(map[string]*domain.MatchRecord),
	}
}

// RegisterPlayer records an identity without a match, e.g. from an admin import.
func (m *MemoryStore) RegisterPlayer(p domain.PlayerIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(p)
}

func (m *MemoryStore) upsertLocked(p domain.PlayerIdentity) {
	if row, ok := m.players[p.ID]; ok {
		if strings.TrimSpace(p.DisplayName) != "" {
			row.identity.DisplayName = p.DisplayName
		}
		return
	}
	m.players[p.ID] = &memPlayer{identity: p}
}

// resolveLocked follows merges to the surviving id.
func (m *MemoryStore) resolveLocked(id int64) int64 {
	for i := 0; i < 32; i++ {
		row, ok := m.players[id]
		if !ok || row.mergedInto == 0 {
			return id
		}
		id = row.mergedInto
	}
	return id
}

func (m *MemoryStore) SaveMatch(ctx context.Context, result domain.MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byMatch[result.MatchID]; exists {
		return ErrDuplicateMatch
	}
	m.upsertLocked(result.Player1)
	m.upsertLocked(result.Player2)

	rec := toRecord(result)
	rec.Player1ID = m.resolveLocked(rec.Player1ID)
	rec.Player2ID = m.resolveLocked(rec.Player2ID)
	if rec.WinnerID != 0 {
		rec.WinnerID = m.resolveLocked(rec.WinnerID)
	}
	m.matches = append(m.matches, &rec)
	m.byMatch[rec.MatchID] = &rec
	return nil
}

func (m *MemoryStore) PlayerScores(ctx context.Context) ([]domain.Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scores := make(map[int64]*domain.Score)
	for id, row := range m.players {
		if row.mergedInto != 0 {
			continue
		}
		scores[id] = &domain.Score{PlayerID: id, UUID: row.identity.UUID, DisplayName: row.identity.DisplayName}
	}
	for _, rec := range m.matches {
		seats := []int64{rec.Player1ID, rec.Player2ID}
		if rec.Player1ID == rec.Player2ID {
			// both seats folded into one survivor: one game for that player
			seats = seats[:1]
		}
		for _, id := range seats {
			s, ok := scores[id]
			if !ok {
				continue
			}
			s.Games++
			switch {
			case rec.WinnerID == 0:
				s.Draws++
			case rec.WinnerID == id:
				s.Wins++
			default:
				s.Losses++
			}
		}
	}

	out := make([]domain.Score, 0, len(scores))
	for _, s := range scores {
		out = append(out, *s)
	}
	sortScores(out)
	return out, nil
}

func sortScores(out []domain.Score) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		if out[i].Games != out[j].Games {
			return out[i].Games < out[j].Games
		}
		return out[i].PlayerID < out[j].PlayerID
	})
}

func (m *MemoryStore) History(ctx context.Context, q HistoryQuery) (HistoryPage, error) {
	q = q.Normalize(m.maxLimit)
	m.mu.RLock()
	defer m.mu.RUnlock()

	// newest first; ties fall back to reverse insertion order
	idx := make([]int, len(m.matches))
	for i := range idx {
		idx[i] = len(m.matches) - 1 - i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return m.matches[idx[a]].FinishedAt.After(m.matches[idx[b]].FinishedAt)
	})

	if q.StartFrom >= len(idx) {
		return newPage(nil, q, false), nil
	}
	end := q.StartFrom + q.Limit
	if end > len(idx) {
		end = len(idx)
	}
	rows := make([]domain.MatchRecord, 0, end-q.StartFrom)
	for _, i := range idx[q.StartFrom:end] {
		rec := *m.matches[i]
		rec.Moves = append([]int(nil), rec.Moves...)
		rows = append(rows, rec)
	}
	return newPage(rows, q, end < len(idx)), nil
}

func (m *MemoryStore) MergeIdentity(ctx context.Context, survivingID, absorbedID int64) error {
	if survivingID == absorbedID {
		return ErrSelfMerge
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	survivor, ok := m.players[survivingID]
	if !ok {
		return ErrUnknownPlayer
	}
	absorbed, ok := m.players[absorbedID]
	if !ok {
		return ErrUnknownPlayer
	}
	if absorbed.mergedInto != 0 || survivor.mergedInto != 0 {
		return ErrAlreadyMerged
	}

	for _, rec := range m.matches {
		if rec.Player1ID == absorbedID {
			rec.Player1ID = survivingID
		}
		if rec.Player2ID == absorbedID {
			rec.Player2ID = survivingID
		}
		if rec.WinnerID == absorbedID {
			rec.WinnerID = survivingID
		}
	}
	for _, row := range m.players {
		if row.mergedInto == absorbedID {
			row.mergedInto = survivingID
		}
	}
	absorbed.mergedInto = survivingID
	return nil
}

func (m *MemoryStore) Close() error { return nil }
