package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/dropfour-server/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS players (
	id           BIGINT PRIMARY KEY,
	uuid         TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	merged_into  BIGINT REFERENCES players(id),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS matches (
	match_id    TEXT PRIMARY KEY,
	room_id     TEXT NOT NULL,
	player1_id  BIGINT NOT NULL REFERENCES players(id),
	player2_id  BIGINT NOT NULL REFERENCES players(id),
	outcome     TEXT NOT NULL,
	winner_id   BIGINT REFERENCES players(id),
	board       TEXT NOT NULL,
	moves       JSONB NOT NULL DEFAULT '[]'::jsonb,
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS matches_finished_idx ON matches (finished_at DESC, match_id DESC);
CREATE TABLE IF NOT EXISTS identity_merges (
	absorbed_id  BIGINT PRIMARY KEY REFERENCES players(id),
	surviving_id BIGINT NOT NULL REFERENCES players(id),
	merged_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// PostgresStore persists matches through database/sql and lib/pq.
type PostgresStore struct {
	db       *sql.DB
	maxLimit int
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(databaseURL string, maxLimit int) (*PostgresStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	return &PostgresStore{db: db, maxLimit: maxLimit}, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) SaveMatch(ctx context.Context, result domain.MatchResult) error {
	rec := toRecord(result)
	moves, err := json.Marshal(rec.Moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range []domain.PlayerIdentity{result.Player1, result.Player2} {
		if err := upsertPlayer(ctx, tx, p); err != nil {
			return err
		}
	}
	if rec.Player1ID, err = resolvePlayer(ctx, tx, rec.Player1ID); err != nil {
		return err
	}
	if rec.Player2ID, err = resolvePlayer(ctx, tx, rec.Player2ID); err != nil {
		return err
	}
	var winner sql.NullInt64
	if rec.WinnerID != 0 {
		id, err := resolvePlayer(ctx, tx, rec.WinnerID)
		if err != nil {
			return err
		}
		winner = sql.NullInt64{Int64: id, Valid: true}
	}

	const q = `
		INSERT INTO matches (
			match_id, room_id, player1_id, player2_id, outcome, winner_id,
			board, moves, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)
		ON CONFLICT (match_id) DO NOTHING
		RETURNING match_id`

	var inserted string
	err = tx.QueryRowContext(ctx, q,
		rec.MatchID, rec.RoomID, rec.Player1ID, rec.Player2ID, string(rec.Outcome), winner,
		rec.Board, string(moves), nullTime(rec.StartedAt), rec.FinishedAt,
	).Scan(&inserted)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDuplicateMatch
	}
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit match: %w", err)
	}
	return nil
}

func upsertPlayer(ctx context.Context, tx *sql.Tx, p domain.PlayerIdentity) error {
	const q = `
		INSERT INTO players (id, uuid, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), players.display_name),
			updated_at = now()`
	if _, err := tx.ExecContext(ctx, q, p.ID, strings.TrimSpace(p.UUID), strings.TrimSpace(p.DisplayName)); err != nil {
		return fmt.Errorf("upsert player %d: %w", p.ID, err)
	}
	return nil
}

func resolvePlayer(ctx context.Context, tx *sql.Tx, id int64) (int64, error) {
	var resolved int64
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(merged_into, id) FROM players WHERE id = $1`, id).Scan(&resolved)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnknownPlayer
	}
	if err != nil {
		return 0, fmt.Errorf("resolve player %d: %w", id, err)
	}
	return resolved, nil
}

func (s *PostgresStore) PlayerScores(ctx context.Context) ([]domain.Score, error) {
	const q = `
		SELECT
			p.id,
			p.uuid,
			p.display_name,
			COUNT(m.match_id) FILTER (WHERE m.winner_id = p.id) AS wins,
			COUNT(m.match_id) FILTER (WHERE m.winner_id IS NOT NULL AND m.winner_id <> p.id) AS losses,
			COUNT(m.match_id) FILTER (WHERE m.match_id IS NOT NULL AND m.winner_id IS NULL) AS draws,
			COUNT(m.match_id) AS games
		FROM players p
		LEFT JOIN matches m ON m.player1_id = p.id OR m.player2_id = p.id
		WHERE p.merged_into IS NULL
		GROUP BY p.id, p.uuid, p.display_name
		ORDER BY wins DESC, games ASC, p.id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("select scores: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Score, 0)
	for rows.Next() {
		var sc domain.Score
		if err := rows.Scan(&sc.PlayerID, &sc.UUID, &sc.DisplayName, &sc.Wins, &sc.Losses, &sc.Draws, &sc.Games); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) History(ctx context.Context, q HistoryQuery) (HistoryPage, error) {
	q = q.Normalize(s.maxLimit)
	const query = `
		SELECT match_id, room_id, player1_id, player2_id, outcome, winner_id,
		       board, moves, started_at, finished_at
		FROM matches
		ORDER BY finished_at DESC, match_id DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, q.Limit+1, q.StartFrom)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.MatchRecord, 0, q.Limit)
	for rows.Next() {
		var (
			rec       domain.MatchRecord
			outcome   string
			winner    sql.NullInt64
			movesJSON []byte
			started   sql.NullTime
		)
		if err := rows.Scan(&rec.MatchID, &rec.RoomID, &rec.Player1ID, &rec.Player2ID, &outcome, &winner,
			&rec.Board, &movesJSON, &started, &rec.FinishedAt); err != nil {
			return HistoryPage{}, fmt.Errorf("scan match: %w", err)
		}
		rec.Outcome = domain.OutcomeKind(outcome)
		if winner.Valid {
			rec.WinnerID = winner.Int64
		}
		if started.Valid {
			rec.StartedAt = started.Time
		}
		if err := json.Unmarshal(movesJSON, &rec.Moves); err != nil {
			return HistoryPage{}, fmt.Errorf("unmarshal moves: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return HistoryPage{}, err
	}
	more := len(out) > q.Limit
	if more {
		out = out[:q.Limit]
	}
	return newPage(out, q, more), nil
}

func (s *PostgresStore) MergeIdentity(ctx context.Context, survivingID, absorbedID int64) error {
	if survivingID == absorbedID {
		return ErrSelfMerge
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, merged_into FROM players WHERE id = ANY(ARRAY[$1, $2]::BIGINT[]) FOR UPDATE`,
		survivingID, absorbedID)
	if err != nil {
		return fmt.Errorf("lock players: %w", err)
	}
	found := make(map[int64]sql.NullInt64, 2)
	for rows.Next() {
		var (
			id     int64
			merged sql.NullInt64
		)
		if err := rows.Scan(&id, &merged); err != nil {
			rows.Close()
			return fmt.Errorf("scan player: %w", err)
		}
		found[id] = merged
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	survivor, okS := found[survivingID]
	absorbed, okA := found[absorbedID]
	if !okS || !okA {
		return ErrUnknownPlayer
	}
	if survivor.Valid || absorbed.Valid {
		return ErrAlreadyMerged
	}

	stmts := []string{
		`UPDATE matches SET player1_id = $1 WHERE player1_id = $2`,
		`UPDATE matches SET player2_id = $1 WHERE player2_id = $2`,
		`UPDATE matches SET winner_id = $1 WHERE winner_id = $2`,
		`UPDATE players SET merged_into = $1, updated_at = now() WHERE merged_into = $2`,
		`UPDATE players SET merged_into = $1, updated_at = now() WHERE id = $2`,
		`INSERT INTO identity_merges (surviving_id, absorbed_id) VALUES ($1, $2)`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, survivingID, absorbedID); err != nil {
			return fmt.Errorf("merge %d into %d: %w", absorbedID, survivingID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
