// Package lobbyidx mirrors the live room list into Redis so processes other
// than the game server can read the lobby.
package lobbyidx

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/dropfour-server/internal/room"
)

const ttlRoom = time.Hour

// Store reads and writes room snapshots.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) keyRoom(id string) string { return "df:room:" + strings.TrimSpace(id) }
func (s *Store) keyLobby() string         { return "df:lobby" }

// Save writes info and keeps the joinable set in step with it.
func (s *Store) Save(ctx context.Context, info room.Info) error {
	if strings.TrimSpace(info.ID) == "" {
		return errors.New("room id required")
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keyRoom(info.ID), raw, ttlRoom)
	if info.Joinable {
		pipe.SAdd(ctx, s.keyLobby(), info.ID)
		pipe.Expire(ctx, s.keyLobby(), ttlRoom)
	} else {
		pipe.SRem(ctx, s.keyLobby(), info.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Delete drops the room snapshot and its lobby entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.keyRoom(id))
	pipe.SRem(ctx, s.keyLobby(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// Load returns the snapshot for id, or nil when it is absent.
func (s *Store) Load(ctx context.Context, id string) (*room.Info, error) {
	raw, err := s.rdb.Get(ctx, s.keyRoom(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info room.Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListJoinable returns joinable rooms oldest first. Stale set members whose
// snapshot expired are pruned.
func (s *Store) ListJoinable(ctx context.Context) ([]room.Info, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyLobby()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]room.Info, 0, len(ids))
	for _, id := range ids {
		info, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if info == nil {
			_ = s.rdb.SRem(ctx, s.keyLobby(), id).Err()
			continue
		}
		if !info.Joinable {
			continue
		}
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
