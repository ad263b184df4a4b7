package lobbyidx

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/park285/dropfour-server/internal/clock"
	"github.com/park285/dropfour-server/internal/domain"
	"github.com/park285/dropfour-server/internal/obslog"
	"github.com/park285/dropfour-server/internal/room"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb), mr
}

func info(id string, joinable bool, created time.Time) room.Info {
	status := room.StateWaiting
	if !joinable {
		status = room.StatePlaying
	}
	return room.Info{ID: id, Name: "Room " + id, Count: 1, Max: 2, Joinable: joinable, Status: status, CreatedAt: created}
}

func TestStore_SaveListDelete(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, info("b", true, base.Add(time.Second))))
	require.NoError(t, s.Save(ctx, info("a", true, base)))
	require.NoError(t, s.Save(ctx, info("c", false, base)))

	list, err := s.ListJoinable(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	assert.True(t, mr.Exists("df:room:c"))
	assert.Greater(t, mr.TTL("df:room:a"), time.Duration(0))

	// a room filling up leaves the lobby set
	require.NoError(t, s.Save(ctx, info("a", false, base)))
	members, err := mr.Members("df:lobby")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)

	require.NoError(t, s.Delete(ctx, "b"))
	assert.False(t, mr.Exists("df:room:b"))
	list, err = s.ListJoinable(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := s.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_PrunesExpiredSnapshots(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, info("x", true, time.Now())))
	mr.Del("df:room:x")

	list, err := s.ListJoinable(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.False(t, mr.Exists("df:lobby"))
}

func TestMirror_FollowsManager(t *testing.T) {
	s, _ := newTestStore(t)
	mirror := NewMirror(s, 0)
	clk := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := room.NewManager(room.Options{Clock: clk, Mirror: mirror})
	ctx := context.Background()

	r := m.FindJoinableRoom()
	_, err := r.Join(domain.PlayerIdentity{ID: 1, UUID: "u1"})
	require.NoError(t, err)
	clk.Advance(time.Second)
	other := m.Create()

	waitJoinable := func(n int) []room.Info {
		var list []room.Info
		require.Eventually(t, func() bool {
			list, err = s.ListJoinable(ctx)
			return err == nil && len(list) == n
		}, time.Second, 5*time.Millisecond)
		return list
	}
	list := waitJoinable(2)
	assert.Equal(t, 1, list[0].Count)

	_, err = r.Join(domain.PlayerIdentity{ID: 2, UUID: "u2"})
	require.NoError(t, err)
	list = waitJoinable(1)
	assert.Equal(t, other.ID(), list[0].ID)

	m.Destroy(other.ID())
	require.NoError(t, mirror.Close(ctx))
	list, err = s.ListJoinable(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	// publishing after close is ignored
	mirror.Publish(info("late", true, time.Now()))
	got, err := s.Load(ctx, "late")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMirror_LogsRedisFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	t.Cleanup(obslog.Replace(zap.New(core)))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	mirror := NewMirror(NewStore(rdb), 4)
	for i := 0; i < 3; i++ {
		mirror.Publish(info(fmt.Sprint(i), true, time.Now()))
	}
	mirror.Remove("0")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mirror.Close(ctx), "worker drains even when every write fails")

	failed := logs.FilterMessage("lobby_mirror_error").All()
	require.Len(t, failed, 4)
	assert.Equal(t, "0", failed[0].ContextMap()["room_id"])
	assert.Zero(t, logs.FilterMessage("lobby_mirror_drop").Len())
}
