package record

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/park285/dropfour-server/internal/domain"
	"github.com/park285/dropfour-server/internal/obslog"
)

// flakyStore fails the first failures calls to SaveMatch.
type flakyStore struct {
	*MemoryStore
	mu       sync.Mutex
	failures int
	calls    int
	block    chan struct{}
}

func (f *flakyStore) SaveMatch(ctx context.Context, r domain.MatchResult) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return f.MemoryStore.SaveMatch(ctx, r)
}

func noBackoff(int) time.Duration { return 0 }

func TestAsyncRecorder_PersistsAndDrains(t *testing.T) {
	store := NewMemoryStore(0)
	rec := NewAsyncRecorder(store, RecorderOptions{Backoff: noBackoff})
	for _, id := range []string{"a", "b", "c"} {
		rec.Record(result(id, 1, 2, domain.WinBy(0), t0))
	}
	require.NoError(t, rec.Close(context.Background()))

	page, err := store.History(context.Background(), HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, page.Matches, 3)
}

func TestAsyncRecorder_RetriesTransientFailures(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(0), failures: 2}
	rec := NewAsyncRecorder(store, RecorderOptions{MaxAttempts: 3, Backoff: noBackoff})
	rec.Record(result("m1", 1, 2, domain.DrawOutcome(), t0))
	require.NoError(t, rec.Close(context.Background()))

	assert.Equal(t, 3, store.calls)
	page, _ := store.History(context.Background(), HistoryQuery{})
	assert.Len(t, page.Matches, 1)
}

func TestAsyncRecorder_GivesUpAfterMaxAttempts(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	defer obslog.Replace(zap.New(core))()

	store := &flakyStore{MemoryStore: NewMemoryStore(0), failures: 10}
	rec := NewAsyncRecorder(store, RecorderOptions{MaxAttempts: 2, Backoff: noBackoff})
	rec.Record(result("m1", 1, 2, domain.WinBy(1), t0))
	require.NoError(t, rec.Close(context.Background()))

	assert.Equal(t, 2, store.calls)
	assert.Equal(t, 2, logs.FilterMessage("match_persist_error").Len())
	assert.Equal(t, 1, logs.FilterMessage("match_persist_giveup").Len())
}

func TestAsyncRecorder_DropsWhenQueueFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	defer obslog.Replace(zap.New(core))()

	block := make(chan struct{})
	store := &flakyStore{MemoryStore: NewMemoryStore(0), block: block}
	rec := NewAsyncRecorder(store, RecorderOptions{QueueSize: 1, Backoff: noBackoff})

	// the worker takes the first result and blocks; the second fills the queue
	rec.Record(result("m1", 1, 2, domain.WinBy(0), t0))
	require.Eventually(t, func() bool { return len(rec.queue) == 0 }, time.Second, time.Millisecond)
	rec.Record(result("m2", 1, 2, domain.WinBy(0), t0))
	rec.Record(result("m3", 1, 2, domain.WinBy(0), t0))
	assert.Equal(t, 1, logs.FilterMessage("match_drop").Len())

	close(block)
	require.NoError(t, rec.Close(context.Background()))
	rec.Record(result("m4", 1, 2, domain.WinBy(0), t0))
	assert.Equal(t, 2, logs.FilterMessage("match_drop").Len())
}

func TestAsyncRecorder_CloseHonorsContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	store := &flakyStore{MemoryStore: NewMemoryStore(0), block: block}
	rec := NewAsyncRecorder(store, RecorderOptions{})
	rec.Record(result("m1", 1, 2, domain.WinBy(0), t0))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rec.Close(ctx), context.DeadlineExceeded)
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff(DefaultBackoffBase, DefaultBackoffLimit)
	assert.Equal(t, 100*time.Millisecond, b(0))
	assert.Equal(t, 100*time.Millisecond, b(1))
	assert.Equal(t, 400*time.Millisecond, b(3))
	assert.Equal(t, 3200*time.Millisecond, b(6))
	assert.Equal(t, 3200*time.Millisecond, b(99))

	odd := ExponentialBackoff(30*time.Millisecond, 100*time.Millisecond)
	assert.Equal(t, 60*time.Millisecond, odd(2))
	assert.Equal(t, 100*time.Millisecond, odd(3))
}
