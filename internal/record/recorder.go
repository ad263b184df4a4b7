package record

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/dropfour-server/internal/domain"
	"github.com/park285/dropfour-server/internal/obslog"
)

const (
	DefaultQueueSize   = 256
	DefaultMaxAttempts = 5

	DefaultBackoffBase  = 100 * time.Millisecond
	DefaultBackoffLimit = 3200 * time.Millisecond
)

var ErrRecorderClosed = errors.New("recorder closed")

// AsyncRecorder hands finished matches to a Store off the room's critical path.
// Record never blocks; a full queue drops the result and logs it.
type AsyncRecorder struct {
	store       Store
	queue       chan domain.MatchResult
	maxAttempts int
	backoff     func(attempt int) time.Duration

	mu     sync.RWMutex
	closed bool

	stopCh chan struct{}
	done   chan struct{}
	log    *zap.Logger
}

type RecorderOptions struct {
	QueueSize   int
	MaxAttempts int
	// Backoff gives the delay before retrying after the given failed attempt.
	// Nil means ExponentialBackoff(DefaultBackoffBase, DefaultBackoffLimit).
	Backoff func(attempt int) time.Duration
}

func NewAsyncRecorder(store Store, opts RecorderOptions) *AsyncRecorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff == nil {
		opts.Backoff = ExponentialBackoff(DefaultBackoffBase, DefaultBackoffLimit)
	}
	r := &AsyncRecorder{
		store:       store,
		queue:       make(chan domain.MatchResult, opts.QueueSize),
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		log:         obslog.Named("recorder"),
	}
	go r.run()
	return r
}

// Record enqueues a result for persistence.
func (r *AsyncRecorder) Record(result domain.MatchResult) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.log.Warn("match_drop", zap.String("match_id", result.MatchID), zap.Error(ErrRecorderClosed))
		return
	}
	select {
	case r.queue <- result:
	default:
		r.log.Error("match_drop",
			zap.String("match_id", result.MatchID),
			zap.String("room_id", result.RoomID),
			zap.String("reason", "queue full"),
		)
	}
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for result := range r.queue {
		r.persist(result)
	}
}

func (r *AsyncRecorder) persist(result domain.MatchResult) {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.store.SaveMatch(ctx, result)
		cancel()
		switch {
		case err == nil:
			r.log.Info("match_persist",
				zap.String("match_id", result.MatchID),
				zap.String("room_id", result.RoomID),
				zap.String("outcome", result.Outcome.String()),
				zap.Int("attempt", attempt),
			)
			return
		case errors.Is(err, ErrDuplicateMatch):
			r.log.Debug("match_persist_duplicate", zap.String("match_id", result.MatchID))
			return
		}
		r.log.Warn("match_persist_error",
			zap.String("match_id", result.MatchID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == r.maxAttempts {
			break
		}
		select {
		case <-r.stopCh:
			// draining: keep retrying without sleeping past shutdown
		case <-time.After(r.backoff(attempt)):
		}
	}
	r.log.Error("match_persist_giveup", zap.String("match_id", result.MatchID), zap.Int("attempts", r.maxAttempts))
}

// Close stops accepting results and waits for the queue to drain or ctx to end.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.stopCh)
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExponentialBackoff returns a retry delay of base for the first attempt,
// doubling on each later attempt up to limit.
func ExponentialBackoff(base, limit time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for n := 1; n < attempt && d < limit; n++ {
			d *= 2
		}
		return min(d, limit)
	}
}
