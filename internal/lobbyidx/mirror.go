package lobbyidx

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/dropfour-server/internal/obslog"
	"github.com/park285/dropfour-server/internal/room"
)

const defaultBuffer = 512

type op struct {
	info   room.Info
	remove bool
}

// Mirror implements room.Mirror by queueing writes for a background worker,
// so a room lock never waits on Redis. Writes are applied one at a time in
// order: a Redis call that hangs stalls every later lobby update until it
// returns, and the queue drops new updates once it fills.
type Mirror struct {
	store   *Store
	ops     chan op
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	log    *zap.Logger
}

var _ room.Mirror = (*Mirror)(nil)

func NewMirror(store *Store, buffer int) *Mirror {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	m := &Mirror{
		store:   store,
		ops:     make(chan op, buffer),
		timeout: 2 * time.Second,
		done:    make(chan struct{}),
		log:     obslog.Named("lobbyidx"),
	}
	go m.run()
	return m
}

func (m *Mirror) Publish(info room.Info) { m.push(op{info: info}) }

func (m *Mirror) Remove(roomID string) { m.push(op{info: room.Info{ID: roomID}, remove: true}) }

func (m *Mirror) push(o op) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.ops <- o:
	default:
		m.log.Warn("lobby_mirror_drop", zap.String("room_id", o.info.ID), zap.Bool("remove", o.remove))
	}
}

func (m *Mirror) run() {
	defer close(m.done)
	for o := range m.ops {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		var err error
		if o.remove {
			err = m.store.Delete(ctx, o.info.ID)
		} else {
			err = m.store.Save(ctx, o.info)
		}
		cancel()
		if err != nil {
			m.log.Warn("lobby_mirror_error", zap.String("room_id", o.info.ID), zap.Error(err))
		}
	}
}

// Close flushes queued writes and stops the worker.
func (m *Mirror) Close(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.ops)
	}
	m.mu.Unlock()
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
