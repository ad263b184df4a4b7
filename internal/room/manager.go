package room

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/dropfour-server/internal/board"
	"github.com/park285/dropfour-server/internal/clock"
	"github.com/park285/dropfour-server/internal/obslog"
)

// DefaultGracePeriod is how long an empty room survives before it is reaped.
const DefaultGracePeriod = 30 * time.Second

// Options configures a Manager. Zero values pick defaults and no-op collaborators.
type Options struct {
	BoardWidth  int
	BoardHeight int
	GracePeriod time.Duration
	Clock       clock.Clock
	Notifier    Notifier
	Recorder    Recorder
	Mirror      Mirror
}

// Manager is the sole authority for creating and destroying rooms.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	order []string
	seq   uint64

	opts Options
}

func NewManager(opts Options) *Manager {
	if opts.BoardWidth <= 0 {
		opts.BoardWidth = board.DefaultWidth
	}
	if opts.BoardHeight <= 0 {
		opts.BoardHeight = board.DefaultHeight
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Mirror == nil {
		opts.Mirror = nopMirror{}
	}
	return &Manager{rooms: make(map[string]*Room), opts: opts}
}

// SetNotifier wires the outbound path after construction; the registry and
// the manager reference each other.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n == nil {
		n = nopNotifier{}
	}
	m.opts.Notifier = n
}

// FindJoinableRoom returns the first waiting room with a free seat, or a new one.
func (m *Manager) FindJoinableRoom() *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		if r := m.rooms[id]; r != nil && r.joinable() {
			return r
		}
	}
	return m.createLocked()
}

// Create opens a new waiting room.
func (m *Manager) Create() *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked()
}

func (m *Manager) createLocked() *Room {
	m.seq++
	r := newRoom(uuid.NewString(), fmt.Sprintf("Room %d", m.seq),
		board.New(m.opts.BoardWidth, m.opts.BoardHeight),
		hooks{
			notifier: m.opts.Notifier,
			recorder: m.opts.Recorder,
			mirror:   m.opts.Mirror,
			clock:    m.opts.Clock,
			teardown: m.Destroy,
		})
	m.rooms[r.id] = r
	m.order = append(m.order, r.id)
	obslog.L().Info("room_create", zap.String("room_id", r.id), zap.String("name", r.name))
	m.opts.Mirror.Publish(r.Info())
	return r
}

// Get looks up a live room.
func (m *Manager) Get(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Len returns the number of live rooms.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// List snapshots the current room set and yields each room's Info lazily.
// Rooms destroyed after the snapshot may still be yielded with their last state.
func (m *Manager) List() iter.Seq[Info] {
	m.mu.RLock()
	snapshot := make([]*Room, 0, len(m.order))
	for _, id := range m.order {
		if r := m.rooms[id]; r != nil {
			snapshot = append(snapshot, r)
		}
	}
	m.mu.RUnlock()

	return func(yield func(Info) bool) {
		for _, r := range snapshot {
			if !yield(r.Info()) {
				return
			}
		}
	}
}

// Destroy removes a room. Destroying an unknown id is a no-op.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	r, ok := m.rooms[id]
	if ok {
		m.removeLocked(id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	r.markDestroyed()
	m.opts.Mirror.Remove(id)
	obslog.L().Info("room_destroy", zap.String("room_id", id))
}

func (m *Manager) removeLocked(id string) {
	delete(m.rooms, id)
	if i := slices.Index(m.order, id); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
}

// Sweep destroys rooms that have been empty longer than the grace period.
// It returns the number of rooms removed.
func (m *Manager) Sweep() int {
	now := m.opts.Clock.Now()
	m.mu.Lock()
	var reaped []string
	for _, id := range slices.Clone(m.order) {
		r := m.rooms[id]
		if r != nil && r.reapIfIdle(now, m.opts.GracePeriod) {
			m.removeLocked(id)
			reaped = append(reaped, id)
		}
	}
	m.mu.Unlock()

	for _, id := range reaped {
		m.opts.Mirror.Remove(id)
	}
	if len(reaped) > 0 {
		obslog.L().Info("room_sweep", zap.Int("removed", len(reaped)), zap.Strings("room_ids", reaped))
	}
	return len(reaped)
}

// Run sweeps idle rooms every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.opts.GracePeriod / 3
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}
