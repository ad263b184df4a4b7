// Package registry binds live connections to player identities and routes
// their decoded messages to rooms.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/dropfour-server/internal/domain"
	"github.com/park285/dropfour-server/internal/msgcat"
	"github.com/park285/dropfour-server/internal/obslog"
	"github.com/park285/dropfour-server/internal/room"
	"github.com/park285/dropfour-server/pkg/gamedto"
)

var ErrUnknownConn = errors.New("connection is not registered")

const (
	DefaultOutboxSize  = 32
	DefaultSendTimeout = 5 * time.Second

	// joinAttempts bounds retries when a found room fills or is reaped before Join.
	joinAttempts = 8
)

// Conn is the transport side of a peer. Send is only called from one goroutine per Conn.
type Conn interface {
	ID() string
	Send(ctx context.Context, msg gamedto.ServerMessage) error
	Close(reason string) error
}

type Options struct {
	OutboxSize  int
	SendTimeout time.Duration
	Catalog     *msgcat.Catalog
}

// Registry tracks one live connection per identity UUID and the room each
// identity is bound to. It never calls into a Room while holding mu.
type Registry struct {
	mu       sync.RWMutex
	byConn   map[string]*peer
	byUUID   map[string]*peer
	bindings map[string]*room.Room // identity UUID -> room

	rooms   *room.Manager
	catalog *msgcat.Catalog
	opts    Options
	log     *zap.Logger
}

var _ room.Notifier = (*Registry)(nil)

// New creates a registry over rooms and installs itself as the rooms' notifier.
func New(rooms *room.Manager, opts Options) *Registry {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = DefaultOutboxSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Catalog == nil {
		// embedded defaults only; a nil catalog falls back to raw keys
		opts.Catalog, _ = msgcat.New("")
	}
	r := &Registry{
		byConn:   make(map[string]*peer),
		byUUID:   make(map[string]*peer),
		bindings: make(map[string]*room.Room),
		rooms:    rooms,
		catalog:  opts.Catalog,
		opts:     opts,
		log:      obslog.Named("registry"),
	}
	rooms.SetNotifier(r)
	return r
}

// Register attaches conn to identity. A previous connection for the same
// identity is closed and its room binding moves to conn, which then receives
// the room's current state.
func (r *Registry) Register(conn Conn, identity domain.PlayerIdentity) error {
	if !identity.Valid() {
		return room.ErrInvalidPlayer
	}
	p := newPeer(conn, identity, r.opts.OutboxSize, r.opts.SendTimeout, r.log)

	r.mu.Lock()
	old := r.byUUID[identity.UUID]
	if old != nil {
		delete(r.byConn, old.conn.ID())
	}
	r.byUUID[identity.UUID] = p
	r.byConn[conn.ID()] = p
	bound := r.bindings[identity.UUID]
	r.mu.Unlock()

	go p.writeLoop()

	if old != nil {
		old.stop()
		_ = old.conn.Close(r.catalog.Text("session.replaced", nil))
		r.log.Info("conn_evict",
			zap.String("player_uuid", identity.UUID),
			zap.String("old_conn", old.conn.ID()),
			zap.String("new_conn", conn.ID()),
		)
	}
	r.log.Info("conn_register",
		zap.String("conn_id", conn.ID()),
		zap.String("player_uuid", identity.UUID),
		zap.Int64("player_id", identity.ID),
	)

	if bound != nil {
		if slot := bound.SlotOf(identity); slot >= 0 && bound.State() != room.StateFinished {
			p.enqueue(gamedto.Joined{RoomID: bound.ID(), Slot: slot})
			p.enqueue(bound.Snapshot())
		} else {
			r.unbind(identity.UUID, bound)
		}
	}
	return nil
}

// Unregister detaches conn. If it was the identity's live connection and the
// identity is seated, the room is left (forfeiting an active game).
func (r *Registry) Unregister(conn Conn) {
	r.mu.Lock()
	p, ok := r.byConn[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byConn, conn.ID())
	var bound *room.Room
	if r.byUUID[p.identity.UUID] == p {
		delete(r.byUUID, p.identity.UUID)
		bound = r.bindings[p.identity.UUID]
		delete(r.bindings, p.identity.UUID)
	}
	r.mu.Unlock()

	p.stop()
	r.log.Info("conn_unregister", zap.String("conn_id", conn.ID()), zap.String("player_uuid", p.identity.UUID))
	if bound == nil {
		return
	}
	if err := bound.Leave(p.identity); err != nil && !errors.Is(err, room.ErrNotInRoom) {
		r.log.Warn("conn_leave_error", zap.String("room_id", bound.ID()), zap.Error(err))
	}
	if bound.State() == room.StateFinished {
		r.release(bound)
	}
}

// Route decodes one inbound frame from conn and applies it. Client errors are
// reported to conn as an Error message and returned; malformed frames are
// logged and dropped without a reply.
func (r *Registry) Route(ctx context.Context, conn Conn, raw []byte) error {
	p, ok := r.peerOf(conn)
	if !ok {
		return ErrUnknownConn
	}
	msg, err := gamedto.DecodeClient(raw)
	if err != nil {
		r.log.Warn("msg_malformed",
			zap.String("conn_id", conn.ID()),
			zap.Int("bytes", len(raw)),
			zap.Error(err),
		)
		return err
	}

	switch m := msg.(type) {
	case gamedto.JoinRoom:
		err = r.join(p)
	case gamedto.Move:
		err = r.move(p, m.Column)
	case gamedto.LeaveRoom:
		err = r.leave(p)
	}
	if err != nil {
		r.replyError(p, err, msg)
	}
	return err
}

// Notify implements room.Notifier. It only enqueues, so it is safe under a room lock.
func (r *Registry) Notify(roomID string, to []domain.PlayerIdentity, msg gamedto.ServerMessage) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range to {
		p, ok := r.byUUID[id.UUID]
		if !ok {
			continue
		}
		if !p.enqueue(msg) {
			r.log.Warn("conn_outbox_full",
				zap.String("room_id", roomID),
				zap.String("player_uuid", id.UUID),
				zap.String("type", msg.MessageType()),
			)
		}
	}
}

// Broadcast delivers msg to every listed identity with a live connection.
func (r *Registry) Broadcast(to []domain.PlayerIdentity, msg gamedto.ServerMessage) {
	r.Notify("", to, msg)
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUUID)
}

// RoomOf returns the room the identity is bound to, if any.
func (r *Registry) RoomOf(uuid string) (*room.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.bindings[uuid]
	return rm, ok
}

// Close disconnects every peer. Rooms are left as they are.
func (r *Registry) Close() {
	r.mu.Lock()
	peers := make([]*peer, 0, len(r.byConn))
	for _, p := range r.byConn {
		peers = append(peers, p)
	}
	r.byConn = make(map[string]*peer)
	r.byUUID = make(map[string]*peer)
	r.mu.Unlock()

	reason := r.catalog.Text("session.closing", nil)
	for _, p := range peers {
		p.stop()
		_ = p.conn.Close(reason)
	}
}

func (r *Registry) peerOf(conn Conn) (*peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byConn[conn.ID()]
	return p, ok
}

func (r *Registry) boundRoom(uuid string) *room.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bindings[uuid]
}

func (r *Registry) bind(uuid string, rm *room.Room) {
	r.mu.Lock()
	r.bindings[uuid] = rm
	r.mu.Unlock()
}

// unbind clears uuid's binding if it still points at rm.
func (r *Registry) unbind(uuid string, rm *room.Room) {
	r.mu.Lock()
	if r.bindings[uuid] == rm {
		delete(r.bindings, uuid)
	}
	r.mu.Unlock()
}

// release drops every seat's binding that still points at the finished room rm.
func (r *Registry) release(rm *room.Room) {
	seats := rm.Seats()
	r.mu.Lock()
	for _, id := range seats {
		if r.bindings[id.UUID] == rm {
			delete(r.bindings, id.UUID)
		}
	}
	r.mu.Unlock()
}

func (r *Registry) join(p *peer) error {
	if bound := r.boundRoom(p.identity.UUID); bound != nil {
		if slot := bound.SlotOf(p.identity); slot >= 0 && bound.State() != room.StateFinished {
			p.enqueue(gamedto.Joined{RoomID: bound.ID(), Slot: slot})
			return nil
		}
		r.unbind(p.identity.UUID, bound)
	}

	var err error
	for attempt := 0; attempt < joinAttempts; attempt++ {
		rm := r.rooms.FindJoinableRoom()
		if _, err = rm.Join(p.identity); err == nil {
			r.bind(p.identity.UUID, rm)
			return nil
		}
		if !errors.Is(err, room.ErrRoomFull) && !errors.Is(err, room.ErrRoomGone) {
			return err
		}
	}
	return err
}

func (r *Registry) move(p *peer, column int) error {
	rm := r.boundRoom(p.identity.UUID)
	if rm == nil {
		return room.ErrNotInRoom
	}
	ev, err := rm.Move(p.identity, column)
	if err != nil {
		return err
	}
	if ev.Kind == room.EventGameOver {
		r.release(rm)
	}
	return nil
}

func (r *Registry) leave(p *peer) error {
	rm := r.boundRoom(p.identity.UUID)
	if rm == nil {
		return room.ErrNotInRoom
	}
	err := rm.Leave(p.identity)
	r.unbind(p.identity.UUID, rm)
	if rm.State() == room.StateFinished {
		r.release(rm)
	}
	return err
}

func (r *Registry) replyError(p *peer, err error, msg gamedto.ClientMessage) {
	kind := ErrorKind(err)
	data := map[string]any{"Column": -1}
	if mv, ok := msg.(gamedto.Move); ok {
		data["Column"] = mv.Column
	}
	if kind == KindInternal {
		r.log.Error("route_error", zap.String("player_uuid", p.identity.UUID), zap.Error(err))
	}
	p.enqueue(gamedto.Error{Kind: kind, Message: r.catalog.Text(msgcat.ErrorKey(kind), data)})
}
