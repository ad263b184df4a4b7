// Package wsconn adapts nhooyr websocket connections to registry.Conn.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/dropfour-server/internal/obslog"
	"github.com/park285/dropfour-server/pkg/gamedto"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultPingInterval = 30 * time.Second
	maxFrameBytes       = 4 << 10
)

// Conn is one accepted client socket.
type Conn struct {
	id string
	ws *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	writeMu   sync.Mutex
	closeOnce sync.Once
	log       *zap.Logger
}

func newConn(ws *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	ws.SetReadLimit(maxFrameBytes)
	id := uuid.NewString()
	return &Conn{
		id:     id,
		ws:     ws,
		ctx:    ctx,
		cancel: cancel,
		log:    obslog.Named("wsconn").With(zap.String("conn_id", id)),
	}
}

// Accept upgrades the request.
func Accept(w http.ResponseWriter, r *http.Request, opts *websocket.AcceptOptions) (*Conn, error) {
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		return nil, err
	}
	return newConn(ws), nil
}

func (c *Conn) ID() string { return c.id }

// Send writes msg as one JSON text frame, bounded by a deadline when ctx has none.
func (c *Conn) Send(ctx context.Context, msg gamedto.ServerMessage) error {
	raw, err := gamedto.Encode(msg)
	if err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultWriteTimeout)
		defer cancel()
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsjson.Write(ctx, c.ws, json.RawMessage(raw))
}

// Close starts a normal closure with reason and returns without waiting for
// the peer's handshake; Serve returns once it completes. Later calls are no-ops.
func (c *Conn) Close(reason string) error {
	c.closeOnce.Do(func() {
		go func() {
			if err := c.ws.Close(websocket.StatusNormalClosure, reason); err != nil {
				c.log.Debug("ws_close_error", zap.Error(err))
			}
		}()
	})
	return nil
}

// Serve reads text frames and hands each to handle until the peer goes away
// or Close is called. Binary frames are ignored. A ping loop runs alongside.
func (c *Conn) Serve(handle func(ctx context.Context, raw []byte), pingInterval time.Duration) error {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	go c.pingLoop(pingInterval)
	defer c.cancel()

	for {
		typ, raw, err := c.ws.Read(c.ctx)
		if err != nil {
			if isClosed(err) || c.ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			c.log.Debug("ws_frame_ignored", zap.String("type", typ.String()))
			continue
		}
		handle(c.ctx, raw)
	}
}

func (c *Conn) pingLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(c.ctx, 3*time.Second)
			err := c.ws.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				c.log.Info("ws_ping_timeout", zap.Error(err))
				_ = c.ws.Close(websocket.StatusGoingAway, "ping failure")
				c.cancel()
				return
			}
		}
	}
}

func isClosed(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, context.Canceled)
}
