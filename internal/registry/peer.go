package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/dropfour-server/internal/domain"
	"github.com/park285/dropfour-server/pkg/gamedto"
)

// peer owns a connection's outbox and the goroutine draining it.
type peer struct {
	conn        Conn
	identity    domain.PlayerIdentity
	outbox      chan gamedto.ServerMessage
	sendTimeout time.Duration
	log         *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
}

func newPeer(conn Conn, identity domain.PlayerIdentity, size int, sendTimeout time.Duration, log *zap.Logger) *peer {
	return &peer{
		conn:        conn,
		identity:    identity,
		outbox:      make(chan gamedto.ServerMessage, size),
		sendTimeout: sendTimeout,
		log:         log,
		done:        make(chan struct{}),
	}
}

// enqueue never blocks; it reports false when the outbox is full or the peer stopped.
func (p *peer) enqueue(msg gamedto.ServerMessage) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.outbox <- msg:
		return true
	default:
		return false
	}
}

func (p *peer) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.outbox:
			ctx, cancel := context.WithTimeout(context.Background(), p.sendTimeout)
			err := p.conn.Send(ctx, msg)
			cancel()
			if err != nil {
				p.log.Warn("conn_send_error",
					zap.String("conn_id", p.conn.ID()),
					zap.String("type", msg.MessageType()),
					zap.Error(err),
				)
			}
		}
	}
}

func (p *peer) stop() {
	p.stopOnce.Do(func() { close(p.done) })
}
