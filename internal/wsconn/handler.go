package wsconn

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/dropfour-server/internal/domain"
	"github.com/park285/dropfour-server/internal/obslog"
	"github.com/park285/dropfour-server/internal/registry"
)

// Identity headers set by the authenticating proxy. Query parameters
// id, uuid and name are accepted for clients that cannot set headers.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserUUID = "X-User-Uuid"
	HeaderUserName = "X-User-Name"
)

var ErrNoIdentity = errors.New("missing or invalid player identity")

// IdentityFromRequest extracts the verified player identity.
func IdentityFromRequest(r *http.Request) (domain.PlayerIdentity, error) {
	q := r.URL.Query()
	pick := func(header, param string) string {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v
		}
		return strings.TrimSpace(q.Get(param))
	}
	id, err := strconv.ParseInt(pick(HeaderUserID, "id"), 10, 64)
	if err != nil {
		return domain.PlayerIdentity{}, ErrNoIdentity
	}
	p := domain.PlayerIdentity{ID: id, UUID: pick(HeaderUserUUID, "uuid"), DisplayName: pick(HeaderUserName, "name")}
	if !p.Valid() {
		return domain.PlayerIdentity{}, ErrNoIdentity
	}
	return p, nil
}

// Handler upgrades requests and pumps frames between the socket and a Registry.
type Handler struct {
	Registry     *registry.Registry
	PingInterval time.Duration
	AcceptOpts   *websocket.AcceptOptions
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := obslog.Named("wsconn")
	identity, err := IdentityFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	opts := h.AcceptOpts
	if opts == nil {
		opts = &websocket.AcceptOptions{CompressionMode: websocket.CompressionNoContextTakeover}
	}
	c, err := Accept(w, r, opts)
	if err != nil {
		log.Warn("ws_accept_error", zap.Error(err))
		return
	}
	if err := h.Registry.Register(c, identity); err != nil {
		_ = c.Close(err.Error())
		return
	}
	defer h.Registry.Unregister(c)

	err = c.Serve(func(ctx context.Context, raw []byte) {
		_ = h.Registry.Route(ctx, c, raw)
	}, h.PingInterval)
	if err != nil {
		log.Info("ws_read_end", zap.String("conn_id", c.ID()), zap.Error(err))
	}
}
