// Package httpapi exposes the websocket endpoint and the read-only lobby and
// score queries over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/park285/dropfour-server/internal/record"
	"github.com/park285/dropfour-server/internal/room"
)

// LobbyReader lists joinable rooms from an out-of-process index.
type LobbyReader interface {
	ListJoinable(ctx context.Context) ([]room.Info, error)
}

// RouterConfig holds the dependencies of the HTTP surface. Lobby may be nil.
type RouterConfig struct {
	Rooms     *room.Manager
	Store     record.Store
	Lobby     LobbyReader
	WebSocket http.Handler
	MaxLimit  int
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := &handler{cfg: cfg}
	r := mux.NewRouter()
	r.Use(recovery, logging)

	if cfg.WebSocket != nil {
		r.Handle("/ws", cfg.WebSocket).Methods(http.MethodGet)
	}
	r.HandleFunc("/rooms", h.listRooms).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}", h.getRoom).Methods(http.MethodGet)
	r.HandleFunc("/lobby", h.lobby).Methods(http.MethodGet)
	r.HandleFunc("/scores", h.scores).Methods(http.MethodGet)
	r.HandleFunc("/history", h.history).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	return r
}
