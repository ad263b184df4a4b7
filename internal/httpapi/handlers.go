package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/park285/dropfour-server/internal/obslog"
	"github.com/park285/dropfour-server/internal/record"
	"github.com/park285/dropfour-server/internal/room"
)

type handler struct{ cfg RouterConfig }

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func (h *handler) listRooms(w http.ResponseWriter, r *http.Request) {
	onlyJoinable := r.URL.Query().Get("joinable") == "true"
	out := make([]room.Info, 0)
	for info := range h.cfg.Rooms.List() {
		if onlyJoinable && !info.Joinable {
			continue
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getRoom(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.cfg.Rooms.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		room.Info
		Board [][]int `json:"board"`
		Turn  int     `json:"turn"`
	}{Info: rm.Info(), Board: rm.Board().Rows(), Turn: rm.Turn()})
}

func (h *handler) lobby(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Lobby == nil {
		writeError(w, http.StatusServiceUnavailable, "lobby index not configured")
		return
	}
	list, err := h.cfg.Lobby.ListJoinable(r.Context())
	if err != nil {
		obslog.L().Warn("http_lobby_error", zap.Error(err))
		writeError(w, http.StatusBadGateway, "lobby index unavailable")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) scores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.cfg.Store.PlayerScores(r.Context())
	if err != nil {
		obslog.L().Error("http_scores_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scores unavailable")
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	start, err := intParam(q.Get("startFrom"))
	if err != nil || start < 0 {
		writeError(w, http.StatusBadRequest, "startFrom must be a non-negative integer")
		return
	}
	page, err := h.cfg.Store.History(r.Context(), record.HistoryQuery{Limit: limit, StartFrom: start}.Normalize(h.cfg.MaxLimit))
	if err != nil {
		obslog.L().Error("http_history_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rooms": h.cfg.Rooms.Len()})
}

func intParam(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
