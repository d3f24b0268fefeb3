package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/foxseedlab/kikitori/internal/session"
	"github.com/gorilla/websocket"
)

// Handler upgrades requests and runs one session per connection on the
// request goroutine.
type Handler struct {
	manager         *session.Manager
	upgrader        websocket.Upgrader
	maxMessageBytes int64
}

func NewHandler(manager *session.Manager, maxMessageBytes int64) *Handler {
	return &Handler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		maxMessageBytes: maxMessageBytes,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	slog.Info("websocket connection accepted", "remote_addr", r.RemoteAddr)
	h.manager.Serve(r.Context(), newConn(ws, r.RemoteAddr, h.maxMessageBytes))
}

type healthResponse struct {
	Status         string `json:"status"`
	RunID          string `json:"run_id"`
	ActiveSessions int    `json:"active_sessions"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}

func healthHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:         "ok",
			RunID:          manager.RunID(),
			ActiveSessions: manager.ActiveSessions(),
			UptimeSeconds:  int64(manager.Uptime().Seconds()),
		})
	}
}

func NewServeMux(manager *session.Manager, maxMessageBytes int64) *http.ServeMux {
	ws := NewHandler(manager, maxMessageBytes)
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", ws)
	mux.Handle("GET /ws", ws)
	mux.HandleFunc("GET /healthz", healthHandler(manager))
	return mux
}
