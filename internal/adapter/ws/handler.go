package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solarsentry/space-weather-forecast/internal/hub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
)

// Handler upgrades HTTP connections and binds each one to a hub subscriber.
// The write pump drains the subscriber's queue; the read pump feeds client
// messages back to the hub. Either pump failing tears the connection down
// and deregisters the subscriber.
type Handler struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a websocket Handler over the given hub.
func NewHandler(h *hub.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	sub := h.hub.Register()
	h.logger.Debug("websocket connected", "subscriber", sub.ID(), "remote", r.RemoteAddr)

	go h.writePump(conn, sub)
	go h.readPump(conn, sub)
}

// readPump consumes client messages until the connection dies, then
// deregisters the subscriber. Malformed frames are logged and skipped, not
// fatal.
func (h *Handler) readPump(conn *websocket.Conn, sub *hub.Subscriber) {
	defer func() {
		h.hub.Deregister(sub)
		conn.Close()
		h.logger.Debug("websocket disconnected", "subscriber", sub.ID())
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		sub.Touch()
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read failed", "subscriber", sub.ID(), "error", err)
			}
			return
		}

		var msg hub.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("malformed client message", "subscriber", sub.ID(), "error", err)
			continue
		}
		h.hub.HandleClientMessage(sub, msg)
	}
}

// writePump serializes queued envelopes onto the connection and keeps the
// transport alive with ping frames.
func (h *Handler) writePump(conn *websocket.Conn, sub *hub.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case env, ok := <-sub.Updates():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Deregistered or evicted; say goodbye properly.
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
