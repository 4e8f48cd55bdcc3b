package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pricefeed/internal/hub"
)

// Registry is the subscriber lifecycle surface of the hub.
type Registry interface {
	Register(conn hub.Conn)
	Unregister(conn hub.Conn)
}

// WSHandler upgrades subscriber connections and hands them to the hub.
type WSHandler struct {
	registry     Registry
	writeTimeout time.Duration
	logger       *slog.Logger

	upgrader websocket.Upgrader
}

// NewWSHandler creates the subscription endpoint handler.
func NewWSHandler(registry Registry, writeTimeout time.Duration, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		registry:     registry,
		writeTimeout: writeTimeout,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard frontend is served from another origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Register installs the subscription route on a mux.
func (h *WSHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/prices", h.handleSubscribe)
}

func (h *WSHandler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := hub.NewWSConn(ws, h.writeTimeout)
	h.registry.Register(conn)

	// Subscribers only listen; the read loop exists to notice the peer
	// going away so the hub can drop it promptly.
	go func() {
		defer h.registry.Unregister(conn)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
