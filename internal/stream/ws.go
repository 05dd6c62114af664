package stream

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/DracoZBA/Watana/internal/hub"
	"github.com/DracoZBA/Watana/internal/metrics"
	"github.com/DracoZBA/Watana/pkg/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsEnvelope wraps every websocket frame so one socket can carry both
// readings and notifications.
type wsEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// WSHandler serves the combined event stream over a websocket, for clients
// that prefer a bidirectional transport over SSE.
type WSHandler struct {
	hub      *hub.Hub
	logger   logging.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

func NewWSHandler(h *hub.Hub, logger logging.Logger, m *metrics.Metrics) *WSHandler {
	return &WSHandler{
		hub:     h,
		logger:  logger,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the connection and streams events until the client
// disconnects.
func (h *WSHandler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	sub := h.hub.Subscribe()

	if h.metrics != nil {
		h.metrics.HubSubscribers.WithLabelValues("websocket").Inc()
	}
	h.logger.WithField("client_ip", c.ClientIP()).Info("WebSocket client connected")

	go h.writePump(conn, sub)
	h.readPump(conn, sub)
}

// readPump drains client frames; its only job is to notice the close.
func (h *WSHandler) readPump(conn *websocket.Conn, sub *hub.Subscriber) {
	defer func() {
		h.hub.Unsubscribe(sub)
		conn.Close()
		if h.metrics != nil {
			h.metrics.HubSubscribers.WithLabelValues("websocket").Dec()
		}
		h.logger.Info("WebSocket client disconnected")
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, sub *hub.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			envelope := wsEnvelope{Type: string(ev.Type)}
			switch ev.Type {
			case hub.EventReading:
				envelope.Data = ev.Reading
			case hub.EventNotification:
				envelope.Data = ev.Notification
			}
			if err := conn.WriteJSON(envelope); err != nil {
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
