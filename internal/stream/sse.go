package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DracoZBA/Watana/internal/hub"
	"github.com/DracoZBA/Watana/internal/metrics"
	"github.com/DracoZBA/Watana/pkg/logging"
)

const defaultKeepalive = 15 * time.Second

// SSEHandler serves the live event streams. Each connection gets its own
// hub subscription that is released when the client goes away.
type SSEHandler struct {
	hub       *hub.Hub
	logger    logging.Logger
	metrics   *metrics.Metrics
	keepalive time.Duration
}

func NewSSEHandler(h *hub.Hub, logger logging.Logger, m *metrics.Metrics) *SSEHandler {
	return &SSEHandler{
		hub:       h,
		logger:    logger,
		metrics:   m,
		keepalive: defaultKeepalive,
	}
}

// RealtimeData streams persisted readings as unnamed SSE events:
//
//	data: {...}
func (h *SSEHandler) RealtimeData(c *gin.Context) {
	h.stream(c, "realtime-data", hub.EventReading, func(w http.ResponseWriter, ev hub.Event) error {
		payload, err := json.Marshal(ev.Reading)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
		return err
	})
}

// Notifications streams derived notifications as named SSE events:
//
//	event: notification
//	data: {...}
func (h *SSEHandler) Notifications(c *gin.Context) {
	h.stream(c, "notifications", hub.EventNotification, func(w http.ResponseWriter, ev hub.Event) error {
		payload, err := json.Marshal(ev.Notification)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
		return err
	})
}

func (h *SSEHandler) stream(c *gin.Context, endpoint string, want hub.EventType, write func(http.ResponseWriter, hub.Event) error) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	if h.metrics != nil {
		h.metrics.HubSubscribers.WithLabelValues(endpoint).Inc()
		defer h.metrics.HubSubscribers.WithLabelValues(endpoint).Dec()
	}

	h.logger.WithFields(logging.Fields{
		"endpoint":  endpoint,
		"client_ip": c.ClientIP(),
	}).Info("Stream client connected")
	defer h.logger.WithField("endpoint", endpoint).Info("Stream client disconnected")

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	dropped := uint64(0)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Type != want {
				continue
			}
			if err := write(c.Writer, ev); err != nil {
				return
			}
			flusher.Flush()

			if h.metrics != nil {
				if d := sub.Dropped(); d > dropped {
					h.metrics.EventsDropped.WithLabelValues("sse").Add(float64(d - dropped))
					dropped = d
				}
			}
		case <-ticker.C:
			// Comment line keeps intermediaries from closing an idle stream.
			if _, err := fmt.Fprint(c.Writer, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
