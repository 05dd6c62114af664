package stream

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DracoZBA/Watana/internal/hub"
	"github.com/DracoZBA/Watana/internal/models"
	"github.com/DracoZBA/Watana/pkg/logging"
)

func newStreamServer(t *testing.T) (*hub.Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := hub.New(nil, 16)
	handler := NewSSEHandler(h, logging.NewLogger(), nil)
	handler.keepalive = 50 * time.Millisecond

	r := gin.New()
	r.GET("/api/sse/realtime-data", handler.RealtimeData)
	r.GET("/api/sse/notifications", handler.Notifications)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, srv
}

func waitForSubscriber(t *testing.T, h *hub.Hub) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Stats().Subscribers == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for stream subscription")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// readFrame reads one SSE frame (up to a blank line), skipping keepalive
// comments.
func readFrame(t *testing.T, r *bufio.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(lines) > 0 {
				return lines
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		lines = append(lines, line)
	}
}

func TestRealtimeData_WireFormat(t *testing.T) {
	h, srv := newStreamServer(t)

	resp, err := http.Get(srv.URL + "/api/sse/realtime-data")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}

	waitForSubscriber(t, h)
	h.Publish(hub.Event{Type: hub.EventReading, Reading: &models.Reading{
		ID:          "r-1",
		DeviceID:    "temp-sensor-001",
		ReadingType: "temperature",
		Value:       23.5,
		Timestamp:   time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC),
	}})

	frame := readFrame(t, bufio.NewReader(resp.Body))
	if len(frame) != 1 || !strings.HasPrefix(frame[0], "data: ") {
		t.Fatalf("unexpected frame %v", frame)
	}

	var reading models.Reading
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frame[0], "data: ")), &reading); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if reading.ID != "r-1" || reading.Value != 23.5 {
		t.Fatalf("unexpected reading %+v", reading)
	}
}

func TestRealtimeData_FiltersNotifications(t *testing.T) {
	h, srv := newStreamServer(t)

	resp, err := http.Get(srv.URL + "/api/sse/realtime-data")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	waitForSubscriber(t, h)
	h.Publish(hub.Event{Type: hub.EventNotification, Notification: &models.Notification{Title: "noise"}})
	h.Publish(hub.Event{Type: hub.EventReading, Reading: &models.Reading{ID: "r-2", DeviceID: "d", ReadingType: "t", Value: 1}})

	frame := readFrame(t, bufio.NewReader(resp.Body))
	if !strings.Contains(frame[0], `"id":"r-2"`) {
		t.Fatalf("expected the reading, got %v", frame)
	}
}

func TestNotifications_WireFormat(t *testing.T) {
	h, srv := newStreamServer(t)

	resp, err := http.Get(srv.URL + "/api/sse/notifications")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	waitForSubscriber(t, h)
	h.Publish(hub.Event{Type: hub.EventNotification, Notification: &models.Notification{
		Title:    "Low battery",
		Message:  "Device d1 battery at 12%",
		Severity: models.SeverityAlert,
		DeviceID: "d1",
	}})

	frame := readFrame(t, bufio.NewReader(resp.Body))
	if len(frame) != 2 {
		t.Fatalf("expected event+data lines, got %v", frame)
	}
	if frame[0] != "event: notification" {
		t.Fatalf("unexpected event line %q", frame[0])
	}

	var n models.Notification
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frame[1], "data: ")), &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.Severity != models.SeverityAlert || n.DeviceID != "d1" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestStream_UnsubscribesOnDisconnect(t *testing.T) {
	h, srv := newStreamServer(t)

	resp, err := http.Get(srv.URL + "/api/sse/realtime-data")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	waitForSubscriber(t, h)

	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Stats().Subscribers != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription leaked after client disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStream_SendsKeepalives(t *testing.T) {
	_, srv := newStreamServer(t)

	resp, err := http.Get(srv.URL + "/api/sse/realtime-data")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(line, ":") {
		t.Fatalf("expected a comment keepalive, got %q", line)
	}
}
