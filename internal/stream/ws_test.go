package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/DracoZBA/Watana/internal/hub"
	"github.com/DracoZBA/Watana/internal/models"
	"github.com/DracoZBA/Watana/pkg/logging"
)

func TestServeWS_StreamsEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := hub.New(nil, 16)
	defer h.Close()

	handler := NewWSHandler(h, logging.NewLogger(), nil)
	r := gin.New()
	r.GET("/ws", handler.ServeWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	waitForSubscriber(t, h)

	h.Publish(hub.Event{Type: hub.EventReading, Reading: &models.Reading{
		ID: "r-1", DeviceID: "d1", ReadingType: "temperature", Value: 22,
	}})
	h.Publish(hub.Event{Type: hub.EventNotification, Notification: &models.Notification{
		Title: "Low battery", Severity: models.SeverityAlert, DeviceID: "d1",
	}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first wsEnvelope
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if first.Type != string(hub.EventReading) {
		t.Fatalf("expected reading envelope, got %+v", first)
	}

	var second wsEnvelope
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read second frame: %v", err)
	}
	if second.Type != string(hub.EventNotification) {
		t.Fatalf("expected notification envelope, got %+v", second)
	}
}

func TestServeWS_UnsubscribesOnClose(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := hub.New(nil, 16)
	defer h.Close()

	handler := NewWSHandler(h, logging.NewLogger(), nil)
	r := gin.New()
	r.GET("/ws", handler.ServeWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer resp.Body.Close()

	waitForSubscriber(t, h)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Stats().Subscribers != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription leaked after websocket close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
