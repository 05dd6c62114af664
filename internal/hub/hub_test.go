package hub

import (
	"fmt"
	"testing"
	"time"

	"github.com/DracoZBA/Watana/internal/models"
)

func readingEvent(id string) Event {
	return Event{
		Type:    EventReading,
		Reading: &models.Reading{ID: id, DeviceID: "temp-sensor-001", ReadingType: "temperature", Value: 21.5},
	}
}

func TestSubscriberReceivesPublishedEvents(t *testing.T) {
	h := New(nil, 8)
	defer h.Close()

	sub := h.Subscribe()
	h.Publish(readingEvent("r1"))
	h.Publish(readingEvent("r2"))

	for _, want := range []string{"r1", "r2"} {
		select {
		case ev := <-sub.C:
			if ev.Reading.ID != want {
				t.Fatalf("expected %s, got %s", want, ev.Reading.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestNoReplayForLateSubscriber(t *testing.T) {
	h := New(nil, 8)
	defer h.Close()

	h.Publish(readingEvent("before"))
	sub := h.Subscribe()

	select {
	case ev := <-sub.C:
		t.Fatalf("late subscriber should not receive %v", ev)
	default:
	}
}

func TestDropOldestWhenBufferFull(t *testing.T) {
	h := New(nil, 2)
	defer h.Close()

	sub := h.Subscribe()
	for i := 0; i < 5; i++ {
		h.Publish(readingEvent(fmt.Sprintf("r%d", i)))
	}

	// Buffer holds the newest two events; the oldest three were evicted.
	got := []string{(<-sub.C).Reading.ID, (<-sub.C).Reading.ID}
	if got[0] != "r3" || got[1] != "r4" {
		t.Fatalf("expected [r3 r4], got %v", got)
	}
	if sub.Dropped() != 3 {
		t.Fatalf("expected 3 dropped, got %d", sub.Dropped())
	}
}

func TestSlowSubscriberDoesNotAffectOthers(t *testing.T) {
	h := New(nil, 2)
	defer h.Close()

	slow := h.Subscribe()
	fast := h.Subscribe()

	var ids []string
	for i := 0; i < 10; i++ {
		h.Publish(readingEvent(fmt.Sprintf("r%d", i)))

		select {
		case ev := <-fast.C:
			ids = append(ids, ev.Reading.ID)
		case <-time.After(time.Second):
			t.Fatal("fast subscriber starved by slow peer")
		}
	}
	if len(ids) != 10 || ids[0] != "r0" || ids[9] != "r9" {
		t.Fatalf("fast subscriber got %v, want r0..r9", ids)
	}

	if slow.Dropped() == 0 {
		t.Fatal("expected slow subscriber to have dropped events")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := New(nil, 4)
	defer h.Close()

	sub := h.Subscribe()
	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	h.Unsubscribe(nil)

	// Publishing after unsubscribe must not panic on the closed channel.
	h.Publish(readingEvent("after"))

	if _, ok := <-sub.C; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
}

func TestPublishAfterCloseIsSafe(t *testing.T) {
	h := New(nil, 4)
	sub := h.Subscribe()

	h.Close()
	h.Close()
	h.Publish(readingEvent("late"))

	if _, ok := <-sub.C; ok {
		t.Fatal("expected closed channel after hub shutdown")
	}

	late := h.Subscribe()
	if _, ok := <-late.C; ok {
		t.Fatal("expected subscribe after close to return a closed channel")
	}
}

func TestStats(t *testing.T) {
	h := New(nil, 4)
	defer h.Close()

	a := h.Subscribe()
	h.Subscribe()
	h.Publish(readingEvent("r1"))
	h.Unsubscribe(a)

	stats := h.Stats()
	if stats.Subscribers != 1 {
		t.Fatalf("expected 1 subscriber, got %d", stats.Subscribers)
	}
	if stats.Published != 1 {
		t.Fatalf("expected 1 published, got %d", stats.Published)
	}
}

func TestNotificationEvents(t *testing.T) {
	h := New(nil, 4)
	defer h.Close()

	sub := h.Subscribe()
	h.Publish(Event{
		Type: EventNotification,
		Notification: &models.Notification{
			Title:    "Low battery",
			Severity: models.SeverityAlert,
			DeviceID: "humidity-sensor-002",
		},
	})

	ev := <-sub.C
	if ev.Type != EventNotification || ev.Notification.Title != "Low battery" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
