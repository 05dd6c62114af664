package stream

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/DracoZBA/Watana/internal/hub"
	"github.com/DracoZBA/Watana/internal/models"
	"github.com/DracoZBA/Watana/pkg/logging"
)

// Publisher is the hub surface the generator needs.
type Publisher interface {
	Publish(event hub.Event)
}

// SyntheticConfig tunes the demo event generator.
type SyntheticConfig struct {
	ReadingInterval      time.Duration
	NotificationInterval time.Duration
	DeviceCount          int
}

func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		ReadingInterval:      2 * time.Second,
		NotificationInterval: 5 * time.Second,
		DeviceCount:          3,
	}
}

// Synthetic publishes fabricated readings and notifications so the
// dashboard has live data without a broker or real sensors. Synthetic
// events go through the same hub as real ones; subscribers cannot tell
// the difference.
type Synthetic struct {
	publisher Publisher
	logger    logging.Logger
	cfg       SyntheticConfig
	rng       *rand.Rand
	now       func() time.Time
	rotation  int
}

func NewSynthetic(publisher Publisher, logger logging.Logger, cfg SyntheticConfig) *Synthetic {
	if cfg.ReadingInterval <= 0 {
		cfg.ReadingInterval = 2 * time.Second
	}
	if cfg.NotificationInterval <= 0 {
		cfg.NotificationInterval = 5 * time.Second
	}
	if cfg.DeviceCount <= 0 {
		cfg.DeviceCount = 3
	}
	return &Synthetic{
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

// Run emits events until ctx is cancelled.
func (s *Synthetic) Run(ctx context.Context) {
	s.logger.WithFields(logging.Fields{
		"reading_interval":      s.cfg.ReadingInterval.String(),
		"notification_interval": s.cfg.NotificationInterval.String(),
	}).Info("Starting synthetic event generator")

	readings := time.NewTicker(s.cfg.ReadingInterval)
	defer readings.Stop()
	notifications := time.NewTicker(s.cfg.NotificationInterval)
	defer notifications.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Synthetic event generator stopped")
			return
		case <-readings.C:
			s.publisher.Publish(hub.Event{Type: hub.EventReading, Reading: s.nextReading()})
		case <-notifications.C:
			s.publisher.Publish(hub.Event{Type: hub.EventNotification, Notification: s.nextNotification()})
		}
	}
}

func (s *Synthetic) nextReading() *models.Reading {
	deviceID := fmt.Sprintf("temp-sensor-%03d", s.rng.Intn(s.cfg.DeviceCount)+1)
	return &models.Reading{
		ID:          uuid.New().String(),
		DeviceID:    deviceID,
		ReadingType: "temperature",
		Value:       20 + s.rng.Float64()*8,
		Unit:        "C",
		Location:    "demo",
		Timestamp:   s.now(),
	}
}

func (s *Synthetic) nextNotification() *models.Notification {
	deviceID := fmt.Sprintf("temp-sensor-%03d", s.rng.Intn(s.cfg.DeviceCount)+1)

	var n models.Notification
	switch s.rotation % 3 {
	case 0:
		n = models.Notification{
			Title:    "Device offline",
			Message:  fmt.Sprintf("Device %s stopped reporting", deviceID),
			Severity: models.SeverityAlert,
		}
	case 1:
		n = models.Notification{
			Title:    "Low battery",
			Message:  fmt.Sprintf("Device %s battery at %d%%", deviceID, s.rng.Intn(20)),
			Severity: models.SeverityAlert,
		}
	default:
		n = models.Notification{
			Title:    "New reading",
			Message:  fmt.Sprintf("Device %s reported a new temperature", deviceID),
			Severity: models.SeverityInfo,
		}
	}
	s.rotation++

	n.DeviceID = deviceID
	n.Timestamp = s.now()
	return &n
}
