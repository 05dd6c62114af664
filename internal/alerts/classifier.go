package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/DracoZBA/Watana/internal/models"
)

// Rule inspects a persisted reading and may derive a notification from it.
// Rules must be safe for concurrent use.
type Rule interface {
	Evaluate(reading *models.Reading) *models.Notification
}

// Classifier runs every rule against each reading and collects the
// notifications they produce. A reading can trigger several rules.
type Classifier struct {
	rules []Rule
}

func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// DefaultRules returns the standard rule set.
func DefaultRules() []Rule {
	return []Rule{
		&LowBatteryRule{Threshold: 20},
		&OfflineStatusRule{},
		NewReadingRule(5 * time.Minute),
	}
}

func (c *Classifier) Classify(reading *models.Reading) []models.Notification {
	var notifications []models.Notification
	for _, rule := range c.rules {
		if n := rule.Evaluate(reading); n != nil {
			if n.Timestamp.IsZero() {
				n.Timestamp = reading.Timestamp
			}
			notifications = append(notifications, *n)
		}
	}
	return notifications
}

// LowBatteryRule alerts when a battery reading drops below the threshold
// percentage.
type LowBatteryRule struct {
	Threshold float64
}

func (r *LowBatteryRule) Evaluate(reading *models.Reading) *models.Notification {
	if reading.ReadingType != "battery" {
		return nil
	}
	threshold := r.Threshold
	if threshold <= 0 {
		threshold = 20
	}
	if reading.Value >= threshold {
		return nil
	}
	return &models.Notification{
		Title:    "Low battery",
		Message:  fmt.Sprintf("Device %s battery at %.0f%%", reading.DeviceID, reading.Value),
		Severity: models.SeverityAlert,
		DeviceID: reading.DeviceID,
	}
}

// OfflineStatusRule alerts when a device reports a status of zero, the
// convention field devices use for "going offline".
type OfflineStatusRule struct{}

func (r *OfflineStatusRule) Evaluate(reading *models.Reading) *models.Notification {
	if reading.ReadingType != "status" || reading.Value != 0 {
		return nil
	}
	return &models.Notification{
		Title:    "Device offline",
		Message:  fmt.Sprintf("Device %s reported going offline", reading.DeviceID),
		Severity: models.SeverityAlert,
		DeviceID: reading.DeviceID,
	}
}

// readingActivityRule emits an informational notification when a device is
// heard from, throttled per device so a chatty sensor does not flood the
// notification stream.
type readingActivityRule struct {
	every time.Duration
	now   func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewReadingRule builds the activity rule with the given per-device
// throttle interval.
func NewReadingRule(every time.Duration) Rule {
	if every <= 0 {
		every = 5 * time.Minute
	}
	return &readingActivityRule{
		every:    every,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
}

func (r *readingActivityRule) Evaluate(reading *models.Reading) *models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if last, ok := r.lastSeen[reading.DeviceID]; ok && now.Sub(last) < r.every {
		return nil
	}
	r.lastSeen[reading.DeviceID] = now

	return &models.Notification{
		Title:    "New reading",
		Message:  fmt.Sprintf("Device %s reported %s %.2f", reading.DeviceID, reading.ReadingType, reading.Value),
		Severity: models.SeverityInfo,
		DeviceID: reading.DeviceID,
	}
}
