package ingest

import (
	"context"
	"time"

	"github.com/DracoZBA/Watana/internal/hub"
	"github.com/DracoZBA/Watana/internal/metrics"
	"github.com/DracoZBA/Watana/internal/models"
	"github.com/DracoZBA/Watana/pkg/logging"
)

// Gateway persists readings. Implementations assign the reading id when the
// payload does not carry one.
type Gateway interface {
	CreateReading(ctx context.Context, reading *models.Reading) error
}

// Cache keeps the most recent reading per device for cheap lookups. Cache
// failures never fail ingestion.
type Cache interface {
	SetLatest(ctx context.Context, reading *models.Reading) error
}

// Publisher fans persisted readings and derived notifications out to live
// subscribers.
type Publisher interface {
	Publish(event hub.Event)
}

// Classifier derives notifications from a freshly persisted reading.
type Classifier interface {
	Classify(reading *models.Reading) []models.Notification
}

// Pipeline drives a reading from raw payload to persistence and fan-out.
// Messages are processed one at a time in arrival order.
type Pipeline struct {
	gateway    Gateway
	cache      Cache
	publisher  Publisher
	classifier Classifier
	logger     logging.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

type Option func(*Pipeline)

// WithCache attaches a latest-reading cache.
func WithCache(c Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithClassifier attaches an alert classifier.
func WithClassifier(c Classifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides the ingestion clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(gateway Gateway, publisher Publisher, logger logging.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle processes one raw payload. A decode failure is returned to the
// caller so the transport can dead-letter the payload; a persistence failure
// is logged and swallowed so the stream keeps flowing. Broadcast happens
// only after a successful persist.
func (p *Pipeline) Handle(ctx context.Context, topic string, payload []byte) error {
	reading, err := DecodeReading(payload)
	if err != nil {
		p.logger.WithFields(logging.Fields{
			"topic": topic,
			"error": err.Error(),
		}).Warn("Discarding malformed reading")
		p.countIngested("unknown", "decode_failed")
		return err
	}

	if reading.Timestamp.IsZero() {
		reading.Timestamp = p.now()
	}

	if err := p.gateway.CreateReading(ctx, reading); err != nil {
		p.logger.WithFields(logging.Fields{
			"device_id":    reading.DeviceID,
			"reading_type": reading.ReadingType,
			"error":        err.Error(),
		}).Error("Failed to persist reading")
		p.countIngested(reading.ReadingType, "persist_failed")
		return nil
	}
	p.countIngested(reading.ReadingType, "persisted")

	if p.cache != nil {
		if err := p.cache.SetLatest(ctx, reading); err != nil {
			p.logger.WithFields(logging.Fields{
				"device_id": reading.DeviceID,
				"error":     err.Error(),
			}).Warn("Failed to cache latest reading")
		}
	}

	p.publisher.Publish(hub.Event{Type: hub.EventReading, Reading: reading})
	p.countPublished("reading")

	if p.classifier != nil {
		for _, n := range p.classifier.Classify(reading) {
			notification := n
			p.publisher.Publish(hub.Event{Type: hub.EventNotification, Notification: &notification})
			p.countPublished("notification")
		}
	}

	return nil
}

func (p *Pipeline) countIngested(readingType, status string) {
	if p.metrics != nil {
		p.metrics.ReadingsIngested.WithLabelValues(readingType, status).Inc()
	}
}

func (p *Pipeline) countPublished(eventType string) {
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(eventType).Inc()
	}
}
