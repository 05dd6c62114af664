package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DracoZBA/Watana/pkg/monitoring"
)

// Metrics holds the service-specific Prometheus collectors for the
// telemetry pipeline.
type Metrics struct {
	ReadingsIngested *prometheus.CounterVec   // status: persisted, decode_failed, persist_failed
	EventsPublished  *prometheus.CounterVec   // type: reading, notification
	EventsDropped    *prometheus.CounterVec   // endpoint: sse, websocket
	HubSubscribers   *prometheus.GaugeVec     // endpoint
	BrokerMessages   *prometheus.CounterVec   // topic, status
	BrokerReconnects *prometheus.CounterVec   // reason
	HandleDuration   *prometheus.HistogramVec // topic
	DBQueries        *prometheus.CounterVec   // query_type, status
	DBQueryDuration  *prometheus.HistogramVec // query_type
}

// New registers the pipeline metrics on the given collector.
func New(mc *monitoring.MetricsCollector) *Metrics {
	m := &Metrics{
		ReadingsIngested: mc.NewCounter("readings_ingested_total", "Sensor readings processed by ingest outcome", []string{"reading_type", "status"}),
		EventsPublished:  mc.NewCounter("events_published_total", "Events fanned out to the broadcast hub", []string{"type"}),
		EventsDropped:    mc.NewCounter("events_dropped_total", "Events dropped from slow subscriber buffers", []string{"endpoint"}),
		HubSubscribers:   mc.NewGauge("hub_subscribers", "Currently connected stream subscribers", []string{"endpoint"}),
	}
	m.BrokerMessages, m.BrokerReconnects, m.HandleDuration = mc.CreateBrokerMetrics()
	m.DBQueries, m.DBQueryDuration = mc.CreateDatabaseMetrics()
	return m
}
