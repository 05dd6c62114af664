package models

import "time"

// Reading is a single sensor observation as persisted and broadcast.
// The id is assigned by the persistence gateway when the payload does not
// carry one; the timestamp is guaranteed to be set by the time the reading
// leaves the ingestion pipeline. Readings are immutable after persistence.
type Reading struct {
	ID          string    `json:"id,omitempty"`
	DeviceID    string    `json:"deviceId"`
	ReadingType string    `json:"readingType"`
	Value       float64   `json:"value"`
	Unit        string    `json:"unit,omitempty"`
	Location    string    `json:"location,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Device is a registered field device (sensor or drone). The ingestion path
// only references devices by id and does not validate existence against the
// registry; unknown device ids are accepted.
type Device struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name" binding:"required,min=3,max=100"`
	Type     string `json:"type" binding:"required,min=2,max=50"`
	Location string `json:"location" binding:"required,min=3,max=100"`
	Active   bool   `json:"active"`
}

// Notification severities on the wire. The JSON field is named "type" to
// match what the dashboard consumes.
const (
	SeverityInfo  = "info"
	SeverityAlert = "alert"
)

// Notification is a derived alert delivered to live viewers. Notifications
// are ephemeral: they exist only in memory for the duration of fan-out.
type Notification struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"type"`
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
}
