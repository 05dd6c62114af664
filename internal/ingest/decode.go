package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DracoZBA/Watana/internal/models"
)

// ErrDecode marks payloads that cannot become a valid reading. Callers use
// it to route the raw payload to the dead-letter topic instead of retrying.
var ErrDecode = errors.New("malformed reading payload")

// rawReading is the wire shape accepted from sensors. Value is a pointer so
// an explicit 0 can be told apart from a missing field; readingType also
// accepts the legacy "type" key.
type rawReading struct {
	ID          string     `json:"id"`
	DeviceID    string     `json:"deviceId"`
	ReadingType string     `json:"readingType"`
	LegacyType  string     `json:"type"`
	Value       *float64   `json:"value"`
	Unit        string     `json:"unit"`
	Location    string     `json:"location"`
	Timestamp   *time.Time `json:"timestamp"`
}

// DecodeReading parses and validates a sensor payload. deviceId, readingType
// and value are required. The timestamp is carried through when present but
// never defaulted here; assigning ingestion time is the pipeline's call.
func DecodeReading(payload []byte) (*models.Reading, error) {
	var raw rawReading
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	readingType := raw.ReadingType
	if readingType == "" {
		readingType = raw.LegacyType
	}

	switch {
	case raw.DeviceID == "":
		return nil, fmt.Errorf("%w: missing deviceId", ErrDecode)
	case readingType == "":
		return nil, fmt.Errorf("%w: missing readingType", ErrDecode)
	case raw.Value == nil:
		return nil, fmt.Errorf("%w: missing value", ErrDecode)
	}

	reading := &models.Reading{
		ID:          raw.ID,
		DeviceID:    raw.DeviceID,
		ReadingType: readingType,
		Value:       *raw.Value,
		Unit:        raw.Unit,
		Location:    raw.Location,
	}
	if raw.Timestamp != nil {
		reading.Timestamp = *raw.Timestamp
	}
	return reading, nil
}
