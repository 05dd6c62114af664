package broker

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// DLQPayload captures enough context to replay or inspect a rejected
// sensor message.
type DLQPayload struct {
	Topic        string    `json:"topic"`
	Timestamp    time.Time `json:"timestamp"`
	ValueBase64  string    `json:"value_base64"`
	Error        string    `json:"error"`
	ConsumerName string    `json:"consumer"`
}

// EncodeDLQMessage serializes a rejected message into a DLQ-safe payload.
// The raw bytes are base64-encoded so arbitrary binary survives the JSON
// envelope.
func EncodeDLQMessage(topic string, value []byte, err error, consumer string) ([]byte, error) {
	payload := DLQPayload{
		Topic:        topic,
		Timestamp:    time.Now().UTC(),
		ValueBase64:  base64.StdEncoding.EncodeToString(value),
		ConsumerName: consumer,
	}
	if err != nil {
		payload.Error = err.Error()
	}

	b, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return nil, fmt.Errorf("marshal dlq payload: %w", marshalErr)
	}
	return b, nil
}
