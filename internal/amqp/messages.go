package amqp

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"retire/internal/diagnostics"
)

// MessageSchemaVersion is bumped when CalculationEventMessage changes shape.
const MessageSchemaVersion = 1

var ErrMalformedMessage = errors.New("malformed calculation event message")

// CalculationEventMessage carries one diagnostics event from the web or CLI
// process to the worker.
type CalculationEventMessage struct {
	SchemaVersion int               `json:"schema_version"`
	PublishedAt   time.Time         `json:"published_at"`
	Event         diagnostics.Event `json:"event"`
}

func NewCalculationEventMessage(ev diagnostics.Event) *CalculationEventMessage {
	return &CalculationEventMessage{
		SchemaVersion: MessageSchemaVersion,
		PublishedAt:   time.Now().UTC(),
		Event:         ev,
	}
}

func (m *CalculationEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CalculationEventMessageFromJSON decodes and checks a message body. Any
// error wraps ErrMalformedMessage so consumers can drop the delivery.
func CalculationEventMessageFromJSON(data []byte) (*CalculationEventMessage, error) {
	var msg CalculationEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.SchemaVersion != MessageSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrMalformedMessage, msg.SchemaVersion)
	}
	if msg.Event.ID == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformedMessage)
	}
	switch msg.Event.Outcome {
	case diagnostics.OutcomeSuccess, diagnostics.OutcomeFailure:
	default:
		return nil, fmt.Errorf("%w: unknown outcome %q", ErrMalformedMessage, msg.Event.Outcome)
	}
	return &msg, nil
}
