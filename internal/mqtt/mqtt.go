// Package mqtt mirrors controller events and status snapshots to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/thatsimonsguy/psu-controller/internal/model"
)

const (
	TopicEvents = "psu/controller/events"
	TopicStatus = "psu/controller/status"
)

// Publisher publishes controller events to MQTT.
type Publisher interface {
	// PublishEvent sends an event log record. Errors are reported, never fatal.
	PublishEvent(e model.EventRecord) error

	// PublishStatus sends a pre-encoded status snapshot as a retained message.
	PublishStatus(payload []byte) error

	Close() error
}

type EventPayload struct {
	Event EventPayloadInner `json:"event"`
}

type EventPayloadInner struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Kind      string `json:"kind"`
	Severity  string `json:"severity"`
}

func FormatEventPayload(e model.EventRecord) ([]byte, error) {
	return json.Marshal(EventPayload{
		Event: EventPayloadInner{
			ID:        e.ID,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			Kind:      string(e.Kind),
			Severity:  string(e.Severity),
		},
	})
}
