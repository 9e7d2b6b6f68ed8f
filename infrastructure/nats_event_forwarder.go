package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"insightquest/events"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// EventEnvelope wraps a domain event on the wire
type EventEnvelope struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	Generation    uint64          `json:"generation"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"sourceService"`
	Payload       json.RawMessage `json:"payload"`
}

// EventForwarder relays bus events to a message publisher
type EventForwarder struct {
	publisher MessagePublisher
	source    string
	now       func() time.Time
}

// NewEventForwarder creates a forwarder that stamps envelopes with source
func NewEventForwarder(publisher MessagePublisher, source string) *EventForwarder {
	return &EventForwarder{
		publisher: publisher,
		source:    source,
		now:       time.Now,
	}
}

// Attach subscribes the forwarder to every event on bus and returns the unsubscribe function
func (f *EventForwarder) Attach(bus *events.Bus) func() {
	return bus.SubscribeAll(func(ctx context.Context, event events.Event) {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		if err := f.Forward(ctx, event); err != nil {
			log.WithFields(log.Fields{
				"eventType":  event.Type(),
				"generation": event.SessionGeneration(),
				"error":      err,
			}).Error("Failed to forward event")
		}
	})
}

// Forward publishes one event wrapped in an envelope
func (f *EventForwarder) Forward(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Generation:    event.SessionGeneration(),
		Timestamp:     f.now().UTC(),
		SourceService: f.source,
		Payload:       payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := SubjectForEvent(event.Type())
	if err := f.publisher.Publish(ctx, subject, data); err != nil {
		// no stream bound to the subject yet
		if strings.Contains(err.Error(), "no response from stream") {
			return nil
		}
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	log.WithFields(log.Fields{
		"eventType": envelope.EventType,
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Forwarded event to NATS")
	return nil
}
