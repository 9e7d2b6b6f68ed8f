package infrastructure

import (
	"strings"

	"insightquest/events"
)

const (
	// EventStreamName is the JetStream stream holding session events
	EventStreamName = "insightquest_events"

	subjectPrefix = "insightquest.events."
)

// SubjectForEvent maps an event type to its NATS subject
func SubjectForEvent(eventType events.EventType) string {
	return subjectPrefix + string(eventType)
}

// EventTypeForSubject maps a NATS subject back to an event type
func EventTypeForSubject(subject string) (events.EventType, bool) {
	name, ok := strings.CutPrefix(subject, subjectPrefix)
	if !ok || name == "" {
		return "", false
	}
	return events.EventType(name), true
}

// EventSubjects returns every subject the forwarder publishes to
func EventSubjects() []string {
	types := events.AllEventTypes()
	subjects := make([]string, 0, len(types))
	for _, t := range types {
		subjects = append(subjects, SubjectForEvent(t))
	}
	return subjects
}
