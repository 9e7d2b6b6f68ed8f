package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"insightquest/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMessagePublisher struct {
	mock.Mock
}

func (m *MockMessagePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

func TestEventForwarder_Forward(t *testing.T) {
	publisher := new(MockMessagePublisher)
	forwarder := NewEventForwarder(publisher, "insightquest-test")
	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	forwarder.now = func() time.Time { return fixed }

	var captured []byte
	publisher.On("Publish", mock.Anything, "insightquest.events.level_changed", mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(2).([]byte) }).
		Return(nil).Once()

	event := events.LevelChangedEvent{
		Address:    "0xabc",
		Generation: 4,
		OldLevel:   2,
		NewLevel:   3,
		Stage:      "Novice",
	}
	require.NoError(t, forwarder.Forward(context.Background(), event))
	publisher.AssertExpectations(t)

	var envelope EventEnvelope
	require.NoError(t, json.Unmarshal(captured, &envelope))
	_, err := uuid.Parse(envelope.EventID)
	assert.NoError(t, err)
	assert.Equal(t, "level_changed", envelope.EventType)
	assert.Equal(t, uint64(4), envelope.Generation)
	assert.Equal(t, "insightquest-test", envelope.SourceService)
	assert.True(t, fixed.Equal(envelope.Timestamp))

	var payload events.LevelChangedEvent
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, event, payload)
}

func TestEventForwarder_PublishErrors(t *testing.T) {
	t.Run("no stream is not an error", func(t *testing.T) {
		publisher := new(MockMessagePublisher)
		publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("nats: no response from stream")).Once()

		forwarder := NewEventForwarder(publisher, "test")
		assert.NoError(t, forwarder.Forward(context.Background(), events.XPAwardedEvent{Address: "0xabc", Amount: 5}))
	})

	t.Run("other errors are returned", func(t *testing.T) {
		publisher := new(MockMessagePublisher)
		publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).
			Return(ErrNotConnected).Once()

		forwarder := NewEventForwarder(publisher, "test")
		err := forwarder.Forward(context.Background(), events.XPAwardedEvent{Address: "0xabc", Amount: 5})
		assert.ErrorIs(t, err, ErrNotConnected)
	})
}

func TestEventForwarder_AttachPreservesOrder(t *testing.T) {
	publisher := new(MockMessagePublisher)
	subjects := make(chan string, 8)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { subjects <- args.String(1) }).
		Return(nil)

	bus := events.NewBus()
	defer bus.Close()

	forwarder := NewEventForwarder(publisher, "test")
	unsubscribe := forwarder.Attach(bus)
	defer unsubscribe()

	bus.Publish(events.LoggedInEvent{Address: "0xabc", Generation: 1})
	bus.Publish(events.LevelChangedEvent{Address: "0xabc", Generation: 1, OldLevel: 1, NewLevel: 2})
	bus.Publish(events.SessionEndedEvent{Address: "0xabc", Generation: 1, Reason: "disconnect"})

	expected := []string{
		"insightquest.events.logged_in",
		"insightquest.events.level_changed",
		"insightquest.events.session_ended",
	}
	for _, want := range expected {
		select {
		case got := <-subjects:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestEventSubjectMapping(t *testing.T) {
	subjects := EventSubjects()
	require.Len(t, subjects, len(events.AllEventTypes()))

	for _, eventType := range events.AllEventTypes() {
		subject := SubjectForEvent(eventType)
		assert.Contains(t, subjects, subject)

		back, ok := EventTypeForSubject(subject)
		assert.True(t, ok)
		assert.Equal(t, eventType, back)
	}

	_, ok := EventTypeForSubject("other.events.logged_in")
	assert.False(t, ok)
	_, ok = EventTypeForSubject("insightquest.events.")
	assert.False(t, ok)
}
