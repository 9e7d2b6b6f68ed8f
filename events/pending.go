package events

import (
	log "github.com/sirupsen/logrus"
)

// PendingBus holds events produced by a read-modify-write until the write is durable.
// Flush forwards them in order; Discard drops them after a failed write.
type PendingBus struct {
	real    Publisher
	pending []Event
}

func NewPendingBus(real Publisher) *PendingBus {
	return &PendingBus{real: real}
}

func (b *PendingBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to pending queue")
	b.pending = append(b.pending, e)
}

// Len returns the number of held events
func (b *PendingBus) Len() int {
	return len(b.pending)
}

// called after the record has been saved
func (b *PendingBus) Flush() {
	for _, e := range b.pending {
		b.real.Publish(e)
	}
	b.pending = nil
}

// called after a failed save
func (b *PendingBus) Discard() {
	b.pending = nil
}
