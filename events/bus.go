package events

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// subscription delivers events to one handler in publish order on its own goroutine.
// The queue is unbounded so publishers never block on a slow handler.
type subscription struct {
	id      uint64
	types   map[EventType]bool // nil means every type
	handler Handler

	mu      sync.Mutex
	queue   []Event
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

func (s *subscription) wants(t EventType) bool {
	return s.types == nil || s.types[t]
}

func (s *subscription) enqueue(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.stopped)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		closed := s.closed
		s.mu.Unlock()

		for _, e := range batch {
			s.dispatch(ctx, e)
		}
		if closed {
			return
		}
		if len(batch) == 0 {
			<-s.wake
		}
	}
}

func (s *subscription) dispatch(ctx context.Context, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"eventType":      e.Type(),
				"subscriptionId": s.id,
				"panic":          r,
			}).Error("Event handler panicked")
		}
	}()
	s.handler(ctx, e)
}

// Bus manages event subscriptions and dispatching. Each subscriber sees events
// in the order they were published.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscription
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewBus creates a new event bus
func NewBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subs:   make(map[uint64]*subscription),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe adds a handler for a specific event type and returns a function that removes it
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	return b.subscribe(map[EventType]bool{eventType: true}, handler)
}

// SubscribeAll adds a handler for every event type
func (b *Bus) SubscribeAll(handler Handler) func() {
	return b.subscribe(nil, handler)
}

func (b *Bus) subscribe(types map[EventType]bool, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{
		id:      b.nextID,
		types:   types,
		handler: handler,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	if b.closed {
		close(sub.stopped)
		return func() {}
	}
	b.subs[sub.id] = sub
	go sub.run(b.ctx)

	log.WithFields(log.Fields{
		"subscriptionId":    sub.id,
		"subscriptionCount": len(b.subs),
	}).Debug("Subscribed handler on event bus")

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub.id)
			b.mu.Unlock()
			sub.close()
		})
	}
}

// Publish enqueues an event for every interested subscriber without blocking
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	delivered := 0
	for _, sub := range b.subs {
		if sub.wants(event.Type()) {
			sub.enqueue(event)
			delivered++
		}
	}

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"generation":   event.SessionGeneration(),
		"handlerCount": delivered,
	}).Debug("Published event on event bus")
}

// Close stops all subscribers after they drain what is already queued
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = map[uint64]*subscription{}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	for _, sub := range subs {
		<-sub.stopped
	}
	b.cancel()
}
