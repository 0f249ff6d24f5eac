package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType represents the kind of event emitted onto the bus.
type EventType string

const (
	EventInstanceCreated   EventType = "instance.created"
	EventInstanceStarted   EventType = "instance.started"
	EventInstanceStopped   EventType = "instance.stopped"
	EventInstanceRestarted EventType = "instance.restarted"
	EventInstanceCrashed   EventType = "instance.crashed"
	EventInstanceDrifted   EventType = "instance.drifted"
	EventInstanceDeleted   EventType = "instance.deleted"

	EventRegistryUpserted EventType = "registry.upserted"
	EventRegistryDeleted  EventType = "registry.deleted"

	EventCircuitOpened   EventType = "circuit.opened"
	EventCircuitClosed   EventType = "circuit.closed"
	EventCircuitHalfOpen EventType = "circuit.half_open"

	EventSandboxPruned EventType = "sandbox.pruned"
)

// Event represents a single occurrence on the bus. Seq is assigned by the
// Broker's single broadcast loop from an atomic counter and is strictly
// increasing for the lifetime of a Broker,
// letting subscribers detect gaps caused by a full buffer dropping events.
type Event struct {
	Seq       uint64
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscription is an opaque handle to a live subscription. Callers never see
// the underlying channel type; they read from Events() and release the
// subscription with Broker.Unsubscribe.
type Subscription struct {
	id int64
	ch chan *Event
}

// Events returns the receive-only channel for this subscription.
func (s *Subscription) Events() <-chan *Event {
	return s.ch
}

// Broker manages event subscriptions and fan-out distribution.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan *Event
	nextSubID   int64
	seq         uint64
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker with a 100-event internal buffer.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan *Event),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}

// Subscribe creates a new subscription with a 50-event per-subscriber buffer.
func (b *Broker) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	id := b.nextSubID
	ch := make(chan *Event, 50)
	b.subscribers[id] = ch
	return &Subscription{id: id, ch: ch}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[sub.id]; ok {
		delete(b.subscribers, sub.id)
		close(ch)
	}
}

// Publish enqueues an event for distribution, assigning it an ID if unset.
// Publish does not block indefinitely: it gives up if the broker is stopped.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	event.Seq = atomic.AddUint64(&b.seq, 1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// subscriber buffer full, drop and let it detect the gap via Seq
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
