package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventRunStarted      EventType = "run.started"
	EventRunFailed       EventType = "run.failed"
	EventProbeEmpty      EventType = "probe.empty"
	EventProbeFailed     EventType = "probe.failed"
	EventRetryWait       EventType = "retry.wait"
	EventLeaderUnchanged EventType = "leader.unchanged"
	EventLeaderChanged   EventType = "leader.changed"
	EventLeaderMissing   EventType = "leader.missing"
	EventStoreUpdated    EventType = "store.updated"
	EventNotifySent      EventType = "notify.sent"
	EventNotifyFailed    EventType = "notify.failed"
)

// Event represents a step in a reconciliation run
type Event struct {
	ID        string            `json:"id" yaml:"id"`
	Type      EventType         `json:"type" yaml:"type"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
	RunID     string            `json:"run_id" yaml:"run_id"`
	Cluster   string            `json:"cluster" yaml:"cluster"`
	Message   string            `json:"message,omitempty" yaml:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Publisher accepts events
type Publisher interface {
	Publish(event *Event)
}

// Handler receives published events
type Handler func(event *Event)

// Broker fans events out to subscribers synchronously, in subscription
// order. Publish returns once every handler has run, so nothing is lost
// when the process exits right after a run.
type Broker struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	order    []int
	next     int
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		handlers: make(map[int]Handler),
	}
}

// Subscribe registers h and returns a function removing it
func (b *Broker) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.handlers[id] = h
	b.order = append(b.order, id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.handlers, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers event to all subscribers
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// Collector buffers events per run until they are drained
type Collector struct {
	mu     sync.Mutex
	events map[string][]*Event
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{events: make(map[string][]*Event)}
}

// Handle is a Handler appending event to its run's buffer
func (c *Collector) Handle(event *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[event.RunID] = append(c.events[event.RunID], event)
}

// Drain returns and forgets the events of runID
func (c *Collector) Drain(runID string) []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	evs := c.events[runID]
	delete(c.events, runID)
	return evs
}
