// Package events provides a publish/subscribe event bus for operational
// observability. Events flow from components (command router, answer
// resolver, reminder scheduler) to subscribers (the /events WebSocket
// handler). The bus is nil-safe: calling Publish on a nil *Bus is a
// no-op, so components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceRouter identifies events from the command router.
	SourceRouter = "router"
	// SourceResolver identifies events from the answer resolver.
	SourceResolver = "resolver"
	// SourceScheduler identifies events from the reminder scheduler.
	SourceScheduler = "scheduler"
	// SourceWebhook identifies events from the inbound webhook server.
	SourceWebhook = "webhook"
)

// Kind constants describe the type of event within a source.
const (
	// KindMessageReceived signals an inbound message entered dispatch.
	// Data: sender, message_len.
	KindMessageReceived = "message_received"
	// KindCommandMatched signals which route handled a message.
	// Data: sender, route.
	KindCommandMatched = "command_matched"
	// KindReplySent signals a reply was produced for a message.
	// Data: sender, reply_len.
	KindReplySent = "reply_sent"

	// KindResolveRetry signals a transport failure that will be retried.
	// Data: attempt, error.
	KindResolveRetry = "resolve_retry"
	// KindResolveDone signals the resolver produced a result.
	// Data: status, attempts.
	KindResolveDone = "resolve_done"

	// KindJobRegistered signals a reminder job was added.
	// Data: job_id, weekday, created_by.
	KindJobRegistered = "job_registered"
	// KindReminderFired signals a reminder job fanned out.
	// Data: job_id, recipients.
	KindReminderFired = "reminder_fired"
	// KindTickSkipped signals a scheduler tick was skipped.
	// Data: error.
	KindTickSkipped = "tick_skipped"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// Subscription is a live feed of bus events. Close it when done to
// release the channel.
type Subscription struct {
	// C receives published events. It is closed by Close.
	C   <-chan Event
	ch  chan Event
	bus *Bus
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Publish sends an event to all subscribers, stamping the timestamp if
// unset. Non-blocking: if a subscriber's channel is full, the event is
// dropped for that subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			// Subscriber is full; drop the event rather than block.
		}
	}
}

// Subscribe registers a new subscriber. bufSize controls the channel
// buffer; 64 is a reasonable default for WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) *Subscription {
	ch := make(chan Event, bufSize)
	sub := &Subscription{C: ch, ch: ch, bus: b}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[sub] = struct{}{}
	return sub
}

// Close removes the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s]; !ok {
		return
	}
	delete(s.bus.subs, s)
	close(s.ch)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
