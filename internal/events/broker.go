// Package events fans queue, progress, and saved-list changes out to the
// streaming subscribers behind /events/downloads. Delivery is best-effort:
// a slow or disconnected subscriber drops events and is expected to
// resynchronize with a full poll.
package events

import (
	"sync"
	"time"

	"github.com/anontester/ripweb/internal/logger"
)

const (
	// EventQueue carries a full queue snapshot.
	EventQueue = "queue"
	// EventProgress carries one job's progress snapshot.
	EventProgress = "progress"
	// EventSaved carries the saved-items list.
	EventSaved = "saved"

	subscriberBuffer = 64

	// defaultMinInterval is the floor between successive progress
	// emissions for the same job. Terminal updates always go out.
	defaultMinInterval = 150 * time.Millisecond
)

// Event is one named message pushed to subscribers.
type Event struct {
	Name string
	Data any
}

// Subscriber receives events on C until Close or broker shutdown.
type Subscriber struct {
	C      chan Event
	broker *Broker
}

// Close detaches the subscriber from the broker.
func (s *Subscriber) Close() {
	s.broker.unsubscribe(s)
}

type pendingProgress struct {
	event Event
	timer *time.Timer
}

// Broker is the fan-out hub. Progress events for the same job are coalesced
// to at most one emission per minInterval; everything else goes out as-is.
type Broker struct {
	log         *logger.Logger
	minInterval time.Duration

	mu       sync.Mutex
	subs     map[*Subscriber]struct{}
	lastSent map[string]time.Time
	pending  map[string]*pendingProgress
	closed   bool
}

func NewBroker(log *logger.Logger) *Broker {
	return &Broker{
		log:         log.WithComponent("events"),
		minInterval: defaultMinInterval,
		subs:        make(map[*Subscriber]struct{}),
		lastSent:    make(map[string]time.Time),
		pending:     make(map[string]*pendingProgress),
	}
}

// Subscribe registers a new streaming consumer.
func (b *Broker) Subscribe() *Subscriber {
	sub := &Subscriber{
		C:      make(chan Event, subscriberBuffer),
		broker: b,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.C)
		return sub
	}
	b.subs[sub] = struct{}{}
	b.log.Debug("Subscriber connected", "subscribers", len(b.subs))
	return sub
}

func (b *Broker) unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.C)
	b.log.Debug("Subscriber disconnected", "subscribers", len(b.subs))
}

// Publish delivers an event to every subscriber, dropping it for any whose
// buffer is full.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliverLocked(ev)
}

func (b *Broker) deliverLocked(ev Event) {
	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub.C <- ev:
		default:
			b.log.Debug("Dropping event for slow subscriber", "event", ev.Name)
		}
	}
}

// PublishProgress delivers a per-job progress event, rate-limiting bursts
// for the same job. A terminal update flushes immediately and cancels any
// pending coalesced emission so the final state is never lost.
func (b *Broker) PublishProgress(jobID string, terminal bool, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if terminal {
		if p, ok := b.pending[jobID]; ok {
			p.timer.Stop()
			delete(b.pending, jobID)
		}
		b.lastSent[jobID] = time.Now()
		b.deliverLocked(ev)
		return
	}

	now := time.Now()
	if since := now.Sub(b.lastSent[jobID]); since >= b.minInterval {
		if p, ok := b.pending[jobID]; ok {
			p.timer.Stop()
			delete(b.pending, jobID)
		}
		b.lastSent[jobID] = now
		b.deliverLocked(ev)
		return
	}

	// Within the quiet window: hold the latest event and emit it when the
	// window ends, unless superseded again first.
	if p, ok := b.pending[jobID]; ok {
		p.event = ev
		return
	}
	p := &pendingProgress{event: ev}
	delay := b.minInterval - now.Sub(b.lastSent[jobID])
	p.timer = time.AfterFunc(delay, func() { b.flush(jobID) })
	b.pending[jobID] = p
}

func (b *Broker) flush(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[jobID]
	if !ok {
		return
	}
	delete(b.pending, jobID)
	b.lastSent[jobID] = time.Now()
	b.deliverLocked(p.event)
}

// ForgetJob clears coalescing state once a job leaves the active set.
func (b *Broker) ForgetJob(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pending[jobID]; ok {
		p.timer.Stop()
		delete(b.pending, jobID)
	}
	delete(b.lastSent, jobID)
}

// Close detaches all subscribers and stops pending timers.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for jobID, p := range b.pending {
		p.timer.Stop()
		delete(b.pending, jobID)
	}
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.C)
	}
}
