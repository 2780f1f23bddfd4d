package core

import (
	"sync"
	"time"
)

// EventKind identifies a lifecycle transition or message emission reported to
// observers.
type EventKind string

const (
	// EventMessage is published for every message sent through the bus.
	EventMessage EventKind = "message"
	// EventTurnStarted marks the beginning of a scheduling turn.
	EventTurnStarted EventKind = "turn_started"
	// EventAgentThinking marks a participant entering its reasoning cycle.
	EventAgentThinking EventKind = "agent_thinking"
	// EventAgentResult reports the outcome of a participant's reasoning cycle.
	EventAgentResult EventKind = "agent_result"
	// EventMeetingStarted marks the start of a session.
	EventMeetingStarted EventKind = "meeting_started"
	// EventMeetingCompleted marks a session that finished and synthesized.
	EventMeetingCompleted EventKind = "meeting_completed"
	// EventMeetingErrored marks a session that failed; a partial transcript
	// is still produced.
	EventMeetingErrored EventKind = "meeting_errored"
	// EventHumanPaused marks the orchestrator blocking on human input.
	EventHumanPaused EventKind = "human_paused"
	// EventHumanIntervention marks injected human input entering the session.
	EventHumanIntervention EventKind = "human_intervention"
)

// Event is the record delivered to observers for every message sent and every
// lifecycle transition. Progress is a 0..1 completion hint where meaningful,
// Data carries kind-specific payloads (message records, statistics).
type Event struct {
	Source    string         `json:"source"`
	Kind      EventKind      `json:"kind"`
	Message   string         `json:"message"`
	Progress  float64        `json:"progress,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent constructs an observer event stamped with the current UTC time.
func NewEvent(source string, kind EventKind, message string) Event {
	return Event{Source: source, Kind: kind, Message: message, Timestamp: time.Now().UTC()}
}

// Observer receives engine events synchronously, in production order. A non-nil
// error return tells the publisher to drop the subscriber.
type Observer interface {
	OnEvent(ev Event) error
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(ev Event) error

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(ev Event) error { return f(ev) }

// Publisher fans events out to subscribers synchronously and in order.
// Delivery is best effort per subscriber: one that returns an error or panics
// is dropped from the list and never aborts the publish. Safe for concurrent
// use.
type Publisher struct {
	mu   sync.Mutex
	subs []*subscription
}

// subscription boxes an observer so a failed entry can be pruned by pointer
// identity (Observer values backed by func types are not comparable).
type subscription struct {
	obs Observer
}

// NewPublisher constructs an empty publisher.
func NewPublisher() *Publisher { return &Publisher{} }

// Subscribe registers an observer. Nil observers are ignored.
func (p *Publisher) Subscribe(o Observer) {
	if o == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, &subscription{obs: o})
}

// Len returns the number of live subscribers.
func (p *Publisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Publish delivers the event to every live subscriber. Failing subscribers
// are removed before Publish returns. Callbacks run outside the publisher
// lock, so an observer may subscribe or publish on the same publisher from
// within OnEvent without deadlocking.
func (p *Publisher) Publish(ev Event) {
	p.mu.Lock()
	subs := make([]*subscription, len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	var failed []*subscription
	for _, s := range subs {
		if !notify(s.obs, ev) {
			failed = append(failed, s)
		}
	}
	if len(failed) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.subs[:0]
	for _, s := range p.subs {
		if !dropped(failed, s) {
			kept = append(kept, s)
		}
	}
	p.subs = kept
}

// dropped reports whether s is in the failed set.
func dropped(failed []*subscription, s *subscription) bool {
	for _, f := range failed {
		if f == s {
			return true
		}
	}
	return false
}

// notify delivers one event, reporting whether the subscriber stays live.
func notify(o Observer, ev Event) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return o.OnEvent(ev) == nil
}
