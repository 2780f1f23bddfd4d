// Package bus implements the message routing backbone of the roundtable
// engine: per-participant FIFO mailboxes, an append-only transcript and
// synchronous observer notification. Routing follows the envelope semantics
// of core.Message: broadcasts reach every other registered participant
// exactly once, targeted messages reach only the named recipient.
package bus

import (
	"sync"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
)

// Options configures a MessageBus.
type Options struct {
	// Logger receives routing diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
	// Publisher receives the per-message events. Passing one in lets an
	// orchestrator merge message events with its lifecycle events on a
	// single observer surface. Defaults to a private publisher.
	Publisher *core.Publisher
}

// MessageBus routes messages to per-participant mailboxes, keeps the ordered
// transcript and notifies observers synchronously on every send. All methods
// are safe for concurrent use; under the engine's cooperative scheduler only
// human input injection actually races with the meeting loop.
type MessageBus struct {
	sendMu     sync.Mutex
	mu         sync.RWMutex
	order      []string
	mailboxes  map[string][]core.Message
	transcript []core.Message
	publisher  *core.Publisher
	logger     logging.Logger
}

// New constructs an empty MessageBus.
func New(optFns ...func(o *Options)) *MessageBus {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Publisher == nil {
		opts.Publisher = core.NewPublisher()
	}
	return &MessageBus{
		mailboxes: make(map[string][]core.Message),
		publisher: opts.Publisher,
		logger:    opts.Logger,
	}
}

// Register creates a mailbox for the participant id. Registering an existing
// id is a no-op so mailbox contents survive repeated wiring.
func (b *MessageBus) Register(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mailboxes[id]; ok {
		return
	}
	b.mailboxes[id] = nil
	b.order = append(b.order, id)
}

// Registered reports whether the participant id has a mailbox.
func (b *MessageBus) Registered(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.mailboxes[id]
	return ok
}

// Participants returns the registered ids in registration order.
func (b *MessageBus) Participants() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Subscribe adds an observer notified synchronously for every sent message.
// Callbacks run while the send lock is held, so an observer must not send
// messages from within OnEvent.
func (b *MessageBus) Subscribe(o core.Observer) { b.publisher.Subscribe(o) }

// Send appends the message to the transcript, notifies observers and routes
// it. Broadcasts are enqueued into every other registered mailbox exactly
// once and never into the sender's own. Targeted messages are enqueued only
// into the named recipient's mailbox; an unregistered recipient drops the
// message with a logged warning (non-fatal).
//
// The whole sequence runs under one send lock so concurrent senders cannot
// interleave: observers always see events in transcript order.
func (b *MessageBus) Send(msg core.Message) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.mu.Lock()
	b.transcript = append(b.transcript, msg)
	b.mu.Unlock()

	// Observers see the message before any mailbox delivery so external
	// event order always matches production order.
	ev := core.NewEvent(msg.Sender, core.EventMessage, msg.Content)
	ev.Data = map[string]any{"record": msg.Record()}
	b.publisher.Publish(ev)

	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.IsBroadcast() {
		for _, id := range b.order {
			if id == msg.Sender {
				continue
			}
			b.mailboxes[id] = append(b.mailboxes[id], msg)
		}
		return
	}

	if _, ok := b.mailboxes[msg.Recipient]; !ok {
		b.logger.Warn("bus.recipient.unregistered",
			"sender", msg.Sender,
			"recipient", msg.Recipient,
			"message_id", msg.ID,
		)
		return
	}
	b.mailboxes[msg.Recipient] = append(b.mailboxes[msg.Recipient], msg)
}

// Deliver appends the message to a single mailbox without touching the
// transcript or observers. The orchestrator uses it to queue private
// instructions (interim checkpoints, the finalization directive) so the rest
// of the table is undisturbed.
func (b *MessageBus) Deliver(id string, msg core.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mailboxes[id]; !ok {
		b.logger.Warn("bus.deliver.unregistered", "recipient", id, "message_id", msg.ID)
		return
	}
	b.mailboxes[id] = append(b.mailboxes[id], msg)
}

// GetMessages drains and clears the participant's mailbox.
func (b *MessageBus) GetMessages(id string) []core.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.mailboxes[id]
	b.mailboxes[id] = nil
	return msgs
}

// PeekMessages returns a copy of the pending mailbox contents without
// consuming them. The scheduler uses it to decide participation.
func (b *MessageBus) PeekMessages(id string) []core.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	msgs := b.mailboxes[id]
	out := make([]core.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Transcript returns a copy of the full ordered transcript.
func (b *MessageBus) Transcript() []core.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.Message, len(b.transcript))
	copy(out, b.transcript)
	return out
}
