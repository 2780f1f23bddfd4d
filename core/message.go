package core

import (
	"time"

	"github.com/google/uuid"
)

// BroadcastRecipient is the sentinel recipient addressing every other
// registered participant.
const BroadcastRecipient = "ALL"

// MessageKind classifies the conversational intent of a message. The kind
// drives routing (broadcast vs. targeted delivery) and is part of the wire
// record consumed by transcripts and observers.
type MessageKind string

const (
	// KindBroadcast is an open statement addressed to the whole table.
	KindBroadcast MessageKind = "broadcast"
	// KindDirect is a point-to-point message visible in the transcript.
	KindDirect MessageKind = "direct"
	// KindPrivate is a point-to-point message the sender marked as private.
	KindPrivate MessageKind = "private"
	// KindQuestion is a question directed at a named participant.
	KindQuestion MessageKind = "question"
	// KindResponse answers a previous question.
	KindResponse MessageKind = "response"
	// KindAgreement signals agreement with the ongoing discussion.
	KindAgreement MessageKind = "agreement"
	// KindDisagreement signals disagreement with the ongoing discussion.
	KindDisagreement MessageKind = "disagreement"
	// KindThinking carries intermediate reasoning shared for transparency.
	KindThinking MessageKind = "thinking"
)

// Message is the immutable envelope exchanged between participants. It is
// created once via NewMessage, owned by the bus transcript after send and by
// zero or more mailboxes until drained. Treat all fields as read-only.
type Message struct {
	ID        string            `json:"message_id"`
	Sender    string            `json:"sender"`
	Recipient string            `json:"recipient"`
	Content   string            `json:"content"`
	Kind      MessageKind       `json:"message_type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	ReplyTo   string            `json:"reply_to,omitempty"`
}

// MessageOption mutates a message during construction only.
type MessageOption func(*Message)

// WithMetadata attaches a metadata key/value pair.
func WithMetadata(key, value string) MessageOption {
	return func(m *Message) {
		if m.Metadata == nil {
			m.Metadata = make(map[string]string)
		}
		m.Metadata[key] = value
	}
}

// WithReplyTo links the message to the id of the message it answers.
func WithReplyTo(id string) MessageOption {
	return func(m *Message) { m.ReplyTo = id }
}

// NewMessage constructs a message with a fresh unique id and UTC timestamp.
func NewMessage(sender, recipient, content string, kind MessageKind, optFns ...MessageOption) Message {
	m := Message{
		ID:        NewID(),
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
	for _, fn := range optFns {
		fn(&m)
	}
	return m
}

// NewBroadcast constructs a broadcast message addressed to everyone.
func NewBroadcast(sender, content string, optFns ...MessageOption) Message {
	return NewMessage(sender, BroadcastRecipient, content, KindBroadcast, optFns...)
}

// IsBroadcast reports whether the message is delivered to every other
// registered participant. True iff the recipient is the sentinel or the kind
// is broadcast.
func (m Message) IsBroadcast() bool {
	return m.Recipient == BroadcastRecipient || m.Kind == KindBroadcast
}

// Record is the flat, field-for-field wire shape of a message. It is the
// serialization contract for transcript export and observer payloads;
// external consumers should rely on exactly these fields.
type Record struct {
	Sender      string            `json:"sender"`
	Recipient   string            `json:"recipient"`
	Content     string            `json:"content"`
	MessageType string            `json:"message_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   string            `json:"timestamp"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	MessageID   string            `json:"message_id"`
}

// Record converts the message into its wire shape. Timestamps are rendered
// as RFC3339Nano in UTC.
func (m Message) Record() Record {
	return Record{
		Sender:      m.Sender,
		Recipient:   m.Recipient,
		Content:     m.Content,
		MessageType: string(m.Kind),
		Metadata:    m.Metadata,
		Timestamp:   m.Timestamp.UTC().Format(time.RFC3339Nano),
		ReplyTo:     m.ReplyTo,
		MessageID:   m.ID,
	}
}

// NewID generates a new unique identifier for messages and observer events.
func NewID() string { return uuid.NewString() }
