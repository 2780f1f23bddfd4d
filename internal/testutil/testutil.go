// Package testutil provides small builders for message transcripts used by
// package tests.
package testutil

import "github.com/hupe1980/roundtable/core"

// Broadcast builds a broadcast message.
func Broadcast(sender, content string) core.Message {
	return core.NewBroadcast(sender, content)
}

// Direct builds a direct message.
func Direct(sender, recipient, content string) core.Message {
	return core.NewMessage(sender, recipient, content, core.KindDirect)
}

// Question builds a question message.
func Question(sender, recipient, content string) core.Message {
	return core.NewMessage(sender, recipient, content, core.KindQuestion)
}

// Records converts messages into their wire records.
func Records(msgs ...core.Message) []core.Record {
	out := make([]core.Record, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Record())
	}
	return out
}
