package bus

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/core"
)

type captureLogger struct {
	warnings []string
}

func (c *captureLogger) Debug(string, ...any)      {}
func (c *captureLogger) Info(string, ...any)       {}
func (c *captureLogger) Warn(msg string, _ ...any) { c.warnings = append(c.warnings, msg) }
func (c *captureLogger) Error(string, ...any)      {}

func newTestBus(t *testing.T, ids ...string) (*MessageBus, *captureLogger) {
	t.Helper()
	logger := &captureLogger{}
	b := New(func(o *Options) { o.Logger = logger })
	for _, id := range ids {
		b.Register(id)
	}
	return b, logger
}

func TestTranscriptExactlyOnceInSendOrder(t *testing.T) {
	b, _ := newTestBus(t, "leader", "analyst")

	first := core.NewBroadcast("leader", "open the discussion")
	second := core.NewMessage("analyst", "leader", "on it", core.KindResponse)
	b.Send(first)
	b.Send(second)

	transcript := b.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, first.ID, transcript[0].ID)
	assert.Equal(t, second.ID, transcript[1].ID)
}

func TestBroadcastReachesEveryoneButSender(t *testing.T) {
	b, _ := newTestBus(t, "leader", "analyst", "skeptic", "quant")

	b.Send(core.NewBroadcast("analyst", "margins are compressing"))

	assert.Empty(t, b.PeekMessages("analyst"), "sender must not receive its own broadcast")
	for _, id := range []string{"leader", "skeptic", "quant"} {
		assert.Len(t, b.PeekMessages(id), 1, "exactly once per other participant: %s", id)
	}
}

func TestDirectToUnregisteredRecipientIsDroppedWithWarning(t *testing.T) {
	b, logger := newTestBus(t, "leader", "analyst")

	assert.NotPanics(t, func() {
		b.Send(core.NewMessage("analyst", "ghost", "are you there?", core.KindQuestion))
	})

	assert.Empty(t, b.PeekMessages("leader"))
	assert.Empty(t, b.PeekMessages("analyst"))
	assert.Contains(t, logger.warnings, "bus.recipient.unregistered")
	// Still transcripted: the send happened even though delivery failed.
	assert.Len(t, b.Transcript(), 1)
}

func TestGetMessagesDrainsPeekDoesNot(t *testing.T) {
	b, _ := newTestBus(t, "leader", "analyst")
	b.Send(core.NewBroadcast("leader", "first"))
	b.Send(core.NewBroadcast("leader", "second"))

	peek1 := b.PeekMessages("analyst")
	peek2 := b.PeekMessages("analyst")
	assert.Equal(t, peek1, peek2, "peek must not consume")
	assert.Len(t, peek2, 2)

	drained := b.GetMessages("analyst")
	assert.Len(t, drained, 2)
	assert.Empty(t, b.GetMessages("analyst"), "second drain returns nothing")
}

func TestObserversSeeMessagesBeforeDelivery(t *testing.T) {
	b, _ := newTestBus(t, "leader", "analyst")

	var observed []string
	b.Subscribe(core.ObserverFunc(func(ev core.Event) error {
		// At notification time the analyst mailbox must still be empty.
		observed = append(observed, ev.Message)
		assert.Empty(t, b.PeekMessages("analyst"))
		return nil
	}))

	b.Send(core.NewBroadcast("leader", "kick off"))
	assert.Equal(t, []string{"kick off"}, observed)
	assert.Len(t, b.PeekMessages("analyst"), 1)
}

func TestDeliverBypassesTranscriptAndObservers(t *testing.T) {
	b, _ := newTestBus(t, "leader", "analyst")
	var events int
	b.Subscribe(core.ObserverFunc(func(core.Event) error { events++; return nil }))

	b.Deliver("leader", core.NewMessage("moderator", "leader", "interim status please", core.KindDirect))

	assert.Len(t, b.PeekMessages("leader"), 1)
	assert.Empty(t, b.PeekMessages("analyst"))
	assert.Empty(t, b.Transcript())
	assert.Zero(t, events)
}

func TestRegisterIsIdempotent(t *testing.T) {
	b, _ := newTestBus(t, "leader")
	b.Send(core.NewMessage("analyst", "leader", "hello", core.KindDirect))
	b.Register("leader")

	assert.Len(t, b.PeekMessages("leader"), 1, "re-registering must not clear the mailbox")
	assert.Equal(t, []string{"leader"}, b.Participants())
	assert.True(t, b.Registered("leader"))
	assert.False(t, b.Registered("analyst"))
}

func TestConcurrentSendsKeepObserverOrder(t *testing.T) {
	b, _ := newTestBus(t, "leader", "analyst", "human")

	var observed []string
	b.Subscribe(core.ObserverFunc(func(ev core.Event) error {
		rec := ev.Data["record"].(core.Record)
		observed = append(observed, rec.MessageID)
		return nil
	}))

	// The meeting loop and a human injection race on the same bus; whatever
	// interleaving wins, the event stream must match the transcript.
	var wg sync.WaitGroup
	for _, sender := range []string{"leader", "analyst", "human"} {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Send(core.NewBroadcast(sender, fmt.Sprintf("%s update %d", sender, i)))
			}
		}(sender)
	}
	wg.Wait()

	transcript := b.Transcript()
	require.Len(t, transcript, 150)
	require.Len(t, observed, 150)
	for i, msg := range transcript {
		assert.Equal(t, msg.ID, observed[i])
	}
}
