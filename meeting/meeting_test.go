package meeting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/agent"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/internal/testutil"
	"github.com/hupe1980/roundtable/model"
	"github.com/hupe1980/roundtable/tool"
)

func newTestMeeting(t *testing.T, optFns ...func(o *Options)) (*Meeting, *model.MockModel, *model.MockModel, *model.MockModel) {
	t.Helper()

	leaderLLM := model.NewMockModel("leader-llm")
	aliceLLM := model.NewMockModel("alice-llm")
	bobLLM := model.NewMockModel("bob-llm")

	leader := agent.New("lead", leaderLLM)
	m := New(leader, optFns...)
	m.AddExpert(agent.New("alice", aliceLLM))
	m.AddExpert(agent.New("bob", bobLLM))

	return m, leaderLLM, aliceLLM, bobLLM
}

func TestMeetingLeaderSpeaksLast(t *testing.T) {
	m, _, _, _ := newTestMeeting(t, func(o *Options) {
		o.MaxTurns = 5
	})

	var events []core.Event
	m.Subscribe(core.ObserverFunc(func(ev core.Event) error {
		events = append(events, ev)
		return nil
	}))

	summary, err := m.Run(context.Background(), "Kick off: size the cache tier.")
	require.NoError(t, err)

	assert.Equal(t, OutcomeExhausted, summary.Outcome)
	assert.Equal(t, 5, summary.Turns)

	senders := make([]string, 0, len(summary.Transcript))
	for _, rec := range summary.Transcript {
		senders = append(senders, rec.Sender)
	}

	// Opening first, then every turn peers in registration order with the
	// leader strictly after them.
	require.GreaterOrEqual(t, len(senders), 4)
	assert.Equal(t, ModeratorName, senders[0])
	assert.Equal(t, []string{"alice", "bob", "lead"}, senders[1:4])
	assert.Equal(t, "lead", senders[len(senders)-1]) // minutes

	assert.Equal(t, core.EventMeetingStarted, events[0].Kind)
	assert.Equal(t, core.EventMeetingCompleted, events[len(events)-1].Kind)

	turnsStarted := 0
	for _, ev := range events {
		if ev.Kind == core.EventTurnStarted {
			turnsStarted++
		}
	}
	assert.Equal(t, 5, turnsStarted)

	assert.Equal(t, 5, summary.Stats["alice"].Total)
	assert.Equal(t, 5, summary.Stats["bob"].Total)
	assert.Equal(t, 6, summary.Stats["lead"].Total) // 5 turns + minutes
}

func TestMeetingObserverReceivesMessageEvents(t *testing.T) {
	m, _, _, _ := newTestMeeting(t, func(o *Options) {
		o.MaxTurns = 2
	})

	var msgEvents []core.Event
	m.Subscribe(core.ObserverFunc(func(ev core.Event) error {
		if ev.Kind == core.EventMessage {
			msgEvents = append(msgEvents, ev)
		}
		return nil
	}))

	summary, err := m.Run(context.Background(), "Kick off.")
	require.NoError(t, err)

	// One message event per transcripted message, in transcript order.
	require.Len(t, msgEvents, len(summary.Transcript))
	for i, ev := range msgEvents {
		rec, ok := ev.Data["record"].(core.Record)
		require.True(t, ok, "message events carry the record payload")
		assert.Equal(t, summary.Transcript[i].MessageID, rec.MessageID)
		assert.Equal(t, summary.Transcript[i].Sender, ev.Source)
	}
}

// spyPolicy records the pending flag the loop passes at each leader phase.
type spyPolicy struct {
	LeaderLastPolicy
	pendings []bool
}

func (p *spyPolicy) LeaderTurn(turn, maxTurns int, pending bool) bool {
	p.pendings = append(p.pendings, pending)
	return p.LeaderLastPolicy.LeaderTurn(turn, maxTurns, pending)
}

func TestLeaderSeesPeerTrafficSameTurn(t *testing.T) {
	spy := &spyPolicy{}
	m, _, _, bobLLM := newTestMeeting(t, func(o *Options) {
		o.MaxTurns = 5
		o.Policy = spy
	})

	// bob's directed question reaches only alice; the leader still has the
	// opening and alice's broadcast in its mailbox when its phase starts.
	bobLLM.Script(model.Response{Text: "@alice should we double-check the numbers?"})

	summary, err := m.Run(context.Background(), "Discuss Company X.")
	require.NoError(t, err)
	assert.Equal(t, OutcomeExhausted, summary.Outcome)

	require.NotEmpty(t, spy.pendings)
	assert.True(t, spy.pendings[0], "leader mailbox must be non-empty before its first phase")

	var question *core.Record
	for i := range summary.Transcript {
		if summary.Transcript[i].Sender == "bob" && summary.Transcript[i].Recipient == "alice" {
			question = &summary.Transcript[i]
			break
		}
	}
	require.NotNil(t, question, "bob's directed question must be transcripted")
	assert.Equal(t, string(core.KindQuestion), question.MessageType)
}

func TestMeetingConcludeTool(t *testing.T) {
	m, leaderLLM, _, _ := newTestMeeting(t, func(o *Options) {
		o.MaxTurns = 5
	})

	leaderLLM.Script(
		model.Response{Text: `We have what we need. conclude_meeting(reason="sufficient")`},
		model.Response{Text: "Minutes: cache sizing settled at 64GB per shard."},
	)

	summary, err := m.Run(context.Background(), "Kick off: size the cache tier.")
	require.NoError(t, err)

	assert.Equal(t, OutcomeConcluded, summary.Outcome)
	assert.Equal(t, "sufficient", summary.ConcludeReason)
	assert.Equal(t, 1, summary.Turns)
	assert.Contains(t, summary.Minutes, "cache sizing settled")

	last := summary.Transcript[len(summary.Transcript)-1]
	assert.Equal(t, "lead", last.Sender)
	assert.Contains(t, last.Content, "Minutes:")
}

func TestMeetingCapabilityMapRestored(t *testing.T) {
	leaderLLM := model.NewMockModel("leader-llm")
	leader := agent.New("lead", leaderLLM, func(o *agent.Options) {
		o.Tools = []tool.Tool{
			tool.NewFunctionTool("noop", "does nothing", map[string]any{"type": "object"},
				func(context.Context, map[string]any) (*tool.Result, error) {
					return &tool.Result{Success: true, Summary: "ok"}, nil
				}),
		}
	})

	m := New(leader)
	leaderLLM.Script(
		model.Response{Text: `conclude_meeting(reason="done")`},
		model.Response{Text: "Minutes."},
	)

	// The conclude capability is granted at construction and survives runs;
	// it is absent only inside the synthesis call itself.
	before := toolNames(leader.Tools())
	require.Contains(t, before, ConcludeToolName)
	require.Contains(t, before, "noop")

	_, err := m.Run(context.Background(), "start")
	require.NoError(t, err)

	after := toolNames(leader.Tools())
	assert.Equal(t, before, after)

	// Had synthesis seen the conclude capability, the scripted minutes call
	// would have been preceded by another conclude invocation; the prompt
	// sent for minutes must not list it.
	reqs := leaderLLM.Requests()
	minutesReq := reqs[len(reqs)-1]
	for _, td := range minutesReq.Tools {
		assert.NotEqual(t, ConcludeToolName, td.Name)
	}
}

func toolNames(tools map[string]tool.Tool) []string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func TestMeetingQuiescent(t *testing.T) {
	m, leaderLLM, aliceLLM, bobLLM := newTestMeeting(t)

	// Everyone stays silent; the first turn produces nothing.
	leaderLLM.Script(model.Response{Text: ""})
	aliceLLM.Script(model.Response{Text: ""})
	bobLLM.Script(model.Response{Text: ""})

	summary, err := m.Run(context.Background(), "anyone?")
	require.NoError(t, err)

	assert.Equal(t, OutcomeQuiescent, summary.Outcome)
	assert.Equal(t, 1, summary.Turns)
}

func TestMeetingTerminationPredicate(t *testing.T) {
	m, _, aliceLLM, _ := newTestMeeting(t, func(o *Options) {
		o.Termination = func(transcript []core.Message) bool {
			for _, msg := range transcript {
				if strings.Contains(msg.Content, "DONE") {
					return true
				}
			}
			return false
		}
	})
	aliceLLM.Script(model.Response{Text: "DONE: we should ship it."})

	summary, err := m.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, OutcomeTerminated, summary.Outcome)
	assert.Equal(t, 1, summary.Turns)
}

func TestMeetingRunIsExclusive(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	m, _, _, _ := newTestMeeting(t, func(o *Options) {
		o.Termination = func([]core.Message) bool {
			select {
			case <-started:
			default:
				close(started)
				<-release
			}
			return true
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := m.Run(context.Background(), "go")
		done <- err
	}()

	<-started
	_, err := m.Run(context.Background(), "again")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestMeetingCheckpointInstruction(t *testing.T) {
	leaderLLM := model.NewMockModel("leader-llm")
	leader := agent.New("lead", leaderLLM)

	m := New(leader, func(o *Options) {
		o.MaxTurns = 10
		o.Policy = &LeaderLastPolicy{CheckpointInterval: 2}
	})

	// Turn 0: leader answers the opening but no one is around to reply, so
	// its mailbox is empty on the turn 1 checkpoint and the orchestrator
	// must deliver an interim instruction.
	leaderLLM.Script(
		model.Response{Text: "Thinking out loud."},
		model.Response{Text: `conclude_meeting(reason="checkpoint reached")`},
		model.Response{Text: "Minutes."},
	)

	summary, err := m.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, OutcomeConcluded, summary.Outcome)
	assert.Equal(t, "checkpoint reached", summary.ConcludeReason)

	reqs := leaderLLM.Requests()
	require.GreaterOrEqual(t, len(reqs), 2)
	second := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Contains(t, second.Content, "Checkpoint:")

	// Orchestrator instructions are delivered privately, never transcripted.
	for _, rec := range summary.Transcript {
		assert.NotContains(t, rec.Content, "Checkpoint:")
	}
}

func TestMeetingErrorStillSummarizes(t *testing.T) {
	m, _, aliceLLM, _ := newTestMeeting(t)
	aliceLLM.FailWith(fmt.Errorf("backend down"))

	var errored bool
	m.Subscribe(core.ObserverFunc(func(ev core.Event) error {
		if ev.Kind == core.EventMeetingErrored {
			errored = true
		}
		return nil
	}))

	summary, err := m.Run(context.Background(), "go")
	require.Error(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, OutcomeError, summary.Outcome)
	assert.True(t, errored)
	assert.NotEmpty(t, summary.Transcript) // opening is still on record
	assert.NotEmpty(t, summary.Minutes)
}

func TestMeetingMaxDuration(t *testing.T) {
	m, _, _, _ := newTestMeeting(t, func(o *Options) {
		o.MaxTurns = 1000
		o.MaxDuration = time.Millisecond
	})

	summary, err := m.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, OutcomeExhausted, summary.Outcome)
}

func TestBuildSummaryStats(t *testing.T) {
	transcript := []core.Message{
		testutil.Broadcast("lead", "hello all"),
		testutil.Question("alice", "lead", "a question?"),
		core.NewMessage("bob", "lead", "psst", core.KindPrivate),
		testutil.Broadcast("alice", "update"),
	}

	s := buildSummary("id-1", OutcomeConcluded, "done", 3, time.Second, "minutes", transcript)

	assert.Equal(t, ExpertStats{Broadcast: 1, Question: 1, Total: 2}, s.Stats["alice"])
	assert.Equal(t, ExpertStats{Private: 1, Total: 1}, s.Stats["bob"])
	assert.Equal(t, 2, s.KindCounts[core.KindBroadcast])
	assert.Len(t, s.Transcript, 4)
	assert.Equal(t, "done", s.ConcludeReason)
}
