package meeting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/roundtable/agent"
	"github.com/hupe1980/roundtable/bus"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/tool"
)

const (
	// ModeratorName is the sender identity for orchestrator instructions.
	ModeratorName = "moderator"
	// HumanSender is the sender identity for injected human input.
	HumanSender = "human"
	// ConcludeToolName is the leader's capability for ending the meeting
	// with a reason.
	ConcludeToolName = "conclude_meeting"
)

// ErrAlreadyRunning is returned by Run when a run is already in progress.
var ErrAlreadyRunning = errors.New("meeting: run already in progress")

// TerminationFunc is an external stop predicate evaluated against the full
// transcript after every participant phase.
type TerminationFunc func(transcript []core.Message) bool

// Options configures a Meeting.
type Options struct {
	// MaxTurns bounds the number of scheduling turns.
	MaxTurns int
	// MaxDuration bounds wall clock time for the whole run, synthesis
	// included. Zero means no bound.
	MaxDuration time.Duration
	// Policy decides peer ordering and when the leader speaks. Defaults to
	// LeaderLastPolicy.
	Policy TurnPolicy
	// Termination is an optional external stop predicate.
	Termination TerminationFunc
	// InterventionTimeout bounds how long RequestHumanIntervention blocks.
	// Zero waits until input arrives or the context ends.
	InterventionTimeout time.Duration
	// Logger receives scheduling diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Meeting orchestrates a turn-based session between one leader and any number
// of peer experts over a shared message bus. Scheduling is cooperative and
// single-threaded; InjectHumanInput is the only method safe to call
// concurrently with Run.
type Meeting struct {
	id        string
	opts      Options
	logger    logging.Logger
	bus       *bus.MessageBus
	publisher *core.Publisher
	leader    agent.Participant
	byName    map[string]agent.Participant

	stateMu        sync.Mutex
	running        bool
	concluded      bool
	concludeReason string

	humanGate chan string
	waiting   bool
}

// New creates a meeting led by the given participant. The leader is wired
// into the bus immediately; peers join through AddExpert.
func New(leader agent.Participant, optFns ...func(o *Options)) *Meeting {
	opts := Options{
		MaxTurns: 10,
		Policy:   &LeaderLastPolicy{},
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 10
	}
	if opts.Policy == nil {
		opts.Policy = &LeaderLastPolicy{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	m := &Meeting{
		id:        core.NewID(),
		opts:      opts,
		logger:    opts.Logger,
		publisher: core.NewPublisher(),
		leader:    leader,
		byName:    make(map[string]agent.Participant),
		humanGate: make(chan string, 1),
	}
	// The meeting publisher doubles as the bus event sink so one Subscribe
	// call covers message traffic and lifecycle transitions alike.
	m.bus = bus.New(func(o *bus.Options) {
		o.Logger = opts.Logger
		o.Publisher = m.publisher
	})

	leader.Join(m.bus, m.publisher)
	m.byName[leader.Name()] = leader

	// The conclude capability is part of the leader's standing capability
	// set; it is scoped out only for the synthesis call.
	leader.AddTool(m.concludeTool())

	return m
}

// ID returns the meeting identifier.
func (m *Meeting) ID() string { return m.id }

// Leader returns the leading participant.
func (m *Meeting) Leader() agent.Participant { return m.leader }

// Bus exposes the underlying message bus, mainly for inspection in tests and
// tooling.
func (m *Meeting) Bus() *bus.MessageBus { return m.bus }

// AddExpert wires a peer participant into the meeting. Adding a participant
// under an already registered name replaces the previous one; the shared
// mailbox contents survive.
func (m *Meeting) AddExpert(p agent.Participant) {
	if m.bus.Registered(p.Name()) {
		m.logger.Warn("meeting.expert.duplicate", "name", p.Name())
	}
	p.Join(m.bus, m.publisher)
	m.byName[p.Name()] = p
}

// Subscribe attaches an observer that receives every message and lifecycle
// event in production order.
func (m *Meeting) Subscribe(o core.Observer) { m.publisher.Subscribe(o) }

// Run executes the meeting until it concludes, goes quiescent, hits a bound
// or the termination predicate fires, then synthesizes minutes and returns
// the summary. Only one run may be active at a time; the same meeting may be
// rerun afterwards (reset experts via their Reset method first if fresh
// history is wanted).
//
// On an error escaping the scheduling loop the partial transcript is still
// summarized and returned together with the error.
func (m *Meeting) Run(ctx context.Context, opening string) (*Summary, error) {
	if !m.begin() {
		return nil, ErrAlreadyRunning
	}
	defer m.end()

	start := time.Now()

	if m.opts.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.MaxDuration)
		defer cancel()
	}

	m.publish(core.EventMeetingStarted, fmt.Sprintf("meeting started with %d participant(s)", len(m.bus.Participants())))
	m.logger.Info("meeting.start", "meeting_id", m.id, "participants", len(m.bus.Participants()), "max_turns", m.opts.MaxTurns)

	m.bus.Send(core.NewBroadcast(ModeratorName, opening))

	outcome, turns, runErr := m.loop(ctx)

	if runErr != nil {
		m.publish(core.EventMeetingErrored, runErr.Error())
		m.logger.Error("meeting.error", "meeting_id", m.id, "error", runErr)
	}

	minutes := m.finalize(ctx)

	elapsed := time.Since(start)
	summary := buildSummary(m.id, outcome, m.reason(), turns, elapsed, minutes, m.bus.Transcript())

	m.publish(core.EventMeetingCompleted, fmt.Sprintf("meeting finished after %d turn(s): %s", turns, outcome))
	m.logger.Info("meeting.done",
		"meeting_id", m.id,
		"outcome", string(outcome),
		"turns", turns,
		"messages", len(summary.Transcript),
		"elapsed_ms", elapsed.Milliseconds(),
	)

	return summary, runErr
}

// loop drives the turn scheduler and reports how the run ended.
func (m *Meeting) loop(ctx context.Context) (outcome Outcome, turns int, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeError
			err = fmt.Errorf("meeting: panic in scheduling loop: %v", r)
		}
	}()

	leaderName := m.leader.Name()

	for turn := 0; turn < m.opts.MaxTurns; turn++ {
		if stop, o, e := m.checkContext(ctx); stop {
			return o, turns, e
		}

		turns = turn + 1
		turnStart := time.Now()

		ev := core.NewEvent(m.id, core.EventTurnStarted, fmt.Sprintf("turn %d", turns))
		ev.Progress = float64(turn) / float64(m.opts.MaxTurns)
		m.publisher.Publish(ev)

		produced := 0
		spoke := 0

		for _, name := range m.opts.Policy.PeerOrder(m.bus.Participants(), leaderName) {
			p := m.byName[name]
			if p == nil || len(m.bus.PeekMessages(name)) == 0 {
				continue
			}

			n, cerr := m.runCycle(ctx, p)
			if cerr != nil {
				return OutcomeError, turns, cerr
			}
			produced += n
			spoke++

			if done, o := m.checkStop(); done {
				return o, turns, nil
			}
		}

		pending := len(m.bus.PeekMessages(leaderName)) > 0
		if m.opts.Policy.LeaderTurn(turn, m.opts.MaxTurns, pending) {
			if !pending {
				m.bus.Deliver(leaderName, core.NewMessage(ModeratorName, leaderName, checkpointPrompt(), core.KindDirect))
			}

			n, cerr := m.runCycle(ctx, m.leader)
			if cerr != nil {
				return OutcomeError, turns, cerr
			}
			produced += n
			spoke++

			if done, o := m.checkStop(); done {
				return o, turns, nil
			}
		}

		m.logger.Debug("meeting.turn", "turn", turns, "speakers", spoke, "messages", produced, "duration_ms", time.Since(turnStart).Milliseconds())

		if produced == 0 {
			return OutcomeQuiescent, turns, nil
		}
	}

	return OutcomeExhausted, turns, nil
}

// runCycle runs one participant cycle and routes its output over the bus.
func (m *Meeting) runCycle(ctx context.Context, p agent.Participant) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("meeting: participant %s panicked: %v", p.Name(), r)
		}
	}()

	msgs, err := p.ThinkAndAct(ctx)
	if err != nil {
		return 0, err
	}

	for _, msg := range msgs {
		m.bus.Send(msg)
	}

	return len(msgs), nil
}

// checkStop evaluates conclude flag and termination predicate, in that order.
func (m *Meeting) checkStop() (bool, Outcome) {
	if m.isConcluded() {
		return true, OutcomeConcluded
	}
	if m.opts.Termination != nil && m.opts.Termination(m.bus.Transcript()) {
		return true, OutcomeTerminated
	}
	return false, ""
}

// checkContext maps context expiry onto an outcome: a deadline counts as the
// cooperative duration bound, a cancellation is an error.
func (m *Meeting) checkContext(ctx context.Context) (bool, Outcome, error) {
	switch err := ctx.Err(); {
	case err == nil:
		return false, "", nil
	case errors.Is(err, context.DeadlineExceeded):
		m.logger.Warn("meeting.duration.exhausted", "meeting_id", m.id)
		return true, OutcomeExhausted, nil
	default:
		return true, OutcomeError, err
	}
}

// finalize asks the leader for minutes with the conclude capability scoped
// out, falling back to the conclude reason or a generic notice if synthesis
// fails. It runs on a fresh bounded context so minutes are still attempted
// after the run context expired.
func (m *Meeting) finalize(ctx context.Context) string {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 60*time.Second)
	defer cancel()

	m.bus.Deliver(m.leader.Name(), core.NewMessage(ModeratorName, m.leader.Name(), minutesPrompt(), core.KindDirect))

	msgs, err := m.leader.ThinkAndAct(fctx, agent.WithoutTools(ConcludeToolName))
	if err == nil && len(msgs) > 0 {
		parts := make([]string, 0, len(msgs))
		for _, msg := range msgs {
			m.bus.Send(msg)
			parts = append(parts, msg.Content)
		}
		return strings.Join(parts, "\n")
	}

	if err != nil {
		m.logger.Warn("meeting.minutes.failed", "meeting_id", m.id, "error", err)
	}

	var fallback string
	if reason := m.reason(); reason != "" {
		fallback = fmt.Sprintf("Meeting concluded: %s", reason)
	} else {
		fallback = "Meeting ended without synthesized minutes."
	}

	m.bus.Send(core.NewBroadcast(ModeratorName, fallback))

	return fallback
}

// concludeTool flags the active run as concluded with the given reason.
func (m *Meeting) concludeTool() tool.Tool {
	return tool.NewFunctionTool(
		ConcludeToolName,
		"End the meeting once its goal is reached. Call this only when the discussion has produced a result.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"description": "Short reason why the meeting can end",
				},
			},
			"required": []string{"reason"},
		},
		func(_ context.Context, args map[string]any) (*tool.Result, error) {
			reason, _ := args["reason"].(string)
			m.setConcluded(reason)
			return &tool.Result{Success: true, Summary: "meeting will conclude: " + reason}, nil
		},
	)
}

func (m *Meeting) begin() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.running {
		return false
	}
	m.running = true
	m.concluded = false
	m.concludeReason = ""
	return true
}

func (m *Meeting) end() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.running = false
}

func (m *Meeting) setConcluded(reason string) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.concluded = true
	m.concludeReason = reason
}

func (m *Meeting) isConcluded() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.concluded
}

func (m *Meeting) reason() string {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.concludeReason
}

func (m *Meeting) publish(kind core.EventKind, msg string) {
	ev := core.NewEvent(m.id, kind, msg)
	m.publisher.Publish(ev)
}

func checkpointPrompt() string {
	return fmt.Sprintf(
		"Checkpoint: review the discussion so far, resolve open disagreements and steer toward a decision. When the goal is reached, call %s with a short reason.",
		ConcludeToolName,
	)
}

func minutesPrompt() string {
	return "The meeting is over. Write the final minutes: key points, decisions and open items, addressed to all participants. Do not call any tool."
}
