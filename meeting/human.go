package meeting

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/tool"
)

// RequestHumanIntervention suspends the caller until human input arrives via
// InjectHumanInput, the context ends, or the configured intervention timeout
// elapses. A timeout resumes with empty input rather than failing, so a
// capability built on this never deadlocks a meeting.
func (m *Meeting) RequestHumanIntervention(ctx context.Context) (string, error) {
	m.setWaiting(true)
	defer m.setWaiting(false)

	m.publish(core.EventHumanPaused, "waiting for human input")
	m.logger.Info("meeting.human.paused", "meeting_id", m.id)

	var timeout <-chan time.Time
	if m.opts.InterventionTimeout > 0 {
		t := time.NewTimer(m.opts.InterventionTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case input := <-m.humanGate:
		return input, nil
	case <-timeout:
		m.logger.Warn("meeting.human.timeout", "meeting_id", m.id, "after", m.opts.InterventionTimeout)
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// InjectHumanInput feeds human input into the running meeting. The input is
// broadcast to all participants with guidance to fold it into the discussion,
// and any cycle blocked in RequestHumanIntervention is resumed with it. Safe
// to call from another goroutine while Run is active.
func (m *Meeting) InjectHumanInput(content string) {
	guidance := fmt.Sprintf(
		"%s\n\n%s: factor this input into your next steps. Everyone else: reassess your position accordingly.",
		content, m.leader.Name(),
	)
	m.bus.Send(core.NewBroadcast(HumanSender, guidance))

	// Hand the raw input to a blocked requester if there is one. The gate
	// holds one slot so input injected slightly before the pause is not lost.
	select {
	case m.humanGate <- content:
	default:
	}

	m.publish(core.EventHumanIntervention, content)
	m.logger.Info("meeting.human.input", "meeting_id", m.id, "chars", len(content))
}

// WaitingForHuman reports whether a cycle is currently blocked on human input.
func (m *Meeting) WaitingForHuman() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.waiting
}

func (m *Meeting) setWaiting(v bool) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.waiting = v
}

// HumanInputTool exposes the intervention gate as a capability, letting any
// participant explicitly pause the meeting and ask the human operator a
// question.
func (m *Meeting) HumanInputTool() tool.Tool {
	return tool.NewFunctionTool(
		"ask_human",
		"Pause the meeting and ask the human operator a question. Use sparingly, only when the discussion cannot proceed without external input.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{
					"type":        "string",
					"description": "The question to put to the human operator",
				},
			},
			"required": []string{"question"},
		},
		func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			question, _ := args["question"].(string)
			m.logger.Info("meeting.human.question", "meeting_id", m.id, "question", question)

			answer, err := m.RequestHumanIntervention(ctx)
			if err != nil {
				return nil, err
			}
			if answer == "" {
				return &tool.Result{Success: true, Summary: "no human input arrived; proceed with your best judgment"}, nil
			}
			return &tool.Result{Success: true, Summary: answer, Data: answer}, nil
		},
	)
}
