package meeting

import (
	"time"

	"github.com/hupe1980/roundtable/core"
)

// Outcome is the terminal state of a meeting run.
type Outcome string

const (
	// OutcomeConcluded means the leader invoked the conclude capability.
	OutcomeConcluded Outcome = "concluded"
	// OutcomeQuiescent means a full turn produced no new messages.
	OutcomeQuiescent Outcome = "quiescent"
	// OutcomeExhausted means the turn or duration bound was reached.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeTerminated means the external termination predicate fired.
	OutcomeTerminated Outcome = "terminated"
	// OutcomeError means an error escaped the scheduling loop; the summary
	// still carries the partial transcript and a best-effort synthesis.
	OutcomeError Outcome = "error"
)

// ExpertStats counts the messages one participant produced by category.
type ExpertStats struct {
	Broadcast int `json:"broadcast"`
	Private   int `json:"private"`
	Question  int `json:"question"`
	Total     int `json:"total"`
}

// Summary is the structured result of a meeting run: statistics, the full
// ordered transcript in wire form, and the synthesized minutes.
type Summary struct {
	MeetingID      string                   `json:"meeting_id"`
	Outcome        Outcome                  `json:"outcome"`
	ConcludeReason string                   `json:"conclude_reason,omitempty"`
	Turns          int                      `json:"turns"`
	Elapsed        time.Duration            `json:"elapsed"`
	Minutes        string                   `json:"minutes"`
	Stats          map[string]ExpertStats   `json:"stats"`
	KindCounts     map[core.MessageKind]int `json:"kind_counts"`
	Transcript     []core.Record            `json:"transcript"`
}

// buildSummary derives statistics from the transcript.
func buildSummary(id string, outcome Outcome, reason string, turns int, elapsed time.Duration, minutes string, transcript []core.Message) *Summary {
	stats := make(map[string]ExpertStats)
	kinds := make(map[core.MessageKind]int)
	records := make([]core.Record, 0, len(transcript))

	for _, msg := range transcript {
		records = append(records, msg.Record())
		kinds[msg.Kind]++

		s := stats[msg.Sender]
		s.Total++
		switch {
		case msg.IsBroadcast():
			s.Broadcast++
		case msg.Kind == core.KindPrivate:
			s.Private++
		case msg.Kind == core.KindQuestion:
			s.Question++
		}
		stats[msg.Sender] = s
	}

	return &Summary{
		MeetingID:      id,
		Outcome:        outcome,
		ConcludeReason: reason,
		Turns:          turns,
		Elapsed:        elapsed,
		Minutes:        minutes,
		Stats:          stats,
		KindCounts:     kinds,
		Transcript:     records,
	}
}
