package meeting

// TurnPolicy decides who speaks within one turn. The orchestrator invokes
// non-leader experts per PeerOrder, strictly before asking LeaderTurn whether
// the leader should be scheduled. Swapping the policy (round-robin, priority
// queue) leaves the rest of the loop untouched.
type TurnPolicy interface {
	// PeerOrder returns the non-leader participants in speaking order.
	PeerOrder(participants []string, leader string) []string

	// LeaderTurn reports whether the leader speaks this turn. pending is
	// true when the leader's mailbox is non-empty.
	LeaderTurn(turn, maxTurns int, pending bool) bool

	// Checkpoint reports whether this turn is a leader checkpoint: even with
	// an empty mailbox the leader is prompted for an interim status.
	Checkpoint(turn int) bool
}

// LeaderLastPolicy is the default policy: peers speak in registration order,
// the leader afterwards whenever it has pending messages, on every
// checkpoint turn, and unconditionally within two turns of the maximum.
type LeaderLastPolicy struct {
	// CheckpointInterval spaces the interim-status turns; a value n makes
	// every turn with turn mod n == n-1 a checkpoint. Defaults to 3.
	CheckpointInterval int
}

func (p LeaderLastPolicy) interval() int {
	if p.CheckpointInterval > 0 {
		return p.CheckpointInterval
	}
	return 3
}

// PeerOrder implements TurnPolicy.
func (p LeaderLastPolicy) PeerOrder(participants []string, leader string) []string {
	out := make([]string, 0, len(participants))
	for _, id := range participants {
		if id != leader {
			out = append(out, id)
		}
	}
	return out
}

// LeaderTurn implements TurnPolicy.
func (p LeaderLastPolicy) LeaderTurn(turn, maxTurns int, pending bool) bool {
	return pending || p.Checkpoint(turn) || turn >= maxTurns-2
}

// Checkpoint implements TurnPolicy.
func (p LeaderLastPolicy) Checkpoint(turn int) bool {
	n := p.interval()
	return turn%n == n-1
}
