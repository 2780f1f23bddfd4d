package agent

import (
	"regexp"
	"strings"

	"github.com/hupe1980/roundtable/core"
)

// Classification is the explicit routing decision derived from reasoning
// output. Target is set for targeted kinds (direct, private, question).
// Matched reports whether any heuristic fired; callers log the fallthrough
// to the broadcast default instead of defaulting silently.
type Classification struct {
	Kind    core.MessageKind
	Target  string
	Matched bool
}

var mentionRe = regexp.MustCompile(`@([A-Za-z][\w-]*)`)

var agreementPhrases = []string{
	"i agree", "agreed", "i concur", "fully support", "sounds right", "i'm aligned",
}

var disagreementPhrases = []string{
	"disagree", "i don't agree", "i do not agree", "not convinced", "i object", "i'd push back",
}

// Classify maps content onto a recipient + kind using ordered heuristics:
//
//  1. private phrasing ("private", "discuss privately") naming a participant
//     -> private to that participant
//  2. an @mention, or question phrasing naming a participant -> question to
//     that participant
//  3. agreement / disagreement keywords -> broadcast of that kind
//  4. otherwise -> broadcast (Matched false)
//
// Participants are the other registered actor names; matching is
// case-insensitive.
func Classify(content string, participants []string) Classification {
	lower := strings.ToLower(content)

	if strings.Contains(lower, "privately") || strings.Contains(lower, "private") {
		if target := findParticipant(lower, participants); target != "" {
			return Classification{Kind: core.KindPrivate, Target: target, Matched: true}
		}
	}

	if m := mentionRe.FindStringSubmatch(content); m != nil {
		if target := matchParticipant(m[1], participants); target != "" {
			return Classification{Kind: core.KindQuestion, Target: target, Matched: true}
		}
	}
	if strings.Contains(content, "?") {
		if target := findParticipant(lower, participants); target != "" {
			return Classification{Kind: core.KindQuestion, Target: target, Matched: true}
		}
	}

	// Disagreement first: phrases like "disagreed" would otherwise satisfy
	// the agreement substrings.
	for _, phrase := range disagreementPhrases {
		if strings.Contains(lower, phrase) {
			return Classification{Kind: core.KindDisagreement, Target: core.BroadcastRecipient, Matched: true}
		}
	}
	for _, phrase := range agreementPhrases {
		if strings.Contains(lower, phrase) {
			return Classification{Kind: core.KindAgreement, Target: core.BroadcastRecipient, Matched: true}
		}
	}

	return Classification{Kind: core.KindBroadcast, Target: core.BroadcastRecipient}
}

// findParticipant returns the first participant whose name occurs in the
// lower-cased content, preserving participant order for determinism.
func findParticipant(lower string, participants []string) string {
	best := ""
	bestIdx := -1
	for _, p := range participants {
		if idx := strings.Index(lower, strings.ToLower(p)); idx >= 0 {
			if bestIdx == -1 || idx < bestIdx {
				best, bestIdx = p, idx
			}
		}
	}
	return best
}

// matchParticipant resolves a bare mention against the participant list.
func matchParticipant(name string, participants []string) string {
	for _, p := range participants {
		if strings.EqualFold(p, name) {
			return p
		}
	}
	return ""
}
