package archive

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/roundtable/meeting"
)

// Hit is one search result over archived meetings.
type Hit struct {
	MeetingID string
	Outcome   meeting.Outcome
	Minutes   string
	Score     float64
	StoredAt  time.Time
}

// Archive persists completed meeting summaries for later recall.
type Archive interface {
	Save(summary *meeting.Summary) error
	Get(meetingID string) (*meeting.Summary, error)
	List() []string
	Search(query string, limit int) ([]Hit, error)
}

type entry struct {
	summary  *meeting.Summary
	storedAt time.Time
}

// InMemoryArchive is a process-local Archive. Search is a linear scan with
// case-insensitive substring matching over minutes and transcript content,
// scoring minutes hits above transcript-only hits. Suitable for tests and
// single-process deployments; swap for a persistent index when meetings must
// survive restarts.
//
// Concurrency: protected by RWMutex.
type InMemoryArchive struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

// NewInMemoryArchive creates an empty archive.
func NewInMemoryArchive() *InMemoryArchive {
	return &InMemoryArchive{
		entries: make(map[string]entry),
	}
}

// Save stores a summary under its meeting id, replacing any previous version.
func (a *InMemoryArchive) Save(summary *meeting.Summary) error {
	if summary == nil || summary.MeetingID == "" {
		return fmt.Errorf("archive: summary without meeting id")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.entries[summary.MeetingID]; !exists {
		a.order = append(a.order, summary.MeetingID)
	}
	a.entries[summary.MeetingID] = entry{summary: summary, storedAt: time.Now().UTC()}

	return nil
}

// Get returns the archived summary for a meeting id.
func (a *InMemoryArchive) Get(meetingID string) (*meeting.Summary, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	e, exists := a.entries[meetingID]
	if !exists {
		return nil, fmt.Errorf("archive: meeting %s not found", meetingID)
	}
	return e.summary, nil
}

// List returns the archived meeting ids in insertion order.
func (a *InMemoryArchive) List() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Search matches the query against minutes and transcript content. An empty
// query matches everything. Results are ordered by score, most recent first
// within equal scores, up to limit.
func (a *InMemoryArchive) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	q := strings.ToLower(query)

	a.mu.RLock()
	defer a.mu.RUnlock()

	hits := make([]Hit, 0, limit)
	for _, id := range a.order {
		e := a.entries[id]
		score := score(e.summary, q)
		if score == 0 {
			continue
		}
		hits = append(hits, Hit{
			MeetingID: e.summary.MeetingID,
			Outcome:   e.summary.Outcome,
			Minutes:   e.summary.Minutes,
			Score:     score,
			StoredAt:  e.storedAt,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].StoredAt.After(hits[j].StoredAt)
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Delete removes an archived meeting.
func (a *InMemoryArchive) Delete(meetingID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.entries[meetingID]; !exists {
		return fmt.Errorf("archive: meeting %s not found", meetingID)
	}
	delete(a.entries, meetingID)
	for i, id := range a.order {
		if id == meetingID {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return nil
}

func score(s *meeting.Summary, query string) float64 {
	if query == "" {
		return 0.5
	}
	if strings.Contains(strings.ToLower(s.Minutes), query) {
		return 1.0
	}
	for _, rec := range s.Transcript {
		if strings.Contains(strings.ToLower(rec.Content), query) {
			return 0.5
		}
	}
	return 0
}
