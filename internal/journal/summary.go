package journal

import (
	"sort"
	"time"
)

// Summary is a read model for one attempt, folded from its entries.
type Summary struct {
	AttemptID  string        `json:"attempt_id"`
	Status     string        `json:"status"` // "running" until finished, then the outcome
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Retries    int           `json:"retries"` // ref-not-found rounds
	Killed     string        `json:"killed,omitempty"`
	Error      string        `json:"error,omitempty"`
}

const statusRunning = "running"

// Summarize folds entries into one Summary per attempt, newest first.
func Summarize(entries []Entry) []Summary {
	byID := map[string]*Summary{}
	for _, e := range entries {
		if e.AttemptID == "" {
			continue
		}
		s, ok := byID[e.AttemptID]
		if !ok {
			s = &Summary{AttemptID: e.AttemptID, Status: statusRunning, StartedAt: e.Timestamp}
			byID[e.AttemptID] = s
		}
		apply(s, e)
	}

	out := make([]Summary, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].AttemptID > out[j].AttemptID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

func apply(s *Summary, e Entry) {
	switch e.Type {
	case EventStarted:
		s.StartedAt = e.Timestamp
	case EventAbortedByServer:
		s.Status = "aborted"
		s.finish(e.Timestamp)
	case EventRefNotFound:
		s.Retries++
	case EventExecuted:
		if k := e.Detail["killed"]; k != "" {
			s.Killed = k
		}
	case EventFinished:
		if o := e.Detail["outcome"]; o != "" {
			s.Status = o
		}
		if msg := e.Detail["error"]; msg != "" {
			s.Error = msg
		}
		s.finish(e.Timestamp)
	}
}

func (s *Summary) finish(at time.Time) {
	t := at
	s.FinishedAt = &t
	s.Duration = at.Sub(s.StartedAt)
}
