// Package journal keeps a local, append-only history of build attempts.
//
// Every stage transition of an attempt is recorded as an Entry. The journal
// is diagnostic: the build master remains the source of truth, and a journal
// write failure never changes an attempt's outcome.
package journal

import (
	"context"
	"time"
)

// EventType names a stage transition.
type EventType string

const (
	EventStarted         EventType = "started"
	EventAbortedByServer EventType = "aborted_by_server"
	EventSynchronized    EventType = "synchronized"
	EventRefNotFound     EventType = "ref_not_found"
	EventExecuted        EventType = "executed"
	EventArtifacts       EventType = "artifacts_collected"
	EventFinished        EventType = "finished"
)

// Entry is one recorded transition.
type Entry struct {
	Seq       int64             `json:"seq"`
	EventID   string            `json:"event_id"`
	AttemptID string            `json:"attempt_id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Journal persists and retrieves entries.
type Journal interface {
	Record(ctx context.Context, attemptID string, typ EventType, detail map[string]string) error
	History(ctx context.Context, attemptID string) ([]Entry, error)
	Since(ctx context.Context, since time.Time) ([]Entry, error)
	Close() error
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, string, EventType, map[string]string) error { return nil }
func (Nop) History(context.Context, string) ([]Entry, error)                   { return nil, nil }
func (Nop) Since(context.Context, time.Time) ([]Entry, error)                  { return nil, nil }
func (Nop) Close() error                                                       { return nil }
