package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// SQLiteJournal implements Journal using SQLite. Several worker processes on
// one host may share the file; SQLite's own locking serializes writers and
// busy_timeout absorbs the contention.
type SQLiteJournal struct {
	db    *sql.DB
	mu    sync.RWMutex
	clock clockwork.Clock
}

// Open creates or opens the journal at dbPath. Use ":memory:" for an
// in-memory journal.
func Open(dbPath string, clock clockwork.Clock) (*SQLiteJournal, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, journalError("create journal directory", err).WithContext("path", dbPath).Build()
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, journalError("open journal database", err).WithContext("path", dbPath).Build()
	}
	// One connection keeps an in-memory database alive across calls.
	db.SetMaxOpenConns(1)

	j := &SQLiteJournal{db: db, clock: clock}
	if err := j.initialize(); err != nil {
		_ = db.Close()
		return nil, journalError("initialize journal schema", err).WithContext("path", dbPath).Build()
	}
	return j, nil
}

func (j *SQLiteJournal) initialize() error {
	schema := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS attempt_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL UNIQUE,
		attempt_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp_ms INTEGER NOT NULL,
		detail TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_attempt_id ON attempt_events(attempt_id);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON attempt_events(timestamp_ms);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record appends an entry stamped with the journal clock.
func (j *SQLiteJournal) Record(ctx context.Context, attemptID string, typ EventType, detail map[string]string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var detailJSON []byte
	if len(detail) > 0 {
		var err error
		detailJSON, err = json.Marshal(detail)
		if err != nil {
			return journalError("marshal entry detail", err).Build()
		}
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO attempt_events (event_id, attempt_id, event_type, timestamp_ms, detail) VALUES (?, ?, ?, ?, ?)",
		uuid.NewString(), attemptID, string(typ), j.clock.Now().UnixMilli(), detailJSON,
	)
	if err != nil {
		return journalError("append journal entry", err).
			WithContext("attempt_id", attemptID).
			WithContext("type", string(typ)).
			Build()
	}
	return nil
}

// History returns every entry of one attempt in recording order.
func (j *SQLiteJournal) History(ctx context.Context, attemptID string) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.QueryContext(ctx,
		"SELECT seq, event_id, attempt_id, event_type, timestamp_ms, detail FROM attempt_events WHERE attempt_id = ? ORDER BY seq",
		attemptID,
	)
	if err != nil {
		return nil, journalError("query journal", err).WithContext("attempt_id", attemptID).Build()
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

// Since returns entries recorded at or after since, in recording order.
func (j *SQLiteJournal) Since(ctx context.Context, since time.Time) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.QueryContext(ctx,
		"SELECT seq, event_id, attempt_id, event_type, timestamp_ms, detail FROM attempt_events WHERE timestamp_ms >= ? ORDER BY seq",
		since.UnixMilli(),
	)
	if err != nil {
		return nil, journalError("query journal", err).Build()
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var typ string
		var ts int64
		var detailJSON []byte
		if err := rows.Scan(&e.Seq, &e.EventID, &e.AttemptID, &typ, &ts, &detailJSON); err != nil {
			return nil, journalError("scan journal entry", err).Build()
		}
		e.Type = EventType(typ)
		e.Timestamp = time.UnixMilli(ts)
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, journalError("unmarshal entry detail", err).Build()
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, journalError("iterate journal rows", err).Build()
	}
	return entries, nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}

func journalError(message string, cause error) *errors.ErrorBuilder {
	return errors.WrapError(cause, errors.CategoryJournal, message)
}
