package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyAttemptID  = "attempt_id"
	KeyBuildKind  = "build_kind"
	KeyOutcome    = "outcome"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyRepo       = "repository"
	KeyRemote     = "remote"
	KeyCommit     = "commit"
	KeyURL        = "url"
	KeyPath       = "path"
	KeyPID        = "pid"
	KeyPGID       = "pgid"
	KeySignal     = "signal"
	KeyCommand    = "command"
	KeyAttempt    = "attempt"
	KeyStrategy   = "strategy"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func AttemptID(id string) slog.Attr   { return slog.String(KeyAttemptID, id) }
func BuildKind(k string) slog.Attr    { return slog.String(KeyBuildKind, k) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Repository(r string) slog.Attr   { return slog.String(KeyRepo, r) }
func Remote(r string) slog.Attr       { return slog.String(KeyRemote, r) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func PID(pid int) slog.Attr           { return slog.Int(KeyPID, pid) }
func PGID(pgid int) slog.Attr         { return slog.Int(KeyPGID, pgid) }
func Signal(s string) slog.Attr       { return slog.String(KeySignal, s) }
func Command(c string) slog.Attr      { return slog.String(KeyCommand, c) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Strategy(name string) slog.Attr  { return slog.String(KeyStrategy, name) }

// Commit shortens full hashes to 8 characters, matching git's abbreviated display.
func Commit(sha string) slog.Attr {
	if len(sha) > 8 {
		sha = sha[:8]
	}
	return slog.String(KeyCommit, sha)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
