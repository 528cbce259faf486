// Package job holds the build job handed to a worker and the outcomes it can report.
package job

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// Outcome is the terminal state reported to the build master. Exactly one is
// reported per attempt.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeErrored Outcome = "errored"
	OutcomeAborted Outcome = "aborted"
)

// OutcomeFor maps a build result onto passed/failed.
func OutcomeFor(success bool) Outcome {
	if success {
		return OutcomePassed
	}
	return OutcomeFailed
}

// BuildJob describes one build attempt. It is immutable once decoded.
type BuildJob struct {
	AttemptID   string
	CommitRef   string
	Branch      string
	RepoName    string
	RepoURL     string
	RemoteName  string
	TestCommand string
	BuildKind   string
	TestFiles   []string
	Timeout     time.Duration
	Options     map[string]string
	Env         string
}

// payload is the wire shape pushed by the queue collaborator.
type payload struct {
	BuildAttemptID flexString     `json:"build_attempt_id"`
	BuildRef       string         `json:"build_ref"`
	BuildKind      string         `json:"build_kind"`
	Branch         string         `json:"branch"`
	TestFiles      []string       `json:"test_files"`
	RepoName       string         `json:"repo_name"`
	TestCommand    string         `json:"test_command"`
	RemoteName     string         `json:"remote_name"`
	RepoURL        string         `json:"repo_url"`
	Timeout        *float64       `json:"timeout"`
	Options        map[string]any `json:"options"`
	KochikuEnv     string         `json:"kochiku_env"`
}

// flexString accepts either a JSON string or number; attempt ids arrive as both.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = flexString(n.String())
	return nil
}

// Decode parses a JSON payload. Timeout is given in (possibly fractional)
// seconds; a missing or non-positive timeout leaves Timeout zero so the
// executor applies its default.
func Decode(data []byte) (BuildJob, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return BuildJob{}, errors.WrapError(err, errors.CategoryValidation, "invalid job payload").Build()
	}

	j := BuildJob{
		AttemptID:   string(p.BuildAttemptID),
		CommitRef:   p.BuildRef,
		Branch:      p.Branch,
		RepoName:    p.RepoName,
		RepoURL:     p.RepoURL,
		RemoteName:  p.RemoteName,
		TestCommand: p.TestCommand,
		BuildKind:   p.BuildKind,
		TestFiles:   append([]string(nil), p.TestFiles...),
		Options:     make(map[string]string, len(p.Options)),
		Env:         p.KochikuEnv,
	}
	if p.Timeout != nil && *p.Timeout > 0 && !math.IsInf(*p.Timeout, 0) {
		j.Timeout = secondsToDuration(*p.Timeout)
	}
	for k, v := range p.Options {
		j.Options[k] = optionString(v)
	}
	if j.RemoteName == "" {
		j.RemoteName = "origin"
	}

	if err := j.Validate(); err != nil {
		return BuildJob{}, err
	}
	return j, nil
}

// secondsToDuration saturates at the largest Duration instead of overflowing.
func secondsToDuration(s float64) time.Duration {
	ns := s * float64(time.Second)
	if ns >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

func optionString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// Validate checks the fields every strategy relies on.
func (j BuildJob) Validate() error {
	missing := func(field string) error {
		return errors.ValidationError("job payload missing required field").WithContext("field", field).Build()
	}
	switch {
	case j.AttemptID == "":
		return missing("build_attempt_id")
	case j.CommitRef == "":
		return missing("build_ref")
	case j.RepoURL == "":
		return missing("repo_url")
	case j.TestCommand == "":
		return missing("test_command")
	}
	return nil
}

// Encode renders j in the wire shape Decode accepts.
func Encode(j BuildJob) ([]byte, error) {
	p := payload{
		BuildAttemptID: flexString(j.AttemptID),
		BuildRef:       j.CommitRef,
		BuildKind:      j.BuildKind,
		Branch:         j.Branch,
		TestFiles:      j.TestFiles,
		RepoName:       j.RepoName,
		TestCommand:    j.TestCommand,
		RemoteName:     j.RemoteName,
		RepoURL:        j.RepoURL,
		KochikuEnv:     j.Env,
	}
	if j.Timeout > 0 {
		secs := j.Timeout.Seconds()
		p.Timeout = &secs
	}
	if len(j.Options) > 0 {
		p.Options = make(map[string]any, len(j.Options))
		for k, v := range j.Options {
			p.Options[k] = v
		}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "encode job payload").Build()
	}
	return data, nil
}
