// Package logscan recognises infrastructure failures in build logs.
package logscan

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// RegexPrefix marks a known-error entry as a regular expression.
const RegexPrefix = "re:"

// KnownInfrastructureError reports a log line matching a known flaky-environment signature.
type KnownInfrastructureError struct {
	Path    string
	Line    string
	Pattern string
}

func (e *KnownInfrastructureError) Error() string {
	return fmt.Sprintf("known infrastructure error in %s: %s", e.Path, e.Line)
}

type matcher struct {
	raw    string
	needle string
	re     *regexp.Regexp
}

func (m matcher) match(line string) bool {
	if m.re != nil {
		return m.re.MatchString(line)
	}
	return strings.Contains(strings.ToLower(line), m.needle)
}

// Classifier scans logs against a fixed pattern list.
type Classifier struct {
	matchers []matcher
}

// New compiles patterns. Plain entries match as case-insensitive substrings.
func New(patterns []string) (*Classifier, error) {
	c := &Classifier{}
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if expr, ok := strings.CutPrefix(p, RegexPrefix); ok {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, errors.ConfigError("invalid known_errors pattern").
					WithCause(err).
					WithContext("pattern", p).
					Build()
			}
			c.matchers = append(c.matchers, matcher{raw: p, re: re})
			continue
		}
		c.matchers = append(c.matchers, matcher{raw: p, needle: strings.ToLower(p)})
	}
	return c, nil
}

// Scan returns a *KnownInfrastructureError for the first matching line, nil
// when nothing matches, or an I/O error. A missing log is not a match.
func (c *Classifier) Scan(logPath string) error {
	if len(c.matchers) == 0 {
		return nil
	}
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.FileSystemError("open build log").WithCause(err).WithContext("path", logPath).Build()
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		for _, m := range c.matchers {
			if m.match(line) {
				return &KnownInfrastructureError{Path: logPath, Line: line, Pattern: m.raw}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return errors.FileSystemError("read build log").WithCause(err).WithContext("path", logPath).Build()
	}
	return nil
}
