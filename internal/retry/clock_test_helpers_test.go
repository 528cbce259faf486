package retry

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// recordingClock fires every After immediately and remembers the requested durations.
type recordingClock struct {
	*clockwork.FakeClock
	mu     sync.Mutex
	sleeps []time.Duration
}

func newRecordingClock() *recordingClock {
	return &recordingClock{FakeClock: clockwork.NewFakeClock()}
}

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func (c *recordingClock) Sleep(d time.Duration) { <-c.After(d) }

func (c *recordingClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
