package process

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

// instantClock fires every After immediately.
type instantClock struct {
	*clockwork.FakeClock
	mu     sync.Mutex
	sleeps []time.Duration
}

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

// fakeTable is a process table whose members react to signals per their flags.
type fakeTable struct {
	procs    map[int]*fakeProc
	signals  []string
	trapTerm bool
}

type fakeProc struct {
	Info
	alive bool
}

func newFakeTable(pgid int, cmdlines ...string) *fakeTable {
	t := &fakeTable{procs: make(map[int]*fakeProc)}
	for i, c := range cmdlines {
		pid := pgid + i
		t.procs[pid] = &fakeProc{Info: Info{PID: pid, PGID: pgid, State: "S", Cmdline: c}, alive: true}
	}
	return t
}

func (t *fakeTable) Lookup(pid int) (Info, bool) {
	p, ok := t.procs[pid]
	if !ok || !p.alive {
		return Info{}, false
	}
	return p.Info, true
}

func (t *fakeTable) Group(pgid int) ([]Info, error) {
	var out []Info
	for pid := pgid; pid < pgid+len(t.procs); pid++ {
		if p, ok := t.procs[pid]; ok && p.alive && p.PGID == pgid && !p.Zombie() {
			out = append(out, p.Info)
		}
	}
	return out, nil
}

func (t *fakeTable) signal(pid int, sig unix.Signal) error {
	t.signals = append(t.signals, unix.SignalName(sig))
	targets := []*fakeProc{}
	if pid < 0 {
		for _, p := range t.procs {
			if p.PGID == -pid && p.alive {
				targets = append(targets, p)
			}
		}
	} else if p, ok := t.procs[pid]; ok && p.alive {
		targets = append(targets, p)
	}
	if len(targets) == 0 {
		return unix.ESRCH
	}
	for _, p := range targets {
		if sig == unix.SIGKILL || !t.trapTerm {
			p.alive = false
		}
	}
	return nil
}

func fakeRunner(table *fakeTable) (*Runner, *instantClock) {
	clock := &instantClock{FakeClock: clockwork.NewFakeClock()}
	return &Runner{
		Clock:           clock,
		Table:           table,
		Signal:          table.signal,
		KillWait:        10 * time.Second,
		PollInterval:    time.Second,
		HeadPoll:        100 * time.Millisecond,
		EscalationPause: time.Second,
	}, clock
}

func TestKillProtocolTermSuffices(t *testing.T) {
	table := newFakeTable(100, "bash -c run", "ruby spec")
	var hooked []int
	r, _ := fakeRunner(table)
	r.Hook = HookFunc(func(_ context.Context, p Info) { hooked = append(hooked, p.PID) })

	killed := r.KillProcessGroup(context.Background(), 100, unix.SIGTERM)

	assert.Equal(t, []string{"bash -c run", "ruby spec"}, killed)
	assert.Equal(t, []int{100, 101}, hooked)
	assert.Equal(t, []string{"SIGTERM", "SIGTERM"}, table.signals)
}

func TestKillProtocolEscalatesToKill(t *testing.T) {
	table := newFakeTable(200, "bash -c run", "java -jar trap.jar")
	table.trapTerm = true
	r, clock := fakeRunner(table)

	killed := r.KillProcessGroup(context.Background(), 200, unix.SIGTERM)

	assert.Equal(t, []string{"bash -c run", "java -jar trap.jar"}, killed)
	// head: TERM then KILL; group: TERM round then KILL round
	assert.Equal(t, []string{"SIGTERM", "SIGKILL", "SIGTERM", "SIGKILL"}, table.signals)

	var total time.Duration
	for _, d := range clock.sleeps {
		total += d
	}
	// bounded: two head waits plus one group wait plus one pause, each at most 10s
	assert.LessOrEqual(t, total, 31*time.Second)
}

func TestKillProtocolNothingToDo(t *testing.T) {
	table := newFakeTable(300)
	r, _ := fakeRunner(table)

	assert.Empty(t, r.KillProcessGroup(context.Background(), 300, unix.SIGTERM))
	assert.Empty(t, table.signals)
	assert.Nil(t, r.KillProcessGroup(context.Background(), 0, unix.SIGTERM))
}

func TestKillProtocolSkipsZombieHead(t *testing.T) {
	table := newFakeTable(400, "defunct", "sleep 300")
	table.procs[400].State = "Z"
	r, _ := fakeRunner(table)

	killed := r.KillProcessGroup(context.Background(), 400, unix.SIGTERM)
	assert.Equal(t, []string{"sleep 300"}, killed)
	assert.Equal(t, []string{"SIGTERM"}, table.signals)
}

func TestKillProtocolLeavesReusedPIDAlone(t *testing.T) {
	table := newFakeTable(500, "sshd: unrelated")
	table.procs[500].PGID = 900
	r, _ := fakeRunner(table)

	killed := r.KillProcessGroup(context.Background(), 500, unix.SIGTERM)

	assert.Empty(t, killed)
	assert.Empty(t, table.signals)
	assert.True(t, table.procs[500].alive)
}

func TestKillProtocolStillSweepsGroupAfterHeadReused(t *testing.T) {
	table := newFakeTable(600, "sshd: unrelated", "ruby orphan")
	table.procs[600].PGID = 900
	r, _ := fakeRunner(table)

	killed := r.KillProcessGroup(context.Background(), 600, unix.SIGTERM)

	assert.Equal(t, []string{"ruby orphan"}, killed)
	assert.Equal(t, []string{"SIGTERM"}, table.signals)
	assert.True(t, table.procs[600].alive)
	assert.False(t, table.procs[601].alive)
}
