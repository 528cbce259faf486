package process

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/retry"
)

// KillProcessGroup stops the process pid and every member of the process
// group it leads. Each process is passed to the pre-terminate hook before it
// is signalled. The group is sent sig first and SIGKILL when members survive
// the wait. The returned command lines name what had to be killed; an empty
// result means everything had already exited.
func (r *Runner) KillProcessGroup(ctx context.Context, pid int, sig unix.Signal) []string {
	if pid <= 0 {
		return nil
	}
	var killed []string
	seen := make(map[int]bool)
	record := func(p Info) {
		if seen[p.PID] {
			return
		}
		seen[p.PID] = true
		r.runHook(ctx, p)
		killed = append(killed, p.Cmdline)
	}

	// A pid that no longer leads its group has been reused by an unrelated process.
	if head, ok := r.Table.Lookup(pid); ok && head.PGID == pid && !head.Zombie() {
		record(head)
		r.stopHead(ctx, pid, sig)
	}

	signal := sig
	for round := 1; round <= maxGroupRounds; round++ {
		members, err := r.Table.Group(pid)
		if err != nil {
			slog.Warn("Cannot enumerate process group", logfields.PGID(pid), logfields.Error(err))
			return killed
		}
		if len(members) == 0 {
			return killed
		}
		for _, m := range members {
			record(m)
		}
		slog.Info("Signalling process group",
			logfields.PGID(pid), logfields.Signal(unix.SignalName(signal)), slog.Int("members", len(members)))
		r.send(-pid, signal)
		if r.waitGroupEmpty(ctx, pid) {
			return killed
		}
		if ctx.Err() != nil {
			return killed
		}
		if err := retry.Sleep(ctx, r.Clock, r.EscalationPause); err != nil {
			return killed
		}
		signal = unix.SIGKILL
	}

	if members, err := r.Table.Group(pid); err == nil && len(members) > 0 {
		slog.Error("Process group survived SIGKILL", logfields.PGID(pid), slog.Int("members", len(members)))
	}
	return killed
}

// stopHead signals the leader and escalates to SIGKILL when it outlives KillWait.
func (r *Runner) stopHead(ctx context.Context, pid int, sig unix.Signal) {
	if !r.send(pid, sig) {
		return
	}
	if r.waitHeadGone(ctx, pid) {
		return
	}
	slog.Warn("Process ignored signal, escalating",
		logfields.PID(pid), logfields.Signal(unix.SignalName(sig)))
	if !r.send(pid, unix.SIGKILL) {
		return
	}
	r.waitHeadGone(ctx, pid)
}

// send delivers a signal; false means the target is already gone.
func (r *Runner) send(pid int, sig unix.Signal) bool {
	err := r.Signal(pid, sig)
	switch {
	case err == nil:
		return true
	case errors.Is(err, unix.ESRCH), errors.Is(err, unix.ECHILD):
		return false
	default:
		slog.Warn("Signal delivery failed",
			logfields.PID(pid), logfields.Signal(unix.SignalName(sig)), logfields.Error(err))
		return true
	}
}

func (r *Runner) waitHeadGone(ctx context.Context, pid int) bool {
	return r.poll(ctx, r.HeadPoll, func() bool {
		p, ok := r.Table.Lookup(pid)
		return !ok || p.Zombie()
	})
}

func (r *Runner) waitGroupEmpty(ctx context.Context, pgid int) bool {
	return r.poll(ctx, r.PollInterval, func() bool {
		members, err := r.Table.Group(pgid)
		return err == nil && len(members) == 0
	})
}

// poll evaluates done every interval, at most KillWait/interval times.
func (r *Runner) poll(ctx context.Context, interval time.Duration, done func() bool) bool {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	checks := int(r.KillWait/interval) + 1
	for i := 0; i < checks; i++ {
		if done() {
			return true
		}
		if i == checks-1 {
			break
		}
		if err := retry.Sleep(ctx, r.Clock, interval); err != nil {
			return false
		}
	}
	return false
}

func (r *Runner) runHook(ctx context.Context, p Info) {
	if r.Hook == nil {
		return
	}
	start := time.Now()
	r.Hook.BeforeTerminate(ctx, p)
	slog.Debug("Pre-terminate hook finished", logfields.PID(p.PID), logfields.DurationMS(float64(time.Since(start).Milliseconds())))
}
