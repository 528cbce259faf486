package process

import (
	"strings"

	"github.com/prometheus/procfs"
)

// Info is one entry of a process group snapshot.
type Info struct {
	PID     int
	PGID    int
	State   string
	Cmdline string
}

// Zombie reports whether the process has exited and only awaits reaping.
func (i Info) Zombie() bool { return i.State == "Z" }

// Table inspects the host process table.
type Table interface {
	// Lookup returns the process with pid, or false when it does not exist.
	Lookup(pid int) (Info, bool)
	// Group returns the live (non-zombie) members of process group pgid.
	Group(pgid int) ([]Info, error)
}

// ProcTable reads /proc through procfs.
type ProcTable struct {
	fs procfs.FS
}

// NewProcTable opens the default /proc mount.
func NewProcTable() (*ProcTable, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}
	return &ProcTable{fs: fs}, nil
}

func (t *ProcTable) Lookup(pid int) (Info, bool) {
	p, err := t.fs.Proc(pid)
	if err != nil {
		return Info{}, false
	}
	return describe(p)
}

func (t *ProcTable) Group(pgid int) ([]Info, error) {
	procs, err := t.fs.AllProcs()
	if err != nil {
		return nil, err
	}
	var members []Info
	for _, p := range procs {
		info, ok := describe(p)
		// processes exit while we walk /proc
		if !ok || info.PGID != pgid || info.Zombie() {
			continue
		}
		members = append(members, info)
	}
	return members, nil
}

func describe(p procfs.Proc) (Info, bool) {
	stat, err := p.Stat()
	if err != nil {
		return Info{}, false
	}
	line := ""
	if args, err := p.CmdLine(); err == nil {
		line = strings.Join(args, " ")
	}
	if line == "" {
		line = "[" + stat.Comm + "]"
	}
	return Info{PID: stat.PID, PGID: stat.PGRP, State: stat.State, Cmdline: line}, true
}
