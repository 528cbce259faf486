// Package process spawns build commands in their own process group and
// tears the whole group down afterwards.
package process

import (
	"sort"

	"github.com/kballard/go-shellquote"
)

// Command is a structured invocation. Args are handed to exec as-is and Env
// replaces the inherited environment entirely.
type Command struct {
	Args []string
	Env  map[string]string
	Dir  string
}

// Environ renders Env as a sorted KEY=VALUE list. The result is never nil so
// that exec does not fall back to the parent environment.
func (c Command) Environ() []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+c.Env[k])
	}
	return env
}

// String renders the argument vector as a copy-pasteable shell line.
func (c Command) String() string {
	return shellquote.Join(c.Args...)
}
