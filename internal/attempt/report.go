package attempt

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// PanicError is a recovered panic from inside an attempt.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// errorReport renders the error.txt body: the message, the classified
// context when present, the wrapped causes and a stack trace. A recovered
// panic reports the panicking goroutine; anything else reports stack, the
// goroutine that observed the error.
func errorReport(err error, stack []byte) string {
	var b strings.Builder
	b.WriteString(err.Error())
	b.WriteString("\n")

	if ce, ok := errors.AsClassified(err); ok {
		fmt.Fprintf(&b, "\ncategory: %s\n", ce.Category())
		ctx := ce.Context()
		keys := make([]string, 0, len(ctx))
		for k := range ctx {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %v\n", k, ctx[k])
		}
	}

	first := true
	for cause := stderrors.Unwrap(err); cause != nil; cause = stderrors.Unwrap(cause) {
		if first {
			b.WriteString("\ncaused by:\n")
			first = false
		}
		fmt.Fprintf(&b, "  %s\n", cause.Error())
	}

	var pe *PanicError
	if stderrors.As(err, &pe) {
		stack = pe.Stack
	}
	if len(stack) > 0 {
		b.WriteString("\nstack:\n")
		b.Write(stack)
	}
	return b.String()
}
