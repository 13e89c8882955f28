package vm

import (
	"fmt"
	"strings"

	"github.com/atl-lang/atlas-sub003/pkg/diag"
)

// StackFrame is a single entry in a RuntimeError's stack trace: the
// function name and the source location active in that frame when the
// error propagated through it.
type StackFrame struct {
	Name string
	Span diag.Span
	IP   int
}

// RuntimeError wraps a *diag.Diagnostic with the VM call stack active at
// the moment it was raised. The interpreter raises the identical
// diagnostic (same Code and Message) for the same program, without a
// StackTrace of this shape — parity is checked on Code/Message, not on
// stack trace contents.
type RuntimeError struct {
	Diag       *diag.Diagnostic
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Diag.Error())
	if len(e.StackTrace) > 0 {
		b.WriteString("\n\nstack trace:")
		for i := len(e.StackTrace) - 1; i >= 0; i-- {
			f := e.StackTrace[i]
			b.WriteString(fmt.Sprintf("\n  at %s", f.Name))
			if f.Span.Line > 0 {
				b.WriteString(fmt.Sprintf(" [%s]", f.Span.String()))
			}
			b.WriteString(fmt.Sprintf(" (ip %d)", f.IP))
		}
	}
	return b.String()
}

// Unwrap lets errors.As/errors.Is reach the underlying Diagnostic.
func (e *RuntimeError) Unwrap() error { return e.Diag }

func newRuntimeError(d *diag.Diagnostic, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Diag: d, StackTrace: stack}
}
