// Package diag implements Atlas's diagnostic format: versioned, coded,
// span-carrying errors and warnings shared by the lexer, parser, compiler,
// interpreter and VM so that both execution engines report identical text
// for identical failures.
package diag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-stack/stack"
)

// Level distinguishes a hard failure from an advisory diagnostic.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Code families, per the diagnostics format contract:
//   AT0xxx type/runtime, AT1xxx syntax, AT2xxx warnings,
//   AT3xxx semantic/trait, AT4xxx other runtime, AT5xxx module.
const (
	TypeError          = "AT0001"
	UndefinedSymbol    = "AT0002"
	DivideByZero       = "AT0005"
	IndexOutOfBounds   = "AT0006"
	NaNOrInfinity      = "AT0007"
	SyntaxError        = "AT1001"
	UnreachableCode    = "AT2001"
	ImmutabilityError  = "AT3003"
	OwnershipViolation = "AT3004"
	ArityMismatch      = "AT0003"
	NonCallable        = "AT0004"
	SandboxDenied      = "AT4001"
	QuotaExceeded      = "AT4002"
	UnknownOpcode      = "AT4003"
	StackUnderflow     = "AT4004"
	ModuleError        = "AT5001"
)

// Span is a source location: file, 1-based line and column, and a length in
// bytes. A zero Span (Line == 0) means "no source location" (internal/
// synthesized diagnostics).
type Span struct {
	File   string
	Line   int
	Column int
	Length int
}

func (s Span) String() string {
	if s.Line == 0 {
		return "<unknown>"
	}
	if s.File == "" {
		return fmt.Sprintf("%d:%d", s.Line, s.Column)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

// RelatedLocation attaches a secondary span and note to a diagnostic, e.g.
// pointing back at the declaration site of a moved binding.
type RelatedLocation struct {
	Span Span
	Note string
}

// DebugTraceEnabled gates internal Go-level call-stack capture. It is off
// by default and only code that sets it directly turns it on; the CLI's
// --debug flag does not. This trace is never part of Error()'s user-visible
// text.
var DebugTraceEnabled bool

// Diagnostic is a single error or warning, as described by the diagnostics
// format contract: version, level, code, message, span, snippet, caret
// label, and optional notes/related locations/help text.
type Diagnostic struct {
	Version     int
	Level       Level
	Code        string
	Message     string
	Span        Span
	Snippet     string
	CaretLabel  string
	Notes       []string
	Related     []RelatedLocation
	Help        string
	internalStk string
}

const currentVersion = 1

// New constructs an error-level Diagnostic.
func New(code, message string, span Span) *Diagnostic {
	d := &Diagnostic{
		Version: currentVersion,
		Level:   LevelError,
		Code:    code,
		Message: message,
		Span:    span,
	}
	if DebugTraceEnabled {
		d.internalStk = fmt.Sprintf("%+v", stack.Trace().TrimRuntime())
	}
	return d
}

// Warning constructs a warning-level Diagnostic.
func Warning(code, message string, span Span) *Diagnostic {
	d := New(code, message, span)
	d.Level = LevelWarning
	return d
}

// WithNote appends a note and returns the Diagnostic for chaining.
func (d *Diagnostic) WithNote(note string) *Diagnostic {
	d.Notes = append(d.Notes, note)
	return d
}

// WithHelp sets the help text and returns the Diagnostic for chaining.
func (d *Diagnostic) WithHelp(help string) *Diagnostic {
	d.Help = help
	return d
}

// WithRelated appends a related location and returns the Diagnostic for
// chaining.
func (d *Diagnostic) WithRelated(span Span, note string) *Diagnostic {
	d.Related = append(d.Related, RelatedLocation{Span: span, Note: note})
	return d
}

// WithSnippet attaches the offending source line and a caret label.
func (d *Diagnostic) WithSnippet(snippet, caretLabel string) *Diagnostic {
	d.Snippet = snippet
	d.CaretLabel = caretLabel
	return d
}

// Error implements the error interface. The format is deterministic across
// machines: no timestamps, no absolute paths beyond what the caller supplied
// in Span.File.
func (d *Diagnostic) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]: %s", d.Level, d.Code, d.Message)
	if d.Span.Line != 0 {
		fmt.Fprintf(&b, "\n  --> %s", d.Span.String())
	}
	if d.Snippet != "" {
		fmt.Fprintf(&b, "\n%s", d.Snippet)
		if d.CaretLabel != "" {
			fmt.Fprintf(&b, "\n%s", d.CaretLabel)
		}
	}
	for _, n := range d.Notes {
		fmt.Fprintf(&b, "\nnote: %s", n)
	}
	for _, r := range d.Related {
		fmt.Fprintf(&b, "\nrelated at %s: %s", r.Span.String(), r.Note)
	}
	if d.Help != "" {
		fmt.Fprintf(&b, "\nhelp: %s", d.Help)
	}
	return b.String()
}

// DebugTrace returns the internal Go call stack captured at construction
// time, or "" if DebugTraceEnabled was false. It is never part of the
// user-visible Error() text, and the CLI does not print it.
func (d *Diagnostic) DebugTrace() string {
	return d.internalStk
}

// CodeOf returns the Code of the Diagnostic carried by err, looking through
// wrappers (such as either engine's RuntimeError) with errors.As, and
// reports whether err carries a Diagnostic at all.
func CodeOf(err error) (string, bool) {
	var d *Diagnostic
	if !errors.As(err, &d) {
		return "", false
	}
	return d.Code, true
}
