package diag

import "testing"

func TestSpanString(t *testing.T) {
	cases := []struct {
		span Span
		want string
	}{
		{Span{}, "<unknown>"},
		{Span{Line: 3, Column: 5}, "3:5"},
		{Span{File: "a.atlas", Line: 3, Column: 5}, "a.atlas:3:5"},
	}
	for _, c := range cases {
		if got := c.span.String(); got != c.want {
			t.Errorf("Span%+v.String() = %q, want %q", c.span, got, c.want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	d := New(DivideByZero, "division by zero", Span{Line: 1, Column: 1})
	code, ok := CodeOf(d)
	if !ok || code != DivideByZero {
		t.Fatalf("CodeOf(d) = %q, %v, want %q, true", code, ok, DivideByZero)
	}
	if _, ok := CodeOf(errorString("plain error")); ok {
		t.Error("CodeOf should return false for a non-Diagnostic error")
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }

func TestWarningLevel(t *testing.T) {
	d := Warning(UnreachableCode, "unreachable", Span{})
	if d.Level != LevelWarning {
		t.Errorf("Warning().Level = %q, want %q", d.Level, LevelWarning)
	}
}

func TestErrorFormattingIncludesCodeAndLocation(t *testing.T) {
	d := New(ArityMismatch, "expected 2 arguments, got 1", Span{File: "f.atlas", Line: 4, Column: 2}).
		WithNote("check the call site").
		WithHelp("pass both arguments")
	got := d.Error()
	want := "error[AT0003]: expected 2 arguments, got 1\n  --> f.atlas:4:2\nnote: check the call site\nhelp: pass both arguments"
	if got != want {
		t.Errorf("Error() =\n%q\nwant\n%q", got, want)
	}
}

func TestErrorFormattingOmitsLocationForSyntheticSpan(t *testing.T) {
	d := New(QuotaExceeded, "step quota exceeded", Span{})
	got := d.Error()
	want := "error[AT4002]: step quota exceeded"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDebugTraceDisabledByDefault(t *testing.T) {
	d := New(TypeError, "bad type", Span{})
	if d.DebugTrace() != "" {
		t.Errorf("DebugTrace() = %q, want empty when DebugTraceEnabled is false", d.DebugTrace())
	}
}

func TestWithRelatedAppendsLocation(t *testing.T) {
	d := New(OwnershipViolation, "use after move", Span{Line: 2, Column: 1}).
		WithRelated(Span{Line: 1, Column: 1}, "moved here")
	if len(d.Related) != 1 || d.Related[0].Note != "moved here" {
		t.Fatalf("Related = %+v", d.Related)
	}
}
