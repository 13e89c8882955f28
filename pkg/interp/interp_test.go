package interp_test

import (
	"testing"

	"github.com/atl-lang/atlas-sub003/pkg/builtins"
	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/interp"
	"github.com/atl-lang/atlas-sub003/pkg/parser"
	"github.com/atl-lang/atlas-sub003/pkg/value"
)

func runInterp(t *testing.T, source string) (value.Value, error) {
	t.Helper()
	prog, err := parser.New("<test>", source).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	it := interp.New()
	builtins.RegisterAll(it.DefineNative)
	return it.Run(prog)
}

func mustRunInterp(t *testing.T, source string) value.Value {
	t.Helper()
	v, err := runInterp(t, source)
	if err != nil {
		t.Fatalf("runtime error: %v", err)
	}
	return v
}

func TestTopLevelBareExpressionIsDiscarded(t *testing.T) {
	// Regression: Run used to special-case a trailing bare expression
	// statement, re-evaluating and returning it. Both engines discard it
	// unless an explicit top-level return produced a result.
	got := mustRunInterp(t, `1 + 1;`)
	if got != value.TheNull {
		t.Errorf("got %v, want null", got.Display())
	}
}

func TestTopLevelExplicitReturn(t *testing.T) {
	got := mustRunInterp(t, `return 1 + 1;`)
	if got.Display() != "2" {
		t.Errorf("got %q, want 2", got.Display())
	}
}

func TestBareExpressionSideEffectsRunOnceOnly(t *testing.T) {
	// The statement still executes (its side effect happens), it just
	// isn't re-evaluated a second time nor reported as the result.
	source := `
		var calls = 0;
		let bump = fn() { calls = calls + 1; return calls; };
		bump();
	`
	got := mustRunInterp(t, source)
	if got != value.TheNull {
		t.Errorf("got %v, want null", got.Display())
	}
}

func TestClosureCapturesSnapshotNotReference(t *testing.T) {
	source := `
		var x = 1;
		let inc = fn() { x = x + 1; return x; };
		x = 100;
		return inc();
	`
	if got := mustRunInterp(t, source).Display(); got != "2" {
		t.Errorf("got %q, want 2", got)
	}
}

func TestArrayCopyOnWriteOnAlias(t *testing.T) {
	source := `
		let a = [1, 2, 3];
		let b = a;
		push(a, 4);
		return len(b);
	`
	if got := mustRunInterp(t, source).Display(); got != "3" {
		t.Errorf("got %q, want 3", got)
	}
}

func TestMatchOnResult(t *testing.T) {
	source := `
		let r = Err("bad");
		return match r { Ok(v) => v, Err(_) => 0 };
	`
	if got := mustRunInterp(t, source).Display(); got != "0" {
		t.Errorf("got %q, want 0", got)
	}
}

func TestTryShortCircuitsEnclosingFunction(t *testing.T) {
	// try on an Err short-circuits caller(), returning the Err itself
	// rather than reaching the `return v;` line below it.
	source := `
		fn fails() { return Err("boom"); }
		fn caller() {
			let v = try fails();
			return v;
		}
		return caller();
	`
	got := mustRunInterp(t, source)
	if got.Display() != `Err("boom")` {
		t.Errorf("got %q, want Err(\"boom\")", got.Display())
	}
}

func TestArityMismatch(t *testing.T) {
	_, err := runInterp(t, `fn f(a, b) { return a; } return f(1);`)
	if err == nil {
		t.Fatal("expected an error")
	}
	code, ok := diag.CodeOf(err)
	if !ok || code != diag.ArityMismatch {
		t.Fatalf("got code %v, want %s", code, diag.ArityMismatch)
	}
}

func TestDivideByZero(t *testing.T) {
	_, err := runInterp(t, `return 1 / 0;`)
	if err == nil {
		t.Fatal("expected an error")
	}
	code, ok := diag.CodeOf(err)
	if !ok || code != diag.DivideByZero {
		t.Fatalf("got code %v, want %s", code, diag.DivideByZero)
	}
}
