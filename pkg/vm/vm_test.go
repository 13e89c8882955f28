package vm_test

import (
	"testing"

	"github.com/atl-lang/atlas-sub003/pkg/bytecode"
	"github.com/atl-lang/atlas-sub003/pkg/builtins"
	"github.com/atl-lang/atlas-sub003/pkg/compiler"
	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/parser"
	"github.com/atl-lang/atlas-sub003/pkg/value"
	"github.com/atl-lang/atlas-sub003/pkg/vm"
)

func compile(t *testing.T, source string) *bytecode.Bytecode {
	t.Helper()
	prog, err := parser.New("<test>", source).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	bc, err := compiler.New("<test>").Compile(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return bc
}

func runVM(t *testing.T, source string) (value.Value, error) {
	t.Helper()
	bc := compile(t, source)
	machine := vm.New(bc)
	builtins.RegisterAll(machine.DefineNative)
	return machine.Run()
}

func mustRun(t *testing.T, source string) value.Value {
	t.Helper()
	v, err := runVM(t, source)
	if err != nil {
		t.Fatalf("runtime error: %v", err)
	}
	return v
}

func TestArithmeticAndComparison(t *testing.T) {
	cases := map[string]string{
		`return 2 + 3 * 4;`:  "14",
		`return (2 + 3) * 4;`: "20",
		`return 10 / 4;`:     "2.5",
		`return 1 < 2;`:      "true",
		`return 1 >= 2;`:     "false",
		`return 3 == 3;`:     "true",
	}
	for src, want := range cases {
		if got := mustRun(t, src).Display(); got != want {
			t.Errorf("%s: got %q, want %q", src, got, want)
		}
	}
}

func TestDivideByZero(t *testing.T) {
	_, err := runVM(t, `return 1 / 0;`)
	if err == nil {
		t.Fatal("expected an error")
	}
	code, ok := diag.CodeOf(err)
	if !ok || code != diag.DivideByZero {
		t.Fatalf("got code %v, want %s", code, diag.DivideByZero)
	}
}

func TestFunctionCallAndRecursion(t *testing.T) {
	source := `
		fn fact(n) {
			if (n <= 1) { return 1; }
			return n * fact(n - 1);
		}
		return fact(5);
	`
	if got := mustRun(t, source).Display(); got != "120" {
		t.Errorf("got %q, want 120", got)
	}
}

func TestArityMismatch(t *testing.T) {
	_, err := runVM(t, `fn f(a, b) { return a; } return f(1);`)
	if err == nil {
		t.Fatal("expected an error")
	}
	code, ok := diag.CodeOf(err)
	if !ok || code != diag.ArityMismatch {
		t.Fatalf("got code %v, want %s", code, diag.ArityMismatch)
	}
}

func TestClosureSnapshotCapture(t *testing.T) {
	source := `
		var x = 1;
		let inc = fn() { x = x + 1; return x; };
		x = 100;
		return inc();
	`
	if got := mustRun(t, source).Display(); got != "2" {
		t.Errorf("got %q, want 2", got)
	}
}

func TestArrayCopyOnWrite(t *testing.T) {
	source := `
		let a = [1, 2, 3];
		let b = a;
		push(a, 4);
		return len(b);
	`
	if got := mustRun(t, source).Display(); got != "3" {
		t.Errorf("got %q, want 3 (alias must be unaffected)", got)
	}
}

func TestIndexCompoundAssignSingleEvaluation(t *testing.T) {
	// idx captures n by value, and the captured copy persists across calls:
	// it returns 0 on its first call and 1 on its second, so a second
	// evaluation of the index expression would write arr[1] instead.
	source := `
		var n = 0;
		let idx = fn() { n = n + 1; return n - 1; };
		let arr = [10, 20];
		arr[idx()] += 5;
		return arr;
	`
	if got := mustRun(t, source).Display(); got != "[15, 20]" {
		t.Errorf("got %q, want [15, 20] (index expression must evaluate once)", got)
	}
}

func TestMatchOnResult(t *testing.T) {
	source := `
		let r = Ok(11);
		return match r { Ok(v) => v, Err(_) => 0 };
	`
	if got := mustRun(t, source).Display(); got != "11" {
		t.Errorf("got %q, want 11", got)
	}
}

func TestEmptyProgramRunsWithoutError(t *testing.T) {
	bc := bytecode.New()
	chunk := bytecode.NewChunk()
	chunk.SetTopLevelLocals(0)
	machine := vm.New(chunk.Bytecode())
	_ = bc
	_, err := machine.Run()
	// An empty instruction stream ends Run at once, as an immediate halt
	// would, so this exercises the "no instructions" boundary — a sanity
	// check that Run never panics on empty input.
	if err != nil {
		t.Fatalf("unexpected error on empty program: %v", err)
	}
}
