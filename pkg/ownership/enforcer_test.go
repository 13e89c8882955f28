package ownership

import (
	"testing"

	"github.com/atl-lang/atlas-sub003/pkg/ast"
	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/value"
)

func TestDisabledEnforcerNeverErrors(t *testing.T) {
	e := New(false)
	if err := e.CheckRead("k", "x", diag.Span{}); err != nil {
		t.Errorf("disabled CheckRead: got %v", err)
	}
	if err := e.CheckCallArg(value.Own, "p", "k", diag.Span{}); err != nil {
		t.Errorf("disabled CheckCallArg: got %v", err)
	}
}

func TestOwnMoveThenReadIsRejected(t *testing.T) {
	e := New(true)
	if err := e.CheckCallArg(value.Own, "p", "x", diag.Span{}); err != nil {
		t.Fatalf("first move: unexpected error: %v", err)
	}
	err := e.CheckRead("x", "x", diag.Span{})
	if err == nil {
		t.Fatal("expected a read-after-move violation")
	}
	code, ok := diag.CodeOf(err)
	if !ok || code != diag.OwnershipViolation {
		t.Fatalf("got code %v, want %s", code, diag.OwnershipViolation)
	}
}

func TestOwnMoveTwiceIsRejected(t *testing.T) {
	e := New(true)
	if err := e.CheckCallArg(value.Own, "p", "x", diag.Span{}); err != nil {
		t.Fatalf("first move: unexpected error: %v", err)
	}
	if err := e.CheckCallArg(value.Own, "q", "x", diag.Span{}); err == nil {
		t.Fatal("expected second move of the same binding to be rejected")
	}
}

func TestBorrowDoesNotMove(t *testing.T) {
	e := New(true)
	if err := e.CheckCallArg(value.Borrow, "p", "x", diag.Span{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.CheckRead("x", "x", diag.Span{}); err != nil {
		t.Errorf("borrow should not move the binding: %v", err)
	}
}

func TestAnonymousArgumentsBypassMoveTracking(t *testing.T) {
	// bindingKey == "" means the argument wasn't a plain identifier (a
	// literal, a call result, an index expression...) and has no binding to
	// track.
	e := New(true)
	if err := e.CheckCallArg(value.Own, "p", "", diag.Span{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClosureCaptureOfActiveBorrowRejected(t *testing.T) {
	e := New(true)
	e.EnterBorrow("x")
	defer e.ExitBorrow()

	body := []ast.Statement{
		&ast.ReturnStmt{Value: &ast.Identifier{Name: "x"}},
	}
	err := e.CheckClosureCapture(nil, body, diag.Span{})
	if err == nil {
		t.Fatal("expected a borrow-escape violation")
	}
}

func TestClosureCaptureShadowedByParamAllowed(t *testing.T) {
	e := New(true)
	e.EnterBorrow("x")
	defer e.ExitBorrow()

	body := []ast.Statement{
		&ast.ReturnStmt{Value: &ast.Identifier{Name: "x"}},
	}
	params := []ast.Param{{Name: "x"}}
	if err := e.CheckClosureCapture(params, body, diag.Span{}); err != nil {
		t.Errorf("shadowing parameter should allow capture: %v", err)
	}
}

func TestClosureCaptureAfterExitBorrowAllowed(t *testing.T) {
	e := New(true)
	e.EnterBorrow("x")
	e.ExitBorrow()

	body := []ast.Statement{
		&ast.ReturnStmt{Value: &ast.Identifier{Name: "x"}},
	}
	if err := e.CheckClosureCapture(nil, body, diag.Span{}); err != nil {
		t.Errorf("borrow no longer active: unexpected error: %v", err)
	}
}

func TestCheckSharedArgRequiresMutableCollection(t *testing.T) {
	e := New(true)
	arr := value.NewArray(nil)
	if err := e.CheckSharedArg(value.Shared, "p", arr, diag.Span{}); err != nil {
		t.Errorf("array should satisfy Shared: %v", err)
	}
	if err := e.CheckSharedArg(value.Shared, "p", value.NewString("x"), diag.Span{}); err == nil {
		t.Error("expected a Shared-mode violation for an immutable scalar")
	}
}

func TestCheckSharedArgIgnoresNonSharedModes(t *testing.T) {
	e := New(true)
	if err := e.CheckSharedArg(value.Own, "p", value.NewString("x"), diag.Span{}); err != nil {
		t.Errorf("non-Shared mode should bypass the check: %v", err)
	}
}
