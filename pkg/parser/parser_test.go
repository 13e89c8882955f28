package parser

import (
	"testing"

	"github.com/atl-lang/atlas-sub003/pkg/ast"
)

func parseOne(t *testing.T, input string) ast.Statement {
	t.Helper()
	prog, err := New("<test>", input).Parse()
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(prog.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(prog.Statements))
	}
	return prog.Statements[0]
}

func exprOf(t *testing.T, stmt ast.Statement) ast.Expression {
	t.Helper()
	es, ok := stmt.(*ast.ExprStmt)
	if !ok {
		t.Fatalf("expected *ast.ExprStmt, got %T", stmt)
	}
	return es.Expr
}

func TestParseNumberLiteral(t *testing.T) {
	expr := exprOf(t, parseOne(t, "42;"))
	lit, ok := expr.(*ast.NumberLiteral)
	if !ok {
		t.Fatalf("expected *ast.NumberLiteral, got %T", expr)
	}
	if lit.Val != 42 {
		t.Errorf("got %v, want 42", lit.Val)
	}
}

func TestParseStringLiteral(t *testing.T) {
	expr := exprOf(t, parseOne(t, `"hi";`))
	lit, ok := expr.(*ast.StringLiteral)
	if !ok {
		t.Fatalf("expected *ast.StringLiteral, got %T", expr)
	}
	if lit.Val != "hi" {
		t.Errorf("got %q, want hi", lit.Val)
	}
}

func TestParseBinaryExprPrecedence(t *testing.T) {
	// "*" should bind tighter than "+": 1 + 2 * 3 == 1 + (2 * 3)
	expr := exprOf(t, parseOne(t, "1 + 2 * 3;"))
	bin, ok := expr.(*ast.BinaryExpr)
	if !ok {
		t.Fatalf("expected *ast.BinaryExpr, got %T", expr)
	}
	if bin.Op != "+" {
		t.Fatalf("expected top-level '+', got %q", bin.Op)
	}
	rhs, ok := bin.Right.(*ast.BinaryExpr)
	if !ok {
		t.Fatalf("expected right operand to be *ast.BinaryExpr, got %T", bin.Right)
	}
	if rhs.Op != "*" {
		t.Errorf("expected nested '*', got %q", rhs.Op)
	}
}

func TestParseCallExpr(t *testing.T) {
	expr := exprOf(t, parseOne(t, "len(arr);"))
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		t.Fatalf("expected *ast.CallExpr, got %T", expr)
	}
	callee, ok := call.Callee.(*ast.Identifier)
	if !ok || callee.Name != "len" {
		t.Fatalf("expected callee identifier 'len', got %#v", call.Callee)
	}
	if len(call.Args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(call.Args))
	}
}

func TestParseArrayLiteral(t *testing.T) {
	expr := exprOf(t, parseOne(t, "[1, 2, 3];"))
	arr, ok := expr.(*ast.ArrayLiteral)
	if !ok {
		t.Fatalf("expected *ast.ArrayLiteral, got %T", expr)
	}
	if len(arr.Elements) != 3 {
		t.Errorf("expected 3 elements, got %d", len(arr.Elements))
	}
}

func TestParseVarDecl(t *testing.T) {
	prog, err := New("<test>", "let x = 5;").Parse()
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	decl, ok := prog.Statements[0].(*ast.VarDecl)
	if !ok {
		t.Fatalf("expected *ast.VarDecl, got %T", prog.Statements[0])
	}
	if decl.Name != "x" {
		t.Errorf("got name %q, want x", decl.Name)
	}
}

func TestParseIfStmt(t *testing.T) {
	prog, err := New("<test>", "if (x) { return 1; } else { return 2; }").Parse()
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	ifs, ok := prog.Statements[0].(*ast.IfStmt)
	if !ok {
		t.Fatalf("expected *ast.IfStmt, got %T", prog.Statements[0])
	}
	if ifs.Else == nil {
		t.Error("expected an else branch")
	}
}

func TestParseFnDecl(t *testing.T) {
	prog, err := New("<test>", "fn add(a, b) { return a + b; }").Parse()
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	decl, ok := prog.Statements[0].(*ast.FnDecl)
	if !ok {
		t.Fatalf("expected *ast.FnDecl, got %T", prog.Statements[0])
	}
	if decl.Name != "add" || len(decl.Params) != 2 {
		t.Errorf("got name %q with %d params, want add/2", decl.Name, len(decl.Params))
	}
}

func TestParseMatchExpr(t *testing.T) {
	expr := exprOf(t, parseOne(t, `match r { Ok(v) => v, Err(_) => 0 };`))
	m, ok := expr.(*ast.MatchExpr)
	if !ok {
		t.Fatalf("expected *ast.MatchExpr, got %T", expr)
	}
	if len(m.Arms) != 2 {
		t.Fatalf("expected 2 arms, got %d", len(m.Arms))
	}
	if _, ok := m.Arms[0].Pattern.(*ast.OkPattern); !ok {
		t.Errorf("expected first arm to be an OkPattern, got %T", m.Arms[0].Pattern)
	}
	if _, ok := m.Arms[1].Pattern.(*ast.ErrPattern); !ok {
		t.Errorf("expected second arm to be an ErrPattern, got %T", m.Arms[1].Pattern)
	}
}

func TestParseAnonFnArrowBody(t *testing.T) {
	expr := exprOf(t, parseOne(t, "fn(x) => x * 2;"))
	fn, ok := expr.(*ast.AnonFn)
	if !ok {
		t.Fatalf("expected *ast.AnonFn, got %T", expr)
	}
	if len(fn.Params) != 1 {
		t.Fatalf("expected 1 param, got %d", len(fn.Params))
	}
	if len(fn.Body) != 1 {
		t.Fatalf("expected arrow body to desugar to a single statement, got %d", len(fn.Body))
	}
	if _, ok := fn.Body[0].(*ast.ReturnStmt); !ok {
		t.Errorf("expected arrow body to desugar to a return statement, got %T", fn.Body[0])
	}
}
