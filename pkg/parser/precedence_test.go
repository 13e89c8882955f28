package parser

import (
	"testing"

	"github.com/atl-lang/atlas-sub003/pkg/ast"
)

func TestPrecedenceComparisonBelowArithmetic(t *testing.T) {
	// 1 + 2 < 4 should parse as (1 + 2) < 4, not 1 + (2 < 4).
	expr := exprOf(t, parseOne(t, "1 + 2 < 4;"))
	cmp, ok := expr.(*ast.BinaryExpr)
	if !ok || cmp.Op != "<" {
		t.Fatalf("expected top-level '<', got %#v", expr)
	}
	lhs, ok := cmp.Left.(*ast.BinaryExpr)
	if !ok || lhs.Op != "+" {
		t.Fatalf("expected left operand to be '+', got %#v", cmp.Left)
	}
}

func TestPrecedenceLogicalAndOverOr(t *testing.T) {
	// a || b && c should parse as a || (b && c).
	expr := exprOf(t, parseOne(t, "a || b && c;"))
	or, ok := expr.(*ast.BinaryExpr)
	if !ok || or.Op != "||" {
		t.Fatalf("expected top-level '||', got %#v", expr)
	}
	and, ok := or.Right.(*ast.BinaryExpr)
	if !ok || and.Op != "&&" {
		t.Fatalf("expected right operand to be '&&', got %#v", or.Right)
	}
}

func TestPrecedenceUnaryBindsTighterThanBinary(t *testing.T) {
	// -a + b should parse as (-a) + b.
	expr := exprOf(t, parseOne(t, "-a + b;"))
	bin, ok := expr.(*ast.BinaryExpr)
	if !ok || bin.Op != "+" {
		t.Fatalf("expected top-level '+', got %#v", expr)
	}
	if _, ok := bin.Left.(*ast.UnaryExpr); !ok {
		t.Fatalf("expected left operand to be a unary expr, got %#v", bin.Left)
	}
}

func TestPrecedenceIndexBindsTighterThanBinary(t *testing.T) {
	// arr[0] + 1 should parse as (arr[0]) + 1.
	expr := exprOf(t, parseOne(t, "arr[0] + 1;"))
	bin, ok := expr.(*ast.BinaryExpr)
	if !ok || bin.Op != "+" {
		t.Fatalf("expected top-level '+', got %#v", expr)
	}
	if _, ok := bin.Left.(*ast.IndexExpr); !ok {
		t.Fatalf("expected left operand to be an index expr, got %#v", bin.Left)
	}
}

func TestPrecedenceParensOverridePrecedence(t *testing.T) {
	// (1 + 2) * 3 should parse with '*' at the top.
	expr := exprOf(t, parseOne(t, "(1 + 2) * 3;"))
	bin, ok := expr.(*ast.BinaryExpr)
	if !ok || bin.Op != "*" {
		t.Fatalf("expected top-level '*', got %#v", expr)
	}
	if _, ok := bin.Left.(*ast.BinaryExpr); !ok {
		t.Fatalf("expected parenthesized left operand to still be a binary expr, got %#v", bin.Left)
	}
}

func TestPrecedenceCallBindsTighterThanBinary(t *testing.T) {
	// f(1) + 2 should parse as (f(1)) + 2.
	expr := exprOf(t, parseOne(t, "f(1) + 2;"))
	bin, ok := expr.(*ast.BinaryExpr)
	if !ok || bin.Op != "+" {
		t.Fatalf("expected top-level '+', got %#v", expr)
	}
	if _, ok := bin.Left.(*ast.CallExpr); !ok {
		t.Fatalf("expected left operand to be a call expr, got %#v", bin.Left)
	}
}
