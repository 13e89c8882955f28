// Package ast defines the abstract syntax tree the parser produces and the
// compiler/interpreter consume. The execution core never type-checks these
// trees (type annotations are parsed and carried, never validated) — that is
// the external front end's job, per the AST input contract.
package ast

import (
	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/value"
)

// Node is the root marker every AST node implements.
type Node interface {
	Span() diag.Span
}

// Expression is any node that produces a value.
type Expression interface {
	Node
	expressionNode()
}

// Statement is any node executed for effect.
type Statement interface {
	Node
	statementNode()
}

// Program is the root of a parsed source file: a sequence of top-level
// statements (function/variable declarations and expression statements).
type Program struct {
	Statements []Statement
}

func (p *Program) Span() diag.Span {
	if len(p.Statements) == 0 {
		return diag.Span{}
	}
	return p.Statements[0].Span()
}

// ---- Type references ----
//
// TypeRef is parsed but never checked by the execution core: the compiler
// and interpreter carry it through on function parameters/returns purely so
// ownership annotations (which ride alongside a type) survive into
// value.ParamMeta, and so a later external checker has something to act on.
type TypeRef interface {
	typeRefNode()
}

// NamedType is a reference to a type by name, optionally generic (`Array<T>`).
type NamedType struct {
	Name     string
	TypeArgs []TypeRef
}

func (*NamedType) typeRefNode() {}

// ArrayType is `[T]` sugar, distinct from NamedType("Array", [T]) so the
// front end can tell the two spellings apart if it cares to.
type ArrayType struct{ Elem TypeRef }

func (*ArrayType) typeRefNode() {}

// FunctionType is `fn(T1, T2) -> T3`.
type FunctionType struct {
	Params []TypeRef
	Return TypeRef
}

func (*FunctionType) typeRefNode() {}

// StructuralType is an inline record shape `{ name: T, age: U }`.
type StructuralType struct {
	Fields []StructuralField
}
type StructuralField struct {
	Name string
	Type TypeRef
}

func (*StructuralType) typeRefNode() {}

// UnionType is `A | B | C`.
type UnionType struct{ Members []TypeRef }

func (*UnionType) typeRefNode() {}

// IntersectionType is `A & B`.
type IntersectionType struct{ Members []TypeRef }

func (*IntersectionType) typeRefNode() {}

// ---- Ownership-annotated parameters ----

// Param is a function parameter: name, ownership mode, and (unchecked)
// declared type.
type Param struct {
	Name      string
	Ownership value.OwnershipMode
	Type      TypeRef
	ParamSpan diag.Span
}

// ---- Expressions ----

type NumberLiteral struct {
	Val float64
	Pos diag.Span
}

func (n *NumberLiteral) Span() diag.Span { return n.Pos }
func (*NumberLiteral) expressionNode()   {}

type StringLiteral struct {
	Val string
	Pos diag.Span
}

func (s *StringLiteral) Span() diag.Span { return s.Pos }
func (*StringLiteral) expressionNode()   {}

type BoolLiteral struct {
	Val bool
	Pos diag.Span
}

func (b *BoolLiteral) Span() diag.Span { return b.Pos }
func (*BoolLiteral) expressionNode()   {}

type NullLiteral struct{ Pos diag.Span }

func (n *NullLiteral) Span() diag.Span { return n.Pos }
func (*NullLiteral) expressionNode()   {}

type Identifier struct {
	Name string
	Pos  diag.Span
}

func (i *Identifier) Span() diag.Span { return i.Pos }
func (*Identifier) expressionNode()   {}

type ArrayLiteral struct {
	Elements []Expression
	Pos      diag.Span
}

func (a *ArrayLiteral) Span() diag.Span { return a.Pos }
func (*ArrayLiteral) expressionNode()   {}

// GroupExpr is a parenthesized expression, kept as its own node so spans
// stay accurate for diagnostics even though it is otherwise transparent.
type GroupExpr struct {
	Inner Expression
	Pos   diag.Span
}

func (g *GroupExpr) Span() diag.Span { return g.Pos }
func (*GroupExpr) expressionNode()   {}

type UnaryExpr struct {
	Op      string // "-", "!"
	Operand Expression
	Pos     diag.Span
}

func (u *UnaryExpr) Span() diag.Span { return u.Pos }
func (*UnaryExpr) expressionNode()   {}

type BinaryExpr struct {
	Op          string // "+","-","*","/","%","==","!=","<","<=",">",">=","&&","||"
	Left, Right Expression
	Pos         diag.Span
}

func (b *BinaryExpr) Span() diag.Span { return b.Pos }
func (*BinaryExpr) expressionNode()   {}

type CallExpr struct {
	Callee Expression
	Args   []Expression
	Pos    diag.Span
}

func (c *CallExpr) Span() diag.Span { return c.Pos }
func (*CallExpr) expressionNode()   {}

type IndexExpr struct {
	Collection Expression
	Index      Expression
	Pos        diag.Span
}

func (i *IndexExpr) Span() diag.Span { return i.Pos }
func (*IndexExpr) expressionNode()   {}

type MemberExpr struct {
	Object Expression
	Name   string
	Pos    diag.Span
}

func (m *MemberExpr) Span() diag.Span { return m.Pos }
func (*MemberExpr) expressionNode()   {}

// AnonFn is a closure literal: `fn(x) => x + 1` or `fn(x) { ... }`.
type AnonFn struct {
	Params []Param
	Body   []Statement
	Pos    diag.Span
}

func (a *AnonFn) Span() diag.Span { return a.Pos }
func (*AnonFn) expressionNode()   {}

// BlockExpr is a brace-delimited sequence of statements used as an
// expression, yielding its last statement's value if that statement is an
// ExprStatement.
type BlockExpr struct {
	Statements []Statement
	Pos        diag.Span
}

func (b *BlockExpr) Span() diag.Span { return b.Pos }
func (*BlockExpr) expressionNode()   {}

// MatchExpr pattern-matches over Option/Result-shaped values.
type MatchExpr struct {
	Subject Expression
	Arms    []MatchArm
	Pos     diag.Span
}

func (m *MatchExpr) Span() diag.Span { return m.Pos }
func (*MatchExpr) expressionNode()   {}

type MatchArm struct {
	Pattern Pattern
	Body    Expression
}

// Pattern is one arm's match pattern.
type Pattern interface {
	patternNode()
}

type SomePattern struct{ Binding string }

func (*SomePattern) patternNode() {}

type NonePattern struct{}

func (*NonePattern) patternNode() {}

type OkPattern struct{ Binding string }

func (*OkPattern) patternNode() {}

type ErrPattern struct{ Binding string }

func (*ErrPattern) patternNode() {}

type WildcardPattern struct{}

func (*WildcardPattern) patternNode() {}

// TryExpr evaluates Inner; if it is Err(e)/None it returns early from the
// enclosing function with that value, otherwise yields the unwrapped value.
type TryExpr struct {
	Inner Expression
	Pos   diag.Span
}

func (t *TryExpr) Span() diag.Span { return t.Pos }
func (*TryExpr) expressionNode()   {}

// ---- Statements ----

type VarDecl struct {
	Name    string
	Mutable bool // `let` (false) vs `var` (true)
	Type    TypeRef
	Init    Expression
	Pos     diag.Span
}

func (v *VarDecl) Span() diag.Span { return v.Pos }
func (*VarDecl) statementNode()    {}

type FnDecl struct {
	Name        string
	Params      []Param
	ReturnOwned value.OwnershipMode
	ReturnType  TypeRef
	Body        []Statement
	Pos         diag.Span
}

func (f *FnDecl) Span() diag.Span { return f.Pos }
func (*FnDecl) statementNode()    {}

// Assignment covers plain `=` and compound `+=`/`-=`/`*=`/`/=`/`%=` via Op
// ("" for plain assignment).
type Assignment struct {
	Target Expression // Identifier, IndexExpr, or MemberExpr
	Op     string
	Value  Expression
	Pos    diag.Span
}

func (a *Assignment) Span() diag.Span { return a.Pos }
func (*Assignment) statementNode()    {}

// IncDec covers `x++`/`x--`.
type IncDec struct {
	Target Expression
	Op     string // "++" or "--"
	Pos    diag.Span
}

func (i *IncDec) Span() diag.Span { return i.Pos }
func (*IncDec) statementNode()    {}

type IfStmt struct {
	Cond Expression
	Then []Statement
	Else []Statement // nil if no else; a single-element []Statement{*IfStmt} for else-if
	Pos  diag.Span
}

func (i *IfStmt) Span() diag.Span { return i.Pos }
func (*IfStmt) statementNode()    {}

type WhileStmt struct {
	Cond Expression
	Body []Statement
	Pos  diag.Span
}

func (w *WhileStmt) Span() diag.Span { return w.Pos }
func (*WhileStmt) statementNode()    {}

// ForStmt is the C-style three-clause loop. Any clause may be nil.
type ForStmt struct {
	Init Statement
	Cond Expression
	Post Statement
	Body []Statement
	Pos  diag.Span
}

func (f *ForStmt) Span() diag.Span { return f.Pos }
func (*ForStmt) statementNode()    {}

// ForInStmt iterates an Array's elements by index; both engines reject any
// other collection kind with a TypeError.
type ForInStmt struct {
	Binding string
	Iter    Expression
	Body    []Statement
	Pos     diag.Span
}

func (f *ForInStmt) Span() diag.Span { return f.Pos }
func (*ForInStmt) statementNode()    {}

type ReturnStmt struct {
	Value Expression // nil for bare `return`
	Pos   diag.Span
}

func (r *ReturnStmt) Span() diag.Span { return r.Pos }
func (*ReturnStmt) statementNode()    {}

type BreakStmt struct{ Pos diag.Span }

func (b *BreakStmt) Span() diag.Span { return b.Pos }
func (*BreakStmt) statementNode()    {}

type ContinueStmt struct{ Pos diag.Span }

func (c *ContinueStmt) Span() diag.Span { return c.Pos }
func (*ContinueStmt) statementNode()    {}

type ExprStmt struct {
	Expr Expression
	Pos  diag.Span
}

func (e *ExprStmt) Span() diag.Span { return e.Pos }
func (*ExprStmt) statementNode()    {}
