// Package ownership centralizes the runtime own/borrow/shared checks that
// serve as the reference semantics for a future static verifier: one
// Enforcer, shared by both engines, so a given violation produces the same
// diagnostic Code and Message regardless of which engine raised it. Checks
// are debug-gated — construct with Enabled: false (or pass a nil
// *Enforcer, which every method treats as disabled) to skip them entirely
// in a release build.
package ownership

import (
	"fmt"

	"github.com/atl-lang/atlas-sub003/pkg/ast"
	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/value"
)

// Enforcer tracks per-binding move state and the set of bindings currently
// borrowed into an in-flight call. A binding is identified by a caller-
// supplied key — the interpreter uses the identifier name qualified by its
// Env frame pointer, since that is stable and unique for the lifetime of
// the binding; a fresh declaration of the same name in an inner scope gets
// a different key and is unaffected by an outer move.
type Enforcer struct {
	Enabled bool
	moved   map[string]bool
	borrows []string
}

func New(enabled bool) *Enforcer {
	return &Enforcer{Enabled: enabled, moved: make(map[string]bool)}
}

func (e *Enforcer) enabled() bool { return e != nil && e.Enabled }

func violation(msg string, span diag.Span) error {
	return diag.New(diag.OwnershipViolation, msg, span)
}

// CheckRead rejects a read from a binding already moved out from under it
// (AT3004). Called before an identifier's value is used anywhere other
// than as the very Own argument that moves it.
func (e *Enforcer) CheckRead(bindingKey, name string, span diag.Span) error {
	if !e.enabled() || bindingKey == "" {
		return nil
	}
	if e.moved[bindingKey] {
		return violation(fmt.Sprintf("%q was moved and cannot be read", name), span)
	}
	return nil
}

// CheckCallArg validates one call argument against its parameter's
// ownership mode and, for Own, marks the source binding moved on success.
// bindingKey is "" when the argument expression is not a plain identifier
// (a literal, a call result, an index expression, ...) — there is no
// caller binding to move or to have been moved, so Own and Shared both pass
// through unconditionally in that case.
func (e *Enforcer) CheckCallArg(mode value.OwnershipMode, paramName, bindingKey string, span diag.Span) error {
	if !e.enabled() || bindingKey == "" {
		return nil
	}
	if e.moved[bindingKey] {
		return violation(fmt.Sprintf("value passed to %q has already been moved", paramName), span)
	}
	if mode == value.Own {
		e.moved[bindingKey] = true
	}
	return nil
}

// EnterBorrow/ExitBorrow bracket a callee's execution for each Borrow
// parameter it was given: the source binding's name is "active" for the
// call's duration and must not be captured by any closure literal
// evaluated while it is active (the borrow-escape rule). ExitBorrow always
// pops the most recently entered borrow, matching the LIFO nesting of
// nested calls.
func (e *Enforcer) EnterBorrow(name string) {
	if e.enabled() {
		e.borrows = append(e.borrows, name)
	}
}

func (e *Enforcer) ExitBorrow() {
	if e.enabled() && len(e.borrows) > 0 {
		e.borrows = e.borrows[:len(e.borrows)-1]
	}
}

// CheckClosureCapture rejects creating a closure whose body references any
// name currently borrowed and not re-bound as one of the closure's own
// parameters (which shadows the outer borrow, same as ordinary scoping).
func (e *Enforcer) CheckClosureCapture(params []ast.Param, body []ast.Statement, span diag.Span) error {
	if !e.enabled() || len(e.borrows) == 0 {
		return nil
	}
	shadowed := make(map[string]bool, len(params))
	for _, p := range params {
		shadowed[p.Name] = true
	}
	for _, name := range e.borrows {
		if shadowed[name] {
			continue
		}
		if referencesIdentifier(body, name) {
			return violation(fmt.Sprintf("borrowed binding %q cannot be captured by a closure", name), span)
		}
	}
	return nil
}

// referencesIdentifier reports whether any statement in body reads name,
// ignoring occurrences shadowed by a nested declaration of the same name
// (a fresh `let`/`var`/parameter with that name starts a new binding, so a
// reference after it is not a capture of the outer one).
func referencesIdentifier(body []ast.Statement, name string) bool {
	found := false
	walkStatements(body, func(n ast.Node) bool {
		if found {
			return false
		}
		switch s := n.(type) {
		case *ast.VarDecl:
			if s.Name == name {
				return false // shadows from here on; stop descending into nothing extra, Init already walked separately
			}
		case *ast.Identifier:
			if s.Name == name {
				found = true
			}
		}
		return true
	})
	return found
}

// walkStatements performs a simple top-down traversal over the statement
// and expression tree, calling visit on every node reached. visit returning
// false stops descent into that node's children (used above to special-
// case VarDecl's own identity without stopping the whole walk).
func walkStatements(stmts []ast.Statement, visit func(ast.Node) bool) {
	for _, s := range stmts {
		walkStatement(s, visit)
	}
}

func walkStatement(s ast.Statement, visit func(ast.Node) bool) {
	if s == nil || !visit(s) {
		return
	}
	switch st := s.(type) {
	case *ast.VarDecl:
		walkExpr(st.Init, visit)
	case *ast.FnDecl:
		walkStatements(st.Body, visit)
	case *ast.Assignment:
		walkExpr(st.Target, visit)
		walkExpr(st.Value, visit)
	case *ast.IncDec:
		walkExpr(st.Target, visit)
	case *ast.IfStmt:
		walkExpr(st.Cond, visit)
		walkStatements(st.Then, visit)
		walkStatements(st.Else, visit)
	case *ast.WhileStmt:
		walkExpr(st.Cond, visit)
		walkStatements(st.Body, visit)
	case *ast.ForStmt:
		walkStatement(st.Init, visit)
		walkExpr(st.Cond, visit)
		walkStatement(st.Post, visit)
		walkStatements(st.Body, visit)
	case *ast.ForInStmt:
		walkExpr(st.Iter, visit)
		walkStatements(st.Body, visit)
	case *ast.ReturnStmt:
		walkExpr(st.Value, visit)
	case *ast.ExprStmt:
		walkExpr(st.Expr, visit)
	}
}

func walkExpr(e ast.Expression, visit func(ast.Node) bool) {
	if e == nil || !visit(e) {
		return
	}
	switch ex := e.(type) {
	case *ast.ArrayLiteral:
		for _, el := range ex.Elements {
			walkExpr(el, visit)
		}
	case *ast.GroupExpr:
		walkExpr(ex.Inner, visit)
	case *ast.UnaryExpr:
		walkExpr(ex.Operand, visit)
	case *ast.BinaryExpr:
		walkExpr(ex.Left, visit)
		walkExpr(ex.Right, visit)
	case *ast.CallExpr:
		walkExpr(ex.Callee, visit)
		for _, a := range ex.Args {
			walkExpr(a, visit)
		}
	case *ast.IndexExpr:
		walkExpr(ex.Collection, visit)
		walkExpr(ex.Index, visit)
	case *ast.MemberExpr:
		walkExpr(ex.Object, visit)
	case *ast.AnonFn:
		walkStatements(ex.Body, visit)
	case *ast.BlockExpr:
		walkStatements(ex.Statements, visit)
	case *ast.MatchExpr:
		walkExpr(ex.Subject, visit)
		for _, arm := range ex.Arms {
			walkExpr(arm.Body, visit)
		}
	case *ast.TryExpr:
		walkExpr(ex.Inner, visit)
	}
}

// CheckSharedArg validates the Shared-mode rule the VM can enforce without
// any AST/binding context: a Shared argument must be one of the mutable,
// handle-backed collection types, since "mutable alias" is meaningless for
// an immutable scalar. Own's move-tracking and Borrow's escape-tracking
// need the source binding identity that bytecode has already erased by the
// time a call executes, so those two checks run only through CheckCallArg/
// CheckClosureCapture (pkg/interp); see DESIGN.md for the scope note.
func (e *Enforcer) CheckSharedArg(mode value.OwnershipMode, paramName string, arg value.Value, span diag.Span) error {
	if !e.enabled() || mode != value.Shared {
		return nil
	}
	switch arg.(type) {
	case value.Array, value.HashMap, value.HashSet, value.Queue, value.Stack:
		return nil
	default:
		return violation(fmt.Sprintf("%q requires a mutable (shared) collection, got %s", paramName, value.TypeName(arg)), span)
	}
}
