// Package interp implements a tree-walking evaluator over the same AST the
// compiler consumes. It exists as the parity oracle: given the same typed
// program, it must produce the same value displays and the same diagnostic
// codes as pkg/vm. Scoping, closure capture, call
// frames and error wrapping are all deliberately reimplementations of the
// same design pkg/vm/vm.go uses, not a shortcut through it — the two
// engines share no state or code path, only the diagnostic vocabulary in
// pkg/diag and the value representation in pkg/value.
package interp

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/atl-lang/atlas-sub003/pkg/ast"
	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/ownership"
	"github.com/atl-lang/atlas-sub003/pkg/value"
)

const maxCallDepth = 2048

// Env is a lexical scope: a frame of bindings plus a parent link. The
// top-level (global) frame is never snapshotted by closure creation —
// every other frame is, which is what gives closures by-value upvalue
// capture (see Closure below) rather than a live-shared-locals bug.
type Env struct {
	vars     map[string]value.Value
	parent   *Env
	isGlobal bool
}

func newEnv(parent *Env) *Env {
	return &Env{vars: map[string]value.Value{}, parent: parent}
}

func newGlobalEnv() *Env {
	return &Env{vars: map[string]value.Value{}, isGlobal: true}
}

func (e *Env) get(name string) (value.Value, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// set updates an existing binding in the nearest frame that has it,
// reporting false if name is unbound anywhere in the chain.
func (e *Env) set(name string, v value.Value) bool {
	for cur := e; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			cur.vars[name] = v
			return true
		}
	}
	return false
}

func (e *Env) define(name string, v value.Value) { e.vars[name] = v }

// lookupFrame returns the frame that owns name's binding, or nil if name is
// unbound. Its pointer, combined with name, is a stable ownership-tracking
// key for the lifetime of that particular binding: a shadowing redeclaration
// in an inner frame gets a different key and is unaffected by an outer move.
func (e *Env) lookupFrame(name string) *Env {
	for cur := e; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			return cur
		}
	}
	return nil
}

// snapshot freezes every non-global frame in the chain by copying its
// bindings into a fresh map, so later writes through the live chain are
// invisible to anything that captured this snapshot. The global frame is
// shared, not copied: globals always resolve dynamically by name, in both
// engines, regardless of nesting depth at closure-creation time.
func (e *Env) snapshot() *Env {
	if e == nil {
		return nil
	}
	if e.isGlobal {
		return e
	}
	cp := &Env{vars: make(map[string]value.Value, len(e.vars)), parent: e.parent.snapshot()}
	for k, v := range e.vars {
		cp.vars[k] = v
	}
	return cp
}

// Closure is every user-defined function value the interpreter produces,
// named or anonymous. Params/Body mirror the declaration; Env is the
// snapshot taken at creation time. Display always uses the "<fn name/arity>"
// form (pkg/vm distinguishes Function from Closure depending on whether the
// compiled function actually captured anything; the interpreter does not
// make that distinction, a known, narrow parity gap recorded in DESIGN.md —
// it only affects programs that print a function value directly).
type Closure struct {
	Name   string
	Params []ast.Param
	Body   []ast.Statement
	Env    *Env
}

func (c *Closure) Kind() value.Kind { return value.KindClosure }
func (c *Closure) Display() string {
	name := c.Name
	if name == "" {
		name = "anonymous"
	}
	return fmt.Sprintf("<fn %s/%d>", name, len(c.Params))
}
func (c *Closure) Inspect() string { return c.Display() }

// earlyReturn unwinds a TryExpr's Err/None short-circuit back to the
// nearest enclosing call frame, the same effect ReturnStmt gets via the
// flow-based statement protocol below. TryExpr needs a different mechanism
// because it can appear arbitrarily deep inside an expression, where
// threading a flow value back up through every evalExpression call would
// require rewriting the whole expression evaluator around a second return
// value; a panic recovered at the call boundary is the narrower change.
type earlyReturn struct{ value value.Value }

type flowKind int

const (
	flowNone flowKind = iota
	flowBreak
	flowContinue
	flowReturn
)

type flow struct {
	kind flowKind
	val  value.Value
}

var noFlow = flow{}

type callFrame struct {
	name string
	span diag.Span
}

// Quota enforces the same execution-time/step-count budget as vm.Quota,
// checked at the same two points: loop back-edges and call sites.
type Quota struct {
	Deadline time.Time
	MaxSteps int64
	steps    int64
}

// Interpreter walks a *ast.Program directly. It is safe to reuse across
// multiple Run calls: top-level `fn` declarations and natives persist in its
// global scope, while each Run gets a fresh script scope for top-level
// let/var bindings. It is not safe for concurrent use — execution is single-
// threaded and cooperative.
type Interpreter struct {
	globals *Env
	frames  []callFrame

	capability any
	quota      *Quota
	ownership  *ownership.Enforcer
}

func New() *Interpreter {
	return &Interpreter{globals: newGlobalEnv(), ownership: ownership.New(false)}
}

func (i *Interpreter) SetCapability(cap any) { i.capability = cap }
func (i *Interpreter) SetQuota(q *Quota)     { i.quota = q }

// SetOwnershipEnforcer installs the debug-gated own/borrow/shared checker;
// passing nil or an Enforcer with Enabled: false disables the checks
// entirely.
func (i *Interpreter) SetOwnershipEnforcer(e *ownership.Enforcer) { i.ownership = e }

func (i *Interpreter) checkQuota(span diag.Span) error {
	if i.quota == nil {
		return nil
	}
	i.quota.steps++
	if i.quota.MaxSteps > 0 && i.quota.steps > i.quota.MaxSteps {
		return i.runtimeErr(diag.QuotaExceeded, "execution step quota exceeded", span)
	}
	if !i.quota.Deadline.IsZero() && time.Now().After(i.quota.Deadline) {
		return i.runtimeErr(diag.QuotaExceeded, "execution time quota exceeded", span)
	}
	return nil
}

// DefineNative registers a host function into the global scope, exactly
// like (*vm.VM).DefineNative. Unlike the VM's globals table, the
// interpreter does not freeze native names — pkg/runtime registers them
// once at startup, before any Atlas source runs.
func (i *Interpreter) DefineNative(n *value.NativeFn) {
	i.globals.define(n.Name, n)
}

func (i *Interpreter) Global(name string) (value.Value, bool) {
	return i.globals.get(name)
}

// Run evaluates prog's top-level statements in a fresh script scope (whose
// parent is the global scope, holding top-level `fn`s and natives; top-level
// let/var bindings live in the script scope, like the VM's script-frame
// locals, so closures snapshot them by value) and returns
// null unless an explicit top-level `return` ended execution — matching the
// VM exactly, whose compiler emits an unconditional OpPop after every
// top-level expression statement, so its script frame falls through to
// OpHalt (returning null) unless a `return` produced a result. A bare
// trailing expression at top level is discarded, the same as anywhere else.
func (i *Interpreter) Run(prog *ast.Program) (result value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if er, ok := r.(earlyReturn); ok {
				result, err = er.val(), nil
				return
			}
			panic(r)
		}
	}()
	script := newEnv(i.globals)
	for _, stmt := range prog.Statements {
		f, ferr := i.execTopLevelStatement(stmt, script)
		if ferr != nil {
			return nil, ferr
		}
		if f.kind == flowReturn {
			return f.val, nil
		}
	}
	return value.TheNull, nil
}

func (er earlyReturn) val() value.Value { return er.value }

func (i *Interpreter) execTopLevelStatement(stmt ast.Statement, script *Env) (flow, error) {
	if decl, ok := stmt.(*ast.FnDecl); ok {
		return noFlow, i.defineTopLevelFn(decl, script)
	}
	return i.execStatement(stmt, script)
}

// defineTopLevelFn mirrors the compiler's OpSetGlobal freeze semantics
// (pkg/vm/vm.go's VM.frozen): a name may be defined once at top level by a
// `fn` declaration; redefining it is an ImmutabilityError, not a silent
// rebind.
func (i *Interpreter) defineTopLevelFn(decl *ast.FnDecl, script *Env) error {
	if _, exists := i.globals.vars[decl.Name]; exists {
		return i.runtimeErr(diag.ImmutabilityError, fmt.Sprintf("%q is already defined and cannot be reassigned", decl.Name), decl.Pos)
	}
	cl := &Closure{Name: decl.Name, Params: decl.Params, Body: decl.Body, Env: script.snapshot()}
	i.globals.define(decl.Name, cl)
	return nil
}

// ---- statements ----

func (i *Interpreter) execBlock(stmts []ast.Statement, env *Env) (flow, error) {
	for _, s := range stmts {
		f, err := i.execStatement(s, env)
		if err != nil {
			return noFlow, err
		}
		if f.kind != flowNone {
			return f, nil
		}
	}
	return noFlow, nil
}

func (i *Interpreter) execStatement(stmt ast.Statement, env *Env) (flow, error) {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		v, err := i.evalExpression(s.Init, env)
		if err != nil {
			return noFlow, err
		}
		retainAliasedBinding(s.Init, v)
		env.define(s.Name, v)
		return noFlow, nil
	case *ast.FnDecl:
		if err := i.ownership.CheckClosureCapture(s.Params, s.Body, s.Pos); err != nil {
			return noFlow, i.wrapDiag(err.(*diag.Diagnostic))
		}
		cl := &Closure{Name: s.Name, Params: s.Params, Body: s.Body, Env: env.snapshot()}
		env.define(s.Name, cl)
		return noFlow, nil
	case *ast.Assignment:
		return noFlow, i.execAssignment(s, env)
	case *ast.IncDec:
		delta := "+"
		if s.Op == "--" {
			delta = "-"
		}
		return noFlow, i.execAssignment(&ast.Assignment{Target: s.Target, Op: delta, Value: &ast.NumberLiteral{Val: 1, Pos: s.Pos}, Pos: s.Pos}, env)
	case *ast.IfStmt:
		return i.execIf(s, env)
	case *ast.WhileStmt:
		return i.execWhile(s, env)
	case *ast.ForStmt:
		return i.execFor(s, env)
	case *ast.ForInStmt:
		return i.execForIn(s, env)
	case *ast.ReturnStmt:
		if s.Value == nil {
			return flow{kind: flowReturn, val: value.TheNull}, nil
		}
		v, err := i.evalExpression(s.Value, env)
		if err != nil {
			return noFlow, err
		}
		return flow{kind: flowReturn, val: v}, nil
	case *ast.BreakStmt:
		return flow{kind: flowBreak}, nil
	case *ast.ContinueStmt:
		return flow{kind: flowContinue}, nil
	case *ast.ExprStmt:
		if _, err := i.evalExpression(s.Expr, env); err != nil {
			return noFlow, err
		}
		return noFlow, nil
	default:
		return noFlow, i.runtimeErr(diag.SyntaxError, fmt.Sprintf("unsupported statement %T", stmt), stmt.Span())
	}
}

func (i *Interpreter) execIf(s *ast.IfStmt, env *Env) (flow, error) {
	cond, err := i.evalExpression(s.Cond, env)
	if err != nil {
		return noFlow, err
	}
	if value.Truthy(cond) {
		return i.execBlock(s.Then, newEnv(env))
	}
	if s.Else != nil {
		return i.execBlock(s.Else, newEnv(env))
	}
	return noFlow, nil
}

func (i *Interpreter) execWhile(s *ast.WhileStmt, env *Env) (flow, error) {
	for {
		if err := i.checkQuota(s.Pos); err != nil {
			return noFlow, err
		}
		cond, err := i.evalExpression(s.Cond, env)
		if err != nil {
			return noFlow, err
		}
		if !value.Truthy(cond) {
			return noFlow, nil
		}
		f, err := i.execBlock(s.Body, newEnv(env))
		if err != nil {
			return noFlow, err
		}
		switch f.kind {
		case flowBreak:
			return noFlow, nil
		case flowReturn:
			return f, nil
		}
	}
}

func (i *Interpreter) execFor(s *ast.ForStmt, env *Env) (flow, error) {
	loopEnv := newEnv(env)
	if s.Init != nil {
		if _, err := i.execStatement(s.Init, loopEnv); err != nil {
			return noFlow, err
		}
	}
	for {
		if err := i.checkQuota(s.Pos); err != nil {
			return noFlow, err
		}
		if s.Cond != nil {
			cond, err := i.evalExpression(s.Cond, loopEnv)
			if err != nil {
				return noFlow, err
			}
			if !value.Truthy(cond) {
				return noFlow, nil
			}
		}
		f, err := i.execBlock(s.Body, newEnv(loopEnv))
		if err != nil {
			return noFlow, err
		}
		if f.kind == flowBreak {
			return noFlow, nil
		}
		if f.kind == flowReturn {
			return f, nil
		}
		if s.Post != nil {
			if _, err := i.execStatement(s.Post, loopEnv); err != nil {
				return noFlow, err
			}
		}
	}
}

// execForIn iterates Array values by index only, matching the VM's
// OpGetArrayLen-based loop (pkg/compiler's compileForIn) so the same
// program behaves identically in both engines; other collection kinds must
// be converted to an Array first (e.g. via `values`/`hashSetMap`).
func (i *Interpreter) execForIn(s *ast.ForInStmt, env *Env) (flow, error) {
	coll, err := i.evalExpression(s.Iter, env)
	if err != nil {
		return noFlow, err
	}
	arr, ok := coll.(value.Array)
	if !ok {
		return noFlow, i.runtimeErr(diag.TypeError, fmt.Sprintf("for-in expected Array, got %s", value.TypeName(coll)), s.Pos)
	}
	for idx := 0; idx < arr.Len(); idx++ {
		if err := i.checkQuota(s.Pos); err != nil {
			return noFlow, err
		}
		el, _ := arr.Get(idx)
		bodyEnv := newEnv(env)
		bodyEnv.define(s.Binding, el)
		f, err := i.execBlock(s.Body, bodyEnv)
		if err != nil {
			return noFlow, err
		}
		if f.kind == flowBreak {
			return noFlow, nil
		}
		if f.kind == flowReturn {
			return f, nil
		}
	}
	return noFlow, nil
}

// ---- assignment ----

func (i *Interpreter) execAssignment(a *ast.Assignment, env *Env) error {
	switch t := a.Target.(type) {
	case *ast.Identifier:
		v, err := i.computeAssignValue(a, env, func() (value.Value, error) { return i.loadIdentifier(t.Name, env, a.Pos) })
		if err != nil {
			return err
		}
		if a.Op == "" {
			retainAliasedBinding(a.Value, v)
		}
		if !env.set(t.Name, v) {
			return i.runtimeErr(diag.UndefinedSymbol, fmt.Sprintf("undefined symbol %q", t.Name), a.Pos)
		}
		return nil
	case *ast.IndexExpr:
		return i.execIndexedAssignment(t.Collection, t.Index, a, env)
	case *ast.MemberExpr:
		return i.execIndexedAssignment(t.Object, &ast.StringLiteral{Val: t.Name, Pos: t.Pos}, a, env)
	default:
		return i.runtimeErr(diag.SyntaxError, "invalid assignment target", a.Pos)
	}
}

func (i *Interpreter) loadIdentifier(name string, env *Env, span diag.Span) (value.Value, error) {
	frame := env.lookupFrame(name)
	if frame == nil {
		return nil, i.runtimeErr(diag.UndefinedSymbol, fmt.Sprintf("undefined symbol %q", name), span)
	}
	if err := i.ownership.CheckRead(bindingKey(frame, name), name, span); err != nil {
		return nil, i.wrapDiag(err.(*diag.Diagnostic))
	}
	return frame.vars[name], nil
}

func bindingKey(frame *Env, name string) string {
	return fmt.Sprintf("%p:%s", frame, name)
}

// retainAliasedBinding marks v as a new alias of an existing handle when
// srcExpr is a bare identifier — the `let b = a;`/`b = a;` case where the
// new binding shares a's storage rather than owning a value freshly built
// by this evaluation (an array literal, a call result, an arithmetic
// expression...). Only identifier sources alias; everything else already
// produced a value nothing else points at.
func retainAliasedBinding(srcExpr ast.Expression, v value.Value) {
	if _, ok := srcExpr.(*ast.Identifier); !ok {
		return
	}
	if r, ok := v.(value.Retainable); ok {
		r.Retain()
	}
}

func (i *Interpreter) computeAssignValue(a *ast.Assignment, env *Env, loadCurrent func() (value.Value, error)) (value.Value, error) {
	if a.Op == "" {
		return i.evalExpression(a.Value, env)
	}
	cur, err := loadCurrent()
	if err != nil {
		return nil, err
	}
	rhs, err := i.evalExpression(a.Value, env)
	if err != nil {
		return nil, err
	}
	return i.binaryOp(a.Op, cur, rhs, a.Pos)
}

func (i *Interpreter) execIndexedAssignment(collExpr, idxExpr ast.Expression, a *ast.Assignment, env *Env) error {
	coll, err := i.evalExpression(collExpr, env)
	if err != nil {
		return err
	}
	idx, err := i.evalExpression(idxExpr, env)
	if err != nil {
		return err
	}
	newVal, err := i.computeAssignValue(a, env, func() (value.Value, error) { return i.getIndex(coll, idx, a.Pos) })
	if err != nil {
		return err
	}
	out, err := i.setIndex(coll, idx, newVal, a.Pos)
	if err != nil {
		return err
	}
	if id, ok := collExpr.(*ast.Identifier); ok {
		if !env.set(id.Name, out) {
			return i.runtimeErr(diag.UndefinedSymbol, fmt.Sprintf("undefined symbol %q", id.Name), a.Pos)
		}
	}
	return nil
}

// ---- expressions ----

func (i *Interpreter) evalExpression(expr ast.Expression, env *Env) (value.Value, error) {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		return value.Number(e.Val), nil
	case *ast.StringLiteral:
		return value.NewString(e.Val), nil
	case *ast.BoolLiteral:
		return value.Bool(e.Val), nil
	case *ast.NullLiteral:
		return value.TheNull, nil
	case *ast.Identifier:
		return i.loadIdentifier(e.Name, env, e.Pos)
	case *ast.ArrayLiteral:
		items := make([]value.Value, len(e.Elements))
		for idx, el := range e.Elements {
			v, err := i.evalExpression(el, env)
			if err != nil {
				return nil, err
			}
			items[idx] = v
		}
		return value.NewArray(items), nil
	case *ast.GroupExpr:
		return i.evalExpression(e.Inner, env)
	case *ast.UnaryExpr:
		return i.evalUnary(e, env)
	case *ast.BinaryExpr:
		return i.evalBinary(e, env)
	case *ast.CallExpr:
		return i.evalCall(e, env)
	case *ast.IndexExpr:
		coll, err := i.evalExpression(e.Collection, env)
		if err != nil {
			return nil, err
		}
		idx, err := i.evalExpression(e.Index, env)
		if err != nil {
			return nil, err
		}
		return i.getIndex(coll, idx, e.Pos)
	case *ast.MemberExpr:
		obj, err := i.evalExpression(e.Object, env)
		if err != nil {
			return nil, err
		}
		return i.getIndex(obj, value.NewString(e.Name), e.Pos)
	case *ast.AnonFn:
		if err := i.ownership.CheckClosureCapture(e.Params, e.Body, e.Pos); err != nil {
			return nil, i.wrapDiag(err.(*diag.Diagnostic))
		}
		return &Closure{Params: e.Params, Body: e.Body, Env: env.snapshot()}, nil
	case *ast.BlockExpr:
		return i.evalBlockExpr(e, env)
	case *ast.MatchExpr:
		return i.evalMatch(e, env)
	case *ast.TryExpr:
		return i.evalTry(e, env)
	default:
		return nil, i.runtimeErr(diag.SyntaxError, fmt.Sprintf("unsupported expression %T", expr), expr.Span())
	}
}

func (i *Interpreter) evalUnary(e *ast.UnaryExpr, env *Env) (value.Value, error) {
	v, err := i.evalExpression(e.Operand, env)
	if err != nil {
		return nil, err
	}
	if e.Op == "-" {
		n, ok := v.(value.Number)
		if !ok {
			return nil, i.runtimeErr(diag.TypeError, fmt.Sprintf("expected Number, got %s", value.TypeName(v)), e.Pos)
		}
		return -n, nil
	}
	return value.Bool(!value.Truthy(v)), nil
}

func (i *Interpreter) evalBinary(e *ast.BinaryExpr, env *Env) (value.Value, error) {
	if e.Op == "&&" {
		l, err := i.evalExpression(e.Left, env)
		if err != nil {
			return nil, err
		}
		if !value.Truthy(l) {
			return l, nil
		}
		return i.evalExpression(e.Right, env)
	}
	if e.Op == "||" {
		l, err := i.evalExpression(e.Left, env)
		if err != nil {
			return nil, err
		}
		if value.Truthy(l) {
			return l, nil
		}
		return i.evalExpression(e.Right, env)
	}
	l, err := i.evalExpression(e.Left, env)
	if err != nil {
		return nil, err
	}
	r, err := i.evalExpression(e.Right, env)
	if err != nil {
		return nil, err
	}
	return i.binaryOp(e.Op, l, r, e.Pos)
}

func (i *Interpreter) binaryOp(op string, l, r value.Value, span diag.Span) (value.Value, error) {
	switch op {
	case "+", "-", "*", "/", "%":
		return i.arith(op, l, r, span)
	case "==":
		return value.Bool(value.Equal(l, r)), nil
	case "!=":
		return value.Bool(!value.Equal(l, r)), nil
	case "<", "<=", ">", ">=":
		return i.compare(op, l, r, span)
	default:
		return nil, i.runtimeErr(diag.SyntaxError, fmt.Sprintf("unknown operator %q", op), span)
	}
}

// arith mirrors vm.arith exactly: Number-only operands, DivideByZero before
// Div/Mod, and a NaN/Inf post-check on every result (not just the
// division-by-zero case), since overflow can also produce a non-finite
// Number.
func (i *Interpreter) arith(op string, l, r value.Value, span diag.Span) (value.Value, error) {
	ln, ok := l.(value.Number)
	if !ok {
		return nil, i.runtimeErr(diag.TypeError, fmt.Sprintf("expected Number, got %s", value.TypeName(l)), span)
	}
	rn, ok := r.(value.Number)
	if !ok {
		return nil, i.runtimeErr(diag.TypeError, fmt.Sprintf("expected Number, got %s", value.TypeName(r)), span)
	}
	var result value.Number
	switch op {
	case "+":
		result = ln + rn
	case "-":
		result = ln - rn
	case "*":
		result = ln * rn
	case "/":
		if rn == 0 {
			return nil, i.runtimeErr(diag.DivideByZero, "division by zero", span)
		}
		result = ln / rn
	case "%":
		if rn == 0 {
			return nil, i.runtimeErr(diag.DivideByZero, "modulo by zero", span)
		}
		result = value.Number(math.Mod(float64(ln), float64(rn)))
	}
	if f := float64(result); math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, i.runtimeErr(diag.NaNOrInfinity, "arithmetic produced NaN or infinity", span)
	}
	return result, nil
}

func (i *Interpreter) compare(op string, l, r value.Value, span diag.Span) (value.Value, error) {
	ln, ok := l.(value.Number)
	if !ok {
		return nil, i.runtimeErr(diag.TypeError, fmt.Sprintf("expected Number, got %s", value.TypeName(l)), span)
	}
	rn, ok := r.(value.Number)
	if !ok {
		return nil, i.runtimeErr(diag.TypeError, fmt.Sprintf("expected Number, got %s", value.TypeName(r)), span)
	}
	switch op {
	case "<":
		return value.Bool(ln < rn), nil
	case "<=":
		return value.Bool(ln <= rn), nil
	case ">":
		return value.Bool(ln > rn), nil
	default:
		return value.Bool(ln >= rn), nil
	}
}

// getIndex/setIndex mirror vm.getIndex/vm.setIndex: a HashMap read with an
// absent key yields null rather than erroring, since MemberExpr compiles to
// the same path as string-keyed indexing and a missing field should read as
// null, not crash.
func (i *Interpreter) getIndex(coll, idx value.Value, span diag.Span) (value.Value, error) {
	switch c := coll.(type) {
	case value.Array:
		n, ok := idx.(value.Number)
		if !ok {
			return nil, i.runtimeErr(diag.TypeError, fmt.Sprintf("array index must be a Number, got %s", value.TypeName(idx)), span)
		}
		el, ok := c.Get(int(n))
		if !ok {
			return nil, i.runtimeErr(diag.IndexOutOfBounds, fmt.Sprintf("index %s out of bounds for array of length %d", n.Display(), c.Len()), span)
		}
		return el, nil
	case value.HashMap:
		el, ok := c.Get(idx)
		if !ok {
			return value.TheNull, nil
		}
		return el, nil
	default:
		return nil, i.runtimeErr(diag.TypeError, fmt.Sprintf("%s is not indexable", value.TypeName(coll)), span)
	}
}

func (i *Interpreter) setIndex(coll, idx, newVal value.Value, span diag.Span) (value.Value, error) {
	switch c := coll.(type) {
	case value.Array:
		n, ok := idx.(value.Number)
		if !ok {
			return nil, i.runtimeErr(diag.TypeError, fmt.Sprintf("array index must be a Number, got %s", value.TypeName(idx)), span)
		}
		cloned := c.CloneForWrite()
		if !cloned.SetIndex(int(n), newVal) {
			return nil, i.runtimeErr(diag.IndexOutOfBounds, fmt.Sprintf("index %s out of bounds for array of length %d", n.Display(), c.Len()), span)
		}
		return cloned, nil
	case value.HashMap:
		cloned := c.CloneForWrite()
		cloned.Put(idx, newVal)
		return cloned, nil
	default:
		return nil, i.runtimeErr(diag.TypeError, fmt.Sprintf("%s is not assignable by index", value.TypeName(coll)), span)
	}
}

func (i *Interpreter) evalBlockExpr(b *ast.BlockExpr, env *Env) (value.Value, error) {
	if len(b.Statements) == 0 {
		return value.TheNull, nil
	}
	blockEnv := newEnv(env)
	for _, s := range b.Statements[:len(b.Statements)-1] {
		f, err := i.execStatement(s, blockEnv)
		if err != nil {
			return nil, err
		}
		if f.kind == flowReturn {
			panic(earlyReturn{value: f.val})
		}
	}
	last := b.Statements[len(b.Statements)-1]
	if es, ok := last.(*ast.ExprStmt); ok {
		return i.evalExpression(es.Expr, blockEnv)
	}
	f, err := i.execStatement(last, blockEnv)
	if err != nil {
		return nil, err
	}
	if f.kind == flowReturn {
		panic(earlyReturn{value: f.val})
	}
	return value.TheNull, nil
}

func (i *Interpreter) evalMatch(m *ast.MatchExpr, env *Env) (value.Value, error) {
	subj, err := i.evalExpression(m.Subject, env)
	if err != nil {
		return nil, err
	}
	for _, arm := range m.Arms {
		if _, ok := arm.Pattern.(*ast.WildcardPattern); ok {
			return i.evalExpression(arm.Body, env)
		}
		matched, extracted, binding := matchPattern(subj, arm.Pattern)
		if !matched {
			continue
		}
		armEnv := newEnv(env)
		if binding != "" {
			armEnv.define(binding, extracted)
		}
		return i.evalExpression(arm.Body, armEnv)
	}
	return value.TheNull, nil
}

func matchPattern(subj value.Value, p ast.Pattern) (matched bool, extracted value.Value, binding string) {
	switch pat := p.(type) {
	case *ast.SomePattern:
		o, ok := subj.(*value.Option)
		if ok && o.Present {
			return true, o.Inner, pat.Binding
		}
		return false, nil, ""
	case *ast.NonePattern:
		o, ok := subj.(*value.Option)
		return ok && !o.Present, nil, ""
	case *ast.OkPattern:
		r, ok := subj.(*value.Result)
		if ok && r.IsOk {
			return true, r.Inner, pat.Binding
		}
		return false, nil, ""
	case *ast.ErrPattern:
		r, ok := subj.(*value.Result)
		if ok && !r.IsOk {
			return true, r.Inner, pat.Binding
		}
		return false, nil, ""
	default:
		_, ok := subj.(value.Array)
		return ok, nil, ""
	}
}

// evalTry mirrors compileTry: Err(..)/None short-circuit the enclosing
// function (via the earlyReturn panic, recovered in invokeClosure/Run);
// Ok(..)/Some(..) unwraps; anything else passes through unchanged.
func (i *Interpreter) evalTry(t *ast.TryExpr, env *Env) (value.Value, error) {
	v, err := i.evalExpression(t.Inner, env)
	if err != nil {
		return nil, err
	}
	switch inner := v.(type) {
	case *value.Result:
		if !inner.IsOk {
			panic(earlyReturn{value: v})
		}
		return inner.Inner, nil
	case *value.Option:
		if !inner.Present {
			panic(earlyReturn{value: v})
		}
		return inner.Inner, nil
	default:
		return v, nil
	}
}

// ---- calls ----

// mutationBuiltins duplicates pkg/compiler's rebind table: both engines
// must implement the write-back rebind identically, and the interpreter has
// no shared compile step to hang it on.
var mutationBuiltins = map[string]bool{
	"push":          true,
	"insert":        true,
	"hashMapPut":    true,
	"hashMapDelete": true,
	"hashSetAdd":    true,
	"hashSetRemove": true,
	"enqueue":       true,
	"stackPush":     true,
}

func (i *Interpreter) evalCall(e *ast.CallExpr, env *Env) (value.Value, error) {
	callee, err := i.evalExpression(e.Callee, env)
	if err != nil {
		return nil, err
	}
	args := make([]value.Value, len(e.Args))
	for idx, a := range e.Args {
		v, err := i.evalExpression(a, env)
		if err != nil {
			return nil, err
		}
		args[idx] = v
	}
	closure, isClosure := callee.(*Closure)
	var borrowedNames []string
	if isClosure {
		for idx, p := range closure.Params {
			if idx >= len(e.Args) {
				break
			}
			ident, ok := e.Args[idx].(*ast.Identifier)
			if !ok {
				continue
			}
			key := bindingKey(env.lookupFrame(ident.Name), ident.Name)
			if err := i.ownership.CheckCallArg(p.Ownership, p.Name, key, e.Pos); err != nil {
				return nil, i.wrapDiag(err.(*diag.Diagnostic))
			}
			if p.Ownership == value.Borrow || p.Ownership == value.Shared {
				if r, ok := args[idx].(value.Retainable); ok {
					r.Retain()
				}
			}
			if p.Ownership == value.Borrow {
				i.ownership.EnterBorrow(ident.Name)
				borrowedNames = append(borrowedNames, ident.Name)
			}
		}
	}
	result, err := i.CallValue(callee, args)
	for range borrowedNames {
		i.ownership.ExitBorrow()
	}
	if err != nil {
		return nil, err
	}
	if ident, ok := e.Callee.(*ast.Identifier); ok && mutationBuiltins[ident.Name] && len(e.Args) > 0 {
		if err := i.rebindMutationTarget(e.Args[0], result, env); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (i *Interpreter) rebindMutationTarget(target ast.Expression, result value.Value, env *Env) error {
	switch t := target.(type) {
	case *ast.Identifier:
		env.set(t.Name, result)
		return nil
	case *ast.IndexExpr:
		return i.rebindIndexed(t.Collection, t.Index, result, env)
	case *ast.MemberExpr:
		return i.rebindIndexed(t.Object, &ast.StringLiteral{Val: t.Name, Pos: t.Pos}, result, env)
	}
	return nil
}

func (i *Interpreter) rebindIndexed(collExpr, idxExpr ast.Expression, result value.Value, env *Env) error {
	coll, err := i.evalExpression(collExpr, env)
	if err != nil {
		return err
	}
	idx, err := i.evalExpression(idxExpr, env)
	if err != nil {
		return err
	}
	out, err := i.setIndex(coll, idx, result, collExpr.Span())
	if err != nil {
		return err
	}
	if id, ok := collExpr.(*ast.Identifier); ok {
		env.set(id.Name, out)
	}
	return nil
}

// CallValue invokes fn with args. It is the Caller pkg/builtins' higher-
// order intrinsics (map, filter, reduce, ...) use to call back into Atlas
// closures without pkg/builtins importing this package.
func (i *Interpreter) CallValue(fn value.Value, args []value.Value) (value.Value, error) {
	switch c := fn.(type) {
	case *Closure:
		return i.invokeClosure(c, args, diag.Span{})
	case *value.NativeFn:
		return i.callNative(c, args, diag.Span{})
	default:
		return nil, i.runtimeErr(diag.NonCallable, fmt.Sprintf("value of type %s is not callable", value.TypeName(fn)), diag.Span{})
	}
}

func (i *Interpreter) callNative(n *value.NativeFn, args []value.Value, span diag.Span) (value.Value, error) {
	if n.Arity >= 0 && len(args) != n.Arity {
		return nil, i.runtimeErr(diag.ArityMismatch, fmt.Sprintf("%s expects %d argument(s), got %d", n.Name, n.Arity, len(args)), span)
	}
	result, err := n.Fn(i.capability, args)
	if err != nil {
		if d, ok := err.(*diag.Diagnostic); ok {
			return nil, i.wrapDiag(d)
		}
		return nil, i.runtimeErr(diag.TypeError, err.Error(), span)
	}
	return result, nil
}

// invokeClosure binds the closure's own name in the fresh call frame before
// its parameters, mirroring the VM's locals[0]=calleeVal convention: a
// self-recursive call resolves through the ordinary identifier lookup path
// instead of needing the captured-by-value Env to somehow stay live.
func (i *Interpreter) invokeClosure(c *Closure, args []value.Value, span diag.Span) (result value.Value, err error) {
	if len(args) != len(c.Params) {
		return nil, i.runtimeErr(diag.ArityMismatch, fmt.Sprintf("%s expects %d argument(s), got %d", frameName(c), len(c.Params), len(args)), span)
	}
	if len(i.frames) >= maxCallDepth {
		return nil, i.runtimeErr(diag.QuotaExceeded, "maximum call depth exceeded", span)
	}
	if err := i.checkQuota(span); err != nil {
		return nil, err
	}
	callEnv := newEnv(c.Env)
	if c.Name != "" {
		callEnv.define(c.Name, c)
	}
	for idx, p := range c.Params {
		callEnv.define(p.Name, args[idx])
	}
	i.frames = append(i.frames, callFrame{name: frameName(c), span: span})
	defer func() { i.frames = i.frames[:len(i.frames)-1] }()
	defer func() {
		if r := recover(); r != nil {
			if er, ok := r.(earlyReturn); ok {
				result, err = er.value, nil
				return
			}
			panic(r)
		}
	}()
	f, ferr := i.execBlock(c.Body, callEnv)
	if ferr != nil {
		return nil, ferr
	}
	if f.kind == flowReturn {
		return f.val, nil
	}
	return value.TheNull, nil
}

func frameName(c *Closure) string {
	if c.Name == "" {
		return "<anonymous>"
	}
	return c.Name
}

// ---- diagnostics ----

// StackFrame and RuntimeError mirror pkg/vm/errors.go's shapes (the same
// field names apart from the VM's IP, the same Error() layout) without
// importing pkg/vm: the
// two engines are independent siblings, and parity is checked on
// Diag.Code/Diag.Message, never on stack trace contents, so a structurally
// identical sibling type is enough. The interpreter has no instruction
// pointer, so frames render without the "(ip N)" suffix the VM's do.
type StackFrame struct {
	Name string
	Span diag.Span
}

type RuntimeError struct {
	Diag       *diag.Diagnostic
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Diag.Error())
	if len(e.StackTrace) > 0 {
		b.WriteString("\n\nstack trace:")
		for idx := len(e.StackTrace) - 1; idx >= 0; idx-- {
			f := e.StackTrace[idx]
			b.WriteString(fmt.Sprintf("\n  at %s", f.Name))
			if f.Span.Line > 0 {
				b.WriteString(fmt.Sprintf(" [%s]", f.Span.String()))
			}
		}
	}
	return b.String()
}

func (e *RuntimeError) Unwrap() error { return e.Diag }

func (i *Interpreter) runtimeErr(code, msg string, span diag.Span) error {
	return i.wrapDiag(diag.New(code, msg, span))
}

// wrapDiag snapshots the current call-frame stack outermost-first (the order
// the frames were entered); RuntimeError.Error() prints it innermost-first,
// as pkg/vm/errors.go does. The text still differs from the VM's, which adds
// a "<script>" frame and an "(ip N)" suffix per frame.
func (i *Interpreter) wrapDiag(d *diag.Diagnostic) error {
	trace := make([]StackFrame, len(i.frames))
	for idx, f := range i.frames {
		trace[idx] = StackFrame{Name: f.name, Span: f.span}
	}
	return &RuntimeError{Diag: d, StackTrace: trace}
}
