// Package compiler compiles an Atlas AST into bytecode for pkg/vm.
//
// Name resolution order is local -> upvalue -> global, exactly mirroring
// pkg/interp's scope-chain walk so both engines agree on every binding.
// Every function frame reserves local slot 0 for a reference to the
// callable currently executing it: a named function's own name is bound to
// that slot inside its own body, so self-recursive calls resolve through
// the ordinary local/upvalue machinery instead of needing a live
// (non-snapshotted) self-upvalue — upvalues are still captured strictly by
// value at closure-creation time (see pkg/value.Closure), which is what
// fixes the live-shared-locals bug this compiler's ancestor had.
package compiler

import (
	"fmt"

	"github.com/atl-lang/atlas-sub003/pkg/ast"
	"github.com/atl-lang/atlas-sub003/pkg/bytecode"
	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/value"
)

type localVar struct {
	name string
	slot int16
}

type funcScope struct {
	parent   *funcScope
	locals   []localVar
	upvalues []value.UpvalueCapture
	nextSlot int16
}

type loopCtx struct {
	breakPatches    []int
	continueIsBack  bool
	continueBackTgt int
	continuePatches []int
}

// Compiler turns a *ast.Program into a *bytecode.Bytecode.
type Compiler struct {
	chunk  *bytecode.Chunk
	file   string
	scope  *funcScope
	loops  []*loopCtx
	errors []*diag.Diagnostic
}

func New(file string) *Compiler {
	return &Compiler{chunk: bytecode.NewChunk(), file: file, scope: &funcScope{}}
}

func (c *Compiler) errorf(span diag.Span, format string, args ...any) {
	c.errors = append(c.errors, diag.New(diag.SyntaxError, fmt.Sprintf(format, args...), span))
}

// Compile compiles the whole program, returning the finished Bytecode and a
// combined error if anything failed to compile.
func (c *Compiler) Compile(prog *ast.Program) (*bytecode.Bytecode, error) {
	for _, stmt := range prog.Statements {
		c.compileTopLevelStatement(stmt)
	}
	c.chunk.Emit(bytecode.OpHalt, diag.Span{})
	c.chunk.SetTopLevelLocals(c.scope.nextSlot)
	if len(c.errors) > 0 {
		return c.chunk.Bytecode(), fmt.Errorf("%d compile error(s); first: %s", len(c.errors), c.errors[0].Error())
	}
	return c.chunk.Bytecode(), nil
}

func (c *Compiler) compileTopLevelStatement(stmt ast.Statement) {
	if decl, ok := stmt.(*ast.FnDecl); ok {
		c.compileNamedFnDecl(decl, true)
		return
	}
	c.compileStatement(stmt)
}

// ---- scope helpers ----

func (c *Compiler) declareLocal(name string) int16 {
	slot := c.scope.nextSlot
	c.scope.nextSlot++
	c.scope.locals = append(c.scope.locals, localVar{name: name, slot: slot})
	return slot
}

func (c *Compiler) declareTempLocal() int16 {
	slot := c.scope.nextSlot
	c.scope.nextSlot++
	return slot
}

func resolveLocal(fs *funcScope, name string) (int16, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return fs.locals[i].slot, true
		}
	}
	return 0, false
}

func addUpvalue(fs *funcScope, fromLocal bool, index int16) int16 {
	for i, u := range fs.upvalues {
		if u.FromLocal == fromLocal && u.Index == int(index) {
			return int16(i)
		}
	}
	fs.upvalues = append(fs.upvalues, value.UpvalueCapture{FromLocal: fromLocal, Index: int(index)})
	return int16(len(fs.upvalues) - 1)
}

func resolveUpvalue(fs *funcScope, name string) (int16, bool) {
	if fs.parent == nil {
		return 0, false
	}
	if slot, ok := resolveLocal(fs.parent, name); ok {
		return addUpvalue(fs, true, slot), true
	}
	if idx, ok := resolveUpvalue(fs.parent, name); ok {
		return addUpvalue(fs, false, idx), true
	}
	return 0, false
}

// resolve returns "local"/"upvalue"/"global" and the associated index
// (meaningless for "global", which is always looked up by name at runtime).
func (c *Compiler) resolve(name string) (string, int16) {
	if slot, ok := resolveLocal(c.scope, name); ok {
		return "local", slot
	}
	if idx, ok := resolveUpvalue(c.scope, name); ok {
		return "upvalue", idx
	}
	return "global", 0
}

func (c *Compiler) emitLoad(name string, span diag.Span) {
	kind, idx := c.resolve(name)
	switch kind {
	case "local":
		c.chunk.EmitOperand16(bytecode.OpGetLocal, idx, span)
	case "upvalue":
		c.chunk.EmitOperand16(bytecode.OpGetUpvalue, idx, span)
	default:
		nameIdx := c.chunk.AddConstant(value.NewString(name))
		c.chunk.EmitOperand16(bytecode.OpGetGlobal, nameIdx, span)
	}
}

// emitStore stores the stack top into name's binding, leaving the value on
// the stack (SetLocal/SetGlobal/SetUpvalue all peek, per their opcode
// contract), so statement-level callers must Pop afterward.
func (c *Compiler) emitStore(name string, span diag.Span) {
	kind, idx := c.resolve(name)
	switch kind {
	case "local":
		c.chunk.EmitOperand16(bytecode.OpSetLocal, idx, span)
	case "upvalue":
		c.chunk.EmitOperand16(bytecode.OpSetUpvalue, idx, span)
	default:
		nameIdx := c.chunk.AddConstant(value.NewString(name))
		c.chunk.EmitOperand16(bytecode.OpSetGlobal, nameIdx, span)
	}
}

// emitRetainIfAliased marks the value currently on top of the stack as a
// new alias of an existing handle when srcExpr is a bare identifier — the
// `let b = a;`/`b = a;` case where the new binding shares a's storage
// rather than owning a value this expression built fresh (an array
// literal, a call result, arithmetic...). The compiler can tell the two
// cases apart here because it still has srcExpr; by the time the VM
// executes SetLocal/SetGlobal that distinction is gone, which is why this
// has to be a compile-time decision rather than a runtime one.
func (c *Compiler) emitRetainIfAliased(srcExpr ast.Expression, span diag.Span) {
	if _, ok := srcExpr.(*ast.Identifier); ok {
		c.chunk.Emit(bytecode.OpRetain, span)
	}
}

// ---- functions & closures ----

// compileFunctionLiteral compiles a function body out-of-line in the shared
// instruction stream, jumping over it at the declaration site. Returns the
// constant pool index of the resulting value.FunctionRef and the upvalue
// captures its body required (empty if it closes over nothing).
func (c *Compiler) compileFunctionLiteral(name string, params []ast.Param, retOwned value.OwnershipMode, body []ast.Statement, span diag.Span) (int16, []value.UpvalueCapture) {
	ref := &value.FunctionRef{Name: name, ReturnOwned: retOwned}
	for _, p := range params {
		ref.Params = append(ref.Params, value.ParamMeta{Name: p.Name, Ownership: p.Ownership})
	}
	funcIdx := c.chunk.AddFunctionConstant(ref)

	jumpOver := c.chunk.EmitOperand16(bytecode.OpJump, 0, span)
	entryOffset := c.chunk.Len()

	parent := c.scope
	fs := &funcScope{parent: parent}
	c.scope = fs
	if name != "" {
		fs.locals = append(fs.locals, localVar{name: name, slot: fs.nextSlot})
	}
	fs.nextSlot++
	for _, p := range params {
		fs.locals = append(fs.locals, localVar{name: p.Name, slot: fs.nextSlot})
		fs.nextSlot++
	}

	c.compileBlock(body)
	if !endsInReturn(body) {
		c.chunk.Emit(bytecode.OpNull, span)
		c.chunk.Emit(bytecode.OpReturn, span)
	}

	localSlotCount := fs.nextSlot
	upvalues := fs.upvalues
	c.scope = parent

	c.chunk.PatchOperand16(jumpOver, int16(c.chunk.Len()-(jumpOver+3)))

	ref.EntryOffset = entryOffset
	ref.LocalSlotCount = int(localSlotCount)
	ref.UpvalueCaptures = upvalues
	return funcIdx, upvalues
}

func endsInReturn(body []ast.Statement) bool {
	if len(body) == 0 {
		return false
	}
	_, ok := body[len(body)-1].(*ast.ReturnStmt)
	return ok
}

// pushFunctionValue emits the code to leave the compiled function's runtime
// value on the stack: a bare Constant if it captured nothing, or a
// MakeClosure sequence if it did.
func (c *Compiler) pushFunctionValue(funcIdx int16, upvalues []value.UpvalueCapture, span diag.Span) {
	if len(upvalues) == 0 {
		c.chunk.EmitOperand16(bytecode.OpConstant, funcIdx, span)
		return
	}
	for _, u := range upvalues {
		if u.FromLocal {
			c.chunk.EmitOperand16(bytecode.OpGetLocal, int16(u.Index), span)
		} else {
			c.chunk.EmitOperand16(bytecode.OpGetUpvalue, int16(u.Index), span)
		}
	}
	c.chunk.EmitClosure(funcIdx, int16(len(upvalues)), span)
}

func (c *Compiler) compileNamedFnDecl(decl *ast.FnDecl, global bool) {
	funcIdx, upvalues := c.compileFunctionLiteral(decl.Name, decl.Params, decl.ReturnOwned, decl.Body, decl.Pos)
	c.pushFunctionValue(funcIdx, upvalues, decl.Pos)
	if global {
		nameIdx := c.chunk.AddConstant(value.NewString(decl.Name))
		c.chunk.EmitOperand16(bytecode.OpSetGlobal, nameIdx, decl.Pos)
		c.chunk.Emit(bytecode.OpPop, decl.Pos)
		return
	}
	slot := c.declareLocal(decl.Name)
	c.chunk.EmitOperand16(bytecode.OpSetLocal, slot, decl.Pos)
	c.chunk.Emit(bytecode.OpPop, decl.Pos)
}

// ---- statements ----

func (c *Compiler) compileBlock(stmts []ast.Statement) {
	for _, s := range stmts {
		c.compileStatement(s)
	}
}

func (c *Compiler) compileStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		c.compileExpression(s.Init)
		c.emitRetainIfAliased(s.Init, s.Pos)
		slot := c.declareLocal(s.Name)
		c.chunk.EmitOperand16(bytecode.OpSetLocal, slot, s.Pos)
		c.chunk.Emit(bytecode.OpPop, s.Pos)
	case *ast.FnDecl:
		c.compileNamedFnDecl(s, false)
	case *ast.Assignment:
		c.compileAssignment(s)
	case *ast.IncDec:
		delta := "+"
		if s.Op == "--" {
			delta = "-"
		}
		c.compileAssignment(&ast.Assignment{Target: s.Target, Op: delta, Value: &ast.NumberLiteral{Val: 1, Pos: s.Pos}, Pos: s.Pos})
	case *ast.IfStmt:
		c.compileIf(s)
	case *ast.WhileStmt:
		c.compileWhile(s)
	case *ast.ForStmt:
		c.compileFor(s)
	case *ast.ForInStmt:
		c.compileForIn(s)
	case *ast.ReturnStmt:
		if s.Value != nil {
			c.compileExpression(s.Value)
		} else {
			c.chunk.Emit(bytecode.OpNull, s.Pos)
		}
		c.chunk.Emit(bytecode.OpReturn, s.Pos)
	case *ast.BreakStmt:
		if len(c.loops) == 0 {
			c.errorf(s.Pos, "break outside of a loop")
			return
		}
		loop := c.loops[len(c.loops)-1]
		off := c.chunk.EmitOperand16(bytecode.OpJump, 0, s.Pos)
		loop.breakPatches = append(loop.breakPatches, off)
	case *ast.ContinueStmt:
		if len(c.loops) == 0 {
			c.errorf(s.Pos, "continue outside of a loop")
			return
		}
		loop := c.loops[len(c.loops)-1]
		if loop.continueIsBack {
			c.emitLoopBack(loop.continueBackTgt, s.Pos)
		} else {
			off := c.chunk.EmitOperand16(bytecode.OpJump, 0, s.Pos)
			loop.continuePatches = append(loop.continuePatches, off)
		}
	case *ast.ExprStmt:
		c.compileExpression(s.Expr)
		c.chunk.Emit(bytecode.OpPop, s.Pos)
	default:
		c.errorf(stmt.Span(), "unsupported statement %T", stmt)
	}
}

func (c *Compiler) emitLoopBack(target int, span diag.Span) {
	off := c.chunk.EmitOperand16(bytecode.OpLoop, 0, span)
	c.chunk.PatchOperand16(off, int16((off+3)-target))
}

func (c *Compiler) compileIf(s *ast.IfStmt) {
	c.compileExpression(s.Cond)
	elseJump := c.chunk.EmitOperand16(bytecode.OpJumpIfFalse, 0, s.Pos)
	c.compileBlock(s.Then)
	endJump := c.chunk.EmitOperand16(bytecode.OpJump, 0, s.Pos)
	c.chunk.PatchOperand16(elseJump, int16(c.chunk.Len()-(elseJump+3)))
	if s.Else != nil {
		c.compileBlock(s.Else)
	}
	c.chunk.PatchOperand16(endJump, int16(c.chunk.Len()-(endJump+3)))
}

func (c *Compiler) compileWhile(s *ast.WhileStmt) {
	condStart := c.chunk.Len()
	c.compileExpression(s.Cond)
	exitJump := c.chunk.EmitOperand16(bytecode.OpJumpIfFalse, 0, s.Pos)
	loop := &loopCtx{continueIsBack: true, continueBackTgt: condStart}
	c.loops = append(c.loops, loop)
	c.compileBlock(s.Body)
	c.emitLoopBack(condStart, s.Pos)
	c.chunk.PatchOperand16(exitJump, int16(c.chunk.Len()-(exitJump+3)))
	afterLoop := c.chunk.Len()
	for _, p := range loop.breakPatches {
		c.chunk.PatchOperand16(p, int16(afterLoop-(p+3)))
	}
	c.loops = c.loops[:len(c.loops)-1]
}

func (c *Compiler) compileFor(s *ast.ForStmt) {
	if s.Init != nil {
		c.compileStatement(s.Init)
	}
	condStart := c.chunk.Len()
	exitJump := -1
	if s.Cond != nil {
		c.compileExpression(s.Cond)
		exitJump = c.chunk.EmitOperand16(bytecode.OpJumpIfFalse, 0, s.Pos)
	}
	loop := &loopCtx{}
	c.loops = append(c.loops, loop)
	c.compileBlock(s.Body)
	postStart := c.chunk.Len()
	if s.Post != nil {
		c.compileStatement(s.Post)
	}
	c.emitLoopBack(condStart, s.Pos)
	afterLoop := c.chunk.Len()
	if exitJump >= 0 {
		c.chunk.PatchOperand16(exitJump, int16(afterLoop-(exitJump+3)))
	}
	for _, p := range loop.continuePatches {
		c.chunk.PatchOperand16(p, int16(postStart-(p+3)))
	}
	for _, p := range loop.breakPatches {
		c.chunk.PatchOperand16(p, int16(afterLoop-(p+3)))
	}
	c.loops = c.loops[:len(c.loops)-1]
}

// compileForIn iterates Array values by index; other collection kinds are
// expected to be converted to an Array by a builtin first (OpGetArrayLen,
// like the rest of the pattern-match opcode family, is Array-specific).
func (c *Compiler) compileForIn(s *ast.ForInStmt) {
	collSlot := c.declareTempLocal()
	c.compileExpression(s.Iter)
	c.chunk.EmitOperand16(bytecode.OpSetLocal, collSlot, s.Pos)
	c.chunk.Emit(bytecode.OpPop, s.Pos)

	idxSlot := c.declareTempLocal()
	zeroIdx := c.chunk.AddConstant(value.Number(0))
	c.chunk.EmitOperand16(bytecode.OpConstant, zeroIdx, s.Pos)
	c.chunk.EmitOperand16(bytecode.OpSetLocal, idxSlot, s.Pos)
	c.chunk.Emit(bytecode.OpPop, s.Pos)

	condStart := c.chunk.Len()
	c.chunk.EmitOperand16(bytecode.OpGetLocal, idxSlot, s.Pos)
	c.chunk.EmitOperand16(bytecode.OpGetLocal, collSlot, s.Pos)
	c.chunk.Emit(bytecode.OpGetArrayLen, s.Pos)
	c.chunk.Emit(bytecode.OpLess, s.Pos)
	exitJump := c.chunk.EmitOperand16(bytecode.OpJumpIfFalse, 0, s.Pos)

	loop := &loopCtx{}
	c.loops = append(c.loops, loop)

	bindSlot := c.declareLocal(s.Binding)
	c.chunk.EmitOperand16(bytecode.OpGetLocal, collSlot, s.Pos)
	c.chunk.EmitOperand16(bytecode.OpGetLocal, idxSlot, s.Pos)
	c.chunk.Emit(bytecode.OpGetIndex, s.Pos)
	c.chunk.EmitOperand16(bytecode.OpSetLocal, bindSlot, s.Pos)
	c.chunk.Emit(bytecode.OpPop, s.Pos)

	c.compileBlock(s.Body)

	postStart := c.chunk.Len()
	oneIdx := c.chunk.AddConstant(value.Number(1))
	c.chunk.EmitOperand16(bytecode.OpGetLocal, idxSlot, s.Pos)
	c.chunk.EmitOperand16(bytecode.OpConstant, oneIdx, s.Pos)
	c.chunk.Emit(bytecode.OpAdd, s.Pos)
	c.chunk.EmitOperand16(bytecode.OpSetLocal, idxSlot, s.Pos)
	c.chunk.Emit(bytecode.OpPop, s.Pos)

	c.emitLoopBack(condStart, s.Pos)
	afterLoop := c.chunk.Len()
	c.chunk.PatchOperand16(exitJump, int16(afterLoop-(exitJump+3)))
	for _, p := range loop.continuePatches {
		c.chunk.PatchOperand16(p, int16(postStart-(p+3)))
	}
	for _, p := range loop.breakPatches {
		c.chunk.PatchOperand16(p, int16(afterLoop-(p+3)))
	}
	c.loops = c.loops[:len(c.loops)-1]
}

// ---- assignment & the single-evaluation compound-assign-on-index fix ----

func (c *Compiler) compileAssignment(a *ast.Assignment) {
	switch t := a.Target.(type) {
	case *ast.Identifier:
		c.compileAssignValue(a, func() { c.emitLoad(t.Name, a.Pos) })
		if a.Op == "" {
			c.emitRetainIfAliased(a.Value, a.Pos)
		}
		c.emitStore(t.Name, a.Pos)
		c.chunk.Emit(bytecode.OpPop, a.Pos)
	case *ast.IndexExpr:
		c.compileIndexedAssignment(t.Collection, t.Index, a)
	case *ast.MemberExpr:
		c.compileIndexedAssignment(t.Object, &ast.StringLiteral{Val: t.Name, Pos: t.Pos}, a)
	default:
		c.errorf(a.Pos, "invalid assignment target")
	}
}

// compileAssignValue pushes the new value for a simple (non-indexed)
// assignment target: for compound ops it reads the current value via
// loadCurrent first.
func (c *Compiler) compileAssignValue(a *ast.Assignment, loadCurrent func()) {
	if a.Op == "" {
		c.compileExpression(a.Value)
		return
	}
	loadCurrent()
	c.compileExpression(a.Value)
	c.emitBinaryOp(a.Op, a.Pos)
}

// compileIndexedAssignment materializes the receiver and index into
// temporary locals, evaluating each exactly once, so compound assignment
// (`arr[f()] += 1`) never calls f() or re-evaluates the receiver twice. The
// resulting collection — cloned by OpSetIndex if it was aliased — is then
// rebound to the owning identifier when the target's collection expression
// is itself a plain identifier (the common case for CoW write-back).
func (c *Compiler) compileIndexedAssignment(collExpr, idxExpr ast.Expression, a *ast.Assignment) {
	recvSlot := c.declareTempLocal()
	c.compileExpression(collExpr)
	c.chunk.EmitOperand16(bytecode.OpSetLocal, recvSlot, a.Pos)
	c.chunk.Emit(bytecode.OpPop, a.Pos)

	idxSlot := c.declareTempLocal()
	c.compileExpression(idxExpr)
	c.chunk.EmitOperand16(bytecode.OpSetLocal, idxSlot, a.Pos)
	c.chunk.Emit(bytecode.OpPop, a.Pos)

	newValSlot := c.declareTempLocal()
	c.compileAssignValue(a, func() {
		c.chunk.EmitOperand16(bytecode.OpGetLocal, recvSlot, a.Pos)
		c.chunk.EmitOperand16(bytecode.OpGetLocal, idxSlot, a.Pos)
		c.chunk.Emit(bytecode.OpGetIndex, a.Pos)
	})
	c.chunk.EmitOperand16(bytecode.OpSetLocal, newValSlot, a.Pos)
	c.chunk.Emit(bytecode.OpPop, a.Pos)

	c.chunk.EmitOperand16(bytecode.OpGetLocal, recvSlot, a.Pos)
	c.chunk.EmitOperand16(bytecode.OpGetLocal, idxSlot, a.Pos)
	c.chunk.EmitOperand16(bytecode.OpGetLocal, newValSlot, a.Pos)
	c.chunk.Emit(bytecode.OpSetIndex, a.Pos) // leaves the (possibly cloned) collection on the stack

	if id, ok := collExpr.(*ast.Identifier); ok {
		c.emitStore(id.Name, a.Pos)
	}
	c.chunk.Emit(bytecode.OpPop, a.Pos)
}

// mutationBuiltins names every pkg/builtins function that follows the
// write-back protocol: it takes a collection as its first argument and
// returns a new, possibly-cloned collection. The compiler rebinds that
// return value to the syntactic argument when it can — a plain identifier
// or an indexed/member path — so `push(a, 4)` updates `a` the same way an
// assignment would, without the caller writing `a = push(a, 4)`.
//
// The removal-shaped builtins (pop, remove, dequeue, stackPop) are
// deliberately excluded here: a caller needs the removed element back, not
// just the new collection, so they return a 2-element array
// [removedOrNone, newCollection] instead and the caller destructures it
// explicitly rather than relying on an automatic rebind.
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

func (c *Compiler) maybeEmitMutationRebind(calleeName string, args []ast.Expression, span diag.Span) {
	if !mutationBuiltins[calleeName] || len(args) == 0 {
		return
	}
	switch t := args[0].(type) {
	case *ast.Identifier:
		c.chunk.Emit(bytecode.OpDup, span)
		c.emitStore(t.Name, span)
		c.chunk.Emit(bytecode.OpPop, span)
	case *ast.IndexExpr:
		c.emitIndexedRebind(t.Collection, t.Index, span)
	case *ast.MemberExpr:
		c.emitIndexedRebind(t.Object, &ast.StringLiteral{Val: t.Name, Pos: t.Pos}, span)
	}
}

// emitIndexedRebind assumes the call's result sits on top of the stack and
// rebinds it into collExpr[idxExpr], leaving exactly that one result value
// on the stack afterward (so the call expression's own value is unchanged
// whether or not a rebind target exists).
func (c *Compiler) emitIndexedRebind(collExpr, idxExpr ast.Expression, span diag.Span) {
	tmp := c.declareTempLocal()
	c.chunk.EmitOperand16(bytecode.OpSetLocal, tmp, span)
	c.compileExpression(collExpr)
	c.compileExpression(idxExpr)
	c.chunk.EmitOperand16(bytecode.OpGetLocal, tmp, span)
	c.chunk.Emit(bytecode.OpSetIndex, span)
	if id, ok := collExpr.(*ast.Identifier); ok {
		c.emitStore(id.Name, span)
	}
	c.chunk.Emit(bytecode.OpPop, span)
}

func (c *Compiler) emitBinaryOp(op string, span diag.Span) {
	switch op {
	case "+":
		c.chunk.Emit(bytecode.OpAdd, span)
	case "-":
		c.chunk.Emit(bytecode.OpSub, span)
	case "*":
		c.chunk.Emit(bytecode.OpMul, span)
	case "/":
		c.chunk.Emit(bytecode.OpDiv, span)
	case "%":
		c.chunk.Emit(bytecode.OpMod, span)
	case "==":
		c.chunk.Emit(bytecode.OpEqual, span)
	case "!=":
		c.chunk.Emit(bytecode.OpNotEqual, span)
	case "<":
		c.chunk.Emit(bytecode.OpLess, span)
	case "<=":
		c.chunk.Emit(bytecode.OpLessEqual, span)
	case ">":
		c.chunk.Emit(bytecode.OpGreater, span)
	case ">=":
		c.chunk.Emit(bytecode.OpGreaterEqual, span)
	default:
		c.errorf(span, "unknown operator %q", op)
	}
}

// ---- expressions ----

func (c *Compiler) compileExpression(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		idx := c.chunk.AddConstant(value.Number(e.Val))
		c.chunk.EmitOperand16(bytecode.OpConstant, idx, e.Pos)
	case *ast.StringLiteral:
		idx := c.chunk.AddConstant(value.NewString(e.Val))
		c.chunk.EmitOperand16(bytecode.OpConstant, idx, e.Pos)
	case *ast.BoolLiteral:
		if e.Val {
			c.chunk.Emit(bytecode.OpTrue, e.Pos)
		} else {
			c.chunk.Emit(bytecode.OpFalse, e.Pos)
		}
	case *ast.NullLiteral:
		c.chunk.Emit(bytecode.OpNull, e.Pos)
	case *ast.Identifier:
		c.emitLoad(e.Name, e.Pos)
	case *ast.ArrayLiteral:
		for _, el := range e.Elements {
			c.compileExpression(el)
		}
		c.chunk.EmitOperand16(bytecode.OpArray, int16(len(e.Elements)), e.Pos)
	case *ast.GroupExpr:
		c.compileExpression(e.Inner)
	case *ast.UnaryExpr:
		c.compileExpression(e.Operand)
		if e.Op == "-" {
			c.chunk.Emit(bytecode.OpNegate, e.Pos)
		} else {
			c.chunk.Emit(bytecode.OpNot, e.Pos)
		}
	case *ast.BinaryExpr:
		c.compileBinary(e)
	case *ast.CallExpr:
		c.compileExpression(e.Callee)
		for _, arg := range e.Args {
			c.compileExpression(arg)
		}
		c.chunk.EmitOperand8(bytecode.OpCall, uint8(len(e.Args)), e.Pos)
		if ident, ok := e.Callee.(*ast.Identifier); ok {
			c.maybeEmitMutationRebind(ident.Name, e.Args, e.Pos)
		}
	case *ast.IndexExpr:
		c.compileExpression(e.Collection)
		c.compileExpression(e.Index)
		c.chunk.Emit(bytecode.OpGetIndex, e.Pos)
	case *ast.MemberExpr:
		// Member access is sugar for string-keyed indexing: the core value
		// model has no struct type, only HashMap, which is already keyed
		// this way.
		c.compileExpression(e.Object)
		idx := c.chunk.AddConstant(value.NewString(e.Name))
		c.chunk.EmitOperand16(bytecode.OpConstant, idx, e.Pos)
		c.chunk.Emit(bytecode.OpGetIndex, e.Pos)
	case *ast.AnonFn:
		funcIdx, upvalues := c.compileFunctionLiteral("", e.Params, value.Own, e.Body, e.Pos)
		c.pushFunctionValue(funcIdx, upvalues, e.Pos)
	case *ast.BlockExpr:
		c.compileBlockExpr(e)
	case *ast.MatchExpr:
		c.compileMatch(e)
	case *ast.TryExpr:
		c.compileTry(e)
	default:
		c.errorf(expr.Span(), "unsupported expression %T", expr)
	}
}

func (c *Compiler) compileBinary(e *ast.BinaryExpr) {
	if e.Op == "&&" {
		c.compileExpression(e.Left)
		c.chunk.Emit(bytecode.OpDup, e.Pos)
		shortCircuit := c.chunk.EmitOperand16(bytecode.OpJumpIfFalse, 0, e.Pos)
		c.chunk.Emit(bytecode.OpPop, e.Pos)
		c.compileExpression(e.Right)
		c.chunk.PatchOperand16(shortCircuit, int16(c.chunk.Len()-(shortCircuit+3)))
		return
	}
	if e.Op == "||" {
		c.compileExpression(e.Left)
		c.chunk.Emit(bytecode.OpDup, e.Pos)
		toRight := c.chunk.EmitOperand16(bytecode.OpJumpIfFalse, 0, e.Pos)
		toEnd := c.chunk.EmitOperand16(bytecode.OpJump, 0, e.Pos)
		c.chunk.PatchOperand16(toRight, int16(c.chunk.Len()-(toRight+3)))
		c.chunk.Emit(bytecode.OpPop, e.Pos)
		c.compileExpression(e.Right)
		c.chunk.PatchOperand16(toEnd, int16(c.chunk.Len()-(toEnd+3)))
		return
	}
	c.compileExpression(e.Left)
	c.compileExpression(e.Right)
	c.emitBinaryOp(e.Op, e.Pos)
}

func (c *Compiler) compileBlockExpr(b *ast.BlockExpr) {
	if len(b.Statements) == 0 {
		c.chunk.Emit(bytecode.OpNull, b.Pos)
		return
	}
	for _, s := range b.Statements[:len(b.Statements)-1] {
		c.compileStatement(s)
	}
	last := b.Statements[len(b.Statements)-1]
	if es, ok := last.(*ast.ExprStmt); ok {
		c.compileExpression(es.Expr)
		return
	}
	c.compileStatement(last)
	c.chunk.Emit(bytecode.OpNull, b.Pos)
}

// compileMatch evaluates the subject once into a temp local, then tests
// each arm's pattern in order; a WildcardPattern arm is unconditional and
// should be last. If no arm matches, the expression yields null.
func (c *Compiler) compileMatch(m *ast.MatchExpr) {
	subjSlot := c.declareTempLocal()
	c.compileExpression(m.Subject)
	c.chunk.EmitOperand16(bytecode.OpSetLocal, subjSlot, m.Pos)
	c.chunk.Emit(bytecode.OpPop, m.Pos)

	var endJumps []int
	fellThrough := true
	for _, arm := range m.Arms {
		if _, ok := arm.Pattern.(*ast.WildcardPattern); ok {
			c.compileExpression(arm.Body)
			j := c.chunk.EmitOperand16(bytecode.OpJump, 0, m.Pos)
			endJumps = append(endJumps, j)
			fellThrough = false
			break
		}
		testOp, extractOp, binding := patternOps(arm.Pattern)
		c.chunk.EmitOperand16(bytecode.OpGetLocal, subjSlot, m.Pos)
		c.chunk.Emit(testOp, m.Pos)
		failJump := c.chunk.EmitOperand16(bytecode.OpJumpIfFalse, 0, m.Pos)
		if binding != "" {
			c.chunk.EmitOperand16(bytecode.OpGetLocal, subjSlot, m.Pos)
			c.chunk.Emit(extractOp, m.Pos)
			bindSlot := c.declareLocal(binding)
			c.chunk.EmitOperand16(bytecode.OpSetLocal, bindSlot, m.Pos)
			c.chunk.Emit(bytecode.OpPop, m.Pos)
		}
		c.compileExpression(arm.Body)
		j := c.chunk.EmitOperand16(bytecode.OpJump, 0, m.Pos)
		endJumps = append(endJumps, j)
		c.chunk.PatchOperand16(failJump, int16(c.chunk.Len()-(failJump+3)))
	}
	if fellThrough {
		c.chunk.Emit(bytecode.OpNull, m.Pos)
	}
	end := c.chunk.Len()
	for _, j := range endJumps {
		c.chunk.PatchOperand16(j, int16(end-(j+3)))
	}
}

func patternOps(p ast.Pattern) (testOp, extractOp bytecode.Op, binding string) {
	switch pat := p.(type) {
	case *ast.SomePattern:
		return bytecode.OpIsOptionSome, bytecode.OpExtractOptionValue, pat.Binding
	case *ast.NonePattern:
		return bytecode.OpIsOptionNone, 0, ""
	case *ast.OkPattern:
		return bytecode.OpIsResultOk, bytecode.OpExtractResultValue, pat.Binding
	case *ast.ErrPattern:
		return bytecode.OpIsResultErr, bytecode.OpExtractResultValue, pat.Binding
	default:
		return bytecode.OpIsArray, 0, ""
	}
}

// compileTry implements early-return propagation of Err(..)/None, and
// unwraps Ok(..)/Some(..); any other value passes through unchanged.
func (c *Compiler) compileTry(t *ast.TryExpr) {
	tmp := c.declareTempLocal()
	c.compileExpression(t.Inner)
	c.chunk.EmitOperand16(bytecode.OpSetLocal, tmp, t.Pos)
	c.chunk.Emit(bytecode.OpPop, t.Pos)

	c.chunk.EmitOperand16(bytecode.OpGetLocal, tmp, t.Pos)
	c.chunk.Emit(bytecode.OpIsResultErr, t.Pos)
	notErr := c.chunk.EmitOperand16(bytecode.OpJumpIfFalse, 0, t.Pos)
	c.chunk.EmitOperand16(bytecode.OpGetLocal, tmp, t.Pos)
	c.chunk.Emit(bytecode.OpReturn, t.Pos)
	c.chunk.PatchOperand16(notErr, int16(c.chunk.Len()-(notErr+3)))

	c.chunk.EmitOperand16(bytecode.OpGetLocal, tmp, t.Pos)
	c.chunk.Emit(bytecode.OpIsOptionNone, t.Pos)
	notNone := c.chunk.EmitOperand16(bytecode.OpJumpIfFalse, 0, t.Pos)
	c.chunk.EmitOperand16(bytecode.OpGetLocal, tmp, t.Pos)
	c.chunk.Emit(bytecode.OpReturn, t.Pos)
	c.chunk.PatchOperand16(notNone, int16(c.chunk.Len()-(notNone+3)))

	c.chunk.EmitOperand16(bytecode.OpGetLocal, tmp, t.Pos)
	c.chunk.Emit(bytecode.OpIsResultOk, t.Pos)
	notOk := c.chunk.EmitOperand16(bytecode.OpJumpIfFalse, 0, t.Pos)
	c.chunk.EmitOperand16(bytecode.OpGetLocal, tmp, t.Pos)
	c.chunk.Emit(bytecode.OpExtractResultValue, t.Pos)
	afterOk := c.chunk.EmitOperand16(bytecode.OpJump, 0, t.Pos)
	c.chunk.PatchOperand16(notOk, int16(c.chunk.Len()-(notOk+3)))

	c.chunk.EmitOperand16(bytecode.OpGetLocal, tmp, t.Pos)
	c.chunk.Emit(bytecode.OpIsOptionSome, t.Pos)
	notSome := c.chunk.EmitOperand16(bytecode.OpJumpIfFalse, 0, t.Pos)
	c.chunk.EmitOperand16(bytecode.OpGetLocal, tmp, t.Pos)
	c.chunk.Emit(bytecode.OpExtractOptionValue, t.Pos)
	afterSome := c.chunk.EmitOperand16(bytecode.OpJump, 0, t.Pos)
	c.chunk.PatchOperand16(notSome, int16(c.chunk.Len()-(notSome+3)))

	c.chunk.EmitOperand16(bytecode.OpGetLocal, tmp, t.Pos)

	end := c.chunk.Len()
	c.chunk.PatchOperand16(afterOk, int16(end-(afterOk+3)))
	c.chunk.PatchOperand16(afterSome, int16(end-(afterSome+3)))
}
