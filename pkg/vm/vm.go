// Package vm implements the bytecode virtual machine for Atlas.
//
// The VM is a stack-based interpreter that executes the instruction stream
// produced by pkg/compiler. It is one of two engines that must agree on
// every observable behavior, byte for byte, with pkg/interp (the
// tree-walking evaluator) — same Display() text, same diagnostic Code and
// Message, for the same program.
//
// Execution model:
//
//   - an operand stack ([]value.Value) holds intermediate results
//   - a call stack ([]*Frame) holds one Frame per active function
//     activation, each with its own locals array and upvalue list
//   - globals is a single process-wide name table shared by every frame
//
// Frame 0 always exists: it is the synthetic top-level "script" frame,
// sized by Bytecode.TopLevelLocals, holding every script-scope let/var.
//
// Every call frame reserves local slot 0 for the callable currently
// executing it (its own Function or *Closure value). The compiler arranges
// for a named function's own name to resolve to that slot inside its own
// body, so self-recursive calls work through ordinary local/upvalue
// resolution without needing a live, non-snapshotted self-upvalue.
// Upvalues themselves are always captured by value at MakeClosure time —
// mutating a captured binding after the closure is made is never visible
// inside the closure, and vice versa.
package vm

import (
	"fmt"
	"math"
	"time"

	"github.com/atl-lang/atlas-sub003/pkg/bytecode"
	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/ownership"
	"github.com/atl-lang/atlas-sub003/pkg/value"
)

// maxCallDepth bounds recursion so a runaway program fails with a
// RuntimeError instead of exhausting the host's goroutine stack.
const maxCallDepth = 2048

// Frame is one function activation: the function it is executing (nil for
// the top-level script frame), its captured upvalues, its local variable
// slots, and its own instruction pointer into the shared code stream.
type Frame struct {
	ref      *value.FunctionRef
	upvalues []value.Value
	locals   []value.Value
	ip       int
}

func (f *Frame) name() string {
	if f.ref == nil {
		return "<script>"
	}
	return f.ref.Name
}

// VM executes a single Bytecode program to completion (or first error).
// A VM is single-use: create a fresh one per Run.
type VM struct {
	bc     *bytecode.Bytecode
	stack  []value.Value
	frames []*Frame

	globals map[string]value.Value
	// frozen marks a global name as already defined: a second SetGlobal to
	// the same name is a reassignment and is rejected (AT3003). The first
	// write — from a top-level `fn` declaration or DefineNative — always
	// succeeds, which is what lets forward references and mutual recursion
	// between top-level functions work for free.
	frozen map[string]bool

	capability any
	quota      *Quota
	ownership  *ownership.Enforcer
}

// SetOwnershipEnforcer installs the debug-gated own/borrow/shared checker.
// The VM can only check the Shared-mode rule (a Shared
// argument must be a mutable, handle-backed collection) — Own's move-
// tracking and Borrow's escape-tracking need the caller's source-binding
// identity, which bytecode has already erased by the time OpCall executes;
// those run through pkg/interp instead. See DESIGN.md for the scope note.
func (vm *VM) SetOwnershipEnforcer(e *ownership.Enforcer) { vm.ownership = e }

// Quota bounds execution time and instruction count, checked at loop
// back-edges and call sites (the two places an unbounded Atlas program can
// spin forever). MaxSteps <= 0 means unbounded; a zero Deadline means no
// time limit.
type Quota struct {
	Deadline time.Time
	MaxSteps int64
	steps    int64
}

// SetQuota installs execution limits, enforced for the lifetime of Run.
func (vm *VM) SetQuota(q *Quota) { vm.quota = q }

func (vm *VM) checkQuota(span diag.Span) error {
	if vm.quota == nil {
		return nil
	}
	vm.quota.steps++
	if vm.quota.MaxSteps > 0 && vm.quota.steps > vm.quota.MaxSteps {
		return vm.runtimeErr(diag.QuotaExceeded, "execution step quota exceeded", span)
	}
	if !vm.quota.Deadline.IsZero() && time.Now().After(vm.quota.Deadline) {
		return vm.runtimeErr(diag.QuotaExceeded, "execution time quota exceeded", span)
	}
	return nil
}

// New returns a VM ready to execute bc.
func New(bc *bytecode.Bytecode) *VM {
	return &VM{
		bc:      bc,
		globals: make(map[string]value.Value),
		frozen:  make(map[string]bool),
	}
}

// DefineNative registers a host function in the global table before
// execution starts, as an already-frozen binding.
func (vm *VM) DefineNative(n *value.NativeFn) {
	vm.globals[n.Name] = n
	vm.frozen[n.Name] = true
}

// SetCapability installs the opaque capability context threaded to every
// native call (spec'd sandboxing/IO policy lives behind this value; the VM
// never inspects it).
func (vm *VM) SetCapability(cap any) { vm.capability = cap }

// Global looks up a global binding, for host code inspecting results after
// Run returns (e.g. the REPL printing a top-level `let`... except top-level
// bindings are locals, so this really only ever sees fn decls and natives).
func (vm *VM) Global(name string) (value.Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// Run executes the program from the start of the instruction stream and
// returns the value of whichever top-level `return` ended it, or Null if
// execution fell off the end via OpHalt.
func (vm *VM) Run() (value.Value, error) {
	script := &Frame{locals: make([]value.Value, vm.bc.TopLevelLocals)}
	vm.frames = []*Frame{script}
	return vm.runFrames(0)
}

// CallValue invokes fn (a Function, *Closure, or *NativeFn) with args and
// runs it to completion, for native builtins (map/filter/reduce and
// friends) that need to call back into Atlas code. Only valid while called
// from within a running VM, i.e. from inside a NativeFn.Fn callback.
func (vm *VM) CallValue(fn value.Value, args []value.Value) (value.Value, error) {
	vm.push(fn)
	for _, a := range args {
		vm.push(a)
	}
	baseDepth := len(vm.frames)
	if err := vm.call(len(args), diag.Span{}); err != nil {
		return nil, err
	}
	if len(vm.frames) == baseDepth {
		// a native callee already pushed its result directly
		return vm.pop(diag.Span{})
	}
	return vm.runFrames(baseDepth)
}

// runFrames dispatches instructions starting at the current top frame
// until either OpHalt fires or the frame stack unwinds to stopAtDepth or
// shallower (an OpReturn popped the frame that was pushed to start this
// call). Run uses stopAtDepth 0 (a bare top-level `return` ends the whole
// program); CallValue uses the frame depth captured just before its call.
func (vm *VM) runFrames(stopAtDepth int) (value.Value, error) {
	for {
		frame := vm.frames[len(vm.frames)-1]
		code := vm.bc.Code
		if frame.ip >= len(code) {
			return value.TheNull, nil
		}
		op := bytecode.Op(code[frame.ip])
		span := vm.bc.Spans[frame.ip]

		switch op {
		case bytecode.OpConstant:
			idx := bytecode.ReadOperand16(code, frame.ip+1)
			vm.push(vm.bc.Constants[idx])
			frame.ip += 3
		case bytecode.OpNull:
			vm.push(value.TheNull)
			frame.ip++
		case bytecode.OpTrue:
			vm.push(value.Bool(true))
			frame.ip++
		case bytecode.OpFalse:
			vm.push(value.Bool(false))
			frame.ip++

		case bytecode.OpGetLocal:
			idx := bytecode.ReadOperand16(code, frame.ip+1)
			v, err := vm.localAt(frame, idx, span)
			if err != nil {
				return nil, err
			}
			vm.push(v)
			frame.ip += 3
		case bytecode.OpSetLocal:
			idx := bytecode.ReadOperand16(code, frame.ip+1)
			v, err := vm.peek(span)
			if err != nil {
				return nil, err
			}
			if int(idx) >= len(frame.locals) {
				return nil, vm.runtimeErr(diag.StackUnderflow, fmt.Sprintf("invalid local slot %d", idx), span)
			}
			frame.locals[idx] = v
			frame.ip += 3
		case bytecode.OpGetGlobal:
			idx := bytecode.ReadOperand16(code, frame.ip+1)
			name := string(vm.bc.Constants[idx].(value.String))
			v, ok := vm.globals[name]
			if !ok {
				return nil, vm.runtimeErr(diag.UndefinedSymbol, fmt.Sprintf("undefined symbol %q", name), span)
			}
			vm.push(v)
			frame.ip += 3
		case bytecode.OpSetGlobal:
			idx := bytecode.ReadOperand16(code, frame.ip+1)
			name := string(vm.bc.Constants[idx].(value.String))
			v, err := vm.peek(span)
			if err != nil {
				return nil, err
			}
			if vm.frozen[name] {
				return nil, vm.runtimeErr(diag.ImmutabilityError, fmt.Sprintf("%q is already defined and cannot be reassigned", name), span)
			}
			vm.globals[name] = v
			vm.frozen[name] = true
			frame.ip += 3
		case bytecode.OpGetUpvalue:
			idx := bytecode.ReadOperand16(code, frame.ip+1)
			if int(idx) >= len(frame.upvalues) {
				return nil, vm.runtimeErr(diag.StackUnderflow, fmt.Sprintf("invalid upvalue slot %d", idx), span)
			}
			vm.push(frame.upvalues[idx])
			frame.ip += 3
		case bytecode.OpSetUpvalue:
			idx := bytecode.ReadOperand16(code, frame.ip+1)
			v, err := vm.peek(span)
			if err != nil {
				return nil, err
			}
			if int(idx) >= len(frame.upvalues) {
				return nil, vm.runtimeErr(diag.StackUnderflow, fmt.Sprintf("invalid upvalue slot %d", idx), span)
			}
			frame.upvalues[idx] = v
			frame.ip += 3
		case bytecode.OpMakeClosure:
			funcIdx := bytecode.ReadOperand16(code, frame.ip+1)
			nUpvalues := int(bytecode.ReadOperand16(code, frame.ip+3))
			upvalues := make([]value.Value, nUpvalues)
			for i := nUpvalues - 1; i >= 0; i-- {
				v, err := vm.pop(span)
				if err != nil {
					return nil, err
				}
				upvalues[i] = v
			}
			fn, ok := vm.bc.Constants[funcIdx].(value.Function)
			if !ok {
				return nil, vm.runtimeErr(diag.TypeError, "constant is not a function", span)
			}
			vm.push(&value.Closure{Ref: fn.Ref, Upvalues: upvalues})
			frame.ip += 5

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
			if err := vm.arith(op, span); err != nil {
				return nil, err
			}
			frame.ip++
		case bytecode.OpNegate:
			n, err := vm.popNumber(span)
			if err != nil {
				return nil, err
			}
			vm.push(-n)
			frame.ip++

		case bytecode.OpEqual, bytecode.OpNotEqual:
			r, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			l, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			eq := value.Equal(l, r)
			if op == bytecode.OpNotEqual {
				eq = !eq
			}
			vm.push(value.Bool(eq))
			frame.ip++
		case bytecode.OpLess, bytecode.OpLessEqual, bytecode.OpGreater, bytecode.OpGreaterEqual:
			if err := vm.compare(op, span); err != nil {
				return nil, err
			}
			frame.ip++

		case bytecode.OpNot:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			vm.push(value.Bool(!value.Truthy(v)))
			frame.ip++
		case bytecode.OpAnd, bytecode.OpOr:
			r, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			l, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			var result bool
			if op == bytecode.OpAnd {
				result = value.Truthy(l) && value.Truthy(r)
			} else {
				result = value.Truthy(l) || value.Truthy(r)
			}
			vm.push(value.Bool(result))
			frame.ip++

		case bytecode.OpJump:
			operand := bytecode.ReadOperand16(code, frame.ip+1)
			frame.ip = frame.ip + 3 + int(operand)
		case bytecode.OpJumpIfFalse:
			operand := bytecode.ReadOperand16(code, frame.ip+1)
			cond, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			if !value.Truthy(cond) {
				frame.ip = frame.ip + 3 + int(operand)
			} else {
				frame.ip += 3
			}
		case bytecode.OpLoop:
			if err := vm.checkQuota(span); err != nil {
				return nil, err
			}
			operand := bytecode.ReadOperand16(code, frame.ip+1)
			frame.ip = (frame.ip + 3) - int(operand)

		case bytecode.OpCall:
			if err := vm.checkQuota(span); err != nil {
				return nil, err
			}
			argc := int(bytecode.ReadOperand8(code, frame.ip+1))
			frame.ip += 2
			if err := vm.call(argc, span); err != nil {
				return nil, err
			}
		case bytecode.OpReturn:
			result, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) <= stopAtDepth {
				return result, nil
			}
			vm.push(result)

		case bytecode.OpArray:
			n := int(bytecode.ReadOperand16(code, frame.ip+1))
			items := make([]value.Value, n)
			for i := n - 1; i >= 0; i-- {
				v, err := vm.pop(span)
				if err != nil {
					return nil, err
				}
				items[i] = v
			}
			vm.push(value.NewArray(items))
			frame.ip += 3
		case bytecode.OpGetIndex:
			if err := vm.getIndex(span); err != nil {
				return nil, err
			}
			frame.ip++
		case bytecode.OpSetIndex:
			if err := vm.setIndex(span); err != nil {
				return nil, err
			}
			frame.ip++

		case bytecode.OpPop:
			if _, err := vm.pop(span); err != nil {
				return nil, err
			}
			frame.ip++
		case bytecode.OpDup:
			v, err := vm.peek(span)
			if err != nil {
				return nil, err
			}
			vm.push(v)
			frame.ip++
		case bytecode.OpRetain:
			v, err := vm.peek(span)
			if err != nil {
				return nil, err
			}
			if r, ok := v.(value.Retainable); ok {
				r.Retain()
			}
			frame.ip++

		case bytecode.OpIsOptionSome:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			opt, ok := v.(*value.Option)
			vm.push(value.Bool(ok && opt.Present))
			frame.ip++
		case bytecode.OpIsOptionNone:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			opt, ok := v.(*value.Option)
			vm.push(value.Bool(ok && !opt.Present))
			frame.ip++
		case bytecode.OpIsResultOk:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			r, ok := v.(*value.Result)
			vm.push(value.Bool(ok && r.IsOk))
			frame.ip++
		case bytecode.OpIsResultErr:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			r, ok := v.(*value.Result)
			vm.push(value.Bool(ok && !r.IsOk))
			frame.ip++
		case bytecode.OpExtractOptionValue:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			if opt, ok := v.(*value.Option); ok && opt.Present {
				vm.push(opt.Inner)
			} else {
				vm.push(value.TheNull)
			}
			frame.ip++
		case bytecode.OpExtractResultValue:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			if r, ok := v.(*value.Result); ok {
				vm.push(r.Inner)
			} else {
				vm.push(value.TheNull)
			}
			frame.ip++
		case bytecode.OpIsArray:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			_, ok := v.(value.Array)
			vm.push(value.Bool(ok))
			frame.ip++
		case bytecode.OpGetArrayLen:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			arr, ok := v.(value.Array)
			if !ok {
				return nil, vm.runtimeErr(diag.TypeError, fmt.Sprintf("expected Array, got %s", value.TypeName(v)), span)
			}
			vm.push(value.Number(arr.Len()))
			frame.ip++

		case bytecode.OpHalt:
			return value.TheNull, nil

		default:
			return nil, vm.runtimeErr(diag.UnknownOpcode, fmt.Sprintf("unknown opcode %d", byte(op)), span)
		}
	}
}

func (vm *VM) localAt(frame *Frame, idx int16, span diag.Span) (value.Value, error) {
	if int(idx) >= len(frame.locals) {
		return nil, vm.runtimeErr(diag.StackUnderflow, fmt.Sprintf("invalid local slot %d", idx), span)
	}
	return frame.locals[idx], nil
}

// ---- operand stack ----

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop(span diag.Span) (value.Value, error) {
	n := len(vm.stack)
	if n == 0 {
		return nil, vm.runtimeErr(diag.StackUnderflow, "operand stack underflow", span)
	}
	v := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return v, nil
}

func (vm *VM) peek(span diag.Span) (value.Value, error) {
	n := len(vm.stack)
	if n == 0 {
		return nil, vm.runtimeErr(diag.StackUnderflow, "operand stack underflow", span)
	}
	return vm.stack[n-1], nil
}

func (vm *VM) popNumber(span diag.Span) (value.Number, error) {
	v, err := vm.pop(span)
	if err != nil {
		return 0, err
	}
	n, ok := v.(value.Number)
	if !ok {
		return 0, vm.runtimeErr(diag.TypeError, fmt.Sprintf("expected Number, got %s", value.TypeName(v)), span)
	}
	return n, nil
}

// ---- arithmetic & comparison ----

// arith pops right then left (the compiler always pushes Left before
// Right), so the two popNumber calls below naturally land r first, l
// second.
func (vm *VM) arith(op bytecode.Op, span diag.Span) error {
	r, err := vm.popNumber(span)
	if err != nil {
		return err
	}
	l, err := vm.popNumber(span)
	if err != nil {
		return err
	}
	var result value.Number
	switch op {
	case bytecode.OpAdd:
		result = l + r
	case bytecode.OpSub:
		result = l - r
	case bytecode.OpMul:
		result = l * r
	case bytecode.OpDiv:
		if r == 0 {
			return vm.runtimeErr(diag.DivideByZero, "division by zero", span)
		}
		result = l / r
	case bytecode.OpMod:
		if r == 0 {
			return vm.runtimeErr(diag.DivideByZero, "modulo by zero", span)
		}
		result = value.Number(math.Mod(float64(l), float64(r)))
	}
	if f := float64(result); math.IsNaN(f) || math.IsInf(f, 0) {
		return vm.runtimeErr(diag.NaNOrInfinity, "arithmetic produced NaN or infinity", span)
	}
	vm.push(result)
	return nil
}

func (vm *VM) compare(op bytecode.Op, span diag.Span) error {
	r, err := vm.popNumber(span)
	if err != nil {
		return err
	}
	l, err := vm.popNumber(span)
	if err != nil {
		return err
	}
	var result bool
	switch op {
	case bytecode.OpLess:
		result = l < r
	case bytecode.OpLessEqual:
		result = l <= r
	case bytecode.OpGreater:
		result = l > r
	case bytecode.OpGreaterEqual:
		result = l >= r
	}
	vm.push(value.Bool(result))
	return nil
}

// ---- indexing ----

// getIndex implements OpGetIndex over Array (numeric index, out-of-bounds
// is an error) and HashMap (any-key index, missing key yields null rather
// than erroring — the same sugar MemberExpr compiles to, so a missing
// field reads as null instead of crashing).
func (vm *VM) getIndex(span diag.Span) error {
	idx, err := vm.pop(span)
	if err != nil {
		return err
	}
	coll, err := vm.pop(span)
	if err != nil {
		return err
	}
	switch c := coll.(type) {
	case value.Array:
		n, ok := idx.(value.Number)
		if !ok {
			return vm.runtimeErr(diag.TypeError, fmt.Sprintf("array index must be a Number, got %s", value.TypeName(idx)), span)
		}
		el, ok := c.Get(int(n))
		if !ok {
			return vm.runtimeErr(diag.IndexOutOfBounds, fmt.Sprintf("index %s out of bounds for array of length %d", n.Display(), c.Len()), span)
		}
		vm.push(el)
		return nil
	case value.HashMap:
		el, ok := c.Get(idx)
		if !ok {
			vm.push(value.TheNull)
			return nil
		}
		vm.push(el)
		return nil
	default:
		return vm.runtimeErr(diag.TypeError, fmt.Sprintf("%s is not indexable", value.TypeName(coll)), span)
	}
}

// setIndex mutates a uniquely-owned (CloneForWrite'd) collection and
// leaves the resulting collection value on the stack, so the compiler can
// rebind the owning identifier for the common case where the assignment
// target's collection expression is itself a plain identifier.
func (vm *VM) setIndex(span diag.Span) error {
	newVal, err := vm.pop(span)
	if err != nil {
		return err
	}
	idx, err := vm.pop(span)
	if err != nil {
		return err
	}
	coll, err := vm.pop(span)
	if err != nil {
		return err
	}
	switch c := coll.(type) {
	case value.Array:
		n, ok := idx.(value.Number)
		if !ok {
			return vm.runtimeErr(diag.TypeError, fmt.Sprintf("array index must be a Number, got %s", value.TypeName(idx)), span)
		}
		cloned := c.CloneForWrite()
		if !cloned.SetIndex(int(n), newVal) {
			return vm.runtimeErr(diag.IndexOutOfBounds, fmt.Sprintf("index %s out of bounds for array of length %d", n.Display(), c.Len()), span)
		}
		vm.push(cloned)
		return nil
	case value.HashMap:
		cloned := c.CloneForWrite()
		cloned.Put(idx, newVal)
		vm.push(cloned)
		return nil
	default:
		return vm.runtimeErr(diag.TypeError, fmt.Sprintf("%s is not assignable by index", value.TypeName(coll)), span)
	}
}

// ---- calls ----

func (vm *VM) call(argc int, span diag.Span) error {
	args := make([]value.Value, argc)
	for i := argc - 1; i >= 0; i-- {
		v, err := vm.pop(span)
		if err != nil {
			return err
		}
		args[i] = v
	}
	callee, err := vm.pop(span)
	if err != nil {
		return err
	}
	switch c := callee.(type) {
	case value.Function:
		return vm.invoke(callee, c.Ref, nil, args, span)
	case *value.Closure:
		return vm.invoke(callee, c.Ref, c.Upvalues, args, span)
	case *value.NativeFn:
		if c.Arity >= 0 && len(args) != c.Arity {
			return vm.runtimeErr(diag.ArityMismatch, fmt.Sprintf("%s expects %d argument(s), got %d", c.Name, c.Arity, len(args)), span)
		}
		result, callErr := c.Fn(vm.capability, args)
		if callErr != nil {
			if d, ok := callErr.(*diag.Diagnostic); ok {
				return vm.wrapDiag(d)
			}
			return vm.runtimeErr(diag.TypeError, callErr.Error(), span)
		}
		vm.push(result)
		return nil
	default:
		return vm.runtimeErr(diag.NonCallable, fmt.Sprintf("value of type %s is not callable", value.TypeName(callee)), span)
	}
}

func (vm *VM) invoke(calleeVal value.Value, ref *value.FunctionRef, upvalues []value.Value, args []value.Value, span diag.Span) error {
	if len(args) != ref.Arity() {
		return vm.runtimeErr(diag.ArityMismatch, fmt.Sprintf("%s expects %d argument(s), got %d", ref.Name, ref.Arity(), len(args)), span)
	}
	if len(vm.frames) >= maxCallDepth {
		return vm.runtimeErr(diag.QuotaExceeded, "maximum call depth exceeded", span)
	}
	for idx, p := range ref.Params {
		if idx >= len(args) {
			break
		}
		if err := vm.ownership.CheckSharedArg(p.Ownership, p.Name, args[idx], span); err != nil {
			return vm.wrapDiag(err.(*diag.Diagnostic))
		}
		if p.Ownership == value.Borrow || p.Ownership == value.Shared {
			if r, ok := args[idx].(value.Retainable); ok {
				r.Retain()
			}
		}
	}
	locals := make([]value.Value, ref.LocalSlotCount)
	locals[0] = calleeVal
	copy(locals[1:], args)
	vm.frames = append(vm.frames, &Frame{ref: ref, upvalues: upvalues, locals: locals, ip: ref.EntryOffset})
	return nil
}

// ---- errors ----

func (vm *VM) runtimeErr(code, msg string, span diag.Span) error {
	return vm.wrapDiag(diag.New(code, msg, span))
}

func (vm *VM) wrapDiag(d *diag.Diagnostic) error {
	trace := make([]StackFrame, len(vm.frames))
	for i, f := range vm.frames {
		trace[i] = StackFrame{Name: f.name(), Span: vm.bc.Spans[f.ip], IP: f.ip}
	}
	return newRuntimeError(d, trace)
}
