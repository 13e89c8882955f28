// Package builtins implements the pure, shared half of the write-back
// protocol: functions invoked the same way from both engines,
// taking no engine-specific state. Collection mutation builtins clone for
// write and return a new collection; the compiler (VM side) and pkg/interp
// (tree-walking side) are each responsible for rebinding that return value
// to the caller's binding — this package only ever hands back values.
//
// Higher-order intrinsics (map, filter, reduce, ...) need to call back into
// Atlas closures. Rather than importing pkg/vm or pkg/interp directly (which
// would create an import cycle, since both of those depend on pkg/value),
// they type-assert the capability argument against Caller, which both
// engines implement.
package builtins

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/value"
)

// Caller is implemented by both pkg/vm.VM and pkg/interp.Interpreter. It
// lets an intrinsic invoke a user-supplied Function/Closure/NativeFn
// without the calling engine duplicating its own dispatch loop.
type Caller interface {
	CallValue(fn value.Value, args []value.Value) (value.Value, error)
}

func typeErr(format string, args ...any) error {
	return diag.New(diag.TypeError, fmt.Sprintf(format, args...), diag.Span{})
}

func callerFrom(cap any) (Caller, error) {
	c, ok := cap.(Caller)
	if !ok {
		return nil, typeErr("this builtin requires a callable host context")
	}
	return c, nil
}

// native is a small constructor to keep the Register table below terse.
func native(name string, arity int, fn func(cap any, args []value.Value) (value.Value, error)) *value.NativeFn {
	return &value.NativeFn{Name: name, Arity: arity, Fn: fn}
}

// RegisterAll defines every builtin in this package through define, which
// is ordinarily (*vm.VM).DefineNative or pkg/interp's equivalent.
func RegisterAll(define func(*value.NativeFn)) {
	for _, n := range pureBuiltins() {
		define(n)
	}
	for _, n := range mutationBuiltins() {
		define(n)
	}
	for _, n := range intrinsics() {
		define(n)
	}
	for _, n := range stdlibBuiltins() {
		define(n)
	}
}

// ---- pure builtins: no callbacks, no collection mutation ----

func pureBuiltins() []*value.NativeFn {
	return []*value.NativeFn{
		native("len", 1, builtinLen),
		native("abs", 1, builtinAbs),
		native("toString", 1, builtinToString),
		native("toNumber", 1, builtinToNumber),
		native("typeOf", 1, builtinTypeOf),
		native("first", 1, builtinFirst),
		native("last", 1, builtinLast),
		native("peek", 1, builtinPeek),
		native("has", 2, builtinHas),
		native("keys", 1, builtinKeys),
		native("values", 1, builtinValues),
		native("arrayNew", 0, builtinArrayNew),
		native("hashMapNew", 0, builtinHashMapNew),
		native("hashSetNew", 0, builtinHashSetNew),
		native("queueNew", 0, builtinQueueNew),
		native("stackNew", 0, builtinStackNew),
		native("Some", 1, builtinSome),
		native("None", 0, builtinNone),
		native("Ok", 1, builtinOk),
		native("Err", 1, builtinErr),
		native("isSome", 1, builtinIsSome),
		native("isNone", 1, builtinIsNone),
		native("isOk", 1, builtinIsOk),
		native("isErr", 1, builtinIsErr),
		native("unwrap", 1, builtinUnwrap),
	}
}

func builtinLen(cap any, args []value.Value) (value.Value, error) {
	switch c := args[0].(type) {
	case value.Array:
		return value.Number(c.Len()), nil
	case value.HashMap:
		return value.Number(c.Len()), nil
	case value.HashSet:
		return value.Number(c.Len()), nil
	case value.Queue:
		return value.Number(c.Len()), nil
	case value.Stack:
		return value.Number(c.Len()), nil
	case value.String:
		return value.Number(len(string(c))), nil
	default:
		return nil, typeErr("len: %s has no length", value.TypeName(args[0]))
	}
}

func builtinAbs(cap any, args []value.Value) (value.Value, error) {
	n, ok := args[0].(value.Number)
	if !ok {
		return nil, typeErr("abs: expected Number, got %s", value.TypeName(args[0]))
	}
	if n < 0 {
		return -n, nil
	}
	return n, nil
}

func builtinToString(cap any, args []value.Value) (value.Value, error) {
	return value.NewString(args[0].Display()), nil
}

func builtinToNumber(cap any, args []value.Value) (value.Value, error) {
	switch t := args[0].(type) {
	case value.Number:
		return t, nil
	case value.String:
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return nil, typeErr("toNumber: %q is not numeric", string(t))
		}
		return value.Number(f), nil
	default:
		return nil, typeErr("toNumber: cannot convert %s", value.TypeName(args[0]))
	}
}

func builtinTypeOf(cap any, args []value.Value) (value.Value, error) {
	return value.NewString(value.TypeName(args[0])), nil
}

func builtinFirst(cap any, args []value.Value) (value.Value, error) {
	arr, ok := args[0].(value.Array)
	if !ok {
		return nil, typeErr("first: expected Array, got %s", value.TypeName(args[0]))
	}
	v, ok := arr.Get(0)
	if !ok {
		return value.None(), nil
	}
	return value.Some(v), nil
}

func builtinLast(cap any, args []value.Value) (value.Value, error) {
	arr, ok := args[0].(value.Array)
	if !ok {
		return nil, typeErr("last: expected Array, got %s", value.TypeName(args[0]))
	}
	v, ok := arr.Get(arr.Len() - 1)
	if !ok {
		return value.None(), nil
	}
	return value.Some(v), nil
}

// builtinPeek reads the top of a Stack without popping it.
func builtinPeek(cap any, args []value.Value) (value.Value, error) {
	s, ok := args[0].(value.Stack)
	if !ok {
		return nil, typeErr("peek: expected Stack, got %s", value.TypeName(args[0]))
	}
	items := s.Items()
	if len(items) == 0 {
		return value.None(), nil
	}
	return value.Some(items[0]), nil
}

func builtinHas(cap any, args []value.Value) (value.Value, error) {
	switch c := args[0].(type) {
	case value.HashMap:
		_, ok := c.Get(args[1])
		return value.Bool(ok), nil
	case value.HashSet:
		return value.Bool(c.Has(args[1])), nil
	default:
		return nil, typeErr("has: expected HashMap or HashSet, got %s", value.TypeName(args[0]))
	}
}

func builtinKeys(cap any, args []value.Value) (value.Value, error) {
	m, ok := args[0].(value.HashMap)
	if !ok {
		return nil, typeErr("keys: expected HashMap, got %s", value.TypeName(args[0]))
	}
	entries := m.Entries()
	out := make([]value.Value, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return value.NewArray(out), nil
}

func builtinValues(cap any, args []value.Value) (value.Value, error) {
	m, ok := args[0].(value.HashMap)
	if !ok {
		return nil, typeErr("values: expected HashMap, got %s", value.TypeName(args[0]))
	}
	entries := m.Entries()
	out := make([]value.Value, len(entries))
	for i, e := range entries {
		out[i] = e.Val
	}
	return value.NewArray(out), nil
}

func builtinArrayNew(cap any, args []value.Value) (value.Value, error) {
	return value.NewArray(nil), nil
}

func builtinHashMapNew(cap any, args []value.Value) (value.Value, error) {
	return value.NewHashMap(), nil
}

func builtinHashSetNew(cap any, args []value.Value) (value.Value, error) {
	return value.NewHashSet(), nil
}

func builtinQueueNew(cap any, args []value.Value) (value.Value, error) {
	return value.NewQueue(), nil
}

func builtinStackNew(cap any, args []value.Value) (value.Value, error) {
	return value.NewStack(), nil
}

func builtinSome(cap any, args []value.Value) (value.Value, error) { return value.Some(args[0]), nil }
func builtinNone(cap any, args []value.Value) (value.Value, error) { return value.None(), nil }
func builtinOk(cap any, args []value.Value) (value.Value, error)   { return value.Ok(args[0]), nil }
func builtinErr(cap any, args []value.Value) (value.Value, error)  { return value.Err(args[0]), nil }

func builtinIsSome(cap any, args []value.Value) (value.Value, error) {
	o, ok := args[0].(*value.Option)
	return value.Bool(ok && o.Present), nil
}

func builtinIsNone(cap any, args []value.Value) (value.Value, error) {
	o, ok := args[0].(*value.Option)
	return value.Bool(ok && !o.Present), nil
}

func builtinIsOk(cap any, args []value.Value) (value.Value, error) {
	r, ok := args[0].(*value.Result)
	return value.Bool(ok && r.IsOk), nil
}

func builtinIsErr(cap any, args []value.Value) (value.Value, error) {
	r, ok := args[0].(*value.Result)
	return value.Bool(ok && !r.IsOk), nil
}

// builtinUnwrap extracts the inner value of a present Option or an Ok
// Result; anything else is a TypeError rather than a panic — builtins
// report typed errors, never crash.
func builtinUnwrap(cap any, args []value.Value) (value.Value, error) {
	switch t := args[0].(type) {
	case *value.Option:
		if !t.Present {
			return nil, typeErr("unwrap: called on None")
		}
		return t.Inner, nil
	case *value.Result:
		if !t.IsOk {
			return nil, typeErr("unwrap: called on Err(%s)", t.Inner.Inspect())
		}
		return t.Inner, nil
	default:
		return nil, typeErr("unwrap: expected Option or Result, got %s", value.TypeName(args[0]))
	}
}

// ---- mutation builtins: clone-for-write, return the new collection ----

func mutationBuiltins() []*value.NativeFn {
	return []*value.NativeFn{
		native("push", 2, builtinPush),
		native("pop", 1, builtinPop),
		native("insert", 3, builtinInsert),
		native("remove", 2, builtinRemove),
		native("hashMapPut", 3, builtinHashMapPut),
		native("hashMapDelete", 2, builtinHashMapDelete),
		native("hashSetAdd", 2, builtinHashSetAdd),
		native("hashSetRemove", 2, builtinHashSetRemove),
		native("enqueue", 2, builtinEnqueue),
		native("dequeue", 1, builtinDequeue),
		native("stackPush", 2, builtinStackPush),
		native("stackPop", 1, builtinStackPop),
	}
}

func builtinPush(cap any, args []value.Value) (value.Value, error) {
	arr, ok := args[0].(value.Array)
	if !ok {
		return nil, typeErr("push: expected Array, got %s", value.TypeName(args[0]))
	}
	return arr.Push(args[1]), nil
}

// builtinPop, like the rest of the removal-shaped builtins below, returns
// [removedOrNone, newCollection] rather than the collection alone: unlike
// push/insert, the caller needs the removed element back, and the compiler
// does not auto-rebind these (see compiler.mutationBuiltins).
func builtinPop(cap any, args []value.Value) (value.Value, error) {
	arr, ok := args[0].(value.Array)
	if !ok {
		return nil, typeErr("pop: expected Array, got %s", value.TypeName(args[0]))
	}
	newArr, removed, had := arr.Pop()
	if !had {
		return value.NewArray([]value.Value{value.None(), newArr}), nil
	}
	return value.NewArray([]value.Value{value.Some(removed), newArr}), nil
}

func builtinInsert(cap any, args []value.Value) (value.Value, error) {
	arr, ok := args[0].(value.Array)
	if !ok {
		return nil, typeErr("insert: expected Array, got %s", value.TypeName(args[0]))
	}
	idx, ok := args[1].(value.Number)
	if !ok {
		return nil, typeErr("insert: expected Number index, got %s", value.TypeName(args[1]))
	}
	out, ok := arr.Insert(int(idx), args[2])
	if !ok {
		return nil, diag.New(diag.IndexOutOfBounds, fmt.Sprintf("insert: index %s out of bounds for array of length %d", idx.Display(), arr.Len()), diag.Span{})
	}
	return out, nil
}

func builtinRemove(cap any, args []value.Value) (value.Value, error) {
	arr, ok := args[0].(value.Array)
	if !ok {
		return nil, typeErr("remove: expected Array, got %s", value.TypeName(args[0]))
	}
	idx, ok := args[1].(value.Number)
	if !ok {
		return nil, typeErr("remove: expected Number index, got %s", value.TypeName(args[1]))
	}
	out, removed, had := arr.Remove(int(idx))
	if !had {
		return nil, diag.New(diag.IndexOutOfBounds, fmt.Sprintf("remove: index %s out of bounds for array of length %d", idx.Display(), arr.Len()), diag.Span{})
	}
	return value.NewArray([]value.Value{value.Some(removed), out}), nil
}

func builtinHashMapPut(cap any, args []value.Value) (value.Value, error) {
	m, ok := args[0].(value.HashMap)
	if !ok {
		return nil, typeErr("hashMapPut: expected HashMap, got %s", value.TypeName(args[0]))
	}
	out := m.CloneForWrite()
	out.Put(args[1], args[2])
	return out, nil
}

func builtinHashMapDelete(cap any, args []value.Value) (value.Value, error) {
	m, ok := args[0].(value.HashMap)
	if !ok {
		return nil, typeErr("hashMapDelete: expected HashMap, got %s", value.TypeName(args[0]))
	}
	out := m.CloneForWrite()
	out.Delete(args[1])
	return out, nil
}

func builtinHashSetAdd(cap any, args []value.Value) (value.Value, error) {
	s, ok := args[0].(value.HashSet)
	if !ok {
		return nil, typeErr("hashSetAdd: expected HashSet, got %s", value.TypeName(args[0]))
	}
	out := s.CloneForWrite()
	out.Add(args[1])
	return out, nil
}

func builtinHashSetRemove(cap any, args []value.Value) (value.Value, error) {
	s, ok := args[0].(value.HashSet)
	if !ok {
		return nil, typeErr("hashSetRemove: expected HashSet, got %s", value.TypeName(args[0]))
	}
	out := s.CloneForWrite()
	out.Remove(args[1])
	return out, nil
}

func builtinEnqueue(cap any, args []value.Value) (value.Value, error) {
	q, ok := args[0].(value.Queue)
	if !ok {
		return nil, typeErr("enqueue: expected Queue, got %s", value.TypeName(args[0]))
	}
	return q.Enqueue(args[1]), nil
}

func builtinDequeue(cap any, args []value.Value) (value.Value, error) {
	q, ok := args[0].(value.Queue)
	if !ok {
		return nil, typeErr("dequeue: expected Queue, got %s", value.TypeName(args[0]))
	}
	out, removed, had := q.Dequeue()
	if !had {
		return value.NewArray([]value.Value{value.None(), out}), nil
	}
	return value.NewArray([]value.Value{value.Some(removed), out}), nil
}

func builtinStackPush(cap any, args []value.Value) (value.Value, error) {
	s, ok := args[0].(value.Stack)
	if !ok {
		return nil, typeErr("stackPush: expected Stack, got %s", value.TypeName(args[0]))
	}
	return s.Push(args[1]), nil
}

func builtinStackPop(cap any, args []value.Value) (value.Value, error) {
	s, ok := args[0].(value.Stack)
	if !ok {
		return nil, typeErr("stackPop: expected Stack, got %s", value.TypeName(args[0]))
	}
	out, top, had := s.Pop()
	if !had {
		return value.NewArray([]value.Value{value.None(), out}), nil
	}
	return value.NewArray([]value.Value{value.Some(top), out}), nil
}

// ---- intrinsics: need to call back into user closures ----

func intrinsics() []*value.NativeFn {
	return []*value.NativeFn{
		native("map", 2, builtinMap),
		native("filter", 2, builtinFilter),
		native("reduce", 3, builtinReduce),
		native("forEach", 2, builtinForEach),
		native("hashMapForEach", 2, builtinHashMapForEach),
		native("hashMapMap", 2, builtinHashMapMap),
		native("hashSetMap", 2, builtinHashSetMap),
		native("sort", 2, builtinSort),
		native("any", 2, builtinAny),
		native("all", 2, builtinAll),
		native("find", 2, builtinFind),
	}
}

func builtinMap(cap any, args []value.Value) (value.Value, error) {
	arr, ok := args[0].(value.Array)
	if !ok {
		return nil, typeErr("map: expected Array, got %s", value.TypeName(args[0]))
	}
	caller, err := callerFrom(cap)
	if err != nil {
		return nil, err
	}
	items := arr.Items()
	out := make([]value.Value, len(items))
	for i, el := range items {
		r, err := caller.CallValue(args[1], []value.Value{el})
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return value.NewArray(out), nil
}

func builtinFilter(cap any, args []value.Value) (value.Value, error) {
	arr, ok := args[0].(value.Array)
	if !ok {
		return nil, typeErr("filter: expected Array, got %s", value.TypeName(args[0]))
	}
	caller, err := callerFrom(cap)
	if err != nil {
		return nil, err
	}
	var out []value.Value
	for _, el := range arr.Items() {
		r, err := caller.CallValue(args[1], []value.Value{el})
		if err != nil {
			return nil, err
		}
		if value.Truthy(r) {
			out = append(out, el)
		}
	}
	return value.NewArray(out), nil
}

func builtinReduce(cap any, args []value.Value) (value.Value, error) {
	arr, ok := args[0].(value.Array)
	if !ok {
		return nil, typeErr("reduce: expected Array, got %s", value.TypeName(args[0]))
	}
	caller, err := callerFrom(cap)
	if err != nil {
		return nil, err
	}
	acc := args[2]
	for _, el := range arr.Items() {
		acc, err = caller.CallValue(args[1], []value.Value{acc, el})
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func builtinForEach(cap any, args []value.Value) (value.Value, error) {
	arr, ok := args[0].(value.Array)
	if !ok {
		return nil, typeErr("forEach: expected Array, got %s", value.TypeName(args[0]))
	}
	caller, err := callerFrom(cap)
	if err != nil {
		return nil, err
	}
	for _, el := range arr.Items() {
		if _, err := caller.CallValue(args[1], []value.Value{el}); err != nil {
			return nil, err
		}
	}
	return value.TheNull, nil
}

// builtinHashMapForEach calls fn(value, key) — value first, key second, per
// the write-back protocol's required-intrinsics table.
func builtinHashMapForEach(cap any, args []value.Value) (value.Value, error) {
	m, ok := args[0].(value.HashMap)
	if !ok {
		return nil, typeErr("hashMapForEach: expected HashMap, got %s", value.TypeName(args[0]))
	}
	caller, err := callerFrom(cap)
	if err != nil {
		return nil, err
	}
	for _, e := range m.Entries() {
		if _, err := caller.CallValue(args[1], []value.Value{e.Val, e.Key}); err != nil {
			return nil, err
		}
	}
	return value.TheNull, nil
}

func builtinHashMapMap(cap any, args []value.Value) (value.Value, error) {
	m, ok := args[0].(value.HashMap)
	if !ok {
		return nil, typeErr("hashMapMap: expected HashMap, got %s", value.TypeName(args[0]))
	}
	caller, err := callerFrom(cap)
	if err != nil {
		return nil, err
	}
	out := value.NewHashMap()
	for _, e := range m.Entries() {
		r, err := caller.CallValue(args[1], []value.Value{e.Val, e.Key})
		if err != nil {
			return nil, err
		}
		out.Put(e.Key, r)
	}
	return out, nil
}

// builtinHashSetMap returns a new Array, not a Set — a mapped element may
// no longer be a valid set member (e.g. duplicates), per the write-back
// protocol's required-intrinsics table.
func builtinHashSetMap(cap any, args []value.Value) (value.Value, error) {
	s, ok := args[0].(value.HashSet)
	if !ok {
		return nil, typeErr("hashSetMap: expected HashSet, got %s", value.TypeName(args[0]))
	}
	caller, err := callerFrom(cap)
	if err != nil {
		return nil, err
	}
	items := s.Items()
	out := make([]value.Value, len(items))
	for i, el := range items {
		r, err := caller.CallValue(args[1], []value.Value{el})
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return value.NewArray(out), nil
}

func builtinSort(cap any, args []value.Value) (value.Value, error) {
	arr, ok := args[0].(value.Array)
	if !ok {
		return nil, typeErr("sort: expected Array, got %s", value.TypeName(args[0]))
	}
	caller, err := callerFrom(cap)
	if err != nil {
		return nil, err
	}
	items := arr.Items()
	out := make([]value.Value, len(items))
	copy(out, items)
	var callErr error
	sort.SliceStable(out, func(i, j int) bool {
		if callErr != nil {
			return false
		}
		r, err := caller.CallValue(args[1], []value.Value{out[i], out[j]})
		if err != nil {
			callErr = err
			return false
		}
		n, ok := r.(value.Number)
		if !ok {
			callErr = typeErr("sort: comparator must return a Number, got %s", value.TypeName(r))
			return false
		}
		return n < 0
	})
	if callErr != nil {
		return nil, callErr
	}
	return value.NewArray(out), nil
}

func builtinAny(cap any, args []value.Value) (value.Value, error) {
	arr, ok := args[0].(value.Array)
	if !ok {
		return nil, typeErr("any: expected Array, got %s", value.TypeName(args[0]))
	}
	caller, err := callerFrom(cap)
	if err != nil {
		return nil, err
	}
	for _, el := range arr.Items() {
		r, err := caller.CallValue(args[1], []value.Value{el})
		if err != nil {
			return nil, err
		}
		if value.Truthy(r) {
			return value.Bool(true), nil
		}
	}
	return value.Bool(false), nil
}

func builtinAll(cap any, args []value.Value) (value.Value, error) {
	arr, ok := args[0].(value.Array)
	if !ok {
		return nil, typeErr("all: expected Array, got %s", value.TypeName(args[0]))
	}
	caller, err := callerFrom(cap)
	if err != nil {
		return nil, err
	}
	for _, el := range arr.Items() {
		r, err := caller.CallValue(args[1], []value.Value{el})
		if err != nil {
			return nil, err
		}
		if !value.Truthy(r) {
			return value.Bool(false), nil
		}
	}
	return value.Bool(true), nil
}

func builtinFind(cap any, args []value.Value) (value.Value, error) {
	arr, ok := args[0].(value.Array)
	if !ok {
		return nil, typeErr("find: expected Array, got %s", value.TypeName(args[0]))
	}
	caller, err := callerFrom(cap)
	if err != nil {
		return nil, err
	}
	for _, el := range arr.Items() {
		r, err := caller.CallValue(args[1], []value.Value{el})
		if err != nil {
			return nil, err
		}
		if value.Truthy(r) {
			return value.Some(el), nil
		}
	}
	return value.None(), nil
}
