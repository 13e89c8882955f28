package value

import "fmt"

// OwnershipMode is the enum attached to parameters and (in limited form)
// return positions: Own transfers, Borrow is a read-only view, Shared is a
// mutable alias. Return ownership may only be Own or Borrow.
type OwnershipMode int

const (
	Own OwnershipMode = iota
	Borrow
	Shared
)

func (m OwnershipMode) String() string {
	switch m {
	case Own:
		return "own"
	case Borrow:
		return "borrow"
	case Shared:
		return "shared"
	default:
		return "unknown"
	}
}

// ParamMeta is the per-parameter metadata carried by a FunctionRef: name and
// ownership mode (type is tracked by the external symbol table, not here —
// the execution core does not type-check).
type ParamMeta struct {
	Name      string
	Ownership OwnershipMode
}

// FunctionRef is function metadata as stored in the bytecode constant pool
// and referenced by MakeClosure: name, arity, per-parameter ownership
// annotations, return ownership, entry offset, local slot count, and an
// ordered, stable upvalue capture list.
type FunctionRef struct {
	Name           string
	Params         []ParamMeta
	ReturnOwned    OwnershipMode // Own or Borrow only
	EntryOffset    int
	LocalSlotCount int
	// UpvalueCaptures describes, for each upvalue slot in order, where the
	// compiler found the binding being captured: FromLocal indexes the
	// immediately enclosing function's locals; otherwise FromUpvalue
	// indexes the immediately enclosing function's own upvalue list
	// (transitive capture).
	UpvalueCaptures []UpvalueCapture
}

type UpvalueCapture struct {
	FromLocal   bool
	Index       int
}

func (f *FunctionRef) Arity() int { return len(f.Params) }

// Function is a named, non-closed-over function value (top-level `fn`
// declarations with no captured upvalues reference this directly; anything
// with captures is wrapped in a Closure instead).
type Function struct {
	Ref *FunctionRef
}

func (f Function) Kind() Kind      { return KindFunction }
func (f Function) Display() string { return fmt.Sprintf("<fn %s/%d>", f.Ref.Name, f.Ref.Arity()) }
func (f Function) Inspect() string { return f.Display() }

// Closure pairs a FunctionRef with its captured upvalues, snapshotted **by
// value at the moment of closure creation**: the slice held here is never a
// live view into an enclosing scope.
type Closure struct {
	Ref      *FunctionRef
	Upvalues []Value
}

func (c *Closure) Kind() Kind      { return KindClosure }
func (c *Closure) Display() string { return fmt.Sprintf("<closure %s/%d>", c.Ref.Name, c.Ref.Arity()) }
func (c *Closure) Inspect() string { return c.Display() }

// NativeFn is a host-registered function invocable from Atlas. Cap is the
// capability context threaded to every native call; it is
// opaque here (declared as `any` to avoid an import cycle with pkg/runtime)
// and type-asserted by the native function itself when it needs it.
type NativeFn struct {
	Name  string
	Arity int
	Fn    func(cap any, args []Value) (Value, error)
}

func (n *NativeFn) Kind() Kind      { return KindNativeFn }
func (n *NativeFn) Display() string { return fmt.Sprintf("<native %s/%d>", n.Name, n.Arity) }
func (n *NativeFn) Inspect() string { return n.Display() }

// Callable reports whether v can appear on the left of a Call and returns
// its effective arity (-1 for variadic natives, which validate arity
// themselves).
func Callable(v Value) (arity int, ok bool) {
	switch t := v.(type) {
	case Function:
		return t.Ref.Arity(), true
	case *Closure:
		return t.Ref.Arity(), true
	case *NativeFn:
		return t.Arity, true
	default:
		return 0, false
	}
}
