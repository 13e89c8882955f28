// Package value implements Atlas's tagged Value representation: the single
// data type flowing through both the interpreter and the VM. Collection
// variants are copy-on-write over shared, thread-safe handles so that the
// two engines (and any future multi-threaded scheduler) observe identical
// mutation semantics.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Kind discriminates the tagged Value variants named in the data model.
type Kind string

const (
	KindNull     Kind = "null"
	KindBool     Kind = "bool"
	KindNumber   Kind = "number"
	KindString   Kind = "string"
	KindArray    Kind = "array"
	KindHashMap  Kind = "hashmap"
	KindHashSet  Kind = "hashset"
	KindQueue    Kind = "queue"
	KindStack    Kind = "stack"
	KindFunction Kind = "function"
	KindClosure  Kind = "closure"
	KindNativeFn Kind = "native_fn"
	KindExtern   Kind = "extern"
	KindJSON     Kind = "json"
	KindOption   Kind = "option"
	KindResult   Kind = "result"
)

// Value is the common interface of every Atlas runtime value. Display is the
// canonical top-level form (used by print() and test assertions); Inspect is
// the form used when the value is nested inside a container (strings gain
// quotes there, everything else is unchanged).
type Value interface {
	Kind() Kind
	Display() string
	Inspect() string
}

// ---- Null ----

type Null struct{}

var TheNull = Null{}

func (Null) Kind() Kind        { return KindNull }
func (Null) Display() string   { return "null" }
func (Null) Inspect() string   { return "null" }

// ---- Bool ----

type Bool bool

func (b Bool) Kind() Kind      { return KindBool }
func (b Bool) Display() string { if b { return "true" }; return "false" }
func (b Bool) Inspect() string { return b.Display() }

// ---- Number ----

// Number is an IEEE-754 double per the data model. Equality uses IEEE-754
// rules (NaN != NaN, including self); this is handled in Equal, not here.
type Number float64

func (n Number) Kind() Kind { return KindNumber }

func (n Number) Display() string {
	f := float64(n)
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (n Number) Inspect() string { return n.Display() }

// ---- String ----

// internTable deduplicates repeated string construction, realizing an
// "immutable shared handle" contract for String without a bespoke handle
// type: Go strings are already immutable and cheap to share,
// so interning only needs to return the same backing Go string for equal
// content.
var internTable *lru.Cache[string, string]

func init() {
	c, err := lru.New[string, string](4096)
	if err != nil {
		panic(err)
	}
	internTable = c
}

// String is an immutable, shared piece of text.
type String string

// NewString interns s, returning a String sharing backing storage with any
// previously constructed equal string.
func NewString(s string) String {
	if cached, ok := internTable.Get(s); ok {
		return String(cached)
	}
	internTable.Add(s, s)
	return String(s)
}

func (s String) Kind() Kind { return KindString }

// Display is unquoted at the top level.
func (s String) Display() string { return string(s) }

// Inspect is quoted, matching how strings look nested inside arrays/maps.
func (s String) Inspect() string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range string(s) {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// ---- Extern ----

// Extern is an opaque FFI handle. Its identity is a generated UUID rather
// than a bare Go pointer, so display and equality are stable even if the
// underlying host object is later relocated or wrapped.
type Extern struct {
	ID      string
	TypeTag string
	Host    any
}

func NewExtern(typeTag string, host any) *Extern {
	return &Extern{ID: uuid.NewString(), TypeTag: typeTag, Host: host}
}

func (e *Extern) Kind() Kind      { return KindExtern }
func (e *Extern) Display() string { return e.Inspect() }
func (e *Extern) Inspect() string { return fmt.Sprintf("<extern %s:%s>", e.TypeTag, e.ID) }

// ---- JsonValue ----

// JsonValue wraps an already-decoded JSON document (map[string]any,
// []any, string, float64, bool, nil) produced by JSON-parsing builtins.
type JsonValue struct {
	Doc any
}

func (j *JsonValue) Kind() Kind      { return KindJSON }
func (j *JsonValue) Display() string { return j.Inspect() }
func (j *JsonValue) Inspect() string { return jsonInspect(j.Doc) }

func jsonInspect(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return Number(t).Display()
	case string:
		return String(t).Inspect()
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = jsonInspect(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		parts := make([]string, 0, len(t))
		for k, val := range t {
			parts = append(parts, String(k).Inspect()+": "+jsonInspect(val))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ---- Option / Result ----

// Option is Some(Value) | None, the carrier type the pattern-match opcode
// family (IsOptionSome/ExtractOptionValue/...) operates on.
type Option struct {
	Present bool
	Inner   Value
}

func Some(v Value) *Option { return &Option{Present: true, Inner: v} }
func None() *Option        { return &Option{Present: false} }

func (o *Option) Kind() Kind { return KindOption }
func (o *Option) Display() string {
	if o.Present {
		return "Some(" + o.Inner.Inspect() + ")"
	}
	return "None"
}
func (o *Option) Inspect() string { return o.Display() }

// Result is Ok(Value) | Err(Value).
type Result struct {
	IsOk  bool
	Inner Value
}

func Ok(v Value) *Result  { return &Result{IsOk: true, Inner: v} }
func Err(v Value) *Result { return &Result{IsOk: false, Inner: v} }

func (r *Result) Kind() Kind { return KindResult }
func (r *Result) Display() string {
	if r.IsOk {
		return "Ok(" + r.Inner.Inspect() + ")"
	}
	return "Err(" + r.Inner.Inspect() + ")"
}
func (r *Result) Inspect() string { return r.Display() }

// TypeName returns a human-readable type name for diagnostics, distinct from
// Kind (Kind is a stable machine tag; TypeName is the prose used in
// TypeError messages).
func TypeName(v Value) string {
	if v == nil {
		return "null"
	}
	return string(v.Kind())
}

// Truthy implements Atlas's notion of truthiness for `if`/`while`/`&&`/`||`:
// only Bool(false) and Null are falsy; everything else (including 0 and "")
// is truthy. This matches a typed language where conditionals require a
// Bool expression except at the value layer's own boundary (e.g. builtins
// receiving an untyped any).
func Truthy(v Value) bool {
	switch t := v.(type) {
	case Null:
		return false
	case Bool:
		return bool(t)
	default:
		return true
	}
}
