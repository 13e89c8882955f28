package builtins

import (
	"testing"

	"github.com/atl-lang/atlas-sub003/pkg/value"
)

func mustCall(t *testing.T, name string, cap any, args []value.Value) value.Value {
	t.Helper()
	for _, group := range [][]*value.NativeFn{pureBuiltins(), mutationBuiltins(), intrinsics()} {
		for _, n := range group {
			if n.Name == name {
				v, err := n.Fn(cap, args)
				if err != nil {
					t.Fatalf("%s: unexpected error: %v", name, err)
				}
				return v
			}
		}
	}
	t.Fatalf("no builtin named %q", name)
	return nil
}

func TestLenAcrossCollections(t *testing.T) {
	arr := value.NewArray([]value.Value{value.Number(1), value.Number(2)})
	if got := mustCall(t, "len", nil, []value.Value{arr}); got.(value.Number) != 2 {
		t.Errorf("len(array) = %v, want 2", got)
	}
	if got := mustCall(t, "len", nil, []value.Value{value.NewString("abc")}); got.(value.Number) != 3 {
		t.Errorf("len(string) = %v, want 3", got)
	}
}

func TestAbs(t *testing.T) {
	if got := mustCall(t, "abs", nil, []value.Value{value.Number(-5)}); got.(value.Number) != 5 {
		t.Errorf("abs(-5) = %v, want 5", got)
	}
}

// TestPushIsCopyOnWrite exercises the exact shared-array scenario the
// write-back protocol exists for: pushing onto an aliased array must not
// affect the original binding.
func TestPushIsCopyOnWrite(t *testing.T) {
	a := value.NewArray([]value.Value{value.Number(1), value.Number(2), value.Number(3)})
	b := a
	b.Retain()

	grown := mustCall(t, "push", nil, []value.Value{a, value.Number(4)})
	arr, ok := grown.(value.Array)
	if !ok {
		t.Fatalf("push did not return an Array, got %T", grown)
	}
	if arr.Len() != 4 {
		t.Errorf("grown array len = %d, want 4", arr.Len())
	}
	if a.Len() != 3 {
		t.Errorf("original array len = %d, want 3 (CoW violated)", a.Len())
	}
}

func TestPopReturnsElementAndNewCollection(t *testing.T) {
	a := value.NewArray([]value.Value{value.Number(1), value.Number(2), value.Number(3)})
	result := mustCall(t, "pop", nil, []value.Value{a})
	pair, ok := result.(value.Array)
	if !ok || pair.Len() != 2 {
		t.Fatalf("pop result = %#v, want a 2-element array", result)
	}
	removed, _ := pair.Get(0)
	opt, ok := removed.(*value.Option)
	if !ok || !opt.Present || opt.Inner.(value.Number) != 3 {
		t.Errorf("pop removed = %#v, want Some(3)", removed)
	}
	rest, _ := pair.Get(1)
	if rest.(value.Array).Len() != 2 {
		t.Errorf("pop remainder len = %v, want 2", rest.(value.Array).Len())
	}
}

func TestHashMapPutAndDelete(t *testing.T) {
	m := value.NewHashMap()
	m.Put(value.NewString("a"), value.Number(1))

	grown := mustCall(t, "hashMapPut", nil, []value.Value{m, value.NewString("b"), value.Number(2)})
	gm := grown.(value.HashMap)
	if gm.Len() != 2 {
		t.Errorf("hashMapPut len = %d, want 2", gm.Len())
	}
	if m.Len() != 1 {
		t.Errorf("original map len = %d, want 1 (CoW violated)", m.Len())
	}

	shrunk := mustCall(t, "hashMapDelete", nil, []value.Value{gm, value.NewString("a")})
	sm := shrunk.(value.HashMap)
	if sm.Len() != 1 {
		t.Errorf("hashMapDelete len = %d, want 1", sm.Len())
	}
}

// fakeCaller is a minimal Caller used to test intrinsics without spinning up
// a real VM or interpreter: it applies a Go function directly.
type fakeCaller struct {
	apply func(args []value.Value) (value.Value, error)
}

func (f *fakeCaller) CallValue(fn value.Value, args []value.Value) (value.Value, error) {
	return f.apply(args)
}

func TestMapFilterReduce(t *testing.T) {
	arr := value.NewArray([]value.Value{value.Number(1), value.Number(2), value.Number(3)})

	doubled := &fakeCaller{apply: func(args []value.Value) (value.Value, error) {
		return args[0].(value.Number) * 2, nil
	}}
	mapped := mustCall(t, "map", doubled, []value.Value{arr, value.TheNull})
	items := mapped.(value.Array).Items()
	if len(items) != 3 || items[0].(value.Number) != 2 || items[2].(value.Number) != 6 {
		t.Errorf("map result = %v", items)
	}

	evens := &fakeCaller{apply: func(args []value.Value) (value.Value, error) {
		n := args[0].(value.Number)
		return value.Bool(int(n)%2 == 0), nil
	}}
	filtered := mustCall(t, "filter", evens, []value.Value{arr, value.TheNull})
	fitems := filtered.(value.Array).Items()
	if len(fitems) != 1 || fitems[0].(value.Number) != 2 {
		t.Errorf("filter result = %v", fitems)
	}

	sum := &fakeCaller{apply: func(args []value.Value) (value.Value, error) {
		return args[0].(value.Number) + args[1].(value.Number), nil
	}}
	total := mustCall(t, "reduce", sum, []value.Value{arr, value.TheNull, value.Number(0)})
	if total.(value.Number) != 6 {
		t.Errorf("reduce result = %v, want 6", total)
	}
}

func TestFindAndAnyAll(t *testing.T) {
	arr := value.NewArray([]value.Value{value.Number(1), value.Number(2), value.Number(3)})
	gtTwo := &fakeCaller{apply: func(args []value.Value) (value.Value, error) {
		return value.Bool(args[0].(value.Number) > 2), nil
	}}

	found := mustCall(t, "find", gtTwo, []value.Value{arr, value.TheNull})
	opt, ok := found.(*value.Option)
	if !ok || !opt.Present || opt.Inner.(value.Number) != 3 {
		t.Errorf("find result = %#v, want Some(3)", found)
	}

	if mustCall(t, "any", gtTwo, []value.Value{arr, value.TheNull}).(value.Bool) != true {
		t.Errorf("any result = false, want true")
	}
	if mustCall(t, "all", gtTwo, []value.Value{arr, value.TheNull}).(value.Bool) != false {
		t.Errorf("all result = true, want false")
	}
}

func TestIntrinsicWithoutCallerFails(t *testing.T) {
	arr := value.NewArray([]value.Value{value.Number(1)})
	for _, n := range intrinsics() {
		if n.Name != "map" {
			continue
		}
		if _, err := n.Fn(nil, []value.Value{arr, value.TheNull}); err == nil {
			t.Fatalf("map with nil capability should fail, got no error")
		}
	}
}

func TestSomeNoneOkErr(t *testing.T) {
	some := mustCall(t, "Some", nil, []value.Value{value.Number(1)})
	if mustCall(t, "isSome", nil, []value.Value{some}).(value.Bool) != true {
		t.Errorf("isSome(Some(1)) = false")
	}
	none := mustCall(t, "None", nil, nil)
	if mustCall(t, "isNone", nil, []value.Value{none}).(value.Bool) != true {
		t.Errorf("isNone(None) = false")
	}
	ok := mustCall(t, "Ok", nil, []value.Value{value.Number(1)})
	if mustCall(t, "isOk", nil, []value.Value{ok}).(value.Bool) != true {
		t.Errorf("isOk(Ok(1)) = false")
	}
	errVal := mustCall(t, "Err", nil, []value.Value{value.NewString("boom")})
	if mustCall(t, "isErr", nil, []value.Value{errVal}).(value.Bool) != true {
		t.Errorf("isErr(Err(...)) = false")
	}
}
