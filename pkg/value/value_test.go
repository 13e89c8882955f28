package value

import "testing"

func TestScalarDisplayAndInspect(t *testing.T) {
	if Bool(true).Display() != "true" || Bool(false).Display() != "false" {
		t.Errorf("Bool.Display mismatch")
	}
	if Number(3).Display() != "3" {
		t.Errorf("Number(3).Display() = %q, want 3", Number(3).Display())
	}
	if String("hi").Display() != "hi" {
		t.Errorf("String.Display should be unquoted")
	}
	if String("hi").Inspect() != `"hi"` {
		t.Errorf("String.Inspect() = %q, want quoted", String("hi").Inspect())
	}
}

func TestOptionDisplay(t *testing.T) {
	if Some(Number(1)).Display() != "Some(1)" {
		t.Errorf("Some(1).Display() = %q", Some(Number(1)).Display())
	}
	if None().Display() != "None" {
		t.Errorf("None().Display() = %q", None().Display())
	}
}

func TestResultDisplay(t *testing.T) {
	if Ok(Number(1)).Display() != "Ok(1)" {
		t.Errorf("Ok(1).Display() = %q", Ok(Number(1)).Display())
	}
	if Err(String("boom")).Display() != `Err("boom")` {
		t.Errorf(`Err("boom").Display() = %q`, Err(String("boom")).Display())
	}
}

func TestArrayCloneForWriteIsNoOpWhenUnshared(t *testing.T) {
	a := NewArray([]Value{Number(1), Number(2)})
	b := a.CloneForWrite()
	b.SetIndex(0, Number(99))
	got, _ := a.Get(0)
	if got != Number(99) {
		t.Errorf("unshared CloneForWrite should return the same handle, got Get(0) = %v", got)
	}
}

func TestArrayCloneForWriteCopiesWhenShared(t *testing.T) {
	a := NewArray([]Value{Number(1), Number(2)})
	a.Retain() // simulate a second binding aliasing the same handle
	b := a.CloneForWrite()
	b.SetIndex(0, Number(99))
	got, _ := a.Get(0)
	if got != Number(1) {
		t.Errorf("shared CloneForWrite must not mutate the original, got Get(0) = %v", got)
	}
	gotB, _ := b.Get(0)
	if gotB != Number(99) {
		t.Errorf("write should land on the cloned handle, got Get(0) = %v", gotB)
	}
}

func TestArrayPushDoesNotMutateSharedAlias(t *testing.T) {
	a := NewArray([]Value{Number(1), Number(2), Number(3)})
	a.Retain()
	pushed := a.Push(Number(4))
	if a.Len() != 3 {
		t.Errorf("original alias length = %d, want 3", a.Len())
	}
	if pushed.Len() != 4 {
		t.Errorf("pushed length = %d, want 4", pushed.Len())
	}
}

func TestArrayPopAndRemove(t *testing.T) {
	a := NewArray([]Value{Number(1), Number(2), Number(3)})
	out, last, ok := a.Pop()
	if !ok || last != Number(3) || out.Len() != 2 {
		t.Fatalf("Pop() = %v, %v, %v", out, last, ok)
	}
	// a is unaliased, so Pop worked in place and a already holds [1, 2].
	out2, removed, ok := a.Remove(0)
	if !ok || removed != Number(1) || out2.Len() != 1 {
		t.Fatalf("Remove(0) = %v, %v, %v", out2, removed, ok)
	}
	if got, _ := out2.Get(0); got != Number(2) {
		t.Errorf("after Remove(0), Get(0) = %v, want 2", got)
	}
}

func TestArrayGetOutOfRange(t *testing.T) {
	a := NewArray([]Value{Number(1)})
	if _, ok := a.Get(5); ok {
		t.Error("Get(5) on a length-1 array should fail")
	}
	if ok := a.SetIndex(5, Number(0)); ok {
		t.Error("SetIndex(5, ...) on a length-1 array should fail")
	}
}
