package value

// Equal implements structural equality:
// Number uses IEEE-754 equality (NaN != NaN); String compares by byte
// sequence; collections compare element-wise; Closure/Function/NativeFn
// compare by identity, never by structural content.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Null:
		return true
	case Bool:
		return av == b.(Bool)
	case Number:
		return float64(av) == float64(b.(Number))
	case String:
		return av == b.(String)
	case Array:
		bv := b.(Array)
		ai, bi := av.Items(), bv.Items()
		if len(ai) != len(bi) {
			return false
		}
		for i := range ai {
			if !Equal(ai[i], bi[i]) {
				return false
			}
		}
		return true
	case HashMap:
		bv := b.(HashMap)
		ae, be := av.Entries(), bv.Entries()
		if len(ae) != len(be) {
			return false
		}
		for _, e := range ae {
			other, ok := bv.Get(e.Key)
			if !ok || !Equal(e.Val, other) {
				return false
			}
		}
		return true
	case HashSet:
		bv := b.(HashSet)
		if av.Len() != bv.Len() {
			return false
		}
		for _, item := range av.Items() {
			if !bv.Has(item) {
				return false
			}
		}
		return true
	case Queue:
		bv := b.(Queue)
		ai, bi := av.Items(), bv.Items()
		if len(ai) != len(bi) {
			return false
		}
		for i := range ai {
			if !Equal(ai[i], bi[i]) {
				return false
			}
		}
		return true
	case Stack:
		bv := b.(Stack)
		ai, bi := av.Items(), bv.Items()
		if len(ai) != len(bi) {
			return false
		}
		for i := range ai {
			if !Equal(ai[i], bi[i]) {
				return false
			}
		}
		return true
	case Function:
		bv := b.(Function)
		return av.Ref == bv.Ref
	case *Closure:
		bv := b.(*Closure)
		return av == bv
	case *NativeFn:
		bv := b.(*NativeFn)
		return av == bv
	case *Extern:
		bv := b.(*Extern)
		return av == bv
	case *Option:
		bv := b.(*Option)
		if av.Present != bv.Present {
			return false
		}
		if !av.Present {
			return true
		}
		return Equal(av.Inner, bv.Inner)
	case *Result:
		bv := b.(*Result)
		if av.IsOk != bv.IsOk {
			return false
		}
		return Equal(av.Inner, bv.Inner)
	case *JsonValue:
		bv := b.(*JsonValue)
		return av.Inspect() == bv.Inspect()
	default:
		return false
	}
}
