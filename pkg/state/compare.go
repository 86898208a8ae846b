package state

import "reflect"

// Comparer reports whether two values should be treated as the same value.
type Comparer func(a, b any) bool

// Identical is the default Comparer. Maps, slices, pointers, channels and
// funcs compare by reference; other values compare with ==. Values that
// cannot be compared are never identical.
func Identical(a, b any) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if !va.Type().Comparable() {
		return false
	}
	// Structs and arrays may still hold uncomparable values behind interfaces.
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// Equal is a structural Comparer backed by reflect.DeepEqual.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
