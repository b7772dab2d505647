package runtime

import "unsafe"

// pointerOf returns the object's address for identity hashing of
// non-string heap keys: a stable identity-derived hash built from the
// low bits of the object's address.
func pointerOf(o Obj) unsafe.Pointer {
	switch v := o.(type) {
	case *StringObj:
		return unsafe.Pointer(v)
	case *FunctionObj:
		return unsafe.Pointer(v)
	case *ClosureObj:
		return unsafe.Pointer(v)
	case *UpvalueObj:
		return unsafe.Pointer(v)
	case *NativeObj:
		return unsafe.Pointer(v)
	case *ListObj:
		return unsafe.Pointer(v)
	case *MapObj:
		return unsafe.Pointer(v)
	}
	return nil
}
