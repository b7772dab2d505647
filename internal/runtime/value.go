package runtime

import (
	"fmt"
	"strconv"
)

// ValueKind tags the four variants a Value can hold. Grounded on DYMS's
// RuntimeVal interface (runtime/value.go), but reworked into a tagged
// struct: primitives (nil/bool/number) don't need a heap allocation the
// way DYMS's *NumberVal/*BooleanVal did.
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindBool
	KindNumber
	KindObj
)

// Value is nqq's tagged sum type: Nil, Bool, Number or a reference to a
// heap Obj. Primitive variants are stored inline; Obj is a non-owning
// reference into the Heap's object graph.
type Value struct {
	kind    ValueKind
	boolean bool
	number  float64
	obj     Obj
}

var Nil = Value{kind: KindNil}

func Bool(b bool) Value    { return Value{kind: KindBool, boolean: b} }
func Number(n float64) Value { return Value{kind: KindNumber, number: n} }
func FromObj(o Obj) Value  { return Value{kind: KindObj, obj: o} }

func (v Value) IsNil() bool    { return v.kind == KindNil }
func (v Value) IsBool() bool   { return v.kind == KindBool }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsObj() bool    { return v.kind == KindObj }

func (v Value) AsBool() bool     { return v.boolean }
func (v Value) AsNumber() float64 { return v.number }
func (v Value) AsObj() Obj       { return v.obj }

func (v Value) ObjKind() (ObjKind, bool) {
	if v.kind != KindObj {
		return 0, false
	}
	return v.obj.Kind(), true
}

func (v Value) IsString() bool { k, ok := v.ObjKind(); return ok && k == ObjString }
func (v Value) AsString() *StringObj { return v.obj.(*StringObj) }

func (v Value) IsList() bool { k, ok := v.ObjKind(); return ok && k == ObjList }
func (v Value) AsList() *ListObj { return v.obj.(*ListObj) }

func (v Value) IsMap() bool { k, ok := v.ObjKind(); return ok && k == ObjMap }
func (v Value) AsMap() *MapObj { return v.obj.(*MapObj) }

func (v Value) IsCallable() bool {
	k, ok := v.ObjKind()
	return ok && (k == ObjClosure || k == ObjNative)
}

// Truthy reports the language's truthiness rule: only Nil and Bool(false)
// are falsey. Zero, empty strings, empty lists/maps are all truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.boolean
	default:
		return true
	}
}

// Equal implements structural equality for primitives, identity for
// heap objects — except interned strings, which are identity-equal by
// construction so pointer comparison already implements content equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.boolean == o.boolean
	case KindNumber:
		return v.number == o.number
	case KindObj:
		return v.obj == o.obj
	}
	return false
}

// String renders a value the way the `print`/`write` natives do.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case KindNumber:
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	case KindObj:
		return objString(v.obj)
	}
	return "<invalid>"
}

func objString(o Obj) string {
	switch ov := o.(type) {
	case *StringObj:
		return ov.Chars
	case *FunctionObj:
		if ov.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", ov.Name.Chars)
	case *ClosureObj:
		return objString(ov.Function)
	case *NativeObj:
		return fmt.Sprintf("<native %s>", ov.Name)
	case *UpvalueObj:
		return "<upvalue>"
	case *ListObj:
		s := "["
		for i, item := range ov.Items {
			if i > 0 {
				s += ", "
			}
			if item.IsString() {
				s += "'" + item.String() + "'"
			} else {
				s += item.String()
			}
		}
		return s + "]"
	case *MapObj:
		return ov.Table.String()
	default:
		return "<obj>"
	}
}

// TypeName names a value's kind the way runtime error messages report it.
func (v Value) TypeName() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindObj:
		switch v.obj.Kind() {
		case ObjString:
			return "string"
		case ObjFunction, ObjClosure, ObjNative:
			return "function"
		case ObjList:
			return "list"
		case ObjMap:
			return "map"
		case ObjUpvalue:
			return "upvalue"
		}
	}
	return "unknown"
}
