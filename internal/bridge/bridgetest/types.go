package bridgetest

import (
	"github.com/ctagard/dap-dump/internal/bridge"
)

// Type is a programmable bridge.NativeType.
type Type struct {
	TName   string
	TKind   bridge.Kind
	TSize   int64
	TTarget *Type
	TFields []bridge.NativeField
	TArgs   []bridge.TemplateArg
	TEnums  []bridge.Enumerator
	TSigned bool
}

func (t *Type) Name() string      { return t.TName }
func (t *Type) Kind() bridge.Kind { return t.TKind }
func (t *Type) Size() int64       { return t.TSize }
func (t *Type) Signed() bool      { return t.TSigned }
func (t *Type) Fields() []bridge.NativeField {
	return t.TFields
}
func (t *Type) Enumerators() []bridge.Enumerator {
	return t.TEnums
}

func (t *Type) Target() bridge.NativeType {
	if t.TTarget == nil {
		return nil
	}
	return t.TTarget
}

func (t *Type) TemplateArgument(pos int) (bridge.TemplateArg, bool) {
	if pos < 0 || pos >= len(t.TArgs) {
		return bridge.TemplateArg{}, false
	}
	return t.TArgs[pos], true
}

// Int returns an integral type.
func Int(name string, size int64, signed bool) *Type {
	return &Type{TName: name, TKind: bridge.KindInt, TSize: size, TSigned: signed}
}

// Char returns a character type.
func Char(name string, size int64, signed bool) *Type {
	return &Type{TName: name, TKind: bridge.KindChar, TSize: size, TSigned: signed}
}

// Bool returns the bool type.
func Bool() *Type {
	return &Type{TName: "bool", TKind: bridge.KindBool, TSize: 1}
}

// Float returns a floating point type.
func Float(name string, size int64) *Type {
	return &Type{TName: name, TKind: bridge.KindFloat, TSize: size, TSigned: true}
}

// Void returns void.
func Void() *Type {
	return &Type{TName: "void", TKind: bridge.KindVoid, TSize: 1}
}

// Pointer returns a pointer to target.
func Pointer(target *Type, ptrSize int64) *Type {
	return &Type{TName: target.TName + " *", TKind: bridge.KindPointer, TSize: ptrSize, TTarget: target}
}

// Reference returns an lvalue reference to target.
func Reference(target *Type, ptrSize int64) *Type {
	return &Type{TName: target.TName + " &", TKind: bridge.KindReference, TSize: ptrSize, TTarget: target}
}

// Array returns elem[n].
func Array(elem *Type, n int64) *Type {
	return &Type{TKind: bridge.KindArray, TSize: elem.TSize * n, TTarget: elem}
}

// Typedef returns an alias for target.
func Typedef(name string, target *Type) *Type {
	return &Type{TName: name, TKind: bridge.KindTypedef, TSize: target.TSize, TTarget: target}
}

// Struct returns a struct with the given fields.
func Struct(name string, size int64, fields ...bridge.NativeField) *Type {
	return &Type{TName: name, TKind: bridge.KindStruct, TSize: size, TFields: fields}
}

// Union returns a union with the given fields.
func Union(name string, size int64, fields ...bridge.NativeField) *Type {
	return &Type{TName: name, TKind: bridge.KindUnion, TSize: size, TFields: fields}
}

// Enum returns an enum with the given constants.
func Enum(name string, size int64, enums ...bridge.Enumerator) *Type {
	return &Type{TName: name, TKind: bridge.KindEnum, TSize: size, TEnums: enums, TSigned: true}
}

// Field places a member at a byte offset.
func Field(name string, t *Type, byteOffset int64) bridge.NativeField {
	return bridge.NativeField{Name: name, Type: t, BitPos: byteOffset * 8, BitSize: t.TSize * 8}
}

// BitField places a member at a bit offset with an explicit width.
func BitField(name string, t *Type, bitPos, bits int64) bridge.NativeField {
	return bridge.NativeField{Name: name, Type: t, BitPos: bitPos, BitSize: bits}
}

// Base places a non-virtual base class at a byte offset.
func Base(t *Type, byteOffset int64) bridge.NativeField {
	return bridge.NativeField{Name: t.TName, Type: t, BitPos: byteOffset * 8, BitSize: t.TSize * 8, IsBaseClass: true}
}

// VirtualBase declares a virtual base class.
func VirtualBase(t *Type) bridge.NativeField {
	return bridge.NativeField{Name: t.TName, Type: t, BitPos: -1, BitSize: t.TSize * 8, IsBaseClass: true}
}

// Template sets the template arguments of t and returns it.
func Template(t *Type, args ...*Type) *Type {
	t.TArgs = make([]bridge.TemplateArg, len(args))
	for i, a := range args {
		t.TArgs[i] = bridge.TemplateArg{Type: a}
	}
	return t
}
