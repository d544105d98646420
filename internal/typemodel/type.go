// Package typemodel holds the debugger-agnostic description of types and
// values that the dump engine works on.
package typemodel

import (
	"fmt"
	"strings"
)

// Code is the storage class of a Type.
type Code int

const (
	CodeUnresolvable Code = iota
	CodeVoid
	CodeIntegral
	CodeFloat
	CodeComplex
	CodePointer
	CodeReference
	CodeArray
	CodeTypedef
	CodeStruct
	CodeUnion
	CodeEnum
	CodeBitfield
	CodeFunction
)

var codeNames = [...]string{
	CodeUnresolvable: "unresolvable",
	CodeVoid:         "void",
	CodeIntegral:     "integral",
	CodeFloat:        "float",
	CodeComplex:      "complex",
	CodePointer:      "pointer",
	CodeReference:    "reference",
	CodeArray:        "array",
	CodeTypedef:      "typedef",
	CodeStruct:       "struct",
	CodeUnion:        "union",
	CodeEnum:         "enum",
	CodeBitfield:     "bitfield",
	CodeFunction:     "function",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// TemplateArg is one template argument: a Type, or an integral constant.
type TemplateArg struct {
	Type    *Type
	Value   int64
	IsValue bool
}

func (a TemplateArg) String() string {
	if a.IsValue {
		return fmt.Sprint(a.Value)
	}
	if a.Type == nil {
		return ""
	}
	return a.Type.Name
}

// Enumerator is a named enum constant.
type Enumerator struct {
	Name  string
	Value int64
}

// Type is the canonical description of a type. Types are shared: once
// registered in a Registry they are never mutated except for lazily
// computed fields and alignment.
type Type struct {
	// ID is the stable structural key. Two structurally identical native
	// types map to the same ID.
	ID string
	// Name is the display name. For typedefs it is the alias name.
	Name    string
	Code    Code
	BitSize int64
	// Target is the pointee, referee, array element, typedef target or
	// bitfield's underlying type.
	Target *Type
	// Length is the element count of an array.
	Length       int64
	Signed       bool
	TemplateArgs []TemplateArg
	Enumerators  []Enumerator
	// Deep is set when field offsets must be resolved per value.
	Deep bool

	fields        []Field
	fieldsDone    bool
	fieldResolver func() []Field
	align         int64
}

// Unresolvable returns a placeholder for a type the debugger does not know.
func Unresolvable(name string) *Type {
	return &Type{ID: name, Name: name, Code: CodeUnresolvable}
}

// Size returns the size in bytes.
func (t *Type) Size() int64 {
	return t.BitSize / 8
}

// Fields returns the member list, resolving it on first use.
func (t *Type) Fields() []Field {
	if !t.fieldsDone {
		if t.fieldResolver != nil {
			t.fields = t.fieldResolver()
		}
		t.fieldsDone = true
		t.fieldResolver = nil
	}
	return t.fields
}

// SetFields installs an already-known member list.
func (t *Type) SetFields(fields []Field) {
	t.fields = fields
	t.fieldsDone = true
	t.fieldResolver = nil
}

// SetFieldResolver defers member resolution to the first Fields call.
func (t *Type) SetFieldResolver(fn func() []Field) {
	t.fieldResolver = fn
	t.fieldsDone = false
}

// Stripped follows typedefs to the structural type.
func (t *Type) Stripped() *Type {
	for t != nil && t.Code == CodeTypedef && t.Target != nil {
		t = t.Target
	}
	return t
}

// IsPointer reports whether t (after typedefs) is a pointer.
func (t *Type) IsPointer() bool {
	return t.Stripped().Code == CodePointer
}

// IsCompound reports whether t (after typedefs) has fields.
func (t *Type) IsCompound() bool {
	c := t.Stripped().Code
	return c == CodeStruct || c == CodeUnion
}

// Alignment returns the natural alignment in bytes, computing it on first use.
func (t *Type) Alignment() int64 {
	if t.align != 0 {
		return t.align
	}
	var a int64 = 1
	switch t.Code {
	case CodeTypedef, CodeArray, CodeBitfield:
		if t.Target != nil {
			a = t.Target.Alignment()
		}
	case CodeStruct, CodeUnion:
		for _, f := range t.Fields() {
			if f.Type == nil {
				continue
			}
			if fa := f.Type.Alignment(); fa > a {
				a = fa
			}
		}
	case CodeComplex:
		a = t.Size() / 2
	default:
		if s := t.Size(); s > 0 {
			a = s
		}
	}
	if a < 1 {
		a = 1
	}
	t.align = a
	return a
}

// TemplateArgument returns the pos'th template argument.
func (t *Type) TemplateArgument(pos int) (TemplateArg, bool) {
	s := t.Stripped()
	if pos < 0 || pos >= len(s.TemplateArgs) {
		return TemplateArg{}, false
	}
	return s.TemplateArgs[pos], true
}

// FieldByName returns the first member called name.
func (t *Type) FieldByName(name string) (Field, bool) {
	for _, f := range t.Stripped().Fields() {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// EnumDisplay renders v as "Name (v)", as "A | B (v)" for flag
// combinations, or as the bare number.
func (t *Type) EnumDisplay(v int64) string {
	s := t.Stripped()
	for _, e := range s.Enumerators {
		if e.Value == v {
			return fmt.Sprintf("%s (%d)", e.Name, v)
		}
	}
	if v > 0 {
		var names []string
		rest := v
		for _, e := range s.Enumerators {
			if e.Value > 0 && e.Value&(e.Value-1) == 0 && rest&e.Value != 0 {
				names = append(names, e.Name)
				rest &^= e.Value
			}
		}
		if rest == 0 && len(names) > 0 {
			return fmt.Sprintf("%s (%d)", strings.Join(names, " | "), v)
		}
	}
	return fmt.Sprint(v)
}

func (t *Type) String() string {
	return t.Name
}

// Field is a member of a struct or union.
type Field struct {
	// Name is empty for anonymous members.
	Name string
	Type *Type
	// BitOffset is relative to the start of the enclosing object and is
	// only meaningful when OffsetKnown is set.
	BitOffset    int64
	OffsetKnown  bool
	BitSize      int64
	IsBaseClass  bool
	IsArtificial bool
}

// NewField builds a field, retyping it as a bitfield when bitSize differs
// from the natural size of t.
func NewField(name string, t *Type, bitOffset, bitSize int64) Field {
	f := Field{Name: name, Type: t, BitOffset: bitOffset, OffsetKnown: true, BitSize: bitSize}
	if t != nil && bitSize > 0 && bitSize != t.BitSize {
		f.Type = NewBitfield(t, bitSize)
	}
	if f.BitSize == 0 && t != nil {
		f.BitSize = t.BitSize
	}
	return f
}

// NewBitfield returns a Bitfield type of width bits over base.
func NewBitfield(base *Type, bits int64) *Type {
	return &Type{
		ID:      fmt.Sprintf("%s:%d", base.ID, bits),
		Name:    base.Name,
		Code:    CodeBitfield,
		BitSize: bits,
		Target:  base,
		Signed:  base.Stripped().Signed,
	}
}

// IsBitfield reports whether the field's type is a Bitfield.
func (f Field) IsBitfield() bool {
	return f.Type != nil && f.Type.Code == CodeBitfield
}

// DisplayName returns the field name used for output; anonymous members
// are numbered by position.
func (f Field) DisplayName(index int) string {
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("#%d", index)
}
