// Package bridge defines the contract between the dump engine and the
// native debugger that owns the inspected process.
//
// Everything the engine knows about the debuggee arrives through a
// NativeBridge: raw memory, native type handles, symbol addresses and
// expression evaluation. Every call returns a Result so callers decide
// per call whether a failure is contained or fatal (errors.CodeTargetLost).
package bridge

import (
	"context"
	"fmt"
	"strings"
)

// Kind classifies a native type handle.
type Kind int

const (
	KindUnknown Kind = iota
	KindVoid
	KindInt
	KindBool
	KindChar
	KindFloat
	KindComplex
	KindPointer
	KindReference
	KindRValueReference
	KindArray
	KindTypedef
	KindStruct
	KindUnion
	KindEnum
	KindFunction
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindVoid:            "void",
	KindInt:             "int",
	KindBool:            "bool",
	KindChar:            "char",
	KindFloat:           "float",
	KindComplex:         "complex",
	KindPointer:         "pointer",
	KindReference:       "reference",
	KindRValueReference: "rvalue-reference",
	KindArray:           "array",
	KindTypedef:         "typedef",
	KindStruct:          "struct",
	KindUnion:           "union",
	KindEnum:            "enum",
	KindFunction:        "function",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// NativeType is a debugger-owned type handle.
type NativeType interface {
	// Name is the type's spelled name; empty for anonymous types.
	Name() string
	Kind() Kind
	// Size in bytes, or -1 when unknown (incomplete types).
	Size() int64
	// Target is the pointee, referee, element or aliased type; nil otherwise.
	Target() NativeType
	Fields() []NativeField
	// TemplateArgument returns the pos'th template argument. ok is false
	// past the last argument.
	TemplateArgument(pos int) (arg TemplateArg, ok bool)
	Enumerators() []Enumerator
	Signed() bool
}

// NativeField is one member or base class of a struct or union.
type NativeField struct {
	Name string
	Type NativeType
	// BitPos is the offset in bits from the start of the enclosing object.
	// Virtual bases report a negative position.
	BitPos      int64
	BitSize     int64
	IsBaseClass bool
}

// IsVirtualBase reports whether the field is a virtually inherited base.
func (f NativeField) IsVirtualBase() bool {
	return f.IsBaseClass && f.BitPos < 0
}

// TemplateArg is a template parameter: a type, or an integral constant.
type TemplateArg struct {
	Type    NativeType
	Value   int64
	IsValue bool
}

// Enumerator is a named enum constant.
type Enumerator struct {
	Name  string
	Value int64
}

// NativeValue is a debugger-owned value handle.
type NativeValue interface {
	// Name is the expression or variable name the value was obtained from.
	Name() string
	Type() NativeType
	// Address of the value in the inspected process; ok is false for
	// registers, temporaries and optimized-out values.
	Address() (addr uint64, ok bool)
	// Bytes holds the value's contents when it has no address.
	Bytes() []byte
	OptimizedOut() bool
}

// OS identifies the target's ABI family for layout selection.
type OS string

const (
	OSUnknown OS = ""
	OSLinux   OS = "linux"
	OSDarwin  OS = "darwin"
	OSWindows OS = "windows"
)

// ParseOS maps a debugger's ABI string onto an OS.
func ParseOS(s string) OS {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "windows"), strings.Contains(s, "mingw"), strings.Contains(s, "cygwin"):
		return OSWindows
	case strings.Contains(s, "darwin"), strings.Contains(s, "macos"), strings.Contains(s, "apple"):
		return OSDarwin
	case strings.Contains(s, "linux"), strings.Contains(s, "gnu"):
		return OSLinux
	}
	return OSUnknown
}

// TargetInfo describes the inspected process.
type TargetInfo struct {
	PointerSize int
	OS          OS
	BigEndian   bool
}

// MethodTarget names the object a method is invoked on.
type MethodTarget struct {
	TypeName string
	Address  uint64
}

// Expression renders the C++ call expression for method on t.
func (t MethodTarget) Expression(method string, args ...string) string {
	return fmt.Sprintf("((%s*)0x%x)->%s(%s)", t.TypeName, t.Address, method, strings.Join(args, ","))
}

// NativeBridge is the engine's only view of the inspected process.
type NativeBridge interface {
	Target(ctx context.Context) Result[TargetInfo]
	// ReadMemory returns size bytes at addr. It succeeds with an empty
	// slice when addr or size is zero.
	ReadMemory(ctx context.Context, addr uint64, size int) Result[[]byte]
	ResolveType(ctx context.Context, name string) Result[NativeType]
	// ResolveSymbolAddress returns 0 for unknown symbols.
	ResolveSymbolAddress(ctx context.Context, name string) Result[uint64]
	// Evaluate may resume the debuggee when expr contains calls.
	Evaluate(ctx context.Context, expr string) Result[NativeValue]
	// CallMethod resumes the debuggee.
	CallMethod(ctx context.Context, target MethodTarget, method string, args ...string) Result[NativeValue]
}

// LocalsLister is implemented by bridges that can enumerate the locals of
// the selected frame.
type LocalsLister interface {
	Locals(ctx context.Context) Result[[]NativeValue]
}

// BreakpointSetter is implemented by bridges that can install function
// breakpoints. It returns the number of breakpoints the debugger verified.
type BreakpointSetter interface {
	SetFunctionBreakpoints(ctx context.Context, functions []string) Result[int]
}

// StripTypedefs follows typedef chains to the underlying type.
func StripTypedefs(t NativeType) NativeType {
	for t != nil && t.Kind() == KindTypedef {
		next := t.Target()
		if next == nil {
			return t
		}
		t = next
	}
	return t
}
