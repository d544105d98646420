package dap

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ctagard/dap-dump/internal/bridge"
)

// nativeType implements bridge.NativeType over parsed debugger output.
// Targets, fields and template arguments are resolved on first use.
type nativeType struct {
	b      *Bridge
	name   string
	kind   bridge.Kind
	size   int64
	signed bool

	targetName string
	decl       *typeDecl

	mu         sync.Mutex
	target     bridge.NativeType
	targetDone bool
	fields     []bridge.NativeField
	fieldsDone bool
}

func (t *nativeType) Name() string      { return t.name }
func (t *nativeType) Kind() bridge.Kind { return t.kind }
func (t *nativeType) Size() int64       { return t.size }
func (t *nativeType) Signed() bool      { return t.signed }

func (t *nativeType) Target() bridge.NativeType {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.targetDone {
		t.targetDone = true
		if t.targetName != "" {
			t.target = t.b.lazyType(t.targetName, -1)
		}
	}
	return t.target
}

func (t *nativeType) Enumerators() []bridge.Enumerator {
	if t.decl == nil {
		return nil
	}
	return t.decl.Enumerators
}

func (t *nativeType) TemplateArgument(pos int) (bridge.TemplateArg, bool) {
	args := templateArgs(t.name)
	if pos < 0 || pos >= len(args) {
		return bridge.TemplateArg{}, false
	}
	arg := args[pos]
	if v, ok := parseIntegralArg(arg); ok {
		return bridge.TemplateArg{Value: v, IsValue: true}, true
	}
	at := t.b.lazyType(arg, -1)
	if at.Kind() == bridge.KindUnknown && at.Size() < 0 {
		return bridge.TemplateArg{}, false
	}
	return bridge.TemplateArg{Type: at}, true
}

var integralArg = regexp.MustCompile(`^(?:\([^()]*\))?(-?(?:0x[0-9a-fA-F]+|\d+))[uUlL]*$`)

// parseIntegralArg recognizes value template arguments such as "256",
// "4u" or "(Qt::Orientation)2".
func parseIntegralArg(s string) (int64, bool) {
	if s == "true" {
		return 1, true
	}
	if s == "false" {
		return 0, true
	}
	m := integralArg.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseInt(m[1], 0, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (t *nativeType) Fields() []bridge.NativeField {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fieldsDone || t.decl == nil {
		return t.fields
	}
	t.fieldsDone = true

	for i, base := range t.decl.Bases {
		bt := t.b.lazyType(base.Name, -1)
		f := bridge.NativeField{Name: base.Name, Type: bt, BitSize: 8 * max(bt.Size(), 0), IsBaseClass: true}
		switch {
		case base.Virtual:
			f.BitPos = -1
		case i == 0 && len(t.decl.Bases) == 1 && !t.hasVPtr():
			f.BitPos = 0
		default:
			f.BitPos = 8 * t.b.baseOffset(t.name, base.Name)
		}
		t.fields = append(t.fields, f)
	}
	for _, fd := range t.decl.Fields {
		var ft bridge.NativeType
		if fd.Nested != nil {
			ft = t.b.fromDecl(fd.Nested, "")
		} else {
			ft = t.b.lazyType(fd.TypeName, fd.Size)
		}
		t.fields = append(t.fields, bridge.NativeField{
			Name:    fd.Name,
			Type:    ft,
			BitPos:  fd.BitPos,
			BitSize: fd.BitSize,
		})
	}
	return t.fields
}

// hasVPtr reports whether the class itself declares a vtable pointer,
// which displaces a base that has none.
func (t *nativeType) hasVPtr() bool {
	for _, f := range t.decl.Fields {
		if strings.HasPrefix(f.Name, "_vptr") {
			return true
		}
	}
	return false
}

// builtinScalar describes a fundamental type by name. ok is false for
// anything that is not spelled with fundamental type keywords only.
func builtinScalar(name string, target bridge.TargetInfo) (kind bridge.Kind, size int64, signed bool, ok bool) {
	var unsigned, short, hasInt, hasChar bool
	longs := 0
	base := ""
	for _, w := range strings.Fields(name) {
		switch w {
		case "const", "volatile":
		case "signed":
		case "unsigned":
			unsigned = true
		case "short":
			short = true
		case "long":
			longs++
		case "int":
			hasInt = true
		case "char":
			hasChar = true
		case "void", "bool", "float", "double", "wchar_t", "char8_t", "char16_t", "char32_t", "__int128":
			if base != "" {
				return 0, 0, false, false
			}
			base = w
		default:
			return 0, 0, false, false
		}
	}
	windows := target.OS == bridge.OSWindows
	longSize := int64(target.PointerSize)
	if windows {
		longSize = 4
	}
	switch base {
	case "void":
		return bridge.KindVoid, 1, false, true
	case "bool":
		return bridge.KindBool, 1, false, true
	case "float":
		return bridge.KindFloat, 4, true, true
	case "double":
		switch {
		case longs == 0:
			return bridge.KindFloat, 8, true, true
		case windows:
			return bridge.KindFloat, 8, true, true
		case target.PointerSize == 4:
			return bridge.KindFloat, 12, true, true
		}
		return bridge.KindFloat, 16, true, true
	case "wchar_t":
		if windows {
			return bridge.KindChar, 2, false, true
		}
		return bridge.KindChar, 4, true, true
	case "char8_t":
		return bridge.KindChar, 1, false, true
	case "char16_t":
		return bridge.KindChar, 2, false, true
	case "char32_t":
		return bridge.KindChar, 4, false, true
	case "__int128":
		return bridge.KindInt, 16, !unsigned, true
	}
	switch {
	case hasChar:
		return bridge.KindChar, 1, !unsigned, true
	case short:
		return bridge.KindInt, 2, !unsigned, true
	case longs >= 2:
		return bridge.KindInt, 8, !unsigned, true
	case longs == 1:
		return bridge.KindInt, longSize, !unsigned, true
	case hasInt, unsigned:
		return bridge.KindInt, 4, !unsigned, true
	}
	return 0, 0, false, false
}

var arrayName = regexp.MustCompile(`^(.*?)\s*\[(\d*)\]((?:\[\d*\])*)$`)

// derivedType builds pointer, reference, array and function pointer types
// from their spelling. ok is false for names without such a declarator.
func (b *Bridge) derivedType(ctx context.Context, name string, target bridge.TargetInfo) (bridge.NativeType, bool, error) {
	ptr := int64(target.PointerSize)
	switch {
	case strings.Contains(name, "(*)"):
		fn := strings.TrimSpace(strings.Replace(name, "(*)", "", 1))
		return &nativeType{
			b: b, name: name, kind: bridge.KindPointer, size: ptr,
			target: &nativeType{b: b, name: fn, kind: bridge.KindFunction, size: 1}, targetDone: true,
		}, true, nil
	case strings.HasSuffix(name, "&&"):
		return &nativeType{b: b, name: name, kind: bridge.KindRValueReference, size: ptr,
			targetName: strings.TrimSpace(strings.TrimSuffix(name, "&&"))}, true, nil
	case strings.HasSuffix(name, "&"):
		return &nativeType{b: b, name: name, kind: bridge.KindReference, size: ptr,
			targetName: strings.TrimSpace(strings.TrimSuffix(name, "&"))}, true, nil
	case strings.HasSuffix(name, "*"), strings.HasSuffix(name, "* const"):
		inner := strings.TrimSpace(strings.TrimSuffix(name, " const"))
		return &nativeType{b: b, name: name, kind: bridge.KindPointer, size: ptr,
			targetName: strings.TrimSpace(strings.TrimSuffix(inner, "*"))}, true, nil
	}
	m := arrayName.FindStringSubmatch(name)
	if m == nil {
		return nil, false, nil
	}
	elemName := m[1]
	if m[3] != "" {
		elemName += " " + m[3]
	}
	elem, err := b.resolve(ctx, elemName)
	if err != nil {
		return nil, true, err
	}
	n, _ := strconv.ParseInt(m[2], 10, 64)
	size := int64(-1)
	if elem.Size() >= 0 {
		size = n * elem.Size()
	}
	return &nativeType{b: b, name: name, kind: bridge.KindArray, size: size,
		target: elem, targetDone: true}, true, nil
}

// fromDecl turns a parsed aggregate or enum into a native type named
// name, or the printed name when name is empty.
func (b *Bridge) fromDecl(d *typeDecl, name string) *nativeType {
	if name == "" {
		name = d.Name
	}
	t := &nativeType{b: b, name: name, size: d.Size, decl: d}
	switch d.Keyword {
	case "union":
		t.kind = bridge.KindUnion
	case "enum":
		t.kind = bridge.KindEnum
		t.signed = true
		if d.Underlying != "" {
			if _, size, signed, ok := builtinScalar(d.Underlying, b.targetInfo()); ok {
				t.size, t.signed = size, signed
			}
		}
	default:
		t.kind = bridge.KindStruct
	}
	return t
}

// unknownType stands in for a type the debugger could not describe.
func (b *Bridge) unknownType(name string, size int64) *nativeType {
	return &nativeType{b: b, name: name, kind: bridge.KindUnknown, size: size}
}

func (t *nativeType) String() string {
	return fmt.Sprintf("%s(%s, %d)", t.kind, t.name, t.size)
}
