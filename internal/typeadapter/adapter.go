// Package typeadapter converts native debugger handles into the canonical
// typemodel representation and caches the result per session.
package typeadapter

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ctagard/dap-dump/internal/bridge"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

// Adapter resolves native types and values. It is not safe for concurrent
// use; one Adapter belongs to one dump session.
type Adapter struct {
	nb      bridge.NativeBridge
	reg     *typemodel.Registry
	ptrSize int
	order   binary.ByteOrder
	logger  *slog.Logger

	natives map[string]bridge.NativeType
	deep    map[string]bool
}

// New creates an Adapter over nb that caches into reg.
func New(nb bridge.NativeBridge, reg *typemodel.Registry, target bridge.TargetInfo, logger *slog.Logger) *Adapter {
	var order binary.ByteOrder = binary.LittleEndian
	if target.BigEndian {
		order = binary.BigEndian
	}
	ptr := target.PointerSize
	if ptr == 0 {
		ptr = 8
	}
	return &Adapter{
		nb:      nb,
		reg:     reg,
		ptrSize: ptr,
		order:   order,
		logger:  logger,
		natives: make(map[string]bridge.NativeType),
		deep:    make(map[string]bool),
	}
}

// Registry returns the type cache the adapter fills.
func (a *Adapter) Registry() *typemodel.Registry {
	return a.reg
}

// TypeID returns the structural key of nt: its name, or for anonymous
// aggregates a kind letter followed by "{field:typeId}" per member.
func (a *Adapter) TypeID(nt bridge.NativeType) string {
	if nt == nil {
		return ""
	}
	name := nt.Name()
	var c string
	switch {
	case name == "" && nt.Kind() == bridge.KindUnion, name == "union {...}":
		c = "u"
	case name == "" && nt.Kind() == bridge.KindStruct, strings.HasSuffix(name, "{...}"):
		c = "s"
	case name == "":
		c = "0"
	default:
		return name
	}
	var sb strings.Builder
	sb.WriteString(c)
	if target := nt.Target(); target != nil {
		switch nt.Kind() {
		case bridge.KindArray:
			fmt.Fprintf(&sb, "[%s;%d]", a.TypeID(target), nt.Size())
		default:
			fmt.Fprintf(&sb, "<%s:%s>", nt.Kind(), a.TypeID(target))
		}
	}
	for _, f := range nt.Fields() {
		fmt.Fprintf(&sb, "{%s:%s}", f.Name, a.TypeID(f.Type))
	}
	return sb.String()
}

// FromNativeType returns the cached Type for nt, building it on first use.
// nv, when given, lets an incomplete type be completed by name.
func (a *Adapter) FromNativeType(ctx context.Context, nt bridge.NativeType, nv bridge.NativeValue) *typemodel.Type {
	if nt == nil {
		return typemodel.Unresolvable("")
	}
	id := a.TypeID(nt)
	if t, ok := a.reg.Lookup(id); ok {
		return t
	}
	if nt.Size() < 0 && nt.Name() != "" && nv != nil {
		if r := a.nb.ResolveType(ctx, nt.Name()); r.IsOk() && r.Value().Size() >= 0 {
			nt = r.Value()
		}
	}
	t := a.build(ctx, nt, id)
	t.ID = id
	if t.Code != typemodel.CodeUnresolvable {
		a.natives[t.ID] = nt
	}
	return a.reg.Register(t)
}

func (a *Adapter) build(ctx context.Context, nt bridge.NativeType, id string) *typemodel.Type {
	name := nt.Name()
	t := &typemodel.Type{ID: id, Name: name, BitSize: 8 * nt.Size(), Signed: nt.Signed()}
	if t.BitSize < 0 {
		t.BitSize = 0
	}

	switch nt.Kind() {
	case bridge.KindVoid:
		t.Code = typemodel.CodeVoid
	case bridge.KindInt, bridge.KindBool, bridge.KindChar:
		t.Code = typemodel.CodeIntegral
	case bridge.KindFloat:
		t.Code = typemodel.CodeFloat
	case bridge.KindComplex:
		t.Code = typemodel.CodeComplex
	case bridge.KindFunction:
		t.Code = typemodel.CodeFunction

	case bridge.KindPointer, bridge.KindReference, bridge.KindRValueReference:
		target := a.voidType()
		if nt.Target() != nil {
			target = a.FromNativeType(ctx, nt.Target(), nil)
		}
		t.Target = target
		t.BitSize = int64(8 * a.ptrSize)
		t.Code = typemodel.CodePointer
		suffix := " *"
		if nt.Kind() != bridge.KindPointer {
			t.Code = typemodel.CodeReference
			suffix = " &"
			if nt.Kind() == bridge.KindRValueReference {
				suffix = " &&"
			}
		}
		if t.Name == "" {
			t.Name = target.Name + suffix
		}

	case bridge.KindTypedef:
		stripped := bridge.StripTypedefs(nt)
		if stripped == nil || stripped == nt {
			return typemodel.Unresolvable(name)
		}
		target := a.FromNativeType(ctx, stripped, nil)
		t.Code = typemodel.CodeTypedef
		t.Target = target
		t.BitSize = target.BitSize

	case bridge.KindArray:
		elem := a.FromNativeType(ctx, nt.Target(), nil)
		if elem.Size() == 0 {
			return typemodel.Unresolvable(name)
		}
		t.Code = typemodel.CodeArray
		t.Target = elem
		if nt.Size() > 0 {
			t.Length = nt.Size() / elem.Size()
		}
		if t.Name == "" {
			t.Name = fmt.Sprintf("%s[%d]", elem.Name, t.Length)
		}

	case bridge.KindEnum:
		t.Code = typemodel.CodeEnum
		for _, e := range nt.Enumerators() {
			t.Enumerators = append(t.Enumerators, typemodel.Enumerator{Name: e.Name, Value: e.Value})
		}

	case bridge.KindStruct, bridge.KindUnion:
		t.Code = typemodel.CodeStruct
		if nt.Kind() == bridge.KindUnion {
			t.Code = typemodel.CodeUnion
		}
		t.TemplateArgs = a.templateArguments(ctx, nt)
		t.Deep = a.NeedsDeep(nt)
		lazy := context.WithoutCancel(ctx)
		t.SetFieldResolver(func() []typemodel.Field {
			return a.simpleFields(lazy, nt)
		})

	default:
		return typemodel.Unresolvable(name)
	}
	return t
}

func (a *Adapter) voidType() *typemodel.Type {
	return a.reg.Register(&typemodel.Type{ID: "void", Name: "void", Code: typemodel.CodeVoid, BitSize: 8})
}

// templateArguments enumerates arguments until the native lookup fails.
func (a *Adapter) templateArguments(ctx context.Context, nt bridge.NativeType) []typemodel.TemplateArg {
	var args []typemodel.TemplateArg
	for pos := 0; ; pos++ {
		arg, ok := nt.TemplateArgument(pos)
		if !ok {
			return args
		}
		if arg.IsValue {
			args = append(args, typemodel.TemplateArg{Value: arg.Value, IsValue: true})
			continue
		}
		args = append(args, typemodel.TemplateArg{Type: a.FromNativeType(ctx, arg.Type, nil)})
	}
}

func (a *Adapter) simpleFields(ctx context.Context, nt bridge.NativeType) []typemodel.Field {
	natives := nt.Fields()
	fields := make([]typemodel.Field, 0, len(natives))
	for _, nf := range natives {
		ft := a.FromNativeType(ctx, nf.Type, nil)
		if nf.IsVirtualBase() {
			fields = append(fields, typemodel.Field{
				Name:        baseName(nf, ft),
				Type:        ft,
				BitSize:     ft.BitSize,
				IsBaseClass: true,
			})
			continue
		}
		f := typemodel.NewField(nf.Name, ft, nf.BitPos, nf.BitSize)
		if nf.IsBaseClass {
			f.Name = baseName(nf, ft)
			f.IsBaseClass = true
		}
		fields = append(fields, f)
	}
	return fields
}

func baseName(nf bridge.NativeField, ft *typemodel.Type) string {
	if nf.Name != "" {
		return nf.Name
	}
	return ft.Name
}

// NeedsDeep reports whether field offsets of nt must be resolved per value:
// nt is at least pointer sized and some base class is virtual or itself
// needs deep resolution.
func (a *Adapter) NeedsDeep(nt bridge.NativeType) bool {
	nt = bridge.StripTypedefs(nt)
	if nt == nil {
		return false
	}
	id := a.TypeID(nt)
	if d, ok := a.deep[id]; ok {
		return d
	}
	a.deep[id] = false
	result := false
	if nt.Size() >= int64(a.ptrSize) {
		for _, f := range nt.Fields() {
			if !f.IsBaseClass {
				continue
			}
			if f.BitPos < 0 || a.NeedsDeep(f.Type) {
				result = true
				break
			}
		}
	}
	a.deep[id] = result
	return result
}

// LookupType resolves a type by name. Unknown names yield an Unresolvable
// type; only a lost target is reported as an error.
func (a *Adapter) LookupType(ctx context.Context, name string) (*typemodel.Type, error) {
	if t, ok := a.reg.Lookup(name); ok {
		return t, nil
	}
	r := a.nb.ResolveType(ctx, name)
	if !r.IsOk() {
		if r.Code() == errors.CodeTargetLost {
			return nil, r.Err()
		}
		a.logger.Debug("type lookup failed", "type", name, "error", r.Err())
		return a.reg.Register(typemodel.Unresolvable(name)), nil
	}
	t := a.FromNativeType(ctx, r.Value(), nil)
	if t.ID != name {
		if _, ok := a.reg.Lookup(name); !ok {
			alias := *t
			alias.ID = name
			a.reg.Register(&alias)
		}
	}
	return t, nil
}
