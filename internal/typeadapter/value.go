package typeadapter

import (
	"context"
	"fmt"

	"github.com/ctagard/dap-dump/internal/bridge"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

// FromNativeValue converts a native value handle. References become live
// values at the referee's address; values without an address are copied.
func (a *Adapter) FromNativeValue(ctx context.Context, nv bridge.NativeValue) *typemodel.Value {
	nt := nv.Type()
	if nt == nil {
		v := typemodel.NotAddressable(typemodel.Unresolvable(""))
		v.Name = nv.Name()
		return v
	}
	t := a.FromNativeType(ctx, nt, nv)

	var v *typemodel.Value
	addr, hasAddr := nv.Address()
	switch {
	case nv.OptimizedOut():
		v = typemodel.NotAddressable(t)
		v.OptimizedOut = true
	case hasAddr:
		// Arrays behind typedefs are taken by address directly.
		v = typemodel.NewLive(t, addr)
	case len(nv.Bytes()) > 0:
		v = typemodel.NewSnapshot(t, nv.Bytes())
	default:
		v = typemodel.NotAddressable(t)
	}
	v.Name = nv.Name()
	return v
}

// Dereference returns the pointee of a pointer value. It never fails: an
// unreadable target yields a non-addressable value of the resolved type.
func (a *Adapter) Dereference(ctx context.Context, v *typemodel.Value, mem typemodel.Memory) (*typemodel.Value, error) {
	pt := v.Type.Stripped()
	target := pt.Target
	if target == nil {
		target = a.voidType()
	}
	if pt.Code == typemodel.CodeReference {
		addr, ok := v.Address()
		if !ok {
			return typemodel.NotAddressable(target), nil
		}
		return typemodel.NewLive(target, addr), nil
	}

	p, err := v.Pointer(ctx, mem)
	if err != nil {
		if errors.IsFatal(err) {
			return nil, err
		}
		return typemodel.NotAddressable(target), nil
	}
	if p == 0 {
		return typemodel.NotAddressable(target), nil
	}
	if _, err := mem.ReadMemory(ctx, p, 1); err != nil {
		if errors.IsFatal(err) {
			return nil, err
		}
		return typemodel.NotAddressable(target), nil
	}
	return typemodel.NewLive(target, p), nil
}

// FieldsFor returns the members of v. Types that need deep resolution get
// per-value offsets, cached in the registry arena under
// (root, typeId, baseOffset).
func (a *Adapter) FieldsFor(ctx context.Context, v *typemodel.Value) ([]typemodel.Field, error) {
	t := v.Type.Stripped()
	if !t.Deep || !v.IsLive() {
		return t.Fields(), nil
	}
	root := v.Root
	if root == "" {
		root = t.ID
	}
	key := typemodel.ArenaKey{Root: root, TypeID: t.ID, BaseOffset: v.BaseOffset}
	if fields, ok := a.reg.DeepFields(key); ok {
		return fields, nil
	}
	fields, err := a.deepFields(ctx, t, v)
	if err != nil {
		return nil, err
	}
	a.reg.StoreDeepFields(key, fields)
	return fields, nil
}

func (a *Adapter) deepFields(ctx context.Context, t *typemodel.Type, v *typemodel.Value) ([]typemodel.Field, error) {
	nt, ok := a.natives[t.ID]
	if !ok {
		return t.Fields(), nil
	}
	addr, _ := v.Address()
	var fields []typemodel.Field
	for _, nf := range nt.Fields() {
		ft := a.FromNativeType(ctx, nf.Type, nil)
		if !nf.IsVirtualBase() {
			f := typemodel.NewField(nf.Name, ft, nf.BitPos, nf.BitSize)
			if nf.IsBaseClass {
				f.Name = baseName(nf, ft)
				f.IsBaseClass = true
			}
			fields = append(fields, f)
			continue
		}

		vt := a.virtualBaseType(ft, t)
		f := typemodel.Field{Name: ft.Name, Type: vt, BitSize: vt.BitSize, IsBaseClass: true, IsArtificial: true}
		baseAddr, err := a.virtualBaseAddress(ctx, t.Name, ft.Name, addr)
		switch {
		case err != nil && errors.IsFatal(err):
			return nil, err
		case err != nil:
			a.logger.Debug("virtual base offset unavailable", "type", t.Name, "base", ft.Name, "error", err)
		default:
			f.BitOffset = 8 * (int64(baseAddr) - int64(addr))
			f.OffsetKnown = true
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// virtualBaseType returns the artificial type "<base> in <derived>" that
// carries the base's members.
func (a *Adapter) virtualBaseType(base, derived *typemodel.Type) *typemodel.Type {
	id := base.ID + " in " + derived.ID
	if t, ok := a.reg.Lookup(id); ok {
		return t
	}
	pure := base.Stripped()
	vt := &typemodel.Type{
		ID:           id,
		Name:         base.Name,
		Code:         pure.Code,
		BitSize:      pure.BitSize,
		TemplateArgs: pure.TemplateArgs,
		Deep:         pure.Deep,
	}
	vt.SetFieldResolver(pure.Fields)
	if nt, ok := a.natives[pure.ID]; ok {
		a.natives[id] = nt
	}
	return a.reg.Register(vt)
}

// virtualBaseAddress asks the debugger to perform the derived-to-base
// conversion, which follows the object's vtable.
func (a *Adapter) virtualBaseAddress(ctx context.Context, derived, base string, addr uint64) (uint64, error) {
	expr := fmt.Sprintf("(unsigned long long)(%s*)(%s*)0x%x", base, derived, addr)
	r := a.nb.Evaluate(ctx, expr)
	if !r.IsOk() {
		return 0, r.Err()
	}
	return a.NativeInteger(r.Value())
}

// NativeInteger reads an integral native value from its bytes.
func (a *Adapter) NativeInteger(nv bridge.NativeValue) (uint64, error) {
	data := nv.Bytes()
	if len(data) == 0 {
		return 0, errors.EvaluationFailed(nv.Name(), fmt.Errorf("value has no contents"))
	}
	if len(data) > 8 {
		data = data[:8]
	}
	if len(data) == 3 || len(data) > 4 && len(data) < 8 {
		padded := make([]byte, 8)
		copy(padded, data)
		data = padded
	}
	return typemodel.DecodeUint(data, a.order)
}
