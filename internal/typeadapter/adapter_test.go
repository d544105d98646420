package typeadapter

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/ctagard/dap-dump/internal/bridge"
	"github.com/ctagard/dap-dump/internal/bridge/bridgetest"
	"github.com/ctagard/dap-dump/internal/slogutil"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

type memory struct {
	b *bridgetest.Bridge
}

func (m memory) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	return m.b.ReadMemory(ctx, addr, size).Get()
}

func (m memory) ByteOrder() binary.ByteOrder { return binary.LittleEndian }
func (m memory) PointerSize() int            { return m.b.Info.PointerSize }

func memoryOf(b *bridgetest.Bridge) memory {
	return memory{b: b}
}

func newAdapter(b *bridgetest.Bridge) *Adapter {
	return New(b, typemodel.NewRegistry(), b.Info, slogutil.NewDiscardLogger())
}

func TestTypeID(t *testing.T) {
	b := bridgetest.New()
	a := newAdapter(b)
	i32 := bridgetest.Int("int", 4, true)

	tests := []struct {
		name string
		nt   bridge.NativeType
		want string
	}{
		{"named", bridgetest.Struct("Point", 8), "Point"},
		{"anonymous struct", bridgetest.Struct("", 8, bridgetest.Field("x", i32, 0), bridgetest.Field("y", i32, 4)), "s{x:int}{y:int}"},
		{"anonymous union", bridgetest.Union("", 4, bridgetest.Field("i", i32, 0)), "u{i:int}"},
		{"gdb spelling", bridgetest.Struct("struct {...}", 4, bridgetest.Field("a", i32, 0)), "s{a:int}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.TypeID(tt.nt); got != tt.want {
				t.Errorf("TypeID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromNativeType_Cached(t *testing.T) {
	b := bridgetest.New()
	a := newAdapter(b)
	ctx := context.Background()
	i32 := bridgetest.Int("int", 4, true)

	// Two distinct handles describing the same anonymous struct.
	s1 := bridgetest.Struct("", 4, bridgetest.Field("v", i32, 0))
	s2 := bridgetest.Struct("", 4, bridgetest.Field("v", i32, 0))

	t1 := a.FromNativeType(ctx, s1, nil)
	before := a.Registry().Registrations()
	t2 := a.FromNativeType(ctx, s2, nil)
	if t1 != t2 || t1.ID != t2.ID {
		t.Fatalf("structurally identical types resolved to %q and %q", t1.ID, t2.ID)
	}
	if a.Registry().Registrations() != before {
		t.Error("second resolution registered a new type")
	}
}

func TestFromNativeType_Kinds(t *testing.T) {
	b := bridgetest.New()
	a := newAdapter(b)
	ctx := context.Background()
	i32 := bridgetest.Int("int", 4, true)

	inner := bridgetest.Typedef("qint32", i32)
	outer := bridgetest.Typedef("MyInt", inner)
	td := a.FromNativeType(ctx, outer, nil)
	if td.Code != typemodel.CodeTypedef || td.Name != "MyInt" || td.Target.Name != "int" {
		t.Errorf("typedef chain resolved to %+v", td)
	}
	if td.Stripped().Code != typemodel.CodeIntegral {
		t.Errorf("Stripped() = %v", td.Stripped().Code)
	}

	arr := a.FromNativeType(ctx, bridgetest.Array(i32, 5), nil)
	if arr.Code != typemodel.CodeArray || arr.Length != 5 || arr.Name != "int[5]" {
		t.Errorf("array resolved to %+v", arr)
	}

	empty := bridgetest.Struct("Empty", 0)
	zero := a.FromNativeType(ctx, bridgetest.Array(empty, 3), nil)
	if zero.Code != typemodel.CodeUnresolvable {
		t.Errorf("zero-size element must be unresolvable, got %v", zero.Code)
	}

	ptr := a.FromNativeType(ctx, &bridgetest.Type{TKind: bridge.KindPointer, TSize: 8}, nil)
	if ptr.Target == nil || ptr.Target.Code != typemodel.CodeVoid || ptr.Name != "void *" {
		t.Errorf("untyped pointer resolved to %+v", ptr)
	}

	ref := a.FromNativeType(ctx, bridgetest.Reference(i32, 8), nil)
	if ref.Code != typemodel.CodeReference || ref.Target.Name != "int" {
		t.Errorf("reference resolved to %+v", ref)
	}
}

func TestFromNativeType_FieldsAndTemplates(t *testing.T) {
	b := bridgetest.New()
	a := newAdapter(b)
	ctx := context.Background()
	u32 := bridgetest.Int("unsigned int", 4, false)
	i32 := bridgetest.Int("int", 4, true)

	s := bridgetest.Struct("Packed", 8,
		bridgetest.BitField("lo", u32, 0, 4),
		bridgetest.BitField("hi", u32, 4, 28),
		bridgetest.Field("n", i32, 4),
	)
	pt := a.FromNativeType(ctx, s, nil)
	fields := pt.Fields()
	if len(fields) != 3 {
		t.Fatalf("got %d fields", len(fields))
	}
	if !fields[0].IsBitfield() || fields[0].Type.BitSize != 4 {
		t.Errorf("lo should be a 4-bit bitfield, got %+v", fields[0].Type)
	}
	if fields[2].IsBitfield() || fields[2].BitOffset != 32 {
		t.Errorf("n should be a plain field at bit 32, got %+v", fields[2])
	}

	list := bridgetest.Template(bridgetest.Struct("QList<int>", 8), i32)
	list.TArgs = append(list.TArgs, bridge.TemplateArg{Value: 16, IsValue: true})
	lt := a.FromNativeType(ctx, list, nil)
	if len(lt.TemplateArgs) != 2 || lt.TemplateArgs[0].Type.Name != "int" || lt.TemplateArgs[1].Value != 16 {
		t.Errorf("template args = %+v", lt.TemplateArgs)
	}
}

func TestNeedsDeep(t *testing.T) {
	b := bridgetest.New()
	a := newAdapter(b)
	i64 := bridgetest.Int("long", 8, true)

	base := bridgetest.Struct("Base", 8, bridgetest.Field("b", i64, 0))
	plain := bridgetest.Struct("Plain", 16, bridgetest.Base(base, 0), bridgetest.Field("p", i64, 8))
	virt := bridgetest.Struct("Virt", 24, bridgetest.Field("_vptr", i64, 0), bridgetest.VirtualBase(base))
	indirect := bridgetest.Struct("Indirect", 32, bridgetest.Base(virt, 0))
	tiny := bridgetest.Struct("Tiny", 4, bridgetest.VirtualBase(base))

	tests := []struct {
		nt   *bridgetest.Type
		want bool
	}{
		{plain, false},
		{virt, true},
		{indirect, true},
		{tiny, false},
	}
	for _, tt := range tests {
		t.Run(tt.nt.TName, func(t *testing.T) {
			if got := a.NeedsDeep(tt.nt); got != tt.want {
				t.Errorf("NeedsDeep() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFieldsFor_VirtualBase(t *testing.T) {
	b := bridgetest.New()
	a := newAdapter(b)
	ctx := context.Background()
	i64 := bridgetest.Int("long", 8, true)
	u64 := bridgetest.Int("unsigned long long", 8, false)

	base := bridgetest.Struct("Base", 8, bridgetest.Field("b", i64, 0))
	derived := bridgetest.Struct("Derived", 24,
		bridgetest.Field("_vptr", i64, 0),
		bridgetest.Field("d", i64, 8),
		bridgetest.VirtualBase(base),
	)
	b.Expressions["(unsigned long long)(Base*)(Derived*)0x1000"] = b.Integer(u64, 0x1010)
	b.WriteU64(0x1010, 99)

	v := a.FromNativeValue(ctx, bridgetest.At("obj", derived, 0x1000))
	fields, err := a.FieldsFor(ctx, v)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 3 {
		t.Fatalf("got %d fields", len(fields))
	}
	vb := fields[2]
	if !vb.IsBaseClass || !vb.IsArtificial || !vb.OffsetKnown || vb.BitOffset != 16*8 {
		t.Fatalf("virtual base field = %+v", vb)
	}
	if vb.Type.ID != "Base in Derived" {
		t.Errorf("virtual base type id = %q", vb.Type.ID)
	}

	sub := v.Field(vb)
	bf := sub.FieldByName("b")
	n, err := bf.Integer(ctx, memoryOf(b))
	if err != nil || n != 99 {
		t.Errorf("base member = %d, %v", n, err)
	}

	calls := len(b.Calls)
	if _, err := a.FieldsFor(ctx, v); err != nil {
		t.Fatal(err)
	}
	if len(b.Calls) != calls {
		t.Error("second listing should come from the arena")
	}
}

func TestDereference(t *testing.T) {
	b := bridgetest.New()
	a := newAdapter(b)
	ctx := context.Background()
	i32 := bridgetest.Int("int", 4, true)
	pi := bridgetest.Pointer(i32, 8)

	b.WriteU64(0x100, 0x200)
	b.WriteI32(0x200, 5)
	b.WriteU64(0x108, 0xdead0000)
	mem := memoryOf(b)

	good, err := a.Dereference(ctx, a.FromNativeValue(ctx, bridgetest.At("p", pi, 0x100)), mem)
	if err != nil {
		t.Fatal(err)
	}
	if addr, ok := good.Address(); !ok || addr != 0x200 {
		t.Errorf("pointee at %x, %v", addr, ok)
	}

	bad, err := a.Dereference(ctx, a.FromNativeValue(ctx, bridgetest.At("q", pi, 0x108)), mem)
	if err != nil {
		t.Fatalf("dereference must not fail: %v", err)
	}
	if bad.Addressable || bad.Type.Name != "int" {
		t.Errorf("expected non-addressable int, got %+v", bad)
	}

	b.Lost = true
	if _, err := a.Dereference(ctx, a.FromNativeValue(ctx, bridgetest.At("p", pi, 0x100)), mem); err == nil {
		t.Error("lost target must propagate")
	}
}

func TestFromNativeValue_Modes(t *testing.T) {
	b := bridgetest.New()
	a := newAdapter(b)
	ctx := context.Background()
	i32 := bridgetest.Int("int", 4, true)

	snap := a.FromNativeValue(ctx, &bridgetest.Value{VName: "r", VType: i32, Data: []byte{1, 0, 0, 0}})
	if snap.Mode() != typemodel.Snapshot || !snap.Addressable {
		t.Errorf("register value should be a snapshot, got %+v", snap)
	}

	opt := a.FromNativeValue(ctx, &bridgetest.Value{VName: "o", VType: i32, Optimized: true})
	if !opt.OptimizedOut || opt.Addressable {
		t.Errorf("optimized-out value = %+v", opt)
	}

	arr := bridgetest.Typedef("Buf", bridgetest.Array(i32, 4))
	live := a.FromNativeValue(ctx, bridgetest.At("buf", arr, 0x400))
	if addr, ok := live.Address(); !ok || addr != 0x400 || live.Type.Name != "Buf" {
		t.Errorf("typedef'd array = %+v", live)
	}
}

func TestLookupType(t *testing.T) {
	b := bridgetest.New()
	a := newAdapter(b)
	ctx := context.Background()
	b.AddType(bridgetest.Struct("QString", 8))

	qs, err := a.LookupType(ctx, "QString")
	if err != nil || qs.Code != typemodel.CodeStruct {
		t.Fatalf("LookupType(QString) = %+v, %v", qs, err)
	}
	missing, err := a.LookupType(ctx, "NoSuchType")
	if err != nil || missing.Code != typemodel.CodeUnresolvable {
		t.Errorf("LookupType(NoSuchType) = %+v, %v", missing, err)
	}

	b.Lost = true
	if _, err := a.LookupType(ctx, "Other"); err == nil {
		t.Error("lost target must propagate")
	}
}
