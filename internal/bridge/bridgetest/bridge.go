// Package bridgetest provides an in-memory bridge.NativeBridge for tests:
// a sparse memory image, programmable types, symbols and expression results,
// read counters and fault injection.
package bridgetest

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ctagard/dap-dump/internal/bridge"
	"github.com/ctagard/dap-dump/internal/errors"
)

// Value is a programmable bridge.NativeValue.
type Value struct {
	VName     string
	VType     *Type
	Addr      uint64
	HasAddr   bool
	Data      []byte
	Optimized bool
}

func (v *Value) Name() string { return v.VName }
func (v *Value) Type() bridge.NativeType {
	if v.VType == nil {
		return nil
	}
	return v.VType
}
func (v *Value) Address() (uint64, bool) { return v.Addr, v.HasAddr }
func (v *Value) Bytes() []byte           { return v.Data }
func (v *Value) OptimizedOut() bool      { return v.Optimized }

// At returns a live value of type t at addr.
func At(name string, t *Type, addr uint64) *Value {
	return &Value{VName: name, VType: t, Addr: addr, HasAddr: true}
}

// Bridge is a fake debugger over a byte-addressed memory image.
type Bridge struct {
	Info        bridge.TargetInfo
	Types       map[string]*Type
	Symbols     map[string]uint64
	Expressions map[string]*Value
	LocalValues []*Value

	// Reads counts ReadMemory calls; ReadLog records their addresses.
	Reads   int
	ReadLog []uint64
	// Calls records evaluated expressions and method calls in order.
	Calls       []string
	Breakpoints []string

	// Lost makes every call fail with TARGET_LOST.
	Lost bool

	mem    map[uint64]byte
	faults map[uint64]bool
}

// New returns an empty 64-bit little-endian Linux target.
func New() *Bridge {
	return &Bridge{
		Info:        bridge.TargetInfo{PointerSize: 8, OS: bridge.OSLinux},
		Types:       make(map[string]*Type),
		Symbols:     make(map[string]uint64),
		Expressions: make(map[string]*Value),
		mem:         make(map[uint64]byte),
		faults:      make(map[uint64]bool),
	}
}

// New32 returns an empty 32-bit little-endian Linux target.
func New32() *Bridge {
	b := New()
	b.Info.PointerSize = 4
	return b
}

// AddType registers t under its name and returns it.
func (b *Bridge) AddType(t *Type) *Type {
	b.Types[t.TName] = t
	return t
}

// Write stores data at addr.
func (b *Bridge) Write(addr uint64, data []byte) {
	for i, c := range data {
		b.mem[addr+uint64(i)] = c
	}
}

// WriteU16 stores a little-endian uint16.
func (b *Bridge) WriteU16(addr uint64, v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	b.Write(addr, buf[:])
}

// WriteU32 stores a little-endian uint32.
func (b *Bridge) WriteU32(addr uint64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.Write(addr, buf[:])
}

// WriteI32 stores a little-endian int32.
func (b *Bridge) WriteI32(addr uint64, v int32) {
	b.WriteU32(addr, uint32(v))
}

// WriteU64 stores a little-endian uint64.
func (b *Bridge) WriteU64(addr uint64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	b.Write(addr, buf[:])
}

// WritePtr stores a pointer of the target's width.
func (b *Bridge) WritePtr(addr uint64, v uint64) {
	if b.Info.PointerSize == 4 {
		b.WriteU32(addr, uint32(v))
		return
	}
	b.WriteU64(addr, v)
}

// Fault makes any read covering addr fail.
func (b *Bridge) Fault(addr uint64) {
	b.faults[addr] = true
}

// ReadsIn counts logged reads starting inside [lo, hi).
func (b *Bridge) ReadsIn(lo, hi uint64) int {
	n := 0
	for _, a := range b.ReadLog {
		if a >= lo && a < hi {
			n++
		}
	}
	return n
}

func (b *Bridge) lost() *errors.DebugError {
	return errors.TargetLost(fmt.Errorf("fake target detached"))
}

func (b *Bridge) Target(ctx context.Context) bridge.Result[bridge.TargetInfo] {
	if b.Lost {
		return bridge.Fail[bridge.TargetInfo](b.lost())
	}
	return bridge.Ok(b.Info)
}

func (b *Bridge) ReadMemory(ctx context.Context, addr uint64, size int) bridge.Result[[]byte] {
	if b.Lost {
		return bridge.Fail[[]byte](b.lost())
	}
	if addr == 0 || size == 0 {
		return bridge.Ok([]byte{})
	}
	b.Reads++
	b.ReadLog = append(b.ReadLog, addr)
	if size < 0 {
		return bridge.Fail[[]byte](errors.MemoryReadFailed(addr, size, nil))
	}
	out := make([]byte, size)
	for i := range out {
		a := addr + uint64(i)
		c, ok := b.mem[a]
		if !ok || b.faults[a] {
			return bridge.Fail[[]byte](errors.MemoryReadFailed(addr, size, fmt.Errorf("unmapped at 0x%x", a)))
		}
		out[i] = c
	}
	return bridge.Ok(out)
}

func (b *Bridge) ResolveType(ctx context.Context, name string) bridge.Result[bridge.NativeType] {
	if b.Lost {
		return bridge.Fail[bridge.NativeType](b.lost())
	}
	if t, ok := b.Types[name]; ok {
		return bridge.Ok[bridge.NativeType](t)
	}
	return bridge.Fail[bridge.NativeType](errors.UnresolvableType(name))
}

func (b *Bridge) ResolveSymbolAddress(ctx context.Context, name string) bridge.Result[uint64] {
	if b.Lost {
		return bridge.Fail[uint64](b.lost())
	}
	return bridge.Ok(b.Symbols[name])
}

func (b *Bridge) Evaluate(ctx context.Context, expr string) bridge.Result[bridge.NativeValue] {
	if b.Lost {
		return bridge.Fail[bridge.NativeValue](b.lost())
	}
	b.Calls = append(b.Calls, expr)
	if v, ok := b.Expressions[expr]; ok {
		return bridge.Ok[bridge.NativeValue](v)
	}
	return bridge.Fail[bridge.NativeValue](errors.EvaluationFailed(expr, fmt.Errorf("no symbol in current context")))
}

func (b *Bridge) CallMethod(ctx context.Context, target bridge.MethodTarget, method string, args ...string) bridge.Result[bridge.NativeValue] {
	return b.Evaluate(ctx, target.Expression(method, args...))
}

func (b *Bridge) Locals(ctx context.Context) bridge.Result[[]bridge.NativeValue] {
	if b.Lost {
		return bridge.Fail[[]bridge.NativeValue](b.lost())
	}
	out := make([]bridge.NativeValue, len(b.LocalValues))
	for i, v := range b.LocalValues {
		out[i] = v
	}
	return bridge.Ok(out)
}

func (b *Bridge) SetFunctionBreakpoints(ctx context.Context, functions []string) bridge.Result[int] {
	if b.Lost {
		return bridge.Fail[int](b.lost())
	}
	b.Breakpoints = append(b.Breakpoints, functions...)
	return bridge.Ok(len(functions))
}

// Integer returns an addressless value holding n in the type's width.
func (b *Bridge) Integer(t *Type, n uint64) *Value {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, n)
	return &Value{VType: t, Data: buf[:t.TSize]}
}

var (
	_ bridge.NativeBridge     = (*Bridge)(nil)
	_ bridge.LocalsLister     = (*Bridge)(nil)
	_ bridge.BreakpointSetter = (*Bridge)(nil)
)
