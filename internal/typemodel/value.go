package typemodel

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ctagard/dap-dump/internal/errors"
)

// Memory gives values access to the inspected process.
type Memory interface {
	ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error)
	ByteOrder() binary.ByteOrder
	PointerSize() int
}

// Mode says where a Value's bytes live.
type Mode int

const (
	// Live values refer to memory in the inspected process.
	Live Mode = iota
	// Snapshot values own a copy of their bytes.
	Snapshot
)

// Value is an observed value. Values are request-scoped.
type Value struct {
	Type *Type
	Name string

	mode     Mode
	addr     uint64
	data     []byte
	bitShift int64

	// Addressable is false when neither an address nor bytes are known,
	// e.g. the target of a pointer that could not be dereferenced.
	Addressable bool
	// OptimizedOut also covers values the debugger reports out of scope.
	OptimizedOut bool
	IsBaseClass  bool
	// Display caches a decoded display string.
	Display string

	// Root and BaseOffset locate the value inside the outermost object it
	// was reached from; they key per-value field listings.
	Root       string
	BaseOffset int64
}

// NewLive returns a value at addr in the inspected process.
func NewLive(t *Type, addr uint64) *Value {
	return &Value{Type: t, mode: Live, addr: addr, Addressable: true}
}

// NewSnapshot returns a value owning a copy of data.
func NewSnapshot(t *Type, data []byte) *Value {
	own := make([]byte, len(data))
	copy(own, data)
	return &Value{Type: t, mode: Snapshot, data: own, Addressable: true}
}

// NotAddressable returns a value with a known type and no contents.
func NotAddressable(t *Type) *Value {
	return &Value{Type: t, mode: Snapshot}
}

// Mode returns where the value's bytes live.
func (v *Value) Mode() Mode {
	return v.mode
}

// IsLive reports whether the value refers to process memory.
func (v *Value) IsLive() bool {
	return v.mode == Live && v.Addressable
}

// Address returns the value's address; ok is false for snapshots.
func (v *Value) Address() (addr uint64, ok bool) {
	if v.mode != Live || !v.Addressable {
		return 0, false
	}
	return v.addr, true
}

// BitShift is the bit position of a bitfield inside its first byte.
func (v *Value) BitShift() int64 {
	return v.bitShift
}

func (v *Value) byteSize() int {
	if v.Type == nil {
		return 0
	}
	if v.Type.Code == CodeBitfield {
		return int((v.bitShift + v.Type.BitSize + 7) / 8)
	}
	return int(v.Type.Size())
}

// Data returns the value's bytes. A live address is validated before
// every read.
func (v *Value) Data(ctx context.Context, mem Memory) ([]byte, error) {
	if !v.Addressable {
		return nil, errors.MemoryReadFailed(0, v.byteSize(), fmt.Errorf("value is not addressable"))
	}
	if v.mode == Snapshot {
		return v.data, nil
	}
	size := v.byteSize()
	if v.addr == 0 {
		return nil, errors.MemoryReadFailed(0, size, fmt.Errorf("null address"))
	}
	if size <= 0 {
		return []byte{}, nil
	}
	data, err := mem.ReadMemory(ctx, v.addr, size)
	if err != nil {
		return nil, err
	}
	if len(data) < size {
		return nil, errors.MemoryReadFailed(v.addr, size, fmt.Errorf("short read of %d bytes", len(data)))
	}
	return data, nil
}

// Field returns the member f of v.
func (v *Value) Field(f Field) *Value {
	if f.Type == nil {
		f.Type = Unresolvable("")
	}
	byteOff := f.BitOffset / 8
	var shift int64
	if f.IsBitfield() {
		shift = f.BitOffset % 8
	}
	root := v.Root
	if root == "" && v.Type != nil {
		root = v.Type.ID
	}

	var child *Value
	switch {
	case !f.OffsetKnown || !v.Addressable:
		child = NotAddressable(f.Type)
	case v.mode == Live:
		child = NewLive(f.Type, v.addr+uint64(byteOff))
	default:
		child = NotAddressable(f.Type)
		end := byteOff + int64((shift+f.Type.BitSize+7)/8)
		if f.Type.Code != CodeBitfield {
			end = byteOff + f.Type.Size()
		}
		if byteOff >= 0 && end <= int64(len(v.data)) {
			child = NewSnapshot(f.Type, v.data[byteOff:end])
		}
	}
	child.bitShift = shift
	child.Name = f.Name
	child.IsBaseClass = f.IsBaseClass
	child.Root = root
	child.BaseOffset = v.BaseOffset + byteOff
	return child
}

// FieldByName returns the member called name, or nil.
func (v *Value) FieldByName(name string) *Value {
	f, ok := v.Type.FieldByName(name)
	if !ok {
		return nil
	}
	return v.Field(f)
}

// Unsigned returns the value as an unsigned integer.
func (v *Value) Unsigned(ctx context.Context, mem Memory) (uint64, error) {
	data, err := v.Data(ctx, mem)
	if err != nil {
		return 0, err
	}
	if v.Type != nil && v.Type.Code == CodeBitfield {
		return ExtractBits(data, v.bitShift, v.Type.BitSize), nil
	}
	return DecodeUint(data, mem.ByteOrder())
}

// Integer returns the value as a signed integer when its type is signed.
func (v *Value) Integer(ctx context.Context, mem Memory) (int64, error) {
	u, err := v.Unsigned(ctx, mem)
	if err != nil {
		return 0, err
	}
	if v.Type == nil {
		return int64(u), nil
	}
	bits := int64(8 * v.byteSize())
	if v.Type.Code == CodeBitfield {
		bits = v.Type.BitSize
	}
	if !v.Type.Stripped().Signed || bits >= 64 {
		return int64(u), nil
	}
	return SignExtend(u, bits), nil
}

// Float returns the value as a float64.
func (v *Value) Float(ctx context.Context, mem Memory) (float64, error) {
	data, err := v.Data(ctx, mem)
	if err != nil {
		return 0, err
	}
	switch len(data) {
	case 4:
		return float64(math.Float32frombits(mem.ByteOrder().Uint32(data))), nil
	case 8:
		return math.Float64frombits(mem.ByteOrder().Uint64(data)), nil
	}
	return 0, fmt.Errorf("unsupported float size %d", len(data))
}

// Pointer returns the pointer stored in the value.
func (v *Value) Pointer(ctx context.Context, mem Memory) (uint64, error) {
	return v.Unsigned(ctx, mem)
}

// DecodeUint decodes a 1, 2, 4 or 8 byte unsigned integer.
func DecodeUint(data []byte, order binary.ByteOrder) (uint64, error) {
	switch len(data) {
	case 1:
		return uint64(data[0]), nil
	case 2:
		return uint64(order.Uint16(data)), nil
	case 4:
		return uint64(order.Uint32(data)), nil
	case 8:
		return order.Uint64(data), nil
	}
	return 0, fmt.Errorf("unsupported integer size %d", len(data))
}

// SignExtend interprets the low bits of u as a two's complement number.
func SignExtend(u uint64, bits int64) int64 {
	if bits <= 0 || bits >= 64 {
		return int64(u)
	}
	shift := 64 - bits
	return int64(u<<shift) >> shift
}

// ExtractBits reads bits bits starting shift bits into the little-endian
// byte sequence data.
func ExtractBits(data []byte, shift, bits int64) uint64 {
	var acc uint64
	for i := len(data) - 1; i >= 0; i-- {
		if i >= 8 {
			continue
		}
		acc = acc<<8 | uint64(data[i])
	}
	acc >>= uint(shift)
	if bits < 64 {
		acc &= (1 << uint(bits)) - 1
	}
	return acc
}
