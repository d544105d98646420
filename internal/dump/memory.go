package dump

import (
	"fmt"
	"math"

	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

// ReadCString reads a NUL terminated string of at most limit bytes.
func (d *Dumper) ReadCString(addr uint64, limit int) (string, error) {
	return d.s.ReadCString(d.ctx, addr, limit)
}

// ReadMemory reads size bytes at addr. A short read is an error.
func (d *Dumper) ReadMemory(addr uint64, size int) ([]byte, error) {
	if size <= 0 {
		return []byte{}, nil
	}
	if addr == 0 {
		return nil, errors.MemoryReadFailed(0, size, fmt.Errorf("null address"))
	}
	data, err := d.s.ReadMemory(d.ctx, addr, size)
	if err != nil {
		return nil, err
	}
	if len(data) < size {
		return nil, errors.MemoryReadFailed(addr, size, fmt.Errorf("short read of %d bytes", len(data)))
	}
	return data, nil
}

func (d *Dumper) extract(addr uint64, size int) (uint64, error) {
	data, err := d.ReadMemory(addr, size)
	if err != nil {
		return 0, err
	}
	return typemodel.DecodeUint(data, d.s.order)
}

// ExtractInt reads a 32-bit signed integer.
func (d *Dumper) ExtractInt(addr uint64) (int64, error) {
	u, err := d.extract(addr, 4)
	return int64(int32(u)), err
}

// ExtractUInt reads a 32-bit unsigned integer.
func (d *Dumper) ExtractUInt(addr uint64) (uint64, error) {
	return d.extract(addr, 4)
}

// ExtractInt64 reads a 64-bit signed integer.
func (d *Dumper) ExtractInt64(addr uint64) (int64, error) {
	u, err := d.extract(addr, 8)
	return int64(u), err
}

// ExtractUInt64 reads a 64-bit unsigned integer.
func (d *Dumper) ExtractUInt64(addr uint64) (uint64, error) {
	return d.extract(addr, 8)
}

// ExtractUShort reads a 16-bit unsigned integer.
func (d *Dumper) ExtractUShort(addr uint64) (uint64, error) {
	return d.extract(addr, 2)
}

// ExtractByte reads one byte.
func (d *Dumper) ExtractByte(addr uint64) (uint64, error) {
	return d.extract(addr, 1)
}

// ExtractPointer reads a pointer of the target's width.
func (d *Dumper) ExtractPointer(addr uint64) (uint64, error) {
	return d.extract(addr, d.PtrSize())
}

// ExtractDouble reads an IEEE double.
func (d *Dumper) ExtractDouble(addr uint64) (float64, error) {
	u, err := d.extract(addr, 8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}

// Int returns the integral value of v.
func (d *Dumper) Int(v *typemodel.Value) (int64, error) {
	return v.Integer(d.ctx, d.s)
}

// Uint returns the unsigned integral value of v.
func (d *Dumper) Uint(v *typemodel.Value) (uint64, error) {
	return v.Unsigned(d.ctx, d.s)
}

// Pointer returns the pointer stored in v.
func (d *Dumper) Pointer(v *typemodel.Value) (uint64, error) {
	return v.Pointer(d.ctx, d.s)
}

// Float returns the floating point value of v.
func (d *Dumper) Float(v *typemodel.Value) (float64, error) {
	return v.Float(d.ctx, d.s)
}

// Data returns the bytes of v.
func (d *Dumper) Data(v *typemodel.Value) ([]byte, error) {
	return v.Data(d.ctx, d.s)
}

// Member returns the member called name of v, failing when v's type has
// none.
func (d *Dumper) Member(v *typemodel.Value, name string) (*typemodel.Value, error) {
	m := v.FieldByName(name)
	if m == nil {
		return nil, errors.UnresolvableType(fmt.Sprintf("%s::%s", v.Type.Name, name))
	}
	return m, nil
}
