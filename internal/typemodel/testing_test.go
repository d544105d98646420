package typemodel

import (
	"context"
	"encoding/binary"
	"fmt"
)

type fakeMemory struct {
	base  uint64
	bytes []byte
	reads int
}

func (m *fakeMemory) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	m.reads++
	if addr < m.base || addr+uint64(size) > m.base+uint64(len(m.bytes)) {
		return nil, fmt.Errorf("unmapped 0x%x", addr)
	}
	off := addr - m.base
	return m.bytes[off : off+uint64(size)], nil
}

func (m *fakeMemory) ByteOrder() binary.ByteOrder { return binary.LittleEndian }
func (m *fakeMemory) PointerSize() int            { return 8 }

func intType(name string, size int64, signed bool) *Type {
	return &Type{ID: name, Name: name, Code: CodeIntegral, BitSize: size * 8, Signed: signed}
}
