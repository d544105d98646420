package typemodel

import (
	"context"
	"testing"

	"github.com/ctagard/dap-dump/internal/errors"
)

func TestValue_LiveRevalidates(t *testing.T) {
	mem := &fakeMemory{base: 0x1000, bytes: []byte{0x2a, 0, 0, 0}}
	v := NewLive(intType("int", 4, true), 0x1000)

	for i := 0; i < 2; i++ {
		n, err := v.Integer(context.Background(), mem)
		if err != nil || n != 42 {
			t.Fatalf("Integer() = %d, %v", n, err)
		}
	}
	if mem.reads != 2 {
		t.Errorf("live value should be re-read each time, got %d reads", mem.reads)
	}

	null := NewLive(intType("int", 4, true), 0)
	if _, err := null.Data(context.Background(), mem); errors.CodeOf(err) != errors.CodeMemoryReadFailed {
		t.Errorf("null address should fail with a memory error, got %v", err)
	}
}

func TestValue_Snapshot(t *testing.T) {
	src := []byte{0xff, 0xff, 0xff, 0xff}
	v := NewSnapshot(intType("int", 4, true), src)
	src[0] = 0

	if _, ok := v.Address(); ok {
		t.Error("snapshot must not claim an address")
	}
	mem := &fakeMemory{}
	n, err := v.Integer(context.Background(), mem)
	if err != nil || n != -1 {
		t.Errorf("Integer() = %d, %v", n, err)
	}
	if mem.reads != 0 {
		t.Errorf("snapshot read process memory %d times", mem.reads)
	}
}

func TestValue_Fields(t *testing.T) {
	i32 := intType("int", 4, true)
	u8 := intType("unsigned char", 1, false)
	s := &Type{ID: "S", Name: "S", Code: CodeStruct, BitSize: 64}
	s.SetFields([]Field{
		NewField("a", i32, 0, 32),
		NewField("lo", u8, 32, 3),
		NewField("hi", u8, 35, 5),
	})
	raw := []byte{7, 0, 0, 0, 0xad, 0, 0, 0}
	mem := &fakeMemory{base: 0x2000, bytes: raw}
	ctx := context.Background()

	for _, v := range []*Value{NewLive(s, 0x2000), NewSnapshot(s, raw)} {
		a := v.FieldByName("a")
		if n, err := a.Integer(ctx, mem); err != nil || n != 7 {
			t.Errorf("a = %d, %v", n, err)
		}
		lo := v.FieldByName("lo")
		if n, err := lo.Unsigned(ctx, mem); err != nil || n != 0xad&7 {
			t.Errorf("lo = %d, %v", n, err)
		}
		hi := v.FieldByName("hi")
		if n, err := hi.Unsigned(ctx, mem); err != nil || n != 0xad>>3 {
			t.Errorf("hi = %d, %v", n, err)
		}
		if hi.Root != "S" || hi.BaseOffset != 4 {
			t.Errorf("hi located at %s+%d", hi.Root, hi.BaseOffset)
		}
	}
}

func TestValue_NotAddressable(t *testing.T) {
	v := NotAddressable(intType("int", 4, true))
	if _, err := v.Data(context.Background(), &fakeMemory{}); err == nil {
		t.Error("expected an error reading a non-addressable value")
	}
	if v.FieldByName("x") != nil {
		t.Error("scalar has no fields")
	}
}

func TestSignExtend(t *testing.T) {
	tests := []struct {
		u    uint64
		bits int64
		want int64
	}{
		{0xff, 8, -1},
		{0x7f, 8, 127},
		{0x10, 5, -16},
		{0xffffffff, 32, -1},
		{5, 64, 5},
	}
	for _, tt := range tests {
		if got := SignExtend(tt.u, tt.bits); got != tt.want {
			t.Errorf("SignExtend(%#x, %d) = %d, want %d", tt.u, tt.bits, got, tt.want)
		}
	}
}
