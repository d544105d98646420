package qttypes

import (
	"fmt"

	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

func registerScalars(reg *dump.Registry) {
	reg.RegisterFunc("QAtomicInt", dumpAtomicInt)
	reg.RegisterFunc("QBasicAtomicInt", dumpAtomicInt)
	reg.RegisterFunc("QAtomicPointer", dumpAtomicPointer)
	reg.RegisterFunc("QChar", dumpChar)
	reg.RegisterFunc("QFlags", dumpFlags)
	reg.RegisterFunc("QUuid", dumpUUID)
}

func dumpAtomicInt(d *dump.Dumper, v *typemodel.Value) error {
	n, err := readInt(d, v, 0)
	if err != nil {
		return err
	}
	d.PutValue(output.Itoa(n))
	d.PutNumChild(0)
	return nil
}

func dumpAtomicPointer(d *dump.Dumper, v *typemodel.Value) error {
	p, err := dPtr(d, v)
	if err != nil {
		return err
	}
	d.PutValue(fmt.Sprintf("@0x%x", p))
	if p == 0 {
		d.PutNumChild(0)
		return nil
	}
	d.PutNumChild(1)
	return d.Children(1, 0, func(int) error {
		inner, err := d.TemplateArgument(v, 0)
		if err != nil {
			return err
		}
		return d.PutSubItem("[pointee]", d.CreateValue(p, inner))
	})
}

func dumpChar(d *dump.Dumper, v *typemodel.Value) error {
	ucs, err := memberInt(d, v, "ucs")
	if err != nil {
		return err
	}
	d.PutValue(output.Itoa(ucs & 0xffff))
	d.PutNumChild(0)
	return nil
}

func dumpFlags(d *dump.Dumper, v *typemodel.Value) error {
	i, err := memberInt(d, v, "i")
	if err != nil {
		return err
	}
	enum, err := d.TemplateArgument(v, 0)
	if err != nil || enum.Stripped().Code != typemodel.CodeEnum {
		d.PutValue(output.Itoa(i))
	} else {
		d.PutValue(enum.EnumDisplay(i))
	}
	d.PutNumChild(0)
	return nil
}

func dumpUUID(d *dump.Dumper, v *typemodel.Value) error {
	data, err := d.Data(v)
	if err != nil {
		return err
	}
	if err := d.Check(len(data) >= 16, "short QUuid"); err != nil {
		return err
	}
	order := d.Mem().ByteOrder()
	d.PutValue(fmt.Sprintf("{%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x}",
		order.Uint32(data[0:4]), order.Uint16(data[4:6]), order.Uint16(data[6:8]),
		data[8], data[9], data[10], data[11], data[12], data[13], data[14], data[15]))
	return d.PutPlainChildren(v)
}
