package qttypes

import (
	"fmt"

	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

func registerPointers(reg *dump.Registry) {
	reg.RegisterFunc("QSharedPointer", dumpSharedPointer)
	reg.RegisterFunc("QWeakPointer", dumpSharedPointer)
	reg.RegisterFunc("QScopedPointer", dumpScopedPointer)
	reg.RegisterFunc("QSharedDataPointer", dumpSharedDataPointer)
	reg.RegisterFunc("QExplicitlySharedDataPointer", dumpSharedDataPointer)
	reg.RegisterFunc("QSharedData", dumpSharedData)
}

// dumpSharedPointer shows QSharedPointer and QWeakPointer, both a value
// pointer plus a pointer to the reference counts.
func dumpSharedPointer(d *dump.Dumper, v *typemodel.Value) error {
	dm, err := findMember(d, v, "d")
	if err != nil {
		return err
	}
	vm, err := findMember(d, v, "value")
	if err != nil {
		return err
	}
	counts, err := d.Pointer(dm)
	if err != nil {
		return err
	}
	ptr, err := d.Pointer(vm)
	if err != nil {
		return err
	}
	switch {
	case counts == 0 && ptr == 0:
		d.PutValue("(null)")
		d.PutNumChild(0)
		return nil
	case counts == 0 || ptr == 0:
		d.PutValue("<invalid>")
		d.PutNumChild(0)
		return nil
	}

	desc, err := d.Layout(layout.ExternalRefCountData)
	if err != nil {
		return err
	}
	weak, err := d.ExtractInt(counts + uint64(desc.Off("weakref")))
	if err != nil {
		return err
	}
	strong, err := d.ExtractInt(counts + uint64(desc.Off("strongref")))
	if err != nil {
		return err
	}
	if err := d.Check(strong >= -1 && strong <= weak && weak <= 10000000,
		fmt.Sprintf("strong %d, weak %d", strong, weak)); err != nil {
		return err
	}

	inner, err := d.TemplateArgument(v, 0)
	if err != nil {
		return err
	}
	pointee := d.CreateValue(ptr, inner)
	if isSimple(inner) {
		if err := putSimpleValue(d, pointee); err != nil {
			return err
		}
	} else {
		d.PutEmptyValue()
	}
	d.PutNumChild(3)
	return withChildren(d, func() error {
		if err := d.PutSubItem("data", pointee); err != nil {
			return err
		}
		if err := d.PutIntItem("weakref", weak); err != nil {
			return err
		}
		return d.PutIntItem("strongref", strong)
	})
}

func dumpScopedPointer(d *dump.Dumper, v *typemodel.Value) error {
	m, err := d.Member(v, "d")
	if err != nil {
		return err
	}
	if err := d.PutItem(m); err != nil {
		return err
	}
	d.PutType(v.Type.Name)
	return nil
}

// dumpSharedDataPointer makes the pointer transparent: the item shows the
// shared data itself.
func dumpSharedDataPointer(d *dump.Dumper, v *typemodel.Value) error {
	m, err := d.Member(v, "d")
	if err != nil {
		return err
	}
	ptr, err := d.Pointer(m)
	if err != nil {
		return err
	}
	if ptr == 0 {
		d.PutValue("(null)")
		d.PutNumChild(0)
		return nil
	}
	inner, err := d.TemplateArgument(v, 0)
	if err != nil {
		d.PutValue(fmt.Sprintf("0x%x", ptr))
		return d.PutPlainChildren(v)
	}
	if err := d.PutItem(d.CreateValue(ptr, inner)); err != nil {
		return err
	}
	d.PutType(v.Type.Name)
	return nil
}

func dumpSharedData(d *dump.Dumper, v *typemodel.Value) error {
	ref, err := readInt(d, v, 0)
	if err != nil {
		return err
	}
	d.PutValue(fmt.Sprintf("ref: %d", ref))
	d.PutNumChild(0)
	return nil
}
