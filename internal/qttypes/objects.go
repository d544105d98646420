package qttypes

import (
	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

// maxBaseDepth bounds the base class walk of the QObject fallback.
const maxBaseDepth = 32

func registerObjects(reg *dump.Registry) {
	reg.RegisterFunc("QObject", dumpObject)
	reg.RegisterFallback(objectFallback)
}

func dumpObject(d *dump.Dumper, v *typemodel.Value) error {
	if !d.Request().QObjectNames {
		return d.PutPlainChildren(v)
	}
	return putObject(d, v)
}

// objectFallback renders classes derived from QObject like QObject when
// object names are requested.
func objectFallback(d *dump.Dumper, v *typemodel.Value) (bool, error) {
	if !d.Request().QObjectNames || !derivesFromObject(d, v.Type, 0) {
		return false, nil
	}
	return true, putObject(d, v)
}

func derivesFromObject(d *dump.Dumper, t *typemodel.Type, depth int) bool {
	if t == nil || depth > maxBaseDepth {
		return false
	}
	for _, f := range t.Stripped().Fields() {
		if !f.IsBaseClass || f.Type == nil {
			continue
		}
		if dump.NormalizeTypeName(f.Type.Name, d.QtNamespace()) == "QObject" || derivesFromObject(d, f.Type, depth+1) {
			return true
		}
	}
	return false
}

// putObject shows the object name, stored in the extra data of the
// private on Qt 5, and the child object list.
func putObject(d *dump.Dumper, v *typemodel.Value) error {
	desc, err := d.Layout(layout.ObjectPrivate)
	if err != nil {
		return err
	}
	priv, err := readPtr(d, v, desc.Off("dPtr"))
	if err != nil {
		return err
	}
	if err := d.Check(priv != 0, "null object private"); err != nil {
		return err
	}
	if desc.Has("extraData") {
		extra, err := d.ExtractPointer(priv + uint64(desc.Off("extraData")))
		if err != nil {
			return err
		}
		if extra != 0 {
			if _, err := putStringValue(d, extra+uint64(desc.Off("extraObjectName"))); err != nil {
				return err
			}
		}
	}
	if !d.Item().Has(output.KeyValue) {
		d.PutEmptyValue()
	}
	d.PutNumChild(len(v.Type.Stripped().Fields()) + 1)
	return withChildren(d, func() error {
		err := d.SubItem("[children]", func() error {
			d.PutType(d.QtNamespace() + "QObjectList")
			elem, err := d.LookupQtType("QObject *")
			if err != nil {
				return err
			}
			list, err := d.ExtractPointer(priv + uint64(desc.Off("children")))
			if err != nil {
				return err
			}
			return putListData(d, list, elem)
		})
		if err != nil {
			return err
		}
		return d.PutFields(v)
	})
}
