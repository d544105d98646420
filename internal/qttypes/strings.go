package qttypes

import (
	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

func registerStrings(reg *dump.Registry) {
	reg.RegisterFunc("QByteArray", dumpByteArray)
	reg.RegisterFunc("QArrayData", dumpArrayData)
	reg.RegisterFunc("QByteArrayData", dumpArrayData)
	reg.RegisterFunc("QTypedArrayData", dumpArrayData)
	reg.RegisterFunc("QBitArray", dumpBitArray)
	reg.RegisterFunc("QString", dumpString)
	reg.RegisterFunc("QStringData", dumpStringData)
	reg.RegisterFunc("QStringRef", dumpStringRef)
	reg.RegisterFunc("QStringList", dumpStringList)
	reg.RegisterFunc("QLatin1String", dumpLatin1String)
}

func dumpByteArray(d *dump.Dumper, v *typemodel.Value) error {
	addr, err := d.AddressOf(v)
	if err != nil {
		return err
	}
	a, err := putByteArrayValue(d, addr)
	if err != nil {
		return err
	}
	d.PutNumChild(int(a.size))
	if !d.IsExpanded() {
		return nil
	}
	char, err := d.LookupType("char")
	if err != nil {
		return err
	}
	return d.PutArrayData(a.data, int(a.size), char, 0)
}

// dumpArrayData shows a bare QArrayData header, e.g. the d member of a
// QByteArray.
func dumpArrayData(d *dump.Dumper, v *typemodel.Value) error {
	addr, err := d.AddressOf(v)
	if err != nil {
		return err
	}
	a, err := readArrayData(d, addr, layout.ArrayData)
	if err != nil {
		return err
	}
	if err := checkByteArray(d, a, maxByteArraySize); err != nil {
		return err
	}
	s, elided, err := encodeBytes(d, a, d.StringLimit())
	if err != nil {
		return err
	}
	d.PutEncodedValue(s, output.Latin1, elided)
	d.PutNumChild(2)
	return d.Children(2, 0, func(i int) error {
		if i == 0 {
			return d.PutIntItem("size", a.size)
		}
		return d.PutIntItem("alloc", a.alloc)
	})
}

func dumpBitArray(d *dump.Dumper, v *typemodel.Value) error {
	addr, err := d.AddressOf(v)
	if err != nil {
		return err
	}
	a, err := byteArrayData(d, addr)
	if err != nil {
		return err
	}
	size := int64(0)
	if a.size > 0 {
		pad, err := d.ExtractByte(a.data)
		if err != nil {
			return err
		}
		size = a.size*8 - int64(pad)
	}
	if err := d.Check(size >= 0, "negative bit count"); err != nil {
		return err
	}
	d.PutItemCount(int(size))
	return d.Children(int(size), 10000, func(i int) error {
		b, err := d.ExtractByte(a.data + 1 + uint64(i/8))
		if err != nil {
			return err
		}
		return d.PutBoolItem(output.Itoa(int64(i)), b&(1<<(i%8)) != 0)
	})
}

func dumpString(d *dump.Dumper, v *typemodel.Value) error {
	addr, err := d.AddressOf(v)
	if err != nil {
		return err
	}
	a, err := putStringValue(d, addr)
	if err != nil {
		return err
	}
	d.PutNumChild(int(a.size))
	if !d.IsExpanded() {
		return nil
	}
	elem, err := lookupOr(d, d.QtNamespace()+"QChar", "unsigned short")
	if err != nil {
		return err
	}
	return d.PutArrayData(a.data, int(a.size), elem, 0)
}

// dumpStringData shows a QStringData header found by address.
func dumpStringData(d *dump.Dumper, v *typemodel.Value) error {
	addr, err := d.AddressOf(v)
	if err != nil {
		return err
	}
	a, err := readArrayData(d, addr, layout.ArrayData)
	if err != nil {
		return err
	}
	if err := checkByteArray(d, a, maxByteArraySize); err != nil {
		return err
	}
	s, elided, err := encodeUTF16(d, a, d.StringLimit())
	if err != nil {
		return err
	}
	d.PutEncodedValue(s, output.UTF16, elided)
	d.PutNumChild(0)
	return nil
}

func dumpStringRef(d *dump.Dumper, v *typemodel.Value) error {
	str, err := memberPointer(d, v, "m_string")
	if err != nil {
		return err
	}
	if str == 0 {
		d.PutValue("(null)")
		d.PutNumChild(0)
		return nil
	}
	pos, err := memberInt(d, v, "m_position")
	if err != nil {
		return err
	}
	size, err := memberInt(d, v, "m_size")
	if err != nil {
		return err
	}
	a, err := stringData(d, str)
	if err != nil {
		return err
	}
	if err := d.Check(pos >= 0 && size >= 0 && pos+size <= a.size, "reference outside string"); err != nil {
		return err
	}
	a.data += uint64(2 * pos)
	a.size = size
	s, elided, err := encodeUTF16(d, a, d.StringLimit())
	if err != nil {
		return err
	}
	d.PutEncodedValue(s, output.UTF16, elided)
	return d.PutPlainChildren(v)
}

func dumpStringList(d *dump.Dumper, v *typemodel.Value) error {
	elem, err := d.LookupQtType("QString")
	if err != nil {
		return err
	}
	return putList(d, v, elem)
}

func dumpLatin1String(d *dump.Dumper, v *typemodel.Value) error {
	size, err := memberInt(d, v, "m_size")
	if err != nil {
		return err
	}
	data, err := memberPointer(d, v, "m_data")
	if err != nil {
		return err
	}
	if err := d.Check(size >= 0 && size <= maxByteArraySize, "string size"); err != nil {
		return err
	}
	s, elided, err := encodeBytes(d, arrayData{data: data, size: size}, d.StringLimit())
	if err != nil {
		return err
	}
	d.PutEncodedValue(s, output.Latin1, elided)
	return d.PutPlainChildren(v)
}
