package qttypes

import (
	"math"
	"strconv"

	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

// QJsonValue::Type as stored in binary JSON values.
const (
	jsonNull = iota
	jsonBool
	jsonNumber
	jsonString
	jsonArray
	jsonObject
)

const maxJSONChildren = 1000

func registerJSON(reg *dump.Registry) {
	reg.RegisterFunc("QJsonPrivate::qle_bitfield", dumpLEBitfield)
	reg.RegisterFunc("QJsonPrivate::qle_signedbitfield", dumpLESignedBitfield)
	reg.RegisterFunc("QJsonPrivate::q_littleendian", dumpLittleEndian)
	reg.RegisterFunc("QJsonValue", dumpJSONValue)
	reg.RegisterFunc("QJsonArray", dumpJSONArray)
	reg.RegisterFunc("QJsonObject", dumpJSONObject)
}

func cutBits(v uint64, offset, length int64) uint64 {
	return (v >> uint(offset)) & (1<<uint(length) - 1)
}

// bitfieldValue extracts the bits the template arguments select from val.
func bitfieldValue(d *dump.Dumper, v *typemodel.Value) (uint64, int64, error) {
	offset, err := d.NumericTemplateArgument(v, 0)
	if err != nil {
		return 0, 0, err
	}
	length, err := d.NumericTemplateArgument(v, 1)
	if err != nil {
		return 0, 0, err
	}
	m, err := d.Member(v, "val")
	if err != nil {
		return 0, 0, err
	}
	val, err := d.Uint(m)
	if err != nil {
		return 0, 0, err
	}
	if err := d.Check(offset >= 0 && length > 0 && offset+length <= 64, "bit range"); err != nil {
		return 0, 0, err
	}
	return cutBits(val, offset, length), length, nil
}

func dumpLEBitfield(d *dump.Dumper, v *typemodel.Value) error {
	bits, _, err := bitfieldValue(d, v)
	if err != nil {
		return err
	}
	d.PutValue(output.Itoa(int64(bits)))
	d.PutNumChild(0)
	return nil
}

func dumpLESignedBitfield(d *dump.Dumper, v *typemodel.Value) error {
	bits, length, err := bitfieldValue(d, v)
	if err != nil {
		return err
	}
	d.PutValue(output.Itoa(typemodel.SignExtend(bits, length)))
	d.PutNumChild(0)
	return nil
}

func dumpLittleEndian(d *dump.Dumper, v *typemodel.Value) error {
	n, err := memberInt(d, v, "val")
	if err != nil {
		return err
	}
	d.PutValue(output.Itoa(n))
	d.PutNumChild(0)
	return nil
}

// jsonBinary reads the binary JSON format of Qt 5: containers are a Base
// header followed by a table of 32 bit offsets, values pack type, flags
// and payload into 32 bits.
type jsonBinary struct {
	d    *dump.Dumper
	desc layout.Descriptor
}

func newJSONBinary(d *dump.Dumper) (*jsonBinary, error) {
	desc, err := d.Layout(layout.JSONPrivate)
	if err != nil {
		return nil, err
	}
	return &jsonBinary{d: d, desc: desc}, nil
}

func (j *jsonBinary) field(pv uint64, name string, bits int64) uint64 {
	return cutBits(pv, j.desc.Off(name+"Shift"), bits)
}

// length returns the element count of the container at base.
func (j *jsonBinary) length(data, base uint64) (int, error) {
	if data == 0 || base == 0 {
		return 0, nil
	}
	word, err := j.d.ExtractUInt(base + uint64(j.desc.Off("length")))
	if err != nil {
		return 0, err
	}
	n := int(cutBits(word, 1, 31))
	return n, j.d.Check(n <= maxHashSize, "json container size")
}

func (j *jsonBinary) table(base uint64) (uint64, error) {
	off, err := j.d.ExtractUInt(base + uint64(j.desc.Off("tableOffset")))
	return base + off, err
}

// putValue renders the packed value pv stored in the container at base.
func (j *jsonBinary) putValue(data, base, pv uint64) error {
	d := j.d
	t := j.field(pv, "type", j.desc.Off("typeBits"))
	latinOrInt := j.field(pv, "latin", 1) != 0
	payload := j.field(pv, "value", j.desc.Off("valueBits"))
	switch t {
	case jsonNull:
		d.PutType("QJsonValue (Null)")
		d.PutValue("Null")
		d.PutNumChild(0)
	case jsonBool:
		d.PutType("QJsonValue (Bool)")
		d.PutValue(strconv.FormatBool(payload != 0))
		d.PutNumChild(0)
	case jsonNumber:
		d.PutType("QJsonValue (Number)")
		if latinOrInt {
			d.PutValue(output.Itoa(typemodel.SignExtend(payload, j.desc.Off("valueBits"))))
		} else {
			bits, err := d.ExtractUInt64(base + payload)
			if err != nil {
				return err
			}
			d.PutValue(formatFloat(math.Float64frombits(bits)))
		}
		d.PutNumChild(0)
	case jsonString:
		d.PutType("QJsonValue (String)")
		s, enc, err := j.string(base+payload, latinOrInt)
		if err != nil {
			return err
		}
		d.PutEncodedValue(s, enc, 0)
		d.PutNumChild(0)
	case jsonArray:
		d.PutType("QJsonValue (Array)")
		return j.putArray(data, base+payload)
	case jsonObject:
		d.PutType("QJsonValue (Object)")
		return j.putObject(data, base+payload)
	default:
		d.PutType("QJsonValue (Undefined)")
		d.PutEmptyValue()
		d.PutNumChild(0)
	}
	return nil
}

// string reads a length prefixed string: a 16 bit count of Latin-1 bytes
// or a 32 bit count of UTF-16 units.
func (j *jsonBinary) string(addr uint64, latin bool) (string, output.Encoding, error) {
	d := j.d
	if latin {
		n, err := d.ExtractUShort(addr)
		if err != nil {
			return "", "", err
		}
		data, err := d.ReadMemory(addr+2, int(min(n, uint64(d.StringLimit()))))
		return output.Hex(data), output.Latin1, err
	}
	n, err := d.ExtractUInt(addr)
	if err != nil {
		return "", "", err
	}
	if err := d.Check(n <= maxByteArraySize, "json string size"); err != nil {
		return "", "", err
	}
	data, err := d.ReadMemory(addr+4, 2*int(min(n, uint64(d.StringLimit()))))
	return output.Hex(data), output.UTF16, err
}

func (j *jsonBinary) putArray(data, array uint64) error {
	d := j.d
	n, err := j.length(data, array)
	if err != nil {
		return err
	}
	d.PutItemCount(n)
	if n == 0 || !d.IsExpanded() {
		return nil
	}
	table, err := j.table(array)
	if err != nil {
		return err
	}
	entry := uint64(j.desc.Off("entrySize"))
	return d.Children(n, maxJSONChildren, func(i int) error {
		return d.SubItem(output.Itoa(int64(i)), func() error {
			pv, err := d.ExtractUInt(table + entry*uint64(i))
			if err != nil {
				return err
			}
			return j.putValue(data, array, pv)
		})
	})
}

// putObject renders the entries of an object. An entry is the packed
// value followed by its key.
func (j *jsonBinary) putObject(data, obj uint64) error {
	d := j.d
	n, err := j.length(data, obj)
	if err != nil {
		return err
	}
	d.PutItemCount(n)
	if n == 0 || !d.IsExpanded() {
		return nil
	}
	table, err := j.table(obj)
	if err != nil {
		return err
	}
	entry := uint64(j.desc.Off("entrySize"))
	return d.Children(n, maxJSONChildren, func(i int) error {
		return d.SubItem(output.Itoa(int64(i)), func() error {
			off, err := d.ExtractUInt(table + entry*uint64(i))
			if err != nil {
				return err
			}
			start := obj + off
			pv, err := d.ExtractUInt(start)
			if err != nil {
				return err
			}
			key, enc, err := j.string(start+entry, j.field(pv, "key", 1) != 0)
			if err != nil {
				return err
			}
			d.PutField(output.KeyKey, key)
			d.PutField(output.KeyKeyEncoded, string(enc))
			return j.putValue(data, obj, pv)
		})
	})
}

func dumpJSONValue(d *dump.Dumper, v *typemodel.Value) error {
	t, err := memberInt(d, v, "t")
	if err != nil {
		return err
	}
	switch t {
	case jsonNull:
		d.PutType("QJsonValue (Null)")
		d.PutValue("Null")
		d.PutNumChild(0)
		return nil
	case jsonBool:
		b, err := memberInt(d, v, "b")
		if err != nil {
			return err
		}
		d.PutType("QJsonValue (Bool)")
		d.PutValue(strconv.FormatBool(b != 0))
		d.PutNumChild(0)
		return nil
	case jsonNumber:
		f, err := memberFloat(d, v, "dbl")
		if err != nil {
			return err
		}
		d.PutType("QJsonValue (Number)")
		d.PutValue(formatFloat(f))
		d.PutNumChild(0)
		return nil
	case jsonString:
		addr, err := memberPointer(d, v, "stringData")
		if err != nil {
			return err
		}
		d.PutType("QJsonValue (String)")
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
	case jsonArray, jsonObject:
		data, err := memberPointer(d, v, "d")
		if err != nil {
			return err
		}
		base, err := memberPointer(d, v, "base")
		if err != nil {
			return err
		}
		j, err := newJSONBinary(d)
		if err != nil {
			return err
		}
		if t == jsonArray {
			d.PutType("QJsonValue (Array)")
			return j.putArray(data, base)
		}
		d.PutType("QJsonValue (Object)")
		return j.putObject(data, base)
	}
	d.PutType("QJsonValue (Undefined)")
	d.PutEmptyValue()
	d.PutNumChild(0)
	return nil
}

// jsonContainer decodes QJsonArray and QJsonObject, which hold the
// document data and the container base in members d and member.
func jsonContainer(member string, object bool) dump.DecoderFunc {
	return func(d *dump.Dumper, v *typemodel.Value) error {
		data, err := memberPointer(d, v, "d")
		if err != nil {
			return err
		}
		base, err := memberPointer(d, v, member)
		if err != nil {
			return err
		}
		j, err := newJSONBinary(d)
		if err != nil {
			return err
		}
		if object {
			return j.putObject(data, base)
		}
		return j.putArray(data, base)
	}
}

var (
	dumpJSONArray  = jsonContainer("a", false)
	dumpJSONObject = jsonContainer("o", true)
)
