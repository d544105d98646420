// Package qttypes holds the decoders for Qt's container, string and value
// classes. Private layouts come from the layout table; every count read
// from the debuggee is validated before it drives further reads.
package qttypes

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

// Register installs every decoder of the package into reg.
func Register(reg *dump.Registry) {
	registerScalars(reg)
	registerStrings(reg)
	registerSequences(reg)
	registerHashes(reg)
	registerMaps(reg)
	registerDateTime(reg)
	registerFiles(reg)
	registerNetwork(reg)
	registerGeometry(reg)
	registerImages(reg)
	registerPointers(reg)
	registerJSON(reg)
	registerObjects(reg)
}

// Limits shared by the container decoders.
const (
	maxByteArraySize = 100000000
	maxContainerSize = 1000000000
	maxHashSize      = 100000000
)

// readPtr returns the pointer stored at byte offset off of v. Values without
// an address are decoded from their contents.
func readPtr(d *dump.Dumper, v *typemodel.Value, off int64) (uint64, error) {
	if addr, ok := v.Address(); ok {
		return d.ExtractPointer(addr + uint64(off))
	}
	return readSnapshot(d, v, off, d.PtrSize())
}

// readInt returns the 32-bit signed integer at byte offset off of v.
func readInt(d *dump.Dumper, v *typemodel.Value, off int64) (int64, error) {
	if addr, ok := v.Address(); ok {
		return d.ExtractInt(addr + uint64(off))
	}
	u, err := readSnapshot(d, v, off, 4)
	return int64(int32(u)), err
}

func readSnapshot(d *dump.Dumper, v *typemodel.Value, off int64, size int) (uint64, error) {
	data, err := d.Data(v)
	if err != nil {
		return 0, err
	}
	if off < 0 || int(off)+size > len(data) {
		return 0, d.Check(false, fmt.Sprintf("offset %d beyond value", off))
	}
	return typemodel.DecodeUint(data[off:int(off)+size], d.Mem().ByteOrder())
}

// dPtr returns the first pointer of v, the d-pointer of most Qt classes.
func dPtr(d *dump.Dumper, v *typemodel.Value) (uint64, error) {
	return readPtr(d, v, 0)
}

// signedPointer reads a qptrdiff.
func signedPointer(d *dump.Dumper, addr uint64) (int64, error) {
	u, err := d.ExtractPointer(addr)
	if err != nil {
		return 0, err
	}
	if d.PtrSize() == 4 {
		return int64(int32(u)), nil
	}
	return int64(u), nil
}

// arrayData is the decoded header of a QArrayData-like block.
type arrayData struct {
	data  uint64
	size  int64
	alloc int64
}

// readArrayData decodes the header at addr with the descriptor name
// (layout.ArrayData or layout.VectorData).
func readArrayData(d *dump.Dumper, addr uint64, name string) (arrayData, error) {
	desc, err := d.Layout(name)
	if err != nil {
		return arrayData{}, err
	}
	if err := d.Check(addr != 0, "null data header"); err != nil {
		return arrayData{}, err
	}
	var a arrayData
	if a.size, err = d.ExtractInt(addr + uint64(desc.Off("size"))); err != nil {
		return arrayData{}, err
	}
	if a.alloc, err = d.ExtractInt(addr + uint64(desc.Off("alloc"))); err != nil {
		return arrayData{}, err
	}
	if desc.Has("allocMask") {
		a.alloc &= desc.Off("allocMask")
	}
	switch desc.Off("dataMode") {
	case layout.DataRelative:
		off, err := signedPointer(d, addr+uint64(desc.Off("data")))
		if err != nil {
			return arrayData{}, err
		}
		a.data = addr + uint64(off)
	case layout.DataInline:
		a.data = addr + uint64(desc.Off("data"))
	default:
		if a.data, err = d.ExtractPointer(addr + uint64(desc.Off("data"))); err != nil {
			return arrayData{}, err
		}
	}
	return a, nil
}

// checkArray requires 0 <= size <= alloc <= limit.
func checkArray(d *dump.Dumper, a arrayData, limit int64) error {
	return d.Check(a.size >= 0 && a.size <= a.alloc && a.alloc <= limit,
		fmt.Sprintf("size %d, alloc %d", a.size, a.alloc))
}

// checkByteArray is checkArray for byte and string data, where alloc 0
// marks raw data not owned by the header.
func checkByteArray(d *dump.Dumper, a arrayData, limit int64) error {
	return d.Check(a.size >= 0 && a.size <= limit && a.alloc <= limit && (a.alloc == 0 || a.size <= a.alloc),
		fmt.Sprintf("size %d, alloc %d", a.size, a.alloc))
}

// byteArrayData decodes the QByteArray whose object lives at addr.
func byteArrayData(d *dump.Dumper, addr uint64) (arrayData, error) {
	header, err := d.ExtractPointer(addr)
	if err != nil {
		return arrayData{}, err
	}
	a, err := readArrayData(d, header, layout.ArrayData)
	if err != nil {
		return arrayData{}, err
	}
	return a, checkByteArray(d, a, maxByteArraySize)
}

// stringData decodes the QString whose object lives at addr. Sizes are in
// UTF-16 code units.
func stringData(d *dump.Dumper, addr uint64) (arrayData, error) {
	return byteArrayData(d, addr)
}

// encodeBytes reads up to limit bytes of a and returns them as hex with the
// elided length.
func encodeBytes(d *dump.Dumper, a arrayData, limit int) (string, int, error) {
	n := min(int(a.size), limit)
	data, err := d.ReadMemory(a.data, n)
	if err != nil {
		return "", 0, err
	}
	elided := 0
	if n < int(a.size) {
		elided = int(a.size)
	}
	return output.Hex(data), elided, nil
}

// encodeUTF16 reads up to limit code units of a.
func encodeUTF16(d *dump.Dumper, a arrayData, limit int) (string, int, error) {
	n := min(int(a.size), limit)
	data, err := d.ReadMemory(a.data, 2*n)
	if err != nil {
		return "", 0, err
	}
	elided := 0
	if n < int(a.size) {
		elided = int(a.size)
	}
	return output.Hex(data), elided, nil
}

// encodeString returns the hex UTF-16 contents of the QString at addr.
func encodeString(d *dump.Dumper, addr uint64, limit int) (string, error) {
	a, err := stringData(d, addr)
	if err != nil {
		return "", err
	}
	s, _, err := encodeUTF16(d, a, limit)
	return s, err
}

// putStringValue shows the QString at addr as the current value.
func putStringValue(d *dump.Dumper, addr uint64) (arrayData, error) {
	a, err := stringData(d, addr)
	if err != nil {
		return arrayData{}, err
	}
	s, elided, err := encodeUTF16(d, a, d.StringLimit())
	if err != nil {
		return arrayData{}, err
	}
	d.PutEncodedValue(s, output.UTF16, elided)
	return a, nil
}

// putByteArrayValue shows the QByteArray at addr as the current value.
func putByteArrayValue(d *dump.Dumper, addr uint64) (arrayData, error) {
	a, err := byteArrayData(d, addr)
	if err != nil {
		return arrayData{}, err
	}
	s, elided, err := encodeBytes(d, a, d.StringLimit())
	if err != nil {
		return arrayData{}, err
	}
	d.PutEncodedValue(s, output.Latin1, elided)
	return a, nil
}

// memberInt returns the integer member name of v.
func memberInt(d *dump.Dumper, v *typemodel.Value, name string) (int64, error) {
	m, err := d.Member(v, name)
	if err != nil {
		return 0, err
	}
	return d.Int(m)
}

func memberFloat(d *dump.Dumper, v *typemodel.Value, name string) (float64, error) {
	m, err := d.Member(v, name)
	if err != nil {
		return 0, err
	}
	return d.Float(m)
}

func memberPointer(d *dump.Dumper, v *typemodel.Value, name string) (uint64, error) {
	m, err := d.Member(v, name)
	if err != nil {
		return 0, err
	}
	return d.Pointer(m)
}

// formatFloat prints f the way the front end expects: integral values
// keep a ".0" suffix.
func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// qtEnum spells an enumerator of the Qt namespace for a call argument.
func qtEnum(d *dump.Dumper, name string) string {
	return d.QtNamespace() + "Qt::" + name
}

// alignUp rounds off up to a multiple of align.
func alignUp(off, align int64) int64 {
	if align <= 1 {
		return off
	}
	return (off + align - 1) / align * align
}

// keyValueOffsets returns the offsets of a key and a value stored
// consecutively from start.
func keyValueOffsets(start int64, key, value *typemodel.Type) (int64, int64) {
	k := alignUp(start, key.Alignment())
	v := alignUp(k+key.Size(), value.Alignment())
	return k, v
}

// movableTypes are stored in place by QList when they fit a pointer.
var movableTypes = map[string]bool{
	"QBrush": true, "QBitArray": true, "QByteArray": true, "QCustomTypeInfo": true,
	"QChar": true, "QDate": true, "QDateTime": true, "QFileInfo": true, "QFixed": true,
	"QFixedPoint": true, "QFixedSize": true, "QHashDummyValue": true, "QIcon": true,
	"QImage": true, "QLine": true, "QLineF": true, "QLatin1Char": true, "QLocale": true,
	"QMatrix": true, "QModelIndex": true, "QPoint": true, "QPointF": true, "QPen": true,
	"QPersistentModelIndex": true, "QResourceRoot": true, "QRect": true, "QRectF": true,
	"QRegExp": true, "QSize": true, "QSizeF": true, "QString": true, "QTime": true,
	"QTextBlock": true, "QUrl": true, "QVariant": true, "QXmlStreamAttribute": true,
	"QXmlStreamNamespaceDeclaration": true, "QXmlStreamNotationDeclaration": true,
	"QXmlStreamEntityDeclaration": true,
}

func isMovable(d *dump.Dumper, t *typemodel.Type) bool {
	switch t.Stripped().Code {
	case typemodel.CodePointer, typemodel.CodeIntegral, typemodel.CodeFloat, typemodel.CodeEnum:
		return true
	}
	return movableTypes[dump.NormalizeTypeName(t.Name, d.QtNamespace())]
}

// isSimple reports whether t renders as a plain scalar.
func isSimple(t *typemodel.Type) bool {
	switch t.Stripped().Code {
	case typemodel.CodeIntegral, typemodel.CodeFloat, typemodel.CodeEnum, typemodel.CodeBitfield:
		return true
	}
	return false
}

// putSimpleValue shows the scalar v as the current value.
func putSimpleValue(d *dump.Dumper, v *typemodel.Value) error {
	st := v.Type.Stripped()
	switch {
	case st.Code == typemodel.CodeFloat:
		f, err := d.Float(v)
		if err != nil {
			return err
		}
		d.PutValue(formatFloat(f))
	case st.Code == typemodel.CodeEnum:
		n, err := d.Int(v)
		if err != nil {
			return err
		}
		d.PutValue(st.EnumDisplay(n))
	case st.Name == "bool":
		n, err := d.Int(v)
		if err != nil {
			return err
		}
		d.PutValue(strconv.FormatBool(n != 0))
	case !st.Signed:
		n, err := d.Uint(v)
		if err != nil {
			return err
		}
		d.PutValue(strconv.FormatUint(n, 10))
	default:
		n, err := d.Int(v)
		if err != nil {
			return err
		}
		d.PutValue(output.Itoa(n))
	}
	return nil
}

// lookupOr resolves the first of names the debugger knows.
func lookupOr(d *dump.Dumper, names ...string) (*typemodel.Type, error) {
	var err error
	for _, n := range names {
		var t *typemodel.Type
		if t, err = d.LookupType(n); err == nil || errors.IsFatal(err) {
			return t, err
		}
	}
	return nil, err
}

// withChildren runs fn once when the current item is expanded, for
// decoders whose children are a fixed list rather than an index range.
func withChildren(d *dump.Dumper, fn func() error) error {
	return d.Children(1, 0, func(int) error { return fn() })
}

// callItems renders one call child per {name, method} pair.
func callItems(d *dump.Dumper, v *typemodel.Value, calls [][2]string) error {
	for _, c := range calls {
		if err := d.PutCallItem(c[0], "", v, c[1]); err != nil {
			return err
		}
	}
	return nil
}

// findMember looks up name in v and then in its base classes, depth
// first.
func findMember(d *dump.Dumper, v *typemodel.Value, name string) (*typemodel.Value, error) {
	if m, err := d.Member(v, name); err == nil {
		return m, nil
	}
	for _, f := range v.Type.Stripped().Fields() {
		if !f.IsBaseClass {
			continue
		}
		if m, err := findMember(d, v.Field(f), name); err == nil {
			return m, nil
		}
	}
	return d.Member(v, name)
}
