package dump

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

// PutItem renders v into the current item: through its registered decoder
// when fancy output is on, structurally otherwise.
func (d *Dumper) PutItem(v *typemodel.Value) error {
	return d.putItem(v)
}

// PutItemWithout renders v like PutItem but never through the decoders
// registered for names. The variant payload path uses it so a payload
// cannot route back into the variant decoder.
func (d *Dumper) PutItemWithout(v *typemodel.Value, names ...string) error {
	saved := d.excluded
	for _, n := range names {
		d.excluded = append(d.excluded, NormalizeTypeName(n, ""))
	}
	defer func() { d.excluded = saved }()
	return d.putItem(v)
}

// lookupDecoder finds the decoder for t: the typedef name first, then the
// structural name.
func (d *Dumper) lookupDecoder(t *typemodel.Type) (Decoder, string, bool) {
	for cur := t; cur != nil; cur = cur.Target {
		if cur.Name != "" {
			if dec, key, ok := d.s.decoders.Lookup(cur.Name, d.ns); ok && !d.isExcluded(key) {
				return dec, key, true
			}
		}
		if cur.Code != typemodel.CodeTypedef {
			break
		}
	}
	return nil, "", false
}

func (d *Dumper) isExcluded(key string) bool {
	for _, k := range d.excluded {
		if k == key {
			return true
		}
	}
	return false
}

func (d *Dumper) putItem(v *typemodel.Value) error {
	if v == nil || v.Type == nil {
		d.PutType("")
		d.PutSpecialValue(output.NotAccessible, "")
		d.PutNumChild(0)
		return nil
	}
	t := v.Type
	if t.Code == typemodel.CodeUnresolvable {
		d.PutType("")
		d.PutSpecialValue(output.NotAccessible, "")
		d.PutNumChild(0)
		return nil
	}
	d.s.reportType(t)
	d.PutType(t.Name)

	if v.OptimizedOut {
		d.PutSpecialValue(output.OptimizedOut, "")
		d.PutNumChild(0)
		return nil
	}
	if !v.Addressable {
		d.PutSpecialValue(output.NotAccessible, "")
		d.PutNumChild(0)
		return nil
	}

	if d.req.Fancy {
		if dec, key, ok := d.lookupDecoder(t); ok {
			d.s.counts[key]++
			return dec.Decode(d, v)
		}
	}

	st := t.Stripped()
	if d.req.Fancy && (st.Code == typemodel.CodeStruct || st.Code == typemodel.CodeUnion) {
		for _, fb := range d.s.decoders.fallbacks {
			handled, err := fb(d, v)
			if err != nil || handled {
				return err
			}
		}
	}

	switch st.Code {
	case typemodel.CodeVoid:
		d.PutEmptyValue()
		d.PutNumChild(0)
		return nil
	case typemodel.CodeIntegral, typemodel.CodeEnum, typemodel.CodeBitfield:
		return d.putInteger(v, st)
	case typemodel.CodeFloat:
		f, err := v.Float(d.ctx, d.s)
		if err != nil {
			return err
		}
		d.PutValue(strconv.FormatFloat(f, 'g', -1, floatBits(st)))
		d.PutNumChild(0)
		return nil
	case typemodel.CodeComplex:
		return d.putComplex(v, st)
	case typemodel.CodePointer:
		return d.putPointer(v, st)
	case typemodel.CodeReference:
		return d.putReference(v, t)
	case typemodel.CodeArray:
		return d.putArray(v, st)
	case typemodel.CodeStruct, typemodel.CodeUnion:
		d.PutEmptyValue()
		d.PutNumChild(len(st.Fields()))
		if d.IsExpanded() {
			return d.PutFields(v)
		}
		return nil
	case typemodel.CodeFunction:
		if addr, ok := v.Address(); ok {
			d.PutValue(fmt.Sprintf("0x%x", addr))
		} else {
			d.PutEmptyValue()
		}
		d.PutNumChild(0)
		return nil
	}
	return errors.UnresolvableType(t.Name)
}

func floatBits(t *typemodel.Type) int {
	if t.Size() == 4 {
		return 32
	}
	return 64
}

func (d *Dumper) putInteger(v *typemodel.Value, st *typemodel.Type) error {
	n, err := v.Integer(d.ctx, d.s)
	if err != nil {
		return err
	}
	base := st
	if st.Code == typemodel.CodeBitfield && st.Target != nil {
		base = st.Target.Stripped()
	}
	switch {
	case base.Code == typemodel.CodeEnum:
		d.PutValue(base.EnumDisplay(n))
	case base.Name == "bool":
		d.PutValue(boolString(n != 0))
	case !base.Signed && st.Code != typemodel.CodeBitfield && st.Size() == 8:
		d.PutValue(strconv.FormatUint(uint64(n), 10))
	default:
		d.PutValue(output.Itoa(n))
	}
	d.PutNumChild(0)
	return nil
}

func (d *Dumper) putComplex(v *typemodel.Value, st *typemodel.Type) error {
	data, err := v.Data(d.ctx, d.s)
	if err != nil {
		return err
	}
	half := len(data) / 2
	part := func(b []byte) float64 {
		switch len(b) {
		case 4:
			return float64(math.Float32frombits(d.s.order.Uint32(b)))
		case 8:
			return math.Float64frombits(d.s.order.Uint64(b))
		}
		return math.NaN()
	}
	re, im := part(data[:half]), part(data[half:])
	bits := 64
	if half == 4 {
		bits = 32
	}
	d.PutValue(strconv.FormatFloat(re, 'g', -1, bits) + " + " + strconv.FormatFloat(im, 'g', -1, bits) + "i")
	d.PutNumChild(0)
	return nil
}

// charSize returns the code unit size of a character type, 0 for other
// types.
func charSize(t *typemodel.Type) int {
	t = t.Stripped()
	if t.Code != typemodel.CodeIntegral {
		return 0
	}
	name := strings.TrimPrefix(t.Name, "const ")
	switch name {
	case "char", "signed char", "unsigned char", "char8_t":
		return 1
	case "char16_t":
		return 2
	case "char32_t":
		return 4
	case "wchar_t":
		return int(t.Size())
	}
	return 0
}

func charEncoding(size int) output.Encoding {
	switch size {
	case 2:
		return output.UTF16
	case 4:
		return output.UCS4
	}
	return output.Latin1
}

func (d *Dumper) putPointer(v *typemodel.Value, st *typemodel.Type) error {
	p, err := v.Pointer(d.ctx, d.s)
	if err != nil {
		return err
	}
	if p == 0 {
		d.PutValue("0x0")
		d.PutNumChild(0)
		return nil
	}
	target := st.Target
	if target == nil {
		target = typemodel.Unresolvable("")
	}
	stripped := target.Stripped()

	if cs := charSize(stripped); cs > 0 {
		if err := d.PutCharPointer(p, cs); err != nil {
			return err
		}
		d.PutNumChild(0)
		return nil
	}
	if stripped.Code == typemodel.CodeVoid || stripped.Code == typemodel.CodeFunction || stripped.Code == typemodel.CodeUnresolvable {
		d.PutValue(fmt.Sprintf("0x%x", p))
		d.PutNumChild(0)
		return nil
	}

	pointee, err := d.Deref(v)
	if err != nil {
		return err
	}
	if d.req.AutoDeref && pointee.Addressable {
		d.PutField("origaddr", fmt.Sprintf("0x%x", p))
		return d.putItem(pointee)
	}
	d.PutValue(fmt.Sprintf("0x%x", p))
	d.PutNumChild(1)
	if !d.IsExpanded() {
		return nil
	}
	d.Item().Expand()
	name, _ := d.Item().Get(output.KeyName)
	return d.subItem("*", "*"+name, func() error {
		return d.putItem(pointee)
	})
}

func (d *Dumper) putReference(v *typemodel.Value, t *typemodel.Type) error {
	addr, ok := v.Address()
	if ok && addr == 0 {
		d.PutSpecialValue(output.Null, "")
		d.PutNumChild(0)
		return nil
	}
	target, err := d.Deref(v)
	if err != nil {
		return err
	}
	if err := d.putItem(target); err != nil {
		return err
	}
	d.PutType(t.Name)
	return nil
}

func (d *Dumper) putArray(v *typemodel.Value, st *typemodel.Type) error {
	elem := st.Target
	n := int(st.Length)
	if elem == nil || n < 0 {
		return errors.UnresolvableType(st.Name)
	}
	size := elem.Size()
	if cs := charSize(elem); cs > 0 {
		if addr, ok := v.Address(); ok {
			if err := d.PutCharArray(addr, n, cs, true); err != nil {
				return err
			}
		} else {
			data, err := v.Data(d.ctx, d.s)
			if err != nil {
				return err
			}
			d.putChars(data, cs, n)
		}
	} else {
		d.PutEmptyValue()
	}
	d.PutNumChild(n)
	return d.Children(n, 0, func(i int) error {
		f := typemodel.NewField("", elem, int64(i)*size*8, 0)
		return d.PutSubItem(output.Itoa(int64(i)), v.Field(f))
	})
}

// PutCharPointer shows the zero-terminated string at addr, at most the
// display limit. It reads in small chunks so a string close to the end
// of a mapping stays readable.
func (d *Dumper) PutCharPointer(addr uint64, charSize int) error {
	const chunk = 16
	limit := d.stringLimit * charSize
	var text []byte
	for len(text) < limit {
		data, err := d.ReadMemory(addr+uint64(len(text)), min(chunk, limit-len(text)))
		if err != nil {
			if len(text) == 0 || errors.IsFatal(err) {
				return err
			}
			break
		}
		end, found := zeroTerminated(data, charSize)
		text = append(text, data[:end]...)
		if found {
			d.PutEncodedValue(output.Hex(text), charEncoding(charSize), 0)
			return nil
		}
	}
	d.PutEncodedValue(output.Hex(text), charEncoding(charSize), -1)
	return nil
}

// PutCharArray shows n characters of charSize bytes at addr. With
// stopAtZero the text ends at the first NUL.
func (d *Dumper) PutCharArray(addr uint64, n, charSize int, stopAtZero bool) error {
	shown := min(n, d.stringLimit)
	data, err := d.ReadMemory(addr, shown*charSize)
	if err != nil {
		return err
	}
	if stopAtZero {
		end, _ := zeroTerminated(data, charSize)
		data = data[:end]
	}
	elided := 0
	if shown < n {
		elided = n
	}
	d.PutEncodedValue(output.Hex(data), charEncoding(charSize), elided)
	return nil
}

// putChars shows a snapshot character array up to its first NUL.
func (d *Dumper) putChars(data []byte, charSize, n int) {
	end, _ := zeroTerminated(data, charSize)
	elided := 0
	if limit := d.stringLimit * charSize; end > limit {
		end = limit
		elided = n
	}
	d.PutEncodedValue(output.Hex(data[:end]), charEncoding(charSize), elided)
}

// zeroTerminated returns the byte length of the text before the first zero
// code unit.
func zeroTerminated(data []byte, charSize int) (int, bool) {
	for i := 0; i+charSize <= len(data); i += charSize {
		zero := true
		for _, b := range data[i : i+charSize] {
			if b != 0 {
				zero = false
				break
			}
		}
		if zero {
			return i, true
		}
	}
	return len(data) - len(data)%charSize, false
}
