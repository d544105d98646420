package variant

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

// maxTypeNameLen bounds the meta type name read from the debuggee.
const maxTypeNameLen = 512

// Register installs the QVariant decoder into reg.
func Register(reg *dump.Registry) {
	reg.RegisterFunc("QVariant", dumpVariant)
}

// private is the decoded QVariant::Private of one value.
type private struct {
	// data is the address of the data union, 0 for values without one.
	data      uint64
	blob      []byte
	tag       int64
	shared    bool
	sharedPtr int64
}

func readPrivate(d *dump.Dumper, v *typemodel.Value) (private, error) {
	desc, err := d.Layout(layout.VariantPrivate)
	if err != nil {
		return private{}, err
	}
	raw, err := d.Data(v)
	if err != nil {
		return private{}, err
	}
	dataOff, word := desc.Off("data"), desc.Off("typeWord")
	if err := d.Check(int64(len(raw)) >= max(dataOff+8, word+4), "short variant"); err != nil {
		return private{}, err
	}
	w := uint64(d.Mem().ByteOrder().Uint32(raw[word : word+4]))
	p := private{
		blob:      raw[dataOff : dataOff+8],
		tag:       int64(w & (1<<uint(desc.Off("typeBits")) - 1)),
		shared:    w>>uint(desc.Off("isSharedBit"))&1 != 0,
		sharedPtr: desc.Off("sharedPtr"),
	}
	if addr, ok := v.Address(); ok {
		p.data = addr + uint64(dataOff)
	}
	return p, nil
}

func dumpVariant(d *dump.Dumper, v *typemodel.Value) error {
	p, err := readPrivate(d, v)
	if err != nil {
		return err
	}
	ver, err := d.QtVersion()
	if err != nil {
		return err
	}
	c := Classify(p.tag, ver)
	d.Logger().Debug("variant", "iname", d.IName(), "tag", p.tag, "kind", c.Kind, "name", c.Name)

	switch c.Kind {
	case Invalid:
		d.PutType(d.QtNamespace() + "QVariant (invalid)")
		d.PutValue("(invalid)")
		d.PutNumChild(0)
		return nil
	case BuiltinScalar:
		return putScalar(d, c, p)
	case BuiltinContainer:
		return putBuiltin(d, c, p)
	}
	return putUserType(d, p)
}

func label(d *dump.Dumper, name string) string {
	return d.QtNamespace() + "QVariant (" + name + ")"
}

// sharedPayload follows the shared private stored in the data union to
// the payload.
func sharedPayload(d *dump.Dumper, p private) (uint64, error) {
	shared, err := typemodel.DecodeUint(p.blob[:d.PtrSize()], d.Mem().ByteOrder())
	if err != nil {
		return 0, err
	}
	if err := d.Check(shared != 0, "null shared variant data"); err != nil {
		return 0, err
	}
	return d.ExtractPointer(shared + uint64(p.sharedPtr))
}

// longSize is the width of C long on the target.
func longSize(d *dump.Dumper) int {
	if d.IsWindows() {
		return 4
	}
	return d.PtrSize()
}

func putScalar(d *dump.Dumper, c Class, p private) error {
	blob := p.blob
	if c.Indirect {
		payload, err := sharedPayload(d, p)
		if err != nil {
			return err
		}
		if blob, err = d.ReadMemory(payload, 8); err != nil {
			return err
		}
	}
	order := d.Mem().ByteOrder()
	unsigned := func(size int) uint64 {
		u, _ := typemodel.DecodeUint(blob[:size], order)
		return u
	}
	signed := func(size int) int64 {
		return typemodel.SignExtend(unsigned(size), int64(8*size))
	}

	var s string
	switch c.Scalar {
	case Bool:
		s = strconv.FormatBool(blob[0] != 0)
	case Int:
		s = output.Itoa(signed(4))
	case UInt:
		s = strconv.FormatUint(unsigned(4), 10)
	case LongLong:
		s = output.Itoa(signed(8))
	case ULongLong:
		s = strconv.FormatUint(unsigned(8), 10)
	case Double:
		s = strconv.FormatFloat(math.Float64frombits(unsigned(8)), 'g', -1, 64)
	case VoidStar:
		s = fmt.Sprintf("0x%x", unsigned(d.PtrSize()))
	case Long:
		s = output.Itoa(signed(longSize(d)))
	case ULong:
		s = strconv.FormatUint(unsigned(longSize(d)), 10)
	case Short:
		s = output.Itoa(signed(2))
	case UShort:
		s = strconv.FormatUint(unsigned(2), 10)
	case Char, UChar:
		s = strconv.FormatUint(unsigned(1), 10)
	case Float:
		s = strconv.FormatFloat(float64(math.Float32frombits(uint32(unsigned(4)))), 'g', -1, 32)
	default:
		return d.Check(false, "unknown scalar "+c.Name)
	}
	d.PutType(label(d, c.Name))
	d.PutValue(s)
	d.PutNumChild(0)
	return nil
}

// payloadValue returns the payload of p as a value of type t: behind the
// shared private when the variant is shared, in the data union otherwise.
func payloadValue(d *dump.Dumper, p private, t *typemodel.Type) (*typemodel.Value, error) {
	if p.shared {
		addr, err := sharedPayload(d, p)
		if err != nil {
			return nil, err
		}
		return d.CreateValue(addr, t), nil
	}
	if p.data != 0 {
		return d.CreateValue(p.data, t), nil
	}
	n := min(max(t.Size(), 0), int64(len(p.blob)))
	return typemodel.NewSnapshot(t, p.blob[:n]), nil
}

// putBuiltin shows a known library class through its own decoder.
func putBuiltin(d *dump.Dumper, c Class, p private) error {
	ns := d.QtNamespace()
	inner, err := d.LookupQtType(c.Name)
	if err != nil && !errors.IsFatal(err) {
		if alt, ok := typedefFallbacks[c.Name]; ok {
			inner, err = d.LookupType(fmt.Sprintf(alt, ns))
		}
	}
	if err != nil {
		if errors.IsFatal(err) {
			return err
		}
		d.PutType(label(d, c.Name))
		d.PutSpecialValue(output.NotAccessible, "")
		d.PutNumChild(0)
		return nil
	}
	payload, err := payloadValue(d, p, inner)
	if err != nil {
		return err
	}
	if err := d.PutItem(payload); err != nil {
		return err
	}
	d.PutType(label(d, c.Name))
	return nil
}

// putUserType resolves the tag through the meta type system and shows the
// payload as a "data" child. The payload is rendered past the variant
// decoder, so a corrupt tag ends here.
func putUserType(d *dump.Dumper, p private) error {
	if !d.CanCall() {
		d.PutType(d.QtNamespace() + "QVariant")
		d.PutSpecialValue(output.NotCallable, "")
		d.PutNumChild(0)
		return nil
	}
	name, err := metaTypeName(d, p.tag)
	if err != nil {
		d.PutType(d.QtNamespace() + "QVariant")
		return err
	}
	d.PutType(label(d, name))
	t, err := d.LookupType(name)
	if err != nil {
		return err
	}
	payload, err := payloadValue(d, p, t)
	if err != nil {
		return err
	}
	d.PutEmptyValue()
	d.PutNumChild(1)
	return d.Children(1, 0, func(int) error {
		return d.SubItem("data", func() error {
			return d.PutItemWithout(payload, "QVariant")
		})
	})
}

// metaTypeName asks the debuggee for the registered name of tag.
func metaTypeName(d *dump.Dumper, tag int64) (string, error) {
	ns := d.QtNamespace()
	exprs := []string{
		fmt.Sprintf("((const char *(*)(int))%sQMetaType::typeName)(%d)", ns, tag),
		fmt.Sprintf("%sQMetaType::typeName(%d)", ns, tag),
	}
	var lastErr error
	for _, expr := range exprs {
		res, err := d.Evaluate(expr)
		if err != nil {
			if errors.IsFatal(err) {
				return "", err
			}
			lastErr = err
			continue
		}
		ptr, err := d.Pointer(res)
		if err != nil {
			return "", err
		}
		raw, err := readCString(d, ptr, maxTypeNameLen)
		if err != nil {
			return "", err
		}
		if raw == "" {
			return "", errors.UnresolvableType(fmt.Sprintf("variant type %d", tag))
		}
		return fixTypeName(raw, ns), nil
	}
	return "", lastErr
}

func readCString(d *dump.Dumper, addr uint64, limit int) (string, error) {
	if err := d.Check(addr != 0, "null string"); err != nil {
		return "", err
	}
	return d.ReadCString(addr, limit)
}

var (
	qtClassPrefix = regexp.MustCompile(`\bQ`)
	uintWord      = regexp.MustCompile(`\buint\b`)
)

// fixTypeName turns a meta type name into one the debugger resolves.
func fixTypeName(name, ns string) string {
	name = strings.ReplaceAll(name, "COMMA", ",")
	name = strings.ReplaceAll(name, " ,", ",")
	name = uintWord.ReplaceAllString(name, "unsigned int")
	if ns != "" {
		name = qtClassPrefix.ReplaceAllString(name, ns+"Q")
	}
	return name
}
