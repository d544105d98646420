package qttypes

import (
	"fmt"

	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

// maxMapChildren bounds the nodes visited per expanded map.
const maxMapChildren = 10000

func registerMaps(reg *dump.Registry) {
	reg.RegisterFunc("QMap", dumpMap)
	reg.RegisterFunc("QMultiMap", dumpMap)
	reg.RegisterFunc("QVariantMap", dumpMap)
	reg.RegisterFunc("QMapNode", dumpNode)
}

func dumpMap(d *dump.Dumper, v *typemodel.Value) error {
	desc, err := d.Layout(layout.MapData)
	if err != nil {
		return err
	}
	priv, err := dPtr(d, v)
	if err != nil {
		return err
	}
	if err := d.Check(priv != 0, "null map data"); err != nil {
		return err
	}
	n, err := d.ExtractInt(priv + uint64(desc.Off("size")))
	if err != nil {
		return err
	}
	if err := d.Check(n >= 0 && n <= maxHashSize, fmt.Sprintf("size %d", n)); err != nil {
		return err
	}
	if desc.Has("ref") {
		ref, err := d.ExtractInt(priv + uint64(desc.Off("ref")))
		if err != nil {
			return err
		}
		if err := d.CheckRef(ref); err != nil {
			return err
		}
	}
	d.PutItemCount(int(n))
	if !d.IsExpanded() {
		return nil
	}
	keyT, valT, err := mapTypes(d, v)
	if err != nil {
		return err
	}
	if desc.Off("tree") == 1 {
		return putTreeMap(d, desc, priv, int(n), keyT, valT)
	}
	return putSkipListMap(d, desc, priv, int(n), keyT, valT)
}

// mapTypes returns the key and value types, which QVariantMap fixes.
func mapTypes(d *dump.Dumper, v *typemodel.Value) (*typemodel.Type, *typemodel.Type, error) {
	if dump.NormalizeTypeName(v.Type.Name, d.QtNamespace()) == "QVariantMap" && len(v.Type.Stripped().TemplateArgs) < 2 {
		k, err := d.LookupQtType("QString")
		if err != nil {
			return nil, nil, err
		}
		val, err := d.LookupQtType("QVariant")
		return k, val, err
	}
	k, err := d.TemplateArgument(v, 0)
	if err != nil {
		return nil, nil, err
	}
	val, err := d.TemplateArgument(v, 1)
	return k, val, err
}

// putTreeMap walks the red-black tree of a Qt 5 map in key order, starting
// at the left child of the header node.
func putTreeMap(d *dump.Dumper, desc layout.Descriptor, priv uint64, n int, keyT, valT *typemodel.Type) error {
	keyOff, valOff := keyValueOffsets(desc.Off("nodePayload"), keyT, valT)
	left := func(node uint64) (uint64, error) {
		return d.ExtractPointer(node + uint64(desc.Off("nodeLeft")))
	}
	cur, err := left(priv + uint64(desc.Off("header")))
	if err != nil {
		return err
	}
	var stack []uint64
	return d.Children(n, maxMapChildren, func(i int) error {
		for cur != 0 {
			if err := d.Check(len(stack) <= n, "map tree deeper than its size"); err != nil {
				return err
			}
			stack = append(stack, cur)
			if cur, err = left(cur); err != nil {
				return err
			}
		}
		if err := d.Check(len(stack) > 0, "map ends early"); err != nil {
			return err
		}
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur, err = d.ExtractPointer(node + uint64(desc.Off("nodeRight"))); err != nil {
			return err
		}
		return d.PutMapEntry(i, d.CreateValue(node+uint64(keyOff), keyT), d.CreateValue(node+uint64(valOff), valT))
	})
}

// putSkipListMap walks level 0 of a Qt 4 map. Node pointers address the
// backward link, which follows the payload.
func putSkipListMap(d *dump.Dumper, desc layout.Descriptor, e uint64, n int, keyT, valT *typemodel.Type) error {
	p := int64(d.PtrSize())
	keyOff, valOff := keyValueOffsets(0, keyT, valT)
	payload := alignUp(valOff+valT.Size(), max(p, keyT.Alignment(), valT.Alignment()))
	forward := uint64(desc.Off("forward"))
	it, err := d.ExtractPointer(e + forward)
	if err != nil {
		return err
	}
	return d.Children(n, maxMapChildren, func(i int) error {
		if err := d.Check(it != e && it != 0, "map ends early"); err != nil {
			return err
		}
		base := it - uint64(payload)
		if err := d.PutMapEntry(i, d.CreateValue(base+uint64(keyOff), keyT), d.CreateValue(base+uint64(valOff), valT)); err != nil {
			return err
		}
		it, err = d.ExtractPointer(it + forward)
		return err
	})
}
