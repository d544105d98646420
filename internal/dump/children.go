package dump

import (
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

// childLimit returns the number of children rendered for a container that
// allows at most max (0 for no own limit).
func (d *Dumper) childLimit(max int) int {
	limit := d.maxNumChild
	if max > 0 && max < limit {
		limit = max
	}
	return limit
}

// Children enumerates the children of the current item when it is
// expanded. fn is called for i = 0, 1, ... and never more than n times or
// beyond the child cap; a truncated list ends with a "<more>" marker.
// Decoders walking linked structures keep their cursor in fn: calls are
// sequential.
func (d *Dumper) Children(n, max int, fn func(i int) error) error {
	if !d.IsExpanded() {
		return nil
	}
	d.Item().Expand()
	limit := d.childLimit(max)
	count := min(n, limit)
	for i := 0; i < count; i++ {
		if err := fn(i); err != nil {
			return err
		}
	}
	if n > limit {
		return d.within(d.scope.Open("<more>", d.IName()+".<more>"), func() error {
			d.PutSpecialValue(output.ItemCount, output.Itoa(int64(n-limit)))
			d.PutNumChild(0)
			return nil
		})
	}
	return nil
}

// PutArrayData declares n children and renders the expanded ones as
// consecutive elements of type elem starting at addr.
func (d *Dumper) PutArrayData(addr uint64, n int, elem *typemodel.Type, max int) error {
	d.PutNumChild(n)
	size := elem.Size()
	if err := d.Check(size > 0 || n == 0, "zero sized array element"); err != nil {
		return err
	}
	return d.Children(n, max, func(i int) error {
		return d.PutSubItem(output.Itoa(int64(i)), typemodel.NewLive(elem, addr+uint64(i)*uint64(size)))
	})
}

// PutPlainChildren shows v's members as children, bypassing decoders for v
// itself.
func (d *Dumper) PutPlainChildren(v *typemodel.Value) error {
	if !d.Item().Has(output.KeyValue) {
		d.PutEmptyValue()
	}
	d.PutNumChild(len(v.Type.Stripped().Fields()))
	if !d.IsExpanded() {
		return nil
	}
	return d.PutFields(v)
}

// PutFields renders every member of v. Base classes appear as "[Base]"
// with inames "@1", "@2", ...
func (d *Dumper) PutFields(v *typemodel.Value) error {
	fields, err := d.Fields(v)
	if err != nil {
		return err
	}
	d.Item().Expand()
	bases := 0
	for i, f := range fields {
		fv := v.Field(f)
		if f.IsBaseClass {
			bases++
			err = d.subItem("@"+output.Itoa(int64(bases)), "["+f.Name+"]", func() error {
				return d.PutItem(fv)
			})
		} else {
			err = d.PutSubItem(f.DisplayName(i), fv)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// PutPairItem renders a key/value pair as child index. The pair shows the
// key and value inline and has them as its two children.
func (d *Dumper) PutPairItem(index int, key, value *typemodel.Value) error {
	return d.SubItem(output.Itoa(int64(index)), func() error {
		return d.PutPairContents(index, key, value, "key", "value")
	})
}

// PutPairContents renders key and value as children kname and vname of the
// current item and copies their displays onto it. index < 0 omits the key
// prefix.
func (d *Dumper) PutPairContents(index int, key, value *typemodel.Value, kname, vname string) error {
	it := d.Item()
	expanded := d.IsExpanded()
	it.Expand()
	if err := d.PutSubItem(kname, key); err != nil {
		return err
	}
	if err := d.PutSubItem(vname, value); err != nil {
		return err
	}
	children := it.Children()
	k, v := children[len(children)-2], children[len(children)-1]

	if index >= 0 {
		it.Set("keyprefix", "["+output.Itoa(int64(index))+"] ")
	}
	kv, _ := k.Get(output.KeyValue)
	it.Set(output.KeyKey, kv)
	if ke, ok := k.Get(output.KeyValueEncoded); ok {
		it.Set(output.KeyKeyEncoded, ke)
	}
	vv, _ := v.Get(output.KeyValue)
	ve, _ := v.Get(output.KeyValueEncoded)
	it.SetValue(vv, output.Encoding(ve), 0)
	it.SetNumChild(2)
	if !expanded {
		it.Collapse()
	}
	return nil
}

// PutMapEntry renders child index of a map. Keys with a printable simple
// display are shown as "[key]" and the entry then shows only the value;
// other keys produce a key/value pair.
func (d *Dumper) PutMapEntry(index int, key, value *typemodel.Value) error {
	if !isSimpleType(key.Type) {
		return d.PutPairItem(index, key, value)
	}
	return d.SubItem(output.Itoa(int64(index)), func() error {
		if err := d.PutItem(value); err != nil {
			return err
		}
		// The key renders under a scratch root so it never becomes a child.
		ks := output.NewRoot().Open("key", d.IName()+".key")
		if err := d.within(ks, func() error { return d.PutItem(key) }); err != nil {
			return err
		}
		it := d.Item()
		kv, _ := ks.Item().Get(output.KeyValue)
		it.Set(output.KeyKey, kv)
		if ke, ok := ks.Item().Get(output.KeyValueEncoded); ok {
			it.Set(output.KeyKeyEncoded, ke)
		}
		it.Set("keyprefix", "["+output.Itoa(int64(index))+"] ")
		return nil
	})
}

// isSimpleType reports whether values of t render without children.
func isSimpleType(t *typemodel.Type) bool {
	switch t.Stripped().Code {
	case typemodel.CodeIntegral, typemodel.CodeFloat, typemodel.CodeEnum, typemodel.CodeBitfield:
		return true
	}
	return false
}
