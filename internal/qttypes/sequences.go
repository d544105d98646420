package qttypes

import (
	"fmt"

	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

func registerSequences(reg *dump.Registry) {
	reg.RegisterFunc("QList", dumpList)
	reg.RegisterFunc("QQueue", dumpList)
	reg.RegisterFunc("QVector", dumpVector)
	reg.RegisterFunc("QStack", dumpVector)
	reg.RegisterFunc("QPolygon", fixedVector("QPoint"))
	reg.RegisterFunc("QPolygonF", fixedVector("QPointF"))
	reg.RegisterFunc("QVarLengthArray", dumpVarLengthArray)
	reg.RegisterFunc("QLinkedList", dumpLinkedList)
}

func dumpList(d *dump.Dumper, v *typemodel.Value) error {
	elem, err := d.TemplateArgument(v, 0)
	if err != nil {
		return err
	}
	return putList(d, v, elem)
}

// putList shows a QList of elem. Elements that fit a pointer and are
// movable live in the node array itself, everything else behind a
// pointer per node.
func putList(d *dump.Dumper, v *typemodel.Value, elem *typemodel.Type) error {
	priv, err := dPtr(d, v)
	if err != nil {
		return err
	}
	return putListData(d, priv, elem)
}

// putListData shows the QListData block at priv.
func putListData(d *dump.Dumper, priv uint64, elem *typemodel.Type) error {
	desc, err := d.Layout(layout.ListData)
	if err != nil {
		return err
	}
	if err := d.Check(priv != 0, "null list data"); err != nil {
		return err
	}
	ref, err := d.ExtractInt(priv + uint64(desc.Off("ref")))
	if err != nil {
		return err
	}
	if err := d.CheckRef(ref); err != nil {
		return err
	}
	begin, err := d.ExtractInt(priv + uint64(desc.Off("begin")))
	if err != nil {
		return err
	}
	end, err := d.ExtractInt(priv + uint64(desc.Off("end")))
	if err != nil {
		return err
	}
	size := end - begin
	if err := d.Check(begin >= 0 && end >= 0 && size >= 0 && size <= maxContainerSize,
		fmt.Sprintf("begin %d, end %d", begin, end)); err != nil {
		return err
	}
	d.PutItemCount(int(size))

	array := priv + uint64(desc.Off("array"))
	p := uint64(d.PtrSize())
	inline := elem.Size() <= int64(p) && isMovable(d, elem)
	return d.Children(int(size), 2000, func(i int) error {
		slot := array + uint64(begin+int64(i))*p
		if !inline {
			node, err := d.ExtractPointer(slot)
			if err != nil {
				return err
			}
			slot = node
		}
		return d.PutSubItem(output.Itoa(int64(i)), d.CreateValue(slot, elem))
	})
}

func dumpVector(d *dump.Dumper, v *typemodel.Value) error {
	elem, err := d.TemplateArgument(v, 0)
	if err != nil {
		return err
	}
	return putVector(d, v, elem)
}

// fixedVector decodes QVector subclasses with a fixed element type.
func fixedVector(elemName string) dump.DecoderFunc {
	return func(d *dump.Dumper, v *typemodel.Value) error {
		elem, err := d.LookupQtType(elemName)
		if err != nil {
			return err
		}
		return putVector(d, v, elem)
	}
}

func putVector(d *dump.Dumper, v *typemodel.Value, elem *typemodel.Type) error {
	header, err := dPtr(d, v)
	if err != nil {
		return err
	}
	a, err := readArrayData(d, header, layout.VectorData)
	if err != nil {
		return err
	}
	if err := checkArray(d, a, maxContainerSize); err != nil {
		return err
	}
	d.PutItemCount(int(a.size))
	return d.PutArrayData(a.data, int(a.size), elem, 0)
}

func dumpVarLengthArray(d *dump.Dumper, v *typemodel.Value) error {
	elem, err := d.TemplateArgument(v, 0)
	if err != nil {
		return err
	}
	alloc, err := memberInt(d, v, "a")
	if err != nil {
		return err
	}
	size, err := memberInt(d, v, "s")
	if err != nil {
		return err
	}
	data, err := memberPointer(d, v, "ptr")
	if err != nil {
		return err
	}
	if err := d.Check(size >= 0 && size <= alloc && alloc <= maxContainerSize,
		fmt.Sprintf("size %d, alloc %d", size, alloc)); err != nil {
		return err
	}
	d.PutItemCount(int(size))
	return d.PutArrayData(data, int(size), elem, 0)
}

// dumpLinkedList walks the node chain of a QLinkedList. Nodes are
// {next, prev, value}.
func dumpLinkedList(d *dump.Dumper, v *typemodel.Value) error {
	desc, err := d.Layout(layout.LinkedListData)
	if err != nil {
		return err
	}
	e, err := dPtr(d, v)
	if err != nil {
		return err
	}
	if err := d.Check(e != 0, "null list data"); err != nil {
		return err
	}
	n, err := d.ExtractInt(e + uint64(desc.Off("size")))
	if err != nil {
		return err
	}
	ref, err := d.ExtractInt(e + uint64(desc.Off("ref")))
	if err != nil {
		return err
	}
	if err := d.Check(n >= 0 && n <= maxHashSize && ref >= -1 && ref <= 1000,
		fmt.Sprintf("size %d, ref %d", n, ref)); err != nil {
		return err
	}
	d.PutItemCount(int(n))
	if !d.IsExpanded() {
		return nil
	}
	elem, err := d.TemplateArgument(v, 0)
	if err != nil {
		return err
	}
	node, err := d.ExtractPointer(e + uint64(desc.Off("nodeNext")))
	if err != nil {
		return err
	}
	return d.Children(int(n), 1000, func(i int) error {
		if err := d.Check(node != 0 && node != e, "list ends early"); err != nil {
			return err
		}
		if err := d.PutSubItem(output.Itoa(int64(i)), d.CreateValue(node+uint64(desc.Off("nodeValue")), elem)); err != nil {
			return err
		}
		next, err := d.ExtractPointer(node + uint64(desc.Off("nodeNext")))
		node = next
		return err
	})
}
