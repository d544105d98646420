package qttypes

import (
	"fmt"

	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

func registerHashes(reg *dump.Registry) {
	reg.RegisterFunc("QHash", dumpHash)
	reg.RegisterFunc("QMultiHash", dumpHash)
	reg.RegisterFunc("QSet", dumpSet)
	reg.RegisterFunc("QHash__Node", dumpNode)
	reg.RegisterFunc("QHashNode", dumpNode)
}

// hashWalk iterates the nodes of a QHashData block in bucket order.
type hashWalk struct {
	d          *dump.Dumper
	desc       layout.Descriptor
	e          uint64
	buckets    uint64
	numBuckets int64
	size       int64
}

func newHashWalk(d *dump.Dumper, v *typemodel.Value) (*hashWalk, error) {
	desc, err := d.Layout(layout.HashData)
	if err != nil {
		return nil, err
	}
	e, err := dPtr(d, v)
	if err != nil {
		return nil, err
	}
	if err := d.Check(e != 0, "null hash data"); err != nil {
		return nil, err
	}
	w := &hashWalk{d: d, desc: desc, e: e}
	if w.buckets, err = d.ExtractPointer(e + uint64(desc.Off("buckets"))); err != nil {
		return nil, err
	}
	ref, err := d.ExtractInt(e + uint64(desc.Off("ref")))
	if err != nil {
		return nil, err
	}
	if w.size, err = d.ExtractInt(e + uint64(desc.Off("size"))); err != nil {
		return nil, err
	}
	if w.numBuckets, err = d.ExtractInt(e + uint64(desc.Off("numBuckets"))); err != nil {
		return nil, err
	}
	if err := d.Check(w.size >= 0 && w.size <= maxHashSize && ref >= -1 && ref < 100000,
		fmt.Sprintf("size %d, ref %d", w.size, ref)); err != nil {
		return nil, err
	}
	if err := d.Check(w.numBuckets >= 0 && w.numBuckets <= maxHashSize && (w.size == 0 || w.numBuckets > 0),
		fmt.Sprintf("%d buckets", w.numBuckets)); err != nil {
		return nil, err
	}
	return w, nil
}

// scan returns the first bucket head from index start on that is not the
// end marker.
func (w *hashWalk) scan(start int64) (uint64, error) {
	p := uint64(w.d.PtrSize())
	for i := start; i < w.numBuckets; i++ {
		head, err := w.d.ExtractPointer(w.buckets + uint64(i)*p)
		if err != nil {
			return 0, err
		}
		if head != w.e {
			return head, nil
		}
	}
	return w.e, nil
}

func (w *hashWalk) first() (uint64, error) {
	return w.scan(0)
}

// next follows the chain of node and continues with the following
// buckets at its end.
func (w *hashWalk) next(node uint64) (uint64, error) {
	next, err := w.d.ExtractPointer(node + uint64(w.desc.Off("nodeNext")))
	if err != nil {
		return 0, err
	}
	nn, err := w.d.ExtractPointer(next + uint64(w.desc.Off("nodeNext")))
	if err != nil {
		return 0, err
	}
	if nn != 0 {
		return next, nil
	}
	h, err := w.d.ExtractUInt(node + uint64(w.desc.Off("nodeHash")))
	if err != nil {
		return 0, err
	}
	return w.scan(int64(h%uint64(w.numBuckets)) + 1)
}

// payloadStart is the offset of the key in a node. Qt 4 stores int keys
// in place of the hash.
func payloadStart(d *dump.Dumper, key *typemodel.Type) (int64, error) {
	v, err := d.QtVersion()
	if err != nil {
		return 0, err
	}
	p := int64(d.PtrSize())
	if v < layout.Make(5, 0, 0) && key.Stripped().Name == "int" {
		return p, nil
	}
	return p + 4, nil
}

func dumpHash(d *dump.Dumper, v *typemodel.Value) error {
	w, err := newHashWalk(d, v)
	if err != nil {
		return err
	}
	d.PutItemCount(int(w.size))
	if !d.IsExpanded() {
		return nil
	}
	keyT, err := d.TemplateArgument(v, 0)
	if err != nil {
		return err
	}
	valT, err := d.TemplateArgument(v, 1)
	if err != nil {
		return err
	}
	start, err := payloadStart(d, keyT)
	if err != nil {
		return err
	}
	keyOff, valOff := keyValueOffsets(start, keyT, valT)
	node, err := w.first()
	if err != nil {
		return err
	}
	return d.Children(int(w.size), 1000, func(i int) error {
		if err := d.Check(node != w.e && node != 0, "hash ends early"); err != nil {
			return err
		}
		key := d.CreateValue(node+uint64(keyOff), keyT)
		val := d.CreateValue(node+uint64(valOff), valT)
		if err := d.PutMapEntry(i, key, val); err != nil {
			return err
		}
		node, err = w.next(node)
		return err
	})
}

func dumpSet(d *dump.Dumper, v *typemodel.Value) error {
	w, err := newHashWalk(d, v)
	if err != nil {
		return err
	}
	d.PutItemCount(int(w.size))
	if !d.IsExpanded() {
		return nil
	}
	keyT, err := d.TemplateArgument(v, 0)
	if err != nil {
		return err
	}
	start, err := payloadStart(d, keyT)
	if err != nil {
		return err
	}
	keyOff := alignUp(start, keyT.Alignment())
	node, err := w.first()
	if err != nil {
		return err
	}
	return d.Children(int(w.size), 1000, func(i int) error {
		if err := d.Check(node != w.e && node != 0, "set ends early"); err != nil {
			return err
		}
		if err := d.PutSubItem(output.Itoa(int64(i)), d.CreateValue(node+uint64(keyOff), keyT)); err != nil {
			return err
		}
		node, err = w.next(node)
		return err
	})
}

// dumpNode shows a single hash or map node as its key and value.
func dumpNode(d *dump.Dumper, v *typemodel.Value) error {
	key, err := d.Member(v, "key")
	if err != nil {
		return err
	}
	val, err := d.Member(v, "value")
	if err != nil {
		return err
	}
	return d.PutPairContents(-1, key, val, "key", "value")
}
