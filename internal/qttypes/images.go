package qttypes

import (
	"fmt"

	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

func registerImages(reg *dump.Registry) {
	reg.RegisterFunc("QImage", dumpImage)
	reg.RegisterFunc("QPixmap", dumpPixmap)
}

func dumpImage(d *dump.Dumper, v *typemodel.Value) error {
	desc, err := d.Layout(layout.ImageData)
	if err != nil {
		return err
	}
	base, err := readPtr(d, v, desc.Off("dPtr"))
	if err != nil {
		return err
	}
	if base == 0 {
		d.PutValue("(invalid)")
		d.PutNumChild(0)
		return nil
	}
	ints := make(map[string]int64, 4)
	for _, k := range []string{"width", "height", "nbytes"} {
		if ints[k], err = d.ExtractInt(base + uint64(desc.Off(k))); err != nil {
			return err
		}
	}
	bits, err := d.ExtractPointer(base + uint64(desc.Off("bits")))
	if err != nil {
		return err
	}
	formatOff := desc.Off("format")
	if d.Qt3Support() {
		formatOff += desc.Off("qt3Support")
	}
	if ints["format"], err = d.ExtractInt(base + uint64(formatOff)); err != nil {
		return err
	}
	d.PutValue(fmt.Sprintf("(%dx%d)", ints["width"], ints["height"]))
	d.PutNumChild(1)
	return withChildren(d, func() error {
		for _, k := range []string{"width", "height", "nbytes", "format"} {
			if err := d.PutIntItem(k, ints[k]); err != nil {
				return err
			}
		}
		return d.PutValueItem("data", fmt.Sprintf("0x%x", bits), "", "void *")
	})
}

func dumpPixmap(d *dump.Dumper, v *typemodel.Value) error {
	desc, err := d.Layout(layout.PixmapData)
	if err != nil {
		return err
	}
	base, err := readPtr(d, v, desc.Off("dPtr"))
	if err != nil {
		return err
	}
	d.PutNumChild(0)
	if base == 0 {
		d.PutValue("(invalid)")
		return nil
	}
	w, err := d.ExtractInt(base + uint64(desc.Off("width")))
	if err != nil {
		return err
	}
	h, err := d.ExtractInt(base + uint64(desc.Off("height")))
	if err != nil {
		return err
	}
	d.PutValue(fmt.Sprintf("(%dx%d)", w, h))
	return nil
}
