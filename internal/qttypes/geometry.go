package qttypes

import (
	"fmt"

	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

func registerGeometry(reg *dump.Registry) {
	reg.RegisterFunc("QPoint", intPair("xp", "yp"))
	reg.RegisterFunc("QSize", intPair("wd", "ht"))
	reg.RegisterFunc("QPointF", floatPair("xp", "yp"))
	reg.RegisterFunc("QSizeF", floatPair("wd", "ht"))
	reg.RegisterFunc("QRect", dumpRect)
	reg.RegisterFunc("QRectF", dumpRectF)
	reg.RegisterFunc("QLine", dumpLine)
	reg.RegisterFunc("QLineF", dumpLine)
}

func intPair(a, b string) dump.DecoderFunc {
	return func(d *dump.Dumper, v *typemodel.Value) error {
		x, err := memberInt(d, v, a)
		if err != nil {
			return err
		}
		y, err := memberInt(d, v, b)
		if err != nil {
			return err
		}
		d.PutValue(fmt.Sprintf("(%d, %d)", x, y))
		return d.PutPlainChildren(v)
	}
}

func floatPair(a, b string) dump.DecoderFunc {
	return func(d *dump.Dumper, v *typemodel.Value) error {
		x, err := memberFloat(d, v, a)
		if err != nil {
			return err
		}
		y, err := memberFloat(d, v, b)
		if err != nil {
			return err
		}
		d.PutValue(fmt.Sprintf("(%s, %s)", formatFloat(x), formatFloat(y)))
		return d.PutPlainChildren(v)
	}
}

// signed prefixes non-negative offsets with "+".
func signed(s string, negative bool) string {
	if negative {
		return s
	}
	return "+" + s
}

func dumpRect(d *dump.Dumper, v *typemodel.Value) error {
	var c [4]int64
	for i, name := range []string{"x1", "y1", "x2", "y2"} {
		n, err := memberInt(d, v, name)
		if err != nil {
			return err
		}
		c[i] = n
	}
	w, h := c[2]-c[0]+1, c[3]-c[1]+1
	d.PutValue(fmt.Sprintf("%dx%d%s%s", w, h,
		signed(output.Itoa(c[0]), c[0] < 0), signed(output.Itoa(c[1]), c[1] < 0)))
	return d.PutPlainChildren(v)
}

func dumpRectF(d *dump.Dumper, v *typemodel.Value) error {
	var c [4]float64
	for i, name := range []string{"xp", "yp", "w", "h"} {
		f, err := memberFloat(d, v, name)
		if err != nil {
			return err
		}
		c[i] = f
	}
	d.PutValue(fmt.Sprintf("%sx%s%s%s", formatFloat(c[2]), formatFloat(c[3]),
		signed(formatFloat(c[0]), c[0] < 0), signed(formatFloat(c[1]), c[1] < 0)))
	return d.PutPlainChildren(v)
}

// dumpLine shows both end points of a QLine or QLineF.
func dumpLine(d *dump.Dumper, v *typemodel.Value) error {
	var ends [2]string
	for i, name := range []string{"pt1", "pt2"} {
		p, err := d.Member(v, name)
		if err != nil {
			return err
		}
		if p.Type.Stripped().Fields() == nil {
			return d.Check(false, "point without members")
		}
		x, err := d.Member(p, "xp")
		if err != nil {
			return err
		}
		y, err := d.Member(p, "yp")
		if err != nil {
			return err
		}
		xs, err := coordinate(d, x)
		if err != nil {
			return err
		}
		ys, err := coordinate(d, y)
		if err != nil {
			return err
		}
		ends[i] = "(" + xs + ", " + ys + ")"
	}
	d.PutValue(ends[0] + " - " + ends[1])
	return d.PutPlainChildren(v)
}

func coordinate(d *dump.Dumper, v *typemodel.Value) (string, error) {
	if v.Type.Stripped().Code == typemodel.CodeFloat {
		f, err := d.Float(v)
		return formatFloat(f), err
	}
	n, err := d.Int(v)
	return output.Itoa(n), err
}
