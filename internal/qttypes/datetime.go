package qttypes

import (
	"fmt"

	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

// QDateTimePrivate status bits for a valid date and a valid time.
const validDateTime = 0x0c

func registerDateTime(reg *dump.Registry) {
	reg.RegisterFunc("QDate", dumpDate)
	reg.RegisterFunc("QTime", dumpTime)
	reg.RegisterFunc("QDateTime", dumpDateTime)
	reg.RegisterFunc("QTimeZone", dumpTimeZone)
}

// formatCalls renders toString in the four date formats.
func formatCalls(d *dump.Dumper, v *typemodel.Value) error {
	for _, f := range [][2]string{
		{"toString", "TextDate"},
		{"(ISO)", "ISODate"},
		{"(SystemLocale)", "SystemLocaleDate"},
		{"(Locale)", "LocaleDate"},
	} {
		if err := d.PutCallItem(f[0], "", v, "toString", qtEnum(d, f[1])); err != nil {
			return err
		}
	}
	return nil
}

func dumpDate(d *dump.Dumper, v *typemodel.Value) error {
	jd, err := memberInt(d, v, "jd")
	if err != nil {
		return err
	}
	if jd == 0 {
		d.PutValue("(invalid)")
		d.PutNumChild(0)
		return nil
	}
	d.PutSpecialValue(output.JulianDate, output.Itoa(jd))
	d.PutNumChild(1)
	return withChildren(d, func() error {
		if err := formatCalls(d, v); err != nil {
			return err
		}
		return d.PutFields(v)
	})
}

func dumpTime(d *dump.Dumper, v *typemodel.Value) error {
	mds, err := memberInt(d, v, "mds")
	if err != nil {
		return err
	}
	if mds < 0 {
		d.PutValue("(invalid)")
		d.PutNumChild(0)
		return nil
	}
	d.PutSpecialValue(output.MillisecondsSinceMidnight, output.Itoa(mds))
	d.PutNumChild(1)
	return withChildren(d, func() error {
		if err := formatCalls(d, v); err != nil {
			return err
		}
		return d.PutFields(v)
	})
}

func dumpDateTime(d *dump.Dumper, v *typemodel.Value) error {
	desc, err := d.Layout(layout.DateTimePrivate)
	if err != nil {
		return err
	}
	base, err := dPtr(d, v)
	if err != nil {
		return err
	}
	if base == 0 {
		d.PutValue("(invalid)")
		d.PutNumChild(0)
		return nil
	}
	var value string
	var enc output.Encoding
	if desc.Has("status") {
		value, err = dateTimeInternal(d, desc, base)
		enc = output.DateTimeInternal
	} else {
		value, err = julianDateTime(d, desc, base)
		enc = output.JulianDateAndMilliseconds
	}
	if err != nil {
		return err
	}
	if value == "" {
		d.PutValue("(invalid)")
		d.PutNumChild(0)
		return nil
	}
	d.PutSpecialValue(enc, value)
	d.PutNumChild(1)
	return withChildren(d, func() error {
		if err := d.PutCallItem("toTime_t", "", v, "toTime_t"); err != nil {
			return err
		}
		if err := formatCalls(d, v); err != nil {
			return err
		}
		if err := d.PutCallItem("toUTC", "", v, "toTimeSpec", qtEnum(d, "UTC")); err != nil {
			return err
		}
		if err := d.PutCallItem("toLocalTime", "", v, "toTimeSpec", qtEnum(d, "LocalTime")); err != nil {
			return err
		}
		return d.PutFields(v)
	})
}

// dateTimeInternal encodes a Qt >= 5.2 private as
// "msecs/spec/offset/tzid/status", tzid being hex Latin-1. An invalid
// date time yields "".
func dateTimeInternal(d *dump.Dumper, desc layout.Descriptor, base uint64) (string, error) {
	status, err := d.ExtractInt(base + uint64(desc.Off("status")))
	if err != nil {
		return "", err
	}
	if status&validDateTime != validDateTime {
		return "", nil
	}
	msecs, err := d.ExtractInt64(base + uint64(desc.Off("msecs")))
	if err != nil {
		return "", err
	}
	spec, err := d.ExtractInt(base + uint64(desc.Off("spec")))
	if err != nil {
		return "", err
	}
	offset, err := d.ExtractInt(base + uint64(desc.Off("offsetFromUtc")))
	if err != nil {
		return "", err
	}
	tzp, err := d.ExtractPointer(base + uint64(desc.Off("timeZone")))
	if err != nil {
		return "", err
	}
	tz := ""
	if tzp != 0 {
		if tz, err = timeZoneID(d, tzp); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%d/%d/%d/%s/%d", msecs, spec, offset, tz, status), nil
}

// julianDateTime encodes an older private as "jd/mds".
func julianDateTime(d *dump.Dumper, desc layout.Descriptor, base uint64) (string, error) {
	mds, err := d.ExtractInt(base + uint64(desc.Off("time")))
	if err != nil {
		return "", err
	}
	if mds <= 0 {
		return "", nil
	}
	jd, err := d.ExtractInt(base + uint64(desc.Off("date")))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d/%d", jd, mds), nil
}

// timeZoneID returns the hex Latin-1 id of the QTimeZonePrivate at priv.
func timeZoneID(d *dump.Dumper, priv uint64) (string, error) {
	desc, err := d.Layout(layout.TimeZonePrivate)
	if err != nil {
		return "", err
	}
	a, err := byteArrayData(d, priv+uint64(desc.Off("id")))
	if err != nil {
		return "", err
	}
	s, _, err := encodeBytes(d, a, 100)
	return s, err
}

func dumpTimeZone(d *dump.Dumper, v *typemodel.Value) error {
	priv, err := dPtr(d, v)
	if err != nil {
		return err
	}
	if priv == 0 {
		d.PutValue("(null)")
		d.PutNumChild(0)
		return nil
	}
	desc, err := d.Layout(layout.TimeZonePrivate)
	if err != nil {
		return err
	}
	if _, err := putByteArrayValue(d, priv+uint64(desc.Off("id"))); err != nil {
		return err
	}
	return d.PutPlainChildren(v)
}
