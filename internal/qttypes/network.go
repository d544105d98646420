package qttypes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/typemodel"
)

// QAbstractSocket::NetworkLayerProtocol values.
const (
	ipv4Protocol = 0
	ipv6Protocol = 1
)

func registerNetwork(reg *dump.Registry) {
	reg.RegisterFunc("QUrl", dumpURL)
	reg.RegisterFunc("QHostAddress", dumpHostAddress)
	reg.RegisterFunc("QIPv6Address", dumpIPv6Address)
}

// ipv6Groups formats 16 address bytes as eight colon separated hex
// groups.
func ipv6Groups(data []byte) string {
	groups := make([]string, 8)
	for i := range groups {
		groups[i] = strconv.FormatUint(uint64(data[2*i])<<8|uint64(data[2*i+1]), 16)
	}
	return strings.Join(groups, ":")
}

func dumpHostAddress(d *dump.Dumper, v *typemodel.Value) error {
	desc, err := d.Layout(layout.HostAddressPrivate)
	if err != nil {
		return err
	}
	priv, err := dPtr(d, v)
	if err != nil {
		return err
	}
	if err := d.Check(priv != 0, "null host address private"); err != nil {
		return err
	}
	at := func(key string) uint64 { return priv + uint64(desc.Off(key)) }

	ip, err := encodeString(d, at("ipString"), 100)
	if err != nil {
		return err
	}
	parsed, err := d.ExtractByte(at("isParsed"))
	if err != nil {
		return err
	}
	if parsed != 0 && ip != "" {
		d.PutEncodedValue(ip, output.UTF16, 0)
		return d.PutPlainChildren(v)
	}
	proto, err := d.ExtractInt(at("protocol"))
	if err != nil {
		return err
	}
	switch proto {
	case ipv6Protocol:
		data, err := d.ReadMemory(at("a6"), 16)
		if err != nil {
			return err
		}
		scope, err := encodeString(d, at("scopeId"), 100)
		if err != nil {
			return err
		}
		d.PutSpecialValue(output.IPv6AddressAndHexScopeID, ipv6Groups(data)+"%"+scope)
	case ipv4Protocol:
		a, err := d.ExtractUInt(at("a"))
		if err != nil {
			return err
		}
		d.PutValue(fmt.Sprintf("%d.%d.%d.%d", a>>24&0xff, a>>16&0xff, a>>8&0xff, a&0xff))
	default:
		d.PutValue("<unspecified>")
	}
	return d.PutPlainChildren(v)
}

func dumpIPv6Address(d *dump.Dumper, v *typemodel.Value) error {
	c, err := d.Member(v, "c")
	if err != nil {
		return err
	}
	data, err := d.Data(c)
	if err != nil {
		return err
	}
	if err := d.Check(len(data) >= 16, "short address"); err != nil {
		return err
	}
	d.PutValue(ipv6Groups(data))
	return d.PutPlainChildren(c)
}

// urlParts are the QString members of a Qt 5 QUrlPrivate with their
// display limits.
var urlParts = []struct {
	name  string
	limit int
}{
	{"scheme", 1000},
	{"userName", 100},
	{"password", 100},
	{"host", 100},
	{"path", 1000},
	{"query", 10000},
	{"fragment", 10000},
}

func dumpURL(d *dump.Dumper, v *typemodel.Value) error {
	desc, err := d.Layout(layout.URLPrivate)
	if err != nil {
		return err
	}
	priv, err := dPtr(d, v)
	if err != nil {
		return err
	}
	if priv == 0 {
		d.PutValue("<invalid>")
		d.PutNumChild(0)
		return nil
	}
	if desc.Has("encodedOriginal") {
		return putLegacyURL(d, v, priv+uint64(desc.Off("encodedOriginal")))
	}

	parts := make(map[string]string, len(urlParts))
	for _, p := range urlParts {
		s, err := encodeString(d, priv+uint64(desc.Off(p.name)), p.limit)
		if err != nil {
			return err
		}
		parts[p.name] = s
	}
	port, err := d.ExtractInt(priv + uint64(desc.Off("port")))
	if err != nil {
		return err
	}

	var url strings.Builder
	url.WriteString(parts["scheme"])
	url.WriteString(output.HexUTF16("://"))
	if parts["userName"] != "" {
		url.WriteString(parts["userName"])
		url.WriteString(output.HexUTF16("@"))
	}
	url.WriteString(parts["host"])
	if port >= 0 {
		url.WriteString(output.HexUTF16(":" + output.Itoa(port)))
	}
	url.WriteString(parts["path"])
	d.PutEncodedValue(url.String(), output.UTF16, 0)
	d.PutNumChild(8)
	return withChildren(d, func() error {
		if err := d.PutIntItem("port", port); err != nil {
			return err
		}
		stringType := d.QtNamespace() + "QString"
		for _, p := range urlParts {
			if err := d.PutValueItem(p.name, parts[p.name], output.UTF16, stringType); err != nil {
				return err
			}
		}
		return d.PutFields(v)
	})
}

// putLegacyURL shows a Qt 4 QUrl by its encoded original, decoding the
// components through calls only when expanded.
func putLegacyURL(d *dump.Dumper, v *typemodel.Value, original uint64) error {
	a, err := byteArrayData(d, original)
	if err != nil {
		return err
	}
	s, _, err := encodeBytes(d, a, 100)
	if err != nil {
		return err
	}
	d.PutEncodedValue(s, output.Latin1, 0)
	d.PutNumChild(8)
	return withChildren(d, func() error {
		if err := callItems(d, v, [][2]string{
			{"scheme", "scheme"},
			{"userName", "userName"},
			{"password", "password"},
			{"host", "host"},
			{"path", "path"},
			{"query", "encodedQuery"},
			{"fragment", "fragment"},
			{"port", "port"},
		}); err != nil {
			return err
		}
		return d.PutFields(v)
	})
}
