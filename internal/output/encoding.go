package output

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Encoding tells the front end how to interpret an item's value.
type Encoding string

// Character encodings; the value is hex.
const (
	Latin1 Encoding = "latin1"
	UTF8   Encoding = "utf8"
	UTF16  Encoding = "utf16"
	UCS4   Encoding = "ucs4"
)

// Semantic encodings; the value is a plain number or tuple.
const (
	JulianDate                Encoding = "juliandate"
	MillisecondsSinceMidnight Encoding = "millisecondssincemidnight"
	JulianDateAndMilliseconds Encoding = "juliandateandmillisecondssincemidnight"
	DateTimeInternal          Encoding = "datetimeinternal"
	IPv6AddressAndHexScopeID  Encoding = "ipv6addressandhexscopeid"
	ItemCount                 Encoding = "itemcount"
	MinimumItemCount          Encoding = "minimumitemcount"
	NotAccessible             Encoding = "notaccessible"
	OptimizedOut              Encoding = "optimizedout"
	Null                      Encoding = "null"
	Empty                     Encoding = "empty"
	NotCallable               Encoding = "notcallable"
	Uninitialized             Encoding = "uninitialized"
	Invalid                   Encoding = "invalid"
)

// IsText reports whether e is a character encoding.
func (e Encoding) IsText() bool {
	switch e {
	case Latin1, UTF8, UTF16, UCS4:
		return true
	}
	return false
}

// Hex encodes raw bytes for a character encoding.
func Hex(data []byte) string {
	return hex.EncodeToString(data)
}

// HexString encodes s as UTF-8 hex.
func HexString(s string) string {
	return hex.EncodeToString([]byte(s))
}

// HexUTF16 encodes s as little-endian UTF-16 hex.
func HexUTF16(s string) string {
	units := utf16.Encode([]rune(s))
	buf := make([]byte, 2*len(units))
	for i, u := range units {
		buf[2*i] = byte(u)
		buf[2*i+1] = byte(u >> 8)
	}
	return hex.EncodeToString(buf)
}

// Decode turns a hex value in a character encoding back into text.
// Little-endian is assumed for UTF-16 and UCS-4.
func Decode(value string, enc Encoding) (string, error) {
	data, err := hex.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("invalid hex value: %w", err)
	}
	switch enc {
	case Latin1:
		runes := make([]rune, len(data))
		for i, c := range data {
			runes[i] = rune(c)
		}
		return string(runes), nil
	case UTF8:
		return strings.ToValidUTF8(string(data), string(utf8.RuneError)), nil
	case UTF16:
		if len(data)%2 != 0 {
			return "", fmt.Errorf("odd utf16 length %d", len(data))
		}
		units := make([]uint16, len(data)/2)
		for i := range units {
			units[i] = uint16(data[2*i]) | uint16(data[2*i+1])<<8
		}
		return string(utf16.Decode(units)), nil
	case UCS4:
		if len(data)%4 != 0 {
			return "", fmt.Errorf("bad ucs4 length %d", len(data))
		}
		runes := make([]rune, len(data)/4)
		for i := range runes {
			o := 4 * i
			runes[i] = rune(uint32(data[o]) | uint32(data[o+1])<<8 | uint32(data[o+2])<<16 | uint32(data[o+3])<<24)
		}
		return string(runes), nil
	}
	return "", fmt.Errorf("%s is not a character encoding", enc)
}

// IsPrintable reports whether s can be sent unencoded: printable ASCII
// without quotes or backslashes.
func IsPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c > 0x7e || c == '"' || c == '\\' {
			return false
		}
	}
	return true
}

// Itoa is strconv.Itoa for int64.
func Itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
