package output

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// TypeInfo is one typeinfo entry.
type TypeInfo struct {
	Name string
	Size int64
}

// Document is one complete fetch result.
type Document struct {
	Root        *Scope
	TypeInfo    []TypeInfo
	QtNamespace string
	Partial     bool
	Counts      map[string]int
	Elapsed     time.Duration
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Root: NewRoot(), Counts: make(map[string]int)}
}

// String renders
//
//	data=[...],typeinfo=[...],qtnamespace="...",partial="0|1",counts={...},time="ms"
func (d *Document) String() string {
	var sb strings.Builder
	sb.WriteString("data=[")
	for i, it := range d.Root.Items() {
		if i > 0 {
			sb.WriteByte(',')
		}
		it.Render(&sb)
	}
	sb.WriteString("],typeinfo=[")
	for i, ti := range d.TypeInfo {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(`{name="`)
		sb.WriteString(HexString(ti.Name))
		sb.WriteString(`",size="`)
		sb.WriteString(strconv.FormatInt(ti.Size, 10))
		sb.WriteString(`"}`)
	}
	sb.WriteByte(']')
	if d.QtNamespace != "" {
		sb.WriteByte(',')
		writeField(&sb, "qtnamespace", d.QtNamespace)
	}
	partial := "0"
	if d.Partial {
		partial = "1"
	}
	sb.WriteString(`,partial="`)
	sb.WriteString(partial)
	sb.WriteString(`",counts={`)
	keys := make([]string, 0, len(d.Counts))
	for k := range d.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeField(&sb, k, strconv.Itoa(d.Counts[k]))
	}
	sb.WriteString(`},time="`)
	sb.WriteString(strconv.FormatInt(d.Elapsed.Milliseconds(), 10))
	sb.WriteString(`"`)
	return sb.String()
}
