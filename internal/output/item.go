// Package output renders dump trees into the protocol consumed by the
// IDE front end and parses such documents back.
//
// Each tree node is built inside a Scope. A scope is committed into its
// parent when the node was decoded, or rolled back when its output must
// be discarded; either way the rendered document stays well formed.
package output

import (
	"strconv"
	"strings"
)

// Attribute keys with a fixed position in a rendered item.
const (
	KeyName         = "name"
	KeyIName        = "iname"
	KeyExp          = "exp"
	KeyKey          = "key"
	KeyKeyEncoded   = "keyencoded"
	KeyValue        = "value"
	KeyValueEncoded = "valueencoded"
	KeyValueElided  = "valueelided"
	KeyType         = "type"
	KeyNumChild     = "numchild"
	KeyChildren     = "children"
)

var leadingKeys = []string{KeyName, KeyIName, KeyExp, KeyKey, KeyKeyEncoded,
	KeyValue, KeyValueEncoded, KeyValueElided, KeyType, KeyNumChild}

type attr struct {
	key, value string
}

// Item is one protocol node under construction.
type Item struct {
	attrs    []attr
	children []*Item
	// expanded items render a children list, possibly empty.
	expanded bool
}

// NewItem returns an item with name and iname set.
func NewItem(name, iname string) *Item {
	it := &Item{}
	if name != "" {
		it.Set(KeyName, name)
	}
	it.Set(KeyIName, iname)
	return it
}

// Set stores an attribute, replacing an earlier value for key.
func (it *Item) Set(key, value string) {
	for i := range it.attrs {
		if it.attrs[i].key == key {
			it.attrs[i].value = value
			return
		}
	}
	it.attrs = append(it.attrs, attr{key, value})
}

// Get returns the attribute stored under key.
func (it *Item) Get(key string) (string, bool) {
	for _, a := range it.attrs {
		if a.key == key {
			return a.value, true
		}
	}
	return "", false
}

// Has reports whether key is set.
func (it *Item) Has(key string) bool {
	_, ok := it.Get(key)
	return ok
}

// Unset removes key.
func (it *Item) Unset(key string) {
	for i, a := range it.attrs {
		if a.key == key {
			it.attrs = append(it.attrs[:i], it.attrs[i+1:]...)
			return
		}
	}
}

// SetValue stores a display value with an optional encoding.
func (it *Item) SetValue(value string, enc Encoding, elided int) {
	it.Set(KeyValue, value)
	if enc == "" {
		it.Unset(KeyValueEncoded)
	} else {
		it.Set(KeyValueEncoded, string(enc))
	}
	if elided != 0 {
		it.Set(KeyValueElided, strconv.Itoa(elided))
	} else {
		it.Unset(KeyValueElided)
	}
}

// SetNumChild declares the number of children.
func (it *Item) SetNumChild(n int) {
	it.Set(KeyNumChild, strconv.Itoa(n))
}

// NumChild returns the declared child count, -1 when undeclared.
func (it *Item) NumChild() int {
	s, ok := it.Get(KeyNumChild)
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

// Expand marks the item as having a children list.
func (it *Item) Expand() {
	it.expanded = true
}

// Expanded reports whether a children list will be rendered.
func (it *Item) Expanded() bool {
	return it.expanded
}

// Collapse drops the children list.
func (it *Item) Collapse() {
	it.children = nil
	it.expanded = false
}

// Children returns the committed children.
func (it *Item) Children() []*Item {
	return it.children
}

// Reset drops every attribute except name and iname, and all children.
func (it *Item) Reset() {
	kept := it.attrs[:0]
	for _, a := range it.attrs {
		if a.key == KeyName || a.key == KeyIName {
			kept = append(kept, a)
		}
	}
	it.attrs = kept
	it.children = nil
	it.expanded = false
}

// Render appends the protocol form of the item to sb.
func (it *Item) Render(sb *strings.Builder) {
	sb.WriteByte('{')
	first := true
	sep := func() {
		if !first {
			sb.WriteByte(',')
		}
		first = false
	}
	for _, key := range leadingKeys {
		if v, ok := it.Get(key); ok {
			sep()
			writeField(sb, key, v)
		}
	}
	for _, a := range it.attrs {
		if isLeading(a.key) {
			continue
		}
		sep()
		writeField(sb, a.key, a.value)
	}
	if it.expanded {
		sep()
		sb.WriteString(KeyChildren)
		sb.WriteString("=[")
		for i, c := range it.children {
			if i > 0 {
				sb.WriteByte(',')
			}
			c.Render(sb)
		}
		sb.WriteByte(']')
	}
	sb.WriteByte('}')
}

// String renders the item.
func (it *Item) String() string {
	var sb strings.Builder
	it.Render(&sb)
	return sb.String()
}

func isLeading(key string) bool {
	for _, k := range leadingKeys {
		if k == key {
			return true
		}
	}
	return false
}

func writeField(sb *strings.Builder, key, value string) {
	sb.WriteString(key)
	sb.WriteString(`="`)
	writeEscaped(sb, value)
	sb.WriteByte('"')
}

func writeEscaped(sb *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteByte(c)
		}
	}
}

// Scope collects the output of one node. Open child scopes for sub-nodes;
// Commit appends the node to the parent, Rollback discards it.
type Scope struct {
	parent *Scope
	item   *Item
	done   bool
}

// NewRoot returns the outermost scope. Its item only serves as the
// container of the top-level nodes.
func NewRoot() *Scope {
	return &Scope{item: &Item{expanded: true}}
}

// Open starts a child scope for a node called name at iname.
func (s *Scope) Open(name, iname string) *Scope {
	return &Scope{parent: s, item: NewItem(name, iname)}
}

// Item returns the node under construction.
func (s *Scope) Item() *Item {
	return s.item
}

// Parent returns the enclosing scope, nil for the root.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Commit appends the node to its parent. Committing twice, or after
// Rollback, has no effect.
func (s *Scope) Commit() {
	if s.done || s.parent == nil {
		return
	}
	s.done = true
	s.parent.item.children = append(s.parent.item.children, s.item)
}

// Rollback discards the node and everything produced inside it.
func (s *Scope) Rollback() {
	if s.done {
		return
	}
	s.done = true
	s.item.Reset()
}

// Done reports whether the scope was committed or rolled back.
func (s *Scope) Done() bool {
	return s.done
}

// Items returns the nodes committed directly into s.
func (s *Scope) Items() []*Item {
	return s.item.children
}
