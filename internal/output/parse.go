package output

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ctagard/dap-dump/pkg/types"
)

type nodeKind int

const (
	nodeString nodeKind = iota
	nodeTuple
	nodeList
)

type field struct {
	key string
	val *node
}

type node struct {
	kind   nodeKind
	str    string
	fields []field
	list   []*node
}

func (n *node) get(key string) *node {
	for _, f := range n.fields {
		if f.key == key {
			return f.val
		}
	}
	return nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

// results parses key=value pairs up to the terminator (0 for end of input).
func (p *parser) results(term byte) ([]field, error) {
	var out []field
	for p.peek() != term {
		if len(out) > 0 {
			if err := p.expect(','); err != nil {
				return nil, err
			}
		}
		start := p.pos
		for p.pos < len(p.s) && p.s[p.pos] != '=' {
			if strings.IndexByte(",{}[]\"", p.s[p.pos]) >= 0 {
				return nil, p.errorf("unexpected %q in key", p.s[p.pos])
			}
			p.pos++
		}
		key := p.s[start:p.pos]
		if key == "" {
			return nil, p.errorf("empty key")
		}
		if err := p.expect('='); err != nil {
			return nil, err
		}
		val, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, field{key, val})
	}
	return out, nil
}

func (p *parser) value() (*node, error) {
	switch p.peek() {
	case '"':
		s, err := p.quoted()
		if err != nil {
			return nil, err
		}
		return &node{kind: nodeString, str: s}, nil
	case '{':
		p.pos++
		fields, err := p.results('}')
		if err != nil {
			return nil, err
		}
		p.pos++
		return &node{kind: nodeTuple, fields: fields}, nil
	case '[':
		p.pos++
		n := &node{kind: nodeList}
		for p.peek() != ']' {
			if p.peek() == 0 {
				return nil, p.errorf("unterminated list")
			}
			if len(n.list) > 0 {
				if err := p.expect(','); err != nil {
					return nil, err
				}
			}
			v, err := p.value()
			if err != nil {
				return nil, err
			}
			n.list = append(n.list, v)
		}
		p.pos++
		return n, nil
	case 0:
		return nil, p.errorf("unexpected end of input")
	}
	return nil, p.errorf("unexpected %q", p.peek())
}

func (p *parser) quoted() (string, error) {
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		p.pos++
		switch c {
		case '"':
			return sb.String(), nil
		case '\\':
			if p.pos >= len(p.s) {
				return "", p.errorf("dangling escape")
			}
			e := p.s[p.pos]
			p.pos++
			if e == 'n' {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(e)
			}
		default:
			sb.WriteByte(c)
		}
	}
	return "", p.errorf("unterminated string")
}

// Parse reads a protocol document.
func Parse(doc string) (*types.Document, error) {
	p := &parser{s: strings.TrimSpace(doc)}
	fields, err := p.results(0)
	if err != nil {
		return nil, fmt.Errorf("parse dump document: %w", err)
	}
	top := &node{kind: nodeTuple, fields: fields}

	out := &types.Document{}
	data := top.get("data")
	if data == nil || data.kind != nodeList {
		return nil, fmt.Errorf("parse dump document: missing data list")
	}
	for _, n := range data.list {
		it, err := toItem(n)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, it)
	}
	if ti := top.get("typeinfo"); ti != nil {
		for _, n := range ti.list {
			name, _ := Decode(str(n.get("name")), UTF8)
			size, _ := strconv.ParseInt(str(n.get("size")), 10, 64)
			out.TypeInfo = append(out.TypeInfo, types.TypeInfo{Name: name, Size: size})
		}
	}
	out.QtNamespace = str(top.get("qtnamespace"))
	out.Partial = str(top.get("partial")) == "1"
	if c := top.get("counts"); c != nil && len(c.fields) > 0 {
		out.Counts = make(map[string]int, len(c.fields))
		for _, f := range c.fields {
			n, _ := strconv.Atoi(f.val.str)
			out.Counts[f.key] = n
		}
	}
	out.TimeMS, _ = strconv.ParseInt(str(top.get("time")), 10, 64)
	return out, nil
}

func str(n *node) string {
	if n == nil || n.kind != nodeString {
		return ""
	}
	return n.str
}

func toItem(n *node) (types.Item, error) {
	if n.kind != nodeTuple {
		return types.Item{}, fmt.Errorf("parse dump document: item is not a tuple")
	}
	var it types.Item
	for _, f := range n.fields {
		switch f.key {
		case KeyName:
			it.Name = f.val.str
		case KeyIName:
			it.IName = f.val.str
		case KeyValue:
			it.Value = f.val.str
		case KeyValueEncoded:
			it.Encoding = f.val.str
		case KeyValueElided:
			it.Elided, _ = strconv.Atoi(f.val.str)
		case KeyType:
			it.Type = f.val.str
		case KeyNumChild:
			it.NumChild, _ = strconv.Atoi(f.val.str)
		case KeyChildren:
			for _, c := range f.val.list {
				child, err := toItem(c)
				if err != nil {
					return types.Item{}, err
				}
				it.Children = append(it.Children, child)
			}
		default:
			if f.val.kind != nodeString {
				continue
			}
			if it.Attrs == nil {
				it.Attrs = make(map[string]string)
			}
			it.Attrs[f.key] = f.val.str
		}
	}
	if enc := Encoding(it.Encoding); enc.IsText() {
		if text, err := Decode(it.Value, enc); err == nil {
			it.Text = text
		}
	}
	return it, nil
}
