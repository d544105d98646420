package dap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ctagard/dap-dump/internal/bridge"
)

// typeDecl is one type as printed by gdb's "ptype/o".
type typeDecl struct {
	// Keyword is struct, class, union or enum; empty for everything else.
	Keyword string
	Name    string
	// Text is the printed type for non-aggregates, e.g. "unsigned int".
	Text        string
	Bases       []baseDecl
	Fields      []fieldDecl
	Enumerators []bridge.Enumerator
	// Underlying is the explicit base type of an enum, if printed.
	Underlying string
	// Size in bytes, -1 when ptype did not print it.
	Size int64
}

// IsAggregate reports whether the declaration has members.
func (t *typeDecl) IsAggregate() bool {
	return t.Keyword == "struct" || t.Keyword == "class" || t.Keyword == "union"
}

type baseDecl struct {
	Name    string
	Virtual bool
}

type fieldDecl struct {
	Name     string
	TypeName string
	// BitPos is relative to the enclosing declaration.
	BitPos  int64
	BitSize int64
	// Size of the member's type in bytes.
	Size int64
	// Nested holds the members of an inline struct or union.
	Nested *typeDecl
}

var (
	offsetComment = regexp.MustCompile(`^/\*\s*(\d+)(?::\s*(\d+))?\s*\|\s*(\d+)\s*\*/\s*(.*)$`)
	// Union members print their size only.
	sizeComment = regexp.MustCompile(`^/\*\s*(\d+)\s*\*/\s*(.*)$`)
	totalSize   = regexp.MustCompile(`/\*\s*total size \(bytes\):\s*(\d+)\s*\*/`)
	bitWidth    = regexp.MustCompile(`\s*:\s*(\d+)$`)
	arraySuffix = regexp.MustCompile(`((?:\[\d*\])+)$`)
	identSuffix = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)$`)
	funcPtrName = regexp.MustCompile(`\(\s*(\*+)\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\)`)
)

// frame is an open aggregate while parsing nested members.
type frame struct {
	decl *typeDecl
	// start is the absolute bit position of the aggregate.
	start int64
	// pending is the member line that opened this frame.
	pending fieldDecl
}

// parsePtype parses the output of "ptype/o <type>".
func parsePtype(out string) (*typeDecl, error) {
	lines := strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n")
	i := 0
	var header string
	for ; i < len(lines); i++ {
		if at := strings.Index(lines[i], "type = "); at >= 0 {
			header = strings.TrimSpace(lines[i][at+len("type = "):])
			i++
			break
		}
	}
	if header == "" {
		return nil, fmt.Errorf("no type in ptype output %q", firstLine(out))
	}

	top := &typeDecl{Size: -1}
	if !strings.HasSuffix(header, "{") {
		return parseSimple(header, top)
	}
	parseHeader(strings.TrimSpace(strings.TrimSuffix(header, "{")), top)

	stack := []*frame{{decl: top}}
	for ; i < len(lines) && len(stack) > 0; i++ {
		line := strings.TrimSpace(lines[i])
		cur := stack[len(stack)-1]
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "}"):
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				continue
			}
			f := cur.pending
			f.Name = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "}"), ";"))
			f.Nested = cur.decl
			parent := stack[len(stack)-1]
			f.BitPos -= parent.start
			parent.decl.Fields = append(parent.decl.Fields, f)
			continue
		}
		if m := totalSize.FindStringSubmatch(line); m != nil {
			cur.decl.Size, _ = strconv.ParseInt(m[1], 10, 64)
			continue
		}
		var abs, size int64
		var decl string
		if m := offsetComment.FindStringSubmatch(line); m != nil {
			byteOff, _ := strconv.ParseInt(m[1], 10, 64)
			bitOff, _ := strconv.ParseInt(m[2], 10, 64)
			size, _ = strconv.ParseInt(m[3], 10, 64)
			decl = strings.TrimSpace(m[4])
			abs = byteOff*8 + bitOff
		} else if m := sizeComment.FindStringSubmatch(line); m != nil {
			size, _ = strconv.ParseInt(m[1], 10, 64)
			decl = strings.TrimSpace(m[2])
			abs = cur.start
		} else {
			// Holes, access labels, methods and static members.
			continue
		}

		if strings.HasSuffix(decl, "{") {
			nested := &typeDecl{Size: size}
			parseHeader(strings.TrimSpace(strings.TrimSuffix(decl, "{")), nested)
			stack = append(stack, &frame{
				decl:    nested,
				start:   abs,
				pending: fieldDecl{TypeName: nested.Name, BitPos: abs, BitSize: 8 * size, Size: size},
			})
			continue
		}
		f, ok := parseMember(decl)
		if !ok {
			continue
		}
		f.BitPos = abs - cur.start
		f.Size = size
		if f.BitSize == 0 {
			f.BitSize = 8 * size
		}
		cur.decl.Fields = append(cur.decl.Fields, f)
	}
	return top, nil
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	return s
}

// parseSimple handles single line output: enums, scalars, pointers and
// resolved typedefs.
func parseSimple(text string, t *typeDecl) (*typeDecl, error) {
	if rest, ok := strings.CutPrefix(text, "enum "); ok {
		t.Keyword = "enum"
		open := strings.Index(rest, "{")
		if open < 0 || !strings.HasSuffix(rest, "}") {
			return nil, fmt.Errorf("malformed enum %q", text)
		}
		head := strings.TrimSpace(rest[:open])
		head = strings.TrimSpace(strings.TrimPrefix(head, "class "))
		if name, under, ok := cutTopLevel(head, " : "); ok {
			head, t.Underlying = strings.TrimSpace(name), strings.TrimSpace(under)
		}
		t.Name = head
		enums, err := parseEnumerators(rest[open+1 : len(rest)-1])
		if err != nil {
			return nil, err
		}
		t.Enumerators = enums
		return t, nil
	}
	t.Text = text
	return t, nil
}

// parseEnumerators parses "A, B = 4, C". Implicit values continue from
// the previous one.
func parseEnumerators(body string) ([]bridge.Enumerator, error) {
	var out []bridge.Enumerator
	next := int64(0)
	for _, part := range strings.Split(body, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, hasVal := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if hasVal {
			v, err := strconv.ParseInt(strings.TrimSpace(val), 0, 64)
			if err != nil {
				return nil, fmt.Errorf("enumerator %s: %w", name, err)
			}
			next = v
		}
		out = append(out, bridge.Enumerator{Name: name, Value: next})
		next++
	}
	return out, nil
}

// parseHeader parses "class Name<T> [with T = int] : public Base" into t.
func parseHeader(head string, t *typeDecl) {
	head = stripWithClause(head)
	for _, kw := range []string{"struct", "class", "union"} {
		if head == kw {
			t.Keyword = kw
			return
		}
		if rest, ok := strings.CutPrefix(head, kw+" "); ok {
			t.Keyword = kw
			head = rest
			break
		}
	}
	name, bases, ok := cutTopLevel(head, " : ")
	t.Name = strings.TrimSpace(name)
	if !ok {
		return
	}
	for _, b := range splitTopLevel(bases, ',') {
		var bd baseDecl
		for _, word := range strings.Fields(b) {
			switch word {
			case "public", "protected", "private":
			case "virtual":
				bd.Virtual = true
			default:
				if bd.Name != "" {
					bd.Name += " "
				}
				bd.Name += word
			}
		}
		if bd.Name != "" {
			t.Bases = append(t.Bases, bd)
		}
	}
}

// stripWithClause removes gdb's "[with T = ...]" template annotations.
func stripWithClause(s string) string {
	for {
		at := strings.Index(s, " [with ")
		if at < 0 {
			return s
		}
		depth, end := 0, -1
		for j := at + 1; j < len(s); j++ {
			switch s[j] {
			case '[':
				depth++
			case ']':
				depth--
			}
			if depth == 0 {
				end = j
				break
			}
		}
		if end < 0 {
			return s[:at]
		}
		s = s[:at] + s[end+1:]
	}
}

// parseMember splits a member declaration such as "char *name;",
// "int (**_vptr.Base)(void);", "int v[4][2];" or "unsigned int b : 3;".
func parseMember(decl string) (fieldDecl, bool) {
	decl = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(decl), ";"))
	if decl == "" || strings.HasPrefix(decl, "static ") || strings.HasPrefix(decl, "typedef ") {
		return fieldDecl{}, false
	}
	var f fieldDecl
	if m := bitWidth.FindStringSubmatchIndex(decl); m != nil && m[0] > 0 && decl[m[0]-1] != ':' {
		f.BitSize, _ = strconv.ParseInt(decl[m[2]:m[3]], 10, 64)
		decl = strings.TrimSpace(decl[:m[0]])
	}
	if m := funcPtrName.FindStringSubmatchIndex(decl); m != nil {
		f.Name = decl[m[4]:m[5]]
		f.TypeName = strings.TrimSpace(decl[:m[4]] + decl[m[5]:])
		return f, true
	}
	dims := ""
	if m := arraySuffix.FindStringSubmatchIndex(decl); m != nil {
		dims = decl[m[2]:m[3]]
		decl = strings.TrimSpace(decl[:m[0]])
	}
	m := identSuffix.FindStringSubmatchIndex(decl)
	if m == nil {
		return fieldDecl{}, false
	}
	f.Name = decl[m[2]:m[3]]
	f.TypeName = strings.TrimSpace(decl[:m[0]])
	if f.TypeName == "" {
		return fieldDecl{}, false
	}
	if dims != "" {
		f.TypeName += " " + dims
	}
	return f, true
}

// cutTopLevel splits s at the first sep outside angle brackets and
// parentheses.
func cutTopLevel(s, sep string) (before, after string, found bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(':
			depth++
		case '>', ')':
			depth--
		}
		if depth == 0 && strings.HasPrefix(s[i:], sep) {
			return s[:i], s[i+len(sep):], true
		}
	}
	return s, "", false
}

// splitTopLevel splits s at sep outside angle brackets and parentheses.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(':
			depth++
		case '>', ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" || len(parts) > 0 {
		parts = append(parts, rest)
	}
	return parts
}

// templateArgs returns the top level template arguments of a type name:
// "QMap<QString, QList<int> >" gives ["QString", "QList<int>"].
func templateArgs(name string) []string {
	start := strings.Index(name, "<")
	end := strings.LastIndex(name, ">")
	if start < 0 || end < start {
		return nil
	}
	return splitTopLevel(name[start+1:end], ',')
}
