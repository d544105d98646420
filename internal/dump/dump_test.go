package dump

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ctagard/dap-dump/internal/bridge"
	"github.com/ctagard/dap-dump/internal/bridge/bridgetest"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/slogutil"
	"github.com/ctagard/dap-dump/internal/typemodel"
	"github.com/ctagard/dap-dump/pkg/types"
)

func newTestSession(t *testing.T, b *bridgetest.Bridge, reg *Registry, opts Options) *Session {
	t.Helper()
	s, err := NewSession(context.Background(), b, reg, nil, opts, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s
}

// renderLocals fetches req over the bridge's locals and returns the
// rendered top-level items.
func renderLocals(t *testing.T, s *Session, req types.FetchRequest) []string {
	t.Helper()
	doc, err := s.FetchDocument(context.Background(), req)
	if err != nil {
		t.Fatalf("FetchDocument() error = %v", err)
	}
	var out []string
	for _, it := range doc.Root.Items() {
		out = append(out, it.String())
	}
	return out
}

func renderOne(t *testing.T, s *Session, req types.FetchRequest) string {
	t.Helper()
	items := renderLocals(t, s, req)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1: %v", len(items), items)
	}
	return items[0]
}

func pointFixture(b *bridgetest.Bridge, addr uint64) *bridgetest.Type {
	i32 := b.AddType(bridgetest.Int("int", 4, true))
	pt := b.AddType(bridgetest.Struct("Point", 8,
		bridgetest.Field("x", i32, 0),
		bridgetest.Field("y", i32, 4)))
	b.WriteI32(addr, 3)
	b.WriteI32(addr+4, -4)
	return pt
}

func TestNewSession_PointerSize(t *testing.T) {
	b := bridgetest.New()
	b.Info.PointerSize = 2
	_, err := NewSession(context.Background(), b, nil, nil, DefaultOptions(), slogutil.NewDiscardLogger())
	if err == nil {
		t.Fatal("NewSession() accepted a 2 byte pointer size")
	}
	if got := errors.CodeOf(err); got != errors.CodeInvalidParameter {
		t.Errorf("CodeOf() = %q, want %q", got, errors.CodeInvalidParameter)
	}
}

// TestFetch_Struct verifies structural rendering of a plain struct, collapsed
// and expanded.
func TestFetch_Struct(t *testing.T) {
	b := bridgetest.New()
	pt := pointFixture(b, 0x1000)
	b.LocalValues = []*bridgetest.Value{bridgetest.At("p", pt, 0x1000)}
	s := newTestSession(t, b, nil, DefaultOptions())

	tests := []struct {
		name     string
		expanded []string
		want     string
	}{
		{
			name: "collapsed",
			want: `{name="p",iname="local.p",value="",type="Point",numchild="2"}`,
		},
		{
			name:     "expanded",
			expanded: []string{"local.p"},
			want: `{name="p",iname="local.p",value="",type="Point",numchild="2",children=[` +
				`{name="x",iname="local.p.x",value="3",type="int",numchild="0"},` +
				`{name="y",iname="local.p.y",value="-4",type="int",numchild="0"}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderOne(t, s, types.FetchRequest{Fancy: true, Expanded: tt.expanded})
			if got != tt.want {
				t.Errorf("item =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

// TestFetch_Scalars verifies the display of the built-in scalar kinds.
func TestFetch_Scalars(t *testing.T) {
	b := bridgetest.New()
	color := bridgetest.Enum("Color", 4,
		bridge.Enumerator{Name: "Red", Value: 0},
		bridge.Enumerator{Name: "Green", Value: 1})
	u64 := bridgetest.Int("unsigned long", 8, false)
	dbl := bridgetest.Float("double", 8)
	i32 := bridgetest.Int("int", 4, true)

	b.WriteU32(0x100, 1)
	b.Write(0x108, []byte{1})
	b.WriteU64(0x110, ^uint64(0))
	b.WriteU64(0x118, 0x3ff8000000000000) // 1.5

	tests := []struct {
		name string
		v    *bridgetest.Value
		want string
	}{
		{"enum", bridgetest.At("c", color, 0x100), `{name="c",iname="local.c",value="Green (1)",type="Color",numchild="0"}`},
		{"bool", bridgetest.At("f", bridgetest.Bool(), 0x108), `{name="f",iname="local.f",value="true",type="bool",numchild="0"}`},
		{"unsigned", bridgetest.At("u", u64, 0x110), `{name="u",iname="local.u",value="18446744073709551615",type="unsigned long",numchild="0"}`},
		{"double", bridgetest.At("d", dbl, 0x118), `{name="d",iname="local.d",value="1.5",type="double",numchild="0"}`},
		{"register", &bridgetest.Value{VName: "r", VType: i32, Data: []byte{7, 0, 0, 0}}, `{name="r",iname="local.r",value="7",type="int",numchild="0"}`},
		{"optimized out", &bridgetest.Value{VName: "o", VType: i32, Optimized: true}, `{name="o",iname="local.o",value="",valueencoded="optimizedout",type="int",numchild="0"}`},
		{"no type", &bridgetest.Value{VName: "n"}, `{name="n",iname="local.n",value="",valueencoded="notaccessible",type="",numchild="0"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b.LocalValues = []*bridgetest.Value{tt.v}
			s := newTestSession(t, b, nil, DefaultOptions())
			if got := renderOne(t, s, types.FetchRequest{Fancy: true}); got != tt.want {
				t.Errorf("item =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

// TestFetch_CharPointer verifies that char pointers show their text as
// latin1 hex.
func TestFetch_CharPointer(t *testing.T) {
	b := bridgetest.New()
	cp := bridgetest.Pointer(bridgetest.Char("char", 1, true), 8)
	b.WritePtr(0x2000, 0x3000)
	text := make([]byte, 32)
	copy(text, "hi")
	b.Write(0x3000, text)
	b.LocalValues = []*bridgetest.Value{bridgetest.At("s", cp, 0x2000)}
	s := newTestSession(t, b, nil, DefaultOptions())

	want := `{name="s",iname="local.s",value="6869",valueencoded="latin1",type="char *",numchild="0"}`
	if got := renderOne(t, s, types.FetchRequest{Fancy: true}); got != want {
		t.Errorf("item =\n%s\nwant\n%s", got, want)
	}
}

// TestFetch_CharPointerLimit verifies that long strings are cut at the
// display limit and marked as elided.
func TestFetch_CharPointerLimit(t *testing.T) {
	b := bridgetest.New()
	cp := bridgetest.Pointer(bridgetest.Char("char", 1, true), 8)
	b.WritePtr(0x2000, 0x3000)
	b.Write(0x3000, []byte(strings.Repeat("a", 64)))
	b.LocalValues = []*bridgetest.Value{bridgetest.At("s", cp, 0x2000)}
	s := newTestSession(t, b, nil, DefaultOptions())

	got := renderOne(t, s, types.FetchRequest{Fancy: true, DisplayStringLimit: 20})
	want := `value="` + strings.Repeat("61", 20) + `",valueencoded="latin1",valueelided="-1"`
	if !strings.Contains(got, want) {
		t.Errorf("item = %s, want it to contain %s", got, want)
	}
}

// TestFetch_ArrayChildCap verifies that arrays render at most maxnumchild
// children followed by a "<more>" marker.
func TestFetch_ArrayChildCap(t *testing.T) {
	b := bridgetest.New()
	i32 := bridgetest.Int("int", 4, true)
	for i := 0; i < 5; i++ {
		b.WriteI32(0x4000+uint64(4*i), int32(10*i))
	}
	b.LocalValues = []*bridgetest.Value{bridgetest.At("a", bridgetest.Array(i32, 5), 0x4000)}
	s := newTestSession(t, b, nil, DefaultOptions())

	doc, err := s.FetchDocument(context.Background(), types.FetchRequest{
		Fancy:       true,
		Expanded:    []string{"local.a"},
		MaxNumChild: 3,
	})
	if err != nil {
		t.Fatalf("FetchDocument() error = %v", err)
	}
	item := doc.Root.Items()[0]
	if got, _ := item.Get("type"); got != "int[5]" {
		t.Errorf("type = %q, want int[5]", got)
	}
	if got := item.NumChild(); got != 5 {
		t.Errorf("numchild = %d, want 5", got)
	}
	children := item.Children()
	if len(children) != 4 {
		t.Fatalf("got %d children, want 3 elements and a marker", len(children))
	}
	if got, _ := children[2].Get("value"); got != "20" {
		t.Errorf("element 2 = %q, want 20", got)
	}
	more := children[3].String()
	want := `{name="<more>",iname="local.a.<more>",value="2",valueencoded="itemcount",numchild="0"}`
	if more != want {
		t.Errorf("marker =\n%s\nwant\n%s", more, want)
	}
}

// TestFetch_Pointer verifies pointer rendering with and without
// auto-dereference.
func TestFetch_Pointer(t *testing.T) {
	b := bridgetest.New()
	pt := pointFixture(b, 0x1000)
	b.WritePtr(0x2000, 0x1000)
	b.WritePtr(0x2008, 0)
	b.LocalValues = []*bridgetest.Value{
		bridgetest.At("pp", bridgetest.Pointer(pt, 8), 0x2000),
	}

	tests := []struct {
		name string
		req  types.FetchRequest
		want string
	}{
		{
			name: "child",
			req:  types.FetchRequest{Fancy: true, Expanded: []string{"local.pp"}},
			want: `{name="pp",iname="local.pp",value="0x1000",type="Point *",numchild="1",children=[` +
				`{name="*pp",iname="local.pp.*",value="",type="Point",numchild="2"}]}`,
		},
		{
			name: "autoderef",
			req:  types.FetchRequest{Fancy: true, AutoDeref: true},
			want: `{name="pp",iname="local.pp",value="",type="Point",numchild="2",origaddr="0x1000"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, b, nil, DefaultOptions())
			if got := renderOne(t, s, tt.req); got != tt.want {
				t.Errorf("item =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}

	t.Run("null", func(t *testing.T) {
		b.LocalValues = []*bridgetest.Value{bridgetest.At("np", bridgetest.Pointer(pt, 8), 0x2008)}
		s := newTestSession(t, b, nil, DefaultOptions())
		want := `{name="np",iname="local.np",value="0x0",type="Point *",numchild="0"}`
		if got := renderOne(t, s, types.FetchRequest{Fancy: true, AutoDeref: true}); got != want {
			t.Errorf("item =\n%s\nwant\n%s", got, want)
		}
	})
}

// TestFetch_BaseClasses verifies that base classes render as "[Base]" children.
func TestFetch_BaseClasses(t *testing.T) {
	b := bridgetest.New()
	pt := pointFixture(b, 0x1000)
	i32 := b.Types["int"]
	b.WriteI32(0x1008, 9)
	derived := bridgetest.Struct("Point3", 12, bridgetest.Base(pt, 0), bridgetest.Field("z", i32, 8))
	b.LocalValues = []*bridgetest.Value{bridgetest.At("q", derived, 0x1000)}
	s := newTestSession(t, b, nil, DefaultOptions())

	got := renderOne(t, s, types.FetchRequest{Fancy: true, Expanded: []string{"local.q"}})
	for _, want := range []string{
		`{name="[Point]",iname="local.q.@1",value="",type="Point",numchild="2"}`,
		`{name="z",iname="local.q.z",value="9",type="int",numchild="0"}`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("item = %s, want it to contain %s", got, want)
		}
	}
}

// TestFetch_ShadowedLocals verifies the "@n" suffix of repeated names.
func TestFetch_ShadowedLocals(t *testing.T) {
	b := bridgetest.New()
	i32 := bridgetest.Int("int", 4, true)
	b.WriteI32(0x100, 1)
	b.WriteI32(0x104, 2)
	b.WriteI32(0x108, 3)
	b.LocalValues = []*bridgetest.Value{
		bridgetest.At("x", i32, 0x100),
		bridgetest.At("x", i32, 0x104),
		bridgetest.At("x", i32, 0x108),
	}
	s := newTestSession(t, b, nil, DefaultOptions())

	items := renderLocals(t, s, types.FetchRequest{Fancy: true})
	want := []string{
		`{name="x",iname="local.x",value="1",type="int",numchild="0"}`,
		`{name="x@1",iname="local.x@1",value="2",type="int",numchild="0"}`,
		`{name="x@2",iname="local.x@2",value="3",type="int",numchild="0"}`,
	}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("item %d =\n%s\nwant\n%s", i, items[i], want[i])
		}
	}
}

// TestFetch_DecoderFailureContained verifies that a failing decoder only
// affects its own node.
func TestFetch_DecoderFailureContained(t *testing.T) {
	b := bridgetest.New()
	pt := pointFixture(b, 0x1000)
	boom := bridgetest.Struct("Boom", 4)
	crash := bridgetest.Struct("Crash", 4)
	b.Write(0x1100, make([]byte, 8))
	b.LocalValues = []*bridgetest.Value{
		bridgetest.At("b", boom, 0x1100),
		bridgetest.At("c", crash, 0x1104),
		bridgetest.At("p", pt, 0x1000),
	}
	reg := NewRegistry()
	reg.RegisterFunc("Boom", func(d *Dumper, v *typemodel.Value) error {
		d.PutValue("partial")
		return errors.DecodeFailed("Boom", fmt.Errorf("injected"))
	})
	reg.RegisterFunc("Crash", func(d *Dumper, v *typemodel.Value) error {
		panic("kaboom")
	})

	tests := []struct {
		name string
		pass bool
		want []string
	}{
		{
			name: "contained",
			want: []string{
				`{name="b",iname="local.b",value="partial",type="Boom",numchild="0"}`,
				`{name="c",iname="local.c",value="",valueencoded="notaccessible",type="Crash",numchild="0"}`,
				`{name="p",iname="local.p",value="",type="Point",numchild="2"}`,
			},
		},
		{
			name: "passexception",
			pass: true,
			want: []string{
				`{name="b",iname="local.b",value="<decoding Boom failed: injected>",type="Boom",numchild="0"}`,
				`{name="c",iname="local.c",value="<decoding Crash failed: panic: kaboom>",type="Crash",numchild="0"}`,
				`{name="p",iname="local.p",value="",type="Point",numchild="2"}`,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, b, reg, DefaultOptions())
			items := renderLocals(t, s, types.FetchRequest{Fancy: true, PassExceptions: tt.pass})
			if len(items) != len(tt.want) {
				t.Fatalf("got %d items, want %d", len(items), len(tt.want))
			}
			for i := range tt.want {
				if items[i] != tt.want[i] {
					t.Errorf("item %d =\n%s\nwant\n%s", i, items[i], tt.want[i])
				}
			}
		})
	}
}

// TestFetch_ChildFailureContained verifies that an unreadable member of an
// expanded struct only affects that member.
func TestFetch_ChildFailureContained(t *testing.T) {
	b := bridgetest.New()
	pt := pointFixture(b, 0x1000)
	b.WriteI32(0x1008, 1)
	b.WriteI32(0x100c, 2)
	b.Fault(0x1000)
	b.LocalValues = []*bridgetest.Value{
		bridgetest.At("p", pt, 0x1000),
		bridgetest.At("q", pt, 0x1008),
	}
	s := newTestSession(t, b, nil, DefaultOptions())

	items := renderLocals(t, s, types.FetchRequest{Fancy: true, Expanded: []string{"local.p"}})
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2: %v", len(items), items)
	}
	p := items[0]
	for _, want := range []string{
		`{name="x",iname="local.p.x",value="",valueencoded="notaccessible"`,
		`{name="y",iname="local.p.y",value="-4",type="int",numchild="0"}`,
	} {
		if !strings.Contains(p, want) {
			t.Errorf("p =\n%s\nmissing %s", p, want)
		}
	}
	if want := `{name="q",iname="local.q",value="",type="Point",numchild="2"}`; items[1] != want {
		t.Errorf("q =\n%s\nwant\n%s", items[1], want)
	}
}

// TestFetch_InvalidLayout verifies that an implausible size is rejected
// before any element is read.
func TestFetch_InvalidLayout(t *testing.T) {
	b := bridgetest.New()
	b.AddType(bridgetest.Int("int", 4, true))
	vec := bridgetest.Struct("Vec", 16)
	for i := 0; i < 3; i++ {
		b.WriteI32(0x9000+uint64(4*i), int32(i+1))
	}
	reg := NewRegistry()
	reg.RegisterFunc("Vec", func(d *Dumper, v *typemodel.Value) error {
		addr, err := d.AddressOf(v)
		if err != nil {
			return err
		}
		size, err := d.ExtractInt(addr)
		if err != nil {
			return err
		}
		if err := d.Check(size >= 0 && size <= 1000000, "size"); err != nil {
			return err
		}
		data, err := d.ExtractPointer(addr + 8)
		if err != nil {
			return err
		}
		elem, err := d.LookupType("int")
		if err != nil {
			return err
		}
		d.PutItemCount(int(size))
		return d.PutArrayData(data, int(size), elem, 0)
	})

	t.Run("valid", func(t *testing.T) {
		b.WriteI32(0x500, 3)
		b.WritePtr(0x508, 0x9000)
		b.LocalValues = []*bridgetest.Value{bridgetest.At("v", vec, 0x500)}
		s := newTestSession(t, b, reg, DefaultOptions())
		got := renderOne(t, s, types.FetchRequest{Fancy: true, Expanded: []string{"local.v"}})
		want := `{name="v",iname="local.v",value="3",valueencoded="itemcount",type="Vec",numchild="3",children=[` +
			`{name="0",iname="local.v.0",value="1",type="int",numchild="0"},` +
			`{name="1",iname="local.v.1",value="2",type="int",numchild="0"},` +
			`{name="2",iname="local.v.2",value="3",type="int",numchild="0"}]}`
		if got != want {
			t.Errorf("item =\n%s\nwant\n%s", got, want)
		}
	})

	t.Run("negative size", func(t *testing.T) {
		b.WriteI32(0x600, -5)
		b.WritePtr(0x608, 0x9000)
		b.LocalValues = []*bridgetest.Value{bridgetest.At("v", vec, 0x600)}
		s := newTestSession(t, b, reg, DefaultOptions())
		before := b.ReadsIn(0x9000, 0x9100)
		got := renderOne(t, s, types.FetchRequest{Fancy: true, Expanded: []string{"local.v"}})
		want := `{name="v",iname="local.v",value="(invalid)",type="Vec",numchild="0"}`
		if got != want {
			t.Errorf("item =\n%s\nwant\n%s", got, want)
		}
		if n := b.ReadsIn(0x9000, 0x9100) - before; n != 0 {
			t.Errorf("%d element reads after a rejected size", n)
		}
	})
}

// TestFetch_TargetLost verifies that losing the target aborts the fetch.
func TestFetch_TargetLost(t *testing.T) {
	b := bridgetest.New()
	b.Write(0x100, make([]byte, 4))
	b.LocalValues = []*bridgetest.Value{bridgetest.At("l", bridgetest.Struct("Lose", 4), 0x100)}
	reg := NewRegistry()
	reg.RegisterFunc("Lose", func(d *Dumper, v *typemodel.Value) error {
		b.Lost = true
		_, err := d.ExtractInt(0x100)
		return err
	})
	s := newTestSession(t, b, reg, DefaultOptions())

	_, err := s.Fetch(context.Background(), types.FetchRequest{Fancy: true})
	if err == nil {
		t.Fatal("Fetch() succeeded after the target was lost")
	}
	if got := errors.CodeOf(err); got != errors.CodeTargetLost {
		t.Errorf("CodeOf() = %q, want %q", got, errors.CodeTargetLost)
	}
}

// TestFetch_Unfancy verifies that fancy=false bypasses the decoders.
func TestFetch_Unfancy(t *testing.T) {
	b := bridgetest.New()
	pt := pointFixture(b, 0x1000)
	b.LocalValues = []*bridgetest.Value{bridgetest.At("p", pt, 0x1000)}
	reg := NewRegistry()
	calls := 0
	reg.RegisterFunc("Point", func(d *Dumper, v *typemodel.Value) error {
		calls++
		d.PutValue("fancy")
		d.PutNumChild(0)
		return nil
	})
	s := newTestSession(t, b, reg, DefaultOptions())

	if got := renderOne(t, s, types.FetchRequest{Fancy: true}); !strings.Contains(got, `value="fancy"`) {
		t.Errorf("fancy item = %s", got)
	}
	if got := renderOne(t, s, types.FetchRequest{}); strings.Contains(got, `value="fancy"`) {
		t.Errorf("unfancy item = %s", got)
	}
	if calls != 1 {
		t.Errorf("decoder called %d times, want 1", calls)
	}
}

// TestFetch_PartialVar verifies that a partial fetch renders only the
// requested variable.
func TestFetch_PartialVar(t *testing.T) {
	b := bridgetest.New()
	i32 := bridgetest.Int("int", 4, true)
	b.WriteI32(0x100, 1)
	b.WriteI32(0x104, 2)
	b.LocalValues = []*bridgetest.Value{
		bridgetest.At("a", i32, 0x100),
		bridgetest.At("q", i32, 0x104),
	}
	s := newTestSession(t, b, nil, DefaultOptions())

	out, err := s.Fetch(context.Background(), types.FetchRequest{Fancy: true, PartialVar: "local.q"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if strings.Contains(out, `iname="local.a"`) {
		t.Errorf("partial fetch rendered local.a: %s", out)
	}
	if !strings.Contains(out, `iname="local.q"`) {
		t.Errorf("partial fetch missed local.q: %s", out)
	}
	if !strings.Contains(out, `partial="1"`) {
		t.Errorf("partial flag missing: %s", out)
	}
}

// TestFetch_Watchers verifies watch expressions, including one that does not
// evaluate.
func TestFetch_Watchers(t *testing.T) {
	b := bridgetest.New()
	i32 := bridgetest.Int("int", 4, true)
	b.Expressions["1+1"] = b.Integer(i32, 2)
	s := newTestSession(t, b, nil, DefaultOptions())

	items := renderLocals(t, s, types.FetchRequest{
		Fancy:    true,
		Watchers: []types.Watcher{{Expression: "1+1"}, {Expression: "nope"}},
	})
	want := []string{
		`{iname="watch.0",exp="312b31",value="2",type="int",numchild="0",wname="312b31"}`,
		`{iname="watch.1",exp="6e6f7065",value="<no such value>",type=" ",numchild="0",wname="6e6f7065"}`,
	}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d: %v", len(items), len(want), items)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("watcher %d =\n%s\nwant\n%s", i, items[i], want[i])
		}
	}
}

// TestFetch_VarList verifies that named variables are evaluated and missing
// ones render as inaccessible.
func TestFetch_VarList(t *testing.T) {
	b := bridgetest.New()
	i32 := bridgetest.Int("int", 4, true)
	b.WriteI32(0x100, 42)
	b.Expressions["answer"] = bridgetest.At("answer", i32, 0x100)
	s := newTestSession(t, b, nil, DefaultOptions())

	items := renderLocals(t, s, types.FetchRequest{Fancy: true, VarList: []string{"answer", "missing"}})
	want := []string{
		`{name="answer",iname="local.answer",value="42",type="int",numchild="0"}`,
		`{name="missing",iname="local.missing",value="",valueencoded="notaccessible",type="",numchild="0"}`,
	}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d: %v", len(items), len(want), items)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("item %d =\n%s\nwant\n%s", i, items[i], want[i])
		}
	}
}

// TestFetch_SpecialBreakpoints verifies that special breakpoints are only
// sent when the requested set changes.
func TestFetch_SpecialBreakpoints(t *testing.T) {
	b := bridgetest.New()
	s := newTestSession(t, b, nil, DefaultOptions())
	ctx := context.Background()

	req := types.FetchRequest{BreakOnAbort: true, BreakOnFatal: true}
	for i := 0; i < 2; i++ {
		if _, err := s.Fetch(ctx, req); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}
	want := []string{"abort", "qFatal", "QMessageLogger::fatal"}
	if strings.Join(b.Breakpoints, ",") != strings.Join(want, ",") {
		t.Errorf("breakpoints = %v, want %v", b.Breakpoints, want)
	}
	if s.Fetches() != 2 {
		t.Errorf("Fetches() = %d, want 2", s.Fetches())
	}
}

// TestFetch_Counts verifies per-decoder counters and type reports.
func TestFetch_Counts(t *testing.T) {
	b := bridgetest.New()
	pt := pointFixture(b, 0x1000)
	b.LocalValues = []*bridgetest.Value{
		bridgetest.At("p", pt, 0x1000),
		bridgetest.At("p", pt, 0x1000),
	}
	reg := NewRegistry()
	reg.RegisterFunc("Point", func(d *Dumper, v *typemodel.Value) error {
		return d.PutPlainChildren(v)
	})
	s := newTestSession(t, b, reg, DefaultOptions())

	out, err := s.Fetch(context.Background(), types.FetchRequest{Fancy: true})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.Contains(out, `counts={Point="2"}`) {
		t.Errorf("counts missing: %s", out)
	}
	// "Point" in hex.
	if !strings.Contains(out, `typeinfo=[{name="506f696e74",size="8"}]`) {
		t.Errorf("typeinfo missing: %s", out)
	}
}

func TestQtNamespace(t *testing.T) {
	b := bridgetest.New()
	shared := bridgetest.Struct("Ns::QArrayData", 16)
	b.Write(0x700, make([]byte, 16))
	b.Expressions["QArrayData::shared_null[0]"] = bridgetest.At("", shared, 0x700)
	s := newTestSession(t, b, nil, DefaultOptions())

	ns, err := s.QtNamespace(context.Background())
	if err != nil {
		t.Fatalf("QtNamespace() error = %v", err)
	}
	if ns != "Ns::" {
		t.Errorf("QtNamespace() = %q, want Ns::", ns)
	}

	out, err := s.Fetch(context.Background(), types.FetchRequest{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.Contains(out, `qtnamespace="Ns::"`) {
		t.Errorf("document lacks the namespace: %s", out)
	}
}

func TestQtVersion(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *bridgetest.Bridge)
		call  bool
		want  layout.Version
	}{
		{
			name: "hook data",
			setup: func(b *bridgetest.Bridge) {
				b.Symbols["qtHookData"] = 0x5000
				b.Write(0x5000, make([]byte, 24))
				b.WriteU64(0x5010, 0x050f02)
			},
			want: layout.Make(5, 15, 2),
		},
		{
			name: "qVersion call",
			setup: func(b *bridgetest.Bridge) {
				text := make([]byte, 16)
				copy(text, "5.12.3")
				b.Write(0x6000, text)
				cp := bridgetest.Pointer(bridgetest.Char("char", 1, true), 8)
				b.Expressions["((const char*(*)())qVersion)()"] = b.Integer(cp, 0x6000)
			},
			call: true,
			want: layout.Make(5, 12, 3),
		},
		{
			name: "qVersion string at end of mapping",
			setup: func(b *bridgetest.Bridge) {
				b.Write(0x6000, []byte("5.9.1\x00"))
				cp := bridgetest.Pointer(bridgetest.Char("char", 1, true), 8)
				b.Expressions["((const char*(*)())qVersion)()"] = b.Integer(cp, 0x6000)
			},
			call: true,
			want: layout.Make(5, 9, 1),
		},
		{
			name:  "fallback",
			setup: func(b *bridgetest.Bridge) {},
			want:  layout.Make(5, 6, 0),
		},
		{
			name: "implausible hook data",
			setup: func(b *bridgetest.Bridge) {
				b.Symbols["qtHookData"] = 0x5000
				b.Write(0x5000, make([]byte, 24))
				b.WriteU64(0x5010, 0x99)
			},
			want: layout.Make(5, 6, 0),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bridgetest.New()
			tt.setup(b)
			opts := DefaultOptions()
			opts.CanCall = tt.call
			s := newTestSession(t, b, nil, opts)
			got, err := s.QtVersion(context.Background())
			if err != nil {
				t.Fatalf("QtVersion() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("QtVersion() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNormalizeTypeName(t *testing.T) {
	tests := []struct {
		name, ns, want string
	}{
		{"QMap<int, QString>", "", "QMap"},
		{"const QList<QString>", "", "QList"},
		{"Ns::QHash<int, QString>::Node", "Ns::", "QHash__Node"},
		{"std::vector<int, std::allocator<int> >", "", "std__vector"},
		{"QString const", "", "QString"},
		{"class QObject", "", "QObject"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTypeName(tt.name, tt.ns); got != tt.want {
				t.Errorf("NormalizeTypeName(%q, %q) = %q, want %q", tt.name, tt.ns, got, tt.want)
			}
		})
	}
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFunc("QMap", func(d *Dumper, v *typemodel.Value) error { return nil })

	if _, key, ok := reg.Lookup("Ns::QMap<int, int>", "Ns::"); !ok || key != "QMap" {
		t.Errorf("Lookup() = %q, %v; want QMap, true", key, ok)
	}
	if _, _, ok := reg.Lookup("QMapNode<int, int>", ""); ok {
		t.Error("Lookup() matched an unrelated type")
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}
