package dap

import (
	"reflect"
	"testing"

	"github.com/ctagard/dap-dump/internal/bridge"
)

// TestParsePtype_Point verifies member offsets and the total size of a
// plain struct.
func TestParsePtype_Point(t *testing.T) {
	d, err := parsePtype(pointPtype)
	if err != nil {
		t.Fatalf("parsePtype() error = %v", err)
	}
	if d.Keyword != "struct" || d.Name != "Point" || d.Size != 8 {
		t.Errorf("decl = %s %q size %d, want struct \"Point\" size 8", d.Keyword, d.Name, d.Size)
	}
	want := []fieldDecl{
		{Name: "x", TypeName: "int", BitPos: 0, BitSize: 32, Size: 4},
		{Name: "y", TypeName: "int", BitPos: 32, BitSize: 32, Size: 4},
	}
	if !reflect.DeepEqual(d.Fields, want) {
		t.Errorf("Fields = %+v, want %+v", d.Fields, want)
	}
}

// TestParsePtype_NestedAndBitfields verifies anonymous unions, union
// members without offsets and bitfields.
func TestParsePtype_NestedAndBitfields(t *testing.T) {
	out := `/* offset      |    size */  type = struct Outer {
/*      0      |       4 */    int tag;
/* XXX  4-byte hole      */
/*      8      |      16 */    union {
/*                     8 */        double d;
/*                    16 */        char buf[16];

                                   /* total size (bytes):   16 */
                               } u;
/*     24: 0   |       4 */    unsigned int flag : 1;
/*     24: 1   |       4 */    unsigned int mode : 3;
/* XXX  3-byte padding   */

                               /* total size (bytes):   32 */
                             }
`
	d, err := parsePtype(out)
	if err != nil {
		t.Fatalf("parsePtype() error = %v", err)
	}
	if d.Size != 32 {
		t.Errorf("Size = %d, want 32", d.Size)
	}
	if len(d.Fields) != 4 {
		t.Fatalf("got %d fields, want 4: %+v", len(d.Fields), d.Fields)
	}

	u := d.Fields[1]
	if u.Name != "u" || u.BitPos != 64 || u.Nested == nil {
		t.Fatalf("union field = %+v, want u at bit 64 with members", u)
	}
	if u.Nested.Keyword != "union" || u.Nested.Size != 16 {
		t.Errorf("nested = %s size %d, want union size 16", u.Nested.Keyword, u.Nested.Size)
	}
	wantUnion := []fieldDecl{
		{Name: "d", TypeName: "double", BitPos: 0, BitSize: 64, Size: 8},
		{Name: "buf", TypeName: "char [16]", BitPos: 0, BitSize: 128, Size: 16},
	}
	if !reflect.DeepEqual(u.Nested.Fields, wantUnion) {
		t.Errorf("union fields = %+v, want %+v", u.Nested.Fields, wantUnion)
	}

	bits := []struct {
		name    string
		bitPos  int64
		bitSize int64
	}{
		{"flag", 192, 1},
		{"mode", 193, 3},
	}
	for i, want := range bits {
		f := d.Fields[2+i]
		if f.Name != want.name || f.BitPos != want.bitPos || f.BitSize != want.bitSize {
			t.Errorf("field %d = %s@%d:%d, want %s@%d:%d", 2+i, f.Name, f.BitPos, f.BitSize, want.name, want.bitPos, want.bitSize)
		}
	}
}

// TestParsePtype_Bases verifies base classes, virtual inheritance, vtable
// pointers and skipped access labels and methods.
func TestParsePtype_Bases(t *testing.T) {
	out := `/* offset      |    size */  type = class Derived : public Base, public virtual Other {
/*      0      |       8 */    int (**_vptr.Derived)(void);
                             public:
/*      8      |       4 */    int value;
                               static int instances;

                               void touch(void);

                               /* total size (bytes):   24 */
                             }
`
	d, err := parsePtype(out)
	if err != nil {
		t.Fatalf("parsePtype() error = %v", err)
	}
	wantBases := []baseDecl{{Name: "Base"}, {Name: "Other", Virtual: true}}
	if !reflect.DeepEqual(d.Bases, wantBases) {
		t.Errorf("Bases = %+v, want %+v", d.Bases, wantBases)
	}
	if len(d.Fields) != 2 {
		t.Fatalf("got %d fields, want 2: %+v", len(d.Fields), d.Fields)
	}
	if d.Fields[0].Name != "_vptr.Derived" || d.Fields[0].TypeName != "int (**)(void)" {
		t.Errorf("vptr field = %+v", d.Fields[0])
	}
	if d.Fields[1].Name != "value" || d.Fields[1].BitPos != 64 {
		t.Errorf("value field = %+v", d.Fields[1])
	}
}

// TestParsePtype_Simple verifies single line output: templates with a
// with-clause, enums and scalars.
func TestParsePtype_Simple(t *testing.T) {
	t.Run("template header", func(t *testing.T) {
		out := "/* offset | size */  type = class QList<int> [with T = int] : public QListSpecialMethods<int> {\n" +
			"/*      0      |       8 */    QListData::Data *d;\n" +
			"                               /* total size (bytes):    8 */\n" +
			"                             }\n"
		d, err := parsePtype(out)
		if err != nil {
			t.Fatalf("parsePtype() error = %v", err)
		}
		if d.Name != "QList<int>" {
			t.Errorf("Name = %q, want QList<int>", d.Name)
		}
		if len(d.Bases) != 1 || d.Bases[0].Name != "QListSpecialMethods<int>" {
			t.Errorf("Bases = %+v", d.Bases)
		}
		if len(d.Fields) != 1 || d.Fields[0].TypeName != "QListData::Data *" {
			t.Errorf("Fields = %+v", d.Fields)
		}
	})

	t.Run("enum", func(t *testing.T) {
		d, err := parsePtype("type = enum class Color : unsigned char {Red, Green = 4, Blue}")
		if err != nil {
			t.Fatalf("parsePtype() error = %v", err)
		}
		want := []bridge.Enumerator{{Name: "Red", Value: 0}, {Name: "Green", Value: 4}, {Name: "Blue", Value: 5}}
		if d.Keyword != "enum" || d.Name != "Color" || d.Underlying != "unsigned char" {
			t.Errorf("decl = %s %q : %q", d.Keyword, d.Name, d.Underlying)
		}
		if !reflect.DeepEqual(d.Enumerators, want) {
			t.Errorf("Enumerators = %+v, want %+v", d.Enumerators, want)
		}
	})

	t.Run("scalar", func(t *testing.T) {
		d, err := parsePtype("type = unsigned int")
		if err != nil {
			t.Fatalf("parsePtype() error = %v", err)
		}
		if d.IsAggregate() || d.Text != "unsigned int" {
			t.Errorf("decl = %+v, want text \"unsigned int\"", d)
		}
	})

	t.Run("errors", func(t *testing.T) {
		for _, out := range []string{
			`No symbol "Nope" in current context.`,
			"type = enum Broken {A, B",
			"type = enum Broken {A = x}",
		} {
			if _, err := parsePtype(out); err == nil {
				t.Errorf("parsePtype(%q) succeeded, want error", out)
			}
		}
	})
}

// TestParseMember verifies the split of member declarations into name and
// type.
func TestParseMember(t *testing.T) {
	tests := []struct {
		decl string
		want fieldDecl
		ok   bool
	}{
		{"char *name;", fieldDecl{Name: "name", TypeName: "char *"}, true},
		{"int v[4][2];", fieldDecl{Name: "v", TypeName: "int [4][2]"}, true},
		{"unsigned int b : 3;", fieldDecl{Name: "b", TypeName: "unsigned int", BitSize: 3}, true},
		{"int (**_vptr.Base)(void);", fieldDecl{Name: "_vptr.Base", TypeName: "int (**)(void)"}, true},
		{"void (*callback)(int, void *);", fieldDecl{Name: "callback", TypeName: "void (*)(int, void *)"}, true},
		{"QMap<int, QString> map;", fieldDecl{Name: "map", TypeName: "QMap<int, QString>"}, true},
		{"static int count;", fieldDecl{}, false},
		{"typedef int size_type;", fieldDecl{}, false},
		{";", fieldDecl{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			got, ok := parseMember(tt.decl)
			if ok != tt.ok {
				t.Fatalf("parseMember(%q) ok = %v, want %v", tt.decl, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("parseMember(%q) = %+v, want %+v", tt.decl, got, tt.want)
			}
		})
	}
}

// TestTemplateArgs verifies splitting of top level template arguments.
func TestTemplateArgs(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{"QVector<int>", []string{"int"}},
		{"QMap<QString, QList<int> >", []string{"QString", "QList<int>"}},
		{"QHash<int, std::pair<int, long> >", []string{"int", "std::pair<int, long>"}},
		{"std::array<int, 4>", []string{"int", "4"}},
		{"int", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := templateArgs(tt.name); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("templateArgs(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

// TestParseIntegralArg verifies recognition of value template arguments.
func TestParseIntegralArg(t *testing.T) {
	tests := []struct {
		arg  string
		want int64
		ok   bool
	}{
		{"256", 256, true},
		{"4u", 4, true},
		{"-1", -1, true},
		{"0x10", 16, true},
		{"(Qt::Orientation)2", 2, true},
		{"true", 1, true},
		{"false", 0, true},
		{"int", 0, false},
		{"QString", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, ok := parseIntegralArg(tt.arg)
			if ok != tt.ok || got != tt.want {
				t.Errorf("parseIntegralArg(%q) = %d, %v, want %d, %v", tt.arg, got, ok, tt.want, tt.ok)
			}
		})
	}
}

// TestBuiltinScalar verifies the sizes of fundamental types per target.
func TestBuiltinScalar(t *testing.T) {
	linux64 := bridge.TargetInfo{PointerSize: 8, OS: bridge.OSLinux}
	linux32 := bridge.TargetInfo{PointerSize: 4, OS: bridge.OSLinux}
	win64 := bridge.TargetInfo{PointerSize: 8, OS: bridge.OSWindows}

	tests := []struct {
		name   string
		target bridge.TargetInfo
		kind   bridge.Kind
		size   int64
		signed bool
		ok     bool
	}{
		{"int", linux64, bridge.KindInt, 4, true, true},
		{"unsigned", linux64, bridge.KindInt, 4, false, true},
		{"short", linux64, bridge.KindInt, 2, true, true},
		{"unsigned long", linux64, bridge.KindInt, 8, false, true},
		{"long", linux32, bridge.KindInt, 4, true, true},
		{"long", win64, bridge.KindInt, 4, true, true},
		{"long long", win64, bridge.KindInt, 8, true, true},
		{"signed char", linux64, bridge.KindChar, 1, true, true},
		{"unsigned char", linux64, bridge.KindChar, 1, false, true},
		{"const bool", linux64, bridge.KindBool, 1, false, true},
		{"double", linux64, bridge.KindFloat, 8, true, true},
		{"long double", linux64, bridge.KindFloat, 16, true, true},
		{"long double", linux32, bridge.KindFloat, 12, true, true},
		{"long double", win64, bridge.KindFloat, 8, true, true},
		{"wchar_t", linux64, bridge.KindChar, 4, true, true},
		{"wchar_t", win64, bridge.KindChar, 2, false, true},
		{"char16_t", linux64, bridge.KindChar, 2, false, true},
		{"Point", linux64, 0, 0, false, false},
		{"unsigned Point", linux64, 0, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+string(tt.target.OS), func(t *testing.T) {
			kind, size, signed, ok := builtinScalar(tt.name, tt.target)
			if ok != tt.ok {
				t.Fatalf("builtinScalar(%q) ok = %v, want %v", tt.name, ok, tt.ok)
			}
			if kind != tt.kind || size != tt.size || signed != tt.signed {
				t.Errorf("builtinScalar(%q) = %v %d %v, want %v %d %v", tt.name, kind, size, signed, tt.kind, tt.size, tt.signed)
			}
		})
	}
}
