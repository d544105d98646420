package output

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// TestScopeCommitRollback verifies nested scopes keep or discard output.
func TestScopeCommitRollback(t *testing.T) {
	root := NewRoot()

	a := root.Open("a", "local.a")
	a.Item().SetValue("1", "", 0)
	a.Item().SetNumChild(0)
	a.Commit()

	b := root.Open("b", "local.b")
	b.Item().Expand()
	b1 := b.Open("0", "local.b.0")
	b1.Item().SetValue("x", "", 0)
	b1.Commit()
	b2 := b.Open("1", "local.b.1")
	b2.Item().SetValue("half", "", 0)
	b2.Rollback()
	b2.Commit()
	b.Commit()
	b.Commit()

	if got := len(root.Items()); got != 2 {
		t.Fatalf("root has %d items, want 2", got)
	}
	want := `{name="b",iname="local.b",children=[{name="0",iname="local.b.0",value="x"}]}`
	if got := root.Items()[1].String(); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
	if !b2.Done() || b2.Item().Has(KeyValue) {
		t.Error("rolled back scope should be done and empty")
	}
}

// TestItemRenderOrder verifies protocol field order and escaping.
func TestItemRenderOrder(t *testing.T) {
	it := NewItem("s", "local.s")
	it.Set("editformat", "2")
	it.SetNumChild(3)
	it.Set(KeyType, "QString")
	it.SetValue("6100", UTF16, 0)
	it.Set(KeyKey, `"k\`)

	want := `{name="s",iname="local.s",key="\"k\\",value="6100",valueencoded="utf16",type="QString",numchild="3",editformat="2"}`
	if got := it.String(); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}

	it.SetValue("plain", "", 0)
	if it.Has(KeyValueEncoded) {
		t.Error("SetValue without encoding should clear valueencoded")
	}
	if it.NumChild() != 3 {
		t.Errorf("NumChild() = %d", it.NumChild())
	}
}

// TestDocumentString verifies the top-level document shape.
func TestDocumentString(t *testing.T) {
	doc := NewDocument()
	x := doc.Root.Open("x", "local.x")
	x.Item().SetValue("2", ItemCount, 0)
	x.Item().SetNumChild(2)
	x.Commit()
	doc.TypeInfo = []TypeInfo{{Name: "QHash<int, int>", Size: 8}}
	doc.QtNamespace = "Ns::"
	doc.Counts["QHash"] = 1
	doc.Counts["QString"] = 4
	doc.Elapsed = 12 * time.Millisecond
	doc.Partial = true

	got := doc.String()
	want := `data=[{name="x",iname="local.x",value="2",valueencoded="itemcount",numchild="2"}],` +
		`typeinfo=[{name="` + HexString("QHash<int, int>") + `",size="8"}],` +
		`qtnamespace="Ns::",partial="1",counts={QHash="1",QString="4"},time="12"`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

// TestParse verifies a rendered document parses back into items.
func TestParse(t *testing.T) {
	doc := NewDocument()
	l := doc.Root.Open("list", "local.list")
	l.Item().SetValue("2", ItemCount, 0)
	l.Item().Set(KeyType, "QStringList")
	l.Item().SetNumChild(2)
	l.Item().Expand()
	for i, s := range []string{"ab", "cé"} {
		c := l.Open(Itoa(int64(i)), "local.list."+Itoa(int64(i)))
		c.Item().SetValue(HexUTF16(s), UTF16, 0)
		c.Item().Set("editvalue", "x")
		c.Item().SetNumChild(0)
		c.Commit()
	}
	l.Commit()
	doc.Counts["QList"] = 1
	doc.TypeInfo = []TypeInfo{{Name: "QString", Size: 8}}

	parsed, err := Parse(doc.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed.Items) != 1 {
		t.Fatalf("got %d items", len(parsed.Items))
	}
	list := parsed.Items[0]
	if list.Name != "list" || list.Type != "QStringList" || list.NumChild != 2 || list.Encoding != "itemcount" {
		t.Errorf("unexpected list item %+v", list)
	}
	if len(list.Children) != 2 || list.Children[1].Text != "cé" {
		t.Fatalf("unexpected children %+v", list.Children)
	}
	if list.Children[0].Attrs["editvalue"] != "x" {
		t.Errorf("extra attributes not kept: %v", list.Children[0].Attrs)
	}
	if parsed.Counts["QList"] != 1 || parsed.Partial {
		t.Errorf("unexpected trailer %+v", parsed)
	}
	if len(parsed.TypeInfo) != 1 || parsed.TypeInfo[0].Name != "QString" {
		t.Errorf("typeinfo = %+v", parsed.TypeInfo)
	}
}

// TestParseErrors verifies malformed documents are rejected.
func TestParseErrors(t *testing.T) {
	for _, doc := range []string{
		`data=[{name="x"`,
		`data=[{name="x}]`,
		`data="x"`,
		`typeinfo=[]`,
		`data=[{="x"}]`,
		`data=[{name="x"}],partial=1`,
	} {
		if _, err := Parse(doc); err == nil {
			t.Errorf("Parse(%q) should fail", doc)
		}
	}
}

// TestDecode verifies the character encodings.
func TestDecode(t *testing.T) {
	tests := []struct {
		value string
		enc   Encoding
		want  string
	}{
		{"616263", Latin1, "abc"},
		{"e9", Latin1, "é"},
		{HexString("hé"), UTF8, "hé"},
		{HexUTF16("\U0001F600x"), UTF16, "\U0001F600x"},
		{"41000000", UCS4, "A"},
	}
	for _, tt := range tests {
		got, err := Decode(tt.value, tt.enc)
		if err != nil {
			t.Errorf("Decode(%q, %s): %v", tt.value, tt.enc, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Decode(%q, %s) = %q, want %q", tt.value, tt.enc, got, tt.want)
		}
	}

	if _, err := Decode("610", UTF16); err == nil {
		t.Error("odd hex should fail")
	}
	if _, err := Decode("61", ItemCount); err == nil {
		t.Error("semantic encodings do not decode")
	}
	if IsPrintable(`a"b`) || !IsPrintable("abc 12") {
		t.Error("IsPrintable mismatch")
	}
}

// TestConvert verifies export of a parsed document.
func TestConvert(t *testing.T) {
	src := `data=[{name="i",iname="local.i",value="5",type="int",numchild="0"}],typeinfo=[],partial="0",counts={},time="3"`

	js, err := Convert(src, "json")
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(string(js), `"iname": "local.i"`) {
		t.Errorf("unexpected json %s", js)
	}

	bin, err := Convert(src, "cbor")
	if err != nil {
		t.Fatalf("cbor: %v", err)
	}
	doc, err := DecodeCBOR(bin)
	if err != nil {
		t.Fatalf("DecodeCBOR: %v", err)
	}
	if len(doc.Items) != 1 || doc.Items[0].Value != "5" || doc.TimeMS != 3 {
		t.Errorf("unexpected decoded document %+v", doc)
	}

	if _, err := Convert(src, "xml"); err == nil {
		t.Error("unknown format should fail")
	}
}

// TestCompress verifies zstd framing of CBOR exports and that DecodeCBOR
// accepts both framed and plain input.
func TestCompress(t *testing.T) {
	src := `data=[{name="s",iname="local.s",value="abc",type="QString",numchild="0"}],typeinfo=[],partial="0",counts={},time="1"`
	bin, err := Convert(src, "cbor")
	if err != nil {
		t.Fatalf("cbor: %v", err)
	}
	packed, err := Compress(bin)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if !bytes.HasPrefix(packed, zstdMagic) {
		t.Fatalf("missing zstd magic in % x", packed[:4])
	}

	plain, err := Decompress(packed)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if !bytes.Equal(plain, bin) {
		t.Error("Decompress() did not restore the input")
	}
	if same, _ := Decompress(bin); !bytes.Equal(same, bin) {
		t.Error("Decompress() changed unframed input")
	}

	doc, err := DecodeCBOR(packed)
	if err != nil {
		t.Fatalf("DecodeCBOR(compressed) error = %v", err)
	}
	if len(doc.Items) != 1 || doc.Items[0].Type != "QString" {
		t.Errorf("unexpected items %+v", doc.Items)
	}

	corrupt := append(append([]byte{}, zstdMagic...), 0xff, 0xff)
	if _, err := DecodeCBOR(corrupt); err == nil {
		t.Error("expected an error for a corrupt frame")
	}
}
