package mappings

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	maperrors "github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
)

const sampleXML = `<?xml version="1.0"?>
<mappings>
  <pair from="8.60" to="12.00">
    <item from="100" to="150" fromname="apple" toname="red apple">
      <attribute name="charges" type="u16" value="5"/>
      <attribute name="aid" action="rename" to="action_id"/>
      <attribute name="text" action="delete"/>
    </item>
    <range from="2000" to="2002" offset="1000"/>
  </pair>
  <pair from="1200" to="860"/>
</mappings>`

func sampleTable(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable()
	if err := ReadXML(tbl, strings.NewReader(sampleXML), "sample.xml"); err != nil {
		t.Fatalf("ReadXML() error = %v", err)
	}
	return tbl
}

func TestReadXML(t *testing.T) {
	tbl := sampleTable(t)
	if tbl.Len() != 4 {
		t.Errorf("Len() = %d, want 4", tbl.Len())
	}
	if !tbl.HasPair(1200, 860) || tbl.PairLen(1200, 860) != 0 {
		t.Error("empty pair 1200 -> 860 missing")
	}

	m, ok := tbl.Lookup(860, 1200, 100)
	if !ok || m.TargetID != 150 || m.TargetName != "red apple" {
		t.Fatalf("Lookup(100) = %+v, %v", m, ok)
	}
	if len(m.Changes) != 3 {
		t.Fatalf("changes = %v", m.Changes)
	}
	if c := m.Changes[0]; c.Op != OpSet || c.Value != mapdata.U16(5) {
		t.Errorf("change 0 = %+v", c)
	}
	// legacy spelling
	if c := m.Changes[1]; c.Name != mapdata.AttrActionID || c.To != mapdata.AttrActionID {
		t.Errorf("change 1 = %+v", c)
	}

	if m, ok := tbl.Lookup(860, 1200, 2001); !ok || m.TargetID != 3001 {
		t.Errorf("range mapping = %+v, %v", m, ok)
	}
	if _, ok := tbl.Lookup(1200, 860, 100); ok {
		t.Error("pairs are directed")
	}
}

func TestReadXMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"root", `<items/>`},
		{"client", `<mappings><pair from="x" to="1200"/></mappings>`},
		{"id", `<mappings><pair from="860" to="1200"><item from="70000" to="1"/></pair></mappings>`},
		{"action", `<mappings><pair from="860" to="1200"><item from="1" to="2"><attribute name="x" action="grow"/></item></pair></mappings>`},
		{"value", `<mappings><pair from="860" to="1200"><item from="1" to="2"><attribute name="count" value="300"/></item></pair></mappings>`},
		{"range", `<mappings><pair from="860" to="1200"><range from="65000" to="65535" offset="10"/></pair></mappings>`},
		{"syntax", `<mappings><pair`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ReadXML(NewTable(), strings.NewReader(tt.doc), "bad.xml")
			if !errors.Is(err, maperrors.ErrInvalidInput) {
				t.Errorf("ReadXML() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestEncodingsRoundTrip(t *testing.T) {
	want := sampleTable(t)
	dir := t.TempDir()
	for _, name := range []string{"table.xml", "table.yaml", "table.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			ctx := context.Background()
			if err := SaveFile(ctx, want, path); err != nil {
				t.Fatalf("SaveFile() error = %v", err)
			}
			got, err := LoadFiles(ctx, path)
			if err != nil {
				t.Fatalf("LoadFiles() error = %v", err)
			}
			if got.Digest() != want.Digest() {
				var a, b bytes.Buffer
				WriteYAML(want, &a)
				WriteYAML(got, &b)
				t.Errorf("table changed:\nwant\n%s\ngot\n%s", a.String(), b.String())
			}
		})
	}
}

func TestReadYAML(t *testing.T) {
	doc := `
pairs:
  - from: "10.98"
    to: "12.00"
    items:
      - from: 7
        to: 8
        changes:
          - {name: tier, type: u8, value: "2"}
          - {action: delete, name: charges}
    ranges:
      - {from: 10, to: 11, offset: -5}
`
	tbl := NewTable()
	if err := ReadYAML(tbl, strings.NewReader(doc), "t.yaml"); err != nil {
		t.Fatal(err)
	}
	if m, ok := tbl.Lookup(1098, 1200, 7); !ok || m.TargetID != 8 || len(m.Changes) != 2 {
		t.Errorf("Lookup(7) = %+v, %v", m, ok)
	}
	if m, _ := tbl.Lookup(1098, 1200, 11); m.TargetID != 6 {
		t.Errorf("range target = %d, want 6", m.TargetID)
	}

	err := ReadYAML(NewTable(), strings.NewReader("pairs:\n  - from: 860\n    to: 1200\n    bogus: 1\n"), "t.yaml")
	if !errors.Is(err, maperrors.ErrInvalidInput) {
		t.Errorf("unknown field error = %v", err)
	}
}

func TestAttributeChangeApply(t *testing.T) {
	it := mapdata.NewItem(1).Set(mapdata.AttrCharges, mapdata.U16(3)).Set("label", mapdata.String("x"))
	tests := []struct {
		change AttributeChange
		want   bool
	}{
		{AttributeChange{Op: OpSet, Name: mapdata.AttrCharges, Value: mapdata.U16(3)}, false},
		{AttributeChange{Op: OpSet, Name: mapdata.AttrCharges, Value: mapdata.U16(4)}, true},
		{AttributeChange{Op: OpRename, Name: "label", To: "caption"}, true},
		{AttributeChange{Op: OpRename, Name: "label", To: "caption"}, false},
		{AttributeChange{Op: OpDelete, Name: "caption"}, true},
		{AttributeChange{Op: OpDelete, Name: "caption"}, false},
	}
	for i, tt := range tests {
		if got := tt.change.Apply(it); got != tt.want {
			t.Errorf("step %d %s: Apply() = %v, want %v", i, tt.change, got, tt.want)
		}
	}
	if len(it.Attrs) != 1 {
		t.Errorf("attrs = %v", it.Attrs)
	}
}

func TestTableConcurrentReads(t *testing.T) {
	tbl := sampleTable(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tbl.Lookup(860, 1200, 100)
				tbl.Pairs()
			}
		}()
	}
	tbl.Add(860, 1200, Mapping{SourceID: 9, TargetID: 10})
	wg.Wait()
	if _, ok := tbl.Lookup(860, 1200, 9); !ok {
		t.Error("added mapping missing")
	}
}

func TestTableEditing(t *testing.T) {
	tbl := sampleTable(t)
	before := tbl.Digest()
	other := NewTable()
	other.Add(860, 1200, Mapping{SourceID: 100, TargetID: 151})
	tbl.Merge(other)
	if m, _ := tbl.Lookup(860, 1200, 100); m.TargetID != 151 {
		t.Errorf("Merge() kept %d", m.TargetID)
	}
	if tbl.Digest() == before {
		t.Error("Digest() unchanged after merge")
	}
	tbl.Remove(860, 1200, 100)
	if _, ok := tbl.Lookup(860, 1200, 100); ok {
		t.Error("Remove() kept mapping")
	}
	tbl.ClearPair(1200, 860)
	if got := tbl.Pairs(); len(got) != 1 || got[0] != (Pair{860, 1200}) {
		t.Errorf("Pairs() = %v", got)
	}
	tbl.Clear()
	if tbl.Len() != 0 || len(tbl.Pairs()) != 0 {
		t.Error("Clear() left content")
	}
}

func TestEncodingFor(t *testing.T) {
	if _, err := EncodingFor("table.json"); err == nil {
		t.Error("expected error for .json")
	}
	if enc, _ := EncodingFor("T.YML"); enc != EncodingYAML {
		t.Errorf("EncodingFor(T.YML) = %q", enc)
	}
}
