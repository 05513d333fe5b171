package rules

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	maperrors "github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
)

const sample = `
# comment
client 8.60 -> 10.98 {
    rename aid -> action_id;
    drop text on 1987, 1988;
    set label:string = "old" on 2400;
    set charges = 7;
    replace 100 -> 150;
    remove 2043;
    clear 0x80;   // beds gone
}

structure 2 -> 3 {
    flag 0x01 -> 0x200;
}
`

func TestParse(t *testing.T) {
	rs, err := Parse("sample.rules", []byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rs.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rs.Len())
	}
	acts := rs.ForClient(860, 1098)
	if len(acts) != 7 {
		t.Fatalf("ForClient() = %d actions, want 7", len(acts))
	}
	wantKinds := []Kind{KindRename, KindDrop, KindSet, KindSet, KindReplace, KindRemove, KindClear}
	for i, k := range wantKinds {
		if acts[i].Kind != k {
			t.Errorf("action %d kind = %s, want %s", i, acts[i].Kind, k)
		}
	}
	if acts[0].Attr != mapdata.AttrActionID {
		t.Errorf("rename source = %q, want canonical name", acts[0].Attr)
	}
	if acts[1].Line != 5 || len(acts[1].IDs) != 2 {
		t.Errorf("drop = %+v", acts[1])
	}
	if acts[2].Value != mapdata.String("old") {
		t.Errorf("set label = %v", acts[2].Value)
	}
	if acts[3].Value != mapdata.U16(7) {
		t.Errorf("set charges = %v, want canonical u16", acts[3].Value)
	}
	if got := rs.ForStructure(2, 3); len(got) != 1 || got[0].To != 0x200 {
		t.Errorf("ForStructure(2, 3) = %+v", got)
	}
	if got := rs.ForStructure(3, 2); got != nil {
		t.Errorf("ForStructure(3, 2) = %+v, want none", got)
	}
	if d := rs.Describe(); !strings.Contains(d, "structure 2 -> 3 (sample.rules:13)") || !strings.Contains(d, "replace 100 -> 150") {
		t.Errorf("Describe() =\n%s", d)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name, src, want string
	}{
		{"syntax", "client 8.60 -> 10.98 { rename a b; }", ""},
		{"keyword", "world 1 -> 2 {}", ""},
		{"client", "client 8.6 -> 10.98 {}", "invalid client"},
		{"same", "structure 1 -> 1 {}", "goes nowhere"},
		{"id", "client 860 -> 1098 {\n  remove 70000;\n}", "line 2"},
		{"value", "client 860 -> 1098 { set count = 300; }", "invalid u8"},
		{"type", "client 860 -> 1098 { set x:blob = 1; }", "unknown value type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.rules", []byte(tt.src))
			if !errors.Is(err, maperrors.ErrInvalidInput) {
				t.Fatalf("Parse() error = %v, want ErrInvalidInput", err)
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	rs := Default()
	up := rs.ForStructure(0, 1)
	down := rs.ForStructure(1, 0)
	if len(up) != 1 || len(down) != 1 {
		t.Fatalf("default rules = %s", rs.Describe())
	}
	tile := mapdata.NewTile(mapdata.Position{X: 1, Y: 1, Z: 7})
	tile.Flags = mapdata.FlagDeprecatedHouse | mapdata.FlagProtectionZone
	var e Effect
	Apply(up, tile, &e)
	if tile.Flags != mapdata.FlagHouse|mapdata.FlagProtectionZone || e.FlagsChanged != 1 {
		t.Errorf("after 0 -> 1: flags = %s, effect %+v", tile.Flags, e)
	}
	Apply(down, tile, &e)
	if tile.Flags != mapdata.FlagDeprecatedHouse|mapdata.FlagProtectionZone {
		t.Errorf("after 1 -> 0: flags = %s", tile.Flags)
	}
}

func TestApply(t *testing.T) {
	rs, err := Parse("sample.rules", []byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	tile := mapdata.NewTile(mapdata.Position{X: 5, Y: 5, Z: 7})
	tile.Flags = mapdata.FlagBed
	tile.Ground = mapdata.NewItem(100)
	bag := mapdata.NewItem(1987).Set(mapdata.AttrText, mapdata.String("hi"))
	bag.Contents = []*mapdata.Item{mapdata.NewItem(2043), mapdata.NewItem(2400)}
	tile.Items = []*mapdata.Item{
		bag,
		mapdata.NewItem(2043),
		mapdata.NewItem(3000).Set(mapdata.AttrCharges, mapdata.U16(7)),
	}

	var e Effect
	Apply(rs.ForClient(860, 1098), tile, &e)

	if tile.Ground.ID != 150 || e.ItemsReplaced != 1 || e.IDChanges[100] != 1 {
		t.Errorf("ground = %d, effect %+v", tile.Ground.ID, e)
	}
	if len(tile.Items) != 2 || len(bag.Contents) != 1 || e.ItemsRemoved != 2 {
		t.Errorf("items = %v, contents = %v, removed %d", tile.Items, bag.Contents, e.ItemsRemoved)
	}
	if _, ok := bag.Attr(mapdata.AttrText); ok {
		t.Error("text not dropped")
	}
	if v, _ := bag.Contents[0].Attr("label"); v.Str != "old" {
		t.Errorf("label = %v", v)
	}
	if tile.Flags != 0 || e.FlagsChanged != 1 {
		t.Errorf("flags = %s", tile.Flags)
	}
	// drop text, set label, then charges on every item but 3000; removal comes later
	if e.AttributesChanged != 7 {
		t.Errorf("AttributesChanged = %d, want 7", e.AttributesChanged)
	}
}

func TestLoadAndMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.rules")
	if err := os.WriteFile(path, []byte("structure 0 -> 1 { clear 0x100; }"), 0644); err != nil {
		t.Fatal(err)
	}
	extra, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	merged := Default().Merge(extra)
	acts := merged.ForStructure(0, 1)
	if len(acts) != 2 || acts[0].Kind != KindFlag || acts[1].Kind != KindClear {
		t.Errorf("merged actions = %+v", acts)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.rules")); !errors.Is(err, maperrors.ErrIO) {
		t.Errorf("Load(missing) error = %v", err)
	}
}
