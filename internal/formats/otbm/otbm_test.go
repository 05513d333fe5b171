package otbm

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	maperrors "github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/core/nodefile"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/base"
	"github.com/FocuswithJustin/OTMapKit/internal/items"
)

func newContext(dir string) *base.Context {
	opts := base.Options{Name: "world.otbm"}
	if dir != "" {
		opts.SideFiles = base.Dir(dir)
	}
	return base.NewContext(context.Background(), opts)
}

func save(t *testing.T, m *mapdata.Map, dir string) ([]byte, *base.Context) {
	t.Helper()
	ctx := newContext(dir)
	var buf bytes.Buffer
	if err := Save(ctx, m, &buf); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return buf.Bytes(), ctx
}

func load(t *testing.T, data []byte, dir string) (*mapdata.Map, *base.Context) {
	t.Helper()
	ctx := newContext(dir)
	m := mapdata.New(1, 1)
	if err := Load(ctx, m, bytes.NewReader(data)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return m, ctx
}

// writeFile builds a file by hand; body runs inside the map data node.
func writeFile(t *testing.T, client uint32, body func(w *nodefile.Writer)) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := nodefile.NewWriter(&buf, Identifier)
	if err != nil {
		t.Fatal(err)
	}
	w.BeginNode(NodeRoot)
	w.WriteU32(2)
	w.WriteU16(1024)
	w.WriteU16(1024)
	w.WriteU32(3)
	w.WriteU32(20)
	w.WriteU32(client)
	w.BeginNode(NodeMapData)
	body(w)
	w.EndNode()
	w.EndNode()
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return buf.Bytes()
}

func TestRoundTripPerStructure(t *testing.T) {
	tests := []struct {
		name    string
		version mapversion.MapVersion
	}{
		{"v1", mapversion.MapVersion{Format: mapversion.FormatOTBM, Structure: 0, Client: 760}},
		{"v2", mapversion.MapVersion{Format: mapversion.FormatOTBM, Structure: 1, Client: 860}},
		{"v3", mapversion.MapVersion{Format: mapversion.FormatOTBM, Structure: 2, Client: 1057}},
		{"v4", mapversion.MapVersion{Format: mapversion.FormatOTBM, Structure: 3, Client: 1098}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for seed := int64(1); seed <= 3; seed++ {
				orig := mapdata.Generate(seed, GenerateOptions(tt.version))
				data, sctx := save(t, orig, dir)
				if len(sctx.Stats.Warnings) != 0 {
					t.Fatalf("save warnings: %v", sctx.Stats.Warnings)
				}
				got, lctx := load(t, data, dir)
				if d := mapdata.Diff(orig, got); d != "" {
					t.Fatalf("seed %d: round trip differs: %s", seed, d)
				}
				if len(lctx.Stats.Warnings) != 0 {
					t.Errorf("load warnings: %v", lctx.Stats.Warnings)
				}
				if lctx.Stats.Tiles != orig.TileCount() || lctx.Stats.Houses != len(orig.Houses) {
					t.Errorf("stats = %+v", lctx.Stats)
				}
			}
		})
	}
}

func TestUnknownTileAttribute(t *testing.T) {
	data := writeFile(t, 860, func(w *nodefile.Writer) {
		w.BeginNode(NodeTileArea)
		w.WriteU16(256)
		w.WriteU16(256)
		w.WriteU8(7)
		w.BeginNode(NodeTile)
		w.WriteU8(4)
		w.WriteU8(5)
		w.BeginAttr(AttrTileFlags)
		w.WriteU32(uint32(mapdata.FlagProtectionZone))
		w.EndAttr()
		w.BeginAttr(77)
		w.WriteBytes([]byte{0xFE, 0xFF, 0xFD, 1, 2})
		w.EndAttr()
		w.BeginAttr(AttrItem)
		w.WriteU16(4526)
		w.EndAttr()
		w.EndNode()
		w.EndNode()
	})

	m, ctx := load(t, data, "")
	if len(ctx.Stats.Warnings) != 1 || !strings.Contains(ctx.Stats.Warnings[0], "tag 77") {
		t.Fatalf("warnings = %v, want exactly one about tag 77", ctx.Stats.Warnings)
	}
	tile := m.Tile(mapdata.Position{X: 260, Y: 261, Z: 7})
	if tile == nil {
		t.Fatal("tile was not loaded")
	}
	if tile.Flags != mapdata.FlagProtectionZone || tile.Ground == nil || tile.Ground.ID != 4526 {
		t.Errorf("tile attributes lost: %+v", tile)
	}
}

func TestBadIdentifierLeavesMapUntouched(t *testing.T) {
	m := mapdata.New(10, 10)
	keep := mapdata.NewTile(mapdata.Position{X: 1, Y: 1, Z: 7})
	keep.Flags = mapdata.FlagNoLogout
	m.SetTile(keep)

	data := append([]byte("XXXX"), 0xFE, 0x01, 0xFF)
	err := Load(newContext(""), m, bytes.NewReader(data))
	var ufe *maperrors.UnrecognizedFormatError
	if !errors.As(err, &ufe) {
		t.Fatalf("Load() error = %v, want UnrecognizedFormatError", err)
	}
	if m.TileCount() != 1 || m.Header.Width != 10 {
		t.Error("target map was modified")
	}
}

func TestZeroIdentifierAccepted(t *testing.T) {
	data := writeFile(t, 860, func(w *nodefile.Writer) {})
	copy(data, []byte{0, 0, 0, 0})
	m, _ := load(t, data, "")
	if m.Header.Client != 860 || m.Header.Format != mapversion.FormatOTBM {
		t.Errorf("header = %+v", m.Header)
	}
	ok, _ := DetectConfig.CustomValidator("x", data[:8])
	if !ok {
		t.Error("zero identifier followed by a root node should be detected")
	}
}

func TestUnsupportedVersionIsFatal(t *testing.T) {
	data := writeFile(t, 123, func(w *nodefile.Writer) {})
	m := mapdata.New(1, 1)
	err := Load(newContext(""), m, bytes.NewReader(data))
	if !errors.Is(err, maperrors.ErrUnsupportedVersion) {
		t.Fatalf("Load() error = %v, want ErrUnsupportedVersion", err)
	}
	if m.Header.Width != 1 {
		t.Error("target map was modified")
	}
}

func TestTruncatedFileIsFatal(t *testing.T) {
	orig := mapdata.Generate(5, GenerateOptions(mapversion.MapVersion{Structure: 2, Client: 860}))
	data, _ := save(t, orig, t.TempDir())
	m := mapdata.New(1, 1)
	if err := Load(newContext(""), m, bytes.NewReader(data[:len(data)/2])); err == nil {
		t.Fatal("expected error for truncated file")
	}
	if m.TileCount() != 0 {
		t.Error("partial map was returned")
	}
}

func TestDowngradeOmitsUnsupportedData(t *testing.T) {
	dir := t.TempDir()
	m := mapdata.New(100, 100)
	m.Header = mapdata.Header{Format: mapversion.FormatOTBM, Structure: 1, Client: 860, Width: 100, Height: 100}
	for i := uint16(0); i < 3; i++ {
		tile := mapdata.NewTile(mapdata.Position{X: i, Y: 5, Z: 7})
		it := mapdata.NewItem(2400).Set(mapdata.AttrTier, mapdata.U8(2)).Set("imbued", mapdata.Bool(true))
		it.Set(mapdata.AttrActionID, mapdata.U16(1000))
		tile.Items = []*mapdata.Item{it}
		m.SetTile(tile)
	}
	m.AddWaypoint(&mapdata.Waypoint{Name: "temple", Pos: mapdata.Position{X: 1, Y: 1, Z: 7}})
	m.AddWaypoint(&mapdata.Waypoint{Name: "depot", Pos: mapdata.Position{X: 2, Y: 1, Z: 7}})

	data, ctx := save(t, m, dir)
	if len(ctx.Stats.Warnings) != 3 {
		t.Fatalf("warnings = %v, want one each for tier, custom attributes and waypoints", ctx.Stats.Warnings)
	}

	got, _ := load(t, data, dir)
	if len(got.Waypoints) != 0 {
		t.Error("waypoints should not be stored by structure 1")
	}
	it := got.Tile(mapdata.Position{X: 0, Y: 5, Z: 7}).Items[0]
	if _, ok := it.Attr(mapdata.AttrTier); ok {
		t.Error("tier should be omitted")
	}
	if _, ok := it.Attr("imbued"); ok {
		t.Error("custom attribute should be omitted")
	}
	if v, _ := it.Attr(mapdata.AttrActionID); v.Int != 1000 {
		t.Errorf("action id = %v", v)
	}
}

func TestAttributedGroundUsesCatalog(t *testing.T) {
	m := mapdata.New(100, 100)
	m.Header = mapdata.Header{Format: mapversion.FormatOTBM, Structure: 2, Client: 860, Width: 100, Height: 100}
	tile := mapdata.NewTile(mapdata.Position{X: 10, Y: 10, Z: 7})
	tile.Ground = mapdata.NewItem(4526).Set(mapdata.AttrActionID, mapdata.U16(5000))
	tile.Items = []*mapdata.Item{mapdata.NewItem(1987)}
	m.SetTile(tile)

	data, _ := save(t, m, "")

	catalog := items.NewCatalog()
	catalog.AddGround(4526)
	ctx := base.NewContext(context.Background(), base.Options{Catalog: catalog})
	got := mapdata.New(1, 1)
	if err := Load(ctx, got, bytes.NewReader(data)); err != nil {
		t.Fatal(err)
	}
	if d := mapdata.Diff(m, got); d != "" {
		t.Errorf("attributed ground did not survive: %s", d)
	}

	// without a catalog the ground comes back as a stacked item
	plain, _ := load(t, data, "")
	if pt := plain.Tile(tile.Pos); pt.Ground != nil || len(pt.Items) != 2 {
		t.Errorf("tile without catalog = %+v", pt)
	}
}

func TestContainerDepthBound(t *testing.T) {
	deep := mapdata.NewItem(1987)
	cur := deep
	for i := 0; i < base.DefaultMaxDepth+1; i++ {
		next := mapdata.NewItem(1987)
		cur.Contents = []*mapdata.Item{next}
		cur = next
	}
	data := writeFile(t, 860, func(w *nodefile.Writer) {
		w.BeginNode(NodeTileArea)
		w.WriteU16(0)
		w.WriteU16(0)
		w.WriteU8(7)
		w.BeginNode(NodeTile)
		w.WriteU8(1)
		w.WriteU8(1)
		var emit func(it *mapdata.Item)
		emit = func(it *mapdata.Item) {
			w.BeginNode(NodeItem)
			w.WriteU16(it.ID)
			for _, c := range it.Contents {
				emit(c)
			}
			w.EndNode()
		}
		emit(mapdata.NewItem(2160))
		emit(deep)
		w.EndNode()
		w.EndNode()
	})

	m, ctx := load(t, data, "")
	tile := m.Tile(mapdata.Position{X: 1, Y: 1, Z: 7})
	if tile == nil || len(tile.Items) != 1 || tile.Items[0].ID != 2160 {
		t.Fatalf("tile = %+v, want only the shallow item", tile)
	}
	if ctx.Stats.SkippedItems != 1 || len(ctx.Stats.Warnings) != 1 {
		t.Errorf("skipped = %d, warnings = %v", ctx.Stats.SkippedItems, ctx.Stats.Warnings)
	}

	// the writer refuses the same item
	src := mapdata.New(10, 10)
	src.Header = mapdata.Header{Format: mapversion.FormatOTBM, Structure: 2, Client: 860, Width: 10, Height: 10}
	st := mapdata.NewTile(mapdata.Position{X: 1, Y: 1, Z: 7})
	st.Items = []*mapdata.Item{deep}
	src.SetTile(st)
	_, sctx := save(t, src, "")
	if sctx.Stats.SkippedItems != 1 {
		t.Errorf("save skipped = %d", sctx.Stats.SkippedItems)
	}
}

func TestMalformedTileIsSkipped(t *testing.T) {
	data := writeFile(t, 860, func(w *nodefile.Writer) {
		w.BeginNode(NodeTileArea)
		w.WriteU16(0)
		w.WriteU16(0)
		w.WriteU8(7)
		// wrong node type inside a tile area
		w.BeginNode(NodeTown)
		w.WriteU8(1)
		w.EndNode()
		// tile outside the map
		w.BeginNode(NodeTile)
		w.WriteU8(255)
		w.WriteU8(255)
		w.EndNode()
		w.EndNode()
		w.BeginNode(NodeTileArea)
		w.WriteU16(0)
		w.WriteU16(0)
		w.WriteU8(6)
		w.BeginNode(NodeTile)
		w.WriteU8(3)
		w.WriteU8(3)
		w.BeginAttr(AttrItem)
		w.WriteU16(100)
		w.EndAttr()
		w.EndNode()
		w.EndNode()
	})
	ctx := newContext("")
	m := mapdata.New(1, 1)
	// the header above declares 1024x1024; shrink it so (255,255) is out of bounds
	data[10], data[11], data[12], data[13] = 200, 0, 200, 0
	if err := Load(ctx, m, bytes.NewReader(data)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m.TileCount() != 1 || ctx.Stats.SkippedTiles != 2 {
		t.Errorf("tiles = %d, skipped = %d, warnings = %v", m.TileCount(), ctx.Stats.SkippedTiles, ctx.Stats.Warnings)
	}

	strict := base.NewContext(context.Background(), base.Options{Strict: true})
	if err := Load(strict, mapdata.New(1, 1), bytes.NewReader(data)); !errors.Is(err, maperrors.ErrTypeMismatch) {
		t.Errorf("strict Load() error = %v, want ErrTypeMismatch", err)
	}
}

func TestTileOffsetPastCoordinateRange(t *testing.T) {
	data := writeFile(t, 860, func(w *nodefile.Writer) {
		w.BeginNode(NodeTileArea)
		w.WriteU16(0xFFF0)
		w.WriteU16(0)
		w.WriteU8(7)
		// 0xFFF0 + 0x20 would wrap to x=16, inside the 1024x1024 map
		w.BeginNode(NodeTile)
		w.WriteU8(0x20)
		w.WriteU8(1)
		w.EndNode()
		w.EndNode()
	})
	ctx := newContext("")
	m := mapdata.New(1, 1)
	if err := Load(ctx, m, bytes.NewReader(data)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m.TileCount() != 0 || ctx.Stats.SkippedTiles != 1 {
		t.Errorf("tiles = %d, skipped = %d", m.TileCount(), ctx.Stats.SkippedTiles)
	}

	strict := base.NewContext(context.Background(), base.Options{Strict: true})
	if err := Load(strict, mapdata.New(1, 1), bytes.NewReader(data)); !errors.Is(err, maperrors.ErrStructure) {
		t.Errorf("strict Load() error = %v, want ErrStructure", err)
	}
}

func TestPeekVersion(t *testing.T) {
	data := writeFile(t, 1098, func(w *nodefile.Writer) {})
	h, err := PeekVersion(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if h.Version() != (mapversion.MapVersion{Format: mapversion.FormatOTBM, Structure: 2, Client: 1098}) {
		t.Errorf("PeekVersion() = %+v", h)
	}
}

func TestHouseFileNamedInHeader(t *testing.T) {
	dir := t.TempDir()
	m := mapdata.Generate(9, GenerateOptions(mapversion.MapVersion{Structure: 2, Client: 860}))
	m.Header.HouseFile = "custom-houses.xml"
	data, _ := save(t, m, dir)
	if _, err := os.Stat(filepath.Join(dir, "custom-houses.xml")); err != nil {
		t.Fatalf("house file not written: %v", err)
	}
	got, _ := load(t, data, dir)
	if d := mapdata.Diff(m, got); d != "" {
		t.Errorf("round trip differs: %s", d)
	}

	// a named file that cannot be read is a warning, not a failure
	os.Remove(filepath.Join(dir, "custom-houses.xml"))
	got, ctx := load(t, data, dir)
	if len(got.Houses) != 0 || len(ctx.Stats.Warnings) != 1 {
		t.Errorf("houses = %d, warnings = %v", len(got.Houses), ctx.Stats.Warnings)
	}
}
