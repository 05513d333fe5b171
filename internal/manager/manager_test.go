package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/OTMapKit/core/cas"
	maperrors "github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/otbm"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/otmm"
	"github.com/FocuswithJustin/OTMapKit/internal/mappings"
)

var (
	otbm860 = mapversion.MapVersion{Format: mapversion.FormatOTBM, Structure: 2, Client: 860}
	otmm860 = mapversion.MapVersion{Format: mapversion.FormatOTMM, Structure: 0, Client: 860}
)

func generate(v mapversion.MapVersion) *mapdata.Map {
	if v.Format == mapversion.FormatOTMM {
		return mapdata.Generate(7, otmm.GenerateOptions(v))
	}
	return mapdata.Generate(7, otbm.GenerateOptions(v))
}

func saveFile(t *testing.T, mgr *Manager, m *mapdata.Map, path string, v mapversion.MapVersion) SaveResult {
	t.Helper()
	res := mgr.SaveMap(context.Background(), m, path, v)
	if !res.Success {
		t.Fatalf("SaveMap(%s) error = %v", path, res.Err)
	}
	return res
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		version mapversion.MapVersion
		comp    mapversion.Compression
	}{
		{"otbm", "world.otbm", otbm860, mapversion.CompressionNone},
		{"otbm xz", "world.otbm.xz", otbm860, mapversion.CompressionXZ},
		{"otbm zstd", "world.otbm.zst", otbm860, mapversion.CompressionZstd},
		{"otmm", "world.otmm", otmm860, mapversion.CompressionNone},
		{"otmm zstd", "world.otmm.zstd", otmm860, mapversion.CompressionZstd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := New(Options{Atomic: true})
			path := filepath.Join(t.TempDir(), tt.file)
			orig := generate(tt.version)
			saved := saveFile(t, mgr, orig, path, mapversion.MapVersion{})
			if saved.Compression != tt.comp || saved.Version != tt.version {
				t.Errorf("SaveMap() = %s %s, want %s %s", saved.Compression, saved.Version, tt.comp, tt.version)
			}

			got := mapdata.New(1, 1)
			loaded := mgr.LoadMap(context.Background(), got, path)
			if !loaded.Success {
				t.Fatalf("LoadMap() error = %v", loaded.Err)
			}
			if loaded.Format != tt.version.Format || loaded.Compression != tt.comp || loaded.Version != tt.version {
				t.Errorf("LoadMap() = %s %s %s", loaded.Format, loaded.Compression, loaded.Version)
			}
			if loaded.Digest != saved.Digest {
				t.Errorf("digest after load %s, after save %s", loaded.Digest, saved.Digest)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if cas.Digest(data) != saved.Digest {
				t.Error("digest does not match the file bytes")
			}
			if d := mapdata.Diff(orig, got); d != "" {
				t.Errorf("round trip differs:\n%s", d)
			}
			if loaded.Statistics.Tiles != orig.TileCount() {
				t.Errorf("Statistics.Tiles = %d, want %d", loaded.Statistics.Tiles, orig.TileCount())
			}
		})
	}
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	mgr := New(Options{})
	m := generate(otbm860)
	saveFile(t, mgr, m, filepath.Join(dir, "a.otbm"), mapversion.MapVersion{})
	saveFile(t, mgr, m, filepath.Join(dir, "b.otbm.xz"), mapversion.MapVersion{})
	saveFile(t, mgr, generate(otmm860), filepath.Join(dir, "c.otmm"), mapversion.MapVersion{})

	plain, _ := os.ReadFile(filepath.Join(dir, "a.otbm"))
	os.WriteFile(filepath.Join(dir, "renamed.bin"), plain, 0644)
	packed, _ := os.ReadFile(filepath.Join(dir, "b.otbm.xz"))
	os.WriteFile(filepath.Join(dir, "packed.dat"), packed, 0644)
	os.WriteFile(filepath.Join(dir, "junk.bin"), []byte("not a map at all"), 0644)
	os.WriteFile(filepath.Join(dir, "broken.otbm"), []byte("OTBM"), 0644)

	tests := []struct {
		file        string
		detected    bool
		format      mapversion.Format
		compression mapversion.Compression
		byExt       bool
		hasVersion  bool
		reason      string
	}{
		{"a.otbm", true, mapversion.FormatOTBM, mapversion.CompressionNone, true, true, "extension"},
		{"b.otbm.xz", true, mapversion.FormatOTBM, mapversion.CompressionXZ, true, true, "xz compressed"},
		{"c.otmm", true, mapversion.FormatOTMM, mapversion.CompressionNone, true, true, "extension"},
		{"renamed.bin", true, mapversion.FormatOTBM, mapversion.CompressionNone, false, true, "identifier"},
		{"packed.dat", true, mapversion.FormatOTBM, mapversion.CompressionXZ, false, true, "identifier"},
		{"junk.bin", false, mapversion.FormatUnknown, mapversion.CompressionNone, false, false, "not a"},
		{"broken.otbm", true, mapversion.FormatOTBM, mapversion.CompressionNone, true, false, "version unreadable"},
		{"missing.otbm", false, mapversion.FormatUnknown, mapversion.CompressionNone, false, false, "cannot stat"},
		{".", false, mapversion.FormatUnknown, mapversion.CompressionNone, false, false, "directory"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			got := mgr.Detect(filepath.Join(dir, tt.file))
			if got.Detected != tt.detected || got.Format != tt.format || got.Compression != tt.compression ||
				got.ByExtension != tt.byExt || got.HasVersion != tt.hasVersion {
				t.Errorf("Detect() = %+v", got)
			}
			if !strings.Contains(got.Reason, tt.reason) {
				t.Errorf("Reason = %q, want it to mention %q", got.Reason, tt.reason)
			}
			if tt.hasVersion && got.Version.Client != 860 {
				t.Errorf("Version = %s", got.Version)
			}
		})
	}
}

func TestLoadFailures(t *testing.T) {
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.bin")
	os.WriteFile(junk, []byte("XXXXXXXX"), 0644)
	badID := filepath.Join(dir, "bad.otbm")
	os.WriteFile(badID, []byte("ABCD\xfe\x00\xff"), 0644)

	tests := []struct {
		name string
		path string
		want error
	}{
		{"missing", filepath.Join(dir, "missing.otbm"), maperrors.ErrIO},
		{"unknown", junk, maperrors.ErrUnrecognizedFormat},
		{"bad identifier", badID, maperrors.ErrUnrecognizedFormat},
	}
	mgr := New(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mapdata.New(10, 10)
			m.GetOrCreateTile(mapdata.Position{X: 1, Y: 1, Z: 7}).Ground = mapdata.NewItem(100)
			res := mgr.LoadMap(context.Background(), m, tt.path)
			if res.Success || !errors.Is(res.Err, tt.want) {
				t.Fatalf("LoadMap() = %v, want %v", res.Err, tt.want)
			}
			if m.TileCount() != 1 {
				t.Error("failed load modified the map")
			}
		})
	}
}

func TestTranscode(t *testing.T) {
	dir := t.TempDir()
	mgr := New(Options{})
	m := generate(otmm860)
	m.Header.Format = mapversion.FormatOTMM

	path := filepath.Join(dir, "out.otbm")
	res := saveFile(t, mgr, m, path, otbm860)
	if res.Format != mapversion.FormatOTBM {
		t.Errorf("Format = %s", res.Format)
	}
	if m.Header.Format != mapversion.FormatOTMM {
		t.Error("SaveMap changed the header of the source map")
	}
	got := mapdata.New(1, 1)
	if r := mgr.LoadMap(context.Background(), got, path); !r.Success || r.Version != otbm860 {
		t.Fatalf("LoadMap() = %+v", r)
	}
	if got.TileCount() != m.TileCount() {
		t.Errorf("tiles = %d, want %d", got.TileCount(), m.TileCount())
	}

	bad := mgr.SaveMap(context.Background(), m, filepath.Join(dir, "x.otbm"),
		mapversion.MapVersion{Format: mapversion.FormatOTBM, Structure: 2, Client: 1098})
	if !errors.Is(bad.Err, maperrors.ErrUnsupportedVersion) {
		t.Errorf("client change on save: error = %v", bad.Err)
	}
	bad = mgr.SaveMap(context.Background(), m, filepath.Join(dir, "y.otmm"),
		mapversion.MapVersion{Format: mapversion.FormatOTMM, Structure: 3, Client: 860})
	if !errors.Is(bad.Err, maperrors.ErrUnsupportedVersion) {
		t.Errorf("unknown structure: error = %v", bad.Err)
	}
	if _, err := os.Stat(filepath.Join(dir, "y.otmm")); !os.IsNotExist(err) {
		t.Error("failed save left a file behind")
	}
}

func TestAtomicSaveWithBackup(t *testing.T) {
	dir := t.TempDir()
	store, err := cas.NewStore(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatal(err)
	}
	mgr := New(Options{Atomic: true, Store: store})
	path := filepath.Join(dir, "world.otbm")
	os.WriteFile(path, []byte("previous content"), 0644)

	res := saveFile(t, mgr, generate(otbm860), path, mapversion.MapVersion{})
	if res.Backup == nil || res.Backup.Digest != cas.Digest([]byte("previous content")) {
		t.Fatalf("Backup = %+v", res.Backup)
	}
	old, err := store.Get(res.Backup.Digest)
	if err != nil || string(old) != "previous content" {
		t.Errorf("backup blob = %q, %v", old, err)
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}

	// a new file has nothing to back up
	res = saveFile(t, mgr, generate(otbm860), filepath.Join(dir, "fresh.otbm"), mapversion.MapVersion{})
	if res.Backup != nil {
		t.Errorf("Backup = %+v, want nil", res.Backup)
	}
}

func TestBytes(t *testing.T) {
	mgr := New(Options{})
	orig := generate(otmm860)
	data, saved := mgr.SaveBytes(context.Background(), orig, mapversion.MapVersion{}, mapversion.CompressionXZ)
	if !saved.Success {
		t.Fatalf("SaveBytes() error = %v", saved.Err)
	}
	got := mapdata.New(1, 1)
	loaded := mgr.LoadBytes(context.Background(), got, data)
	if !loaded.Success {
		t.Fatalf("LoadBytes() error = %v", loaded.Err)
	}
	if loaded.Compression != mapversion.CompressionXZ || loaded.Format != mapversion.FormatOTMM || loaded.Digest != saved.Digest {
		t.Errorf("LoadBytes() = %+v", loaded)
	}
	if d := mapdata.Diff(orig, got); d != "" {
		t.Errorf("round trip differs:\n%s", d)
	}
	if r := mgr.LoadBytes(context.Background(), got, []byte("garbage")); !errors.Is(r.Err, maperrors.ErrUnrecognizedFormat) {
		t.Errorf("LoadBytes(garbage) error = %v", r.Err)
	}
}

func TestCapabilities(t *testing.T) {
	mgr := New(Options{})
	if got := mgr.SupportedFormats(); len(got) != 2 {
		t.Errorf("SupportedFormats() = %v", got)
	}
	if got := mgr.SupportedVersions(mapversion.FormatOTBM); len(got) != 4 {
		t.Errorf("SupportedVersions(otbm) = %v", got)
	}
	if got := mgr.SupportedVersions(mapversion.FormatUnknown); got != nil {
		t.Errorf("SupportedVersions(unknown) = %v", got)
	}

	narrow := New(Options{Versions: mapversion.NewTable(
		[]mapversion.ClientInfo{{Client: 860}},
		map[mapversion.Format][]mapversion.Structure{mapversion.FormatOTBM: {2}},
	)})
	if got := narrow.SupportedVersions(mapversion.FormatOTBM); len(got) != 1 || got[0] != 2 {
		t.Errorf("SupportedVersions() with injected table = %v", got)
	}
	if !narrow.CanSave(otbm860) || narrow.CanSave(otmm860) {
		t.Error("CanSave() ignores the injected table")
	}

	path := filepath.Join(t.TempDir(), "w.otbm")
	saveFile(t, mgr, generate(otbm860), path, mapversion.MapVersion{})
	if !mgr.CanLoad(path) || mgr.CanLoad(path+".missing") {
		t.Error("CanLoad() wrong")
	}
}

func TestConvertMap(t *testing.T) {
	table := mappings.NewTable()
	table.Add(860, 1098, mappings.Mapping{SourceID: 100, TargetID: 150})
	mgr := New(Options{})
	mgr.Converter().SetTable(table)

	m := mapdata.New(100, 100)
	m.Header.Format, m.Header.Structure, m.Header.Client = mapversion.FormatOTBM, 2, 860
	m.GetOrCreateTile(mapdata.Position{X: 1, Y: 1, Z: 7}).Ground = mapdata.NewItem(100)

	target := mapversion.MapVersion{Format: mapversion.FormatOTBM, Structure: 3, Client: 1098}
	res := mgr.ConvertMap(context.Background(), m, target)
	if !res.Success {
		t.Fatalf("ConvertMap() error = %v", res.Err)
	}
	if m.Header.Version() != target || m.Tile(mapdata.Position{X: 1, Y: 1, Z: 7}).Ground.ID != 150 {
		t.Errorf("after conversion: %s, ground %d", m.Header.Version(), m.Tile(mapdata.Position{X: 1, Y: 1, Z: 7}).Ground.ID)
	}
}

func TestCancelledLoad(t *testing.T) {
	mgr := New(Options{})
	path := filepath.Join(t.TempDir(), "w.otbm")
	opts := otbm.GenerateOptions(otbm860)
	opts.Tiles = 2000
	saveFile(t, mgr, mapdata.Generate(3, opts), path, mapversion.MapVersion{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := mapdata.New(1, 1)
	res := mgr.LoadMap(ctx, m, path)
	if res.Success || !res.Cancelled {
		t.Fatalf("LoadMap() with cancelled context = %+v", res)
	}
	if m.TileCount() != 0 {
		t.Error("cancelled load modified the map")
	}
}

func TestResolveTarget(t *testing.T) {
	mgr := New(Options{})
	s1 := mapversion.Structure(1)
	tests := []struct {
		name      string
		format    mapversion.Format
		structure *mapversion.Structure
		client    mapversion.Client
		want      mapversion.MapVersion
	}{
		{"nothing set", 0, nil, 0, otbm860},
		{"client from table", 0, nil, 1098, mapversion.MapVersion{Format: mapversion.FormatOTBM, Structure: 3, Client: 1098}},
		{"explicit structure", 0, &s1, 0, mapversion.MapVersion{Format: mapversion.FormatOTBM, Structure: 1, Client: 860}},
		{"to otmm", mapversion.FormatOTMM, nil, 0, otmm860},
		{"same format", mapversion.FormatOTBM, nil, 0, otbm860},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mgr.ResolveTarget(otbm860, tt.format, tt.structure, tt.client); got != tt.want {
				t.Errorf("ResolveTarget() = %v, want %v", got, tt.want)
			}
		})
	}
	if got := mgr.ResolveTarget(otmm860, mapversion.FormatOTBM, nil, 0); got != otbm860 {
		t.Errorf("otmm to otbm = %v, want %v", got, otbm860)
	}
}

func TestFormatForPath(t *testing.T) {
	tests := map[string]mapversion.Format{
		"w.otbm":     mapversion.FormatOTBM,
		"W.OTBM.xz":  mapversion.FormatOTBM,
		"w.otmm.zst": mapversion.FormatOTMM,
		"w.bin":      mapversion.FormatUnknown,
		"dir/w.otmm": mapversion.FormatOTMM,
	}
	for path, want := range tests {
		if got := FormatForPath(path); got != want {
			t.Errorf("FormatForPath(%q) = %v, want %v", path, got, want)
		}
	}
	if exts := Extensions(mapversion.FormatOTMM); len(exts) != 1 || exts[0] != ".otmm" {
		t.Errorf("Extensions(otmm) = %v", exts)
	}
}

func TestDescribe(t *testing.T) {
	m := generate(otbm860)
	info := Describe(m)
	if info.Version != otbm860 || info.Tiles != m.TileCount() || info.Items != m.ItemCount() {
		t.Errorf("Describe() = %+v", info)
	}
	if info.Towns != len(m.Towns) || info.Houses != len(m.Houses) {
		t.Errorf("Describe() counts = %+v", info)
	}
}
