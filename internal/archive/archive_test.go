package archive

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
)

func TestCompressRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("OTBM\xfe\x01\xfd\xff tile data "), 500)
	for _, c := range []mapversion.Compression{mapversion.CompressionNone, mapversion.CompressionXZ, mapversion.CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			packed, err := Compress(payload, c)
			if err != nil {
				t.Fatalf("Compress() error = %v", err)
			}
			if got := Sniff(packed); got != c {
				t.Errorf("Sniff() = %v, want %v", got, c)
			}
			if c != mapversion.CompressionNone && len(packed) >= len(payload) {
				t.Errorf("compressed size %d not smaller than %d", len(packed), len(payload))
			}
			out, err := Decompress(packed, c)
			if err != nil {
				t.Fatalf("Decompress() error = %v", err)
			}
			if !bytes.Equal(out, payload) {
				t.Error("payload changed")
			}
		})
	}
}

func TestOpenDetectsContainer(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("OTBM payload")
	packed, err := Compress(payload, mapversion.CompressionZstd)
	if err != nil {
		t.Fatal(err)
	}
	// the suffix lies; content wins
	path := filepath.Join(dir, "world.otbm.xz")
	if err := os.WriteFile(path, packed, 0644); err != nil {
		t.Fatal(err)
	}
	r, c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if c != mapversion.CompressionZstd {
		t.Errorf("Open() compression = %v", c)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("content = %q", got)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	if _, _, err := Open(filepath.Join(t.TempDir(), "missing.otbm")); err == nil {
		t.Error("expected error")
	}
}

func TestCorruptContainer(t *testing.T) {
	bad := append(append([]byte(nil), XZMagic...), 1, 2, 3, 4, 5, 6, 7, 8)
	if _, err := Decompress(bad, mapversion.CompressionXZ); err == nil {
		t.Error("expected error for corrupt xz data")
	}
}

func TestPathHelpers(t *testing.T) {
	tests := []struct {
		path     string
		want     mapversion.Compression
		stripped string
	}{
		{"world.otbm", mapversion.CompressionNone, "world.otbm"},
		{"world.otbm.xz", mapversion.CompressionXZ, "world.otbm"},
		{"WORLD.OTMM.ZST", mapversion.CompressionZstd, "WORLD.OTMM"},
		{"world.otbm.zstd", mapversion.CompressionZstd, "world.otbm"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := FromPath(tt.path); got != tt.want {
				t.Errorf("FromPath() = %v, want %v", got, tt.want)
			}
			if got := StripExtension(tt.path); got != tt.stripped {
				t.Errorf("StripExtension() = %q, want %q", got, tt.stripped)
			}
		})
	}
}
