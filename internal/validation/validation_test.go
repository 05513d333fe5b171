package validation

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizePath(t *testing.T) {
	baseDir := "/srv/maps"

	tests := []struct {
		name      string
		userPath  string
		want      string
		wantError error
	}{
		{"simple", "world.otbm", "world.otbm", nil},
		{"nested", "archive/world.otbm.xz", filepath.Join("archive", "world.otbm.xz"), nil},
		{"redundant separators", "archive//world.otbm", filepath.Join("archive", "world.otbm"), nil},
		{"dot component", "./world.otbm", "world.otbm", nil},
		{"inner dotdot that stays inside", "a/../world.otbm", "world.otbm", nil},
		{"dots in a name", "world..otbm", "world..otbm", nil},
		{"traversal", "../etc/passwd", "", ErrPathTraversal},
		{"traversal in middle", "archive/../../etc/passwd", "", ErrPathTraversal},
		{"bare dotdot", "..", "", ErrPathTraversal},
		{"absolute", "/etc/passwd", "", ErrPathTraversal},
		{"empty", "", "", ErrEmptyPath},
		{"null byte", "world\x00.otbm", "", ErrInvalidCharacter},
		{"too long", strings.Repeat("a", MaxPathLength+1), "", ErrPathTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizePath(baseDir, tt.userPath)
			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Errorf("SanitizePath() error = %v, want %v", err, tt.wantError)
				}
				return
			}
			if err != nil {
				t.Fatalf("SanitizePath() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("SanitizePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	got, err := ResolvePath("/srv/maps", "a/world.otbm")
	if err != nil || got != filepath.Join("/srv/maps", "a", "world.otbm") {
		t.Errorf("ResolvePath() = %q, %v", got, err)
	}
	if _, err := ResolvePath("/srv/maps", "../x"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("ResolvePath(../x) error = %v", err)
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  error
	}{
		{"valid", "world.otbm", nil},
		{"empty", "", ErrInvalidFilename},
		{"dot", ".", ErrInvalidFilename},
		{"dotdot", "..", ErrInvalidFilename},
		{"slash", "a/b.otbm", ErrInvalidFilename},
		{"backslash", "a\\b.otbm", ErrInvalidFilename},
		{"control", "a\tb.otbm", ErrInvalidFilename},
		{"hyphen", "-rf.otbm", ErrInvalidFilename},
		{"too long", strings.Repeat("x", MaxFilenameLength+1), ErrFilenameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.filename)
			if tt.wantErr == nil && err != nil {
				t.Errorf("ValidateFilename() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateFilename() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFileType(t *testing.T) {
	xzMagic := []byte{0xfd, '7', 'z', 'X', 'Z', 0x00, 1, 2}
	zstdMagic := []byte{0x28, 0xb5, 0x2f, 0xfd, 0}

	tests := []struct {
		name     string
		content  []byte
		filename string
		want     FileType
		wantErr  bool
	}{
		{"otbm", []byte("OTBM\xfe\x00"), "world.otbm", FileTypeOTBM, false},
		{"otbm zero identifier", []byte{0, 0, 0, 0, 0xfe, 0}, "world.otbm", FileTypeOTBM, false},
		{"otmm", []byte("OTMM\xfe\x01"), "old.otmm", FileTypeOTMM, false},
		{"xz container", xzMagic, "world.otbm.xz", FileTypeXZ, false},
		{"zstd container", zstdMagic, "world.otbm.zst", FileTypeZstd, false},
		{"compressed under plain name", zstdMagic, "world.otbm", FileTypeZstd, false},
		{"plain under container name", []byte("OTBM\xfe"), "world.otbm.xz", FileTypeOTBM, false},
		{"sqlite", []byte("SQLite format 3\x00rest"), "maps.db", FileTypeSQLite, false},
		{"xml", []byte("<?xml version=\"1.0\"?><mappings/>"), "maps.xml", FileTypeXML, false},
		{"yaml", []byte("pairs:\n  - from: 8.60\n"), "maps.yaml", FileTypeYAML, false},
		{"rules", []byte("structure 0 -> 1 { flag 0x02 -> 0x40; }"), "house.rules", FileTypeRules, false},
		{"unknown extension", []byte("OTBM"), "world.bin", FileTypeOTBM, false},
		{"binary as xml", []byte{0, 1, 2, 3}, "maps.xml", FileTypeUnknown, true},
		{"otmm named otbm", []byte("OTMM\xfe"), "world.otbm", FileTypeUnknown, true},
		{"junk map", []byte("hello"), "world.otbm", FileTypeUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateFileType(bytes.NewReader(tt.content), tt.filename)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateFileType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrTypeMismatch) {
				t.Errorf("ValidateFileType() error = %v, want ErrTypeMismatch", err)
			}
			if got != tt.want {
				t.Errorf("ValidateFileType() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsMap(t *testing.T) {
	for _, ft := range []FileType{FileTypeOTBM, FileTypeOTMM, FileTypeXZ, FileTypeZstd} {
		if !ft.IsMap() {
			t.Errorf("%s.IsMap() = false", ft)
		}
	}
	if FileTypeSQLite.IsMap() || FileTypeUnknown.IsMap() {
		t.Error("non-map types report IsMap")
	}
}

func TestIsLikelyText(t *testing.T) {
	tests := []struct {
		in   []byte
		want bool
	}{
		{[]byte("plain text\n"), true},
		{nil, false},
		{[]byte{'a', 0, 'b'}, false},
		{[]byte{1, 2, 3, 4, 'a'}, false},
	}
	for _, tt := range tests {
		if got := isLikelyText(tt.in); got != tt.want {
			t.Errorf("isLikelyText(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
