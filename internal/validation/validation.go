// Package validation checks paths and file names supplied by API clients
// before they reach the file system, and verifies that a file's content
// matches the kind of file its name claims.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
)

// Security limits (CWE-400).
const (
	// MaxFilenameLength is the maximum allowed filename length.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors.
var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrPathTooLong      = errors.New("path too long")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrTypeMismatch     = errors.New("file type mismatch")
)

// SanitizePath validates a user-supplied path and makes sure it does not
// escape baseDir. It returns the cleaned path relative to baseDir.
func SanitizePath(baseDir, userPath string) (string, error) {
	if err := ValidatePath(userPath); err != nil {
		return "", err
	}

	cleanPath := filepath.Clean(userPath)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	if filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("%w: absolute path not allowed", ErrPathTraversal)
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(baseDir, cleanPath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	relPath, err := filepath.Rel(absBase, absPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleanPath, nil
}

// ResolvePath is SanitizePath joined back onto baseDir.
func ResolvePath(baseDir, userPath string) (string, error) {
	clean, err := SanitizePath(baseDir, userPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, clean), nil
}

// ValidatePath checks length and rejects control characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// ValidateFilename checks a bare file name.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}
	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}
	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}
	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}
	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}
	// could be taken for a flag
	if strings.HasPrefix(filename, "-") {
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}
	return nil
}

// FileType is the kind of file a name or content indicates.
type FileType string

const (
	FileTypeOTBM    FileType = "otbm"
	FileTypeOTMM    FileType = "otmm"
	FileTypeXZ      FileType = "xz"
	FileTypeZstd    FileType = "zstd"
	FileTypeSQLite  FileType = "sqlite"
	FileTypeXML     FileType = "xml"
	FileTypeYAML    FileType = "yaml"
	FileTypeRules   FileType = "rules"
	FileTypeUnknown FileType = "unknown"
)

// IsMap reports whether t is a map or a map container.
func (t FileType) IsMap() bool {
	switch t {
	case FileTypeOTBM, FileTypeOTMM, FileTypeXZ, FileTypeZstd:
		return true
	}
	return false
}

var magicBytes = []struct {
	fileType FileType
	magic    []byte
}{
	{FileTypeOTBM, []byte("OTBM")},
	{FileTypeOTMM, []byte("OTMM")},
	{FileTypeXZ, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{FileTypeZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{FileTypeSQLite, []byte("SQLite format 3\x00")},
}

// ValidateFileType reads the head of r and checks it against the type
// the file name implies. Text types are accepted when the content looks
// like text; binary types need their magic.
func ValidateFileType(r io.Reader, filename string) (FileType, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	buf = buf[:n]

	detected := detectFileTypeFromMagic(buf)
	expected := detectFileTypeFromExtension(filename)

	switch {
	case detected == expected:
		return detected, nil
	case expected == FileTypeXZ || expected == FileTypeZstd:
		// container suffix without the container
		if detected == FileTypeOTBM || detected == FileTypeOTMM {
			return detected, nil
		}
	case expected == FileTypeOTBM && detected == FileTypeUnknown:
		// the zero identifier has no fixed magic
		if len(buf) >= 4 && bytes.Equal(buf[:4], []byte{0, 0, 0, 0}) {
			return FileTypeOTBM, nil
		}
	case (expected == FileTypeOTBM || expected == FileTypeOTMM) && (detected == FileTypeXZ || detected == FileTypeZstd):
		return detected, nil
	case detected == FileTypeUnknown && (expected == FileTypeXML || expected == FileTypeYAML || expected == FileTypeRules):
		if isLikelyText(buf) {
			return expected, nil
		}
	case expected == FileTypeUnknown && detected != FileTypeUnknown:
		return detected, nil
	}
	return FileTypeUnknown, fmt.Errorf("%w: extension suggests %s but content is %s", ErrTypeMismatch, expected, detected)
}

func detectFileTypeFromMagic(buf []byte) FileType {
	for _, sig := range magicBytes {
		if bytes.HasPrefix(buf, sig.magic) {
			return sig.fileType
		}
	}
	return FileTypeUnknown
}

func detectFileTypeFromExtension(filename string) FileType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".otbm":
		return FileTypeOTBM
	case ".otmm":
		return FileTypeOTMM
	case ".xz":
		return FileTypeXZ
	case ".zst", ".zstd":
		return FileTypeZstd
	case ".sqlite", ".db", ".sqlite3":
		return FileTypeSQLite
	case ".xml":
		return FileTypeXML
	case ".yaml", ".yml":
		return FileTypeYAML
	case ".rules":
		return FileTypeRules
	}
	return FileTypeUnknown
}

// isLikelyText reports whether buf looks like ASCII or UTF-8 text.
func isLikelyText(buf []byte) bool {
	if len(buf) == 0 || bytes.IndexByte(buf, 0) != -1 {
		return false
	}
	printable, control := 0, 0
	for _, b := range buf {
		if b >= 0x20 && b <= 0x7e || b == '\t' || b == '\n' || b == '\r' {
			printable++
		} else if b < 0x20 {
			control++
		}
	}
	return printable > 0 && float64(printable)/float64(printable+control) > 0.95
}
