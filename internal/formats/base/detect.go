package base

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// HeaderSize is how many leading bytes detection reads.
const HeaderSize = 32

// DetectConfig contains configuration for format detection.
type DetectConfig struct {
	// Extensions are file suffixes, possibly compound (".otbm.xz")
	Extensions []string
	// Magic lists accepted leading byte sequences
	Magic [][]byte
	// FormatName is the name to return in DetectResult
	FormatName string
	// CheckContent makes detection fall back to sniffing the header bytes
	CheckContent bool
	// CustomValidator is an optional content check run after Magic
	CustomValidator func(path string, header []byte) (bool, string)
}

// DetectResult is the outcome of DetectFile. Detection never fails; an
// undetected file has Detected == false and a Reason.
type DetectResult struct {
	Detected    bool   `json:"detected"`
	Format      string `json:"format,omitempty"`
	Reason      string `json:"reason"`
	ByExtension bool   `json:"by_extension,omitempty"`
	ByContent   bool   `json:"by_content,omitempty"`
}

// MatchExtension returns the longest configured suffix path ends with.
func MatchExtension(path string, exts []string) (string, bool) {
	lower := strings.ToLower(path)
	best := ""
	for _, ext := range exts {
		e := strings.ToLower(ext)
		if strings.HasSuffix(lower, e) && len(e) > len(best) {
			best = e
		}
	}
	return best, best != ""
}

// ReadHeader reads up to n leading bytes of the file.
func ReadHeader(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	k, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:k], nil
}

// HasMagic reports whether header starts with one of magic.
func HasMagic(header []byte, magic [][]byte) bool {
	for _, m := range magic {
		if len(m) > 0 && bytes.HasPrefix(header, m) {
			return true
		}
	}
	return false
}

// DetectFile checks the extension first and falls back to the content.
func DetectFile(path string, config DetectConfig) *DetectResult {
	info, err := os.Stat(path)
	if err != nil {
		return &DetectResult{Reason: fmt.Sprintf("cannot stat: %v", err)}
	}
	if info.IsDir() {
		return &DetectResult{Reason: "path is a directory, not a file"}
	}

	if ext, ok := MatchExtension(path, config.Extensions); ok {
		return &DetectResult{
			Detected:    true,
			Format:      config.FormatName,
			Reason:      fmt.Sprintf("%s file extension %s", config.FormatName, ext),
			ByExtension: true,
		}
	}

	if !config.CheckContent {
		return &DetectResult{Reason: fmt.Sprintf("not a %s file", config.FormatName)}
	}

	header, err := ReadHeader(path, HeaderSize)
	if err != nil {
		return &DetectResult{Reason: fmt.Sprintf("cannot read: %v", err)}
	}
	if HasMagic(header, config.Magic) {
		return &DetectResult{
			Detected:  true,
			Format:    config.FormatName,
			Reason:    fmt.Sprintf("%s identifier detected", config.FormatName),
			ByContent: true,
		}
	}
	if config.CustomValidator != nil {
		if ok, reason := config.CustomValidator(path, header); ok {
			return &DetectResult{Detected: true, Format: config.FormatName, Reason: reason, ByContent: true}
		}
	}
	return &DetectResult{Reason: fmt.Sprintf("not a %s file", config.FormatName)}
}
