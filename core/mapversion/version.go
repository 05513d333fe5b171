// Package mapversion describes map formats, their structure versions and the
// game-client content revisions a map can target.
//
// Capability tables are plain values built by NewTable or Default; nothing in
// this package is process-global, so callers can inject synthetic tables.
package mapversion

import (
	"fmt"
	"strconv"
	"strings"
)

// Format identifies a map dialect.
type Format int

const (
	// FormatUnknown is returned when detection fails.
	FormatUnknown Format = iota
	// FormatOTBM is the primary, versioned dialect.
	FormatOTBM
	// FormatOTMM is the legacy dialect.
	FormatOTMM
)

func (f Format) String() string {
	switch f {
	case FormatOTBM:
		return "otbm"
	case FormatOTMM:
		return "otmm"
	default:
		return "unknown"
	}
}

// MarshalText renders the format name.
func (f Format) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText accepts any name ParseFormat accepts.
func (f *Format) UnmarshalText(b []byte) error {
	v, err := ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ParseFormat parses a format name such as "otbm" or "OTMM".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "otbm", "a":
		return FormatOTBM, nil
	case "otmm", "b":
		return FormatOTMM, nil
	}
	return FormatUnknown, fmt.Errorf("unknown map format %q", s)
}

// Compression identifies an outer container around a map file.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionXZ
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionXZ:
		return "xz"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

// Extension returns the file suffix appended for the container.
func (c Compression) Extension() string {
	switch c {
	case CompressionXZ:
		return ".xz"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

func (c Compression) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Compression) UnmarshalText(b []byte) error {
	v, err := ParseCompression(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseCompression parses "none", "xz" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "xz":
		return CompressionXZ, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	}
	return CompressionNone, fmt.Errorf("unknown compression %q", s)
}

// Structure is a format-level schema revision. For OTBM, 0..3 stand for
// OTBM v1..v4.
type Structure uint32

func (s Structure) String() string { return strconv.FormatUint(uint64(s), 10) }

// Client is a content revision, written as major*100+minor (860 = 8.60).
type Client uint32

func (c Client) String() string {
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}

func (c Client) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Client) UnmarshalText(b []byte) error {
	v, err := ParseClient(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseClient accepts "8.60", "860" or "10.98".
func ParseClient(s string) (Client, error) {
	s = strings.TrimSpace(s)
	if major, minor, ok := strings.Cut(s, "."); ok {
		ma, err1 := strconv.ParseUint(major, 10, 32)
		mi, err2 := strconv.ParseUint(minor, 10, 32)
		if err1 != nil || err2 != nil || len(minor) != 2 {
			return 0, fmt.Errorf("invalid client version %q", s)
		}
		return Client(ma*100 + mi), nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid client version %q", s)
	}
	return Client(v), nil
}

// MapVersion is the full version tag of a map.
type MapVersion struct {
	Format    Format    `json:"format"`
	Structure Structure `json:"structure"`
	Client    Client    `json:"client"`
}

func (v MapVersion) String() string {
	if v.Format == FormatOTBM {
		return fmt.Sprintf("otbm v%d / %s", v.Structure+1, v.Client)
	}
	return fmt.Sprintf("%s s%d / %s", v.Format, v.Structure, v.Client)
}

// ClientInfo describes one known client revision.
type ClientInfo struct {
	Client     Client
	Name       string
	ItemsMajor uint32
	ItemsMinor uint32
	// Structure is the OTBM structure version maps for this client are
	// normally written with.
	Structure Structure
}
