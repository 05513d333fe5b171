package manager

import (
	"fmt"
	"io"
	"os"

	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/internal/archive"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/base"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/otbm"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/otmm"
)

// DetectResult describes what Detect found out about a file.
type DetectResult struct {
	Detected    bool                   `json:"detected"`
	Format      mapversion.Format      `json:"format"`
	Compression mapversion.Compression `json:"compression"`
	// Version is valid only when HasVersion is set.
	Version     mapversion.MapVersion `json:"version"`
	HasVersion  bool                  `json:"has_version"`
	Reason      string                `json:"reason"`
	ByExtension bool                  `json:"by_extension,omitempty"`
	ByContent   bool                  `json:"by_content,omitempty"`
}

var detectors = []struct {
	format mapversion.Format
	config base.DetectConfig
}{
	{mapversion.FormatOTBM, otbm.DetectConfig},
	{mapversion.FormatOTMM, otmm.DetectConfig},
}

// Detect identifies the format of the file at path. It never fails; a
// file it cannot place has Detected == false and a Reason. The extension
// decides first, the leading bytes second. The version is peeked from the
// root payload without loading the map.
func (mgr *Manager) Detect(path string) DetectResult {
	res := DetectResult{Compression: archive.FromPath(path)}
	inner := archive.StripExtension(path)

	if info, err := os.Stat(path); err != nil {
		return DetectResult{Reason: fmt.Sprintf("cannot stat: %v", err)}
	} else if info.IsDir() {
		return DetectResult{Reason: "path is a directory, not a file"}
	}

	for _, d := range detectors {
		if ext, ok := base.MatchExtension(inner, d.config.Extensions); ok {
			res.Detected, res.Format, res.ByExtension = true, d.format, true
			res.Reason = fmt.Sprintf("%s file extension %s", d.format, ext)
			break
		}
	}

	header, err := base.ReadHeader(path, base.HeaderSize)
	if err != nil {
		return DetectResult{Reason: fmt.Sprintf("cannot read: %v", err)}
	}
	if c := archive.Sniff(header); c != mapversion.CompressionNone {
		res.Compression = c
		if header, err = mgr.innerHeader(path, c); err != nil {
			res.Reason = fmt.Sprintf("%s container: %v", c, err)
			return res
		}
	} else if len(header) >= len(archive.ZstdMagic) {
		// content wins over a misleading suffix
		res.Compression = mapversion.CompressionNone
	}

	if !res.Detected && res.Compression == mapversion.CompressionNone {
		for _, d := range detectors {
			if r := base.DetectFile(path, d.config); r.Detected {
				res.Detected, res.Format, res.ByContent = true, d.format, true
				res.Reason = r.Reason
				break
			}
		}
	} else if !res.Detected {
		for _, d := range detectors {
			if base.HasMagic(header, d.config.Magic) {
				res.Detected, res.Format, res.ByContent = true, d.format, true
				res.Reason = fmt.Sprintf("%s identifier detected", d.format)
				break
			}
			if v := d.config.CustomValidator; v != nil {
				if ok, reason := v(path, header); ok {
					res.Detected, res.Format, res.ByContent = true, d.format, true
					res.Reason = reason
					break
				}
			}
		}
	}
	if !res.Detected {
		res.Reason = "not a known map file"
		if res.Compression != mapversion.CompressionNone {
			res.Reason = fmt.Sprintf("%s container without a known map inside", res.Compression)
		}
		return res
	}

	if v, err := mgr.peek(path, res.Format, res.Compression); err == nil {
		res.Version, res.HasVersion = v, true
		if res.Compression != mapversion.CompressionNone {
			res.Reason += fmt.Sprintf(" (%s compressed)", res.Compression)
		}
	} else {
		res.Reason += fmt.Sprintf("; version unreadable: %v", err)
	}
	return res
}

// innerHeader returns the leading bytes of the decompressed content.
func (mgr *Manager) innerHeader(path string, c mapversion.Compression) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := archive.NewReader(f, c)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	buf := make([]byte, base.HeaderSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

func (mgr *Manager) peek(path string, format mapversion.Format, c mapversion.Compression) (mapversion.MapVersion, error) {
	f, err := os.Open(path)
	if err != nil {
		return mapversion.MapVersion{}, err
	}
	defer f.Close()
	r, err := archive.NewReader(f, c)
	if err != nil {
		return mapversion.MapVersion{}, err
	}
	defer r.Close()
	return PeekVersion(r, format)
}

// PeekVersion reads only the identifier and root payload of an
// uncompressed map stream.
func PeekVersion(r io.Reader, format mapversion.Format) (mapversion.MapVersion, error) {
	switch format {
	case mapversion.FormatOTBM:
		h, err := otbm.PeekVersion(r)
		return h.Version(), err
	case mapversion.FormatOTMM:
		h, err := otmm.PeekVersion(r)
		return h.Version(), err
	}
	return mapversion.MapVersion{}, fmt.Errorf("unknown map format %s", format)
}

// FormatForPath names the format a file name implies, looking through a
// container suffix. It does not touch the file system.
func FormatForPath(path string) mapversion.Format {
	inner := archive.StripExtension(path)
	for _, d := range detectors {
		if _, ok := base.MatchExtension(inner, d.config.Extensions); ok {
			return d.format
		}
	}
	return mapversion.FormatUnknown
}

// Extensions lists the file suffixes recognized for f.
func Extensions(f mapversion.Format) []string {
	for _, d := range detectors {
		if d.format == f {
			return append([]string(nil), d.config.Extensions...)
		}
	}
	return nil
}
