// Package archive handles the compressed containers a map file can be
// stored in (.otbm.xz, .otbm.zst and the OTMM equivalents).
package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
)

// Container magics.
var (
	XZMagic   = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	ZstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
)

// Sniff identifies the container from the leading bytes of a file.
func Sniff(header []byte) mapversion.Compression {
	switch {
	case bytes.HasPrefix(header, XZMagic):
		return mapversion.CompressionXZ
	case bytes.HasPrefix(header, ZstdMagic):
		return mapversion.CompressionZstd
	}
	return mapversion.CompressionNone
}

// FromPath identifies the container from the file suffix.
func FromPath(path string) mapversion.Compression {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".xz"):
		return mapversion.CompressionXZ
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		return mapversion.CompressionZstd
	}
	return mapversion.CompressionNone
}

// StripExtension removes a container suffix, so "world.otbm.xz" becomes
// "world.otbm".
func StripExtension(path string) string {
	c := FromPath(path)
	if c == mapversion.CompressionNone {
		return path
	}
	lower := strings.ToLower(path)
	for _, ext := range []string{".zstd", c.Extension()} {
		if strings.HasSuffix(lower, ext) {
			return path[:len(path)-len(ext)]
		}
	}
	return path
}

// Reader decompresses a map container. Closing it releases the decoder
// and, when the reader owns one, the underlying file.
type Reader struct {
	io.Reader
	file *os.File
	zstd *zstd.Decoder
}

// NewReader wraps src in a decompressor for c. CompressionNone returns a
// pass-through reader. The caller keeps ownership of src.
func NewReader(src io.Reader, c mapversion.Compression) (*Reader, error) {
	switch c {
	case mapversion.CompressionNone:
		return &Reader{Reader: src}, nil
	case mapversion.CompressionXZ:
		xzr, err := xz.NewReader(src)
		if err != nil {
			return nil, &errors.EncodingError{Message: "xz reader", Err: err}
		}
		return &Reader{Reader: xzr}, nil
	case mapversion.CompressionZstd:
		zr, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, &errors.EncodingError{Message: "zstd reader", Err: err}
		}
		return &Reader{Reader: zr, zstd: zr}, nil
	}
	return nil, fmt.Errorf("unsupported compression %d", c)
}

// Open opens path and detects the container from its leading bytes,
// falling back to the suffix for files too short to sniff.
func Open(path string) (*Reader, mapversion.Compression, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, mapversion.CompressionNone, errors.NewIO("open", path, err)
	}
	header := make([]byte, len(XZMagic))
	n, _ := io.ReadFull(f, header)
	c := Sniff(header[:n])
	if c == mapversion.CompressionNone && n < len(ZstdMagic) {
		c = FromPath(path)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, c, errors.NewIO("seek", path, err)
	}
	r, err := NewReader(f, c)
	if err != nil {
		f.Close()
		return nil, c, err
	}
	r.file = f
	return r, c, nil
}

// Close closes the reader and any underlying decompressor.
func (r *Reader) Close() error {
	if r.zstd != nil {
		r.zstd.Close()
		r.zstd = nil
	}
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// Decompress returns the content of an in-memory container.
func Decompress(data []byte, c mapversion.Compression) ([]byte, error) {
	if c == mapversion.CompressionNone {
		return data, nil
	}
	r, err := NewReader(bytes.NewReader(data), c)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, &errors.EncodingError{Message: c.String() + " container", Err: err}
	}
	return out, nil
}
