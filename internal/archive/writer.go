package archive

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
)

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// NewWriter wraps dst in a compressor for c. Close flushes the container
// but does not close dst.
func NewWriter(dst io.Writer, c mapversion.Compression) (io.WriteCloser, error) {
	switch c {
	case mapversion.CompressionNone:
		return nopCloser{dst}, nil
	case mapversion.CompressionXZ:
		w, err := xz.NewWriter(dst)
		if err != nil {
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		return w, nil
	case mapversion.CompressionZstd:
		w, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBetterCompression), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return w, nil
	}
	return nil, fmt.Errorf("unsupported compression %d", c)
}

// Compress returns data wrapped in a c container.
func Compress(data []byte, c mapversion.Compression) ([]byte, error) {
	if c == mapversion.CompressionNone {
		return data, nil
	}
	var buf bytes.Buffer
	w, err := NewWriter(&buf, c)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
