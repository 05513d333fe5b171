package stream

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
)

// Writer writes little-endian values to an underlying sink.
type Writer struct {
	w       *bufio.Writer
	closer  io.Closer
	name    string
	pos     int64
	closed  bool
	scratch [8]byte
}

// Create creates or truncates the named file for writing.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.NewIO("create", path, err)
	}
	return &Writer{
		w:      bufio.NewWriterSize(f, DefaultBufferSize),
		closer: f,
		name:   path,
	}, nil
}

// NewWriter wraps w. Close flushes but does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, DefaultBufferSize)}
}

// Name returns the file path, or "" for writers over an io.Writer.
func (w *Writer) Name() string { return w.name }

// Pos returns the number of bytes written so far.
func (w *Writer) Pos() int64 { return w.pos }

func (w *Writer) put(b []byte) error {
	if w.closed {
		return &errors.WriteError{Offset: w.pos, Want: len(b), Err: os.ErrClosed}
	}
	n, err := w.w.Write(b)
	start := w.pos
	w.pos += int64(n)
	if err != nil || n != len(b) {
		return &errors.WriteError{Offset: start, Want: len(b), Got: n, Err: err}
	}
	return nil
}

// WriteU8 writes one byte.
func (w *Writer) WriteU8(v uint8) error {
	w.scratch[0] = v
	return w.put(w.scratch[:1])
}

// WriteU16 writes a little-endian uint16.
func (w *Writer) WriteU16(v uint16) error {
	binary.LittleEndian.PutUint16(w.scratch[:2], v)
	return w.put(w.scratch[:2])
}

// WriteU32 writes a little-endian uint32.
func (w *Writer) WriteU32(v uint32) error {
	binary.LittleEndian.PutUint32(w.scratch[:4], v)
	return w.put(w.scratch[:4])
}

// WriteU64 writes a little-endian uint64.
func (w *Writer) WriteU64(v uint64) error {
	binary.LittleEndian.PutUint64(w.scratch[:8], v)
	return w.put(w.scratch[:8])
}

// WriteI32 writes a little-endian int32.
func (w *Writer) WriteI32(v int32) error { return w.WriteU32(uint32(v)) }

// WriteI64 writes a little-endian int64.
func (w *Writer) WriteI64(v int64) error { return w.WriteU64(uint64(v)) }

// WriteF64 writes a little-endian IEEE-754 double.
func (w *Writer) WriteF64(v float64) error { return w.WriteU64(math.Float64bits(v)) }

// WriteBytes writes b verbatim.
func (w *Writer) WriteBytes(b []byte) error { return w.put(b) }

// WriteString writes s with a u16 length prefix. Strings longer than
// MaxShortString fail with an EncodingError and nothing is written.
func (w *Writer) WriteString(s string) error {
	if len(s) > MaxShortString {
		return errors.NewEncoding("string of %d bytes exceeds the short form limit of %d", len(s), MaxShortString)
	}
	if err := w.WriteU16(uint16(len(s))); err != nil {
		return err
	}
	return w.put([]byte(s))
}

// WriteLongString writes s with a u32 length prefix.
func (w *Writer) WriteLongString(s string) error {
	if err := CheckLongString(len(s)); err != nil {
		return err
	}
	if err := w.WriteU32(uint32(len(s))); err != nil {
		return err
	}
	return w.put([]byte(s))
}

// CheckLongString reports an EncodingError when n bytes do not fit a u32
// length prefix.
func CheckLongString(n int) error {
	if uint64(n) > math.MaxUint32 {
		return errors.NewEncoding("string of %d bytes exceeds the long form limit", n)
	}
	return nil
}

// Flush writes buffered data to the underlying sink.
func (w *Writer) Flush() error {
	if w.closed {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return &errors.WriteError{Offset: w.pos, Err: err}
	}
	return nil
}

// Close flushes buffered data and releases the file. It is safe to call
// more than once; only the first call does any work.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	flushErr := w.Flush()
	w.closed = true
	if w.closer != nil {
		if err := w.closer.Close(); err != nil && flushErr == nil {
			return errors.NewIO("close", w.name, err)
		}
	}
	return flushErr
}
