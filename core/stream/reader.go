// Package stream provides buffered little-endian primitives over a file or
// an in-memory buffer. It is the lowest layer of the map codec: every
// integer is little-endian, short strings carry a u16 length prefix and
// long strings a u32 length prefix.
package stream

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
)

// MaxShortString is the longest string the short (u16-prefixed) form can hold.
const MaxShortString = math.MaxUint16

// DefaultBufferSize is the read/write buffer used for file-backed streams.
const DefaultBufferSize = 64 << 10

// Reader reads little-endian values from an underlying source.
type Reader struct {
	src     io.Reader
	closer  io.Closer
	name    string
	pos     int64
	size    int64
	closed  bool
	scratch [8]byte
}

// Open opens the named file for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	size := int64(-1)
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}
	return &Reader{
		src:    bufio.NewReaderSize(f, DefaultBufferSize),
		closer: f,
		name:   path,
		size:   size,
	}, nil
}

// NewReader wraps r. The caller keeps ownership of r; Close does not close it.
func NewReader(r io.Reader) *Reader {
	if _, ok := r.(io.ByteReader); !ok {
		r = bufio.NewReaderSize(r, DefaultBufferSize)
	}
	return &Reader{src: r, size: -1}
}

// NewBytesReader reads from an in-memory buffer.
func NewBytesReader(b []byte) *Reader {
	return &Reader{src: bytes.NewReader(b), size: int64(len(b))}
}

// Name returns the file path, or "" for memory-backed readers.
func (r *Reader) Name() string { return r.name }

// Pos returns the number of bytes consumed so far.
func (r *Reader) Pos() int64 { return r.pos }

// Size returns the total size of the source, or -1 if it is not known.
func (r *Reader) Size() int64 { return r.size }

// Remaining returns the number of unread bytes, or -1 if the size is not known.
func (r *Reader) Remaining() int64 {
	if r.size < 0 {
		return -1
	}
	return r.size - r.pos
}

// fill reads exactly len(buf) bytes. On a short read the position is
// left after the bytes that were consumed.
func (r *Reader) fill(buf []byte) error {
	if r.closed {
		return &errors.ReadError{Offset: r.pos, Want: len(buf), Err: os.ErrClosed}
	}
	n, err := io.ReadFull(r.src, buf)
	start := r.pos
	r.pos += int64(n)
	if err != nil {
		return &errors.ReadError{Offset: start, Want: len(buf), Got: n, Err: err}
	}
	return nil
}

// ReadU8 reads one byte.
func (r *Reader) ReadU8() (uint8, error) {
	if err := r.fill(r.scratch[:1]); err != nil {
		return 0, err
	}
	return r.scratch[0], nil
}

// ReadU16 reads a little-endian uint16.
func (r *Reader) ReadU16() (uint16, error) {
	if err := r.fill(r.scratch[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.scratch[:2]), nil
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	if err := r.fill(r.scratch[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.scratch[:4]), nil
}

// ReadU64 reads a little-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	if err := r.fill(r.scratch[:8]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(r.scratch[:8]), nil
}

// ReadI8 reads a signed byte.
func (r *Reader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

// ReadI32 reads a little-endian int32.
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadI64 reads a little-endian int64.
func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

// ReadF64 reads a little-endian IEEE-754 double.
func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	return math.Float64frombits(v), err
}

// readChunk bounds a single allocation in ReadBytes.
const readChunk = 1 << 20

// ReadBytes reads exactly n bytes into a new slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.NewEncoding("negative length %d", n)
	}
	if n <= readChunk {
		buf := make([]byte, n)
		if err := r.fill(buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	// Grow in chunks so a corrupt length on a stream of unknown size
	// fails at the end of the data instead of allocating it up front.
	start := r.pos
	buf := make([]byte, 0, readChunk)
	for len(buf) < n {
		k := min(readChunk, n-len(buf))
		buf = append(buf, make([]byte, k)...)
		if err := r.fill(buf[len(buf)-k:]); err != nil {
			cause := io.ErrUnexpectedEOF
			if re, ok := err.(*errors.ReadError); ok && re.Err == os.ErrClosed {
				cause = os.ErrClosed
			}
			return nil, &errors.ReadError{Offset: start, Want: n, Got: int(r.pos - start), Err: cause}
		}
	}
	return buf, nil
}

// ReadString reads a u16 length-prefixed string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadU16()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadLongString reads a u32 length-prefixed string.
func (r *Reader) ReadLongString() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	if r.size >= 0 && int64(n) > r.Remaining() {
		return "", &errors.ReadError{Offset: r.pos, Want: int(n), Got: int(r.Remaining())}
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Skip discards n bytes.
func (r *Reader) Skip(n int) error {
	if r.closed {
		return &errors.ReadError{Offset: r.pos, Want: n, Err: os.ErrClosed}
	}
	k, err := io.CopyN(io.Discard, r.src, int64(n))
	start := r.pos
	r.pos += k
	if err != nil {
		return &errors.ReadError{Offset: start, Want: n, Got: int(k), Err: err}
	}
	return nil
}

// Close releases the underlying file. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer == nil {
		return nil
	}
	if err := r.closer.Close(); err != nil {
		return errors.NewIO("close", r.name, err)
	}
	return nil
}
