package nodefile

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/stream"
)

// Writer emits one node file. Payload bytes are staged per node so that
// attribute lengths can be back-patched before the bytes are escaped.
type Writer struct {
	out      *stream.Writer
	stack    []byte
	pending  []byte
	attrs    []int
	rootDone bool
	closed   bool
	escaped  []byte
}

// NewWriter writes identifier to w and returns a writer positioned before
// the root node. Close flushes but does not close w.
func NewWriter(w io.Writer, identifier Identifier) (*Writer, error) {
	return newWriter(stream.NewWriter(w), identifier)
}

// Create creates the named file and writes identifier to it.
func Create(path string, identifier Identifier) (*Writer, error) {
	out, err := stream.Create(path)
	if err != nil {
		return nil, err
	}
	nw, err := newWriter(out, identifier)
	if err != nil {
		out.Close()
		return nil, err
	}
	return nw, nil
}

func newWriter(out *stream.Writer, identifier Identifier) (*Writer, error) {
	if err := out.WriteBytes(identifier[:]); err != nil {
		return nil, err
	}
	return &Writer{out: out}, nil
}

// Depth returns the number of open nodes.
func (w *Writer) Depth() int { return len(w.stack) }

// Pos returns the number of bytes written to the sink so far.
func (w *Writer) Pos() int64 { return w.out.Pos() + int64(len(w.pending)) }

// BeginNode opens a child of the current node, or the root.
func (w *Writer) BeginNode(typ byte) error {
	if w.closed {
		return errors.NewStructure("node writer", "writer is closed")
	}
	if len(w.stack) == 0 && w.rootDone {
		return errors.NewStructure("node writer", "root node already written")
	}
	if len(w.attrs) > 0 {
		return errors.NewStructure("node writer", "node begun inside an open attribute")
	}
	if err := w.flushPending(); err != nil {
		return err
	}
	if err := w.out.WriteU8(Start); err != nil {
		return err
	}
	w.escaped = appendEscaped(w.escaped[:0], []byte{typ})
	if err := w.out.WriteBytes(w.escaped); err != nil {
		return err
	}
	w.stack = append(w.stack, typ)
	return nil
}

// EndNode closes the most recently opened node.
func (w *Writer) EndNode() error {
	if len(w.stack) == 0 {
		return errors.NewStructure("node writer", "end node with no open node")
	}
	if len(w.attrs) > 0 {
		return errors.NewStructure("node writer", "node ended inside an open attribute")
	}
	if err := w.flushPending(); err != nil {
		return err
	}
	if err := w.out.WriteU8(End); err != nil {
		return err
	}
	w.stack = w.stack[:len(w.stack)-1]
	if len(w.stack) == 0 {
		w.rootDone = true
	}
	return nil
}

func (w *Writer) flushPending() error {
	if len(w.pending) == 0 {
		return nil
	}
	w.escaped = appendEscaped(w.escaped[:0], w.pending)
	w.pending = w.pending[:0]
	return w.out.WriteBytes(w.escaped)
}

func appendEscaped(dst, src []byte) []byte {
	for _, b := range src {
		if b == Escape || b == Start || b == End {
			dst = append(dst, Escape)
		}
		dst = append(dst, b)
	}
	return dst
}

func (w *Writer) payload(b ...byte) error {
	if len(w.stack) == 0 {
		return errors.NewStructure("node writer", "payload written outside any node")
	}
	w.pending = append(w.pending, b...)
	return nil
}

// WriteU8 appends a byte to the current node's payload.
func (w *Writer) WriteU8(v uint8) error { return w.payload(v) }

// WriteU16 appends a little-endian uint16.
func (w *Writer) WriteU16(v uint16) error {
	return w.payload(byte(v), byte(v>>8))
}

// WriteU32 appends a little-endian uint32.
func (w *Writer) WriteU32(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return w.payload(b[:]...)
}

// WriteU64 appends a little-endian uint64.
func (w *Writer) WriteU64(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return w.payload(b[:]...)
}

// WriteI64 appends a little-endian int64.
func (w *Writer) WriteI64(v int64) error { return w.WriteU64(uint64(v)) }

// WriteF64 appends a little-endian double.
func (w *Writer) WriteF64(v float64) error { return w.WriteU64(math.Float64bits(v)) }

// WriteBytes appends raw payload bytes. They are escaped on output.
func (w *Writer) WriteBytes(b []byte) error { return w.payload(b...) }

// WriteString appends a u16 length-prefixed string.
func (w *Writer) WriteString(s string) error {
	if len(s) > stream.MaxShortString {
		return errors.NewEncoding("string of %d bytes exceeds the short form limit of %d", len(s), stream.MaxShortString)
	}
	if err := w.WriteU16(uint16(len(s))); err != nil {
		return err
	}
	return w.payload([]byte(s)...)
}

// WriteLongString appends a u32 length-prefixed string.
func (w *Writer) WriteLongString(s string) error {
	if err := stream.CheckLongString(len(s)); err != nil {
		return err
	}
	if err := w.WriteU32(uint32(len(s))); err != nil {
		return err
	}
	return w.payload([]byte(s)...)
}

// BeginAttr writes tag followed by a u16 length placeholder that EndAttr
// fills in.
func (w *Writer) BeginAttr(tag byte) error {
	if err := w.payload(tag, 0, 0); err != nil {
		return err
	}
	w.attrs = append(w.attrs, len(w.pending)-2)
	return nil
}

// EndAttr back-patches the length of the most recently begun attribute.
func (w *Writer) EndAttr() error {
	if len(w.attrs) == 0 {
		return errors.NewStructure("node writer", "end attribute with no open attribute")
	}
	off := w.attrs[len(w.attrs)-1]
	w.attrs = w.attrs[:len(w.attrs)-1]
	n := len(w.pending) - off - 2
	if n > math.MaxUint16 {
		return errors.NewEncoding("attribute payload of %d bytes exceeds %d", n, math.MaxUint16)
	}
	binary.LittleEndian.PutUint16(w.pending[off:], uint16(n))
	return nil
}

// Flush pushes everything written so far to the sink. Bytes of the
// current node's payload are held back while an attribute is open.
func (w *Writer) Flush() error {
	if len(w.attrs) == 0 {
		if err := w.flushPending(); err != nil {
			return err
		}
	}
	return w.out.Flush()
}

// Close flushes the file. Closing with nodes still open is a
// StructureError; the sink is released either way.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if len(w.stack) > 0 {
		w.out.Close()
		return errors.NewStructure("node writer", "%d node(s) left open", len(w.stack))
	}
	return w.out.Close()
}
