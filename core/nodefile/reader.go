// Package nodefile implements the escaped node-tree framing shared by both
// map dialects.
//
// A node is START, a type byte, payload bytes and END. Children are further
// START..END runs inside the parent, after its payload. Nodes carry no length
// field, so readers scan byte by byte; any literal START, END or ESCAPE byte
// is prefixed with ESCAPE.
//
// The reader is a forward-only session. Nodes are materialised lazily into an
// arena and addressed by NodeID; an ID is only usable while the session has
// not moved past the node.
package nodefile

import (
	"io"
	"os"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/stream"
)

// Framing bytes.
const (
	Escape byte = 0xFD
	Start  byte = 0xFE
	End    byte = 0xFF
)

// IdentifierSize is the length of the format identifier preceding the root.
const IdentifierSize = 4

// DefaultCacheSize is the size of the reader's cache window.
const DefaultCacheSize = 64 << 10

// Identifier is a 4-byte format tag.
type Identifier [IdentifierSize]byte

// NodeID addresses a node inside one read session.
type NodeID int32

// NoNode is returned when a traversal has nothing to yield.
const NoNode NodeID = -1

type nodeState uint8

const (
	// payload read, START of the first child consumed, child not materialised
	stateChildPending nodeState = iota
	// at least one child materialised
	stateInChildren
	// END consumed
	stateClosed
)

type node struct {
	typ         byte
	parent      NodeID
	child       NodeID
	next        NodeID
	offset      int64
	props       []byte
	state       nodeState
	hasChildren bool
	lastSibling bool
	released    bool
}

// Reader is a read session over one node file.
type Reader struct {
	src        io.Reader
	closer     io.Closer
	name       string
	cache      []byte
	pos, limit int
	offset     int64
	ident      Identifier
	nodes      []node
	open       []NodeID
	last       NodeID
	root       NodeID
	closed     bool
}

// Option configures a Reader.
type Option func(*Reader)

// WithCacheSize sets the size of the cache window.
func WithCacheSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.cache = make([]byte, n)
		}
	}
}

// WithName attaches a path used in error messages.
func WithName(name string) Option {
	return func(r *Reader) { r.name = name }
}

// NewReader starts a session over src. The first four bytes must equal one
// of accepted; otherwise an UnrecognizedFormatError is returned. The caller
// keeps ownership of src.
func NewReader(src io.Reader, accepted []Identifier, opts ...Option) (*Reader, error) {
	r := &Reader{
		src:  src,
		last: NoNode,
		root: NoNode,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = make([]byte, DefaultCacheSize)
	}
	for i := range r.ident {
		b, err := r.readByte()
		if err != nil {
			return nil, &errors.UnrecognizedFormatError{Path: r.name, Identifier: append([]byte(nil), r.ident[:i]...)}
		}
		r.ident[i] = b
	}
	for _, id := range accepted {
		if id == r.ident {
			return r, nil
		}
	}
	return nil, &errors.UnrecognizedFormatError{Path: r.name, Identifier: append([]byte(nil), r.ident[:]...)}
}

// Open opens a node file from disk. The returned session owns the file.
func Open(path string, accepted []Identifier, opts ...Option) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	r, err := NewReader(file, accepted, append([]Option{WithName(path)}, opts...)...)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// Identifier returns the identifier the file started with.
func (r *Reader) Identifier() Identifier { return r.ident }

// Offset returns the number of raw bytes consumed from the source.
func (r *Reader) Offset() int64 { return r.offset }

// readByte returns the next raw byte, refilling the cache window as needed.
func (r *Reader) readByte() (byte, error) {
	if r.pos >= r.limit {
		if err := r.refill(); err != nil {
			return 0, err
		}
	}
	b := r.cache[r.pos]
	r.pos++
	r.offset++
	return b, nil
}

func (r *Reader) refill() error {
	for {
		n, err := r.src.Read(r.cache)
		if n > 0 {
			r.pos, r.limit = 0, n
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (r *Reader) eof(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &errors.ReadError{Offset: r.offset, Want: 1, Err: err}
}

func (r *Reader) check(id NodeID) error {
	if r.closed {
		return errors.NewStructure("node session", "session is closed")
	}
	if id < 0 || int(id) >= len(r.nodes) {
		return errors.NewStructure("node session", "invalid node id %d", id)
	}
	return nil
}

// materialise parses a node whose START byte has just been consumed.
func (r *Reader) materialise(parent NodeID) (NodeID, error) {
	offset := r.offset - 1
	typ, err := r.readByte()
	if err != nil {
		return NoNode, r.eof(err)
	}
	if typ == Escape {
		if typ, err = r.readByte(); err != nil {
			return NoNode, errors.NewEncoding("dangling escape in node type at offset %d", r.offset)
		}
	}

	n := node{typ: typ, parent: parent, child: NoNode, next: NoNode, offset: offset}
	var props []byte
	for {
		b, err := r.readByte()
		if err != nil {
			return NoNode, r.eof(err)
		}
		switch b {
		case Escape:
			b, err = r.readByte()
			if err != nil {
				return NoNode, errors.NewEncoding("dangling escape at offset %d", r.offset)
			}
			props = append(props, b)
			continue
		case Start:
			n.hasChildren = true
			n.state = stateChildPending
		case End:
			n.state = stateClosed
		default:
			props = append(props, b)
			continue
		}
		break
	}
	n.props = props

	id := NodeID(len(r.nodes))
	r.nodes = append(r.nodes, n)
	if n.state == stateClosed {
		r.last = id
	} else {
		r.open = append(r.open, id)
		r.last = NoNode
	}
	return id, nil
}

// Root returns the root node, reading it on the first call.
func (r *Reader) Root() (NodeID, error) {
	if r.closed {
		return NoNode, errors.NewStructure("node session", "session is closed")
	}
	if r.root != NoNode {
		return r.root, nil
	}
	b, err := r.readByte()
	if err != nil {
		return NoNode, r.eof(err)
	}
	if b != Start {
		return NoNode, errors.NewStructure("root", "expected node start, found %#02x", b)
	}
	id, err := r.materialise(NoNode)
	if err != nil {
		return NoNode, err
	}
	r.root = id
	return id, nil
}

// Type returns the node's type byte.
func (r *Reader) Type(id NodeID) byte {
	if r.check(id) != nil {
		return 0
	}
	return r.nodes[id].typ
}

// Parent returns the node's parent, or NoNode for the root.
func (r *Reader) Parent(id NodeID) NodeID {
	if r.check(id) != nil {
		return NoNode
	}
	return r.nodes[id].parent
}

// NodeOffset returns the byte offset of the node's START marker.
func (r *Reader) NodeOffset(id NodeID) int64 {
	if r.check(id) != nil {
		return -1
	}
	return r.nodes[id].offset
}

// Props returns a reader over the node's un-escaped payload. Payloads are
// released once the session moves past the node.
func (r *Reader) Props(id NodeID) (*stream.Reader, error) {
	if err := r.check(id); err != nil {
		return nil, err
	}
	if r.nodes[id].released {
		return nil, errors.NewStructure("node session", "node %d was already passed", id)
	}
	return stream.NewBytesReader(r.nodes[id].props), nil
}

// Child returns the first child of id, or NoNode if it has none.
func (r *Reader) Child(id NodeID) (NodeID, error) {
	if err := r.check(id); err != nil {
		return NoNode, err
	}
	n := &r.nodes[id]
	if !n.hasChildren {
		return NoNode, nil
	}
	if n.child != NoNode {
		return n.child, nil
	}
	if n.state != stateChildPending {
		return NoNode, errors.NewStructure("node session", "children of node %d were skipped", id)
	}
	child, err := r.materialise(id)
	if err != nil {
		return NoNode, err
	}
	// materialise may grow the arena
	n = &r.nodes[id]
	n.child = child
	n.state = stateInChildren
	return child, nil
}

// Next returns the sibling following id, or NoNode at the end of the
// parent's range. Unread descendants of id are skipped.
func (r *Reader) Next(id NodeID) (NodeID, error) {
	if err := r.check(id); err != nil {
		return NoNode, err
	}
	n := &r.nodes[id]
	if n.next != NoNode {
		return n.next, nil
	}
	if n.lastSibling || n.parent == NoNode {
		return NoNode, nil
	}

	if r.last != id {
		depth := r.stackIndex(id)
		if depth < 0 {
			return NoNode, errors.NewStructure("node session", "node %d is no longer current", id)
		}
		for len(r.open) > depth {
			if err := r.finish(r.open[len(r.open)-1]); err != nil {
				return NoNode, err
			}
		}
	}
	r.release(id)

	b, err := r.readByte()
	if err != nil {
		return NoNode, r.eof(err)
	}
	switch b {
	case Start:
		sib, err := r.materialise(r.nodes[id].parent)
		if err != nil {
			return NoNode, err
		}
		r.nodes[id].next = sib
		return sib, nil
	case End:
		parent := r.nodes[id].parent
		r.nodes[id].lastSibling = true
		if top := len(r.open) - 1; top < 0 || r.open[top] != parent {
			return NoNode, errors.NewStructure("node session", "unbalanced end marker at offset %d", r.offset-1)
		}
		r.open = r.open[:len(r.open)-1]
		r.nodes[parent].state = stateClosed
		r.last = parent
		return NoNode, nil
	default:
		return NoNode, errors.NewStructure("node session", "unexpected byte %#02x between nodes at offset %d", b, r.offset-1)
	}
}

func (r *Reader) stackIndex(id NodeID) int {
	for i := len(r.open) - 1; i >= 0; i-- {
		if r.open[i] == id {
			return i
		}
	}
	return -1
}

// finish consumes the rest of the top open node up to and including its END.
func (r *Reader) finish(id NodeID) error {
	n := &r.nodes[id]
	depth := 0
	if n.state == stateChildPending {
		depth = 1
	}
	for {
		b, err := r.readByte()
		if err != nil {
			return r.eof(err)
		}
		switch b {
		case Escape:
			if _, err := r.readByte(); err != nil {
				return errors.NewEncoding("dangling escape at offset %d", r.offset)
			}
		case Start:
			depth++
		case End:
			if depth == 0 {
				n.state = stateClosed
				r.open = r.open[:len(r.open)-1]
				r.last = id
				r.release(id)
				return nil
			}
			depth--
		}
	}
}

// release drops the payloads of id and of the nodes materialised after it,
// which are all its descendants while id is the innermost open node.
func (r *Reader) release(id NodeID) {
	for i := NodeID(len(r.nodes)) - 1; i > id && !r.nodes[i].released; i-- {
		r.nodes[i].props = nil
		r.nodes[i].released = true
	}
	r.nodes[id].props = nil
	r.nodes[id].released = true
}

// Close ends the session, invalidating every NodeID, and closes the
// source if the session owns it. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.nodes = nil
	r.open = nil
	r.cache = nil
	if r.closer != nil {
		if err := r.closer.Close(); err != nil {
			return errors.NewIO("close", r.name, err)
		}
	}
	return nil
}
