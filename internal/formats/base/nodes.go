package base

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/nodefile"
	"github.com/FocuswithJustin/OTMapKit/core/stream"
)

// Children calls fn for every child of parent in order. Traversal errors
// are returned as StreamFailure; errors from fn are returned unchanged.
func Children(r *nodefile.Reader, parent nodefile.NodeID, fn func(nodefile.NodeID) error) error {
	child, err := r.Child(parent)
	for ; err == nil && child != nodefile.NoNode; child, err = r.Next(child) {
		if ferr := fn(child); ferr != nil {
			return ferr
		}
	}
	return Stream(err)
}

// ExpectType fails with a TypeMismatchError unless the node has one of the
// wanted types.
func ExpectType(r *nodefile.Reader, id nodefile.NodeID, context string, want ...byte) error {
	typ := r.Type(id)
	for _, w := range want {
		if typ == w {
			return nil
		}
	}
	return errors.NewTypeMismatch(context, typ, want...)
}

// SideFileName derives a side-file name such as "world-house.xml" from
// the map file name, ignoring compound extensions.
func SideFileName(mapName, suffix string) string {
	name := ""
	if mapName != "" {
		name = filepath.Base(mapName)
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		name = "map"
	}
	return name + suffix
}

// ReadPosition reads the u16 x, u16 y, u8 z layout both dialects use.
func ReadPosition(r *stream.Reader) (mapdata.Position, error) {
	var p mapdata.Position
	var err error
	if p.X, err = r.ReadU16(); err != nil {
		return p, err
	}
	if p.Y, err = r.ReadU16(); err != nil {
		return p, err
	}
	p.Z, err = r.ReadU8()
	return p, err
}

// TilePosition adds a tile's offset to its area base. Sums past the u16
// coordinate range are a structure error rather than a wrapped position.
func TilePosition(area mapdata.Position, dx, dy uint8) (mapdata.Position, error) {
	x, y := int(area.X)+int(dx), int(area.Y)+int(dy)
	if x > math.MaxUint16 || y > math.MaxUint16 {
		return mapdata.Position{}, errors.NewStructure("tile", "offset (%d,%d) from area %s leaves the coordinate range", dx, dy, area)
	}
	return mapdata.Position{X: uint16(x), Y: uint16(y), Z: area.Z}, nil
}

// WritePosition is the inverse of ReadPosition.
func WritePosition(w *nodefile.Writer, p mapdata.Position) error {
	if err := w.WriteU16(p.X); err != nil {
		return err
	}
	if err := w.WriteU16(p.Y); err != nil {
		return err
	}
	return w.WriteU8(p.Z)
}
