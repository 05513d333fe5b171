package mapdata

import (
	"fmt"
	"strings"
)

// MaxLayers is the number of floors a map can have.
const MaxLayers = 16

// Position is a tile coordinate.
type Position struct {
	X uint16
	Y uint16
	Z uint8
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

// AreaBase returns the base coordinate of the tile area containing p.
func (p Position) AreaBase() Position {
	return Position{X: p.X & 0xFF00, Y: p.Y & 0xFF00, Z: p.Z}
}

// TileFlags holds the per-tile state bits.
type TileFlags uint32

const (
	FlagProtectionZone  TileFlags = 0x0001
	FlagDeprecatedHouse TileFlags = 0x0002
	FlagNoPVP           TileFlags = 0x0004
	FlagNoLogout        TileFlags = 0x0008
	FlagPVPZone         TileFlags = 0x0010
	FlagRefresh         TileFlags = 0x0020
	FlagHouse           TileFlags = 0x0040
	FlagBed             TileFlags = 0x0080
	FlagDepot           TileFlags = 0x0100
)

var flagNames = []struct {
	flag TileFlags
	name string
}{
	{FlagProtectionZone, "pz"},
	{FlagDeprecatedHouse, "deprecated-house"},
	{FlagNoPVP, "nopvp"},
	{FlagNoLogout, "nologout"},
	{FlagPVPZone, "pvp"},
	{FlagRefresh, "refresh"},
	{FlagHouse, "house"},
	{FlagBed, "bed"},
	{FlagDepot, "depot"},
}

func (f TileFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	rest := f
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
			rest &^= fn.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// Tile is one map cell.
type Tile struct {
	Pos     Position
	Ground  *Item
	Items   []*Item
	Flags   TileFlags
	HouseID uint32
}

// NewTile returns an empty tile at p.
func NewTile(p Position) *Tile {
	return &Tile{Pos: p}
}

// Trivial reports whether the tile carries nothing worth storing. Trivial
// tiles are not written and compare equal to absent tiles.
func (t *Tile) Trivial() bool {
	return t == nil || (t.Ground == nil && len(t.Items) == 0 && t.Flags == 0 && t.HouseID == 0)
}

// ItemCount returns the number of items on the tile, including the ground
// and nested container contents.
func (t *Tile) ItemCount() int {
	n := 0
	if t.Ground != nil {
		n += t.Ground.Size()
	}
	for _, it := range t.Items {
		n += it.Size()
	}
	return n
}

// Walk visits the ground, then every stacked item and its contents.
func (t *Tile) Walk(fn func(item *Item, depth int) error) error {
	if t.Ground != nil {
		if err := t.Ground.Walk(fn); err != nil {
			return err
		}
	}
	for _, it := range t.Items {
		if err := it.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (t *Tile) Clone() *Tile {
	c := &Tile{Pos: t.Pos, Ground: t.Ground.Clone(), Flags: t.Flags, HouseID: t.HouseID}
	if len(t.Items) > 0 {
		c.Items = make([]*Item, len(t.Items))
		for i, it := range t.Items {
			c.Items[i] = it.Clone()
		}
	}
	return c
}

// Equal compares content; a trivial tile equals nil.
func (t *Tile) Equal(o *Tile) bool {
	if t.Trivial() || o.Trivial() {
		return t.Trivial() && o.Trivial()
	}
	if t.Pos != o.Pos || t.Flags != o.Flags || t.HouseID != o.HouseID || !t.Ground.Equal(o.Ground) {
		return false
	}
	if len(t.Items) != len(o.Items) {
		return false
	}
	for i := range t.Items {
		if !t.Items[i].Equal(o.Items[i]) {
			return false
		}
	}
	return true
}
