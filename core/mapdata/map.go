// Package mapdata holds the in-memory map aggregate that the format
// interpreters populate and the version converter rewrites.
package mapdata

import (
	"fmt"
	"sort"

	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
)

// MaxDimension is the largest width or height a map header may declare.
const MaxDimension = 65000

// Header is the map-level metadata.
type Header struct {
	Format      mapversion.Format
	Structure   mapversion.Structure
	Client      mapversion.Client
	Width       uint16
	Height      uint16
	Description string
	ItemsMajor  uint32
	ItemsMinor  uint32
	SpawnFile   string
	HouseFile   string
}

// Version returns the header's version tag.
func (h Header) Version() mapversion.MapVersion {
	return mapversion.MapVersion{Format: h.Format, Structure: h.Structure, Client: h.Client}
}

// ValidDimensions reports whether width and height are within limits.
func (h Header) ValidDimensions() bool {
	return h.Width > 0 && h.Height > 0 && h.Width <= MaxDimension && h.Height <= MaxDimension
}

// Map is the map aggregate.
type Map struct {
	Header    Header
	Spawns    []*Spawn
	Towns     map[uint32]*Town
	Houses    map[uint32]*House
	Waypoints map[string]*Waypoint

	tiles map[Position]*Tile
}

// New returns an empty map.
func New(width, height uint16) *Map {
	return &Map{
		Header:    Header{Width: width, Height: height},
		Towns:     make(map[uint32]*Town),
		Houses:    make(map[uint32]*House),
		Waypoints: make(map[string]*Waypoint),
		tiles:     make(map[Position]*Tile),
	}
}

// InBounds reports whether p lies inside the map.
func (m *Map) InBounds(p Position) bool {
	return p.X < m.Header.Width && p.Y < m.Header.Height && p.Z < MaxLayers
}

// Tile returns the tile at p, or nil.
func (m *Map) Tile(p Position) *Tile {
	return m.tiles[p]
}

// SetTile stores t, replacing any tile at the same position.
func (m *Map) SetTile(t *Tile) {
	if m.tiles == nil {
		m.tiles = make(map[Position]*Tile)
	}
	m.tiles[t.Pos] = t
}

// GetOrCreateTile returns the tile at p, creating an empty one if needed.
func (m *Map) GetOrCreateTile(p Position) *Tile {
	if t := m.tiles[p]; t != nil {
		return t
	}
	t := NewTile(p)
	m.SetTile(t)
	return t
}

// RemoveTile deletes the tile at p.
func (m *Map) RemoveTile(p Position) {
	delete(m.tiles, p)
}

// TileCount returns the number of stored tiles, trivial ones included.
func (m *Map) TileCount() int {
	return len(m.tiles)
}

// ItemCount returns the number of items on all tiles.
func (m *Map) ItemCount() int {
	n := 0
	for _, t := range m.tiles {
		n += t.ItemCount()
	}
	return n
}

// Tiles returns every tile ordered by floor, row and column.
func (m *Map) Tiles() []*Tile {
	out := make([]*Tile, 0, len(m.tiles))
	for _, t := range m.tiles {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return lessPos(out[i].Pos, out[j].Pos) })
	return out
}

func lessPos(a, b Position) bool {
	if a.Z != b.Z {
		return a.Z < b.Z
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}

// Area is a run of tiles sharing one tile-area base coordinate.
type Area struct {
	Base  Position
	Tiles []*Tile
}

// Areas groups the non-trivial tiles into tile areas, in a stable order.
func (m *Map) Areas() []Area {
	groups := make(map[Position][]*Tile)
	for _, t := range m.tiles {
		if t.Trivial() {
			continue
		}
		base := t.Pos.AreaBase()
		groups[base] = append(groups[base], t)
	}
	out := make([]Area, 0, len(groups))
	for base, tiles := range groups {
		sort.Slice(tiles, func(i, j int) bool { return lessPos(tiles[i].Pos, tiles[j].Pos) })
		out = append(out, Area{Base: base, Tiles: tiles})
	}
	sort.Slice(out, func(i, j int) bool { return lessPos(out[i].Base, out[j].Base) })
	return out
}

// HouseTileCount returns how many tiles link to house id.
func (m *Map) HouseTileCount(id uint32) int {
	n := 0
	for _, t := range m.tiles {
		if t.HouseID == id {
			n++
		}
	}
	return n
}

// SortedTowns returns towns ordered by id.
func (m *Map) SortedTowns() []*Town {
	out := make([]*Town, 0, len(m.Towns))
	for _, t := range m.Towns {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SortedHouses returns houses ordered by id.
func (m *Map) SortedHouses() []*House {
	out := make([]*House, 0, len(m.Houses))
	for _, h := range m.Houses {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SortedWaypoints returns waypoints ordered by name.
func (m *Map) SortedWaypoints() []*Waypoint {
	out := make([]*Waypoint, 0, len(m.Waypoints))
	for _, w := range m.Waypoints {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddTown registers a town.
func (m *Map) AddTown(t *Town) {
	if m.Towns == nil {
		m.Towns = make(map[uint32]*Town)
	}
	m.Towns[t.ID] = t
}

// AddHouse registers a house.
func (m *Map) AddHouse(h *House) {
	if m.Houses == nil {
		m.Houses = make(map[uint32]*House)
	}
	m.Houses[h.ID] = h
}

// AddWaypoint registers a waypoint.
func (m *Map) AddWaypoint(w *Waypoint) {
	if m.Waypoints == nil {
		m.Waypoints = make(map[string]*Waypoint)
	}
	m.Waypoints[w.Name] = w
}

// ReplaceWith moves the whole content of src into m. Loaders build into a
// scratch map and call this only on success.
func (m *Map) ReplaceWith(src *Map) {
	*m = *src
	if m.tiles == nil {
		m.tiles = make(map[Position]*Tile)
	}
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	c := New(m.Header.Width, m.Header.Height)
	c.Header = m.Header
	for p, t := range m.tiles {
		c.tiles[p] = t.Clone()
	}
	for _, s := range m.Spawns {
		cs := *s
		cs.Creatures = append([]Creature(nil), s.Creatures...)
		c.Spawns = append(c.Spawns, &cs)
	}
	for id, t := range m.Towns {
		ct := *t
		c.Towns[id] = &ct
	}
	for id, h := range m.Houses {
		ch := *h
		c.Houses[id] = &ch
	}
	for name, w := range m.Waypoints {
		cw := *w
		c.Waypoints[name] = &cw
	}
	return c
}

// Diff compares two maps and returns a description of the first
// difference found, or "" if they are equal. Trivial tiles are treated as
// absent on both sides.
func Diff(a, b *Map) string {
	if a.Header != b.Header {
		return fmt.Sprintf("header %+v != %+v", a.Header, b.Header)
	}
	for p, t := range a.tiles {
		if !t.Equal(b.tiles[p]) {
			return fmt.Sprintf("tile %s differs", p)
		}
	}
	for p, t := range b.tiles {
		if !t.Equal(a.tiles[p]) {
			return fmt.Sprintf("tile %s differs", p)
		}
	}
	if len(a.Spawns) != len(b.Spawns) {
		return fmt.Sprintf("spawn count %d != %d", len(a.Spawns), len(b.Spawns))
	}
	for i := range a.Spawns {
		if !a.Spawns[i].equal(b.Spawns[i]) {
			return fmt.Sprintf("spawn %d at %s differs", i, a.Spawns[i].Center)
		}
	}
	if len(a.Towns) != len(b.Towns) {
		return fmt.Sprintf("town count %d != %d", len(a.Towns), len(b.Towns))
	}
	for id, t := range a.Towns {
		if o := b.Towns[id]; o == nil || *o != *t {
			return fmt.Sprintf("town %d differs", id)
		}
	}
	if len(a.Houses) != len(b.Houses) {
		return fmt.Sprintf("house count %d != %d", len(a.Houses), len(b.Houses))
	}
	for id, h := range a.Houses {
		if o := b.Houses[id]; o == nil || *o != *h {
			return fmt.Sprintf("house %d differs", id)
		}
	}
	if len(a.Waypoints) != len(b.Waypoints) {
		return fmt.Sprintf("waypoint count %d != %d", len(a.Waypoints), len(b.Waypoints))
	}
	for name, w := range a.Waypoints {
		if o := b.Waypoints[name]; o == nil || *o != *w {
			return fmt.Sprintf("waypoint %q differs", name)
		}
	}
	return ""
}

// Equal reports whether two maps hold the same content.
func Equal(a, b *Map) bool {
	return Diff(a, b) == ""
}
