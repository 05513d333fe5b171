package otbm

import (
	"io"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/core/nodefile"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/base"
)

type saver struct {
	ctx *base.Context
	w   *nodefile.Writer
	m   *mapdata.Map
	p   profile
}

// Save writes m to dst using the structure version and client in m's
// header. Content the structure cannot express is left out with one
// warning per category.
func Save(ctx *base.Context, m *mapdata.Map, dst io.Writer) error {
	h := m.Header
	v := mapversion.MapVersion{Format: mapversion.FormatOTBM, Structure: h.Structure, Client: h.Client}
	if err := ctx.Versions().Validate(v); err != nil {
		return err
	}
	p, err := profileFor(h.Structure)
	if err != nil {
		return err
	}
	if !h.ValidDimensions() {
		return errors.NewStructure("map header", "invalid dimensions %dx%d", h.Width, h.Height)
	}

	w, err := nodefile.NewWriter(dst, Identifier)
	if err != nil {
		return err
	}
	s := &saver{ctx: ctx, w: w, m: m, p: p}
	if err := s.write(); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := s.houses(); err != nil {
		return err
	}
	ctx.Stats.Bytes = w.Pos()
	ctx.Finish(int64(m.TileCount()), int64(m.TileCount()))
	return nil
}

func (s *saver) write() error {
	h := s.m.Header
	w := s.w
	if err := w.BeginNode(NodeRoot); err != nil {
		return err
	}
	for _, err := range []error{
		w.WriteU32(uint32(h.Structure)),
		w.WriteU16(h.Width),
		w.WriteU16(h.Height),
		w.WriteU32(h.ItemsMajor),
		w.WriteU32(h.ItemsMinor),
		w.WriteU32(uint32(h.Client)),
	} {
		if err != nil {
			return err
		}
	}

	if err := w.BeginNode(NodeMapData); err != nil {
		return err
	}
	if h.Description != "" {
		if err := s.stringAttr(AttrDescription, h.Description); err != nil {
			return err
		}
	}
	if h.SpawnFile != "" {
		if err := s.stringAttr(AttrExtSpawnFile, h.SpawnFile); err != nil {
			return err
		}
	}
	if h.HouseFile != "" {
		if err := s.stringAttr(AttrExtHouseFile, h.HouseFile); err != nil {
			return err
		}
	}

	if err := s.tiles(); err != nil {
		return err
	}
	if err := s.spawns(); err != nil {
		return err
	}
	if err := s.towns(); err != nil {
		return err
	}
	if err := s.waypoints(); err != nil {
		return err
	}

	if err := w.EndNode(); err != nil {
		return err
	}
	return w.EndNode()
}

func (s *saver) stringAttr(tag byte, v string) error {
	if err := s.w.BeginAttr(tag); err != nil {
		return err
	}
	if err := s.w.WriteString(v); err != nil {
		return err
	}
	return s.w.EndAttr()
}

func (s *saver) tiles() error {
	total := int64(s.m.TileCount())
	var done int64
	for _, area := range s.m.Areas() {
		if err := s.w.BeginNode(NodeTileArea); err != nil {
			return err
		}
		if err := base.WritePosition(s.w, area.Base); err != nil {
			return err
		}
		s.ctx.Stats.TileAreas++
		for _, t := range area.Tiles {
			if err := s.ctx.Tick(); err != nil {
				return err
			}
			s.ctx.Pos = t.Pos
			if err := s.tile(t, area.Base); err != nil {
				return err
			}
			done++
			s.ctx.Progress(done, total)
		}
		if err := s.w.EndNode(); err != nil {
			return err
		}
	}
	return nil
}

func (s *saver) tile(t *mapdata.Tile, areaBase mapdata.Position) error {
	w := s.w
	typ := NodeTile
	if t.HouseID != 0 {
		typ = NodeHouseTile
	}
	if err := w.BeginNode(typ); err != nil {
		return err
	}
	if err := w.WriteU8(uint8(t.Pos.X - areaBase.X)); err != nil {
		return err
	}
	if err := w.WriteU8(uint8(t.Pos.Y - areaBase.Y)); err != nil {
		return err
	}
	if t.HouseID != 0 {
		if err := w.WriteU32(t.HouseID); err != nil {
			return err
		}
		s.ctx.Stats.HouseTiles++
	}
	if t.Flags != 0 {
		if err := w.BeginAttr(AttrTileFlags); err != nil {
			return err
		}
		if err := w.WriteU32(uint32(t.Flags)); err != nil {
			return err
		}
		if err := w.EndAttr(); err != nil {
			return err
		}
	}

	items := t.Items
	if t.Ground != nil {
		if t.Ground.Plain() {
			if err := w.BeginAttr(AttrItem); err != nil {
				return err
			}
			if err := w.WriteU16(t.Ground.ID); err != nil {
				return err
			}
			if err := w.EndAttr(); err != nil {
				return err
			}
		} else {
			items = append([]*mapdata.Item{t.Ground}, t.Items...)
		}
	}
	for _, it := range items {
		if d := nesting(it); d > s.ctx.MaxDepth() {
			s.ctx.Stats.SkippedItems++
			s.ctx.Warnf("item %d at %s skipped: container nesting of %d exceeds %d", it.ID, t.Pos, d, s.ctx.MaxDepth())
			continue
		}
		if err := s.item(it); err != nil {
			return err
		}
	}
	s.ctx.Stats.Tiles++
	s.ctx.Stats.Items += t.ItemCount()
	return w.EndNode()
}

// nesting returns the depth of the deepest container content, 0 for an
// item without contents.
func nesting(it *mapdata.Item) int {
	d := 0
	for _, sub := range it.Contents {
		if n := nesting(sub) + 1; n > d {
			d = n
		}
	}
	return d
}

func (s *saver) item(it *mapdata.Item) error {
	if err := s.w.BeginNode(NodeItem); err != nil {
		return err
	}
	if err := s.w.WriteU16(it.ID); err != nil {
		return err
	}
	if err := s.itemAttrs(it); err != nil {
		return err
	}
	for _, sub := range it.Contents {
		if err := s.item(sub); err != nil {
			return err
		}
	}
	return s.w.EndNode()
}

func (s *saver) itemAttrs(it *mapdata.Item) error {
	var custom []string
	for _, name := range it.Attrs.Names() {
		v := it.Attrs[name]
		c, ok := codecByName[name]
		if !ok {
			if s.p.attributeMap {
				custom = append(custom, name)
			} else {
				s.ctx.WarnOnce("custom", "custom item attributes omitted: otbm structure %d has no attribute map", s.p.structure)
			}
			continue
		}
		if c.since > s.p.structure {
			s.ctx.WarnOnce(name, "item attribute %s omitted: not stored by otbm structure %d", name, s.p.structure)
			continue
		}
		if !c.accepts(v) {
			s.ctx.WarnOnce("kind:"+name, "item attribute %s omitted: %s value cannot be stored as %s", name, v.Kind, c.kind)
			continue
		}
		if c.kind.Integer() && !v.Fits(c.max()) {
			s.ctx.WarnOnce("clamp:"+name, "item attribute %s value %s clamped to %d", name, v, c.max())
		}
		if err := c.write(s.w, v); err != nil {
			return err
		}
	}
	if len(custom) > 0 {
		return writeAttributeMap(s.w, it, custom)
	}
	return nil
}

func (s *saver) spawns() error {
	if len(s.m.Spawns) == 0 {
		return nil
	}
	w := s.w
	if err := w.BeginNode(NodeSpawns); err != nil {
		return err
	}
	for _, sp := range s.m.Spawns {
		if err := w.BeginNode(NodeSpawnArea); err != nil {
			return err
		}
		if err := base.WritePosition(w, sp.Center); err != nil {
			return err
		}
		if err := w.WriteU16(sp.Radius); err != nil {
			return err
		}
		for _, c := range sp.Creatures {
			if err := w.BeginNode(NodeMonster); err != nil {
				return err
			}
			var flags byte
			if c.NPC {
				flags |= monsterNPC
			}
			for _, err := range []error{
				w.WriteString(c.Name),
				base.WritePosition(w, c.Pos),
				w.WriteU32(c.SpawnTime),
				w.WriteU8(c.Direction),
				w.WriteU8(flags),
			} {
				if err != nil {
					return err
				}
			}
			if err := w.EndNode(); err != nil {
				return err
			}
			s.ctx.Stats.Creatures++
		}
		if err := w.EndNode(); err != nil {
			return err
		}
		s.ctx.Stats.Spawns++
	}
	return w.EndNode()
}

func (s *saver) towns() error {
	if len(s.m.Towns) == 0 {
		return nil
	}
	w := s.w
	if err := w.BeginNode(NodeTowns); err != nil {
		return err
	}
	for _, t := range s.m.SortedTowns() {
		if err := w.BeginNode(NodeTown); err != nil {
			return err
		}
		if err := w.WriteU32(t.ID); err != nil {
			return err
		}
		if err := w.WriteString(t.Name); err != nil {
			return err
		}
		if err := base.WritePosition(w, t.Temple); err != nil {
			return err
		}
		if err := w.EndNode(); err != nil {
			return err
		}
		s.ctx.Stats.Towns++
	}
	return w.EndNode()
}

func (s *saver) waypoints() error {
	if len(s.m.Waypoints) == 0 {
		return nil
	}
	if !s.p.waypoints {
		s.ctx.WarnOnce("waypoints", "%d waypoints omitted: otbm structure %d has no waypoint section", len(s.m.Waypoints), s.p.structure)
		return nil
	}
	w := s.w
	if err := w.BeginNode(NodeWaypoints); err != nil {
		return err
	}
	for _, wp := range s.m.SortedWaypoints() {
		if err := w.BeginNode(NodeWaypoint); err != nil {
			return err
		}
		if err := w.WriteString(wp.Name); err != nil {
			return err
		}
		if err := base.WritePosition(w, wp.Pos); err != nil {
			return err
		}
		if err := w.EndNode(); err != nil {
			return err
		}
		s.ctx.Stats.Waypoints++
	}
	return w.EndNode()
}
