package otbm

import (
	"io"
	"strings"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/core/nodefile"
	"github.com/FocuswithJustin/OTMapKit/core/stream"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/base"
)

type loader struct {
	ctx *base.Context
	r   *nodefile.Reader
	m   *mapdata.Map
}

// Load reads an OTBM map from src into m. The map is built on the side and
// copied into m only when the whole load succeeds, so m is untouched on a
// fatal error. Malformed tiles and items are skipped with a warning.
func Load(ctx *base.Context, m *mapdata.Map, src io.Reader) error {
	r, err := nodefile.NewReader(src, Identifiers, nodefile.WithName(ctx.Name()))
	if err != nil {
		return err
	}
	defer r.Close()

	root, err := r.Root()
	if err != nil {
		return err
	}
	h, err := readHeader(r, root)
	if err != nil {
		return err
	}
	if err := ctx.Versions().Validate(h.Version()); err != nil {
		return err
	}
	if _, err := profileFor(h.Structure); err != nil {
		return err
	}
	scratch := mapdata.New(h.Width, h.Height)
	scratch.Header = mapdata.Header{
		Format:     mapversion.FormatOTBM,
		Structure:  h.Structure,
		Client:     h.Client,
		Width:      h.Width,
		Height:     h.Height,
		ItemsMajor: h.ItemsMajor,
		ItemsMinor: h.ItemsMinor,
	}
	if !scratch.Header.ValidDimensions() {
		return errors.NewStructure("map header", "invalid dimensions %dx%d", h.Width, h.Height)
	}

	l := &loader{ctx: ctx, r: r, m: scratch}
	mapData, err := r.Child(root)
	if err != nil {
		return base.Stream(err)
	}
	if mapData == nodefile.NoNode {
		return errors.NewStructure("root node", "missing map data node")
	}
	if err := base.ExpectType(r, mapData, "map data node", NodeMapData); err != nil {
		return err
	}
	if err := l.mapData(mapData); err != nil {
		return err
	}
	if err := base.Children(r, mapData, l.section); err != nil {
		return err
	}
	l.houses()

	ctx.Stats.Bytes = r.Offset()
	ctx.Stats.Tiles = scratch.TileCount()
	ctx.Finish(r.Offset(), ctx.Total())
	m.ReplaceWith(scratch)
	return nil
}

func (l *loader) mapData(id nodefile.NodeID) error {
	props, err := l.r.Props(id)
	if err != nil {
		return err
	}
	var desc []string
	for props.Remaining() > 0 {
		tag, raw, err := readAttr(props)
		if err != nil {
			return errors.NewStructure("map data node", "%v", err)
		}
		sub := stream.NewBytesReader(raw)
		switch tag {
		case AttrDescription:
			s, err := sub.ReadString()
			if err != nil {
				return err
			}
			desc = append(desc, s)
		case AttrExtSpawnFile:
			if l.m.Header.SpawnFile, err = sub.ReadString(); err != nil {
				return err
			}
		case AttrExtHouseFile:
			if l.m.Header.HouseFile, err = sub.ReadString(); err != nil {
				return err
			}
		default:
			l.ctx.Warnf("unknown map data attribute tag %d skipped", tag)
		}
	}
	l.m.Header.Description = strings.Join(desc, "\n")
	return nil
}

// readAttr reads one tag/length/payload attribute.
func readAttr(r *stream.Reader) (byte, []byte, error) {
	tag, err := r.ReadU8()
	if err != nil {
		return 0, nil, err
	}
	n, err := r.ReadU16()
	if err != nil {
		return 0, nil, err
	}
	raw, err := r.ReadBytes(int(n))
	return tag, raw, err
}

func (l *loader) section(id nodefile.NodeID) error {
	if err := l.ctx.Err(); err != nil {
		return err
	}
	switch l.r.Type(id) {
	case NodeTileArea:
		return l.ctx.Recover("tile area", l.tileArea(id))
	case NodeSpawns:
		return base.Children(l.r, id, func(c nodefile.NodeID) error {
			return l.ctx.Recover("spawn", l.spawn(c))
		})
	case NodeTowns:
		return base.Children(l.r, id, func(c nodefile.NodeID) error {
			return l.ctx.Recover("town", l.town(c))
		})
	case NodeWaypoints:
		return base.Children(l.r, id, func(c nodefile.NodeID) error {
			return l.ctx.Recover("waypoint", l.waypoint(c))
		})
	}
	l.ctx.Warnf("unknown map section node type %d skipped", l.r.Type(id))
	return nil
}

func (l *loader) tileArea(id nodefile.NodeID) error {
	props, err := l.r.Props(id)
	if err != nil {
		return err
	}
	areaBase, err := base.ReadPosition(props)
	if err != nil {
		return errors.NewStructure("tile area", "%v", err)
	}
	l.ctx.Stats.TileAreas++
	return base.Children(l.r, id, func(c nodefile.NodeID) error {
		if err := l.ctx.Tick(); err != nil {
			return err
		}
		if err := l.ctx.Recover("tile", l.tile(c, areaBase)); err != nil {
			return err
		}
		l.ctx.Progress(l.r.Offset(), l.ctx.Total())
		return nil
	})
}

func (l *loader) tile(id nodefile.NodeID, areaBase mapdata.Position) error {
	if err := base.ExpectType(l.r, id, "tile", NodeTile, NodeHouseTile); err != nil {
		l.ctx.Stats.SkippedTiles++
		return err
	}
	t, err := l.tileProps(id, areaBase)
	if err != nil {
		l.ctx.Stats.SkippedTiles++
		return err
	}
	err = base.Children(l.r, id, func(c nodefile.NodeID) error {
		it, err := l.item(c, 0)
		if err != nil {
			l.ctx.Stats.SkippedItems++
			return l.ctx.Recover("item", err)
		}
		if t.Ground == nil && len(t.Items) == 0 && l.ctx.Catalog() != nil && l.ctx.Catalog().IsGround(it.ID) {
			t.Ground = it
		} else {
			t.Items = append(t.Items, it)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if t.HouseID != 0 {
		l.ctx.Stats.HouseTiles++
	}
	l.ctx.Stats.Items += t.ItemCount()
	l.m.SetTile(t)
	return nil
}

func (l *loader) tileProps(id nodefile.NodeID, areaBase mapdata.Position) (*mapdata.Tile, error) {
	props, err := l.r.Props(id)
	if err != nil {
		return nil, err
	}
	dx, err := props.ReadU8()
	if err != nil {
		return nil, err
	}
	dy, err := props.ReadU8()
	if err != nil {
		return nil, err
	}
	pos, err := base.TilePosition(areaBase, dx, dy)
	if err != nil {
		return nil, err
	}
	l.ctx.Pos = pos
	if !l.m.InBounds(pos) {
		return nil, errors.NewStructure("tile", "position %s outside the %dx%d map", pos, l.m.Header.Width, l.m.Header.Height)
	}
	t := mapdata.NewTile(pos)
	if l.r.Type(id) == NodeHouseTile {
		if t.HouseID, err = props.ReadU32(); err != nil {
			return nil, err
		}
	}
	for props.Remaining() > 0 {
		tag, raw, err := readAttr(props)
		if err != nil {
			return nil, err
		}
		sub := stream.NewBytesReader(raw)
		switch tag {
		case AttrTileFlags:
			flags, err := sub.ReadU32()
			if err != nil {
				return nil, err
			}
			t.Flags = mapdata.TileFlags(flags)
		case AttrItem:
			gid, err := sub.ReadU16()
			if err != nil {
				return nil, err
			}
			t.Ground = mapdata.NewItem(gid)
		default:
			l.ctx.Warnf("unknown tile attribute tag %d at %s skipped", tag, pos)
		}
	}
	return t, nil
}

func (l *loader) item(id nodefile.NodeID, depth int) (*mapdata.Item, error) {
	if depth > l.ctx.MaxDepth() {
		return nil, errors.NewStructure("item", "container nesting exceeds %d levels", l.ctx.MaxDepth())
	}
	if err := base.ExpectType(l.r, id, "item", NodeItem); err != nil {
		return nil, err
	}
	props, err := l.r.Props(id)
	if err != nil {
		return nil, err
	}
	itemID, err := props.ReadU16()
	if err != nil {
		return nil, err
	}
	it := mapdata.NewItem(itemID)
	if err := readItemAttrs(l.ctx, props, it); err != nil {
		return nil, err
	}
	err = base.Children(l.r, id, func(c nodefile.NodeID) error {
		sub, err := l.item(c, depth+1)
		if err != nil {
			return err
		}
		it.Contents = append(it.Contents, sub)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (l *loader) spawn(id nodefile.NodeID) error {
	if err := base.ExpectType(l.r, id, "spawn area", NodeSpawnArea); err != nil {
		return err
	}
	props, err := l.r.Props(id)
	if err != nil {
		return err
	}
	center, err := base.ReadPosition(props)
	if err != nil {
		return err
	}
	radius, err := props.ReadU16()
	if err != nil {
		return err
	}
	s := &mapdata.Spawn{Center: center, Radius: radius}
	err = base.Children(l.r, id, func(c nodefile.NodeID) error {
		cr, err := l.monster(c)
		if err != nil {
			return l.ctx.Recover("monster", err)
		}
		s.Creatures = append(s.Creatures, cr)
		l.ctx.Stats.Creatures++
		return nil
	})
	if err != nil {
		return err
	}
	l.m.Spawns = append(l.m.Spawns, s)
	l.ctx.Stats.Spawns++
	return nil
}

func (l *loader) monster(id nodefile.NodeID) (mapdata.Creature, error) {
	var c mapdata.Creature
	if err := base.ExpectType(l.r, id, "monster", NodeMonster); err != nil {
		return c, err
	}
	props, err := l.r.Props(id)
	if err != nil {
		return c, err
	}
	if c.Name, err = props.ReadString(); err != nil {
		return c, err
	}
	if c.Pos, err = base.ReadPosition(props); err != nil {
		return c, err
	}
	if c.SpawnTime, err = props.ReadU32(); err != nil {
		return c, err
	}
	if c.Direction, err = props.ReadU8(); err != nil {
		return c, err
	}
	flags, err := props.ReadU8()
	if err != nil {
		return c, err
	}
	c.NPC = flags&monsterNPC != 0
	return c, nil
}

func (l *loader) town(id nodefile.NodeID) error {
	if err := base.ExpectType(l.r, id, "town", NodeTown); err != nil {
		return err
	}
	props, err := l.r.Props(id)
	if err != nil {
		return err
	}
	t := &mapdata.Town{}
	if t.ID, err = props.ReadU32(); err != nil {
		return err
	}
	if t.Name, err = props.ReadString(); err != nil {
		return err
	}
	if t.Temple, err = base.ReadPosition(props); err != nil {
		return err
	}
	l.m.AddTown(t)
	l.ctx.Stats.Towns++
	return nil
}

func (l *loader) waypoint(id nodefile.NodeID) error {
	if err := base.ExpectType(l.r, id, "waypoint", NodeWaypoint); err != nil {
		return err
	}
	props, err := l.r.Props(id)
	if err != nil {
		return err
	}
	w := &mapdata.Waypoint{}
	if w.Name, err = props.ReadString(); err != nil {
		return err
	}
	if w.Pos, err = base.ReadPosition(props); err != nil {
		return err
	}
	l.m.AddWaypoint(w)
	l.ctx.Stats.Waypoints++
	return nil
}
