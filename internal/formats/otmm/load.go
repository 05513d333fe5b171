package otmm

import (
	"io"
	"strings"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/core/nodefile"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/base"
)

type loader struct {
	ctx    *base.Context
	r      *nodefile.Reader
	m      *mapdata.Map
	l      layout
	desc   []string
	editor bool
}

// Load reads an OTMM map from src into m. m is only modified when the
// whole load succeeds.
func Load(ctx *base.Context, m *mapdata.Map, src io.Reader) error {
	r, err := nodefile.NewReader(src, []nodefile.Identifier{Identifier}, nodefile.WithName(ctx.Name()))
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
	lay, err := layoutFor(h.Structure)
	if err != nil {
		return err
	}
	scratch := mapdata.New(h.Width, h.Height)
	scratch.Header = mapdata.Header{
		Format:    mapversion.FormatOTMM,
		Structure: h.Structure,
		Client:    h.Client,
		Width:     h.Width,
		Height:    h.Height,
	}
	if !scratch.Header.ValidDimensions() {
		return errors.NewStructure("map header", "invalid dimensions %dx%d", h.Width, h.Height)
	}

	l := &loader{ctx: ctx, r: r, m: scratch, l: lay}
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
	if err := base.Children(r, mapData, l.section); err != nil {
		return err
	}
	scratch.Header.Description = strings.Join(l.desc, "\n")
	if !l.editor {
		// files without an editor node carry the items version of their client
		if info, ok := ctx.Versions().Lookup(h.Client); ok {
			scratch.Header.ItemsMajor = info.ItemsMajor
			scratch.Header.ItemsMinor = info.ItemsMinor
		}
	}

	ctx.Stats.Bytes = r.Offset()
	ctx.Stats.Tiles = scratch.TileCount()
	ctx.Finish(r.Offset(), ctx.Total())
	m.ReplaceWith(scratch)
	return nil
}

func (l *loader) section(id nodefile.NodeID) error {
	if err := l.ctx.Err(); err != nil {
		return err
	}
	switch l.r.Type(id) {
	case NodeDescription:
		return l.ctx.Recover("description", l.description(id))
	case NodeEditor:
		return l.ctx.Recover("editor node", l.editorInfo(id))
	case NodeTileData:
		return l.ctx.Recover("tile data", l.tileData(id))
	case NodeSpawnData:
		return base.Children(l.r, id, func(c nodefile.NodeID) error {
			return l.ctx.Recover("spawn", l.spawn(c))
		})
	case NodeTownData:
		return base.Children(l.r, id, func(c nodefile.NodeID) error {
			return l.ctx.Recover("town", l.town(c))
		})
	case NodeHouseData:
		return base.Children(l.r, id, func(c nodefile.NodeID) error {
			return l.ctx.Recover("house", l.house(c))
		})
	}
	l.ctx.Warnf("unknown map section node type %d skipped", l.r.Type(id))
	return nil
}

func (l *loader) description(id nodefile.NodeID) error {
	props, err := l.r.Props(id)
	if err != nil {
		return err
	}
	s, err := props.ReadString()
	if err != nil {
		return err
	}
	l.desc = append(l.desc, s)
	return nil
}

func (l *loader) editorInfo(id nodefile.NodeID) error {
	props, err := l.r.Props(id)
	if err != nil {
		return err
	}
	if _, err := props.ReadString(); err != nil {
		return err
	}
	major, err := props.ReadU32()
	if err != nil {
		return err
	}
	minor, err := props.ReadU32()
	if err != nil {
		return err
	}
	l.m.Header.ItemsMajor, l.m.Header.ItemsMinor = major, minor
	l.editor = true
	return nil
}

func (l *loader) tileData(id nodefile.NodeID) error {
	props, err := l.r.Props(id)
	if err != nil {
		return err
	}
	areaBase, err := base.ReadPosition(props)
	if err != nil {
		return errors.NewStructure("tile data", "%v", err)
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
		tag, err := props.ReadU8()
		if err != nil {
			return nil, err
		}
		switch tag {
		case AttrTileFlags:
			flags, err := props.ReadU32()
			if err != nil {
				return nil, err
			}
			t.Flags = mapdata.TileFlags(flags)
		case AttrTileItem:
			gid, err := props.ReadU16()
			if err != nil {
				return nil, err
			}
			t.Ground = mapdata.NewItem(gid)
		default:
			l.ctx.Warnf("unknown tile attribute tag %d at %s: remaining attributes dropped", tag, pos)
			return t, nil
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
	if err := l.l.readItemAttrs(l.ctx, props, it); err != nil {
		return nil, errors.NewStructure("item attribute", "item %d: %v", itemID, err)
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
		cr, err := l.creature(c)
		if err != nil {
			return l.ctx.Recover("creature", err)
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

func (l *loader) creature(id nodefile.NodeID) (mapdata.Creature, error) {
	var c mapdata.Creature
	if err := base.ExpectType(l.r, id, "creature", NodeMonster, NodeNPC); err != nil {
		return c, err
	}
	c.NPC = l.r.Type(id) == NodeNPC
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
	c.Direction, err = props.ReadU8()
	return c, err
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

func (l *loader) house(id nodefile.NodeID) error {
	if err := base.ExpectType(l.r, id, "house", NodeHouse); err != nil {
		return err
	}
	props, err := l.r.Props(id)
	if err != nil {
		return err
	}
	h := &mapdata.House{}
	if h.ID, err = props.ReadU32(); err != nil {
		return err
	}
	if h.Name, err = props.ReadString(); err != nil {
		return err
	}
	if h.TownID, err = props.ReadU32(); err != nil {
		return err
	}
	if h.Rent, err = props.ReadU32(); err != nil {
		return err
	}
	if h.Entry, err = base.ReadPosition(props); err != nil {
		return err
	}
	guild, err := props.ReadU8()
	if err != nil {
		return err
	}
	h.Guildhall = guild != 0
	l.m.AddHouse(h)
	l.ctx.Stats.Houses++
	return nil
}
