package otbm

import (
	"math"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/core/nodefile"
	"github.com/FocuswithJustin/OTMapKit/core/stream"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/base"
)

// attrCodec binds a wire tag to a canonical attribute.
type attrCodec struct {
	tag   byte
	name  string
	kind  mapdata.Kind
	since mapversion.Structure
}

var itemCodecs = []attrCodec{
	{AttrActionID, mapdata.AttrActionID, mapdata.KindU16, 0},
	{AttrUniqueID, mapdata.AttrUniqueID, mapdata.KindU16, 0},
	{AttrText, mapdata.AttrText, mapdata.KindString, 0},
	{AttrDesc, mapdata.AttrDescription, mapdata.KindString, 0},
	{AttrTeleDest, mapdata.AttrTeleportDest, mapdata.KindPosition, 0},
	{AttrDepotID, mapdata.AttrDepotID, mapdata.KindU16, 0},
	{AttrRuneCharges, mapdata.AttrRuneCharges, mapdata.KindU8, 0},
	{AttrHouseDoorID, mapdata.AttrHouseDoorID, mapdata.KindU8, 0},
	{AttrCount, mapdata.AttrCount, mapdata.KindU8, 0},
	{AttrDuration, mapdata.AttrDuration, mapdata.KindU32, 0},
	{AttrDecayingState, mapdata.AttrDecayState, mapdata.KindU8, 0},
	{AttrWrittenDate, mapdata.AttrWrittenDate, mapdata.KindU32, 0},
	{AttrWrittenBy, mapdata.AttrWrittenBy, mapdata.KindString, 0},
	{AttrSleeperGUID, mapdata.AttrSleeperGUID, mapdata.KindU32, 0},
	{AttrSleepStart, mapdata.AttrSleepStart, mapdata.KindU32, 0},
	{AttrCharges, mapdata.AttrCharges, mapdata.KindU16, 0},
	{AttrTier, mapdata.AttrTier, mapdata.KindU8, 2},
}

var (
	codecByTag  = make(map[byte]attrCodec)
	codecByName = make(map[string]attrCodec)
)

func init() {
	for _, c := range itemCodecs {
		codecByTag[c.tag] = c
		codecByName[c.name] = c
	}
	// DESCRIPTION on an item node is an older spelling of DESC
	codecByTag[AttrDescription] = attrCodec{AttrDescription, mapdata.AttrDescription, mapdata.KindString, 0}
}

// attribute map value types
const (
	mapString   byte = 1
	mapInteger  byte = 2
	mapFloat    byte = 3
	mapBool     byte = 4
	mapPosition byte = 5
)

func readValue(r *stream.Reader, kind mapdata.Kind) (mapdata.Value, error) {
	switch kind {
	case mapdata.KindU8:
		v, err := r.ReadU8()
		return mapdata.U8(v), err
	case mapdata.KindU16:
		v, err := r.ReadU16()
		return mapdata.U16(v), err
	case mapdata.KindU32:
		v, err := r.ReadU32()
		return mapdata.U32(v), err
	case mapdata.KindString:
		v, err := r.ReadString()
		return mapdata.String(v), err
	case mapdata.KindPosition:
		p, err := base.ReadPosition(r)
		return mapdata.PositionValue(p), err
	}
	return mapdata.Value{}, errors.NewEncoding("no wire layout for %s", kind)
}

// accepts reports whether v can be stored with the codec's wire kind.
func (c attrCodec) accepts(v mapdata.Value) bool {
	switch c.kind {
	case mapdata.KindString:
		return v.Kind == mapdata.KindString
	case mapdata.KindPosition:
		return v.Kind == mapdata.KindPosition
	}
	return v.Kind.Integer()
}

func (c attrCodec) max() uint64 {
	switch c.kind {
	case mapdata.KindU8:
		return math.MaxUint8
	case mapdata.KindU16:
		return math.MaxUint16
	}
	return math.MaxUint32
}

func (c attrCodec) write(w *nodefile.Writer, v mapdata.Value) error {
	if err := w.BeginAttr(c.tag); err != nil {
		return err
	}
	var err error
	switch c.kind {
	case mapdata.KindU8:
		err = w.WriteU8(uint8(v.Uint(c.max())))
	case mapdata.KindU16:
		err = w.WriteU16(uint16(v.Uint(c.max())))
	case mapdata.KindU32:
		err = w.WriteU32(uint32(v.Uint(c.max())))
	case mapdata.KindString:
		err = w.WriteString(v.Str)
	case mapdata.KindPosition:
		err = base.WritePosition(w, v.Pos)
	}
	if err != nil {
		return err
	}
	return w.EndAttr()
}

// readItemAttrs decodes the attribute list that follows an item id.
func readItemAttrs(ctx *base.Context, r *stream.Reader, it *mapdata.Item) error {
	for r.Remaining() > 0 {
		tag, err := r.ReadU8()
		if err != nil {
			return err
		}
		n, err := r.ReadU16()
		if err != nil {
			return err
		}
		raw, err := r.ReadBytes(int(n))
		if err != nil {
			return err
		}
		sub := stream.NewBytesReader(raw)
		if tag == AttrAttributeMap {
			if err := readAttributeMap(sub, it); err != nil {
				return err
			}
			continue
		}
		c, ok := codecByTag[tag]
		if !ok {
			ctx.Warnf("unknown item attribute tag %d on item %d at %s skipped", tag, it.ID, ctx.Pos)
			continue
		}
		v, err := readValue(sub, c.kind)
		if err != nil {
			return errors.NewStructure("item attribute", "tag %d: %v", tag, err)
		}
		it.Set(c.name, v)
	}
	return nil
}

func readAttributeMap(r *stream.Reader, it *mapdata.Item) error {
	n, err := r.ReadU16()
	if err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		key, err := r.ReadString()
		if err != nil {
			return err
		}
		typ, err := r.ReadU8()
		if err != nil {
			return err
		}
		var v mapdata.Value
		switch typ {
		case mapString:
			var s string
			s, err = r.ReadLongString()
			v = mapdata.String(s)
		case mapInteger:
			var x int64
			x, err = r.ReadI64()
			v = mapdata.I64(x)
		case mapFloat:
			var f float64
			f, err = r.ReadF64()
			v = mapdata.Float(f)
		case mapBool:
			var b uint8
			b, err = r.ReadU8()
			v = mapdata.Bool(b != 0)
		case mapPosition:
			var p mapdata.Position
			p, err = base.ReadPosition(r)
			v = mapdata.PositionValue(p)
		default:
			return errors.NewStructure("attribute map", "entry %q has unknown value type %d", key, typ)
		}
		if err != nil {
			return err
		}
		it.Set(key, v)
	}
	return nil
}

func writeAttributeMap(w *nodefile.Writer, it *mapdata.Item, names []string) error {
	if err := w.BeginAttr(AttrAttributeMap); err != nil {
		return err
	}
	if err := w.WriteU16(uint16(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		v := it.Attrs[name]
		if err := w.WriteString(name); err != nil {
			return err
		}
		var err error
		switch v.Kind {
		case mapdata.KindString:
			if err = w.WriteU8(mapString); err == nil {
				err = w.WriteLongString(v.Str)
			}
		case mapdata.KindFloat:
			if err = w.WriteU8(mapFloat); err == nil {
				err = w.WriteF64(v.Float)
			}
		case mapdata.KindBool:
			if err = w.WriteU8(mapBool); err == nil {
				err = w.WriteU8(uint8(v.Int))
			}
		case mapdata.KindPosition:
			if err = w.WriteU8(mapPosition); err == nil {
				err = base.WritePosition(w, v.Pos)
			}
		default:
			if err = w.WriteU8(mapInteger); err == nil {
				err = w.WriteI64(v.Int)
			}
		}
		if err != nil {
			return err
		}
	}
	return w.EndAttr()
}
