package otmm

import (
	"math"

	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/nodefile"
	"github.com/FocuswithJustin/OTMapKit/core/stream"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/base"
)

// attrCodec binds a tag to a canonical attribute and its fixed wire layout.
type attrCodec struct {
	tag  byte
	name string
	kind mapdata.Kind
}

var itemCodecs = []attrCodec{
	{AttrActionID, mapdata.AttrActionID, mapdata.KindU16},
	{AttrUniqueID, mapdata.AttrUniqueID, mapdata.KindU16},
	{AttrText, mapdata.AttrText, mapdata.KindString},
	{AttrDesc, mapdata.AttrDescription, mapdata.KindString},
	{AttrTeleDest, mapdata.AttrTeleportDest, mapdata.KindPosition},
	{AttrSubtype, mapdata.AttrCount, mapdata.KindU16},
	{AttrDepotID, mapdata.AttrDepotID, mapdata.KindU16},
	{AttrDoorID, mapdata.AttrHouseDoorID, mapdata.KindU8},
	{AttrDuration, mapdata.AttrDuration, mapdata.KindU32},
}

func (l layout) byTag(tag byte) (attrCodec, bool) {
	if tag == AttrDescription {
		tag = AttrDesc
	}
	for _, c := range l.codecs {
		if c.tag == tag {
			return c, true
		}
	}
	return attrCodec{}, false
}

func (l layout) byName(name string) (attrCodec, bool) {
	for _, c := range l.codecs {
		if c.name == name {
			return c, true
		}
	}
	return attrCodec{}, false
}

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

func (c attrCodec) read(r *stream.Reader) (mapdata.Value, error) {
	switch c.kind {
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
	}
	p, err := base.ReadPosition(r)
	return mapdata.PositionValue(p), err
}

func (c attrCodec) write(w *nodefile.Writer, v mapdata.Value) error {
	if err := w.WriteU8(c.tag); err != nil {
		return err
	}
	switch c.kind {
	case mapdata.KindU8:
		return w.WriteU8(uint8(v.Uint(c.max())))
	case mapdata.KindU16:
		return w.WriteU16(uint16(v.Uint(c.max())))
	case mapdata.KindU32:
		return w.WriteU32(uint32(v.Uint(c.max())))
	case mapdata.KindString:
		return w.WriteString(v.Str)
	}
	return base.WritePosition(w, v.Pos)
}

// readItemAttrs decodes attributes until the payload ends. Without length
// prefixes an unknown tag cannot be skipped, so it ends the list.
func (l layout) readItemAttrs(ctx *base.Context, r *stream.Reader, it *mapdata.Item) error {
	for r.Remaining() > 0 {
		tag, err := r.ReadU8()
		if err != nil {
			return err
		}
		c, ok := l.byTag(tag)
		if !ok {
			ctx.Warnf("unknown item attribute tag %d on item %d at %s: remaining attributes dropped", tag, it.ID, ctx.Pos)
			return nil
		}
		v, err := c.read(r)
		if err != nil {
			return err
		}
		it.Set(c.name, v)
	}
	return nil
}
