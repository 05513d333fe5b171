package mappings

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
)

var kindNames = map[string]mapdata.Kind{
	"u8":       mapdata.KindU8,
	"u16":      mapdata.KindU16,
	"u32":      mapdata.KindU32,
	"i64":      mapdata.KindI64,
	"int":      mapdata.KindI64,
	"string":   mapdata.KindString,
	"position": mapdata.KindPosition,
	"bool":     mapdata.KindBool,
	"float":    mapdata.KindFloat,
}

// ParseKind parses a value kind name. An empty name selects the canonical
// kind of attr, or string for custom attributes.
func ParseKind(name, attr string) (mapdata.Kind, error) {
	if name == "" {
		if k, ok := mapdata.CanonicalKind(attr); ok {
			return k, nil
		}
		return mapdata.KindString, nil
	}
	k, ok := kindNames[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown value type %q", name)
	}
	return k, nil
}

// ParseValue parses the text form of a value of kind k.
func ParseValue(k mapdata.Kind, s string) (mapdata.Value, error) {
	s = strings.TrimSpace(s)
	bits := map[mapdata.Kind]int{mapdata.KindU8: 8, mapdata.KindU16: 16, mapdata.KindU32: 32}
	switch k {
	case mapdata.KindU8, mapdata.KindU16, mapdata.KindU32:
		n, err := strconv.ParseUint(s, 0, bits[k])
		if err != nil {
			return mapdata.Value{}, fmt.Errorf("invalid %s value %q", k, s)
		}
		return mapdata.Value{Kind: k, Int: int64(n)}, nil
	case mapdata.KindI64:
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return mapdata.Value{}, fmt.Errorf("invalid %s value %q", k, s)
		}
		return mapdata.I64(n), nil
	case mapdata.KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return mapdata.Value{}, fmt.Errorf("invalid bool value %q", s)
		}
		return mapdata.Bool(b), nil
	case mapdata.KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return mapdata.Value{}, fmt.Errorf("invalid float value %q", s)
		}
		return mapdata.Float(f), nil
	case mapdata.KindPosition:
		p, err := ParsePosition(s)
		if err != nil {
			return mapdata.Value{}, err
		}
		return mapdata.PositionValue(p), nil
	}
	return mapdata.String(s), nil
}

// FormatValue is the inverse of ParseValue.
func FormatValue(v mapdata.Value) string {
	switch v.Kind {
	case mapdata.KindString:
		return v.Str
	case mapdata.KindPosition:
		return fmt.Sprintf("%d,%d,%d", v.Pos.X, v.Pos.Y, v.Pos.Z)
	case mapdata.KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case mapdata.KindBool:
		return strconv.FormatBool(v.Int != 0)
	}
	return strconv.FormatInt(v.Int, 10)
}

// ParsePosition parses "x,y,z".
func ParsePosition(s string) (mapdata.Position, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return mapdata.Position{}, fmt.Errorf("invalid position %q: want x,y,z", s)
	}
	var n [3]uint64
	for i, bits := range []int{16, 16, 8} {
		v, err := strconv.ParseUint(strings.TrimSpace(parts[i]), 10, bits)
		if err != nil {
			return mapdata.Position{}, fmt.Errorf("invalid position %q", s)
		}
		n[i] = v
	}
	return mapdata.Position{X: uint16(n[0]), Y: uint16(n[1]), Z: uint8(n[2])}, nil
}

// newChange validates and builds one attribute change from its text form.
func newChange(op, name, kind, value, to string) (AttributeChange, error) {
	c := AttributeChange{Op: Op(strings.ToLower(op)), Name: mapdata.CanonicalName(name)}
	if c.Name == "" {
		return c, fmt.Errorf("attribute change without a name")
	}
	switch c.Op {
	case "":
		c.Op = OpSet
		fallthrough
	case OpSet:
		k, err := ParseKind(kind, c.Name)
		if err != nil {
			return c, err
		}
		if c.Value, err = ParseValue(k, value); err != nil {
			return c, err
		}
	case OpRename:
		c.To = mapdata.CanonicalName(to)
		if c.To == "" {
			return c, fmt.Errorf("rename of %s without a target name", c.Name)
		}
	case OpDelete:
	default:
		return c, fmt.Errorf("unknown attribute action %q", op)
	}
	return c, nil
}

// kindName returns the name ParseKind accepts for k.
func kindName(k mapdata.Kind) string {
	if k == mapdata.KindI64 {
		return "i64"
	}
	return k.String()
}
