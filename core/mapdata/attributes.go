package mapdata

import (
	"fmt"
	"math"
	"sort"
)

// Kind is the storage type of an attribute value.
type Kind uint8

const (
	KindU8 Kind = iota + 1
	KindU16
	KindU32
	KindI64
	KindString
	KindPosition
	KindBool
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindI64:
		return "i64"
	case KindString:
		return "string"
	case KindPosition:
		return "position"
	case KindBool:
		return "bool"
	case KindFloat:
		return "float"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Integer reports whether values of k are whole numbers.
func (k Kind) Integer() bool {
	return k == KindU8 || k == KindU16 || k == KindU32 || k == KindI64 || k == KindBool
}

// Value is one attribute value.
type Value struct {
	Kind  Kind
	Int   int64
	Str   string
	Pos   Position
	Float float64
}

func U8(v uint8) Value               { return Value{Kind: KindU8, Int: int64(v)} }
func U16(v uint16) Value             { return Value{Kind: KindU16, Int: int64(v)} }
func U32(v uint32) Value             { return Value{Kind: KindU32, Int: int64(v)} }
func I64(v int64) Value              { return Value{Kind: KindI64, Int: v} }
func String(v string) Value          { return Value{Kind: KindString, Str: v} }
func PositionValue(p Position) Value { return Value{Kind: KindPosition, Pos: p} }
func Float(v float64) Value          { return Value{Kind: KindFloat, Float: v} }

func Bool(v bool) Value {
	if v {
		return Value{Kind: KindBool, Int: 1}
	}
	return Value{Kind: KindBool}
}

// Uint returns the value clamped into [0, max].
func (v Value) Uint(max uint64) uint64 {
	switch {
	case v.Kind == KindFloat:
		if v.Float <= 0 {
			return 0
		}
		return uint64(math.Min(v.Float, float64(max)))
	case v.Int < 0:
		return 0
	case uint64(v.Int) > max:
		return max
	}
	return uint64(v.Int)
}

// Fits reports whether an integer value fits in max without clamping.
func (v Value) Fits(max uint64) bool {
	return v.Kind.Integer() && v.Int >= 0 && uint64(v.Int) <= max
}

// Equal compares values. Integer kinds compare by numeric value so that
// dialects storing the same attribute at different widths still agree.
func (v Value) Equal(o Value) bool {
	if v.Kind.Integer() && o.Kind.Integer() {
		return v.Int == o.Int
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindPosition:
		return v.Pos == o.Pos
	case KindFloat:
		return v.Float == o.Float
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindPosition:
		return v.Pos.String()
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindBool:
		return fmt.Sprintf("%t", v.Int != 0)
	}
	return fmt.Sprintf("%d", v.Int)
}

// Canonical attribute names.
const (
	AttrCount        = "count"
	AttrCharges      = "charges"
	AttrRuneCharges  = "rune_charges"
	AttrActionID     = "action_id"
	AttrUniqueID     = "unique_id"
	AttrText         = "text"
	AttrDescription  = "description"
	AttrTeleportDest = "teleport_dest"
	AttrDepotID      = "depot_id"
	AttrHouseDoorID  = "house_door_id"
	AttrDuration     = "duration"
	AttrDecayState   = "decay_state"
	AttrWrittenDate  = "written_date"
	AttrWrittenBy    = "written_by"
	AttrSleeperGUID  = "sleeper_guid"
	AttrSleepStart   = "sleep_start"
	AttrTier         = "tier"
)

var canonicalKinds = map[string]Kind{
	AttrCount:        KindU8,
	AttrCharges:      KindU16,
	AttrRuneCharges:  KindU8,
	AttrActionID:     KindU16,
	AttrUniqueID:     KindU16,
	AttrText:         KindString,
	AttrDescription:  KindString,
	AttrTeleportDest: KindPosition,
	AttrDepotID:      KindU16,
	AttrHouseDoorID:  KindU8,
	AttrDuration:     KindU32,
	AttrDecayState:   KindU8,
	AttrWrittenDate:  KindU32,
	AttrWrittenBy:    KindString,
	AttrSleeperGUID:  KindU32,
	AttrSleepStart:   KindU32,
	AttrTier:         KindU8,
}

// legacy spellings found in older mapping tables and editor exports
var aliases = map[string]string{
	"aid":        AttrActionID,
	"actionid":   AttrActionID,
	"uid":        AttrUniqueID,
	"uniqueid":   AttrUniqueID,
	"desc":       AttrDescription,
	"subtype":    AttrCount,
	"doorid":     AttrHouseDoorID,
	"depotid":    AttrDepotID,
	"teleport":   AttrTeleportDest,
	"writer":     AttrWrittenBy,
	"runecharge": AttrRuneCharges,
}

// CanonicalKind returns the storage kind of a canonical attribute.
func CanonicalKind(name string) (Kind, bool) {
	k, ok := canonicalKinds[name]
	return k, ok
}

// IsCanonical reports whether name is one of the built-in attributes.
func IsCanonical(name string) bool {
	_, ok := canonicalKinds[name]
	return ok
}

// CanonicalName maps legacy spellings onto canonical names. Unknown names
// are returned unchanged.
func CanonicalName(name string) string {
	if c, ok := aliases[name]; ok {
		return c
	}
	return name
}

// Attributes is a name-keyed attribute set.
type Attributes map[string]Value

// Get returns the value stored under name.
func (a Attributes) Get(name string) (Value, bool) {
	v, ok := a[name]
	return v, ok
}

// Names returns the attribute names in sorted order.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	c := make(Attributes, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// Equal reports whether both sets hold the same names and values.
func (a Attributes) Equal(b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}
