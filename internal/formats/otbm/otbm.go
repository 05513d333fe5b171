// Package otbm reads and writes the primary map dialect (OTBM structure
// versions 0 to 3, known to editors as OTBM v1 to v4).
//
// Per-structure behaviour is data: the profiles table says which optional
// sections and attributes a structure version can carry, and the attribute
// codecs table maps wire tags to canonical attribute names. Load and Save
// consult both instead of branching on version numbers.
package otbm

import (
	"bytes"
	"io"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/core/nodefile"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/base"
)

// Node types.
const (
	NodeRoot      byte = 1
	NodeMapData   byte = 2
	NodeTileArea  byte = 4
	NodeTile      byte = 5
	NodeItem      byte = 6
	NodeSpawns    byte = 9
	NodeSpawnArea byte = 10
	NodeMonster   byte = 11
	NodeTowns     byte = 12
	NodeTown      byte = 13
	NodeHouseTile byte = 14
	NodeWaypoints byte = 15
	NodeWaypoint  byte = 16
)

// Attribute tags.
const (
	AttrDescription   byte = 1
	AttrTileFlags     byte = 3
	AttrActionID      byte = 4
	AttrUniqueID      byte = 5
	AttrText          byte = 6
	AttrDesc          byte = 7
	AttrTeleDest      byte = 8
	AttrItem          byte = 9
	AttrDepotID       byte = 10
	AttrExtSpawnFile  byte = 11
	AttrRuneCharges   byte = 12
	AttrExtHouseFile  byte = 13
	AttrHouseDoorID   byte = 14
	AttrCount         byte = 15
	AttrDuration      byte = 16
	AttrDecayingState byte = 17
	AttrWrittenDate   byte = 18
	AttrWrittenBy     byte = 19
	AttrSleeperGUID   byte = 20
	AttrSleepStart    byte = 21
	AttrCharges       byte = 22
	AttrTier          byte = 24
	AttrAttributeMap  byte = 128
)

// monster flag bits
const monsterNPC byte = 0x01

// HouseFileSuffix names the external house list next to the map.
const HouseFileSuffix = "-house.xml"

var (
	// Identifier is written at the start of every file.
	Identifier = nodefile.Identifier{'O', 'T', 'B', 'M'}
	// Identifiers lists the identifiers accepted on load.
	Identifiers = []nodefile.Identifier{{0, 0, 0, 0}, Identifier}
)

// profile is the capability set of one structure version.
type profile struct {
	structure    mapversion.Structure
	waypoints    bool
	attributeMap bool
	tier         bool
}

var profiles = map[mapversion.Structure]profile{
	0: {structure: 0},
	1: {structure: 1},
	2: {structure: 2, waypoints: true, tier: true},
	3: {structure: 3, waypoints: true, attributeMap: true, tier: true},
}

func profileFor(s mapversion.Structure) (profile, error) {
	p, ok := profiles[s]
	if !ok {
		return profile{}, errors.NewUnsupportedVersion("structure", s.String(), "no otbm layout for this structure version")
	}
	return p, nil
}

// Structures returns the structure versions this package can read and
// write.
func Structures() []mapversion.Structure {
	return []mapversion.Structure{0, 1, 2, 3}
}

// DetectConfig is used by the format manager to recognise OTBM files.
var DetectConfig = base.DetectConfig{
	Extensions:   []string{".otbm"},
	Magic:        [][]byte{Identifier[:]},
	FormatName:   "otbm",
	CheckContent: true,
	CustomValidator: func(path string, header []byte) (bool, string) {
		// the zero identifier is only trusted when a root node follows
		if len(header) >= 6 && bytes.Equal(header[:4], []byte{0, 0, 0, 0}) &&
			header[4] == nodefile.Start && header[5] == NodeRoot {
			return true, "otbm zero identifier followed by root node"
		}
		return false, ""
	},
}

// Header is the root payload of a file.
type Header struct {
	Structure  mapversion.Structure
	Width      uint16
	Height     uint16
	ItemsMajor uint32
	ItemsMinor uint32
	Client     mapversion.Client
}

// Version returns the version tag of the header.
func (h Header) Version() mapversion.MapVersion {
	return mapversion.MapVersion{Format: mapversion.FormatOTBM, Structure: h.Structure, Client: h.Client}
}

func readHeader(r *nodefile.Reader, root nodefile.NodeID) (Header, error) {
	var h Header
	if err := base.ExpectType(r, root, "root node", NodeRoot); err != nil {
		return h, err
	}
	props, err := r.Props(root)
	if err != nil {
		return h, err
	}
	s, err := props.ReadU32()
	if err != nil {
		return h, err
	}
	h.Structure = mapversion.Structure(s)
	if h.Width, err = props.ReadU16(); err != nil {
		return h, err
	}
	if h.Height, err = props.ReadU16(); err != nil {
		return h, err
	}
	if h.ItemsMajor, err = props.ReadU32(); err != nil {
		return h, err
	}
	if h.ItemsMinor, err = props.ReadU32(); err != nil {
		return h, err
	}
	c, err := props.ReadU32()
	if err != nil {
		return h, err
	}
	h.Client = mapversion.Client(c)
	return h, nil
}

// PeekVersion reads only the identifier and root payload of src.
func PeekVersion(src io.Reader) (Header, error) {
	r, err := nodefile.NewReader(src, Identifiers, nodefile.WithCacheSize(512))
	if err != nil {
		return Header{}, err
	}
	defer r.Close()
	root, err := r.Root()
	if err != nil {
		return Header{}, err
	}
	return readHeader(r, root)
}

// GenerateOptions returns generator settings restricted to what structure
// s can store, so a generated map survives a save/load cycle.
func GenerateOptions(v mapversion.MapVersion) mapdata.GenerateOptions {
	p := profiles[v.Structure]
	opts := mapdata.GenerateOptions{
		Version:    mapversion.MapVersion{Format: mapversion.FormatOTBM, Structure: v.Structure, Client: v.Client},
		Tiles:      300,
		Spawns:     4,
		Towns:      3,
		Houses:     3,
		NPCs:       true,
		MaxNesting: 3,
		Custom:     p.attributeMap,
	}
	if p.waypoints {
		opts.Waypoints = 4
	}
	for _, c := range itemCodecs {
		if c.since <= v.Structure {
			opts.Attributes = append(opts.Attributes, c.name)
		}
	}
	return opts
}
