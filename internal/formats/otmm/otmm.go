// Package otmm reads and writes the legacy map dialect. It has a single
// structure version, keeps houses and NPCs inside the node tree, and uses
// fixed-layout attributes without length prefixes.
package otmm

import (
	"io"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/core/nodefile"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/base"
)

// Node types.
const (
	NodeRoot        byte = 1
	NodeMapData     byte = 2
	NodeTileData    byte = 3
	NodeTile        byte = 4
	NodeHouseTile   byte = 5
	NodeItem        byte = 6
	NodeSpawnData   byte = 7
	NodeSpawnArea   byte = 8
	NodeMonster     byte = 9
	NodeNPC         byte = 10
	NodeTownData    byte = 11
	NodeTown        byte = 12
	NodeHouseData   byte = 13
	NodeHouse       byte = 14
	NodeDescription byte = 15
	NodeEditor      byte = 16
)

// Tile attribute tags.
const (
	AttrTileFlags byte = 1
	AttrTileItem  byte = 7
)

// Item attribute tags.
const (
	AttrDescription byte = 1
	AttrActionID    byte = 2
	AttrUniqueID    byte = 3
	AttrText        byte = 4
	AttrDesc        byte = 5
	AttrTeleDest    byte = 6
	AttrSubtype     byte = 8
	AttrDepotID     byte = 9
	AttrDoorID      byte = 10
	AttrDuration    byte = 11
)

// EditorName is written into the editor node.
const EditorName = "OTMapKit"

// Identifier is the only identifier of the dialect.
var Identifier = nodefile.Identifier{'O', 'T', 'M', 'M'}

// layout is everything that depends on the structure version.
type layout struct {
	structure mapversion.Structure
	codecs    []attrCodec
}

var layouts = map[mapversion.Structure]layout{
	0: {structure: 0, codecs: itemCodecs},
}

func layoutFor(s mapversion.Structure) (layout, error) {
	l, ok := layouts[s]
	if !ok {
		return layout{}, errors.NewUnsupportedVersion("structure", s.String(), "no otmm layout for this structure version")
	}
	return l, nil
}

// Structures returns the structure versions this package can read and
// write.
func Structures() []mapversion.Structure {
	return []mapversion.Structure{0}
}

// DetectConfig is used by the format manager to recognise OTMM files.
var DetectConfig = base.DetectConfig{
	Extensions:   []string{".otmm"},
	Magic:        [][]byte{Identifier[:]},
	FormatName:   "otmm",
	CheckContent: true,
}

// Header is the root payload of a file.
type Header struct {
	Structure mapversion.Structure
	Width     uint16
	Height    uint16
	Client    mapversion.Client
}

// Version returns the version tag of the header.
func (h Header) Version() mapversion.MapVersion {
	return mapversion.MapVersion{Format: mapversion.FormatOTMM, Structure: h.Structure, Client: h.Client}
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
	c, err := props.ReadU32()
	if err != nil {
		return h, err
	}
	h.Client = mapversion.Client(c)
	return h, nil
}

// PeekVersion reads only the identifier and root payload of src.
func PeekVersion(src io.Reader) (Header, error) {
	r, err := nodefile.NewReader(src, []nodefile.Identifier{Identifier}, nodefile.WithCacheSize(512))
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

// GenerateOptions returns generator settings restricted to what the
// dialect can store.
func GenerateOptions(v mapversion.MapVersion) mapdata.GenerateOptions {
	opts := mapdata.GenerateOptions{
		Version:    mapversion.MapVersion{Format: mapversion.FormatOTMM, Structure: v.Structure, Client: v.Client},
		Tiles:      300,
		Spawns:     4,
		Towns:      3,
		Houses:     3,
		NPCs:       true,
		MaxNesting: 3,
	}
	l := layouts[v.Structure]
	for _, c := range l.codecs {
		opts.Attributes = append(opts.Attributes, c.name)
	}
	return opts
}
