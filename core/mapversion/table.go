package mapversion

import (
	"sort"
	"strconv"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
)

var knownClients = []Client{
	740, 750, 760, 770, 780, 790, 792,
	800, 810, 811, 820, 830, 840, 841, 842, 850, 854,
	860, 861, 862, 870, 871, 872, 873,
	900, 910, 920, 940, 944, 953, 960, 961, 963, 970, 980, 981, 982, 983, 985, 986,
	1010, 1020, 1021, 1030, 1031, 1035, 1036, 1038,
	1057, 1058, 1059, 1060, 1061, 1062, 1063, 1064,
	1092, 1093, 1094, 1095, 1096, 1097, 1098, 1099,
	1100, 1110, 1132, 1140, 1150, 1171, 1180, 1185,
	1200, 1210, 1215, 1220, 1240, 1250, 1260, 1270, 1280, 1281, 1300,
}

// Feature is a capability that depends on the map version.
type Feature int

const (
	FeatureWaypoints Feature = iota
	FeatureAttributeMap
	FeatureCharges
	FeatureTier
	FeaturePodium
	FeatureInTreeHouses
	FeatureNPCNodes
)

func (f Feature) String() string {
	switch f {
	case FeatureWaypoints:
		return "waypoints"
	case FeatureAttributeMap:
		return "attribute map"
	case FeatureCharges:
		return "charges"
	case FeatureTier:
		return "tier"
	case FeaturePodium:
		return "podium"
	case FeatureInTreeHouses:
		return "in-tree houses"
	case FeatureNPCNodes:
		return "npc nodes"
	}
	return "feature " + strconv.Itoa(int(f))
}

// Table is the set of versions a manager or converter accepts.
type Table struct {
	clients    map[Client]ClientInfo
	order      []Client
	structures map[Format][]Structure
}

// NewTable builds a table from explicit client and structure lists.
func NewTable(clients []ClientInfo, structures map[Format][]Structure) *Table {
	t := &Table{
		clients:    make(map[Client]ClientInfo, len(clients)),
		structures: make(map[Format][]Structure, len(structures)),
	}
	for _, c := range clients {
		if _, dup := t.clients[c.Client]; !dup {
			t.order = append(t.order, c.Client)
		}
		t.clients[c.Client] = c
	}
	sort.Slice(t.order, func(i, j int) bool { return t.order[i] < t.order[j] })
	for f, list := range structures {
		t.structures[f] = append([]Structure(nil), list...)
	}
	return t
}

// Default returns a fresh table with every known client revision, OTBM
// structures 0..3 and OTMM structure 0.
func Default() *Table {
	infos := make([]ClientInfo, 0, len(knownClients))
	for _, c := range knownClients {
		infos = append(infos, describe(c))
	}
	return NewTable(infos, map[Format][]Structure{
		FormatOTBM: {0, 1, 2, 3},
		FormatOTMM: {0},
	})
}

func describe(c Client) ClientInfo {
	info := ClientInfo{Client: c, Name: c.String()}
	switch {
	case c <= 792:
		info.ItemsMajor, info.Structure = 1, 0
	case c < 860:
		info.ItemsMajor, info.Structure = 2, 1
	case c < 1094:
		info.ItemsMajor, info.Structure = 3, 2
	default:
		info.ItemsMajor, info.Structure = 3, 3
	}
	info.ItemsMinor = uint32(c)
	return info
}

// Clients returns the known clients in ascending order.
func (t *Table) Clients() []Client {
	return append([]Client(nil), t.order...)
}

// Lookup returns the description of c.
func (t *Table) Lookup(c Client) (ClientInfo, bool) {
	info, ok := t.clients[c]
	return info, ok
}

// SupportsClient reports whether c is in the table.
func (t *Table) SupportsClient(c Client) bool {
	_, ok := t.clients[c]
	return ok
}

// Structures returns the structure versions accepted for f.
func (t *Table) Structures(f Format) []Structure {
	return append([]Structure(nil), t.structures[f]...)
}

// SupportsStructure reports whether s is a valid structure version for f.
func (t *Table) SupportsStructure(f Format, s Structure) bool {
	for _, v := range t.structures[f] {
		if v == s {
			return true
		}
	}
	return false
}

// Latest returns the newest structure version for f.
func (t *Table) Latest(f Format) Structure {
	var latest Structure
	for _, s := range t.structures[f] {
		if s > latest {
			latest = s
		}
	}
	return latest
}

// Validate checks both halves of v against the table.
func (t *Table) Validate(v MapVersion) error {
	if !t.SupportsStructure(v.Format, v.Structure) {
		return errors.NewUnsupportedVersion("structure", strconv.Itoa(int(v.Structure)),
			"not accepted for "+v.Format.String())
	}
	if !t.SupportsClient(v.Client) {
		return errors.NewUnsupportedVersion("client", v.Client.String(), "not in version table")
	}
	return nil
}

// Supports reports whether maps of version v can carry feature f.
func Supports(f Feature, v MapVersion) bool {
	switch f {
	case FeatureWaypoints:
		return v.Format == FormatOTBM && v.Structure >= 2
	case FeatureAttributeMap:
		return v.Format == FormatOTBM && v.Structure >= 3
	case FeatureCharges:
		return v.Client >= 820
	case FeatureTier:
		return v.Client >= 1057 && (v.Format != FormatOTBM || v.Structure >= 2)
	case FeaturePodium:
		return v.Client >= 1094
	case FeatureInTreeHouses, FeatureNPCNodes:
		return v.Format == FormatOTMM
	}
	return false
}
