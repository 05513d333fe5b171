package otbm

import (
	"os"
	"strconv"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/xml"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/base"
)

// houseFile returns the side-file name for house metadata and whether the
// header named it explicitly.
func houseFile(h mapdata.Header, mapName string) (string, bool) {
	if h.HouseFile != "" {
		return h.HouseFile, true
	}
	return base.SideFileName(mapName, HouseFileSuffix), false
}

// houses reads the external house list. A missing file is only reported
// when the header names it; house metadata never fails a load.
func (l *loader) houses() {
	name, named := houseFile(l.m.Header, l.ctx.Name())
	side := l.ctx.SideFiles()
	if side == nil {
		if named {
			l.ctx.Warnf("house file %s not read: no side-file location", name)
		}
		return
	}
	f, err := side.Open(name)
	if err != nil {
		if named || !os.IsNotExist(err) {
			l.ctx.Warnf("house file %s not read: %v", name, err)
		}
		return
	}
	defer f.Close()

	doc, err := xml.Parse(f)
	if err != nil {
		l.ctx.Warnf("house file %s not read: %v", name, err)
		return
	}
	nodes, err := doc.XPath("/houses/house")
	if err != nil {
		l.ctx.Warnf("house file %s not read: %v", name, err)
		return
	}
	for _, n := range nodes {
		h, err := parseHouse(n)
		if err != nil {
			l.ctx.Warnf("house skipped: %v", err)
			continue
		}
		l.m.AddHouse(h)
		l.ctx.Stats.Houses++
	}
}

func parseHouse(n *xml.Node) (*mapdata.House, error) {
	id, err := n.Uint("houseid", 32)
	if err != nil {
		return nil, err
	}
	h := &mapdata.House{ID: uint32(id), Name: n.Attr("name")}
	x, err := n.Uint("entryx", 16)
	if err != nil {
		return nil, err
	}
	y, err := n.Uint("entryy", 16)
	if err != nil {
		return nil, err
	}
	z, err := n.Uint("entryz", 8)
	if err != nil {
		return nil, err
	}
	h.Entry = mapdata.Position{X: uint16(x), Y: uint16(y), Z: uint8(z)}
	if n.HasAttr("townid") {
		town, err := n.Uint("townid", 32)
		if err != nil {
			return nil, err
		}
		h.TownID = uint32(town)
	}
	if n.HasAttr("rent") {
		rent, err := n.Uint("rent", 32)
		if err != nil {
			return nil, err
		}
		h.Rent = uint32(rent)
	}
	h.Guildhall, _ = strconv.ParseBool(n.Attr("guildhall"))
	return h, nil
}

// houses writes the external house list after the map itself.
func (s *saver) houses() error {
	if len(s.m.Houses) == 0 {
		return nil
	}
	side := s.ctx.SideFiles()
	if side == nil {
		s.ctx.WarnOnce("houses", "%d houses omitted: no side-file location for the house list", len(s.m.Houses))
		return nil
	}
	name, _ := houseFile(s.m.Header, s.ctx.Name())

	doc, root := xml.NewDocument("houses")
	for _, h := range s.m.SortedHouses() {
		n := root.AddElement("house").
			SetAttr("name", h.Name).
			SetAttr("houseid", strconv.FormatUint(uint64(h.ID), 10)).
			SetAttr("entryx", strconv.Itoa(int(h.Entry.X))).
			SetAttr("entryy", strconv.Itoa(int(h.Entry.Y))).
			SetAttr("entryz", strconv.Itoa(int(h.Entry.Z))).
			SetAttr("rent", strconv.FormatUint(uint64(h.Rent), 10)).
			SetAttr("townid", strconv.FormatUint(uint64(h.TownID), 10)).
			SetAttr("size", strconv.Itoa(s.m.HouseTileCount(h.ID)))
		if h.Guildhall {
			n.SetAttr("guildhall", "true")
		}
		s.ctx.Stats.Houses++
	}

	f, err := side.Create(name)
	if err != nil {
		return errors.NewIO("create", name, err)
	}
	if _, err := doc.WriteTo(f); err != nil {
		f.Close()
		return errors.NewIO("write", name, err)
	}
	if err := f.Close(); err != nil {
		return errors.NewIO("close", name, err)
	}
	return nil
}
