package mappings

import (
	"fmt"
	"io"
	"strconv"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/core/xml"
)

// ReadXML adds the mappings of an XML table to t:
//
//	<mappings>
//	  <pair from="8.60" to="12.00">
//	    <item from="100" to="150" fromname="apple" toname="red apple">
//	      <attribute name="charges" action="set" type="u16" value="5"/>
//	      <attribute name="aid" action="rename" to="action_id"/>
//	    </item>
//	    <range from="2000" to="2099" offset="1000"/>
//	  </pair>
//	</mappings>
//
// A range maps every id in [from, to] to id+offset.
func ReadXML(t *Table, r io.Reader, path string) error {
	doc, err := xml.Parse(r)
	if err != nil {
		return &errors.ParseError{Format: "mapping XML", Path: path, Message: err.Error(), Err: err}
	}
	root := doc.Root()
	if root == nil || root.Name() != "mappings" {
		return errors.NewParse("mapping XML", path, "root element must be <mappings>")
	}
	fail := func(format string, args ...interface{}) error {
		return errors.NewParse("mapping XML", path, fmt.Sprintf(format, args...))
	}

	pairs, err := doc.XPath("/mappings/pair")
	if err != nil {
		return err
	}
	for _, pn := range pairs {
		from, err := mapversion.ParseClient(pn.Attr("from"))
		if err != nil {
			return fail("<pair>: %v", err)
		}
		to, err := mapversion.ParseClient(pn.Attr("to"))
		if err != nil {
			return fail("<pair>: %v", err)
		}
		t.AddPair(from, to)

		for _, n := range pn.Children() {
			switch n.Name() {
			case "item":
				m, err := xmlMapping(n)
				if err != nil {
					return fail("pair %s: %v", Pair{from, to}, err)
				}
				t.Add(from, to, m)
			case "range":
				lo, err1 := n.Uint("from", 16)
				hi, err2 := n.Uint("to", 16)
				if err1 != nil || err2 != nil || lo > hi {
					return fail("pair %s: bad <range from=%q to=%q>", Pair{from, to}, n.Attr("from"), n.Attr("to"))
				}
				off, err := strconv.ParseInt(n.Attr("offset"), 10, 32)
				if err != nil {
					return fail("pair %s: bad range offset %q", Pair{from, to}, n.Attr("offset"))
				}
				if int64(lo)+off < 0 || int64(hi)+off > 0xFFFF {
					return fail("pair %s: range %d-%d%+d leaves the id space", Pair{from, to}, lo, hi, off)
				}
				for id := lo; id <= hi; id++ {
					t.Add(from, to, Mapping{SourceID: uint16(id), TargetID: uint16(int64(id) + off)})
				}
			default:
				return fail("pair %s: unexpected <%s>", Pair{from, to}, n.Name())
			}
		}
	}
	return nil
}

func xmlMapping(n *xml.Node) (Mapping, error) {
	src, err := n.Uint("from", 16)
	if err != nil {
		return Mapping{}, err
	}
	dst, err := n.Uint("to", 16)
	if err != nil {
		return Mapping{}, err
	}
	m := Mapping{
		SourceID:   uint16(src),
		TargetID:   uint16(dst),
		SourceName: n.Attr("fromname"),
		TargetName: n.Attr("toname"),
	}
	for _, an := range n.Children() {
		if an.Name() != "attribute" {
			return m, fmt.Errorf("item %d: unexpected <%s>", src, an.Name())
		}
		c, err := newChange(an.Attr("action"), an.Attr("name"), an.Attr("type"), an.Attr("value"), an.Attr("to"))
		if err != nil {
			return m, fmt.Errorf("item %d: %w", src, err)
		}
		m.Changes = append(m.Changes, c)
	}
	return m, nil
}

// WriteXML writes t in the layout ReadXML accepts. Ranges are expanded.
func WriteXML(t *Table, w io.Writer) error {
	doc, root := xml.NewDocument("mappings")
	for _, p := range t.Pairs() {
		pn := root.AddElement("pair").
			SetAttr("from", p.From.String()).
			SetAttr("to", p.To.String())
		for _, m := range t.Mappings(p.From, p.To) {
			n := pn.AddElement("item").
				SetAttr("from", strconv.Itoa(int(m.SourceID))).
				SetAttr("to", strconv.Itoa(int(m.TargetID)))
			if m.SourceName != "" {
				n.SetAttr("fromname", m.SourceName)
			}
			if m.TargetName != "" {
				n.SetAttr("toname", m.TargetName)
			}
			for _, c := range m.Changes {
				an := n.AddElement("attribute").
					SetAttr("name", c.Name).
					SetAttr("action", string(c.Op))
				switch c.Op {
				case OpSet:
					an.SetAttr("type", kindName(c.Value.Kind)).SetAttr("value", FormatValue(c.Value))
				case OpRename:
					an.SetAttr("to", c.To)
				}
			}
		}
	}
	_, err := doc.WriteTo(w)
	return err
}
