// Package items reads item catalogs (items.xml) and answers the questions
// the map interpreters and the converter ask about item ids.
package items

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/xml"
)

// Entry describes one item id.
type Entry struct {
	ID     uint16
	Name   string
	Group  string
	Ground bool
	// Attributes holds the <attribute key value> pairs of the entry.
	Attributes map[string]string
}

// Catalog is an id-indexed item list. It is safe for concurrent readers
// once populated.
type Catalog struct {
	mu      sync.RWMutex
	entries map[uint16]*Entry
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[uint16]*Entry)}
}

// Add stores e, replacing any entry with the same id.
func (c *Catalog) Add(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.ID] = e
}

// AddGround marks ids as ground items.
func (c *Catalog) AddGround(ids ...uint16) {
	for _, id := range ids {
		c.Add(&Entry{ID: id, Group: "ground", Ground: true})
	}
}

// Lookup returns the entry for id.
func (c *Catalog) Lookup(id uint16) (*Entry, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// IsGround reports whether id is a ground item. A nil catalog knows no
// grounds.
func (c *Catalog) IsGround(id uint16) bool {
	e, ok := c.Lookup(id)
	return ok && e.Ground
}

// Name returns the item name, or "" if the id is unknown.
func (c *Catalog) Name(id uint16) string {
	if e, ok := c.Lookup(id); ok {
		return e.Name
	}
	return ""
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// IDs returns all ids in ascending order.
func (c *Catalog) IDs() []uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]uint16, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LoadFile reads an items.xml file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()
	c, err := Load(f)
	if err != nil {
		var pe *errors.ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return c, nil
}

// Load parses an items.xml document. Entries use either id="" or a
// fromid=""/toid="" range. An item is a ground when its group or type is
// "ground", either as an XML attribute or as an <attribute key value>
// child.
func Load(r io.Reader) (*Catalog, error) {
	doc, err := xml.Parse(r)
	if err != nil {
		return nil, &errors.ParseError{Format: "items.xml", Message: "malformed document", Err: err}
	}
	nodes, err := doc.XPath("/items/item")
	if err != nil {
		return nil, err
	}
	c := NewCatalog()
	for _, n := range nodes {
		from, to, err := idRange(n)
		if err != nil {
			return nil, errors.NewParse("items.xml", "", err.Error())
		}
		attrs := make(map[string]string)
		for _, child := range n.Children() {
			if child.Name() == "attribute" {
				attrs[strings.ToLower(child.Attr("key"))] = child.Attr("value")
			}
		}
		group := strings.ToLower(n.Attr("group"))
		if group == "" {
			group = strings.ToLower(attrs["group"])
		}
		ground := group == "ground" ||
			strings.EqualFold(n.Attr("type"), "ground") ||
			strings.EqualFold(attrs["type"], "ground")
		for id := from; ; id++ {
			c.entries[uint16(id)] = &Entry{
				ID:         uint16(id),
				Name:       n.Attr("name"),
				Group:      group,
				Ground:     ground,
				Attributes: attrs,
			}
			if id == to {
				break
			}
		}
	}
	return c, nil
}

func idRange(n *xml.Node) (uint64, uint64, error) {
	if n.HasAttr("id") {
		id, err := n.Uint("id", 16)
		return id, id, err
	}
	from, err := n.Uint("fromid", 16)
	if err != nil {
		return 0, 0, err
	}
	to, err := n.Uint("toid", 16)
	if err != nil {
		return 0, 0, err
	}
	if to < from {
		return 0, 0, fmt.Errorf("item range %d-%d is reversed", from, to)
	}
	return from, to, nil
}
