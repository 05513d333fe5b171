package mapdata

import "fmt"

// Item is one item instance on a tile or inside a container.
type Item struct {
	ID       uint16
	Attrs    Attributes
	Contents []*Item
}

// NewItem returns an item with no attributes.
func NewItem(id uint16) *Item {
	return &Item{ID: id}
}

// Set stores an attribute, allocating the set on first use.
func (it *Item) Set(name string, v Value) *Item {
	if it.Attrs == nil {
		it.Attrs = make(Attributes)
	}
	it.Attrs[name] = v
	return it
}

// Attr returns the attribute stored under name.
func (it *Item) Attr(name string) (Value, bool) {
	return it.Attrs.Get(name)
}

// Delete removes an attribute and reports whether it was present.
func (it *Item) Delete(name string) bool {
	if _, ok := it.Attrs[name]; !ok {
		return false
	}
	delete(it.Attrs, name)
	if len(it.Attrs) == 0 {
		it.Attrs = nil
	}
	return true
}

// Rename moves an attribute to a new name. It reports whether the source
// attribute existed.
func (it *Item) Rename(from, to string) bool {
	v, ok := it.Attrs[from]
	if !ok || from == to {
		return ok
	}
	delete(it.Attrs, from)
	it.Attrs[to] = v
	return true
}

// Count returns the stack count, defaulting to 1.
func (it *Item) Count() uint16 {
	if v, ok := it.Attrs[AttrCount]; ok {
		return uint16(v.Uint(0xFFFF))
	}
	return 1
}

// Plain reports whether the item has neither attributes nor contents.
func (it *Item) Plain() bool {
	return len(it.Attrs) == 0 && len(it.Contents) == 0
}

// Clone returns a deep copy.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	c := &Item{ID: it.ID, Attrs: it.Attrs.Clone()}
	if len(it.Contents) > 0 {
		c.Contents = make([]*Item, len(it.Contents))
		for i, sub := range it.Contents {
			c.Contents[i] = sub.Clone()
		}
	}
	return c
}

// Walk visits the item and its container contents depth-first. depth is 0
// for the item itself.
func (it *Item) Walk(fn func(item *Item, depth int) error) error {
	return it.walk(fn, 0)
}

func (it *Item) walk(fn func(*Item, int) error, depth int) error {
	if err := fn(it, depth); err != nil {
		return err
	}
	for _, sub := range it.Contents {
		if err := sub.walk(fn, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the number of items including nested contents.
func (it *Item) Size() int {
	n := 1
	for _, sub := range it.Contents {
		n += sub.Size()
	}
	return n
}

// Equal compares two items including their contents.
func (it *Item) Equal(o *Item) bool {
	if it == nil || o == nil {
		return it == o
	}
	if it.ID != o.ID || !it.Attrs.Equal(o.Attrs) || len(it.Contents) != len(o.Contents) {
		return false
	}
	for i := range it.Contents {
		if !it.Contents[i].Equal(o.Contents[i]) {
			return false
		}
	}
	return true
}

func (it *Item) String() string {
	if len(it.Contents) > 0 {
		return fmt.Sprintf("item %d (%d attrs, %d contents)", it.ID, len(it.Attrs), len(it.Contents))
	}
	return fmt.Sprintf("item %d (%d attrs)", it.ID, len(it.Attrs))
}
