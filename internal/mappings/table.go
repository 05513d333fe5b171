// Package mappings holds item-ID mapping tables keyed by (source client,
// target client, source item id), and reads and writes them as XML, YAML
// or SQLite.
//
// A Table is populated once, typically at startup, and then only read.
// Population and lookups are guarded by a RWMutex so one table can be
// shared by concurrent converters.
package mappings

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/FocuswithJustin/OTMapKit/core/cas"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
)

// Op is what an AttributeChange does.
type Op string

const (
	OpSet    Op = "set"
	OpDelete Op = "delete"
	OpRename Op = "rename"
)

// AttributeChange is one attribute delta carried by a mapping.
type AttributeChange struct {
	Op    Op
	Name  string
	Value mapdata.Value // OpSet
	To    string        // OpRename
}

// Apply performs the change on it and reports whether anything changed.
func (c AttributeChange) Apply(it *mapdata.Item) bool {
	switch c.Op {
	case OpSet:
		if old, ok := it.Attr(c.Name); ok && old.Kind == c.Value.Kind && old.Equal(c.Value) {
			return false
		}
		it.Set(c.Name, c.Value)
		return true
	case OpDelete:
		return it.Delete(c.Name)
	case OpRename:
		if _, ok := it.Attr(c.Name); !ok || c.Name == c.To {
			return false
		}
		return it.Rename(c.Name, c.To)
	}
	return false
}

func (c AttributeChange) String() string {
	switch c.Op {
	case OpSet:
		return fmt.Sprintf("set %s = %s", c.Name, c.Value)
	case OpRename:
		return fmt.Sprintf("rename %s -> %s", c.Name, c.To)
	}
	return fmt.Sprintf("%s %s", c.Op, c.Name)
}

// Mapping maps one source item id to a target id.
type Mapping struct {
	SourceID   uint16
	TargetID   uint16
	SourceName string
	TargetName string
	Changes    []AttributeChange
}

// Pair is a directed client-to-client table key.
type Pair struct {
	From mapversion.Client
	To   mapversion.Client
}

func (p Pair) String() string {
	return fmt.Sprintf("%s -> %s", p.From, p.To)
}

// Table is a set of mappings grouped by client pair.
type Table struct {
	mu    sync.RWMutex
	pairs map[Pair]map[uint16]Mapping
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{pairs: make(map[Pair]map[uint16]Mapping)}
}

// Add stores m for the pair, replacing an earlier mapping of the same
// source id.
func (t *Table) Add(from, to mapversion.Client, m Mapping) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := Pair{from, to}
	ids := t.pairs[p]
	if ids == nil {
		ids = make(map[uint16]Mapping)
		t.pairs[p] = ids
	}
	ids[m.SourceID] = m
}

// AddPair registers a pair with no mappings, so that a path can be
// planned through it.
func (t *Table) AddPair(from, to mapversion.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := Pair{from, to}
	if t.pairs[p] == nil {
		t.pairs[p] = make(map[uint16]Mapping)
	}
}

// Lookup returns the mapping of id for the pair.
func (t *Table) Lookup(from, to mapversion.Client, id uint16) (Mapping, bool) {
	if t == nil {
		return Mapping{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.pairs[Pair{from, to}][id]
	return m, ok
}

// HasPair reports whether the table holds the pair.
func (t *Table) HasPair(from, to mapversion.Client) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.pairs[Pair{from, to}]
	return ok
}

// Remove deletes one mapping.
func (t *Table) Remove(from, to mapversion.Client, id uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pairs[Pair{from, to}], id)
}

// ClearPair deletes the pair and its mappings.
func (t *Table) ClearPair(from, to mapversion.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pairs, Pair{from, to})
}

// Clear empties the table.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pairs = make(map[Pair]map[uint16]Mapping)
}

// Pairs returns the client pairs in ascending order.
func (t *Table) Pairs() []Pair {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Pair, 0, len(t.pairs))
	for p := range t.pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Mappings returns the mappings of a pair ordered by source id.
func (t *Table) Mappings(from, to mapversion.Client) []Mapping {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := t.pairs[Pair{from, to}]
	out := make([]Mapping, 0, len(ids))
	for _, m := range ids {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Len returns the total number of mappings.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, ids := range t.pairs {
		n += len(ids)
	}
	return n
}

// PairLen returns the number of mappings of one pair.
func (t *Table) PairLen(from, to mapversion.Client) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pairs[Pair{from, to}])
}

// Merge copies every mapping of o into t; mappings of o win.
func (t *Table) Merge(o *Table) {
	for _, p := range o.Pairs() {
		t.AddPair(p.From, p.To)
		for _, m := range o.Mappings(p.From, p.To) {
			t.Add(p.From, p.To, m)
		}
	}
}

// Digest returns a BLAKE3 digest of the table content that does not
// depend on the order mappings were added in.
func (t *Table) Digest() string {
	var b strings.Builder
	for _, p := range t.Pairs() {
		fmt.Fprintf(&b, "pair %d %d\n", p.From, p.To)
		for _, m := range t.Mappings(p.From, p.To) {
			fmt.Fprintf(&b, "item %d %d %q %q\n", m.SourceID, m.TargetID, m.SourceName, m.TargetName)
			for _, c := range m.Changes {
				fmt.Fprintf(&b, "  %s %s\n", c, c.Value.Kind)
			}
		}
	}
	return cas.Digest([]byte(b.String()))
}
