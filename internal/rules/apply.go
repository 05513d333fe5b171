package rules

import "github.com/FocuswithJustin/OTMapKit/core/mapdata"

// Effect counts what a set of actions changed.
type Effect struct {
	FlagsChanged      int
	AttributesChanged int
	ItemsReplaced     int
	ItemsRemoved      int
	IDChanges         map[uint16]int // source id -> number of replaced items
}

func (e *Effect) replaced(id uint16) {
	e.ItemsReplaced++
	if e.IDChanges == nil {
		e.IDChanges = make(map[uint16]int)
	}
	e.IDChanges[id]++
}

// Apply runs actions against one tile in order and adds their effect to e.
func Apply(actions []Action, t *mapdata.Tile, e *Effect) {
	for _, a := range actions {
		switch a.Kind {
		case KindFlag:
			if t.Flags&a.From != 0 {
				t.Flags = t.Flags&^a.From | a.To
				e.FlagsChanged++
			}
		case KindClear:
			if t.Flags&a.From != 0 {
				t.Flags &^= a.From
				e.FlagsChanged++
			}
		case KindRemove:
			if t.Ground != nil && a.matches(t.Ground.ID) {
				e.ItemsRemoved += 1 + countContents(t.Ground)
				t.Ground = nil
			}
			t.Items = removeItems(t.Items, a, e)
		default:
			t.Walk(func(it *mapdata.Item, _ int) error {
				applyItem(a, it, e)
				return nil
			})
		}
	}
}

func applyItem(a Action, it *mapdata.Item, e *Effect) {
	switch a.Kind {
	case KindReplace:
		if it.ID == a.IDs[0] {
			it.ID = a.IDs[1]
			e.replaced(a.IDs[0])
		}
	case KindRename:
		if a.matches(it.ID) && a.Attr != a.As && it.Rename(a.Attr, a.As) {
			e.AttributesChanged++
		}
	case KindDrop:
		if a.matches(it.ID) && it.Delete(a.Attr) {
			e.AttributesChanged++
		}
	case KindSet:
		if !a.matches(it.ID) {
			return
		}
		if old, ok := it.Attr(a.Attr); ok && old.Kind == a.Value.Kind && old.Equal(a.Value) {
			return
		}
		it.Set(a.Attr, a.Value)
		e.AttributesChanged++
	}
}

func removeItems(items []*mapdata.Item, a Action, e *Effect) []*mapdata.Item {
	out := items[:0]
	for _, it := range items {
		if a.matches(it.ID) {
			e.ItemsRemoved += 1 + countContents(it)
			continue
		}
		it.Contents = removeItems(it.Contents, a, e)
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func countContents(it *mapdata.Item) int {
	n := 0
	for _, c := range it.Contents {
		n += 1 + countContents(c)
	}
	return n
}
