// Package rules implements the declarative rule language applied by the
// version converter on top of item-ID mappings.
//
// A rule file holds blocks keyed by a structure pair or a client pair:
//
//	# house bit moved between the first two structures
//	structure 0 -> 1 {
//	    flag 0x02 -> 0x40;
//	}
//	client 8.60 -> 10.98 {
//	    rename aid -> action_id;
//	    drop text on 1987, 1988;
//	    set label:string = "old" on 2400;
//	    replace 100 -> 150;
//	    remove 2043;
//	    clear 0x80;
//	}
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/internal/mappings"
)

//go:embed default.rules
var defaultRules []byte

// Scope says whether a rule is keyed by structure or by client.
type Scope int

const (
	ScopeStructure Scope = iota
	ScopeClient
)

func (s Scope) String() string {
	if s == ScopeClient {
		return "client"
	}
	return "structure"
}

// Kind is the action verb.
type Kind int

const (
	KindFlag Kind = iota
	KindClear
	KindRename
	KindDrop
	KindSet
	KindReplace
	KindRemove
)

var kindNames = [...]string{"flag", "clear", "rename", "drop", "set", "replace", "remove"}

func (k Kind) String() string { return kindNames[k] }

// Action is one parsed statement.
type Action struct {
	Kind  Kind
	Line  int
	From  mapdata.TileFlags // flag, clear
	To    mapdata.TileFlags // flag
	Attr  string            // rename, drop, set
	As    string            // rename target
	Value mapdata.Value     // set
	IDs   []uint16          // item filter; replace source and target; remove
}

func (a Action) matches(id uint16) bool {
	if len(a.IDs) == 0 {
		return true
	}
	for _, x := range a.IDs {
		if x == id {
			return true
		}
	}
	return false
}

// Rule is one block of actions for a version step.
type Rule struct {
	Scope   Scope
	From    uint32
	To      uint32
	Actions []Action
	Source  string
}

func (r Rule) String() string {
	if r.Scope == ScopeClient {
		return fmt.Sprintf("client %s -> %s", mapversion.Client(r.From), mapversion.Client(r.To))
	}
	return fmt.Sprintf("structure %d -> %d", r.From, r.To)
}

// RuleSet is an ordered collection of rules.
type RuleSet struct {
	rules []Rule
}

// Empty returns a rule set with no rules.
func Empty() *RuleSet { return &RuleSet{} }

// Default returns the built-in rules.
func Default() *RuleSet {
	rs, err := Parse("default.rules", defaultRules)
	if err != nil {
		panic("rules: built-in rules: " + err.Error())
	}
	return rs
}

// Load parses the rule file at path.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	return Parse(path, data)
}

// Parse parses rule text. name is used in error messages.
func Parse(name string, data []byte) (*RuleSet, error) {
	g, err := rulesParser.ParseBytes(name, data)
	if err != nil {
		return nil, &errors.ParseError{Format: "rules", Path: name, Message: err.Error(), Err: err}
	}
	rs := &RuleSet{}
	for _, b := range g.Blocks {
		r, err := convertBlock(b)
		if err != nil {
			return nil, errors.NewParse("rules", name, err.Error())
		}
		r.Source = fmt.Sprintf("%s:%d", name, b.Pos.Line)
		rs.rules = append(rs.rules, r)
	}
	return rs, nil
}

func convertBlock(b *blockGrammar) (Rule, error) {
	r := Rule{Scope: ScopeStructure}
	if err := r.parseStep(b); err != nil {
		return r, fmt.Errorf("line %d: %w", b.Pos.Line, err)
	}
	for _, ag := range b.Actions {
		a, err := convertAction(ag)
		if err != nil {
			return r, fmt.Errorf("line %d: %w", ag.Pos.Line, err)
		}
		a.Line = ag.Pos.Line
		r.Actions = append(r.Actions, a)
	}
	return r, nil
}

func (r *Rule) parseStep(b *blockGrammar) error {
	var err error
	if b.Scope == "client" {
		r.Scope = ScopeClient
		var from, to mapversion.Client
		if from, err = mapversion.ParseClient(b.From); err != nil {
			return err
		}
		if to, err = mapversion.ParseClient(b.To); err != nil {
			return err
		}
		r.From, r.To = uint32(from), uint32(to)
	} else {
		if r.From, err = parseUint32(b.From); err != nil {
			return err
		}
		if r.To, err = parseUint32(b.To); err != nil {
			return err
		}
	}
	if r.From == r.To {
		return fmt.Errorf("%s step %s -> %s goes nowhere", b.Scope, b.From, b.To)
	}
	return nil
}

func convertAction(g *actionGrammar) (Action, error) {
	switch {
	case g.Flag != nil:
		from, err := parseUint32(g.Flag.From)
		if err != nil {
			return Action{}, err
		}
		to, err := parseUint32(g.Flag.To)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: KindFlag, From: mapdata.TileFlags(from), To: mapdata.TileFlags(to)}, nil
	case g.Clear != nil:
		mask, err := parseUint32(*g.Clear)
		return Action{Kind: KindClear, From: mapdata.TileFlags(mask)}, err
	case g.Rename != nil:
		ids, err := parseIDs(g.Rename.On)
		return Action{
			Kind: KindRename,
			Attr: mapdata.CanonicalName(g.Rename.From),
			As:   mapdata.CanonicalName(g.Rename.To),
			IDs:  ids,
		}, err
	case g.Drop != nil:
		ids, err := parseIDs(g.Drop.On)
		return Action{Kind: KindDrop, Attr: mapdata.CanonicalName(g.Drop.Name), IDs: ids}, err
	case g.Set != nil:
		name := mapdata.CanonicalName(g.Set.Name)
		text := ""
		typ := g.Set.Type
		if g.Set.String != nil {
			text = *g.Set.String
			if typ == "" && !mapdata.IsCanonical(name) {
				typ = "string"
			}
		} else {
			text = *g.Set.Number
			if typ == "" && !mapdata.IsCanonical(name) {
				typ = "i64"
			}
		}
		kind, err := mappings.ParseKind(typ, name)
		if err != nil {
			return Action{}, err
		}
		v, err := mappings.ParseValue(kind, text)
		if err != nil {
			return Action{}, err
		}
		ids, err := parseIDs(g.Set.On)
		return Action{Kind: KindSet, Attr: name, Value: v, IDs: ids}, err
	case g.Replace != nil:
		ids, err := parseIDs([]string{g.Replace.From, g.Replace.To})
		return Action{Kind: KindReplace, IDs: ids}, err
	case g.Remove != nil:
		ids, err := parseIDs(g.Remove.IDs)
		return Action{Kind: KindRemove, IDs: ids}, err
	}
	return Action{}, fmt.Errorf("empty action")
}

func parseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return uint32(n), nil
}

func parseIDs(in []string) ([]uint16, error) {
	var ids []uint16
	for _, s := range in {
		n, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid item id %q", s)
		}
		ids = append(ids, uint16(n))
	}
	return ids, nil
}

// Rules returns the rules in file order.
func (rs *RuleSet) Rules() []Rule {
	if rs == nil {
		return nil
	}
	return append([]Rule(nil), rs.rules...)
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Merge appends the rules of o; for the same step the actions of both
// run, those of rs first.
func (rs *RuleSet) Merge(o *RuleSet) *RuleSet {
	out := &RuleSet{rules: rs.Rules()}
	out.rules = append(out.rules, o.Rules()...)
	return out
}

func (rs *RuleSet) actions(scope Scope, from, to uint32) []Action {
	var out []Action
	for _, r := range rs.Rules() {
		if r.Scope == scope && r.From == from && r.To == to {
			out = append(out, r.Actions...)
		}
	}
	return out
}

// ForStructure returns the actions of a structure step.
func (rs *RuleSet) ForStructure(from, to mapversion.Structure) []Action {
	return rs.actions(ScopeStructure, uint32(from), uint32(to))
}

// ForClient returns the actions of a client step.
func (rs *RuleSet) ForClient(from, to mapversion.Client) []Action {
	return rs.actions(ScopeClient, uint32(from), uint32(to))
}

// Describe renders the rules, one line per action.
func (rs *RuleSet) Describe() string {
	rules := rs.Rules()
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Scope < rules[j].Scope })
	var b strings.Builder
	for _, r := range rules {
		fmt.Fprintf(&b, "%s (%s)\n", r, r.Source)
		for _, a := range r.Actions {
			fmt.Fprintf(&b, "  %s\n", a)
		}
	}
	return b.String()
}

func (a Action) String() string {
	on := ""
	if len(a.IDs) > 0 && a.Kind != KindReplace && a.Kind != KindRemove {
		on = fmt.Sprintf(" on %v", a.IDs)
	}
	switch a.Kind {
	case KindFlag:
		return fmt.Sprintf("flag %#x -> %#x", uint32(a.From), uint32(a.To))
	case KindClear:
		return fmt.Sprintf("clear %#x", uint32(a.From))
	case KindRename:
		return fmt.Sprintf("rename %s -> %s%s", a.Attr, a.As, on)
	case KindDrop:
		return fmt.Sprintf("drop %s%s", a.Attr, on)
	case KindSet:
		return fmt.Sprintf("set %s = %s%s", a.Attr, a.Value, on)
	case KindReplace:
		return fmt.Sprintf("replace %d -> %d", a.IDs[0], a.IDs[1])
	}
	return fmt.Sprintf("remove %v", a.IDs)
}
