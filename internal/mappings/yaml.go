package mappings

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
)

type yamlFile struct {
	Pairs []yamlPair `yaml:"pairs"`
}

type yamlPair struct {
	From  string      `yaml:"from"`
	To    string      `yaml:"to"`
	Items []yamlItem  `yaml:"items,omitempty"`
	Range []yamlRange `yaml:"ranges,omitempty"`
}

type yamlItem struct {
	From     uint16       `yaml:"from"`
	To       uint16       `yaml:"to"`
	FromName string       `yaml:"from_name,omitempty"`
	ToName   string       `yaml:"to_name,omitempty"`
	Changes  []yamlChange `yaml:"changes,omitempty"`
}

type yamlRange struct {
	From   uint16 `yaml:"from"`
	To     uint16 `yaml:"to"`
	Offset int    `yaml:"offset"`
}

type yamlChange struct {
	Action string `yaml:"action,omitempty"`
	Name   string `yaml:"name"`
	Type   string `yaml:"type,omitempty"`
	Value  string `yaml:"value,omitempty"`
	To     string `yaml:"to,omitempty"`
}

// ReadYAML adds the mappings of a YAML table to t. The layout mirrors
// the XML one:
//
//	pairs:
//	  - from: "8.60"
//	    to: "12.00"
//	    items:
//	      - {from: 100, to: 150, changes: [{action: delete, name: text}]}
//	    ranges:
//	      - {from: 2000, to: 2099, offset: 1000}
func ReadYAML(t *Table, r io.Reader, path string) error {
	var f yamlFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return &errors.ParseError{Format: "mapping YAML", Path: path, Message: err.Error(), Err: err}
	}
	fail := func(format string, args ...interface{}) error {
		return errors.NewParse("mapping YAML", path, fmt.Sprintf(format, args...))
	}
	for i, yp := range f.Pairs {
		from, err := mapversion.ParseClient(yp.From)
		if err != nil {
			return fail("pairs[%d]: %v", i, err)
		}
		to, err := mapversion.ParseClient(yp.To)
		if err != nil {
			return fail("pairs[%d]: %v", i, err)
		}
		t.AddPair(from, to)
		for _, yi := range yp.Items {
			m := Mapping{SourceID: yi.From, TargetID: yi.To, SourceName: yi.FromName, TargetName: yi.ToName}
			for _, yc := range yi.Changes {
				c, err := newChange(yc.Action, yc.Name, yc.Type, yc.Value, yc.To)
				if err != nil {
					return fail("pairs[%d] item %d: %v", i, yi.From, err)
				}
				m.Changes = append(m.Changes, c)
			}
			t.Add(from, to, m)
		}
		for _, yr := range yp.Range {
			if yr.From > yr.To || int(yr.From)+yr.Offset < 0 || int(yr.To)+yr.Offset > 0xFFFF {
				return fail("pairs[%d]: bad range %d-%d%+d", i, yr.From, yr.To, yr.Offset)
			}
			for id := int(yr.From); id <= int(yr.To); id++ {
				t.Add(from, to, Mapping{SourceID: uint16(id), TargetID: uint16(id + yr.Offset)})
			}
		}
	}
	return nil
}

// WriteYAML writes t in the layout ReadYAML accepts.
func WriteYAML(t *Table, w io.Writer) error {
	var f yamlFile
	for _, p := range t.Pairs() {
		yp := yamlPair{From: p.From.String(), To: p.To.String()}
		for _, m := range t.Mappings(p.From, p.To) {
			yi := yamlItem{From: m.SourceID, To: m.TargetID, FromName: m.SourceName, ToName: m.TargetName}
			for _, c := range m.Changes {
				yc := yamlChange{Action: string(c.Op), Name: c.Name, To: c.To}
				if c.Op == OpSet {
					yc.Type = kindName(c.Value.Kind)
					yc.Value = FormatValue(c.Value)
				}
				yi.Changes = append(yi.Changes, yc)
			}
			yp.Items = append(yp.Items, yi)
		}
		f.Pairs = append(f.Pairs, yp)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&f); err != nil {
		return err
	}
	return enc.Close()
}
