package convert

import (
	"fmt"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
)

// StepKind says which part of the version a step changes.
type StepKind int

const (
	StepClient StepKind = iota
	StepStructure
	StepFormat
)

func (k StepKind) String() string {
	switch k {
	case StepClient:
		return "client"
	case StepStructure:
		return "structure"
	}
	return "format"
}

// Step is one hop of a conversion path.
type Step struct {
	Kind StepKind
	From mapversion.MapVersion
	To   mapversion.MapVersion
}

func (s Step) String() string {
	return fmt.Sprintf("%s -> %s", s.From, s.To)
}

type pathKey struct {
	from, to mapversion.MapVersion
}

// ConversionPath returns the versions a map passes through on its way
// from one version to another, both ends included. Client hops come first
// and follow the shortest chain of mapping-table pairs, then structure
// hops move one structure version at a time, then the format changes.
func (c *Converter) ConversionPath(from, to mapversion.MapVersion) ([]mapversion.MapVersion, error) {
	steps, err := c.plan(from, to)
	if err != nil {
		return nil, err
	}
	path := []mapversion.MapVersion{from}
	for _, s := range steps {
		path = append(path, s.To)
	}
	return path, nil
}

// Steps is ConversionPath expressed as hops.
func (c *Converter) Steps(from, to mapversion.MapVersion) ([]Step, error) {
	return c.plan(from, to)
}

func (c *Converter) plan(from, to mapversion.MapVersion) ([]Step, error) {
	key := pathKey{from, to}
	c.mu.Lock()
	cached, ok := c.paths[key]
	c.mu.Unlock()
	if ok {
		return append([]Step(nil), cached...), nil
	}

	if err := c.versions.Validate(from); err != nil {
		return nil, errors.Wrap(err, "source version")
	}
	if err := c.versions.Validate(to); err != nil {
		return nil, errors.Wrap(err, "target version")
	}

	var steps []Step
	cur := from
	if from.Client != to.Client {
		clients, err := c.clientChain(from.Client, to.Client)
		if err != nil {
			return nil, err
		}
		for _, cl := range clients[1:] {
			next := cur
			next.Client = cl
			steps = append(steps, Step{Kind: StepClient, From: cur, To: next})
			cur = next
		}
	}

	if from.Format == to.Format {
		for cur.Structure != to.Structure {
			next := cur
			if cur.Structure < to.Structure {
				next.Structure++
			} else {
				next.Structure--
			}
			steps = append(steps, Step{Kind: StepStructure, From: cur, To: next})
			cur = next
		}
	} else {
		steps = append(steps, Step{Kind: StepFormat, From: cur, To: to})
	}

	for _, s := range steps {
		if !c.stepSupported(s) {
			return nil, errors.NewUnsupportedVersion("conversion", s.String(), "step not supported")
		}
	}

	c.mu.Lock()
	c.paths[key] = steps
	c.mu.Unlock()
	return append([]Step(nil), steps...), nil
}

// clientChain runs a breadth-first search over the pairs of the mapping
// table. Neighbours are visited in ascending client order, so ties go to
// the lowest intermediate client.
func (c *Converter) clientChain(from, to mapversion.Client) ([]mapversion.Client, error) {
	table := c.Table()
	adj := map[mapversion.Client][]mapversion.Client{}
	for _, p := range table.Pairs() {
		if c.versions.SupportsClient(p.From) && c.versions.SupportsClient(p.To) {
			adj[p.From] = append(adj[p.From], p.To)
		}
	}

	prev := map[mapversion.Client]mapversion.Client{from: from}
	queue := []mapversion.Client{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			break
		}
		for _, n := range adj[cur] {
			if _, seen := prev[n]; !seen {
				prev[n] = cur
				queue = append(queue, n)
			}
		}
	}

	if _, ok := prev[to]; !ok {
		if c.opts.AllowUnmappedHops {
			return []mapversion.Client{from, to}, nil
		}
		return nil, errors.NewUnsupportedVersion("client", fmt.Sprintf("%s -> %s", from, to), "no mapping table path")
	}
	var chain []mapversion.Client
	for cl := to; cl != from; cl = prev[cl] {
		chain = append(chain, cl)
	}
	chain = append(chain, from)
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// IsConversionSupported reports whether from can be converted to to in a
// single step.
func (c *Converter) IsConversionSupported(from, to mapversion.MapVersion) bool {
	if c.versions.Validate(from) != nil || c.versions.Validate(to) != nil {
		return false
	}
	if from == to {
		return true
	}
	switch {
	case from.Format != to.Format:
		return c.stepSupported(Step{Kind: StepFormat, From: from, To: to})
	case from.Client != to.Client:
		return from.Structure == to.Structure && c.stepSupported(Step{Kind: StepClient, From: from, To: to})
	}
	return c.stepSupported(Step{Kind: StepStructure, From: from, To: to})
}

func (c *Converter) stepSupported(s Step) bool {
	if c.versions.Validate(s.From) != nil || c.versions.Validate(s.To) != nil {
		return false
	}
	switch s.Kind {
	case StepClient:
		return s.From.Format == s.To.Format && s.From.Structure == s.To.Structure &&
			(c.Table().HasPair(s.From.Client, s.To.Client) || c.opts.AllowUnmappedHops)
	case StepStructure:
		d := int64(s.To.Structure) - int64(s.From.Structure)
		return s.From.Format == s.To.Format && s.From.Client == s.To.Client && (d == 1 || d == -1)
	}
	return s.From.Client == s.To.Client
}
