// Package convert moves maps between client revisions, structure
// versions and formats. Item ids are remapped through an injected
// mappings.Table, rule actions come from an injected rules.RuleSet, and
// content the target version cannot carry is reduced per the version
// feature matrix.
//
// A conversion plans its whole path first and fails before touching the
// map when any step is unsupported. Steps then run on a copy that
// replaces the map only when every step succeeded.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/base"
	"github.com/FocuswithJustin/OTMapKit/internal/logging"
	"github.com/FocuswithJustin/OTMapKit/internal/mappings"
	"github.com/FocuswithJustin/OTMapKit/internal/rules"
)

// Options configures a Converter.
type Options struct {
	// AllowUnmappedHops permits a client hop with no mapping-table path;
	// every item then keeps its id and is reported once per id.
	AllowUnmappedHops bool
	// Strict makes a missing mapping fail the conversion.
	Strict bool
	// Known, when set, reports whether an item id exists in the target
	// catalog; ids it rejects after conversion produce one warning each.
	Known       func(id uint16) bool
	Progress    base.ProgressFunc
	MinInterval time.Duration
	Logger      *slog.Logger
}

// Converter converts maps between versions.
type Converter struct {
	versions *mapversion.Table
	rules    *rules.RuleSet
	opts     Options

	mu    sync.Mutex
	table *mappings.Table
	paths map[pathKey][]Step
}

// New returns a converter. A nil versions table selects
// mapversion.Default(), a nil mapping table an empty one and a nil rule
// set the built-in rules.
func New(versions *mapversion.Table, table *mappings.Table, rs *rules.RuleSet, opts Options) *Converter {
	if versions == nil {
		versions = mapversion.Default()
	}
	if table == nil {
		table = mappings.NewTable()
	}
	if rs == nil {
		rs = rules.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger()
	}
	return &Converter{
		versions: versions,
		table:    table,
		rules:    rs,
		opts:     opts,
		paths:    make(map[pathKey][]Step),
	}
}

// Table returns the mapping table in use.
func (c *Converter) Table() *mappings.Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table
}

// SetTable swaps the mapping table and drops cached paths.
func (c *Converter) SetTable(t *mappings.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t == nil {
		t = mappings.NewTable()
	}
	c.table = t
	c.paths = make(map[pathKey][]Step)
}

// Rules returns the rule set in use.
func (c *Converter) Rules() *rules.RuleSet { return c.rules }

// Versions returns the version table in use.
func (c *Converter) Versions() *mapversion.Table { return c.versions }

// Reset drops the mappings and every cached path. The shared table the
// converter was built with is left alone.
func (c *Converter) Reset() {
	c.SetTable(nil)
}

// Statistics accumulates over every step of one conversion. Each item
// left in the map counts once, as converted when any step changed its id
// or attributes and as unchanged otherwise.
type Statistics struct {
	TotalTiles        int                   `json:"total_tiles"`
	TotalItems        int                   `json:"total_items"`
	ItemsConverted    int                   `json:"items_converted"`
	ItemsUnchanged    int                   `json:"items_unchanged"`
	ItemsRemoved      int                   `json:"items_removed"`
	ItemsAdded        int                   `json:"items_added"`
	TilesModified     int                   `json:"tiles_modified"`
	AttributesChanged int                   `json:"attributes_changed"`
	FlagsChanged      int                   `json:"flags_changed"`
	Steps             int                   `json:"steps"`
	Elapsed           time.Duration         `json:"elapsed"`
	Source            mapversion.MapVersion `json:"source"`
	Target            mapversion.MapVersion `json:"target"`
	Warnings          []string              `json:"warnings,omitempty"`
	Errors            []string              `json:"errors,omitempty"`
	IDChanges         map[uint16]int        `json:"id_changes,omitempty"`
}

// Summary renders the counters on one line.
func (s *Statistics) Summary() string {
	return fmt.Sprintf("%s -> %s in %d steps: %d converted, %d unchanged, %d removed, %d tiles modified, %d warnings",
		s.Source, s.Target, s.Steps, s.ItemsConverted, s.ItemsUnchanged, s.ItemsRemoved, s.TilesModified, len(s.Warnings))
}

// Result reports one conversion.
type Result struct {
	Success     bool                    `json:"success"`
	Cancelled   bool                    `json:"cancelled"`
	OperationID string                  `json:"operation_id"`
	Path        []mapversion.MapVersion `json:"path"`
	Statistics  Statistics              `json:"statistics"`
	Warnings    []string                `json:"warnings,omitempty"`
	Err         error                   `json:"-"`
}

// ConvertMap converts m to target. On failure m is left as it was.
func (c *Converter) ConvertMap(ctx context.Context, m *mapdata.Map, target mapversion.MapVersion) Result {
	res := Result{OperationID: uuid.NewString()}
	source := m.Header.Version()
	stats := &res.Statistics
	stats.Source, stats.Target = source, target
	stats.TotalTiles = m.TileCount()
	stats.TotalItems = m.ItemCount()

	fail := func(err error) Result {
		res.Err = err
		res.Cancelled = errors.Is(err, errors.ErrCancelled)
		stats.Errors = append(stats.Errors, err.Error())
		res.Warnings = stats.Warnings
		return res
	}

	steps, err := c.plan(source, target)
	if err != nil {
		return fail(err)
	}
	res.Path = []mapversion.MapVersion{source}
	for _, s := range steps {
		res.Path = append(res.Path, s.To)
	}
	if len(steps) == 0 {
		stats.ItemsUnchanged = stats.TotalItems
		res.Success = true
		return res
	}

	bctx := base.NewContext(ctx, base.Options{
		Progress:    c.opts.Progress,
		MinInterval: c.opts.MinInterval,
		Versions:    c.versions,
		Logger:      c.opts.Logger,
		Label:       "convert",
	})
	start := time.Now()
	work := m.Clone()
	run := &run{
		c: c, ctx: bctx, m: work, stats: stats,
		modified: map[mapdata.Position]bool{},
		touched:  map[*mapdata.Item]bool{},
	}
	total := int64(len(steps) * stats.TotalTiles)
	for i, s := range steps {
		if err := bctx.Err(); err != nil {
			stats.Warnings = bctx.Stats.Warnings
			return fail(err)
		}
		if err := run.step(s, int64(i*stats.TotalTiles), total); err != nil {
			stats.Warnings = bctx.Stats.Warnings
			return fail(err)
		}
	}
	run.validate()
	run.count()
	bctx.Finish(total, total)

	stats.Steps = len(steps)
	stats.TilesModified = len(run.modified)
	stats.Elapsed = time.Since(start)
	stats.Warnings = bctx.Stats.Warnings
	m.ReplaceWith(work)

	res.Success = true
	res.Warnings = stats.Warnings
	return res
}

type run struct {
	c        *Converter
	ctx      *base.Context
	m        *mapdata.Map
	stats    *Statistics
	modified map[mapdata.Position]bool
	// touched holds every item some step changed, so an item is counted
	// once however many steps the path has.
	touched map[*mapdata.Item]bool
}

// count sets the converted and unchanged totals from the items left in
// the map once every step ran.
func (r *run) count() {
	converted, total := 0, 0
	for _, t := range r.m.Tiles() {
		t.Walk(func(it *mapdata.Item, _ int) error {
			total++
			if r.touched[it] {
				converted++
			}
			return nil
		})
	}
	r.stats.ItemsConverted = converted
	r.stats.ItemsUnchanged = total - converted
}

func (r *run) idChanged(from uint16, n int) {
	if n == 0 {
		return
	}
	if r.stats.IDChanges == nil {
		r.stats.IDChanges = make(map[uint16]int)
	}
	r.stats.IDChanges[from] += n
}

func (r *run) step(s Step, done, total int64) error {
	var actions []rules.Action
	switch s.Kind {
	case StepClient:
		actions = r.c.rules.ForClient(s.From.Client, s.To.Client)
	case StepStructure:
		actions = r.c.rules.ForStructure(s.From.Structure, s.To.Structure)
	}
	table := r.c.Table()
	converted := 0

	for _, t := range r.m.Tiles() {
		if err := r.ctx.Tick(); err != nil {
			return err
		}
		r.ctx.Pos = t.Pos
		changed := false

		if s.Kind == StepClient {
			err := t.Walk(func(it *mapdata.Item, _ int) error {
				mp, ok := table.Lookup(s.From.Client, s.To.Client, it.ID)
				if !ok {
					if r.c.opts.Strict {
						return errors.NewNotFound("item mapping", fmt.Sprintf("%d (%s)", it.ID, s))
					}
					r.ctx.WarnOnce(fmt.Sprintf("unmapped/%d", it.ID),
						"item %d has no mapping for %s -> %s; id kept", it.ID, s.From.Client, s.To.Client)
					return nil
				}
				hit := false
				if mp.TargetID != it.ID {
					r.idChanged(it.ID, 1)
					it.ID = mp.TargetID
					hit = true
				}
				for _, ch := range mp.Changes {
					if ch.Apply(it) {
						r.stats.AttributesChanged++
						hit = true
					}
				}
				if hit {
					r.touched[it] = true
					converted++
					changed = true
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		var ids map[*mapdata.Item]uint16
		if len(actions) > 0 {
			ids = itemIDs(t)
		}
		var eff rules.Effect
		rules.Apply(actions, t, &eff)
		r.applyFeatures(t, s.To, &eff)
		for id, n := range eff.IDChanges {
			r.idChanged(id, n)
		}
		if eff.ItemsReplaced > 0 {
			t.Walk(func(it *mapdata.Item, _ int) error {
				if old, ok := ids[it]; ok && old != it.ID {
					r.touched[it] = true
				}
				return nil
			})
		}
		r.stats.ItemsRemoved += eff.ItemsRemoved
		r.stats.FlagsChanged += eff.FlagsChanged
		r.stats.AttributesChanged += eff.AttributesChanged
		converted += eff.ItemsReplaced
		if eff.FlagsChanged+eff.AttributesChanged+eff.ItemsReplaced+eff.ItemsRemoved > 0 {
			changed = true
		}
		if changed {
			r.modified[t.Pos] = true
		}
		if t.Trivial() {
			r.m.RemoveTile(t.Pos)
		}
		done++
		r.ctx.Progress(done, total)
	}

	info, ok := r.c.versions.Lookup(s.To.Client)
	r.m.Header.Format = s.To.Format
	r.m.Header.Structure = s.To.Structure
	r.m.Header.Client = s.To.Client
	if ok {
		r.m.Header.ItemsMajor, r.m.Header.ItemsMinor = info.ItemsMajor, info.ItemsMinor
	}
	logging.ConversionStep(r.ctx.Context(), s.From.String(), s.To.String(), converted, r.m.ItemCount()-converted, "kind", s.Kind.String())
	return nil
}

// itemIDs records the id each item on t has before rules run.
func itemIDs(t *mapdata.Tile) map[*mapdata.Item]uint16 {
	ids := make(map[*mapdata.Item]uint16)
	t.Walk(func(it *mapdata.Item, _ int) error {
		ids[it] = it.ID
		return nil
	})
	return ids
}

// applyFeatures reduces item content to what the target version carries.
func (r *run) applyFeatures(t *mapdata.Tile, to mapversion.MapVersion, eff *rules.Effect) {
	tier := mapversion.Supports(mapversion.FeatureTier, to)
	charges := mapversion.Supports(mapversion.FeatureCharges, to)
	if tier && charges {
		return
	}
	t.Walk(func(it *mapdata.Item, _ int) error {
		if !tier && it.Delete(mapdata.AttrTier) {
			eff.AttributesChanged++
			r.ctx.WarnOnce("tier/"+to.String(), "item tiers dropped: %s has no tier", to.Client)
		}
		if !charges {
			if v, ok := it.Attr(mapdata.AttrCharges); ok {
				it.Delete(mapdata.AttrCharges)
				it.Set(mapdata.AttrCount, mapdata.U8(uint8(v.Uint(0xFF))))
				eff.AttributesChanged++
				r.ctx.WarnOnce("charges/"+to.String(), "charges folded into count: %s has no charges", to.Client)
			}
		}
		return nil
	})
}

// validate warns once for each item id the target catalog does not know.
func (r *run) validate() {
	known := r.c.opts.Known
	if known == nil {
		return
	}
	for _, t := range r.m.Tiles() {
		t.Walk(func(it *mapdata.Item, _ int) error {
			if !known(it.ID) {
				r.ctx.WarnOnce(fmt.Sprintf("unknown/%d", it.ID), "item %d is not in the target item catalog", it.ID)
			}
			return nil
		})
	}
}
