package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/internal/mappings"
	"github.com/FocuswithJustin/OTMapKit/internal/rules"
)

// MappingsCmd groups the mapping table commands.
type MappingsCmd struct {
	Import MappingsImportCmd `cmd:"" help:"Merge mapping files into one table file"`
	Export MappingsExportCmd `cmd:"" help:"Write the configured mapping tables to a file"`
	List   MappingsListCmd   `cmd:"" help:"List client pairs and mapping counts"`
}

// MappingsImportCmd reads XML, YAML or SQLite tables and writes them,
// merged, to another file. Later sources win on conflicting ids.
type MappingsImportCmd struct {
	Sources []string `arg:"" name:"source" help:"Mapping files (.xml, .yaml, .db)" type:"existingfile"`
	Out     string   `short:"o" help:"Destination file (default: the configured mapping database)" type:"path"`
	Merge   bool     `help:"Keep the mappings already in the destination"`
}

func (c *MappingsImportCmd) Run(g *Globals) error {
	ctx := context.Background()
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	out := c.Out
	if out == "" {
		out = cfg.Conversion.MappingDB
	}
	if out == "" {
		return fmt.Errorf("no destination: pass --out or set conversion.mapping_db")
	}

	t := mappings.NewTable()
	if c.Merge {
		if _, err := os.Stat(out); err == nil {
			if err := mappings.LoadFile(ctx, t, out); err != nil {
				return err
			}
		}
	}
	src, err := mappings.LoadFiles(ctx, c.Sources...)
	if err != nil {
		return err
	}
	t.Merge(src)
	if err := mappings.SaveFile(ctx, t, out); err != nil {
		return err
	}
	return g.print(tableSummary(t), func(w io.Writer) {
		fmt.Fprintf(w, "Imported %d mappings in %d pairs into %s\n", t.Len(), len(t.Pairs()), out)
	})
}

// MappingsExportCmd writes the tables the configuration loads.
type MappingsExportCmd struct {
	Out string `arg:"" help:"Destination file (.xml, .yaml, .db)" type:"path"`
}

func (c *MappingsExportCmd) Run(g *Globals) error {
	ctx := context.Background()
	e, err := g.setup(ctx)
	if err != nil {
		return err
	}
	if err := mappings.SaveFile(ctx, e.table, c.Out); err != nil {
		return err
	}
	return g.print(tableSummary(e.table), func(w io.Writer) {
		fmt.Fprintf(w, "Exported %d mappings to %s\n", e.table.Len(), c.Out)
	})
}

// MappingsListCmd lists the pairs of the given files, or of the
// configured tables when none are given.
type MappingsListCmd struct {
	Files []string `arg:"" optional:"" name:"file" help:"Mapping files to list instead of the configured ones" type:"existingfile"`
}

type pairSummary struct {
	From     mapversion.Client `json:"from"`
	To       mapversion.Client `json:"to"`
	Mappings int               `json:"mappings"`
}

type tableOutput struct {
	Pairs    []pairSummary `json:"pairs"`
	Mappings int           `json:"mappings"`
	Digest   string        `json:"digest"`
}

func tableSummary(t *mappings.Table) tableOutput {
	out := tableOutput{Mappings: t.Len(), Digest: t.Digest()}
	for _, p := range t.Pairs() {
		out.Pairs = append(out.Pairs, pairSummary{From: p.From, To: p.To, Mappings: t.PairLen(p.From, p.To)})
	}
	return out
}

func (c *MappingsListCmd) Run(g *Globals) error {
	ctx := context.Background()
	var t *mappings.Table
	if len(c.Files) > 0 {
		if _, err := g.loadConfig(); err != nil {
			return err
		}
		var err error
		if t, err = mappings.LoadFiles(ctx, c.Files...); err != nil {
			return err
		}
	} else {
		e, err := g.setup(ctx)
		if err != nil {
			return err
		}
		t = e.table
	}
	out := tableSummary(t)
	return g.print(out, func(w io.Writer) {
		if len(out.Pairs) == 0 {
			fmt.Fprintln(w, "No mapping tables loaded")
			return
		}
		for _, p := range out.Pairs {
			fmt.Fprintf(w, "%-7s -> %-7s %6d mappings\n", p.From, p.To, p.Mappings)
		}
		fmt.Fprintf(w, "Total: %d mappings, digest %s\n", out.Mappings, out.Digest)
	})
}

// RulesCmd groups the conversion rule commands.
type RulesCmd struct {
	Check RulesCheckCmd `cmd:"" help:"Parse rule files and print the effective rule set"`
}

// RulesCheckCmd parses rule files on top of the built-in rules.
type RulesCheckCmd struct {
	Files []string `arg:"" optional:"" name:"file" help:"Rule files (default: the configured one)" type:"existingfile"`
}

type rulesOutput struct {
	Rules    int    `json:"rules"`
	Describe string `json:"describe"`
}

func (c *RulesCheckCmd) Run(g *Globals) error {
	rs := rules.Default()
	files := c.Files
	if len(files) == 0 {
		cfg, err := g.loadConfig()
		if err != nil {
			return err
		}
		if cfg.Conversion.Rules != "" {
			files = []string{cfg.Conversion.Rules}
		}
	}
	for _, f := range files {
		extra, err := rules.Load(f)
		if err != nil {
			return err
		}
		rs = rs.Merge(extra)
	}
	out := rulesOutput{Rules: rs.Len(), Describe: rs.Describe()}
	return g.print(out, func(w io.Writer) {
		fmt.Fprint(w, out.Describe)
		fmt.Fprintf(w, "%d rules OK\n", out.Rules)
	})
}

// VersionsCmd lists the version table, or a conversion path between two
// versions.
type VersionsCmd struct {
	From string `help:"Source client for a conversion path"`
	To   string `help:"Target client for a conversion path"`
}

type versionsOutput struct {
	Clients    []mapversion.ClientInfo                      `json:"clients"`
	Structures map[mapversion.Format][]mapversion.Structure `json:"structures"`
	Path       []mapversion.MapVersion                      `json:"path,omitempty"`
}

func (c *VersionsCmd) Run(g *Globals) error {
	e, err := g.setup(context.Background())
	if err != nil {
		return err
	}
	versions := e.mgr.Versions()
	out := versionsOutput{Structures: map[mapversion.Format][]mapversion.Structure{}}
	for _, cl := range versions.Clients() {
		info, _ := versions.Lookup(cl)
		out.Clients = append(out.Clients, info)
	}
	for _, f := range e.mgr.SupportedFormats() {
		out.Structures[f] = versions.Structures(f)
	}

	if c.From != "" || c.To != "" {
		from, err := mapversion.ParseClient(c.From)
		if err != nil {
			return err
		}
		to, err := mapversion.ParseClient(c.To)
		if err != nil {
			return err
		}
		src := mapversion.MapVersion{Format: mapversion.FormatOTBM, Client: from}
		if info, ok := versions.Lookup(from); ok {
			src.Structure = info.Structure
		}
		target := e.mgr.ResolveTarget(src, mapversion.FormatUnknown, nil, to)
		if out.Path, err = e.mgr.Converter().ConversionPath(src, target); err != nil {
			return err
		}
	}

	return g.print(out, func(w io.Writer) {
		if out.Path != nil {
			for i, v := range out.Path {
				if i > 0 {
					fmt.Fprint(w, "  -> ")
				}
				fmt.Fprintln(w, v)
			}
			return
		}
		fmt.Fprintln(w, "Clients:")
		for _, info := range out.Clients {
			fmt.Fprintf(w, "  %-7s %-10s items %d.%d, otbm v%d\n", info.Client, info.Name, info.ItemsMajor, info.ItemsMinor, info.Structure+1)
		}
		fmt.Fprintln(w, "Structures:")
		for _, f := range e.mgr.SupportedFormats() {
			fmt.Fprintf(w, "  %-5s %v\n", f, out.Structures[f])
		}
	})
}

// BackupsCmd groups the backup store commands.
type BackupsCmd struct {
	List    BackupsListCmd    `cmd:"" help:"List backups taken before saves"`
	Restore BackupsRestoreCmd `cmd:"" help:"Restore a backup by digest"`
}

// BackupsListCmd lists the backup index.
type BackupsListCmd struct {
	Name string `arg:"" optional:"" help:"Only list backups of this file name"`
}

func (c *BackupsListCmd) Run(g *Globals) error {
	e, err := g.setup(context.Background())
	if err != nil {
		return err
	}
	if e.store == nil {
		return fmt.Errorf("no backup store: set save.backup_dir")
	}
	name := c.Name
	if name != "" {
		name = filepath.Base(name)
	}
	recs, err := e.store.Backups(name)
	if err != nil {
		return err
	}
	return g.print(recs, func(w io.Writer) {
		if len(recs) == 0 {
			fmt.Fprintln(w, "No backups")
			return
		}
		for _, r := range recs {
			fmt.Fprintf(w, "%s  %s  %8d  %s\n", r.Time.Format("2006-01-02 15:04:05"), r.Digest[:16], r.Size, r.Path)
		}
	})
}

// BackupsRestoreCmd writes a stored blob back to disk.
type BackupsRestoreCmd struct {
	Digest string `arg:"" help:"Backup digest"`
	Out    string `arg:"" help:"Destination path" type:"path"`
}

func (c *BackupsRestoreCmd) Run(g *Globals) error {
	e, err := g.setup(context.Background())
	if err != nil {
		return err
	}
	if e.store == nil {
		return fmt.Errorf("no backup store: set save.backup_dir")
	}
	if err := e.store.Restore(c.Digest, c.Out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Restored %s to %s\n", c.Digest, c.Out)
	return nil
}
