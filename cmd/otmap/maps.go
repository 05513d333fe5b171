package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/internal/convert"
	"github.com/FocuswithJustin/OTMapKit/internal/manager"
)

// DetectCmd reports the format of each file without loading it.
type DetectCmd struct {
	Paths []string `arg:"" name:"path" help:"Map files to inspect" type:"path"`
}

type detectLine struct {
	Path string `json:"path"`
	manager.DetectResult
}

func (c *DetectCmd) Run(g *Globals) error {
	e, err := g.setup(context.Background())
	if err != nil {
		return err
	}
	var out []detectLine
	failed := 0
	for _, p := range c.Paths {
		d := e.mgr.Detect(p)
		if !d.Detected {
			failed++
		}
		out = append(out, detectLine{Path: p, DetectResult: d})
	}
	err = g.print(out, func(w io.Writer) {
		for _, l := range out {
			switch {
			case !l.Detected:
				fmt.Fprintf(w, "%s: unrecognized (%s)\n", l.Path, l.Reason)
			case l.HasVersion:
				fmt.Fprintf(w, "%s: %s [%s] %s\n", l.Path, l.Version, l.Compression, l.Reason)
			default:
				fmt.Fprintf(w, "%s: %s [%s] %s\n", l.Path, l.Format, l.Compression, l.Reason)
			}
		}
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files not recognized", failed, len(c.Paths))
	}
	return nil
}

// InfoCmd loads a map and prints its header and content counts.
type InfoCmd struct {
	Path string `arg:"" help:"Map file" type:"existingfile"`
}

type infoOutput struct {
	Map  manager.MapInfo    `json:"map"`
	Load manager.LoadResult `json:"load"`
}

func (c *InfoCmd) Run(g *Globals) error {
	ctx := context.Background()
	e, err := g.setup(ctx)
	if err != nil {
		return err
	}
	m := mapdata.New(0, 0)
	res := e.mgr.LoadMap(ctx, m, c.Path)
	if res.Err != nil {
		return res.Err
	}
	out := infoOutput{Map: manager.Describe(m), Load: res}
	return g.print(out, func(w io.Writer) {
		info := out.Map
		fmt.Fprintf(w, "Path:        %s\n", c.Path)
		fmt.Fprintf(w, "Version:     %s\n", info.Version)
		fmt.Fprintf(w, "Container:   %s\n", res.Compression)
		fmt.Fprintf(w, "Size:        %dx%d\n", info.Width, info.Height)
		if info.Description != "" {
			fmt.Fprintf(w, "Description: %s\n", info.Description)
		}
		fmt.Fprintf(w, "Item list:   %d.%d\n", info.ItemsMajor, info.ItemsMinor)
		if info.SpawnFile != "" {
			fmt.Fprintf(w, "Spawn file:  %s\n", info.SpawnFile)
		}
		if info.HouseFile != "" {
			fmt.Fprintf(w, "House file:  %s\n", info.HouseFile)
		}
		fmt.Fprintf(w, "Tiles:       %d\n", info.Tiles)
		fmt.Fprintf(w, "Items:       %d\n", info.Items)
		fmt.Fprintf(w, "Spawns:      %d\n", info.Spawns)
		fmt.Fprintf(w, "Towns:       %d\n", info.Towns)
		fmt.Fprintf(w, "Houses:      %d\n", info.Houses)
		fmt.Fprintf(w, "Waypoints:   %d\n", info.Waypoints)
		fmt.Fprintf(w, "Digest:      %s\n", res.Digest)
		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warn)
		}
	})
}

// ConvertCmd converts a map to another client version and saves it.
type ConvertCmd struct {
	In        string `arg:"" help:"Source map" type:"existingfile"`
	Out       string `short:"o" help:"Output map (format and container follow the extension)" required:""`
	Client    string `help:"Target client version, e.g. 10.98" required:""`
	Structure int    `help:"Target structure version (-1 picks the one the client uses)" default:"-1"`
	Format    string `help:"Target format: otbm or otmm (default from the output extension)"`
	DryRun    bool   `name:"dry-run" help:"Print the conversion path and exit"`
}

func (c *ConvertCmd) Run(g *Globals) error {
	return process(g, c.In, c.Out, c.Format, c.Client, c.Structure, c.DryRun)
}

// TranscodeCmd rewrites a map in another format, structure version or
// container without changing its client version.
type TranscodeCmd struct {
	In        string `arg:"" help:"Source map" type:"existingfile"`
	Out       string `arg:"" help:"Output map (format and container follow the extension)" type:"path"`
	Structure int    `help:"Target structure version (-1 keeps or derives it)" default:"-1"`
	Format    string `help:"Target format: otbm or otmm (default from the output extension)"`
}

func (c *TranscodeCmd) Run(g *Globals) error {
	return process(g, c.In, c.Out, c.Format, "", c.Structure, false)
}

type processOutput struct {
	Load    manager.LoadResult      `json:"load"`
	Path    []mapversion.MapVersion `json:"path,omitempty"`
	Convert *convert.Result         `json:"convert,omitempty"`
	Save    *manager.SaveResult     `json:"save,omitempty"`
}

func structureFlag(s int) (*mapversion.Structure, error) {
	if s < 0 {
		return nil, nil
	}
	if s > 0xFFFF {
		return nil, fmt.Errorf("structure %d out of range", s)
	}
	v := mapversion.Structure(s)
	return &v, nil
}

// process is the load, convert, save pipeline shared by convert and
// transcode.
func process(g *Globals, in, out, format, client string, structure int, dryRun bool) error {
	ctx := context.Background()
	e, err := g.setup(ctx)
	if err != nil {
		return err
	}
	f, cl, err := parseVersionFlags(format, client)
	if err != nil {
		return err
	}
	if f == mapversion.FormatUnknown {
		f = manager.FormatForPath(out)
	}
	st, err := structureFlag(structure)
	if err != nil {
		return err
	}

	if dryRun {
		d := e.mgr.Detect(in)
		if !d.Detected || !d.HasVersion {
			return fmt.Errorf("%s: cannot read version: %s", in, d.Reason)
		}
		target := e.mgr.ResolveTarget(d.Version, f, st, cl)
		path, err := e.mgr.Converter().ConversionPath(d.Version, target)
		if err != nil {
			return err
		}
		return g.print(path, func(w io.Writer) {
			names := make([]string, len(path))
			for i, v := range path {
				names[i] = v.String()
			}
			fmt.Fprintln(w, strings.Join(names, "\n  -> "))
		})
	}

	m := mapdata.New(0, 0)
	res := processOutput{Load: e.mgr.LoadMap(ctx, m, in)}
	if res.Load.Err != nil {
		return res.Load.Err
	}
	src := res.Load.Version
	target := e.mgr.ResolveTarget(src, f, st, cl)
	if target != src {
		conv := e.mgr.ConvertMap(ctx, m, target)
		res.Convert, res.Path = &conv, conv.Path
		if conv.Err != nil {
			return conv.Err
		}
	}
	save := e.mgr.SaveMap(ctx, m, out, target)
	res.Save = &save
	if save.Err != nil {
		return save.Err
	}

	return g.print(res, func(w io.Writer) {
		fmt.Fprintf(w, "Loaded %s (%s)\n", in, src)
		if res.Convert != nil {
			fmt.Fprintf(w, "Converted: %s\n", res.Convert.Statistics.Summary())
			for _, warn := range res.Convert.Warnings {
				fmt.Fprintf(w, "warning: %s\n", warn)
			}
		}
		fmt.Fprintf(w, "Saved %s (%s, %s)\n", out, save.Version, save.Compression)
		if save.Backup != nil {
			fmt.Fprintf(w, "Backup: %s\n", save.Backup.Digest)
		}
		fmt.Fprintf(w, "Digest: %s\n", save.Digest)
	})
}
