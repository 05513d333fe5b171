// Command otmap is the CLI tool for OTMapKit.
// It detects, inspects, converts and transcodes tile maps, manages item
// mapping tables, and serves the conversion API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/OTMapKit/core/cas"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/internal/config"
	"github.com/FocuswithJustin/OTMapKit/internal/convert"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/base"
	"github.com/FocuswithJustin/OTMapKit/internal/items"
	"github.com/FocuswithJustin/OTMapKit/internal/logging"
	"github.com/FocuswithJustin/OTMapKit/internal/manager"
	"github.com/FocuswithJustin/OTMapKit/internal/mappings"
	"github.com/FocuswithJustin/OTMapKit/internal/rules"
)

const version = "0.3.0"

// stdout and stderr are swapped by tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Globals are the flags every command shares.
type Globals struct {
	Config    string `name:"config" short:"c" help:"Configuration file (YAML)" type:"path" env:"OTMAP_CONFIG"`
	LogLevel  string `name:"log-level" help:"Log level: debug, info, warn, error (overrides config)"`
	LogFormat string `name:"log-format" help:"Log format: text or json (overrides config)"`
	JSON      bool   `name:"json" help:"Print results as JSON"`
	Progress  bool   `name:"progress" help:"Report progress on stderr"`
}

// CLI defines the command-line interface for otmap.
type CLI struct {
	Globals

	Detect    DetectCmd    `cmd:"" help:"Detect the format and version of map files"`
	Info      InfoCmd      `cmd:"" help:"Load a map and print a summary"`
	Convert   ConvertCmd   `cmd:"" help:"Convert a map to another client version"`
	Transcode TranscodeCmd `cmd:"" help:"Rewrite a map in another format or structure version"`
	Mappings  MappingsCmd  `cmd:"" help:"Item mapping table operations"`
	Rules     RulesCmd     `cmd:"" help:"Conversion rule operations"`
	Versions  VersionsCmd  `cmd:"" help:"List known client and structure versions"`
	Backups   BackupsCmd   `cmd:"" help:"List and restore map backups"`
	Serve     ServeCmd     `cmd:"" help:"Start the REST API server"`
	Version   VersionCmd   `cmd:"" help:"Print version information"`
}

// env is everything a command needs, built from the configuration.
type env struct {
	cfg      config.Config
	mgr      *manager.Manager
	table    *mappings.Table
	rules    *rules.RuleSet
	catalog  *items.Catalog
	store    *cas.Store
	progress base.ProgressFunc
}

// loadConfig reads the configuration, applies the flag overrides and
// initializes logging.
func (g *Globals) loadConfig() (config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return cfg, err
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Log.Format = g.LogFormat
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	logging.InitLoggerWriter(stderr, cfg.Level(), cfg.LogFormat())
	return cfg, nil
}

// setup builds the manager and the tables it is injected with.
func (g *Globals) setup(ctx context.Context) (*env, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg}

	e.table, err = mappings.LoadFiles(ctx, cfg.Conversion.MappingTables...)
	if err != nil {
		return nil, fmt.Errorf("mapping tables: %w", err)
	}
	if cfg.Conversion.MappingDB != "" {
		if _, statErr := os.Stat(cfg.Conversion.MappingDB); statErr == nil {
			if err := mappings.LoadSQLite(ctx, e.table, cfg.Conversion.MappingDB); err != nil {
				return nil, fmt.Errorf("mapping database: %w", err)
			}
		}
	}

	e.rules = rules.Default()
	if cfg.Conversion.Rules != "" {
		extra, err := rules.Load(cfg.Conversion.Rules)
		if err != nil {
			return nil, err
		}
		e.rules = e.rules.Merge(extra)
	}

	if cfg.Items.Catalog != "" {
		if e.catalog, err = items.LoadFile(cfg.Items.Catalog); err != nil {
			return nil, err
		}
	}
	if cfg.Save.BackupDir != "" {
		if e.store, err = cas.NewStore(cfg.Save.BackupDir); err != nil {
			return nil, err
		}
	}
	if g.Progress {
		e.progress = progressPrinter(stderr)
	}

	versions := mapversion.Default()
	copts := convert.Options{
		AllowUnmappedHops: cfg.Conversion.AllowUnmappedHops,
		Strict:            cfg.Conversion.Strict,
		MinInterval:       cfg.Progress.MinInterval,
		Progress:          e.progress,
	}
	if e.catalog != nil && e.catalog.Len() > 0 {
		cat := e.catalog
		copts.Known = func(id uint16) bool {
			_, ok := cat.Lookup(id)
			return ok
		}
	}
	e.mgr = manager.New(manager.Options{
		Versions:    versions,
		Converter:   convert.New(versions, e.table, e.rules, copts),
		Catalog:     e.catalog,
		Store:       e.store,
		Atomic:      cfg.Save.Atomic,
		Strict:      cfg.Conversion.Strict,
		MaxDepth:    cfg.Limits.MaxContainerDepth,
		Progress:    e.progress,
		MinInterval: cfg.Progress.MinInterval,
	})
	return e, nil
}

// progressPrinter draws one status line per operation label.
func progressPrinter(w io.Writer) base.ProgressFunc {
	return func(current, total int64, label string) {
		if total <= 0 {
			fmt.Fprintf(w, "\r%-8s %d", label, current)
			return
		}
		pct := current * 100 / total
		fmt.Fprintf(w, "\r%-8s %3d%%", label, min(pct, 100))
		if current >= total {
			fmt.Fprintln(w)
		}
	}
}

// print writes v as indented JSON when --json is set, and calls text
// otherwise.
func (g *Globals) print(v any, text func(w io.Writer)) error {
	if g.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(stdout)
	return nil
}

// parseVersionFlags turns the string flags of convert and transcode into
// a target request.
func parseVersionFlags(format, client string) (mapversion.Format, mapversion.Client, error) {
	var f mapversion.Format
	var c mapversion.Client
	var err error
	if strings.TrimSpace(format) != "" {
		if f, err = mapversion.ParseFormat(format); err != nil {
			return f, c, err
		}
	}
	if strings.TrimSpace(client) != "" {
		if c, err = mapversion.ParseClient(client); err != nil {
			return f, c, err
		}
	}
	return f, c, nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(stdout, "otmap version %s\n", version)
	return nil
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("otmap"),
		kong.Description("OTMapKit - tile map detection, conversion and transcoding"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Writers(stdout, stderr),
	)
}

// run parses args and runs the selected command.
func run(args []string) error {
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return ctx.Run(&cli.Globals)
}

func main() {
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	err = ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
