// Package manager is the façade over the map interpreters and the
// version converter. It detects formats, routes loads and saves to the
// matching interpreter, handles compressed containers and atomic saves,
// and reports every operation as a result value instead of a bare error.
package manager

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/OTMapKit/core/cas"
	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/internal/archive"
	"github.com/FocuswithJustin/OTMapKit/internal/convert"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/base"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/otbm"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/otmm"
	"github.com/FocuswithJustin/OTMapKit/internal/items"
	"github.com/FocuswithJustin/OTMapKit/internal/logging"
)

// codec is one entry of the format dispatch table.
type codec struct {
	load       func(*base.Context, *mapdata.Map, io.Reader) error
	save       func(*base.Context, *mapdata.Map, io.Writer) error
	structures func() []mapversion.Structure
	detect     base.DetectConfig
}

var codecs = map[mapversion.Format]codec{
	mapversion.FormatOTBM: {otbm.Load, otbm.Save, otbm.Structures, otbm.DetectConfig},
	mapversion.FormatOTMM: {otmm.Load, otmm.Save, otmm.Structures, otmm.DetectConfig},
}

// Options configures a Manager. Every table is injected; nil fields get
// fresh defaults owned by the manager.
type Options struct {
	Versions  *mapversion.Table
	Converter *convert.Converter
	Catalog   *items.Catalog
	// Store receives a copy of every file a save overwrites. Nil disables
	// backups.
	Store  *cas.Store
	Logger *slog.Logger
	// Atomic makes saves write a temporary file and rename it into place.
	Atomic      bool
	Strict      bool
	MaxDepth    int
	Progress    base.ProgressFunc
	MinInterval time.Duration
}

// Manager dispatches map operations to the interpreters.
type Manager struct {
	opts Options
}

// New returns a manager.
func New(opts Options) *Manager {
	if opts.Versions == nil {
		opts.Versions = mapversion.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger()
	}
	if opts.Converter == nil {
		copts := convert.Options{Logger: opts.Logger, Progress: opts.Progress, MinInterval: opts.MinInterval}
		if opts.Catalog != nil && opts.Catalog.Len() > 0 {
			cat := opts.Catalog
			copts.Known = func(id uint16) bool {
				_, ok := cat.Lookup(id)
				return ok
			}
		}
		opts.Converter = convert.New(opts.Versions, nil, nil, copts)
	}
	return &Manager{opts: opts}
}

// Versions returns the version table.
func (mgr *Manager) Versions() *mapversion.Table { return mgr.opts.Versions }

// Converter returns the version converter.
func (mgr *Manager) Converter() *convert.Converter { return mgr.opts.Converter }

// Catalog returns the item catalog, which may be nil.
func (mgr *Manager) Catalog() *items.Catalog { return mgr.opts.Catalog }

// SupportedFormats lists the formats that have an interpreter.
func (mgr *Manager) SupportedFormats() []mapversion.Format {
	return []mapversion.Format{mapversion.FormatOTBM, mapversion.FormatOTMM}
}

// SupportedVersions lists the structure versions of f that both the
// version table and the interpreter accept.
func (mgr *Manager) SupportedVersions(f mapversion.Format) []mapversion.Structure {
	c, ok := codecs[f]
	if !ok {
		return nil
	}
	var out []mapversion.Structure
	for _, s := range c.structures() {
		if mgr.opts.Versions.SupportsStructure(f, s) {
			out = append(out, s)
		}
	}
	return out
}

// CanLoad reports whether path holds a map of a supported version.
func (mgr *Manager) CanLoad(path string) bool {
	d := mgr.Detect(path)
	if !d.Detected {
		return false
	}
	return !d.HasVersion || mgr.opts.Versions.Validate(d.Version) == nil
}

// CanSave reports whether maps can be written as v.
func (mgr *Manager) CanSave(v mapversion.MapVersion) bool {
	if _, ok := codecs[v.Format]; !ok {
		return false
	}
	for _, s := range mgr.SupportedVersions(v.Format) {
		if s == v.Structure {
			return mgr.opts.Versions.SupportsClient(v.Client)
		}
	}
	return false
}

// LoadResult reports one load.
type LoadResult struct {
	Success     bool                   `json:"success"`
	Cancelled   bool                   `json:"cancelled"`
	OperationID string                 `json:"operation_id"`
	Path        string                 `json:"path,omitempty"`
	Format      mapversion.Format      `json:"format"`
	Compression mapversion.Compression `json:"compression"`
	Version     mapversion.MapVersion  `json:"version"`
	Digest      string                 `json:"digest,omitempty"`
	Statistics  base.Statistics        `json:"statistics"`
	Warnings    []string               `json:"warnings,omitempty"`
	Err         error                  `json:"-"`
}

// SaveResult reports one save.
type SaveResult struct {
	Success     bool                   `json:"success"`
	Cancelled   bool                   `json:"cancelled"`
	OperationID string                 `json:"operation_id"`
	Path        string                 `json:"path,omitempty"`
	Format      mapversion.Format      `json:"format"`
	Compression mapversion.Compression `json:"compression"`
	Version     mapversion.MapVersion  `json:"version"`
	Digest      string                 `json:"digest,omitempty"`
	Backup      *cas.BackupRecord      `json:"backup,omitempty"`
	Statistics  base.Statistics        `json:"statistics"`
	Warnings    []string               `json:"warnings,omitempty"`
	Err         error                  `json:"-"`
}

func (mgr *Manager) context(ctx context.Context, label, path string, total int64) *base.Context {
	opts := base.Options{
		Progress:    mgr.opts.Progress,
		MinInterval: mgr.opts.MinInterval,
		MaxDepth:    mgr.opts.MaxDepth,
		Strict:      mgr.opts.Strict,
		Versions:    mgr.opts.Versions,
		Logger:      mgr.opts.Logger,
		Label:       label,
		Total:       total,
	}
	if mgr.opts.Catalog != nil {
		opts.Catalog = mgr.opts.Catalog
	}
	if path != "" {
		opts.SideFiles = base.Dir(filepath.Dir(path))
		opts.Name = filepath.Base(archive.StripExtension(path))
	}
	return base.NewContext(ctx, opts)
}

// LoadMap loads the map at path into m. m is left untouched when the load
// fails.
func (mgr *Manager) LoadMap(ctx context.Context, m *mapdata.Map, path string) LoadResult {
	res := LoadResult{OperationID: uuid.NewString(), Path: path}
	fail := func(err error) LoadResult {
		res.Err = err
		res.Cancelled = errors.Is(err, errors.ErrCancelled)
		res.Statistics.Errors = append(res.Statistics.Errors, err.Error())
		logging.OperationError(ctx, "load", path, err, "operation_id", res.OperationID)
		return res
	}

	d := mgr.Detect(path)
	if !d.Detected {
		header, _ := base.ReadHeader(path, 4)
		if _, err := os.Stat(path); err != nil {
			return fail(errors.NewIO("open", path, err))
		}
		return fail(&errors.UnrecognizedFormatError{Path: path, Identifier: header})
	}
	res.Format, res.Compression = d.Format, d.Compression

	f, err := os.Open(path)
	if err != nil {
		return fail(errors.NewIO("open", path, err))
	}
	defer f.Close()
	var total int64
	if info, err := f.Stat(); err == nil && d.Compression == mapversion.CompressionNone {
		total = info.Size()
	}

	digest := cas.NewDigester()
	src, err := archive.NewReader(io.TeeReader(f, digest), d.Compression)
	if err != nil {
		return fail(err)
	}
	defer src.Close()

	bctx := mgr.context(ctx, "load", path, total)
	err = codecs[d.Format].load(bctx, m, src)
	res.Statistics = *bctx.Stats
	res.Warnings = bctx.Stats.Warnings
	if err != nil {
		return fail(err)
	}
	// hash whatever the decoder left unread
	if _, err := io.Copy(digest, f); err != nil {
		return fail(errors.NewIO("read", path, err))
	}
	res.Digest = digest.Sum()
	res.Version = m.Header.Version()
	res.Success = true
	logging.MapLoaded(ctx, path, d.Format.String(), res.Version.String(), m.TileCount(), m.ItemCount(),
		len(res.Warnings), res.Statistics.Elapsed, "operation_id", res.OperationID, "digest", res.Digest)
	return res
}

// LoadBytes loads a map held in memory. Side files are not available.
func (mgr *Manager) LoadBytes(ctx context.Context, m *mapdata.Map, data []byte) LoadResult {
	res := LoadResult{OperationID: uuid.NewString(), Digest: cas.Digest(data)}
	fail := func(err error) LoadResult {
		res.Err = err
		res.Cancelled = errors.Is(err, errors.ErrCancelled)
		res.Statistics.Errors = append(res.Statistics.Errors, err.Error())
		return res
	}

	res.Compression = archive.Sniff(data)
	raw, err := archive.Decompress(data, res.Compression)
	if err != nil {
		return fail(err)
	}
	res.Format = sniffFormat(raw)
	c, ok := codecs[res.Format]
	if !ok {
		n := min(len(raw), 4)
		return fail(&errors.UnrecognizedFormatError{Identifier: raw[:n]})
	}

	bctx := mgr.context(ctx, "load", "", int64(len(raw)))
	err = c.load(bctx, m, bytes.NewReader(raw))
	res.Statistics = *bctx.Stats
	res.Warnings = bctx.Stats.Warnings
	if err != nil {
		return fail(err)
	}
	res.Version = m.Header.Version()
	res.Success = true
	return res
}

func sniffFormat(header []byte) mapversion.Format {
	for _, d := range detectors {
		if base.HasMagic(header, d.config.Magic) {
			return d.format
		}
		if v := d.config.CustomValidator; v != nil {
			if ok, _ := v("", header); ok {
				return d.format
			}
		}
	}
	return mapversion.FormatUnknown
}

// target resolves the version a save writes. A zero format keeps the
// map's own version. The client cannot change on save; that is a
// conversion.
func (mgr *Manager) target(m *mapdata.Map, v mapversion.MapVersion) (mapversion.MapVersion, error) {
	if v.Format == mapversion.FormatUnknown {
		return m.Header.Version(), nil
	}
	if v.Client == 0 {
		v.Client = m.Header.Client
	}
	if v.Client != m.Header.Client {
		return v, errors.NewUnsupportedVersion("client", v.Client.String(),
			"map targets "+m.Header.Client.String()+"; convert it before saving")
	}
	if !mgr.CanSave(v) {
		if err := mgr.opts.Versions.Validate(v); err != nil {
			return v, err
		}
		return v, errors.NewUnsupportedVersion("structure", v.Structure.String(), "no "+v.Format.String()+" writer")
	}
	return v, nil
}

// ResolveTarget fills in what a caller left unset when asking for a
// conversion of a map at src. A zero format or client keeps the source
// one. When structure is nil it is the source structure if neither the
// format nor the client changes, otherwise the structure the version
// table lists for the target client (always 0 for OTMM).
func (mgr *Manager) ResolveTarget(src mapversion.MapVersion, format mapversion.Format, structure *mapversion.Structure, client mapversion.Client) mapversion.MapVersion {
	v := src
	if format != mapversion.FormatUnknown {
		v.Format = format
	}
	if client != 0 {
		v.Client = client
	}
	switch {
	case structure != nil:
		v.Structure = *structure
	case v.Format == src.Format && v.Client == src.Client:
	case v.Format == mapversion.FormatOTMM:
		v.Structure = 0
	default:
		if info, ok := mgr.opts.Versions.Lookup(v.Client); ok {
			v.Structure = info.Structure
		} else {
			v.Structure = mgr.opts.Versions.Latest(v.Format)
		}
	}
	return v
}

// view returns a shallow copy of m whose header names v. Tiles and
// entities are shared; savers only read them.
func view(m *mapdata.Map, v mapversion.MapVersion) *mapdata.Map {
	out := *m
	out.Header.Format = v.Format
	out.Header.Structure = v.Structure
	out.Header.Client = v.Client
	return &out
}

// SaveMap writes m to path as version v, compressed when the path ends in
// a container suffix. A zero v keeps the map's own version. With
// Options.Atomic the file appears only when the write completed, and an
// overwritten file is backed up into Options.Store first.
func (mgr *Manager) SaveMap(ctx context.Context, m *mapdata.Map, path string, v mapversion.MapVersion) SaveResult {
	res := SaveResult{OperationID: uuid.NewString(), Path: path, Compression: archive.FromPath(path)}
	fail := func(err error) SaveResult {
		res.Err = err
		res.Cancelled = errors.Is(err, errors.ErrCancelled)
		res.Statistics.Errors = append(res.Statistics.Errors, err.Error())
		logging.OperationError(ctx, "save", path, err, "operation_id", res.OperationID)
		return res
	}

	target, err := mgr.target(m, v)
	if err != nil {
		return fail(err)
	}
	res.Format, res.Version = target.Format, target

	if mgr.opts.Store != nil {
		rec, err := mgr.opts.Store.Backup(path)
		if err != nil {
			return fail(errors.Wrap(err, "backup"))
		}
		res.Backup = rec
	}

	var f *os.File
	if mgr.opts.Atomic {
		f, err = os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	} else {
		f, err = os.Create(path)
	}
	if err != nil {
		return fail(errors.NewIO("create", path, err))
	}
	tmp := f.Name()
	cleanup := func() {
		f.Close()
		if mgr.opts.Atomic {
			os.Remove(tmp)
		}
	}

	digest := cas.NewDigester()
	w, err := archive.NewWriter(io.MultiWriter(f, digest), res.Compression)
	if err != nil {
		cleanup()
		return fail(err)
	}
	bctx := mgr.context(ctx, "save", path, int64(m.TileCount()))
	err = codecs[target.Format].save(bctx, view(m, target), w)
	res.Statistics = *bctx.Stats
	res.Warnings = bctx.Stats.Warnings
	if err == nil {
		err = w.Close()
	}
	if err == nil && mgr.opts.Atomic {
		err = f.Sync()
	}
	if err != nil {
		cleanup()
		return fail(err)
	}
	if err := f.Close(); err != nil {
		if mgr.opts.Atomic {
			os.Remove(tmp)
		}
		return fail(errors.NewIO("close", path, err))
	}
	if mgr.opts.Atomic {
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return fail(errors.NewIO("rename", path, err))
		}
	}

	res.Digest = digest.Sum()
	res.Success = true
	logging.MapSaved(ctx, path, target.Format.String(), target.String(), res.Statistics.Tiles, len(res.Warnings),
		res.Statistics.Elapsed, "operation_id", res.OperationID, "digest", res.Digest, "compression", res.Compression.String())
	return res
}

// SaveBytes encodes m as version v into memory, wrapped in container c.
// House side files are not written.
func (mgr *Manager) SaveBytes(ctx context.Context, m *mapdata.Map, v mapversion.MapVersion, c mapversion.Compression) ([]byte, SaveResult) {
	res := SaveResult{OperationID: uuid.NewString(), Compression: c}
	fail := func(err error) ([]byte, SaveResult) {
		res.Err = err
		res.Cancelled = errors.Is(err, errors.ErrCancelled)
		res.Statistics.Errors = append(res.Statistics.Errors, err.Error())
		return nil, res
	}
	target, err := mgr.target(m, v)
	if err != nil {
		return fail(err)
	}
	res.Format, res.Version = target.Format, target

	var buf bytes.Buffer
	w, err := archive.NewWriter(&buf, c)
	if err != nil {
		return fail(err)
	}
	bctx := mgr.context(ctx, "save", "", int64(m.TileCount()))
	err = codecs[target.Format].save(bctx, view(m, target), w)
	res.Statistics = *bctx.Stats
	res.Warnings = bctx.Stats.Warnings
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		return fail(err)
	}
	res.Digest = cas.Digest(buf.Bytes())
	res.Success = true
	return buf.Bytes(), res
}

// ConvertMap converts m in place to target through the converter.
func (mgr *Manager) ConvertMap(ctx context.Context, m *mapdata.Map, target mapversion.MapVersion) convert.Result {
	res := mgr.opts.Converter.ConvertMap(ctx, m, target)
	if res.Err != nil {
		logging.OperationError(ctx, "convert", target.String(), res.Err, "operation_id", res.OperationID)
	}
	return res
}

// MapInfo summarizes a loaded map.
type MapInfo struct {
	Version     mapversion.MapVersion `json:"version"`
	Width       uint16                `json:"width"`
	Height      uint16                `json:"height"`
	Description string                `json:"description,omitempty"`
	ItemsMajor  uint32                `json:"items_major"`
	ItemsMinor  uint32                `json:"items_minor"`
	SpawnFile   string                `json:"spawn_file,omitempty"`
	HouseFile   string                `json:"house_file,omitempty"`
	Tiles       int                   `json:"tiles"`
	Items       int                   `json:"items"`
	Spawns      int                   `json:"spawns"`
	Towns       int                   `json:"towns"`
	Houses      int                   `json:"houses"`
	Waypoints   int                   `json:"waypoints"`
}

// Describe summarizes m.
func Describe(m *mapdata.Map) MapInfo {
	h := m.Header
	return MapInfo{
		Version:     h.Version(),
		Width:       h.Width,
		Height:      h.Height,
		Description: h.Description,
		ItemsMajor:  h.ItemsMajor,
		ItemsMinor:  h.ItemsMinor,
		SpawnFile:   h.SpawnFile,
		HouseFile:   h.HouseFile,
		Tiles:       m.TileCount(),
		Items:       m.ItemCount(),
		Spawns:      len(m.Spawns),
		Towns:       len(m.Towns),
		Houses:      len(m.Houses),
		Waypoints:   len(m.Waypoints),
	}
}
