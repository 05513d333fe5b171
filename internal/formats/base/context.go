// Package base provides what both map interpreters share: the operation
// context threaded through recursive load/save calls, the statistics
// record, side-file access and content-based detection.
package base

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/internal/logging"
)

// DefaultMaxDepth bounds container nesting.
const DefaultMaxDepth = 64

// DefaultMinInterval is the default spacing between progress reports.
const DefaultMinInterval = 200 * time.Millisecond

// cancellation is polled once per this many ticks
const checkEvery = 256

// ProgressFunc receives progress reports.
type ProgressFunc func(current, total int64, label string)

// GroundCatalog tells loaders which item ids are ground items.
type GroundCatalog interface {
	IsGround(id uint16) bool
}

// SideFiles gives an interpreter access to files stored next to the map,
// such as an external house list.
type SideFiles interface {
	Open(name string) (io.ReadCloser, error)
	Create(name string) (io.WriteCloser, error)
}

// Dir serves side files from a directory.
type Dir string

func (d Dir) Open(name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(string(d), filepath.Base(name)))
}

func (d Dir) Create(name string) (io.WriteCloser, error) {
	return os.Create(filepath.Join(string(d), filepath.Base(name)))
}

// Options configures a Context.
type Options struct {
	Progress    ProgressFunc
	MinInterval time.Duration
	MaxDepth    int
	// Strict turns per-tile and per-item failures into fatal errors.
	Strict    bool
	Catalog   GroundCatalog
	SideFiles SideFiles
	Versions  *mapversion.Table
	Logger    *slog.Logger
	// Label names the operation in progress reports.
	Label string
	// Name is the base name of the map file; side files are named after it.
	Name string
	// Total is the expected amount of work, in bytes for loads.
	Total int64
}

// Context carries cancellation, progress, diagnostics and the current
// coordinate through one load or save.
type Context struct {
	ctx        context.Context
	opts       Options
	lastReport time.Time
	reported   bool
	ticks      int
	now        func() time.Time
	start      time.Time
	once       map[string]bool

	// Stats is the statistics record of this operation.
	Stats *Statistics
	// Pos is the coordinate being processed, for diagnostics.
	Pos mapdata.Position
}

type progressKey struct{}

// WithProgress attaches a progress sink to ctx. Operations started with
// the returned context report to fn unless their options name their own.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// NewContext prepares a context for one operation.
func NewContext(ctx context.Context, opts Options) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Progress == nil {
		opts.Progress, _ = ctx.Value(progressKey{}).(ProgressFunc)
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.Versions == nil {
		opts.Versions = mapversion.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger()
	}
	return &Context{
		ctx:   ctx,
		opts:  opts,
		now:   time.Now,
		start: time.Now(),
		Stats: &Statistics{},
	}
}

// Context returns the underlying context.Context.
func (c *Context) Context() context.Context { return c.ctx }

// MaxDepth returns the container nesting bound.
func (c *Context) MaxDepth() int { return c.opts.MaxDepth }

// Strict reports whether recoverable failures must abort.
func (c *Context) Strict() bool { return c.opts.Strict }

// Catalog returns the ground catalog, which may be nil.
func (c *Context) Catalog() GroundCatalog { return c.opts.Catalog }

// SideFiles returns the side-file location, which may be nil.
func (c *Context) SideFiles() SideFiles { return c.opts.SideFiles }

// Versions returns the version table used for validation.
func (c *Context) Versions() *mapversion.Table { return c.opts.Versions }

// Name returns the map file base name, which may be empty.
func (c *Context) Name() string { return c.opts.Name }

// Total returns the expected amount of work, or 0 if unknown.
func (c *Context) Total() int64 { return c.opts.Total }

// Logger returns the operation logger.
func (c *Context) Logger() *slog.Logger { return c.opts.Logger }

// Err returns a cancellation error if the operation was cancelled.
func (c *Context) Err() error {
	if err := c.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrCancelled, err)
	}
	return nil
}

// Tick counts one unit of work and polls for cancellation periodically.
func (c *Context) Tick() error {
	c.ticks++
	if c.ticks%checkEvery != 0 {
		return nil
	}
	return c.Err()
}

// Progress forwards a report unless one was sent less than MinInterval ago.
func (c *Context) Progress(current, total int64) {
	if c.opts.Progress == nil {
		return
	}
	now := c.now()
	if c.reported && now.Sub(c.lastReport) < c.opts.MinInterval {
		return
	}
	c.reported = true
	c.lastReport = now
	c.opts.Progress(current, total, c.opts.Label)
}

// Finish always delivers a final report and records the elapsed time.
func (c *Context) Finish(current, total int64) {
	c.Stats.Elapsed = c.now().Sub(c.start)
	if c.opts.Progress != nil {
		c.opts.Progress(current, total, c.opts.Label)
	}
}

// Warnf records a recoverable problem.
func (c *Context) Warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.Stats.Warnings = append(c.Stats.Warnings, msg)
	c.opts.Logger.Debug("map warning", "warning", msg, "pos", c.Pos.String())
}

// WarnOnce records a warning the first time key is seen and reports
// whether it did.
func (c *Context) WarnOnce(key, format string, args ...interface{}) bool {
	if c.once == nil {
		c.once = make(map[string]bool)
	}
	if c.once[key] {
		return false
	}
	c.once[key] = true
	c.Warnf(format, args...)
	return true
}

// StreamFailure marks an error of the node stream itself, after which no
// further node can be read. It is never downgraded to a warning.
type StreamFailure struct {
	Err error
}

func (e *StreamFailure) Error() string { return e.Err.Error() }

func (e *StreamFailure) Unwrap() error { return e.Err }

// Stream wraps a traversal error as a StreamFailure. A nil error or one
// that is already wrapped is returned unchanged.
func Stream(err error) error {
	var sf *StreamFailure
	if err == nil || errors.As(err, &sf) {
		return err
	}
	return &StreamFailure{Err: err}
}

// Recover decides what happens to a per-tile or per-item failure: in
// strict mode, or for fatal kinds, it is returned; otherwise it becomes a
// warning and nil is returned.
func (c *Context) Recover(what string, err error) error {
	if err == nil {
		return nil
	}
	var sf *StreamFailure
	if c.opts.Strict || errors.Fatal(err) || errors.As(err, &sf) {
		return err
	}
	c.Warnf("%s skipped: %v", what, err)
	return nil
}
